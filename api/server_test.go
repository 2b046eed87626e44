package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openalpha/credit-engine/api/types"
)

func newTestServer(t *testing.T) (*MockService, http.Handler) {
	t.Helper()
	service := NewMockService()
	config := DefaultConfig()
	config.DisableRateLimit = true
	return service, NewServer(config, service).Handler()
}

func doGet(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, handler := newTestServer(t)

	for _, path := range []string{"/health", "/v1/health"} {
		rec := doGet(t, handler, path)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestMarketsEndpoint(t *testing.T) {
	service, handler := newTestServer(t)
	service.SetMarket(&types.Market{Denom: "ubtc", Enabled: true, OraclePrice: "50000", LongOI: "100", ShortOI: "80"})
	service.SetMarket(&types.Market{Denom: "ueth", Enabled: true, OraclePrice: "3000"})

	rec := doGet(t, handler, "/v1/markets")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Markets []*types.Market `json:"markets"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Markets) != 2 {
		t.Fatalf("expected 2 markets, got %d", len(resp.Markets))
	}
	// Sorted by denom
	if resp.Markets[0].Denom != "ubtc" || resp.Markets[1].Denom != "ueth" {
		t.Errorf("unexpected market order: %s, %s", resp.Markets[0].Denom, resp.Markets[1].Denom)
	}
}

func TestVaultEndpoint(t *testing.T) {
	service, handler := newTestServer(t)
	service.SetVault(&types.Vault{
		TotalLiquidity:    "1000000",
		TotalShares:       "900000",
		WithdrawalBalance: "950000",
		ShareValue:        "1.11",
	})

	rec := doGet(t, handler, "/v1/vault")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var vault types.Vault
	decodeBody(t, rec, &vault)
	if vault.TotalLiquidity != "1000000" {
		t.Errorf("unexpected vault liquidity: %s", vault.TotalLiquidity)
	}
}

func TestAccountEndpoints(t *testing.T) {
	service, handler := newTestServer(t)
	service.SetPositions("2", []*types.Position{
		{AccountID: "2", Denom: "ubtc", Side: "long", Size: "5", UnrealizedPnl: "1200"},
	})
	service.SetHealth(&types.Health{
		AccountID:               "2",
		TotalCollateralValue:    "10000",
		TotalDebtValue:          "4000",
		LiquidationHealthFactor: "2.1",
	})

	rec := doGet(t, handler, "/v1/accounts/2/positions")
	if rec.Code != http.StatusOK {
		t.Fatalf("positions: expected 200, got %d", rec.Code)
	}
	var posResp struct {
		Positions []*types.Position `json:"positions"`
	}
	decodeBody(t, rec, &posResp)
	if len(posResp.Positions) != 1 || posResp.Positions[0].Denom != "ubtc" {
		t.Fatalf("unexpected positions: %+v", posResp.Positions)
	}

	rec = doGet(t, handler, "/v1/accounts/2/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", rec.Code)
	}
	var health types.Health
	decodeBody(t, rec, &health)
	if health.TotalDebtValue != "4000" {
		t.Errorf("unexpected debt value: %s", health.TotalDebtValue)
	}

	// Unknown account health is a 404
	rec = doGet(t, handler, "/v1/accounts/99/health")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown account, got %d", rec.Code)
	}

	// Unknown endpoint under an account is a 404
	rec = doGet(t, handler, "/v1/accounts/2/balances")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown endpoint, got %d", rec.Code)
	}

	// Missing account ID is a 400
	rec = doGet(t, handler, "/v1/accounts/")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing account ID, got %d", rec.Code)
	}
}

func TestLiquidatableEndpointOrdersRiskiestFirst(t *testing.T) {
	service, handler := newTestServer(t)
	service.SetHealth(&types.Health{AccountID: "1", LiquidationHealthFactor: "0.95", Liquidatable: true})
	service.SetHealth(&types.Health{AccountID: "2", LiquidationHealthFactor: "0.40", Liquidatable: true})
	service.SetHealth(&types.Health{AccountID: "3", LiquidationHealthFactor: "1.50"})

	rec := doGet(t, handler, "/v1/liquidatable")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Accounts []*types.LiquidatableAccount `json:"accounts"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Accounts) != 2 {
		t.Fatalf("expected 2 liquidatable accounts, got %d", len(resp.Accounts))
	}
	if resp.Accounts[0].AccountID != "2" {
		t.Errorf("expected riskiest account first, got %s", resp.Accounts[0].AccountID)
	}

	// Limit caps the listing
	rec = doGet(t, handler, "/v1/liquidatable?limit=1")
	decodeBody(t, rec, &resp)
	if len(resp.Accounts) != 1 || resp.Accounts[0].AccountID != "2" {
		t.Fatalf("expected only riskiest account with limit=1, got %+v", resp.Accounts)
	}
}

func TestTriggerOrderEndpoints(t *testing.T) {
	service, handler := newTestServer(t)
	service.SetTriggerOrders("5", []*types.TriggerOrder{
		{AccountID: "5", OrderID: 1, Executable: false, KeeperFee: "1000000uusdc"},
		{AccountID: "5", OrderID: 2, Executable: true, KeeperFee: "1000000uusdc"},
	})

	rec := doGet(t, handler, "/v1/trigger-orders/5")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Orders []*types.TriggerOrder `json:"orders"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Orders) != 2 {
		t.Fatalf("expected 2 orders for account, got %d", len(resp.Orders))
	}

	rec = doGet(t, handler, "/v1/trigger-orders?executable=true")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	decodeBody(t, rec, &resp)
	if len(resp.Orders) != 1 || resp.Orders[0].OrderID != 2 {
		t.Fatalf("expected only executable order 2, got %+v", resp.Orders)
	}

	// The bare listing without the executable filter is rejected
	rec = doGet(t, handler, "/v1/trigger-orders")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without executable=true, got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	_, handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/markets", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestCORSPreflightHandled(t *testing.T) {
	_, handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/v1/markets", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("missing CORS header")
	}
}
