package liquidator

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openalpha/credit-engine/api"
	apitypes "github.com/openalpha/credit-engine/api/types"
)

func newTestMonitorServer(t *testing.T) (*api.MockService, *httptest.Server) {
	t.Helper()

	service := api.NewMockService()
	config := api.DefaultConfig()
	config.DisableRateLimit = true
	server := api.NewServer(config, service)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return service, ts
}

func TestHTTPMonitorClientRoundTrip(t *testing.T) {
	service, ts := newTestMonitorServer(t)
	client := NewHTTPMonitorClient(ts.URL, time.Second)
	ctx := context.Background()

	service.SetTriggerOrders("4", []*apitypes.TriggerOrder{
		{AccountID: "4", OrderID: 12, Executable: true, KeeperFee: "1000000uusdc"},
		{AccountID: "4", OrderID: 13, Executable: false},
	})
	service.SetHealth(&apitypes.Health{
		AccountID:               "4",
		Liquidatable:            true,
		LiquidationHealthFactor: "0.72",
	})
	service.SetPositions("4", []*apitypes.Position{
		{AccountID: "4", Denom: "ubtc", Side: "long", UnrealizedPnl: "-250"},
	})

	orders, err := client.ExecutableTriggerOrders(ctx)
	if err != nil {
		t.Fatalf("ExecutableTriggerOrders: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("expected 1 executable order, got %d", len(orders))
	}
	if orders[0].OrderID != 12 {
		t.Errorf("expected order 12, got %d", orders[0].OrderID)
	}

	accounts, err := client.LiquidatableAccounts(ctx, 10)
	if err != nil {
		t.Fatalf("LiquidatableAccounts: %v", err)
	}
	if len(accounts) != 1 || accounts[0].AccountID != "4" {
		t.Fatalf("expected account 4 liquidatable, got %v", accounts)
	}
	if accounts[0].LiquidationHealthFactor != "0.720000000000000000" {
		t.Errorf("unexpected health factor: %s", accounts[0].LiquidationHealthFactor)
	}

	positions, err := client.AccountPositions(ctx, "4")
	if err != nil {
		t.Fatalf("AccountPositions: %v", err)
	}
	if len(positions) != 1 || positions[0].Denom != "ubtc" {
		t.Fatalf("unexpected positions: %v", positions)
	}
}

func TestHTTPMonitorClientErrorStatus(t *testing.T) {
	_, ts := newTestMonitorServer(t)
	client := NewHTTPMonitorClient(ts.URL, time.Second)

	// Bare /v1/trigger-orders without executable=true is a 400
	req := "/v1/trigger-orders"
	var out interface{}
	if err := client.get(context.Background(), req, &out); err == nil {
		t.Fatal("expected error on non-200 status")
	}
}
