package liquidator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	apitypes "github.com/openalpha/credit-engine/api/types"
)

// MonitorClient defines the read surface the bot needs from the monitor API
type MonitorClient interface {
	// ExecutableTriggerOrders returns trigger orders whose conditions are met
	ExecutableTriggerOrders(ctx context.Context) ([]*apitypes.TriggerOrder, error)

	// LiquidatableAccounts returns up to limit accounts, riskiest first
	LiquidatableAccounts(ctx context.Context, limit int) ([]*apitypes.LiquidatableAccount, error)

	// AccountPositions returns the open perp positions of an account
	AccountPositions(ctx context.Context, accountID string) ([]*apitypes.Position, error)
}

// HTTPMonitorClient talks to the monitor API over HTTP
type HTTPMonitorClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPMonitorClient creates a monitor client for the given base URL.
// A timeout of zero falls back to 5 seconds.
func NewHTTPMonitorClient(baseURL string, timeout time.Duration) *HTTPMonitorClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPMonitorClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// ExecutableTriggerOrders fetches /v1/trigger-orders?executable=true
func (c *HTTPMonitorClient) ExecutableTriggerOrders(ctx context.Context) ([]*apitypes.TriggerOrder, error) {
	var resp struct {
		Orders []*apitypes.TriggerOrder `json:"orders"`
	}
	if err := c.get(ctx, "/v1/trigger-orders?executable=true", &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

// LiquidatableAccounts fetches /v1/liquidatable
func (c *HTTPMonitorClient) LiquidatableAccounts(ctx context.Context, limit int) ([]*apitypes.LiquidatableAccount, error) {
	path := "/v1/liquidatable"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp struct {
		Accounts []*apitypes.LiquidatableAccount `json:"accounts"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Accounts, nil
}

// AccountPositions fetches /v1/accounts/{id}/positions
func (c *HTTPMonitorClient) AccountPositions(ctx context.Context, accountID string) ([]*apitypes.Position, error) {
	path := "/v1/accounts/" + url.PathEscape(accountID) + "/positions"
	var resp struct {
		Positions []*apitypes.Position `json:"positions"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Positions, nil
}

// get performs a GET request and decodes the JSON body into out
func (c *HTTPMonitorClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request %s: unexpected status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// MockMonitorClient is an in-memory monitor for testing
type MockMonitorClient struct {
	mu        sync.Mutex
	orders    []*apitypes.TriggerOrder
	accounts  []*apitypes.LiquidatableAccount
	positions map[string][]*apitypes.Position
	failNext  bool
}

// NewMockMonitorClient creates an empty mock monitor
func NewMockMonitorClient() *MockMonitorClient {
	return &MockMonitorClient{
		positions: make(map[string][]*apitypes.Position),
	}
}

// SetTriggerOrders replaces the executable trigger order listing
func (m *MockMonitorClient) SetTriggerOrders(orders []*apitypes.TriggerOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = orders
}

// SetLiquidatable replaces the liquidatable account listing
func (m *MockMonitorClient) SetLiquidatable(accounts []*apitypes.LiquidatableAccount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts = accounts
}

// SetPositions replaces the positions for an account
func (m *MockMonitorClient) SetPositions(accountID string, positions []*apitypes.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[accountID] = positions
}

// SetFailNext makes the next call return an error
func (m *MockMonitorClient) SetFailNext(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = fail
}

func (m *MockMonitorClient) checkFail() error {
	if m.failNext {
		m.failNext = false
		return fmt.Errorf("simulated monitor failure")
	}
	return nil
}

// ExecutableTriggerOrders returns the seeded trigger orders
func (m *MockMonitorClient) ExecutableTriggerOrders(ctx context.Context) ([]*apitypes.TriggerOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkFail(); err != nil {
		return nil, err
	}
	result := make([]*apitypes.TriggerOrder, len(m.orders))
	copy(result, m.orders)
	return result, nil
}

// LiquidatableAccounts returns the seeded accounts up to limit
func (m *MockMonitorClient) LiquidatableAccounts(ctx context.Context, limit int) ([]*apitypes.LiquidatableAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkFail(); err != nil {
		return nil, err
	}
	accounts := m.accounts
	if limit > 0 && len(accounts) > limit {
		accounts = accounts[:limit]
	}
	result := make([]*apitypes.LiquidatableAccount, len(accounts))
	copy(result, accounts)
	return result, nil
}

// AccountPositions returns the seeded positions for an account
func (m *MockMonitorClient) AccountPositions(ctx context.Context, accountID string) ([]*apitypes.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkFail(); err != nil {
		return nil, err
	}
	positions := m.positions[accountID]
	result := make([]*apitypes.Position, len(positions))
	copy(result, positions)
	return result, nil
}
