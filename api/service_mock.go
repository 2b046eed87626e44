package api

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cosmossdk.io/math"

	"github.com/openalpha/credit-engine/api/types"
)

// MockService implements Service with settable in-memory data
type MockService struct {
	markets       map[string]*types.Market
	vault         *types.Vault
	positions     map[string][]*types.Position    // key: accountID
	health        map[string]*types.Health        // key: accountID
	triggerOrders map[string][]*types.TriggerOrder // key: accountID
	watchlist     *Watchlist
	mu            sync.RWMutex
}

// NewMockService creates a new mock service with empty state
func NewMockService() *MockService {
	return &MockService{
		markets:       make(map[string]*types.Market),
		vault:         &types.Vault{TotalLiquidity: "0", TotalShares: "0", WithdrawalBalance: "0", ShareValue: "0"},
		positions:     make(map[string][]*types.Position),
		health:        make(map[string]*types.Health),
		triggerOrders: make(map[string][]*types.TriggerOrder),
		watchlist:     NewWatchlist(),
	}
}

// ============ Seed helpers ============

// SetMarket sets a market snapshot
func (ms *MockService) SetMarket(m *types.Market) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.markets[m.Denom] = m
}

// SetVault sets the vault snapshot
func (ms *MockService) SetVault(v *types.Vault) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.vault = v
}

// SetPositions sets an account's positions
func (ms *MockService) SetPositions(accountID string, positions []*types.Position) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.positions[accountID] = positions
}

// SetHealth sets an account's health snapshot and keeps the watchlist in step
func (ms *MockService) SetHealth(h *types.Health) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.health[h.AccountID] = h
	if h.LiquidationHealthFactor == "" {
		ms.watchlist.Remove(h.AccountID)
		return
	}
	hf, err := math.LegacyNewDecFromStr(h.LiquidationHealthFactor)
	if err != nil {
		return
	}
	ms.watchlist.Update(h.AccountID, hf)
}

// SetTriggerOrders sets an account's trigger orders
func (ms *MockService) SetTriggerOrders(accountID string, orders []*types.TriggerOrder) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.triggerOrders[accountID] = orders
}

// ============ Service Implementation ============

func (ms *MockService) Markets(_ context.Context) ([]*types.Market, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	denoms := make([]string, 0, len(ms.markets))
	for denom := range ms.markets {
		denoms = append(denoms, denom)
	}
	sort.Strings(denoms)
	out := make([]*types.Market, 0, len(denoms))
	for _, denom := range denoms {
		out = append(out, ms.markets[denom])
	}
	return out, nil
}

func (ms *MockService) Vault(_ context.Context) (*types.Vault, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.vault, nil
}

func (ms *MockService) AccountPositions(_ context.Context, accountID string) ([]*types.Position, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	positions, ok := ms.positions[accountID]
	if !ok {
		return []*types.Position{}, nil
	}
	return positions, nil
}

func (ms *MockService) AccountHealth(_ context.Context, accountID string) (*types.Health, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	h, ok := ms.health[accountID]
	if !ok {
		return nil, fmt.Errorf("account %s not found", accountID)
	}
	return h, nil
}

func (ms *MockService) Liquidatable(_ context.Context, limit int) ([]*types.LiquidatableAccount, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	entries := ms.watchlist.Riskiest(limit, math.LegacyOneDec())
	out := make([]*types.LiquidatableAccount, 0, len(entries))
	for _, e := range entries {
		out = append(out, &types.LiquidatableAccount{
			AccountID:               e.AccountID,
			LiquidationHealthFactor: e.HealthFactor.String(),
		})
	}
	return out, nil
}

func (ms *MockService) TriggerOrders(_ context.Context, accountID string) ([]*types.TriggerOrder, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	orders, ok := ms.triggerOrders[accountID]
	if !ok {
		return []*types.TriggerOrder{}, nil
	}
	return orders, nil
}

func (ms *MockService) ExecutableTriggerOrders(_ context.Context) ([]*types.TriggerOrder, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	out := make([]*types.TriggerOrder, 0)
	accountIDs := make([]string, 0, len(ms.triggerOrders))
	for accountID := range ms.triggerOrders {
		accountIDs = append(accountIDs, accountID)
	}
	sort.Strings(accountIDs)
	for _, accountID := range accountIDs {
		for _, order := range ms.triggerOrders[accountID] {
			if order.Executable {
				out = append(out, order)
			}
		}
	}
	return out, nil
}
