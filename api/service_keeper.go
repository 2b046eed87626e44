package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"cosmossdk.io/store"
	storemetrics "cosmossdk.io/store/metrics"
	storetypes "cosmossdk.io/store/types"
	cmtproto "github.com/cometbft/cometbft/proto/tendermint/types"
	dbm "github.com/cosmos/cosmos-db"
	"github.com/cosmos/cosmos-sdk/codec"
	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"

	"github.com/openalpha/credit-engine/api/types"
	"github.com/openalpha/credit-engine/app"
	creditkeeper "github.com/openalpha/credit-engine/x/credit/keeper"
	credittypes "github.com/openalpha/credit-engine/x/credit/types"
	healthkeeper "github.com/openalpha/credit-engine/x/health/keeper"
	healthtypes "github.com/openalpha/credit-engine/x/health/types"
	perpskeeper "github.com/openalpha/credit-engine/x/perps/keeper"
	perpstypes "github.com/openalpha/credit-engine/x/perps/types"
)

// AccountSource enumerates the minted credit account tokens.
type AccountSource interface {
	AllAccountIDs(ctx sdk.Context) []string
}

// MarketSource enumerates the configured perp markets.
type MarketSource interface {
	AllPerpMarketParams(ctx sdk.Context) ([]perpstypes.PerpMarketParams, error)
}

// Backend bundles the keepers the monitor API reads from plus a context
// provider. On a node the provider returns a query context at the latest
// committed height; the standalone service returns its in-memory context.
type Backend struct {
	Credit   *creditkeeper.Keeper
	Perps    *perpskeeper.Keeper
	Health   *healthkeeper.Keeper
	Markets  MarketSource
	Accounts AccountSource
	Context  func() sdk.Context
}

// KeeperService implements Service by reading keeper state directly. A
// watchlist indexed by liquidation health factor is refreshed on every
// Liquidatable call so the riskiest accounts come back first.
type KeeperService struct {
	backend   Backend
	watchlist *Watchlist
	mu        sync.RWMutex
}

// NewKeeperService creates a Service over an existing keeper set
func NewKeeperService(backend Backend) *KeeperService {
	return &KeeperService{
		backend:   backend,
		watchlist: NewWatchlist(),
	}
}

// ============================================================================
// Service Implementation
// ============================================================================

func (s *KeeperService) Markets(_ context.Context) ([]*types.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx := s.backend.Context()

	params, err := s.backend.Markets.AllPerpMarketParams(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*types.Market, 0, len(params))
	for _, p := range params {
		snap, err := s.backend.Perps.QueryMarket(ctx, p.Denom)
		if err != nil {
			// Configured but not yet initialized on chain
			continue
		}
		out = append(out, &types.Market{
			Denom:          snap.Denom,
			Enabled:        snap.Enabled,
			OraclePrice:    snap.OraclePrice.String(),
			LongOI:         snap.LongOI.String(),
			ShortOI:        snap.ShortOI.String(),
			FundingRate:    snap.FundingRate.String(),
			AccruedPerUnit: snap.AccruedPerUnit.String(),
			TraderPnl:      snap.TraderPnl.String(),
		})
	}
	return out, nil
}

func (s *KeeperService) Vault(_ context.Context) (*types.Vault, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx := s.backend.Context()

	snap, err := s.backend.Perps.QueryVault(ctx)
	if err != nil {
		return nil, err
	}
	v := &types.Vault{
		TotalLiquidity:    snap.TotalLiquidity.String(),
		TotalShares:       snap.TotalShares.String(),
		WithdrawalBalance: snap.WithdrawalBalance.String(),
		ShareValue:        snap.ShareValue.String(),
	}
	if snap.CollateralizationRate != nil {
		v.CollateralizationRate = snap.CollateralizationRate.String()
	}
	return v, nil
}

func (s *KeeperService) AccountPositions(_ context.Context, accountID string) ([]*types.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx := s.backend.Context()

	snaps, err := s.backend.Perps.QueryAccountPositions(ctx, accountID)
	if err != nil {
		return nil, err
	}

	out := make([]*types.Position, 0, len(snaps))
	for _, snap := range snaps {
		side := "long"
		if snap.Position.Size.Negative {
			side = "short"
		}
		out = append(out, &types.Position{
			AccountID:         snap.Position.AccountID,
			Denom:             snap.Position.Denom,
			Side:              side,
			Size:              snap.Position.Size.String(),
			OraclePrice:       snap.OraclePrice.String(),
			UnrealizedPnl:     snap.Unrealized.PricePnl.String(),
			UnrealizedFunding: snap.Unrealized.AccruedFunding.String(),
			ClosingFee:        snap.Unrealized.ClosingFee.String(),
		})
	}
	return out, nil
}

func (s *KeeperService) AccountHealth(_ context.Context, accountID string) (*types.Health, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx := s.backend.Context()

	hv, err := s.backend.Health.HealthValues(ctx, accountID, healthtypes.PricingDefault)
	if err != nil {
		return nil, err
	}
	return healthResponse(accountID, hv), nil
}

func (s *KeeperService) Liquidatable(_ context.Context, limit int) ([]*types.LiquidatableAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := s.backend.Context()

	if limit <= 0 {
		limit = 50
	}

	// Full rescan, then read off the front of the index. Accounts with no
	// debt carry no health factor and stay out of the list.
	for _, accountID := range s.backend.Accounts.AllAccountIDs(ctx) {
		hv, err := s.backend.Health.HealthValues(ctx, accountID, healthtypes.PricingLiquidation)
		if err != nil {
			continue
		}
		if hv.LiquidationHealthFactor == nil {
			s.watchlist.Remove(accountID)
			continue
		}
		s.watchlist.Update(accountID, *hv.LiquidationHealthFactor)
	}

	entries := s.watchlist.Riskiest(limit, math.LegacyOneDec())
	out := make([]*types.LiquidatableAccount, 0, len(entries))
	for _, e := range entries {
		out = append(out, &types.LiquidatableAccount{
			AccountID:               e.AccountID,
			LiquidationHealthFactor: e.HealthFactor.String(),
		})
	}
	return out, nil
}

func (s *KeeperService) TriggerOrders(_ context.Context, accountID string) ([]*types.TriggerOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx := s.backend.Context()

	orders := s.backend.Credit.GetTriggerOrders(ctx, accountID)
	out := make([]*types.TriggerOrder, 0, len(orders))
	for _, order := range orders {
		out = append(out, triggerOrderResponse(order, false))
	}
	return out, nil
}

func (s *KeeperService) ExecutableTriggerOrders(_ context.Context) ([]*types.TriggerOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx := s.backend.Context()

	orders, err := s.backend.Credit.ListExecutableTriggerOrders(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*types.TriggerOrder, 0, len(orders))
	for _, order := range orders {
		out = append(out, triggerOrderResponse(order, true))
	}
	return out, nil
}

// ============================================================================
// Response Mapping
// ============================================================================

func healthResponse(accountID string, hv *healthtypes.HealthValues) *types.Health {
	h := &types.Health{
		AccountID:            accountID,
		TotalCollateralValue: hv.TotalCollateralValue.String(),
		TotalDebtValue:       hv.TotalDebtValue.String(),
		PerpsPnlProfit:       hv.PerpsPnlProfit.String(),
		PerpsPnlLoss:         hv.PerpsPnlLoss.String(),
		Liquidatable:         hv.Liquidatable,
		AboveMaxLtv:          hv.AboveMaxLtv,
		HasPerps:             hv.HasPerps,
	}
	if hv.MaxLtvHealthFactor != nil {
		h.MaxLtvHealthFactor = hv.MaxLtvHealthFactor.String()
	}
	if hv.LiquidationHealthFactor != nil {
		h.LiquidationHealthFactor = hv.LiquidationHealthFactor.String()
	}
	return h
}

func triggerOrderResponse(order *credittypes.TriggerOrder, executable bool) *types.TriggerOrder {
	conditions := make([]types.TriggerCondition, 0, len(order.Conditions))
	for _, c := range order.Conditions {
		switch {
		case c.OraclePrice != nil:
			conditions = append(conditions, types.TriggerCondition{
				Denom:      c.OraclePrice.Denom,
				Comparison: c.OraclePrice.Cmp.String(),
				Price:      c.OraclePrice.Price.String(),
			})
		case c.HealthFactor != nil:
			conditions = append(conditions, types.TriggerCondition{
				Denom:      "health_factor",
				Comparison: c.HealthFactor.Cmp.String(),
				Price:      c.HealthFactor.Threshold.String(),
			})
		case c.RelativePrice != nil:
			conditions = append(conditions, types.TriggerCondition{
				Denom:      c.RelativePrice.BaseDenom + "/" + c.RelativePrice.QuoteDenom,
				Comparison: c.RelativePrice.Cmp.String(),
				Price:      c.RelativePrice.Price.String(),
			})
		}
	}
	return &types.TriggerOrder{
		AccountID:  order.AccountID,
		OrderID:    order.OrderID,
		KeeperFee:  order.KeeperFee.String(),
		Conditions: conditions,
		Actions:    len(order.Actions),
		Executable: executable,
		CreatedAt:  order.CreatedAt,
	}
}

// ============================================================================
// Standalone Backend
// ============================================================================

// memBank is an in-memory stand-in for x/bank, sufficient for the module
// transfers the keepers make in standalone mode.
type memBank struct {
	balances map[string]sdk.Coins
	mu       sync.Mutex
}

func newMemBank() *memBank {
	return &memBank{balances: make(map[string]sdk.Coins)}
}

func (b *memBank) SendCoinsFromModuleToModule(_ context.Context, senderModule, recipientModule string, amt sdk.Coins) error {
	from := authtypes.NewModuleAddress(senderModule).String()
	to := authtypes.NewModuleAddress(recipientModule).String()
	return b.move(from, to, amt)
}

func (b *memBank) SendCoinsFromAccountToModule(_ context.Context, senderAddr sdk.AccAddress, recipientModule string, amt sdk.Coins) error {
	return b.move(senderAddr.String(), authtypes.NewModuleAddress(recipientModule).String(), amt)
}

func (b *memBank) SendCoinsFromModuleToAccount(_ context.Context, senderModule string, recipientAddr sdk.AccAddress, amt sdk.Coins) error {
	return b.move(authtypes.NewModuleAddress(senderModule).String(), recipientAddr.String(), amt)
}

func (b *memBank) GetBalance(_ context.Context, addr sdk.AccAddress, denom string) sdk.Coin {
	b.mu.Lock()
	defer b.mu.Unlock()
	return sdk.NewCoin(denom, b.balances[addr.String()].AmountOf(denom))
}

// Mint credits an address out of thin air, for seeding standalone state.
func (b *memBank) Mint(addr string, amt sdk.Coins) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[addr] = b.balances[addr].Add(amt...)
}

func (b *memBank) move(from, to string, amt sdk.Coins) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	have := b.balances[from]
	if !amt.IsAllLTE(have) {
		// Standalone mode tolerates unseeded module accounts
		b.balances[from] = have.Add(amt...)
	}
	b.balances[from] = b.balances[from].Sub(amt...)
	b.balances[to] = b.balances[to].Add(amt...)
	return nil
}

// NewStandaloneService creates a KeeperService over a fresh in-memory store
// with devnet collaborators, no running node required. State does not survive
// a restart.
func NewStandaloneService(logger log.Logger) (*KeeperService, error) {
	interfaceRegistry := codectypes.NewInterfaceRegistry()
	cdc := codec.NewProtoCodec(interfaceRegistry)

	creditKey := storetypes.NewKVStoreKey(credittypes.StoreKey)
	perpsKey := storetypes.NewKVStoreKey(perpstypes.StoreKey)
	perpsTKey := storetypes.NewTransientStoreKey(perpstypes.TStoreKey)

	db := dbm.NewMemDB()
	stateStore := store.NewCommitMultiStore(db, logger, storemetrics.NewNoOpMetrics())
	stateStore.MountStoreWithDB(creditKey, storetypes.StoreTypeIAVL, db)
	stateStore.MountStoreWithDB(perpsKey, storetypes.StoreTypeIAVL, db)
	stateStore.MountStoreWithDB(perpsTKey, storetypes.StoreTypeTransient, db)
	if err := stateStore.LoadLatestVersion(); err != nil {
		return nil, fmt.Errorf("failed to load store: %w", err)
	}

	ctx := sdk.NewContext(stateStore, cmtproto.Header{
		Time:   time.Now(),
		Height: 1,
	}, false, logger)

	oracle := app.NewDevnetOracle()
	params := app.NewDevnetParams()
	redBank := app.NewDevnetRedBank()
	accountNFT := app.NewDevnetAccountNFT()
	swapper := app.NewDevnetSwapper(oracle)
	vaults := app.NewDevnetVaults()
	bank := newMemBank()

	creditKeeper := creditkeeper.NewKeeper(
		cdc, creditKey, bank, oracle, params, redBank, accountNFT, swapper, vaults, logger,
	)
	cfg := credittypes.DefaultConfig()
	perpsKeeper := perpskeeper.NewKeeper(
		cdc, perpsKey, perpsTKey, bank, oracle, params,
		cfg.BaseDenom, credittypes.ModuleName, cfg.Owner, logger,
	)
	healthKeeper := healthkeeper.NewKeeper(oracle, params, logger)

	creditKeeper.SetPerpsKeeper(perpsKeeper)
	creditKeeper.SetHealthKeeper(healthKeeper)
	perpsKeeper.SetCreditKeeper(creditKeeper)
	healthKeeper.SetSources(creditKeeper, perpsKeeper)
	accountNFT.SetBurnGate(creditKeeper)

	creditKeeper.SetConfig(ctx, cfg)
	markets, err := params.AllPerpMarketParams(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range markets {
		if err := perpsKeeper.InitMarket(ctx, m.Denom); err != nil {
			return nil, fmt.Errorf("init market %s: %w", m.Denom, err)
		}
	}

	return NewKeeperService(Backend{
		Credit:   creditKeeper,
		Perps:    perpsKeeper,
		Health:   healthKeeper,
		Markets:  params,
		Accounts: accountNFT,
		Context:  func() sdk.Context { return ctx.WithBlockTime(time.Now()) },
	}), nil
}
