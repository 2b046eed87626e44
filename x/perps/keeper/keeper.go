package keeper

import (
	"context"
	"encoding/json"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	storetypes "cosmossdk.io/store/types"
	"github.com/cosmos/cosmos-sdk/codec"
	sdk "github.com/cosmos/cosmos-sdk/types"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"

	"github.com/openalpha/credit-engine/x/perps/types"
)

// Store key prefixes
var (
	MarketKeyPrefix       = []byte{0x01}
	VaultKey              = []byte{0x02}
	UnlockKeyPrefix       = []byte{0x03}
	PositionKeyPrefix     = []byte{0x04}
	VaultDepositKeyPrefix = []byte{0x05}
	RealizedPnlKeyPrefix  = []byte{0x06}
)

// Transient store key prefixes (discarded every block)
var (
	PendingSettlementKeyPrefix = []byte{0x01}
	SettlementSeqKey           = []byte{0x02}
)

// BankKeeper defines the expected interface for the bank module
type BankKeeper interface {
	SendCoinsFromModuleToModule(ctx context.Context, senderModule, recipientModule string, amt sdk.Coins) error
	GetBalance(ctx context.Context, addr sdk.AccAddress, denom string) sdk.Coin
}

// OracleKeeper defines the expected interface for the price oracle
type OracleKeeper interface {
	GetPrice(ctx sdk.Context, denom string) (math.LegacyDec, error)
}

// ParamsKeeper defines the expected interface for the params provider
type ParamsKeeper interface {
	PerpMarketParams(ctx sdk.Context, denom string) (types.PerpMarketParams, error)
	AllPerpMarketParams(ctx sdk.Context) ([]types.PerpMarketParams, error)
	PerpVaultParams(ctx sdk.Context) (types.PerpVaultParams, error)
	FeeDiscount(ctx sdk.Context, accountID string) (math.LegacyDec, error)
}

// CreditKeeper defines the settlement interface to the credit ledger. Trader
// profits are credited to the account balance; losses and fees run the
// deduct-payment waterfall on the credit side.
type CreditKeeper interface {
	IncreaseAccountBalance(ctx sdk.Context, accountID string, coin sdk.Coin) error
	DeductPayment(ctx sdk.Context, accountID string, coin sdk.Coin) error
	RemoveReduceOnlyTriggers(ctx sdk.Context, accountID, denom string) error
}

// Keeper manages perp markets, positions and the counterparty vault
type Keeper struct {
	cdc          codec.BinaryCodec
	storeKey     storetypes.StoreKey
	tstoreKey    storetypes.StoreKey
	bankKeeper   BankKeeper
	oracleKeeper OracleKeeper
	paramsKeeper ParamsKeeper
	creditKeeper CreditKeeper
	baseDenom    string
	creditModule string
	moduleAddr   sdk.AccAddress
	authority    string
	logger       log.Logger
}

// NewKeeper creates a new perps keeper
func NewKeeper(
	cdc codec.BinaryCodec,
	storeKey storetypes.StoreKey,
	tstoreKey storetypes.StoreKey,
	bankKeeper BankKeeper,
	oracleKeeper OracleKeeper,
	paramsKeeper ParamsKeeper,
	baseDenom string,
	creditModule string,
	authority string,
	logger log.Logger,
) *Keeper {
	return &Keeper{
		cdc:          cdc,
		storeKey:     storeKey,
		tstoreKey:    tstoreKey,
		bankKeeper:   bankKeeper,
		oracleKeeper: oracleKeeper,
		paramsKeeper: paramsKeeper,
		baseDenom:    baseDenom,
		creditModule: creditModule,
		moduleAddr:   authtypes.NewModuleAddress(types.ModuleName),
		authority:    authority,
		logger:       logger.With("module", "x/perps"),
	}
}

// SetCreditKeeper wires the credit ledger after both keepers exist.
func (k *Keeper) SetCreditKeeper(ck CreditKeeper) {
	k.creditKeeper = ck
}

// Logger returns the module logger
func (k *Keeper) Logger() log.Logger {
	return k.logger
}

// GetAuthority returns the governance authority address
func (k *Keeper) GetAuthority() string {
	return k.authority
}

// BaseDenom returns the denom the vault and all settlement run in
func (k *Keeper) BaseDenom() string {
	return k.baseDenom
}

// GetStore returns the persistent KVStore
func (k *Keeper) GetStore(ctx sdk.Context) storetypes.KVStore {
	return ctx.KVStore(k.storeKey)
}

// GetTransientStore returns the per-block settlement store
func (k *Keeper) GetTransientStore(ctx sdk.Context) storetypes.KVStore {
	return ctx.TransientStore(k.tstoreKey)
}

// ============ Market State ============

// SetMarketState saves a market to the store
func (k *Keeper) SetMarketState(ctx sdk.Context, ms *types.MarketState) {
	store := k.GetStore(ctx)
	key := append(MarketKeyPrefix, []byte(ms.Denom)...)
	bz, _ := json.Marshal(ms)
	store.Set(key, bz)
}

// GetMarketState retrieves a market from the store
func (k *Keeper) GetMarketState(ctx sdk.Context, denom string) *types.MarketState {
	store := k.GetStore(ctx)
	key := append(MarketKeyPrefix, []byte(denom)...)
	bz := store.Get(key)
	if bz == nil {
		return nil
	}
	var ms types.MarketState
	if err := json.Unmarshal(bz, &ms); err != nil {
		return nil
	}
	return &ms
}

// GetAllMarketStates returns all markets
func (k *Keeper) GetAllMarketStates(ctx sdk.Context) []*types.MarketState {
	store := k.GetStore(ctx)
	iterator := storetypes.KVStorePrefixIterator(store, MarketKeyPrefix)
	defer iterator.Close()

	var markets []*types.MarketState
	for ; iterator.Valid(); iterator.Next() {
		var ms types.MarketState
		if err := json.Unmarshal(iterator.Value(), &ms); err != nil {
			continue
		}
		markets = append(markets, &ms)
	}
	return markets
}

// InitMarket creates the market state for a denom the params provider has
// registered. Funding params are copied into the market snapshot.
func (k *Keeper) InitMarket(ctx sdk.Context, denom string) error {
	if k.GetMarketState(ctx, denom) != nil {
		return types.ErrMarketExists
	}
	params, err := k.paramsKeeper.PerpMarketParams(ctx, denom)
	if err != nil {
		return err
	}
	ms := types.NewMarketState(denom, params.MaxFundingVelocity, params.SkewScale, ctx.BlockTime().Unix())
	ms.Enabled = params.Enabled
	k.SetMarketState(ctx, ms)

	k.Logger().Info("perp market initialized", "denom", denom, "skew_scale", params.SkewScale.String())
	return nil
}

// SyncMarketParams re-reads the market params after a params change,
// settling funding at the old parameters first.
func (k *Keeper) SyncMarketParams(ctx sdk.Context, denom string) error {
	ms := k.GetMarketState(ctx, denom)
	if ms == nil {
		return types.ErrMarketNotFound
	}
	if err := k.UpdateFunding(ctx, ms); err != nil {
		return err
	}
	params, err := k.paramsKeeper.PerpMarketParams(ctx, denom)
	if err != nil {
		return err
	}
	ms.Enabled = params.Enabled
	ms.Funding.MaxFundingVelocity = params.MaxFundingVelocity
	ms.Funding.SkewScale = params.SkewScale
	k.SetMarketState(ctx, ms)
	return nil
}

// ============ Positions ============

// positionKey generates the key for a position
func positionKey(accountID, denom string) []byte {
	return append(PositionKeyPrefix, []byte(accountID+":"+denom)...)
}

// SetPosition saves a position to the store
func (k *Keeper) SetPosition(ctx sdk.Context, position *types.Position) {
	store := k.GetStore(ctx)
	key := positionKey(position.AccountID, position.Denom)
	bz, _ := json.Marshal(position)
	store.Set(key, bz)
}

// GetPosition retrieves a position from the store
func (k *Keeper) GetPosition(ctx sdk.Context, accountID, denom string) *types.Position {
	store := k.GetStore(ctx)
	bz := store.Get(positionKey(accountID, denom))
	if bz == nil {
		return nil
	}
	var position types.Position
	if err := json.Unmarshal(bz, &position); err != nil {
		return nil
	}
	return &position
}

// DeletePosition removes a position from the store
func (k *Keeper) DeletePosition(ctx sdk.Context, accountID, denom string) {
	store := k.GetStore(ctx)
	store.Delete(positionKey(accountID, denom))
}

// GetAccountPositions returns all positions of one credit account
func (k *Keeper) GetAccountPositions(ctx sdk.Context, accountID string) []*types.Position {
	store := k.GetStore(ctx)
	prefix := append(PositionKeyPrefix, []byte(accountID+":")...)
	iterator := storetypes.KVStorePrefixIterator(store, prefix)
	defer iterator.Close()

	var positions []*types.Position
	for ; iterator.Valid(); iterator.Next() {
		var position types.Position
		if err := json.Unmarshal(iterator.Value(), &position); err != nil {
			continue
		}
		positions = append(positions, &position)
	}
	return positions
}

// GetAllPositions returns all positions
func (k *Keeper) GetAllPositions(ctx sdk.Context) []*types.Position {
	store := k.GetStore(ctx)
	iterator := storetypes.KVStorePrefixIterator(store, PositionKeyPrefix)
	defer iterator.Close()

	var positions []*types.Position
	for ; iterator.Valid(); iterator.Next() {
		var position types.Position
		if err := json.Unmarshal(iterator.Value(), &position); err != nil {
			continue
		}
		positions = append(positions, &position)
	}
	return positions
}

// ============ Vault State ============

// GetVaultState returns the vault, creating the zero state on first access
func (k *Keeper) GetVaultState(ctx sdk.Context) *types.VaultState {
	store := k.GetStore(ctx)
	bz := store.Get(VaultKey)
	if bz == nil {
		return types.NewVaultState()
	}
	var vs types.VaultState
	if err := json.Unmarshal(bz, &vs); err != nil {
		return types.NewVaultState()
	}
	return &vs
}

// SetVaultState saves the vault state
func (k *Keeper) SetVaultState(ctx sdk.Context, vs *types.VaultState) {
	store := k.GetStore(ctx)
	bz, _ := json.Marshal(vs)
	store.Set(VaultKey, bz)
}

// ============ Vault Deposits ============

// SetVaultDeposit saves an account's vault share record
func (k *Keeper) SetVaultDeposit(ctx sdk.Context, deposit *types.VaultDeposit) {
	store := k.GetStore(ctx)
	key := append(VaultDepositKeyPrefix, []byte(deposit.AccountID)...)
	bz, _ := json.Marshal(deposit)
	store.Set(key, bz)
}

// GetVaultDeposit retrieves an account's vault share record
func (k *Keeper) GetVaultDeposit(ctx sdk.Context, accountID string) *types.VaultDeposit {
	store := k.GetStore(ctx)
	bz := store.Get(append(VaultDepositKeyPrefix, []byte(accountID)...))
	if bz == nil {
		return nil
	}
	var deposit types.VaultDeposit
	if err := json.Unmarshal(bz, &deposit); err != nil {
		return nil
	}
	return &deposit
}

// DeleteVaultDeposit removes an account's vault share record
func (k *Keeper) DeleteVaultDeposit(ctx sdk.Context, accountID string) {
	store := k.GetStore(ctx)
	store.Delete(append(VaultDepositKeyPrefix, []byte(accountID)...))
}

// ============ Vault Unlocks ============

// SetUnlocks saves an account's pending unlock queue
func (k *Keeper) SetUnlocks(ctx sdk.Context, accountID string, unlocks []types.UnlockState) {
	store := k.GetStore(ctx)
	key := append(UnlockKeyPrefix, []byte(accountID)...)
	if len(unlocks) == 0 {
		store.Delete(key)
		return
	}
	bz, _ := json.Marshal(unlocks)
	store.Set(key, bz)
}

// GetUnlocks returns an account's pending unlock queue in creation order
func (k *Keeper) GetUnlocks(ctx sdk.Context, accountID string) []types.UnlockState {
	store := k.GetStore(ctx)
	bz := store.Get(append(UnlockKeyPrefix, []byte(accountID)...))
	if bz == nil {
		return nil
	}
	var unlocks []types.UnlockState
	if err := json.Unmarshal(bz, &unlocks); err != nil {
		return nil
	}
	return unlocks
}

// ============ Realized PnL ============

// realizedPnlKey generates the key for a realized pnl accumulator
func realizedPnlKey(accountID, denom string) []byte {
	return append(RealizedPnlKeyPrefix, []byte(accountID+":"+denom)...)
}

// GetRealizedPnl returns the account's realized flows in one market
func (k *Keeper) GetRealizedPnl(ctx sdk.Context, accountID, denom string) *types.RealizedPnl {
	store := k.GetStore(ctx)
	bz := store.Get(realizedPnlKey(accountID, denom))
	if bz == nil {
		return types.NewRealizedPnl(accountID, denom)
	}
	var pnl types.RealizedPnl
	if err := json.Unmarshal(bz, &pnl); err != nil {
		return types.NewRealizedPnl(accountID, denom)
	}
	return &pnl
}

// SetRealizedPnl saves a realized pnl accumulator
func (k *Keeper) SetRealizedPnl(ctx sdk.Context, pnl *types.RealizedPnl) {
	store := k.GetStore(ctx)
	bz, _ := json.Marshal(pnl)
	store.Set(realizedPnlKey(pnl.AccountID, pnl.Denom), bz)
}
