package keeper

import (
	"context"
	"encoding/json"
	"sync"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	storetypes "cosmossdk.io/store/types"
	"github.com/cosmos/cosmos-sdk/codec"
	sdk "github.com/cosmos/cosmos-sdk/types"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"

	"github.com/openalpha/credit-engine/pkg/smath"
	"github.com/openalpha/credit-engine/x/credit/types"
	healthtypes "github.com/openalpha/credit-engine/x/health/types"
	perpstypes "github.com/openalpha/credit-engine/x/perps/types"
)

// Store key prefixes
var (
	ConfigKey                = []byte{0x01}
	AccountKindKeyPrefix     = []byte{0x02}
	BalanceKeyPrefix         = []byte{0x03}
	DebtSharesKeyPrefix      = []byte{0x04}
	TotalDebtSharesKeyPrefix = []byte{0x05}
	VaultPositionKeyPrefix   = []byte{0x06}
	TriggerOrderKeyPrefix    = []byte{0x07}
	NextTriggerOrderIDKey    = []byte{0x08}
	StakedLPKeyPrefix        = []byte{0x09}
	NextUnlockIDKey          = []byte{0x0A}
)

// BankKeeper defines the expected interface for the bank module
type BankKeeper interface {
	SendCoinsFromAccountToModule(ctx context.Context, senderAddr sdk.AccAddress, recipientModule string, amt sdk.Coins) error
	SendCoinsFromModuleToAccount(ctx context.Context, senderModule string, recipientAddr sdk.AccAddress, amt sdk.Coins) error
	GetBalance(ctx context.Context, addr sdk.AccAddress, denom string) sdk.Coin
}

// OracleKeeper defines the expected interface for the price oracle
type OracleKeeper interface {
	GetPrice(ctx sdk.Context, denom string) (math.LegacyDec, error)
	GetLiquidationPrice(ctx sdk.Context, denom string) (math.LegacyDec, error)
}

// ParamsKeeper defines the expected interface for the risk-params provider
type ParamsKeeper interface {
	AssetParams(ctx sdk.Context, denom string) (healthtypes.AssetParams, bool)
}

// RedBankKeeper defines the expected interface for the lending market. The
// module borrows and repays as one aggregate borrower; lends are tracked
// per credit account.
type RedBankKeeper interface {
	Borrow(ctx sdk.Context, denom string, amount math.Int) error
	Repay(ctx sdk.Context, denom string, amount math.Int) error
	TotalDebt(ctx sdk.Context, denom string) math.Int
	Lend(ctx sdk.Context, accountID, denom string, amount math.Int) error
	Reclaim(ctx sdk.Context, accountID, denom string, amount math.Int) error
	Lent(ctx sdk.Context, accountID, denom string) math.Int
	AllLent(ctx sdk.Context, accountID string) sdk.Coins
	WriteOffBadDebt(ctx sdk.Context, denom string, amount math.Int) error
	UserCollateral(ctx sdk.Context, accountID string) []sdk.Coin
}

// AccountNFTKeeper defines the expected interface for the account token
// registry. Burning lives on the registry side and calls back
// AssertBurnAllowed.
type AccountNFTKeeper interface {
	Mint(ctx sdk.Context, owner string) (string, error)
	OwnerOf(ctx sdk.Context, accountID string) (string, error)
}

// SwapperKeeper defines the expected interface for the swap router
type SwapperKeeper interface {
	SwapExactIn(ctx sdk.Context, coinIn sdk.Coin, denomOut string, minReceive math.Int) (sdk.Coin, error)
}

// VaultKeeper defines the expected interface for third-party yield vaults.
// Amounts in are underlying coins, amounts out are vault shares.
type VaultKeeper interface {
	Deposit(ctx sdk.Context, vaultDenom string, coin sdk.Coin) (math.Int, error)
	Withdraw(ctx sdk.Context, vaultDenom string, shares math.Int) (sdk.Coin, error)
	Preview(ctx sdk.Context, vaultDenom string, shares math.Int) (sdk.Coin, error)
	LockupSeconds(ctx sdk.Context, vaultDenom string) int64
	ForceWithdraw(ctx sdk.Context, vaultDenom string, shares math.Int) (sdk.Coin, error)
}

// PerpsKeeper defines the expected interface for the perps engine
type PerpsKeeper interface {
	BaseDenom() string
	ExecutePerpOrder(ctx sdk.Context, accountID, denom string, orderSize smath.SignedInt, reduceOnly bool) (*perpstypes.PositionPnl, error)
	GetAccountPositions(ctx sdk.Context, accountID string) []*perpstypes.Position
	VaultDepositLiquidity(ctx sdk.Context, accountID string, amount math.Int) (math.Int, error)
	VaultUnlockShares(ctx sdk.Context, accountID string, shares math.Int) error
	VaultWithdrawUnlocked(ctx sdk.Context, accountID string) (math.Int, error)
	HasVaultActivity(ctx sdk.Context, accountID string) bool
}

// HealthKeeper defines the expected interface for the health computer
type HealthKeeper interface {
	HealthValues(ctx sdk.Context, accountID string, pricing healthtypes.PricingKind) (*healthtypes.HealthValues, error)
	AssertHealthImproved(ctx sdk.Context, accountID string, prev *healthtypes.HealthValues) error
}

// Keeper owns the credit account ledger and dispatches action batches
// against it.
type Keeper struct {
	cdc           codec.BinaryCodec
	storeKey      storetypes.StoreKey
	bankKeeper    BankKeeper
	oracleKeeper  OracleKeeper
	paramsKeeper  ParamsKeeper
	redBankKeeper RedBankKeeper
	nftKeeper     AccountNFTKeeper
	swapperKeeper SwapperKeeper
	vaultKeeper   VaultKeeper
	perpsKeeper   PerpsKeeper
	healthKeeper  HealthKeeper

	moduleAddr   sdk.AccAddress
	perpsAddr    sdk.AccAddress
	triggerIdxMu sync.RWMutex
	triggerIdx   *triggerIndex
	logger       log.Logger
}

// NewKeeper creates a new credit keeper. The perps and health keepers are
// wired afterwards through setters because they depend on this keeper
// themselves.
func NewKeeper(
	cdc codec.BinaryCodec,
	storeKey storetypes.StoreKey,
	bankKeeper BankKeeper,
	oracleKeeper OracleKeeper,
	paramsKeeper ParamsKeeper,
	redBankKeeper RedBankKeeper,
	nftKeeper AccountNFTKeeper,
	swapperKeeper SwapperKeeper,
	vaultKeeper VaultKeeper,
	logger log.Logger,
) *Keeper {
	return &Keeper{
		cdc:           cdc,
		storeKey:      storeKey,
		bankKeeper:    bankKeeper,
		oracleKeeper:  oracleKeeper,
		paramsKeeper:  paramsKeeper,
		redBankKeeper: redBankKeeper,
		nftKeeper:     nftKeeper,
		swapperKeeper: swapperKeeper,
		vaultKeeper:   vaultKeeper,
		moduleAddr:    authtypes.NewModuleAddress(types.ModuleName),
		perpsAddr:     authtypes.NewModuleAddress(perpstypes.ModuleName),
		logger:        logger.With("module", "x/credit"),
	}
}

// SetPerpsKeeper wires the perps engine after both keepers exist.
func (k *Keeper) SetPerpsKeeper(pk PerpsKeeper) {
	k.perpsKeeper = pk
}

// SetHealthKeeper wires the health computer after both keepers exist.
func (k *Keeper) SetHealthKeeper(hk HealthKeeper) {
	k.healthKeeper = hk
}

// Logger returns the module logger
func (k *Keeper) Logger() log.Logger {
	return k.logger
}

// ModuleAddress returns the module account address holding pooled funds.
func (k *Keeper) ModuleAddress() sdk.AccAddress {
	return k.moduleAddr
}

// ============ Config ============

// GetConfig returns the module config, falling back to defaults when unset.
func (k *Keeper) GetConfig(ctx sdk.Context) types.Config {
	store := ctx.KVStore(k.storeKey)
	bz := store.Get(ConfigKey)
	if bz == nil {
		return types.DefaultConfig()
	}
	var cfg types.Config
	if err := json.Unmarshal(bz, &cfg); err != nil {
		return types.DefaultConfig()
	}
	return cfg
}

// SetConfig stores the module config.
func (k *Keeper) SetConfig(ctx sdk.Context, cfg types.Config) {
	store := ctx.KVStore(k.storeKey)
	bz, _ := json.Marshal(cfg)
	store.Set(ConfigKey, bz)
}

// ============ Account Kind ============

func accountKindKey(accountID string) []byte {
	return append(AccountKindKeyPrefix, []byte(accountID)...)
}

// SetAccountKind records an account's kind. Written once, on mint.
func (k *Keeper) SetAccountKind(ctx sdk.Context, accountID string, kind healthtypes.AccountKind) {
	store := ctx.KVStore(k.storeKey)
	store.Set(accountKindKey(accountID), []byte(kind))
}

// AccountKind returns the account's kind, defaulting for unknown accounts.
func (k *Keeper) AccountKind(ctx sdk.Context, accountID string) healthtypes.AccountKind {
	store := ctx.KVStore(k.storeKey)
	bz := store.Get(accountKindKey(accountID))
	if len(bz) == 0 {
		return healthtypes.AccountKindDefault
	}
	return healthtypes.AccountKind(bz)
}

// HasAccount reports whether the account id was ever minted.
func (k *Keeper) HasAccount(ctx sdk.Context, accountID string) bool {
	store := ctx.KVStore(k.storeKey)
	return store.Has(accountKindKey(accountID))
}

// CreateAccount mints a fresh account token for the owner and records its
// kind.
func (k *Keeper) CreateAccount(ctx sdk.Context, owner string, kind healthtypes.AccountKind) (string, error) {
	if kind == "" {
		kind = healthtypes.AccountKindDefault
	}
	accountID, err := k.nftKeeper.Mint(ctx, owner)
	if err != nil {
		return "", err
	}
	k.SetAccountKind(ctx, accountID, kind)

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			"create_credit_account",
			sdk.NewAttribute("account_id", accountID),
			sdk.NewAttribute("owner", owner),
			sdk.NewAttribute("kind", string(kind)),
		),
	)
	k.Logger().Info("created credit account", "account_id", accountID, "owner", owner, "kind", string(kind))

	return accountID, nil
}
