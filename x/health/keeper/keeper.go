package keeper

import (
	"cosmossdk.io/log"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/credit-engine/x/health/types"
	perpstypes "github.com/openalpha/credit-engine/x/perps/types"
)

// CreditSource defines the expected interface for the credit ledger. Debts
// come back share-converted and rounded up, vault positions already
// converted to underlying terms.
type CreditSource interface {
	AccountKind(ctx sdk.Context, accountID string) types.AccountKind
	AccountBalances(ctx sdk.Context, accountID string) sdk.Coins
	AccountDebts(ctx sdk.Context, accountID string) (sdk.Coins, error)
	AccountLends(ctx sdk.Context, accountID string) (sdk.Coins, error)
	AccountStakedLP(ctx sdk.Context, accountID string) sdk.Coins
	AccountVaultPositions(ctx sdk.Context, accountID string) ([]types.VaultPosition, error)
}

// PerpsSource defines the expected interface for the perps engine
type PerpsSource interface {
	BaseDenom() string
	GetAccountPositions(ctx sdk.Context, accountID string) []*perpstypes.Position
	UnrealizedPnl(ctx sdk.Context, accountID, denom string) (*perpstypes.PositionPnl, error)
}

// OracleSource defines the expected interface for the price oracle
type OracleSource interface {
	GetPrice(ctx sdk.Context, denom string) (math.LegacyDec, error)
	GetLiquidationPrice(ctx sdk.Context, denom string) (math.LegacyDec, error)
}

// ParamsSource defines the expected interface for the risk-params provider
type ParamsSource interface {
	AssetParams(ctx sdk.Context, denom string) (types.AssetParams, bool)
	PerpHealthParams(ctx sdk.Context, denom string) (types.PerpHealthParams, bool)
	VaultHealthConfig(ctx sdk.Context, vaultDenom string) (types.VaultHealthConfig, bool)
}

// Keeper assembles account snapshots and runs the health computer over
// them. It owns no state of its own: every query reads through the credit
// ledger, the perps engine, the oracle and the params provider.
type Keeper struct {
	credit CreditSource
	perps  PerpsSource
	oracle OracleSource
	params ParamsSource
	logger log.Logger
}

// NewKeeper creates a new health keeper. The credit and perps sources are
// wired afterwards through SetSources because they depend on this keeper
// themselves.
func NewKeeper(oracle OracleSource, params ParamsSource, logger log.Logger) *Keeper {
	return &Keeper{
		oracle: oracle,
		params: params,
		logger: logger.With("module", "x/health"),
	}
}

// SetSources wires the account-state providers after all keepers exist.
func (k *Keeper) SetSources(credit CreditSource, perps PerpsSource) {
	k.credit = credit
	k.perps = perps
}

// Logger returns the module logger
func (k *Keeper) Logger() log.Logger {
	return k.logger
}
