package types

import (
	"cosmossdk.io/math"

	"github.com/openalpha/credit-engine/pkg/smath"
)

const (
	// ModuleName is the module name.
	ModuleName = "health"
)

// AccountKind selects which risk-parameter set applies to an account.
type AccountKind string

const (
	// AccountKindDefault is a regular credit account.
	AccountKindDefault AccountKind = "default"

	// AccountKindHighLeveredStrategy unlocks the HLS parameter overrides on
	// whitelisted correlated pairs.
	AccountKindHighLeveredStrategy AccountKind = "high_levered_strategy"
)

// PricingKind selects the oracle feed used for a valuation.
type PricingKind int

const (
	// PricingDefault is the trading price feed.
	PricingDefault PricingKind = iota + 1

	// PricingLiquidation is the manipulation-resistant feed liquidation
	// math runs on.
	PricingLiquidation
)

// String returns the string representation of PricingKind
func (p PricingKind) String() string {
	switch p {
	case PricingDefault:
		return "default"
	case PricingLiquidation:
		return "liquidation"
	default:
		return "unknown"
	}
}

// LiquidationPriceKind names the position class a liquidation price is
// solved for.
type LiquidationPriceKind int

const (
	// LiquidationPriceAsset solves for a held collateral asset's price.
	LiquidationPriceAsset LiquidationPriceKind = iota + 1

	// LiquidationPriceDebt solves for a borrowed asset's price.
	LiquidationPriceDebt

	// LiquidationPricePerp solves for a perp market's price.
	LiquidationPricePerp
)

// String returns the string representation of LiquidationPriceKind
func (k LiquidationPriceKind) String() string {
	switch k {
	case LiquidationPriceAsset:
		return "asset"
	case LiquidationPriceDebt:
		return "debt"
	case LiquidationPricePerp:
		return "perp"
	default:
		return "unknown"
	}
}

// BorrowTarget is where borrowed coins land, which decides whether they
// count as collateral in the borrow estimate.
type BorrowTarget int

const (
	// BorrowTargetWallet sends the coins out of the account.
	BorrowTargetWallet BorrowTarget = iota + 1

	// BorrowTargetAccount keeps the coins as account collateral.
	BorrowTargetAccount
)

// SwapKind distinguishes plain rebalancing swaps from leveraged ones.
type SwapKind int

const (
	// SwapDefault swaps coins the account already holds.
	SwapDefault SwapKind = iota + 1

	// SwapMargin borrows the input coin as part of the swap.
	SwapMargin
)

// HLSOverride carries the tighter weights an HLS account gets on a
// whitelisted correlated pair.
type HLSOverride struct {
	MaxLTV               math.LegacyDec
	LiquidationThreshold math.LegacyDec
}

// AssetParams are the per-denom risk parameters of spot collateral.
type AssetParams struct {
	Denom                string
	MaxLTV               math.LegacyDec
	LiquidationThreshold math.LegacyDec
	Whitelisted          bool
	CloseFactor          math.LegacyDec
	LiquidationBonus     LiquidationBonusParams
	ProtocolLiqFeeRate   math.LegacyDec
	WithdrawEnabled      bool
	HLS                  *HLSOverride
}

// LiquidationBonusParams shape the liquidation bonus curve of one asset.
type LiquidationBonusParams struct {
	StartingLB math.LegacyDec
	Slope      math.LegacyDec
	MinLB      math.LegacyDec
	MaxLB      math.LegacyDec
}

// PerpHealthParams weight a perp market's unrealized profit. The USDC
// overrides apply when the quote side is the stable pair.
type PerpHealthParams struct {
	Denom                    string
	MaxLTV                   math.LegacyDec
	LiquidationThreshold     math.LegacyDec
	MaxLTVUsdc               *math.LegacyDec
	LiquidationThresholdUsdc *math.LegacyDec
}

// VaultHealthConfig weights a vault position's converted underlying value.
type VaultHealthConfig struct {
	VaultDenom           string
	MaxLTV               math.LegacyDec
	LiquidationThreshold math.LegacyDec
	Whitelisted          bool
	HLS                  *HLSOverride
}

// VaultPosition is a vault holding already converted to underlying terms
// for valuation.
type VaultPosition struct {
	VaultDenom       string
	UnderlyingDenom  string
	UnderlyingAmount math.Int
}

// PerpSnapshot is one perp position with its close-now result in base denom.
type PerpSnapshot struct {
	Denom string
	Size  smath.SignedInt
	Pnl   smath.SignedDec
}

// HealthValues is the full valuation of one credit account.
type HealthValues struct {
	TotalCollateralValue                   math.Int
	TotalDebtValue                         math.Int
	MaxLtvAdjustedCollateral               math.Int
	LiquidationThresholdAdjustedCollateral math.Int
	PerpsPnlProfit                         math.Int
	PerpsPnlLoss                           math.Int
	MaxLtvHealthFactor                     *math.LegacyDec
	LiquidationHealthFactor                *math.LegacyDec
	Liquidatable                           bool
	AboveMaxLtv                            bool
	HasPerps                               bool
}

// IsHealthy reports whether the account clears the max-LTV bar. Accounts
// with no debt are healthy by definition.
func (h *HealthValues) IsHealthy() bool {
	return !h.AboveMaxLtv
}
