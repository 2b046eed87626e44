package types

import (
	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/credit-engine/pkg/smath"
)

// HealthComputer values one account snapshot. It holds everything the math
// needs so Compute and the estimate methods run without store access.
//
// Rounding discipline: collateral values truncate, debt values round up,
// perp profit truncates and perp loss rounds up. Health factors divide
// truncating. Every estimate returns a floored amount.
type HealthComputer struct {
	Kind      AccountKind
	BaseDenom string

	Deposits sdk.Coins
	Lends    sdk.Coins
	StakedLP sdk.Coins
	Vaults   []VaultPosition
	Debts    sdk.Coins
	Perps    []PerpSnapshot

	Prices       map[string]math.LegacyDec
	AssetParams  map[string]AssetParams
	PerpParams   map[string]PerpHealthParams
	VaultConfigs map[string]VaultHealthConfig
}

// NewHealthComputer returns a computer with empty holdings and lookup maps.
func NewHealthComputer(kind AccountKind, baseDenom string) *HealthComputer {
	return &HealthComputer{
		Kind:         kind,
		BaseDenom:    baseDenom,
		Prices:       make(map[string]math.LegacyDec),
		AssetParams:  make(map[string]AssetParams),
		PerpParams:   make(map[string]PerpHealthParams),
		VaultConfigs: make(map[string]VaultHealthConfig),
	}
}

// Compute values every holding and returns the account's health state.
func (c *HealthComputer) Compute() (*HealthValues, error) {
	h := &HealthValues{
		TotalCollateralValue:                   math.ZeroInt(),
		TotalDebtValue:                         math.ZeroInt(),
		MaxLtvAdjustedCollateral:               math.ZeroInt(),
		LiquidationThresholdAdjustedCollateral: math.ZeroInt(),
		PerpsPnlProfit:                         math.ZeroInt(),
		PerpsPnlLoss:                           math.ZeroInt(),
	}

	// Deposits, lends and staked LP all carry the spot asset weights.
	for _, coins := range []sdk.Coins{c.Deposits, c.Lends, c.StakedLP} {
		for _, coin := range coins {
			price, err := c.price(coin.Denom)
			if err != nil {
				return nil, err
			}
			value := price.MulInt(coin.Amount)
			maxLtv, liqTh := c.assetWeights(coin.Denom)
			h.TotalCollateralValue = h.TotalCollateralValue.Add(value.TruncateInt())
			h.MaxLtvAdjustedCollateral = h.MaxLtvAdjustedCollateral.Add(value.Mul(maxLtv).TruncateInt())
			h.LiquidationThresholdAdjustedCollateral = h.LiquidationThresholdAdjustedCollateral.Add(value.Mul(liqTh).TruncateInt())
		}
	}

	// Vault positions are valued through their converted underlying and
	// weighted by the vault config, not the underlying asset params.
	for _, vp := range c.Vaults {
		price, err := c.price(vp.UnderlyingDenom)
		if err != nil {
			return nil, err
		}
		value := price.MulInt(vp.UnderlyingAmount)
		maxLtv, liqTh := c.vaultWeights(vp.VaultDenom)
		h.TotalCollateralValue = h.TotalCollateralValue.Add(value.TruncateInt())
		h.MaxLtvAdjustedCollateral = h.MaxLtvAdjustedCollateral.Add(value.Mul(maxLtv).TruncateInt())
		h.LiquidationThresholdAdjustedCollateral = h.LiquidationThresholdAdjustedCollateral.Add(value.Mul(liqTh).TruncateInt())
	}

	for _, coin := range c.Debts {
		price, err := c.price(coin.Denom)
		if err != nil {
			return nil, err
		}
		h.TotalDebtValue = h.TotalDebtValue.Add(price.MulInt(coin.Amount).Ceil().TruncateInt())
	}

	for _, p := range c.Perps {
		h.HasPerps = true
		if p.Pnl.IsZero() {
			continue
		}
		basePrice, err := c.price(c.BaseDenom)
		if err != nil {
			return nil, err
		}
		if p.Pnl.IsPositive() {
			pnlValue, err := p.Pnl.MulDecTruncate(basePrice)
			if err != nil {
				return nil, err
			}
			profit := pnlValue.TruncateToInt().Abs
			maxLtv, liqTh, err := c.perpWeights(p.Denom)
			if err != nil {
				return nil, err
			}
			profitDec := math.LegacyNewDecFromInt(profit)
			h.PerpsPnlProfit = h.PerpsPnlProfit.Add(profit)
			h.TotalCollateralValue = h.TotalCollateralValue.Add(profit)
			h.MaxLtvAdjustedCollateral = h.MaxLtvAdjustedCollateral.Add(profitDec.Mul(maxLtv).TruncateInt())
			h.LiquidationThresholdAdjustedCollateral = h.LiquidationThresholdAdjustedCollateral.Add(profitDec.Mul(liqTh).TruncateInt())
			continue
		}
		pnlValue, err := p.Pnl.MulDecRoundUp(basePrice)
		if err != nil {
			return nil, err
		}
		loss := pnlValue.CeilToInt().Abs
		h.PerpsPnlLoss = h.PerpsPnlLoss.Add(loss)
		h.TotalDebtValue = h.TotalDebtValue.Add(loss)
	}

	// No obligations means the health factors are undefined and the account
	// can never be flagged.
	if h.TotalDebtValue.IsZero() {
		return h, nil
	}

	debt := math.LegacyNewDecFromInt(h.TotalDebtValue)
	maxLtvHf := math.LegacyNewDecFromInt(h.MaxLtvAdjustedCollateral).QuoTruncate(debt)
	liqHf := math.LegacyNewDecFromInt(h.LiquidationThresholdAdjustedCollateral).QuoTruncate(debt)
	h.MaxLtvHealthFactor = &maxLtvHf
	h.LiquidationHealthFactor = &liqHf
	h.AboveMaxLtv = maxLtvHf.LT(math.LegacyOneDec())
	h.Liquidatable = liqHf.LT(math.LegacyOneDec())
	return h, nil
}

// LiquidationPrice solves the price of one holding at which the liquidation
// health factor reaches exactly one, holding every other price fixed. It
// returns nil when the account has no obligations (no price can liquidate
// it) and zero when the account is already liquidatable. The solve is
// linear: threshold-weighted contributions move proportionally with price,
// and a perp's close-now value moves by size per unit of price.
func (c *HealthComputer) LiquidationPrice(kind LiquidationPriceKind, denom string) (*math.LegacyDec, error) {
	h, err := c.Compute()
	if err != nil {
		return nil, err
	}
	if h.TotalDebtValue.IsZero() {
		return nil, nil
	}
	if h.Liquidatable {
		zero := math.LegacyZeroDec()
		return &zero, nil
	}

	switch kind {
	case LiquidationPriceAsset:
		return c.assetLiquidationPrice(h, denom)
	case LiquidationPriceDebt:
		return c.debtLiquidationPrice(h, denom)
	case LiquidationPricePerp:
		return c.perpLiquidationPrice(h, denom)
	default:
		return nil, errorsmod.Wrapf(ErrDenomNotHeld, "unknown liquidation price kind %d", kind)
	}
}

func (c *HealthComputer) assetLiquidationPrice(h *HealthValues, denom string) (*math.LegacyDec, error) {
	amount := c.spotAmount(denom)
	if amount.IsZero() {
		return nil, errorsmod.Wrap(ErrDenomNotHeld, denom)
	}
	_, liqTh := c.assetWeights(denom)
	if liqTh.IsZero() {
		// Zero-weight collateral cannot move the health factor.
		return nil, nil
	}
	price, err := c.price(denom)
	if err != nil {
		return nil, err
	}
	contribution := price.MulInt(amount).Mul(liqTh)
	otherAdj := math.LegacyNewDecFromInt(h.LiquidationThresholdAdjustedCollateral).Sub(contribution)
	if otherAdj.IsNegative() {
		otherAdj = math.LegacyZeroDec()
	}
	target := math.LegacyNewDecFromInt(h.TotalDebtValue).Sub(otherAdj)
	if !target.IsPositive() {
		// The rest of the collateral covers the debt on its own, so no
		// price of this asset can liquidate the account.
		zero := math.LegacyZeroDec()
		return &zero, nil
	}
	liqPrice := target.Quo(math.LegacyNewDecFromInt(amount).Mul(liqTh))
	return &liqPrice, nil
}

func (c *HealthComputer) debtLiquidationPrice(h *HealthValues, denom string) (*math.LegacyDec, error) {
	amount := c.Debts.AmountOf(denom)
	if amount.IsZero() {
		return nil, errorsmod.Wrap(ErrDebtNotHeld, denom)
	}
	price, err := c.price(denom)
	if err != nil {
		return nil, err
	}
	otherDebt := math.LegacyNewDecFromInt(h.TotalDebtValue).Sub(price.MulInt(amount))
	if otherDebt.IsNegative() {
		otherDebt = math.LegacyZeroDec()
	}
	liqPrice := math.LegacyNewDecFromInt(h.LiquidationThresholdAdjustedCollateral).
		Sub(otherDebt).
		Quo(math.LegacyNewDecFromInt(amount))
	if liqPrice.IsNegative() {
		liqPrice = math.LegacyZeroDec()
	}
	return &liqPrice, nil
}

// perpLiquidationPrice models the position's close-now value as moving by
// size per unit of price. Skew and fee drift on the closing fill are ignored
// for the estimate.
func (c *HealthComputer) perpLiquidationPrice(h *HealthValues, denom string) (*math.LegacyDec, error) {
	var snap *PerpSnapshot
	for i := range c.Perps {
		if c.Perps[i].Denom == denom {
			snap = &c.Perps[i]
			break
		}
	}
	if snap == nil || snap.Size.IsZero() {
		return nil, errorsmod.Wrap(ErrPerpNotHeld, denom)
	}
	price, err := c.price(denom)
	if err != nil {
		return nil, err
	}
	basePrice, err := c.price(c.BaseDenom)
	if err != nil {
		return nil, err
	}
	if basePrice.IsZero() {
		return nil, errorsmod.Wrap(ErrMissingPrice, c.BaseDenom)
	}

	pnlValue, err := snap.Pnl.MulDecTruncate(basePrice)
	if err != nil {
		return nil, err
	}

	// Strip this position's current contribution so the solve starts from
	// the rest of the account.
	adjusted := math.LegacyNewDecFromInt(h.LiquidationThresholdAdjustedCollateral)
	debt := math.LegacyNewDecFromInt(h.TotalDebtValue)
	if pnlValue.IsPositive() {
		_, liqTh, err := c.perpWeights(denom)
		if err != nil {
			return nil, err
		}
		adjusted = adjusted.Sub(pnlValue.Abs.Mul(liqTh))
	} else if pnlValue.IsNegative() {
		debt = debt.Sub(pnlValue.Abs)
	}
	if debt.IsNegative() {
		debt = math.LegacyZeroDec()
	}
	if adjusted.IsNegative() {
		adjusted = math.LegacyZeroDec()
	}

	// The boundary sits where the remaining account exactly absorbs the
	// position: in the loss region when the rest is overcollateralized,
	// in the profit region otherwise.
	var targetValue smath.SignedDec
	if adjusted.GTE(debt) {
		targetValue, err = smath.NewSignedDec(adjusted.Sub(debt), true)
		if err != nil {
			return nil, err
		}
	} else {
		_, liqTh, err := c.perpWeights(denom)
		if err != nil {
			return nil, err
		}
		if liqTh.IsZero() {
			return nil, nil
		}
		targetValue, err = smath.NewSignedDec(debt.Sub(adjusted).Quo(liqTh), false)
		if err != nil {
			return nil, err
		}
	}

	deltaValue, err := targetValue.Sub(pnlValue)
	if err != nil {
		return nil, err
	}
	slope, err := snap.Size.MulDec(basePrice)
	if err != nil {
		return nil, err
	}
	deltaPrice, err := deltaValue.QuoTruncate(slope)
	if err != nil {
		return nil, err
	}
	var liqPrice math.LegacyDec
	if deltaPrice.IsNegative() {
		liqPrice = price.Sub(deltaPrice.Abs)
	} else {
		liqPrice = price.Add(deltaPrice.Abs)
	}
	if liqPrice.IsNegative() {
		liqPrice = math.LegacyZeroDec()
	}
	return &liqPrice, nil
}

// MaxWithdrawEstimate returns how much of a deposited denom can leave the
// account before it crosses max LTV. Free of debt, the whole balance can go.
func (c *HealthComputer) MaxWithdrawEstimate(denom string) (math.Int, error) {
	h, err := c.Compute()
	if err != nil {
		return math.Int{}, err
	}
	held := c.Deposits.AmountOf(denom)
	if held.IsZero() {
		return math.ZeroInt(), nil
	}
	if h.TotalDebtValue.IsZero() {
		return held, nil
	}
	maxLtv, _ := c.assetWeights(denom)
	if maxLtv.IsZero() {
		// Zero-weight collateral never supports the debt.
		return held, nil
	}
	headroom := h.MaxLtvAdjustedCollateral.Sub(h.TotalDebtValue)
	if !headroom.IsPositive() {
		return math.ZeroInt(), nil
	}
	price, err := c.price(denom)
	if err != nil {
		return math.Int{}, err
	}
	max := math.LegacyNewDecFromInt(headroom).Quo(price.Mul(maxLtv)).TruncateInt()
	return math.MinInt(max, held), nil
}

// MaxBorrowEstimate returns how much of a denom the account can borrow
// before crossing max LTV. Borrowing into the account keeps the coins as
// weighted collateral; borrowing to a wallet does not.
func (c *HealthComputer) MaxBorrowEstimate(denom string, target BorrowTarget) (math.Int, error) {
	h, err := c.Compute()
	if err != nil {
		return math.Int{}, err
	}
	headroom := h.MaxLtvAdjustedCollateral.Sub(h.TotalDebtValue)
	if !headroom.IsPositive() {
		return math.ZeroInt(), nil
	}
	price, err := c.price(denom)
	if err != nil {
		return math.Int{}, err
	}
	factor := price
	if target == BorrowTargetAccount {
		maxLtv, _ := c.assetWeights(denom)
		factor = price.Mul(math.LegacyOneDec().Sub(maxLtv))
		if !factor.IsPositive() {
			return math.ZeroInt(), nil
		}
	}
	return math.LegacyNewDecFromInt(headroom).Quo(factor).TruncateInt(), nil
}

// MaxSwapEstimate returns how much of the input denom can be swapped for the
// output denom before crossing max LTV. A margin swap may exceed the held
// balance by borrowing the rest; a swap whose proceeds repay debt only ever
// lowers risk.
func (c *HealthComputer) MaxSwapEstimate(from, to string, kind SwapKind, repayingDebt bool) (math.Int, error) {
	h, err := c.Compute()
	if err != nil {
		return math.Int{}, err
	}
	held := c.Deposits.AmountOf(from)
	if repayingDebt {
		return held, nil
	}
	priceFrom, err := c.price(from)
	if err != nil {
		return math.Int{}, err
	}
	if _, err := c.price(to); err != nil {
		return math.Int{}, err
	}
	ltvFrom, _ := c.assetWeights(from)
	ltvTo, _ := c.assetWeights(to)
	headroom := h.MaxLtvAdjustedCollateral.Sub(h.TotalDebtValue)

	switch kind {
	case SwapMargin:
		// Swapping held coins trades ltvFrom weight for ltvTo; every
		// borrowed coin beyond that adds full debt against ltvTo weight.
		heldCost := priceFrom.MulInt(held).Mul(ltvFrom.Sub(ltvTo))
		remaining := math.LegacyNewDecFromInt(headroom).Sub(heldCost)
		if !remaining.IsPositive() {
			if h.TotalDebtValue.IsZero() || !heldCost.IsPositive() {
				return held, nil
			}
			max := math.LegacyNewDecFromInt(headroom).Quo(priceFrom.Mul(ltvFrom.Sub(ltvTo))).TruncateInt()
			if max.IsNegative() {
				return math.ZeroInt(), nil
			}
			return math.MinInt(max, held), nil
		}
		borrowFactor := priceFrom.Mul(math.LegacyOneDec().Sub(ltvTo))
		if !borrowFactor.IsPositive() {
			return held, nil
		}
		return held.Add(remaining.Quo(borrowFactor).TruncateInt()), nil
	default:
		if held.IsZero() {
			return math.ZeroInt(), nil
		}
		if h.TotalDebtValue.IsZero() || ltvTo.GTE(ltvFrom) {
			return held, nil
		}
		if !headroom.IsPositive() {
			return math.ZeroInt(), nil
		}
		max := math.LegacyNewDecFromInt(headroom).Quo(priceFrom.Mul(ltvFrom.Sub(ltvTo))).TruncateInt()
		return math.MinInt(max, held), nil
	}
}

// spotAmount sums the denom across every spot-weighted holding class.
func (c *HealthComputer) spotAmount(denom string) math.Int {
	return c.Deposits.AmountOf(denom).
		Add(c.Lends.AmountOf(denom)).
		Add(c.StakedLP.AmountOf(denom))
}

func (c *HealthComputer) price(denom string) (math.LegacyDec, error) {
	p, ok := c.Prices[denom]
	if !ok {
		return math.LegacyDec{}, errorsmod.Wrap(ErrMissingPrice, denom)
	}
	return p, nil
}

// assetWeights returns the max LTV and liquidation threshold of a spot
// denom. Unknown or non-whitelisted denoms count at full value with zero
// weight.
func (c *HealthComputer) assetWeights(denom string) (math.LegacyDec, math.LegacyDec) {
	p, ok := c.AssetParams[denom]
	if !ok || !p.Whitelisted {
		return math.LegacyZeroDec(), math.LegacyZeroDec()
	}
	if c.Kind == AccountKindHighLeveredStrategy && p.HLS != nil {
		return p.HLS.MaxLTV, p.HLS.LiquidationThreshold
	}
	return p.MaxLTV, p.LiquidationThreshold
}

func (c *HealthComputer) vaultWeights(vaultDenom string) (math.LegacyDec, math.LegacyDec) {
	cfg, ok := c.VaultConfigs[vaultDenom]
	if !ok || !cfg.Whitelisted {
		return math.LegacyZeroDec(), math.LegacyZeroDec()
	}
	if c.Kind == AccountKindHighLeveredStrategy && cfg.HLS != nil {
		return cfg.HLS.MaxLTV, cfg.HLS.LiquidationThreshold
	}
	return cfg.MaxLTV, cfg.LiquidationThreshold
}

// perpWeights returns the weights applied to a market's unrealized profit.
// The USDC overrides win when set because every market here quotes against
// the stable base denom.
func (c *HealthComputer) perpWeights(denom string) (math.LegacyDec, math.LegacyDec, error) {
	p, ok := c.PerpParams[denom]
	if !ok {
		return math.LegacyDec{}, math.LegacyDec{}, errorsmod.Wrap(ErrMissingPerpParams, denom)
	}
	maxLtv, liqTh := p.MaxLTV, p.LiquidationThreshold
	if p.MaxLTVUsdc != nil {
		maxLtv = *p.MaxLTVUsdc
	}
	if p.LiquidationThresholdUsdc != nil {
		liqTh = *p.LiquidationThresholdUsdc
	}
	return maxLtv, liqTh, nil
}
