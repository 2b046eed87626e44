package keeper

import (
	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/credit-engine/pkg/smath"
	"github.com/openalpha/credit-engine/x/credit/types"
	healthtypes "github.com/openalpha/credit-engine/x/health/types"
)

// liquidationPlan is the outcome of the liquidation math, ready to apply.
type liquidationPlan struct {
	debtDenom      string
	repayAmount    math.Int
	requestDenom   string
	requestBalance math.Int
	seizedAmount   math.Int
	protocolFee    math.Int
	bonus          math.LegacyDec
}

// Liquidate repays part of an unhealthy account's debt from the
// liquidator's own balance in exchange for a bonus-priced slice of the
// requested collateral. Perp positions are force-closed first so their
// losses land in the debt the liquidation prices; the pre-closure health
// factor drives the bonus curve.
func (k *Keeper) Liquidate(ctx sdk.Context, liquidatorID string, action types.Liquidate) error {
	liquidateeID := action.LiquidateeAccountID
	if liquidatorID == liquidateeID {
		return types.ErrSelfLiquidation
	}

	prevHealth, err := k.healthKeeper.HealthValues(ctx, liquidateeID, healthtypes.PricingLiquidation)
	if err != nil {
		return err
	}
	if !prevHealth.Liquidatable {
		hf := "undefined"
		if prevHealth.LiquidationHealthFactor != nil {
			hf = prevHealth.LiquidationHealthFactor.String()
		}
		return errorsmod.Wrapf(types.ErrNotLiquidatable, "account %s has a liquidation health factor of %s", liquidateeID, hf)
	}

	positions := k.perpsKeeper.GetAccountPositions(ctx, liquidateeID)
	for _, pos := range positions {
		if _, err := k.perpsKeeper.ExecutePerpOrder(ctx, liquidateeID, pos.Denom, pos.Size.Neg(), true); err != nil {
			return err
		}
	}
	health := prevHealth
	if len(positions) > 0 {
		health, err = k.healthKeeper.HealthValues(ctx, liquidateeID, healthtypes.PricingLiquidation)
		if err != nil {
			return err
		}
	}

	plan, err := k.calculateLiquidation(ctx, liquidateeID, action, prevHealth, health)
	if err != nil {
		return err
	}
	return k.applyLiquidation(ctx, liquidatorID, liquidateeID, action, plan)
}

// requestCollateral resolves the request to an underlying denom and the
// liquidatee's holding of it.
func (k *Keeper) requestCollateral(ctx sdk.Context, liquidateeID string, request types.LiquidationRequest) (string, math.Int, error) {
	switch request.Kind {
	case types.RequestDeposit:
		return request.Denom, k.GetAccountBalance(ctx, liquidateeID, request.Denom), nil
	case types.RequestLend:
		return request.Denom, k.redBankKeeper.Lent(ctx, liquidateeID, request.Denom), nil
	case types.RequestVault:
		pos := k.GetVaultPosition(ctx, liquidateeID, request.Denom)
		if pos == nil {
			return "", math.ZeroInt(), types.ErrVaultPositionNotFound
		}
		underlying, err := k.vaultKeeper.Preview(ctx, request.Denom, pos.TotalShares())
		if err != nil {
			return "", math.ZeroInt(), err
		}
		return underlying.Denom, underlying.Amount, nil
	default:
		return "", math.ZeroInt(), types.ErrInvalidActions
	}
}

// calculateLiquidation sizes the repay and the seizure. Rounding always
// favors the protocol: repays round up at the close factor, seizures and
// the perp-loss bonus round down, the protocol fee rounds up.
func (k *Keeper) calculateLiquidation(
	ctx sdk.Context,
	liquidateeID string,
	action types.Liquidate,
	prevHealth *healthtypes.HealthValues,
	health *healthtypes.HealthValues,
) (*liquidationPlan, error) {
	cfg := k.GetConfig(ctx)
	debtDenom := action.DebtCoin.Denom

	debtParams, ok := k.paramsKeeper.AssetParams(ctx, debtDenom)
	if !ok {
		return nil, errorsmod.Wrapf(types.ErrDenomNotWhitelisted, "%s", debtDenom)
	}

	requestDenom, requestBalance, err := k.requestCollateral(ctx, liquidateeID, action.Request)
	if err != nil {
		return nil, err
	}
	if !requestBalance.IsPositive() {
		return nil, errorsmod.Wrapf(types.ErrNoRequestCollateral, "%s %s", action.Request.Kind.String(), action.Request.Denom)
	}
	requestParams, ok := k.paramsKeeper.AssetParams(ctx, requestDenom)
	if !ok {
		return nil, errorsmod.Wrapf(types.ErrDenomNotWhitelisted, "%s", requestDenom)
	}

	debtPrice, err := k.oracleKeeper.GetLiquidationPrice(ctx, debtDenom)
	if err != nil {
		return nil, err
	}
	requestPrice, err := k.oracleKeeper.GetLiquidationPrice(ctx, requestDenom)
	if err != nil {
		return nil, err
	}

	totalDebt, err := k.DebtAmount(ctx, liquidateeID, debtDenom)
	if err != nil {
		return nil, err
	}
	if totalDebt.IsZero() {
		return nil, errorsmod.Wrapf(types.ErrNoDebt, "%s", debtDenom)
	}

	// bonus curve off the pre-closure health, capped by how much surplus
	// collateral there is to hand out
	one := math.LegacyOneDec()
	lbParams := requestParams.LiquidationBonus
	bonus := lbParams.StartingLB.Add(lbParams.Slope.Mul(one.Sub(*prevHealth.LiquidationHealthFactor)))
	bonusCap := lbParams.MaxLB
	if health.TotalDebtValue.IsPositive() {
		cr := math.LegacyNewDecFromInt(health.TotalCollateralValue).QuoTruncate(math.LegacyNewDecFromInt(health.TotalDebtValue))
		if surplus := cr.Sub(one); surplus.LT(bonusCap) {
			bonusCap = surplus
		}
	}
	if bonusCap.LT(lbParams.MinLB) {
		bonusCap = lbParams.MinLB
	}
	if bonus.GT(bonusCap) {
		bonus = bonusCap
	}
	if bonus.IsNegative() {
		bonus = math.LegacyZeroDec()
	}
	onePlusBonus := one.Add(bonus)

	maxRepayByCloseFactor := math.LegacyNewDecFromInt(totalDebt).Mul(debtParams.CloseFactor).Ceil().TruncateInt()
	requestBalanceValue := requestPrice.MulInt(requestBalance)
	maxRepayByCollateral := requestBalanceValue.QuoTruncate(onePlusBonus).QuoTruncate(debtPrice).TruncateInt()

	repayAmount := math.MinInt(action.DebtCoin.Amount, math.MinInt(maxRepayByCloseFactor, maxRepayByCollateral))
	if !repayAmount.IsPositive() {
		return nil, errorsmod.Wrap(types.ErrLiquidationNotProfitable, "nothing to repay")
	}

	debtValueRepaid := debtPrice.MulInt(repayAmount)
	seizedAmount := debtValueRepaid.Mul(onePlusBonus).QuoTruncate(requestPrice).TruncateInt()

	bonusValue := debtValueRepaid.Mul(bonus)
	protocolFee := math.ZeroInt()
	if cfg.RewardsCollector != "" && requestParams.ProtocolLiqFeeRate.IsPositive() && bonusValue.IsPositive() {
		protocolFee = bonusValue.Mul(requestParams.ProtocolLiqFeeRate).Quo(requestPrice).Ceil().TruncateInt()
	}

	// extra bonus for eating the perp losses realized by the forced closes
	if health.PerpsPnlLoss.IsPositive() && bonus.IsPositive() {
		perpBonus := cfg.PerpsLbRatio.Mul(bonus).MulInt(health.PerpsPnlLoss).QuoTruncate(requestPrice).TruncateInt()
		seizedAmount = seizedAmount.Add(perpBonus)
	}
	if seizedAmount.GT(requestBalance) {
		seizedAmount = requestBalance
	}
	if protocolFee.GT(seizedAmount) {
		protocolFee = seizedAmount
	}

	// Judged on the seized value before the protocol fee is carved out.
	liquidatorRequestValue := requestPrice.MulInt(seizedAmount)
	if debtValueRepaid.GTE(liquidatorRequestValue) {
		return nil, errorsmod.Wrapf(types.ErrLiquidationNotProfitable, "repaying %s of value %s for collateral value %s",
			action.DebtCoin.String(), debtValueRepaid.String(), liquidatorRequestValue.String())
	}

	return &liquidationPlan{
		debtDenom:      debtDenom,
		repayAmount:    repayAmount,
		requestDenom:   requestDenom,
		requestBalance: requestBalance,
		seizedAmount:   seizedAmount,
		protocolFee:    protocolFee,
		bonus:          bonus,
	}, nil
}

// applyLiquidation moves the coins: the liquidator's balance repays the
// liquidatee's debt, the seized collateral (minus the protocol fee) lands on
// the liquidator's ledger, the fee leaves the pool for the rewards
// collector.
func (k *Keeper) applyLiquidation(ctx sdk.Context, liquidatorID, liquidateeID string, action types.Liquidate, plan *liquidationPlan) error {
	repayCoin := sdk.NewCoin(plan.debtDenom, plan.repayAmount)
	if err := k.DecreaseAccountBalance(ctx, liquidatorID, repayCoin); err != nil {
		return err
	}
	if err := k.burnDebtShares(ctx, liquidateeID, plan.debtDenom, plan.repayAmount); err != nil {
		return err
	}

	received := plan.seizedAmount
	switch action.Request.Kind {
	case types.RequestDeposit:
		if err := k.DecreaseAccountBalance(ctx, liquidateeID, sdk.NewCoin(plan.requestDenom, plan.seizedAmount)); err != nil {
			return err
		}
	case types.RequestLend:
		if err := k.redBankKeeper.Reclaim(ctx, liquidateeID, plan.requestDenom, plan.seizedAmount); err != nil {
			return err
		}
	case types.RequestVault:
		pos := k.GetVaultPosition(ctx, liquidateeID, action.Request.Denom)
		if pos == nil {
			return types.ErrVaultPositionNotFound
		}
		sharesTarget, err := smath.MulDivInt(pos.TotalShares(), plan.seizedAmount, plan.requestBalance, false)
		if err != nil {
			return err
		}
		seizedShares, err := k.seizeVaultShares(ctx, pos, sharesTarget)
		if err != nil {
			return err
		}
		coin, err := k.vaultKeeper.ForceWithdraw(ctx, action.Request.Denom, seizedShares)
		if err != nil {
			return err
		}
		received = coin.Amount
	}

	fee := math.MinInt(plan.protocolFee, received)
	liquidatorCoin := sdk.NewCoin(plan.requestDenom, received.Sub(fee))
	if err := k.IncreaseAccountBalance(ctx, liquidatorID, liquidatorCoin); err != nil {
		return err
	}
	if fee.IsPositive() {
		cfg := k.GetConfig(ctx)
		collectorAddr, err := sdk.AccAddressFromBech32(cfg.RewardsCollector)
		if err != nil {
			return err
		}
		feeCoin := sdk.NewCoin(plan.requestDenom, fee)
		if err := k.bankKeeper.SendCoinsFromModuleToAccount(ctx, types.ModuleName, collectorAddr, sdk.NewCoins(feeCoin)); err != nil {
			return err
		}
	}

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			"credit_liquidation",
			sdk.NewAttribute("liquidator", liquidatorID),
			sdk.NewAttribute("liquidatee", liquidateeID),
			sdk.NewAttribute("debt_repaid", repayCoin.String()),
			sdk.NewAttribute("collateral_seized", sdk.NewCoin(plan.requestDenom, received).String()),
			sdk.NewAttribute("protocol_fee", fee.String()),
			sdk.NewAttribute("bonus", plan.bonus.String()),
			sdk.NewAttribute("request_kind", action.Request.Kind.String()),
		),
	)
	k.Logger().Info("liquidated account",
		"liquidator", liquidatorID,
		"liquidatee", liquidateeID,
		"debt_repaid", repayCoin.String(),
		"seized", received.String(),
		"bonus", plan.bonus.String(),
	)
	return nil
}
