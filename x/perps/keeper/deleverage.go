package keeper

import (
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/credit-engine/pkg/smath"
	"github.com/openalpha/credit-engine/x/perps/types"
)

// Deleverage force-closes one account's position in one market, fee-free, to
// relieve vault stress. Eligible when the vault collateralization ratio sits
// below target or the market's open interest cap is breached on the
// position's side. The settlement is reconciled against the module balance
// before the position is considered closed.
func (k *Keeper) Deleverage(ctx sdk.Context, accountID, denom string) (*types.PositionPnl, error) {
	vparams, err := k.paramsKeeper.PerpVaultParams(ctx)
	if err != nil {
		return nil, err
	}
	if !vparams.DeleverageEnabled {
		return nil, types.ErrDeleverageDisabled
	}

	pos := k.GetPosition(ctx, accountID, denom)
	if pos == nil {
		return nil, types.ErrPositionNotFound
	}
	ms := k.GetMarketState(ctx, denom)
	if ms == nil {
		return nil, types.ErrMarketNotFound
	}
	if err := k.UpdateFunding(ctx, ms); err != nil {
		return nil, err
	}

	params, err := k.paramsKeeper.PerpMarketParams(ctx, denom)
	if err != nil {
		return nil, err
	}
	price, err := k.oracleKeeper.GetPrice(ctx, denom)
	if err != nil {
		return nil, err
	}

	preCR, err := k.CollateralizationRatio(ctx)
	if err != nil {
		return nil, err
	}
	crStressed := preCR != nil && preCR.LT(vparams.TargetCollateralization)
	oiStressed := sideCapBreached(ms, params, price, pos.Size.IsPositive())
	if !crStressed && !oiStressed {
		return nil, types.ErrDeleverageInvalidPosition
	}

	// Fee-free full close.
	result, newPos, err := k.closeLeg(ctx, ms, pos, price, pos.Size, math.LegacyZeroDec(), math.LegacyZeroDec())
	if err != nil {
		return nil, err
	}
	if newPos != nil {
		return nil, types.ErrDeleverageInvalidPosition
	}
	net, err := netRealized(result.PricePnl, result.AccruedFunding, math.ZeroInt())
	if err != nil {
		return nil, err
	}
	result.Realized = net

	// Reconciled settlement: the module balance must move by exactly the
	// settled amount. Trader profit flows out, trader loss flows in.
	expected := smath.ZeroSignedInt()
	if net.IsPositive() {
		expected = smath.SignedIntFromInt(net.TruncateToInt().Abs).Neg()
	} else if net.IsNegative() {
		expected = smath.SignedIntFromInt(net.CeilToInt().Abs)
	}
	settlementID := k.beginSettlement(ctx, accountID, expected)
	if err := k.settleRealized(ctx, accountID, net); err != nil {
		return nil, err
	}
	if err := k.verifySettlement(ctx, settlementID); err != nil {
		return nil, err
	}

	k.DeletePosition(ctx, accountID, denom)
	k.SetMarketState(ctx, ms)
	if err := k.recordRealized(ctx, accountID, denom, result); err != nil {
		return nil, err
	}
	if err := k.creditKeeper.RemoveReduceOnlyTriggers(ctx, accountID, denom); err != nil {
		return nil, err
	}

	// A CR-triggered close must leave the vault better off; an OI-triggered
	// close shrank the offending side by construction.
	if crStressed {
		postCR, err := k.CollateralizationRatio(ctx)
		if err != nil {
			return nil, err
		}
		if postCR != nil && postCR.LT(vparams.TargetCollateralization) && !postCR.GT(*preCR) {
			return nil, types.ErrDeleverageInvalidPosition
		}
	}

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			"deleverage_executed",
			sdk.NewAttribute("account_id", accountID),
			sdk.NewAttribute("denom", denom),
			sdk.NewAttribute("closed_size", pos.Size.String()),
			sdk.NewAttribute("realized_pnl", net.String()),
		),
	)
	k.Logger().Info("position deleveraged",
		"account_id", accountID,
		"denom", denom,
		"closed_size", pos.Size.String(),
		"realized_pnl", net.String(),
	)

	return result, nil
}

// sideCapBreached reports whether the market's open interest value cap is
// currently exceeded on the given side.
func sideCapBreached(ms *types.MarketState, params types.PerpMarketParams, price math.LegacyDec, long bool) bool {
	if long {
		return math.LegacyNewDecFromInt(ms.LongOI).Mul(price).GT(math.LegacyNewDecFromInt(params.MaxLongOIValue))
	}
	return math.LegacyNewDecFromInt(ms.ShortOI).Mul(price).GT(math.LegacyNewDecFromInt(params.MaxShortOIValue))
}
