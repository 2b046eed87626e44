package keeper

import (
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/credit-engine/pkg/smath"
	"github.com/openalpha/credit-engine/x/perps/types"
)

// ExecutionPrice applies linear skew impact to the oracle price for an order
// of the given size: oracle x (1 + (skew + size/2) / skewScale), floored at
// zero. Orders that push skew further from zero pay a premium; orders that
// rebalance receive one.
func ExecutionPrice(oraclePrice math.LegacyDec, skew smath.SignedInt, skewScale math.Int, orderSize smath.SignedInt) (math.LegacyDec, error) {
	half, err := orderSize.ToDec().QuoDecTruncate(math.LegacyNewDec(2))
	if err != nil {
		return math.LegacyDec{}, err
	}
	effSkew, err := skew.ToDec().Add(half)
	if err != nil {
		return math.LegacyDec{}, err
	}
	scale, err := smath.SignedDecFromDec(math.LegacyNewDecFromInt(skewScale))
	if err != nil {
		return math.LegacyDec{}, err
	}
	premium, err := effSkew.QuoTruncate(scale)
	if err != nil {
		return math.LegacyDec{}, err
	}
	factor, err := premium.Add(posOne)
	if err != nil {
		return math.LegacyDec{}, err
	}
	if factor.IsNegative() {
		return math.LegacyZeroDec(), nil
	}
	exec, err := factor.MulDecTruncate(oraclePrice)
	if err != nil {
		return math.LegacyDec{}, err
	}
	return exec.Abs, nil
}

// MarketTotalPnl values all traders' unrealized pnl in one market at the
// given oracle price:
//
//	price term:   p x skew x (1 + skew/(2k)) - total entry cost
//	funding term: total entry funding - accruedNow x skew
//
// Positive means traders are collectively in profit, a liability of the
// vault.
func MarketTotalPnl(ms *types.MarketState, price math.LegacyDec, now int64) (smath.SignedDec, error) {
	_, accruedNow, err := fundingSnapshot(ms, price, now)
	if err != nil {
		return smath.SignedDec{}, err
	}

	skew, err := ms.Skew()
	if err != nil {
		return smath.SignedDec{}, err
	}

	pSkew, err := skew.MulDec(price)
	if err != nil {
		return smath.SignedDec{}, err
	}
	twoK, err := smath.SignedDecFromDec(math.LegacyNewDecFromInt(ms.Funding.SkewScale).MulInt64(2))
	if err != nil {
		return smath.SignedDec{}, err
	}
	ratio, err := skew.ToDec().QuoTruncate(twoK)
	if err != nil {
		return smath.SignedDec{}, err
	}
	factor, err := ratio.Add(posOne)
	if err != nil {
		return smath.SignedDec{}, err
	}
	gross, err := pSkew.MulTruncate(factor)
	if err != nil {
		return smath.SignedDec{}, err
	}
	priceTerm, err := gross.Sub(ms.TotalEntryCost)
	if err != nil {
		return smath.SignedDec{}, err
	}

	accruedTimesSkew, err := accruedNow.MulSignedInt(skew)
	if err != nil {
		return smath.SignedDec{}, err
	}
	fundingTerm, err := ms.TotalEntryFunding.Sub(accruedTimesSkew)
	if err != nil {
		return smath.SignedDec{}, err
	}

	return priceTerm.Add(fundingTerm)
}

// marketPnlNow fetches the oracle price and values one market's trader pnl.
func (k *Keeper) marketPnlNow(ctx sdk.Context, ms *types.MarketState) (smath.SignedDec, error) {
	price, err := k.oracleKeeper.GetPrice(ctx, ms.Denom)
	if err != nil {
		return smath.SignedDec{}, err
	}
	return MarketTotalPnl(ms, price, ctx.BlockTime().Unix())
}

// aggregatePnl sums trader pnl across markets and, separately, the vault's
// obligation (profits only; net-losing markets owe the vault, not the other
// way around).
func (k *Keeper) aggregatePnl(ctx sdk.Context) (total, obligation smath.SignedDec, err error) {
	total = smath.ZeroSignedDec()
	obligation = smath.ZeroSignedDec()
	for _, ms := range k.GetAllMarketStates(ctx) {
		pnl, err := k.marketPnlNow(ctx, ms)
		if err != nil {
			return total, obligation, err
		}
		total, err = total.Add(pnl)
		if err != nil {
			return total, obligation, err
		}
		if pnl.IsPositive() {
			obligation, err = obligation.Add(pnl)
			if err != nil {
				return total, obligation, err
			}
		}
	}
	return total, obligation, nil
}
