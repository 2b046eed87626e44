package keeper

import (
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/credit-engine/pkg/smath"
	"github.com/openalpha/credit-engine/x/perps/types"
)

var (
	negOne = smath.SignedDec{Abs: math.LegacyOneDec(), Negative: true}
	posOne = smath.SignedDec{Abs: math.LegacyOneDec(), Negative: false}
)

// fundingSnapshot computes the funding rate and accrued-per-unit a market
// would carry at `now`, without mutating state.
//
// The rate drifts at a velocity proportional to skew: the side with more
// open interest pays, pushing it to rebalance. Accrual integrates the
// average of the old and new rate over the elapsed window, priced in base
// denom per unit of size.
func fundingSnapshot(ms *types.MarketState, price math.LegacyDec, now int64) (rate, accrued smath.SignedDec, err error) {
	rate = ms.Funding.LastFundingRate
	accrued = ms.Funding.LastFundingAccruedPerUnit

	elapsed := now - ms.LastUpdated
	if elapsed <= 0 {
		return rate, accrued, nil
	}

	skew, err := ms.Skew()
	if err != nil {
		return rate, accrued, err
	}
	skewScale, err := smath.SignedDecFromDec(math.LegacyNewDecFromInt(ms.Funding.SkewScale))
	if err != nil {
		return rate, accrued, err
	}

	// velocity per day = maxVelocity x clamp(skew/skewScale, -1, 1)
	ratio, err := skew.ToDec().QuoTruncate(skewScale)
	if err != nil {
		return rate, accrued, err
	}
	velocity, err := ratio.Clamp(negOne, posOne).MulDecTruncate(ms.Funding.MaxFundingVelocity)
	if err != nil {
		return rate, accrued, err
	}

	timeRatio := math.LegacyNewDec(elapsed).QuoTruncate(math.LegacyNewDec(types.SecondsPerDay))

	delta, err := velocity.MulDecTruncate(timeRatio)
	if err != nil {
		return rate, accrued, err
	}
	newRate, err := rate.Add(delta)
	if err != nil {
		return rate, accrued, err
	}

	// accrued increment = avg(rate, newRate) x elapsed/day x price
	sum, err := rate.Add(newRate)
	if err != nil {
		return rate, accrued, err
	}
	avg, err := sum.QuoDecTruncate(math.LegacyNewDec(2))
	if err != nil {
		return rate, accrued, err
	}
	inc, err := avg.MulDecTruncate(timeRatio)
	if err != nil {
		return rate, accrued, err
	}
	inc, err = inc.MulDecTruncate(price)
	if err != nil {
		return rate, accrued, err
	}
	newAccrued, err := accrued.Add(inc)
	if err != nil {
		return rate, accrued, err
	}

	return newRate, newAccrued, nil
}

// UpdateFunding rolls the market's funding accumulators forward to the
// current block time. The caller persists the market state.
func (k *Keeper) UpdateFunding(ctx sdk.Context, ms *types.MarketState) error {
	now := ctx.BlockTime().Unix()
	if now <= ms.LastUpdated {
		return nil
	}
	price, err := k.oracleKeeper.GetPrice(ctx, ms.Denom)
	if err != nil {
		return err
	}
	rate, accrued, err := fundingSnapshot(ms, price, now)
	if err != nil {
		return err
	}
	ms.Funding.LastFundingRate = rate
	ms.Funding.LastFundingAccruedPerUnit = accrued
	ms.LastUpdated = now
	return nil
}

// PositionAccruedFunding values a position's unsettled funding in base denom:
// size x (entry accumulator - current accumulator). Longs pay while the
// accumulator rises.
func PositionAccruedFunding(pos *types.Position, accruedNow smath.SignedDec) (smath.SignedDec, error) {
	diff, err := pos.EntryAccruedFunding.Sub(accruedNow)
	if err != nil {
		return smath.SignedDec{}, err
	}
	return diff.MulSignedInt(pos.Size)
}

// RefreshFunding settles funding on every market; run once per block.
func (k *Keeper) RefreshFunding(ctx sdk.Context) error {
	for _, ms := range k.GetAllMarketStates(ctx) {
		if err := k.UpdateFunding(ctx, ms); err != nil {
			k.Logger().Error("funding refresh failed", "denom", ms.Denom, "err", err)
			continue
		}
		k.SetMarketState(ctx, ms)
	}
	return nil
}
