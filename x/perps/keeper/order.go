package keeper

import (
	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/credit-engine/pkg/smath"
	"github.com/openalpha/credit-engine/x/perps/types"
)

// ExecutePerpOrder applies a signed order to the account's position in one
// market: opening, increasing, reducing, closing or flipping it. Orders are
// filled at the skew-adjusted execution price; fees and realized pnl settle
// against the credit account in one net movement. Only the credit dispatcher
// calls this.
func (k *Keeper) ExecutePerpOrder(ctx sdk.Context, accountID, denom string, orderSize smath.SignedInt, reduceOnly bool) (*types.PositionPnl, error) {
	if orderSize.IsZero() {
		return nil, types.ErrInvalidOrderSize
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
	discount, err := k.paramsKeeper.FeeDiscount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	pos := k.GetPosition(ctx, accountID, denom)
	closeAmt, openAmt, err := splitOrder(pos, orderSize)
	if err != nil {
		return nil, err
	}

	if reduceOnly && (pos == nil || !openAmt.IsZero()) {
		return nil, types.ErrIllegalPositionModification
	}
	if !openAmt.IsZero() && !ms.Enabled {
		return nil, types.ErrDenomNotEnabled
	}

	longBefore, shortBefore := ms.LongOI, ms.ShortOI
	skewAbsBefore, err := oiImbalance(ms)
	if err != nil {
		return nil, err
	}

	result := &types.PositionPnl{
		PricePnl:       smath.ZeroSignedDec(),
		AccruedFunding: smath.ZeroSignedDec(),
		OpeningFee:     math.ZeroInt(),
		ClosingFee:     math.ZeroInt(),
		Realized:       smath.ZeroSignedDec(),
	}
	positionRemoved := false

	// Leg 1: close the opposing portion of the existing position.
	if !closeAmt.IsZero() {
		closed, newPos, err := k.closeLeg(ctx, ms, pos, price, closeAmt, params.ClosingFeeRate, discount)
		if err != nil {
			return nil, err
		}
		result.ExecPrice = closed.ExecPrice
		result.PricePnl = closed.PricePnl
		result.AccruedFunding = closed.AccruedFunding
		result.ClosingFee = closed.ClosingFee
		pos = newPos
		positionRemoved = pos == nil
	}

	// Leg 2: open or extend on the order's side with the remainder.
	if !openAmt.IsZero() {
		if pos == nil {
			vparams, err := k.paramsKeeper.PerpVaultParams(ctx)
			if err != nil {
				return nil, err
			}
			// The flip case already holds a slot for this denom.
			if !positionRemoved && len(k.GetAccountPositions(ctx, accountID)) >= vparams.MaxPositions {
				return nil, types.ErrMaxPositionsReached
			}
		}
		opened, newPos, err := k.openLeg(ctx, ms, pos, accountID, denom, price, openAmt, params.OpeningFeeRate, discount)
		if err != nil {
			return nil, err
		}
		if result.ExecPrice.IsNil() {
			result.ExecPrice = opened.ExecPrice
		}
		result.OpeningFee = opened.OpeningFee
		pos = newPos
	}

	// Resulting position must respect the market's value bounds.
	if pos != nil {
		if err := assertPositionValue(pos, price, params); err != nil {
			return nil, err
		}
	}
	if err := assertOICaps(ms, params, price, longBefore, shortBefore, skewAbsBefore); err != nil {
		return nil, err
	}

	// Net settlement: pricePnl + funding - fees in one movement.
	fees := result.OpeningFee.Add(result.ClosingFee)
	net, err := netRealized(result.PricePnl, result.AccruedFunding, fees)
	if err != nil {
		return nil, err
	}
	result.Realized = net
	if err := k.settleRealized(ctx, accountID, net); err != nil {
		return nil, err
	}

	// Persist position and market.
	if pos != nil {
		k.SetPosition(ctx, pos)
	} else {
		k.DeletePosition(ctx, accountID, denom)
	}
	k.SetMarketState(ctx, ms)

	if !closeAmt.IsZero() {
		if err := k.recordRealized(ctx, accountID, denom, result); err != nil {
			return nil, err
		}
	}
	if positionRemoved {
		if err := k.creditKeeper.RemoveReduceOnlyTriggers(ctx, accountID, denom); err != nil {
			return nil, err
		}
	}

	finalSize := smath.ZeroSignedInt()
	if pos != nil {
		finalSize = pos.Size
	}
	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			"perp_order_executed",
			sdk.NewAttribute("account_id", accountID),
			sdk.NewAttribute("denom", denom),
			sdk.NewAttribute("order_size", orderSize.String()),
			sdk.NewAttribute("new_size", finalSize.String()),
			sdk.NewAttribute("exec_price", result.ExecPrice.String()),
			sdk.NewAttribute("realized_pnl", net.String()),
		),
	)
	k.Logger().Info("perp order executed",
		"account_id", accountID,
		"denom", denom,
		"order_size", orderSize.String(),
		"new_size", finalSize.String(),
		"realized_pnl", net.String(),
	)

	return result, nil
}

// splitOrder partitions the order into the portion that closes the existing
// position and the portion that opens on the order's side.
func splitOrder(pos *types.Position, orderSize smath.SignedInt) (closeAmt, openAmt smath.SignedInt, err error) {
	closeAmt = smath.ZeroSignedInt()
	openAmt = orderSize

	if pos == nil || pos.Size.IsPositive() == orderSize.IsPositive() {
		return closeAmt, openAmt, nil
	}

	// Opposite direction: consume the position first.
	orderAbs := smath.SignedIntFromInt(orderSize.Abs)
	sizeAbs := smath.SignedIntFromInt(pos.Size.Abs)
	if orderAbs.GT(sizeAbs) {
		closeAmt = pos.Size
		openAmt, err = orderSize.Add(pos.Size)
		return closeAmt, openAmt, err
	}
	closeAmt = orderSize.Neg()
	openAmt = smath.ZeroSignedInt()
	return closeAmt, openAmt, nil
}

// closeLeg realizes pnl on closeAmt units (signed, same sign as the
// position) and shrinks or removes the position. Market accumulators move by
// exactly the basis the position sheds.
func (k *Keeper) closeLeg(ctx sdk.Context, ms *types.MarketState, pos *types.Position, price math.LegacyDec, closeAmt smath.SignedInt, closingFeeRate, discount math.LegacyDec) (*types.PositionPnl, *types.Position, error) {
	skew, err := ms.Skew()
	if err != nil {
		return nil, nil, err
	}
	execPrice, err := ExecutionPrice(price, skew, ms.Funding.SkewScale, closeAmt.Neg())
	if err != nil {
		return nil, nil, err
	}

	priceDiff, err := smath.SignedDecFromDec(execPrice.Sub(pos.EntryExecPrice))
	if err != nil {
		return nil, nil, err
	}
	pricePnl, err := priceDiff.MulSignedInt(closeAmt)
	if err != nil {
		return nil, nil, err
	}

	accDiff, err := pos.EntryAccruedFunding.Sub(ms.Funding.LastFundingAccruedPerUnit)
	if err != nil {
		return nil, nil, err
	}
	funding, err := accDiff.MulSignedInt(closeAmt)
	if err != nil {
		return nil, nil, err
	}

	closingFee, err := tradeFee(closeAmt.Abs, execPrice, closingFeeRate, discount)
	if err != nil {
		return nil, nil, err
	}

	newSize, err := pos.Size.Sub(closeAmt)
	if err != nil {
		return nil, nil, err
	}
	var newPos *types.Position
	if !newSize.IsZero() {
		cp := *pos
		cp.Size = newSize
		newPos = &cp
	}
	if err := k.applyPositionDelta(ms, pos, newPos); err != nil {
		return nil, nil, err
	}

	return &types.PositionPnl{
		ExecPrice:      execPrice,
		PricePnl:       pricePnl,
		AccruedFunding: funding,
		OpeningFee:     math.ZeroInt(),
		ClosingFee:     closingFee,
		Realized:       smath.ZeroSignedDec(),
	}, newPos, nil
}

// openLeg opens a fresh position or extends an existing same-direction one,
// averaging the entry fields by size.
func (k *Keeper) openLeg(ctx sdk.Context, ms *types.MarketState, pos *types.Position, accountID, denom string, price math.LegacyDec, openAmt smath.SignedInt, openingFeeRate, discount math.LegacyDec) (*types.PositionPnl, *types.Position, error) {
	skew, err := ms.Skew()
	if err != nil {
		return nil, nil, err
	}
	execPrice, err := ExecutionPrice(price, skew, ms.Funding.SkewScale, openAmt)
	if err != nil {
		return nil, nil, err
	}

	openingFee, err := tradeFee(openAmt.Abs, execPrice, openingFeeRate, discount)
	if err != nil {
		return nil, nil, err
	}

	accNow := ms.Funding.LastFundingAccruedPerUnit
	now := ctx.BlockTime().Unix()

	var newPos *types.Position
	if pos == nil {
		newPos = types.NewPosition(accountID, denom, openAmt, price, execPrice, accNow, now)
	} else {
		merged, err := mergeEntries(pos, openAmt, price, execPrice, accNow)
		if err != nil {
			return nil, nil, err
		}
		newPos = merged
	}
	if err := k.applyPositionDelta(ms, pos, newPos); err != nil {
		return nil, nil, err
	}

	return &types.PositionPnl{
		ExecPrice:      execPrice,
		PricePnl:       smath.ZeroSignedDec(),
		AccruedFunding: smath.ZeroSignedDec(),
		OpeningFee:     openingFee,
		ClosingFee:     math.ZeroInt(),
		Realized:       smath.ZeroSignedDec(),
	}, newPos, nil
}

// mergeEntries size-weights the entry fields of a same-direction increase.
func mergeEntries(pos *types.Position, openAmt smath.SignedInt, price, execPrice math.LegacyDec, accNow smath.SignedDec) (*types.Position, error) {
	newSize, err := pos.Size.Add(openAmt)
	if err != nil {
		return nil, err
	}
	oldW := math.LegacyNewDecFromInt(pos.Size.Abs)
	addW := math.LegacyNewDecFromInt(openAmt.Abs)
	totalW := oldW.Add(addW)

	entryPrice := pos.EntryPrice.Mul(oldW).Add(price.Mul(addW)).QuoTruncate(totalW)
	entryExec := pos.EntryExecPrice.Mul(oldW).Add(execPrice.Mul(addW)).QuoTruncate(totalW)

	oldAcc, err := pos.EntryAccruedFunding.MulDecTruncate(oldW)
	if err != nil {
		return nil, err
	}
	addAcc, err := accNow.MulDecTruncate(addW)
	if err != nil {
		return nil, err
	}
	accSum, err := oldAcc.Add(addAcc)
	if err != nil {
		return nil, err
	}
	entryAcc, err := accSum.QuoDecTruncate(totalW)
	if err != nil {
		return nil, err
	}

	cp := *pos
	cp.Size = newSize
	cp.EntryPrice = entryPrice
	cp.EntryExecPrice = entryExec
	cp.EntryAccruedFunding = entryAcc
	return &cp, nil
}

// applyPositionDelta moves the market's open interest and entry-basis
// accumulators by exactly the difference between the old and new position,
// keeping them equal to the sum over stored positions.
func (k *Keeper) applyPositionDelta(ms *types.MarketState, oldPos, newPos *types.Position) error {
	oldCost, oldFund, err := positionBases(oldPos)
	if err != nil {
		return err
	}
	newCost, newFund, err := positionBases(newPos)
	if err != nil {
		return err
	}

	costDelta, err := newCost.Sub(oldCost)
	if err != nil {
		return err
	}
	fundDelta, err := newFund.Sub(oldFund)
	if err != nil {
		return err
	}
	ms.TotalEntryCost, err = ms.TotalEntryCost.Add(costDelta)
	if err != nil {
		return err
	}
	ms.TotalEntryFunding, err = ms.TotalEntryFunding.Add(fundDelta)
	if err != nil {
		return err
	}

	if oldPos != nil {
		if oldPos.Size.IsPositive() {
			ms.LongOI, err = smath.SafeSubInt(ms.LongOI, oldPos.Size.Abs)
		} else {
			ms.ShortOI, err = smath.SafeSubInt(ms.ShortOI, oldPos.Size.Abs)
		}
		if err != nil {
			return err
		}
	}
	if newPos != nil {
		if newPos.Size.IsPositive() {
			ms.LongOI = ms.LongOI.Add(newPos.Size.Abs)
		} else {
			ms.ShortOI = ms.ShortOI.Add(newPos.Size.Abs)
		}
	}
	return nil
}

func positionBases(pos *types.Position) (cost, fund smath.SignedDec, err error) {
	if pos == nil {
		return smath.ZeroSignedDec(), smath.ZeroSignedDec(), nil
	}
	cost, err = pos.CostBasis()
	if err != nil {
		return cost, fund, err
	}
	fund, err = pos.FundingBasis()
	return cost, fund, err
}

// tradeFee computes ceil(|size| x execPrice x rate x (1 - discount)), the
// rounding favoring the vault.
func tradeFee(sizeAbs math.Int, execPrice, rate, discount math.LegacyDec) (math.Int, error) {
	if discount.IsNil() || discount.IsNegative() {
		discount = math.LegacyZeroDec()
	}
	if discount.GT(math.LegacyOneDec()) {
		discount = math.LegacyOneDec()
	}
	value, err := smath.SignedIntFromInt(sizeAbs).MulDec(execPrice)
	if err != nil {
		return math.Int{}, err
	}
	fee, err := value.MulDecTruncate(rate)
	if err != nil {
		return math.Int{}, err
	}
	fee, err = fee.MulDecTruncate(math.LegacyOneDec().Sub(discount))
	if err != nil {
		return math.Int{}, err
	}
	return fee.CeilToInt().Abs, nil
}

// netRealized folds pnl components and fees into one signed settlement value.
func netRealized(pricePnl, funding smath.SignedDec, fees math.Int) (smath.SignedDec, error) {
	net, err := pricePnl.Add(funding)
	if err != nil {
		return smath.SignedDec{}, err
	}
	return net.Sub(smath.SignedIntFromInt(fees).ToDec())
}

// assertPositionValue bounds the resulting position's oracle value.
func assertPositionValue(pos *types.Position, price math.LegacyDec, params types.PerpMarketParams) error {
	value := math.LegacyNewDecFromInt(pos.Size.Abs).Mul(price)
	if value.LT(math.LegacyNewDecFromInt(params.MinPositionValue)) {
		return types.ErrPositionValueBelowMin
	}
	if params.MaxPositionValue != nil && value.GT(math.LegacyNewDecFromInt(*params.MaxPositionValue)) {
		return types.ErrPositionValueAboveMax
	}
	return nil
}

// assertOICaps rejects orders that push a breached exposure further. Sides
// that shrank are never rejected.
func assertOICaps(ms *types.MarketState, params types.PerpMarketParams, price math.LegacyDec, longBefore, shortBefore, skewAbsBefore math.Int) error {
	if ms.LongOI.GT(longBefore) {
		longVal := math.LegacyNewDecFromInt(ms.LongOI).Mul(price)
		if longVal.GT(math.LegacyNewDecFromInt(params.MaxLongOIValue)) {
			return types.ErrLongOICapExceeded
		}
	}
	if ms.ShortOI.GT(shortBefore) {
		shortVal := math.LegacyNewDecFromInt(ms.ShortOI).Mul(price)
		if shortVal.GT(math.LegacyNewDecFromInt(params.MaxShortOIValue)) {
			return types.ErrShortOICapExceeded
		}
	}
	skewAbs, err := oiImbalance(ms)
	if err != nil {
		return err
	}
	if skewAbs.GT(skewAbsBefore) {
		netVal := math.LegacyNewDecFromInt(skewAbs).Mul(price)
		if netVal.GT(math.LegacyNewDecFromInt(params.MaxNetOIValue)) {
			return types.ErrNetOICapExceeded
		}
	}
	return nil
}

func oiImbalance(ms *types.MarketState) (math.Int, error) {
	skew, err := ms.Skew()
	if err != nil {
		return math.Int{}, err
	}
	return skew.Abs, nil
}

// recordRealized folds a close result into the account's realized pnl
// accumulator.
func (k *Keeper) recordRealized(ctx sdk.Context, accountID, denom string, result *types.PositionPnl) error {
	acc := k.GetRealizedPnl(ctx, accountID, denom)
	var err error
	if acc.PricePnl, err = acc.PricePnl.Add(result.PricePnl); err != nil {
		return errorsmod.Wrap(err, "realized price pnl")
	}
	if acc.AccruedFunding, err = acc.AccruedFunding.Add(result.AccruedFunding); err != nil {
		return errorsmod.Wrap(err, "realized funding")
	}
	acc.Fees = acc.Fees.Add(result.OpeningFee).Add(result.ClosingFee)
	if acc.Net, err = acc.Net.Add(result.Realized); err != nil {
		return errorsmod.Wrap(err, "realized net pnl")
	}
	k.SetRealizedPnl(ctx, acc)
	return nil
}
