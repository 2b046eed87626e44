package keeper

import (
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/credit-engine/pkg/smath"
	"github.com/openalpha/credit-engine/x/perps/types"
)

// MarketSnapshot is the read-model of one market at the current block.
type MarketSnapshot struct {
	Denom          string          `json:"denom"`
	Enabled        bool            `json:"enabled"`
	LongOI         math.Int        `json:"long_oi"`
	ShortOI        math.Int        `json:"short_oi"`
	FundingRate    smath.SignedDec `json:"funding_rate"`
	AccruedPerUnit smath.SignedDec `json:"accrued_per_unit"`
	OraclePrice    math.LegacyDec  `json:"oracle_price"`
	TraderPnl      smath.SignedDec `json:"trader_pnl"`
}

// VaultSnapshot is the read-model of the counterparty vault.
type VaultSnapshot struct {
	TotalLiquidity        math.Int        `json:"total_liquidity"`
	TotalShares           math.Int        `json:"total_shares"`
	WithdrawalBalance     math.Int        `json:"withdrawal_balance"`
	CollateralizationRate *math.LegacyDec `json:"collateralization_rate,omitempty"`
	ShareValue            math.LegacyDec  `json:"share_value"`
}

// PositionSnapshot pairs a stored position with its close-now valuation.
type PositionSnapshot struct {
	Position    types.Position    `json:"position"`
	Unrealized  types.PositionPnl `json:"unrealized"`
	OraclePrice math.LegacyDec    `json:"oracle_price"`
}

// QueryMarket values one market at current prices without mutating state.
func (k *Keeper) QueryMarket(ctx sdk.Context, denom string) (*MarketSnapshot, error) {
	ms := k.GetMarketState(ctx, denom)
	if ms == nil {
		return nil, types.ErrMarketNotFound
	}
	price, err := k.oracleKeeper.GetPrice(ctx, denom)
	if err != nil {
		return nil, err
	}
	now := ctx.BlockTime().Unix()
	rate, accrued, err := fundingSnapshot(ms, price, now)
	if err != nil {
		return nil, err
	}
	pnl, err := MarketTotalPnl(ms, price, now)
	if err != nil {
		return nil, err
	}
	return &MarketSnapshot{
		Denom:          ms.Denom,
		Enabled:        ms.Enabled,
		LongOI:         ms.LongOI,
		ShortOI:        ms.ShortOI,
		FundingRate:    rate,
		AccruedPerUnit: accrued,
		OraclePrice:    price,
		TraderPnl:      pnl,
	}, nil
}

// QueryVault values the vault at current prices.
func (k *Keeper) QueryVault(ctx sdk.Context) (*VaultSnapshot, error) {
	vs := k.GetVaultState(ctx)
	wb, err := k.WithdrawalBalance(ctx)
	if err != nil {
		return nil, err
	}
	cr, err := k.CollateralizationRatio(ctx)
	if err != nil {
		return nil, err
	}
	shareValue := math.LegacyZeroDec()
	if vs.TotalShares.IsPositive() {
		shareValue = math.LegacyNewDecFromInt(wb).QuoTruncate(math.LegacyNewDecFromInt(vs.TotalShares))
	}
	return &VaultSnapshot{
		TotalLiquidity:        vs.TotalLiquidity,
		TotalShares:           vs.TotalShares,
		WithdrawalBalance:     wb,
		CollateralizationRate: cr,
		ShareValue:            shareValue,
	}, nil
}

// UnrealizedPnl values a position as if closed now: execution price for the
// full closing order, accrued funding, and the undiscounted closing fee.
func (k *Keeper) UnrealizedPnl(ctx sdk.Context, accountID, denom string) (*types.PositionPnl, error) {
	pos := k.GetPosition(ctx, accountID, denom)
	if pos == nil {
		return nil, types.ErrPositionNotFound
	}
	ms := k.GetMarketState(ctx, denom)
	if ms == nil {
		return nil, types.ErrMarketNotFound
	}
	params, err := k.paramsKeeper.PerpMarketParams(ctx, denom)
	if err != nil {
		return nil, err
	}
	price, err := k.oracleKeeper.GetPrice(ctx, denom)
	if err != nil {
		return nil, err
	}

	_, accruedNow, err := fundingSnapshot(ms, price, ctx.BlockTime().Unix())
	if err != nil {
		return nil, err
	}
	skew, err := ms.Skew()
	if err != nil {
		return nil, err
	}
	execPrice, err := ExecutionPrice(price, skew, ms.Funding.SkewScale, pos.Size.Neg())
	if err != nil {
		return nil, err
	}

	priceDiff, err := smath.SignedDecFromDec(execPrice.Sub(pos.EntryExecPrice))
	if err != nil {
		return nil, err
	}
	pricePnl, err := priceDiff.MulSignedInt(pos.Size)
	if err != nil {
		return nil, err
	}
	funding, err := PositionAccruedFunding(pos, accruedNow)
	if err != nil {
		return nil, err
	}
	closingFee, err := tradeFee(pos.Size.Abs, execPrice, params.ClosingFeeRate, math.LegacyZeroDec())
	if err != nil {
		return nil, err
	}
	net, err := netRealized(pricePnl, funding, closingFee)
	if err != nil {
		return nil, err
	}

	return &types.PositionPnl{
		ExecPrice:      execPrice,
		PricePnl:       pricePnl,
		AccruedFunding: funding,
		OpeningFee:     math.ZeroInt(),
		ClosingFee:     closingFee,
		Realized:       net,
	}, nil
}

// QueryAccountPositions returns every position of an account with close-now
// valuations.
func (k *Keeper) QueryAccountPositions(ctx sdk.Context, accountID string) ([]PositionSnapshot, error) {
	positions := k.GetAccountPositions(ctx, accountID)
	snapshots := make([]PositionSnapshot, 0, len(positions))
	for _, pos := range positions {
		pnl, err := k.UnrealizedPnl(ctx, accountID, pos.Denom)
		if err != nil {
			return nil, err
		}
		price, err := k.oracleKeeper.GetPrice(ctx, pos.Denom)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, PositionSnapshot{
			Position:    *pos,
			Unrealized:  *pnl,
			OraclePrice: price,
		})
	}
	return snapshots, nil
}

// OpeningFeePreview quotes the fee an order of the given size would pay now.
func (k *Keeper) OpeningFeePreview(ctx sdk.Context, denom string, orderSize smath.SignedInt) (math.Int, error) {
	ms := k.GetMarketState(ctx, denom)
	if ms == nil {
		return math.Int{}, types.ErrMarketNotFound
	}
	params, err := k.paramsKeeper.PerpMarketParams(ctx, denom)
	if err != nil {
		return math.Int{}, err
	}
	price, err := k.oracleKeeper.GetPrice(ctx, denom)
	if err != nil {
		return math.Int{}, err
	}
	skew, err := ms.Skew()
	if err != nil {
		return math.Int{}, err
	}
	execPrice, err := ExecutionPrice(price, skew, ms.Funding.SkewScale, orderSize)
	if err != nil {
		return math.Int{}, err
	}
	return tradeFee(orderSize.Abs, execPrice, params.OpeningFeeRate, math.LegacyZeroDec())
}
