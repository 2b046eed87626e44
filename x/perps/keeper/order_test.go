package keeper

import (
	"errors"
	"math/big"
	"testing"

	"cosmossdk.io/math"

	"github.com/openalpha/credit-engine/pkg/smath"
	"github.com/openalpha/credit-engine/x/perps/types"
)

// TestExecutePerpOrderOpen tests opening a fresh long position
func TestExecutePerpOrderOpen(t *testing.T) {
	f := setupPerpsKeeper(t)
	f.initMarket(t, "ubtc")

	result, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-1", "ubtc", si(1000), false)
	if err != nil {
		t.Fatalf("open order: %v", err)
	}

	// skew 0, size 1000: exec = 100 * (1 + 500/1e6) = 100.05
	if !result.ExecPrice.Equal(dec("100.05")) {
		t.Errorf("expected exec price 100.05, got %s", result.ExecPrice)
	}
	// fee = ceil(1000 * 100.05 * 0.001) = 101
	if !result.OpeningFee.Equal(math.NewInt(101)) {
		t.Errorf("expected opening fee 101, got %s", result.OpeningFee)
	}
	if !result.Realized.Equal(sd(t, "-101")) {
		t.Errorf("expected realized -101, got %s", result.Realized)
	}

	pos := f.keeper.GetPosition(f.ctx, "acct-1", "ubtc")
	if pos == nil {
		t.Fatal("expected stored position")
	}
	if !pos.Size.Equal(si(1000)) {
		t.Errorf("expected size 1000, got %s", pos.Size)
	}
	if !pos.EntryPrice.Equal(dec("100")) {
		t.Errorf("expected entry price 100, got %s", pos.EntryPrice)
	}
	if !pos.EntryExecPrice.Equal(dec("100.05")) {
		t.Errorf("expected entry exec price 100.05, got %s", pos.EntryExecPrice)
	}
	if !pos.EntryAccruedFunding.IsZero() {
		t.Errorf("expected zero entry funding, got %s", pos.EntryAccruedFunding)
	}

	ms := f.keeper.GetMarketState(f.ctx, "ubtc")
	if !ms.LongOI.Equal(math.NewInt(1000)) || !ms.ShortOI.IsZero() {
		t.Errorf("expected OI 1000/0, got %s/%s", ms.LongOI, ms.ShortOI)
	}
	if !ms.TotalEntryCost.Equal(sd(t, "100050")) {
		t.Errorf("expected total entry cost 100050, got %s", ms.TotalEntryCost)
	}
	if !ms.TotalEntryFunding.IsZero() {
		t.Errorf("expected zero total entry funding, got %s", ms.TotalEntryFunding)
	}

	// The fee settles into the vault through the deduct waterfall.
	if !f.credit.deducted["acct-1"].Equal(math.NewInt(101)) {
		t.Errorf("expected 101 deducted, got %s", f.credit.deducted["acct-1"])
	}
	vs := f.keeper.GetVaultState(f.ctx)
	if !vs.TotalLiquidity.Equal(math.NewInt(101)) {
		t.Errorf("expected vault liquidity 101, got %s", vs.TotalLiquidity)
	}
}

// TestExecutePerpOrderIncrease tests extending a position with weighted entries
func TestExecutePerpOrderIncrease(t *testing.T) {
	f := setupPerpsKeeper(t)
	f.initMarket(t, "ubtc")

	if _, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-1", "ubtc", si(1000), false); err != nil {
		t.Fatalf("first open: %v", err)
	}
	// skew 1000, size 1000: exec = 100 * (1 + 1500/1e6) = 100.15
	result, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-1", "ubtc", si(1000), false)
	if err != nil {
		t.Fatalf("increase: %v", err)
	}
	if !result.ExecPrice.Equal(dec("100.15")) {
		t.Errorf("expected exec price 100.15, got %s", result.ExecPrice)
	}

	pos := f.keeper.GetPosition(f.ctx, "acct-1", "ubtc")
	if !pos.Size.Equal(si(2000)) {
		t.Errorf("expected size 2000, got %s", pos.Size)
	}
	// weighted: (100.05*1000 + 100.15*1000) / 2000 = 100.1
	if !pos.EntryExecPrice.Equal(dec("100.1")) {
		t.Errorf("expected entry exec price 100.1, got %s", pos.EntryExecPrice)
	}

	ms := f.keeper.GetMarketState(f.ctx, "ubtc")
	if !ms.LongOI.Equal(math.NewInt(2000)) {
		t.Errorf("expected long OI 2000, got %s", ms.LongOI)
	}
	if !ms.TotalEntryCost.Equal(sd(t, "200200")) {
		t.Errorf("expected total entry cost 200200, got %s", ms.TotalEntryCost)
	}
}

// TestExecutePerpOrderReduce tests partially closing a position
func TestExecutePerpOrderReduce(t *testing.T) {
	f := setupPerpsKeeper(t)
	f.initMarket(t, "ubtc")

	if _, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-1", "ubtc", si(1000), false); err != nil {
		t.Fatalf("open: %v", err)
	}
	result, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-1", "ubtc", si(-400), false)
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}

	// close exec = 100 * (1 + (1000-200)/1e6) = 100.08
	if !result.ExecPrice.Equal(dec("100.08")) {
		t.Errorf("expected exec price 100.08, got %s", result.ExecPrice)
	}
	// price pnl = (100.08 - 100.05) * 400 = 12
	if !result.PricePnl.Equal(sd(t, "12")) {
		t.Errorf("expected price pnl 12, got %s", result.PricePnl)
	}
	// fee = ceil(400 * 100.08 * 0.001) = 41
	if !result.ClosingFee.Equal(math.NewInt(41)) {
		t.Errorf("expected closing fee 41, got %s", result.ClosingFee)
	}
	if !result.Realized.Equal(sd(t, "-29")) {
		t.Errorf("expected realized -29, got %s", result.Realized)
	}

	pos := f.keeper.GetPosition(f.ctx, "acct-1", "ubtc")
	if !pos.Size.Equal(si(600)) {
		t.Errorf("expected size 600, got %s", pos.Size)
	}
	if !pos.EntryExecPrice.Equal(dec("100.05")) {
		t.Errorf("expected entry exec price unchanged at 100.05, got %s", pos.EntryExecPrice)
	}

	ms := f.keeper.GetMarketState(f.ctx, "ubtc")
	if !ms.LongOI.Equal(math.NewInt(600)) {
		t.Errorf("expected long OI 600, got %s", ms.LongOI)
	}
	if !ms.TotalEntryCost.Equal(sd(t, "60030")) {
		t.Errorf("expected total entry cost 60030, got %s", ms.TotalEntryCost)
	}

	acc := f.keeper.GetRealizedPnl(f.ctx, "acct-1", "ubtc")
	if !acc.PricePnl.Equal(sd(t, "12")) {
		t.Errorf("expected recorded price pnl 12, got %s", acc.PricePnl)
	}
	if !acc.Fees.Equal(math.NewInt(41)) {
		t.Errorf("expected recorded fees 41, got %s", acc.Fees)
	}
	if !acc.Net.Equal(sd(t, "-29")) {
		t.Errorf("expected recorded net -29, got %s", acc.Net)
	}
}

// TestExecutePerpOrderClose tests fully closing a position
func TestExecutePerpOrderClose(t *testing.T) {
	f := setupPerpsKeeper(t)
	f.initMarket(t, "ubtc")

	if _, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-1", "ubtc", si(1000), false); err != nil {
		t.Fatalf("open: %v", err)
	}
	result, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-1", "ubtc", si(-1000), false)
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	// entry and exit both fill at 100.05: pure round trip loses only fees
	if !result.PricePnl.IsZero() {
		t.Errorf("expected zero price pnl, got %s", result.PricePnl)
	}
	if !result.Realized.Equal(sd(t, "-101")) {
		t.Errorf("expected realized -101, got %s", result.Realized)
	}

	if pos := f.keeper.GetPosition(f.ctx, "acct-1", "ubtc"); pos != nil {
		t.Errorf("expected position deleted, got size %s", pos.Size)
	}
	ms := f.keeper.GetMarketState(f.ctx, "ubtc")
	if !ms.LongOI.IsZero() || !ms.ShortOI.IsZero() {
		t.Errorf("expected zero OI, got %s/%s", ms.LongOI, ms.ShortOI)
	}
	if !ms.TotalEntryCost.IsZero() || !ms.TotalEntryFunding.IsZero() {
		t.Errorf("expected zeroed accumulators, got %s/%s", ms.TotalEntryCost, ms.TotalEntryFunding)
	}
	if !containsString(f.credit.purgedTrigger, "acct-1:ubtc") {
		t.Error("expected reduce-only triggers purged on close")
	}
}

// TestExecutePerpOrderFlip tests an order larger than the opposing position
func TestExecutePerpOrderFlip(t *testing.T) {
	f := setupPerpsKeeper(t)
	f.initMarket(t, "ubtc")

	if _, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-1", "ubtc", si(1000), false); err != nil {
		t.Fatalf("open: %v", err)
	}
	result, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-1", "ubtc", si(-2500), false)
	if err != nil {
		t.Fatalf("flip: %v", err)
	}

	pos := f.keeper.GetPosition(f.ctx, "acct-1", "ubtc")
	if pos == nil {
		t.Fatal("expected short position after flip")
	}
	if !pos.Size.Equal(si(-1500)) {
		t.Errorf("expected size -1500, got %s", pos.Size)
	}
	// open leg fills against zero skew: 100 * (1 - 750/1e6) = 99.925
	if !pos.EntryExecPrice.Equal(dec("99.925")) {
		t.Errorf("expected entry exec price 99.925, got %s", pos.EntryExecPrice)
	}

	ms := f.keeper.GetMarketState(f.ctx, "ubtc")
	if !ms.LongOI.IsZero() || !ms.ShortOI.Equal(math.NewInt(1500)) {
		t.Errorf("expected OI 0/1500, got %s/%s", ms.LongOI, ms.ShortOI)
	}
	if !ms.TotalEntryCost.Equal(sd(t, "-149887.5")) {
		t.Errorf("expected total entry cost -149887.5, got %s", ms.TotalEntryCost)
	}

	// close fee 101 + open fee ceil(1500*99.925*0.001) = 150
	if !result.ClosingFee.Equal(math.NewInt(101)) || !result.OpeningFee.Equal(math.NewInt(150)) {
		t.Errorf("expected fees 101/150, got %s/%s", result.ClosingFee, result.OpeningFee)
	}
	if !containsString(f.credit.purgedTrigger, "acct-1:ubtc") {
		t.Error("expected reduce-only triggers purged on flip")
	}
}

// TestExecutePerpOrderReduceOnly tests the reduce-only restriction
func TestExecutePerpOrderReduceOnly(t *testing.T) {
	f := setupPerpsKeeper(t)
	f.initMarket(t, "ubtc")

	if _, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-1", "ubtc", si(100), true); err != types.ErrIllegalPositionModification {
		t.Errorf("expected ErrIllegalPositionModification without position, got %v", err)
	}

	if _, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-1", "ubtc", si(1000), false); err != nil {
		t.Fatalf("open: %v", err)
	}

	tests := []struct {
		name      string
		orderSize int64
		wantErr   bool
	}{
		{"same direction grows", 100, true},
		{"overshoot flips", -2000, true},
		{"partial reduce", -400, false},
		{"full close", -600, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-1", "ubtc", si(tt.orderSize), true)
			if tt.wantErr && err != types.ErrIllegalPositionModification {
				t.Errorf("expected ErrIllegalPositionModification, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}

	if pos := f.keeper.GetPosition(f.ctx, "acct-1", "ubtc"); pos != nil {
		t.Errorf("expected position closed, got size %s", pos.Size)
	}
}

// TestExecutePerpOrderValidation tests order rejection paths
func TestExecutePerpOrderValidation(t *testing.T) {
	f := setupPerpsKeeper(t)
	f.initMarket(t, "ubtc")

	if _, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-1", "ubtc", si(0), false); err != types.ErrInvalidOrderSize {
		t.Errorf("expected ErrInvalidOrderSize, got %v", err)
	}
	if _, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-1", "unknown", si(100), false); err != types.ErrMarketNotFound {
		t.Errorf("expected ErrMarketNotFound, got %v", err)
	}
}

// TestExecutePerpOrderDisabledMarket tests that a disabled market rejects
// opens but still lets positions close
func TestExecutePerpOrderDisabledMarket(t *testing.T) {
	f := setupPerpsKeeper(t)
	f.initMarket(t, "ubtc")

	if _, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-1", "ubtc", si(1000), false); err != nil {
		t.Fatalf("open: %v", err)
	}

	ms := f.keeper.GetMarketState(f.ctx, "ubtc")
	ms.Enabled = false
	f.keeper.SetMarketState(f.ctx, ms)

	if _, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-1", "ubtc", si(100), false); err != types.ErrDenomNotEnabled {
		t.Errorf("expected ErrDenomNotEnabled on increase, got %v", err)
	}
	if _, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-2", "ubtc", si(-100), false); err != types.ErrDenomNotEnabled {
		t.Errorf("expected ErrDenomNotEnabled on fresh open, got %v", err)
	}
	if _, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-1", "ubtc", si(-1000), false); err != nil {
		t.Errorf("expected close to succeed on disabled market, got %v", err)
	}
}

// TestExecutePerpOrderPositionValueBounds tests the min/max value guards
func TestExecutePerpOrderPositionValueBounds(t *testing.T) {
	f := setupPerpsKeeper(t)
	f.params.market.MinPositionValue = math.NewInt(1000)
	maxVal := math.NewInt(50_000)
	f.params.market.MaxPositionValue = &maxVal
	f.initMarket(t, "ubtc")

	// 5 * 100 = 500 below the 1000 minimum
	if _, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-1", "ubtc", si(5), false); err != types.ErrPositionValueBelowMin {
		t.Errorf("expected ErrPositionValueBelowMin, got %v", err)
	}
	// 600 * 100 = 60000 above the 50000 maximum
	if _, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-1", "ubtc", si(600), false); err != types.ErrPositionValueAboveMax {
		t.Errorf("expected ErrPositionValueAboveMax, got %v", err)
	}
	if _, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-1", "ubtc", si(100), false); err != nil {
		t.Errorf("expected in-bounds order to succeed, got %v", err)
	}
}

// TestExecutePerpOrderOICaps tests open interest value caps
func TestExecutePerpOrderOICaps(t *testing.T) {
	t.Run("long cap", func(t *testing.T) {
		f := setupPerpsKeeper(t)
		f.params.market.MaxLongOIValue = math.NewInt(50_000)
		f.initMarket(t, "ubtc")

		if _, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-1", "ubtc", si(400), false); err != nil {
			t.Fatalf("open under cap: %v", err)
		}
		if _, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-2", "ubtc", si(200), false); err != types.ErrLongOICapExceeded {
			t.Errorf("expected ErrLongOICapExceeded, got %v", err)
		}
		// the failed order must leave the market untouched
		ms := f.keeper.GetMarketState(f.ctx, "ubtc")
		if !ms.LongOI.Equal(math.NewInt(400)) {
			t.Errorf("expected long OI 400 after rejection, got %s", ms.LongOI)
		}
		// shrinking the long side is always allowed
		if _, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-1", "ubtc", si(-100), false); err != nil {
			t.Errorf("expected reduce to succeed, got %v", err)
		}
	})

	t.Run("short cap", func(t *testing.T) {
		f := setupPerpsKeeper(t)
		f.params.market.MaxShortOIValue = math.NewInt(50_000)
		f.initMarket(t, "ubtc")

		if _, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-1", "ubtc", si(-600), false); err != types.ErrShortOICapExceeded {
			t.Errorf("expected ErrShortOICapExceeded, got %v", err)
		}
	})

	t.Run("net cap", func(t *testing.T) {
		f := setupPerpsKeeper(t)
		f.params.market.MaxNetOIValue = math.NewInt(30_000)
		f.initMarket(t, "ubtc")

		if _, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-1", "ubtc", si(400), false); err != types.ErrNetOICapExceeded {
			t.Errorf("expected ErrNetOICapExceeded, got %v", err)
		}
		// opposing flow reduces imbalance and passes even near the cap
		if _, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-1", "ubtc", si(250), false); err != nil {
			t.Fatalf("open long: %v", err)
		}
		if _, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-2", "ubtc", si(-250), false); err != nil {
			t.Errorf("expected skew-reducing short to succeed, got %v", err)
		}
	})
}

// TestExecutePerpOrderMaxPositions tests the per-account position limit
func TestExecutePerpOrderMaxPositions(t *testing.T) {
	f := setupPerpsKeeper(t)
	f.params.vault.MaxPositions = 1
	f.oracle.prices["ueth"] = dec("10")
	f.initMarket(t, "ubtc")
	f.initMarket(t, "ueth")

	if _, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-1", "ubtc", si(100), false); err != nil {
		t.Fatalf("first market: %v", err)
	}
	if _, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-1", "ueth", si(100), false); err != types.ErrMaxPositionsReached {
		t.Errorf("expected ErrMaxPositionsReached, got %v", err)
	}
	// the limit is per account
	if _, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-2", "ueth", si(100), false); err != nil {
		t.Errorf("expected other account to open, got %v", err)
	}
	// increasing an existing position does not consume a slot
	if _, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-1", "ubtc", si(50), false); err != nil {
		t.Errorf("expected increase to succeed, got %v", err)
	}
}

// TestTradeFee tests fee rounding and discounts
func TestTradeFee(t *testing.T) {
	tests := []struct {
		name     string
		size     int64
		exec     string
		rate     string
		discount math.LegacyDec
		want     int64
	}{
		{"rounds up", 400, "100.08", "0.001", math.LegacyZeroDec(), 41},
		{"exact", 1000, "100", "0.001", math.LegacyZeroDec(), 100},
		{"half discount", 1000, "100.05", "0.001", dec("0.5"), 51},
		{"full discount", 1000, "100.05", "0.001", dec("1"), 0},
		{"discount clamped above one", 1000, "100.05", "0.001", dec("2"), 0},
		{"negative discount ignored", 1000, "100", "0.001", dec("-0.5"), 100},
		{"nil discount", 1000, "100", "0.001", math.LegacyDec{}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee, err := tradeFee(math.NewInt(tt.size), dec(tt.exec), dec(tt.rate), tt.discount)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !fee.Equal(math.NewInt(tt.want)) {
				t.Errorf("expected fee %d, got %s", tt.want, fee)
			}
		})
	}
}

// TestSplitOrder tests partitioning an order into close and open legs
func TestSplitOrder(t *testing.T) {
	pos := &types.Position{Size: si(1000)}

	tests := []struct {
		name      string
		pos       *types.Position
		order     int64
		wantClose int64
		wantOpen  int64
	}{
		{"no position", nil, 500, 0, 500},
		{"same direction", pos, 500, 0, 500},
		{"partial close", pos, -400, 400, 0},
		{"exact close", pos, -1000, 1000, 0},
		{"flip", pos, -2500, 1000, -1500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			closeAmt, openAmt, err := splitOrder(tt.pos, si(tt.order))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !closeAmt.Equal(si(tt.wantClose)) {
				t.Errorf("expected close %d, got %s", tt.wantClose, closeAmt)
			}
			if !openAmt.Equal(si(tt.wantOpen)) {
				t.Errorf("expected open %d, got %s", tt.wantOpen, openAmt)
			}
		})
	}
}

// TestUnrealizedPnl tests the close-now valuation of an open position
func TestUnrealizedPnl(t *testing.T) {
	f := setupPerpsKeeper(t)
	f.initMarket(t, "ubtc")

	if _, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-1", "ubtc", si(1000), false); err != nil {
		t.Fatalf("open: %v", err)
	}

	// at the entry oracle price the mark-to-market is exactly zero
	pnl, err := f.keeper.UnrealizedPnl(f.ctx, "acct-1", "ubtc")
	if err != nil {
		t.Fatalf("unrealized pnl: %v", err)
	}
	if !pnl.PricePnl.IsZero() {
		t.Errorf("expected zero price pnl at entry, got %s", pnl.PricePnl)
	}

	f.oracle.prices["ubtc"] = dec("110")
	pnl, err = f.keeper.UnrealizedPnl(f.ctx, "acct-1", "ubtc")
	if err != nil {
		t.Fatalf("unrealized pnl: %v", err)
	}
	// close exec 110.055, entry 100.05: (110.055 - 100.05) * 1000 = 10005
	if !pnl.PricePnl.Equal(sd(t, "10005")) {
		t.Errorf("expected price pnl 10005, got %s", pnl.PricePnl)
	}

	// the market aggregate must agree with the single position
	ms := f.keeper.GetMarketState(f.ctx, "ubtc")
	total, err := MarketTotalPnl(ms, dec("110"), f.ctx.BlockTime().Unix())
	if err != nil {
		t.Fatalf("market total pnl: %v", err)
	}
	if !total.Equal(sd(t, "10005")) {
		t.Errorf("expected market total pnl 10005, got %s", total)
	}
}

// TestRecordRealizedOverflowSurfaces tests that an accumulator whose
// magnitude would exceed the decimal bound rejects the fold instead of
// silently dropping it.
func TestRecordRealizedOverflowSurfaces(t *testing.T) {
	f := setupPerpsKeeper(t)

	hugePnl, err := smath.NewSignedDec(math.LegacyNewDecFromBigInt(new(big.Int).Lsh(big.NewInt(1), 255)), false)
	if err != nil {
		t.Fatalf("huge pnl: %v", err)
	}
	f.keeper.SetRealizedPnl(f.ctx, &types.RealizedPnl{
		AccountID:      "acct-1",
		Denom:          "ubtc",
		PricePnl:       hugePnl,
		AccruedFunding: smath.ZeroSignedDec(),
		Fees:           math.ZeroInt(),
		Net:            smath.ZeroSignedDec(),
	})

	err = f.keeper.recordRealized(f.ctx, "acct-1", "ubtc", &types.PositionPnl{
		ExecPrice:      math.LegacyOneDec(),
		PricePnl:       hugePnl,
		AccruedFunding: smath.ZeroSignedDec(),
		OpeningFee:     math.ZeroInt(),
		ClosingFee:     math.ZeroInt(),
		Realized:       smath.ZeroSignedDec(),
	})
	if !errors.Is(err, smath.ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}

	// the stored accumulator must be untouched
	acc := f.keeper.GetRealizedPnl(f.ctx, "acct-1", "ubtc")
	if !acc.PricePnl.Equal(hugePnl) {
		t.Errorf("expected accumulator unchanged, got %s", acc.PricePnl)
	}
}
