package keeper

import (
	"testing"
	"time"

	"cosmossdk.io/math"

	"github.com/openalpha/credit-engine/x/perps/types"
)

// testMarket builds a market with max funding velocity 3/day and skew scale
// 1e6, matching the fixture params
func testMarket(longOI, shortOI, lastUpdated int64) *types.MarketState {
	ms := types.NewMarketState("ubtc", math.LegacyNewDec(3), math.NewInt(1_000_000), lastUpdated)
	ms.LongOI = math.NewInt(longOI)
	ms.ShortOI = math.NewInt(shortOI)
	return ms
}

// TestFundingSnapshot tests rate drift and accrual over one window
func TestFundingSnapshot(t *testing.T) {
	tests := []struct {
		name        string
		longOI      int64
		shortOI     int64
		elapsed     int64
		wantRate    string
		wantAccrued string
	}{
		{"flat market", 0, 0, 86400, "0", "0"},
		{"long skew half scale", 500_000, 0, 86400, "1.5", "75"},
		{"short skew half scale", 0, 500_000, 86400, "-1.5", "-75"},
		{"velocity clamped at full scale", 3_000_000, 0, 86400, "3", "150"},
		{"half day", 500_000, 0, 43200, "0.75", "18.75"},
		{"no time elapsed", 500_000, 0, 0, "0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := testMarket(tt.longOI, tt.shortOI, 0)
			rate, accrued, err := fundingSnapshot(ms, math.LegacyNewDec(100), tt.elapsed)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !rate.Equal(sd(t, tt.wantRate)) {
				t.Errorf("expected rate %s, got %s", tt.wantRate, rate)
			}
			if !accrued.Equal(sd(t, tt.wantAccrued)) {
				t.Errorf("expected accrued %s, got %s", tt.wantAccrued, accrued)
			}
		})
	}
}

// TestFundingSnapshotCompounds tests that consecutive windows carry the rate
func TestFundingSnapshotCompounds(t *testing.T) {
	ms := testMarket(500_000, 0, 0)
	price := math.LegacyNewDec(100)

	rate, accrued, err := fundingSnapshot(ms, price, 86400)
	if err != nil {
		t.Fatalf("first window: %v", err)
	}
	ms.Funding.LastFundingRate = rate
	ms.Funding.LastFundingAccruedPerUnit = accrued
	ms.LastUpdated = 86400

	rate, accrued, err = fundingSnapshot(ms, price, 2*86400)
	if err != nil {
		t.Fatalf("second window: %v", err)
	}
	// rate keeps drifting: 1.5 -> 3; accrual adds avg(1.5, 3) * 100 = 225
	if !rate.Equal(sd(t, "3")) {
		t.Errorf("expected rate 3, got %s", rate)
	}
	if !accrued.Equal(sd(t, "300")) {
		t.Errorf("expected accrued 300, got %s", accrued)
	}
}

// TestPositionAccruedFunding tests the sign convention: longs pay while the
// accumulator rises
func TestPositionAccruedFunding(t *testing.T) {
	tests := []struct {
		name     string
		size     int64
		entryAcc string
		accNow   string
		want     string
	}{
		{"long pays", 10, "0", "75", "-750"},
		{"short earns", -10, "0", "75", "750"},
		{"partial window", 10, "50", "75", "-250"},
		{"settled", 10, "75", "75", "0"},
		{"falling accumulator pays shorts", -10, "0", "-75", "-750"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := &types.Position{Size: si(tt.size), EntryAccruedFunding: sd(t, tt.entryAcc)}
			got, err := PositionAccruedFunding(pos, sd(t, tt.accNow))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(sd(t, tt.want)) {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

// TestRefreshFundingEndBlocker tests the end-of-block funding sweep and that
// a later close settles the accrued amount
func TestRefreshFundingEndBlocker(t *testing.T) {
	f := setupPerpsKeeper(t)
	f.initMarket(t, "ubtc")

	if _, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-1", "ubtc", si(1000), false); err != nil {
		t.Fatalf("open: %v", err)
	}

	f.advance(24 * time.Hour)
	if err := f.keeper.EndBlocker(f.ctx); err != nil {
		t.Fatalf("end blocker: %v", err)
	}

	ms := f.keeper.GetMarketState(f.ctx, "ubtc")
	// skew 1000 of 1e6 scale: rate reaches 0.003, accrued avg(0, 0.003) * 100
	if !ms.Funding.LastFundingRate.Equal(sd(t, "0.003")) {
		t.Errorf("expected rate 0.003, got %s", ms.Funding.LastFundingRate)
	}
	if !ms.Funding.LastFundingAccruedPerUnit.Equal(sd(t, "0.15")) {
		t.Errorf("expected accrued 0.15, got %s", ms.Funding.LastFundingAccruedPerUnit)
	}
	if ms.LastUpdated != f.ctx.BlockTime().Unix() {
		t.Errorf("expected last updated %d, got %d", f.ctx.BlockTime().Unix(), ms.LastUpdated)
	}

	result, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-1", "ubtc", si(-1000), false)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	// long held through a rising accumulator: 1000 * (0 - 0.15) = -150
	if !result.AccruedFunding.Equal(sd(t, "-150")) {
		t.Errorf("expected funding -150, got %s", result.AccruedFunding)
	}
	if !result.Realized.Equal(sd(t, "-251")) {
		t.Errorf("expected realized -251, got %s", result.Realized)
	}
}

// TestUpdateFundingSameBlock tests that repeated updates in one block are no-ops
func TestUpdateFundingSameBlock(t *testing.T) {
	f := setupPerpsKeeper(t)
	f.initMarket(t, "ubtc")

	if _, err := f.keeper.ExecutePerpOrder(f.ctx, "acct-1", "ubtc", si(1000), false); err != nil {
		t.Fatalf("open: %v", err)
	}
	ms := f.keeper.GetMarketState(f.ctx, "ubtc")
	before := ms.Funding.LastFundingAccruedPerUnit
	if err := f.keeper.UpdateFunding(f.ctx, ms); err != nil {
		t.Fatalf("update funding: %v", err)
	}
	if !ms.Funding.LastFundingAccruedPerUnit.Equal(before) {
		t.Errorf("expected accumulator unchanged, got %s", ms.Funding.LastFundingAccruedPerUnit)
	}
}

// TestExecutionPrice tests the skew premium formula
func TestExecutionPrice(t *testing.T) {
	tests := []struct {
		name  string
		skew  int64
		order int64
		want  string
	}{
		{"flat book pays half own impact", 0, 1000, "100.05"},
		{"deepening long skew", 1000, 1000, "100.15"},
		{"rebalancing order gets discount", 1000, -400, "100.08"},
		{"negative skew discounts longs", -10_000, 1000, "99.05"},
		{"deep negative skew floors at zero", -3_000_000, 1000, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExecutionPrice(math.LegacyNewDec(100), si(tt.skew), math.NewInt(1_000_000), si(tt.order))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(dec(tt.want)) {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}

	if _, err := ExecutionPrice(math.LegacyNewDec(100), si(0), math.ZeroInt(), si(1000)); err == nil {
		t.Error("expected error for zero skew scale")
	}
}
