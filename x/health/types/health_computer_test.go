package types

import (
	"errors"
	"testing"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/credit-engine/pkg/smath"
)

func dec(s string) math.LegacyDec {
	return math.LegacyMustNewDecFromStr(s)
}

func sd(tb testing.TB, s string) smath.SignedDec {
	tb.Helper()
	v, err := smath.SignedDecFromString(s)
	if err != nil {
		tb.Fatalf("parse signed dec %q: %v", s, err)
	}
	return v
}

func si(v int64) smath.SignedInt {
	return smath.SignedIntFromInt64(v)
}

// testComputer returns a computer with the standard price and params
// fixture: uusdc at 1, uatom at 10, ubtc at 100, ujunk priced but unlisted.
func testComputer() *HealthComputer {
	c := NewHealthComputer(AccountKindDefault, "uusdc")
	c.Prices["uusdc"] = dec("1")
	c.Prices["uatom"] = dec("10")
	c.Prices["ubtc"] = dec("100")
	c.Prices["ujunk"] = dec("2")
	c.AssetParams["uusdc"] = AssetParams{Denom: "uusdc", MaxLTV: dec("0.8"), LiquidationThreshold: dec("0.85"), Whitelisted: true}
	c.AssetParams["uatom"] = AssetParams{Denom: "uatom", MaxLTV: dec("0.7"), LiquidationThreshold: dec("0.75"), Whitelisted: true}
	c.AssetParams["ubtc"] = AssetParams{Denom: "ubtc", MaxLTV: dec("0.6"), LiquidationThreshold: dec("0.65"), Whitelisted: true}
	c.PerpParams["ubtc"] = PerpHealthParams{Denom: "ubtc", MaxLTV: dec("0.5"), LiquidationThreshold: dec("0.6")}
	c.VaultConfigs["vault1"] = VaultHealthConfig{VaultDenom: "vault1", MaxLTV: dec("0.65"), LiquidationThreshold: dec("0.7"), Whitelisted: true}
	return c
}

// TestComputeEmptyAccount tests that an account with no holdings is healthy
// with undefined health factors.
func TestComputeEmptyAccount(t *testing.T) {
	h, err := testComputer().Compute()
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !h.TotalCollateralValue.IsZero() || !h.TotalDebtValue.IsZero() {
		t.Errorf("expected zero values, got collateral %s debt %s", h.TotalCollateralValue, h.TotalDebtValue)
	}
	if h.MaxLtvHealthFactor != nil || h.LiquidationHealthFactor != nil {
		t.Error("expected nil health factors with no debt")
	}
	if h.Liquidatable || h.AboveMaxLtv || h.HasPerps {
		t.Error("expected clean flags on empty account")
	}
	if !h.IsHealthy() {
		t.Error("expected empty account to be healthy")
	}
}

// TestComputeSpotCollateral tests valuation and weighting of deposits,
// lends, staked LP and vault positions against coin debt.
func TestComputeSpotCollateral(t *testing.T) {
	tests := []struct {
		name         string
		setup        func(c *HealthComputer)
		collateral   int64
		debt         int64
		maxAdj       int64
		liqAdj       int64
		maxHF        *string
		liqHF        *string
		above        bool
		liquidatable bool
	}{
		{
			name: "deposits without debt",
			setup: func(c *HealthComputer) {
				c.Deposits = sdk.NewCoins(sdk.NewInt64Coin("uatom", 1000))
			},
			collateral: 10000, maxAdj: 7000, liqAdj: 7500,
		},
		{
			name: "healthy debt",
			setup: func(c *HealthComputer) {
				c.Deposits = sdk.NewCoins(sdk.NewInt64Coin("uatom", 1000))
				c.Debts = sdk.NewCoins(sdk.NewInt64Coin("uusdc", 5000))
			},
			collateral: 10000, debt: 5000, maxAdj: 7000, liqAdj: 7500,
			maxHF: strp("1.4"), liqHF: strp("1.5"),
		},
		{
			name: "above max ltv but not liquidatable",
			setup: func(c *HealthComputer) {
				c.Deposits = sdk.NewCoins(sdk.NewInt64Coin("uatom", 1000))
				c.Debts = sdk.NewCoins(sdk.NewInt64Coin("uusdc", 7200))
			},
			collateral: 10000, debt: 7200, maxAdj: 7000, liqAdj: 7500,
			maxHF: strp("0.972222222222222222"), liqHF: strp("1.041666666666666666"),
			above: true,
		},
		{
			name: "liquidatable",
			setup: func(c *HealthComputer) {
				c.Deposits = sdk.NewCoins(sdk.NewInt64Coin("uatom", 1000))
				c.Debts = sdk.NewCoins(sdk.NewInt64Coin("uusdc", 8000))
			},
			collateral: 10000, debt: 8000, maxAdj: 7000, liqAdj: 7500,
			maxHF: strp("0.875"), liqHF: strp("0.9375"),
			above: true, liquidatable: true,
		},
		{
			name: "unlisted collateral counts at zero weight",
			setup: func(c *HealthComputer) {
				c.Deposits = sdk.NewCoins(sdk.NewInt64Coin("uatom", 1000), sdk.NewInt64Coin("ujunk", 500))
				c.Debts = sdk.NewCoins(sdk.NewInt64Coin("uusdc", 8000))
			},
			collateral: 11000, debt: 8000, maxAdj: 7000, liqAdj: 7500,
			maxHF: strp("0.875"), liqHF: strp("0.9375"),
			above: true, liquidatable: true,
		},
		{
			name: "lends and staked lp share asset weights",
			setup: func(c *HealthComputer) {
				c.Deposits = sdk.NewCoins(sdk.NewInt64Coin("uatom", 500))
				c.Lends = sdk.NewCoins(sdk.NewInt64Coin("uatom", 300))
				c.StakedLP = sdk.NewCoins(sdk.NewInt64Coin("uatom", 200))
				c.Debts = sdk.NewCoins(sdk.NewInt64Coin("uusdc", 5000))
			},
			collateral: 10000, debt: 5000, maxAdj: 7000, liqAdj: 7500,
			maxHF: strp("1.4"), liqHF: strp("1.5"),
		},
		{
			name: "vault position weighted by vault config",
			setup: func(c *HealthComputer) {
				c.Vaults = []VaultPosition{{VaultDenom: "vault1", UnderlyingDenom: "uatom", UnderlyingAmount: math.NewInt(100)}}
				c.Debts = sdk.NewCoins(sdk.NewInt64Coin("uusdc", 500))
			},
			collateral: 1000, debt: 500, maxAdj: 650, liqAdj: 700,
			maxHF: strp("1.3"), liqHF: strp("1.4"),
		},
		{
			name: "unknown vault counts at zero weight",
			setup: func(c *HealthComputer) {
				c.Vaults = []VaultPosition{{VaultDenom: "vaultX", UnderlyingDenom: "uatom", UnderlyingAmount: math.NewInt(100)}}
				c.Debts = sdk.NewCoins(sdk.NewInt64Coin("uusdc", 500))
			},
			collateral: 1000, debt: 500, maxAdj: 0, liqAdj: 0,
			maxHF: strp("0"), liqHF: strp("0"),
			above: true, liquidatable: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := testComputer()
			tc.setup(c)
			h, err := c.Compute()
			if err != nil {
				t.Fatalf("compute: %v", err)
			}
			if !h.TotalCollateralValue.Equal(math.NewInt(tc.collateral)) {
				t.Errorf("expected collateral %d, got %s", tc.collateral, h.TotalCollateralValue)
			}
			if !h.TotalDebtValue.Equal(math.NewInt(tc.debt)) {
				t.Errorf("expected debt %d, got %s", tc.debt, h.TotalDebtValue)
			}
			if !h.MaxLtvAdjustedCollateral.Equal(math.NewInt(tc.maxAdj)) {
				t.Errorf("expected max ltv adjusted %d, got %s", tc.maxAdj, h.MaxLtvAdjustedCollateral)
			}
			if !h.LiquidationThresholdAdjustedCollateral.Equal(math.NewInt(tc.liqAdj)) {
				t.Errorf("expected threshold adjusted %d, got %s", tc.liqAdj, h.LiquidationThresholdAdjustedCollateral)
			}
			checkHF(t, "max ltv", h.MaxLtvHealthFactor, tc.maxHF)
			checkHF(t, "liquidation", h.LiquidationHealthFactor, tc.liqHF)
			if h.AboveMaxLtv != tc.above {
				t.Errorf("expected above max ltv %v, got %v", tc.above, h.AboveMaxLtv)
			}
			if h.Liquidatable != tc.liquidatable {
				t.Errorf("expected liquidatable %v, got %v", tc.liquidatable, h.Liquidatable)
			}
		})
	}
}

func strp(s string) *string { return &s }

func checkHF(t *testing.T, name string, got *math.LegacyDec, want *string) {
	t.Helper()
	if want == nil {
		if got != nil {
			t.Errorf("expected nil %s health factor, got %s", name, got)
		}
		return
	}
	if got == nil {
		t.Errorf("expected %s health factor %s, got nil", name, *want)
		return
	}
	if !got.Equal(dec(*want)) {
		t.Errorf("expected %s health factor %s, got %s", name, *want, got)
	}
}

// TestComputePerps tests that unrealized profit joins the weighted
// collateral side floored and loss joins the debt side rounded up.
func TestComputePerps(t *testing.T) {
	t.Run("profit floored and weighted", func(t *testing.T) {
		c := testComputer()
		c.Debts = sdk.NewCoins(sdk.NewInt64Coin("uusdc", 100))
		c.Perps = []PerpSnapshot{{Denom: "ubtc", Size: si(100), Pnl: sd(t, "250.5")}}
		h, err := c.Compute()
		if err != nil {
			t.Fatalf("compute: %v", err)
		}
		if !h.PerpsPnlProfit.Equal(math.NewInt(250)) {
			t.Errorf("expected profit 250, got %s", h.PerpsPnlProfit)
		}
		if !h.TotalCollateralValue.Equal(math.NewInt(250)) {
			t.Errorf("expected collateral 250, got %s", h.TotalCollateralValue)
		}
		if !h.MaxLtvAdjustedCollateral.Equal(math.NewInt(125)) {
			t.Errorf("expected max ltv adjusted 125, got %s", h.MaxLtvAdjustedCollateral)
		}
		if !h.LiquidationThresholdAdjustedCollateral.Equal(math.NewInt(150)) {
			t.Errorf("expected threshold adjusted 150, got %s", h.LiquidationThresholdAdjustedCollateral)
		}
		if !h.HasPerps {
			t.Error("expected has perps")
		}
		if h.MaxLtvHealthFactor == nil || !h.MaxLtvHealthFactor.Equal(dec("1.25")) {
			t.Errorf("expected max ltv health factor 1.25, got %v", h.MaxLtvHealthFactor)
		}
	})

	t.Run("loss ceiled into debt", func(t *testing.T) {
		c := testComputer()
		c.Perps = []PerpSnapshot{{Denom: "ubtc", Size: si(100), Pnl: sd(t, "-250.5")}}
		h, err := c.Compute()
		if err != nil {
			t.Fatalf("compute: %v", err)
		}
		if !h.PerpsPnlLoss.Equal(math.NewInt(251)) {
			t.Errorf("expected loss 251, got %s", h.PerpsPnlLoss)
		}
		if !h.TotalDebtValue.Equal(math.NewInt(251)) {
			t.Errorf("expected debt 251, got %s", h.TotalDebtValue)
		}
		if !h.Liquidatable {
			t.Error("expected bare loss to be liquidatable")
		}
	})

	t.Run("zero pnl needs no base price", func(t *testing.T) {
		c := testComputer()
		delete(c.Prices, "uusdc")
		c.Perps = []PerpSnapshot{{Denom: "ubtc", Size: si(100), Pnl: smath.ZeroSignedDec()}}
		h, err := c.Compute()
		if err != nil {
			t.Fatalf("compute: %v", err)
		}
		if !h.HasPerps {
			t.Error("expected has perps")
		}
		if !h.TotalDebtValue.IsZero() {
			t.Errorf("expected zero debt, got %s", h.TotalDebtValue)
		}
	})

	t.Run("usdc override replaces max ltv weight", func(t *testing.T) {
		c := testComputer()
		override := dec("0.55")
		c.PerpParams["ubtc"] = PerpHealthParams{Denom: "ubtc", MaxLTV: dec("0.5"), LiquidationThreshold: dec("0.6"), MaxLTVUsdc: &override}
		c.Debts = sdk.NewCoins(sdk.NewInt64Coin("uusdc", 100))
		c.Perps = []PerpSnapshot{{Denom: "ubtc", Size: si(100), Pnl: sd(t, "1000")}}
		h, err := c.Compute()
		if err != nil {
			t.Fatalf("compute: %v", err)
		}
		if !h.MaxLtvAdjustedCollateral.Equal(math.NewInt(550)) {
			t.Errorf("expected max ltv adjusted 550, got %s", h.MaxLtvAdjustedCollateral)
		}
		if !h.LiquidationThresholdAdjustedCollateral.Equal(math.NewInt(600)) {
			t.Errorf("expected threshold adjusted 600, got %s", h.LiquidationThresholdAdjustedCollateral)
		}
	})

	t.Run("profit without perp params fails", func(t *testing.T) {
		c := testComputer()
		delete(c.PerpParams, "ubtc")
		c.Perps = []PerpSnapshot{{Denom: "ubtc", Size: si(100), Pnl: sd(t, "10")}}
		if _, err := c.Compute(); !errors.Is(err, ErrMissingPerpParams) {
			t.Errorf("expected ErrMissingPerpParams, got %v", err)
		}
	})

	t.Run("loss without perp params passes", func(t *testing.T) {
		c := testComputer()
		delete(c.PerpParams, "ubtc")
		c.Perps = []PerpSnapshot{{Denom: "ubtc", Size: si(100), Pnl: sd(t, "-100")}}
		h, err := c.Compute()
		if err != nil {
			t.Fatalf("compute: %v", err)
		}
		if !h.TotalDebtValue.Equal(math.NewInt(100)) {
			t.Errorf("expected debt 100, got %s", h.TotalDebtValue)
		}
	})

	t.Run("missing price fails", func(t *testing.T) {
		c := testComputer()
		c.Deposits = sdk.NewCoins(sdk.NewInt64Coin("unknown", 10))
		if _, err := c.Compute(); !errors.Is(err, ErrMissingPrice) {
			t.Errorf("expected ErrMissingPrice, got %v", err)
		}
	})
}

// TestLiquidationPriceAsset tests the linear solve for spot collateral.
func TestLiquidationPriceAsset(t *testing.T) {
	t.Run("single collateral", func(t *testing.T) {
		c := testComputer()
		c.Deposits = sdk.NewCoins(sdk.NewInt64Coin("uatom", 1000))
		c.Debts = sdk.NewCoins(sdk.NewInt64Coin("uusdc", 6000))
		p, err := c.LiquidationPrice(LiquidationPriceAsset, "uatom")
		if err != nil {
			t.Fatalf("liquidation price: %v", err)
		}
		if p == nil || !p.Equal(dec("8")) {
			t.Errorf("expected liquidation price 8, got %v", p)
		}
	})

	t.Run("other collateral shifts the solve", func(t *testing.T) {
		c := testComputer()
		c.Deposits = sdk.NewCoins(sdk.NewInt64Coin("uatom", 1000), sdk.NewInt64Coin("uusdc", 2000))
		c.Debts = sdk.NewCoins(sdk.NewInt64Coin("uusdc", 6000))
		p, err := c.LiquidationPrice(LiquidationPriceAsset, "uatom")
		if err != nil {
			t.Fatalf("liquidation price: %v", err)
		}
		if p == nil || !p.Equal(dec("5.733333333333333333")) {
			t.Errorf("expected liquidation price 5.733333333333333333, got %v", p)
		}
	})

	t.Run("no debt returns nil", func(t *testing.T) {
		c := testComputer()
		c.Deposits = sdk.NewCoins(sdk.NewInt64Coin("uatom", 1000))
		p, err := c.LiquidationPrice(LiquidationPriceAsset, "uatom")
		if err != nil {
			t.Fatalf("liquidation price: %v", err)
		}
		if p != nil {
			t.Errorf("expected nil price with no debt, got %s", p)
		}
	})

	t.Run("already liquidatable returns zero", func(t *testing.T) {
		c := testComputer()
		c.Deposits = sdk.NewCoins(sdk.NewInt64Coin("uatom", 1000))
		c.Debts = sdk.NewCoins(sdk.NewInt64Coin("uusdc", 8000))
		p, err := c.LiquidationPrice(LiquidationPriceAsset, "uatom")
		if err != nil {
			t.Fatalf("liquidation price: %v", err)
		}
		if p == nil || !p.IsZero() {
			t.Errorf("expected zero price, got %v", p)
		}
	})

	t.Run("unheld denom", func(t *testing.T) {
		c := testComputer()
		c.Deposits = sdk.NewCoins(sdk.NewInt64Coin("uatom", 1000))
		c.Debts = sdk.NewCoins(sdk.NewInt64Coin("uusdc", 6000))
		if _, err := c.LiquidationPrice(LiquidationPriceAsset, "ubtc"); !errors.Is(err, ErrDenomNotHeld) {
			t.Errorf("expected ErrDenomNotHeld, got %v", err)
		}
	})

	t.Run("zero weight collateral has no liquidation price", func(t *testing.T) {
		c := testComputer()
		c.Deposits = sdk.NewCoins(sdk.NewInt64Coin("uatom", 1000), sdk.NewInt64Coin("ujunk", 500))
		c.Debts = sdk.NewCoins(sdk.NewInt64Coin("uusdc", 6000))
		p, err := c.LiquidationPrice(LiquidationPriceAsset, "ujunk")
		if err != nil {
			t.Fatalf("liquidation price: %v", err)
		}
		if p != nil {
			t.Errorf("expected nil price for zero weight collateral, got %s", p)
		}
	})
}

// TestLiquidationPriceDebt tests the solve for a borrowed asset's price.
func TestLiquidationPriceDebt(t *testing.T) {
	c := testComputer()
	c.Deposits = sdk.NewCoins(sdk.NewInt64Coin("uatom", 1000))
	c.Debts = sdk.NewCoins(sdk.NewInt64Coin("ubtc", 50))
	p, err := c.LiquidationPrice(LiquidationPriceDebt, "ubtc")
	if err != nil {
		t.Fatalf("liquidation price: %v", err)
	}
	if p == nil || !p.Equal(dec("150")) {
		t.Errorf("expected liquidation price 150, got %v", p)
	}

	if _, err := c.LiquidationPrice(LiquidationPriceDebt, "uusdc"); !errors.Is(err, ErrDebtNotHeld) {
		t.Errorf("expected ErrDebtNotHeld, got %v", err)
	}
}

// TestLiquidationPricePerp tests the close-now solve in both pnl regions
// and on both sides of the market.
func TestLiquidationPricePerp(t *testing.T) {
	tests := []struct {
		name     string
		deposits sdk.Coins
		debts    sdk.Coins
		size     int64
		pnl      string
		want     string
	}{
		{
			name:     "long crossing in the loss region",
			deposits: sdk.NewCoins(sdk.NewInt64Coin("uusdc", 2000)),
			size:     100,
			pnl:      "-1000",
			want:     "93",
		},
		{
			name:     "long crossing in the profit region",
			deposits: sdk.NewCoins(sdk.NewInt64Coin("uusdc", 100)),
			debts:    sdk.NewCoins(sdk.NewInt64Coin("uusdc", 385)),
			size:     100,
			pnl:      "2000",
			want:     "85",
		},
		{
			name:     "short crossing in the loss region",
			deposits: sdk.NewCoins(sdk.NewInt64Coin("uusdc", 1500)),
			size:     -100,
			pnl:      "-500",
			want:     "107.75",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := testComputer()
			c.Deposits = tc.deposits
			c.Debts = tc.debts
			c.Perps = []PerpSnapshot{{Denom: "ubtc", Size: si(tc.size), Pnl: sd(t, tc.pnl)}}
			p, err := c.LiquidationPrice(LiquidationPricePerp, "ubtc")
			if err != nil {
				t.Fatalf("liquidation price: %v", err)
			}
			if p == nil || !p.Equal(dec(tc.want)) {
				t.Errorf("expected liquidation price %s, got %v", tc.want, p)
			}
		})
	}

	t.Run("no position", func(t *testing.T) {
		c := testComputer()
		c.Deposits = sdk.NewCoins(sdk.NewInt64Coin("uatom", 100))
		c.Debts = sdk.NewCoins(sdk.NewInt64Coin("uusdc", 100))
		if _, err := c.LiquidationPrice(LiquidationPricePerp, "ubtc"); !errors.Is(err, ErrPerpNotHeld) {
			t.Errorf("expected ErrPerpNotHeld, got %v", err)
		}
	})
}

// TestMaxWithdrawEstimate tests the withdrawable amount under max LTV.
func TestMaxWithdrawEstimate(t *testing.T) {
	tests := []struct {
		name  string
		setup func(c *HealthComputer)
		denom string
		want  int64
	}{
		{
			name: "bounded by headroom",
			setup: func(c *HealthComputer) {
				c.Deposits = sdk.NewCoins(sdk.NewInt64Coin("uatom", 1000))
				c.Debts = sdk.NewCoins(sdk.NewInt64Coin("uusdc", 5000))
			},
			denom: "uatom",
			want:  285,
		},
		{
			name: "no debt frees the full balance",
			setup: func(c *HealthComputer) {
				c.Deposits = sdk.NewCoins(sdk.NewInt64Coin("uatom", 1000))
			},
			denom: "uatom",
			want:  1000,
		},
		{
			name: "zero weight collateral is always free",
			setup: func(c *HealthComputer) {
				c.Deposits = sdk.NewCoins(sdk.NewInt64Coin("uatom", 1000), sdk.NewInt64Coin("ujunk", 500))
				c.Debts = sdk.NewCoins(sdk.NewInt64Coin("uusdc", 5000))
			},
			denom: "ujunk",
			want:  500,
		},
		{
			name: "no headroom",
			setup: func(c *HealthComputer) {
				c.Deposits = sdk.NewCoins(sdk.NewInt64Coin("uatom", 1000))
				c.Debts = sdk.NewCoins(sdk.NewInt64Coin("uusdc", 7000))
			},
			denom: "uatom",
			want:  0,
		},
		{
			name: "unheld denom",
			setup: func(c *HealthComputer) {
				c.Deposits = sdk.NewCoins(sdk.NewInt64Coin("uatom", 1000))
			},
			denom: "ubtc",
			want:  0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := testComputer()
			tc.setup(c)
			got, err := c.MaxWithdrawEstimate(tc.denom)
			if err != nil {
				t.Fatalf("max withdraw: %v", err)
			}
			if !got.Equal(math.NewInt(tc.want)) {
				t.Errorf("expected %d, got %s", tc.want, got)
			}
		})
	}
}

// TestMaxBorrowEstimate tests the borrowable amount for both targets.
func TestMaxBorrowEstimate(t *testing.T) {
	c := testComputer()
	c.Deposits = sdk.NewCoins(sdk.NewInt64Coin("uatom", 1000))

	tests := []struct {
		name   string
		denom  string
		target BorrowTarget
		want   int64
	}{
		{name: "wallet target", denom: "uusdc", target: BorrowTargetWallet, want: 7000},
		{name: "account target keeps collateral weight", denom: "uusdc", target: BorrowTargetAccount, want: 35000},
		{name: "account target on heavier asset", denom: "uatom", target: BorrowTargetAccount, want: 2333},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := c.MaxBorrowEstimate(tc.denom, tc.target)
			if err != nil {
				t.Fatalf("max borrow: %v", err)
			}
			if !got.Equal(math.NewInt(tc.want)) {
				t.Errorf("expected %d, got %s", tc.want, got)
			}
		})
	}

	t.Run("no headroom", func(t *testing.T) {
		over := testComputer()
		over.Deposits = sdk.NewCoins(sdk.NewInt64Coin("uatom", 1000))
		over.Debts = sdk.NewCoins(sdk.NewInt64Coin("uusdc", 7000))
		got, err := over.MaxBorrowEstimate("uusdc", BorrowTargetWallet)
		if err != nil {
			t.Fatalf("max borrow: %v", err)
		}
		if !got.IsZero() {
			t.Errorf("expected 0, got %s", got)
		}
	})
}

// TestMaxSwapEstimate tests the swappable amount across swap kinds.
func TestMaxSwapEstimate(t *testing.T) {
	t.Run("upgrade swap frees the full balance", func(t *testing.T) {
		c := testComputer()
		c.Deposits = sdk.NewCoins(sdk.NewInt64Coin("uatom", 1000))
		c.Debts = sdk.NewCoins(sdk.NewInt64Coin("uusdc", 5000))
		got, err := c.MaxSwapEstimate("uatom", "uusdc", SwapDefault, false)
		if err != nil {
			t.Fatalf("max swap: %v", err)
		}
		if !got.Equal(math.NewInt(1000)) {
			t.Errorf("expected 1000, got %s", got)
		}
	})

	t.Run("downgrade swap bounded by headroom", func(t *testing.T) {
		c := testComputer()
		c.Deposits = sdk.NewCoins(sdk.NewInt64Coin("uatom", 1000))
		c.Debts = sdk.NewCoins(sdk.NewInt64Coin("uusdc", 5000))
		got, err := c.MaxSwapEstimate("uatom", "ujunk", SwapDefault, false)
		if err != nil {
			t.Fatalf("max swap: %v", err)
		}
		if !got.Equal(math.NewInt(285)) {
			t.Errorf("expected 285, got %s", got)
		}
	})

	t.Run("repaying debt frees the full balance", func(t *testing.T) {
		c := testComputer()
		c.Deposits = sdk.NewCoins(sdk.NewInt64Coin("uatom", 1000))
		c.Debts = sdk.NewCoins(sdk.NewInt64Coin("uusdc", 7000))
		got, err := c.MaxSwapEstimate("uatom", "uusdc", SwapDefault, true)
		if err != nil {
			t.Fatalf("max swap: %v", err)
		}
		if !got.Equal(math.NewInt(1000)) {
			t.Errorf("expected 1000, got %s", got)
		}
	})

	t.Run("margin swap adds borrowed input", func(t *testing.T) {
		c := testComputer()
		c.Deposits = sdk.NewCoins(sdk.NewInt64Coin("uusdc", 1000))
		got, err := c.MaxSwapEstimate("uusdc", "uatom", SwapMargin, false)
		if err != nil {
			t.Fatalf("max swap: %v", err)
		}
		if !got.Equal(math.NewInt(3333)) {
			t.Errorf("expected 3333, got %s", got)
		}
	})
}
