package keeper

import (
	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/credit-engine/x/health/types"
)

// BuildComputer gathers one account's holdings, prices and risk params into
// a self-contained computer under the given pricing kind.
func (k *Keeper) BuildComputer(ctx sdk.Context, accountID string, pricing types.PricingKind) (*types.HealthComputer, error) {
	c := types.NewHealthComputer(k.credit.AccountKind(ctx, accountID), k.perps.BaseDenom())

	c.Deposits = k.credit.AccountBalances(ctx, accountID)
	lends, err := k.credit.AccountLends(ctx, accountID)
	if err != nil {
		return nil, err
	}
	c.Lends = lends
	c.StakedLP = k.credit.AccountStakedLP(ctx, accountID)
	debts, err := k.credit.AccountDebts(ctx, accountID)
	if err != nil {
		return nil, err
	}
	c.Debts = debts
	vaults, err := k.credit.AccountVaultPositions(ctx, accountID)
	if err != nil {
		return nil, err
	}
	c.Vaults = vaults

	for _, pos := range k.perps.GetAccountPositions(ctx, accountID) {
		pnl, err := k.perps.UnrealizedPnl(ctx, accountID, pos.Denom)
		if err != nil {
			return nil, err
		}
		c.Perps = append(c.Perps, types.PerpSnapshot{
			Denom: pos.Denom,
			Size:  pos.Size,
			Pnl:   pnl.Realized,
		})
	}

	for _, coins := range []sdk.Coins{c.Deposits, c.Lends, c.StakedLP, c.Debts} {
		for _, coin := range coins {
			if err := k.loadAsset(ctx, c, coin.Denom, pricing); err != nil {
				return nil, err
			}
		}
	}
	for _, vp := range c.Vaults {
		if err := k.loadPrice(ctx, c, vp.UnderlyingDenom, pricing); err != nil {
			return nil, err
		}
		if cfg, ok := k.params.VaultHealthConfig(ctx, vp.VaultDenom); ok {
			c.VaultConfigs[vp.VaultDenom] = cfg
		}
	}
	if len(c.Perps) > 0 {
		if err := k.loadPrice(ctx, c, c.BaseDenom, pricing); err != nil {
			return nil, err
		}
		for _, p := range c.Perps {
			if err := k.loadPrice(ctx, c, p.Denom, pricing); err != nil {
				return nil, err
			}
			if pp, ok := k.params.PerpHealthParams(ctx, p.Denom); ok {
				c.PerpParams[p.Denom] = pp
			}
		}
	}
	return c, nil
}

func (k *Keeper) loadAsset(ctx sdk.Context, c *types.HealthComputer, denom string, pricing types.PricingKind) error {
	if err := k.loadPrice(ctx, c, denom, pricing); err != nil {
		return err
	}
	if _, ok := c.AssetParams[denom]; ok {
		return nil
	}
	if params, ok := k.params.AssetParams(ctx, denom); ok {
		c.AssetParams[denom] = params
	}
	return nil
}

func (k *Keeper) loadPrice(ctx sdk.Context, c *types.HealthComputer, denom string, pricing types.PricingKind) error {
	if _, ok := c.Prices[denom]; ok {
		return nil
	}
	var price math.LegacyDec
	var err error
	if pricing == types.PricingLiquidation {
		price, err = k.oracle.GetLiquidationPrice(ctx, denom)
	} else {
		price, err = k.oracle.GetPrice(ctx, denom)
	}
	if err != nil {
		return err
	}
	c.Prices[denom] = price
	return nil
}

// ============ Queries ============

// HealthValues computes the account's current health state.
func (k *Keeper) HealthValues(ctx sdk.Context, accountID string, pricing types.PricingKind) (*types.HealthValues, error) {
	c, err := k.BuildComputer(ctx, accountID, pricing)
	if err != nil {
		return nil, err
	}
	return c.Compute()
}

// LiquidationPrice estimates the price of one holding at which the account
// becomes liquidatable. Liquidation math always runs on the liquidation
// price feed.
func (k *Keeper) LiquidationPrice(ctx sdk.Context, accountID string, kind types.LiquidationPriceKind, denom string) (*math.LegacyDec, error) {
	c, err := k.BuildComputer(ctx, accountID, types.PricingLiquidation)
	if err != nil {
		return nil, err
	}
	return c.LiquidationPrice(kind, denom)
}

// MaxWithdraw estimates how much of a deposited denom can leave the account.
func (k *Keeper) MaxWithdraw(ctx sdk.Context, accountID, denom string) (math.Int, error) {
	c, err := k.BuildComputer(ctx, accountID, types.PricingDefault)
	if err != nil {
		return math.Int{}, err
	}
	return c.MaxWithdrawEstimate(denom)
}

// MaxBorrow estimates how much of a denom the account can take on.
func (k *Keeper) MaxBorrow(ctx sdk.Context, accountID, denom string, target types.BorrowTarget) (math.Int, error) {
	c, err := k.BuildComputer(ctx, accountID, types.PricingDefault)
	if err != nil {
		return math.Int{}, err
	}
	return c.MaxBorrowEstimate(denom, target)
}

// MaxSwap estimates how much of the input denom the account can swap.
func (k *Keeper) MaxSwap(ctx sdk.Context, accountID, from, to string, kind types.SwapKind, repayingDebt bool) (math.Int, error) {
	c, err := k.BuildComputer(ctx, accountID, types.PricingDefault)
	if err != nil {
		return math.Int{}, err
	}
	return c.MaxSwapEstimate(from, to, kind, repayingDebt)
}

// ============ Assertions ============

// AssertHealthy errors when the account sits above its max LTV.
func (k *Keeper) AssertHealthy(ctx sdk.Context, accountID string) error {
	h, err := k.HealthValues(ctx, accountID, types.PricingDefault)
	if err != nil {
		return err
	}
	if h.AboveMaxLtv {
		return errorsmod.Wrapf(types.ErrAboveMaxLTV,
			"account %s has a max ltv health factor of %s", accountID, h.MaxLtvHealthFactor)
	}
	return nil
}

// AssertHealthImproved enforces the post-action rule: the account must end
// healthy, unless it already started unhealthy, in which case the actions
// must have strictly raised its max-LTV health factor.
func (k *Keeper) AssertHealthImproved(ctx sdk.Context, accountID string, prev *types.HealthValues) error {
	cur, err := k.HealthValues(ctx, accountID, types.PricingDefault)
	if err != nil {
		return err
	}
	if !cur.AboveMaxLtv {
		return nil
	}
	if prev != nil && prev.AboveMaxLtv {
		if cur.MaxLtvHealthFactor.GT(*prev.MaxLtvHealthFactor) {
			return nil
		}
		return errorsmod.Wrapf(types.ErrHealthNotImproved,
			"account %s health factor moved from %s to %s",
			accountID, prev.MaxLtvHealthFactor, cur.MaxLtvHealthFactor)
	}
	return errorsmod.Wrapf(types.ErrAboveMaxLTV,
		"account %s has a max ltv health factor of %s", accountID, cur.MaxLtvHealthFactor)
}
