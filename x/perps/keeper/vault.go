package keeper

import (
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/credit-engine/pkg/smath"
	"github.com/openalpha/credit-engine/x/perps/types"
)

// WithdrawalBalance is the vault value distributable to share holders:
// max(0, total liquidity - aggregate trader pnl). Trader profit is a
// liability that reduces it; trader loss is an asset that cannot be
// distributed until realized, so the balance is clamped at liquidity in
// coins terms only when converting to an actual transfer.
func (k *Keeper) WithdrawalBalance(ctx sdk.Context) (math.Int, error) {
	vs := k.GetVaultState(ctx)
	totalPnl, _, err := k.aggregatePnl(ctx)
	if err != nil {
		return math.Int{}, err
	}
	balance, err := smath.SignedIntFromInt(vs.TotalLiquidity).ToDec().Sub(totalPnl)
	if err != nil {
		return math.Int{}, err
	}
	if balance.IsNegative() {
		return math.ZeroInt(), nil
	}
	return balance.TruncateToInt().Abs, nil
}

// CollateralizationRatio returns withdrawal balance over the vault's
// obligation (the sum of net-profitable markets). nil means no obligation,
// an infinite ratio.
func (k *Keeper) CollateralizationRatio(ctx sdk.Context) (*math.LegacyDec, error) {
	wb, err := k.WithdrawalBalance(ctx)
	if err != nil {
		return nil, err
	}
	_, obligation, err := k.aggregatePnl(ctx)
	if err != nil {
		return nil, err
	}
	if obligation.IsZero() {
		return nil, nil
	}
	cr := math.LegacyNewDecFromInt(wb).QuoTruncate(obligation.Abs)
	return &cr, nil
}

// VaultDepositLiquidity converts a credit account's coins into vault shares.
// Shares are priced against the withdrawal balance before the new liquidity
// lands; the first deposit (or a zero-balance vault) converts at the default
// ratio.
func (k *Keeper) VaultDepositLiquidity(ctx sdk.Context, accountID string, amount math.Int) (math.Int, error) {
	if !amount.IsPositive() {
		return math.Int{}, types.ErrZeroDepositAmount
	}

	vs := k.GetVaultState(ctx)
	wb, err := k.WithdrawalBalance(ctx)
	if err != nil {
		return math.Int{}, err
	}

	var shares math.Int
	if vs.TotalShares.IsZero() || wb.IsZero() {
		shares = amount.MulRaw(types.DefaultSharesPerAmount)
	} else {
		shares, err = smath.MulDivInt(amount, vs.TotalShares, wb, false)
		if err != nil {
			return math.Int{}, err
		}
	}

	coin := sdk.NewCoin(k.baseDenom, amount)
	if err := k.bankKeeper.SendCoinsFromModuleToModule(ctx, k.creditModule, types.ModuleName, sdk.NewCoins(coin)); err != nil {
		return math.Int{}, err
	}

	vs.TotalLiquidity = vs.TotalLiquidity.Add(amount)
	vs.TotalShares = vs.TotalShares.Add(shares)
	k.SetVaultState(ctx, vs)

	deposit := k.GetVaultDeposit(ctx, accountID)
	if deposit == nil {
		deposit = &types.VaultDeposit{AccountID: accountID, Shares: math.ZeroInt()}
	}
	deposit.Shares = deposit.Shares.Add(shares)
	k.SetVaultDeposit(ctx, deposit)

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			"perp_vault_deposit",
			sdk.NewAttribute("account_id", accountID),
			sdk.NewAttribute("amount", amount.String()),
			sdk.NewAttribute("shares", shares.String()),
		),
	)
	k.Logger().Info("vault deposit", "account_id", accountID, "amount", amount.String(), "shares", shares.String())

	return shares, nil
}

// VaultUnlockShares starts the cooldown on part of an account's deposit.
// Unlocking shares stay in TotalShares until withdrawn.
func (k *Keeper) VaultUnlockShares(ctx sdk.Context, accountID string, shares math.Int) error {
	if !shares.IsPositive() {
		return types.ErrZeroShares
	}
	deposit := k.GetVaultDeposit(ctx, accountID)
	if deposit == nil {
		return types.ErrDepositNotFound
	}

	remaining, err := smath.SafeSubInt(deposit.Shares, shares)
	if err != nil {
		return err
	}

	params, err := k.paramsKeeper.PerpVaultParams(ctx)
	if err != nil {
		return err
	}
	unlocks := k.GetUnlocks(ctx, accountID)
	if len(unlocks) >= params.MaxUnlocks {
		return types.ErrMaxUnlocksReached
	}

	now := ctx.BlockTime().Unix()
	unlocks = append(unlocks, types.UnlockState{
		CreatedAt:   now,
		CooldownEnd: now + params.UnlockCooldown,
		Shares:      shares,
	})
	k.SetUnlocks(ctx, accountID, unlocks)

	if remaining.IsZero() {
		k.DeleteVaultDeposit(ctx, accountID)
	} else {
		deposit.Shares = remaining
		k.SetVaultDeposit(ctx, deposit)
	}

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			"perp_vault_unlock",
			sdk.NewAttribute("account_id", accountID),
			sdk.NewAttribute("shares", shares.String()),
			sdk.NewAttribute("cooldown_end", math.NewInt(now+params.UnlockCooldown).String()),
		),
	)

	return nil
}

// VaultWithdrawUnlocked redeems every matured unlock at the current share
// value and pays the proceeds back to the credit account. Unmatured entries
// stay queued.
func (k *Keeper) VaultWithdrawUnlocked(ctx sdk.Context, accountID string) (math.Int, error) {
	params, err := k.paramsKeeper.PerpVaultParams(ctx)
	if err != nil {
		return math.Int{}, err
	}
	if !params.VaultWithdrawEnabled {
		return math.Int{}, types.ErrVaultWithdrawDisabled
	}

	now := ctx.BlockTime().Unix()
	unlocks := k.GetUnlocks(ctx, accountID)

	matured := math.ZeroInt()
	var remaining []types.UnlockState
	for _, u := range unlocks {
		if u.Matured(now) {
			matured = matured.Add(u.Shares)
		} else {
			remaining = append(remaining, u)
		}
	}
	if matured.IsZero() {
		return math.Int{}, types.ErrUnlockedPositionsNotFound
	}

	vs := k.GetVaultState(ctx)
	if vs.TotalShares.IsZero() {
		return math.Int{}, types.ErrVaultUndeposited
	}
	wb, err := k.WithdrawalBalance(ctx)
	if err != nil {
		return math.Int{}, err
	}
	if wb.IsZero() {
		return math.Int{}, types.ErrZeroWithdrawalBalance
	}

	amount, err := smath.MulDivInt(matured, wb, vs.TotalShares, false)
	if err != nil {
		return math.Int{}, err
	}

	newLiquidity, err := smath.SafeSubInt(vs.TotalLiquidity, amount)
	if err != nil {
		return math.Int{}, types.ErrVaultInsufficientLiquidity
	}
	vs.TotalLiquidity = newLiquidity
	vs.TotalShares, err = smath.SafeSubInt(vs.TotalShares, matured)
	if err != nil {
		return math.Int{}, err
	}
	k.SetVaultState(ctx, vs)
	k.SetUnlocks(ctx, accountID, remaining)

	coin := sdk.NewCoin(k.baseDenom, amount)
	if err := k.bankKeeper.SendCoinsFromModuleToModule(ctx, types.ModuleName, k.creditModule, sdk.NewCoins(coin)); err != nil {
		return math.Int{}, err
	}
	if err := k.creditKeeper.IncreaseAccountBalance(ctx, accountID, coin); err != nil {
		return math.Int{}, err
	}

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			"perp_vault_withdraw",
			sdk.NewAttribute("account_id", accountID),
			sdk.NewAttribute("shares", matured.String()),
			sdk.NewAttribute("amount", amount.String()),
		),
	)
	k.Logger().Info("vault withdraw", "account_id", accountID, "shares", matured.String(), "amount", amount.String())

	return amount, nil
}

// HasVaultActivity reports whether the account has live shares or pending
// unlocks; such accounts cannot be burned.
func (k *Keeper) HasVaultActivity(ctx sdk.Context, accountID string) bool {
	if d := k.GetVaultDeposit(ctx, accountID); d != nil && d.Shares.IsPositive() {
		return true
	}
	return len(k.GetUnlocks(ctx, accountID)) > 0
}
