package keeper

import (
	"encoding/json"

	"cosmossdk.io/math"
	storetypes "cosmossdk.io/store/types"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/credit-engine/pkg/smath"
	"github.com/openalpha/credit-engine/x/credit/types"
)

// ============ Debt Shares ============

func totalDebtSharesKey(denom string) []byte {
	key := append([]byte{}, TotalDebtSharesKeyPrefix...)
	return append(key, []byte(denom)...)
}

// GetDebtShares returns the account's debt shares in one denom.
func (k *Keeper) GetDebtShares(ctx sdk.Context, accountID, denom string) math.Int {
	store := ctx.KVStore(k.storeKey)
	return getIntOrZero(store, accountDenomKey(DebtSharesKeyPrefix, accountID, denom))
}

func (k *Keeper) setDebtShares(ctx sdk.Context, accountID, denom string, shares math.Int) {
	store := ctx.KVStore(k.storeKey)
	setIntPruned(store, accountDenomKey(DebtSharesKeyPrefix, accountID, denom), shares)
}

// GetTotalDebtShares returns the outstanding shares across all accounts for
// one denom.
func (k *Keeper) GetTotalDebtShares(ctx sdk.Context, denom string) math.Int {
	store := ctx.KVStore(k.storeKey)
	return getIntOrZero(store, totalDebtSharesKey(denom))
}

func (k *Keeper) setTotalDebtShares(ctx sdk.Context, denom string, shares math.Int) {
	store := ctx.KVStore(k.storeKey)
	setIntPruned(store, totalDebtSharesKey(denom), shares)
}

// sharesToAmount converts debt shares to an owed coin amount, rounding up so
// the module never under-collects.
func (k *Keeper) sharesToAmount(ctx sdk.Context, denom string, shares math.Int) (math.Int, error) {
	if shares.IsZero() {
		return math.ZeroInt(), nil
	}
	totalShares := k.GetTotalDebtShares(ctx, denom)
	if totalShares.IsZero() {
		return math.ZeroInt(), nil
	}
	totalDebt := k.redBankKeeper.TotalDebt(ctx, denom)
	if totalDebt.IsZero() {
		return math.ZeroInt(), nil
	}
	return smath.MulDivInt(shares, totalDebt, totalShares, true)
}

// amountToShares converts a coin amount to debt shares at the current ratio.
// Borrows round down (the borrower is never over-issued), repays round up
// (the burn never under-shoots). An empty pool converts at the default rate.
func (k *Keeper) amountToShares(ctx sdk.Context, denom string, amount math.Int, roundUp bool) (math.Int, error) {
	totalShares := k.GetTotalDebtShares(ctx, denom)
	if totalShares.IsZero() {
		return amount.MulRaw(types.DefaultDebtSharesPerCoinBorrowed), nil
	}
	totalDebt := k.redBankKeeper.TotalDebt(ctx, denom)
	if totalDebt.IsZero() {
		return amount.MulRaw(types.DefaultDebtSharesPerCoinBorrowed), nil
	}
	return smath.MulDivInt(amount, totalShares, totalDebt, roundUp)
}

// DebtAmount returns the account's owed amount in one denom, rounded up.
func (k *Keeper) DebtAmount(ctx sdk.Context, accountID, denom string) (math.Int, error) {
	return k.sharesToAmount(ctx, denom, k.GetDebtShares(ctx, accountID, denom))
}

// AccountDebts converts every debt-share row the account holds to owed
// coins.
func (k *Keeper) AccountDebts(ctx sdk.Context, accountID string) (sdk.Coins, error) {
	store := ctx.KVStore(k.storeKey)
	keyPrefix := accountPrefix(DebtSharesKeyPrefix, accountID)
	iterator := storetypes.KVStorePrefixIterator(store, keyPrefix)
	defer iterator.Close()

	debts := sdk.NewCoins()
	for ; iterator.Valid(); iterator.Next() {
		denom := string(iterator.Key()[len(keyPrefix):])
		var shares math.Int
		if err := json.Unmarshal(iterator.Value(), &shares); err != nil {
			continue
		}
		amount, err := k.sharesToAmount(ctx, denom, shares)
		if err != nil {
			return nil, err
		}
		if amount.IsPositive() {
			debts = debts.Add(sdk.NewCoin(denom, amount))
		}
	}
	return debts, nil
}

// ============ Borrow / Repay ============

// borrow pulls coins from the Red Bank into the module pool and mints debt
// shares against the account. The caller decides where the coins go.
func (k *Keeper) borrow(ctx sdk.Context, accountID string, coin sdk.Coin) error {
	shares, err := k.amountToShares(ctx, coin.Denom, coin.Amount, false)
	if err != nil {
		return err
	}
	if err := k.redBankKeeper.Borrow(ctx, coin.Denom, coin.Amount); err != nil {
		return err
	}

	accountShares, err := smath.SafeAddInt(k.GetDebtShares(ctx, accountID, coin.Denom), shares)
	if err != nil {
		return err
	}
	totalShares, err := smath.SafeAddInt(k.GetTotalDebtShares(ctx, coin.Denom), shares)
	if err != nil {
		return err
	}
	k.setDebtShares(ctx, accountID, coin.Denom, accountShares)
	k.setTotalDebtShares(ctx, coin.Denom, totalShares)

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			"credit_borrow",
			sdk.NewAttribute("account_id", accountID),
			sdk.NewAttribute("coin", coin.String()),
			sdk.NewAttribute("shares", shares.String()),
		),
	)
	return nil
}

// borrowToBalance is the Borrow action: borrowed coins land on the account
// ledger.
func (k *Keeper) borrowToBalance(ctx sdk.Context, accountID string, coin sdk.Coin) error {
	if err := k.borrow(ctx, accountID, coin); err != nil {
		return err
	}
	return k.IncreaseAccountBalance(ctx, accountID, coin)
}

// burnDebtShares repays amount of the account's debt toward the Red Bank
// and burns the matching shares: all of them on a full repay, otherwise the
// rounded-up proportion capped at the account's holding.
func (k *Keeper) burnDebtShares(ctx sdk.Context, accountID, denom string, amount math.Int) error {
	shares := k.GetDebtShares(ctx, accountID, denom)
	if shares.IsZero() {
		return types.ErrNoDebt
	}
	owed, err := k.sharesToAmount(ctx, denom, shares)
	if err != nil {
		return err
	}

	var burn math.Int
	if amount.GTE(owed) {
		burn = shares
	} else {
		burn, err = k.amountToShares(ctx, denom, amount, true)
		if err != nil {
			return err
		}
		if burn.GT(shares) {
			burn = shares
		}
	}

	if err := k.redBankKeeper.Repay(ctx, denom, amount); err != nil {
		return err
	}

	k.setDebtShares(ctx, accountID, denom, shares.Sub(burn))
	totalShares, err := smath.SafeSubInt(k.GetTotalDebtShares(ctx, denom), burn)
	if err != nil {
		return err
	}
	k.setTotalDebtShares(ctx, denom, totalShares)

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			"credit_repay",
			sdk.NewAttribute("account_id", accountID),
			sdk.NewAttribute("coin", sdk.NewCoin(denom, amount).String()),
			sdk.NewAttribute("shares", burn.String()),
		),
	)
	return nil
}

// repay burns debt shares against coins from the account ledger. All repays
// the full converted debt; amounts above the debt are capped at it.
func (k *Keeper) repay(ctx sdk.Context, accountID string, coin types.ActionCoin) (sdk.Coin, error) {
	shares := k.GetDebtShares(ctx, accountID, coin.Denom)
	if shares.IsZero() {
		return sdk.Coin{}, types.ErrNoDebt
	}
	owed, err := k.sharesToAmount(ctx, coin.Denom, shares)
	if err != nil {
		return sdk.Coin{}, err
	}

	amount := coin.Resolve(owed)
	if amount.GT(owed) {
		amount = owed
	}

	paid := sdk.NewCoin(coin.Denom, amount)
	if err := k.DecreaseAccountBalance(ctx, accountID, paid); err != nil {
		return sdk.Coin{}, err
	}
	if err := k.burnDebtShares(ctx, accountID, coin.Denom, amount); err != nil {
		return sdk.Coin{}, err
	}
	return paid, nil
}

// ============ Lend / Reclaim ============

// lend moves account coins into the Red Bank, where they earn yield and
// stay visible to the health computer.
func (k *Keeper) lend(ctx sdk.Context, accountID string, coin types.ActionCoin) error {
	amount := coin.Resolve(k.GetAccountBalance(ctx, accountID, coin.Denom))
	if amount.IsZero() {
		return nil
	}
	if err := k.DecreaseAccountBalance(ctx, accountID, sdk.NewCoin(coin.Denom, amount)); err != nil {
		return err
	}
	return k.redBankKeeper.Lend(ctx, accountID, coin.Denom, amount)
}

// reclaim pulls lent coins back onto the account ledger.
func (k *Keeper) reclaim(ctx sdk.Context, accountID string, coin types.ActionCoin) error {
	lent := k.redBankKeeper.Lent(ctx, accountID, coin.Denom)
	if lent.IsZero() {
		return types.ErrNothingLent
	}
	amount := coin.Resolve(lent)
	if amount.GT(lent) {
		amount = lent
	}
	if err := k.redBankKeeper.Reclaim(ctx, accountID, coin.Denom, amount); err != nil {
		return err
	}
	return k.IncreaseAccountBalance(ctx, accountID, sdk.NewCoin(coin.Denom, amount))
}

// ============ Bad Debt ============

// WriteOffBadDebt erases an account's debt shares in one denom without
// repayment. Skipped (no error) while the account still holds any ledger
// coins or Red-Bank collateral that a liquidator could go after; lends are
// deliberately not checked. Returns whether anything was written off.
func (k *Keeper) WriteOffBadDebt(ctx sdk.Context, sender, accountID, denom string) (bool, error) {
	cfg := k.GetConfig(ctx)
	if sender != cfg.Owner {
		return false, types.ErrUnauthorized
	}

	if !k.AccountBalances(ctx, accountID).IsZero() {
		return false, nil
	}
	if len(k.redBankKeeper.UserCollateral(ctx, accountID)) > 0 {
		return false, nil
	}

	shares := k.GetDebtShares(ctx, accountID, denom)
	if shares.IsZero() {
		return false, nil
	}
	amount, err := k.sharesToAmount(ctx, denom, shares)
	if err != nil {
		return false, err
	}

	k.setDebtShares(ctx, accountID, denom, math.ZeroInt())
	totalShares, err := smath.SafeSubInt(k.GetTotalDebtShares(ctx, denom), shares)
	if err != nil {
		return false, err
	}
	k.setTotalDebtShares(ctx, denom, totalShares)

	if err := k.redBankKeeper.WriteOffBadDebt(ctx, denom, amount); err != nil {
		return false, err
	}

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			"credit_bad_debt_write_off",
			sdk.NewAttribute("account_id", accountID),
			sdk.NewAttribute("denom", denom),
			sdk.NewAttribute("amount", amount.String()),
			sdk.NewAttribute("shares", shares.String()),
		),
	)
	k.Logger().Info("wrote off bad debt", "account_id", accountID, "denom", denom, "amount", amount.String())

	return true, nil
}
