package keeper

import (
	"strconv"

	errorsmod "cosmossdk.io/errors"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/credit-engine/x/credit/types"
	healthtypes "github.com/openalpha/credit-engine/x/health/types"
)

// DispatchActions validates, authorizes and runs an action batch against a
// credit account, then holds the account to the health gate. An empty
// accountID mints a fresh account of the given kind for the caller. Funds
// are the coins the caller physically sent along; Deposit actions must
// consume them exactly.
//
// Any action error aborts the batch; the surrounding message rolls the
// partial writes back.
func (k *Keeper) DispatchActions(
	ctx sdk.Context,
	caller string,
	accountID string,
	kind healthtypes.AccountKind,
	actions []types.Action,
	funds sdk.Coins,
	enforceHealth bool,
) (string, error) {
	for _, action := range actions {
		if err := action.Validate(); err != nil {
			return "", err
		}
	}

	if accountID == "" {
		created, err := k.CreateAccount(ctx, caller, kind)
		if err != nil {
			return "", err
		}
		accountID = created
	} else if err := k.authorizeCaller(ctx, caller, accountID, actions); err != nil {
		return "", err
	}

	needCheck := enforceHealth && batchAffectsHealth(actions)
	var prior *healthtypes.HealthValues
	if needCheck {
		var err error
		prior, err = k.healthKeeper.HealthValues(ctx, accountID, healthtypes.PricingDefault)
		if err != nil {
			return "", err
		}
	}

	remainingFunds := sdk.NewCoins(funds...)
	for _, action := range actions {
		if err := k.executeAction(ctx, caller, accountID, action, &remainingFunds); err != nil {
			return "", errorsmod.Wrapf(err, "action %s", action.Name())
		}
	}
	if !remainingFunds.IsZero() {
		return "", errorsmod.Wrapf(types.ErrFundsMismatch, "unspent funds %s", remainingFunds.String())
	}

	if needCheck {
		if err := k.healthKeeper.AssertHealthImproved(ctx, accountID, prior); err != nil {
			return "", err
		}
	}

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			"dispatch_actions",
			sdk.NewAttribute("account_id", accountID),
			sdk.NewAttribute("caller", caller),
			sdk.NewAttribute("action_count", strconv.Itoa(len(actions))),
		),
	)
	return accountID, nil
}

// authorizeCaller admits the account token owner, or the perps module for
// its settlement callbacks (deposits and repays only).
func (k *Keeper) authorizeCaller(ctx sdk.Context, caller, accountID string, actions []types.Action) error {
	owner, err := k.nftKeeper.OwnerOf(ctx, accountID)
	if err != nil {
		return errorsmod.Wrapf(types.ErrAccountNotFound, "%s", accountID)
	}
	if caller == owner {
		return nil
	}
	if caller == k.perpsAddr.String() {
		for _, action := range actions {
			if action.Deposit == nil && action.Repay == nil {
				return errorsmod.Wrapf(types.ErrUnauthorized, "perps module cannot dispatch %s", action.Name())
			}
		}
		return nil
	}
	return types.ErrNotTokenOwner
}

func batchAffectsHealth(actions []types.Action) bool {
	for _, action := range actions {
		if action.AffectsHealth() {
			return true
		}
	}
	return false
}

// executeAction routes one action to its implementation.
func (k *Keeper) executeAction(ctx sdk.Context, caller, accountID string, action types.Action, remainingFunds *sdk.Coins) error {
	switch {
	case action.Deposit != nil:
		return k.deposit(ctx, accountID, *action.Deposit, remainingFunds)
	case action.Withdraw != nil:
		return k.withdraw(ctx, accountID, *action.Withdraw, "")
	case action.WithdrawToWallet != nil:
		return k.withdraw(ctx, accountID, action.WithdrawToWallet.Coin, action.WithdrawToWallet.Recipient)
	case action.Borrow != nil:
		return k.borrowToBalance(ctx, accountID, *action.Borrow)
	case action.Repay != nil:
		_, err := k.repay(ctx, accountID, *action.Repay)
		return err
	case action.Lend != nil:
		return k.lend(ctx, accountID, *action.Lend)
	case action.Reclaim != nil:
		return k.reclaim(ctx, accountID, *action.Reclaim)
	case action.SwapExactIn != nil:
		return k.swapExactIn(ctx, accountID, *action.SwapExactIn)
	case action.ExecutePerpOrder != nil:
		_, err := k.perpsKeeper.ExecutePerpOrder(ctx, accountID, action.ExecutePerpOrder.Denom, action.ExecutePerpOrder.OrderSize, action.ExecutePerpOrder.ReduceOnly)
		return err
	case action.DepositToPerpVault != nil:
		return k.depositToPerpVault(ctx, accountID, *action.DepositToPerpVault)
	case action.UnlockFromPerpVault != nil:
		return k.perpsKeeper.VaultUnlockShares(ctx, accountID, action.UnlockFromPerpVault.Shares)
	case action.WithdrawFromPerpVault != nil:
		_, err := k.perpsKeeper.VaultWithdrawUnlocked(ctx, accountID)
		return err
	case action.EnterVault != nil:
		return k.enterVault(ctx, accountID, *action.EnterVault)
	case action.ExitVault != nil:
		return k.exitVault(ctx, accountID, *action.ExitVault)
	case action.RequestVaultUnlock != nil:
		return k.requestVaultUnlock(ctx, accountID, *action.RequestVaultUnlock)
	case action.ExitVaultUnlocked != nil:
		return k.exitVaultUnlocked(ctx, accountID, *action.ExitVaultUnlocked)
	case action.CreateTriggerOrder != nil:
		_, err := k.CreateTriggerOrder(ctx, accountID, *action.CreateTriggerOrder)
		return err
	case action.DeleteTriggerOrder != nil:
		return k.DeleteTriggerOrder(ctx, accountID, action.DeleteTriggerOrder.OrderID)
	case action.Liquidate != nil:
		return k.Liquidate(ctx, accountID, *action.Liquidate)
	default:
		return types.ErrInvalidActions
	}
}

// deposit books sent funds onto the account ledger. The denom must be
// whitelisted and the coins must actually have been sent.
func (k *Keeper) deposit(ctx sdk.Context, accountID string, coin sdk.Coin, remainingFunds *sdk.Coins) error {
	params, ok := k.paramsKeeper.AssetParams(ctx, coin.Denom)
	if !ok || !params.Whitelisted {
		return errorsmod.Wrapf(types.ErrDenomNotWhitelisted, "%s", coin.Denom)
	}
	if remainingFunds.AmountOf(coin.Denom).LT(coin.Amount) {
		return errorsmod.Wrapf(types.ErrFundsMismatch, "deposit %s exceeds sent funds %s", coin.String(), remainingFunds.String())
	}
	*remainingFunds = remainingFunds.Sub(coin)

	if err := k.IncreaseAccountBalance(ctx, accountID, coin); err != nil {
		return err
	}

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			"credit_deposit",
			sdk.NewAttribute("account_id", accountID),
			sdk.NewAttribute("coin", coin.String()),
		),
	)
	return nil
}

// withdraw debits the ledger and pays coins out of the module pool, to the
// token owner's wallet or an explicit recipient.
func (k *Keeper) withdraw(ctx sdk.Context, accountID string, coin types.ActionCoin, recipient string) error {
	amount := coin.Resolve(k.GetAccountBalance(ctx, accountID, coin.Denom))
	if amount.IsZero() {
		return nil
	}
	paid := sdk.NewCoin(coin.Denom, amount)
	if err := k.DecreaseAccountBalance(ctx, accountID, paid); err != nil {
		return err
	}

	if recipient == "" {
		owner, err := k.nftKeeper.OwnerOf(ctx, accountID)
		if err != nil {
			return errorsmod.Wrapf(types.ErrAccountNotFound, "%s", accountID)
		}
		recipient = owner
	}
	recipientAddr, err := sdk.AccAddressFromBech32(recipient)
	if err != nil {
		return err
	}
	if err := k.bankKeeper.SendCoinsFromModuleToAccount(ctx, types.ModuleName, recipientAddr, sdk.NewCoins(paid)); err != nil {
		return err
	}

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			"credit_withdraw",
			sdk.NewAttribute("account_id", accountID),
			sdk.NewAttribute("coin", paid.String()),
			sdk.NewAttribute("recipient", recipient),
		),
	)
	return nil
}

// swapExactIn trades ledger coins through the swapper and books the output.
func (k *Keeper) swapExactIn(ctx sdk.Context, accountID string, action types.SwapExactIn) error {
	amount := action.CoinIn.Resolve(k.GetAccountBalance(ctx, accountID, action.CoinIn.Denom))
	coinIn := sdk.NewCoin(action.CoinIn.Denom, amount)
	if err := k.DecreaseAccountBalance(ctx, accountID, coinIn); err != nil {
		return err
	}

	coinOut, err := k.swapperKeeper.SwapExactIn(ctx, coinIn, action.DenomOut, action.MinReceive)
	if err != nil {
		return err
	}
	if coinOut.Amount.LT(action.MinReceive) {
		return errorsmod.Wrapf(types.ErrSlippageExceeded, "received %s, want at least %s%s", coinOut.String(), action.MinReceive.String(), action.DenomOut)
	}
	if err := k.IncreaseAccountBalance(ctx, accountID, coinOut); err != nil {
		return err
	}

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			"credit_swap",
			sdk.NewAttribute("account_id", accountID),
			sdk.NewAttribute("coin_in", coinIn.String()),
			sdk.NewAttribute("coin_out", coinOut.String()),
		),
	)
	return nil
}

// depositToPerpVault moves base-denom ledger coins into the perp
// counterparty vault.
func (k *Keeper) depositToPerpVault(ctx sdk.Context, accountID string, coin types.ActionCoin) error {
	base := k.perpsKeeper.BaseDenom()
	if coin.Denom != base {
		return errorsmod.Wrapf(types.ErrDenomNotWhitelisted, "perp vault accepts only %s", base)
	}
	amount := coin.Resolve(k.GetAccountBalance(ctx, accountID, coin.Denom))
	if err := k.DecreaseAccountBalance(ctx, accountID, sdk.NewCoin(coin.Denom, amount)); err != nil {
		return err
	}
	_, err := k.perpsKeeper.VaultDepositLiquidity(ctx, accountID, amount)
	return err
}
