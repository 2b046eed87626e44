package keeper

import (
	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/credit-engine/x/credit/types"
)

func sumAmounts(coins sdk.Coins) math.Int {
	total := math.ZeroInt()
	for _, coin := range coins {
		total = total.Add(coin.Amount)
	}
	return total
}

// AssertBurnAllowed gates account token burns: the account must owe
// nothing, hold at most a dust balance, and have no open perp, perp-vault
// or vault positions. The NFT registry calls this before burning; lent
// coins deliberately do not block the burn.
func (k *Keeper) AssertBurnAllowed(ctx sdk.Context, accountID string) error {
	debts, err := k.AccountDebts(ctx, accountID)
	if err != nil {
		return err
	}
	if debtTotal := sumAmounts(debts); debtTotal.IsPositive() {
		return errorsmod.Wrapf(types.ErrBurnNotAllowed, "Burn not allowed: Account has a debt balance. Value: %s.", debtTotal.String())
	}

	cfg := k.GetConfig(ctx)
	if balanceTotal := sumAmounts(k.AccountBalances(ctx, accountID)); balanceTotal.GT(cfg.AccountNftBurnCollateralCap) {
		return errorsmod.Wrapf(types.ErrBurnNotAllowed, "Burn not allowed: Account has a balance. Value: %s.", balanceTotal.String())
	}

	if len(k.perpsKeeper.GetAccountPositions(ctx, accountID)) > 0 {
		return errorsmod.Wrap(types.ErrBurnNotAllowed, "Burn not allowed: Account has open perp positions")
	}
	if k.perpsKeeper.HasVaultActivity(ctx, accountID) {
		return errorsmod.Wrap(types.ErrBurnNotAllowed, "Burn not allowed: Account has active perp vault deposits / unlocks")
	}
	if len(k.GetVaultPositions(ctx, accountID)) > 0 {
		return errorsmod.Wrap(types.ErrBurnNotAllowed, "Burn not allowed: Account has vault positions")
	}
	return nil
}
