package keeper

import (
	"encoding/binary"
	"encoding/json"

	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/credit-engine/pkg/smath"
	"github.com/openalpha/credit-engine/x/perps/types"
)

// settleRealized moves one net realized amount between the vault and a
// credit account. Profit is truncated and paid out of vault liquidity; loss
// is rounded up and collected through the credit side's deduct-payment
// waterfall.
func (k *Keeper) settleRealized(ctx sdk.Context, accountID string, realized smath.SignedDec) error {
	if realized.IsZero() {
		return nil
	}
	vs := k.GetVaultState(ctx)

	if realized.IsPositive() {
		amount := realized.TruncateToInt().Abs
		if amount.IsZero() {
			return nil
		}
		newLiquidity, err := smath.SafeSubInt(vs.TotalLiquidity, amount)
		if err != nil {
			return types.ErrVaultInsufficientLiquidity
		}
		coin := sdk.NewCoin(k.baseDenom, amount)
		if err := k.bankKeeper.SendCoinsFromModuleToModule(ctx, types.ModuleName, k.creditModule, sdk.NewCoins(coin)); err != nil {
			return err
		}
		if err := k.creditKeeper.IncreaseAccountBalance(ctx, accountID, coin); err != nil {
			return err
		}
		vs.TotalLiquidity = newLiquidity
		k.SetVaultState(ctx, vs)
		return nil
	}

	amount := realized.CeilToInt().Abs
	if amount.IsZero() {
		return nil
	}
	coin := sdk.NewCoin(k.baseDenom, amount)
	if err := k.creditKeeper.DeductPayment(ctx, accountID, coin); err != nil {
		return err
	}
	if err := k.bankKeeper.SendCoinsFromModuleToModule(ctx, k.creditModule, types.ModuleName, sdk.NewCoins(coin)); err != nil {
		return err
	}
	vs.TotalLiquidity = vs.TotalLiquidity.Add(amount)
	k.SetVaultState(ctx, vs)
	return nil
}

// nextSettlementID returns a monotonically increasing correlation id for the
// current block's pending settlements.
func (k *Keeper) nextSettlementID(ctx sdk.Context) uint64 {
	store := k.GetTransientStore(ctx)
	bz := store.Get(SettlementSeqKey)
	var id uint64 = 1
	if bz != nil {
		id = binary.BigEndian.Uint64(bz) + 1
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	store.Set(SettlementSeqKey, buf)
	return id
}

func settlementKey(id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return append(PendingSettlementKeyPrefix, buf...)
}

// beginSettlement snapshots the module balance and the change the settlement
// is expected to produce. The record lives in the transient store and is
// cleared by verifySettlement or discarded with the transaction.
func (k *Keeper) beginSettlement(ctx sdk.Context, accountID string, change smath.SignedInt) uint64 {
	id := k.nextSettlementID(ctx)
	pending := types.PendingSettlement{
		AccountID:      accountID,
		Denom:          k.baseDenom,
		PreCallBalance: k.bankKeeper.GetBalance(ctx, k.moduleAddr, k.baseDenom).Amount,
		Change:         change,
	}
	bz, _ := json.Marshal(pending)
	k.GetTransientStore(ctx).Set(settlementKey(id), bz)
	return id
}

// verifySettlement compares the module balance against the recorded
// expectation and clears the record. A mismatch means coins moved that the
// settlement did not account for.
func (k *Keeper) verifySettlement(ctx sdk.Context, id uint64) error {
	store := k.GetTransientStore(ctx)
	bz := store.Get(settlementKey(id))
	if bz == nil {
		return types.ErrInvalidFundsAfterDeleverage
	}
	var pending types.PendingSettlement
	if err := json.Unmarshal(bz, &pending); err != nil {
		return types.ErrInvalidFundsAfterDeleverage
	}
	store.Delete(settlementKey(id))

	balance := k.bankKeeper.GetBalance(ctx, k.moduleAddr, pending.Denom).Amount
	delta, err := smath.SignedIntFromInt(balance).Sub(smath.SignedIntFromInt(pending.PreCallBalance))
	if err != nil {
		return err
	}
	if !delta.Equal(pending.Change) {
		k.Logger().Error("settlement mismatch",
			"account_id", pending.AccountID,
			"expected", pending.Change.String(),
			"observed", delta.String(),
		)
		return types.ErrInvalidFundsAfterDeleverage
	}
	return nil
}
