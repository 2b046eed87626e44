package keeper

import (
	"encoding/json"

	"cosmossdk.io/math"
	storetypes "cosmossdk.io/store/types"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/credit-engine/pkg/smath"
	healthtypes "github.com/openalpha/credit-engine/x/health/types"
)

// accountDenomKey builds prefix + accountID + ":" + denom.
func accountDenomKey(prefix []byte, accountID, denom string) []byte {
	key := append([]byte{}, prefix...)
	return append(key, []byte(accountID+":"+denom)...)
}

// accountPrefix builds prefix + accountID + ":" for iteration.
func accountPrefix(prefix []byte, accountID string) []byte {
	key := append([]byte{}, prefix...)
	return append(key, []byte(accountID+":")...)
}

// getIntOrZero reads a json-encoded math.Int row.
func getIntOrZero(store storetypes.KVStore, key []byte) math.Int {
	bz := store.Get(key)
	if bz == nil {
		return math.ZeroInt()
	}
	var v math.Int
	if err := json.Unmarshal(bz, &v); err != nil {
		return math.ZeroInt()
	}
	return v
}

// setIntPruned writes a json-encoded math.Int row, deleting zero rows.
func setIntPruned(store storetypes.KVStore, key []byte, v math.Int) {
	if v.IsZero() {
		store.Delete(key)
		return
	}
	bz, _ := json.Marshal(v)
	store.Set(key, bz)
}

// iterateAccountCoins walks every denom row under prefix + accountID + ":".
func (k *Keeper) iterateAccountCoins(ctx sdk.Context, prefix []byte, accountID string) sdk.Coins {
	store := ctx.KVStore(k.storeKey)
	keyPrefix := accountPrefix(prefix, accountID)
	iterator := storetypes.KVStorePrefixIterator(store, keyPrefix)
	defer iterator.Close()

	coins := sdk.NewCoins()
	for ; iterator.Valid(); iterator.Next() {
		denom := string(iterator.Key()[len(keyPrefix):])
		var amount math.Int
		if err := json.Unmarshal(iterator.Value(), &amount); err != nil {
			continue
		}
		if amount.IsPositive() {
			coins = coins.Add(sdk.NewCoin(denom, amount))
		}
	}
	return coins
}

// ============ Coin Balances ============

// GetAccountBalance returns the ledger balance of one denom.
func (k *Keeper) GetAccountBalance(ctx sdk.Context, accountID, denom string) math.Int {
	store := ctx.KVStore(k.storeKey)
	return getIntOrZero(store, accountDenomKey(BalanceKeyPrefix, accountID, denom))
}

// setAccountBalance writes a balance row, pruning zeroes.
func (k *Keeper) setAccountBalance(ctx sdk.Context, accountID, denom string, amount math.Int) {
	store := ctx.KVStore(k.storeKey)
	setIntPruned(store, accountDenomKey(BalanceKeyPrefix, accountID, denom), amount)
}

// IncreaseAccountBalance credits coins to the account ledger. The coins must
// already sit in the module pool.
func (k *Keeper) IncreaseAccountBalance(ctx sdk.Context, accountID string, coin sdk.Coin) error {
	if coin.Amount.IsZero() {
		return nil
	}
	balance := k.GetAccountBalance(ctx, accountID, coin.Denom)
	next, err := smath.SafeAddInt(balance, coin.Amount)
	if err != nil {
		return err
	}
	k.setAccountBalance(ctx, accountID, coin.Denom, next)
	return nil
}

// DecreaseAccountBalance debits coins from the account ledger. Debiting more
// than the balance fails with both operands in the message.
func (k *Keeper) DecreaseAccountBalance(ctx sdk.Context, accountID string, coin sdk.Coin) error {
	if coin.Amount.IsZero() {
		return nil
	}
	balance := k.GetAccountBalance(ctx, accountID, coin.Denom)
	next, err := smath.SafeSubInt(balance, coin.Amount)
	if err != nil {
		return err
	}
	k.setAccountBalance(ctx, accountID, coin.Denom, next)
	return nil
}

// AccountBalances returns every coin the account holds in the ledger.
func (k *Keeper) AccountBalances(ctx sdk.Context, accountID string) sdk.Coins {
	return k.iterateAccountCoins(ctx, BalanceKeyPrefix, accountID)
}

// ============ Payment Waterfall ============

// DeductPayment settles a charge against the account in tiers: ledger
// balance first, then reclaiming Red-Bank lends, then borrowing the
// remainder. Perp losses and fees come through here.
func (k *Keeper) DeductPayment(ctx sdk.Context, accountID string, coin sdk.Coin) error {
	if coin.Amount.IsZero() {
		return nil
	}
	remaining := coin.Amount

	balance := k.GetAccountBalance(ctx, accountID, coin.Denom)
	fromBalance := math.MinInt(balance, remaining)
	if fromBalance.IsPositive() {
		k.setAccountBalance(ctx, accountID, coin.Denom, balance.Sub(fromBalance))
		remaining = remaining.Sub(fromBalance)
	}

	fromLend := math.ZeroInt()
	if remaining.IsPositive() {
		lent := k.redBankKeeper.Lent(ctx, accountID, coin.Denom)
		fromLend = math.MinInt(lent, remaining)
		if fromLend.IsPositive() {
			if err := k.redBankKeeper.Reclaim(ctx, accountID, coin.Denom, fromLend); err != nil {
				return err
			}
			remaining = remaining.Sub(fromLend)
		}
	}

	if remaining.IsPositive() {
		if err := k.borrow(ctx, accountID, sdk.NewCoin(coin.Denom, remaining)); err != nil {
			return err
		}
	}

	k.Logger().Debug("deducted payment",
		"account_id", accountID,
		"denom", coin.Denom,
		"from_balance", fromBalance.String(),
		"from_lend", fromLend.String(),
		"borrowed", remaining.String(),
	)
	return nil
}

// ============ Staked LP ============

// GetStakedLP returns the staked LP amount of one denom.
func (k *Keeper) GetStakedLP(ctx sdk.Context, accountID, denom string) math.Int {
	store := ctx.KVStore(k.storeKey)
	return getIntOrZero(store, accountDenomKey(StakedLPKeyPrefix, accountID, denom))
}

// SetStakedLP writes a staked LP row, pruning zeroes. Mutations arrive
// through state migrations and the LP adapter; the action set does not
// touch this bucket.
func (k *Keeper) SetStakedLP(ctx sdk.Context, accountID, denom string, amount math.Int) {
	store := ctx.KVStore(k.storeKey)
	setIntPruned(store, accountDenomKey(StakedLPKeyPrefix, accountID, denom), amount)
}

// AccountStakedLP returns every staked LP coin the account holds.
func (k *Keeper) AccountStakedLP(ctx sdk.Context, accountID string) sdk.Coins {
	return k.iterateAccountCoins(ctx, StakedLPKeyPrefix, accountID)
}

// ============ Health Source Reads ============

// AccountLends returns the account's Red-Bank lends.
func (k *Keeper) AccountLends(ctx sdk.Context, accountID string) (sdk.Coins, error) {
	return k.redBankKeeper.AllLent(ctx, accountID), nil
}

// AccountVaultPositions converts vault share positions to underlying terms
// for the health computer.
func (k *Keeper) AccountVaultPositions(ctx sdk.Context, accountID string) ([]healthtypes.VaultPosition, error) {
	positions := k.GetVaultPositions(ctx, accountID)
	out := make([]healthtypes.VaultPosition, 0, len(positions))
	for _, pos := range positions {
		total := pos.TotalShares()
		if total.IsZero() {
			continue
		}
		underlying, err := k.vaultKeeper.Preview(ctx, pos.VaultDenom, total)
		if err != nil {
			return nil, err
		}
		out = append(out, healthtypes.VaultPosition{
			VaultDenom:       pos.VaultDenom,
			UnderlyingDenom:  underlying.Denom,
			UnderlyingAmount: underlying.Amount,
		})
	}
	return out, nil
}
