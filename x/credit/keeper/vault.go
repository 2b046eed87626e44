package keeper

import (
	"encoding/json"

	"cosmossdk.io/math"
	storetypes "cosmossdk.io/store/types"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/credit-engine/pkg/smath"
	"github.com/openalpha/credit-engine/x/credit/types"
)

// ============ Vault Positions ============

// GetVaultPosition returns one position or nil.
func (k *Keeper) GetVaultPosition(ctx sdk.Context, accountID, vaultDenom string) *types.VaultPosition {
	store := ctx.KVStore(k.storeKey)
	bz := store.Get(accountDenomKey(VaultPositionKeyPrefix, accountID, vaultDenom))
	if bz == nil {
		return nil
	}
	var pos types.VaultPosition
	if err := json.Unmarshal(bz, &pos); err != nil {
		return nil
	}
	return &pos
}

// SetVaultPosition stores a position, pruning empty ones.
func (k *Keeper) SetVaultPosition(ctx sdk.Context, pos *types.VaultPosition) {
	store := ctx.KVStore(k.storeKey)
	key := accountDenomKey(VaultPositionKeyPrefix, pos.AccountID, pos.VaultDenom)
	if pos.IsEmpty() {
		store.Delete(key)
		return
	}
	bz, _ := json.Marshal(pos)
	store.Set(key, bz)
}

// GetVaultPositions returns every vault position of one account.
func (k *Keeper) GetVaultPositions(ctx sdk.Context, accountID string) []*types.VaultPosition {
	store := ctx.KVStore(k.storeKey)
	keyPrefix := accountPrefix(VaultPositionKeyPrefix, accountID)
	iterator := storetypes.KVStorePrefixIterator(store, keyPrefix)
	defer iterator.Close()

	var positions []*types.VaultPosition
	for ; iterator.Valid(); iterator.Next() {
		var pos types.VaultPosition
		if err := json.Unmarshal(iterator.Value(), &pos); err != nil {
			continue
		}
		positions = append(positions, &pos)
	}
	return positions
}

// nextUnlockID increments the global unlock entry counter.
func (k *Keeper) nextUnlockID(ctx sdk.Context) uint64 {
	store := ctx.KVStore(k.storeKey)
	next := uint64(1)
	if bz := store.Get(NextUnlockIDKey); bz != nil {
		next = sdk.BigEndianToUint64(bz) + 1
	}
	store.Set(NextUnlockIDKey, sdk.Uint64ToBigEndian(next))
	return next
}

// ============ Vault Actions ============

// enterVault deposits account coins into a vault. Liquid vaults credit the
// unlocked bucket, lockup vaults the locked one.
func (k *Keeper) enterVault(ctx sdk.Context, accountID string, action types.EnterVault) error {
	amount := action.Coin.Resolve(k.GetAccountBalance(ctx, accountID, action.Coin.Denom))
	coin := sdk.NewCoin(action.Coin.Denom, amount)
	if err := k.DecreaseAccountBalance(ctx, accountID, coin); err != nil {
		return err
	}

	shares, err := k.vaultKeeper.Deposit(ctx, action.VaultDenom, coin)
	if err != nil {
		return err
	}

	pos := k.GetVaultPosition(ctx, accountID, action.VaultDenom)
	if pos == nil {
		pos = types.NewVaultPosition(accountID, action.VaultDenom)
	}
	if k.vaultKeeper.LockupSeconds(ctx, action.VaultDenom) > 0 {
		pos.Locked = pos.Locked.Add(shares)
	} else {
		pos.Unlocked = pos.Unlocked.Add(shares)
	}
	k.SetVaultPosition(ctx, pos)

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			"credit_enter_vault",
			sdk.NewAttribute("account_id", accountID),
			sdk.NewAttribute("vault_denom", action.VaultDenom),
			sdk.NewAttribute("coin", coin.String()),
			sdk.NewAttribute("shares", shares.String()),
		),
	)
	return nil
}

// exitVault redeems unlocked shares back to account coins.
func (k *Keeper) exitVault(ctx sdk.Context, accountID string, action types.ExitVault) error {
	pos := k.GetVaultPosition(ctx, accountID, action.VaultDenom)
	if pos == nil {
		return types.ErrVaultPositionNotFound
	}
	remaining, err := smath.SafeSubInt(pos.Unlocked, action.Amount)
	if err != nil {
		return err
	}

	coin, err := k.vaultKeeper.Withdraw(ctx, action.VaultDenom, action.Amount)
	if err != nil {
		return err
	}
	pos.Unlocked = remaining
	k.SetVaultPosition(ctx, pos)

	if err := k.IncreaseAccountBalance(ctx, accountID, coin); err != nil {
		return err
	}

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			"credit_exit_vault",
			sdk.NewAttribute("account_id", accountID),
			sdk.NewAttribute("vault_denom", action.VaultDenom),
			sdk.NewAttribute("shares", action.Amount.String()),
			sdk.NewAttribute("coin", coin.String()),
		),
	)
	return nil
}

// requestVaultUnlock queues locked shares for release after the vault's
// lockup period.
func (k *Keeper) requestVaultUnlock(ctx sdk.Context, accountID string, action types.RequestVaultUnlock) error {
	pos := k.GetVaultPosition(ctx, accountID, action.VaultDenom)
	if pos == nil {
		return types.ErrVaultPositionNotFound
	}
	cfg := k.GetConfig(ctx)
	if len(pos.Unlocking) >= cfg.MaxUnlockingPositions {
		return types.ErrMaxUnlocksReached
	}

	remaining, err := smath.SafeSubInt(pos.Locked, action.Amount)
	if err != nil {
		return err
	}
	pos.Locked = remaining

	releasedAt := ctx.BlockTime().Unix() + k.vaultKeeper.LockupSeconds(ctx, action.VaultDenom)
	entry := types.UnlockEntry{
		Id:         k.nextUnlockID(ctx),
		Amount:     action.Amount,
		ReleasedAt: releasedAt,
	}
	pos.Unlocking = append(pos.Unlocking, entry)
	k.SetVaultPosition(ctx, pos)

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			"credit_request_vault_unlock",
			sdk.NewAttribute("account_id", accountID),
			sdk.NewAttribute("vault_denom", action.VaultDenom),
			sdk.NewAttribute("unlock_id", math.NewInt(int64(entry.Id)).String()),
			sdk.NewAttribute("shares", action.Amount.String()),
		),
	)
	return nil
}

// exitVaultUnlocked redeems one matured unlock entry.
func (k *Keeper) exitVaultUnlocked(ctx sdk.Context, accountID string, action types.ExitVaultUnlocked) error {
	pos := k.GetVaultPosition(ctx, accountID, action.VaultDenom)
	if pos == nil {
		return types.ErrVaultPositionNotFound
	}

	idx := -1
	for i, entry := range pos.Unlocking {
		if entry.Id == action.Id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return types.ErrUnlockEntryNotFound
	}
	entry := pos.Unlocking[idx]
	if !entry.Matured(ctx.BlockTime().Unix()) {
		return types.ErrUnlockNotReady
	}

	coin, err := k.vaultKeeper.Withdraw(ctx, action.VaultDenom, entry.Amount)
	if err != nil {
		return err
	}
	pos.Unlocking = append(pos.Unlocking[:idx], pos.Unlocking[idx+1:]...)
	k.SetVaultPosition(ctx, pos)

	if err := k.IncreaseAccountBalance(ctx, accountID, coin); err != nil {
		return err
	}

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			"credit_exit_vault_unlocked",
			sdk.NewAttribute("account_id", accountID),
			sdk.NewAttribute("vault_denom", action.VaultDenom),
			sdk.NewAttribute("unlock_id", math.NewInt(int64(entry.Id)).String()),
			sdk.NewAttribute("coin", coin.String()),
		),
	)
	return nil
}

// ============ Liquidation Seizure ============

// seizeVaultShares removes sharesTarget from a position for liquidation:
// the unlocked and locked buckets give up their proportional slice, the
// unlocking queue is walked in order without overdrawing any entry, and any
// rounding remainder tops up from unlocked then locked. Returns the shares
// actually taken.
func (k *Keeper) seizeVaultShares(ctx sdk.Context, pos *types.VaultPosition, sharesTarget math.Int) (math.Int, error) {
	total := pos.TotalShares()
	if sharesTarget.GT(total) {
		sharesTarget = total
	}
	if sharesTarget.IsZero() {
		return math.ZeroInt(), nil
	}

	fromUnlocked, err := smath.MulDivInt(pos.Unlocked, sharesTarget, total, false)
	if err != nil {
		return math.Int{}, err
	}
	fromLocked, err := smath.MulDivInt(pos.Locked, sharesTarget, total, false)
	if err != nil {
		return math.Int{}, err
	}

	remainder := sharesTarget.Sub(fromUnlocked).Sub(fromLocked)
	var kept []types.UnlockEntry
	for _, entry := range pos.Unlocking {
		take := math.MinInt(entry.Amount, remainder)
		remainder = remainder.Sub(take)
		entry.Amount = entry.Amount.Sub(take)
		if entry.Amount.IsPositive() {
			kept = append(kept, entry)
		}
	}
	pos.Unlocking = kept

	if remainder.IsPositive() {
		extra := math.MinInt(pos.Unlocked.Sub(fromUnlocked), remainder)
		fromUnlocked = fromUnlocked.Add(extra)
		remainder = remainder.Sub(extra)
	}
	if remainder.IsPositive() {
		extra := math.MinInt(pos.Locked.Sub(fromLocked), remainder)
		fromLocked = fromLocked.Add(extra)
		remainder = remainder.Sub(extra)
	}

	pos.Unlocked = pos.Unlocked.Sub(fromUnlocked)
	pos.Locked = pos.Locked.Sub(fromLocked)
	k.SetVaultPosition(ctx, pos)

	return sharesTarget.Sub(remainder), nil
}
