package keeper

import (
	"encoding/json"
	"fmt"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	storetypes "cosmossdk.io/store/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/google/btree"

	"github.com/openalpha/credit-engine/x/credit/types"
	healthtypes "github.com/openalpha/credit-engine/x/health/types"
)

const btreeDegree = 32

// ============ Trigger Order Store ============

func triggerOrderKey(accountID string, orderID uint64) []byte {
	key := append([]byte{}, TriggerOrderKeyPrefix...)
	return append(key, []byte(fmt.Sprintf("%s:%020d", accountID, orderID))...)
}

// GetTriggerOrder returns one order or nil.
func (k *Keeper) GetTriggerOrder(ctx sdk.Context, accountID string, orderID uint64) *types.TriggerOrder {
	store := ctx.KVStore(k.storeKey)
	bz := store.Get(triggerOrderKey(accountID, orderID))
	if bz == nil {
		return nil
	}
	var order types.TriggerOrder
	if err := json.Unmarshal(bz, &order); err != nil {
		return nil
	}
	return &order
}

// SetTriggerOrder stores an order.
func (k *Keeper) SetTriggerOrder(ctx sdk.Context, order *types.TriggerOrder) {
	store := ctx.KVStore(k.storeKey)
	bz, _ := json.Marshal(order)
	store.Set(triggerOrderKey(order.AccountID, order.OrderID), bz)
}

func (k *Keeper) removeTriggerOrder(ctx sdk.Context, accountID string, orderID uint64) {
	store := ctx.KVStore(k.storeKey)
	store.Delete(triggerOrderKey(accountID, orderID))
}

// GetTriggerOrders returns every live order of one account, id-ordered.
func (k *Keeper) GetTriggerOrders(ctx sdk.Context, accountID string) []*types.TriggerOrder {
	store := ctx.KVStore(k.storeKey)
	keyPrefix := accountPrefix(TriggerOrderKeyPrefix, accountID)
	iterator := storetypes.KVStorePrefixIterator(store, keyPrefix)
	defer iterator.Close()

	var orders []*types.TriggerOrder
	for ; iterator.Valid(); iterator.Next() {
		var order types.TriggerOrder
		if err := json.Unmarshal(iterator.Value(), &order); err != nil {
			continue
		}
		orders = append(orders, &order)
	}
	return orders
}

// AllTriggerOrders returns every live order across accounts.
func (k *Keeper) AllTriggerOrders(ctx sdk.Context) []*types.TriggerOrder {
	store := ctx.KVStore(k.storeKey)
	iterator := storetypes.KVStorePrefixIterator(store, TriggerOrderKeyPrefix)
	defer iterator.Close()

	var orders []*types.TriggerOrder
	for ; iterator.Valid(); iterator.Next() {
		var order types.TriggerOrder
		if err := json.Unmarshal(iterator.Value(), &order); err != nil {
			continue
		}
		orders = append(orders, &order)
	}
	return orders
}

// nextTriggerOrderID increments the global order counter.
func (k *Keeper) nextTriggerOrderID(ctx sdk.Context) uint64 {
	store := ctx.KVStore(k.storeKey)
	next := uint64(1)
	if bz := store.Get(NextTriggerOrderIDKey); bz != nil {
		next = sdk.BigEndianToUint64(bz) + 1
	}
	store.Set(NextTriggerOrderIDKey, sdk.Uint64ToBigEndian(next))
	return next
}

// ============ Trigger Order Flow ============

// CreateTriggerOrder validates and stores an order, escrowing the keeper fee
// out of the account balance. Only perp orders may ride inside: everything
// else could move collateral out from under the health gate between
// placement and execution.
func (k *Keeper) CreateTriggerOrder(ctx sdk.Context, accountID string, action types.CreateTriggerOrder) (uint64, error) {
	for _, inner := range action.Actions {
		if inner.ExecutePerpOrder == nil {
			return 0, errorsmod.Wrapf(types.ErrIllegalTriggerAction, "%s", inner.Name())
		}
	}
	if len(action.Conditions) == 0 {
		return 0, types.ErrMissingTriggerConditions
	}

	cfg := k.GetConfig(ctx)
	min := cfg.KeeperFee.MinFee
	if action.KeeperFee.Denom != min.Denom || action.KeeperFee.Amount.LT(min.Amount) {
		return 0, errorsmod.Wrapf(types.ErrKeeperFeeTooSmall, "fee %s, minimum %s", action.KeeperFee.String(), min.String())
	}
	if len(k.GetTriggerOrders(ctx, accountID)) >= cfg.MaxTriggerOrders {
		return 0, types.ErrMaxTriggerOrdersReached
	}

	// escrow from the balance tier only; a short balance fails rather than
	// waterfalling into a borrow
	if err := k.DecreaseAccountBalance(ctx, accountID, action.KeeperFee); err != nil {
		return 0, err
	}

	order := &types.TriggerOrder{
		AccountID:  accountID,
		OrderID:    k.nextTriggerOrderID(ctx),
		Actions:    action.Actions,
		Conditions: action.Conditions,
		KeeperFee:  action.KeeperFee,
		CreatedAt:  ctx.BlockTime().Unix(),
	}
	k.SetTriggerOrder(ctx, order)
	k.markTriggerIndexDirty()

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			"create_trigger_order",
			sdk.NewAttribute("account_id", accountID),
			sdk.NewAttribute("order_id", fmt.Sprintf("%d", order.OrderID)),
			sdk.NewAttribute("keeper_fee", order.KeeperFee.String()),
		),
	)
	k.Logger().Info("created trigger order", "account_id", accountID, "order_id", order.OrderID)

	return order.OrderID, nil
}

// DeleteTriggerOrder removes a live order and refunds its escrow.
func (k *Keeper) DeleteTriggerOrder(ctx sdk.Context, accountID string, orderID uint64) error {
	order := k.GetTriggerOrder(ctx, accountID, orderID)
	if order == nil {
		return errorsmod.Wrapf(types.ErrTriggerOrderNotFound, "%s/%d", accountID, orderID)
	}
	k.removeTriggerOrder(ctx, accountID, orderID)
	k.markTriggerIndexDirty()

	if err := k.IncreaseAccountBalance(ctx, accountID, order.KeeperFee); err != nil {
		return err
	}

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			"delete_trigger_order",
			sdk.NewAttribute("account_id", accountID),
			sdk.NewAttribute("order_id", fmt.Sprintf("%d", orderID)),
		),
	)
	return nil
}

// ExecuteTriggerOrder fires a stored order for anyone willing to pay the
// gas: conditions are all re-verified, the order is removed before the
// actions run so keeper races fail closed, and the escrowed fee pays the
// executor's wallet.
func (k *Keeper) ExecuteTriggerOrder(ctx sdk.Context, executor, accountID string, orderID uint64) error {
	order := k.GetTriggerOrder(ctx, accountID, orderID)
	if order == nil {
		return errorsmod.Wrapf(types.ErrTriggerOrderNotFound, "%s/%d", accountID, orderID)
	}

	if err := k.checkTriggerConditions(ctx, accountID, order.Conditions); err != nil {
		return err
	}

	k.removeTriggerOrder(ctx, accountID, orderID)
	k.markTriggerIndexDirty()

	owner, err := k.nftKeeper.OwnerOf(ctx, accountID)
	if err != nil {
		return errorsmod.Wrapf(types.ErrAccountNotFound, "%s", accountID)
	}
	if _, err := k.DispatchActions(ctx, owner, accountID, "", order.Actions, nil, false); err != nil {
		return err
	}

	executorAddr, err := sdk.AccAddressFromBech32(executor)
	if err != nil {
		return err
	}
	if err := k.bankKeeper.SendCoinsFromModuleToAccount(ctx, types.ModuleName, executorAddr, sdk.NewCoins(order.KeeperFee)); err != nil {
		return err
	}

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			"execute_trigger_order",
			sdk.NewAttribute("account_id", accountID),
			sdk.NewAttribute("order_id", fmt.Sprintf("%d", orderID)),
			sdk.NewAttribute("executor", executor),
			sdk.NewAttribute("keeper_fee", order.KeeperFee.String()),
		),
	)
	k.Logger().Info("executed trigger order", "account_id", accountID, "order_id", orderID, "executor", executor)

	return nil
}

// checkTriggerConditions verifies every condition against live state.
func (k *Keeper) checkTriggerConditions(ctx sdk.Context, accountID string, conditions []types.TriggerCondition) error {
	for _, cond := range conditions {
		switch {
		case cond.OraclePrice != nil:
			price, err := k.oracleKeeper.GetPrice(ctx, cond.OraclePrice.Denom)
			if err != nil {
				return err
			}
			if !cond.OraclePrice.Cmp.Check(price, cond.OraclePrice.Price) {
				return errorsmod.Wrapf(types.ErrTriggerConditionsNotMet, "%s price %s not %s %s",
					cond.OraclePrice.Denom, price.String(), cond.OraclePrice.Cmp.String(), cond.OraclePrice.Price.String())
			}
		case cond.HealthFactor != nil:
			health, err := k.healthKeeper.HealthValues(ctx, accountID, healthtypes.PricingDefault)
			if err != nil {
				return err
			}
			if health.LiquidationHealthFactor == nil {
				return errorsmod.Wrap(types.ErrTriggerConditionsNotMet, "account has no debt, health factor undefined")
			}
			if !cond.HealthFactor.Cmp.Check(*health.LiquidationHealthFactor, cond.HealthFactor.Threshold) {
				return errorsmod.Wrapf(types.ErrTriggerConditionsNotMet, "health factor %s not %s %s",
					health.LiquidationHealthFactor.String(), cond.HealthFactor.Cmp.String(), cond.HealthFactor.Threshold.String())
			}
		case cond.RelativePrice != nil:
			basePrice, err := k.oracleKeeper.GetPrice(ctx, cond.RelativePrice.BaseDenom)
			if err != nil {
				return err
			}
			quotePrice, err := k.oracleKeeper.GetPrice(ctx, cond.RelativePrice.QuoteDenom)
			if err != nil {
				return err
			}
			if quotePrice.IsZero() {
				return errorsmod.Wrapf(types.ErrTriggerConditionsNotMet, "quote denom %s has zero price", cond.RelativePrice.QuoteDenom)
			}
			relative := basePrice.Quo(quotePrice)
			if !cond.RelativePrice.Cmp.Check(relative, cond.RelativePrice.Price) {
				return errorsmod.Wrapf(types.ErrTriggerConditionsNotMet, "%s/%s price %s not %s %s",
					cond.RelativePrice.BaseDenom, cond.RelativePrice.QuoteDenom, relative.String(),
					cond.RelativePrice.Cmp.String(), cond.RelativePrice.Price.String())
			}
		}
	}
	return nil
}

// RemoveReduceOnlyTriggers purges reduce-only perp trigger orders in one
// denom after the underlying position closed or flipped, refunding their
// escrow. Called back by the perps engine.
func (k *Keeper) RemoveReduceOnlyTriggers(ctx sdk.Context, accountID, denom string) error {
	for _, order := range k.GetTriggerOrders(ctx, accountID) {
		purge := false
		for _, action := range order.Actions {
			if action.ExecutePerpOrder != nil && action.ExecutePerpOrder.Denom == denom && action.ExecutePerpOrder.ReduceOnly {
				purge = true
				break
			}
		}
		if !purge {
			continue
		}
		k.removeTriggerOrder(ctx, accountID, order.OrderID)
		if err := k.IncreaseAccountBalance(ctx, accountID, order.KeeperFee); err != nil {
			return err
		}
		k.Logger().Info("purged reduce-only trigger order", "account_id", accountID, "order_id", order.OrderID, "denom", denom)
	}
	k.markTriggerIndexDirty()
	return nil
}

// ============ Trigger Index ============

// triggerItem is a btree entry ordering orders by their price bound.
type triggerItem struct {
	price     math.LegacyDec
	accountID string
	orderID   uint64
}

// Less orders by bound price, then account, then order id.
func (i *triggerItem) Less(than btree.Item) bool {
	other := than.(*triggerItem)
	if !i.price.Equal(other.price) {
		return i.price.LT(other.price)
	}
	if i.accountID != other.accountID {
		return i.accountID < other.accountID
	}
	return i.orderID < other.orderID
}

type triggerRef struct {
	accountID string
	orderID   uint64
}

// triggerIndex accelerates the executable-order scan. Orders with an
// oracle-price condition sit in per-denom btrees keyed by their bound;
// everything else is fully evaluated each scan. The store stays the source
// of truth: every candidate is re-read and re-checked before being
// returned.
type triggerIndex struct {
	below map[string]*btree.BTree // fire when price drops under the bound
	above map[string]*btree.BTree // fire when price rises over the bound
	rest  []triggerRef
}

func newTriggerIndex() *triggerIndex {
	return &triggerIndex{
		below: make(map[string]*btree.BTree),
		above: make(map[string]*btree.BTree),
	}
}

func (idx *triggerIndex) insert(order *types.TriggerOrder) {
	for _, cond := range order.Conditions {
		if cond.OraclePrice == nil {
			continue
		}
		trees := idx.above
		if cond.OraclePrice.Cmp == types.LessThan {
			trees = idx.below
		}
		tree, ok := trees[cond.OraclePrice.Denom]
		if !ok {
			tree = btree.New(btreeDegree)
			trees[cond.OraclePrice.Denom] = tree
		}
		tree.ReplaceOrInsert(&triggerItem{
			price:     cond.OraclePrice.Price,
			accountID: order.AccountID,
			orderID:   order.OrderID,
		})
		return
	}
	idx.rest = append(idx.rest, triggerRef{accountID: order.AccountID, orderID: order.OrderID})
}

// markTriggerIndexDirty drops the index; the next scan rebuilds it.
func (k *Keeper) markTriggerIndexDirty() {
	k.triggerIdxMu.Lock()
	k.triggerIdx = nil
	k.triggerIdxMu.Unlock()
}

// triggerIndexSnapshot returns the index, rebuilding it from the store when
// a mutation dropped it.
func (k *Keeper) triggerIndexSnapshot(ctx sdk.Context) *triggerIndex {
	k.triggerIdxMu.RLock()
	idx := k.triggerIdx
	k.triggerIdxMu.RUnlock()
	if idx != nil {
		return idx
	}

	k.triggerIdxMu.Lock()
	defer k.triggerIdxMu.Unlock()
	if k.triggerIdx != nil {
		return k.triggerIdx
	}
	idx = newTriggerIndex()
	for _, order := range k.AllTriggerOrders(ctx) {
		idx.insert(order)
	}
	k.triggerIdx = idx
	return idx
}

// ListExecutableTriggerOrders returns every order whose conditions all hold
// right now, for keepers deciding what to fire.
func (k *Keeper) ListExecutableTriggerOrders(ctx sdk.Context) ([]*types.TriggerOrder, error) {
	idx := k.triggerIndexSnapshot(ctx)

	var refs []triggerRef
	collect := func(item btree.Item) bool {
		ti := item.(*triggerItem)
		refs = append(refs, triggerRef{accountID: ti.accountID, orderID: ti.orderID})
		return true
	}

	for denom, tree := range idx.below {
		price, err := k.oracleKeeper.GetPrice(ctx, denom)
		if err != nil {
			continue
		}
		// a LessThan bound fires while the price sits under it
		tree.AscendGreaterOrEqual(&triggerItem{price: price}, collect)
	}
	for denom, tree := range idx.above {
		price, err := k.oracleKeeper.GetPrice(ctx, denom)
		if err != nil {
			continue
		}
		tree.AscendLessThan(&triggerItem{price: price}, collect)
	}
	refs = append(refs, idx.rest...)

	var executable []*types.TriggerOrder
	for _, ref := range refs {
		order := k.GetTriggerOrder(ctx, ref.accountID, ref.orderID)
		if order == nil {
			continue
		}
		if err := k.checkTriggerConditions(ctx, ref.accountID, order.Conditions); err != nil {
			continue
		}
		executable = append(executable, order)
	}
	return executable, nil
}
