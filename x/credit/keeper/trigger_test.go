package keeper

import (
	"errors"
	"strings"
	"testing"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/credit-engine/x/credit/types"
)

func perpTriggerAction(size int64, reduceOnly bool) types.Action {
	return types.Action{ExecutePerpOrder: &types.ExecutePerpOrder{
		Denom:      btcDenom,
		OrderSize:  si(size),
		ReduceOnly: reduceOnly,
	}}
}

func priceBelowCondition(price string) types.TriggerCondition {
	return types.TriggerCondition{OraclePrice: &types.OraclePriceCondition{
		Denom: btcDenom,
		Price: dec(price),
		Cmp:   types.LessThan,
	}}
}

func priceAboveCondition(price string) types.TriggerCondition {
	return types.TriggerCondition{OraclePrice: &types.OraclePriceCondition{
		Denom: btcDenom,
		Price: dec(price),
		Cmp:   types.GreaterThan,
	}}
}

// TestCreateTriggerOrderValidation tests the keeper-side order checks
func TestCreateTriggerOrderValidation(t *testing.T) {
	f := setupCreditKeeper(t)
	accountID := f.createAccount(t, testAddr("alice"))

	valid := types.CreateTriggerOrder{
		Actions:    []types.Action{perpTriggerAction(100, false)},
		Conditions: []types.TriggerCondition{priceBelowCondition("90")},
		KeeperFee:  coin(testBaseDenom, 1_000_000),
	}

	// Only perp orders may hide behind a trigger.
	wd := acoin(testBaseDenom, 10)
	illegal := valid
	illegal.Actions = []types.Action{{Withdraw: &wd}}
	if _, err := f.keeper.CreateTriggerOrder(f.ctx, accountID, illegal); !errors.Is(err, types.ErrIllegalTriggerAction) {
		t.Errorf("expected ErrIllegalTriggerAction, got %v", err)
	}

	bare := valid
	bare.Conditions = nil
	if _, err := f.keeper.CreateTriggerOrder(f.ctx, accountID, bare); !errors.Is(err, types.ErrMissingTriggerConditions) {
		t.Errorf("expected ErrMissingTriggerConditions, got %v", err)
	}

	cheap := valid
	cheap.KeeperFee = coin(testBaseDenom, 999_999)
	_, err := f.keeper.CreateTriggerOrder(f.ctx, accountID, cheap)
	if !errors.Is(err, types.ErrKeeperFeeTooSmall) {
		t.Errorf("expected ErrKeeperFeeTooSmall, got %v", err)
	}
	if err != nil && !strings.Contains(err.Error(), "minimum") {
		t.Errorf("expected minimum in error, got %q", err.Error())
	}

	wrongDenom := valid
	wrongDenom.KeeperFee = coin(atomDenom, 2_000_000)
	if _, err := f.keeper.CreateTriggerOrder(f.ctx, accountID, wrongDenom); !errors.Is(err, types.ErrKeeperFeeTooSmall) {
		t.Errorf("expected ErrKeeperFeeTooSmall for wrong denom, got %v", err)
	}

	// The escrow comes straight off the balance, never borrowed.
	if _, err := f.keeper.CreateTriggerOrder(f.ctx, accountID, valid); err == nil || !strings.Contains(err.Error(), "cannot subtract") {
		t.Errorf("expected escrow overdraw, got %v", err)
	}

	cfg := f.keeper.GetConfig(f.ctx)
	cfg.MaxTriggerOrders = 1
	f.keeper.SetConfig(f.ctx, cfg)
	f.fundAccount(t, accountID, coin(testBaseDenom, 2_000_000))

	if _, err := f.keeper.CreateTriggerOrder(f.ctx, accountID, valid); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.keeper.CreateTriggerOrder(f.ctx, accountID, valid); !errors.Is(err, types.ErrMaxTriggerOrdersReached) {
		t.Errorf("expected ErrMaxTriggerOrdersReached, got %v", err)
	}
}

// TestTriggerOrderLifecycle tests creation and deletion with escrow
func TestTriggerOrderLifecycle(t *testing.T) {
	f := setupCreditKeeper(t)
	alice := testAddr("alice")
	accountID := f.createAccount(t, alice)

	deposit := coin(testBaseDenom, 2_000_000)
	create := types.CreateTriggerOrder{
		Actions:    []types.Action{perpTriggerAction(100, false)},
		Conditions: []types.TriggerCondition{priceBelowCondition("90")},
		KeeperFee:  coin(testBaseDenom, 1_000_000),
	}
	actions := []types.Action{{Deposit: &deposit}, {CreateTriggerOrder: &create}}
	if err := f.dispatch(alice, accountID, actions, sdk.NewCoins(deposit)); err != nil {
		t.Fatalf("create dispatch: %v", err)
	}

	if bal := f.keeper.GetAccountBalance(f.ctx, accountID, testBaseDenom); !bal.Equal(math.NewInt(1_000_000)) {
		t.Errorf("expected 1000000 escrowed, got balance %s", bal)
	}
	orders := f.keeper.GetTriggerOrders(f.ctx, accountID)
	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}
	order := orders[0]
	if order.CreatedAt != f.ctx.BlockTime().Unix() {
		t.Errorf("expected created at %d, got %d", f.ctx.BlockTime().Unix(), order.CreatedAt)
	}
	if !order.KeeperFee.Equal(coin(testBaseDenom, 1_000_000)) {
		t.Errorf("expected fee preserved, got %s", order.KeeperFee)
	}
	if got := f.keeper.GetTriggerOrder(f.ctx, accountID, order.OrderID); got == nil {
		t.Error("expected order fetchable by id")
	}

	del := types.DeleteTriggerOrder{OrderID: order.OrderID}
	if err := f.dispatch(alice, accountID, []types.Action{{DeleteTriggerOrder: &del}}, nil); err != nil {
		t.Fatalf("delete dispatch: %v", err)
	}
	if bal := f.keeper.GetAccountBalance(f.ctx, accountID, testBaseDenom); !bal.Equal(math.NewInt(2_000_000)) {
		t.Errorf("expected escrow refunded, got %s", bal)
	}
	if orders := f.keeper.GetTriggerOrders(f.ctx, accountID); len(orders) != 0 {
		t.Errorf("expected no orders, got %d", len(orders))
	}

	if err := f.keeper.DeleteTriggerOrder(f.ctx, accountID, order.OrderID); !errors.Is(err, types.ErrTriggerOrderNotFound) {
		t.Errorf("expected ErrTriggerOrderNotFound, got %v", err)
	}
}

// TestExecuteTriggerOrder tests firing a stop order once its price hits
func TestExecuteTriggerOrder(t *testing.T) {
	f := setupCreditKeeper(t)
	alice := testAddr("alice")
	bob := testAddr("bob-keeper")
	accountID := f.createAccount(t, alice)

	deposit := coin(testBaseDenom, 2_000_000)
	create := types.CreateTriggerOrder{
		Actions:    []types.Action{perpTriggerAction(100, false)},
		Conditions: []types.TriggerCondition{priceBelowCondition("90")},
		KeeperFee:  coin(testBaseDenom, 1_000_000),
	}
	actions := []types.Action{{Deposit: &deposit}, {CreateTriggerOrder: &create}}
	if err := f.dispatch(alice, accountID, actions, sdk.NewCoins(deposit)); err != nil {
		t.Fatalf("create dispatch: %v", err)
	}
	orderID := f.keeper.GetTriggerOrders(f.ctx, accountID)[0].OrderID

	// Price has not dipped yet; the order stays live.
	err := f.keeper.ExecuteTriggerOrder(f.ctx, bob, accountID, orderID)
	if !errors.Is(err, types.ErrTriggerConditionsNotMet) {
		t.Fatalf("expected ErrTriggerConditionsNotMet, got %v", err)
	}
	if !strings.Contains(err.Error(), "not less_than") {
		t.Errorf("expected comparison detail, got %q", err.Error())
	}
	if f.keeper.GetTriggerOrder(f.ctx, accountID, orderID) == nil {
		t.Fatal("expected order kept after a failed check")
	}

	f.oracle.prices[btcDenom] = dec("80")

	if err := f.keeper.ExecuteTriggerOrder(f.ctx, bob, accountID, orderID); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if f.keeper.GetTriggerOrder(f.ctx, accountID, orderID) != nil {
		t.Error("expected order removed after execution")
	}
	positions := f.perps.GetAccountPositions(f.ctx, accountID)
	if len(positions) != 1 || !positions[0].Size.Equal(si(100)) {
		t.Fatalf("expected a 100 position, got %+v", positions)
	}
	// Opening fee at price 80: ceil(100 x 80.004 x 0.001) = 9.
	if bal := f.keeper.GetAccountBalance(f.ctx, accountID, testBaseDenom); !bal.Equal(math.NewInt(999_991)) {
		t.Errorf("expected balance 999991, got %s", bal)
	}
	if got := f.bank.balanceOf(bob, testBaseDenom); !got.Equal(math.NewInt(1_000_000)) {
		t.Errorf("expected keeper fee paid to the executor wallet, got %s", got)
	}

	if err := f.keeper.ExecuteTriggerOrder(f.ctx, bob, accountID, orderID); !errors.Is(err, types.ErrTriggerOrderNotFound) {
		t.Errorf("expected ErrTriggerOrderNotFound, got %v", err)
	}
}

// TestTriggerHealthFactorCondition tests conditions on the liquidation factor
func TestTriggerHealthFactorCondition(t *testing.T) {
	f := setupCreditKeeper(t)
	alice := testAddr("alice")
	bob := testAddr("bob-keeper")
	accountID := f.createAccount(t, alice)

	deposit := coin(testBaseDenom, 2_000_000)
	create := types.CreateTriggerOrder{
		Actions: []types.Action{perpTriggerAction(10, false)},
		Conditions: []types.TriggerCondition{{HealthFactor: &types.HealthFactorCondition{
			Threshold: dec("1"),
			Cmp:       types.GreaterThan,
		}}},
		KeeperFee: coin(testBaseDenom, 1_000_000),
	}
	actions := []types.Action{{Deposit: &deposit}, {CreateTriggerOrder: &create}}
	if err := f.dispatch(alice, accountID, actions, sdk.NewCoins(deposit)); err != nil {
		t.Fatalf("create dispatch: %v", err)
	}
	orderID := f.keeper.GetTriggerOrders(f.ctx, accountID)[0].OrderID

	// No debt means no факtor to compare against.
	err := f.keeper.ExecuteTriggerOrder(f.ctx, bob, accountID, orderID)
	if !errors.Is(err, types.ErrTriggerConditionsNotMet) {
		t.Fatalf("expected ErrTriggerConditionsNotMet, got %v", err)
	}
	if !strings.Contains(err.Error(), "health factor undefined") {
		t.Errorf("expected undefined factor detail, got %q", err.Error())
	}

	borrow := coin(testBaseDenom, 100)
	if err := f.dispatch(alice, accountID, []types.Action{{Borrow: &borrow}}, nil); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	if err := f.keeper.ExecuteTriggerOrder(f.ctx, bob, accountID, orderID); err != nil {
		t.Fatalf("execute: %v", err)
	}
	positions := f.perps.GetAccountPositions(f.ctx, accountID)
	if len(positions) != 1 || !positions[0].Size.Equal(si(10)) {
		t.Fatalf("expected a 10 position, got %+v", positions)
	}
	// 1000000 after escrow, +100 borrowed, -2 opening fee.
	if bal := f.keeper.GetAccountBalance(f.ctx, accountID, testBaseDenom); !bal.Equal(math.NewInt(1_000_098)) {
		t.Errorf("expected balance 1000098, got %s", bal)
	}
}

// TestRemoveReduceOnlyTriggers tests the purge when a position closes
func TestRemoveReduceOnlyTriggers(t *testing.T) {
	f := setupCreditKeeper(t)
	alice := testAddr("alice")
	accountID := f.createAccount(t, alice)

	deposit := coin(testBaseDenom, 4_000_000)
	open := perpTriggerAction(100, false)
	actions := []types.Action{{Deposit: &deposit}, open}
	if err := f.dispatch(alice, accountID, actions, sdk.NewCoins(deposit)); err != nil {
		t.Fatalf("open dispatch: %v", err)
	}

	takeProfit := types.CreateTriggerOrder{
		Actions:    []types.Action{perpTriggerAction(-100, true)},
		Conditions: []types.TriggerCondition{priceAboveCondition("150")},
		KeeperFee:  coin(testBaseDenom, 1_000_000),
	}
	dipBuy := types.CreateTriggerOrder{
		Actions:    []types.Action{perpTriggerAction(50, false)},
		Conditions: []types.TriggerCondition{priceBelowCondition("50")},
		KeeperFee:  coin(testBaseDenom, 1_000_000),
	}
	actions = []types.Action{{CreateTriggerOrder: &takeProfit}, {CreateTriggerOrder: &dipBuy}}
	if err := f.dispatch(alice, accountID, actions, nil); err != nil {
		t.Fatalf("create dispatch: %v", err)
	}
	if orders := f.keeper.GetTriggerOrders(f.ctx, accountID); len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}

	// Closing the position purges the reduce-only order and refunds it.
	close := perpTriggerAction(-100, false)
	if err := f.dispatch(alice, accountID, []types.Action{close}, nil); err != nil {
		t.Fatalf("close dispatch: %v", err)
	}

	orders := f.keeper.GetTriggerOrders(f.ctx, accountID)
	if len(orders) != 1 {
		t.Fatalf("expected only the dip-buy order left, got %d", len(orders))
	}
	if orders[0].Actions[0].ExecutePerpOrder.ReduceOnly {
		t.Error("expected the surviving order to be the plain one")
	}
	// 4000000 - 11 open fee - 2000000 escrow - 11 close fee + 1000000 refund.
	if bal := f.keeper.GetAccountBalance(f.ctx, accountID, testBaseDenom); !bal.Equal(math.NewInt(2_999_978)) {
		t.Errorf("expected balance 2999978, got %s", bal)
	}
}

// TestListExecutableTriggerOrders tests the price-indexed keeper scan
func TestListExecutableTriggerOrders(t *testing.T) {
	f := setupCreditKeeper(t)
	alice := testAddr("alice")
	accountID := f.createAccount(t, alice)
	f.fundAccount(t, accountID, coin(testBaseDenom, 3_500_000))

	stopBuy := types.CreateTriggerOrder{
		Actions:    []types.Action{perpTriggerAction(100, false)},
		Conditions: []types.TriggerCondition{priceBelowCondition("90")},
		KeeperFee:  coin(testBaseDenom, 1_000_000),
	}
	breakout := types.CreateTriggerOrder{
		Actions:    []types.Action{perpTriggerAction(10, false)},
		Conditions: []types.TriggerCondition{priceAboveCondition("120")},
		KeeperFee:  coin(testBaseDenom, 1_000_000),
	}
	deleverage := types.CreateTriggerOrder{
		Actions: []types.Action{perpTriggerAction(-10, true)},
		Conditions: []types.TriggerCondition{{HealthFactor: &types.HealthFactorCondition{
			Threshold: dec("1.1"),
			Cmp:       types.LessThan,
		}}},
		KeeperFee: coin(testBaseDenom, 1_000_000),
	}

	belowID, err := f.keeper.CreateTriggerOrder(f.ctx, accountID, stopBuy)
	if err != nil {
		t.Fatalf("create stop buy: %v", err)
	}
	aboveID, err := f.keeper.CreateTriggerOrder(f.ctx, accountID, breakout)
	if err != nil {
		t.Fatalf("create breakout: %v", err)
	}
	if _, err := f.keeper.CreateTriggerOrder(f.ctx, accountID, deleverage); err != nil {
		t.Fatalf("create deleverage: %v", err)
	}

	// At 100 nothing fires: 100 is neither under 90 nor over 120, and the
	// health condition has no factor to read.
	executable, err := f.keeper.ListExecutableTriggerOrders(f.ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(executable) != 0 {
		t.Errorf("expected nothing executable at 100, got %d", len(executable))
	}

	f.oracle.prices[btcDenom] = dec("80")
	executable, err = f.keeper.ListExecutableTriggerOrders(f.ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(executable) != 1 || executable[0].OrderID != belowID {
		t.Errorf("expected only the stop buy at 80, got %+v", executable)
	}

	f.oracle.prices[btcDenom] = dec("130")
	executable, err = f.keeper.ListExecutableTriggerOrders(f.ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(executable) != 1 || executable[0].OrderID != aboveID {
		t.Errorf("expected only the breakout at 130, got %+v", executable)
	}

	// Executing the breakout drops it from the next scan.
	if err := f.keeper.ExecuteTriggerOrder(f.ctx, testAddr("bob-keeper"), accountID, aboveID); err != nil {
		t.Fatalf("execute: %v", err)
	}
	executable, err = f.keeper.ListExecutableTriggerOrders(f.ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(executable) != 0 {
		t.Errorf("expected nothing executable after firing, got %d", len(executable))
	}
}
