package keeper

import (
	"errors"
	"strings"
	"testing"
	"time"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/credit-engine/x/credit/types"
)

// TestEnterVaultBuckets tests that lockup vaults credit the locked bucket
func TestEnterVaultBuckets(t *testing.T) {
	f := setupCreditKeeper(t)
	alice := testAddr("alice")
	accountID := f.createAccount(t, alice)

	deposit := coin(atomDenom, 500)
	liquid := types.EnterVault{VaultDenom: liquidVault, Coin: acoin(atomDenom, 200)}
	locked := types.EnterVault{VaultDenom: lockedVault, Coin: allCoin(atomDenom)}
	actions := []types.Action{
		{Deposit: &deposit},
		{EnterVault: &liquid},
		{EnterVault: &locked},
	}
	if err := f.dispatch(alice, accountID, actions, sdk.NewCoins(deposit)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	pos := f.keeper.GetVaultPosition(f.ctx, accountID, liquidVault)
	if pos == nil || !pos.Unlocked.Equal(math.NewInt(200)) || !pos.Locked.IsZero() {
		t.Errorf("expected 200 unlocked in the liquid vault, got %+v", pos)
	}
	pos = f.keeper.GetVaultPosition(f.ctx, accountID, lockedVault)
	if pos == nil || !pos.Locked.Equal(math.NewInt(300)) || !pos.Unlocked.IsZero() {
		t.Errorf("expected 300 locked in the lockup vault, got %+v", pos)
	}
	if bal := f.keeper.GetAccountBalance(f.ctx, accountID, atomDenom); !bal.IsZero() {
		t.Errorf("expected ledger drained into the vaults, got %s", bal)
	}
}

// TestExitVault tests redeeming unlocked shares
func TestExitVault(t *testing.T) {
	f := setupCreditKeeper(t)
	alice := testAddr("alice")
	accountID := f.createAccount(t, alice)

	deposit := coin(atomDenom, 200)
	enter := types.EnterVault{VaultDenom: liquidVault, Coin: allCoin(atomDenom)}
	actions := []types.Action{{Deposit: &deposit}, {EnterVault: &enter}}
	if err := f.dispatch(alice, accountID, actions, sdk.NewCoins(deposit)); err != nil {
		t.Fatalf("enter vault: %v", err)
	}

	exit := types.ExitVault{VaultDenom: liquidVault, Amount: math.NewInt(150)}
	if err := f.dispatch(alice, accountID, []types.Action{{ExitVault: &exit}}, nil); err != nil {
		t.Fatalf("exit vault: %v", err)
	}
	if bal := f.keeper.GetAccountBalance(f.ctx, accountID, atomDenom); !bal.Equal(math.NewInt(150)) {
		t.Errorf("expected 150 redeemed, got %s", bal)
	}
	pos := f.keeper.GetVaultPosition(f.ctx, accountID, liquidVault)
	if pos == nil || !pos.Unlocked.Equal(math.NewInt(50)) {
		t.Errorf("expected 50 shares left, got %+v", pos)
	}

	// Redeeming beyond the unlocked bucket fails with both operands.
	over := types.ExitVault{VaultDenom: liquidVault, Amount: math.NewInt(200)}
	err := f.dispatch(alice, accountID, []types.Action{{ExitVault: &over}}, nil)
	if err == nil || !strings.Contains(err.Error(), "cannot subtract 200 from 50") {
		t.Errorf("expected overdraw operands, got %v", err)
	}

	// Unknown vaults have no position to exit.
	missing := types.ExitVault{VaultDenom: "vault/none", Amount: math.NewInt(1)}
	if err := f.dispatch(alice, accountID, []types.Action{{ExitVault: &missing}}, nil); !errors.Is(err, types.ErrVaultPositionNotFound) {
		t.Errorf("expected ErrVaultPositionNotFound, got %v", err)
	}

	// Draining the last shares prunes the position.
	rest := types.ExitVault{VaultDenom: liquidVault, Amount: math.NewInt(50)}
	if err := f.dispatch(alice, accountID, []types.Action{{ExitVault: &rest}}, nil); err != nil {
		t.Fatalf("exit rest: %v", err)
	}
	if pos := f.keeper.GetVaultPosition(f.ctx, accountID, liquidVault); pos != nil {
		t.Errorf("expected position pruned, got %+v", pos)
	}
}

// TestRequestVaultUnlock tests the unlock queue lifecycle
func TestRequestVaultUnlock(t *testing.T) {
	f := setupCreditKeeper(t)
	alice := testAddr("alice")
	accountID := f.createAccount(t, alice)

	deposit := coin(atomDenom, 300)
	enter := types.EnterVault{VaultDenom: lockedVault, Coin: allCoin(atomDenom)}
	actions := []types.Action{{Deposit: &deposit}, {EnterVault: &enter}}
	if err := f.dispatch(alice, accountID, actions, sdk.NewCoins(deposit)); err != nil {
		t.Fatalf("enter vault: %v", err)
	}

	request := types.RequestVaultUnlock{VaultDenom: lockedVault, Amount: math.NewInt(120)}
	if err := f.dispatch(alice, accountID, []types.Action{{RequestVaultUnlock: &request}}, nil); err != nil {
		t.Fatalf("request unlock: %v", err)
	}

	pos := f.keeper.GetVaultPosition(f.ctx, accountID, lockedVault)
	if pos == nil {
		t.Fatal("expected position")
	}
	if !pos.Locked.Equal(math.NewInt(180)) {
		t.Errorf("expected 180 still locked, got %s", pos.Locked)
	}
	if len(pos.Unlocking) != 1 || !pos.Unlocking[0].Amount.Equal(math.NewInt(120)) {
		t.Fatalf("expected one queued unlock of 120, got %+v", pos.Unlocking)
	}
	entryID := pos.Unlocking[0].Id
	wantRelease := f.ctx.BlockTime().Unix() + lockedVaultLockup
	if pos.Unlocking[0].ReleasedAt != wantRelease {
		t.Errorf("expected release at %d, got %d", wantRelease, pos.Unlocking[0].ReleasedAt)
	}

	// Exiting before release stays blocked.
	exit := types.ExitVaultUnlocked{VaultDenom: lockedVault, Id: entryID}
	if err := f.dispatch(alice, accountID, []types.Action{{ExitVaultUnlocked: &exit}}, nil); !errors.Is(err, types.ErrUnlockNotReady) {
		t.Errorf("expected ErrUnlockNotReady, got %v", err)
	}

	f.advance(time.Duration(lockedVaultLockup) * time.Second)

	if err := f.dispatch(alice, accountID, []types.Action{{ExitVaultUnlocked: &exit}}, nil); err != nil {
		t.Fatalf("exit unlocked: %v", err)
	}
	if bal := f.keeper.GetAccountBalance(f.ctx, accountID, atomDenom); !bal.Equal(math.NewInt(120)) {
		t.Errorf("expected 120 redeemed, got %s", bal)
	}
	pos = f.keeper.GetVaultPosition(f.ctx, accountID, lockedVault)
	if pos == nil || len(pos.Unlocking) != 0 {
		t.Errorf("expected empty unlock queue, got %+v", pos)
	}

	// The entry is gone now.
	if err := f.dispatch(alice, accountID, []types.Action{{ExitVaultUnlocked: &exit}}, nil); !errors.Is(err, types.ErrUnlockEntryNotFound) {
		t.Errorf("expected ErrUnlockEntryNotFound, got %v", err)
	}
}

// TestRequestVaultUnlockCap tests the queue length limit
func TestRequestVaultUnlockCap(t *testing.T) {
	f := setupCreditKeeper(t)
	alice := testAddr("alice")
	accountID := f.createAccount(t, alice)

	cfg := f.keeper.GetConfig(f.ctx)
	cfg.MaxUnlockingPositions = 2
	f.keeper.SetConfig(f.ctx, cfg)

	deposit := coin(atomDenom, 300)
	enter := types.EnterVault{VaultDenom: lockedVault, Coin: allCoin(atomDenom)}
	actions := []types.Action{{Deposit: &deposit}, {EnterVault: &enter}}
	if err := f.dispatch(alice, accountID, actions, sdk.NewCoins(deposit)); err != nil {
		t.Fatalf("enter vault: %v", err)
	}

	for i := 0; i < 2; i++ {
		request := types.RequestVaultUnlock{VaultDenom: lockedVault, Amount: math.NewInt(50)}
		if err := f.dispatch(alice, accountID, []types.Action{{RequestVaultUnlock: &request}}, nil); err != nil {
			t.Fatalf("request unlock %d: %v", i, err)
		}
	}

	third := types.RequestVaultUnlock{VaultDenom: lockedVault, Amount: math.NewInt(50)}
	err := f.dispatch(alice, accountID, []types.Action{{RequestVaultUnlock: &third}}, nil)
	if !errors.Is(err, types.ErrMaxUnlocksReached) {
		t.Errorf("expected ErrMaxUnlocksReached, got %v", err)
	}
}

// TestSeizeVaultShares tests the proportional liquidation seizure
func TestSeizeVaultShares(t *testing.T) {
	f := setupCreditKeeper(t)
	accountID := f.createAccount(t, testAddr("alice"))

	pos := types.NewVaultPosition(accountID, lockedVault)
	pos.Unlocked = math.NewInt(500)
	pos.Locked = math.NewInt(300)
	pos.Unlocking = []types.UnlockEntry{{Id: 9, Amount: math.NewInt(200), ReleasedAt: f.ctx.BlockTime().Unix() + 1000}}
	f.keeper.SetVaultPosition(f.ctx, pos)

	taken, err := f.keeper.seizeVaultShares(f.ctx, pos, math.NewInt(314))
	if err != nil {
		t.Fatalf("seize: %v", err)
	}
	if !taken.Equal(math.NewInt(314)) {
		t.Errorf("expected 314 taken, got %s", taken)
	}

	// 157 from unlocked and 94 from locked are the floored pro-rata slices,
	// the 63 remainder comes out of the queue entry.
	got := f.keeper.GetVaultPosition(f.ctx, accountID, lockedVault)
	if got == nil {
		t.Fatal("expected position")
	}
	if !got.Unlocked.Equal(math.NewInt(343)) {
		t.Errorf("expected 343 unlocked left, got %s", got.Unlocked)
	}
	if !got.Locked.Equal(math.NewInt(206)) {
		t.Errorf("expected 206 locked left, got %s", got.Locked)
	}
	if len(got.Unlocking) != 1 || !got.Unlocking[0].Amount.Equal(math.NewInt(137)) {
		t.Errorf("expected queue entry cut to 137, got %+v", got.Unlocking)
	}

	// Targets beyond the total cap at the total and drain the position.
	taken, err = f.keeper.seizeVaultShares(f.ctx, got, math.NewInt(2000))
	if err != nil {
		t.Fatalf("seize all: %v", err)
	}
	if !taken.Equal(math.NewInt(686)) {
		t.Errorf("expected 686 taken, got %s", taken)
	}
	if rest := f.keeper.GetVaultPosition(f.ctx, accountID, lockedVault); rest != nil {
		t.Errorf("expected position pruned, got %+v", rest)
	}
}
