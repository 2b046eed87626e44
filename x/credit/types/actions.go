package types

import (
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/credit-engine/pkg/smath"
)

// ActionCoin names an amount of one denom. All substitutes the account's
// full holding of the denom at execution time.
type ActionCoin struct {
	Denom  string
	Amount math.Int
	All    bool
}

// Resolve returns the effective amount against the given holding.
func (c ActionCoin) Resolve(held math.Int) math.Int {
	if c.All {
		return held
	}
	return c.Amount
}

// Validate checks the coin names a denom and, unless All, a positive amount.
func (c ActionCoin) Validate() error {
	if c.Denom == "" {
		return ErrInvalidActions
	}
	if c.All {
		return nil
	}
	if c.Amount.IsNil() || !c.Amount.IsPositive() {
		return ErrInvalidActions
	}
	return nil
}

// WithdrawToWallet sends account coins to an arbitrary wallet address.
type WithdrawToWallet struct {
	Coin      ActionCoin
	Recipient string
}

// SwapExactIn trades account coins through the swapper.
type SwapExactIn struct {
	CoinIn     ActionCoin
	DenomOut   string
	MinReceive math.Int
}

// ExecutePerpOrder adjusts the account's perp position in one market.
// OrderSize is signed: positive buys, negative sells.
type ExecutePerpOrder struct {
	Denom      string
	OrderSize  smath.SignedInt
	ReduceOnly bool
}

// UnlockFromPerpVault starts the cooldown on perp-vault shares.
type UnlockFromPerpVault struct {
	Shares math.Int
}

// WithdrawFromPerpVault redeems every matured perp-vault unlock.
type WithdrawFromPerpVault struct{}

// EnterVault deposits account coins into a third-party vault.
type EnterVault struct {
	VaultDenom string
	Coin       ActionCoin
}

// ExitVault redeems unlocked vault shares back to account coins.
type ExitVault struct {
	VaultDenom string
	Amount     math.Int
}

// RequestVaultUnlock queues locked vault shares for release.
type RequestVaultUnlock struct {
	VaultDenom string
	Amount     math.Int
}

// ExitVaultUnlocked redeems one matured unlock entry.
type ExitVaultUnlocked struct {
	VaultDenom string
	Id         uint64
}

// CreateTriggerOrder stores actions to run later, once every condition
// holds. The keeper fee is escrowed from the account balance.
type CreateTriggerOrder struct {
	Actions    []Action
	Conditions []TriggerCondition
	KeeperFee  sdk.Coin
}

// DeleteTriggerOrder removes a live trigger order and refunds its escrow.
type DeleteTriggerOrder struct {
	OrderID uint64
}

// LiquidationRequestKind selects which of the liquidatee's holdings the
// liquidator wants seized.
type LiquidationRequestKind int

const (
	RequestDeposit LiquidationRequestKind = iota + 1
	RequestLend
	RequestVault
)

// String implements fmt.Stringer
func (k LiquidationRequestKind) String() string {
	switch k {
	case RequestDeposit:
		return "deposit"
	case RequestLend:
		return "lend"
	case RequestVault:
		return "vault"
	default:
		return "unknown"
	}
}

// LiquidationRequest names the collateral a liquidator asks for. Denom is
// the coin denom for deposit/lend requests and the vault denom for vault
// requests.
type LiquidationRequest struct {
	Kind  LiquidationRequestKind
	Denom string
}

// Liquidate repays part of an unhealthy account's debt from the caller's
// balance in exchange for a discounted slice of its collateral.
type Liquidate struct {
	LiquidateeAccountID string
	DebtCoin            sdk.Coin
	Request             LiquidationRequest
}

// Action is a tagged union: exactly one variant pointer is set. The
// dispatcher executes a batch of them in caller order.
type Action struct {
	Deposit               *sdk.Coin
	Withdraw              *ActionCoin
	WithdrawToWallet      *WithdrawToWallet
	Borrow                *sdk.Coin
	Repay                 *ActionCoin
	Lend                  *ActionCoin
	Reclaim               *ActionCoin
	SwapExactIn           *SwapExactIn
	ExecutePerpOrder      *ExecutePerpOrder
	DepositToPerpVault    *ActionCoin
	UnlockFromPerpVault   *UnlockFromPerpVault
	WithdrawFromPerpVault *WithdrawFromPerpVault
	EnterVault            *EnterVault
	ExitVault             *ExitVault
	RequestVaultUnlock    *RequestVaultUnlock
	ExitVaultUnlocked     *ExitVaultUnlocked
	CreateTriggerOrder    *CreateTriggerOrder
	DeleteTriggerOrder    *DeleteTriggerOrder
	Liquidate             *Liquidate
}

// variants returns the set pointers, paired with their wire names.
func (a Action) variants() []struct {
	name string
	set  bool
} {
	return []struct {
		name string
		set  bool
	}{
		{"deposit", a.Deposit != nil},
		{"withdraw", a.Withdraw != nil},
		{"withdraw_to_wallet", a.WithdrawToWallet != nil},
		{"borrow", a.Borrow != nil},
		{"repay", a.Repay != nil},
		{"lend", a.Lend != nil},
		{"reclaim", a.Reclaim != nil},
		{"swap_exact_in", a.SwapExactIn != nil},
		{"execute_perp_order", a.ExecutePerpOrder != nil},
		{"deposit_to_perp_vault", a.DepositToPerpVault != nil},
		{"unlock_from_perp_vault", a.UnlockFromPerpVault != nil},
		{"withdraw_from_perp_vault", a.WithdrawFromPerpVault != nil},
		{"enter_vault", a.EnterVault != nil},
		{"exit_vault", a.ExitVault != nil},
		{"request_vault_unlock", a.RequestVaultUnlock != nil},
		{"exit_vault_unlocked", a.ExitVaultUnlocked != nil},
		{"create_trigger_order", a.CreateTriggerOrder != nil},
		{"delete_trigger_order", a.DeleteTriggerOrder != nil},
		{"liquidate", a.Liquidate != nil},
	}
}

// Name returns the wire name of the set variant, for events and logs.
func (a Action) Name() string {
	for _, v := range a.variants() {
		if v.set {
			return v.name
		}
	}
	return "empty"
}

// Validate requires exactly one variant and checks its fields.
func (a Action) Validate() error {
	count := 0
	for _, v := range a.variants() {
		if v.set {
			count++
		}
	}
	if count != 1 {
		return ErrInvalidActions
	}

	switch {
	case a.Deposit != nil:
		if err := a.Deposit.Validate(); err != nil || !a.Deposit.Amount.IsPositive() {
			return ErrInvalidActions
		}
	case a.Withdraw != nil:
		return a.Withdraw.Validate()
	case a.WithdrawToWallet != nil:
		if a.WithdrawToWallet.Recipient == "" {
			return ErrInvalidActions
		}
		return a.WithdrawToWallet.Coin.Validate()
	case a.Borrow != nil:
		if err := a.Borrow.Validate(); err != nil || !a.Borrow.Amount.IsPositive() {
			return ErrInvalidActions
		}
	case a.Repay != nil:
		return a.Repay.Validate()
	case a.Lend != nil:
		return a.Lend.Validate()
	case a.Reclaim != nil:
		return a.Reclaim.Validate()
	case a.SwapExactIn != nil:
		if a.SwapExactIn.DenomOut == "" || a.SwapExactIn.MinReceive.IsNil() || a.SwapExactIn.MinReceive.IsNegative() {
			return ErrInvalidActions
		}
		return a.SwapExactIn.CoinIn.Validate()
	case a.ExecutePerpOrder != nil:
		if a.ExecutePerpOrder.Denom == "" || a.ExecutePerpOrder.OrderSize.IsZero() {
			return ErrInvalidActions
		}
	case a.DepositToPerpVault != nil:
		return a.DepositToPerpVault.Validate()
	case a.UnlockFromPerpVault != nil:
		if a.UnlockFromPerpVault.Shares.IsNil() || !a.UnlockFromPerpVault.Shares.IsPositive() {
			return ErrInvalidActions
		}
	case a.EnterVault != nil:
		if a.EnterVault.VaultDenom == "" {
			return ErrInvalidActions
		}
		return a.EnterVault.Coin.Validate()
	case a.ExitVault != nil:
		if a.ExitVault.VaultDenom == "" || a.ExitVault.Amount.IsNil() || !a.ExitVault.Amount.IsPositive() {
			return ErrInvalidActions
		}
	case a.RequestVaultUnlock != nil:
		if a.RequestVaultUnlock.VaultDenom == "" || a.RequestVaultUnlock.Amount.IsNil() || !a.RequestVaultUnlock.Amount.IsPositive() {
			return ErrInvalidActions
		}
	case a.ExitVaultUnlocked != nil:
		if a.ExitVaultUnlocked.VaultDenom == "" {
			return ErrInvalidActions
		}
	case a.CreateTriggerOrder != nil:
		if len(a.CreateTriggerOrder.Actions) == 0 {
			return ErrInvalidActions
		}
		for _, inner := range a.CreateTriggerOrder.Actions {
			if err := inner.Validate(); err != nil {
				return err
			}
		}
		for _, cond := range a.CreateTriggerOrder.Conditions {
			if err := cond.Validate(); err != nil {
				return err
			}
		}
	case a.Liquidate != nil:
		if a.Liquidate.LiquidateeAccountID == "" || a.Liquidate.Request.Denom == "" {
			return ErrInvalidActions
		}
		if err := a.Liquidate.DebtCoin.Validate(); err != nil || !a.Liquidate.DebtCoin.Amount.IsPositive() {
			return ErrInvalidActions
		}
		switch a.Liquidate.Request.Kind {
		case RequestDeposit, RequestLend, RequestVault:
		default:
			return ErrInvalidActions
		}
	}
	return nil
}

// AffectsHealth reports whether executing the action can move the account's
// health factor. Pure additions and trigger-order bookkeeping are exempt,
// which lets unhealthy accounts top up or cancel orders without tripping the
// post-batch assertion. Liquidate runs its own liquidatee-side check but
// still spends the caller's balance, so it counts.
func (a Action) AffectsHealth() bool {
	switch {
	case a.Deposit != nil, a.CreateTriggerOrder != nil, a.DeleteTriggerOrder != nil:
		return false
	default:
		return true
	}
}
