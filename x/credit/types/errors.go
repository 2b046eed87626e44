package types

import (
	"cosmossdk.io/errors"
)

// Module error codes
var (
	ErrNotTokenOwner   = errors.Register("credit", 1, "caller is not the account token owner")
	ErrAccountNotFound = errors.Register("credit", 2, "credit account not found")
	ErrInvalidActions  = errors.Register("credit", 3, "invalid action batch")
	ErrInvalidConfig   = errors.Register("credit", 4, "invalid credit config")
	ErrUnauthorized    = errors.Register("credit", 5, "unauthorized")

	// Dispatch errors
	ErrDenomNotWhitelisted = errors.Register("credit", 10, "denom not whitelisted")
	ErrFundsMismatch       = errors.Register("credit", 11, "sent funds do not match deposit actions")
	ErrNoDebt              = errors.Register("credit", 12, "account owes no debt in this denom")
	ErrNothingLent         = errors.Register("credit", 13, "account has nothing lent in this denom")
	ErrSlippageExceeded    = errors.Register("credit", 14, "swap output below minimum receive")

	// Trigger order errors
	ErrIllegalTriggerAction     = errors.Register("credit", 20, "action not allowed inside a trigger order")
	ErrKeeperFeeTooSmall        = errors.Register("credit", 21, "keeper fee below configured minimum")
	ErrMaxTriggerOrdersReached  = errors.Register("credit", 22, "max trigger orders reached")
	ErrTriggerOrderNotFound     = errors.Register("credit", 23, "trigger order not found")
	ErrTriggerConditionsNotMet  = errors.Register("credit", 24, "trigger conditions not met")
	ErrMissingTriggerConditions = errors.Register("credit", 25, "trigger order needs at least one condition")

	// Vault errors
	ErrVaultPositionNotFound = errors.Register("credit", 30, "vault position not found")
	ErrMaxUnlocksReached     = errors.Register("credit", 31, "max unlocking positions reached")
	ErrUnlockNotReady        = errors.Register("credit", 32, "vault unlock still in cooldown")
	ErrUnlockEntryNotFound   = errors.Register("credit", 33, "vault unlock entry not found")

	// Liquidation errors
	ErrSelfLiquidation          = errors.Register("credit", 40, "account cannot liquidate itself")
	ErrNotLiquidatable          = errors.Register("credit", 41, "account is not liquidatable")
	ErrLiquidationNotProfitable = errors.Register("credit", 42, "liquidation would not profit the liquidator")
	ErrNoRequestCollateral      = errors.Register("credit", 43, "liquidatee holds none of the requested collateral")

	// Burn errors
	ErrBurnNotAllowed = errors.Register("credit", 50, "account token cannot be burned")
)
