package types

import (
	"cosmossdk.io/errors"
)

// Module error codes
var (
	ErrUnauthorized     = errors.Register("perps", 1, "unauthorized")
	ErrInvalidOrderSize = errors.Register("perps", 2, "order size must be non-zero")
	ErrMarketNotFound   = errors.Register("perps", 3, "perp market not found")
	ErrDenomNotEnabled  = errors.Register("perps", 4, "perp market disabled")
	ErrMarketExists     = errors.Register("perps", 5, "perp market already exists")
	ErrPositionNotFound = errors.Register("perps", 6, "perp position not found")

	// Position validation errors
	ErrIllegalPositionModification = errors.Register("perps", 10, "illegal position modification")
	ErrMaxPositionsReached         = errors.Register("perps", 11, "max perp positions reached")
	ErrPositionValueBelowMin       = errors.Register("perps", 12, "position value below minimum")
	ErrPositionValueAboveMax       = errors.Register("perps", 13, "position value above maximum")
	ErrLongOICapExceeded           = errors.Register("perps", 14, "long open interest cap exceeded")
	ErrShortOICapExceeded          = errors.Register("perps", 15, "short open interest cap exceeded")
	ErrNetOICapExceeded            = errors.Register("perps", 16, "net open interest cap exceeded")

	// Vault errors
	ErrZeroShares                 = errors.Register("perps", 20, "vault shares must be positive")
	ErrZeroDepositAmount          = errors.Register("perps", 21, "vault deposit amount must be positive")
	ErrDepositNotFound            = errors.Register("perps", 22, "vault deposit not found")
	ErrMaxUnlocksReached          = errors.Register("perps", 23, "max vault unlocks reached")
	ErrUnlockedPositionsNotFound  = errors.Register("perps", 24, "no matured vault unlocks")
	ErrVaultUndeposited           = errors.Register("perps", 25, "vault has no shares")
	ErrZeroWithdrawalBalance      = errors.Register("perps", 26, "vault withdrawal balance is zero")
	ErrVaultInsufficientLiquidity = errors.Register("perps", 27, "vault liquidity insufficient")
	ErrVaultWithdrawDisabled      = errors.Register("perps", 28, "vault withdrawals disabled")

	// Deleverage errors
	ErrDeleverageDisabled          = errors.Register("perps", 30, "deleveraging disabled")
	ErrDeleverageInvalidPosition   = errors.Register("perps", 31, "position not eligible for deleveraging")
	ErrInvalidFundsAfterDeleverage = errors.Register("perps", 32, "module balance change does not match deleverage settlement")
)
