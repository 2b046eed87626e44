package types

import (
	"cosmossdk.io/errors"
)

// x/health module sentinel errors
var (
	ErrMissingPrice       = errors.Register(ModuleName, 1, "no price for denom")
	ErrMissingPerpParams  = errors.Register(ModuleName, 2, "no health params for perp market")
	ErrMissingVaultConfig = errors.Register(ModuleName, 3, "no config for vault denom")
	ErrDenomNotHeld       = errors.Register(ModuleName, 4, "account holds none of the denom")
	ErrDebtNotHeld        = errors.Register(ModuleName, 5, "account owes none of the denom")
	ErrPerpNotHeld        = errors.Register(ModuleName, 6, "account has no position in the market")

	ErrAboveMaxLTV       = errors.Register(ModuleName, 10, "actions resulted in exceeding maximum allowed loan-to-value")
	ErrHealthNotImproved = errors.Register(ModuleName, 11, "account is unhealthy and the actions did not improve it")
)
