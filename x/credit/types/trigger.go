package types

import (
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// Comparison is the direction of a trigger condition check.
type Comparison int

const (
	LessThan Comparison = iota + 1
	GreaterThan
)

// String implements fmt.Stringer
func (c Comparison) String() string {
	switch c {
	case LessThan:
		return "less_than"
	case GreaterThan:
		return "greater_than"
	default:
		return "unknown"
	}
}

// Check compares the observed value against the condition's bound.
func (c Comparison) Check(observed, bound math.LegacyDec) bool {
	switch c {
	case LessThan:
		return observed.LT(bound)
	case GreaterThan:
		return observed.GT(bound)
	default:
		return false
	}
}

// OraclePriceCondition holds when the oracle price of Denom compares true
// against Price.
type OraclePriceCondition struct {
	Denom string
	Price math.LegacyDec
	Cmp   Comparison
}

// HealthFactorCondition holds when the account's liquidation health factor
// compares true against Threshold. An account with no debt never matches.
type HealthFactorCondition struct {
	Threshold math.LegacyDec
	Cmp       Comparison
}

// RelativePriceCondition holds when p_base / p_quote compares true against
// Price.
type RelativePriceCondition struct {
	BaseDenom  string
	QuoteDenom string
	Price      math.LegacyDec
	Cmp        Comparison
}

// TriggerCondition is a tagged union: exactly one variant pointer is set.
type TriggerCondition struct {
	OraclePrice   *OraclePriceCondition
	HealthFactor  *HealthFactorCondition
	RelativePrice *RelativePriceCondition
}

// Validate requires exactly one variant and checks its fields.
func (c TriggerCondition) Validate() error {
	count := 0
	if c.OraclePrice != nil {
		count++
	}
	if c.HealthFactor != nil {
		count++
	}
	if c.RelativePrice != nil {
		count++
	}
	if count != 1 {
		return ErrInvalidActions
	}

	validCmp := func(cmp Comparison) bool { return cmp == LessThan || cmp == GreaterThan }
	switch {
	case c.OraclePrice != nil:
		if c.OraclePrice.Denom == "" || c.OraclePrice.Price.IsNil() || !c.OraclePrice.Price.IsPositive() || !validCmp(c.OraclePrice.Cmp) {
			return ErrInvalidActions
		}
	case c.HealthFactor != nil:
		if c.HealthFactor.Threshold.IsNil() || !c.HealthFactor.Threshold.IsPositive() || !validCmp(c.HealthFactor.Cmp) {
			return ErrInvalidActions
		}
	case c.RelativePrice != nil:
		if c.RelativePrice.BaseDenom == "" || c.RelativePrice.QuoteDenom == "" ||
			c.RelativePrice.Price.IsNil() || !c.RelativePrice.Price.IsPositive() || !validCmp(c.RelativePrice.Cmp) {
			return ErrInvalidActions
		}
	}
	return nil
}

// TriggerOrder is a stored action batch waiting for its conditions. The
// keeper fee is already escrowed out of the account balance.
type TriggerOrder struct {
	AccountID  string
	OrderID    uint64
	Actions    []Action
	Conditions []TriggerCondition
	KeeperFee  sdk.Coin
	CreatedAt  int64
}
