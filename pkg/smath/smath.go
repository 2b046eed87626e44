// Package smath provides signed fixed-point arithmetic on top of
// cosmossdk.io/math. Values are stored as a non-negative magnitude plus a
// sign flag, with a canonical zero (zero magnitude is never negative).
//
// All arithmetic is checked: operations whose magnitude would exceed the
// underlying 256-bit bound return ErrOverflow instead of panicking or
// wrapping. Fractional results carry 18 decimals; conversions to integer
// units pick an explicit rounding direction (truncate toward zero, or ceil
// away from zero).
package smath

import (
	"errors"
	"fmt"
	"math/big"

	"cosmossdk.io/math"
)

var (
	ErrOverflow       = errors.New("integer overflow")
	ErrDivisionByZero = errors.New("division by zero")
	ErrInvalidSigned  = errors.New("invalid signed value")
)

// maxDecBitLen mirrors the LegacyDec internal bound (256 magnitude bits plus
// the bits consumed by 18 decimal places).
const maxDecBitLen = math.MaxBitLen + 59

var precisionScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(math.LegacyPrecision), nil)

func checkIntBits(v *big.Int) error {
	if v.BitLen() > math.MaxBitLen {
		return fmt.Errorf("%w: %s exceeds %d bits", ErrOverflow, v.String(), math.MaxBitLen)
	}
	return nil
}

func checkDecBits(v *big.Int) error {
	if v.BitLen() > maxDecBitLen {
		return fmt.Errorf("%w: decimal magnitude exceeds %d bits", ErrOverflow, maxDecBitLen)
	}
	return nil
}

// quoRounded divides num by den (both non-negative, den > 0) rounding the
// quotient per roundUp: truncation when false, away from zero when true.
func quoRounded(num, den *big.Int, roundUp bool) *big.Int {
	quo, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	if roundUp && rem.Sign() != 0 {
		quo.Add(quo, big.NewInt(1))
	}
	return quo
}

// SafeAddInt adds two non-negative math.Ints, erroring on overflow.
func SafeAddInt(a, b math.Int) (math.Int, error) {
	sum := new(big.Int).Add(a.BigInt(), b.BigInt())
	if err := checkIntBits(sum); err != nil {
		return math.Int{}, err
	}
	return math.NewIntFromBigInt(sum), nil
}

// SafeSubInt subtracts b from a, erroring when the result would be negative.
// The error message carries both operands.
func SafeSubInt(a, b math.Int) (math.Int, error) {
	if b.GT(a) {
		return math.Int{}, fmt.Errorf("%w: cannot subtract %s from %s", ErrOverflow, b.String(), a.String())
	}
	return a.Sub(b), nil
}

// MulDivInt computes a*b/den on non-negative integers with full-width
// intermediates, rounding the quotient per roundUp.
func MulDivInt(a, b, den math.Int, roundUp bool) (math.Int, error) {
	if den.IsZero() {
		return math.Int{}, ErrDivisionByZero
	}
	prod := new(big.Int).Mul(a.BigInt(), b.BigInt())
	quo := quoRounded(prod, den.BigInt(), roundUp)
	if err := checkIntBits(quo); err != nil {
		return math.Int{}, err
	}
	return math.NewIntFromBigInt(quo), nil
}
