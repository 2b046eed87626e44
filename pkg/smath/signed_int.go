package smath

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"cosmossdk.io/math"
)

// SignedInt is an integer represented as a non-negative magnitude and a sign
// flag. The zero value and any zero-magnitude result are canonical:
// Negative is always false when Abs is zero.
type SignedInt struct {
	Abs      math.Int `json:"abs"`
	Negative bool     `json:"negative"`
}

// ZeroSignedInt returns the canonical zero.
func ZeroSignedInt() SignedInt {
	return SignedInt{Abs: math.ZeroInt(), Negative: false}
}

// NewSignedInt builds a SignedInt from a magnitude and sign, normalizing
// canonical zero. A negative magnitude is rejected.
func NewSignedInt(abs math.Int, negative bool) (SignedInt, error) {
	if abs.IsNil() {
		return ZeroSignedInt(), nil
	}
	if abs.IsNegative() {
		return SignedInt{}, fmt.Errorf("%w: magnitude %s is negative", ErrInvalidSigned, abs)
	}
	if abs.IsZero() {
		return ZeroSignedInt(), nil
	}
	return SignedInt{Abs: abs, Negative: negative}, nil
}

// SignedIntFromInt converts a math.Int, splitting sign and magnitude.
func SignedIntFromInt(i math.Int) SignedInt {
	if i.IsNil() || i.IsZero() {
		return ZeroSignedInt()
	}
	if i.IsNegative() {
		return SignedInt{Abs: i.Neg(), Negative: true}
	}
	return SignedInt{Abs: i, Negative: false}
}

// SignedIntFromInt64 converts an int64.
func SignedIntFromInt64(i int64) SignedInt {
	return SignedIntFromInt(math.NewInt(i))
}

// SignedIntFromString parses a sign-prefixed decimal integer string.
func SignedIntFromString(s string) (SignedInt, error) {
	neg := strings.HasPrefix(s, "-")
	mag := strings.TrimPrefix(s, "-")
	abs, ok := math.NewIntFromString(mag)
	if !ok {
		return SignedInt{}, fmt.Errorf("%w: cannot parse %q", ErrInvalidSigned, s)
	}
	return NewSignedInt(abs, neg)
}

func (s SignedInt) abs() math.Int {
	if s.Abs.IsNil() {
		return math.ZeroInt()
	}
	return s.Abs
}

func (s SignedInt) IsZero() bool     { return s.abs().IsZero() }
func (s SignedInt) IsNegative() bool { return s.Negative && !s.abs().IsZero() }
func (s SignedInt) IsPositive() bool { return !s.Negative && !s.abs().IsZero() }

// Neg flips the sign. Zero stays canonical.
func (s SignedInt) Neg() SignedInt {
	if s.IsZero() {
		return ZeroSignedInt()
	}
	return SignedInt{Abs: s.abs(), Negative: !s.Negative}
}

// Add returns s + o, erroring when the magnitude overflows.
func (s SignedInt) Add(o SignedInt) (SignedInt, error) {
	a, b := s.abs().BigInt(), o.abs().BigInt()
	if s.IsNegative() == o.IsNegative() {
		sum := a.Add(a, b)
		if err := checkIntBits(sum); err != nil {
			return SignedInt{}, err
		}
		return NewSignedInt(math.NewIntFromBigInt(sum), s.IsNegative())
	}
	// Differing signs: magnitude shrinks, sign follows the larger operand.
	switch a.Cmp(b) {
	case 0:
		return ZeroSignedInt(), nil
	case 1:
		return NewSignedInt(math.NewIntFromBigInt(a.Sub(a, b)), s.IsNegative())
	default:
		return NewSignedInt(math.NewIntFromBigInt(b.Sub(b, a)), o.IsNegative())
	}
}

// Sub returns s - o.
func (s SignedInt) Sub(o SignedInt) (SignedInt, error) {
	return s.Add(o.Neg())
}

// MulInt scales by a non-negative integer factor.
func (s SignedInt) MulInt(f math.Int) (SignedInt, error) {
	if f.IsNegative() {
		return s.Neg().MulInt(f.Neg())
	}
	prod := new(big.Int).Mul(s.abs().BigInt(), f.BigInt())
	if err := checkIntBits(prod); err != nil {
		return SignedInt{}, err
	}
	return NewSignedInt(math.NewIntFromBigInt(prod), s.Negative)
}

// MulDec multiplies by an 18-decimal factor exactly, producing a SignedDec.
// Integer x decimal needs no rounding: the scaled product is exact.
func (s SignedInt) MulDec(d math.LegacyDec) (SignedDec, error) {
	sd, err := SignedDecFromDec(d)
	if err != nil {
		return SignedDec{}, err
	}
	return sd.MulSignedInt(s)
}

// ToDec widens to a SignedDec.
func (s SignedInt) ToDec() SignedDec {
	return SignedDec{Abs: math.LegacyNewDecFromInt(s.abs()), Negative: s.IsNegative()}
}

// Cmp returns -1, 0 or 1 comparing signed values.
func (s SignedInt) Cmp(o SignedInt) int {
	switch {
	case s.IsZero() && o.IsZero():
		return 0
	case s.IsNegative() && !o.IsNegative():
		return -1
	case !s.IsNegative() && o.IsNegative():
		return 1
	case s.IsNegative():
		return o.abs().BigInt().Cmp(s.abs().BigInt())
	default:
		return s.abs().BigInt().Cmp(o.abs().BigInt())
	}
}

func (s SignedInt) Equal(o SignedInt) bool { return s.Cmp(o) == 0 }
func (s SignedInt) GT(o SignedInt) bool    { return s.Cmp(o) > 0 }
func (s SignedInt) LT(o SignedInt) bool    { return s.Cmp(o) < 0 }

// String renders a sign-prefixed decimal integer.
func (s SignedInt) String() string {
	if s.IsNegative() {
		return "-" + s.abs().String()
	}
	return s.abs().String()
}

// MarshalJSON encodes as the sign-prefixed decimal string.
func (s SignedInt) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes the sign-prefixed decimal string.
func (s *SignedInt) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := SignedIntFromString(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MinSignedInt returns the smaller of a and b.
func MinSignedInt(a, b SignedInt) SignedInt {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// MaxSignedInt returns the larger of a and b.
func MaxSignedInt(a, b SignedInt) SignedInt {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}
