package smath

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"cosmossdk.io/math"
)

// SignedDec is an 18-decimal fixed-point value represented as a non-negative
// magnitude and a sign flag, with canonical zero.
//
// Fractional operations expose an explicit rounding direction on the
// magnitude: Truncate discards toward zero, RoundUp rounds away from zero.
// Callers pick the direction that favors the pool when charging and the user
// never receives more than exact.
type SignedDec struct {
	Abs      math.LegacyDec `json:"abs"`
	Negative bool           `json:"negative"`
}

// ZeroSignedDec returns the canonical zero.
func ZeroSignedDec() SignedDec {
	return SignedDec{Abs: math.LegacyZeroDec(), Negative: false}
}

// NewSignedDec builds a SignedDec from a magnitude and sign, normalizing
// canonical zero. A negative magnitude is rejected.
func NewSignedDec(abs math.LegacyDec, negative bool) (SignedDec, error) {
	if abs.IsNil() {
		return ZeroSignedDec(), nil
	}
	if abs.IsNegative() {
		return SignedDec{}, fmt.Errorf("%w: magnitude %s is negative", ErrInvalidSigned, abs)
	}
	if abs.IsZero() {
		return ZeroSignedDec(), nil
	}
	return SignedDec{Abs: abs, Negative: negative}, nil
}

// SignedDecFromDec converts a math.LegacyDec, splitting sign and magnitude.
func SignedDecFromDec(d math.LegacyDec) (SignedDec, error) {
	if d.IsNil() || d.IsZero() {
		return ZeroSignedDec(), nil
	}
	if d.IsNegative() {
		return SignedDec{Abs: d.Neg(), Negative: true}, nil
	}
	return SignedDec{Abs: d, Negative: false}, nil
}

// SignedDecFromString parses a sign-prefixed decimal string.
func SignedDecFromString(s string) (SignedDec, error) {
	neg := strings.HasPrefix(s, "-")
	mag, err := math.LegacyNewDecFromStr(strings.TrimPrefix(s, "-"))
	if err != nil {
		return SignedDec{}, fmt.Errorf("%w: cannot parse %q", ErrInvalidSigned, s)
	}
	return NewSignedDec(mag, neg)
}

func (s SignedDec) abs() math.LegacyDec {
	if s.Abs.IsNil() {
		return math.LegacyZeroDec()
	}
	return s.Abs
}

// scaled returns the magnitude as its raw 18-decimal scaled integer.
func (s SignedDec) scaled() *big.Int {
	return s.abs().BigInt()
}

func fromScaled(v *big.Int, negative bool) (SignedDec, error) {
	if err := checkDecBits(v); err != nil {
		return SignedDec{}, err
	}
	return NewSignedDec(math.LegacyNewDecFromBigIntWithPrec(v, math.LegacyPrecision), negative)
}

func (s SignedDec) IsZero() bool     { return s.abs().IsZero() }
func (s SignedDec) IsNegative() bool { return s.Negative && !s.abs().IsZero() }
func (s SignedDec) IsPositive() bool { return !s.Negative && !s.abs().IsZero() }

// Neg flips the sign. Zero stays canonical.
func (s SignedDec) Neg() SignedDec {
	if s.IsZero() {
		return ZeroSignedDec()
	}
	return SignedDec{Abs: s.abs(), Negative: !s.Negative}
}

// Add returns s + o, erroring when the magnitude overflows.
func (s SignedDec) Add(o SignedDec) (SignedDec, error) {
	a, b := s.scaled(), o.scaled()
	if s.IsNegative() == o.IsNegative() {
		return fromScaled(a.Add(a, b), s.IsNegative())
	}
	switch a.Cmp(b) {
	case 0:
		return ZeroSignedDec(), nil
	case 1:
		return fromScaled(a.Sub(a, b), s.IsNegative())
	default:
		return fromScaled(b.Sub(b, a), o.IsNegative())
	}
}

// Sub returns s - o.
func (s SignedDec) Sub(o SignedDec) (SignedDec, error) {
	return s.Add(o.Neg())
}

func (s SignedDec) mul(o SignedDec, roundUp bool) (SignedDec, error) {
	prod := new(big.Int).Mul(s.scaled(), o.scaled())
	return fromScaled(quoRounded(prod, precisionScale, roundUp), s.IsNegative() != o.IsNegative())
}

// MulTruncate multiplies, truncating the 18-decimal magnitude toward zero.
func (s SignedDec) MulTruncate(o SignedDec) (SignedDec, error) { return s.mul(o, false) }

// MulRoundUp multiplies, rounding the 18-decimal magnitude away from zero.
func (s SignedDec) MulRoundUp(o SignedDec) (SignedDec, error) { return s.mul(o, true) }

// MulDecTruncate multiplies by an unsigned decimal, truncating.
func (s SignedDec) MulDecTruncate(d math.LegacyDec) (SignedDec, error) {
	o, err := SignedDecFromDec(d)
	if err != nil {
		return SignedDec{}, err
	}
	return s.mul(o, false)
}

// MulDecRoundUp multiplies by an unsigned decimal, rounding away from zero.
func (s SignedDec) MulDecRoundUp(d math.LegacyDec) (SignedDec, error) {
	o, err := SignedDecFromDec(d)
	if err != nil {
		return SignedDec{}, err
	}
	return s.mul(o, true)
}

// MulSignedInt scales by a signed integer. Exact: no rounding occurs.
func (s SignedDec) MulSignedInt(i SignedInt) (SignedDec, error) {
	prod := new(big.Int).Mul(s.scaled(), i.abs().BigInt())
	return fromScaled(prod, s.IsNegative() != i.IsNegative())
}

func (s SignedDec) quo(o SignedDec, roundUp bool) (SignedDec, error) {
	if o.IsZero() {
		return SignedDec{}, ErrDivisionByZero
	}
	num := new(big.Int).Mul(s.scaled(), precisionScale)
	return fromScaled(quoRounded(num, o.scaled(), roundUp), s.IsNegative() != o.IsNegative())
}

// QuoTruncate divides, truncating the 18-decimal magnitude toward zero.
func (s SignedDec) QuoTruncate(o SignedDec) (SignedDec, error) { return s.quo(o, false) }

// QuoRoundUp divides, rounding the 18-decimal magnitude away from zero.
func (s SignedDec) QuoRoundUp(o SignedDec) (SignedDec, error) { return s.quo(o, true) }

// QuoDecTruncate divides by an unsigned decimal, truncating.
func (s SignedDec) QuoDecTruncate(d math.LegacyDec) (SignedDec, error) {
	o, err := SignedDecFromDec(d)
	if err != nil {
		return SignedDec{}, err
	}
	return s.quo(o, false)
}

// TruncateToInt converts to integer units discarding the fraction of the
// magnitude (toward zero, sign preserved).
func (s SignedDec) TruncateToInt() SignedInt {
	t := s.abs().TruncateInt()
	if t.IsZero() {
		return ZeroSignedInt()
	}
	return SignedInt{Abs: t, Negative: s.IsNegative()}
}

// CeilToInt converts to integer units rounding the magnitude away from zero.
func (s SignedDec) CeilToInt() SignedInt {
	c := s.abs().Ceil().TruncateInt()
	if c.IsZero() {
		return ZeroSignedInt()
	}
	return SignedInt{Abs: c, Negative: s.IsNegative()}
}

// Cmp returns -1, 0 or 1 comparing signed values.
func (s SignedDec) Cmp(o SignedDec) int {
	switch {
	case s.IsZero() && o.IsZero():
		return 0
	case s.IsNegative() && !o.IsNegative():
		return -1
	case !s.IsNegative() && o.IsNegative():
		return 1
	case s.IsNegative():
		return o.scaled().Cmp(s.scaled())
	default:
		return s.scaled().Cmp(o.scaled())
	}
}

func (s SignedDec) Equal(o SignedDec) bool { return s.Cmp(o) == 0 }
func (s SignedDec) GT(o SignedDec) bool    { return s.Cmp(o) > 0 }
func (s SignedDec) LT(o SignedDec) bool    { return s.Cmp(o) < 0 }

// Clamp bounds s into [lo, hi].
func (s SignedDec) Clamp(lo, hi SignedDec) SignedDec {
	if s.Cmp(lo) < 0 {
		return lo
	}
	if s.Cmp(hi) > 0 {
		return hi
	}
	return s
}

// String renders a sign-prefixed decimal.
func (s SignedDec) String() string {
	if s.IsNegative() {
		return "-" + s.abs().String()
	}
	return s.abs().String()
}

// MarshalJSON encodes as the sign-prefixed decimal string.
func (s SignedDec) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes the sign-prefixed decimal string.
func (s *SignedDec) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := SignedDecFromString(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MinSignedDec returns the smaller of a and b.
func MinSignedDec(a, b SignedDec) SignedDec {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// MaxSignedDec returns the larger of a and b.
func MaxSignedDec(a, b SignedDec) SignedDec {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}
