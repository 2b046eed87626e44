package smath

import (
	"encoding/json"
	"errors"
	"testing"

	"cosmossdk.io/math"
)

func mustDec(t *testing.T, s string) SignedDec {
	t.Helper()
	d, err := SignedDecFromString(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return d
}

// TestSignedDecCanonicalZero tests sign normalization on zero results
func TestSignedDecCanonicalZero(t *testing.T) {
	z, err := NewSignedDec(math.LegacyZeroDec(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if z.Negative {
		t.Error("expected canonical zero, got negative zero")
	}

	diff, err := mustDec(t, "1.5").Sub(mustDec(t, "1.5"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !diff.IsZero() || diff.Negative {
		t.Errorf("expected canonical zero, got %s (negative=%v)", diff.String(), diff.Negative)
	}
}

// TestSignedDecArithmetic tests the signed add/sub/mul/quo matrix
func TestSignedDecArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		wantSum  string
		wantProd string
	}{
		{"both positive", "2.5", "4", "6.5", "10"},
		{"both negative", "-2.5", "-4", "-6.5", "10"},
		{"mixed", "-2.5", "4", "1.5", "-10"},
		{"fractional", "0.1", "0.2", "0.3", "0.02"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := mustDec(t, tt.a), mustDec(t, tt.b)

			sum, err := a.Add(b)
			if err != nil {
				t.Fatalf("add: %v", err)
			}
			if !sum.Equal(mustDec(t, tt.wantSum)) {
				t.Errorf("expected sum %s, got %s", tt.wantSum, sum.String())
			}

			prod, err := a.MulTruncate(b)
			if err != nil {
				t.Fatalf("mul: %v", err)
			}
			if !prod.Equal(mustDec(t, tt.wantProd)) {
				t.Errorf("expected product %s, got %s", tt.wantProd, prod.String())
			}
		})
	}
}

// TestSignedDecRoundingDirections tests that truncate and round-up act on the
// magnitude regardless of sign
func TestSignedDecRoundingDirections(t *testing.T) {
	// 1/3 at 18 decimals: truncate ends ...333, round up ends ...334
	down, err := mustDec(t, "1").QuoTruncate(mustDec(t, "3"))
	if err != nil {
		t.Fatalf("quo: %v", err)
	}
	up, err := mustDec(t, "1").QuoRoundUp(mustDec(t, "3"))
	if err != nil {
		t.Fatalf("quo: %v", err)
	}
	if !up.GT(down) {
		t.Errorf("round-up %s should exceed truncate %s", up.String(), down.String())
	}

	negDown, err := mustDec(t, "-1").QuoTruncate(mustDec(t, "3"))
	if err != nil {
		t.Fatalf("quo: %v", err)
	}
	negUp, err := mustDec(t, "-1").QuoRoundUp(mustDec(t, "3"))
	if err != nil {
		t.Fatalf("quo: %v", err)
	}
	// Magnitude rounding: |negUp| > |negDown|, so negUp is the smaller value
	if !negUp.LT(negDown) {
		t.Errorf("round-up away from zero: expected %s < %s", negUp.String(), negDown.String())
	}
}

// TestSignedDecToInt tests truncate and ceil conversions to integer units
func TestSignedDecToInt(t *testing.T) {
	tests := []struct {
		in        string
		wantTrunc string
		wantCeil  string
	}{
		{"2.7", "2", "3"},
		{"-2.7", "-2", "-3"},
		{"2", "2", "2"},
		{"-0.4", "0", "-1"},
		{"0", "0", "0"},
	}

	for _, tt := range tests {
		d := mustDec(t, tt.in)
		if got := d.TruncateToInt().String(); got != tt.wantTrunc {
			t.Errorf("TruncateToInt(%s): expected %s, got %s", tt.in, tt.wantTrunc, got)
		}
		if got := d.CeilToInt().String(); got != tt.wantCeil {
			t.Errorf("CeilToInt(%s): expected %s, got %s", tt.in, tt.wantCeil, got)
		}
	}

	// -0.4 truncates to canonical zero, not negative zero
	z := mustDec(t, "-0.4").TruncateToInt()
	if z.Negative {
		t.Error("truncation to zero must drop the sign")
	}
}

// TestSignedDecDivisionByZero tests the division guard
func TestSignedDecDivisionByZero(t *testing.T) {
	_, err := mustDec(t, "1").QuoTruncate(ZeroSignedDec())
	if !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("expected ErrDivisionByZero, got %v", err)
	}
}

// TestSignedDecMulSignedIntExact tests that integer scaling is exact
func TestSignedDecMulSignedIntExact(t *testing.T) {
	price := mustDec(t, "1234.567890123456789012")
	qty := SignedIntFromInt64(-3)

	got, err := price.MulSignedInt(qty)
	if err != nil {
		t.Fatalf("mul: %v", err)
	}
	want := mustDec(t, "-3703.703670370370367036")
	if !got.Equal(want) {
		t.Errorf("expected %s, got %s", want.String(), got.String())
	}
}

// TestSignedDecClamp tests bounding into an interval
func TestSignedDecClamp(t *testing.T) {
	lo, hi := mustDec(t, "-1"), mustDec(t, "1")
	tests := []struct {
		in, want string
	}{
		{"-3", "-1"},
		{"3", "1"},
		{"0.25", "0.25"},
	}
	for _, tt := range tests {
		if got := mustDec(t, tt.in).Clamp(lo, hi); !got.Equal(mustDec(t, tt.want)) {
			t.Errorf("Clamp(%s): expected %s, got %s", tt.in, tt.want, got.String())
		}
	}
}

// TestSignedDecJSON tests the string encoding round trip
func TestSignedDecJSON(t *testing.T) {
	for _, v := range []string{"0", "42.5", "-42.5"} {
		data, err := json.Marshal(mustDec(t, v))
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var back SignedDec
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if !back.Equal(mustDec(t, v)) {
			t.Errorf("round trip of %s gave %s", v, back.String())
		}
	}
}
