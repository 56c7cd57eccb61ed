package math_test

import (
	"errors"
	"testing"

	lmath "LendLedger/internal/math"
)

// ============================================================================
// Test: Accrue
// ============================================================================

func TestAccrue_ZeroElapsed_NoOp(t *testing.T) {
	got, err := lmath.Accrue(1_000_000, lmath.RateScale, 0)
	if err != nil {
		t.Fatalf("Accrue failed: %v", err)
	}
	if got != 1_000_000 {
		t.Errorf("zero elapsed should not change principal: got %d", got)
	}
}

func TestAccrue_ZeroRate_NoOp(t *testing.T) {
	got, err := lmath.Accrue(1_000_000, 0, 86_400)
	if err != nil {
		t.Fatalf("Accrue failed: %v", err)
	}
	if got != 1_000_000 {
		t.Errorf("zero rate should not change principal: got %d", got)
	}
}

func TestAccrue_ZeroPrincipal_NoOp(t *testing.T) {
	got, err := lmath.Accrue(0, lmath.RateScale, 86_400)
	if err != nil {
		t.Fatalf("Accrue failed: %v", err)
	}
	if got != 0 {
		t.Errorf("zero principal should stay zero: got %d", got)
	}
}

func TestAccrue_OneFullRateSecond(t *testing.T) {
	// rate/RateScale = 1.0 per second, one second elapsed: principal * e.
	got, err := lmath.Accrue(1_000_000, lmath.RateScale, 1)
	if err != nil {
		t.Fatalf("Accrue failed: %v", err)
	}
	// floor(1_000_000 * 2.718281828...) = 2_718_281
	if got != 2_718_281 {
		t.Errorf("got %d, want 2_718_281", got)
	}
}

func TestAccrue_Monotonic(t *testing.T) {
	rate := uint64(100) // tiny per-second rate
	prev := uint64(1_000_000_000)
	for _, elapsed := range []uint64{1, 60, 3_600, 86_400} {
		got, err := lmath.Accrue(1_000_000_000, rate, elapsed)
		if err != nil {
			t.Fatalf("Accrue(elapsed=%d) failed: %v", elapsed, err)
		}
		if got < prev {
			t.Errorf("accrual shrank: elapsed=%d got %d, previous %d", elapsed, got, prev)
		}
		prev = got
	}
}

func TestAccrue_SplitEqualsWhole(t *testing.T) {
	// Accruing 10s then 10s must not exceed accruing 20s at once; flooring
	// may lose at most a unit per step.
	rate := uint64(50_000_000) // 0.05/sec
	half1, err := lmath.Accrue(1_000_000, rate, 10)
	if err != nil {
		t.Fatalf("first accrual failed: %v", err)
	}
	split, err := lmath.Accrue(half1, rate, 10)
	if err != nil {
		t.Fatalf("second accrual failed: %v", err)
	}
	whole, err := lmath.Accrue(1_000_000, rate, 20)
	if err != nil {
		t.Fatalf("whole accrual failed: %v", err)
	}
	if split > whole {
		t.Errorf("split accrual %d exceeds whole accrual %d", split, whole)
	}
	if whole-split > 2 {
		t.Errorf("split accrual %d drifted from whole accrual %d", split, whole)
	}
}

func TestAccrue_ExponentTooLarge(t *testing.T) {
	// rate/RateScale = 1.0, elapsed 51: exponent 51 is past the cap.
	_, err := lmath.Accrue(1, lmath.RateScale, 51)
	if !errors.Is(err, lmath.ErrArithmetic) {
		t.Errorf("expected ErrArithmetic, got %v", err)
	}
}

func TestAccrue_ResultOverflowsUint64(t *testing.T) {
	// Exponent 40 passes the cap but e^40 * 2^60 does not fit in uint64.
	_, err := lmath.Accrue(1<<60, lmath.RateScale, 40)
	if !errors.Is(err, lmath.ErrArithmetic) {
		t.Errorf("expected ErrArithmetic, got %v", err)
	}
}

// ============================================================================
// Test: MulDiv
// ============================================================================

func TestMulDiv_RoundsDown(t *testing.T) {
	got, err := lmath.MulDiv(10, 3, 4)
	if err != nil {
		t.Fatalf("MulDiv failed: %v", err)
	}
	if got != 7 {
		t.Errorf("10*3/4 should floor to 7, got %d", got)
	}
}

func TestMulDiv_LargeIntermediate(t *testing.T) {
	// a*b overflows uint64 but the quotient fits.
	a := uint64(1) << 63
	got, err := lmath.MulDiv(a, 4, 8)
	if err != nil {
		t.Fatalf("MulDiv failed: %v", err)
	}
	if got != a/2 {
		t.Errorf("got %d, want %d", got, a/2)
	}
}

func TestMulDiv_DivisionByZero(t *testing.T) {
	_, err := lmath.MulDiv(1, 1, 0)
	if !errors.Is(err, lmath.ErrArithmetic) {
		t.Errorf("expected ErrArithmetic, got %v", err)
	}
}

func TestMulDiv_ResultOverflows(t *testing.T) {
	_, err := lmath.MulDiv(^uint64(0), 2, 1)
	if !errors.Is(err, lmath.ErrArithmetic) {
		t.Errorf("expected ErrArithmetic, got %v", err)
	}
}

// ============================================================================
// Test: Checked arithmetic
// ============================================================================

func TestCheckedAdd(t *testing.T) {
	got, err := lmath.CheckedAdd(40, 2)
	if err != nil || got != 42 {
		t.Errorf("CheckedAdd(40, 2) = %d, %v", got, err)
	}

	_, err = lmath.CheckedAdd(^uint64(0), 1)
	if !errors.Is(err, lmath.ErrArithmetic) {
		t.Errorf("expected overflow error, got %v", err)
	}
}

func TestCheckedSub(t *testing.T) {
	got, err := lmath.CheckedSub(42, 2)
	if err != nil || got != 40 {
		t.Errorf("CheckedSub(42, 2) = %d, %v", got, err)
	}

	_, err = lmath.CheckedSub(1, 2)
	if !errors.Is(err, lmath.ErrArithmetic) {
		t.Errorf("expected underflow error, got %v", err)
	}
}

func TestSaturatingSub(t *testing.T) {
	if got := lmath.SaturatingSub(5, 3); got != 2 {
		t.Errorf("SaturatingSub(5, 3) = %d, want 2", got)
	}
	if got := lmath.SaturatingSub(3, 5); got != 0 {
		t.Errorf("SaturatingSub(3, 5) = %d, want 0", got)
	}
}
