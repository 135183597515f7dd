package bpsmath_test

import (
	"errors"
	"math"
	"testing"

	"CareLedger/internal/bpsmath"
)

// ============================================================================
// Test: MulBps
// ============================================================================

func TestMulBps_Identity(t *testing.T) {
	got, err := bpsmath.MulBps(450_000_000, 10_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 450_000_000 {
		t.Errorf("got %d, want 450_000_000", got)
	}
}

func TestMulBps_FloorRounding(t *testing.T) {
	// 1001 * 6350 / 10000 = 635.635 -> 635
	got, err := bpsmath.MulBps(1001, 6350)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 635 {
		t.Errorf("got %d, want 635", got)
	}
}

func TestMulBps_LargeIntermediateNoWrap(t *testing.T) {
	// amount * factor overflows int64 but the result fits
	amount := int64(math.MaxInt64 / 2)
	got, err := bpsmath.MulBps(amount, 10_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != amount {
		t.Errorf("got %d, want %d", got, amount)
	}
}

func TestMulBps_ResultOverflow(t *testing.T) {
	_, err := bpsmath.MulBps(math.MaxInt64, 20_000)
	if !errors.Is(err, bpsmath.ErrOverflow) {
		t.Errorf("got %v, want ErrOverflow", err)
	}
}

func TestMulBps_NegativeRejected(t *testing.T) {
	_, err := bpsmath.MulBps(-1, 10_000)
	if !errors.Is(err, bpsmath.ErrNegative) {
		t.Errorf("got %v, want ErrNegative", err)
	}
}

func TestMulDiv_ZeroDivisor(t *testing.T) {
	_, err := bpsmath.MulDiv(1, 1, 0)
	if !errors.Is(err, bpsmath.ErrDivideByZero) {
		t.Errorf("got %v, want ErrDivideByZero", err)
	}
}

// ============================================================================
// Test: RatioBps
// ============================================================================

func TestRatioBps_Exact(t *testing.T) {
	// 1.25M capital vs 1M expected = 12500 bps
	got := bpsmath.RatioBps(1_250_000_000_000, 1_000_000_000_000)
	if got != 12_500 {
		t.Errorf("got %d, want 12500", got)
	}
}

func TestRatioBps_Floor(t *testing.T) {
	got := bpsmath.RatioBps(14_999, 10_000)
	if got != 14_999 {
		t.Errorf("got %d, want 14999", got)
	}
}

func TestRatioBps_ZeroDenominatorSaturates(t *testing.T) {
	got := bpsmath.RatioBps(123, 0)
	if got != math.MaxInt64 {
		t.Errorf("got %d, want MaxInt64", got)
	}
}

// ============================================================================
// Test: checked and saturating arithmetic
// ============================================================================

func TestCheckedAdd_Overflow(t *testing.T) {
	_, err := bpsmath.CheckedAdd(math.MaxInt64, 1)
	if !errors.Is(err, bpsmath.ErrOverflow) {
		t.Errorf("got %v, want ErrOverflow", err)
	}
}

func TestCheckedSub_Underflow(t *testing.T) {
	_, err := bpsmath.CheckedSub(5, 6)
	if !errors.Is(err, bpsmath.ErrNegative) {
		t.Errorf("got %v, want ErrNegative", err)
	}
}

func TestSatSub_FloorsAtZero(t *testing.T) {
	if got := bpsmath.SatSub(5, 10); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
	if got := bpsmath.SatSub(10, 4); got != 6 {
		t.Errorf("got %d, want 6", got)
	}
}

func TestSatAdd_Saturates(t *testing.T) {
	if got := bpsmath.SatAdd(math.MaxInt64, 1); got != math.MaxInt64 {
		t.Errorf("got %d, want MaxInt64", got)
	}
}

func TestClamp(t *testing.T) {
	if got := bpsmath.Clamp(5, 10, 20); got != 10 {
		t.Errorf("below: got %d, want 10", got)
	}
	if got := bpsmath.Clamp(25, 10, 20); got != 20 {
		t.Errorf("above: got %d, want 20", got)
	}
	if got := bpsmath.Clamp(15, 10, 20); got != 15 {
		t.Errorf("inside: got %d, want 15", got)
	}
}
