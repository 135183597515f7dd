package rating_test

import (
	"errors"
	"testing"

	"CareLedger/internal/rating"
)

const baselineShock = 10_000

// ============================================================================
// Test: Quote
// ============================================================================

func TestQuote_YoungAdultBaseline(t *testing.T) {
	table := rating.DefaultTable()
	in := rating.QuoteInput{Age: 22}

	got, err := rating.Quote(in, table, baselineShock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Age 22 sits in the 21-24 band at factor 10000: base rate unchanged.
	if got != 450_000_000 {
		t.Errorf("got %d, want 450_000_000", got)
	}
}

func TestQuote_ChildBand(t *testing.T) {
	table := rating.DefaultTable()
	in := rating.QuoteInput{Age: 10}

	got, err := rating.Quote(in, table, baselineShock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 450_000_000 * 6350 / 10000
	if got != 285_750_000 {
		t.Errorf("got %d, want 285_750_000", got)
	}
}

func TestQuote_OldestBand(t *testing.T) {
	table := rating.DefaultTable()
	in := rating.QuoteInput{Age: 64}

	got, err := rating.Quote(in, table, baselineShock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 450_000_000 * 19050 / 10000
	if got != 857_250_000 {
		t.Errorf("got %d, want 857_250_000", got)
	}
}

func TestQuote_TobaccoSurcharge(t *testing.T) {
	table := rating.DefaultTable()

	clean, err := rating.Quote(rating.QuoteInput{Age: 40}, table, baselineShock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	smoker, err := rating.Quote(rating.QuoteInput{Age: 40, TobaccoUser: true}, table, baselineShock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if smoker <= clean {
		t.Errorf("tobacco quote %d should exceed clean quote %d", smoker, clean)
	}
	// 510_750_000 * 15000 / 10000
	if smoker != 766_125_000 {
		t.Errorf("got %d, want 766_125_000", smoker)
	}
}

func TestQuote_DependentsCappedAtThree(t *testing.T) {
	table := rating.DefaultTable()

	three, err := rating.Quote(rating.QuoteInput{Age: 30, DependentCount: 3}, table, baselineShock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	five, err := rating.Quote(rating.QuoteInput{Age: 30, DependentCount: 5}, table, baselineShock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if three != five {
		t.Errorf("dependents beyond 3 should not change the quote: 3=>%d, 5=>%d", three, five)
	}
	// base = 450_000_000 * 10130 / 10000 = 455_850_000
	// each dependent adds 455_850_000 * 4000 / 10000 = 182_340_000
	want := int64(455_850_000 + 3*182_340_000)
	if three != want {
		t.Errorf("got %d, want %d", three, want)
	}
}

func TestQuote_MonotonicInDependents(t *testing.T) {
	table := rating.DefaultTable()
	prev := int64(-1)
	for deps := 0; deps <= 3; deps++ {
		got, err := rating.Quote(rating.QuoteInput{Age: 30, DependentCount: deps}, table, baselineShock)
		if err != nil {
			t.Fatalf("deps=%d: %v", deps, err)
		}
		if got <= prev {
			t.Errorf("quote should increase with dependents: deps=%d got %d, prev %d", deps, got, prev)
		}
		prev = got
	}
}

func TestQuote_MonotonicAcrossAgeBands(t *testing.T) {
	table := rating.DefaultTable()
	ages := []uint8{22, 27, 32, 37, 42, 47, 52, 57, 62}
	prev := int64(0)
	for _, age := range ages {
		got, err := rating.Quote(rating.QuoteInput{Age: age}, table, baselineShock)
		if err != nil {
			t.Fatalf("age=%d: %v", age, err)
		}
		if got < prev {
			t.Errorf("quote decreased across bands at age %d: got %d, prev %d", age, got, prev)
		}
		prev = got
	}
}

func TestQuote_RegionFactorApplied(t *testing.T) {
	table := rating.DefaultTable()
	table.RegionFactors["US-NY"] = 12_000

	got, err := rating.Quote(rating.QuoteInput{Age: 22, RegionCode: "US-NY"}, table, baselineShock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 540_000_000 {
		t.Errorf("got %d, want 540_000_000", got)
	}
}

func TestQuote_UnknownRegionIsBaseline(t *testing.T) {
	table := rating.DefaultTable()

	got, err := rating.Quote(rating.QuoteInput{Age: 22, RegionCode: "ZZ-99"}, table, baselineShock)
	if err != nil {
		t.Fatalf("unknown region should not error: %v", err)
	}
	if got != 450_000_000 {
		t.Errorf("got %d, want 450_000_000", got)
	}
}

func TestQuote_ShockFactorLast(t *testing.T) {
	table := rating.DefaultTable()

	got, err := rating.Quote(rating.QuoteInput{Age: 22}, table, 12_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 540_000_000 {
		t.Errorf("got %d, want 540_000_000", got)
	}
}

func TestQuote_AgeZeroRejected(t *testing.T) {
	table := rating.DefaultTable()
	_, err := rating.Quote(rating.QuoteInput{Age: 0}, table, baselineShock)
	if !errors.Is(err, rating.ErrInvalidAge) {
		t.Errorf("got %v, want ErrInvalidAge", err)
	}
}

func TestQuote_AgeAboveRangeRejected(t *testing.T) {
	table := rating.DefaultTable()
	_, err := rating.Quote(rating.QuoteInput{Age: 65}, table, baselineShock)
	if !errors.Is(err, rating.ErrInvalidAge) {
		t.Errorf("got %v, want ErrInvalidAge", err)
	}
}

// ============================================================================
// Test: ValidateTable
// ============================================================================

func TestValidateTable_Default(t *testing.T) {
	if err := rating.ValidateTable(rating.DefaultTable()); err != nil {
		t.Errorf("default table should validate: %v", err)
	}
}

func TestValidateTable_RatioExceeded(t *testing.T) {
	table := rating.DefaultTable()
	table.AgeBands[len(table.AgeBands)-1].FactorBps = 25_000 // 25000/6350 > 3x
	if err := rating.ValidateTable(table); err == nil {
		t.Error("expected ratio violation")
	}
}

func TestValidateTable_OverlappingBands(t *testing.T) {
	table := rating.DefaultTable()
	table.AgeBands[1].MaxAge = 20
	if err := rating.ValidateTable(table); err == nil {
		t.Error("expected overlap violation")
	}
}

func TestValidateTable_TobaccoBounds(t *testing.T) {
	table := rating.DefaultTable()
	table.TobaccoFactorBps = 15_001
	if err := rating.ValidateTable(table); err == nil {
		t.Error("expected tobacco factor violation above 15000")
	}
	table.TobaccoFactorBps = 9_999
	if err := rating.ValidateTable(table); err == nil {
		t.Error("expected tobacco factor violation below 10000")
	}
}
