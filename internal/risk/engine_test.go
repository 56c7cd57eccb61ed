package risk_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"LendLedger/internal/risk"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// ============================================================================
// Test: Health factor
// ============================================================================

func TestHealthFactor_UnderCollateralized(t *testing.T) {
	// Collateral worth 100 at threshold 0.8 supports 80 of debt;
	// owing 90 puts the position under water.
	hf := risk.HealthFactor(dec("100"), dec("90"), dec("0.8"))

	want := dec("80").Div(dec("90"))
	if !hf.Equal(want) {
		t.Errorf("health factor = %s, want %s", hf, want)
	}
	if !risk.Liquidatable(hf) {
		t.Error("health factor below 1 should be liquidatable")
	}
}

func TestHealthFactor_Healthy(t *testing.T) {
	hf := risk.HealthFactor(dec("100"), dec("70"), dec("0.8"))

	if hf.LessThanOrEqual(dec("1")) {
		t.Errorf("health factor = %s, want above 1", hf)
	}
	if risk.Liquidatable(hf) {
		t.Error("healthy position should not be liquidatable")
	}
}

func TestHealthFactor_ExactlyOne_NotLiquidatable(t *testing.T) {
	hf := risk.HealthFactor(dec("100"), dec("80"), dec("0.8"))

	if !hf.Equal(dec("1")) {
		t.Fatalf("health factor = %s, want exactly 1", hf)
	}
	if risk.Liquidatable(hf) {
		t.Error("health factor of exactly 1 is still solvent")
	}
}

func TestHealthFactor_NoDebt_Infinite(t *testing.T) {
	hf := risk.HealthFactor(dec("100"), decimal.Zero, dec("0.8"))

	if !hf.Equal(risk.InfiniteHealth) {
		t.Errorf("debt-free position should report InfiniteHealth, got %s", hf)
	}
	if risk.Liquidatable(hf) {
		t.Error("debt-free position must never be liquidatable")
	}
}

// ============================================================================
// Test: Borrow limit
// ============================================================================

func TestBorrowableAmount(t *testing.T) {
	got := risk.BorrowableAmount(dec("100"), dec("0.75"))
	if !got.Equal(dec("75")) {
		t.Errorf("borrowable = %s, want 75", got)
	}
}

func TestValue(t *testing.T) {
	got := risk.Value(50, dec("2"))
	if !got.Equal(dec("100")) {
		t.Errorf("value = %s, want 100", got)
	}
}

// ============================================================================
// Test: Liquidation sizing
// ============================================================================

func TestRepayAmount_CloseFactorSlice(t *testing.T) {
	// Half of 90 debt value at price 1: repay 45 units.
	got := risk.RepayAmount(dec("90"), dec("0.5"), dec("1"), 90)
	if got != 45 {
		t.Errorf("repay = %d, want 45", got)
	}
}

func TestRepayAmount_FloorsAtPriceConversion(t *testing.T) {
	// 90 * 0.5 / 2 = 22.5 units of the debt asset, floored.
	got := risk.RepayAmount(dec("90"), dec("0.5"), dec("2"), 90)
	if got != 22 {
		t.Errorf("repay = %d, want 22", got)
	}
}

func TestRepayAmount_CappedAtOutstanding(t *testing.T) {
	got := risk.RepayAmount(dec("90"), dec("1"), dec("1"), 60)
	if got != 60 {
		t.Errorf("repay = %d, want outstanding cap 60", got)
	}
}

func TestSeizeAmount_IncludesBonus(t *testing.T) {
	// Repaid value 45 with a 5% bonus at collateral price 1: 47.25, floored.
	got := risk.SeizeAmount(dec("45"), dec("0.05"), dec("1"), 1_000)
	if got != 47 {
		t.Errorf("seize = %d, want 47", got)
	}
}

func TestSeizeAmount_CappedAtAvailableCollateral(t *testing.T) {
	got := risk.SeizeAmount(dec("45"), dec("0.05"), dec("1"), 40)
	if got != 40 {
		t.Errorf("seize = %d, want collateral cap 40", got)
	}
}

func TestSeizeAmount_ZeroRepayValue(t *testing.T) {
	got := risk.SeizeAmount(decimal.Zero, dec("0.05"), dec("1"), 1_000)
	if got != 0 {
		t.Errorf("seize = %d, want 0", got)
	}
}
