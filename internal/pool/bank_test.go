package pool_test

import (
	"errors"
	"testing"

	lmath "LendLedger/internal/math"
	"LendLedger/internal/pool"
)

func newBank(asset pool.Asset, rate uint64) *pool.Bank {
	return &pool.Bank{
		Asset:           asset,
		InterestRate:    rate,
		LastAccrualTime: 1_700_000_000,
		Version:         1,
	}
}

// ============================================================================
// Test: Share issuance
// ============================================================================

func TestDepositSharesFor_FirstDepositSeedsOneToOne(t *testing.T) {
	b := newBank(pool.AssetUSDC, 0)

	shares, err := b.DepositSharesFor(1_000_000)
	if err != nil {
		t.Fatalf("DepositSharesFor failed: %v", err)
	}
	if shares != 1_000_000 {
		t.Errorf("first deposit should mint 1:1, got %d shares", shares)
	}
}

func TestDepositSharesFor_AfterGrowthMintsFewer(t *testing.T) {
	b := newBank(pool.AssetUSDC, 0)
	b.TotalDeposits = 2_000_000
	b.TotalDepositShares = 1_000_000

	// Share price is 2: depositing 1_000_000 mints 500_000 shares.
	shares, err := b.DepositSharesFor(1_000_000)
	if err != nil {
		t.Fatalf("DepositSharesFor failed: %v", err)
	}
	if shares != 500_000 {
		t.Errorf("got %d shares, want 500_000", shares)
	}
}

func TestBorrowSharesFor_FirstBorrowSeedsOneToOne(t *testing.T) {
	b := newBank(pool.AssetUSDC, 0)

	shares, err := b.BorrowSharesFor(750)
	if err != nil {
		t.Fatalf("BorrowSharesFor failed: %v", err)
	}
	if shares != 750 {
		t.Errorf("first borrow should mint 1:1, got %d shares", shares)
	}
}

func TestValueOfDepositShares_RoundTripNeverExceedsDeposit(t *testing.T) {
	b := newBank(pool.AssetSOL, 0)
	b.TotalDeposits = 3_333_333
	b.TotalDepositShares = 1_234_567

	amount := uint64(999_999)
	shares, err := b.DepositSharesFor(amount)
	if err != nil {
		t.Fatalf("DepositSharesFor failed: %v", err)
	}
	b.TotalDeposits += amount
	b.TotalDepositShares += shares

	value, err := b.ValueOfDepositShares(shares)
	if err != nil {
		t.Fatalf("ValueOfDepositShares failed: %v", err)
	}
	if value > amount {
		t.Errorf("minted shares redeem for %d, more than the %d deposited", value, amount)
	}
}

func TestValueOfBorrowShares_ZeroShares(t *testing.T) {
	b := newBank(pool.AssetUSDC, 0)

	value, err := b.ValueOfBorrowShares(0)
	if err != nil {
		t.Fatalf("ValueOfBorrowShares failed: %v", err)
	}
	if value != 0 {
		t.Errorf("zero shares should redeem for 0, got %d", value)
	}
}

// ============================================================================
// Test: Interest accrual
// ============================================================================

func TestAccrue_GrowsAggregatesNotShares(t *testing.T) {
	b := newBank(pool.AssetUSDC, lmath.RateScale/10) // 0.1/sec
	b.TotalDeposits = 1_000_000
	b.TotalDepositShares = 1_000_000
	b.TotalBorrowed = 400_000
	b.TotalBorrowShares = 400_000

	// 10 seconds at 0.1/sec compounds by e^1.
	if err := b.Accrue(b.LastAccrualTime + 10); err != nil {
		t.Fatalf("Accrue failed: %v", err)
	}

	if b.TotalDeposits != 2_718_281 {
		t.Errorf("TotalDeposits = %d, want 2_718_281", b.TotalDeposits)
	}
	if b.TotalBorrowed != 1_087_312 {
		t.Errorf("TotalBorrowed = %d, want 1_087_312", b.TotalBorrowed)
	}
	if b.TotalDepositShares != 1_000_000 || b.TotalBorrowShares != 400_000 {
		t.Error("accrual must not change share counts")
	}
}

func TestAccrue_RaisesShareValue(t *testing.T) {
	b := newBank(pool.AssetUSDC, lmath.RateScale/10)
	b.TotalDeposits = 1_000_000
	b.TotalDepositShares = 1_000_000

	before, _ := b.ValueOfDepositShares(1_000_000)
	if err := b.Accrue(b.LastAccrualTime + 10); err != nil {
		t.Fatalf("Accrue failed: %v", err)
	}
	after, _ := b.ValueOfDepositShares(1_000_000)

	if after <= before {
		t.Errorf("share value should rise with accrual: before %d, after %d", before, after)
	}
}

func TestAccrue_SameSecondIsNoOp(t *testing.T) {
	b := newBank(pool.AssetUSDC, lmath.RateScale)
	b.TotalDeposits = 1_000_000

	if err := b.Accrue(b.LastAccrualTime); err != nil {
		t.Fatalf("Accrue failed: %v", err)
	}
	if b.TotalDeposits != 1_000_000 {
		t.Errorf("same-second accrual changed deposits: %d", b.TotalDeposits)
	}
}

func TestAccrue_ClockBackwards(t *testing.T) {
	b := newBank(pool.AssetUSDC, lmath.RateScale)
	b.TotalDeposits = 1_000_000
	last := b.LastAccrualTime

	if err := b.Accrue(last - 100); err != nil {
		t.Fatalf("Accrue failed: %v", err)
	}
	if b.TotalDeposits != 1_000_000 {
		t.Errorf("backwards clock changed deposits: %d", b.TotalDeposits)
	}
	if b.LastAccrualTime != last {
		t.Errorf("backwards clock rewound accrual time to %d", b.LastAccrualTime)
	}
}

func TestAccrue_OverflowSurfacesArithmeticError(t *testing.T) {
	b := newBank(pool.AssetUSDC, lmath.RateScale)
	b.TotalDeposits = 1 << 60

	err := b.Accrue(b.LastAccrualTime + 40)
	if !errors.Is(err, pool.ErrArithmetic) {
		t.Errorf("expected ErrArithmetic, got %v", err)
	}
	if !errors.Is(err, lmath.ErrArithmetic) {
		t.Errorf("pool.ErrArithmetic must match the math sentinel, got %v", err)
	}
}

func TestClone_Independent(t *testing.T) {
	b := newBank(pool.AssetSOL, 0)
	b.TotalDeposits = 100

	c := b.Clone()
	c.TotalDeposits = 999

	if b.TotalDeposits != 100 {
		t.Errorf("mutating the clone changed the original: %d", b.TotalDeposits)
	}
}
