package pool

import (
	"fmt"

	"github.com/shopspring/decimal"

	lmath "LendLedger/internal/math"
)

// Bank is the aggregate record for one asset's lending pool. Depositors and
// borrowers hold shares against the deposit and borrow aggregates; interest
// accrual grows the aggregates while the share counts stay fixed, so the
// value of a share only ever rises between explicit share removals.
type Bank struct {
	Asset Asset

	TotalDeposits      uint64
	TotalDepositShares uint64

	TotalBorrowed      uint64
	TotalBorrowShares  uint64

	// InterestRate is the per-second continuously-compounding rate,
	// fixed-point scaled by math.RateScale.
	InterestRate uint64

	// Risk parameters, all fractions in [0,1] except the bonus.
	LiquidationThreshold   decimal.Decimal
	MaxLTV                 decimal.Decimal
	LiquidationBonus       decimal.Decimal
	LiquidationCloseFactor decimal.Decimal

	// LastAccrualTime is the unix second of the last interest application.
	LastAccrualTime int64

	Version int64
}

// Clone returns a deep copy. Operation handlers mutate clones and commit
// them only after every step succeeds, so a failed operation leaves the
// stored record untouched.
func (b *Bank) Clone() *Bank {
	c := *b
	return &c
}

// Accrue applies continuous compounding to both aggregates for the time
// elapsed since the last accrual and advances the accrual timestamp. Safe to
// call on every operation: zero elapsed time changes nothing.
func (b *Bank) Accrue(now int64) error {
	if now <= b.LastAccrualTime {
		// Clock went backwards or same-second arrival; nothing to apply.
		b.LastAccrualTime = maxInt64(b.LastAccrualTime, now)
		return nil
	}

	elapsed := uint64(now - b.LastAccrualTime)

	deposits, err := lmath.Accrue(b.TotalDeposits, b.InterestRate, elapsed)
	if err != nil {
		return fmt.Errorf("accrue deposits for %s: %w", b.Asset, err)
	}
	borrowed, err := lmath.Accrue(b.TotalBorrowed, b.InterestRate, elapsed)
	if err != nil {
		return fmt.Errorf("accrue borrows for %s: %w", b.Asset, err)
	}

	b.TotalDeposits = deposits
	b.TotalBorrowed = borrowed
	b.LastAccrualTime = now
	return nil
}

// DepositSharesFor converts an absolute deposit amount into shares at the
// current share price. The first depositor seeds the pool 1:1.
func (b *Bank) DepositSharesFor(amount uint64) (uint64, error) {
	if b.TotalDepositShares == 0 {
		return amount, nil
	}
	return lmath.MulDiv(amount, b.TotalDepositShares, b.TotalDeposits)
}

// BorrowSharesFor converts an absolute borrow amount into borrow shares.
// The pool's first borrow seeds the borrow aggregate 1:1.
func (b *Bank) BorrowSharesFor(amount uint64) (uint64, error) {
	if b.TotalBorrowShares == 0 {
		return amount, nil
	}
	return lmath.MulDiv(amount, b.TotalBorrowShares, b.TotalBorrowed)
}

// ValueOfDepositShares returns the absolute amount the given deposit shares
// currently redeem for.
func (b *Bank) ValueOfDepositShares(shares uint64) (uint64, error) {
	if shares == 0 {
		return 0, nil
	}
	return lmath.MulDiv(shares, b.TotalDeposits, b.TotalDepositShares)
}

// ValueOfBorrowShares returns the absolute debt the given borrow shares
// currently represent.
func (b *Bank) ValueOfBorrowShares(shares uint64) (uint64, error) {
	if shares == 0 {
		return 0, nil
	}
	return lmath.MulDiv(shares, b.TotalBorrowed, b.TotalBorrowShares)
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
