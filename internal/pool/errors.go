package pool

import (
	"errors"

	"LendLedger/internal/math"
)

// Error kinds surfaced to callers. Every failed operation aborts with exactly
// one of these; there is no partial state change and no internal retry.
var (
	// ErrInsufficientFunds: withdrawal exceeds the value of the position's
	// deposit shares.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrOverBorrowableAmount: borrow exceeds the LTV-derived limit.
	ErrOverBorrowableAmount = errors.New("requested amount is more than borrowable amount")

	// ErrOverRepay: repayment exceeds the outstanding debt.
	ErrOverRepay = errors.New("requested amount is more than repayable amount")

	// ErrNotUnderCollateralized: liquidation attempted on a healthy position.
	ErrNotUnderCollateralized = errors.New("position is not under collateralized")

	// ErrArithmetic: overflow, underflow, or division by zero in share or
	// interest math. Defined next to the arithmetic itself and re-exported
	// here so callers match every pool failure against one error set.
	ErrArithmetic = math.ErrArithmetic

	// Record lifecycle errors from the init/lookup paths.
	ErrBankExists   = errors.New("bank already initialized for asset")
	ErrBankNotFound = errors.New("bank not found for asset")
	ErrUserExists   = errors.New("user position already initialized")
	ErrUserNotFound = errors.New("user position not found")

	// ErrInvalidAmount: zero or otherwise malformed amount; rejected before
	// any record is touched.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidAsset: operation names an asset the position cannot use on
	// that side (e.g. borrowing the collateral asset).
	ErrInvalidAsset = errors.New("invalid asset for operation")
)
