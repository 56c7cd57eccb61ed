package math

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Interest rates are fixed-point uint64 values scaled by RateScale:
// rate/RateScale is the continuously-compounding per-second rate.
const RateScale = 1_000_000_000

// expTaylorPrecision bounds the decimal expansion of the exponential. 24
// digits leaves ample headroom over the 20 digits of uint64.
const expTaylorPrecision = 24

// maxExpArg caps the exponent argument. e^50 already exceeds uint64 range
// for any non-zero principal, so larger arguments are a guaranteed overflow
// and are rejected before the (expensive) series evaluation.
var maxExpArg = decimal.NewFromInt(50)

var rateScaleDec = decimal.NewFromInt(RateScale)

// Accrue returns principal * exp(rate*elapsed), continuously compounded.
// Zero elapsed time is an exact no-op, which makes lazy accrual idempotent:
// two operations arriving back to back both recompute against the same
// last-accrual timestamp and the second sees no growth.
//
// The exponential is evaluated on arbitrary-precision decimals, never
// floats, so repeated accrual does not drift. Results that cannot be
// represented in uint64 fail with an arithmetic error instead of wrapping.
func Accrue(principal, rate, elapsed uint64) (uint64, error) {
	if principal == 0 || rate == 0 || elapsed == 0 {
		return principal, nil
	}

	// x = rate * elapsed / RateScale
	x := decimal.NewFromUint64(rate).
		Mul(decimal.NewFromUint64(elapsed)).
		Div(rateScaleDec)

	if x.GreaterThan(maxExpArg) {
		return 0, fmt.Errorf("%w: accrual exponent %s out of range", ErrArithmetic, x)
	}

	growth, err := x.ExpTaylor(expTaylorPrecision)
	if err != nil {
		return 0, fmt.Errorf("%w: exp(%s): %v", ErrArithmetic, x, err)
	}

	accrued := decimal.NewFromUint64(principal).Mul(growth).Floor()

	result := accrued.BigInt()
	if !result.IsUint64() {
		return 0, fmt.Errorf("%w: accrued value %s exceeds uint64", ErrArithmetic, accrued)
	}
	return result.Uint64(), nil
}
