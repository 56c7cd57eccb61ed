package math

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrArithmetic: overflow, underflow, or division by zero in share or
// interest math.
var ErrArithmetic = errors.New("arithmetic error")

// Share and aggregate amounts are uint64. All intermediate products run
// through big.Int so a*b cannot wrap before the division brings the result
// back into range. Division rounds down: share issuance and share redemption
// both floor, which keeps the sum of all participants' share values at or
// below the pool total.

var maxUint64 = new(big.Int).SetUint64(^uint64(0))

// MulDiv computes a*b/den with a 128-bit intermediate, rounding down.
func MulDiv(a, b, den uint64) (uint64, error) {
	if den == 0 {
		return 0, fmt.Errorf("%w: division by zero", ErrArithmetic)
	}

	num := new(big.Int).Mul(
		new(big.Int).SetUint64(a),
		new(big.Int).SetUint64(b),
	)
	num.Quo(num, new(big.Int).SetUint64(den))

	if num.Cmp(maxUint64) > 0 {
		return 0, fmt.Errorf("%w: overflow in %d*%d/%d", ErrArithmetic, a, b, den)
	}
	return num.Uint64(), nil
}

// CheckedAdd returns a+b or fails on wraparound.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, fmt.Errorf("%w: overflow in %d+%d", ErrArithmetic, a, b)
	}
	return sum, nil
}

// CheckedSub returns a-b or fails on underflow.
func CheckedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, fmt.Errorf("%w: underflow in %d-%d", ErrArithmetic, a, b)
	}
	return a - b, nil
}

// SaturatingSub returns a-b, clamped at zero.
func SaturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
