// Package risk computes collateralization health and liquidation sizing.
// Everything here is a pure function over post-accrual balances and oracle
// prices; all record mutation stays in the operation handlers.
package risk

import (
	"math"

	"github.com/shopspring/decimal"
)

// InfiniteHealth is the health factor reported for a position with no debt.
// A debt-free position is always healthy regardless of collateral.
var InfiniteHealth = decimal.NewFromInt(math.MaxInt64)

var one = decimal.NewFromInt(1)

// Value converts an absolute asset amount into oracle-price terms.
func Value(amount uint64, price decimal.Decimal) decimal.Decimal {
	return decimal.NewFromUint64(amount).Mul(price)
}

// HealthFactor is (collateralValue * liquidationThreshold) / debtValue.
// Below 1 the position is eligible for liquidation.
func HealthFactor(collateralValue, debtValue, liquidationThreshold decimal.Decimal) decimal.Decimal {
	if debtValue.IsZero() {
		return InfiniteHealth
	}
	return collateralValue.Mul(liquidationThreshold).Div(debtValue)
}

// Liquidatable reports whether a health factor permits liquidation.
func Liquidatable(healthFactor decimal.Decimal) bool {
	return healthFactor.LessThan(one)
}

// BorrowableAmount is the maximum value a position may draw against its
// collateral at borrow time.
func BorrowableAmount(collateralValue, maxLTV decimal.Decimal) decimal.Decimal {
	return collateralValue.Mul(maxLTV)
}

// RepayAmount sizes one liquidation call's debt repayment in debt-asset
// units: closeFactor of the outstanding debt value, capped at the debt
// itself. debtPrice must be non-zero.
func RepayAmount(debtValue, closeFactor, debtPrice decimal.Decimal, outstandingDebt uint64) uint64 {
	raw := debtValue.Mul(closeFactor).Div(debtPrice).Floor()
	amount := clampUint64(raw)
	if amount > outstandingDebt {
		return outstandingDebt
	}
	return amount
}

// SeizeAmount sizes the collateral paid out to the liquidator: the repaid
// value plus the liquidation bonus, converted at the collateral price and
// capped at the collateral actually available. collateralPrice must be
// non-zero.
func SeizeAmount(repayValue, bonus, collateralPrice decimal.Decimal, availableCollateral uint64) uint64 {
	raw := repayValue.Mul(one.Add(bonus)).Div(collateralPrice).Floor()
	amount := clampUint64(raw)
	if amount > availableCollateral {
		return availableCollateral
	}
	return amount
}

func clampUint64(d decimal.Decimal) uint64 {
	if d.Sign() <= 0 {
		return 0
	}
	bi := d.BigInt()
	if !bi.IsUint64() {
		return ^uint64(0)
	}
	return bi.Uint64()
}
