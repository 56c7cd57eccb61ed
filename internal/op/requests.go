package op

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"LendLedger/internal/pool"
)

// InitBank creates the pool record for one asset.
type InitBank struct {
	RequestID              uuid.UUID
	Asset                  pool.Asset
	InterestRate           uint64 // fixed-point per-second rate, math.RateScale
	LiquidationThreshold   decimal.Decimal
	MaxLTV                 decimal.Decimal
	LiquidationBonus       decimal.Decimal
	LiquidationCloseFactor decimal.Decimal
	Timestamp              int64
}

func (r *InitBank) IdempotencyKey() string { return r.RequestID.String() }
func (r *InitBank) Type() OpType           { return OpInitBank }
func (r *InitBank) OccurredAt() int64      { return r.Timestamp }

// InitUser creates the position record for one participant.
type InitUser struct {
	RequestID       uuid.UUID
	Owner           uuid.UUID
	CollateralAsset pool.Asset
	Timestamp       int64
}

func (r *InitUser) IdempotencyKey() string { return r.RequestID.String() }
func (r *InitUser) Type() OpType           { return OpInitUser }
func (r *InitUser) OccurredAt() int64      { return r.Timestamp }

// Deposit moves amount from the participant's wallet into pool custody.
type Deposit struct {
	RequestID uuid.UUID
	Owner     uuid.UUID
	Asset     pool.Asset
	Amount    uint64
	Timestamp int64
}

func (r *Deposit) IdempotencyKey() string { return r.RequestID.String() }
func (r *Deposit) Type() OpType           { return OpDeposit }
func (r *Deposit) OccurredAt() int64      { return r.Timestamp }

// Withdraw redeems deposit shares back to the participant's wallet.
type Withdraw struct {
	RequestID uuid.UUID
	Owner     uuid.UUID
	Asset     pool.Asset
	Amount    uint64
	Timestamp int64
}

func (r *Withdraw) IdempotencyKey() string { return r.RequestID.String() }
func (r *Withdraw) Type() OpType           { return OpWithdraw }
func (r *Withdraw) OccurredAt() int64      { return r.Timestamp }

// Borrow draws the debt asset against the position's collateral.
type Borrow struct {
	RequestID uuid.UUID
	Owner     uuid.UUID
	Asset     pool.Asset
	Amount    uint64
	Timestamp int64
}

func (r *Borrow) IdempotencyKey() string { return r.RequestID.String() }
func (r *Borrow) Type() OpType           { return OpBorrow }
func (r *Borrow) OccurredAt() int64      { return r.Timestamp }

// Repay returns borrowed value to the pool.
type Repay struct {
	RequestID uuid.UUID
	Owner     uuid.UUID
	Asset     pool.Asset
	Amount    uint64
	Timestamp int64
}

func (r *Repay) IdempotencyKey() string { return r.RequestID.String() }
func (r *Repay) Type() OpType           { return OpRepay }
func (r *Repay) OccurredAt() int64      { return r.Timestamp }

// Liquidate repays part of an unhealthy borrower's debt from the
// liquidator's wallet and pays out seized collateral plus bonus.
type Liquidate struct {
	RequestID  uuid.UUID
	Liquidator uuid.UUID
	Borrower   uuid.UUID
	Timestamp  int64
}

func (r *Liquidate) IdempotencyKey() string { return r.RequestID.String() }
func (r *Liquidate) Type() OpType           { return OpLiquidate }
func (r *Liquidate) OccurredAt() int64      { return r.Timestamp }

// PriceUpdate feeds one oracle observation into the price cache. The
// observation timestamp comes from the feed; Timestamp is when the update
// entered the system.
type PriceUpdate struct {
	RequestID      uuid.UUID
	Asset          pool.Asset
	Price          decimal.Decimal
	PriceTimestamp int64
	Timestamp      int64
}

func (r *PriceUpdate) IdempotencyKey() string { return r.RequestID.String() }
func (r *PriceUpdate) Type() OpType           { return OpPriceUpdate }
func (r *PriceUpdate) OccurredAt() int64      { return r.Timestamp }
