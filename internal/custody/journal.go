package custody

import (
	"fmt"

	"github.com/google/uuid"

	"LendLedger/internal/pool"
)

// LegKind classifies a money-movement leg for persistence and metrics.
type LegKind int32

const (
	LegDepositIn LegKind = iota
	LegWithdrawOut
	LegBorrowOut
	LegRepayIn
	LegLiquidationRepay
	LegLiquidationSeize
	LegExternalFund
)

func (k LegKind) String() string {
	switch k {
	case LegDepositIn:
		return "deposit_in"
	case LegWithdrawOut:
		return "withdraw_out"
	case LegBorrowOut:
		return "borrow_out"
	case LegRepayIn:
		return "repay_in"
	case LegLiquidationRepay:
		return "liquidation_repay"
	case LegLiquidationSeize:
		return "liquidation_seize"
	case LegExternalFund:
		return "external_fund"
	default:
		return "unknown"
	}
}

// Leg is one double-entry transfer: Amount moves From -> To. The authorizing
// identity is recorded for the audit trail; authorization itself is checked
// by the runtime before the operation handler runs.
type Leg struct {
	LegID      uuid.UUID
	BatchID    uuid.UUID
	OpRef      string // idempotency key of the operation that produced this leg
	From       AccountKey
	To         AccountKey
	Authorizer uuid.UUID
	Asset      pool.Asset
	Amount     uint64
	Decimals   uint8
	Kind       LegKind
	Timestamp  int64
}

// Batch groups the legs of one operation. Applied all-or-nothing: a deposit
// has one leg, a liquidation has two, and neither leg of a liquidation may
// land without the other.
type Batch struct {
	BatchID   uuid.UUID
	OpRef     string
	Timestamp int64
	Legs      []Leg
}

// Validate checks structural integrity before application.
func (b *Batch) Validate() error {
	for i, leg := range b.Legs {
		if leg.Amount == 0 {
			return fmt.Errorf("leg %d: zero amount", i)
		}
		if leg.From == leg.To {
			return fmt.Errorf("leg %d: self-transfer on %s", i, leg.From.AccountPath())
		}
		if leg.From.Asset != leg.Asset || leg.To.Asset != leg.Asset {
			return fmt.Errorf("leg %d: account asset mismatch for %s", i, leg.Asset)
		}
		if leg.Decimals != leg.Asset.Decimals() {
			return fmt.Errorf("leg %d: decimals %d do not match %s", i, leg.Decimals, leg.Asset)
		}
	}
	return nil
}

// NewLeg builds a leg within a batch.
func (b *Batch) NewLeg(from, to AccountKey, authorizer uuid.UUID, asset pool.Asset, amount uint64, kind LegKind) {
	b.Legs = append(b.Legs, Leg{
		LegID:      uuid.New(),
		BatchID:    b.BatchID,
		OpRef:      b.OpRef,
		From:       from,
		To:         to,
		Authorizer: authorizer,
		Asset:      asset,
		Amount:     amount,
		Decimals:   asset.Decimals(),
		Kind:       kind,
		Timestamp:  b.Timestamp,
	})
}

// NewBatch starts an empty batch for an operation.
func NewBatch(opRef string, timestamp int64) *Batch {
	return &Batch{
		BatchID:   uuid.New(),
		OpRef:     opRef,
		Timestamp: timestamp,
	}
}
