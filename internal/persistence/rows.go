package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"LendLedger/internal/engine"
	"LendLedger/internal/pool"
)

// RowSet is one applied operation flattened into table rows.
type RowSet struct {
	Operation        OperationRow
	Banks            []BankRow
	Positions        []PositionRow
	PositionBalances []PositionBalanceRow
	Legs             []LegRow
	Balances         []BalanceRow
}

// BuildRowSet converts an engine output into the rows its persistence needs.
func BuildRowSet(out engine.Output) (RowSet, error) {
	payload, err := json.Marshal(out.Request)
	if err != nil {
		return RowSet{}, fmt.Errorf("marshal request payload: %w", err)
	}

	rs := RowSet{
		Operation: OperationRow{
			Sequence:  out.Sequence,
			OpType:    out.Request.Type().String(),
			RequestID: requestUUID(out.Request.IdempotencyKey()),
			Payload:   payload,
			Timestamp: out.Request.OccurredAt(),
		},
	}

	for _, b := range out.Banks {
		rs.Banks = append(rs.Banks, BankRow{
			Asset:                  b.Asset.String(),
			TotalDeposits:          int64(b.TotalDeposits),
			TotalDepositShares:     int64(b.TotalDepositShares),
			TotalBorrowed:          int64(b.TotalBorrowed),
			TotalBorrowShares:      int64(b.TotalBorrowShares),
			InterestRate:           int64(b.InterestRate),
			LiquidationThreshold:   b.LiquidationThreshold.String(),
			MaxLTV:                 b.MaxLTV.String(),
			LiquidationBonus:       b.LiquidationBonus.String(),
			LiquidationCloseFactor: b.LiquidationCloseFactor.String(),
			LastAccrualTime:        b.LastAccrualTime,
			Version:                b.Version,
			UpdatedSeq:             out.Sequence,
		})
	}

	for _, p := range out.Positions {
		rs.Positions = append(rs.Positions, PositionRow{
			Owner:             p.Owner,
			CollateralAsset:   p.CollateralAsset.String(),
			LastDepositUpdate: p.LastDepositUpdate,
			LastBorrowUpdate:  p.LastBorrowUpdate,
			Version:           p.Version,
			UpdatedSeq:        out.Sequence,
		})
		for a := pool.Asset(0); a < pool.NumAssets; a++ {
			bal := p.Balance(a)
			rs.PositionBalances = append(rs.PositionBalances, PositionBalanceRow{
				Owner:         p.Owner,
				Asset:         a.String(),
				Deposited:     int64(bal.Deposited),
				DepositShares: int64(bal.DepositShares),
				Borrowed:      int64(bal.Borrowed),
				BorrowShares:  int64(bal.BorrowShares),
				UpdatedSeq:    out.Sequence,
			})
		}
	}

	if out.Batch != nil {
		for _, leg := range out.Batch.Legs {
			rs.Legs = append(rs.Legs, LegRow{
				LegID:       leg.LegID,
				BatchID:     leg.BatchID,
				OpRef:       leg.OpRef,
				Sequence:    out.Sequence,
				FromAccount: leg.From.AccountPath(),
				ToAccount:   leg.To.AccountPath(),
				Authorizer:  leg.Authorizer,
				Asset:       leg.Asset.String(),
				Amount:      int64(leg.Amount),
				Decimals:    int16(leg.Decimals),
				Kind:        leg.Kind.String(),
				Timestamp:   leg.Timestamp,
			})
		}
	}

	for key, balance := range out.Balances {
		rs.Balances = append(rs.Balances, BalanceRow{
			Account:    key.AccountPath(),
			Asset:      key.Asset.String(),
			Balance:    balance,
			UpdatedSeq: out.Sequence,
		})
	}

	return rs, nil
}

// requestUUID recovers the request UUID from an idempotency key. Keys are
// produced by uuid.UUID.String, so a parse failure means a corrupted request
// and maps to the zero UUID rather than failing persistence.
func requestUUID(key string) uuid.UUID {
	id, err := uuid.Parse(key)
	if err != nil {
		return uuid.Nil
	}
	return id
}
