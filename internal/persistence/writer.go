package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// RowWriter writes operation-log rows and current-state upserts to Postgres
// using multi-row statements, one transaction per batch.
type RowWriter struct {
	db *sql.DB
}

// OperationRow is a row in lend.operations, the append-only operation log.
type OperationRow struct {
	Sequence  int64
	OpType    string
	RequestID uuid.UUID
	Payload   []byte // JSON-encoded request
	Timestamp int64
}

// BankRow is the current-state row in lend.banks. Amounts are stored as
// BIGINT; the in-memory uint64 values never exceed the int64 range in
// practice because they denominate real asset units.
type BankRow struct {
	Asset                  string
	TotalDeposits          int64
	TotalDepositShares     int64
	TotalBorrowed          int64
	TotalBorrowShares      int64
	InterestRate           int64
	LiquidationThreshold   string
	MaxLTV                 string
	LiquidationBonus       string
	LiquidationCloseFactor string
	LastAccrualTime        int64
	Version                int64
	UpdatedSeq             int64
}

// PositionRow is the current-state row in lend.positions.
type PositionRow struct {
	Owner             uuid.UUID
	CollateralAsset   string
	LastDepositUpdate int64
	LastBorrowUpdate  int64
	Version           int64
	UpdatedSeq        int64
}

// PositionBalanceRow is one asset slot of a position in lend.position_balances.
type PositionBalanceRow struct {
	Owner         uuid.UUID
	Asset         string
	Deposited     int64
	DepositShares int64
	Borrowed      int64
	BorrowShares  int64
	UpdatedSeq    int64
}

// LegRow is a row in lend.transfer_legs, the append-only custody journal.
type LegRow struct {
	LegID       uuid.UUID
	BatchID     uuid.UUID
	OpRef       string
	Sequence    int64
	FromAccount string
	ToAccount   string
	Authorizer  uuid.UUID
	Asset       string
	Amount      int64
	Decimals    int16
	Kind        string
	Timestamp   int64
}

// BalanceRow is the current-state row in lend.balances, one custody account.
type BalanceRow struct {
	Account    string
	Asset      string
	Balance    int64
	UpdatedSeq int64
}

func NewRowWriter(db *sql.DB) *RowWriter {
	return &RowWriter{db: db}
}

func (w *RowWriter) DB() *sql.DB {
	return w.db
}

// WriteOperations appends operation-log rows. Replays hit the sequence
// conflict and are dropped, keeping writes idempotent.
func (w *RowWriter) WriteOperations(ctx context.Context, tx *sql.Tx, ops []OperationRow) error {
	if len(ops) == 0 {
		return nil
	}

	query := `INSERT INTO lend.operations
		(sequence, op_type, request_id, payload, timestamp)
		VALUES `

	values := make([]string, 0, len(ops))
	args := make([]interface{}, 0, len(ops)*5)
	for i, o := range ops {
		base := i * 5
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5,
		))
		args = append(args, o.Sequence, o.OpType, o.RequestID, o.Payload, o.Timestamp)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteLegs appends custody journal rows.
func (w *RowWriter) WriteLegs(ctx context.Context, tx *sql.Tx, legs []LegRow) error {
	if len(legs) == 0 {
		return nil
	}

	query := `INSERT INTO lend.transfer_legs
		(leg_id, batch_id, op_ref, sequence, from_account, to_account, authorizer, asset, amount, decimals, kind, timestamp)
		VALUES `

	values := make([]string, 0, len(legs))
	args := make([]interface{}, 0, len(legs)*12)
	for i, l := range legs {
		base := i * 12
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
			base+7, base+8, base+9, base+10, base+11, base+12,
		))
		args = append(args,
			l.LegID, l.BatchID, l.OpRef, l.Sequence,
			l.FromAccount, l.ToAccount, l.Authorizer, l.Asset,
			l.Amount, l.Decimals, l.Kind, l.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (leg_id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// UpsertBanks writes current bank state. The version guard makes stale
// replays no-ops. Callers must collapse duplicate assets per batch first;
// Postgres rejects a multi-row upsert that touches the same key twice.
func (w *RowWriter) UpsertBanks(ctx context.Context, tx *sql.Tx, banks []BankRow) error {
	if len(banks) == 0 {
		return nil
	}

	query := `INSERT INTO lend.banks
		(asset, total_deposits, total_deposit_shares, total_borrowed, total_borrow_shares,
		 interest_rate, liquidation_threshold, max_ltv, liquidation_bonus, liquidation_close_factor,
		 last_accrual_time, version, updated_seq)
		VALUES `

	values := make([]string, 0, len(banks))
	args := make([]interface{}, 0, len(banks)*13)
	for i, b := range banks {
		base := i * 13
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
			base+8, base+9, base+10, base+11, base+12, base+13,
		))
		args = append(args,
			b.Asset, b.TotalDeposits, b.TotalDepositShares, b.TotalBorrowed, b.TotalBorrowShares,
			b.InterestRate, b.LiquidationThreshold, b.MaxLTV, b.LiquidationBonus, b.LiquidationCloseFactor,
			b.LastAccrualTime, b.Version, b.UpdatedSeq,
		)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (asset) DO UPDATE SET
		total_deposits = EXCLUDED.total_deposits,
		total_deposit_shares = EXCLUDED.total_deposit_shares,
		total_borrowed = EXCLUDED.total_borrowed,
		total_borrow_shares = EXCLUDED.total_borrow_shares,
		interest_rate = EXCLUDED.interest_rate,
		liquidation_threshold = EXCLUDED.liquidation_threshold,
		max_ltv = EXCLUDED.max_ltv,
		liquidation_bonus = EXCLUDED.liquidation_bonus,
		liquidation_close_factor = EXCLUDED.liquidation_close_factor,
		last_accrual_time = EXCLUDED.last_accrual_time,
		version = EXCLUDED.version,
		updated_seq = EXCLUDED.updated_seq
		WHERE lend.banks.version < EXCLUDED.version`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// UpsertPositions writes current position state with the same version guard
// and per-batch collapse requirement as UpsertBanks.
func (w *RowWriter) UpsertPositions(ctx context.Context, tx *sql.Tx, positions []PositionRow) error {
	if len(positions) == 0 {
		return nil
	}

	query := `INSERT INTO lend.positions
		(owner, collateral_asset, last_deposit_update, last_borrow_update, version, updated_seq)
		VALUES `

	values := make([]string, 0, len(positions))
	args := make([]interface{}, 0, len(positions)*6)
	for i, p := range positions {
		base := i * 6
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
		))
		args = append(args,
			p.Owner, p.CollateralAsset, p.LastDepositUpdate,
			p.LastBorrowUpdate, p.Version, p.UpdatedSeq,
		)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (owner) DO UPDATE SET
		last_deposit_update = EXCLUDED.last_deposit_update,
		last_borrow_update = EXCLUDED.last_borrow_update,
		version = EXCLUDED.version,
		updated_seq = EXCLUDED.updated_seq
		WHERE lend.positions.version < EXCLUDED.version`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// UpsertPositionBalances writes the per-asset slots of positions.
func (w *RowWriter) UpsertPositionBalances(ctx context.Context, tx *sql.Tx, balances []PositionBalanceRow) error {
	if len(balances) == 0 {
		return nil
	}

	query := `INSERT INTO lend.position_balances
		(owner, asset, deposited, deposit_shares, borrowed, borrow_shares, updated_seq)
		VALUES `

	values := make([]string, 0, len(balances))
	args := make([]interface{}, 0, len(balances)*7)
	for i, b := range balances {
		base := i * 7
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))
		args = append(args,
			b.Owner, b.Asset, b.Deposited, b.DepositShares,
			b.Borrowed, b.BorrowShares, b.UpdatedSeq,
		)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (owner, asset) DO UPDATE SET
		deposited = EXCLUDED.deposited,
		deposit_shares = EXCLUDED.deposit_shares,
		borrowed = EXCLUDED.borrowed,
		borrow_shares = EXCLUDED.borrow_shares,
		updated_seq = EXCLUDED.updated_seq
		WHERE lend.position_balances.updated_seq < EXCLUDED.updated_seq`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// UpsertBalances writes current custody account balances.
func (w *RowWriter) UpsertBalances(ctx context.Context, tx *sql.Tx, balances []BalanceRow) error {
	if len(balances) == 0 {
		return nil
	}

	query := `INSERT INTO lend.balances
		(account, asset, balance, updated_seq)
		VALUES `

	values := make([]string, 0, len(balances))
	args := make([]interface{}, 0, len(balances)*4)
	for i, b := range balances {
		base := i * 4
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4,
		))
		args = append(args, b.Account, b.Asset, b.Balance, b.UpdatedSeq)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (account) DO UPDATE SET
		balance = EXCLUDED.balance,
		updated_seq = EXCLUDED.updated_seq
		WHERE lend.balances.updated_seq < EXCLUDED.updated_seq`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
