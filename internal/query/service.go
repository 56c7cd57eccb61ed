package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound: the requested record has never been persisted.
var ErrNotFound = errors.New("not found")

// Service provides read-only access to the persisted tables. Reads go to
// Postgres rather than the engine's memory, so results trail the engine by
// at most one persistence flush; every response carries as_of_sequence so
// callers can reason about freshness.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// GetBanks returns the current state of every asset pool.
func (s *Service) GetBanks(ctx context.Context) ([]BankResponse, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT asset, total_deposits, total_deposit_shares, total_borrowed, total_borrow_shares,
		       interest_rate, liquidation_threshold, max_ltv, liquidation_bonus,
		       liquidation_close_factor, last_accrual_time, version
		FROM lend.banks
		ORDER BY asset
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var banks []BankResponse
	for rows.Next() {
		b, err := scanBank(rows)
		if err != nil {
			return nil, err
		}
		b.AsOfSequence = asOfSeq
		banks = append(banks, b)
	}
	return banks, rows.Err()
}

// GetBank returns the current state of one asset pool.
func (s *Service) GetBank(ctx context.Context, asset string) (*BankResponse, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT asset, total_deposits, total_deposit_shares, total_borrowed, total_borrow_shares,
		       interest_rate, liquidation_threshold, max_ltv, liquidation_bonus,
		       liquidation_close_factor, last_accrual_time, version
		FROM lend.banks
		WHERE asset = $1
	`, asset)

	b, err := scanBank(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: bank %s", ErrNotFound, asset)
	}
	if err != nil {
		return nil, err
	}
	b.AsOfSequence = asOfSeq
	return &b, nil
}

// GetPosition returns one participant's position with its asset slots.
func (s *Service) GetPosition(ctx context.Context, owner uuid.UUID) (*PositionResponse, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	p := PositionResponse{Owner: owner, AsOfSequence: asOfSeq}
	err = s.db.QueryRowContext(ctx, `
		SELECT collateral_asset, last_deposit_update, last_borrow_update, version
		FROM lend.positions
		WHERE owner = $1
	`, owner).Scan(&p.CollateralAsset, &p.LastDepositUpdate, &p.LastBorrowUpdate, &p.Version)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: position %s", ErrNotFound, owner)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT asset, deposited, deposit_shares, borrowed, borrow_shares
		FROM lend.position_balances
		WHERE owner = $1
		ORDER BY asset
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var slot AssetSlotResponse
		if err := rows.Scan(&slot.Asset, &slot.Deposited, &slot.DepositShares,
			&slot.Borrowed, &slot.BorrowShares); err != nil {
			return nil, err
		}
		p.Balances = append(p.Balances, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetBalances returns a participant's custody account balances.
func (s *Service) GetBalances(ctx context.Context, owner uuid.UUID) ([]BalanceResponse, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	prefix := fmt.Sprintf("participant:%s:%%", owner)
	rows, err := s.db.QueryContext(ctx, `
		SELECT account, asset, balance
		FROM lend.balances
		WHERE account LIKE $1
		ORDER BY asset
	`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []BalanceResponse
	for rows.Next() {
		var b BalanceResponse
		b.AsOfSequence = asOfSeq
		if err := rows.Scan(&b.Account, &b.Asset, &b.Balance); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// GetTransferHistory returns custody journal rows touching a participant,
// newest first, with cursor-based pagination on sequence.
func (s *Service) GetTransferHistory(
	ctx context.Context,
	owner uuid.UUID,
	limit int,
	beforeSequence *int64,
) ([]TransferEntry, error) {
	prefix := fmt.Sprintf("participant:%s:%%", owner)

	query := `
		SELECT leg_id, batch_id, op_ref, sequence, from_account, to_account,
		       asset, amount, kind, timestamp
		FROM lend.transfer_legs
		WHERE (from_account LIKE $1 OR to_account LIKE $1)
	`
	args := []interface{}{prefix}
	argIdx := 2

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []TransferEntry
	for rows.Next() {
		var e TransferEntry
		if err := rows.Scan(
			&e.LegID, &e.BatchID, &e.OpRef, &e.Sequence,
			&e.FromAccount, &e.ToAccount, &e.Asset, &e.Amount,
			&e.Kind, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// VerifyIntegrity checks the operation log for sequence gaps and the custody
// book for per-asset imbalance. The book is zero-sum by construction, so any
// non-zero total means corruption.
func (s *Service) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT o1.sequence
		FROM lend.operations o1
		LEFT JOIN lend.operations o2 ON o2.sequence = o1.sequence - 1
		WHERE o1.sequence > 0 AND o2.sequence IS NULL
		ORDER BY o1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.SequenceGaps = append(report.SequenceGaps, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	balanceRows, err := s.db.QueryContext(ctx, `
		SELECT asset, SUM(balance) AS total
		FROM lend.balances
		GROUP BY asset
		HAVING SUM(balance) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var ua UnbalancedAsset
		if err := balanceRows.Scan(&ua.Asset, &ua.Imbalance); err != nil {
			return nil, err
		}
		report.UnbalancedAssets = append(report.UnbalancedAssets, ua)
	}
	if err := balanceRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.SequenceGaps) == 0 && len(report.UnbalancedAssets) == 0
	return report, nil
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBank(row rowScanner) (BankResponse, error) {
	var b BankResponse
	err := row.Scan(
		&b.Asset, &b.TotalDeposits, &b.TotalDepositShares, &b.TotalBorrowed, &b.TotalBorrowShares,
		&b.InterestRate, &b.LiquidationThreshold, &b.MaxLTV, &b.LiquidationBonus,
		&b.LiquidationCloseFactor, &b.LastAccrualTime, &b.Version,
	)
	if err != nil {
		return b, err
	}
	if b.TotalDeposits > 0 {
		b.Utilization = fmt.Sprintf("%.6f", float64(b.TotalBorrowed)/float64(b.TotalDeposits))
	} else {
		b.Utilization = "0"
	}
	return b, nil
}

func (s *Service) getWatermark(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM lend.operations`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}
