package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"LendLedger/internal/custody"
	"LendLedger/internal/pool"
)

// Loader restores engine state from the current-state tables on warm start.
// The tables are written transactionally with the operation log, so the
// loaded state is consistent as of the highest persisted sequence.
type Loader struct {
	db *sql.DB
}

// LoadedState is everything a warm start needs.
type LoadedState struct {
	NextSequence int64
	Banks        []*pool.Bank
	Positions    []*pool.Position
	Balances     map[custody.AccountKey]int64
	// RecentRequestIDs warm the dedup LRU, oldest first.
	RecentRequestIDs []string
}

func NewLoader(db *sql.DB) *Loader {
	return &Loader{db: db}
}

func (l *Loader) Load(ctx context.Context, dedupWarmCount int) (*LoadedState, error) {
	state := &LoadedState{Balances: make(map[custody.AccountKey]int64)}

	var maxSeq sql.NullInt64
	if err := l.db.QueryRowContext(ctx,
		`SELECT MAX(sequence) FROM lend.operations`,
	).Scan(&maxSeq); err != nil {
		return nil, fmt.Errorf("load max sequence: %w", err)
	}
	if maxSeq.Valid {
		state.NextSequence = maxSeq.Int64 + 1
	}

	if err := l.loadBanks(ctx, state); err != nil {
		return nil, err
	}
	if err := l.loadPositions(ctx, state); err != nil {
		return nil, err
	}
	if err := l.loadBalances(ctx, state); err != nil {
		return nil, err
	}
	if err := l.loadRecentRequestIDs(ctx, state, dedupWarmCount); err != nil {
		return nil, err
	}

	return state, nil
}

func (l *Loader) loadBanks(ctx context.Context, state *LoadedState) error {
	rows, err := l.db.QueryContext(ctx, `
		SELECT asset, total_deposits, total_deposit_shares, total_borrowed, total_borrow_shares,
		       interest_rate, liquidation_threshold, max_ltv, liquidation_bonus,
		       liquidation_close_factor, last_accrual_time, version
		FROM lend.banks
	`)
	if err != nil {
		return fmt.Errorf("load banks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var assetName, threshold, maxLTV, bonus, closeFactor string
		var deposits, depositShares, borrowed, borrowShares, rate, lastAccrual, version int64
		if err := rows.Scan(
			&assetName, &deposits, &depositShares, &borrowed, &borrowShares,
			&rate, &threshold, &maxLTV, &bonus, &closeFactor,
			&lastAccrual, &version,
		); err != nil {
			return fmt.Errorf("scan bank: %w", err)
		}

		asset, err := pool.ParseAsset(assetName)
		if err != nil {
			return fmt.Errorf("load banks: %w", err)
		}
		bank := &pool.Bank{
			Asset:              asset,
			TotalDeposits:      uint64(deposits),
			TotalDepositShares: uint64(depositShares),
			TotalBorrowed:      uint64(borrowed),
			TotalBorrowShares:  uint64(borrowShares),
			InterestRate:       uint64(rate),
			LastAccrualTime:    lastAccrual,
			Version:            version,
		}
		if bank.LiquidationThreshold, err = decimal.NewFromString(threshold); err != nil {
			return fmt.Errorf("parse liquidation_threshold: %w", err)
		}
		if bank.MaxLTV, err = decimal.NewFromString(maxLTV); err != nil {
			return fmt.Errorf("parse max_ltv: %w", err)
		}
		if bank.LiquidationBonus, err = decimal.NewFromString(bonus); err != nil {
			return fmt.Errorf("parse liquidation_bonus: %w", err)
		}
		if bank.LiquidationCloseFactor, err = decimal.NewFromString(closeFactor); err != nil {
			return fmt.Errorf("parse liquidation_close_factor: %w", err)
		}

		state.Banks = append(state.Banks, bank)
	}
	return rows.Err()
}

func (l *Loader) loadPositions(ctx context.Context, state *LoadedState) error {
	rows, err := l.db.QueryContext(ctx, `
		SELECT owner, collateral_asset, last_deposit_update, last_borrow_update, version
		FROM lend.positions
	`)
	if err != nil {
		return fmt.Errorf("load positions: %w", err)
	}
	defer rows.Close()

	positions := make(map[uuid.UUID]*pool.Position)
	for rows.Next() {
		var owner uuid.UUID
		var collateralName string
		var lastDeposit, lastBorrow, version int64
		if err := rows.Scan(&owner, &collateralName, &lastDeposit, &lastBorrow, &version); err != nil {
			return fmt.Errorf("scan position: %w", err)
		}
		collateral, err := pool.ParseAsset(collateralName)
		if err != nil {
			return fmt.Errorf("load positions: %w", err)
		}

		p := pool.NewPosition(owner, collateral, 0)
		p.LastDepositUpdate = lastDeposit
		p.LastBorrowUpdate = lastBorrow
		p.Version = version
		positions[owner] = p
	}
	if err := rows.Err(); err != nil {
		return err
	}

	slotRows, err := l.db.QueryContext(ctx, `
		SELECT owner, asset, deposited, deposit_shares, borrowed, borrow_shares
		FROM lend.position_balances
	`)
	if err != nil {
		return fmt.Errorf("load position balances: %w", err)
	}
	defer slotRows.Close()

	for slotRows.Next() {
		var owner uuid.UUID
		var assetName string
		var deposited, depositShares, borrowed, bShares int64
		if err := slotRows.Scan(&owner, &assetName, &deposited, &depositShares, &borrowed, &bShares); err != nil {
			return fmt.Errorf("scan position balance: %w", err)
		}
		p, ok := positions[owner]
		if !ok {
			return fmt.Errorf("position balance for unknown owner %s", owner)
		}
		asset, err := pool.ParseAsset(assetName)
		if err != nil {
			return fmt.Errorf("load position balances: %w", err)
		}
		p.SetBalance(asset, pool.AssetBalances{
			Deposited:     uint64(deposited),
			DepositShares: uint64(depositShares),
			Borrowed:      uint64(borrowed),
			BorrowShares:  uint64(bShares),
		})
	}
	if err := slotRows.Err(); err != nil {
		return err
	}

	for _, p := range positions {
		state.Positions = append(state.Positions, p)
	}
	return nil
}

func (l *Loader) loadBalances(ctx context.Context, state *LoadedState) error {
	rows, err := l.db.QueryContext(ctx, `SELECT account, balance FROM lend.balances`)
	if err != nil {
		return fmt.Errorf("load balances: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var account string
		var balance int64
		if err := rows.Scan(&account, &balance); err != nil {
			return fmt.Errorf("scan balance: %w", err)
		}
		key, err := custody.ParseAccountPath(account)
		if err != nil {
			return fmt.Errorf("load balances: %w", err)
		}
		state.Balances[key] = balance
	}
	return rows.Err()
}

func (l *Loader) loadRecentRequestIDs(ctx context.Context, state *LoadedState, count int) error {
	if count <= 0 {
		return nil
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT request_id FROM lend.operations
		ORDER BY sequence DESC
		LIMIT $1
	`, count)
	if err != nil {
		return fmt.Errorf("load request ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan request id: %w", err)
		}
		ids = append(ids, id.String())
	}
	if err := rows.Err(); err != nil {
		return err
	}

	// Reverse to oldest-first so LRU eviction drops the oldest keys.
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	state.RecentRequestIDs = ids
	return nil
}
