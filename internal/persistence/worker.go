package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"LendLedger/internal/engine"
	"LendLedger/internal/observability"
)

// Worker drains the engine's output channel and batch-writes to Postgres.
// The engine sends blocking, so if this worker falls behind the engine
// stalls rather than losing an applied operation.
type Worker struct {
	writer       *RowWriter
	inputChan    <-chan engine.Output
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	log          zerolog.Logger
}

func NewWorker(
	db *sql.DB,
	inputChan <-chan engine.Output,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Worker {
	return &Worker{
		writer:       NewRowWriter(db),
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		log:          log,
	}
}

// Run batches incoming outputs and flushes either when the batch is full or
// the flush timeout expires. Blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	batch := make([]RowSet, 0, w.batchSize)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				if err := w.flush(context.Background(), batch); err != nil {
					w.log.Error().Err(err).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case out, ok := <-w.inputChan:
			if !ok {
				if len(batch) > 0 {
					if err := w.flush(context.Background(), batch); err != nil {
						w.log.Error().Err(err).Msg("final flush failed")
					}
				}
				return nil
			}

			rs, err := BuildRowSet(out)
			if err != nil {
				// A request that committed but cannot be serialized is a
				// programming error; record it and keep the log moving.
				if w.metrics != nil {
					w.metrics.PersistErrors.WithLabelValues("build_rows").Inc()
				}
				w.log.Error().Int64("sequence", out.Sequence).Err(err).Msg("row conversion failed")
				continue
			}
			batch = append(batch, rs)

			if len(batch) >= w.batchSize {
				if err := w.flushWithRetry(ctx, batch); err != nil {
					w.log.Error().Err(err).Msg("batch flush failed after retries")
				}
				batch = batch[:0]
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				if err := w.flushWithRetry(ctx, batch); err != nil {
					w.log.Error().Err(err).Msg("timeout flush failed after retries")
				}
				batch = batch[:0]
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff. The worker never drops a
// batch: it retries until the write succeeds or the context is cancelled, in
// which case it attempts one final flush before giving up.
func (w *Worker) flushWithRetry(ctx context.Context, batch []RowSet) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("batch", len(batch)).
				Msg("persistence retry")
			select {
			case <-ctx.Done():
				if err := w.flush(context.Background(), batch); err != nil {
					return fmt.Errorf("final flush on shutdown failed: %w", err)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := w.flush(ctx, batch)
		if err == nil {
			if attempt > 0 {
				w.log.Info().Int("retries", attempt).Msg("persistence flush recovered")
			}
			return nil
		}

		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("retry").Inc()
		}
	}
}

func (w *Worker) flush(ctx context.Context, batch []RowSet) error {
	start := time.Now()

	ops := make([]OperationRow, 0, len(batch))
	legs := make([]LegRow, 0, len(batch))
	// Current-state rows collapse to the latest per key: batches are in
	// sequence order, and a multi-row upsert may not touch a key twice.
	bankByAsset := make(map[string]BankRow)
	positionByOwner := make(map[[16]byte]PositionRow)
	slotByKey := make(map[string]PositionBalanceRow)
	balanceByAccount := make(map[string]BalanceRow)

	for _, rs := range batch {
		ops = append(ops, rs.Operation)
		legs = append(legs, rs.Legs...)
		for _, b := range rs.Banks {
			bankByAsset[b.Asset] = b
		}
		for _, p := range rs.Positions {
			positionByOwner[p.Owner] = p
		}
		for _, pb := range rs.PositionBalances {
			slotByKey[pb.Owner.String()+"/"+pb.Asset] = pb
		}
		for _, bal := range rs.Balances {
			balanceByAccount[bal.Account] = bal
		}
	}

	banks := make([]BankRow, 0, len(bankByAsset))
	for _, b := range bankByAsset {
		banks = append(banks, b)
	}
	positions := make([]PositionRow, 0, len(positionByOwner))
	for _, p := range positionByOwner {
		positions = append(positions, p)
	}
	slots := make([]PositionBalanceRow, 0, len(slotByKey))
	for _, pb := range slotByKey {
		slots = append(slots, pb)
	}
	balances := make([]BalanceRow, 0, len(balanceByAccount))
	for _, bal := range balanceByAccount {
		balances = append(balances, bal)
	}

	tx, err := w.writer.db.BeginTx(ctx, nil)
	if err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_begin").Inc()
		}
		return err
	}
	defer tx.Rollback()

	steps := []struct {
		name string
		fn   func() error
	}{
		{"write_operations", func() error { return w.writer.WriteOperations(ctx, tx, ops) }},
		{"write_legs", func() error { return w.writer.WriteLegs(ctx, tx, legs) }},
		{"upsert_banks", func() error { return w.writer.UpsertBanks(ctx, tx, banks) }},
		{"upsert_positions", func() error { return w.writer.UpsertPositions(ctx, tx, positions) }},
		{"upsert_position_balances", func() error { return w.writer.UpsertPositionBalances(ctx, tx, slots) }},
		{"upsert_balances", func() error { return w.writer.UpsertBalances(ctx, tx, balances) }},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			if w.metrics != nil {
				w.metrics.PersistErrors.WithLabelValues(step.name).Inc()
			}
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		}
		return err
	}

	if w.metrics != nil {
		w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		rows := len(ops) + len(legs) + len(banks) + len(positions) + len(slots) + len(balances)
		w.metrics.PersistRowsWritten.Add(float64(rows))
		if len(ops) > 0 {
			w.metrics.PersistLastSeq.Set(float64(ops[len(ops)-1].Sequence))
		}
	}

	return nil
}
