package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"LendLedger/internal/custody"
	"LendLedger/internal/observability"
	"LendLedger/internal/op"
	"LendLedger/internal/oracle"
	"LendLedger/internal/pool"
)

// Output is everything one applied operation produced: the committed record
// copies, the custody batch, and the touched custody balances. Consumed by
// the persistence worker and the outbound publisher.
type Output struct {
	Sequence  int64
	Request   op.Request
	Batch     *custody.Batch               // nil for operations without transfer legs
	Banks     []*pool.Bank                 // post-operation copies
	Positions []*pool.Position             // post-operation copies
	Balances  map[custody.AccountKey]int64 // custody balances after the batch
}

// BalanceReader exposes the custody balances touched by a batch so outputs
// can carry post-operation balances for persistence.
type BalanceReader interface {
	Balance(key custody.AccountKey) int64
}

// Config carries the engine's tunables.
type Config struct {
	// PriceMaxAge bounds oracle staleness for borrow and liquidate.
	PriceMaxAge time.Duration

	// DedupCapacity sizes the request-ID LRU.
	DedupCapacity int
}

// Engine applies operation requests one at a time. The surrounding runtime
// guarantees serial invocation and atomic commit; the engine guarantees that
// a failed operation mutates nothing: handlers work on record clones and
// commit only after every check and the transfer batch have succeeded.
type Engine struct {
	seq       int64
	banks     map[pool.Asset]*pool.Bank
	positions map[uuid.UUID]*pool.Position

	transfer custody.TransferService
	balances BalanceReader // nil when the transfer service is out of process
	prices   *oracle.Cache

	cfg     Config
	dedup   *dedupCache
	metrics *observability.Metrics
	log     zerolog.Logger

	outputChan chan<- Output
}

func New(
	transfer custody.TransferService,
	balances BalanceReader,
	prices *oracle.Cache,
	cfg Config,
	metrics *observability.Metrics,
	log zerolog.Logger,
	outputChan chan<- Output,
) *Engine {
	if cfg.PriceMaxAge <= 0 {
		cfg.PriceMaxAge = 60 * time.Second
	}
	if cfg.DedupCapacity <= 0 {
		cfg.DedupCapacity = 100_000
	}
	return &Engine{
		banks:      make(map[pool.Asset]*pool.Bank),
		positions:  make(map[uuid.UUID]*pool.Position),
		transfer:   transfer,
		balances:   balances,
		prices:     prices,
		cfg:        cfg,
		dedup:      newDedupCache(cfg.DedupCapacity),
		metrics:    metrics,
		log:        log,
		outputChan: outputChan,
	}
}

// Process applies one request. Duplicates are skipped silently; any other
// failure aborts the whole operation with the error kind surfaced verbatim.
func (e *Engine) Process(req op.Request) error {
	start := time.Now()
	opName := req.Type().String()
	key := req.IdempotencyKey()

	if e.dedup.Contains(key) {
		if e.metrics != nil {
			e.metrics.DuplicateRequests.WithLabelValues(opName).Inc()
		}
		return nil
	}

	out, err := e.dispatch(req)
	if err != nil {
		if e.metrics != nil {
			e.metrics.OpsRejected.WithLabelValues(opName, rejectReason(err)).Inc()
		}
		e.log.Warn().
			Str("op", opName).
			Str("request_id", key).
			Err(err).
			Msg("operation rejected")
		return err
	}

	out.Sequence = e.seq
	out.Request = req
	e.seq++

	if out.Batch != nil && e.balances != nil {
		out.Balances = make(map[custody.AccountKey]int64, len(out.Batch.Legs)*2)
		for _, leg := range out.Batch.Legs {
			out.Balances[leg.From] = e.balances.Balance(leg.From)
			out.Balances[leg.To] = e.balances.Balance(leg.To)
		}
	}

	if e.outputChan != nil {
		// Blocking send: the engine stalls rather than lose an applied
		// operation's persistence record.
		e.outputChan <- out
	}

	e.dedup.Add(key)

	if e.metrics != nil {
		e.metrics.OpsApplied.WithLabelValues(opName).Inc()
		e.metrics.OpDuration.WithLabelValues(opName).Observe(time.Since(start).Seconds())
		e.metrics.EngineSeq.Set(float64(e.seq))
		for _, b := range out.Banks {
			asset := b.Asset.String()
			e.metrics.PoolDeposits.WithLabelValues(asset).Set(float64(b.TotalDeposits))
			e.metrics.PoolDepositShares.WithLabelValues(asset).Set(float64(b.TotalDepositShares))
			e.metrics.PoolBorrowed.WithLabelValues(asset).Set(float64(b.TotalBorrowed))
			e.metrics.PoolBorrowShares.WithLabelValues(asset).Set(float64(b.TotalBorrowShares))
		}
		if out.Batch != nil {
			for _, leg := range out.Batch.Legs {
				e.metrics.TransferLegs.WithLabelValues(leg.Kind.String()).Inc()
			}
		}
	}

	e.log.Info().
		Str("op", opName).
		Str("request_id", key).
		Int64("sequence", out.Sequence).
		Msg("operation applied")

	return nil
}

func (e *Engine) dispatch(req op.Request) (Output, error) {
	switch r := req.(type) {
	case *op.InitBank:
		return e.handleInitBank(r)
	case *op.InitUser:
		return e.handleInitUser(r)
	case *op.Deposit:
		return e.handleDeposit(r)
	case *op.Withdraw:
		return e.handleWithdraw(r)
	case *op.Borrow:
		return e.handleBorrow(r)
	case *op.Repay:
		return e.handleRepay(r)
	case *op.Liquidate:
		return e.handleLiquidate(r)
	case *op.PriceUpdate:
		return e.handlePriceUpdate(r)
	default:
		return Output{}, fmt.Errorf("unknown request type: %T", req)
	}
}

// rejectReason maps an error to a bounded metric label.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, pool.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, pool.ErrOverBorrowableAmount):
		return "over_borrowable"
	case errors.Is(err, pool.ErrOverRepay):
		return "over_repay"
	case errors.Is(err, pool.ErrNotUnderCollateralized):
		return "not_under_collateralized"
	case errors.Is(err, pool.ErrArithmetic):
		return "arithmetic"
	case errors.Is(err, oracle.ErrStalePrice), errors.Is(err, oracle.ErrNoPrice):
		return "stale_price"
	case errors.Is(err, custody.ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, pool.ErrBankExists), errors.Is(err, pool.ErrUserExists):
		return "already_exists"
	case errors.Is(err, pool.ErrBankNotFound), errors.Is(err, pool.ErrUserNotFound):
		return "not_found"
	case errors.Is(err, pool.ErrInvalidAmount), errors.Is(err, pool.ErrInvalidAsset):
		return "invalid_request"
	default:
		return "internal"
	}
}

// Sequence returns the next sequence number the engine will assign.
func (e *Engine) Sequence() int64 {
	return e.seq
}

// Bank returns a copy of the stored pool record for an asset.
func (e *Engine) Bank(asset pool.Asset) (*pool.Bank, bool) {
	b, ok := e.banks[asset]
	if !ok {
		return nil, false
	}
	return b.Clone(), true
}

// Position returns a copy of the stored position record for an owner.
func (e *Engine) Position(owner uuid.UUID) (*pool.Position, bool) {
	p, ok := e.positions[owner]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Restore loads previously persisted records and the sequence watermark,
// used on warm start before any request is processed.
func (e *Engine) Restore(seq int64, banks []*pool.Bank, positions []*pool.Position, dedupKeys []string) {
	e.seq = seq
	for _, b := range banks {
		e.banks[b.Asset] = b.Clone()
	}
	for _, p := range positions {
		e.positions[p.Owner] = p.Clone()
	}
	e.dedup.Warm(dedupKeys)
}
