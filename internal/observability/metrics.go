package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for LendLedger.
type Metrics struct {
	// --- Operation processing ---
	OpsApplied  *prometheus.CounterVec
	OpsRejected *prometheus.CounterVec
	OpDuration  *prometheus.HistogramVec
	EngineSeq   prometheus.Gauge

	// --- Pool state ---
	PoolDeposits      *prometheus.GaugeVec
	PoolDepositShares *prometheus.GaugeVec
	PoolBorrowed      *prometheus.GaugeVec
	PoolBorrowShares  *prometheus.GaugeVec
	InterestAccruals  *prometheus.CounterVec

	// --- Risk & liquidation ---
	BorrowsRejected      *prometheus.CounterVec
	LiquidationsApplied  *prometheus.CounterVec
	LiquidationsRejected *prometheus.CounterVec
	LiquidationRepaid    *prometheus.CounterVec
	LiquidationSeized    *prometheus.CounterVec

	// --- Oracle ---
	OraclePrice    *prometheus.GaugeVec
	OraclePriceAge *prometheus.GaugeVec
	StalePriceHits *prometheus.CounterVec

	// --- Custody ---
	TransferLegs     *prometheus.CounterVec
	TransferFailures *prometheus.CounterVec

	// --- Dedup ---
	DuplicateRequests *prometheus.CounterVec

	// --- Persistence ---
	PersistRowsWritten prometheus.Counter
	PersistErrors      *prometheus.CounterVec
	PersistBatchDur    prometheus.Histogram
	PersistLastSeq     prometheus.Gauge

	// --- Channels ---
	ChannelSize     *prometheus.GaugeVec
	ChannelCapacity *prometheus.GaugeVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	opBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		OpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_ops_applied_total",
			Help: "Operations successfully applied",
		}, []string{"op"}),

		OpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_ops_rejected_total",
			Help: "Operations rejected (dedup, validation, risk)",
		}, []string{"op", "reason"}),

		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lend_op_apply_duration_seconds",
			Help:    "Time to apply a single operation",
			Buckets: opBuckets,
		}, []string{"op"}),

		EngineSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lend_engine_sequence",
			Help: "Current operation sequence number",
		}),

		PoolDeposits: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lend_pool_total_deposits",
			Help: "Aggregate deposited value per pool",
		}, []string{"asset"}),

		PoolDepositShares: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lend_pool_total_deposit_shares",
			Help: "Outstanding deposit shares per pool",
		}, []string{"asset"}),

		PoolBorrowed: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lend_pool_total_borrowed",
			Help: "Aggregate borrowed value per pool",
		}, []string{"asset"}),

		PoolBorrowShares: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lend_pool_total_borrow_shares",
			Help: "Outstanding borrow shares per pool",
		}, []string{"asset"}),

		InterestAccruals: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_interest_accruals_total",
			Help: "Positive-elapsed interest accruals applied",
		}, []string{"asset"}),

		BorrowsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_borrows_rejected_total",
			Help: "Borrows rejected over the LTV limit",
		}, []string{"asset"}),

		LiquidationsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_liquidations_applied_total",
			Help: "Liquidations executed",
		}, []string{"collateral_asset"}),

		LiquidationsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_liquidations_rejected_total",
			Help: "Liquidations rejected on healthy positions",
		}, []string{"collateral_asset"}),

		LiquidationRepaid: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_liquidation_repaid_total",
			Help: "Debt repaid through liquidation (asset units)",
		}, []string{"asset"}),

		LiquidationSeized: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_liquidation_seized_total",
			Help: "Collateral seized through liquidation (asset units)",
		}, []string{"asset"}),

		OraclePrice: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lend_oracle_price",
			Help: "Latest cached oracle price",
		}, []string{"asset"}),

		OraclePriceAge: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lend_oracle_price_age_seconds",
			Help: "Age of the cached price at last use",
		}, []string{"asset"}),

		StalePriceHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_stale_price_total",
			Help: "Operations aborted on stale or missing prices",
		}, []string{"asset"}),

		TransferLegs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_transfer_legs_total",
			Help: "Custody transfer legs applied",
		}, []string{"kind"}),

		TransferFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_transfer_failures_total",
			Help: "Custody batches rejected",
		}, []string{"op"}),

		DuplicateRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_duplicate_requests_total",
			Help: "Requests skipped as duplicates",
		}, []string{"op"}),

		PersistRowsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lend_persist_rows_written_total",
			Help: "Rows written to Postgres",
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lend_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lend_persist_last_sequence",
			Help: "Last persisted operation sequence",
		}),

		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lend_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lend_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),
	}
}

// SetChannelMetrics updates channel occupancy gauges.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
}
