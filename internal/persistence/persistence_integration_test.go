package persistence_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"LendLedger/internal/custody"
	"LendLedger/internal/engine"
	"LendLedger/internal/observability"
	"LendLedger/internal/op"
	"LendLedger/internal/oracle"
	"LendLedger/internal/persistence"
	"LendLedger/internal/pool"
	"LendLedger/internal/query"
	"LendLedger/internal/testutil"
)

// Prometheus collectors register once per process, so every test shares one
// metrics instance.
var testMetrics = observability.NewMetrics()

const ts = int64(1_700_000_000)

func migrate(t *testing.T, db *sql.DB) {
	t.Helper()
	m := persistence.NewMigrator(db, "../../migrations", zerolog.Nop())
	if err := m.Up(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

type scenario struct {
	eng      *engine.Engine
	borrower uuid.UUID
	lender   uuid.UUID
	repayReq *op.Repay
}

// persistScenario drives an engine through a small lending sequence, then
// runs the persistence worker over the closed output channel so every
// applied operation lands in Postgres before it returns.
//
// The sequence: two banks at threshold 0.8, max LTV 0.75, zero interest,
// prices SOL=2 and USDC=1; the lender deposits 500 USDC, the borrower
// deposits 50 SOL, borrows 60 USDC and repays 10.
func persistScenario(t *testing.T, db *sql.DB) *scenario {
	t.Helper()

	vault := custody.NewVault()
	prices := oracle.NewCache()
	outputCh := make(chan engine.Output, 64)
	eng := engine.New(vault, vault, prices, engine.Config{PriceMaxAge: time.Minute},
		testMetrics, zerolog.Nop(), outputCh)

	s := &scenario{
		eng:      eng,
		borrower: uuid.New(),
		lender:   uuid.New(),
	}

	if _, err := vault.Fund(s.borrower, pool.AssetSOL, 1_000, ts); err != nil {
		t.Fatalf("fund SOL failed: %v", err)
	}
	if _, err := vault.Fund(s.lender, pool.AssetUSDC, 1_000, ts); err != nil {
		t.Fatalf("fund USDC failed: %v", err)
	}

	s.repayReq = &op.Repay{RequestID: uuid.New(), Owner: s.borrower, Asset: pool.AssetUSDC, Amount: 10, Timestamp: ts}

	for _, req := range []op.Request{
		seedBank(pool.AssetSOL),
		seedBank(pool.AssetUSDC),
		&op.PriceUpdate{RequestID: uuid.New(), Asset: pool.AssetSOL, Price: decimal.RequireFromString("2"), PriceTimestamp: ts, Timestamp: ts},
		&op.PriceUpdate{RequestID: uuid.New(), Asset: pool.AssetUSDC, Price: decimal.RequireFromString("1"), PriceTimestamp: ts, Timestamp: ts},
		&op.InitUser{RequestID: uuid.New(), Owner: s.borrower, CollateralAsset: pool.AssetSOL, Timestamp: ts},
		&op.InitUser{RequestID: uuid.New(), Owner: s.lender, CollateralAsset: pool.AssetUSDC, Timestamp: ts},
		&op.Deposit{RequestID: uuid.New(), Owner: s.lender, Asset: pool.AssetUSDC, Amount: 500, Timestamp: ts},
		&op.Deposit{RequestID: uuid.New(), Owner: s.borrower, Asset: pool.AssetSOL, Amount: 50, Timestamp: ts},
		&op.Borrow{RequestID: uuid.New(), Owner: s.borrower, Asset: pool.AssetUSDC, Amount: 60, Timestamp: ts},
		s.repayReq,
	} {
		if err := eng.Process(req); err != nil {
			t.Fatalf("%s failed: %v", req.Type(), err)
		}
	}

	// Closing the channel makes Run drain what is buffered, flush, and return.
	close(outputCh)
	worker := persistence.NewWorker(db, outputCh, 4, 50*time.Millisecond, testMetrics, zerolog.Nop())
	if err := worker.Run(context.Background()); err != nil {
		t.Fatalf("worker run failed: %v", err)
	}
	return s
}

func seedBank(asset pool.Asset) *op.InitBank {
	return &op.InitBank{
		RequestID:              uuid.New(),
		Asset:                  asset,
		InterestRate:           0,
		LiquidationThreshold:   decimal.RequireFromString("0.8"),
		MaxLTV:                 decimal.RequireFromString("0.75"),
		LiquidationBonus:       decimal.RequireFromString("0.05"),
		LiquidationCloseFactor: decimal.RequireFromString("0.5"),
		Timestamp:              ts,
	}
}

// ============================================================================
// Test: Warm start round trip
// ============================================================================

func TestLoader_WarmStartRoundTrip(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	migrate(t, db)

	s := persistScenario(t, db)
	ctx := context.Background()

	loaded, err := persistence.NewLoader(db).Load(ctx, 128)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.NextSequence != s.eng.Sequence() {
		t.Errorf("next sequence = %d, want %d", loaded.NextSequence, s.eng.Sequence())
	}
	if len(loaded.Banks) != 2 {
		t.Fatalf("expected 2 banks, got %d", len(loaded.Banks))
	}
	if len(loaded.Positions) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(loaded.Positions))
	}
	if len(loaded.RecentRequestIDs) != 10 {
		t.Errorf("expected 10 recent request ids, got %d", len(loaded.RecentRequestIDs))
	}

	// Restore a fresh engine and vault from the loaded state.
	vault := custody.NewVault()
	for key, balance := range loaded.Balances {
		vault.SetBalance(key, balance)
	}
	restored := engine.New(vault, vault, oracle.NewCache(), engine.Config{PriceMaxAge: time.Minute},
		testMetrics, zerolog.Nop(), nil)
	restored.Restore(loaded.NextSequence, loaded.Banks, loaded.Positions, loaded.RecentRequestIDs)

	bank, ok := restored.Bank(pool.AssetUSDC)
	if !ok {
		t.Fatal("restored engine is missing the USDC bank")
	}
	if bank.TotalDeposits != 500 || bank.TotalBorrowed != 50 {
		t.Errorf("restored USDC bank = %d/%d, want 500 deposits / 50 borrowed",
			bank.TotalDeposits, bank.TotalBorrowed)
	}
	if got := vault.Balance(custody.ParticipantKey(s.borrower, pool.AssetUSDC)); got != 50 {
		t.Errorf("restored borrower USDC wallet = %d, want 50", got)
	}

	// A replay of an already-persisted request must be skipped.
	before := restored.Sequence()
	if err := restored.Process(s.repayReq); err != nil {
		t.Fatalf("replayed repay errored: %v", err)
	}
	if restored.Sequence() != before {
		t.Error("replayed repay was applied instead of skipped")
	}

	// The restored engine keeps operating: paying off the remaining debt.
	final := &op.Repay{RequestID: uuid.New(), Owner: s.borrower, Asset: pool.AssetUSDC, Amount: 50, Timestamp: ts + 1}
	if err := restored.Process(final); err != nil {
		t.Fatalf("repay on restored engine failed: %v", err)
	}
	pos, _ := restored.Position(s.borrower)
	if got := pos.Balance(pool.AssetUSDC).BorrowShares; got != 0 {
		t.Errorf("debt shares after full repay = %d, want 0", got)
	}
}

// ============================================================================
// Test: Query service over persisted state
// ============================================================================

func TestQueryService_ReadsPersistedState(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	migrate(t, db)

	s := persistScenario(t, db)
	ctx := context.Background()
	svc := query.NewService(db)

	bank, err := svc.GetBank(ctx, "USDC")
	if err != nil {
		t.Fatalf("GetBank failed: %v", err)
	}
	if bank.TotalDeposits != 500 || bank.TotalBorrowed != 50 {
		t.Errorf("USDC bank = %d/%d, want 500 deposits / 50 borrowed",
			bank.TotalDeposits, bank.TotalBorrowed)
	}
	if bank.AsOfSequence != s.eng.Sequence()-1 {
		t.Errorf("as_of_sequence = %d, want %d", bank.AsOfSequence, s.eng.Sequence()-1)
	}

	pos, err := svc.GetPosition(ctx, s.borrower)
	if err != nil {
		t.Fatalf("GetPosition failed: %v", err)
	}
	if pos.CollateralAsset != "SOL" {
		t.Errorf("collateral asset = %s, want SOL", pos.CollateralAsset)
	}
	for _, slot := range pos.Balances {
		switch slot.Asset {
		case "SOL":
			if slot.DepositShares != 50 {
				t.Errorf("SOL deposit shares = %d, want 50", slot.DepositShares)
			}
		case "USDC":
			if slot.BorrowShares != 50 {
				t.Errorf("USDC borrow shares = %d, want 50", slot.BorrowShares)
			}
		}
	}

	balances, err := svc.GetBalances(ctx, s.borrower)
	if err != nil {
		t.Fatalf("GetBalances failed: %v", err)
	}
	want := map[string]int64{"SOL": 950, "USDC": 50}
	for _, b := range balances {
		if b.Balance != want[b.Asset] {
			t.Errorf("borrower %s balance = %d, want %d", b.Asset, b.Balance, want[b.Asset])
		}
	}

	// Newest first: repay, borrow, then the collateral deposit.
	history, err := svc.GetTransferHistory(ctx, s.borrower, 10, nil)
	if err != nil {
		t.Fatalf("GetTransferHistory failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(history))
	}
	kinds := []string{"repay_in", "borrow_out", "deposit_in"}
	for i, e := range history {
		if e.Kind != kinds[i] {
			t.Errorf("history[%d].Kind = %s, want %s", i, e.Kind, kinds[i])
		}
	}

	report, err := svc.VerifyIntegrity(ctx)
	if err != nil {
		t.Fatalf("VerifyIntegrity failed: %v", err)
	}
	if len(report.SequenceGaps) != 0 {
		t.Errorf("unexpected sequence gaps: %v", report.SequenceGaps)
	}
}

// ============================================================================
// Test: Replayed batch is idempotent
// ============================================================================

func TestWorker_ReplayedFlushIsIdempotent(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	migrate(t, db)

	persistScenario(t, db)
	ctx := context.Background()

	// Writing a row with an already-persisted sequence must not grow the log.
	var countBefore int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lend.operations`).Scan(&countBefore); err != nil {
		t.Fatalf("count operations: %v", err)
	}

	writer := persistence.NewRowWriter(db)
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	defer tx.Rollback()

	err = writer.WriteOperations(ctx, tx, []persistence.OperationRow{{
		Sequence:  0,
		OpType:    "InitBank",
		RequestID: uuid.New(),
		Payload:   []byte(`{}`),
		Timestamp: ts,
	}})
	if err != nil {
		t.Fatalf("replay write failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	var countAfter int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lend.operations`).Scan(&countAfter); err != nil {
		t.Fatalf("count operations: %v", err)
	}
	if countAfter != countBefore {
		t.Errorf("replayed sequence grew the log from %d to %d rows", countBefore, countAfter)
	}
}
