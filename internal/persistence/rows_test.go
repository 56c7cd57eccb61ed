package persistence_test

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"LendLedger/internal/custody"
	"LendLedger/internal/engine"
	"LendLedger/internal/op"
	"LendLedger/internal/persistence"
	"LendLedger/internal/pool"
)

func TestBuildRowSet_Deposit(t *testing.T) {
	owner := uuid.New()
	req := &op.Deposit{
		RequestID: uuid.New(),
		Owner:     owner,
		Asset:     pool.AssetSOL,
		Amount:    100,
		Timestamp: 1_700_000_000,
	}

	bank := &pool.Bank{Asset: pool.AssetSOL, TotalDeposits: 100, TotalDepositShares: 100, Version: 2}
	position := pool.NewPosition(owner, pool.AssetSOL, 1_700_000_000)
	position.SetBalance(pool.AssetSOL, pool.AssetBalances{Deposited: 100, DepositShares: 100})
	position.Version = 2

	batch := custody.NewBatch(req.IdempotencyKey(), req.Timestamp)
	batch.NewLeg(
		custody.ParticipantKey(owner, pool.AssetSOL),
		custody.VaultKey(pool.AssetSOL),
		owner, pool.AssetSOL, 100, custody.LegDepositIn,
	)

	out := engine.Output{
		Sequence:  7,
		Request:   req,
		Batch:     batch,
		Banks:     []*pool.Bank{bank},
		Positions: []*pool.Position{position},
		Balances: map[custody.AccountKey]int64{
			custody.ParticipantKey(owner, pool.AssetSOL): 900,
			custody.VaultKey(pool.AssetSOL):              100,
		},
	}

	rs, err := persistence.BuildRowSet(out)
	if err != nil {
		t.Fatalf("BuildRowSet failed: %v", err)
	}

	if rs.Operation.Sequence != 7 || rs.Operation.OpType != "Deposit" {
		t.Errorf("operation row: %+v", rs.Operation)
	}
	if rs.Operation.RequestID != req.RequestID {
		t.Errorf("request_id = %s, want %s", rs.Operation.RequestID, req.RequestID)
	}
	if !json.Valid(rs.Operation.Payload) {
		t.Error("payload is not valid JSON")
	}

	if len(rs.Banks) != 1 {
		t.Fatalf("expected 1 bank row, got %d", len(rs.Banks))
	}
	if rs.Banks[0].Asset != "SOL" || rs.Banks[0].TotalDeposits != 100 || rs.Banks[0].UpdatedSeq != 7 {
		t.Errorf("bank row: %+v", rs.Banks[0])
	}

	if len(rs.Positions) != 1 {
		t.Fatalf("expected 1 position row, got %d", len(rs.Positions))
	}
	// One balance row per asset slot, even for the untouched slot.
	if len(rs.PositionBalances) != int(pool.NumAssets) {
		t.Fatalf("expected %d position balance rows, got %d", pool.NumAssets, len(rs.PositionBalances))
	}

	if len(rs.Legs) != 1 {
		t.Fatalf("expected 1 leg row, got %d", len(rs.Legs))
	}
	leg := rs.Legs[0]
	if leg.Kind != "deposit_in" || leg.Amount != 100 || leg.Sequence != 7 {
		t.Errorf("leg row: %+v", leg)
	}
	if leg.FromAccount != custody.ParticipantKey(owner, pool.AssetSOL).AccountPath() {
		t.Errorf("from account = %s", leg.FromAccount)
	}

	if len(rs.Balances) != 2 {
		t.Fatalf("expected 2 balance rows, got %d", len(rs.Balances))
	}
	for _, b := range rs.Balances {
		if b.UpdatedSeq != 7 {
			t.Errorf("balance row %s updated_seq = %d, want 7", b.Account, b.UpdatedSeq)
		}
	}
}

func TestBuildRowSet_NoBatch(t *testing.T) {
	req := &op.InitUser{
		RequestID:       uuid.New(),
		Owner:           uuid.New(),
		CollateralAsset: pool.AssetUSDC,
		Timestamp:       1_700_000_000,
	}
	position := pool.NewPosition(req.Owner, pool.AssetUSDC, req.Timestamp)
	position.Version = 1

	rs, err := persistence.BuildRowSet(engine.Output{
		Sequence:  3,
		Request:   req,
		Positions: []*pool.Position{position},
	})
	if err != nil {
		t.Fatalf("BuildRowSet failed: %v", err)
	}

	if len(rs.Legs) != 0 || len(rs.Balances) != 0 {
		t.Errorf("operation without a batch produced %d legs, %d balances", len(rs.Legs), len(rs.Balances))
	}
	if rs.Operation.OpType != "InitUser" {
		t.Errorf("op_type = %s", rs.Operation.OpType)
	}
}
