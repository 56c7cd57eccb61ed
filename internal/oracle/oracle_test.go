package oracle_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"LendLedger/internal/oracle"
	"LendLedger/internal/pool"
)

const now = int64(1_700_000_000)

func TestGetPrice_NoObservation(t *testing.T) {
	c := oracle.NewCache()

	_, err := c.GetPrice(pool.AssetSOL, time.Minute, now)
	if !errors.Is(err, oracle.ErrNoPrice) {
		t.Errorf("expected ErrNoPrice, got %v", err)
	}
}

func TestGetPrice_Fresh(t *testing.T) {
	c := oracle.NewCache()
	c.SetPrice(oracle.Price{
		Asset:     pool.AssetSOL,
		Value:     decimal.NewFromInt(100),
		Timestamp: now - 30,
	})

	p, err := c.GetPrice(pool.AssetSOL, time.Minute, now)
	if err != nil {
		t.Fatalf("GetPrice failed: %v", err)
	}
	if !p.Value.Equal(decimal.NewFromInt(100)) {
		t.Errorf("price = %s, want 100", p.Value)
	}
}

func TestGetPrice_ExactlyAtMaxAge(t *testing.T) {
	c := oracle.NewCache()
	c.SetPrice(oracle.Price{
		Asset:     pool.AssetSOL,
		Value:     decimal.NewFromInt(100),
		Timestamp: now - 60,
	})

	if _, err := c.GetPrice(pool.AssetSOL, time.Minute, now); err != nil {
		t.Errorf("price aged exactly to the bound should still serve: %v", err)
	}
}

func TestGetPrice_Stale(t *testing.T) {
	c := oracle.NewCache()
	c.SetPrice(oracle.Price{
		Asset:     pool.AssetSOL,
		Value:     decimal.NewFromInt(100),
		Timestamp: now - 61,
	})

	_, err := c.GetPrice(pool.AssetSOL, time.Minute, now)
	if !errors.Is(err, oracle.ErrStalePrice) {
		t.Errorf("expected ErrStalePrice, got %v", err)
	}
}

func TestSetPrice_IgnoresOlderObservation(t *testing.T) {
	c := oracle.NewCache()
	c.SetPrice(oracle.Price{Asset: pool.AssetSOL, Value: decimal.NewFromInt(100), Timestamp: now})
	c.SetPrice(oracle.Price{Asset: pool.AssetSOL, Value: decimal.NewFromInt(50), Timestamp: now - 10})

	p, err := c.GetPrice(pool.AssetSOL, time.Minute, now)
	if err != nil {
		t.Fatalf("GetPrice failed: %v", err)
	}
	if !p.Value.Equal(decimal.NewFromInt(100)) {
		t.Errorf("older observation replaced the cached price: %s", p.Value)
	}
}

func TestSetPrice_PerAsset(t *testing.T) {
	c := oracle.NewCache()
	c.SetPrice(oracle.Price{Asset: pool.AssetSOL, Value: decimal.NewFromInt(100), Timestamp: now})
	c.SetPrice(oracle.Price{Asset: pool.AssetUSDC, Value: decimal.NewFromInt(1), Timestamp: now})

	sol, err := c.GetPrice(pool.AssetSOL, time.Minute, now)
	if err != nil {
		t.Fatalf("GetPrice SOL failed: %v", err)
	}
	usdc, err := c.GetPrice(pool.AssetUSDC, time.Minute, now)
	if err != nil {
		t.Fatalf("GetPrice USDC failed: %v", err)
	}
	if sol.Value.Equal(usdc.Value) {
		t.Error("per-asset prices should not collide")
	}
}
