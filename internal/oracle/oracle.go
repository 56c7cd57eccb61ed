// Package oracle caches asset prices published by the external price feed.
// Prices carry their own timestamps; a consumer asks for a price no older
// than its staleness bound and gets a hard failure otherwise. Proceeding on
// stale data is a solvency risk, not a transient error, so there is no
// retry and no fallback.
package oracle

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"LendLedger/internal/pool"
)

var (
	// ErrStalePrice: freshest available price is older than the allowed window.
	ErrStalePrice = errors.New("stale price")

	// ErrNoPrice: no price has been observed for the asset at all.
	ErrNoPrice = errors.New("no price available")
)

// Price is one oracle observation.
type Price struct {
	Asset pool.Asset
	// Value is the price of one whole asset unit in account-value terms.
	Value decimal.Decimal
	// Timestamp is the unix second the observation was taken, as reported
	// by the feed, not by this process.
	Timestamp int64
}

// Oracle is the read contract consumed by the operation handlers.
type Oracle interface {
	// GetPrice returns the freshest observation for the asset, failing if it
	// is older than maxAge relative to now.
	GetPrice(asset pool.Asset, maxAge time.Duration, now int64) (Price, error)
}

// Cache holds the freshest observation per asset. Updates flow through the
// single-threaded engine loop, so no locking.
type Cache struct {
	prices map[pool.Asset]Price
}

func NewCache() *Cache {
	return &Cache{prices: make(map[pool.Asset]Price)}
}

// SetPrice stores an observation, ignoring it if an equal-or-newer one is
// already cached.
func (c *Cache) SetPrice(p Price) {
	if cur, ok := c.prices[p.Asset]; ok && cur.Timestamp >= p.Timestamp {
		return
	}
	c.prices[p.Asset] = p
}

func (c *Cache) GetPrice(asset pool.Asset, maxAge time.Duration, now int64) (Price, error) {
	p, ok := c.prices[asset]
	if !ok {
		return Price{}, fmt.Errorf("%w: %s", ErrNoPrice, asset)
	}
	age := now - p.Timestamp
	if age > int64(maxAge/time.Second) {
		return Price{}, fmt.Errorf("%w: %s price is %ds old (max %s)", ErrStalePrice, asset, age, maxAge)
	}
	return p, nil
}
