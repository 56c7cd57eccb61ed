package custody

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"LendLedger/internal/pool"
)

// ErrTransferFailed: the external asset movement was rejected. Any check
// failure inside a batch surfaces as this kind and no leg is applied.
var ErrTransferFailed = errors.New("transfer failed")

// TransferService is the asset-movement contract consumed by the operation
// handlers. The engine computes amounts and authorizes; the service moves
// value or fails, atomically per batch.
type TransferService interface {
	Apply(batch *Batch) error
}

// Vault is the in-process transfer service: a double-entry balance book over
// participant wallets, bank treasuries, and the external boundary. Not
// goroutine-safe; only the single-threaded engine touches it.
type Vault struct {
	balances map[AccountKey]int64
}

func NewVault() *Vault {
	return &Vault{balances: make(map[AccountKey]int64)}
}

// Apply moves every leg of the batch or none of them. Participant and vault
// accounts must stay non-negative; the external boundary absorbs inflow and
// outflow and may run negative.
func (v *Vault) Apply(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	// Dry-run against a delta map so a failing later leg cannot leave an
	// earlier leg applied.
	deltas := make(map[AccountKey]int64, len(batch.Legs)*2)
	for _, leg := range batch.Legs {
		amount := int64(leg.Amount)
		if amount < 0 {
			return fmt.Errorf("%w: amount %d exceeds transferable range", ErrTransferFailed, leg.Amount)
		}
		deltas[leg.From] -= amount
		deltas[leg.To] += amount
	}

	for key, delta := range deltas {
		if key.Scope == ScopeExternal {
			continue
		}
		if v.balances[key]+delta < 0 {
			return fmt.Errorf("%w: insufficient balance on %s (have %d, need %d)",
				ErrTransferFailed, key.AccountPath(), v.balances[key], -delta)
		}
	}

	for key, delta := range deltas {
		v.balances[key] += delta
	}
	return nil
}

// Fund credits a participant wallet from the external boundary. This is the
// onboarding edge where value enters custody; the ledger operations
// themselves never create value.
func (v *Vault) Fund(owner uuid.UUID, asset pool.Asset, amount uint64, timestamp int64) (*Batch, error) {
	batch := NewBatch(fmt.Sprintf("fund:%s:%s:%d", owner, asset, timestamp), timestamp)
	batch.NewLeg(ExternalKey(asset), ParticipantKey(owner, asset), owner, asset, amount, LegExternalFund)
	if err := v.Apply(batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// Balance returns the current balance of one account.
func (v *Vault) Balance(key AccountKey) int64 {
	return v.balances[key]
}

// SetBalance overwrites one account; used when restoring persisted state.
func (v *Vault) SetBalance(key AccountKey, balance int64) {
	v.balances[key] = balance
}

// Snapshot copies all balances for persistence.
func (v *Vault) Snapshot() map[AccountKey]int64 {
	out := make(map[AccountKey]int64, len(v.balances))
	for k, b := range v.balances {
		out[k] = b
	}
	return out
}

// GlobalBalance sums every account per asset. The book is zero-sum by
// construction, so any non-zero total is an invariant violation.
func (v *Vault) GlobalBalance() map[pool.Asset]int64 {
	totals := make(map[pool.Asset]int64)
	for key, balance := range v.balances {
		totals[key.Asset] += balance
	}
	return totals
}
