package custody

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"LendLedger/internal/pool"
)

// AccountScope is the top-level custody namespace.
type AccountScope uint8

const (
	// ScopeParticipant: a participant's wallet holding for one asset.
	ScopeParticipant AccountScope = iota
	// ScopeVault: a bank's treasury holding pooled custody for one asset.
	ScopeVault
	// ScopeExternal: the boundary account value crosses when it enters or
	// leaves the system. External balances may go negative; they represent
	// value held outside custody.
	ScopeExternal
)

// AccountKey identifies one custody account. Compact and comparable so it
// can key the balance map directly.
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // participant UUID; zero for vault/external accounts
	Asset    pool.Asset
}

// ParticipantKey is a participant's wallet account for an asset.
func ParticipantKey(owner uuid.UUID, asset pool.Asset) AccountKey {
	return AccountKey{Scope: ScopeParticipant, EntityID: owner, Asset: asset}
}

// VaultKey is the pooled treasury account for an asset's bank.
func VaultKey(asset pool.Asset) AccountKey {
	return AccountKey{Scope: ScopeVault, Asset: asset}
}

// ExternalKey is the boundary account for an asset.
func ExternalKey(asset pool.Asset) AccountKey {
	return AccountKey{Scope: ScopeExternal, Asset: asset}
}

// AccountPath renders the key for persistence and logging.
func (k AccountKey) AccountPath() string {
	switch k.Scope {
	case ScopeParticipant:
		return fmt.Sprintf("participant:%s:%s", uuid.UUID(k.EntityID), k.Asset)
	case ScopeVault:
		return fmt.Sprintf("vault:%s", k.Asset)
	case ScopeExternal:
		return fmt.Sprintf("external:%s", k.Asset)
	}
	return "unknown"
}

// ParseAccountPath is the inverse of AccountPath, used when restoring
// persisted balances.
func ParseAccountPath(path string) (AccountKey, error) {
	parts := strings.Split(path, ":")
	switch {
	case len(parts) == 3 && parts[0] == "participant":
		owner, err := uuid.Parse(parts[1])
		if err != nil {
			return AccountKey{}, fmt.Errorf("parse account %q: %w", path, err)
		}
		asset, err := pool.ParseAsset(parts[2])
		if err != nil {
			return AccountKey{}, fmt.Errorf("parse account %q: %w", path, err)
		}
		return ParticipantKey(owner, asset), nil
	case len(parts) == 2 && parts[0] == "vault":
		asset, err := pool.ParseAsset(parts[1])
		if err != nil {
			return AccountKey{}, fmt.Errorf("parse account %q: %w", path, err)
		}
		return VaultKey(asset), nil
	case len(parts) == 2 && parts[0] == "external":
		asset, err := pool.ParseAsset(parts[1])
		if err != nil {
			return AccountKey{}, fmt.Errorf("parse account %q: %w", path, err)
		}
		return ExternalKey(asset), nil
	}
	return AccountKey{}, fmt.Errorf("unrecognized account path %q", path)
}
