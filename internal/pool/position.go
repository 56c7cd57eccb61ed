package pool

import "github.com/google/uuid"

// AssetBalances is one asset slot of a position: the participant's absolute
// deposited and borrowed amounts plus the shares backing them. The absolute
// amounts are bookkeeping as of the last update; the shares are the
// authoritative claim against the bank's aggregates.
type AssetBalances struct {
	Deposited     uint64
	DepositShares uint64
	Borrowed      uint64
	BorrowShares  uint64
}

func (ab AssetBalances) IsZero() bool {
	return ab.Deposited == 0 && ab.DepositShares == 0 &&
		ab.Borrowed == 0 && ab.BorrowShares == 0
}

// Position is the per-participant record. Created once, never deleted;
// fully zeroed balances are a valid terminal state.
type Position struct {
	Owner uuid.UUID

	// CollateralAsset selects which asset slot backs this participant's
	// borrowing. The debt side is always the other slot.
	CollateralAsset Asset

	balances [NumAssets]AssetBalances

	LastDepositUpdate int64
	LastBorrowUpdate  int64

	Version int64
}

func NewPosition(owner uuid.UUID, collateral Asset, now int64) *Position {
	return &Position{
		Owner:             owner,
		CollateralAsset:   collateral,
		LastDepositUpdate: now,
		LastBorrowUpdate:  now,
	}
}

// Balance returns the mutable asset slot for the given asset.
func (p *Position) Balance(a Asset) *AssetBalances {
	return &p.balances[a]
}

// DebtAsset is the asset this position borrows: the one it did not pick as
// collateral.
func (p *Position) DebtAsset() Asset {
	return p.CollateralAsset.Other()
}

// SetBalance overwrites an asset slot; used when restoring persisted state.
func (p *Position) SetBalance(a Asset, ab AssetBalances) {
	p.balances[a] = ab
}

// Clone returns a deep copy for copy-then-commit operation handling.
func (p *Position) Clone() *Position {
	c := *p
	return &c
}
