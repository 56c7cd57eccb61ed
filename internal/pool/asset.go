package pool

import "fmt"

// Asset identifies one of the two fungible assets the protocol supports.
// Every bank, balance, price, and transfer leg is tagged with exactly one
// Asset; selecting the collateral vs debt side of a position is done through
// this enum rather than parallel field sets.
type Asset uint8

const (
	AssetSOL Asset = iota
	AssetUSDC

	// NumAssets sizes per-asset arrays on position records.
	NumAssets = 2
)

func (a Asset) String() string {
	switch a {
	case AssetSOL:
		return "SOL"
	case AssetUSDC:
		return "USDC"
	default:
		return "Unknown"
	}
}

// Other returns the opposite asset slot. A position's debt asset is always
// the asset it did not pick as collateral.
func (a Asset) Other() Asset {
	if a == AssetSOL {
		return AssetUSDC
	}
	return AssetSOL
}

// Valid reports whether the value names a supported asset. Requests arrive
// off the wire, so enum values are range-checked before use.
func (a Asset) Valid() bool {
	return a < NumAssets
}

// Decimals returns the on-chain precision of the asset's smallest unit.
// Passed through to the transfer service on every money-movement leg.
func (a Asset) Decimals() uint8 {
	switch a {
	case AssetSOL:
		return 9
	default:
		return 6
	}
}

func ParseAsset(s string) (Asset, error) {
	switch s {
	case "SOL":
		return AssetSOL, nil
	case "USDC":
		return AssetUSDC, nil
	default:
		return 0, fmt.Errorf("unknown asset: %q", s)
	}
}
