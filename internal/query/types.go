package query

import "github.com/google/uuid"

// BankResponse is the API view of one asset pool.
type BankResponse struct {
	Asset              string `json:"asset"`
	TotalDeposits      int64  `json:"total_deposits"`
	TotalDepositShares int64  `json:"total_deposit_shares"`
	TotalBorrowed      int64  `json:"total_borrowed"`
	TotalBorrowShares  int64  `json:"total_borrow_shares"`
	InterestRate       int64  `json:"interest_rate"`

	LiquidationThreshold   string `json:"liquidation_threshold"`
	MaxLTV                 string `json:"max_ltv"`
	LiquidationBonus       string `json:"liquidation_bonus"`
	LiquidationCloseFactor string `json:"liquidation_close_factor"`

	// Utilization is borrowed/deposits, derived at query time.
	Utilization string `json:"utilization"`

	LastAccrualTime int64 `json:"last_accrual_time"`
	Version         int64 `json:"version"`
	AsOfSequence    int64 `json:"as_of_sequence"`
}

// AssetSlotResponse is one asset slot of a position.
type AssetSlotResponse struct {
	Asset         string `json:"asset"`
	Deposited     int64  `json:"deposited"`
	DepositShares int64  `json:"deposit_shares"`
	Borrowed      int64  `json:"borrowed"`
	BorrowShares  int64  `json:"borrow_shares"`
}

// PositionResponse is the API view of one participant position.
type PositionResponse struct {
	Owner             uuid.UUID           `json:"owner"`
	CollateralAsset   string              `json:"collateral_asset"`
	Balances          []AssetSlotResponse `json:"balances"`
	LastDepositUpdate int64               `json:"last_deposit_update"`
	LastBorrowUpdate  int64               `json:"last_borrow_update"`
	Version           int64               `json:"version"`
	AsOfSequence      int64               `json:"as_of_sequence"`
}

// BalanceResponse is one custody account balance.
type BalanceResponse struct {
	Account      string `json:"account"`
	Asset        string `json:"asset"`
	Balance      int64  `json:"balance"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// TransferEntry is one custody journal row for history queries.
type TransferEntry struct {
	LegID       string `json:"leg_id"`
	BatchID     string `json:"batch_id"`
	OpRef       string `json:"op_ref"`
	Sequence    int64  `json:"sequence"`
	FromAccount string `json:"from_account"`
	ToAccount   string `json:"to_account"`
	Asset       string `json:"asset"`
	Amount      int64  `json:"amount"`
	Kind        string `json:"kind"`
	Timestamp   int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	SequenceGaps     []int64           `json:"sequence_gaps,omitempty"`
	UnbalancedAssets []UnbalancedAsset `json:"unbalanced_assets,omitempty"`
}

// UnbalancedAsset is an asset whose custody balances do not sum to zero.
type UnbalancedAsset struct {
	Asset     string `json:"asset"`
	Imbalance int64  `json:"imbalance"`
}
