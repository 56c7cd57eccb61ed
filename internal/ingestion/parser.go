package ingestion

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"LendLedger/internal/op"
	"LendLedger/internal/pool"
)

// ParseRawRequest converts a RawRequest (JSON bytes plus the operation kind
// its subject maps to) into a typed op.Request. The shell validates and
// parses here so only well-formed requests reach the engine.
func ParseRawRequest(raw RawRequest) (op.Request, error) {
	switch raw.OpKind {
	case "InitBank":
		return parseInitBank(raw.Data)
	case "InitUser":
		return parseInitUser(raw.Data)
	case "Deposit":
		return parseDeposit(raw.Data)
	case "Withdraw":
		return parseWithdraw(raw.Data)
	case "Borrow":
		return parseBorrow(raw.Data)
	case "Repay":
		return parseRepay(raw.Data)
	case "Liquidate":
		return parseLiquidate(raw.Data)
	case "PriceUpdate":
		return parsePriceUpdate(raw.Data)
	default:
		return nil, fmt.Errorf("unknown operation kind: %s", raw.OpKind)
	}
}

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers. Decimal fractions
// arrive as JSON strings or numbers; shopspring/decimal accepts both.

type initBankJSON struct {
	RequestID              string          `json:"request_id"`
	Asset                  string          `json:"asset"`
	InterestRate           uint64          `json:"interest_rate"`
	LiquidationThreshold   decimal.Decimal `json:"liquidation_threshold"`
	MaxLTV                 decimal.Decimal `json:"max_ltv"`
	LiquidationBonus       decimal.Decimal `json:"liquidation_bonus"`
	LiquidationCloseFactor decimal.Decimal `json:"liquidation_close_factor"`
	Timestamp              int64           `json:"timestamp"`
}

func parseInitBank(data []byte) (*op.InitBank, error) {
	var j initBankJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse InitBank: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	asset, err := pool.ParseAsset(j.Asset)
	if err != nil {
		return nil, fmt.Errorf("parse asset: %w", err)
	}
	return &op.InitBank{
		RequestID:              requestID,
		Asset:                  asset,
		InterestRate:           j.InterestRate,
		LiquidationThreshold:   j.LiquidationThreshold,
		MaxLTV:                 j.MaxLTV,
		LiquidationBonus:       j.LiquidationBonus,
		LiquidationCloseFactor: j.LiquidationCloseFactor,
		Timestamp:              j.Timestamp,
	}, nil
}

type initUserJSON struct {
	RequestID       string `json:"request_id"`
	Owner           string `json:"owner"`
	CollateralAsset string `json:"collateral_asset"`
	Timestamp       int64  `json:"timestamp"`
}

func parseInitUser(data []byte) (*op.InitUser, error) {
	var j initUserJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse InitUser: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	owner, err := uuid.Parse(j.Owner)
	if err != nil {
		return nil, fmt.Errorf("parse owner: %w", err)
	}
	collateral, err := pool.ParseAsset(j.CollateralAsset)
	if err != nil {
		return nil, fmt.Errorf("parse collateral_asset: %w", err)
	}
	return &op.InitUser{
		RequestID:       requestID,
		Owner:           owner,
		CollateralAsset: collateral,
		Timestamp:       j.Timestamp,
	}, nil
}

type amountOpJSON struct {
	RequestID string `json:"request_id"`
	Owner     string `json:"owner"`
	Asset     string `json:"asset"`
	Amount    uint64 `json:"amount"`
	Timestamp int64  `json:"timestamp"`
}

func (j *amountOpJSON) fields() (uuid.UUID, uuid.UUID, pool.Asset, error) {
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return uuid.Nil, uuid.Nil, 0, fmt.Errorf("parse request_id: %w", err)
	}
	owner, err := uuid.Parse(j.Owner)
	if err != nil {
		return uuid.Nil, uuid.Nil, 0, fmt.Errorf("parse owner: %w", err)
	}
	asset, err := pool.ParseAsset(j.Asset)
	if err != nil {
		return uuid.Nil, uuid.Nil, 0, fmt.Errorf("parse asset: %w", err)
	}
	return requestID, owner, asset, nil
}

func parseDeposit(data []byte) (*op.Deposit, error) {
	var j amountOpJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Deposit: %w", err)
	}
	requestID, owner, asset, err := j.fields()
	if err != nil {
		return nil, err
	}
	return &op.Deposit{
		RequestID: requestID,
		Owner:     owner,
		Asset:     asset,
		Amount:    j.Amount,
		Timestamp: j.Timestamp,
	}, nil
}

func parseWithdraw(data []byte) (*op.Withdraw, error) {
	var j amountOpJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Withdraw: %w", err)
	}
	requestID, owner, asset, err := j.fields()
	if err != nil {
		return nil, err
	}
	return &op.Withdraw{
		RequestID: requestID,
		Owner:     owner,
		Asset:     asset,
		Amount:    j.Amount,
		Timestamp: j.Timestamp,
	}, nil
}

func parseBorrow(data []byte) (*op.Borrow, error) {
	var j amountOpJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Borrow: %w", err)
	}
	requestID, owner, asset, err := j.fields()
	if err != nil {
		return nil, err
	}
	return &op.Borrow{
		RequestID: requestID,
		Owner:     owner,
		Asset:     asset,
		Amount:    j.Amount,
		Timestamp: j.Timestamp,
	}, nil
}

func parseRepay(data []byte) (*op.Repay, error) {
	var j amountOpJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Repay: %w", err)
	}
	requestID, owner, asset, err := j.fields()
	if err != nil {
		return nil, err
	}
	return &op.Repay{
		RequestID: requestID,
		Owner:     owner,
		Asset:     asset,
		Amount:    j.Amount,
		Timestamp: j.Timestamp,
	}, nil
}

type liquidateJSON struct {
	RequestID  string `json:"request_id"`
	Liquidator string `json:"liquidator"`
	Borrower   string `json:"borrower"`
	Timestamp  int64  `json:"timestamp"`
}

func parseLiquidate(data []byte) (*op.Liquidate, error) {
	var j liquidateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Liquidate: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	liquidator, err := uuid.Parse(j.Liquidator)
	if err != nil {
		return nil, fmt.Errorf("parse liquidator: %w", err)
	}
	borrower, err := uuid.Parse(j.Borrower)
	if err != nil {
		return nil, fmt.Errorf("parse borrower: %w", err)
	}
	return &op.Liquidate{
		RequestID:  requestID,
		Liquidator: liquidator,
		Borrower:   borrower,
		Timestamp:  j.Timestamp,
	}, nil
}

type priceUpdateJSON struct {
	RequestID      string          `json:"request_id"`
	Asset          string          `json:"asset"`
	Price          decimal.Decimal `json:"price"`
	PriceTimestamp int64           `json:"price_timestamp"`
	Timestamp      int64           `json:"timestamp"`
}

func parsePriceUpdate(data []byte) (*op.PriceUpdate, error) {
	var j priceUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PriceUpdate: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	asset, err := pool.ParseAsset(j.Asset)
	if err != nil {
		return nil, fmt.Errorf("parse asset: %w", err)
	}
	return &op.PriceUpdate{
		RequestID:      requestID,
		Asset:          asset,
		Price:          j.Price,
		PriceTimestamp: j.PriceTimestamp,
		Timestamp:      j.Timestamp,
	}, nil
}
