package op

// OpType discriminates operation request payloads.
type OpType int32

const (
	OpUnknown OpType = iota
	OpInitBank
	OpInitUser
	OpDeposit
	OpWithdraw
	OpBorrow
	OpRepay
	OpLiquidate
	OpPriceUpdate
)

func (t OpType) String() string {
	switch t {
	case OpInitBank:
		return "InitBank"
	case OpInitUser:
		return "InitUser"
	case OpDeposit:
		return "Deposit"
	case OpWithdraw:
		return "Withdraw"
	case OpBorrow:
		return "Borrow"
	case OpRepay:
		return "Repay"
	case OpLiquidate:
		return "Liquidate"
	case OpPriceUpdate:
		return "PriceUpdate"
	default:
		return "Unknown"
	}
}

// Request is one externally-submitted unit of work. The runtime serializes
// application, so a Request never carries internal concurrency concerns,
// just identity, type, and a versioned timestamp.
type Request interface {
	// IdempotencyKey is the stable dedup key assigned upstream.
	IdempotencyKey() string

	// Type returns the discriminator.
	Type() OpType

	// OccurredAt is the unix second the request is effective at. The engine
	// never reads the wall clock; time is a versioned input.
	OccurredAt() int64
}
