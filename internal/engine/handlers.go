package engine

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"LendLedger/internal/custody"
	lmath "LendLedger/internal/math"
	"LendLedger/internal/op"
	"LendLedger/internal/oracle"
	"LendLedger/internal/pool"
	"LendLedger/internal/risk"
)

var (
	zero = decimal.Zero
	one  = decimal.NewFromInt(1)
)

func (e *Engine) handleInitBank(req *op.InitBank) (Output, error) {
	if !req.Asset.Valid() {
		return Output{}, fmt.Errorf("%w: %d", pool.ErrInvalidAsset, req.Asset)
	}
	if _, ok := e.banks[req.Asset]; ok {
		return Output{}, fmt.Errorf("%w: %s", pool.ErrBankExists, req.Asset)
	}
	if err := validateFraction("liquidation threshold", req.LiquidationThreshold); err != nil {
		return Output{}, err
	}
	if err := validateFraction("max LTV", req.MaxLTV); err != nil {
		return Output{}, err
	}
	if err := validateFraction("close factor", req.LiquidationCloseFactor); err != nil {
		return Output{}, err
	}
	if req.LiquidationBonus.IsNegative() {
		return Output{}, fmt.Errorf("%w: negative liquidation bonus", pool.ErrInvalidAmount)
	}
	if req.MaxLTV.GreaterThan(req.LiquidationThreshold) {
		return Output{}, fmt.Errorf("%w: max LTV above liquidation threshold", pool.ErrInvalidAmount)
	}

	bank := &pool.Bank{
		Asset:                  req.Asset,
		InterestRate:           req.InterestRate,
		LiquidationThreshold:   req.LiquidationThreshold,
		MaxLTV:                 req.MaxLTV,
		LiquidationBonus:       req.LiquidationBonus,
		LiquidationCloseFactor: req.LiquidationCloseFactor,
		LastAccrualTime:        req.Timestamp,
		Version:                1,
	}
	e.banks[req.Asset] = bank

	return Output{Banks: []*pool.Bank{bank.Clone()}}, nil
}

func (e *Engine) handleInitUser(req *op.InitUser) (Output, error) {
	if !req.CollateralAsset.Valid() {
		return Output{}, fmt.Errorf("%w: %d", pool.ErrInvalidAsset, req.CollateralAsset)
	}
	if _, ok := e.positions[req.Owner]; ok {
		return Output{}, fmt.Errorf("%w: %s", pool.ErrUserExists, req.Owner)
	}

	position := pool.NewPosition(req.Owner, req.CollateralAsset, req.Timestamp)
	position.Version = 1
	e.positions[req.Owner] = position

	return Output{Positions: []*pool.Position{position.Clone()}}, nil
}

func (e *Engine) handleDeposit(req *op.Deposit) (Output, error) {
	if req.Amount == 0 {
		return Output{}, fmt.Errorf("%w: zero deposit", pool.ErrInvalidAmount)
	}
	bank, position, err := e.records(req.Asset, req.Owner)
	if err != nil {
		return Output{}, err
	}

	bank = bank.Clone()
	position = position.Clone()
	if err := e.accrue(bank, req.Timestamp); err != nil {
		return Output{}, err
	}

	shares, err := bank.DepositSharesFor(req.Amount)
	if err != nil {
		return Output{}, err
	}

	if bank.TotalDeposits, err = lmath.CheckedAdd(bank.TotalDeposits, req.Amount); err != nil {
		return Output{}, err
	}
	if bank.TotalDepositShares, err = lmath.CheckedAdd(bank.TotalDepositShares, shares); err != nil {
		return Output{}, err
	}

	bal := position.Balance(req.Asset)
	if bal.Deposited, err = lmath.CheckedAdd(bal.Deposited, req.Amount); err != nil {
		return Output{}, err
	}
	if bal.DepositShares, err = lmath.CheckedAdd(bal.DepositShares, shares); err != nil {
		return Output{}, err
	}
	position.LastDepositUpdate = req.Timestamp

	batch := custody.NewBatch(req.IdempotencyKey(), req.Timestamp)
	batch.NewLeg(
		custody.ParticipantKey(req.Owner, req.Asset),
		custody.VaultKey(req.Asset),
		req.Owner, req.Asset, req.Amount, custody.LegDepositIn,
	)
	if err := e.applyBatch(req.Type(), batch); err != nil {
		return Output{}, err
	}

	e.commitBank(bank)
	e.commitPosition(position)
	return Output{
		Batch:     batch,
		Banks:     []*pool.Bank{bank.Clone()},
		Positions: []*pool.Position{position.Clone()},
	}, nil
}

func (e *Engine) handleWithdraw(req *op.Withdraw) (Output, error) {
	if req.Amount == 0 {
		return Output{}, fmt.Errorf("%w: zero withdrawal", pool.ErrInvalidAmount)
	}
	bank, position, err := e.records(req.Asset, req.Owner)
	if err != nil {
		return Output{}, err
	}

	bank = bank.Clone()
	position = position.Clone()
	if err := e.accrue(bank, req.Timestamp); err != nil {
		return Output{}, err
	}

	bal := position.Balance(req.Asset)
	available, err := bank.ValueOfDepositShares(bal.DepositShares)
	if err != nil {
		return Output{}, err
	}
	if req.Amount > available {
		return Output{}, fmt.Errorf("%w: withdraw %d but %d available", pool.ErrInsufficientFunds, req.Amount, available)
	}

	// Share removal is sized before the aggregates shrink. Redeeming the
	// full holding removes every share so rounding dust cannot strand a
	// claim on an empty balance.
	var sharesRemoved uint64
	if req.Amount == available {
		sharesRemoved = bal.DepositShares
	} else {
		sharesRemoved, err = lmath.MulDiv(req.Amount, bank.TotalDepositShares, bank.TotalDeposits)
		if err != nil {
			return Output{}, err
		}
	}

	if bank.TotalDeposits, err = lmath.CheckedSub(bank.TotalDeposits, req.Amount); err != nil {
		return Output{}, err
	}
	if bank.TotalDepositShares, err = lmath.CheckedSub(bank.TotalDepositShares, sharesRemoved); err != nil {
		return Output{}, err
	}
	if bal.DepositShares, err = lmath.CheckedSub(bal.DepositShares, sharesRemoved); err != nil {
		return Output{}, err
	}
	bal.Deposited = lmath.SaturatingSub(bal.Deposited, req.Amount)
	position.LastDepositUpdate = req.Timestamp

	batch := custody.NewBatch(req.IdempotencyKey(), req.Timestamp)
	batch.NewLeg(
		custody.VaultKey(req.Asset),
		custody.ParticipantKey(req.Owner, req.Asset),
		req.Owner, req.Asset, req.Amount, custody.LegWithdrawOut,
	)
	if err := e.applyBatch(req.Type(), batch); err != nil {
		return Output{}, err
	}

	e.commitBank(bank)
	e.commitPosition(position)
	return Output{
		Batch:     batch,
		Banks:     []*pool.Bank{bank.Clone()},
		Positions: []*pool.Position{position.Clone()},
	}, nil
}

func (e *Engine) handleBorrow(req *op.Borrow) (Output, error) {
	if req.Amount == 0 {
		return Output{}, fmt.Errorf("%w: zero borrow", pool.ErrInvalidAmount)
	}
	debtBank, position, err := e.records(req.Asset, req.Owner)
	if err != nil {
		return Output{}, err
	}
	if req.Asset == position.CollateralAsset {
		return Output{}, fmt.Errorf("%w: %s is the position's collateral", pool.ErrInvalidAsset, req.Asset)
	}
	collBank, ok := e.banks[position.CollateralAsset]
	if !ok {
		return Output{}, fmt.Errorf("%w: %s", pool.ErrBankNotFound, position.CollateralAsset)
	}

	debtBank = debtBank.Clone()
	collBank = collBank.Clone()
	position = position.Clone()
	if err := e.accrue(debtBank, req.Timestamp); err != nil {
		return Output{}, err
	}
	if err := e.accrue(collBank, req.Timestamp); err != nil {
		return Output{}, err
	}

	collPrice, err := e.price(position.CollateralAsset, req.Timestamp)
	if err != nil {
		return Output{}, err
	}
	debtPrice, err := e.price(req.Asset, req.Timestamp)
	if err != nil {
		return Output{}, err
	}

	collateral, err := collBank.ValueOfDepositShares(position.Balance(position.CollateralAsset).DepositShares)
	if err != nil {
		return Output{}, err
	}
	collValue := risk.Value(collateral, collPrice.Value)
	borrowable := risk.BorrowableAmount(collValue, collBank.MaxLTV)
	requested := risk.Value(req.Amount, debtPrice.Value)
	if requested.GreaterThan(borrowable) {
		if e.metrics != nil {
			e.metrics.BorrowsRejected.WithLabelValues(req.Asset.String()).Inc()
		}
		return Output{}, fmt.Errorf("%w: requested value %s, borrowable %s",
			pool.ErrOverBorrowableAmount, requested, borrowable)
	}

	shares, err := debtBank.BorrowSharesFor(req.Amount)
	if err != nil {
		return Output{}, err
	}
	if debtBank.TotalBorrowed, err = lmath.CheckedAdd(debtBank.TotalBorrowed, req.Amount); err != nil {
		return Output{}, err
	}
	if debtBank.TotalBorrowShares, err = lmath.CheckedAdd(debtBank.TotalBorrowShares, shares); err != nil {
		return Output{}, err
	}

	bal := position.Balance(req.Asset)
	if bal.Borrowed, err = lmath.CheckedAdd(bal.Borrowed, req.Amount); err != nil {
		return Output{}, err
	}
	if bal.BorrowShares, err = lmath.CheckedAdd(bal.BorrowShares, shares); err != nil {
		return Output{}, err
	}
	position.LastBorrowUpdate = req.Timestamp

	batch := custody.NewBatch(req.IdempotencyKey(), req.Timestamp)
	batch.NewLeg(
		custody.VaultKey(req.Asset),
		custody.ParticipantKey(req.Owner, req.Asset),
		req.Owner, req.Asset, req.Amount, custody.LegBorrowOut,
	)
	if err := e.applyBatch(req.Type(), batch); err != nil {
		return Output{}, err
	}

	e.commitBank(debtBank)
	e.commitBank(collBank)
	e.commitPosition(position)
	return Output{
		Batch:     batch,
		Banks:     []*pool.Bank{debtBank.Clone(), collBank.Clone()},
		Positions: []*pool.Position{position.Clone()},
	}, nil
}

func (e *Engine) handleRepay(req *op.Repay) (Output, error) {
	if req.Amount == 0 {
		return Output{}, fmt.Errorf("%w: zero repayment", pool.ErrInvalidAmount)
	}
	bank, position, err := e.records(req.Asset, req.Owner)
	if err != nil {
		return Output{}, err
	}
	if req.Asset == position.CollateralAsset {
		return Output{}, fmt.Errorf("%w: %s is the position's collateral", pool.ErrInvalidAsset, req.Asset)
	}

	bank = bank.Clone()
	position = position.Clone()
	if err := e.accrue(bank, req.Timestamp); err != nil {
		return Output{}, err
	}

	bal := position.Balance(req.Asset)
	owed, err := bank.ValueOfBorrowShares(bal.BorrowShares)
	if err != nil {
		return Output{}, err
	}
	if req.Amount > owed {
		return Output{}, fmt.Errorf("%w: repay %d but %d owed", pool.ErrOverRepay, req.Amount, owed)
	}

	var sharesRemoved uint64
	if req.Amount == owed {
		sharesRemoved = bal.BorrowShares
	} else {
		sharesRemoved, err = lmath.MulDiv(req.Amount, bank.TotalBorrowShares, bank.TotalBorrowed)
		if err != nil {
			return Output{}, err
		}
	}

	if bank.TotalBorrowed, err = lmath.CheckedSub(bank.TotalBorrowed, req.Amount); err != nil {
		return Output{}, err
	}
	if bank.TotalBorrowShares, err = lmath.CheckedSub(bank.TotalBorrowShares, sharesRemoved); err != nil {
		return Output{}, err
	}
	if bal.BorrowShares, err = lmath.CheckedSub(bal.BorrowShares, sharesRemoved); err != nil {
		return Output{}, err
	}
	bal.Borrowed = lmath.SaturatingSub(bal.Borrowed, req.Amount)
	position.LastBorrowUpdate = req.Timestamp

	batch := custody.NewBatch(req.IdempotencyKey(), req.Timestamp)
	batch.NewLeg(
		custody.ParticipantKey(req.Owner, req.Asset),
		custody.VaultKey(req.Asset),
		req.Owner, req.Asset, req.Amount, custody.LegRepayIn,
	)
	if err := e.applyBatch(req.Type(), batch); err != nil {
		return Output{}, err
	}

	e.commitBank(bank)
	e.commitPosition(position)
	return Output{
		Batch:     batch,
		Banks:     []*pool.Bank{bank.Clone()},
		Positions: []*pool.Position{position.Clone()},
	}, nil
}

func (e *Engine) handleLiquidate(req *op.Liquidate) (Output, error) {
	borrower, ok := e.positions[req.Borrower]
	if !ok {
		return Output{}, fmt.Errorf("%w: %s", pool.ErrUserNotFound, req.Borrower)
	}

	collAsset := borrower.CollateralAsset
	debtAsset := borrower.DebtAsset()
	collBank, ok := e.banks[collAsset]
	if !ok {
		return Output{}, fmt.Errorf("%w: %s", pool.ErrBankNotFound, collAsset)
	}
	debtBank, ok := e.banks[debtAsset]
	if !ok {
		return Output{}, fmt.Errorf("%w: %s", pool.ErrBankNotFound, debtAsset)
	}

	collBank = collBank.Clone()
	debtBank = debtBank.Clone()
	borrower = borrower.Clone()
	if err := e.accrue(collBank, req.Timestamp); err != nil {
		return Output{}, err
	}
	if err := e.accrue(debtBank, req.Timestamp); err != nil {
		return Output{}, err
	}

	collPrice, err := e.price(collAsset, req.Timestamp)
	if err != nil {
		return Output{}, err
	}
	debtPrice, err := e.price(debtAsset, req.Timestamp)
	if err != nil {
		return Output{}, err
	}

	collateral, err := collBank.ValueOfDepositShares(borrower.Balance(collAsset).DepositShares)
	if err != nil {
		return Output{}, err
	}
	outstanding, err := debtBank.ValueOfBorrowShares(borrower.Balance(debtAsset).BorrowShares)
	if err != nil {
		return Output{}, err
	}

	collValue := risk.Value(collateral, collPrice.Value)
	debtValue := risk.Value(outstanding, debtPrice.Value)
	health := risk.HealthFactor(collValue, debtValue, collBank.LiquidationThreshold)
	if !risk.Liquidatable(health) {
		if e.metrics != nil {
			e.metrics.LiquidationsRejected.WithLabelValues(collAsset.String()).Inc()
		}
		return Output{}, fmt.Errorf("%w: health factor %s", pool.ErrNotUnderCollateralized, health)
	}

	repay := risk.RepayAmount(debtValue, debtBank.LiquidationCloseFactor, debtPrice.Value, outstanding)
	if repay == 0 {
		return Output{}, fmt.Errorf("%w: liquidation repayment rounds to zero", pool.ErrInvalidAmount)
	}
	repayValue := risk.Value(repay, debtPrice.Value)
	seize := risk.SeizeAmount(repayValue, collBank.LiquidationBonus, collPrice.Value, collateral)
	if seize == 0 {
		return Output{}, fmt.Errorf("%w: no collateral to seize", pool.ErrInvalidAmount)
	}

	var borrowSharesRemoved uint64
	if repay == outstanding {
		borrowSharesRemoved = borrower.Balance(debtAsset).BorrowShares
	} else {
		borrowSharesRemoved, err = lmath.MulDiv(repay, debtBank.TotalBorrowShares, debtBank.TotalBorrowed)
		if err != nil {
			return Output{}, err
		}
	}
	var depositSharesRemoved uint64
	if seize == collateral {
		depositSharesRemoved = borrower.Balance(collAsset).DepositShares
	} else {
		depositSharesRemoved, err = lmath.MulDiv(seize, collBank.TotalDepositShares, collBank.TotalDeposits)
		if err != nil {
			return Output{}, err
		}
	}

	if debtBank.TotalBorrowed, err = lmath.CheckedSub(debtBank.TotalBorrowed, repay); err != nil {
		return Output{}, err
	}
	if debtBank.TotalBorrowShares, err = lmath.CheckedSub(debtBank.TotalBorrowShares, borrowSharesRemoved); err != nil {
		return Output{}, err
	}
	if collBank.TotalDeposits, err = lmath.CheckedSub(collBank.TotalDeposits, seize); err != nil {
		return Output{}, err
	}
	if collBank.TotalDepositShares, err = lmath.CheckedSub(collBank.TotalDepositShares, depositSharesRemoved); err != nil {
		return Output{}, err
	}

	debtBal := borrower.Balance(debtAsset)
	if debtBal.BorrowShares, err = lmath.CheckedSub(debtBal.BorrowShares, borrowSharesRemoved); err != nil {
		return Output{}, err
	}
	debtBal.Borrowed = lmath.SaturatingSub(debtBal.Borrowed, repay)
	collBal := borrower.Balance(collAsset)
	if collBal.DepositShares, err = lmath.CheckedSub(collBal.DepositShares, depositSharesRemoved); err != nil {
		return Output{}, err
	}
	collBal.Deposited = lmath.SaturatingSub(collBal.Deposited, seize)
	borrower.LastBorrowUpdate = req.Timestamp
	borrower.LastDepositUpdate = req.Timestamp

	// Both legs land or neither does: the liquidator must not fund the
	// repayment without receiving the seized collateral.
	batch := custody.NewBatch(req.IdempotencyKey(), req.Timestamp)
	batch.NewLeg(
		custody.ParticipantKey(req.Liquidator, debtAsset),
		custody.VaultKey(debtAsset),
		req.Liquidator, debtAsset, repay, custody.LegLiquidationRepay,
	)
	batch.NewLeg(
		custody.VaultKey(collAsset),
		custody.ParticipantKey(req.Liquidator, collAsset),
		req.Liquidator, collAsset, seize, custody.LegLiquidationSeize,
	)
	if err := e.applyBatch(req.Type(), batch); err != nil {
		return Output{}, err
	}

	e.commitBank(debtBank)
	e.commitBank(collBank)
	e.commitPosition(borrower)

	if e.metrics != nil {
		e.metrics.LiquidationsApplied.WithLabelValues(collAsset.String()).Inc()
		e.metrics.LiquidationRepaid.WithLabelValues(debtAsset.String()).Add(float64(repay))
		e.metrics.LiquidationSeized.WithLabelValues(collAsset.String()).Add(float64(seize))
	}
	e.log.Info().
		Str("borrower", req.Borrower.String()).
		Str("liquidator", req.Liquidator.String()).
		Str("health_factor", health.String()).
		Uint64("repaid", repay).
		Uint64("seized", seize).
		Msg("position liquidated")

	return Output{
		Batch:     batch,
		Banks:     []*pool.Bank{debtBank.Clone(), collBank.Clone()},
		Positions: []*pool.Position{borrower.Clone()},
	}, nil
}

func (e *Engine) handlePriceUpdate(req *op.PriceUpdate) (Output, error) {
	if !req.Asset.Valid() {
		return Output{}, fmt.Errorf("%w: %d", pool.ErrInvalidAsset, req.Asset)
	}
	if !req.Price.IsPositive() {
		return Output{}, fmt.Errorf("%w: non-positive price %s", pool.ErrInvalidAmount, req.Price)
	}

	e.prices.SetPrice(oracle.Price{
		Asset:     req.Asset,
		Value:     req.Price,
		Timestamp: req.PriceTimestamp,
	})
	if e.metrics != nil {
		f, _ := req.Price.Float64()
		e.metrics.OraclePrice.WithLabelValues(req.Asset.String()).Set(f)
	}
	return Output{}, nil
}

// records fetches the bank and position an operation targets.
func (e *Engine) records(asset pool.Asset, owner uuid.UUID) (*pool.Bank, *pool.Position, error) {
	if !asset.Valid() {
		return nil, nil, fmt.Errorf("%w: %d", pool.ErrInvalidAsset, asset)
	}
	bank, ok := e.banks[asset]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", pool.ErrBankNotFound, asset)
	}
	position, ok := e.positions[owner]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", pool.ErrUserNotFound, owner)
	}
	return bank, position, nil
}

// accrue applies interest to a cloned bank at the request timestamp.
func (e *Engine) accrue(bank *pool.Bank, now int64) error {
	grew := now > bank.LastAccrualTime
	if err := bank.Accrue(now); err != nil {
		return err
	}
	if grew && e.metrics != nil {
		e.metrics.InterestAccruals.WithLabelValues(bank.Asset.String()).Inc()
	}
	return nil
}

// price fetches a fresh oracle observation or fails the operation.
func (e *Engine) price(asset pool.Asset, now int64) (oracle.Price, error) {
	p, err := e.prices.GetPrice(asset, e.cfg.PriceMaxAge, now)
	if err != nil {
		if e.metrics != nil {
			e.metrics.StalePriceHits.WithLabelValues(asset.String()).Inc()
		}
		return oracle.Price{}, err
	}
	if e.metrics != nil {
		e.metrics.OraclePriceAge.WithLabelValues(asset.String()).Set(float64(now - p.Timestamp))
	}
	return p, nil
}

func (e *Engine) applyBatch(opType op.OpType, batch *custody.Batch) error {
	if err := e.transfer.Apply(batch); err != nil {
		if e.metrics != nil {
			e.metrics.TransferFailures.WithLabelValues(opType.String()).Inc()
		}
		return err
	}
	return nil
}

func (e *Engine) commitBank(bank *pool.Bank) {
	bank.Version++
	e.banks[bank.Asset] = bank
}

func (e *Engine) commitPosition(position *pool.Position) {
	position.Version++
	e.positions[position.Owner] = position
}

func validateFraction(name string, d decimal.Decimal) error {
	if d.LessThan(zero) || d.GreaterThan(one) {
		return fmt.Errorf("%w: %s %s outside [0,1]", pool.ErrInvalidAmount, name, d)
	}
	return nil
}
