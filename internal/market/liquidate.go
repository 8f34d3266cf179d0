package market

import (
	"errors"
	"math/big"

	"nhblend/internal/events"
	"nhblend/internal/wad"
)

var ErrCannotLiquidateSelf = errors.New("market: borrower and liquidator must differ")

// Oracle is the subset of the price oracle a market consumes when sizing a
// liquidation's seize amount.
type Oracle interface {
	PriceInNumeraire(underlyingID string) (*big.Int, error)
}

// SetOracle wires the price source LiquidateBorrow uses to size the seize.
func (m *Market) SetOracle(o Oracle) { m.oracle = o }

// LiquidateBorrow repays borrower's debt on this (the borrow) market with
// payment, then seizes the equivalent (plus incentive) amount of collateral
// tokens from collateralMarket. Both markets must already have had
// AccrueInterest called for the current timestamp (the caller accrues self
// and collateral market before calling).
func (m *Market) LiquidateBorrow(liquidator, borrower string, payment *big.Int, collateralMarketID string, collateral SeizeTarget) (seizedToLiquidator, totalSeized *big.Int, err error) {
	if borrower == liquidator {
		return nil, nil, ErrCannotLiquidateSelf
	}
	if !wad.IsPositive(payment) {
		return nil, nil, ErrAmountMustBePositive
	}
	if err := m.requireFresh(); err != nil {
		return nil, nil, err
	}

	currentBorrow, _ := m.accountBorrowAmount(borrower)
	if m.controller != nil {
		if err := m.controller.LiquidateBorrowAllowed(m.ID, collateralMarketID, payment, currentBorrow); err != nil {
			return nil, nil, err
		}
		if err := m.controller.SeizeAllowed(collateralMarketID, m.ID, borrower); err != nil {
			return nil, nil, err
		}
	}

	repaid, _, err := m.repayForLiquidation(borrower, payment)
	if err != nil {
		return nil, nil, err
	}

	tokensToSeize, err := m.tokensToSeize(repaid, collateral)
	if err != nil {
		return nil, nil, err
	}

	if collateralMarketID == m.ID {
		if err := m.Seize(liquidator, borrower, tokensToSeize); err != nil {
			return nil, nil, err
		}
	} else {
		if err := collateral.Seize(liquidator, borrower, tokensToSeize); err != nil {
			return nil, nil, err
		}
	}

	m.emit(events.New(events.KindLiquidate, m.ID, borrower).
		WithAmount("repaid", repaid).
		WithAmount("tokens_seized", tokensToSeize).
		WithPrincipal("liquidator", liquidator).
		WithPrincipal("collateral_market", collateralMarketID))
	return tokensToSeize, tokensToSeize, nil
}

// repayForLiquidation applies the same truncation-clamped repayment as
// RepayBorrow without going back through RepayBorrowAllowed: liquidation
// composes the internal repay directly, since it already ran
// LiquidateBorrowAllowed.
func (m *Market) repayForLiquidation(borrower string, payment *big.Int) (repaid, leftover *big.Int, err error) {
	currentTotalBorrows := wad.Clone(m.totalBorrows)
	currentBorrow, _ := m.accountBorrowAmount(borrower)
	currentBorrow = wad.Min(currentTotalBorrows, currentBorrow)

	if currentBorrow.Cmp(payment) >= 0 {
		repaid = wad.Clone(payment)
		leftover = wad.Zero()
	} else {
		repaid = wad.Clone(currentBorrow)
		leftover = new(big.Int).Sub(payment, currentBorrow)
	}

	newBorrow := wad.SafeSub(currentBorrow, repaid)
	m.setAccountSnapshot(borrower, newBorrow)
	m.totalBorrows = wad.SafeSub(currentTotalBorrows, repaid)
	m.cash = new(big.Int).Add(m.cash, repaid)
	return repaid, leftover, nil
}

// tokensToSeize computes amount*li*borrow_price/(fx*collateral_price), the
// formula for sizing a cross-market seize.
func (m *Market) tokensToSeize(amount *big.Int, collateral SeizeTarget) (*big.Int, error) {
	if m.oracle == nil {
		return nil, errors.New("market: no oracle wired for liquidation sizing")
	}
	borrowPrice, err := m.oracle.PriceInNumeraire(m.underlyingID)
	if err != nil {
		return nil, err
	}
	collateralPrice, err := m.oracle.PriceInNumeraire(collateral.UnderlyingID())
	if err != nil {
		return nil, err
	}

	incentivized := wad.Mul(amount, m.liquidationIncentive)
	value := wad.Mul(incentivized, borrowPrice)
	tokenPrice := wad.Mul(collateral.ExchangeRate(), collateralPrice)
	return wad.Div(value, tokenPrice), nil
}
