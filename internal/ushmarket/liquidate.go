package ushmarket

import (
	"errors"
	"math/big"

	"nhblend/internal/events"
	"nhblend/internal/wad"
)

// LiquidateBorrow repays borrower's USH debt on this market with payment,
// then seizes the equivalent (plus incentive) amount of collateral tokens
// from collateralMarket. The repay leg reuses the borrower's
// pre-liquidation discount: it would otherwise be recomputed using
// collateral tokens that seize is about to change.
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

	currentBorrow := m.currentBorrowAmount(m.snapshots[borrower], m.borrowIndex)
	if m.controller != nil {
		if err := m.controller.LiquidateBorrowAllowed(m.ID, collateralMarketID, payment, currentBorrow); err != nil {
			return nil, nil, err
		}
		if err := m.controller.SeizeAllowed(collateralMarketID, m.ID, borrower); err != nil {
			return nil, nil, err
		}
	}

	repaid, _, err := m.repayBorrowInternal(liquidator, borrower, payment, DiscountPrevious)
	if err != nil {
		return nil, nil, err
	}

	tokensToSeize, err := m.tokensToSeize(repaid, collateral)
	if err != nil {
		return nil, nil, err
	}

	if collateralMarketID == m.ID {
		return nil, nil, errors.New("ushmarket: USH is never its own collateral market")
	}
	if err := collateral.Seize(liquidator, borrower, tokensToSeize); err != nil {
		return nil, nil, err
	}

	m.emit(events.New(events.KindLiquidate, m.ID, borrower).
		WithAmount("repaid", repaid).
		WithAmount("tokens_seized", tokensToSeize).
		WithPrincipal("liquidator", liquidator).
		WithPrincipal("collateral_market", collateralMarketID))
	return tokensToSeize, tokensToSeize, nil
}

// tokensToSeize computes amount*li*borrow_price/(fx*collateral_price), the
// same formula the base money market uses, with USH's borrow_price read
// from the oracle like any other underlying.
func (m *Market) tokensToSeize(amount *big.Int, collateral SeizeTarget) (*big.Int, error) {
	if m.oracle == nil {
		return nil, errors.New("ushmarket: no oracle wired for liquidation sizing")
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
