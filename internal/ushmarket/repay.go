package ushmarket

import (
	"math/big"

	"nhblend/internal/events"
	"nhblend/internal/wad"
)

// RepayBorrow repays borrower's debt with paidUSHAmount from payer, always
// recomputing the borrower's discount against a live exchange rate.
func (m *Market) RepayBorrow(payer, borrower string, paidUSHAmount *big.Int) (repaid, leftover *big.Int, err error) {
	return m.repayBorrowInternal(payer, borrower, paidUSHAmount, DiscountUpdated)
}

// repayBorrowInternal does the shared work behind RepayBorrow and
// liquidation's repay leg. Liquidation composes this with DiscountPrevious
// so the discount is not recomputed before seize has updated the
// borrower's collateral tokens.
func (m *Market) repayBorrowInternal(payer, borrower string, paidUSHAmount *big.Int, discountStrategy DiscountStrategy) (repaid, leftover *big.Int, err error) {
	if payer != borrower && payer == "" {
		return nil, nil, ErrAddressesMustDiffer
	}
	if !wad.IsPositive(paidUSHAmount) {
		return nil, nil, ErrAmountMustBePositive
	}
	if err := m.AccrueInterest(); err != nil {
		return nil, nil, err
	}
	if m.controller != nil {
		if err := m.controller.RepayBorrowAllowed(m.ID, borrower); err != nil {
			return nil, nil, err
		}
	}
	if err := m.requireFresh(); err != nil {
		return nil, nil, err
	}

	repaid, newBorrow, totalBorrows, err := m.updateBorrowsData(borrower, paidUSHAmount, InteractionRepay, discountStrategy)
	if err != nil {
		return nil, nil, err
	}

	if m.minter != nil {
		if err := m.minter.Burn(repaid); err != nil {
			return nil, nil, err
		}
	}
	leftover = new(big.Int).Sub(paidUSHAmount, repaid)

	m.tryRemoveMarketBorrower(borrower)
	if m.controller != nil && newBorrow.Sign() == 0 {
		if err := m.controller.TryExitMarket(m.ID, borrower); err != nil {
			return nil, nil, err
		}
	}

	m.emit(events.New(events.KindRepay, m.ID, borrower).
		WithAmount("repaid", repaid).
		WithAmount("new_borrow", newBorrow).
		WithAmount("total_borrows", totalBorrows).
		WithPrincipal("payer", payer))
	return repaid, leftover, nil
}
