package ushmarket

import (
	"math/big"

	"nhblend/internal/events"
	"nhblend/internal/wad"
)

// Borrow mints ushAmount of USH to borrower against their collateral in
// other markets.
func (m *Market) Borrow(borrower string, ushAmount *big.Int) error {
	if m.state != StateActive {
		return ErrNotActive
	}
	if !wad.IsPositive(ushAmount) {
		return ErrAmountMustBePositive
	}
	if err := m.AccrueInterest(); err != nil {
		return err
	}
	if m.controller != nil {
		if err := m.controller.BorrowAllowed(m.ID, borrower, ushAmount, m.totalBorrows, true); err != nil {
			return err
		}
	}
	if err := m.requireFresh(); err != nil {
		return err
	}

	_, newBorrow, totalBorrows, err := m.updateBorrowsData(borrower, ushAmount, InteractionBorrow, DiscountUpdated)
	if err != nil {
		return err
	}

	if m.minter != nil {
		if err := m.minter.Mint(ushAmount, borrower); err != nil {
			return err
		}
	}
	m.marketBorrowers[borrower] = true

	m.emit(events.New(events.KindBorrow, m.ID, borrower).
		WithAmount("ush", ushAmount).
		WithAmount("new_borrow", newBorrow).
		WithAmount("total_borrows", totalBorrows))
	return nil
}
