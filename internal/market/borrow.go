package market

import (
	"math/big"

	"nhblend/internal/events"
	"nhblend/internal/wad"
)

// Borrow draws underlyingAmount against borrower's collateral. It always
// passes callerIsMarket=true to the controller's BorrowAllowed, since the
// call originates from this market, so the controller may auto-enter
// borrower into this market.
func (m *Market) Borrow(borrower string, underlyingAmount *big.Int) error {
	if m.state != StateActive {
		return ErrNotActive
	}
	if !wad.IsPositive(underlyingAmount) {
		return ErrAmountMustBePositive
	}
	if err := m.AccrueInterest(); err != nil {
		return err
	}
	if m.controller != nil {
		if err := m.controller.BorrowAllowed(m.ID, borrower, underlyingAmount, m.totalBorrows, true); err != nil {
			return err
		}
	}
	if err := m.requireFresh(); err != nil {
		return err
	}
	if err := m.tryEnsureStakingRewards(underlyingAmount); err != nil {
		return err
	}

	current, _ := m.accountBorrowAmount(borrower)
	newBorrow := new(big.Int).Add(current, underlyingAmount)
	m.setAccountSnapshot(borrower, newBorrow)

	m.cash = new(big.Int).Sub(m.cash, underlyingAmount)
	m.totalBorrows = new(big.Int).Add(m.totalBorrows, underlyingAmount)

	m.emit(events.New(events.KindBorrow, m.ID, borrower).
		WithAmount("underlying", underlyingAmount).
		WithAmount("new_borrow", newBorrow).
		WithAmount("total_borrows", m.totalBorrows))
	return nil
}
