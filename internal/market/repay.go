package market

import (
	"math/big"

	"nhblend/internal/events"
	"nhblend/internal/wad"
)

// RepayBorrow repays borrower's debt with paidUnderlyingAmount from payer.
// Because of truncation it is possible for a single account's snapshot to
// exceed total_borrows; the repayable amount is clamped to total_borrows so
// every remaining borrower can always fully close out their position. Any
// payment beyond the clamped current borrow is returned to the caller as
// leftover.
func (m *Market) RepayBorrow(payer, borrower string, paidUnderlyingAmount *big.Int) (repaid, leftover *big.Int, err error) {
	if payer != borrower && payer == "" {
		return nil, nil, ErrAddressesMustDiffer
	}
	if !wad.IsPositive(paidUnderlyingAmount) {
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

	currentTotalBorrows := wad.Clone(m.totalBorrows)
	currentBorrow, _ := m.accountBorrowAmount(borrower)
	currentBorrow = wad.Min(currentTotalBorrows, currentBorrow)

	if currentBorrow.Cmp(paidUnderlyingAmount) >= 0 {
		repaid = wad.Clone(paidUnderlyingAmount)
		leftover = wad.Zero()
	} else {
		repaid = wad.Clone(currentBorrow)
		leftover = new(big.Int).Sub(paidUnderlyingAmount, currentBorrow)
	}

	newBorrow := wad.SafeSub(currentBorrow, repaid)
	m.setAccountSnapshot(borrower, newBorrow)
	m.totalBorrows = wad.SafeSub(currentTotalBorrows, repaid)
	m.cash = new(big.Int).Add(m.cash, repaid)

	if newBorrow.Sign() == 0 && m.controller != nil {
		if err := m.controller.TryExitMarket(m.ID, borrower); err != nil {
			return nil, nil, err
		}
	}

	m.emit(events.New(events.KindRepay, m.ID, borrower).
		WithAmount("repaid", repaid).
		WithAmount("new_borrow", newBorrow).
		WithAmount("total_borrows", m.totalBorrows).
		WithPrincipal("payer", payer))
	return repaid, leftover, nil
}
