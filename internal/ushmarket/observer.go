package ushmarket

import (
	"nhblend/internal/wad"
)

// OnMarketMembershipChanged implements controller.USHMarketObserver:
// whenever the controller changes an account's membership in any market, a
// current USH borrower has their discount refreshed against cached
// exchange rates, never live ones, so this notification never recurses
// into another market's accrual. market is unused: this market only cares
// that something in the account's collateral set changed, not which market
// triggered it.
func (m *Market) OnMarketMembershipChanged(market, account string) {
	if m.state == StateFinalized {
		return
	}
	if !m.marketBorrowers[account] {
		return
	}
	if err := m.AccrueInterest(); err != nil {
		return
	}
	_, _, _, _ = m.updateBorrowsData(account, wad.Zero(), InteractionEnterExit, DiscountCached)
}

// UpdateAccountDiscountRate lets anyone force a borrower's discount to
// refresh against a live exchange rate, useful after the borrower's
// other-market collateral or its exchange rate changed without a
// USH-market interaction.
func (m *Market) UpdateAccountDiscountRate(account string) error {
	if err := m.AccrueInterest(); err != nil {
		return err
	}
	if !m.marketBorrowers[account] {
		return ErrAccountNotBorrower
	}
	_, _, _, err := m.updateBorrowsData(account, wad.Zero(), InteractionEnterExit, DiscountUpdated)
	return err
}
