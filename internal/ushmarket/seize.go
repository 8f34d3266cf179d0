package ushmarket

import (
	"math/big"

	"nhblend/internal/events"
	"nhblend/internal/wad"
)

// Seize removes tokensToSeize of borrower's HUSH collateral balance,
// splitting it between the protocol (redeemed internally into reserves,
// with the stake_factor share routed to staking rewards) and the
// liquidator, whose balance is credited with its share in the same call.
func (m *Market) Seize(liquidator, borrower string, tokensToSeize *big.Int) error {
	if borrower == liquidator {
		return ErrAddressesMustDiffer
	}
	if !wad.IsPositive(tokensToSeize) {
		return ErrAmountMustBePositive
	}
	if err := m.AccrueInterest(); err != nil {
		return err
	}

	// the caller (the borrow-side market's LiquidateBorrow) is expected to
	// have already cleared controller.SeizeAllowed before invoking this.
	borrowerTokens, err := m.controller.AccountCollateralTokens(m.ID, borrower)
	if err != nil {
		return err
	}
	newBorrowerTokens := wad.SafeSub(borrowerTokens, tokensToSeize)
	if err := m.controller.SetAccountCollateralTokens(m.ID, borrower, newBorrowerTokens); err != nil {
		return err
	}

	protocolTokens := wad.Mul(m.protocolSeizeShare, tokensToSeize)
	liquidatorTokens := new(big.Int).Sub(tokensToSeize, protocolTokens)

	liquidatorExisting, err := m.controller.AccountCollateralTokens(m.ID, liquidator)
	if err != nil {
		return err
	}
	newLiquidatorTokens := new(big.Int).Add(liquidatorExisting, liquidatorTokens)
	if err := m.controller.SetAccountCollateralTokens(m.ID, liquidator, newLiquidatorTokens); err != nil {
		return err
	}

	deltaReserves := m.ushFromHush(protocolTokens)
	m.totalReserves = new(big.Int).Add(m.totalReserves, deltaReserves)

	deltaRewards := wad.Mul(m.stakeFactor, deltaReserves)
	deltaRevenue := new(big.Int).Sub(deltaReserves, deltaRewards)
	m.revenue = new(big.Int).Add(m.revenue, deltaRevenue)
	m.stakingRewards = new(big.Int).Add(m.stakingRewards, deltaRewards)
	m.historicalStakingRewards = new(big.Int).Add(m.historicalStakingRewards, deltaRewards)

	if m.minter != nil {
		// the USH credited to reserves is burned immediately: it is minted
		// again whenever the reserves' revenue share is withdrawn.
		if err := m.minter.Burn(deltaReserves); err != nil {
			return err
		}
	}
	m.totalSupply = wad.SafeSub(m.totalSupply, protocolTokens)

	m.emit(events.New(events.KindSeize, m.ID, borrower).
		WithAmount("protocol_tokens", protocolTokens).
		WithAmount("liquidator_tokens", liquidatorTokens).
		WithPrincipal("liquidator", liquidator))
	return nil
}
