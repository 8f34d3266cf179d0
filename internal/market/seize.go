package market

import (
	"math/big"

	"nhblend/internal/events"
	"nhblend/internal/wad"
)

// Seize removes tokensToSeize of borrower's collateral-token balance in
// this market, splitting it between the protocol (redeemed internally into
// reserves, with the stake_factor share routed to staking rewards) and the
// liquidator, whose share-token balance is credited in the same call so the
// liquidator walks away holding the seized collateral tokens. Caller must be
// a whitelisted borrow-market, enforced by the controller's SeizeAllowed
// gate before this is invoked.
func (m *Market) Seize(liquidator, borrower string, tokensToSeize *big.Int) error {
	if borrower == liquidator {
		return ErrAddressesMustDiffer
	}
	if !wad.IsPositive(tokensToSeize) {
		return ErrAmountMustBePositive
	}

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

	deltaReserves := m.tokensToUnderlying(protocolTokens)
	m.totalReserves = new(big.Int).Add(m.totalReserves, deltaReserves)

	deltaRewards := wad.Mul(m.stakeFactor, deltaReserves)
	deltaRevenue := new(big.Int).Sub(deltaReserves, deltaRewards)
	m.revenue = new(big.Int).Add(m.revenue, deltaRevenue)
	m.stakingRewards = new(big.Int).Add(m.stakingRewards, deltaRewards)
	m.historicalStakingRewards = new(big.Int).Add(m.historicalStakingRewards, deltaRewards)

	m.totalSupply = wad.SafeSub(m.totalSupply, protocolTokens)

	m.emit(events.New(events.KindSeize, m.ID, borrower).
		WithAmount("protocol_tokens", protocolTokens).
		WithAmount("liquidator_tokens", liquidatorTokens).
		WithPrincipal("liquidator", liquidator))
	return nil
}
