package market

import (
	"math/big"

	"nhblend/internal/events"
	"nhblend/internal/wad"
)

// Mint supplies underlyingAmount of the market's underlying asset and
// credits share tokens to minter. When account differs from minter, the
// caller must be a registered trusted minter (the "mint and enter market on
// behalf of" path); the caller is also expected to compose this with
// controller.SetAccountCollateralTokens to enter the market, which callers
// typically do right after a successful Mint.
func (m *Market) Mint(minter, account string, underlyingAmount *big.Int) (tokens *big.Int, err error) {
	if m.state != StateActive {
		return nil, ErrNotActive
	}
	if !wad.IsPositive(underlyingAmount) {
		return nil, ErrAmountMustBePositive
	}
	if account != "" && account != minter && !m.isTrustedMinter(minter) {
		return nil, ErrNotTrustedMinter
	}
	if err := m.AccrueInterest(); err != nil {
		return nil, err
	}

	beneficiary := minter
	if account != "" {
		beneficiary = account
	}

	tokens = m.underlyingToTokens(underlyingAmount)
	if !wad.IsPositive(tokens) {
		return nil, ErrNotEnoughUnderlying
	}

	if m.controller != nil {
		if err := m.controller.MintAllowed(m.ID, underlyingAmount, m.Liquidity()); err != nil {
			return nil, err
		}
	}
	if err := m.requireFresh(); err != nil {
		return nil, err
	}

	m.cash = new(big.Int).Add(m.cash, underlyingAmount)
	m.totalSupply = new(big.Int).Add(m.totalSupply, tokens)

	m.emit(events.New(events.KindMint, m.ID, beneficiary).
		WithAmount("underlying", underlyingAmount).
		WithAmount("tokens", tokens))
	return tokens, nil
}
