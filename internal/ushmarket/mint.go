package ushmarket

import (
	"math/big"

	"nhblend/internal/events"
	"nhblend/internal/wad"
)

// Mint burns ushAmount of USH received from payer via the external minter
// and credits account with the equivalent HUSH tokens. When account
// differs from payer, the caller must be a registered trusted minter. The
// caller is expected to compose this with
// controller.SetAccountCollateralTokens to enter the market in the same
// transaction.
func (m *Market) Mint(payer, account string, ushAmount *big.Int) (tokens *big.Int, err error) {
	if m.state != StateActive {
		return nil, ErrNotActive
	}
	if !m.eligibleAsCollateral {
		return nil, ErrNotEligibleAsCollateral
	}
	if account != "" && account != payer && !m.isTrustedMinter(payer) {
		return nil, ErrNotTrustedMinter
	}
	if !wad.IsPositive(ushAmount) {
		return nil, ErrAmountMustBePositive
	}
	if err := m.AccrueInterest(); err != nil {
		return nil, err
	}

	beneficiary := payer
	if account != "" {
		beneficiary = account
	}

	tokens = m.hushFromUsh(ushAmount)
	if !wad.IsPositive(tokens) {
		return nil, ErrNotEnoughUSH
	}

	if m.controller != nil {
		if err := m.controller.MintAllowed(m.ID, ushAmount, m.Liquidity()); err != nil {
			return nil, err
		}
	}
	if err := m.requireFresh(); err != nil {
		return nil, err
	}

	if m.minter != nil {
		if err := m.minter.Burn(ushAmount); err != nil {
			return nil, err
		}
	}
	m.totalSupply = new(big.Int).Add(m.totalSupply, tokens)

	m.emit(events.New(events.KindMint, m.ID, beneficiary).
		WithAmount("ush", ushAmount).
		WithAmount("tokens", tokens))
	return tokens, nil
}
