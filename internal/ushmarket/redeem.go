package ushmarket

import (
	"math/big"

	"nhblend/internal/events"
	"nhblend/internal/wad"
)

// RedeemByTokens burns tokens of HUSH for redeemer and mints the equivalent
// USH back through the external minter. No controller check is needed
// here: a redeemer can only reach this call already having exited the
// market and received their HUSH tokens back.
func (m *Market) RedeemByTokens(redeemer string, tokens *big.Int) (ushAmount *big.Int, err error) {
	if !wad.IsPositive(tokens) {
		return nil, ErrAmountMustBePositive
	}
	if err := m.AccrueInterest(); err != nil {
		return nil, err
	}
	if err := m.requireFresh(); err != nil {
		return nil, err
	}

	ushAmount = m.ushFromHush(tokens)
	if err := m.redeemInternal(redeemer, tokens, ushAmount); err != nil {
		return nil, err
	}
	return ushAmount, nil
}

// RedeemByUnderlying burns the minimal number of HUSH tokens needed to pay
// out exactly ushAmount, refunding any unused tokens paidTokens covers
// beyond that minimum: tokens = ushToHush(ushAmount) + 1, rounding in the
// protocol's favor.
func (m *Market) RedeemByUnderlying(redeemer string, paidTokens, ushAmount *big.Int) (tokensUsed, tokensRefunded *big.Int, err error) {
	if !wad.IsPositive(ushAmount) {
		return nil, nil, ErrAmountMustBePositive
	}
	if err := m.AccrueInterest(); err != nil {
		return nil, nil, err
	}
	if err := m.requireFresh(); err != nil {
		return nil, nil, err
	}

	tokensNeeded := new(big.Int).Add(m.hushFromUsh(ushAmount), big.NewInt(1))
	if !wad.IsPositive(tokensNeeded) {
		return nil, nil, ErrNotEnoughUSH
	}
	if paidTokens.Cmp(tokensNeeded) < 0 {
		return nil, nil, ErrNotEnoughTokensToRedeem
	}

	if err := m.redeemInternal(redeemer, tokensNeeded, ushAmount); err != nil {
		return nil, nil, err
	}

	refund := wad.SafeSub(paidTokens, tokensNeeded)
	return tokensNeeded, refund, nil
}

func (m *Market) redeemInternal(redeemer string, tokens, ushAmount *big.Int) error {
	m.totalSupply = wad.SafeSub(m.totalSupply, tokens)

	if m.minter != nil {
		if err := m.minter.Mint(ushAmount, redeemer); err != nil {
			return err
		}
	}

	m.emit(events.New(events.KindRedeem, m.ID, redeemer).
		WithAmount("ush", ushAmount).
		WithAmount("tokens", tokens))
	return nil
}
