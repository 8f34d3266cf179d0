package market

import (
	"math/big"

	"nhblend/internal/events"
	"nhblend/internal/wad"
)

// RedeemByTokens burns tokens share tokens for redeemer, paying out
// tokens*exchange_rate/WAD of underlying. The redeem is first confirmed with
// controller.RedeemAllowed, which requires the redeemer's collateral-token
// balance to cover tokens and the post-redeem risk profile to be solvent.
func (m *Market) RedeemByTokens(redeemer string, tokens *big.Int) (underlyingAmount *big.Int, err error) {
	if !wad.IsPositive(tokens) {
		return nil, ErrAmountMustBePositive
	}
	if err := m.AccrueInterest(); err != nil {
		return nil, err
	}
	if m.controller != nil {
		if err := m.controller.RedeemAllowed(m.ID, redeemer, tokens); err != nil {
			return nil, err
		}
	}
	if err := m.requireFresh(); err != nil {
		return nil, err
	}

	underlyingAmount = m.tokensToUnderlying(tokens)
	if err := m.redeemInternal(redeemer, tokens, underlyingAmount); err != nil {
		return nil, err
	}
	return underlyingAmount, nil
}

// RedeemByUnderlying burns the minimal number of tokens needed to pay out
// exactly underlyingAmount, refunding any unused tokens paidTokens covers
// beyond that minimum: tokens = underlyingAmountToTokens(underlyingAmount) +
// 1, rounding in the protocol's favor.
func (m *Market) RedeemByUnderlying(redeemer string, paidTokens, underlyingAmount *big.Int) (tokensUsed, tokensRefunded *big.Int, err error) {
	if !wad.IsPositive(underlyingAmount) {
		return nil, nil, ErrAmountMustBePositive
	}
	if err := m.AccrueInterest(); err != nil {
		return nil, nil, err
	}

	tokensNeeded := new(big.Int).Add(m.underlyingToTokens(underlyingAmount), big.NewInt(1))
	if !wad.IsPositive(tokensNeeded) {
		return nil, nil, ErrNotEnoughUnderlying
	}
	if paidTokens.Cmp(tokensNeeded) < 0 {
		return nil, nil, ErrNotEnoughTokensToRedeem
	}

	if m.controller != nil {
		if err := m.controller.RedeemAllowed(m.ID, redeemer, tokensNeeded); err != nil {
			return nil, nil, err
		}
	}
	if err := m.requireFresh(); err != nil {
		return nil, nil, err
	}

	if err := m.redeemInternal(redeemer, tokensNeeded, underlyingAmount); err != nil {
		return nil, nil, err
	}

	refund := wad.SafeSub(paidTokens, tokensNeeded)
	return tokensNeeded, refund, nil
}

func (m *Market) redeemInternal(redeemer string, tokens, underlyingAmount *big.Int) error {
	if err := m.tryEnsureStakingRewards(underlyingAmount); err != nil {
		return err
	}
	m.cash = new(big.Int).Sub(m.cash, underlyingAmount)
	m.totalSupply = wad.SafeSub(m.totalSupply, tokens)

	m.emit(events.New(events.KindRedeem, m.ID, redeemer).
		WithAmount("underlying", underlyingAmount).
		WithAmount("tokens", tokens))
	return nil
}
