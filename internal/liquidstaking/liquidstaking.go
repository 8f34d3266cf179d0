// Package liquidstaking declares the external liquid-staking collaborator
// interface (sEGLD, sTAO) consumed by the price oracle. The concrete
// staking reward sink is out of this engine's scope; only the
// exchange-rate query surface needed to compose prices is modeled.
package liquidstaking

import "math/big"

// Client is the subset of a liquid-staking contract's interface the oracle
// needs: the WAD exchange rate between the liquid-staking derivative and its
// underlying, and the derivative's token identifier.
type Client interface {
	ExchangeRate() (*big.Int, error)
	LSTokenID() string
}

// Static is a fixed-rate test/ops double for Client, useful for scenarios
// that pin the exchange rate (e.g. replaying a historical liquidation).
type Static struct {
	Rate    *big.Int
	TokenID string
}

func (s Static) ExchangeRate() (*big.Int, error) { return new(big.Int).Set(s.Rate), nil }
func (s Static) LSTokenID() string               { return s.TokenID }
