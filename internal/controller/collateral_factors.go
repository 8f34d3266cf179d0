package controller

import "math/big"

// currentCollateralFactors returns marketID's live (CF, UF) pair, lazily
// promoting a pending change if its timelock has elapsed: on first read
// after apply_at_ts elapses, the pending change is applied and cleared.
func (c *Controller) currentCollateralFactors(marketID string) (*big.Int, *big.Int, error) {
	risk, ok := c.risk[marketID]
	if !ok {
		return nil, nil, ErrNotWhitelisted
	}
	if risk.pending != nil && c.now() >= risk.pending.applyAtTS {
		risk.cf = risk.pending.nextCF
		risk.uf = risk.pending.nextUF
		risk.pending = nil
	}
	return new(big.Int).Set(risk.cf), new(big.Int).Set(risk.uf), nil
}

// CollateralFactors is the public, promotion-triggering accessor.
func (c *Controller) CollateralFactors(marketID string) (cf, uf *big.Int, err error) {
	return c.currentCollateralFactors(marketID)
}

// decreaseAllowed rejects a decrease that exceeds min(0.1 WAD, old); an
// increase is always allowed by this check.
func decreaseAllowed(oldV, newV *big.Int) bool {
	if newV.Cmp(oldV) >= 0 {
		return true
	}
	drop := new(big.Int).Sub(oldV, newV)
	maxDrop := MaxCollateralFactorDecrease
	if oldV.Cmp(maxDrop) < 0 {
		maxDrop = oldV
	}
	return drop.Cmp(maxDrop) <= 0
}

// SetCollateralFactors implements the CF/UF state machine. Any decrease
// larger than min(0.1 WAD, old) on either dimension is
// rejected outright. Otherwise, a dimension that increases (or stays level)
// applies immediately; a dimension that decreases is deferred behind the
// one-day timelock regardless of how small the decrease is. UF must never
// exceed CF.
func (c *Controller) SetCollateralFactors(marketID string, newCF, newUF *big.Int) error {
	if newUF.Cmp(newCF) > 0 {
		return ErrInvalidCollateralFactors
	}
	oldCF, oldUF, err := c.currentCollateralFactors(marketID)
	if err != nil {
		return err
	}
	if !decreaseAllowed(oldCF, newCF) || !decreaseAllowed(oldUF, newUF) {
		return ErrCollateralFactorDecreaseTooLarge
	}

	risk := c.risk[marketID]
	cfIncreases := newCF.Cmp(oldCF) >= 0
	ufIncreases := newUF.Cmp(oldUF) >= 0

	if cfIncreases && ufIncreases {
		risk.cf = new(big.Int).Set(newCF)
		risk.uf = new(big.Int).Set(newUF)
		risk.pending = nil
		return nil
	}

	pending := &pendingCollateralFactors{
		applyAtTS: c.now() + CollateralFactorTimelock,
		nextCF:    new(big.Int).Set(newCF),
		nextUF:    new(big.Int).Set(newUF),
	}
	if ufIncreases {
		risk.uf = new(big.Int).Set(newUF)
	}
	if cfIncreases {
		risk.cf = new(big.Int).Set(newCF)
	}
	risk.pending = pending
	return nil
}
