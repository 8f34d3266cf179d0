package controller

import (
	"math/big"

	"nhblend/internal/wad"
)

// MintAllowed gates whether marketID may mint more share tokens against
// amount of fresh deposits.
func (c *Controller) MintAllowed(marketID string, amount, liquidity *big.Int) error {
	risk, ok := c.risk[marketID]
	if !ok {
		return ErrNotWhitelisted
	}
	if risk.mintPaused {
		return ErrMintPaused
	}
	if risk.liquidityCap != nil {
		projected := new(big.Int).Add(liquidity, amount)
		if projected.Cmp(risk.liquidityCap) >= 0 {
			return ErrLiquidityCapExceeded
		}
	}
	return nil
}

// RedeemAllowed gates whether redeemer may redeem tokens of marketID's
// share token.
func (c *Controller) RedeemAllowed(marketID, redeemer string, tokens *big.Int) error {
	if _, ok := c.risk[marketID]; !ok {
		return ErrNotWhitelisted
	}
	held, err := c.AccountCollateralTokens(marketID, redeemer)
	if err != nil {
		return err
	}
	if held.Cmp(tokens) < 0 {
		return ErrInsufficientTokens
	}
	profile, err := c.SimulateRiskProfile(redeemer, marketID, tokens, big.NewInt(0), false)
	if err != nil {
		return err
	}
	if !profile.CanRedeem() {
		return ErrRiskyOrInsolvent
	}
	return nil
}

// BorrowAllowed gates whether borrower may draw amount from marketID.
// callerIsMarket indicates the call originated from marketID itself, which
// is the only caller permitted to auto-enter the borrower with zero
// collateral tokens.
func (c *Controller) BorrowAllowed(marketID, borrower string, amount, totalBorrows *big.Int, callerIsMarket bool) error {
	risk, ok := c.risk[marketID]
	if !ok {
		return ErrNotWhitelisted
	}
	if risk.borrowPaused {
		return ErrBorrowPaused
	}

	isMember := false
	for _, m := range c.accountMarkets[borrower] {
		if m == marketID {
			isMember = true
			break
		}
	}
	if !isMember && callerIsMarket {
		if err := c.enterMarket(marketID, borrower); err != nil {
			return err
		}
	}

	mkt := c.markets[marketID]
	if _, err := c.oracle.PriceInNumeraire(mkt.UnderlyingID()); err != nil {
		return err
	}

	if risk.borrowCap != nil {
		projected := new(big.Int).Add(totalBorrows, amount)
		if projected.Cmp(risk.borrowCap) >= 0 {
			return ErrBorrowCapExceeded
		}
	}

	profile, err := c.SimulateRiskProfile(borrower, marketID, big.NewInt(0), amount, false)
	if err != nil {
		return err
	}
	if !profile.CanBorrow() {
		return ErrRiskyOrInsolvent
	}
	return nil
}

// RepayBorrowAllowed implements repay_borrow_allowed: whitelisting is the
// only real check; it exists to trigger reward-batch state updates.
func (c *Controller) RepayBorrowAllowed(marketID, borrower string) error {
	if _, ok := c.risk[marketID]; !ok {
		return ErrNotWhitelisted
	}
	return nil
}

// LiquidateBorrowAllowed gates whether a liquidator may repay amount of
// borrowMarketID's debt and seize from collateralMarketID.
func (c *Controller) LiquidateBorrowAllowed(borrowMarketID, collateralMarketID string, amount, currentBorrow *big.Int) error {
	borrowMkt, ok := c.markets[borrowMarketID]
	if !ok {
		return ErrNotWhitelisted
	}
	if _, ok := c.markets[collateralMarketID]; !ok {
		return ErrNotWhitelisted
	}

	deprecated, err := borrowMkt.IsDeprecated()
	if err != nil {
		return err
	}
	if deprecated {
		if amount.Cmp(currentBorrow) > 0 {
			return ErrRepaymentTooLarge
		}
		return nil
	}

	closeFactor, err := borrowMkt.CloseFactor()
	if err != nil {
		return err
	}
	// The caller is expected to have already run LiquidateBorrowRiskCheck for
	// the borrower; this gate only enforces the close-factor bound.
	maxClose := wad.Mul(closeFactor, currentBorrow)
	if amount.Cmp(maxClose) > 0 {
		return ErrRepaymentTooLarge
	}
	return nil
}

// LiquidateBorrowRiskCheck runs the zero-perturbation risk simulation a
// liquidation must pass: the borrower must be RiskyOrInsolvent.
func (c *Controller) LiquidateBorrowRiskCheck(borrower string) error {
	profile, err := c.SimulateRiskProfile(borrower, "", big.NewInt(0), big.NewInt(0), false)
	if err != nil {
		return err
	}
	if profile.Solvent {
		return ErrNotRiskyOrInsolvent
	}
	return nil
}

// SeizeAllowed gates whether tokens may be seized from collateralMarketID
// on borrowMarketID's behalf.
func (c *Controller) SeizeAllowed(collateralMarketID, borrowMarketID, borrower string) error {
	if c.globalSeizePaused {
		return ErrGlobalSeizePaused
	}
	if _, ok := c.markets[collateralMarketID]; !ok {
		return ErrNotWhitelisted
	}
	if _, ok := c.markets[borrowMarketID]; !ok {
		return ErrNotWhitelisted
	}
	for _, m := range c.accountMarkets[borrower] {
		risk, ok := c.risk[m]
		if !ok {
			return ErrNotWhitelisted
		}
		if risk.seizePaused {
			return ErrSeizePaused
		}
	}
	return nil
}
