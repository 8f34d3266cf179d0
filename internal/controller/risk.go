// Package controller implements the risk core that spans every money
// market: the whitelist, per-account market membership, collateral-factor
// tiers with their timelocked decrease, risk-profile simulation, pause
// flags, and the policy gates every market action must clear before it is
// allowed to mutate state.
package controller

import (
	"errors"
	"math/big"

	"nhblend/internal/wad"
)

// RiskProfile is the outcome of a simulated position: either Solvent, with
// the spare collateral value, or RiskyOrInsolvent, with the shortfall.
type RiskProfile struct {
	Solvent   bool
	Liquidity *big.Int // meaningful when Solvent
	Shortfall *big.Int // meaningful when !Solvent
}

// CanRedeem and CanBorrow both require a Solvent profile.
func (p RiskProfile) CanRedeem() bool { return p.Solvent }
func (p RiskProfile) CanBorrow() bool { return p.Solvent }

// LiquidationVerdict classifies whether a repayment can liquidate a
// RiskyOrInsolvent position given the market's close factor.
type LiquidationVerdict int

const (
	LiquidationNotAllowed LiquidationVerdict = iota
	LiquidationAllowed
	LiquidationAllowedButTooMuch
)

// CanBeLiquidated reports whether a repayment can liquidate this profile: a
// Solvent profile never allows liquidation; a RiskyOrInsolvent one allows it
// only up to close_factor * borrow / WAD.
func (p RiskProfile) CanBeLiquidated(repay, borrow, closeFactor *big.Int) LiquidationVerdict {
	if p.Solvent {
		return LiquidationNotAllowed
	}
	maxClose := wad.Mul(closeFactor, borrow)
	if repay.Cmp(maxClose) > 0 {
		return LiquidationAllowedButTooMuch
	}
	return LiquidationAllowed
}

// Market is the subset of a money market's interface the controller
// consumes for risk simulation and policy checks.
type Market interface {
	UnderlyingID() string
	// AccountSnapshot returns the account's current underlying-denominated
	// owed amount and the market's current exchange rate (fx), both WAD.
	AccountSnapshot(account string) (owed *big.Int, fx *big.Int, err error)
	// IsDeprecated reports CF=0 ∧ borrow-paused ∧ reserve_factor=1.
	IsDeprecated() (bool, error)
	// CloseFactor returns the market's close_factor, WAD.
	CloseFactor() (*big.Int, error)
}

// Oracle is the subset of the price oracle the controller consumes.
type Oracle interface {
	PriceInNumeraire(underlyingID string) (*big.Int, error)
}

var (
	ErrNotWhitelisted        = errors.New("controller: market is not whitelisted")
	ErrAlreadyWhitelisted    = errors.New("controller: market is already whitelisted")
	ErrTooManyMarkets        = errors.New("controller: account already at max_markets_per_account")
	ErrMintPaused            = errors.New("controller: mint is paused for this market")
	ErrBorrowPaused          = errors.New("controller: borrow is paused for this market")
	ErrSeizePaused           = errors.New("controller: seize is paused")
	ErrGlobalSeizePaused     = errors.New("controller: global seize is paused")
	ErrLiquidityCapExceeded  = errors.New("controller: liquidity cap exceeded")
	ErrBorrowCapExceeded     = errors.New("controller: borrow cap exceeded")
	ErrInsufficientTokens    = errors.New("controller: account does not hold enough collateral tokens")
	ErrRiskyOrInsolvent      = errors.New("controller: action would leave the account risky or insolvent")
	ErrNotRiskyOrInsolvent   = errors.New("controller: account is solvent, liquidation not allowed")
	ErrRepaymentTooLarge     = errors.New("controller: repayment exceeds close_factor * current_borrow")
	ErrDifferentController   = errors.New("controller: markets do not share a controller")
	ErrInvalidCollateralFactors = errors.New("controller: UF must never exceed CF")
	ErrCollateralFactorDecreaseTooLarge = errors.New("controller: collateral factor decrease exceeds the allowed step")
	ErrUnauthorized          = errors.New("controller: caller is not authorized for this action")
)

// MaxMarketsPerAccount bounds how many markets a single account may be a
// member of simultaneously.
const MaxMarketsPerAccount = 8

// MaxCollateralFactorDecrease caps a single-step decrease of either CF or
// UF: a decrease larger than min(0.1 WAD, old) is rejected, and an allowed
// decrease still goes through the timelock.
var MaxCollateralFactorDecrease = new(big.Int).Quo(wad.WAD, big.NewInt(10))

// CollateralFactorTimelock is the wall-clock delay every CF/UF decrease
// must wait before promotion.
const CollateralFactorTimelock = 24 * 60 * 60 // seconds, one day

// accountSnapshot holds the per-market facts gathered before the
// collateral/borrow accumulation pass.
type accountSnapshot struct {
	market       string
	underlyingOwed *big.Int
	fx           *big.Int
}

// SimulateRiskProfile walks every market an account belongs to, optionally
// perturbed by a hypothetical redeem/borrow on thisMarket, and aggregates
// collateral value against owed debt to produce a RiskProfile. thisMarket
// may be the empty string when no perturbation market applies.
func (c *Controller) SimulateRiskProfile(account, thisMarket string, redeemTokens, borrowAmount *big.Int, lazy bool) (RiskProfile, error) {
	markets := c.AccountMarkets(account)

	borrower := false
	ushBorrower := false
	ushMarket := c.ushMarketObserverID

	snapshots := make([]accountSnapshot, 0, len(markets))
	for _, m := range markets {
		mkt, ok := c.markets[m]
		if !ok {
			return RiskProfile{}, ErrNotWhitelisted
		}
		owed, fx, err := mkt.AccountSnapshot(account)
		if err != nil {
			return RiskProfile{}, err
		}
		if wad.IsPositive(owed) {
			if m == ushMarket {
				ushBorrower = true
			}
			borrower = true
		}
		snapshots = append(snapshots, accountSnapshot{market: m, underlyingOwed: owed, fx: fx})
	}

	if wad.IsPositive(borrowAmount) {
		if thisMarket == ushMarket {
			ushBorrower = true
		}
		borrower = true
	}

	if lazy && !borrower {
		return RiskProfile{Solvent: true, Liquidity: wad.Zero()}, nil
	}

	totalBorrow := wad.Zero()
	totalCollateral := wad.Zero()

	for _, snap := range snapshots {
		cf, uf, err := c.currentCollateralFactors(snap.market)
		if err != nil {
			return RiskProfile{}, err
		}
		ltv := cf
		if ushBorrower {
			ltv = uf
		}

		tokens, err := c.AccountCollateralTokens(snap.market, account)
		if err != nil {
			return RiskProfile{}, err
		}

		mkt := c.markets[snap.market]
		underlyingPrice, err := c.oracle.PriceInNumeraire(mkt.UnderlyingID())
		if err != nil {
			return RiskProfile{}, err
		}

		tokenPrice := wad.Mul(snap.fx, underlyingPrice)
		tokenPriceEff := wad.Mul(ltv, tokenPrice)

		totalCollateral.Add(totalCollateral, wad.Mul(tokenPriceEff, tokens))
		totalBorrow.Add(totalBorrow, wad.Mul(underlyingPrice, snap.underlyingOwed))

		if snap.market == thisMarket {
			totalBorrow.Add(totalBorrow, wad.Mul(tokenPriceEff, redeemTokens))
			totalBorrow.Add(totalBorrow, wad.Mul(underlyingPrice, borrowAmount))
		}
	}

	if totalCollateral.Cmp(totalBorrow) >= 0 {
		return RiskProfile{Solvent: true, Liquidity: wad.SafeSub(totalCollateral, totalBorrow)}, nil
	}
	return RiskProfile{Solvent: false, Shortfall: wad.SafeSub(totalBorrow, totalCollateral)}, nil
}

// IsRisky reports whether account currently has a RiskyOrInsolvent profile.
func (c *Controller) IsRisky(account string) (bool, error) {
	profile, err := c.SimulateRiskProfile(account, "", wad.Zero(), wad.Zero(), true)
	if err != nil {
		return false, err
	}
	return !profile.Solvent, nil
}
