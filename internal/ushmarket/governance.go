package ushmarket

import (
	"errors"
	"math/big"

	"nhblend/internal/events"
	"nhblend/internal/wad"
)

var (
	ErrLiquidationIncentiveTooLow  = errors.New("ushmarket: liquidation incentive too low given the protocol seize share")
	ErrLiquidationIncentiveTooHigh = errors.New("ushmarket: liquidation incentive too high for the maximum collateral factor")
	ErrProtocolSeizeShareTooHigh   = errors.New("ushmarket: protocol seize share too high given the liquidation incentive")
	ErrAmountExceedsRevenue        = errors.New("ushmarket: amount exceeds revenue")
)

// Activate transitions the market to Active. Every precondition is checked
// up front: the USH facilitator role is asserted via the wired Minter (no
// separate HUSH minting-role check is made), market-observer registration is asserted by the caller (the
// controller wiring happens before Activate is called), and the borrow
// rate/discount model must already be configured.
func (m *Market) Activate(isUSHMarketObserver bool) error {
	if m.state == StateFinalized {
		return ErrFinalized
	}
	if !isUSHMarketObserver {
		return ErrNotAMarketObserver
	}
	if m.minter == nil || !m.minter.IsFacilitator(m.ID) {
		return ErrNotFacilitator
	}
	if m.borrowRate == nil {
		return ErrBorrowRateUndefined
	}
	if m.discountTable == nil {
		return ErrDiscountModelUndefined
	}
	m.state = StateActive
	return nil
}

// Deactivate is the first step of the deprecation path the controller's
// IsDeprecated criteria check against (CF=0, borrow paused, reserve_factor=1
// — the last of which this market satisfies unconditionally).
func (m *Market) Deactivate() { m.state = StateInactive }

// Finalize marks a deprecated, borrower-free market Finalized so the
// controller can clear it as a USH market observer.
func (m *Market) Finalize() error {
	deprecated, _ := m.IsDeprecated()
	if !deprecated {
		return ErrNotDeprecated
	}
	if len(m.marketBorrowers) != 0 {
		return ErrHasBorrowers
	}
	m.state = StateFinalized
	return nil
}

// SetBorrowAPR converts an annual rate to per-second and applies the
// change-control rules: a first-time rate must not exceed
// MaxInitialBorrowRate; later changes must move by no more than
// MaxBorrowRateChangeBps relative to the old rate, and increases must wait
// BorrowRateDelay seconds since the last increase.
func (m *Market) SetBorrowAPR(borrowAPR *big.Int) error {
	borrowRate := new(big.Int).Quo(borrowAPR, big.NewInt(SecondsPerYear))
	now := m.now()

	if !wad.IsPositive(borrowRate) {
		return ErrBorrowRateIsZero
	}

	if m.borrowRate == nil {
		if borrowRate.Cmp(MaxInitialBorrowRate) > 0 {
			return ErrInitialBorrowRateTooHigh
		}
	} else {
		if borrowRate.Cmp(m.borrowRate) == 0 {
			return ErrBorrowRateUnchanged
		}
		if !isBorrowRateChangeAllowed(m.borrowRate, borrowRate) {
			return ErrBorrowRateChangeTooLarge
		}
		if borrowRate.Cmp(m.borrowRate) > 0 && now-m.lastBorrowRateUpdate < BorrowRateDelay {
			return ErrBorrowRateIncreaseTooSoon
		}
	}

	if err := m.AccrueInterest(); err != nil {
		return err
	}
	if err := m.requireFresh(); err != nil {
		return err
	}

	if m.borrowRate == nil || borrowRate.Cmp(m.borrowRate) > 0 {
		m.lastBorrowRateUpdate = now
	}
	m.borrowRate = borrowRate

	m.emit(events.New(events.KindInterestAccrued, m.ID, "").WithAmount("borrow_rate", borrowRate))
	return nil
}

// isBorrowRateChangeAllowed bounds |Δr| to MaxBorrowRateChangeBps of the old
// rate.
func isBorrowRateChangeAllowed(from, to *big.Int) bool {
	maxChange := wad.BpsOf(from, MaxBorrowRateChangeBps)
	delta := new(big.Int).Sub(to, from)
	delta.Abs(delta)
	return delta.Cmp(maxChange) <= 0
}

// SetStakeFactor updates the portion of new reserves routed to staking.
func (m *Market) SetStakeFactor(stakeFactor *big.Int) error {
	if stakeFactor.Cmp(wad.WAD) > 0 {
		return ErrStakeFactorTooHigh
	}
	if err := m.AccrueInterest(); err != nil {
		return err
	}
	if err := m.requireFresh(); err != nil {
		return err
	}
	m.stakeFactor = wad.Clone(stakeFactor)
	return nil
}

// SetCloseFactor updates the liquidation close factor.
func (m *Market) SetCloseFactor(closeFactor *big.Int) error {
	if closeFactor.Cmp(MinCloseFactor) < 0 {
		return ErrCloseFactorTooLow
	}
	if closeFactor.Cmp(wad.WAD) > 0 {
		return ErrCloseFactorTooHigh
	}
	m.closeFactor = wad.Clone(closeFactor)
	return nil
}

// SetLiquidationIncentive updates the liquidation incentive, bounded so it
// never yields liquidator losses net of the protocol seize share and never
// removes the Risky region at maxLTV.
func (m *Market) SetLiquidationIncentive(liquidationIncentive, maxLTV *big.Int) error {
	lhs := new(big.Int).Mul(liquidationIncentive, wad.SafeSub(wad.WAD, m.protocolSeizeShare))
	rhs := new(big.Int).Mul(MinLiquidationIncentive, wad.WAD)
	if lhs.Cmp(rhs) < 0 {
		return ErrLiquidationIncentiveTooLow
	}
	upper := new(big.Int).Mul(liquidationIncentive, maxLTV)
	bound := new(big.Int).Mul(wad.WAD, wad.WAD)
	if upper.Cmp(bound) >= 0 {
		return ErrLiquidationIncentiveTooHigh
	}
	m.liquidationIncentive = wad.Clone(liquidationIncentive)
	return nil
}

// SetProtocolSeizeShare updates the protocol's cut of a seize, bounded so it
// never yields liquidator losses given the current liquidation incentive.
func (m *Market) SetProtocolSeizeShare(protocolSeizeShare *big.Int) error {
	lhs := new(big.Int).Mul(m.liquidationIncentive, wad.SafeSub(wad.WAD, protocolSeizeShare))
	rhs := new(big.Int).Mul(MinLiquidationIncentive, wad.WAD)
	if lhs.Cmp(rhs) < 0 {
		return ErrProtocolSeizeShareTooHigh
	}
	m.protocolSeizeShare = wad.Clone(protocolSeizeShare)
	return nil
}

// SetAccrualTimeThreshold updates the try-accrue delay.
func (m *Market) SetAccrualTimeThreshold(threshold int64) error {
	if threshold > MaxAccrualTimeThreshold {
		return ErrAccrualThresholdTooHigh
	}
	if err := m.AccrueInterest(); err != nil {
		return err
	}
	if err := m.requireFresh(); err != nil {
		return err
	}
	m.accrualTimeThreshold = threshold
	return nil
}

// ReduceReserves withdraws up to the current revenue balance, minting USH
// to destination. A nil amount withdraws the entire revenue balance.
func (m *Market) ReduceReserves(amount *big.Int, destination string) (*big.Int, error) {
	if err := m.AccrueInterest(); err != nil {
		return nil, err
	}
	if err := m.requireFresh(); err != nil {
		return nil, err
	}
	if amount == nil {
		amount = wad.Clone(m.revenue)
	}
	if !wad.IsPositive(amount) {
		return nil, ErrAmountMustBePositive
	}
	if amount.Cmp(m.revenue) > 0 {
		return nil, ErrAmountExceedsRevenue
	}

	m.totalReserves = new(big.Int).Sub(m.totalReserves, amount)
	m.revenue = new(big.Int).Sub(m.revenue, amount)

	if m.minter != nil {
		if err := m.minter.Mint(amount, destination); err != nil {
			return nil, err
		}
	}

	m.emit(events.New(events.KindReduceReserves, m.ID, destination).
		WithAmount("amount", amount).
		WithAmount("remaining_revenue", m.revenue))
	return amount, nil
}
