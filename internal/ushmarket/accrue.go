package ushmarket

import (
	"math/big"

	"nhblend/internal/events"
	"nhblend/internal/wad"
)

// AccrueInterest is idempotent for the same timestamp. Unlike C3's curve,
// the USH market's borrow rate is an admin-set constant, so accrual only
// needs to scale it by elapsed time and the aggregate effective_borrows
// (the discount-weighted debt total).
func (m *Market) AccrueInterest() error {
	now := m.now()
	dt := now - m.accrualTimestamp
	if dt == 0 {
		return nil
	}

	borrowRateDt := new(big.Int).Mul(m.borrowRate, big.NewInt(dt))
	deltaBorrows := wad.Mul(borrowRateDt, m.effectiveBorrows)

	m.totalBorrows = new(big.Int).Add(m.totalBorrows, deltaBorrows)
	m.effectiveBorrows = new(big.Int).Add(m.effectiveBorrows, deltaBorrows)

	indexDelta := wad.CeilDiv(new(big.Int).Mul(m.borrowIndex, borrowRateDt), wad.WAD)
	m.borrowIndex = new(big.Int).Add(m.borrowIndex, indexDelta)

	// all new interest goes to reserves; reserves split stake_factor/revenue
	m.totalReserves = new(big.Int).Add(m.totalReserves, deltaBorrows)

	deltaRewards := wad.Mul(m.stakeFactor, deltaBorrows)
	deltaRevenue := new(big.Int).Sub(deltaBorrows, deltaRewards)
	m.revenue = new(big.Int).Add(m.revenue, deltaRevenue)
	m.stakingRewards = new(big.Int).Add(m.stakingRewards, deltaRewards)
	m.historicalStakingRewards = new(big.Int).Add(m.historicalStakingRewards, deltaRewards)

	m.accrualTimestamp = now

	m.emit(events.New(events.KindInterestAccrued, m.ID, "").
		WithAmount("delta_borrows", deltaBorrows).
		WithAmount("borrow_index", m.borrowIndex).
		WithAmount("total_borrows", m.totalBorrows).
		WithAmount("effective_borrows", m.effectiveBorrows))
	return nil
}

// TryAccrueInterest only accrues once accrual_time_threshold seconds have
// elapsed since the last accrual.
func (m *Market) TryAccrueInterest() error {
	if m.now()-m.accrualTimestamp >= m.accrualTimeThreshold {
		return m.AccrueInterest()
	}
	return nil
}

func (m *Market) tryRemoveMarketBorrower(account string) {
	snap, ok := m.snapshots[account]
	if !ok || snap.BorrowAmount == nil || snap.BorrowAmount.Sign() == 0 {
		delete(m.marketBorrowers, account)
	}
}
