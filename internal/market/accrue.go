package market

import (
	"math/big"

	"nhblend/internal/events"
	"nhblend/internal/wad"
)

// AccrueInterest is idempotent for the same timestamp and runs a single
// Euler step: borrow interest compounds into total_borrows and the borrow
// index, with a reserve_factor fraction of the new interest routed to
// reserves and a stake_factor fraction of the reserves further routed to
// staking rewards.
func (m *Market) AccrueInterest() error {
	now := m.now()
	dt := now - m.accrualTimestamp
	if dt == 0 {
		return nil
	}

	cashPrev := wad.Clone(m.cash)
	borrowRate, _ := m.model.BorrowRate(m.totalBorrows, m.Liquidity())

	borrowRateDt := new(big.Int).Mul(borrowRate, big.NewInt(dt))
	deltaBorrows := wad.Mul(borrowRateDt, m.totalBorrows)
	m.totalBorrows = new(big.Int).Add(m.totalBorrows, deltaBorrows)

	deltaReserves := wad.Mul(m.reserveFactor, deltaBorrows)
	m.totalReserves = new(big.Int).Add(m.totalReserves, deltaReserves)

	deltaRewards := wad.Mul(m.stakeFactor, deltaReserves)
	m.stakingRewards = new(big.Int).Add(m.stakingRewards, deltaRewards)
	m.historicalStakingRewards = new(big.Int).Add(m.historicalStakingRewards, deltaRewards)

	deltaRevenue := new(big.Int).Sub(deltaReserves, deltaRewards)
	m.revenue = new(big.Int).Add(m.revenue, deltaRevenue)

	deltaIndex := wad.Mul(borrowRateDt, m.borrowIndex)
	m.borrowIndex = new(big.Int).Add(m.borrowIndex, deltaIndex)

	m.accrualTimestamp = now

	m.emit(events.New(events.KindInterestAccrued, m.ID, "").
		WithAmount("cash", cashPrev).
		WithAmount("delta_borrows", deltaBorrows).
		WithAmount("borrow_index", m.borrowIndex).
		WithAmount("total_borrows", m.totalBorrows))
	return nil
}

// TryAccrueInterest only accrues if accrual_time_threshold seconds have
// elapsed since the last accrual, avoiding a per-call Euler step on chatty
// read paths.
func (m *Market) TryAccrueInterest() error {
	if m.now()-m.accrualTimestamp >= m.accrualTimeThreshold {
		return m.AccrueInterest()
	}
	return nil
}

func (m *Market) requireFresh() error {
	if m.now() != m.accrualTimestamp {
		return ErrNotFresh
	}
	return nil
}
