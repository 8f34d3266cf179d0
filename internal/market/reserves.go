package market

import (
	"errors"
	"math/big"

	"nhblend/internal/events"
	"nhblend/internal/wad"
)

var ErrAmountExceedsRevenue = errors.New("market: amount exceeds the withdrawable revenue balance")

// ReserveSink receives the underlying amount withdrawn by ReduceReserves.
// Unlike the USH market (which mints a synthetic token), a base money
// market pays out of its own cash balance, so the sink only needs to record
// where that cash landed.
type ReserveSink interface {
	CreditUnderlying(underlyingID, destination string, amount *big.Int)
}

// ReduceReserves withdraws up to the current revenue balance (total
// reserves net of the stake_factor share already routed to staking
// rewards) from cash, paying destination through sink. A nil amount
// withdraws the entire revenue balance.
func (m *Market) ReduceReserves(amount *big.Int, destination string, sink ReserveSink) (*big.Int, error) {
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
	if amount.Cmp(m.cash) > 0 {
		return nil, ErrInsufficientCash
	}

	m.totalReserves = new(big.Int).Sub(m.totalReserves, amount)
	m.revenue = new(big.Int).Sub(m.revenue, amount)
	m.cash = new(big.Int).Sub(m.cash, amount)

	if sink != nil {
		sink.CreditUnderlying(m.underlyingID, destination, amount)
	}

	m.emit(events.New(events.KindReduceReserves, m.ID, destination).
		WithAmount("amount", amount).
		WithAmount("remaining_revenue", m.revenue))
	return amount, nil
}

// Revenue returns the current withdrawable reserve balance.
func (m *Market) Revenue() *big.Int { return wad.Clone(m.revenue) }
