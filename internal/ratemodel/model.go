// Package ratemodel implements the pure two-slope interest rate curve (C1)
// consumed by the money market and USH market engines. Rates are expressed
// as a per-second WAD fraction rather than a per-block APR, since the
// protocol accrues continuously rather than per block.
package ratemodel

import (
	"errors"
	"math/big"

	"nhblend/internal/wad"
)

var (
	// ErrInvalidParameters is returned by NewModel when the construction-time
	// constraints on the curve are violated.
	ErrInvalidParameters = errors.New("ratemodel: invalid parameters")
)

// Model is a pure, parameterized two-slope interest-rate curve. All fields
// are per-second rates expressed in WAD.
type Model struct {
	baseRatePerSecond *big.Int // r0
	slope1            *big.Int // m1
	slope2            *big.Int // m2
	optimalUtil       *big.Int // u_opt
	maxRatePerSecond  *big.Int // r_max
}

// NewModel validates and constructs a Model. Constraints: u_opt < WAD;
// m2 > 0; m2 >= m1; r_max > r0; r_max >= rate(u=1).
func NewModel(r0, m1, m2, uOpt, rMax *big.Int) (*Model, error) {
	if r0 == nil || m1 == nil || m2 == nil || uOpt == nil || rMax == nil {
		return nil, ErrInvalidParameters
	}
	if uOpt.Cmp(wad.WAD) >= 0 {
		return nil, ErrInvalidParameters
	}
	if m2.Sign() <= 0 {
		return nil, ErrInvalidParameters
	}
	if m2.Cmp(m1) < 0 {
		return nil, ErrInvalidParameters
	}
	if rMax.Cmp(r0) <= 0 {
		return nil, ErrInvalidParameters
	}
	m := &Model{
		baseRatePerSecond: wad.Clone(r0),
		slope1:            wad.Clone(m1),
		slope2:            wad.Clone(m2),
		optimalUtil:       wad.Clone(uOpt),
		maxRatePerSecond:  wad.Clone(rMax),
	}
	rAtFull := m.rateAtUtilisation(wad.One())
	if rMax.Cmp(rAtFull) < 0 {
		return nil, ErrInvalidParameters
	}
	return m, nil
}

// sentinelUtilisationAtZeroLiquidity computes the placeholder utilisation
// reported when liquidity is zero:
// (m2-m1)*u_opt/m2 + (r_max-r0)*WAD/m2 + 2
func (m *Model) sentinelUtilisationAtZeroLiquidity() *big.Int {
	term1 := wad.MulDiv(new(big.Int).Sub(m.slope2, m.slope1), m.optimalUtil, m.slope2)
	term2 := wad.MulDiv(new(big.Int).Sub(m.maxRatePerSecond, m.baseRatePerSecond), wad.WAD, m.slope2)
	out := new(big.Int).Add(term1, term2)
	return out.Add(out, big.NewInt(2))
}

func (m *Model) rateAtUtilisation(u *big.Int) *big.Int {
	if u.Cmp(m.optimalUtil) <= 0 {
		return new(big.Int).Add(m.baseRatePerSecond, wad.Mul(m.slope1, u))
	}
	r1 := new(big.Int).Add(m.baseRatePerSecond, wad.Mul(m.slope1, m.optimalUtil))
	excess := new(big.Int).Sub(u, m.optimalUtil)
	r := new(big.Int).Add(r1, wad.Mul(m.slope2, excess))
	if r.Cmp(m.maxRatePerSecond) > 0 {
		return wad.Clone(m.maxRatePerSecond)
	}
	return r
}

// Utilisation returns borrows*WAD/liquidity, or the documented sentinel when
// liquidity is zero.
func (m *Model) Utilisation(borrows, liquidity *big.Int) *big.Int {
	if liquidity == nil || liquidity.Sign() == 0 {
		return m.sentinelUtilisationAtZeroLiquidity()
	}
	return wad.Div(borrows, liquidity)
}

// BorrowRate returns (rate, saturated) where saturated indicates the curve
// was clamped to r_max or liquidity was exhausted.
func (m *Model) BorrowRate(borrows, liquidity *big.Int) (*big.Int, bool) {
	if borrows == nil || borrows.Sign() == 0 {
		return wad.Clone(m.baseRatePerSecond), false
	}
	if liquidity == nil || liquidity.Sign() == 0 {
		return wad.Clone(m.maxRatePerSecond), true
	}
	u := wad.Div(borrows, liquidity)
	if u.Cmp(m.optimalUtil) <= 0 {
		return new(big.Int).Add(m.baseRatePerSecond, wad.Mul(m.slope1, u)), false
	}
	r1 := new(big.Int).Add(m.baseRatePerSecond, wad.Mul(m.slope1, m.optimalUtil))
	excess := new(big.Int).Sub(u, m.optimalUtil)
	r := new(big.Int).Add(r1, wad.Mul(m.slope2, excess))
	if r.Cmp(m.maxRatePerSecond) > 0 {
		return wad.Clone(m.maxRatePerSecond), true
	}
	return r, false
}

// SupplyRate returns u * borrow_rate * (1 - reserve_factor) / WAD^2.
func (m *Model) SupplyRate(borrows, liquidity, reserveFactorWAD *big.Int) *big.Int {
	borrowRate, _ := m.BorrowRate(borrows, liquidity)
	u := m.Utilisation(borrows, liquidity)
	oneMinusReserve := new(big.Int).Sub(wad.WAD, reserveFactorWAD)
	if oneMinusReserve.Sign() < 0 {
		oneMinusReserve = wad.Zero()
	}
	out := wad.Mul(u, borrowRate)
	return wad.Mul(out, oneMinusReserve)
}

// Rates returns (borrowRate, supplyRate, saturated) in one call, the
// combined query surface consumers of the interest-rate model use.
func (m *Model) Rates(borrows, liquidity, reserveFactorWAD *big.Int) (borrowRate, supplyRate *big.Int, saturated bool) {
	borrowRate, saturated = m.BorrowRate(borrows, liquidity)
	supplyRate = m.SupplyRate(borrows, liquidity, reserveFactorWAD)
	return
}

// Parameters exposes the model's construction-time parameters, mirroring a
// get_model_parameters-style query.
type Parameters struct {
	BaseRatePerSecond *big.Int
	Slope1            *big.Int
	Slope2            *big.Int
	OptimalUtil       *big.Int
	MaxRatePerSecond  *big.Int
}

// ModelParameters returns a defensive copy of the curve's parameters.
func (m *Model) ModelParameters() Parameters {
	return Parameters{
		BaseRatePerSecond: wad.Clone(m.baseRatePerSecond),
		Slope1:            wad.Clone(m.slope1),
		Slope2:            wad.Clone(m.slope2),
		OptimalUtil:       wad.Clone(m.optimalUtil),
		MaxRatePerSecond:  wad.Clone(m.maxRatePerSecond),
	}
}
