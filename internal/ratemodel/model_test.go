package ratemodel

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"nhblend/internal/wad"
)

func mustModel(t *testing.T, r0, m1, m2, uOpt, rMax int64) *Model {
	t.Helper()
	m, err := NewModel(big.NewInt(r0), big.NewInt(m1), big.NewInt(m2), big.NewInt(uOpt), big.NewInt(rMax))
	require.NoError(t, err)
	return m
}

func TestNewModelRejectsInvalidParameters(t *testing.T) {
	_, err := NewModel(big.NewInt(1), big.NewInt(1), big.NewInt(1), wad.WAD, big.NewInt(10))
	require.ErrorIs(t, err, ErrInvalidParameters, "u_opt must be < WAD")

	_, err = NewModel(big.NewInt(1), big.NewInt(2), big.NewInt(1), big.NewInt(1), big.NewInt(10))
	require.ErrorIs(t, err, ErrInvalidParameters, "m2 must be >= m1")

	_, err = NewModel(big.NewInt(10), big.NewInt(1), big.NewInt(2), big.NewInt(1), big.NewInt(5))
	require.ErrorIs(t, err, ErrInvalidParameters, "r_max must exceed r0")
}

func TestBorrowRateZeroBorrows(t *testing.T) {
	m := mustModel(t, 1e9, 2e9, 5e9, 8e17, 1e11)
	rate, saturated := m.BorrowRate(big.NewInt(0), big.NewInt(1000))
	require.False(t, saturated)
	require.Equal(t, big.NewInt(1e9), rate)
}

func TestBorrowRateZeroLiquiditySaturates(t *testing.T) {
	m := mustModel(t, 1e9, 2e9, 5e9, 8e17, 1e11)
	rate, saturated := m.BorrowRate(big.NewInt(100), big.NewInt(0))
	require.True(t, saturated)
	require.Equal(t, big.NewInt(1e11), rate)
}

func TestBorrowRateBelowKink(t *testing.T) {
	m := mustModel(t, 1e9, 2e9, 5e9, 8e17, 1e11)
	// u = 0.5 WAD -> rate = r0 + m1*u/WAD
	rate, saturated := m.BorrowRate(big.NewInt(500), big.NewInt(1000))
	require.False(t, saturated)
	expected := new(big.Int).Add(big.NewInt(1e9), wad.Mul(big.NewInt(2e9), big.NewInt(5e17)))
	require.Equal(t, expected, rate)
}

func TestBorrowRateAboveKink(t *testing.T) {
	m := mustModel(t, 1e9, 2e9, 5e9, 8e17, 1e11)
	rate, saturated := m.BorrowRate(big.NewInt(900), big.NewInt(1000))
	require.False(t, saturated)
	require.True(t, rate.Cmp(big.NewInt(1e9)) > 0)
}

func TestSupplyRateZeroAtZeroBorrows(t *testing.T) {
	m := mustModel(t, 1e9, 2e9, 5e9, 8e17, 1e11)
	rate := m.SupplyRate(big.NewInt(0), big.NewInt(1000), big.NewInt(1e17))
	require.Equal(t, big.NewInt(0), rate)
}

func TestUtilisationSentinelAtZeroLiquidity(t *testing.T) {
	m := mustModel(t, 1e9, 2e9, 5e9, 8e17, 1e11)
	u := m.Utilisation(big.NewInt(1), big.NewInt(0))
	require.True(t, u.Sign() > 0)
}
