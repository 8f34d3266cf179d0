package controller

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"nhblend/internal/wad"
)

type fakeMarket struct {
	underlyingID string
	owed         map[string]*big.Int
	fx           *big.Int
	deprecated   bool
	closeFactor  *big.Int
}

func (m *fakeMarket) UnderlyingID() string { return m.underlyingID }

func (m *fakeMarket) AccountSnapshot(account string) (*big.Int, *big.Int, error) {
	owed, ok := m.owed[account]
	if !ok {
		owed = big.NewInt(0)
	}
	return owed, m.fx, nil
}

func (m *fakeMarket) IsDeprecated() (bool, error) { return m.deprecated, nil }

func (m *fakeMarket) CloseFactor() (*big.Int, error) { return m.closeFactor, nil }

type fakeOracle struct {
	prices map[string]*big.Int
}

func (o *fakeOracle) PriceInNumeraire(underlyingID string) (*big.Int, error) {
	return o.prices[underlyingID], nil
}

func fixedClock(ts int64) func() int64 {
	return func() int64 { return ts }
}

func TestWhitelistRejectsDuplicate(t *testing.T) {
	c := New(&fakeOracle{}, "admin", "guardian", fixedClock(0))
	require.NoError(t, c.Whitelist("market-a", &fakeMarket{underlyingID: "TOKA", fx: wad.One(), closeFactor: wad.One()}))
	require.ErrorIs(t, c.Whitelist("market-a", &fakeMarket{}), ErrAlreadyWhitelisted)
}

func TestSetCollateralFactorsBothIncreaseAppliesImmediately(t *testing.T) {
	c := New(&fakeOracle{}, "admin", "guardian", fixedClock(1000))
	require.NoError(t, c.Whitelist("m", &fakeMarket{underlyingID: "TOKA", fx: wad.One(), closeFactor: wad.One()}))

	require.NoError(t, c.SetCollateralFactors("m", wad.FromInt64(0), wad.FromInt64(0)))
	require.NoError(t, c.SetCollateralFactors("m", wad.One(), wad.One()))

	cf, uf, err := c.CollateralFactors("m")
	require.NoError(t, err)
	require.Equal(t, wad.WAD.String(), cf.String())
	require.Equal(t, wad.WAD.String(), uf.String())
}

func TestSetCollateralFactorsDecreaseDefersViaTimelock(t *testing.T) {
	now := int64(1000)
	c := New(&fakeOracle{}, "admin", "guardian", fixedClock(now))
	require.NoError(t, c.Whitelist("m", &fakeMarket{underlyingID: "TOKA", fx: wad.One(), closeFactor: wad.One()}))

	require.NoError(t, c.SetCollateralFactors("m", wad.One(), wad.One()))

	decreasedCF := new(big.Int).Sub(wad.WAD, MaxCollateralFactorDecrease) // 0.9 WAD, the largest allowed 0.1 WAD step
	require.NoError(t, c.SetCollateralFactors("m", decreasedCF, decreasedCF))

	cf, uf, err := c.CollateralFactors("m")
	require.NoError(t, err)
	require.Equal(t, wad.One().String(), cf.String(), "neither CF nor UF should move before the timelock elapses")
	require.Equal(t, wad.One().String(), uf.String())

	risk := c.risk["m"]
	require.NotNil(t, risk.pending)
	require.Equal(t, now+CollateralFactorTimelock, risk.pending.applyAtTS)
}

func TestSetCollateralFactorsRejectsOversizedDecrease(t *testing.T) {
	c := New(&fakeOracle{}, "admin", "guardian", fixedClock(0))
	require.NoError(t, c.Whitelist("m", &fakeMarket{underlyingID: "TOKA", fx: wad.One(), closeFactor: wad.One()}))
	require.NoError(t, c.SetCollateralFactors("m", wad.One(), wad.One()))

	zero := big.NewInt(0)
	require.ErrorIs(t, c.SetCollateralFactors("m", zero, zero), ErrCollateralFactorDecreaseTooLarge)
}

func TestPendingCollateralFactorsPromoteLazily(t *testing.T) {
	now := int64(1000)
	clock := now
	c := New(&fakeOracle{}, "admin", "guardian", func() int64 { return clock })
	require.NoError(t, c.Whitelist("m", &fakeMarket{underlyingID: "TOKA", fx: wad.One(), closeFactor: wad.One()}))
	require.NoError(t, c.SetCollateralFactors("m", wad.One(), wad.One()))

	decreasedCF := new(big.Int).Sub(wad.WAD, MaxCollateralFactorDecrease)
	require.NoError(t, c.SetCollateralFactors("m", decreasedCF, decreasedCF))

	clock = now + CollateralFactorTimelock + 1
	cf, _, err := c.CollateralFactors("m")
	require.NoError(t, err)
	require.Equal(t, decreasedCF.String(), cf.String())
}

func TestSimulateRiskProfileSolventWhenOvercollateralized(t *testing.T) {
	c := New(&fakeOracle{prices: map[string]*big.Int{"TOKA": wad.One()}}, "admin", "guardian", fixedClock(0))
	market := &fakeMarket{underlyingID: "TOKA", fx: wad.One(), closeFactor: wad.One(), owed: map[string]*big.Int{}}
	require.NoError(t, c.Whitelist("m", market))
	require.NoError(t, c.SetCollateralFactors("m", wad.One(), wad.One()))
	require.NoError(t, c.SetAccountCollateralTokens("m", "alice", wad.FromInt64(100)))

	profile, err := c.SimulateRiskProfile("alice", "", big.NewInt(0), big.NewInt(0), false)
	require.NoError(t, err)
	require.True(t, profile.Solvent)
}

func TestSimulateRiskProfileLazySkipsNonBorrowers(t *testing.T) {
	c := New(&fakeOracle{prices: map[string]*big.Int{"TOKA": wad.One()}}, "admin", "guardian", fixedClock(0))
	market := &fakeMarket{underlyingID: "TOKA", fx: wad.One(), closeFactor: wad.One(), owed: map[string]*big.Int{}}
	require.NoError(t, c.Whitelist("m", market))
	require.NoError(t, c.SetAccountCollateralTokens("m", "alice", wad.FromInt64(100)))

	profile, err := c.SimulateRiskProfile("alice", "", big.NewInt(0), big.NewInt(0), true)
	require.NoError(t, err)
	require.True(t, profile.Solvent)
	require.Zero(t, profile.Liquidity.Sign())
}

func TestSimulateRiskProfileDetectsShortfall(t *testing.T) {
	c := New(&fakeOracle{prices: map[string]*big.Int{"TOKA": wad.One()}}, "admin", "guardian", fixedClock(0))
	market := &fakeMarket{underlyingID: "TOKA", fx: wad.One(), closeFactor: wad.One(), owed: map[string]*big.Int{"alice": wad.FromInt64(1000)}}
	require.NoError(t, c.Whitelist("m", market))
	require.NoError(t, c.SetCollateralFactors("m", wad.One(), wad.One()))
	require.NoError(t, c.SetAccountCollateralTokens("m", "alice", wad.FromInt64(10)))

	profile, err := c.SimulateRiskProfile("alice", "", big.NewInt(0), big.NewInt(0), false)
	require.NoError(t, err)
	require.False(t, profile.Solvent)
	require.True(t, wad.IsPositive(profile.Shortfall))
}

func TestMaxMarketsPerAccountEnforced(t *testing.T) {
	c := New(&fakeOracle{}, "admin", "guardian", fixedClock(0))
	for i := 0; i < MaxMarketsPerAccount; i++ {
		id := string(rune('a' + i))
		require.NoError(t, c.Whitelist(id, &fakeMarket{underlyingID: id, fx: wad.One(), closeFactor: wad.One()}))
		require.NoError(t, c.SetAccountCollateralTokens(id, "alice", wad.FromInt64(1)))
	}
	require.NoError(t, c.Whitelist("overflow", &fakeMarket{underlyingID: "overflow", fx: wad.One(), closeFactor: wad.One()}))
	require.ErrorIs(t, c.SetAccountCollateralTokens("overflow", "alice", wad.FromInt64(1)), ErrTooManyMarkets)
}

func TestAccountExitsMarketWhenEmptied(t *testing.T) {
	c := New(&fakeOracle{}, "admin", "guardian", fixedClock(0))
	require.NoError(t, c.Whitelist("m", &fakeMarket{underlyingID: "TOKA", fx: wad.One(), closeFactor: wad.One(), owed: map[string]*big.Int{}}))
	require.NoError(t, c.SetAccountCollateralTokens("m", "alice", wad.FromInt64(10)))
	require.Len(t, c.AccountMarkets("alice"), 1)

	require.NoError(t, c.SetAccountCollateralTokens("m", "alice", big.NewInt(0)))
	require.Len(t, c.AccountMarkets("alice"), 0)
}

func TestSeizeAllowedRejectsWhenGloballyPaused(t *testing.T) {
	c := New(&fakeOracle{}, "admin", "guardian", fixedClock(0))
	require.NoError(t, c.Whitelist("collat", &fakeMarket{underlyingID: "A", fx: wad.One(), closeFactor: wad.One()}))
	require.NoError(t, c.Whitelist("borrow", &fakeMarket{underlyingID: "B", fx: wad.One(), closeFactor: wad.One()}))
	c.SetGlobalSeizePaused(true)

	require.ErrorIs(t, c.SeizeAllowed("collat", "borrow", "alice"), ErrGlobalSeizePaused)
}

func TestLiquidateBorrowAllowedDeprecatedMarketAllowsFullRepay(t *testing.T) {
	c := New(&fakeOracle{}, "admin", "guardian", fixedClock(0))
	require.NoError(t, c.Whitelist("borrow", &fakeMarket{underlyingID: "B", fx: wad.One(), closeFactor: wad.One(), deprecated: true}))
	require.NoError(t, c.Whitelist("collat", &fakeMarket{underlyingID: "A", fx: wad.One(), closeFactor: wad.One()}))

	require.NoError(t, c.LiquidateBorrowAllowed("borrow", "collat", wad.FromInt64(100), wad.FromInt64(100)))
	require.ErrorIs(t, c.LiquidateBorrowAllowed("borrow", "collat", wad.FromInt64(101), wad.FromInt64(100)), ErrRepaymentTooLarge)
}
