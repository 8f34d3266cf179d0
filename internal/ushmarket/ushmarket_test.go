package ushmarket

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"nhblend/internal/wad"
)

type fakeController struct {
	collateral map[string]*big.Int
}

func newFakeController() *fakeController { return &fakeController{collateral: map[string]*big.Int{}} }

func (f *fakeController) MintAllowed(marketID string, amount, liquidity *big.Int) error { return nil }
func (f *fakeController) BorrowAllowed(marketID, borrower string, amount, totalBorrows *big.Int, callerIsMarket bool) error {
	return nil
}
func (f *fakeController) RepayBorrowAllowed(marketID, borrower string) error { return nil }
func (f *fakeController) LiquidateBorrowAllowed(borrowMarketID, collateralMarketID string, amount, currentBorrow *big.Int) error {
	return nil
}
func (f *fakeController) SeizeAllowed(collateralMarketID, borrowMarketID, borrower string) error {
	return nil
}
func (f *fakeController) AccountCollateralTokens(marketID, account string) (*big.Int, error) {
	if v, ok := f.collateral[account]; ok {
		return v, nil
	}
	return wad.Zero(), nil
}
func (f *fakeController) SetAccountCollateralTokens(marketID, account string, tokens *big.Int) error {
	f.collateral[account] = tokens
	return nil
}
func (f *fakeController) TotalCollateralTokens(marketID string) (*big.Int, error) { return wad.Zero(), nil }
func (f *fakeController) TryExitMarket(marketID, account string) error           { return nil }

type fakeMinter struct {
	minted, burned *big.Int
	facilitator    bool
}

func newFakeMinter() *fakeMinter { return &fakeMinter{minted: wad.Zero(), burned: wad.Zero(), facilitator: true} }

func (f *fakeMinter) Mint(amount *big.Int, destination string) error {
	f.minted = new(big.Int).Add(f.minted, amount)
	return nil
}
func (f *fakeMinter) Burn(amount *big.Int) error {
	f.burned = new(big.Int).Add(f.burned, amount)
	return nil
}
func (f *fakeMinter) IsFacilitator(marketID string) bool { return f.facilitator }

type fakeOracle struct{ prices map[string]*big.Int }

func (o *fakeOracle) PriceInNumeraire(underlyingID string) (*big.Int, error) {
	return o.prices[underlyingID], nil
}

type fakeCollateralMarket struct {
	fx *big.Int
}

func (f *fakeCollateralMarket) Seize(liquidator, borrower string, tokens *big.Int) error { return nil }
func (f *fakeCollateralMarket) UnderlyingID() string                                    { return "TOKA" }
func (f *fakeCollateralMarket) ExchangeRate() *big.Int                                  { return f.fx }

func newTestMarket(t *testing.T, now *int64) (*Market, *fakeController, *fakeMinter) {
	t.Helper()
	cfg := Config{
		ID:                   "ush",
		UnderlyingID:         "USH",
		StakeFactor:          new(big.Int).Quo(wad.WAD, big.NewInt(2)), // 50%
		CloseFactor:          MinCloseFactor,
		LiquidationIncentive: MinLiquidationIncentive,
		ProtocolSeizeShare:   wad.Zero(),
		AccrualTimeThreshold: 3600,
		EligibleAsCollateral: true,
	}
	m := New(cfg, func() int64 { return *now })

	ctl := newFakeController()
	m.SetController(ctl)
	mn := newFakeMinter()
	m.SetMinter(mn)
	m.state = StateActive

	require.NoError(t, m.SetBorrowAPR(wad.FromInt64(1))) // 100% APR, at the max-initial-rate boundary
	return m, ctl, mn
}

func TestSetBorrowAPRRejectsZero(t *testing.T) {
	now := int64(0)
	m, _, _ := newTestMarketNoBorrowRate(t, &now)
	err := m.SetBorrowAPR(big.NewInt(0))
	require.ErrorIs(t, err, ErrBorrowRateIsZero)
}

func TestSetBorrowAPRAcceptsValidInitialRate(t *testing.T) {
	now := int64(0)
	m, _, _ := newTestMarketNoBorrowRate(t, &now)
	err := m.SetBorrowAPR(wad.FromInt64(1)) // 1 WAD APR -> exactly the max initial rate
	require.NoError(t, err)
	require.Equal(t, int64(0), m.lastBorrowRateUpdate)
}

func newTestMarketNoBorrowRate(t *testing.T, now *int64) (*Market, *fakeController, *fakeMinter) {
	t.Helper()
	cfg := Config{
		ID:                   "ush",
		UnderlyingID:         "USH",
		StakeFactor:          new(big.Int).Quo(wad.WAD, big.NewInt(2)),
		CloseFactor:          MinCloseFactor,
		LiquidationIncentive: MinLiquidationIncentive,
		ProtocolSeizeShare:   wad.Zero(),
		AccrualTimeThreshold: 3600,
		EligibleAsCollateral: true,
	}
	m := New(cfg, func() int64 { return *now })
	ctl := newFakeController()
	m.SetController(ctl)
	mn := newFakeMinter()
	m.SetMinter(mn)
	m.state = StateActive
	return m, ctl, mn
}

func TestMintRedeemRoundTrip(t *testing.T) {
	now := int64(0)
	m, _, mn := newTestMarket(t, &now)

	tokens, err := m.Mint("alice", "", wad.FromInt64(100))
	require.NoError(t, err)
	require.Equal(t, m.hushFromUsh(wad.FromInt64(100)).String(), tokens.String())
	require.Equal(t, wad.FromInt64(100).String(), mn.burned.String())

	ushAmount, err := m.RedeemByTokens("alice", tokens)
	require.NoError(t, err)
	require.Equal(t, wad.FromInt64(100).String(), ushAmount.String())
	require.Zero(t, m.totalSupply.Sign())
	require.Equal(t, wad.FromInt64(100).String(), mn.minted.String())
}

func TestBorrowAndRepayFull(t *testing.T) {
	now := int64(0)
	m, _, mn := newTestMarket(t, &now)

	require.NoError(t, m.Borrow("bob", wad.FromInt64(100)))
	require.Equal(t, wad.FromInt64(100).String(), mn.minted.String())

	owed, _, err := m.AccountSnapshot("bob")
	require.NoError(t, err)
	require.Equal(t, wad.FromInt64(100).String(), owed.String())

	repaid, leftover, err := m.RepayBorrow("bob", "bob", wad.FromInt64(150))
	require.NoError(t, err)
	require.Equal(t, wad.FromInt64(100).String(), repaid.String())
	require.Equal(t, wad.FromInt64(50).String(), leftover.String())
	require.Equal(t, wad.FromInt64(100).String(), mn.burned.String())

	owed, _, err = m.AccountSnapshot("bob")
	require.NoError(t, err)
	require.Zero(t, owed.Sign())
}

func TestAccrueInterestGrowsBorrowsAndEffectiveBorrows(t *testing.T) {
	now := int64(0)
	m, _, _ := newTestMarket(t, &now)
	require.NoError(t, m.Borrow("bob", wad.FromInt64(1000)))

	now = 1000
	require.NoError(t, m.AccrueInterest())

	require.True(t, m.totalBorrows.Cmp(wad.FromInt64(1000)) > 0)
	require.True(t, m.effectiveBorrows.Cmp(wad.FromInt64(1000)) > 0)
	require.True(t, wad.IsPositive(m.totalReserves))
	require.True(t, wad.IsPositive(m.stakingRewards))
	require.True(t, m.borrowIndex.Cmp(wad.One()) > 0)
}

func TestLiquidateBorrowSeizesCrossMarketCollateral(t *testing.T) {
	now := int64(0)
	m, _, _ := newTestMarket(t, &now)
	m.SetOracle(&fakeOracle{prices: map[string]*big.Int{"USH": wad.One(), "TOKA": wad.One()}})

	require.NoError(t, m.Borrow("bob", wad.FromInt64(200)))

	collateral := &fakeCollateralMarket{fx: wad.One()}
	seizedToLiquidator, totalSeized, err := m.LiquidateBorrow("alice", "bob", wad.FromInt64(100), "toka-market", collateral)
	require.NoError(t, err)
	require.Equal(t, seizedToLiquidator.String(), totalSeized.String())
	require.True(t, wad.IsPositive(totalSeized))
}

func TestLiquidateBorrowRejectsSelfLiquidation(t *testing.T) {
	now := int64(0)
	m, _, _ := newTestMarket(t, &now)
	m.SetOracle(&fakeOracle{prices: map[string]*big.Int{"USH": wad.One()}})
	_, _, err := m.LiquidateBorrow("bob", "bob", wad.FromInt64(1), "toka-market", &fakeCollateralMarket{fx: wad.One()})
	require.ErrorIs(t, err, ErrCannotLiquidateSelf)
}

func TestActivateRequiresFacilitatorAndBorrowRate(t *testing.T) {
	now := int64(0)
	cfg := Config{
		ID:                   "ush",
		UnderlyingID:         "USH",
		StakeFactor:          wad.Zero(),
		CloseFactor:          MinCloseFactor,
		LiquidationIncentive: MinLiquidationIncentive,
		ProtocolSeizeShare:   wad.Zero(),
		AccrualTimeThreshold: 3600,
	}
	m := New(cfg, func() int64 { return now })
	mn := newFakeMinter()
	mn.facilitator = false
	m.SetMinter(mn)

	err := m.Activate(true)
	require.ErrorIs(t, err, ErrNotFacilitator)

	mn.facilitator = true
	err = m.Activate(true)
	require.ErrorIs(t, err, ErrBorrowRateUndefined)

	require.NoError(t, m.SetBorrowAPR(wad.FromInt64(1)))
	require.NoError(t, m.Activate(true))
	require.True(t, m.IsActive())
}

func TestFinalizeRejectsWhileBorrowersRemain(t *testing.T) {
	now := int64(0)
	m, _, _ := newTestMarket(t, &now)
	require.NoError(t, m.Borrow("bob", wad.FromInt64(10)))
	m.Deactivate()

	err := m.Finalize()
	require.ErrorIs(t, err, ErrHasBorrowers)

	_, _, err = m.RepayBorrow("bob", "bob", wad.FromInt64(10))
	require.NoError(t, err)

	require.NoError(t, m.Finalize())
	require.True(t, m.IsFinalized())
}
