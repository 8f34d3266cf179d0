package market

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"nhblend/internal/ratemodel"
	"nhblend/internal/wad"
)

type fakeController struct {
	collateral map[string]*big.Int
}

func newFakeController() *fakeController { return &fakeController{collateral: map[string]*big.Int{}} }

func (f *fakeController) MintAllowed(marketID string, amount, liquidity *big.Int) error { return nil }
func (f *fakeController) RedeemAllowed(marketID, redeemer string, tokens *big.Int) error { return nil }
func (f *fakeController) BorrowAllowed(marketID, borrower string, amount, totalBorrows *big.Int, callerIsMarket bool) error {
	return nil
}
func (f *fakeController) RepayBorrowAllowed(marketID, borrower string) error { return nil }
func (f *fakeController) LiquidateBorrowAllowed(borrowMarketID, collateralMarketID string, amount, currentBorrow *big.Int) error {
	return nil
}
func (f *fakeController) LiquidateBorrowRiskCheck(borrower string) error { return nil }
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

type fakeOracle struct{ prices map[string]*big.Int }

func (o *fakeOracle) PriceInNumeraire(underlyingID string) (*big.Int, error) {
	return o.prices[underlyingID], nil
}

func newTestMarket(t *testing.T, now *int64) (*Market, *fakeController) {
	t.Helper()
	model, err := ratemodel.NewModel(wad.Zero(), wad.FromInt64(1), wad.FromInt64(2), new(big.Int).Quo(wad.WAD, big.NewInt(2)), wad.FromInt64(5))
	require.NoError(t, err)

	cfg := Config{
		ID:                   "m1",
		UnderlyingID:         "TOKA",
		InitialExchangeRate:  wad.One(),
		ReserveFactor:        new(big.Int).Quo(wad.WAD, big.NewInt(10)), // 10%
		StakeFactor:          new(big.Int).Quo(wad.WAD, big.NewInt(2)), // 50%
		CloseFactor:          new(big.Int).Quo(wad.WAD, big.NewInt(2)),
		LiquidationIncentive: wad.FromInt64(1), // 1.0x, no incentive premium for exact-math assertions
		ProtocolSeizeShare:   wad.Zero(),
		AccrualTimeThreshold: 3600,
	}
	mkt, err := New(cfg, model, func() int64 { return *now })
	require.NoError(t, err)

	ctl := newFakeController()
	mkt.SetController(ctl)
	mkt.Activate()
	return mkt, ctl
}

func TestAccrueInterestNoopWhenSameTimestamp(t *testing.T) {
	now := int64(100)
	m, _ := newTestMarket(t, &now)
	require.NoError(t, m.AccrueInterest())
	idx := new(big.Int).Set(m.borrowIndex)
	require.NoError(t, m.AccrueInterest())
	require.Equal(t, idx.String(), m.borrowIndex.String())
}

func TestTryAccrueInterestRespectsThreshold(t *testing.T) {
	now := int64(0)
	m, _ := newTestMarket(t, &now)
	_, err := m.Mint("alice", "", wad.FromInt64(1000))
	require.NoError(t, err)
	require.NoError(t, m.Borrow("alice", wad.FromInt64(100)))

	now = 100 // below threshold
	require.NoError(t, m.TryAccrueInterest())
	require.Equal(t, int64(0), m.accrualTimestamp)

	now = 4000 // above threshold
	require.NoError(t, m.TryAccrueInterest())
	require.Equal(t, int64(4000), m.accrualTimestamp)
}

func TestMintRedeemRoundTrip(t *testing.T) {
	now := int64(0)
	m, _ := newTestMarket(t, &now)

	tokens, err := m.Mint("alice", "", wad.FromInt64(100))
	require.NoError(t, err)
	require.Equal(t, wad.FromInt64(100).String(), tokens.String())

	underlying, err := m.RedeemByTokens("alice", tokens)
	require.NoError(t, err)
	require.Equal(t, wad.FromInt64(100).String(), underlying.String())
	require.Zero(t, m.totalSupply.Sign())
	require.Zero(t, m.cash.Sign())
}

func TestRedeemByUnderlyingRefundsUnusedTokens(t *testing.T) {
	now := int64(0)
	m, _ := newTestMarket(t, &now)
	tokens, err := m.Mint("alice", "", wad.FromInt64(100))
	require.NoError(t, err)

	used, refund, err := m.RedeemByUnderlying("alice", tokens, wad.FromInt64(40))
	require.NoError(t, err)
	wantUsed := new(big.Int).Add(wad.FromInt64(40), big.NewInt(1))
	require.Equal(t, wantUsed.String(), used.String())
	require.Equal(t, new(big.Int).Sub(wad.FromInt64(100), wantUsed).String(), refund.String())
}

func TestBorrowAndRepayFull(t *testing.T) {
	now := int64(0)
	m, _ := newTestMarket(t, &now)
	_, err := m.Mint("lp", "", wad.FromInt64(1000))
	require.NoError(t, err)

	require.NoError(t, m.Borrow("alice", wad.FromInt64(100)))
	owed, _, err := m.AccountSnapshot("alice")
	require.NoError(t, err)
	require.Equal(t, wad.FromInt64(100).String(), owed.String())

	repaid, leftover, err := m.RepayBorrow("alice", "alice", wad.FromInt64(150))
	require.NoError(t, err)
	require.Equal(t, wad.FromInt64(100).String(), repaid.String())
	require.Equal(t, wad.FromInt64(50).String(), leftover.String())

	owed, _, err = m.AccountSnapshot("alice")
	require.NoError(t, err)
	require.Zero(t, owed.Sign())
}

func TestAccrueInterestGrowsBorrowsAndReserves(t *testing.T) {
	now := int64(0)
	m, _ := newTestMarket(t, &now)
	_, err := m.Mint("lp", "", wad.FromInt64(1000))
	require.NoError(t, err)
	require.NoError(t, m.Borrow("alice", wad.FromInt64(500)))

	now = 1000
	require.NoError(t, m.AccrueInterest())

	require.True(t, m.totalBorrows.Cmp(wad.FromInt64(500)) > 0)
	require.True(t, wad.IsPositive(m.totalReserves))
	require.True(t, wad.IsPositive(m.stakingRewards))
	require.True(t, m.borrowIndex.Cmp(wad.One()) > 0)
}

func TestLiquidateBorrowSameMarketSeizesCollateral(t *testing.T) {
	now := int64(0)
	m, ctl := newTestMarket(t, &now)
	m.SetOracle(&fakeOracle{prices: map[string]*big.Int{"TOKA": wad.One()}})

	_, err := m.Mint("lp", "", wad.FromInt64(1000))
	require.NoError(t, err)
	require.NoError(t, m.Borrow("bob", wad.FromInt64(200)))
	require.NoError(t, ctl.SetAccountCollateralTokens("m1", "bob", wad.FromInt64(1000)))

	seizedToLiquidator, totalSeized, err := m.LiquidateBorrow("alice", "bob", wad.FromInt64(100), "m1", m)
	require.NoError(t, err)
	require.Equal(t, seizedToLiquidator.String(), totalSeized.String())
	require.True(t, wad.IsPositive(totalSeized))

	remaining, err := ctl.AccountCollateralTokens("m1", "bob")
	require.NoError(t, err)
	require.True(t, remaining.Cmp(wad.FromInt64(1000)) < 0)
}

func TestLiquidateBorrowRejectsSelfLiquidation(t *testing.T) {
	now := int64(0)
	m, _ := newTestMarket(t, &now)
	m.SetOracle(&fakeOracle{prices: map[string]*big.Int{"TOKA": wad.One()}})
	_, _, err := m.LiquidateBorrow("bob", "bob", wad.FromInt64(1), "m1", m)
	require.ErrorIs(t, err, ErrCannotLiquidateSelf)
}
