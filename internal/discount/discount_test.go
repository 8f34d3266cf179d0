package discount

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"nhblend/internal/wad"
)

type fakeCollateral struct {
	tokens map[string]*big.Int
	fx     map[string]*big.Int
	uf     map[string]*big.Int
}

func (f *fakeCollateral) AccountCollateralTokens(market, borrower string) (*big.Int, error) {
	if v, ok := f.tokens[market]; ok {
		return v, nil
	}
	return wad.Zero(), nil
}

func (f *fakeCollateral) ExchangeRate(market string, strategy FXStrategy) (*big.Int, error) {
	return f.fx[market], nil
}

func (f *fakeCollateral) USHBorrowerCollateralFactor(market string) (*big.Int, error) {
	return f.uf[market], nil
}

type fakePrices struct {
	prices map[string]*big.Int
}

func (f *fakePrices) PriceInNumeraire(underlyingID string) (*big.Int, error) {
	return f.prices[underlyingID], nil
}

func TestAccountDiscountZeroBorrowShortCircuits(t *testing.T) {
	table := New()
	require.NoError(t, table.Add("market-a", "TOKA", 5000, wad.One()))

	got, err := AccountDiscount(table, "alice", "USH", wad.Zero(), FXCached, &fakeCollateral{}, &fakePrices{})
	require.NoError(t, err)
	require.Zero(t, got.Sign())
}

func TestAccountDiscountEmptyTableReturnsZero(t *testing.T) {
	table := New()
	got, err := AccountDiscount(table, "alice", "USH", wad.FromInt64(100), FXCached, &fakeCollateral{}, &fakePrices{})
	require.NoError(t, err)
	require.Zero(t, got.Sign())
}

func TestAccountDiscountSingleEntryFullyCovers(t *testing.T) {
	table := New()
	require.NoError(t, table.Add("market-a", "TOKA", 5000, wad.One()))

	collateral := &fakeCollateral{
		tokens: map[string]*big.Int{"market-a": wad.FromInt64(1000)},
		fx:     map[string]*big.Int{"market-a": wad.One()},
		uf:     map[string]*big.Int{"market-a": wad.FromInt64(1)},
	}
	prices := &fakePrices{prices: map[string]*big.Int{"TOKA": wad.One(), "USH": wad.One()}}

	borrow := wad.FromInt64(100)
	got, err := AccountDiscount(table, "alice", "USH", borrow, FXCached, collateral, prices)
	require.NoError(t, err)
	// 1000 tokens * 1 ltv fully covers the 100 borrow, so the whole borrow is
	// discounted at the entry's 50% rate: 0.5 WAD.
	want := new(big.Int).Quo(wad.WAD, big.NewInt(2))
	require.Equal(t, want.String(), got.String())
}

func TestAccountDiscountOrdersByDescendingDiscount(t *testing.T) {
	table := New()
	require.NoError(t, table.Add("market-low", "TOKB", 1000, wad.One()))
	require.NoError(t, table.Add("market-high", "TOKA", 8000, wad.One()))

	entries := table.Entries()
	require.Equal(t, "market-high", entries[0].Market)
	require.Equal(t, "market-low", entries[1].Market)
}

func TestAccountDiscountPartialCoverageSpansTwoEntries(t *testing.T) {
	table := New()
	require.NoError(t, table.Add("market-high", "TOKA", 8000, wad.One()))
	require.NoError(t, table.Add("market-low", "TOKB", 2000, wad.One()))

	collateral := &fakeCollateral{
		tokens: map[string]*big.Int{
			"market-high": wad.FromInt64(50),
			"market-low":  wad.FromInt64(1000),
		},
		fx: map[string]*big.Int{
			"market-high": wad.One(),
			"market-low":  wad.One(),
		},
		uf: map[string]*big.Int{
			"market-high": wad.One(),
			"market-low":  wad.One(),
		},
	}
	prices := &fakePrices{prices: map[string]*big.Int{"TOKA": wad.One(), "TOKB": wad.One(), "USH": wad.One()}}

	borrow := wad.FromInt64(100)
	got, err := AccountDiscount(table, "alice", "USH", borrow, FXCached, collateral, prices)
	require.NoError(t, err)
	require.True(t, wad.IsPositive(got))
	require.True(t, got.Cmp(wad.FromInt64(1)) < 0)
}

func TestAddRejectsDuplicateAndOverflow(t *testing.T) {
	table := New()
	require.NoError(t, table.Add("market-a", "TOKA", 100, wad.One()))
	require.ErrorIs(t, table.Add("market-a", "TOKA", 200, wad.One()), ErrDuplicateEntry)

	for i := 0; i < MaxEntries-1; i++ {
		require.NoError(t, table.Add(string(rune('b'+i)), "TOK", 100, wad.One()))
	}
	require.ErrorIs(t, table.Add("overflow", "TOK", 100, wad.One()), ErrTableFull)
}
