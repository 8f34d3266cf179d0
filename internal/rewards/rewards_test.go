package rewards

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"nhblend/internal/wad"
)

type fakeDenominators struct {
	collateral map[string]*big.Int
	borrows    map[string]*big.Int
}

func (f *fakeDenominators) TotalCollateralTokens(market string) (*big.Int, error) {
	if v, ok := f.collateral[market]; ok {
		return v, nil
	}
	return wad.Zero(), nil
}

func (f *fakeDenominators) BaseTotalBorrows(market string) (*big.Int, error) {
	if v, ok := f.borrows[market]; ok {
		return v, nil
	}
	return wad.Zero(), nil
}

type fakeAccountBase struct {
	collateral map[string]*big.Int
	borrows    map[string]*big.Int
}

func (f *fakeAccountBase) AccountCollateralTokens(market, account string) (*big.Int, error) {
	if v, ok := f.collateral[account]; ok {
		return v, nil
	}
	return wad.Zero(), nil
}

func (f *fakeAccountBase) AccountBaseBorrow(market, account string) (*big.Int, error) {
	if v, ok := f.borrows[account]; ok {
		return v, nil
	}
	return wad.Zero(), nil
}

// Collateral-token and reward-amount quantities in these tests are raw
// integer token counts — only Speed/Index are WAD-scaled fixed point
// internally.

func newTestManager(collateral, accountTokens *big.Int) (*Manager, *fakeDenominators) {
	denoms := &fakeDenominators{collateral: map[string]*big.Int{"m": collateral}}
	base := &fakeAccountBase{collateral: map[string]*big.Int{"alice": accountTokens}}
	return New(denoms, base, nil, nil, "GOV", "WEGLD"), denoms
}

func TestAddBatchRejectsBeyondMax(t *testing.T) {
	m, _ := newTestManager(big.NewInt(1000), big.NewInt(100))
	for i := 0; i < MaxBatchesPerMarket; i++ {
		_, err := m.AddBatch("m", SideSupply, "TOK", big.NewInt(1000), 1000, 0)
		require.NoError(t, err)
	}
	_, err := m.AddBatch("m", SideSupply, "TOK", big.NewInt(1000), 1000, 0)
	require.ErrorIs(t, err, ErrTooManyBatches)
}

func TestUpdateBatchesStateAccruesIndex(t *testing.T) {
	m, _ := newTestManager(big.NewInt(1000), big.NewInt(100))
	batch, err := m.AddBatch("m", SideSupply, "TOK", big.NewInt(1000), 1000, 0)
	require.NoError(t, err)

	require.NoError(t, m.UpdateBatchesState("m", SideSupply, 100))
	require.Equal(t, int64(100), batch.LastTime)
	require.True(t, batch.Index.Cmp(wadSquared()) > 0)
}

func TestUpdateBatchesStateRoutesToUndistributedWhenDenomZero(t *testing.T) {
	m, _ := newTestManager(big.NewInt(0), big.NewInt(100))
	_, err := m.AddBatch("m", SideSupply, "TOK", big.NewInt(1000), 1000, 0)
	require.NoError(t, err)

	require.NoError(t, m.UpdateBatchesState("m", SideSupply, 100))
	require.True(t, wad.IsPositive(m.UndistributedRewards("TOK")))
}

func TestUpdateBatchesStateNoopAfterExpiry(t *testing.T) {
	m, _ := newTestManager(big.NewInt(1000), big.NewInt(100))
	batch, err := m.AddBatch("m", SideSupply, "TOK", big.NewInt(1000), 1000, 0)
	require.NoError(t, err)

	require.NoError(t, m.UpdateBatchesState("m", SideSupply, 1000))
	idxAtExpiry := new(big.Int).Set(batch.Index)

	require.NoError(t, m.UpdateBatchesState("m", SideSupply, 2000))
	require.Equal(t, idxAtExpiry.String(), batch.Index.String())
	require.Equal(t, batch.EndTime, batch.LastTime)
}

func TestDistributeAccountRewardsAccrues(t *testing.T) {
	m, _ := newTestManager(big.NewInt(1000), big.NewInt(100))
	_, err := m.AddBatch("m", SideSupply, "TOK", big.NewInt(1000), 1000, 0)
	require.NoError(t, err)
	require.NoError(t, m.UpdateBatchesState("m", SideSupply, 500))
	require.NoError(t, m.DistributeAccountRewards("m", SideSupply, "alice"))

	require.True(t, wad.IsPositive(m.AccruedRewards("alice", "TOK")))
}

func TestClaimZeroesAccruedBalance(t *testing.T) {
	m, _ := newTestManager(big.NewInt(1000), big.NewInt(100))
	_, err := m.AddBatch("m", SideSupply, "TOK", big.NewInt(1000), 1000, 0)
	require.NoError(t, err)
	require.NoError(t, m.UpdateBatchesState("m", SideSupply, 500))
	require.NoError(t, m.DistributeAccountRewards("m", SideSupply, "alice"))

	before := m.AccruedRewards("alice", "TOK")
	require.True(t, wad.IsPositive(before))

	result, err := m.Claim("alice", "TOK", false)
	require.NoError(t, err)
	require.Equal(t, before.String(), result.Amount.String())
	require.Zero(t, m.AccruedRewards("alice", "TOK").Sign())
}

func TestCancelRefundsLinearRemainder(t *testing.T) {
	m, _ := newTestManager(big.NewInt(1000), big.NewInt(100))
	_, err := m.AddBatch("m", SideSupply, "TOK", big.NewInt(1000), 1000, 0)
	require.NoError(t, err)

	refund, err := m.Cancel(1, 500)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(500).String(), refund.String())
}

func TestRemoveRejectsUndistributedBatch(t *testing.T) {
	m, _ := newTestManager(big.NewInt(1000), big.NewInt(100))
	_, err := m.AddBatch("m", SideSupply, "TOK", big.NewInt(1000), 1000, 0)
	require.NoError(t, err)
	require.ErrorIs(t, m.Remove(1), ErrNotFullyDistributed)
}

func TestForceRemoveRejectsBeforeExpiry(t *testing.T) {
	m, _ := newTestManager(big.NewInt(1000), big.NewInt(100))
	_, err := m.AddBatch("m", SideSupply, "TOK", big.NewInt(1000), 1000, 0)
	require.NoError(t, err)
	require.ErrorIs(t, m.ForceRemove(1, nil, 500), ErrNotExpired)
}
