package rewards

import (
	"math/big"

	"nhblend/internal/wad"
)

// UpdateBatchesState advances every matching batch's index accumulator in
// market up to t. It must run before any read of per-account base that
// feeds a distribution computation.
func (m *Manager) UpdateBatchesState(market string, side Side, t int64) error {
	for _, batch := range m.batchesByMarket[market] {
		if batch.Side != side {
			continue
		}
		if batch.LastTime == batch.EndTime || t == batch.LastTime {
			continue
		}

		var dt int64
		if t > batch.EndTime {
			dt = batch.EndTime - batch.LastTime
			batch.LastTime = batch.EndTime
		} else {
			dt = t - batch.LastTime
			batch.LastTime = t
		}

		if !wad.IsPositive(batch.Speed) {
			continue
		}

		rewardsAccrued := new(big.Int).Mul(batch.Speed, big.NewInt(dt))

		denom, err := m.denominator(market, side)
		if err != nil {
			return err
		}

		if denom.Sign() == 0 {
			deltaRewards := new(big.Int).Quo(rewardsAccrued, wad.WAD)
			batch.DistributedAmount.Add(batch.DistributedAmount, deltaRewards)
			m.addUndistributed(batch.TokenID, deltaRewards)
			continue
		}

		deltaIndex := new(big.Int).Mul(rewardsAccrued, wad.WAD)
		deltaIndex.Quo(deltaIndex, denom)

		if deltaIndex.Sign() != 0 {
			batch.Index.Add(batch.Index, deltaIndex)
		} else {
			deltaRewards := new(big.Int).Quo(rewardsAccrued, wad.WAD)
			m.addUndistributed(batch.TokenID, deltaRewards)
		}
	}
	return nil
}

func (m *Manager) denominator(market string, side Side) (*big.Int, error) {
	if side == SideSupply {
		return m.denominators.TotalCollateralTokens(market)
	}
	base, err := m.denominators.BaseTotalBorrows(market)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Add(base, big.NewInt(1)), nil
}

// DistributeAccountRewards implements distribute_supplier_batches_rewards /
// distribute_borrower_batches_rewards: for every matching batch in market,
// advance account's snapshot and add the index delta's contribution to its
// accrued balance.
func (m *Manager) DistributeAccountRewards(market string, side Side, account string) error {
	for _, batch := range m.batchesByMarket[market] {
		if batch.Side != side {
			continue
		}

		var accountBase *big.Int
		var err error
		if side == SideSupply {
			accountBase, err = m.accountBase.AccountCollateralTokens(market, account)
		} else {
			accountBase, err = m.accountBase.AccountBaseBorrow(market, account)
		}
		if err != nil {
			return err
		}

		states, ok := m.accountState[batch.ID]
		if !ok {
			states = make(map[string]*accountState)
			m.accountState[batch.ID] = states
		}
		state, ok := states[account]
		if !ok {
			state = &accountState{lastIndex: wadSquared()}
			states[account] = state
		}

		deltaIndex := new(big.Int).Sub(batch.Index, state.lastIndex)
		state.lastIndex = wad.Clone(batch.Index)

		if deltaIndex.Sign() == 0 || !wad.IsPositive(accountBase) {
			continue
		}

		deltaRewards := new(big.Int).Mul(accountBase, deltaIndex)
		wadSq := new(big.Int).Mul(wad.WAD, wad.WAD)
		deltaRewards.Quo(deltaRewards, wadSq)

		m.addAccrued(account, batch.TokenID, deltaRewards)
		batch.DistributedAmount.Add(batch.DistributedAmount, deltaRewards)
	}
	return nil
}

func (m *Manager) addAccrued(account, tokenID string, amount *big.Int) {
	byToken, ok := m.accrued[account]
	if !ok {
		byToken = make(map[string]*big.Int)
		m.accrued[account] = byToken
	}
	cur, ok := byToken[tokenID]
	if !ok {
		cur = wad.Zero()
	}
	cur.Add(cur, amount)
	byToken[tokenID] = cur
}

// AccruedRewards returns account's currently accrued (unclaimed) balance of
// tokenID.
func (m *Manager) AccruedRewards(account, tokenID string) *big.Int {
	if byToken, ok := m.accrued[account]; ok {
		if v, ok := byToken[tokenID]; ok {
			return wad.Clone(v)
		}
	}
	return wad.Zero()
}
