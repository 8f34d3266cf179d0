package ushmarket

import (
	"math/big"

	"nhblend/internal/events"
	"nhblend/internal/wad"
)

// ClaimStakingRewards hands the entire current staking_rewards balance to
// destination, minting fresh USH for it. A caller restriction (only the
// wired staking contract may call this) belongs to the layer composing
// this market, not to the pure accounting engine.
func (m *Market) ClaimStakingRewards(destination string) (*big.Int, error) {
	if err := m.AccrueInterest(); err != nil {
		return nil, err
	}
	if err := m.requireFresh(); err != nil {
		return nil, err
	}

	rewards := wad.Clone(m.stakingRewards)
	if !wad.IsPositive(rewards) {
		return wad.Zero(), nil
	}

	m.totalReserves = new(big.Int).Sub(m.totalReserves, rewards)
	m.stakingRewards = wad.Zero()

	if m.minter != nil {
		if err := m.minter.Mint(rewards, destination); err != nil {
			return nil, err
		}
	}

	m.emit(events.New(events.KindInterestAccrued, m.ID, destination).WithAmount("staking_rewards_claimed", rewards))
	return rewards, nil
}
