package rewards

import (
	"math/big"

	"nhblend/internal/dex"
	"nhblend/internal/wad"
)

// Booster converts a claimed reward into a larger governance-token payout,
// created by a swap round-trip probe.
type Booster struct {
	TokenID           string
	Premium           *big.Int // WAD
	SwapPath          []dex.SwapHop
	AmountLeft        *big.Int
	DistributedAmount *big.Int
}

// CreateBooster probes a round-trip swap (reward -> governance -> reward)
// for forwardAmount of tokenID, rejecting it if round-trip slippage exceeds
// maxSlippageBps. The booster's funded AmountLeft is the net amount
// captured after the probe's own loss.
func (m *Manager) CreateBooster(tokenID string, amount, forwardAmount *big.Int, maxSlippageBps uint64, swapPath []dex.SwapHop) (*Booster, error) {
	governanceOut, err := m.router.MultiPairSwap(swapPath, tokenID, forwardAmount)
	if err != nil {
		return nil, err
	}
	backPath := reverseHops(swapPath, m.governanceTokenID, tokenID)
	rewardBack, err := m.router.MultiPairSwap(backPath, m.governanceTokenID, governanceOut)
	if err != nil {
		return nil, err
	}

	loss := wad.SafeSub(forwardAmount, rewardBack)
	maxLoss := wad.BpsOf(forwardAmount, maxSlippageBps)
	if loss.Cmp(maxLoss) > 0 {
		return nil, ErrSlippageExceeded
	}

	net := wad.SafeSub(amount, loss)
	booster := &Booster{
		TokenID:           tokenID,
		Premium:           wad.Zero(),
		SwapPath:          swapPath,
		AmountLeft:        net,
		DistributedAmount: wad.Zero(),
	}
	m.boosters[tokenID] = booster
	return booster, nil
}

func reverseHops(hops []dex.SwapHop, from, to string) []dex.SwapHop {
	out := make([]dex.SwapHop, len(hops))
	for i, h := range hops {
		out[len(hops)-1-i] = dex.SwapHop{
			PairAddress: h.PairAddress,
			InputToken:  h.OutputToken,
			OutputToken: h.InputToken,
		}
	}
	return out
}

// SetBoosterPremium sets (or updates) a registered booster's boost
// premium, in WAD (e.g. 0.1 WAD == +10% on claim).
func (m *Manager) SetBoosterPremium(tokenID string, premium *big.Int) error {
	b, ok := m.boosters[tokenID]
	if !ok {
		return ErrNoBooster
	}
	b.Premium = wad.Clone(premium)
	return nil
}

// ClaimResult describes a single token payout produced by Claim.
type ClaimResult struct {
	TokenID string
	Amount  *big.Int
	Boosted bool
}

// Claim pays out what has already been distributed; it does not run
// UpdateBatchesState/DistributeAccountRewards itself, so the caller must
// have run them for every market/side being claimed. It then either pays
// the raw reward token or, if boost is requested and a booster exists,
// converts via the booster swap path.
func (m *Manager) Claim(account, tokenID string, boost bool) (ClaimResult, error) {
	rewards := m.AccruedRewards(account, tokenID)
	if !wad.IsPositive(rewards) {
		return ClaimResult{TokenID: tokenID, Amount: wad.Zero()}, nil
	}

	if !boost {
		m.zeroAccrued(account, tokenID)
		return ClaimResult{TokenID: tokenID, Amount: rewards}, nil
	}

	booster, ok := m.boosters[tokenID]
	if !ok {
		m.zeroAccrued(account, tokenID)
		return ClaimResult{TokenID: tokenID, Amount: rewards}, nil
	}

	deltaRewards := wad.Mul(rewards, booster.Premium)
	if deltaRewards.Cmp(booster.AmountLeft) > 0 {
		m.zeroAccrued(account, tokenID)
		return ClaimResult{TokenID: tokenID, Amount: rewards}, nil
	}

	boostedRewards := new(big.Int).Add(rewards, deltaRewards)
	booster.DistributedAmount.Add(booster.DistributedAmount, deltaRewards)
	booster.AmountLeft.Sub(booster.AmountLeft, deltaRewards)

	swapTokenID := tokenID
	if tokenID == m.wrappedEGLDID {
		if err := m.wrapper.WrapEGLD(boostedRewards); err != nil {
			return ClaimResult{}, err
		}
	}

	rewardsEff, err := m.router.MultiPairSwap(booster.SwapPath, swapTokenID, boostedRewards)
	if err != nil {
		return ClaimResult{}, err
	}

	m.zeroAccrued(account, tokenID)
	return ClaimResult{TokenID: m.governanceTokenID, Amount: rewardsEff, Boosted: true}, nil
}

func (m *Manager) zeroAccrued(account, tokenID string) {
	if byToken, ok := m.accrued[account]; ok {
		byToken[tokenID] = wad.Zero()
	}
}
