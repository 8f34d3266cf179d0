// Package lending adapts the protocol's plain-string-keyed money-market
// engine (internal/market, internal/controller) onto
// crypto.Address-keyed accounts, the identifier type every other on-chain
// module in this repository uses. It is the only place in the tree that
// converts between the two.
package lending

import (
	"math/big"

	"nhblend/crypto"
	"nhblend/internal/wad"
)

// CollateralRouting captures the liquidation collateral distribution between
// the liquidator, developer, and protocol reserve accounts.
type CollateralRouting struct {
	LiquidatorBps   uint64
	DeveloperBps    uint64
	DeveloperTarget crypto.Address
	ProtocolBps     uint64
	ProtocolTarget  crypto.Address
}

// Clone produces a deep copy of the collateral routing configuration to
// ensure callers do not mutate shared address slices.
func (r CollateralRouting) Clone() CollateralRouting {
	clone := CollateralRouting{
		LiquidatorBps: r.LiquidatorBps,
		DeveloperBps:  r.DeveloperBps,
		ProtocolBps:   r.ProtocolBps,
	}
	if bytes := r.DeveloperTarget.Bytes(); len(bytes) != 0 {
		clone.DeveloperTarget = crypto.MustNewAddress(r.DeveloperTarget.Prefix(), bytes)
	}
	if bytes := r.ProtocolTarget.Bytes(); len(bytes) != 0 {
		clone.ProtocolTarget = crypto.MustNewAddress(r.ProtocolTarget.Prefix(), bytes)
	}
	return clone
}

// RiskParameters groups the governance-controlled safety limits a market is
// constructed with, expressed the way admin tooling and config files supply
// them (basis points) before being converted to WAD at construction time.
type RiskParameters struct {
	MaxLTVBps               uint64
	LiquidationThresholdBps uint64
	LiquidationBonusBps     uint64
	CircuitBreakerActive    bool
	DeveloperFeeCapBps      uint64
}

// MaxLTVWAD converts MaxLTVBps to the WAD-scaled collateral factor
// internal/controller.SetCollateralFactors expects.
func (r RiskParameters) MaxLTVWAD() *big.Int { return wad.BpsOf(wad.WAD, r.MaxLTVBps) }

// LiquidationThresholdWAD converts LiquidationThresholdBps to the WAD-scaled
// unwind factor internal/controller.SetCollateralFactors expects.
func (r RiskParameters) LiquidationThresholdWAD() *big.Int {
	return wad.BpsOf(wad.WAD, r.LiquidationThresholdBps)
}

// LiquidationIncentiveWAD converts LiquidationBonusBps to the WAD-scaled
// multiplier internal/market.Config.LiquidationIncentive expects (1 WAD +
// the bonus).
func (r RiskParameters) LiquidationIncentiveWAD() *big.Int {
	return new(big.Int).Add(wad.WAD, wad.BpsOf(wad.WAD, r.LiquidationBonusBps))
}

// FeeAccrual captures the cumulative protocol and developer fee totals a
// Ledger has withdrawn from a market's revenue and handed to its
// UnderlyingSink via market.ReduceReserves.
type FeeAccrual struct {
	ProtocolFeesWei  *big.Int
	DeveloperFeesWei *big.Int
}

// Clone returns a deep copy of the fee accrual structure.
func (f *FeeAccrual) Clone() *FeeAccrual {
	if f == nil {
		return nil
	}
	clone := &FeeAccrual{}
	if f.ProtocolFeesWei != nil {
		clone.ProtocolFeesWei = new(big.Int).Set(f.ProtocolFeesWei)
	}
	if f.DeveloperFeesWei != nil {
		clone.DeveloperFeesWei = new(big.Int).Set(f.DeveloperFeesWei)
	}
	return clone
}

func isZeroAddress(a crypto.Address) bool { return len(a.Bytes()) == 0 }
