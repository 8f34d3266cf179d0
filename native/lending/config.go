package lending

import (
	"fmt"
	"math/big"

	"nhblend/crypto"
	"nhblend/internal/controller"
	"nhblend/internal/market"
	"nhblend/internal/ratemodel"
	"nhblend/internal/wad"
)

// Config captures one market's governance-controlled parameters as loaded
// from TOML by cmd/lendingd: the risk tier, the circuit-breaker caps, and
// the fee split between the protocol reserve and the developer collector.
type Config struct {
	UnderlyingID            string            `toml:"UnderlyingID"`
	MaxLTVBps               uint64            `toml:"MaxLTVBps"`
	LiquidationThresholdBps uint64            `toml:"LiquidationThresholdBps"`
	LiquidationBonusBps     uint64            `toml:"LiquidationBonusBps"`
	ReserveFactorBps        uint64            `toml:"ReserveFactorBps"`
	StakeFactorBps          uint64            `toml:"StakeFactorBps"`
	CloseFactorBps          uint64            `toml:"CloseFactorBps"`
	ProtocolSeizeShareBps   uint64            `toml:"ProtocolSeizeShareBps"`
	LiquidatorBps           uint64            `toml:"LiquidatorBps"`
	AccrualTimeThresholdSec int64             `toml:"AccrualTimeThresholdSec"`
	CircuitBreakerActive    bool              `toml:"CircuitBreakerActive"`
	Breaker                 BreakerThresholds `toml:"breaker"`
	RateModel               RateModelConfig   `toml:"rate_model"`
	ProtocolFeeBps          uint64            `toml:"ProtocolFeeBps"`
	DeveloperFeeBps         uint64            `toml:"DeveloperFeeBps"`
	DeveloperFeeCollector   string            `toml:"DeveloperFeeCollector"`
}

// RateModelConfig carries the two-slope curve parameters
// internal/ratemodel.NewModel validates, all expressed as per-second WAD
// rates to match the model's own units.
type RateModelConfig struct {
	BaseRatePerSecondWAD *big.Int `toml:"BaseRatePerSecondWAD"`
	Slope1WAD            *big.Int `toml:"Slope1WAD"`
	Slope2WAD            *big.Int `toml:"Slope2WAD"`
	OptimalUtilWAD       *big.Int `toml:"OptimalUtilWAD"`
	MaxRatePerSecondWAD  *big.Int `toml:"MaxRatePerSecondWAD"`
}

// BreakerThresholds describes the limit switches for disabling module flows
// once a market's aggregate exposure grows past what governance has
// approved. A nil field leaves that dimension uncapped.
type BreakerThresholds struct {
	MaxTotalSupplyWei *big.Int `toml:"MaxTotalSupplyWei"`
	MaxTotalBorrowWei *big.Int `toml:"MaxTotalBorrowWei"`
}

// EnsureDefaults populates nil big.Int fields so TOML decoding of a config
// that omits the breaker table still has usable zero caps rather than nils
// that would panic on first use.
func (c *Config) EnsureDefaults() {
	if c.Breaker.MaxTotalSupplyWei == nil {
		c.Breaker.MaxTotalSupplyWei = big.NewInt(0)
	}
	if c.Breaker.MaxTotalBorrowWei == nil {
		c.Breaker.MaxTotalBorrowWei = big.NewInt(0)
	}
	if c.RateModel.BaseRatePerSecondWAD == nil {
		c.RateModel.BaseRatePerSecondWAD = big.NewInt(0)
	}
	if c.RateModel.Slope1WAD == nil {
		c.RateModel.Slope1WAD = big.NewInt(0)
	}
	if c.RateModel.Slope2WAD == nil {
		c.RateModel.Slope2WAD = big.NewInt(0)
	}
	if c.RateModel.OptimalUtilWAD == nil {
		c.RateModel.OptimalUtilWAD = big.NewInt(0)
	}
	if c.RateModel.MaxRatePerSecondWAD == nil {
		c.RateModel.MaxRatePerSecondWAD = big.NewInt(0)
	}
}

// ToRateModel builds the two-slope curve cmd/lendingd hands to market.New,
// straight from the TOML-configured per-second WAD rates.
func (c *Config) ToRateModel() (*ratemodel.Model, error) {
	return ratemodel.NewModel(
		c.RateModel.BaseRatePerSecondWAD,
		c.RateModel.Slope1WAD,
		c.RateModel.Slope2WAD,
		c.RateModel.OptimalUtilWAD,
		c.RateModel.MaxRatePerSecondWAD,
	)
}

// ToMarketConfig builds internal/market.Config for marketID from the
// governance-controlled risk fields this config already carries, so
// cmd/lendingd never duplicates the bps-to-WAD conversions.
func (c *Config) ToMarketConfig(marketID string) market.Config {
	rp := RiskParameters{
		MaxLTVBps:               c.MaxLTVBps,
		LiquidationThresholdBps: c.LiquidationThresholdBps,
		LiquidationBonusBps:     c.LiquidationBonusBps,
	}
	return market.Config{
		ID:                   marketID,
		UnderlyingID:         c.UnderlyingID,
		InitialExchangeRate:  wad.One(),
		ReserveFactor:        wad.BpsOf(wad.WAD, c.ReserveFactorBps),
		StakeFactor:          wad.BpsOf(wad.WAD, c.StakeFactorBps),
		CloseFactor:          wad.BpsOf(wad.WAD, c.CloseFactorBps),
		LiquidationIncentive: rp.LiquidationIncentiveWAD(),
		ProtocolSeizeShare:   wad.BpsOf(wad.WAD, c.ProtocolSeizeShareBps),
		AccrualTimeThreshold: c.AccrualTimeThresholdSec,
	}
}

// ToRiskParameters builds the RiskParameters a Ledger applies via
// ApplyRiskParameters once the market is registered.
func (c *Config) ToRiskParameters() RiskParameters {
	return RiskParameters{
		MaxLTVBps:               c.MaxLTVBps,
		LiquidationThresholdBps: c.LiquidationThresholdBps,
		LiquidationBonusBps:     c.LiquidationBonusBps,
		CircuitBreakerActive:    c.CircuitBreakerActive,
		DeveloperFeeCapBps:      c.DeveloperFeeBps,
	}
}

// ToBorrowCaps builds the BorrowCaps RegisterMarket installs on the
// controller from the breaker's borrow ceiling.
func (c *Config) ToBorrowCaps() BorrowCaps {
	return BorrowCaps{Total: c.Breaker.MaxTotalBorrowWei}
}

// ToCollateralRouting decodes the config's bech32 developer collector and
// builds the routing table RegisterMarket wires into a Ledger. The
// liquidator share and the protocol reserve target come from the caller;
// the developer and protocol shares come from DeveloperFeeBps and
// ProtocolFeeBps.
func (c *Config) ToCollateralRouting(liquidatorBps uint64, protocolTarget crypto.Address) (CollateralRouting, error) {
	routing := CollateralRouting{
		LiquidatorBps:  liquidatorBps,
		DeveloperBps:   c.DeveloperFeeBps,
		ProtocolBps:    c.ProtocolFeeBps,
		ProtocolTarget: protocolTarget,
	}
	if c.DeveloperFeeCollector != "" {
		addr, err := crypto.DecodeAddress(c.DeveloperFeeCollector)
		if err != nil {
			return CollateralRouting{}, fmt.Errorf("lending: invalid DeveloperFeeCollector: %w", err)
		}
		routing.DeveloperTarget = addr
	}
	return routing, nil
}

// ApplyBreaker installs the config's liquidity/borrow caps on marketID via
// the controller, the circuit-breaker enforcement point every mint/borrow
// already calls through (controller.MintAllowed/BorrowAllowed). A zero cap
// is treated as "uncapped" rather than "frozen", matching EnsureDefaults'
// zero-value fallback.
func (c *Config) ApplyBreaker(ctrl *controller.Controller, marketID string) error {
	var supplyCap, borrowCap *big.Int
	if c.Breaker.MaxTotalSupplyWei != nil && c.Breaker.MaxTotalSupplyWei.Sign() > 0 {
		supplyCap = c.Breaker.MaxTotalSupplyWei
	}
	if c.Breaker.MaxTotalBorrowWei != nil && c.Breaker.MaxTotalBorrowWei.Sign() > 0 {
		borrowCap = c.Breaker.MaxTotalBorrowWei
	}
	if err := ctrl.SetLiquidityCap(marketID, supplyCap); err != nil {
		return err
	}
	return ctrl.SetBorrowCap(marketID, borrowCap)
}
