package ushmarket

import (
	"math/big"

	"nhblend/internal/wad"
)

// SecondsPerYear anchors the borrow-APR to per-second conversion.
const SecondsPerYear = 31_556_926

// MaxAccrualTimeThreshold bounds the try-accrue delay to one day.
const MaxAccrualTimeThreshold = 86400

// BorrowRateDelay is the minimum time that must elapse between two borrow
// rate increases.
const BorrowRateDelay = 86400

// MaxBorrowRateChangeBps bounds a single borrow rate update to a 10% move
// relative to the prior rate.
const MaxBorrowRateChangeBps = 1_000

// The bounds below are computed once against wad.WAD so the fixed-point
// scale stays centralized in the wad package.
var (
	// MaxInitialBorrowRate bounds the very first borrow rate set on a
	// market to 100% APR expressed per second.
	MaxInitialBorrowRate = new(big.Int).Quo(wad.WAD, big.NewInt(SecondsPerYear))

	// MinCloseFactor is the lowest close factor an admin may configure (20%).
	MinCloseFactor = new(big.Int).Quo(wad.WAD, big.NewInt(5))

	// MinLiquidationIncentive is the lowest liquidation incentive an admin
	// may configure (101%).
	MinLiquidationIncentive = new(big.Int).Add(wad.WAD, new(big.Int).Quo(wad.WAD, big.NewInt(100)))
)
