package observability

import (
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type marketMetrics struct {
	accrualLatency  *prometheus.HistogramVec
	mintTotal       *prometheus.CounterVec
	redeemTotal     *prometheus.CounterVec
	borrowTotal     *prometheus.CounterVec
	repayTotal      *prometheus.CounterVec
	liquidateTotal  *prometheus.CounterVec
	seizedTokens    *prometheus.GaugeVec
	revenue         *prometheus.GaugeVec
	utilisation     *prometheus.GaugeVec
}

var (
	marketMetricsOnce sync.Once
	marketRegistry    *marketMetrics

	rewardsMetricsOnce sync.Once
	rewardsRegistry    *rewardsMetrics

	oracleMetricsOnce sync.Once
	oracleRegistry    *oracleMetrics
)

// Market returns the lazily-initialised metrics registry for money-market
// accounting operations. One counter/gauge family covers every market,
// labeled by market id.
func Market() *marketMetrics {
	marketMetricsOnce.Do(func() {
		marketRegistry = &marketMetrics{
			accrualLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "nhblend",
				Subsystem: "market",
				Name:      "accrual_duration_seconds",
				Help:      "Wall-clock time spent running AccrueInterest per call.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"market"}),
			mintTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nhblend",
				Subsystem: "market",
				Name:      "mint_total",
				Help:      "Count of successful Mint calls.",
			}, []string{"market"}),
			redeemTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nhblend",
				Subsystem: "market",
				Name:      "redeem_total",
				Help:      "Count of successful redeem calls.",
			}, []string{"market"}),
			borrowTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nhblend",
				Subsystem: "market",
				Name:      "borrow_total",
				Help:      "Count of successful Borrow calls.",
			}, []string{"market"}),
			repayTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nhblend",
				Subsystem: "market",
				Name:      "repay_total",
				Help:      "Count of successful RepayBorrow calls.",
			}, []string{"market"}),
			liquidateTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nhblend",
				Subsystem: "market",
				Name:      "liquidate_total",
				Help:      "Count of successful LiquidateBorrow calls, labeled by borrow market.",
			}, []string{"market"}),
			seizedTokens: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "nhblend",
				Subsystem: "market",
				Name:      "last_seized_tokens",
				Help:      "Share tokens seized by the most recent liquidation in a market, in WAD.",
			}, []string{"market"}),
			revenue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "nhblend",
				Subsystem: "market",
				Name:      "revenue_wad",
				Help:      "Current withdrawable reserve balance, in WAD.",
			}, []string{"market"}),
			utilisation: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "nhblend",
				Subsystem: "market",
				Name:      "utilisation_ratio",
				Help:      "total_borrows / (cash + total_borrows - total_reserves), in [0,1] WAD-scaled.",
			}, []string{"market"}),
		}
		prometheus.MustRegister(
			marketRegistry.accrualLatency,
			marketRegistry.mintTotal,
			marketRegistry.redeemTotal,
			marketRegistry.borrowTotal,
			marketRegistry.repayTotal,
			marketRegistry.liquidateTotal,
			marketRegistry.seizedTokens,
			marketRegistry.revenue,
			marketRegistry.utilisation,
		)
	})
	return marketRegistry
}

// ObserveAccrual records the latency of an AccrueInterest call.
func (m *marketMetrics) ObserveAccrual(marketID string, d time.Duration) {
	if m == nil {
		return
	}
	m.accrualLatency.WithLabelValues(labelMarket(marketID)).Observe(d.Seconds())
}

// RecordMint increments the mint counter for marketID.
func (m *marketMetrics) RecordMint(marketID string) {
	if m == nil {
		return
	}
	m.mintTotal.WithLabelValues(labelMarket(marketID)).Inc()
}

// RecordRedeem increments the redeem counter for marketID.
func (m *marketMetrics) RecordRedeem(marketID string) {
	if m == nil {
		return
	}
	m.redeemTotal.WithLabelValues(labelMarket(marketID)).Inc()
}

// RecordBorrow increments the borrow counter for marketID.
func (m *marketMetrics) RecordBorrow(marketID string) {
	if m == nil {
		return
	}
	m.borrowTotal.WithLabelValues(labelMarket(marketID)).Inc()
}

// RecordRepay increments the repay counter for marketID.
func (m *marketMetrics) RecordRepay(marketID string) {
	if m == nil {
		return
	}
	m.repayTotal.WithLabelValues(labelMarket(marketID)).Inc()
}

// RecordLiquidation increments the liquidation counter for borrowMarketID
// and records the tokens seized.
func (m *marketMetrics) RecordLiquidation(borrowMarketID string, tokensSeized *big.Int) {
	if m == nil {
		return
	}
	label := labelMarket(borrowMarketID)
	m.liquidateTotal.WithLabelValues(label).Inc()
	m.seizedTokens.WithLabelValues(label).Set(bigToFloat(tokensSeized))
}

// SetRevenue records a market's current withdrawable reserve balance.
func (m *marketMetrics) SetRevenue(marketID string, revenue *big.Int) {
	if m == nil {
		return
	}
	m.revenue.WithLabelValues(labelMarket(marketID)).Set(bigToFloat(revenue))
}

// SetUtilisation records a market's current utilisation ratio.
func (m *marketMetrics) SetUtilisation(marketID string, ratioWAD *big.Int) {
	if m == nil {
		return
	}
	m.utilisation.WithLabelValues(labelMarket(marketID)).Set(wadToFloat(ratioWAD))
}

// rewardsMetrics tracks the reward batches/claims the rewards engine (C7)
// processes.
type rewardsMetrics struct {
	claimedTotal     *prometheus.CounterVec
	batchesActive    *prometheus.GaugeVec
	boosterApplied   *prometheus.CounterVec
}

// Rewards returns the lazily-initialised rewards metrics registry.
func Rewards() *rewardsMetrics {
	rewardsMetricsOnce.Do(func() {
		rewardsRegistry = &rewardsMetrics{
			claimedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nhblend",
				Subsystem: "rewards",
				Name:      "claimed_total",
				Help:      "Count of successful reward claims, labeled by market.",
			}, []string{"market"}),
			batchesActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "nhblend",
				Subsystem: "rewards",
				Name:      "batches_active",
				Help:      "Number of reward batches currently live for a market.",
			}, []string{"market"}),
			boosterApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nhblend",
				Subsystem: "rewards",
				Name:      "booster_applied_total",
				Help:      "Count of booster-qualifying collateral changes observed.",
			}, []string{"market"}),
		}
		prometheus.MustRegister(
			rewardsRegistry.claimedTotal,
			rewardsRegistry.batchesActive,
			rewardsRegistry.boosterApplied,
		)
	})
	return rewardsRegistry
}

// RecordClaim increments the claimed-reward counter for marketID.
func (m *rewardsMetrics) RecordClaim(marketID string) {
	if m == nil {
		return
	}
	m.claimedTotal.WithLabelValues(labelMarket(marketID)).Inc()
}

// SetActiveBatches records the number of live reward batches for marketID.
func (m *rewardsMetrics) SetActiveBatches(marketID string, n int) {
	if m == nil {
		return
	}
	m.batchesActive.WithLabelValues(labelMarket(marketID)).Set(float64(n))
}

// RecordBoosterApplied increments the booster counter for marketID.
func (m *rewardsMetrics) RecordBoosterApplied(marketID string) {
	if m == nil {
		return
	}
	m.boosterApplied.WithLabelValues(labelMarket(marketID)).Inc()
}

// oracleMetrics tracks price-oracle health (C2).
type oracleMetrics struct {
	anchorSurpassed *prometheus.CounterVec
	tokenPaused     *prometheus.GaugeVec
}

// Oracle returns the lazily-initialised oracle metrics registry.
func Oracle() *oracleMetrics {
	oracleMetricsOnce.Do(func() {
		oracleRegistry = &oracleMetrics{
			anchorSurpassed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nhblend",
				Subsystem: "oracle",
				Name:      "anchor_surpassed_total",
				Help:      "Count of anchor/reporter tolerance-band escalations, labeled by underlying and kind.",
			}, []string{"underlying", "kind"}),
			tokenPaused: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "nhblend",
				Subsystem: "oracle",
				Name:      "token_paused",
				Help:      "1 if pricing for the underlying is currently auto-paused, else 0.",
			}, []string{"underlying"}),
		}
		prometheus.MustRegister(oracleRegistry.anchorSurpassed, oracleRegistry.tokenPaused)
	})
	return oracleRegistry
}

// RecordAnchorSurpassed increments the escalation counter for underlyingID.
func (m *oracleMetrics) RecordAnchorSurpassed(underlyingID, kind string) {
	if m == nil {
		return
	}
	m.anchorSurpassed.WithLabelValues(labelAsset(underlyingID), kind).Inc()
}

// SetTokenPaused records whether underlyingID's pricing is currently paused.
func (m *oracleMetrics) SetTokenPaused(underlyingID string, paused bool) {
	if m == nil {
		return
	}
	v := 0.0
	if paused {
		v = 1.0
	}
	m.tokenPaused.WithLabelValues(labelAsset(underlyingID)).Set(v)
}

func labelMarket(marketID string) string {
	trimmed := strings.TrimSpace(marketID)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}

func labelAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(trimmed)
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}

// wadToFloat converts a WAD (1e18) fixed-point value to a plain float64 for
// gauge export.
func wadToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	f := new(big.Float).SetInt(value)
	f.Quo(f, big.NewFloat(1e18))
	out, _ := f.Float64()
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0
	}
	return out
}
