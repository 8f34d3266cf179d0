// Package oracle implements the price oracle (C2): a per-token pricing
// method registry that anchors a primary on-DEX safe price against a
// secondary aggregator feed within tolerance bands. Per-token reliability
// and auto-pause state, liquid-staking price composition, and the USH
// fallback-stable path sit on top of that anchor/reporter reconciliation.
package oracle

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"nhblend/internal/liquidstaking"
	"nhblend/internal/wad"
)

// aggregatorRatePerSecond and aggregatorBurst cap how often any single underlying's aggregator feed
// may be polled, a per-key token-bucket throttle protecting the reporter
// feed from a hot refresh loop rather than an inbound HTTP route.
const (
	aggregatorRatePerSecond = 5
	aggregatorBurst         = 5
)

var (
	ErrTokenPaused         = errors.New("oracle: token pricing paused")
	ErrNoRoute             = errors.New("oracle: no price route for token")
	ErrNotReliable         = errors.New("oracle: anchor not yet established as reliable")
	ErrInvalidPrice        = errors.New("oracle: non-positive price reported")
	ErrInvalidTolerance    = errors.New("oracle: tolerance band misconfigured")
	ErrStakingCompose      = errors.New("oracle: liquid staking composition failed")
	ErrFallbackNotConfig   = errors.New("oracle: USH fallback stable not configured")
	ErrAggregatorThrottled = errors.New("oracle: aggregator feed polled too frequently")
)

// PricingMethod selects how a token's price is resolved.
type PricingMethod int

const (
	// MethodDefault anchors the aggregator reporter against the DEX safe
	// price within tolerance bands.
	MethodDefault PricingMethod = iota
	// MethodInstantaneous bypasses the anchor/reporter reconciliation and
	// returns the anchor source's SafePrice, the same reading MethodSafe
	// returns; no separate spot-price source is consulted. Used transiently by admins to unpause
	// a token after investigating a divergence.
	MethodInstantaneous
	// MethodSafe reads only the DEX TWAP ("safe") price.
	MethodSafe
	// MethodPriceAggregator reads only the aggregator feed, used for assets
	// that have no matching on-chain DEX pair (e.g. USH's USD leg).
	MethodPriceAggregator
)

// ToleranceBand captures a pair of basis-point bounds around a 1:1 ratio.
type ToleranceBand struct {
	LowBps  uint64
	HighBps uint64
}

// contains reports whether ratio (WAD, centered on 1 WAD) falls within the
// band expressed in WAD.
func (b ToleranceBand) contains(ratioWAD *big.Int) bool {
	low := wad.BpsOf(wad.One(), 10_000-b.LowBps)
	high := new(big.Int).Add(wad.WAD, wad.BpsOf(wad.WAD, b.HighBps))
	return ratioWAD.Cmp(low) >= 0 && ratioWAD.Cmp(high) <= 0
}

// AnchorSource supplies the safe, TWAP-style on-DEX price for a token,
// expressed in the numeraire, in WAD.
type AnchorSource interface {
	SafePrice(underlyingID string) (*big.Int, error)
}

// ReporterSource supplies the aggregator feed price for a token in WAD.
type ReporterSource interface {
	AggregatorPrice(underlyingID string) (*big.Int, error)
}

// tokenState is the per-token mutable pricing state.
type tokenState struct {
	method    PricingMethod
	reliable  bool
	paused    bool
	lastPrice *big.Int
}

// Config carries the tolerance bands and special-cased token identifiers.
type Config struct {
	FirstBand ToleranceBand
	LastBand  ToleranceBand

	WEGLDID     string
	SEGLDID     string
	STAOID      string
	USHID       string
	EGLDID      string
	USHFallback string // underlying id of the fallback stable used for USH pricing
}

func (c Config) validate() error {
	if c.FirstBand.LowBps == 0 && c.FirstBand.HighBps == 0 {
		return ErrInvalidTolerance
	}
	if c.LastBand.LowBps < c.FirstBand.LowBps || c.LastBand.HighBps < c.FirstBand.HighBps {
		return ErrInvalidTolerance
	}
	return nil
}

// Oracle resolves per-underlying prices in the numeraire, anchoring a
// primary on-DEX price against a secondary aggregator feed.
type Oracle struct {
	mu       sync.RWMutex
	cfg      Config
	anchor   AnchorSource
	reporter ReporterSource
	staking  map[string]liquidstaking.Client // underlying id -> ls client (sEGLD, sTAO)
	states   map[string]*tokenState
	limiters map[string]*rate.Limiter // underlying id -> aggregator fetch throttle

	// first_anchor_surpassed/last_anchor_surpassed events are recorded for observers
	// (admin dashboards) rather than returned as errors: the Default
	// algorithm degrades a price reading rather than failing the caller.
	events []Event
}

// Event is a lightweight oracle state-change record.
type Event struct {
	Kind        string
	UnderlyingID string
}

// New constructs an Oracle. anchor/reporter may be nil if never used by any
// configured token (e.g. a deployment that only prices via PriceAggregator).
func New(cfg Config, anchor AnchorSource, reporter ReporterSource) (*Oracle, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Oracle{
		cfg:      cfg,
		anchor:   anchor,
		reporter: reporter,
		staking:  make(map[string]liquidstaking.Client),
		states:   make(map[string]*tokenState),
		limiters: make(map[string]*rate.Limiter),
	}, nil
}

// RegisterLiquidStaking wires a liquid-staking client used to compose the
// exchange-rate-adjusted price for a staked-asset underlying id.
func (o *Oracle) RegisterLiquidStaking(underlyingID string, client liquidstaking.Client) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.staking[underlyingID] = client
}

// SetMethod lets an admin explicitly force a token's pricing method,
// including un-pausing it by selecting a non-Default method: a paused token
// fails PriceInNumeraire unless a non-Default method is explicitly set.
func (o *Oracle) SetMethod(underlyingID string, method PricingMethod) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := o.stateLocked(underlyingID)
	st.method = method
	if method != MethodDefault {
		st.paused = false
	}
}

func (o *Oracle) stateLocked(underlyingID string) *tokenState {
	st, ok := o.states[underlyingID]
	if !ok {
		st = &tokenState{lastPrice: wad.Zero()}
		o.states[underlyingID] = st
	}
	return st
}

// IsPriceOracle reports that this type satisfies the external price-oracle
// interface money markets consume.
func (o *Oracle) IsPriceOracle() bool { return true }

// PriceInNumeraire resolves the WAD price of underlyingID. Fails with
// ErrNoRoute when there is no configured route, ErrTokenPaused when pricing
// has been auto-paused and no override method is set.
func (o *Oracle) PriceInNumeraire(underlyingID string) (*big.Int, error) {
	if underlyingID != "" {
		switch underlyingID {
		case o.cfg.WEGLDID:
			return wad.One(), nil
		case o.cfg.SEGLDID, o.cfg.STAOID:
			return o.composeLiquidStakingPrice(underlyingID)
		case o.cfg.USHID:
			return o.priceUSH()
		}
	}

	o.mu.Lock()
	st := o.stateLocked(underlyingID)
	method := st.method
	paused := st.paused
	o.mu.Unlock()

	if paused && method == MethodDefault {
		return nil, ErrTokenPaused
	}

	switch method {
	case MethodInstantaneous, MethodSafe:
		if o.anchor == nil {
			return nil, ErrNoRoute
		}
		price, err := o.anchor.SafePrice(underlyingID)
		if err != nil {
			return nil, err
		}
		if price == nil || price.Sign() <= 0 {
			return nil, ErrInvalidPrice
		}
		return price, nil
	case MethodPriceAggregator:
		if o.reporter == nil {
			return nil, ErrNoRoute
		}
		price, err := o.fetchAggregatorPrice(underlyingID)
		if err != nil {
			return nil, err
		}
		if price == nil || price.Sign() <= 0 {
			return nil, ErrInvalidPrice
		}
		return price, nil
	default:
		return o.resolveDefault(underlyingID)
	}
}

// aggregatorLimiter returns (creating if absent) the token-bucket limiter
// throttling reporter.AggregatorPrice calls for underlyingID.
func (o *Oracle) aggregatorLimiter(underlyingID string) *rate.Limiter {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.limiters[underlyingID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(aggregatorRatePerSecond), aggregatorBurst)
		o.limiters[underlyingID] = l
	}
	return l
}

// fetchAggregatorPrice calls reporter.AggregatorPrice for underlyingID,
// rejecting the call with ErrAggregatorThrottled once the per-underlying
// token bucket is exhausted rather than hammering the feed.
func (o *Oracle) fetchAggregatorPrice(underlyingID string) (*big.Int, error) {
	if !o.aggregatorLimiter(underlyingID).Allow() {
		return nil, ErrAggregatorThrottled
	}
	return o.reporter.AggregatorPrice(underlyingID)
}

// resolveDefault implements the anchor/reporter reconciliation algorithm
// used by MethodDefault.
func (o *Oracle) resolveDefault(underlyingID string) (*big.Int, error) {
	if o.anchor == nil || o.reporter == nil {
		return nil, ErrNoRoute
	}
	anchorPrice, err := o.anchor.SafePrice(underlyingID)
	if err != nil {
		return nil, err
	}
	reporterPrice, err := o.fetchAggregatorPrice(underlyingID)
	if err != nil {
		return nil, err
	}
	if anchorPrice == nil || anchorPrice.Sign() <= 0 || reporterPrice == nil || reporterPrice.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}

	ratio := wad.Div(anchorPrice, reporterPrice)

	o.mu.Lock()
	defer o.mu.Unlock()
	st := o.stateLocked(underlyingID)

	if o.cfg.FirstBand.contains(ratio) {
		st.reliable = true
		st.paused = false
		st.lastPrice = wad.Clone(reporterPrice)
		return wad.Clone(reporterPrice), nil
	}

	if o.cfg.LastBand.contains(ratio) {
		if !st.reliable {
			return nil, ErrNotReliable
		}
		st.reliable = false
		o.events = append(o.events, Event{Kind: "first_anchor_surpassed", UnderlyingID: underlyingID})
		return wad.Clone(st.lastPrice), nil
	}

	st.paused = true
	o.events = append(o.events, Event{Kind: "last_anchor_surpassed", UnderlyingID: underlyingID})
	return wad.Clone(st.lastPrice), nil
}

func (o *Oracle) composeLiquidStakingPrice(underlyingID string) (*big.Int, error) {
	o.mu.RLock()
	client := o.staking[underlyingID]
	o.mu.RUnlock()
	if client == nil {
		return nil, ErrStakingCompose
	}
	fx, err := client.ExchangeRate()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStakingCompose, err)
	}
	underlyingPrice, err := o.PriceInNumeraire(underlyingIDForLiquidStaking(underlyingID, o.cfg))
	if err != nil {
		return nil, err
	}
	return wad.Mul(fx, underlyingPrice), nil
}

func underlyingIDForLiquidStaking(stakedID string, cfg Config) string {
	// The wrapped leg that backs the liquid-staking derivative is always
	// priced as wrapped-EGLD in this protocol's numeraire composition.
	if stakedID == cfg.SEGLDID || stakedID == cfg.STAOID {
		return cfg.WEGLDID
	}
	return cfg.EGLDID
}

// priceUSH prices USH via the configured fallback stable's DEX pair scaled by
// a Price-Aggregator USD/EGLD quote.
func (o *Oracle) priceUSH() (*big.Int, error) {
	if strings.TrimSpace(o.cfg.USHFallback) == "" {
		return nil, ErrFallbackNotConfig
	}
	if o.anchor == nil || o.reporter == nil {
		return nil, ErrNoRoute
	}
	fallbackDexPrice, err := o.anchor.SafePrice(o.cfg.USHFallback)
	if err != nil {
		return nil, err
	}
	usdPerEgld, err := o.reporter.AggregatorPrice("USD/EGLD")
	if err != nil {
		return nil, err
	}
	if fallbackDexPrice == nil || fallbackDexPrice.Sign() <= 0 || usdPerEgld == nil || usdPerEgld.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	return wad.Div(fallbackDexPrice, usdPerEgld), nil
}

// DrainEvents returns and clears the buffered soft-transition events.
func (o *Oracle) DrainEvents() []Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.events
	o.events = nil
	return out
}

// fingerprint is used by cmd/lendingd's logging to avoid spamming raw
// addresses; kept here so the oracle package owns its own hashing helper.
func fingerprint(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h[:8])
}

// FormatPrice renders a WAD-scaled price as a human-readable decimal string
// tagged with a fingerprint of underlyingID, for cmd/lendingd's periodic
// price-refresh log lines. priceWAD is treated as an 18-decimal fixed-point
// value.
func (o *Oracle) FormatPrice(underlyingID string, priceWAD *big.Int) string {
	if priceWAD == nil {
		return fmt.Sprintf("%s=<nil>", fingerprint(underlyingID))
	}
	price := decimal.NewFromBigInt(priceWAD, -18)
	return fmt.Sprintf("%s=%s", fingerprint(underlyingID), price.String())
}
