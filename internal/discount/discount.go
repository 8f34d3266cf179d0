// Package discount implements the stablecoin borrower discount table: an
// ordered list of collateral entries, each contributing a discount rate
// weighted by how much of the borrower's USH debt that entry's collateral
// can cover.
package discount

import (
	"errors"
	"math/big"
	"sort"

	"nhblend/internal/wad"
)

// MaxEntries bounds the discount table the way the controller bounds a
// single account's market membership: a handful of fixed slots rather than
// an unbounded list, so iterating it is always cheap and deterministic.
const MaxEntries = 8

var (
	// ErrTableFull is returned when registering a ninth entry.
	ErrTableFull = errors.New("discount: table already holds the maximum number of entries")
	// ErrDuplicateEntry is returned when market is already registered.
	ErrDuplicateEntry = errors.New("discount: entry already registered for this market")
	// ErrUnknownEntry is returned when removing/updating a market not on the
	// table.
	ErrUnknownEntry = errors.New("discount: no entry registered for this market")
	// ErrInvalidDiscount is returned when a discount is outside [0, WAD].
	ErrInvalidDiscount = errors.New("discount: discount_bps must fit within one WAD")
)

// FXStrategy selects how an entry's exchange rate is sourced when computing
// a discount: Cached never calls out to the money market (used by
// observer-triggered recomputation, which must not recurse into another
// market's accrual), Updated fetches the live rate (used by direct user
// actions).
type FXStrategy int

const (
	FXCached FXStrategy = iota
	FXUpdated
)

// CollateralSource abstracts the controller/market calls discount needs:
// a borrower's collateral token balance in a market, the market's exchange
// rate under the requested strategy, and the UF (USH-borrower collateral
// factor) configured for that market.
type CollateralSource interface {
	AccountCollateralTokens(market, borrower string) (*big.Int, error)
	ExchangeRate(market string, strategy FXStrategy) (*big.Int, error)
	USHBorrowerCollateralFactor(market string) (*big.Int, error)
}

// PriceSource abstracts the oracle lookups discount needs.
type PriceSource interface {
	PriceInNumeraire(underlyingID string) (*big.Int, error)
}

// Entry is one row of the discount table.
type Entry struct {
	Market        string
	UnderlyingID  string
	DiscountBps   uint64
	LastExchangeRate *big.Int // captured at registration, refreshed by Update
}

// Table is the ordered, descending-by-discount list of entries.
type Table struct {
	entries []Entry
}

// New returns an empty discount table.
func New() *Table { return &Table{} }

// Add registers a new entry, keeping the table ordered by DiscountBps
// descending so higher-discount collateral is always consumed first.
func (t *Table) Add(market, underlyingID string, discountBps uint64, initialFX *big.Int) error {
	if len(t.entries) >= MaxEntries {
		return ErrTableFull
	}
	if discountBps > 10_000 {
		return ErrInvalidDiscount
	}
	for _, e := range t.entries {
		if e.Market == market {
			return ErrDuplicateEntry
		}
	}
	t.entries = append(t.entries, Entry{
		Market:           market,
		UnderlyingID:     underlyingID,
		DiscountBps:      discountBps,
		LastExchangeRate: wad.Clone(initialFX),
	})
	t.resort()
	return nil
}

// Remove deletes the entry for market.
func (t *Table) Remove(market string) error {
	for i, e := range t.entries {
		if e.Market == market {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return nil
		}
	}
	return ErrUnknownEntry
}

// SetDiscountBps updates an existing entry's discount rate and re-sorts.
func (t *Table) SetDiscountBps(market string, discountBps uint64) error {
	if discountBps > 10_000 {
		return ErrInvalidDiscount
	}
	for i := range t.entries {
		if t.entries[i].Market == market {
			t.entries[i].DiscountBps = discountBps
			t.resort()
			return nil
		}
	}
	return ErrUnknownEntry
}

// RefreshCachedRate updates the cached exchange rate for market so the next
// Cached lookup sees it. AccountDiscount's FXUpdated path refreshes the
// cached rate itself and does not call this method.
func (t *Table) RefreshCachedRate(market string, fx *big.Int) error {
	for i := range t.entries {
		if t.entries[i].Market == market {
			t.entries[i].LastExchangeRate = wad.Clone(fx)
			return nil
		}
	}
	return ErrUnknownEntry
}

func (t *Table) resort() {
	sort.SliceStable(t.entries, func(i, j int) bool {
		return t.entries[i].DiscountBps > t.entries[j].DiscountBps
	})
}

// Entries returns a defensive copy of the current table, highest discount first.
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// AccountDiscount computes the borrower's weighted average discount in WAD
// for the given USH-denominated borrow amount. Returns zero without
// touching any collateral source when borrow is zero or the table is
// empty.
func AccountDiscount(t *Table, borrower, ushUnderlyingID string, borrow *big.Int, strategy FXStrategy, collateral CollateralSource, prices PriceSource) (*big.Int, error) {
	if !wad.IsPositive(borrow) || len(t.entries) == 0 {
		return wad.Zero(), nil
	}

	pUSH, err := prices.PriceInNumeraire(ushUnderlyingID)
	if err != nil {
		return nil, err
	}
	if !wad.IsPositive(pUSH) {
		return nil, errors.New("discount: USH price must be positive")
	}

	remaining := wad.Clone(borrow)
	accumulated := wad.Zero()

	for i := range t.entries {
		entry := &t.entries[i]

		tokens, err := collateral.AccountCollateralTokens(entry.Market, borrower)
		if err != nil {
			return nil, err
		}
		if !wad.IsPositive(tokens) {
			continue
		}

		var fx *big.Int
		if strategy == FXCached {
			fx = wad.Clone(entry.LastExchangeRate)
		} else {
			fx, err = collateral.ExchangeRate(entry.Market, FXUpdated)
			if err != nil {
				return nil, err
			}
			entry.LastExchangeRate = wad.Clone(fx)
		}

		pi, err := prices.PriceInNumeraire(entry.UnderlyingID)
		if err != nil {
			return nil, err
		}
		ltv, err := collateral.USHBorrowerCollateralFactor(entry.Market)
		if err != nil {
			return nil, err
		}

		// discounted := tokens * ltv * fx * pi / (p_ush * WAD * WAD)
		numerator := new(big.Int).Mul(tokens, ltv)
		numerator.Mul(numerator, fx)
		numerator.Mul(numerator, pi)
		denominator := new(big.Int).Mul(pUSH, wad.WAD)
		denominator.Mul(denominator, wad.WAD)
		discounted := new(big.Int).Quo(numerator, denominator)

		eligible := wad.Min(discounted, remaining)

		contribution := wad.BpsOf(eligible, entry.DiscountBps)
		accumulated.Add(accumulated, contribution)
		remaining = wad.SafeSub(remaining, eligible)

		if remaining.Sign() == 0 {
			break
		}
	}

	return wad.Div(accumulated, borrow), nil
}
