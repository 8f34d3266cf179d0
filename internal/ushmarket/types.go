// Package ushmarket implements the USH stablecoin market (C4): a money
// market variant with a fixed exchange rate against its synthetic share
// token HUSH, an admin-bounded borrow rate in place of a curve, and a
// per-borrower discount that scales effective interest down based on the
// borrower's collateral held in other markets. It reuses the controller and
// discount packages rather than duplicating their policy/weighting logic.
package ushmarket

import (
	"errors"
	"math/big"

	"nhblend/internal/discount"
	"nhblend/internal/events"
	"nhblend/internal/wad"
)

// State is the market's lifecycle state. The zero value, StateEmpty, means
// the market has never been activated.
type State int

const (
	StateEmpty State = iota
	StateActive
	StateInactive
	StateFinalized
)

var (
	ErrNotActive               = errors.New("ushmarket: not active")
	ErrFinalized               = errors.New("ushmarket: market has finalized state")
	ErrAmountMustBePositive    = errors.New("ushmarket: amount must be positive")
	ErrAmountMustBeZero        = errors.New("ushmarket: amount must be zero for this interaction")
	ErrNotEnoughUSH            = errors.New("ushmarket: USH amount too small to mint any HUSH")
	ErrNotEnoughTokensToRedeem = errors.New("ushmarket: paid tokens do not cover the requested USH amount")
	ErrNotFresh                = errors.New("ushmarket: interest has not been accrued for the current timestamp")
	ErrAddressesMustDiffer     = errors.New("ushmarket: payer and borrower must differ")
	ErrCannotLiquidateSelf     = errors.New("ushmarket: borrower and liquidator must differ")
	ErrNotTrustedMinter        = errors.New("ushmarket: caller is not a trusted minter")
	ErrAlreadyTrustedMinter    = errors.New("ushmarket: already a trusted minter")
	ErrNotEligibleAsCollateral = errors.New("ushmarket: USH is not eligible as collateral")
	ErrNotAMarketObserver      = errors.New("ushmarket: not yet registered as the controller's USH market observer")
	ErrNotFacilitator          = errors.New("ushmarket: not yet granted the USH facilitator role")
	ErrBorrowRateUndefined     = errors.New("ushmarket: borrow rate has not been set")
	ErrDiscountModelUndefined  = errors.New("ushmarket: discount rate model has not been set")
	ErrBorrowRateIsZero        = errors.New("ushmarket: borrow rate cannot be zero")
	ErrBorrowRateUnchanged     = errors.New("ushmarket: new borrow rate equals the current one")
	ErrBorrowRateChangeTooLarge = errors.New("ushmarket: borrow rate change exceeds the allowed step")
	ErrBorrowRateIncreaseTooSoon = errors.New("ushmarket: borrow rate increases require the delay to have elapsed")
	ErrInitialBorrowRateTooHigh  = errors.New("ushmarket: initial borrow rate exceeds the allowed maximum")
	ErrCloseFactorTooLow       = errors.New("ushmarket: close factor below the allowed minimum")
	ErrCloseFactorTooHigh      = errors.New("ushmarket: close factor above one WAD")
	ErrStakeFactorTooHigh      = errors.New("ushmarket: stake factor above one WAD")
	ErrAccrualThresholdTooHigh = errors.New("ushmarket: accrual time threshold exceeds the allowed maximum")
	ErrNotDeprecated           = errors.New("ushmarket: market is not yet deprecated")
	ErrHasBorrowers            = errors.New("ushmarket: market still has outstanding borrowers")
	ErrAccountNotBorrower      = errors.New("ushmarket: account is not a current borrower")
)

// InteractionType selects how updateBorrowsData folds amount into a
// borrower's current_borrow.
type InteractionType int

const (
	InteractionBorrow InteractionType = iota
	InteractionRepay
	InteractionEnterExit
)

// DiscountStrategy selects how updateBorrowsData recomputes a borrower's
// discount: liquidation reuses the pre-liquidation discount (it will be
// recomputed anyway once seize updates collateral), observer-triggered
// recomputation uses cached exchange rates to avoid recursing into another
// market's accrual, and direct user actions fetch live rates.
type DiscountStrategy int

const (
	DiscountPrevious DiscountStrategy = iota
	DiscountCached
	DiscountUpdated
)

// AccountSnapshot is a borrower's debt checkpoint, extended with the
// discount rate captured at the time of the snapshot.
type AccountSnapshot struct {
	BorrowAmount *big.Int
	BorrowIndex  *big.Int
	Discount     *big.Int
}

// Controller is the subset of the risk core this market calls into.
type Controller interface {
	MintAllowed(marketID string, amount, liquidity *big.Int) error
	BorrowAllowed(marketID, borrower string, amount, totalBorrows *big.Int, callerIsMarket bool) error
	RepayBorrowAllowed(marketID, borrower string) error
	LiquidateBorrowAllowed(borrowMarketID, collateralMarketID string, amount, currentBorrow *big.Int) error
	SeizeAllowed(collateralMarketID, borrowMarketID, borrower string) error
	AccountCollateralTokens(marketID, account string) (*big.Int, error)
	SetAccountCollateralTokens(marketID, account string, tokens *big.Int) error
	TotalCollateralTokens(marketID string) (*big.Int, error)
	TryExitMarket(marketID, account string) error
}

// SeizeTarget is the collateral-side market a liquidation seizes from.
type SeizeTarget interface {
	Seize(liquidator, borrower string, tokens *big.Int) error
	UnderlyingID() string
	ExchangeRate() *big.Int
}

// Oracle is the price source LiquidateBorrow uses to size a seize.
type Oracle interface {
	PriceInNumeraire(underlyingID string) (*big.Int, error)
}

// Minter is the subset of the external USH minter this market consumes: it
// mints USH on borrow, burns it on repay/mint, and is the sole source of
// truth for the facilitator role this market must hold before activating.
type Minter interface {
	Mint(amount *big.Int, destination string) error
	Burn(amount *big.Int) error
	IsFacilitator(marketID string) bool
}

// Market holds the USH market's full accounting state.
type Market struct {
	ID           string
	underlyingID string
	state        State

	totalBorrows      *big.Int
	effectiveBorrows  *big.Int
	totalPrincipal    *big.Int
	totalReserves     *big.Int
	stakingRewards    *big.Int
	historicalStakingRewards *big.Int
	revenue           *big.Int
	totalSupply       *big.Int

	eligibleAsCollateral bool

	borrowRate           *big.Int // WAD, per second
	lastBorrowRateUpdate int64

	stakeFactor          *big.Int // WAD
	closeFactor          *big.Int // WAD
	liquidationIncentive *big.Int // WAD
	protocolSeizeShare   *big.Int // WAD

	accrualTimestamp     int64
	accrualTimeThreshold int64
	borrowIndex          *big.Int // WAD, starts at 1 WAD

	trustedMinters  map[string]bool
	marketBorrowers map[string]bool
	snapshots       map[string]AccountSnapshot

	discountTable      *discount.Table
	discountCollateral discount.CollateralSource
	priceSource        discount.PriceSource

	controller Controller
	oracle     Oracle
	minter     Minter
	sink       events.Sink
	now        func() int64
}

// Config carries a USH market's construction-time parameters.
type Config struct {
	ID                   string
	UnderlyingID         string
	StakeFactor          *big.Int
	CloseFactor          *big.Int
	LiquidationIncentive *big.Int
	ProtocolSeizeShare   *big.Int
	AccrualTimeThreshold int64
	EligibleAsCollateral bool
}

// New constructs an empty-state Market from cfg.
func New(cfg Config, now func() int64) *Market {
	return &Market{
		ID:                       cfg.ID,
		underlyingID:             cfg.UnderlyingID,
		state:                    StateEmpty,
		totalBorrows:             wad.Zero(),
		effectiveBorrows:         wad.Zero(),
		totalPrincipal:           wad.Zero(),
		totalReserves:            wad.Zero(),
		stakingRewards:           wad.Zero(),
		historicalStakingRewards: wad.Zero(),
		revenue:                  wad.Zero(),
		totalSupply:              wad.Zero(),
		eligibleAsCollateral:     cfg.EligibleAsCollateral,
		stakeFactor:              wad.Clone(cfg.StakeFactor),
		closeFactor:              wad.Clone(cfg.CloseFactor),
		liquidationIncentive:     wad.Clone(cfg.LiquidationIncentive),
		protocolSeizeShare:       wad.Clone(cfg.ProtocolSeizeShare),
		accrualTimeThreshold:     cfg.AccrualTimeThreshold,
		borrowIndex:              wad.One(),
		trustedMinters:           make(map[string]bool),
		marketBorrowers:          make(map[string]bool),
		snapshots:                make(map[string]AccountSnapshot),
		discountTable:            discount.New(),
		now:                      now,
	}
}

// SetController wires the risk core this market asks for permission.
func (m *Market) SetController(c Controller) { m.controller = c }

// SetOracle wires the price source liquidation sizing consumes.
func (m *Market) SetOracle(o Oracle) { m.oracle = o }

// SetMinter wires the external USH minter this market mints/burns through.
func (m *Market) SetMinter(mn Minter) { m.minter = mn }

// SetSink wires the event log every mutating operation appends to.
func (m *Market) SetSink(sink events.Sink) { m.sink = sink }

// SetDiscountSource wires the cross-market collateral/exchange-rate/price
// lookups the discount table needs to weigh a borrower's other collateral.
func (m *Market) SetDiscountSource(collateral discount.CollateralSource, prices discount.PriceSource) {
	m.discountCollateral = collateral
	m.priceSource = prices
}

// DiscountTable exposes the registered collateral-discount entries so an
// admin surface can add/remove/update them.
func (m *Market) DiscountTable() *discount.Table { return m.discountTable }

// UnderlyingID satisfies controller.Market.
func (m *Market) UnderlyingID() string { return m.underlyingID }

// IsActive reports whether the market has been activated.
func (m *Market) IsActive() bool { return m.state == StateActive }

// IsFinalized reports whether the market has been finalized.
func (m *Market) IsFinalized() bool { return m.state == StateFinalized }

// CloseFactor satisfies controller.Market.
func (m *Market) CloseFactor() (*big.Int, error) { return wad.Clone(m.closeFactor), nil }

// IsDeprecated satisfies controller.Market: CF=0, borrow paused and
// reserve_factor=1 are all enforced at the controller layer for this
// market's whitelist entry; this market's own reserve factor is fixed to
// one WAD by construction, since every accrued interest unit is routed to
// reserves.
func (m *Market) IsDeprecated() (bool, error) { return m.state == StateInactive, nil }

// ExchangeRate returns the fixed USH/HUSH scale ratio: 10^(18+18)/10^8.
func (m *Market) ExchangeRate() *big.Int { return exchangeRate }

var exchangeRate = computeExchangeRate()

func computeExchangeRate() *big.Int {
	ushScale := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	hushScale := new(big.Int).Exp(big.NewInt(10), big.NewInt(8), nil)
	out := new(big.Int).Mul(ushScale, wad.WAD)
	return out.Quo(out, hushScale)
}

// Liquidity returns total_supply·exchange_rate/WAD, i.e. the USH value of
// HUSH currently in circulation.
func (m *Market) Liquidity() *big.Int { return m.ushFromHush(m.totalSupply) }

func (m *Market) ushFromHush(tokens *big.Int) *big.Int { return wad.Mul(m.ExchangeRate(), tokens) }

func (m *Market) hushFromUsh(amount *big.Int) *big.Int { return wad.Div(amount, m.ExchangeRate()) }

// AddTrustedMinter/RemoveTrustedMinter manage the set of smart contracts
// allowed to mint-and-enter-market on behalf of another account.
func (m *Market) AddTrustedMinter(id string) error {
	if m.trustedMinters[id] {
		return ErrAlreadyTrustedMinter
	}
	m.trustedMinters[id] = true
	return nil
}

func (m *Market) RemoveTrustedMinter(id string) error {
	if !m.trustedMinters[id] {
		return ErrNotTrustedMinter
	}
	delete(m.trustedMinters, id)
	return nil
}

func (m *Market) isTrustedMinter(id string) bool { return m.trustedMinters[id] }

// AccountSnapshot satisfies controller.Market: returns (owed, fx). fx is
// always the fixed ExchangeRate.
func (m *Market) AccountSnapshot(account string) (*big.Int, *big.Int, error) {
	owed := m.currentBorrowAmount(m.snapshots[account], m.borrowIndex)
	return owed, m.ExchangeRate(), nil
}

// BaseTotalBorrows returns total_principal, the base rewards computations
// accrue against.
func (m *Market) BaseTotalBorrows(_ string) (*big.Int, error) { return wad.Clone(m.totalPrincipal), nil }

// AccountBaseBorrow returns a single account's stored principal.
func (m *Market) AccountBaseBorrow(_ string, account string) (*big.Int, error) {
	snap, ok := m.snapshots[account]
	if !ok {
		return wad.Zero(), nil
	}
	return wad.Clone(snap.BorrowAmount), nil
}

// currentBorrowAmount rescales a stored snapshot's principal against the
// current borrow index with the snapshot's discount applied:
//
//	borrow = borrow_prev * (market_index*(WAD-discount)/account_index + discount) / WAD
func (m *Market) currentBorrowAmount(snap AccountSnapshot, marketIndex *big.Int) *big.Int {
	if snap.BorrowAmount == nil || snap.BorrowAmount.Sign() == 0 {
		return wad.Zero()
	}
	wadMinusDiscount := wad.SafeSub(wad.WAD, snap.Discount)
	term := new(big.Int).Mul(marketIndex, wadMinusDiscount)
	term.Quo(term, snap.BorrowIndex)
	term.Add(term, snap.Discount)
	out := new(big.Int).Mul(snap.BorrowAmount, term)
	return out.Quo(out, wad.WAD)
}

func (m *Market) emit(e events.Event) {
	if m.sink != nil {
		m.sink.Record(e)
	}
}

func (m *Market) requireFresh() error {
	if m.now() != m.accrualTimestamp {
		return ErrNotFresh
	}
	return nil
}
