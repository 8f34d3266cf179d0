// Package market implements a single money market (C3): interest accrual,
// mint/redeem of share tokens, borrow/repay, and the liquidation/seize
// pathway. A state-holding struct is wired to a storage/controller/event
// dependency set, with the mint/redeem/borrow/repay/seize accounting kept
// exact down to rounding direction.
package market

import (
	"errors"
	"math/big"

	"nhblend/internal/events"
	"nhblend/internal/ratemodel"
	"nhblend/internal/wad"
)

// State is the market's lifecycle state. The zero value, StateInactive,
// means a market must be explicitly activated before mint/borrow are
// allowed.
type State int

const (
	StateInactive State = iota
	StateActive
)

var (
	ErrNotActive               = errors.New("market: not active")
	ErrAmountMustBePositive    = errors.New("market: amount must be positive")
	ErrNotEnoughUnderlying     = errors.New("market: underlying amount too small to mint any tokens")
	ErrNotEnoughTokensToRedeem = errors.New("market: paid tokens do not cover the requested underlying amount")
	ErrInsufficientCash        = errors.New("market: cash insufficient once staking rewards are reserved")
	ErrNotFresh                = errors.New("market: interest has not been accrued for the current timestamp")
	ErrAddressesMustDiffer     = errors.New("market: payer and borrower must differ")
	ErrNotTrustedMinter        = errors.New("market: caller is not a trusted minter")
	ErrAlreadyTrustedMinter    = errors.New("market: already a trusted minter")
	ErrInvalidUnderlyingID     = errors.New("market: invalid underlying id")
	ErrInitialFXMustBePositive = errors.New("market: initial exchange rate must be positive")
)

// AccountSnapshot is a borrower's debt checkpoint: the principal owed as of
// borrowIndex, rescaled against the current index on read.
type AccountSnapshot struct {
	BorrowAmount *big.Int
	BorrowIndex  *big.Int
}

// Controller is the subset of the risk core a market calls into. A market
// never imports the controller package directly; the concrete
// *controller.Controller satisfies this interface structurally.
type Controller interface {
	MintAllowed(marketID string, amount, liquidity *big.Int) error
	RedeemAllowed(marketID, redeemer string, tokens *big.Int) error
	BorrowAllowed(marketID, borrower string, amount, totalBorrows *big.Int, callerIsMarket bool) error
	RepayBorrowAllowed(marketID, borrower string) error
	LiquidateBorrowAllowed(borrowMarketID, collateralMarketID string, amount, currentBorrow *big.Int) error
	LiquidateBorrowRiskCheck(borrower string) error
	SeizeAllowed(collateralMarketID, borrowMarketID, borrower string) error
	AccountCollateralTokens(marketID, account string) (*big.Int, error)
	SetAccountCollateralTokens(marketID, account string, tokens *big.Int) error
	TotalCollateralTokens(marketID string) (*big.Int, error)
	TryExitMarket(marketID, account string) error
}

// SeizeTarget is the collateral-side market a liquidation seizes from. A
// same-market liquidation calls it on itself; a cross-market liquidation
// calls the collateral market's Seize.
type SeizeTarget interface {
	Seize(liquidator, borrower string, tokens *big.Int) error
	UnderlyingID() string
	ExchangeRate() *big.Int
}

// Market holds one money market's full accounting state: cash,
// total_borrows, total_reserves and friends, the borrow index, and
// per-account snapshots, all in Go-native fields.
type Market struct {
	ID           string
	underlyingID string
	state        State

	cash                     *big.Int
	totalBorrows             *big.Int
	totalReserves            *big.Int
	stakingRewards           *big.Int
	historicalStakingRewards *big.Int
	revenue                  *big.Int
	totalSupply              *big.Int

	reserveFactor *big.Int // WAD
	stakeFactor   *big.Int // WAD

	accrualTimestamp     int64
	accrualTimeThreshold int64
	borrowIndex          *big.Int // WAD, starts at 1 WAD

	initialExchangeRate *big.Int // WAD

	closeFactor          *big.Int // WAD
	liquidationIncentive *big.Int // WAD
	protocolSeizeShare   *big.Int // WAD

	trustedMinters map[string]bool
	snapshots      map[string]AccountSnapshot

	model      *ratemodel.Model
	controller Controller
	oracle     Oracle
	sink       events.Sink
	now        func() int64
}

// Config carries the construction-time parameters of a market: the
// underlying identity, initial exchange rate, reserve/stake factor, close
// factor, liquidation incentive, protocol seize share, and accrual time
// threshold.
type Config struct {
	ID                   string
	UnderlyingID         string
	InitialExchangeRate  *big.Int
	ReserveFactor        *big.Int
	StakeFactor          *big.Int
	CloseFactor          *big.Int
	LiquidationIncentive *big.Int
	ProtocolSeizeShare   *big.Int
	AccrualTimeThreshold int64
}

// New constructs an inactive Market from cfg. Call SetController/SetSink
// before any mutating operation.
func New(cfg Config, model *ratemodel.Model, now func() int64) (*Market, error) {
	if cfg.UnderlyingID == "" {
		return nil, ErrInvalidUnderlyingID
	}
	if !wad.IsPositive(cfg.InitialExchangeRate) {
		return nil, ErrInitialFXMustBePositive
	}
	return &Market{
		ID:                       cfg.ID,
		underlyingID:             cfg.UnderlyingID,
		state:                    StateInactive,
		cash:                     wad.Zero(),
		totalBorrows:             wad.Zero(),
		totalReserves:            wad.Zero(),
		stakingRewards:           wad.Zero(),
		historicalStakingRewards: wad.Zero(),
		revenue:                  wad.Zero(),
		totalSupply:              wad.Zero(),
		reserveFactor:            wad.Clone(cfg.ReserveFactor),
		stakeFactor:              wad.Clone(cfg.StakeFactor),
		accrualTimeThreshold:     cfg.AccrualTimeThreshold,
		borrowIndex:              wad.One(),
		initialExchangeRate:      wad.Clone(cfg.InitialExchangeRate),
		closeFactor:              wad.Clone(cfg.CloseFactor),
		liquidationIncentive:     wad.Clone(cfg.LiquidationIncentive),
		protocolSeizeShare:       wad.Clone(cfg.ProtocolSeizeShare),
		trustedMinters:           make(map[string]bool),
		snapshots:                make(map[string]AccountSnapshot),
		model:                    model,
		now:                      now,
	}, nil
}

// SetController wires the risk core this market asks for permission.
func (m *Market) SetController(c Controller) { m.controller = c }

// SetSink wires the event log every mutating operation appends to.
func (m *Market) SetSink(sink events.Sink) { m.sink = sink }

// Activate/Deactivate flip the market's lifecycle state, mirroring
// try_set_market_state/set_market_state_internal.
func (m *Market) Activate()   { m.state = StateActive }
func (m *Market) Deactivate() { m.state = StateInactive }

// IsDeprecated satisfies controller.Market: a market is deprecated once
// explicitly deactivated after having been active.
func (m *Market) IsDeprecated() (bool, error) { return m.state == StateInactive, nil }

// UnderlyingID satisfies controller.Market.
func (m *Market) UnderlyingID() string { return m.underlyingID }

// CloseFactor satisfies controller.Market.
func (m *Market) CloseFactor() (*big.Int, error) { return wad.Clone(m.closeFactor), nil }

// AddTrustedMinter/RemoveTrustedMinter manage the set of contracts allowed
// to mint-and-enter-market on behalf of another account.
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

// Liquidity returns cash + total_borrows - total_reserves, the quantity fed
// to the interest rate model's utilisation computation.
func (m *Market) Liquidity() *big.Int {
	out := new(big.Int).Add(m.cash, m.totalBorrows)
	return out.Sub(out, m.totalReserves)
}

// ExchangeRate returns liquidity/total_supply, or the configured initial
// rate while total_supply is still zero.
func (m *Market) ExchangeRate() *big.Int {
	if m.totalSupply.Sign() == 0 {
		return wad.Clone(m.initialExchangeRate)
	}
	return wad.Div(m.Liquidity(), m.totalSupply)
}

func (m *Market) underlyingToTokens(amount *big.Int) *big.Int {
	return wad.Div(amount, m.ExchangeRate())
}

func (m *Market) tokensToUnderlying(tokens *big.Int) *big.Int {
	return wad.Mul(m.ExchangeRate(), tokens)
}

// BaseTotalBorrows discounts total_borrows back to the market's inception,
// the base rewards/discount computations accrue against:
// total_borrows*WAD/borrow_index.
func (m *Market) BaseTotalBorrows(_ string) (*big.Int, error) {
	return wad.Div(m.totalBorrows, m.borrowIndex), nil
}

// AccountBaseBorrow discounts a single account's owed amount the same way
// (get_base_account_borrow_amount).
func (m *Market) AccountBaseBorrow(_ string, account string) (*big.Int, error) {
	owed, _ := m.accountBorrowAmount(account)
	return wad.Div(owed, m.borrowIndex), nil
}

// accountBorrowAmount rescales a stored snapshot's principal against the
// current borrow index: snapshot.amount * borrow_index / snapshot.index.
func (m *Market) accountBorrowAmount(account string) (*big.Int, AccountSnapshot) {
	snap, ok := m.snapshots[account]
	if !ok {
		return wad.Zero(), AccountSnapshot{BorrowAmount: wad.Zero(), BorrowIndex: wad.One()}
	}
	owed := wad.MulDiv(snap.BorrowAmount, m.borrowIndex, snap.BorrowIndex)
	return owed, snap
}

func (m *Market) setAccountSnapshot(account string, amount *big.Int) {
	m.snapshots[account] = AccountSnapshot{BorrowAmount: wad.Clone(amount), BorrowIndex: wad.Clone(m.borrowIndex)}
}

// AccountSnapshot satisfies controller.Market: returns (owed, fx).
func (m *Market) AccountSnapshot(account string) (*big.Int, *big.Int, error) {
	owed, _ := m.accountBorrowAmount(account)
	return owed, m.ExchangeRate(), nil
}

func (m *Market) tryEnsureStakingRewards(amount *big.Int) error {
	if m.cash.Cmp(m.stakingRewards) < 0 {
		return ErrInsufficientCash
	}
	available := new(big.Int).Sub(m.cash, m.stakingRewards)
	if amount.Cmp(available) > 0 {
		return ErrInsufficientCash
	}
	return nil
}

func (m *Market) emit(e events.Event) {
	if m.sink != nil {
		m.sink.Record(e)
	}
}
