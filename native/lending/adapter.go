package lending

import (
	"errors"
	"math/big"

	"nhblend/crypto"
	"nhblend/internal/controller"
	"nhblend/internal/market"
)

var (
	ErrUnknownMarket     = errors.New("lending: unknown market id")
	ErrUnknownUnderlying = errors.New("lending: no credit sink registered for underlying")
	ErrRepayPaused       = errors.New("lending: repay is paused for this market")
)

// UnderlyingSink receives an underlying-asset credit to an account outside
// the share-token accounting a Market keeps for itself — the wallet-layer
// hook ReduceReserves needs to actually move funds to a recipient.
type UnderlyingSink interface {
	CreditUnderlying(underlyingID string, recipient crypto.Address, amount *big.Int)
}

// Ledger is the crypto.Address-facing account ledger: it is the only layer
// in this repository that knows both the chain's address type and the
// plain-string account keys internal/market and internal/controller use,
// and it is responsible for composing the two calls every market operation
// that changes collateral-token custody needs — the market mutation itself,
// and the controller.SetAccountCollateralTokens bookkeeping the market
// never does on its own (internal/market's Mint doc calls this out
// explicitly; Seize is the one exception that is already atomic).
type Ledger struct {
	controller *controller.Controller
	markets    map[string]*market.Market
	routing    map[string]CollateralRouting
	fees       map[string]*FeeAccrual
	pauses     map[string]ActionPauses
	oracleCfgs map[string]OracleConfig
	sink       UnderlyingSink
}

// NewLedger constructs a Ledger bound to the protocol-wide risk core. sink
// receives underlying payouts from fee withdrawals.
func NewLedger(c *controller.Controller, sink UnderlyingSink) *Ledger {
	return &Ledger{
		controller: c,
		markets:    make(map[string]*market.Market),
		routing:    make(map[string]CollateralRouting),
		fees:       make(map[string]*FeeAccrual),
		pauses:     make(map[string]ActionPauses),
		oracleCfgs: make(map[string]OracleConfig),
		sink:       sink,
	}
}

// RegisterMarket makes m reachable by the address-facing operations below
// under marketID, which must already be whitelisted with the controller.
// caps and pauses install the market's borrow throttle and per-action pause
// flags on the controller, the enforcement point every mint/borrow/seize
// already calls through.
func (l *Ledger) RegisterMarket(marketID string, m *market.Market, routing CollateralRouting, caps BorrowCaps, pauses ActionPauses, oracleCfg OracleConfig) error {
	l.markets[marketID] = m
	l.routing[marketID] = routing.Clone()
	l.fees[marketID] = &FeeAccrual{ProtocolFeesWei: big.NewInt(0), DeveloperFeesWei: big.NewInt(0)}
	l.pauses[marketID] = pauses
	l.oracleCfgs[marketID] = oracleCfg

	if err := l.controller.SetBorrowCap(marketID, caps.Total); err != nil {
		return err
	}
	if err := l.controller.SetMintPaused(marketID, pauses.Supply); err != nil {
		return err
	}
	if err := l.controller.SetBorrowPaused(marketID, pauses.Borrow); err != nil {
		return err
	}
	return l.controller.SetSeizePaused(marketID, pauses.Liquidate)
}

// ApplyRiskParameters installs rp's collateral-factor pair on the
// controller (subject to its decrease timelock) and, when
// rp.CircuitBreakerActive is set, pauses mint, borrow and seize on
// marketID (repay stays governed by the Ledger's ActionPauses.Repay) — the
// emergency stop a governance vote can trip without waiting for the
// timelock a CF/UF decrease would otherwise incur.
func (l *Ledger) ApplyRiskParameters(marketID string, rp RiskParameters) error {
	if err := l.controller.SetCollateralFactors(marketID, rp.MaxLTVWAD(), rp.LiquidationThresholdWAD()); err != nil {
		return err
	}
	if !rp.CircuitBreakerActive {
		return nil
	}
	if err := l.controller.SetMintPaused(marketID, true); err != nil {
		return err
	}
	if err := l.controller.SetBorrowPaused(marketID, true); err != nil {
		return err
	}
	return l.controller.SetSeizePaused(marketID, true)
}

func (l *Ledger) market(marketID string) (*market.Market, error) {
	m, ok := l.markets[marketID]
	if !ok {
		return nil, ErrUnknownMarket
	}
	return m, nil
}

// Supply deposits amount of marketID's underlying on behalf of account,
// minting share tokens and entering account into the market in the same
// call — the composition internal/market.Mint leaves to its caller.
func (l *Ledger) Supply(marketID string, account crypto.Address, amount *big.Int) (*big.Int, error) {
	m, err := l.market(marketID)
	if err != nil {
		return nil, err
	}
	key := account.String()
	tokens, err := m.Mint(key, key, amount)
	if err != nil {
		return nil, err
	}
	existing, err := l.controller.AccountCollateralTokens(marketID, key)
	if err != nil {
		return nil, err
	}
	newTokens := new(big.Int).Add(existing, tokens)
	if err := l.controller.SetAccountCollateralTokens(marketID, key, newTokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

// Withdraw redeems tokens of marketID's share token held by account,
// paying out the underlying. The market redeem runs first, so
// controller.RedeemAllowed checks the balance still on the controller's
// collateral-token ledger and simulates the redeem itself; the ledger is
// reduced only after the redeem succeeds.
func (l *Ledger) Withdraw(marketID string, account crypto.Address, tokens *big.Int) (*big.Int, error) {
	m, err := l.market(marketID)
	if err != nil {
		return nil, err
	}
	key := account.String()
	underlying, err := m.RedeemByTokens(key, tokens)
	if err != nil {
		return nil, err
	}
	existing, err := l.controller.AccountCollateralTokens(marketID, key)
	if err != nil {
		return nil, err
	}
	newTokens := new(big.Int).Sub(existing, tokens)
	if err := l.controller.SetAccountCollateralTokens(marketID, key, newTokens); err != nil {
		return nil, err
	}
	return underlying, nil
}

// Borrow draws amount of marketID's underlying against account's posted
// collateral elsewhere in the protocol.
func (l *Ledger) Borrow(marketID string, account crypto.Address, amount *big.Int) error {
	m, err := l.market(marketID)
	if err != nil {
		return err
	}
	return m.Borrow(account.String(), amount)
}

// Repay pays down borrower's debt in marketID on payer's behalf (payer and
// borrower may be the same account). internal/controller has no repay
// pause of its own (RepayBorrowAllowed only checks whitelisting), so the
// ledger enforces the ActionPauses.Repay switch directly.
func (l *Ledger) Repay(marketID string, payer, borrower crypto.Address, amount *big.Int) (repaid, leftover *big.Int, err error) {
	m, err := l.market(marketID)
	if err != nil {
		return nil, nil, err
	}
	if l.pauses[marketID].Repay {
		return nil, nil, ErrRepayPaused
	}
	return m.RepayBorrow(payer.String(), borrower.String(), amount)
}

// Liquidate repays borrower's debt in borrowMarketID with payment from
// liquidator, seizing the equivalent (plus incentive) collateral from
// collateralMarketID. The borrower's risk profile is checked up front;
// internal/market.LiquidateBorrow composes the seize call itself, which as
// of the seize fix credits the liquidator's share-token balance directly,
// so no further ledger bookkeeping is needed here.
func (l *Ledger) Liquidate(borrowMarketID, collateralMarketID string, liquidator, borrower crypto.Address, payment *big.Int) (seizedToLiquidator, totalSeized *big.Int, err error) {
	borrowMkt, err := l.market(borrowMarketID)
	if err != nil {
		return nil, nil, err
	}
	collateralMkt, err := l.market(collateralMarketID)
	if err != nil {
		return nil, nil, err
	}
	if err := l.controller.LiquidateBorrowRiskCheck(borrower.String()); err != nil {
		return nil, nil, err
	}
	return borrowMkt.LiquidateBorrow(liquidator.String(), borrower.String(), payment, collateralMarketID, collateralMkt)
}

// WithdrawProtocolFees pays out up to amount of marketID's withdrawable
// revenue to the registered protocol target. A nil amount withdraws the
// full balance.
func (l *Ledger) WithdrawProtocolFees(marketID string, amount *big.Int) (*big.Int, error) {
	m, err := l.market(marketID)
	if err != nil {
		return nil, err
	}
	routing := l.routing[marketID]
	if isZeroAddress(routing.ProtocolTarget) {
		return nil, ErrUnknownUnderlying
	}
	withdrawn, err := m.ReduceReserves(amount, routing.ProtocolTarget.String(), l)
	if err != nil {
		return nil, err
	}
	l.fees[marketID].ProtocolFeesWei = new(big.Int).Add(l.fees[marketID].ProtocolFeesWei, withdrawn)
	return withdrawn, nil
}

// WithdrawDeveloperFees mirrors WithdrawProtocolFees for the developer fee
// target recorded in marketID's collateral routing.
func (l *Ledger) WithdrawDeveloperFees(marketID string, amount *big.Int) (*big.Int, error) {
	m, err := l.market(marketID)
	if err != nil {
		return nil, err
	}
	routing := l.routing[marketID]
	if isZeroAddress(routing.DeveloperTarget) {
		return nil, ErrUnknownUnderlying
	}
	withdrawn, err := m.ReduceReserves(amount, routing.DeveloperTarget.String(), l)
	if err != nil {
		return nil, err
	}
	l.fees[marketID].DeveloperFeesWei = new(big.Int).Add(l.fees[marketID].DeveloperFeesWei, withdrawn)
	return withdrawn, nil
}

// OracleConfig returns marketID's price-feed freshness and deviation
// tolerances as recorded by RegisterMarket. The Ledger only stores them;
// nothing in this package or in cmd/lendingd applies them to a price.
func (l *Ledger) OracleConfig(marketID string) (OracleConfig, bool) {
	cfg, ok := l.oracleCfgs[marketID]
	return cfg, ok
}

// FeeAccrual reports the cumulative protocol/developer fees withdrawn from
// marketID since registration.
func (l *Ledger) FeeAccrual(marketID string) *FeeAccrual {
	f, ok := l.fees[marketID]
	if !ok {
		return nil
	}
	return f.Clone()
}

// CreditUnderlying satisfies market.ReserveSink by forwarding the payout to
// the wired UnderlyingSink, decoding destination back into a crypto.Address
// (ReduceReserves' destination string is always one this Ledger produced,
// via CollateralRouting's bech32-encoded targets).
func (l *Ledger) CreditUnderlying(underlyingID, destination string, amount *big.Int) {
	if l.sink == nil {
		return
	}
	addr, err := crypto.DecodeAddress(destination)
	if err != nil {
		return
	}
	l.sink.CreditUnderlying(underlyingID, addr, amount)
}
