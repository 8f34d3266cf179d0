package controller

import (
	"math/big"
	"sort"
)

// pendingCollateralFactors is a scheduled (apply_at_ts, next_CF, next_UF)
// change awaiting its timelock.
type pendingCollateralFactors struct {
	applyAtTS int64
	nextCF    *big.Int
	nextUF    *big.Int
}

// marketRisk holds the per-market collateral-factor state: the live CF/UF
// pair plus any pending decrease.
type marketRisk struct {
	cf, uf  *big.Int
	pending *pendingCollateralFactors

	mintPaused   bool
	borrowPaused bool
	seizePaused  bool

	liquidityCap *big.Int // nil = uncapped
	borrowCap    *big.Int // nil = uncapped

	totalCollateralTokens *big.Int
	accountTokens         map[string]*big.Int
}

func newMarketRisk() *marketRisk {
	return &marketRisk{
		cf:                    big.NewInt(0),
		uf:                    big.NewInt(0),
		totalCollateralTokens: big.NewInt(0),
		accountTokens:         make(map[string]*big.Int),
	}
}

// BoosterObserver mirrors the controller's booster notification contract:
// v1 receives only the post-state token balance, v2 additionally receives
// the pre-state balance so it can compute a delta without a second read.
type BoosterObserver interface {
	OnCollateralChanged(market, account string, tokens *big.Int)
}

// BoosterObserverV2 additionally receives the pre-change token balance.
type BoosterObserverV2 interface {
	OnCollateralChangedV2(market, account string, prevTokens, tokens *big.Int)
}

// USHMarketObserver is notified so the USH market can re-evaluate a
// borrower's discount using only cached exchange rates: notifications must
// never recurse into another market's accrual.
type USHMarketObserver interface {
	OnMarketMembershipChanged(market, account string)
}

// Controller is the risk core shared by every money market: whitelist,
// per-account membership, collateral-factor tiers, pause flags, and the
// policy gates every market action must clear.
type Controller struct {
	markets map[string]Market
	oracle  Oracle

	risk map[string]*marketRisk

	// accountMarkets preserves insertion order under the ≤8-membership
	// invariant and the "present iff tokens>0 ∨ borrow>0" rule.
	accountMarkets map[string][]string

	globalSeizePaused bool

	booster            BoosterObserver
	boosterV2          BoosterObserverV2
	ushMarketObserver  USHMarketObserver
	ushMarketObserverID string

	admin    string
	guardian string

	now func() int64
}

// New constructs an empty Controller. now supplies the wall-clock reader
// used for the collateral-factor timelock (tests typically inject a fake).
func New(oracle Oracle, admin, guardian string, now func() int64) *Controller {
	return &Controller{
		markets:        make(map[string]Market),
		oracle:         oracle,
		risk:           make(map[string]*marketRisk),
		accountMarkets: make(map[string][]string),
		admin:          admin,
		guardian:       guardian,
		now:            now,
	}
}

// Whitelist adds market to the whitelist with an initial CF/UF of zero.
func (c *Controller) Whitelist(marketID string, m Market) error {
	if _, ok := c.markets[marketID]; ok {
		return ErrAlreadyWhitelisted
	}
	c.markets[marketID] = m
	c.risk[marketID] = newMarketRisk()
	return nil
}

// IsWhitelisted reports whether marketID has been whitelisted.
func (c *Controller) IsWhitelisted(marketID string) bool {
	_, ok := c.markets[marketID]
	return ok
}

// SetUSHMarketObserver registers the USH market as the sole USH-market
// observer, keyed by its market ID.
func (c *Controller) SetUSHMarketObserver(marketID string, observer USHMarketObserver) {
	c.ushMarketObserverID = marketID
	c.ushMarketObserver = observer
}

// ClearUSHMarketObserver clears the USH market observer once the USH market
// is Finalized.
func (c *Controller) ClearUSHMarketObserver() {
	c.ushMarketObserverID = ""
	c.ushMarketObserver = nil
}

// SetBooster registers a v1 booster observer.
func (c *Controller) SetBooster(observer BoosterObserver) { c.booster = observer }

// SetBoosterV2 registers a v2 booster observer.
func (c *Controller) SetBoosterV2(observer BoosterObserverV2) { c.boosterV2 = observer }

// SetGlobalSeizePaused toggles the protocol-wide seize pause.
func (c *Controller) SetGlobalSeizePaused(paused bool) { c.globalSeizePaused = paused }

// SetMintPaused toggles a market's mint pause flag.
func (c *Controller) SetMintPaused(marketID string, paused bool) error {
	risk, ok := c.risk[marketID]
	if !ok {
		return ErrNotWhitelisted
	}
	risk.mintPaused = paused
	return nil
}

// SetBorrowPaused toggles a market's borrow pause flag.
func (c *Controller) SetBorrowPaused(marketID string, paused bool) error {
	risk, ok := c.risk[marketID]
	if !ok {
		return ErrNotWhitelisted
	}
	risk.borrowPaused = paused
	return nil
}

// SetSeizePaused toggles a market's seize pause flag.
func (c *Controller) SetSeizePaused(marketID string, paused bool) error {
	risk, ok := c.risk[marketID]
	if !ok {
		return ErrNotWhitelisted
	}
	risk.seizePaused = paused
	return nil
}

// SetLiquidityCap sets (or clears, with nil) a market's liquidity cap.
func (c *Controller) SetLiquidityCap(marketID string, cap *big.Int) error {
	risk, ok := c.risk[marketID]
	if !ok {
		return ErrNotWhitelisted
	}
	risk.liquidityCap = cap
	return nil
}

// SetBorrowCap sets (or clears, with nil) a market's borrow cap.
func (c *Controller) SetBorrowCap(marketID string, cap *big.Int) error {
	risk, ok := c.risk[marketID]
	if !ok {
		return ErrNotWhitelisted
	}
	risk.borrowCap = cap
	return nil
}

// AccountMarkets returns the ordered list of markets account currently
// belongs to.
func (c *Controller) AccountMarkets(account string) []string {
	out := make([]string, len(c.accountMarkets[account]))
	copy(out, c.accountMarkets[account])
	return out
}

// AccountCollateralTokens returns account's escrowed share-token balance in
// marketID, zero if account has never entered the market.
func (c *Controller) AccountCollateralTokens(marketID, account string) (*big.Int, error) {
	risk, ok := c.risk[marketID]
	if !ok {
		return nil, ErrNotWhitelisted
	}
	if v, ok := risk.accountTokens[account]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

// enterMarket adds marketID to account's membership set if not already
// present, enforcing MaxMarketsPerAccount.
func (c *Controller) enterMarket(marketID, account string) error {
	for _, m := range c.accountMarkets[account] {
		if m == marketID {
			return nil
		}
	}
	if len(c.accountMarkets[account]) >= MaxMarketsPerAccount {
		return ErrTooManyMarkets
	}
	c.accountMarkets[account] = append(c.accountMarkets[account], marketID)
	return nil
}

// exitMarketIfEmpty removes marketID from account's membership once both
// its collateral tokens and borrow are zero.
func (c *Controller) exitMarketIfEmpty(marketID, account string) error {
	tokens, err := c.AccountCollateralTokens(marketID, account)
	if err != nil {
		return err
	}
	if tokens.Sign() != 0 {
		return nil
	}
	mkt, ok := c.markets[marketID]
	if !ok {
		return ErrNotWhitelisted
	}
	owed, _, err := mkt.AccountSnapshot(account)
	if err != nil {
		return err
	}
	if owed.Sign() != 0 {
		return nil
	}
	markets := c.accountMarkets[account]
	for i, m := range markets {
		if m == marketID {
			c.accountMarkets[account] = append(markets[:i], markets[i+1:]...)
			return nil
		}
	}
	return nil
}

// TryExitMarket re-checks marketID/account's exit condition after an event
// that does not itself change collateral tokens (a borrow repayment
// reaching zero).
func (c *Controller) TryExitMarket(marketID, account string) error {
	return c.exitMarketIfEmpty(marketID, account)
}

// SetAccountCollateralTokens is the controller's setter for a market,
// account's escrowed collateral-token balance, called by mint/redeem/seize.
// It auto-enters the account on a positive delta and exits it once both
// tokens and borrow return to zero.
func (c *Controller) SetAccountCollateralTokens(marketID, account string, tokens *big.Int) error {
	risk, ok := c.risk[marketID]
	if !ok {
		return ErrNotWhitelisted
	}
	prev, ok := risk.accountTokens[account]
	if !ok {
		prev = big.NewInt(0)
	}
	if tokens.Sign() != 0 {
		if err := c.enterMarket(marketID, account); err != nil {
			return err
		}
	}

	delta := new(big.Int).Sub(tokens, prev)
	risk.totalCollateralTokens.Add(risk.totalCollateralTokens, delta)
	risk.accountTokens[account] = new(big.Int).Set(tokens)

	c.notifyObservers(marketID, account, prev, tokens)

	if tokens.Sign() == 0 {
		if err := c.exitMarketIfEmpty(marketID, account); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) notifyObservers(marketID, account string, prev, tokens *big.Int) {
	if c.booster != nil {
		c.booster.OnCollateralChanged(marketID, account, tokens)
	}
	if c.boosterV2 != nil {
		c.boosterV2.OnCollateralChangedV2(marketID, account, prev, tokens)
	}
	if c.ushMarketObserver != nil {
		c.ushMarketObserver.OnMarketMembershipChanged(marketID, account)
	}
}

// TotalCollateralTokens returns the market-wide aggregate collateral-token
// balance, used by invariant checks and the rewards supply-side denominator.
func (c *Controller) TotalCollateralTokens(marketID string) (*big.Int, error) {
	risk, ok := c.risk[marketID]
	if !ok {
		return nil, ErrNotWhitelisted
	}
	return new(big.Int).Set(risk.totalCollateralTokens), nil
}

// sortedAccountsForMarket is a test/inspection helper returning the
// accounts holding a nonzero balance in marketID, sorted for determinism.
func (c *Controller) sortedAccountsForMarket(marketID string) []string {
	risk, ok := c.risk[marketID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(risk.accountTokens))
	for a := range risk.accountTokens {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
