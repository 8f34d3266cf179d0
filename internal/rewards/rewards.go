// Package rewards implements the per-market supply/borrow rewards batches:
// the index-accumulator state update, per-account distribution, claim (with
// an optional booster swap path), and the batch lifecycle operations.
package rewards

import (
	"errors"
	"math/big"

	"nhblend/internal/dex"
	"nhblend/internal/wad"
)

// MaxBatchesPerMarket caps how many concurrent batches a single market may
// carry.
const MaxBatchesPerMarket = 3

// Side distinguishes a supply-side batch from a borrow-side batch.
type Side int

const (
	SideSupply Side = iota
	SideBorrow
)

var (
	ErrTooManyBatches     = errors.New("rewards: market already holds max_rewards_batches")
	ErrUnknownBatch       = errors.New("rewards: no batch with this id")
	ErrNotFullyDistributed = errors.New("rewards: batch is not fully distributed")
	ErrNotExpired         = errors.New("rewards: batch has not expired")
	ErrForceRemoveToleranceExceeded = errors.New("rewards: undistributed remainder exceeds the 5% force-remove tolerance")
	ErrInvalidPeriod      = errors.New("rewards: period must fund a positive duration")
	ErrNoBooster          = errors.New("rewards: no booster registered for this token")
	ErrInsufficientBoosterBalance = errors.New("rewards: booster does not have enough amount_left")
	ErrSlippageExceeded   = errors.New("rewards: round-trip swap slippage exceeds max_slippage")
)

// Batch is one reward-emission schedule attached to a market's supply or
// borrow side.
type Batch struct {
	ID                uint64
	Market            string
	Side              Side
	TokenID           string
	Speed             *big.Int // WAD per second
	Index             *big.Int // WAD*WAD accumulator, starts at WAD*WAD
	LastTime          int64
	EndTime           int64
	DistributedAmount *big.Int
	TotalFunded       *big.Int // cumulative amount ever committed to this batch
}

func newBatch(id uint64, market string, side Side, tokenID string, speed, totalFunded *big.Int, now, endTime int64) *Batch {
	return &Batch{
		ID:                id,
		Market:            market,
		Side:              side,
		TokenID:           tokenID,
		Speed:             wad.Clone(speed),
		Index:             wadSquared(),
		LastTime:          now,
		EndTime:           endTime,
		DistributedAmount: wad.Zero(),
		TotalFunded:       wad.Clone(totalFunded),
	}
}

func wadSquared() *big.Int { return new(big.Int).Mul(wad.WAD, wad.WAD) }

// accountState is the per-(batch,account) snapshot required to compute a
// distribution delta.
type accountState struct {
	lastIndex *big.Int
}

// DenominatorSource supplies the state-update denominators: a market's
// total collateral tokens (supply side) and its base_total_borrows
// (borrow side; total_borrows discounted to inception).
type DenominatorSource interface {
	TotalCollateralTokens(market string) (*big.Int, error)
	BaseTotalBorrows(market string) (*big.Int, error)
}

// AccountBaseSource supplies the per-account base used for distribution:
// collateral tokens (supply) or discounted principal (borrow).
type AccountBaseSource interface {
	AccountCollateralTokens(market, account string) (*big.Int, error)
	AccountBaseBorrow(market, account string) (*big.Int, error)
}

// Manager owns every market's batch arrays and the account/claim state.
type Manager struct {
	batchesByMarket map[string][]*Batch
	positionByID    map[uint64]int // index into batchesByMarket[market]; keyed by ID only (IDs are globally unique)
	marketByID      map[uint64]string
	nextID          uint64

	accountState map[uint64]map[string]*accountState // batchID -> account -> state
	accrued      map[string]map[string]*big.Int      // account -> tokenID -> accrued

	undistributed map[string]*big.Int // tokenID -> undistributed amount

	boosters map[string]*Booster // tokenID -> booster

	denominators DenominatorSource
	accountBase  AccountBaseSource
	router       dex.Router
	wrapper      dex.EGLDWrapper
	governanceTokenID string
	wrappedEGLDID     string
}

// New constructs an empty rewards Manager.
func New(denominators DenominatorSource, accountBase AccountBaseSource, router dex.Router, wrapper dex.EGLDWrapper, governanceTokenID, wrappedEGLDID string) *Manager {
	return &Manager{
		batchesByMarket: make(map[string][]*Batch),
		positionByID:    make(map[uint64]int),
		marketByID:      make(map[uint64]string),
		accountState:    make(map[uint64]map[string]*accountState),
		accrued:         make(map[string]map[string]*big.Int),
		undistributed:   make(map[string]*big.Int),
		boosters:        make(map[string]*Booster),
		denominators:    denominators,
		accountBase:     accountBase,
		router:          router,
		wrapper:         wrapper,
		governanceTokenID: governanceTokenID,
		wrappedEGLDID:     wrappedEGLDID,
	}
}

// AddBatch appends a new batch to market with the given side, token, total
// reward amount, and period.
func (m *Manager) AddBatch(market string, side Side, tokenID string, amount *big.Int, period int64, now int64) (*Batch, error) {
	if len(m.batchesByMarket[market]) >= MaxBatchesPerMarket {
		return nil, ErrTooManyBatches
	}
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	speed := wad.Div(amount, big.NewInt(period))
	id := m.nextID + 1
	m.nextID = id

	batch := newBatch(id, market, side, tokenID, speed, amount, now, now+period)
	m.batchesByMarket[market] = append(m.batchesByMarket[market], batch)
	m.positionByID[id] = len(m.batchesByMarket[market]) - 1
	m.marketByID[id] = market
	m.accountState[id] = make(map[string]*accountState)
	return batch, nil
}

// AddFunds extends a batch's schedule at its current speed by the
// additional reward amount; if the batch had already expired it restarts
// from now.
func (m *Manager) AddFunds(batchID uint64, amount *big.Int, now int64) error {
	batch, err := m.batch(batchID)
	if err != nil {
		return err
	}
	dt := wad.Div(amount, batch.Speed)
	if !wad.IsPositive(dt) {
		return ErrInvalidPeriod
	}
	seconds := dt.Int64()
	if seconds <= 0 {
		return ErrInvalidPeriod
	}
	base := batch.EndTime
	if batch.LastTime == batch.EndTime {
		base = now
		batch.LastTime = now
	}
	batch.EndTime = base + seconds
	batch.TotalFunded.Add(batch.TotalFunded, amount)
	return nil
}

// UpdateSpeed changes a batch's speed, preserving the remaining reward
// amount and recomputing end_time so the same amount is emitted.
func (m *Manager) UpdateSpeed(batchID uint64, newSpeed *big.Int, now int64) error {
	batch, err := m.batch(batchID)
	if err != nil {
		return err
	}
	remaining := batch.EndTime - now
	if remaining < 0 {
		remaining = 0
	}
	oldDt := big.NewInt(remaining)
	// old_dt * old_speed / new_speed
	numerator := new(big.Int).Mul(oldDt, batch.Speed)
	newDt := new(big.Int).Quo(numerator, newSpeed)
	batch.Speed = wad.Clone(newSpeed)
	batch.EndTime = now + newDt.Int64()
	return nil
}

// UpdatePeriod recomputes speed to emit the remaining reward amount over a
// new period length.
func (m *Manager) UpdatePeriod(batchID uint64, newPeriod int64, now int64) error {
	if newPeriod <= 0 {
		return ErrInvalidPeriod
	}
	batch, err := m.batch(batchID)
	if err != nil {
		return err
	}
	remaining := batch.EndTime - now
	if remaining < 0 {
		remaining = 0
	}
	remainingAmount := new(big.Int).Mul(batch.Speed, big.NewInt(remaining))
	remainingAmount.Quo(remainingAmount, wad.WAD)
	batch.Speed = wad.Div(remainingAmount, big.NewInt(newPeriod))
	batch.EndTime = now + newPeriod
	return nil
}

// Cancel stops a batch immediately, returning the linear remainder that
// would otherwise have been emitted (speed * (end_time-now) / WAD) for the
// caller to refund.
func (m *Manager) Cancel(batchID uint64, now int64) (*big.Int, error) {
	batch, err := m.batch(batchID)
	if err != nil {
		return nil, err
	}
	remaining := batch.EndTime - now
	if remaining < 0 {
		remaining = 0
	}
	refund := new(big.Int).Mul(batch.Speed, big.NewInt(remaining))
	refund.Quo(refund, wad.WAD)
	batch.EndTime = now
	return refund, nil
}

// Remove deletes a fully-distributed batch, swap-removing it from the
// market's array and rewriting the moved batch's position index.
func (m *Manager) Remove(batchID uint64) error {
	return m.removeWithTolerance(batchID, false, nil, 0)
}

// ForceRemove removes a batch within a 5% undistributed tolerance after
// expiry. The Manager makes no caller check here.
func (m *Manager) ForceRemove(batchID uint64, totalFunded *big.Int, now int64) error {
	return m.removeWithTolerance(batchID, true, totalFunded, now)
}

func (m *Manager) removeWithTolerance(batchID uint64, forced bool, totalFunded *big.Int, now int64) error {
	market, ok := m.marketByID[batchID]
	if !ok {
		return ErrUnknownBatch
	}
	batch, err := m.batch(batchID)
	if err != nil {
		return err
	}

	if !forced {
		if batch.DistributedAmount.Cmp(batch.TotalFunded) < 0 {
			return ErrNotFullyDistributed
		}
	} else {
		if now < batch.EndTime {
			return ErrNotExpired
		}
		funded := batch.TotalFunded
		if totalFunded != nil {
			funded = totalFunded
		}
		remainder := wad.SafeSub(funded, batch.DistributedAmount)
		tolerance := wad.BpsOf(funded, 500) // 5%
		if remainder.Cmp(tolerance) > 0 {
			return ErrForceRemoveToleranceExceeded
		}
	}

	batches := m.batchesByMarket[market]
	pos := m.positionByID[batchID]
	last := len(batches) - 1
	batches[pos] = batches[last]
	m.positionByID[batches[pos].ID] = pos
	m.batchesByMarket[market] = batches[:last]

	delete(m.positionByID, batchID)
	delete(m.marketByID, batchID)
	delete(m.accountState, batchID)
	return nil
}

func (m *Manager) batch(id uint64) (*Batch, error) {
	market, ok := m.marketByID[id]
	if !ok {
		return nil, ErrUnknownBatch
	}
	pos, ok := m.positionByID[id]
	if !ok || pos >= len(m.batchesByMarket[market]) {
		return nil, ErrUnknownBatch
	}
	return m.batchesByMarket[market][pos], nil
}

// Batches returns a defensive copy of market's current batch list.
func (m *Manager) Batches(market string) []*Batch {
	src := m.batchesByMarket[market]
	out := make([]*Batch, len(src))
	copy(out, src)
	return out
}

// UndistributedRewards returns the amount of tokenID stranded by zero
// denominators or zero-rounding deltas.
func (m *Manager) UndistributedRewards(tokenID string) *big.Int {
	if v, ok := m.undistributed[tokenID]; ok {
		return wad.Clone(v)
	}
	return wad.Zero()
}

func (m *Manager) addUndistributed(tokenID string, amount *big.Int) {
	cur, ok := m.undistributed[tokenID]
	if !ok {
		cur = wad.Zero()
	}
	cur.Add(cur, amount)
	m.undistributed[tokenID] = cur
}
