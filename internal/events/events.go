// Package events defines the typed, state-mutating event records emitted by
// every public operation in the engine: every state-mutating action emits
// a typed log with indexed principals, sufficient to reconstruct state
// incrementally. Persistence is pluggable: callers may wire a durable Store
// (gorm/sqlite) or the in-memory Recorder used by tests.
package events

import (
	"math/big"

	"github.com/google/uuid"
)

// Kind enumerates the event types the engine emits. New kinds are additive;
// existing ones are never renumbered once observed by a downstream consumer.
type Kind string

const (
	KindInterestAccrued       Kind = "interest_accrued"
	KindMint                  Kind = "mint"
	KindRedeem                Kind = "redeem"
	KindBorrow                Kind = "borrow"
	KindRepay                 Kind = "repay"
	KindLiquidate             Kind = "liquidate"
	KindSeize                 Kind = "seize"
	KindCollateralFactorsSet  Kind = "collateral_factors_set"
	KindCollateralFactorsPromoted Kind = "collateral_factors_promoted"
	KindPendingCFCleared      Kind = "pending_collateral_factors_cleared"
	KindMarketEntered         Kind = "market_entered"
	KindMarketExited          Kind = "market_exited"
	KindRewardsBatchAdded     Kind = "rewards_batch_added"
	KindRewardsBatchUpdated   Kind = "rewards_batch_updated"
	KindRewardsBatchRemoved   Kind = "rewards_batch_removed"
	KindRewardsBatchForceRemoved Kind = "rewards_batch_force_removed"
	KindRewardsClaimed        Kind = "rewards_claimed"
	KindDiscountUpdated       Kind = "ush_discount_updated"
	KindOracleAnchorSurpassed Kind = "oracle_anchor_surpassed"
	KindOracleTokenPaused     Kind = "oracle_token_paused"
	KindReduceReserves        Kind = "reduce_reserves"
)

// Event is a single typed log record. Principals is an open field set so
// that each component can attach whatever indexed identifiers make the
// record self-describing without a central schema migration per event kind.
type Event struct {
	ID         string
	Kind       Kind
	Market     string
	Account    string
	Amounts    map[string]*big.Int
	Principals map[string]string
}

// New constructs an Event with a fresh correlation ID.
func New(kind Kind, market, account string) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		Market:     market,
		Account:    account,
		Amounts:    make(map[string]*big.Int),
		Principals: make(map[string]string),
	}
}

// WithAmount attaches a named WAD/underlying-scale amount to the event.
func (e Event) WithAmount(name string, v *big.Int) Event {
	if v != nil {
		e.Amounts[name] = new(big.Int).Set(v)
	}
	return e
}

// WithPrincipal attaches a named string principal (address, token id, ...).
func (e Event) WithPrincipal(name, value string) Event {
	e.Principals[name] = value
	return e
}

// Sink receives committed events. Implementations must not block the
// transaction that produced them for longer than an in-process append.
type Sink interface {
	Record(Event)
}

// Recorder is an in-memory Sink used by tests and by callers that only need
// the events for the duration of one process, before they are exported and
// flushed.
type Recorder struct {
	events []Event
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Record(e Event) { r.events = append(r.events, e) }

func (r *Recorder) All() []Event {
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) OfKind(kind Kind) []Event {
	var out []Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
