package events

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// record is the gorm-mapped row for a persisted Event, following the
// services/otc-gateway/models.Event audit-trail shape but keyed on the
// engine's own correlation ID rather than a generated uuid column.
type record struct {
	ID        string `gorm:"primaryKey;size:64"`
	Kind      string `gorm:"size:64;index"`
	Market    string `gorm:"size:128;index"`
	Account   string `gorm:"size:128;index"`
	Amounts   string `gorm:"type:text"`
	CreatedAt time.Time
}

func (record) TableName() string { return "engine_events" }

func toRecord(e Event) (record, error) {
	amounts := make(map[string]string, len(e.Amounts))
	for k, v := range e.Amounts {
		amounts[k] = v.String()
	}
	payload, err := json.Marshal(amounts)
	if err != nil {
		return record{}, fmt.Errorf("events: marshal amounts: %w", err)
	}
	return record{
		ID:        e.ID,
		Kind:      string(e.Kind),
		Market:    e.Market,
		Account:   e.Account,
		Amounts:   string(payload),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Store is a durable, gorm-backed Sink. It never returns an error from
// Record; persistence failures are recorded against the last error so the
// caller can surface them without the emitting operation itself failing on
// a logging concern: event emission must never fail the action it logs.
type Store struct {
	db      *gorm.DB
	lastErr error
}

// OpenStore opens (creating if absent) a sqlite-backed event store at dsn,
// mirroring services/otc-gateway/server's gorm.Open(sqlite.Open(dsn), ...)
// wiring.
func OpenStore(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("events: open store: %w", err)
	}
	if err := db.AutoMigrate(&record{}); err != nil {
		return nil, fmt.Errorf("events: migrate store: %w", err)
	}
	return &Store{db: db}, nil
}

// Record persists e, swallowing (and latching) any write error.
func (s *Store) Record(e Event) {
	r, err := toRecord(e)
	if err != nil {
		s.lastErr = err
		return
	}
	if err := s.db.Create(&r).Error; err != nil {
		s.lastErr = err
	}
}

// LastError returns the most recent persistence error, if any.
func (s *Store) LastError() error { return s.lastErr }

// ByAccount returns every persisted event touching account, oldest first.
func (s *Store) ByAccount(account string) ([]Event, error) {
	var rows []record
	if err := s.db.Where("account = ?", account).Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("events: query by account: %w", err)
	}
	return toEvents(rows)
}

// ByMarket returns every persisted event touching market, oldest first.
func (s *Store) ByMarket(market string) ([]Event, error) {
	var rows []record
	if err := s.db.Where("market = ?", market).Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("events: query by market: %w", err)
	}
	return toEvents(rows)
}

func toEvents(rows []record) ([]Event, error) {
	out := make([]Event, 0, len(rows))
	for _, r := range rows {
		var raw map[string]string
		if err := json.Unmarshal([]byte(r.Amounts), &raw); err != nil {
			return nil, fmt.Errorf("events: unmarshal amounts for %s: %w", r.ID, err)
		}
		amounts := make(map[string]*big.Int, len(raw))
		for k, v := range raw {
			n, ok := new(big.Int).SetString(v, 10)
			if !ok {
				return nil, fmt.Errorf("events: corrupt amount %q for %s", v, r.ID)
			}
			amounts[k] = n
		}
		out = append(out, Event{
			ID:         r.ID,
			Kind:       Kind(r.Kind),
			Market:     r.Market,
			Account:    r.Account,
			Amounts:    amounts,
			Principals: make(map[string]string),
		})
	}
	return out, nil
}
