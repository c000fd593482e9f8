// Package watermark tracks the last partition date whose export completed.
package watermark

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/points-exporter/internal/blobstore"
	"github.com/goccy/go-json"
)

// ErrNoState is returned by Load before the first watermark was saved.
var ErrNoState = errors.New("no watermark state")

// State is the persisted progress of the daily export.
type State struct {
	LastDate  civil.Date `json:"last_date"`
	UpdatedAt time.Time  `json:"updated_at"`
	Batches   int        `json:"batches"`
}

// Tracker reads and writes the state object in a blob store.
type Tracker struct {
	store blobstore.Store
	key   string
}

// NewTracker creates a Tracker for the object at key.
func NewTracker(store blobstore.Store, key string) *Tracker {
	return &Tracker{store: store, key: key}
}

// Load reads the saved state.
func (t *Tracker) Load(ctx context.Context) (State, error) {
	data, err := t.store.Get(ctx, t.key)
	if errors.Is(err, blobstore.ErrNotFound) {
		return State{}, ErrNoState
	}
	if err != nil {
		return State{}, fmt.Errorf("Load: %w", err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("Load: decoding %s: %w", t.key, err)
	}
	if !s.LastDate.IsValid() {
		return State{}, fmt.Errorf("Load: %s holds invalid last_date %q", t.key, s.LastDate)
	}
	return s, nil
}

// Save overwrites the saved state.
func (t *Tracker) Save(ctx context.Context, s State) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("Save: encoding state: %w", err)
	}
	if err := t.store.Put(ctx, t.key, data, "application/json"); err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}

// DateRange lists every date from start to end inclusive. It is empty when
// end is before start.
func DateRange(start, end civil.Date) []civil.Date {
	if end.Before(start) {
		return nil
	}
	dates := make([]civil.Date, 0, end.DaysSince(start)+1)
	for d := start; !d.After(end); d = d.AddDays(1) {
		dates = append(dates, d)
	}
	return dates
}

// NextWindow returns the dates after s.LastDate up to today minus lag days.
func NextWindow(s State, today civil.Date, lag int) []civil.Date {
	return DateRange(s.LastDate.AddDays(1), today.AddDays(-lag))
}
