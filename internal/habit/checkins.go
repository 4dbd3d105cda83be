// Package habit models the slice of the habit store the scheduler needs:
// when the user last checked in.
package habit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"habitbell/internal/reminder"
	"habitbell/internal/storage"
)

// Key holds the check-in log document.
const Key = "habit.checkins.v1"

// keep bounds the stored history.
const keep = 60

type document struct {
	Last    time.Time   `json:"last"`
	History []time.Time `json:"history,omitempty"`
}

// CheckIns is a store-backed check-in log.
type CheckIns struct {
	mu    sync.Mutex
	store storage.Store
}

func NewCheckIns(store storage.Store) *CheckIns {
	return &CheckIns{store: store}
}

// Record stores a check-in. Check-ins older than the latest one are kept in
// history but don't move Last backwards.
func (c *CheckIns) Record(ctx context.Context, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, err := c.load(ctx)
	if err != nil {
		return err
	}
	if at.After(doc.Last) {
		doc.Last = at
	}
	doc.History = append(doc.History, at)
	if len(doc.History) > keep {
		doc.History = doc.History[len(doc.History)-keep:]
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, Key, b); err != nil {
		return fmt.Errorf("%w: record check-in: %w", reminder.ErrPersistence, err)
	}
	return nil
}

// Last returns the most recent check-in; ok is false when there is none.
func (c *CheckIns) Last(ctx context.Context) (time.Time, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, err := c.load(ctx)
	if err != nil {
		return time.Time{}, false, err
	}
	return doc.Last, !doc.Last.IsZero(), nil
}

// Streak counts consecutive calendar days with a check-in, ending today or
// yesterday, in loc.
func (c *CheckIns) Streak(ctx context.Context, now time.Time, loc *time.Location) (int, error) {
	c.mu.Lock()
	doc, err := c.load(ctx)
	c.mu.Unlock()
	if err != nil {
		return 0, err
	}
	days := map[string]bool{}
	for _, t := range doc.History {
		days[t.In(loc).Format(time.DateOnly)] = true
	}
	day := now.In(loc)
	if !days[day.Format(time.DateOnly)] {
		day = day.AddDate(0, 0, -1)
	}
	n := 0
	for days[day.Format(time.DateOnly)] {
		n++
		day = day.AddDate(0, 0, -1)
	}
	return n, nil
}

func (c *CheckIns) load(ctx context.Context) (document, error) {
	var doc document
	b, ok, err := c.store.Get(ctx, Key)
	if err != nil {
		return doc, fmt.Errorf("%w: read check-ins: %w", reminder.ErrPersistence, err)
	}
	if !ok {
		return doc, nil
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		// Unreadable log behaves like no check-ins yet.
		return document{}, nil
	}
	return doc, nil
}
