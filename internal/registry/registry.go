// Package registry persists the set of notification handles believed to be
// active at the platform gateway, keyed by notification type.
//
// The whole mapping lives under one well-known key. Every mutation is a
// type-scoped read-modify-write serialized by a single writer lock, so
// concurrent operations on different types never lose each other's writes.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"habitbell/internal/reminder"
	"habitbell/internal/storage"
	logx "habitbell/pkg/logx"
)

// Key is the store key holding the encoded mapping.
const Key = "registry.v1"

// Registry is the durable type -> entries mapping.
//
// The in-memory copy is authoritative once loaded. Mutations write the new
// mapping to the store first and swap the in-memory copy only on success, so
// a failed write leaves both sides unchanged.
type Registry struct {
	store storage.Store
	log   logx.Logger
	now   func() time.Time

	mu      sync.Mutex
	loaded  bool
	entries map[reminder.Type][]reminder.Entry
}

func New(store storage.Store, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{
		store:   store,
		log:     log,
		now:     time.Now,
		entries: map[reminder.Type][]reminder.Entry{},
	}
}

// Load reads the persisted mapping and makes it the in-memory view.
//
// A missing key, unreadable store or corrupt payload all yield an empty
// mapping: losing track of old schedules is preferable to refusing to start.
func (r *Registry) Load(ctx context.Context) map[reminder.Type][]reminder.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loadLocked(ctx)
	return cloneMap(r.entries)
}

func (r *Registry) loadLocked(ctx context.Context) {
	r.loaded = true
	r.entries = map[reminder.Type][]reminder.Entry{}

	b, ok, err := r.store.Get(ctx, Key)
	if err != nil {
		r.log.Warn("registry read failed; starting empty", logx.Err(fmt.Errorf("%w: %v", reminder.ErrPersistence, err)))
		return
	}
	if !ok {
		r.log.Debug("registry empty")
		return
	}
	m, dropped, err := decode(b)
	if err != nil {
		r.log.Warn("registry corrupt; starting empty", logx.Err(err), logx.Int("bytes", len(b)))
		return
	}
	for _, d := range dropped {
		r.log.Warn("registry entry dropped", logx.String("type", d))
	}
	r.entries = m
	r.log.Debug("registry loaded", logx.Int("types", len(m)), logx.Int("entries", countEntries(m)))
}

// ReplaceType atomically swaps the entries recorded for t.
// An empty list removes the type's slot.
func (r *Registry) ReplaceType(ctx context.Context, t reminder.Type, entries []reminder.Entry) error {
	if !t.Scheduled() {
		return fmt.Errorf("%w: %s", reminder.ErrNotSchedulable, t)
	}
	for _, e := range entries {
		if e.Type != t {
			return fmt.Errorf("registry: entry %s has type %s, want %s", e.Handle, e.Type, t)
		}
		if e.Handle == "" {
			return errors.New("registry: entry without handle")
		}
	}
	return r.mutate(ctx, func(m map[reminder.Type][]reminder.Entry) {
		if len(entries) == 0 {
			delete(m, t)
			return
		}
		m[t] = append([]reminder.Entry(nil), entries...)
	})
}

// RemoveType atomically deletes and returns the entries recorded for t.
func (r *Registry) RemoveType(ctx context.Context, t reminder.Type) ([]reminder.Entry, error) {
	if !t.Scheduled() {
		return nil, fmt.Errorf("%w: %s", reminder.ErrNotSchedulable, t)
	}
	var prior []reminder.Entry
	err := r.mutate(ctx, func(m map[reminder.Type][]reminder.Entry) {
		prior = m[t]
		delete(m, t)
	})
	if err != nil {
		return nil, err
	}
	return prior, nil
}

// Clear atomically empties the whole mapping.
func (r *Registry) Clear(ctx context.Context) error {
	return r.mutate(ctx, func(m map[reminder.Type][]reminder.Entry) {
		for k := range m {
			delete(m, k)
		}
	})
}

// Entries returns a copy of the entries recorded for t.
func (r *Registry) Entries(t reminder.Type) []reminder.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]reminder.Entry(nil), r.entries[t]...)
}

// Snapshot returns a copy of the whole in-memory mapping.
func (r *Registry) Snapshot() map[reminder.Type][]reminder.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneMap(r.entries)
}

func (r *Registry) mutate(ctx context.Context, fn func(m map[reminder.Type][]reminder.Entry)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Never write before the persisted state was read, or other types' entries
	// would be overwritten by an empty view.
	if !r.loaded {
		r.loadLocked(ctx)
	}

	next := cloneMap(r.entries)
	fn(next)

	b, err := encode(next, r.now())
	if err != nil {
		return fmt.Errorf("%w: encode: %v", reminder.ErrPersistence, err)
	}
	if len(next) == 0 {
		err = r.store.Remove(ctx, Key)
	} else {
		err = r.store.Set(ctx, Key, b)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", reminder.ErrPersistence, err)
	}
	r.entries = next
	return nil
}

func cloneMap(in map[reminder.Type][]reminder.Entry) map[reminder.Type][]reminder.Entry {
	out := make(map[reminder.Type][]reminder.Entry, len(in))
	for k, v := range in {
		out[k] = append([]reminder.Entry(nil), v...)
	}
	return out
}

func countEntries(m map[reminder.Type][]reminder.Entry) int {
	n := 0
	for _, v := range m {
		n += len(v)
	}
	return n
}
