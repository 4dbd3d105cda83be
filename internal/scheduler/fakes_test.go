package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"habitbell/internal/reminder"
	"habitbell/internal/storage"
)

// fakeGateway is an in-memory platform with injectable failures.
type fakeGateway struct {
	mu         sync.Mutex
	seq        int
	active     map[string]reminder.Trigger
	installs   int
	cancels    []string
	sent       []reminder.Content
	failAt     int // fail the n-th install (1-based, counted across calls); 0 never
	installErr error
	cancelErr  error
	allErr     error
	onInstall  func(n int)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{active: map[string]reminder.Trigger{}}
}

func (g *fakeGateway) Install(ctx context.Context, tr reminder.Trigger, c reminder.Content) (string, error) {
	g.mu.Lock()
	g.installs++
	n := g.installs
	hook := g.onInstall
	if g.installErr != nil {
		err := g.installErr
		g.mu.Unlock()
		return "", err
	}
	if g.failAt > 0 && n == g.failAt {
		g.mu.Unlock()
		return "", fmt.Errorf("%w: injected", reminder.ErrPlatformScheduling)
	}
	g.seq++
	h := fmt.Sprintf("h%d", g.seq)
	g.active[h] = tr
	g.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return h, nil
}

func (g *fakeGateway) Cancel(ctx context.Context, handle string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancels = append(g.cancels, handle)
	delete(g.active, handle)
	return g.cancelErr
}

func (g *fakeGateway) CancelAll(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.allErr != nil {
		return g.allErr
	}
	g.active = map[string]reminder.Trigger{}
	return nil
}

func (g *fakeGateway) SendNow(ctx context.Context, c reminder.Content, p reminder.Priority) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, c)
	return nil
}

func (g *fakeGateway) RequestPermission(ctx context.Context) (bool, error) { return true, nil }

func (g *fakeGateway) Scheduled(ctx context.Context) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.active))
	for h := range g.active {
		out = append(out, h)
	}
	sort.Strings(out)
	return out, nil
}

func (g *fakeGateway) activeHandles() []string {
	out, _ := g.Scheduled(context.Background())
	return out
}

func (g *fakeGateway) forget(handle string) {
	g.mu.Lock()
	delete(g.active, handle)
	g.mu.Unlock()
}

// noListGateway hides Scheduled.
type noListGateway struct{ *fakeGateway }

func (noListGateway) Scheduled() {}

// switchStore fails writes while failing is set.
type switchStore struct {
	*storage.Memory
	mu      sync.Mutex
	failing bool
}

var errWrite = errors.New("disk full")

func (s *switchStore) setFailing(v bool) {
	s.mu.Lock()
	s.failing = v
	s.mu.Unlock()
}

func (s *switchStore) fail() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failing
}

func (s *switchStore) Set(ctx context.Context, key string, value []byte) error {
	if s.fail() {
		return errWrite
	}
	return s.Memory.Set(ctx, key, value)
}

func (s *switchStore) Remove(ctx context.Context, key string) error {
	if s.fail() {
		return errWrite
	}
	return s.Memory.Remove(ctx, key)
}

type memCheckIns struct {
	mu   sync.Mutex
	last time.Time
}

func (m *memCheckIns) Record(ctx context.Context, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if at.After(m.last) {
		m.last = at
	}
	return nil
}

func (m *memCheckIns) Last(ctx context.Context) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, !m.last.IsZero(), nil
}
