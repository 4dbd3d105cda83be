package local

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"habitbell/internal/reminder"
	"habitbell/internal/storage"
	logx "habitbell/pkg/logx"
)

type recordingSink struct {
	mu  sync.Mutex
	got []reminder.Content
	ch  chan reminder.Content
	err error
}

func newSink() *recordingSink { return &recordingSink{ch: make(chan reminder.Content, 16)} }

func (s *recordingSink) Deliver(ctx context.Context, c reminder.Content, p reminder.Priority) error {
	s.mu.Lock()
	s.got = append(s.got, c)
	err := s.err
	s.mu.Unlock()
	select {
	case s.ch <- c:
	default:
	}
	return err
}

func newGateway(t *testing.T, cfg Config, sink *recordingSink, st storage.Store) *Gateway {
	t.Helper()
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	g, err := New(context.Background(), cfg, sink, st, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestInstallRecurringAndCancel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g := newGateway(t, Config{}, newSink(), storage.NewMemory())

	h1, err := g.Install(ctx, reminder.DailyAt(9, 0), reminder.DefaultContent(reminder.Motivational))
	if err != nil {
		t.Fatalf("install daily: %v", err)
	}
	h2, err := g.Install(ctx, reminder.WeeklyAt(time.Monday, 9, 0), reminder.DefaultContent(reminder.WeeklyReport))
	if err != nil {
		t.Fatalf("install weekly: %v", err)
	}
	if h1 == "" || h1 == h2 {
		t.Fatalf("handles must be unique and non-empty: %q %q", h1, h2)
	}

	got, _ := g.Scheduled(ctx)
	if len(got) != 2 {
		t.Fatalf("scheduled=%v want 2", got)
	}
	if err := g.Cancel(ctx, h1); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := g.Cancel(ctx, "no-such-handle"); err != nil {
		t.Fatalf("cancel unknown must be a no-op: %v", err)
	}
	got, _ = g.Scheduled(ctx)
	if len(got) != 1 || got[0] != h2 {
		t.Fatalf("scheduled=%v want [%s]", got, h2)
	}
	if err := g.CancelAll(ctx); err != nil {
		t.Fatalf("cancel all: %v", err)
	}
	got, _ = g.Scheduled(ctx)
	if len(got) != 0 {
		t.Fatalf("scheduled after cancel all=%v", got)
	}
}

func TestInstallRejects(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g := newGateway(t, Config{MaxPending: 1}, newSink(), storage.NewMemory())

	cases := []struct {
		name string
		tr   reminder.Trigger
	}{
		{"immediate", reminder.Immediate()},
		{"bad hour", reminder.DailyAt(24, 0)},
		{"past relative", reminder.RelativeAt(time.Now().Add(-time.Minute))},
	}
	for _, tc := range cases {
		if _, err := g.Install(ctx, tc.tr, reminder.Content{}); !errors.Is(err, reminder.ErrPlatformScheduling) {
			t.Fatalf("%s: err=%v want ErrPlatformScheduling", tc.name, err)
		}
	}

	if _, err := g.Install(ctx, reminder.DailyAt(8, 0), reminder.Content{}); err != nil {
		t.Fatalf("first install: %v", err)
	}
	if _, err := g.Install(ctx, reminder.DailyAt(9, 0), reminder.Content{}); !errors.Is(err, reminder.ErrPlatformScheduling) {
		t.Fatalf("over limit err=%v", err)
	}
}

func TestPermissionModes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	denied := newGateway(t, Config{Permission: PermissionDenied}, newSink(), nil)
	if ok, _ := denied.RequestPermission(ctx); ok {
		t.Fatalf("denied mode granted permission")
	}
	if _, err := denied.Install(ctx, reminder.DailyAt(9, 0), reminder.Content{}); !errors.Is(err, reminder.ErrPermissionDenied) {
		t.Fatalf("install err=%v want ErrPermissionDenied", err)
	}
	if err := denied.SendNow(ctx, reminder.Content{}, reminder.PriorityNormal); !errors.Is(err, reminder.ErrPermissionDenied) {
		t.Fatalf("send err=%v want ErrPermissionDenied", err)
	}

	prompt := newGateway(t, Config{Permission: PermissionPrompt}, newSink(), nil)
	if _, err := prompt.Install(ctx, reminder.DailyAt(9, 0), reminder.Content{}); !errors.Is(err, reminder.ErrPermissionDenied) {
		t.Fatalf("prompt before request err=%v", err)
	}
	if ok, err := prompt.RequestPermission(ctx); !ok || err != nil {
		t.Fatalf("request ok=%v err=%v", ok, err)
	}
	if _, err := prompt.Install(ctx, reminder.DailyAt(9, 0), reminder.Content{}); err != nil {
		t.Fatalf("prompt after request: %v", err)
	}

	if _, err := New(ctx, Config{Permission: "maybe"}, nil, nil, logx.Nop()); err == nil {
		t.Fatalf("unknown permission mode accepted")
	}
}

func TestSendNowDelivers(t *testing.T) {
	t.Parallel()
	sink := newSink()
	g := newGateway(t, Config{}, sink, nil)
	c := reminder.DefaultContent(reminder.Achievement)
	if err := g.SendNow(context.Background(), c, reminder.PriorityHigh); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(sink.got) != 1 || sink.got[0].Title != c.Title {
		t.Fatalf("delivered=%v", sink.got)
	}

	sink.err = errors.New("down")
	if err := g.SendNow(context.Background(), c, reminder.PriorityHigh); !errors.Is(err, reminder.ErrPlatformScheduling) {
		t.Fatalf("err=%v", err)
	}
}

func TestRelativeFiresOnceAndIsForgotten(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sink := newSink()
	g := newGateway(t, Config{}, sink, storage.NewMemory())
	g.Start(ctx)
	defer g.Stop(ctx)

	h, err := g.Install(ctx, reminder.RelativeAt(time.Now().Add(30*time.Millisecond)), reminder.DefaultContent(reminder.StreakWarning))
	if err != nil {
		t.Fatalf("install: %v", err)
	}

	select {
	case c := <-sink.ch:
		if c.Type != reminder.StreakWarning {
			t.Fatalf("fired type=%s", c.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("relative trigger did not fire")
	}

	got, _ := g.Scheduled(ctx)
	for _, x := range got {
		if x == h {
			t.Fatalf("one-shot handle still pending after firing")
		}
	}
}

func TestOnFiredReportsOneShotsOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g := newGateway(t, Config{}, newSink(), nil)

	type fired struct {
		handle string
		typ    reminder.Type
	}
	got := make(chan fired, 4)
	g.OnFired(func(h string, typ reminder.Type) { got <- fired{h, typ} })
	g.Start(ctx)
	defer g.Stop(ctx)

	once, err := g.Install(ctx, reminder.RelativeAt(time.Now().Add(30*time.Millisecond)), reminder.DefaultContent(reminder.StreakWarning))
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	select {
	case f := <-got:
		if f.handle != once || f.typ != reminder.StreakWarning {
			t.Fatalf("fired=%+v want %s", f, once)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("fired hook not called")
	}

	// Recurring fires keep their handle and are not reported.
	g.fire(mustInstallDaily(t, g))
	select {
	case f := <-got:
		t.Fatalf("recurring fire reported: %+v", f)
	case <-time.After(50 * time.Millisecond):
	}
}

func mustInstallDaily(t *testing.T, g *Gateway) string {
	t.Helper()
	h, err := g.Install(context.Background(), reminder.DailyAt(9, 0), reminder.DefaultContent(reminder.DailyCheckIn))
	if err != nil {
		t.Fatalf("install daily: %v", err)
	}
	return h
}

func TestCancelledRelativeDoesNotFire(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sink := newSink()
	g := newGateway(t, Config{}, sink, nil)
	g.Start(ctx)
	defer g.Stop(ctx)

	h, err := g.Install(ctx, reminder.RelativeAt(time.Now().Add(40*time.Millisecond)), reminder.Content{Type: reminder.StreakWarning})
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if err := g.Cancel(ctx, h); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	select {
	case c := <-sink.ch:
		t.Fatalf("cancelled notification fired: %+v", c)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestInstalledSurviveRestart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()

	g1 := newGateway(t, Config{Permission: PermissionPrompt}, newSink(), st)
	if _, err := g1.RequestPermission(ctx); err != nil {
		t.Fatalf("request: %v", err)
	}
	daily, err := g1.Install(ctx, reminder.DailyAt(20, 0), reminder.DefaultContent(reminder.DailyCheckIn))
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	once, err := g1.Install(ctx, reminder.RelativeAt(time.Now().Add(time.Hour)), reminder.DefaultContent(reminder.StreakWarning))
	if err != nil {
		t.Fatalf("install: %v", err)
	}

	g2 := newGateway(t, Config{Permission: PermissionPrompt}, newSink(), st)
	got, _ := g2.Scheduled(ctx)
	if len(got) != 2 {
		t.Fatalf("restored=%v want [%s %s]", got, daily, once)
	}
	// Remembered grant.
	if _, err := g2.Install(ctx, reminder.DailyAt(9, 0), reminder.Content{}); err != nil {
		t.Fatalf("install after restart: %v", err)
	}
	p := g2.Pending()
	if len(p) != 3 || p[0].Next.After(p[len(p)-1].Next) {
		t.Fatalf("pending not ordered by next fire: %+v", p)
	}
}

func TestRestoreDropsExpiredOneShots(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()

	doc := state{Version: 1, Granted: true, Pending: []*installed{
		{Handle: "old", Trigger: reminder.RelativeAt(time.Now().Add(-time.Hour)), Content: reminder.Content{Type: reminder.StreakWarning}},
		{Handle: "keep", Trigger: reminder.DailyAt(7, 30), Content: reminder.Content{Type: reminder.DailyTip}},
		{Handle: "", Trigger: reminder.DailyAt(7, 30)},
	}}
	b, _ := json.Marshal(doc)
	if err := st.Set(ctx, StoreKey, b); err != nil {
		t.Fatalf("seed: %v", err)
	}

	g := newGateway(t, Config{}, newSink(), st)
	got, _ := g.Scheduled(ctx)
	if len(got) != 1 || got[0] != "keep" {
		t.Fatalf("restored=%v want [keep]", got)
	}

	raw, _, _ := st.Get(ctx, StoreKey)
	var after state
	if err := json.Unmarshal(raw, &after); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(after.Pending) != 1 {
		t.Fatalf("persisted pending=%d want 1", len(after.Pending))
	}
}
