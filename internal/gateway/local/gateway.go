package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"habitbell/internal/gateway"
	"habitbell/internal/reminder"
	"habitbell/internal/storage"
	"habitbell/internal/trigger"
	logx "habitbell/pkg/logx"
)

var _ gateway.Gateway = (*Gateway)(nil)
var _ gateway.Lister = (*Gateway)(nil)

type Gateway struct {
	mu sync.Mutex

	cfg   Config
	loc   *time.Location
	log   logx.Logger
	sink  gateway.Sink
	store storage.Store
	now   func() time.Time

	c       *cron.Cron
	running bool
	granted bool
	pending map[string]*installed
	onFired func(handle string, t reminder.Type)
}

// OnFired registers fn to run after a one-shot fires and is forgotten.
// Recurring notifications stay installed and do not trigger it.
func (g *Gateway) OnFired(fn func(handle string, t reminder.Type)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onFired = fn
}

// New restores previously installed notifications from store (if any).
// Nothing fires until Start.
func New(ctx context.Context, cfg Config, sink gateway.Sink, store storage.Store, log logx.Logger) (*Gateway, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = DefaultMaxPending
	}
	if cfg.DeliverTimeout <= 0 {
		cfg.DeliverTimeout = 15 * time.Second
	}
	loc := time.Local
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("gateway timezone %q: %w", tz, err)
		}
		loc = l
	}

	g := &Gateway{
		cfg:     cfg,
		loc:     loc,
		log:     log,
		sink:    sink,
		store:   store,
		now:     time.Now,
		c:       cron.New(cron.WithLocation(loc), cron.WithParser(trigger.Parser)),
		pending: map[string]*installed{},
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Permission)) {
	case "", PermissionGranted:
		g.granted = true
	case PermissionDenied, PermissionPrompt:
	default:
		return nil, fmt.Errorf("unknown permission mode %q", cfg.Permission)
	}

	if err := g.restore(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Gateway) restore(ctx context.Context) error {
	if g.store == nil {
		return nil
	}
	b, ok, err := g.store.Get(ctx, StoreKey)
	if err != nil {
		return fmt.Errorf("load installed notifications: %w", err)
	}
	if !ok {
		return nil
	}
	var st state
	if err := json.Unmarshal(b, &st); err != nil {
		g.log.Warn("installed notifications unreadable; starting empty", logx.Err(err))
		return nil
	}
	// A denied mode from config always wins over a remembered grant.
	if st.Granted && !strings.EqualFold(g.cfg.Permission, PermissionDenied) {
		g.granted = true
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	dropped := 0
	for _, in := range st.Pending {
		if in == nil || in.Handle == "" || in.Trigger.Validate() != nil {
			dropped++
			continue
		}
		if in.Trigger.Kind == reminder.KindRelative && !in.Trigger.FireAt.After(now) {
			// Fired while we were down.
			dropped++
			continue
		}
		if in.Trigger.Recurring() {
			if err := g.addCronLocked(in); err != nil {
				dropped++
				continue
			}
		}
		g.pending[in.Handle] = in
	}
	g.log.Info("installed notifications restored", logx.Int("pending", len(g.pending)), logx.Int("dropped", dropped))
	if dropped > 0 {
		return g.persistLocked(ctx)
	}
	return nil
}

// Start begins firing. One-shot timers are armed here so nothing restored
// fires before the app is ready to deliver.
func (g *Gateway) Start(ctx context.Context) {
	_ = ctx
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return
	}
	g.running = true
	for _, in := range g.pending {
		if in.Trigger.Kind == reminder.KindRelative {
			g.armLocked(in)
		}
	}
	g.c.Start()
	g.log.Info("gateway started", logx.String("tz", g.loc.String()), logx.Int("pending", len(g.pending)))
}

// Location is the zone recurring triggers are evaluated in.
func (g *Gateway) Location() *time.Location { return g.loc }

// Stop halts firing. Installed notifications stay recorded for the next Start.
func (g *Gateway) Stop(ctx context.Context) {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return
	}
	g.running = false
	for _, in := range g.pending {
		if in.timer != nil {
			in.timer.Stop()
			in.timer = nil
		}
	}
	stopped := g.c.Stop()
	g.mu.Unlock()

	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
	g.log.Info("gateway stopped")
}

func (g *Gateway) RequestPermission(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch strings.ToLower(strings.TrimSpace(g.cfg.Permission)) {
	case PermissionDenied:
		return false, nil
	case PermissionPrompt:
		if !g.granted {
			g.granted = true
			g.log.Info("notification permission granted")
			if err := g.persistLocked(ctx); err != nil {
				g.log.Warn("persist permission failed", logx.Err(err))
			}
		}
	}
	return g.granted, nil
}

func (g *Gateway) Install(ctx context.Context, tr reminder.Trigger, c reminder.Content) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", reminder.ErrPlatformScheduling, err)
	}
	if err := tr.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", reminder.ErrPlatformScheduling, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.granted {
		return "", reminder.ErrPermissionDenied
	}
	if len(g.pending) >= g.cfg.MaxPending {
		return "", fmt.Errorf("%w: pending limit %d reached", reminder.ErrPlatformScheduling, g.cfg.MaxPending)
	}

	in := &installed{
		Handle:      uuid.NewString(),
		Trigger:     tr,
		Content:     c,
		InstalledAt: g.now(),
	}
	switch tr.Kind {
	case reminder.KindDaily, reminder.KindWeekly:
		if err := g.addCronLocked(in); err != nil {
			return "", fmt.Errorf("%w: %w", reminder.ErrPlatformScheduling, err)
		}
	case reminder.KindRelative:
		if !tr.FireAt.After(g.now()) {
			return "", fmt.Errorf("%w: fire time %s already passed", reminder.ErrPlatformScheduling, tr.FireAt.Format(time.RFC3339))
		}
		if g.running {
			g.armLocked(in)
		}
	default:
		return "", fmt.Errorf("%w: %s triggers cannot be installed", reminder.ErrPlatformScheduling, tr.Kind)
	}

	g.pending[in.Handle] = in
	if err := g.persistLocked(ctx); err != nil {
		g.unscheduleLocked(in)
		delete(g.pending, in.Handle)
		return "", fmt.Errorf("%w: %w", reminder.ErrPlatformScheduling, err)
	}
	g.log.Debug("notification installed", logx.String("handle", in.Handle), logx.String("type", string(c.Type)), logx.String("trigger", tr.String()))
	return in.Handle, nil
}

func (g *Gateway) Cancel(ctx context.Context, handle string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	in, ok := g.pending[handle]
	if !ok {
		return nil
	}
	g.unscheduleLocked(in)
	delete(g.pending, handle)
	if err := g.persistLocked(ctx); err != nil {
		return fmt.Errorf("%w: %w", reminder.ErrPlatformScheduling, err)
	}
	g.log.Debug("notification cancelled", logx.String("handle", handle))
	return nil
}

func (g *Gateway) CancelAll(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for h, in := range g.pending {
		g.unscheduleLocked(in)
		delete(g.pending, h)
	}
	if err := g.persistLocked(ctx); err != nil {
		return fmt.Errorf("%w: %w", reminder.ErrPlatformScheduling, err)
	}
	return nil
}

func (g *Gateway) SendNow(ctx context.Context, c reminder.Content, p reminder.Priority) error {
	g.mu.Lock()
	granted := g.granted
	g.mu.Unlock()
	if !granted {
		return reminder.ErrPermissionDenied
	}
	if g.sink == nil {
		return nil
	}
	if err := g.sink.Deliver(ctx, c, p); err != nil {
		return fmt.Errorf("%w: %w", reminder.ErrPlatformScheduling, err)
	}
	return nil
}

// Scheduled lists the handles that will still fire.
func (g *Gateway) Scheduled(ctx context.Context) ([]string, error) {
	_ = ctx
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.pending))
	for h := range g.pending {
		out = append(out, h)
	}
	sort.Strings(out)
	return out, nil
}

// Pending describes installed notifications ordered by next fire time.
func (g *Gateway) Pending() []Pending {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now().In(g.loc)
	out := make([]Pending, 0, len(g.pending))
	for _, in := range g.pending {
		next, _, _ := trigger.NextFire(in.Trigger, now)
		out = append(out, Pending{Handle: in.Handle, Type: in.Content.Type, Trigger: in.Trigger, Next: next})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Next.Before(out[j].Next) })
	return out
}

func (g *Gateway) addCronLocked(in *installed) error {
	s, err := trigger.Schedule(in.Trigger, g.loc)
	if err != nil {
		return err
	}
	handle := in.Handle
	in.cronID = g.c.Schedule(s, cron.FuncJob(func() { g.fire(handle) }))
	return nil
}

func (g *Gateway) armLocked(in *installed) {
	handle := in.Handle
	delay := in.Trigger.FireAt.Sub(g.now())
	if delay < 0 {
		delay = 0
	}
	in.timer = time.AfterFunc(delay, func() { g.fire(handle) })
}

func (g *Gateway) unscheduleLocked(in *installed) {
	if in.cronID != 0 {
		g.c.Remove(in.cronID)
		in.cronID = 0
	}
	if in.timer != nil {
		in.timer.Stop()
		in.timer = nil
	}
}

func (g *Gateway) fire(handle string) {
	g.mu.Lock()
	in, ok := g.pending[handle]
	if !ok || !g.running {
		// Cancelled or replaced between scheduling and firing.
		g.mu.Unlock()
		return
	}
	content := in.Content
	oneShot := in.Trigger.Kind == reminder.KindRelative
	if oneShot {
		in.timer = nil
		delete(g.pending, handle)
		pctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := g.persistLocked(pctx); err != nil {
			g.log.Warn("persist after fire failed", logx.String("handle", handle), logx.Err(err))
		}
		cancel()
	}
	sink := g.sink
	timeout := g.cfg.DeliverTimeout
	hook := g.onFired
	g.mu.Unlock()

	g.log.Info("notification fired", logx.String("handle", handle), logx.String("type", string(content.Type)), logx.Bool("one_shot", oneShot))
	if oneShot && hook != nil {
		hook(handle, content.Type)
	}
	if sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := sink.Deliver(ctx, content, priorityFor(content.Type)); err != nil {
		g.log.Warn("delivery failed", logx.String("handle", handle), logx.Err(err))
	}
}

func (g *Gateway) persistLocked(ctx context.Context) error {
	if g.store == nil {
		return nil
	}
	st := state{Version: 1, Granted: g.granted, Pending: make([]*installed, 0, len(g.pending))}
	for _, in := range g.pending {
		st.Pending = append(st.Pending, in)
	}
	sort.Slice(st.Pending, func(i, j int) bool { return st.Pending[i].Handle < st.Pending[j].Handle })
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := g.store.Set(ctx, StoreKey, b); err != nil {
		return errors.Join(reminder.ErrPersistence, err)
	}
	return nil
}

func priorityFor(t reminder.Type) reminder.Priority {
	if p, ok := reminder.DefaultPlans()[t]; ok && p.Priority != 0 {
		return p.Priority
	}
	switch t {
	case reminder.UrgeWarning:
		return reminder.PriorityUrgent
	case reminder.Achievement, reminder.Milestone:
		return reminder.PriorityHigh
	default:
		return reminder.PriorityNormal
	}
}
