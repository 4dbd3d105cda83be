package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"habitbell/internal/eventbus"
	"habitbell/internal/gateway"
	"habitbell/internal/registry"
	"habitbell/internal/reminder"
	logx "habitbell/pkg/logx"
)

type Scheduler struct {
	gw       gateway.Gateway
	reg      *registry.Registry
	log      logx.Logger
	bus      eventbus.Bus
	now      func() time.Time
	checkins CheckIns

	// One lock per scheduled type; the map itself is never written after New.
	locks map[reminder.Type]*fifoLock

	mu      sync.Mutex
	plans   map[reminder.Type]reminder.Plan
	enabled map[reminder.Type]bool
}

func New(gw gateway.Gateway, reg *registry.Registry, opts ...Option) *Scheduler {
	s := &Scheduler{
		gw:      gw,
		reg:     reg,
		log:     logx.Nop(),
		now:     time.Now,
		locks:   map[reminder.Type]*fifoLock{},
		plans:   reminder.DefaultPlans(),
		enabled: map[reminder.Type]bool{},
	}
	for _, t := range reminder.ScheduledTypes() {
		s.locks[t] = &fifoLock{}
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

func checkScheduled(t reminder.Type) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", reminder.ErrUnknownType, string(t))
	}
	if !t.Scheduled() {
		return fmt.Errorf("%w: %s", reminder.ErrNotSchedulable, t)
	}
	return nil
}

func (s *Scheduler) lockType(ctx context.Context, t reminder.Type) (func(), error) {
	l := s.locks[t]
	if err := l.Lock(ctx); err != nil {
		return nil, err
	}
	return l.Unlock, nil
}

// lockAll takes every type lock in ScheduledTypes order.
func (s *Scheduler) lockAll(ctx context.Context) (func(), error) {
	types := reminder.ScheduledTypes()
	held := make([]*fifoLock, 0, len(types))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
	for _, t := range types {
		l := s.locks[t]
		if err := l.Lock(ctx); err != nil {
			release()
			return nil, err
		}
		held = append(held, l)
	}
	return release, nil
}

// ScheduleOrReplace replaces every notification of type t with the schedules
// factory produces and returns the new handles.
func (s *Scheduler) ScheduleOrReplace(ctx context.Context, t reminder.Type, factory Factory) ([]string, error) {
	if err := checkScheduled(t); err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, fmt.Errorf("%w: %s: nil factory", reminder.ErrInvalidTrigger, t)
	}
	unlock, err := s.lockType(ctx, t)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.replaceLocked(ctx, t, factory)
}

func (s *Scheduler) replaceLocked(ctx context.Context, t reminder.Type, factory Factory) ([]string, error) {
	log := s.log.With(logx.String("type", string(t)))
	now := s.now()

	scheds, err := factory(now)
	if err != nil {
		return nil, s.failed(t, fmt.Errorf("%s: %w", t, err))
	}
	keep := make([]Schedule, 0, len(scheds))
	for _, sc := range scheds {
		if err := sc.Trigger.Validate(); err != nil {
			return nil, s.failed(t, fmt.Errorf("%s: %w", t, err))
		}
		switch sc.Trigger.Kind {
		case reminder.KindImmediate:
			return nil, s.failed(t, fmt.Errorf("%w: %s: immediate trigger cannot be scheduled", reminder.ErrInvalidTrigger, t))
		case reminder.KindRelative:
			if !sc.Trigger.FireAt.After(now) {
				log.Debug("relative trigger already passed; skipped", logx.Time("fire_at", sc.Trigger.FireAt))
				continue
			}
		}
		sc.Content.Type = t
		keep = append(keep, sc)
	}

	prior, err := s.reg.RemoveType(ctx, t)
	if err != nil {
		return nil, s.failed(t, err)
	}
	s.cancelHandles(ctx, log, prior)

	handles := make([]string, 0, len(keep))
	entries := make([]reminder.Entry, 0, len(keep))
	for _, sc := range keep {
		h, err := s.gw.Install(ctx, sc.Trigger, sc.Content)
		if err != nil {
			// The slot is already persisted empty by RemoveType.
			s.rollback(log, handles)
			return nil, s.failed(t, fmt.Errorf("install %s %s: %w", t, sc.Trigger, err))
		}
		handles = append(handles, h)
		entries = append(entries, reminder.Entry{Handle: h, Type: t, CreatedAt: now, Trigger: sc.Trigger})
	}

	if len(entries) > 0 {
		if err := s.reg.ReplaceType(ctx, t, entries); err != nil {
			s.rollback(log, handles)
			return nil, s.failed(t, err)
		}
	}

	log.Info("scheduled", logx.Int("handles", len(handles)), logx.Int("replaced", len(prior)))
	s.publish(eventbus.SchedulerScheduled, eventbus.ScheduleEvent{Type: string(t), Handles: handles})
	return handles, nil
}

// rollback cancels handles installed by a failed call. It must finish even
// when the caller's context is already done.
func (s *Scheduler) rollback(log logx.Logger, handles []string) {
	if len(handles) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, h := range handles {
		if err := s.gw.Cancel(ctx, h); err != nil {
			log.Warn("rollback cancel failed", logx.String("handle", h), logx.Err(err))
		}
	}
	log.Warn("schedule rolled back", logx.Int("cancelled", len(handles)))
}

func (s *Scheduler) cancelHandles(ctx context.Context, log logx.Logger, entries []reminder.Entry) {
	for _, e := range entries {
		if err := s.gw.Cancel(ctx, e.Handle); err != nil {
			log.Warn("gateway cancel failed", logx.String("handle", e.Handle), logx.Err(err))
		}
	}
}

// CancelType removes every notification of type t. Gateway cancel failures
// are logged; only a registry failure is returned.
func (s *Scheduler) CancelType(ctx context.Context, t reminder.Type) error {
	if err := checkScheduled(t); err != nil {
		return err
	}
	unlock, err := s.lockType(ctx, t)
	if err != nil {
		return err
	}
	defer unlock()

	log := s.log.With(logx.String("type", string(t)))
	prior, err := s.reg.RemoveType(ctx, t)
	if err != nil {
		return s.failed(t, err)
	}
	s.cancelHandles(ctx, log, prior)
	if len(prior) > 0 {
		log.Info("cancelled", logx.Int("handles", len(prior)))
	}
	s.publish(eventbus.SchedulerCancelled, eventbus.ScheduleEvent{Type: string(t), Handles: handlesOf(prior)})
	return nil
}

// CancelAll wipes the platform and the registry. The registry is cleared
// even when the gateway fails.
func (s *Scheduler) CancelAll(ctx context.Context) error {
	unlock, err := s.lockAll(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.gw.CancelAll(ctx); err != nil {
		s.log.Warn("gateway cancel all failed", logx.Err(err))
	}
	if err := s.reg.Clear(ctx); err != nil {
		s.publish(eventbus.SchedulerFailed, eventbus.ScheduleEvent{Error: err.Error()})
		return err
	}
	s.log.Info("all notifications cleared")
	s.publish(eventbus.SchedulerCleared, eventbus.ScheduleEvent{})
	return nil
}

// SendImmediate shows content now. Nothing is recorded.
func (s *Scheduler) SendImmediate(ctx context.Context, c reminder.Content, p reminder.Priority) error {
	if c.Type != "" && !c.Type.Valid() {
		return fmt.Errorf("%w: %q", reminder.ErrUnknownType, string(c.Type))
	}
	if err := s.gw.SendNow(ctx, c, p); err != nil {
		s.log.Warn("send immediate failed", logx.String("type", string(c.Type)), logx.Err(err))
		return err
	}
	s.publish(eventbus.SchedulerSent, eventbus.ScheduleEvent{Type: string(c.Type)})
	return nil
}

// Enable schedules each type from its plan. Types fail independently.
func (s *Scheduler) Enable(ctx context.Context, types ...reminder.Type) error {
	be := &BatchError{Op: "enable"}
	for _, t := range types {
		if err := checkScheduled(t); err != nil {
			be.add(t, err)
			continue
		}
		s.setEnabled(t, true)
		factory, err := s.factoryFor(ctx, t)
		if err != nil {
			be.add(t, err)
			continue
		}
		if _, err := s.ScheduleOrReplace(ctx, t, factory); err != nil {
			be.add(t, err)
		}
	}
	return be.orNil()
}

// Disable cancels each type. Types fail independently.
func (s *Scheduler) Disable(ctx context.Context, types ...reminder.Type) error {
	be := &BatchError{Op: "disable"}
	for _, t := range types {
		if err := checkScheduled(t); err != nil {
			be.add(t, err)
			continue
		}
		s.setEnabled(t, false)
		if err := s.CancelType(ctx, t); err != nil {
			be.add(t, err)
		}
	}
	return be.orNil()
}

func (s *Scheduler) factoryFor(ctx context.Context, t reminder.Type) (Factory, error) {
	p, ok := s.Plan(t)
	if !ok {
		return nil, fmt.Errorf("%w: no plan for %s", reminder.ErrNotSchedulable, t)
	}
	if !p.Relative() {
		return FromPlan(p), nil
	}
	if s.checkins == nil {
		return Fixed(), nil
	}
	last, ok, err := s.checkins.Last(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		// No check-in yet; nothing to warn about.
		return Fixed(), nil
	}
	return AfterEvent(p, last), nil
}

// RestoreOnLaunch reloads the registry. The platform still holds the
// notifications, so nothing is reinstalled. Types with restored entries are
// marked enabled.
func (s *Scheduler) RestoreOnLaunch(ctx context.Context) (map[reminder.Type][]reminder.Entry, error) {
	m := s.reg.Load(ctx)
	n := 0
	for t, es := range m {
		n += len(es)
		if len(es) > 0 && t.Scheduled() {
			s.setEnabled(t, true)
		}
	}
	s.log.Info("registry restored", logx.Int("types", len(m)), logx.Int("entries", n))
	return m, nil
}

// RecordCheckIn logs a check-in and, when the streak warning is enabled,
// moves it to at+After so a stale warning never fires.
func (s *Scheduler) RecordCheckIn(ctx context.Context, at time.Time) ([]string, error) {
	if s.checkins == nil {
		return nil, errors.New("no check-in log configured")
	}
	if err := s.checkins.Record(ctx, at); err != nil {
		return nil, err
	}
	p, ok := s.Plan(reminder.StreakWarning)
	if !ok {
		return nil, nil
	}
	unlock, err := s.lockType(ctx, reminder.StreakWarning)
	if err != nil {
		return nil, err
	}
	defer unlock()
	// Disable clears the flag before it takes the lock; check it under the lock.
	if !s.IsEnabled(reminder.StreakWarning) {
		return nil, nil
	}
	return s.replaceLocked(ctx, reminder.StreakWarning, AfterEvent(p, at))
}

// Forget drops the record of a one-shot the gateway has already fired.
// Unknown handles are ignored.
func (s *Scheduler) Forget(ctx context.Context, t reminder.Type, handle string) error {
	if err := checkScheduled(t); err != nil {
		return err
	}
	unlock, err := s.lockType(ctx, t)
	if err != nil {
		return err
	}
	defer unlock()

	prior := s.reg.Entries(t)
	keep := make([]reminder.Entry, 0, len(prior))
	for _, e := range prior {
		if e.Handle != handle {
			keep = append(keep, e)
		}
	}
	if len(keep) == len(prior) {
		return nil
	}
	if err := s.reg.ReplaceType(ctx, t, keep); err != nil {
		return s.failed(t, err)
	}
	s.log.Debug("fired one-shot forgotten", logx.String("type", string(t)), logx.String("handle", handle))
	s.publish(eventbus.SchedulerFired, eventbus.ScheduleEvent{Type: string(t), Handles: []string{handle}})
	return nil
}

// Entries returns the recorded entries of t.
func (s *Scheduler) Entries(t reminder.Type) []reminder.Entry { return s.reg.Entries(t) }

// Snapshot returns every recorded entry.
func (s *Scheduler) Snapshot() map[reminder.Type][]reminder.Entry { return s.reg.Snapshot() }

// Plans returns a copy of the plan table.
func (s *Scheduler) Plans() map[reminder.Type]reminder.Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[reminder.Type]reminder.Plan, len(s.plans))
	for t, p := range s.plans {
		out[t] = p
	}
	return out
}

func (s *Scheduler) Plan(t reminder.Type) (reminder.Plan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[t]
	return p, ok
}

// SetPlans swaps plans for the given types. Installed notifications are not
// touched; Enable the types to apply.
func (s *Scheduler) SetPlans(plans map[reminder.Type]reminder.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for t, p := range plans {
		s.plans[t] = p
	}
}

// Enabled lists enabled types in ScheduledTypes order.
func (s *Scheduler) Enabled() []reminder.Type {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []reminder.Type
	for _, t := range reminder.ScheduledTypes() {
		if s.enabled[t] {
			out = append(out, t)
		}
	}
	return out
}

func (s *Scheduler) IsEnabled(t reminder.Type) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled[t]
}

func (s *Scheduler) setEnabled(t reminder.Type, on bool) {
	s.mu.Lock()
	s.enabled[t] = on
	s.mu.Unlock()
}

func (s *Scheduler) failed(t reminder.Type, err error) error {
	s.log.Warn("schedule failed", logx.String("type", string(t)), logx.Err(err))
	s.publish(eventbus.SchedulerFailed, eventbus.ScheduleEvent{Type: string(t), Error: err.Error()})
	return err
}

func (s *Scheduler) publish(typ string, data eventbus.ScheduleEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.now(), Data: data})
}

func handlesOf(entries []reminder.Entry) []string {
	if len(entries) == 0 {
		return nil
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Handle
	}
	return out
}
