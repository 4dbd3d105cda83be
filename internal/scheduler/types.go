package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"habitbell/internal/eventbus"
	"habitbell/internal/reminder"
	logx "habitbell/pkg/logx"
)

// Schedule is one notification to install.
type Schedule struct {
	Trigger reminder.Trigger
	Content reminder.Content
}

// Factory computes the schedules for a type at the given instant.
type Factory func(now time.Time) ([]Schedule, error)

// CheckIns is the check-in log the streak warning is anchored to.
type CheckIns interface {
	Record(ctx context.Context, at time.Time) error
	Last(ctx context.Context) (time.Time, bool, error)
}

type Option func(*Scheduler)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func WithBus(bus eventbus.Bus) Option { return func(s *Scheduler) { s.bus = bus } }

func WithCheckIns(c CheckIns) Option { return func(s *Scheduler) { s.checkins = c } }

// WithPlans replaces the built-in plan table. Missing types keep their default.
func WithPlans(plans map[reminder.Type]reminder.Plan) Option {
	return func(s *Scheduler) {
		for t, p := range plans {
			s.plans[t] = p
		}
	}
}

func WithLogger(log logx.Logger) Option { return func(s *Scheduler) { s.log = log } }

// BatchError collects per-type failures of Enable and Disable.
type BatchError struct {
	Op    string
	Types []reminder.Type
	Errs  map[reminder.Type]error
}

func (e *BatchError) add(t reminder.Type, err error) {
	if e.Errs == nil {
		e.Errs = map[reminder.Type]error{}
	}
	e.Types = append(e.Types, t)
	e.Errs[t] = err
}

func (e *BatchError) orNil() error {
	if e == nil || len(e.Errs) == 0 {
		return nil
	}
	return e
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Types))
	for _, t := range e.Types {
		parts = append(parts, fmt.Sprintf("%s: %v", t, e.Errs[t]))
	}
	return fmt.Sprintf("%s: %d type(s) failed: %s", e.Op, len(e.Types), strings.Join(parts, "; "))
}

// Unwrap exposes every per-type error to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	out := make([]error, 0, len(e.Types))
	for _, t := range e.Types {
		out = append(out, e.Errs[t])
	}
	return out
}

// For returns the failure recorded for t, if any.
func (e *BatchError) For(t reminder.Type) error { return e.Errs[t] }

// AsBatch unwraps err into a *BatchError.
func AsBatch(err error) (*BatchError, bool) {
	var be *BatchError
	ok := errors.As(err, &be)
	return be, ok
}

// ReconcileReport summarizes a Reconcile pass.
type ReconcileReport struct {
	// Supported is false when the gateway can't list its schedules.
	Supported bool
	Pruned    map[reminder.Type]int
	Orphans   []string
}

func (r ReconcileReport) PrunedTotal() int {
	n := 0
	for _, v := range r.Pruned {
		n += v
	}
	return n
}

func (r ReconcileReport) String() string {
	if !r.Supported {
		return "reconcile unsupported"
	}
	types := make([]string, 0, len(r.Pruned))
	for t, n := range r.Pruned {
		types = append(types, fmt.Sprintf("%s=%d", t, n))
	}
	sort.Strings(types)
	return fmt.Sprintf("pruned [%s] orphans %d", strings.Join(types, " "), len(r.Orphans))
}
