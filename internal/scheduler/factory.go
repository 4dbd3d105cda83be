package scheduler

import (
	"time"

	"habitbell/internal/reminder"
	"habitbell/internal/trigger"
)

// FromPlan installs every trigger of a recurring plan.
func FromPlan(p reminder.Plan) Factory {
	return func(now time.Time) ([]Schedule, error) {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		out := make([]Schedule, 0, len(p.Triggers))
		for i, tr := range p.Triggers {
			out = append(out, Schedule{Trigger: tr, Content: p.ContentAt(i)})
		}
		return out, nil
	}
}

// AfterEvent installs a relative plan's single trigger at base+p.After.
// Nothing is installed once that moment has passed.
func AfterEvent(p reminder.Plan, base time.Time) Factory {
	return func(now time.Time) ([]Schedule, error) {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		at, ok := trigger.RelativeFire(base, p.After, now)
		if !ok {
			return nil, nil
		}
		return []Schedule{{Trigger: reminder.RelativeAt(at), Content: p.ContentAt(0)}}, nil
	}
}

// Fixed returns the given schedules regardless of time.
func Fixed(schedules ...Schedule) Factory {
	return func(time.Time) ([]Schedule, error) {
		return append([]Schedule(nil), schedules...), nil
	}
}
