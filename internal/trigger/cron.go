package trigger

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"habitbell/internal/reminder"
)

// Parser accepts the standard 5-field form plus descriptors, matching what
// CronSpec produces.
var Parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CronSpec renders a recurring trigger as a recurrence rule.
//
//	DailyAt{20,0}          -> "0 20 * * *"
//	WeeklyAt{Monday,9,0}   -> "0 9 * * 1"
func CronSpec(tr reminder.Trigger) (string, error) {
	if err := tr.Validate(); err != nil {
		return "", err
	}
	var spec string
	switch tr.Kind {
	case reminder.KindDaily:
		spec = fmt.Sprintf("%d %d * * *", tr.Minute, tr.Hour)
	case reminder.KindWeekly:
		spec = fmt.Sprintf("%d %d * * %d", tr.Minute, tr.Hour, int(tr.Weekday))
	default:
		return "", fmt.Errorf("%w: %s trigger has no recurrence rule", reminder.ErrInvalidTrigger, tr.Kind)
	}
	if _, err := Parser.Parse(spec); err != nil {
		return "", fmt.Errorf("%w: %v", reminder.ErrInvalidTrigger, err)
	}
	return spec, nil
}

// Schedule returns a cron schedule for a recurring trigger evaluated in loc.
// A nil loc evaluates in the location of the time passed to Next.
func Schedule(tr reminder.Trigger, loc *time.Location) (cron.Schedule, error) {
	spec, err := CronSpec(tr)
	if err != nil {
		return nil, err
	}
	s, err := Parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", reminder.ErrInvalidTrigger, err)
	}
	if ss, ok := s.(*cron.SpecSchedule); ok && loc != nil {
		ss.Location = loc
	}
	return s, nil
}

// Preview lists the next n fire times of a recurring trigger after now.
func Preview(tr reminder.Trigger, now time.Time, n int) ([]time.Time, error) {
	s, err := Schedule(tr, now.Location())
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, n)
	t := now
	for i := 0; i < n; i++ {
		t = s.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out, nil
}
