package trigger

import (
	"fmt"
	"time"

	"habitbell/internal/reminder"
)

// NextDailyFire returns the next hour:minute at or after now.
// If now is already past today's occurrence, tomorrow's is returned.
func NextDailyFire(hour, minute int, now time.Time) (time.Time, error) {
	if err := reminder.DailyAt(hour, minute).Validate(); err != nil {
		return time.Time{}, err
	}
	at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if at.Before(now) {
		// AddDate keeps the wall clock across DST changes.
		at = at.AddDate(0, 0, 1)
	}
	return at, nil
}

// NextWeeklyFire returns the next weekday hour:minute at or after now.
func NextWeeklyFire(weekday time.Weekday, hour, minute int, now time.Time) (time.Time, error) {
	if err := reminder.WeeklyAt(weekday, hour, minute).Validate(); err != nil {
		return time.Time{}, err
	}
	days := (int(weekday) - int(now.Weekday()) + 7) % 7
	at := time.Date(now.Year(), now.Month(), now.Day()+days, hour, minute, 0, 0, now.Location())
	if at.Before(now) {
		at = at.AddDate(0, 0, 7)
	}
	return at, nil
}

// RelativeFire returns base+offset when that instant is strictly after now.
// ok=false means the window already closed and nothing should be installed.
func RelativeFire(base time.Time, offset time.Duration, now time.Time) (at time.Time, ok bool) {
	at = base.Add(offset)
	if !at.After(now) {
		return time.Time{}, false
	}
	return at, true
}

// NextFire resolves any trigger to its next concrete fire time.
// Relative triggers that already passed report ok=false.
func NextFire(tr reminder.Trigger, now time.Time) (time.Time, bool, error) {
	if err := tr.Validate(); err != nil {
		return time.Time{}, false, err
	}
	switch tr.Kind {
	case reminder.KindDaily:
		at, err := NextDailyFire(tr.Hour, tr.Minute, now)
		return at, err == nil, err
	case reminder.KindWeekly:
		at, err := NextWeeklyFire(tr.Weekday, tr.Hour, tr.Minute, now)
		return at, err == nil, err
	case reminder.KindRelative:
		if !tr.FireAt.After(now) {
			return time.Time{}, false, nil
		}
		return tr.FireAt, true, nil
	case reminder.KindImmediate:
		return now, true, nil
	default:
		return time.Time{}, false, fmt.Errorf("%w: kind %s", reminder.ErrInvalidTrigger, tr.Kind)
	}
}
