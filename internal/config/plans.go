package config

import (
	"fmt"
	"sort"
	"time"

	"habitbell/internal/reminder"
)

// EnabledTypes parses notifications.enabled, deduplicated, in ScheduledTypes order.
func EnabledTypes(cfg *Config) ([]reminder.Type, error) {
	set := map[reminder.Type]bool{}
	for i, raw := range cfg.Notifications.Enabled {
		t, err := reminder.ParseType(raw)
		if err != nil {
			return nil, fmt.Errorf("notifications.enabled[%d]: %w", i, err)
		}
		if !t.Scheduled() {
			return nil, fmt.Errorf("notifications.enabled[%d]: %w: %s", i, reminder.ErrNotSchedulable, t)
		}
		set[t] = true
	}
	var out []reminder.Type
	for _, t := range reminder.ScheduledTypes() {
		if set[t] {
			out = append(out, t)
		}
	}
	return out, nil
}

// Plans applies notifications.schedules on top of the built-in plans.
func Plans(cfg *Config) (map[reminder.Type]reminder.Plan, error) {
	plans := reminder.DefaultPlans()
	keys := make([]string, 0, len(cfg.Notifications.Schedules))
	for k := range cfg.Notifications.Schedules {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		path := "notifications.schedules." + k
		t, err := reminder.ParseType(k)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		base, ok := plans[t]
		if !ok {
			return nil, fmt.Errorf("%s: %w: %s", path, reminder.ErrNotSchedulable, t)
		}
		p, err := applyOverride(path, base, cfg.Notifications.Schedules[k])
		if err != nil {
			return nil, err
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		plans[t] = p
	}
	return plans, nil
}

func applyOverride(path string, p reminder.Plan, o ScheduleOverride) (reminder.Plan, error) {
	if p.Relative() {
		if len(o.Times) > 0 || o.Weekday != "" {
			return p, fmt.Errorf("%s: %s fires after a check-in; only \"after\" applies", path, p.Type)
		}
		if o.After != "" {
			d, err := ParseDurationField(path+".after", o.After)
			if err != nil {
				return p, err
			}
			if d == 0 {
				return p, fmt.Errorf("%s.after: must be > 0", path)
			}
			p.After = d
		}
	} else {
		if o.After != "" {
			return p, fmt.Errorf("%s: %s is recurring; \"after\" does not apply", path, p.Type)
		}
		var weekly bool
		var wd time.Weekday
		if len(p.Triggers) > 0 {
			weekly, wd = p.Triggers[0].Kind == reminder.KindWeekly, p.Triggers[0].Weekday
		}
		if o.Weekday != "" {
			d, err := ParseWeekday(path+".weekday", o.Weekday)
			if err != nil {
				return p, err
			}
			weekly, wd = true, d
		}
		if len(o.Times) > 0 || o.Weekday != "" {
			times := o.Times
			if len(times) == 0 {
				// Weekday only: keep the existing clock times.
				for _, tr := range p.Triggers {
					times = append(times, fmt.Sprintf("%02d:%02d", tr.Hour, tr.Minute))
				}
			}
			trs := make([]reminder.Trigger, 0, len(times))
			for i, raw := range times {
				h, m, err := ParseClock(fmt.Sprintf("%s.times[%d]", path, i), raw)
				if err != nil {
					return p, err
				}
				if weekly {
					trs = append(trs, reminder.WeeklyAt(wd, h, m))
				} else {
					trs = append(trs, reminder.DailyAt(h, m))
				}
			}
			if len(trs) != len(p.Triggers) {
				// Per-trigger copy no longer lines up.
				p.Content = p.Content[:min(1, len(p.Content))]
			}
			p.Triggers = trs
		}
	}
	if o.Title != "" || o.Body != "" {
		c := p.ContentAt(0)
		if o.Title != "" {
			c.Title = o.Title
		}
		if o.Body != "" {
			c.Body = o.Body
		}
		p.Content = []reminder.Content{c}
	}
	return p, nil
}
