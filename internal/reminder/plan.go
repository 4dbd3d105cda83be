package reminder

import (
	"fmt"
	"time"
)

// StreakWarningAfter is how long after the last check-in the streak warning fires.
const StreakWarningAfter = 18 * time.Hour

// Plan is the canonical trigger shape of a scheduled type.
//
// Recurring plans list their triggers; relative plans (After > 0) fire once,
// After the base event supplied by the caller.
type Plan struct {
	Type     Type
	Triggers []Trigger
	After    time.Duration
	Content  []Content
	Priority Priority
}

func (p Plan) Relative() bool { return p.After > 0 }

// ContentAt returns the content for the i-th trigger, falling back to the
// first entry when the plan shares one content across triggers.
func (p Plan) ContentAt(i int) Content {
	var c Content
	switch {
	case i >= 0 && i < len(p.Content):
		c = p.Content[i]
	case len(p.Content) > 0:
		c = p.Content[0]
	default:
		c = DefaultContent(p.Type)
	}
	c.Type = p.Type
	return c
}

func (p Plan) Validate() error {
	if !p.Type.Scheduled() {
		return fmt.Errorf("%w: %s", ErrNotSchedulable, p.Type)
	}
	if p.Relative() {
		if len(p.Triggers) > 0 {
			return fmt.Errorf("%w: %s mixes relative and recurring triggers", ErrInvalidTrigger, p.Type)
		}
		return nil
	}
	if len(p.Triggers) == 0 {
		return fmt.Errorf("%w: %s has no triggers", ErrInvalidTrigger, p.Type)
	}
	for _, tr := range p.Triggers {
		if !tr.Recurring() {
			return fmt.Errorf("%w: %s plan trigger %s is not recurring", ErrInvalidTrigger, p.Type, tr)
		}
		if err := tr.Validate(); err != nil {
			return fmt.Errorf("%s: %w", p.Type, err)
		}
	}
	return nil
}

// DefaultPlans returns the built-in trigger table, one plan per scheduled type.
func DefaultPlans() map[Type]Plan {
	return map[Type]Plan{
		DailyCheckIn: {
			Type:     DailyCheckIn,
			Triggers: []Trigger{DailyAt(20, 0)},
			Content:  []Content{DefaultContent(DailyCheckIn)},
			Priority: PriorityNormal,
		},
		Motivational: {
			Type:     Motivational,
			Triggers: []Trigger{DailyAt(9, 0), DailyAt(14, 0), DailyAt(19, 0)},
			Content: []Content{
				{Title: "Good morning", Body: "Every clean day counts. You've got this."},
				{Title: "Midday boost", Body: "Halfway through the day. Stay with it."},
				{Title: "Evening check", Body: "You made it through another day. Proud of you."},
			},
			Priority: PriorityLow,
		},
		SelfieReminder: {
			Type:     SelfieReminder,
			Triggers: []Trigger{DailyAt(10, 0)},
			Content:  []Content{DefaultContent(SelfieReminder)},
			Priority: PriorityLow,
		},
		StreakWarning: {
			Type:     StreakWarning,
			After:    StreakWarningAfter,
			Content:  []Content{DefaultContent(StreakWarning)},
			Priority: PriorityHigh,
		},
		WeeklyReport: {
			Type:     WeeklyReport,
			Triggers: []Trigger{WeeklyAt(time.Monday, 9, 0)},
			Content:  []Content{DefaultContent(WeeklyReport)},
			Priority: PriorityNormal,
		},
		DailyTip: {
			Type:     DailyTip,
			Triggers: []Trigger{DailyAt(12, 0)},
			Content:  []Content{DefaultContent(DailyTip)},
			Priority: PriorityLow,
		},
	}
}

// DefaultContent is the fixed copy for a type.
func DefaultContent(t Type) Content {
	c := Content{Type: t}
	switch t {
	case DailyCheckIn:
		c.Title, c.Body = "Daily check-in", "How did today go? Log your check-in to keep the streak alive."
	case Motivational:
		c.Title, c.Body = "Keep going", "Every clean day counts."
	case SelfieReminder:
		c.Title, c.Body = "Progress selfie", "Snap today's selfie to track your progress."
	case StreakWarning:
		c.Title, c.Body = "Your streak is at risk", "You haven't checked in today. Check in before midnight to keep your streak."
	case WeeklyReport:
		c.Title, c.Body = "Your weekly report is ready", "See how last week went."
	case DailyTip:
		c.Title, c.Body = "Tip of the day", "Open the app for today's tip."
	case Achievement:
		c.Title, c.Body = "Achievement unlocked", "You earned a new badge."
	case Milestone:
		c.Title, c.Body = "Milestone reached", "Another milestone on your streak."
	case UrgeWarning:
		c.Title, c.Body = "Riding out an urge?", "Breathe. It passes in a few minutes. Try a quick game."
	case GameInvitation:
		c.Title, c.Body = "Quick game?", "A short game can help you refocus."
	}
	return c
}
