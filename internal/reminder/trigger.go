package reminder

import (
	"encoding/json"
	"fmt"
	"time"
)

// TriggerKind tags the Trigger union.
type TriggerKind int

const (
	KindDaily TriggerKind = iota + 1
	KindWeekly
	KindRelative
	KindImmediate
)

func (k TriggerKind) String() string {
	switch k {
	case KindDaily:
		return "daily"
	case KindWeekly:
		return "weekly"
	case KindRelative:
		return "relative"
	case KindImmediate:
		return "immediate"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k TriggerKind) MarshalText() ([]byte, error) {
	if k < KindDaily || k > KindImmediate {
		return nil, fmt.Errorf("%w: kind %d", ErrInvalidTrigger, int(k))
	}
	return []byte(k.String()), nil
}

func (k *TriggerKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "daily":
		*k = KindDaily
	case "weekly":
		*k = KindWeekly
	case "relative":
		*k = KindRelative
	case "immediate":
		*k = KindImmediate
	default:
		return fmt.Errorf("%w: kind %q", ErrInvalidTrigger, string(b))
	}
	return nil
}

// Trigger describes when a notification fires. Only the fields of its Kind
// are meaningful:
//
//	KindDaily     Hour, Minute
//	KindWeekly    Weekday (0=Sunday..6=Saturday), Hour, Minute
//	KindRelative  FireAt
//	KindImmediate none
type Trigger struct {
	Kind    TriggerKind  `json:"kind"`
	Weekday time.Weekday `json:"weekday,omitempty"`
	Hour    int          `json:"hour,omitempty"`
	Minute  int          `json:"minute,omitempty"`
	FireAt  time.Time    `json:"fire_at,omitempty"`
}

func DailyAt(hour, minute int) Trigger {
	return Trigger{Kind: KindDaily, Hour: hour, Minute: minute}
}

func WeeklyAt(weekday time.Weekday, hour, minute int) Trigger {
	return Trigger{Kind: KindWeekly, Weekday: weekday, Hour: hour, Minute: minute}
}

func RelativeAt(fireAt time.Time) Trigger {
	return Trigger{Kind: KindRelative, FireAt: fireAt}
}

func Immediate() Trigger { return Trigger{Kind: KindImmediate} }

// Recurring reports whether the trigger repeats.
func (t Trigger) Recurring() bool { return t.Kind == KindDaily || t.Kind == KindWeekly }

// Validate rejects out-of-range fields. Values are never clamped.
func (t Trigger) Validate() error {
	switch t.Kind {
	case KindDaily, KindWeekly:
		if t.Hour < 0 || t.Hour > 23 {
			return fmt.Errorf("%w: hour %d", ErrInvalidTrigger, t.Hour)
		}
		if t.Minute < 0 || t.Minute > 59 {
			return fmt.Errorf("%w: minute %d", ErrInvalidTrigger, t.Minute)
		}
		if t.Kind == KindWeekly && (t.Weekday < time.Sunday || t.Weekday > time.Saturday) {
			return fmt.Errorf("%w: weekday %d", ErrInvalidTrigger, int(t.Weekday))
		}
	case KindRelative:
		if t.FireAt.IsZero() {
			return fmt.Errorf("%w: relative trigger without fire time", ErrInvalidTrigger)
		}
	case KindImmediate:
	default:
		return fmt.Errorf("%w: kind %d", ErrInvalidTrigger, int(t.Kind))
	}
	return nil
}

func (t Trigger) String() string {
	switch t.Kind {
	case KindDaily:
		return fmt.Sprintf("daily@%02d:%02d", t.Hour, t.Minute)
	case KindWeekly:
		return fmt.Sprintf("weekly@%s %02d:%02d", t.Weekday, t.Hour, t.Minute)
	case KindRelative:
		return "once@" + t.FireAt.Format(time.RFC3339)
	case KindImmediate:
		return "immediate"
	default:
		return t.Kind.String()
	}
}

// MarshalJSON writes only the fields that belong to the kind.
func (t Trigger) MarshalJSON() ([]byte, error) {
	type wire struct {
		Kind    TriggerKind `json:"kind"`
		Weekday *int        `json:"weekday,omitempty"`
		Hour    *int        `json:"hour,omitempty"`
		Minute  *int        `json:"minute,omitempty"`
		FireAt  *time.Time  `json:"fire_at,omitempty"`
	}
	w := wire{Kind: t.Kind}
	switch t.Kind {
	case KindWeekly:
		wd := int(t.Weekday)
		w.Weekday = &wd
		fallthrough
	case KindDaily:
		h, m := t.Hour, t.Minute
		w.Hour, w.Minute = &h, &m
	case KindRelative:
		at := t.FireAt
		w.FireAt = &at
	}
	return json.Marshal(w)
}
