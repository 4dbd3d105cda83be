package reminder

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseType(t *testing.T) {
	t.Parallel()
	got, err := ParseType(" Weekly-Report ")
	if err != nil {
		t.Fatalf("ParseType error: %v", err)
	}
	if got != WeeklyReport {
		t.Fatalf("ParseType = %q, want %q", got, WeeklyReport)
	}
	if _, err := ParseType("weekly_report"); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestScheduledVsInstantTypes(t *testing.T) {
	t.Parallel()
	for _, typ := range ScheduledTypes() {
		if !typ.Scheduled() {
			t.Fatalf("%s should be scheduled", typ)
		}
	}
	for _, typ := range []Type{Achievement, Milestone, UrgeWarning, GameInvitation} {
		if typ.Scheduled() {
			t.Fatalf("%s should not be scheduled", typ)
		}
		if !typ.Valid() {
			t.Fatalf("%s should be valid", typ)
		}
	}
}

func TestTriggerValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		tr   Trigger
		ok   bool
	}{
		{name: "daily", tr: DailyAt(20, 0), ok: true},
		{name: "daily midnight", tr: DailyAt(0, 0), ok: true},
		{name: "negative hour", tr: DailyAt(-1, 0)},
		{name: "hour 24", tr: DailyAt(24, 0)},
		{name: "minute 60", tr: DailyAt(9, 60)},
		{name: "weekly", tr: WeeklyAt(time.Saturday, 9, 30), ok: true},
		{name: "weekday 7", tr: WeeklyAt(time.Weekday(7), 9, 0)},
		{name: "negative weekday", tr: WeeklyAt(time.Weekday(-1), 9, 0)},
		{name: "relative", tr: RelativeAt(time.Unix(1700000000, 0)), ok: true},
		{name: "relative zero", tr: RelativeAt(time.Time{})},
		{name: "immediate", tr: Immediate(), ok: true},
		{name: "zero kind", tr: Trigger{}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.tr.Validate()
			if tt.ok && err != nil {
				t.Fatalf("Validate() error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidTrigger) {
				t.Fatalf("Validate() = %v, want ErrInvalidTrigger", err)
			}
		})
	}
}

func TestEntryJSONKeepsWeekday(t *testing.T) {
	t.Parallel()
	in := Entry{Handle: "h1", Type: WeeklyReport, CreatedAt: time.Unix(1700000000, 0).UTC(), Trigger: WeeklyAt(time.Sunday, 9, 0)}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Entry
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Trigger.Kind != KindWeekly || out.Trigger.Weekday != time.Sunday || out.Trigger.Hour != 9 {
		t.Fatalf("trigger = %+v", out.Trigger)
	}
}

func TestDefaultPlansAreValid(t *testing.T) {
	t.Parallel()
	plans := DefaultPlans()
	for _, typ := range ScheduledTypes() {
		p, ok := plans[typ]
		if !ok {
			t.Fatalf("no default plan for %s", typ)
		}
		if err := p.Validate(); err != nil {
			t.Fatalf("plan %s: %v", typ, err)
		}
	}
	if got := len(plans[Motivational].Triggers); got != 3 {
		t.Fatalf("motivational triggers = %d, want 3", got)
	}
	if tr := plans[WeeklyReport].Triggers[0]; tr.Weekday != time.Monday || tr.Hour != 9 {
		t.Fatalf("weekly-report default = %s", tr)
	}
	if c := plans[Motivational].ContentAt(2); c.Type != Motivational || c.Title == "" {
		t.Fatalf("ContentAt(2) = %+v", c)
	}
}
