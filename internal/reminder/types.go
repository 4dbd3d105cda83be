package reminder

import (
	"fmt"
	"strings"
	"time"
)

// Type identifies the purpose of a notification.
type Type string

const (
	DailyCheckIn   Type = "daily-checkin"
	Motivational   Type = "motivational"
	SelfieReminder Type = "selfie-reminder"
	StreakWarning  Type = "streak-warning"
	WeeklyReport   Type = "weekly-report"
	DailyTip       Type = "daily-tip"

	// Fire-and-forget kinds, never persisted.
	Achievement    Type = "achievement"
	Milestone      Type = "milestone"
	UrgeWarning    Type = "urge-warning"
	GameInvitation Type = "game-invitation"
)

var scheduledTypes = []Type{DailyCheckIn, Motivational, SelfieReminder, StreakWarning, WeeklyReport, DailyTip}

var instantTypes = []Type{Achievement, Milestone, UrgeWarning, GameInvitation}

// ScheduledTypes returns the persisted types in a fixed order.
func ScheduledTypes() []Type { return append([]Type(nil), scheduledTypes...) }

// AllTypes returns every known type, scheduled ones first.
func AllTypes() []Type {
	out := make([]Type, 0, len(scheduledTypes)+len(instantTypes))
	out = append(out, scheduledTypes...)
	return append(out, instantTypes...)
}

func (t Type) Valid() bool {
	for _, k := range AllTypes() {
		if k == t {
			return true
		}
	}
	return false
}

// Scheduled reports whether the type owns a registry slot.
func (t Type) Scheduled() bool {
	for _, k := range scheduledTypes {
		if k == t {
			return true
		}
	}
	return false
}

func (t Type) String() string { return string(t) }

// ParseType maps a config/wire string to a Type.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
	return t, nil
}

// Entry is one persisted registry record. It only exists for handles the
// gateway returned from a successful install.
type Entry struct {
	Handle    string    `json:"handle"`
	Type      Type      `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Trigger   Trigger   `json:"trigger"`
}

// Priority follows the notifier convention: 0 low .. 10 high.
type Priority int

const (
	PriorityLow    Priority = 2
	PriorityNormal Priority = 5
	PriorityHigh   Priority = 7
	PriorityUrgent Priority = 9
)

// Content is what the platform shows when a notification fires.
type Content struct {
	Type  Type              `json:"type"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Text renders content for text-only transports.
func (c Content) Text() string {
	title := strings.TrimSpace(c.Title)
	body := strings.TrimSpace(c.Body)
	switch {
	case title == "":
		return body
	case body == "":
		return title
	default:
		return title + "\n" + body
	}
}
