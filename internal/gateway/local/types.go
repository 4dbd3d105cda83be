package local

import (
	"time"

	"github.com/robfig/cron/v3"

	"habitbell/internal/reminder"
)

// Permission modes.
const (
	PermissionGranted = "granted"
	PermissionDenied  = "denied"
	PermissionPrompt  = "prompt" // denied until RequestPermission is called
)

// StoreKey holds the platform's own record of installed notifications.
const StoreKey = "gateway.local.v1"

// DefaultMaxPending mirrors the pending-notification cap mobile platforms enforce.
const DefaultMaxPending = 64

type Config struct {
	Permission     string
	Timezone       string // IANA TZ; empty means local time
	MaxPending     int
	DeliverTimeout time.Duration
}

type installed struct {
	Handle      string           `json:"handle"`
	Trigger     reminder.Trigger `json:"trigger"`
	Content     reminder.Content `json:"content"`
	InstalledAt time.Time        `json:"installed_at"`

	cronID cron.EntryID
	timer  *time.Timer
}

type state struct {
	Version int          `json:"version"`
	Granted bool         `json:"granted"`
	Pending []*installed `json:"pending"`
}

// Pending describes one installed notification, for status output.
type Pending struct {
	Handle  string
	Type    reminder.Type
	Trigger reminder.Trigger
	Next    time.Time
}
