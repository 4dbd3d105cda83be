package eventbus

import "time"

// Scheduler events.
const (
	SchedulerScheduled  = "scheduler.scheduled"
	SchedulerCancelled  = "scheduler.cancelled"
	SchedulerCleared    = "scheduler.cleared"
	SchedulerFailed     = "scheduler.failed"
	SchedulerReconciled = "scheduler.reconciled"
	SchedulerSent       = "scheduler.sent"
	SchedulerFired      = "scheduler.fired"
)

// Delivery events from the notifier.
const (
	NotifierQueued  = "notifier.queued"
	NotifierDeduped = "notifier.deduped"
	NotifierDropped = "notifier.dropped"
	NotifierSent    = "notifier.sent"
	NotifierFailed  = "notifier.failed"
)

// ScheduleEvent is the Data of scheduler.* events.
type ScheduleEvent struct {
	Type    string   `json:"type,omitempty"`
	Handles []string `json:"handles,omitempty"`
	Error   string   `json:"error,omitempty"`
	// Reconcile counters.
	Pruned   int `json:"pruned,omitempty"`
	Orphaned int `json:"orphaned,omitempty"`
}

// DeliveryEvent is the Data of notifier.* events.
type DeliveryEvent struct {
	Channel  string    `json:"channel"`
	Type     string    `json:"type,omitempty"`
	ChatID   int64     `json:"chat_id,omitempty"`
	Key      string    `json:"key,omitempty"`
	At       time.Time `json:"at"`
	Attempts int       `json:"attempts,omitempty"`
	Error    string    `json:"error,omitempty"`
}
