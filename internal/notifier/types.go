package notifier

import "time"

type Config struct {
	Enabled         bool
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	SendTimeout     time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
	PersistDedup    bool
}

type HistoryItem struct {
	At   time.Time
	Kind string
	Text string
	Err  string
}

const historyCap = 300

// dedupPrefix namespaces persisted suppression windows in the store.
const dedupPrefix = "notifier.dedup."
