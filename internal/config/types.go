package config

// Config is the daemon's settings file.
//
// Durations are Go duration strings ("500ms", "10s", "18h"). Clock times are
// "HH:MM" in the gateway timezone.
type Config struct {
	Logging       LoggingConfig       `json:"logging"`
	Storage       StorageConfig       `json:"storage"`
	Gateway       GatewayConfig       `json:"gateway"`
	Delivery      DeliveryConfig      `json:"delivery"`
	Telegram      TelegramConfig      `json:"telegram,omitempty"`
	Notifications NotificationsConfig `json:"notifications"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the key-value backend.
//
//	storage: { driver: sqlite, path: ./habitbell.db }
type StorageConfig struct {
	Driver      string `json:"driver"` // memory | file | sqlite
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// GatewayConfig configures the in-process notification platform.
type GatewayConfig struct {
	Permission     string `json:"permission"`         // granted | denied | prompt
	Timezone       string `json:"timezone,omitempty"` // IANA TZ, default local
	MaxPending     int    `json:"max_pending,omitempty"`
	DeliverTimeout string `json:"deliver_timeout,omitempty"`
}

// DeliveryConfig controls where fired reminders go and how hard we try.
type DeliveryConfig struct {
	Transport     string `json:"transport"` // console | telegram
	ChatID        int64  `json:"chat_id,omitempty"`
	ThreadID      int    `json:"thread_id,omitempty"`
	Workers       int    `json:"workers,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	SendTimeout   string `json:"send_timeout,omitempty"`
	DedupWindow   string `json:"dedup_window,omitempty"`
	PersistDedup  bool   `json:"persist_dedup,omitempty"`
}

type TelegramConfig struct {
	Token       string `json:"token"`
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// NotificationsConfig picks which reminder types run and optionally reshapes
// their triggers.
type NotificationsConfig struct {
	Enabled   []string                    `json:"enabled"`
	OpTimeout string                      `json:"op_timeout,omitempty"`
	Schedules map[string]ScheduleOverride `json:"schedules,omitempty"`
}

// ScheduleOverride replaces parts of a type's built-in plan.
//
//	schedules:
//	  motivational: { times: ["08:30", "13:00", "21:00"] }
//	  weekly-report: { weekday: sunday, times: ["18:00"] }
//	  streak-warning: { after: 20h }
type ScheduleOverride struct {
	Times   []string `json:"times,omitempty"`
	Weekday string   `json:"weekday,omitempty"`
	After   string   `json:"after,omitempty"`
	Title   string   `json:"title,omitempty"`
	Body    string   `json:"body,omitempty"`
}

// Default is used when no file exists yet.
func Default() *Config {
	return &Config{
		Logging:  LoggingConfig{Level: "info", Console: true},
		Storage:  StorageConfig{Driver: "file", Path: "./habitbell_store"},
		Gateway:  GatewayConfig{Permission: "granted"},
		Delivery: DeliveryConfig{Transport: "console"},
		Notifications: NotificationsConfig{
			Enabled:   []string{"daily-checkin", "motivational", "streak-warning", "weekly-report"},
			OpTimeout: "10s",
		},
	}
}
