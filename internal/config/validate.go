package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	logx "habitbell/pkg/logx"
)

// Validate checks a config as a whole. All problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	oneOf := func(path, v string, allowed ...string) {
		v = strings.ToLower(strings.TrimSpace(v))
		for _, a := range allowed {
			if v == a {
				return
			}
		}
		add(fmt.Errorf("%s: %q is not one of %s", path, v, strings.Join(allowed, ", ")))
	}

	if !logx.ValidLevel(cfg.Logging.Level) {
		add(fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}

	oneOf("storage.driver", cfg.Storage.Driver, "", "memory", "file", "sqlite", "sqlite3")
	_, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	add(err)

	oneOf("gateway.permission", cfg.Gateway.Permission, "", "granted", "denied", "prompt")
	if tz := strings.TrimSpace(cfg.Gateway.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("gateway.timezone: %w", err))
		}
	}
	if cfg.Gateway.MaxPending < 0 {
		add(errors.New("gateway.max_pending: must be >= 0"))
	}
	_, err = ParseDurationField("gateway.deliver_timeout", cfg.Gateway.DeliverTimeout)
	add(err)

	d := cfg.Delivery
	oneOf("delivery.transport", d.Transport, "", "console", "telegram")
	for path, raw := range map[string]string{
		"delivery.retry_base":      d.RetryBase,
		"delivery.retry_max_delay": d.RetryMaxDelay,
		"delivery.send_timeout":    d.SendTimeout,
		"delivery.dedup_window":    d.DedupWindow,
	} {
		_, err := ParseDurationField(path, raw)
		add(err)
	}
	if d.Workers < 0 || d.QueueSize < 0 || d.RatePerSec < 0 || d.RetryMax < 0 {
		add(errors.New("delivery: workers, queue_size, rate_per_sec and retry_max must be >= 0"))
	}
	if strings.EqualFold(strings.TrimSpace(d.Transport), "telegram") {
		if strings.TrimSpace(cfg.Telegram.Token) == "" {
			add(errors.New("telegram.token: required when delivery.transport is telegram"))
		}
		if d.ChatID == 0 {
			add(errors.New("delivery.chat_id: required when delivery.transport is telegram"))
		}
	}
	_, err = ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	add(err)

	_, err = EnabledTypes(cfg)
	add(err)
	_, err = ParseDurationField("notifications.op_timeout", cfg.Notifications.OpTimeout)
	add(err)
	_, err = Plans(cfg)
	add(err)

	return errors.Join(errs...)
}
