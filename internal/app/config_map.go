package app

import (
	"fmt"
	"strings"
	"time"

	"habitbell/internal/config"
	"habitbell/internal/gateway/local"
	"habitbell/internal/notifier"
	"habitbell/internal/storage"
	kit "habitbell/internal/transport"
	logx "habitbell/pkg/logx"
)

const defaultOpTimeout = 10 * time.Second

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "", "memory":
		return storage.Config{Driver: "memory"}, nil
	case "file":
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapGatewayConfig(cfg *config.Config) (local.Config, error) {
	gc := cfg.Gateway
	deliver, err := config.ParseDurationField("gateway.deliver_timeout", gc.DeliverTimeout)
	if err != nil {
		return local.Config{}, err
	}
	return local.Config{
		Permission:     strings.ToLower(strings.TrimSpace(gc.Permission)),
		Timezone:       strings.TrimSpace(gc.Timezone),
		MaxPending:     gc.MaxPending,
		DeliverTimeout: deliver,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, kit.ChatTarget, error) {
	d := cfg.Delivery
	out := notifier.Config{
		Enabled:      true,
		Workers:      d.Workers,
		QueueSize:    d.QueueSize,
		RatePerSec:   d.RatePerSec,
		RetryMax:     d.RetryMax,
		PersistDedup: d.PersistDedup,
	}
	if d.RetryMax == 0 {
		out.RetryMax = 3
	}
	var err error
	if out.RetryBase, err = config.ParseDurationField("delivery.retry_base", d.RetryBase); err != nil {
		return notifier.Config{}, kit.ChatTarget{}, err
	}
	if out.RetryMaxDelay, err = config.ParseDurationField("delivery.retry_max_delay", d.RetryMaxDelay); err != nil {
		return notifier.Config{}, kit.ChatTarget{}, err
	}
	if out.SendTimeout, err = config.ParseDurationField("delivery.send_timeout", d.SendTimeout); err != nil {
		return notifier.Config{}, kit.ChatTarget{}, err
	}
	if out.DedupWindow, err = config.ParseDurationOrDefault("delivery.dedup_window", d.DedupWindow, time.Minute); err != nil {
		return notifier.Config{}, kit.ChatTarget{}, err
	}
	return out, kit.ChatTarget{ChatID: d.ChatID, ThreadID: d.ThreadID}, nil
}

func opTimeout(cfg *config.Config) time.Duration {
	d, err := config.ParseDurationOrDefault("notifications.op_timeout", cfg.Notifications.OpTimeout, defaultOpTimeout)
	if err != nil {
		return defaultOpTimeout
	}
	return d
}

func transportName(cfg *config.Config) string {
	t := strings.ToLower(strings.TrimSpace(cfg.Delivery.Transport))
	if t == "" {
		return "console"
	}
	return t
}
