package config

import (
	"reflect"
	"strings"

	"habitbell/internal/reminder"
	logx "habitbell/pkg/logx"
)

// EnabledDiff is what a reload must do to the running scheduler.
type EnabledDiff struct {
	Enable  []reminder.Type // newly enabled or enabled with a changed schedule
	Disable []reminder.Type
}

func (d EnabledDiff) Empty() bool { return len(d.Enable) == 0 && len(d.Disable) == 0 }

// DiffEnabled compares two configs. Both must have passed Validate.
func DiffEnabled(oldCfg, newCfg *Config) EnabledDiff {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	before, _ := EnabledTypes(oldCfg)
	after, _ := EnabledTypes(newCfg)
	was := map[reminder.Type]bool{}
	for _, t := range before {
		was[t] = true
	}
	is := map[reminder.Type]bool{}
	for _, t := range after {
		is[t] = true
	}

	var d EnabledDiff
	for _, t := range reminder.ScheduledTypes() {
		switch {
		case is[t] && !was[t]:
			d.Enable = append(d.Enable, t)
		case was[t] && !is[t]:
			d.Disable = append(d.Disable, t)
		case is[t] && scheduleChanged(oldCfg, newCfg, t):
			d.Enable = append(d.Enable, t)
		}
	}
	return d
}

func scheduleChanged(oldCfg, newCfg *Config, t reminder.Type) bool {
	return !reflect.DeepEqual(findOverride(oldCfg, t), findOverride(newCfg, t))
}

// findOverride matches keys the way ParseType does.
func findOverride(cfg *Config, t reminder.Type) *ScheduleOverride {
	for k, o := range cfg.Notifications.Schedules {
		if reminder.Type(strings.ToLower(strings.TrimSpace(k))) == t {
			o := o
			return &o
		}
	}
	return nil
}

// SummarizeChange lists changed sections with log-safe attributes. Secrets
// (the telegram token) are never included.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	var changed []string
	var attrs []logx.Field

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs, logx.String("logging.level", newCfg.Logging.Level), logx.Bool("logging.file", newCfg.Logging.File.Enabled))
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver))
	}
	if oldCfg.Gateway != newCfg.Gateway {
		changed = append(changed, "gateway")
		attrs = append(attrs, logx.String("gateway.permission", newCfg.Gateway.Permission), logx.String("gateway.timezone", newCfg.Gateway.Timezone))
	}
	if oldCfg.Delivery != newCfg.Delivery {
		changed = append(changed, "delivery")
		attrs = append(attrs, logx.String("delivery.transport", newCfg.Delivery.Transport), logx.Int("delivery.workers", newCfg.Delivery.Workers))
	}
	if oldCfg.Telegram.PollTimeout != newCfg.Telegram.PollTimeout || oldCfg.Telegram.Token != newCfg.Telegram.Token {
		changed = append(changed, "telegram")
		attrs = append(attrs, logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""))
	}
	if !reflect.DeepEqual(oldCfg.Notifications, newCfg.Notifications) {
		changed = append(changed, "notifications")
		attrs = append(attrs, logx.Strings("notifications.enabled", newCfg.Notifications.Enabled))
	}
	return changed, attrs
}

// RequiresRestart reports sections a reload cannot apply in place.
func RequiresRestart(oldCfg, newCfg *Config) []string {
	if oldCfg == nil {
		return nil
	}
	var out []string
	if oldCfg.Storage != newCfg.Storage {
		out = append(out, "storage")
	}
	if oldCfg.Gateway != newCfg.Gateway {
		out = append(out, "gateway")
	}
	if oldCfg.Delivery.Transport != newCfg.Delivery.Transport || oldCfg.Telegram != newCfg.Telegram {
		out = append(out, "transport")
	}
	return out
}
