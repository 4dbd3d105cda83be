package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"habitbell/internal/reminder"
	logx "habitbell/pkg/logx"
)

const sampleYAML = `
logging:
  level: debug
  console: true
storage:
  driver: sqlite
  path: ./habitbell.db
gateway:
  permission: prompt
  timezone: Europe/Berlin
delivery:
  transport: console
  retry_max: 3
  dedup_window: 10m
notifications:
  enabled: [daily-checkin, Motivational, weekly-report, streak-warning]
  op_timeout: 5s
  schedules:
    motivational:
      times: ["08:30", "21:00"]
    weekly-report:
      weekday: sunday
    streak-warning:
      after: 20h
      title: Don't break it
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestLoadYAMLAndPlans(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeFile(t, "habitbell.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Gateway.Timezone != "Europe/Berlin" {
		t.Fatalf("cfg=%+v", cfg)
	}

	types, err := EnabledTypes(cfg)
	if err != nil {
		t.Fatalf("EnabledTypes: %v", err)
	}
	want := []reminder.Type{reminder.DailyCheckIn, reminder.Motivational, reminder.StreakWarning, reminder.WeeklyReport}
	if len(types) != len(want) {
		t.Fatalf("types=%v want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("types=%v want %v", types, want)
		}
	}

	plans, err := Plans(cfg)
	if err != nil {
		t.Fatalf("Plans: %v", err)
	}
	mot := plans[reminder.Motivational]
	if len(mot.Triggers) != 2 || mot.Triggers[0] != reminder.DailyAt(8, 30) || mot.Triggers[1] != reminder.DailyAt(21, 0) {
		t.Fatalf("motivational=%+v", mot.Triggers)
	}
	wk := plans[reminder.WeeklyReport]
	if len(wk.Triggers) != 1 || wk.Triggers[0] != reminder.WeeklyAt(time.Sunday, 9, 0) {
		t.Fatalf("weekly=%+v", wk.Triggers)
	}
	sw := plans[reminder.StreakWarning]
	if sw.After != 20*time.Hour || sw.ContentAt(0).Title != "Don't break it" {
		t.Fatalf("streak=%+v", sw)
	}
	if plans[reminder.DailyCheckIn].Triggers[0] != reminder.DailyAt(20, 0) {
		t.Fatalf("untouched plan changed")
	}
}

func TestDecodeIsStrict(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name, path, body string
	}{
		{"unknown field json", "c.json", `{"logging":{"level":"info"},"bogus":1}`},
		{"unknown field yaml", "c.yaml", "storage:\n  driver: file\n  colour: red\n"},
		{"trailing data", "c.json", `{} {}`},
		{"bad yaml", "c.yml", "logging: [\n"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Decode(tc.path, []byte(tc.body)); err == nil {
				t.Fatalf("accepted %q", tc.body)
			}
		})
	}
	if cfg, err := Decode("empty.yaml", nil); err != nil || cfg == nil {
		t.Fatalf("empty yaml: %v", err)
	}
}

func TestValidateReportsProblems(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"driver", func(c *Config) { c.Storage.Driver = "mongo" }, "storage.driver"},
		{"permission", func(c *Config) { c.Gateway.Permission = "maybe" }, "gateway.permission"},
		{"timezone", func(c *Config) { c.Gateway.Timezone = "Mars/Olympus" }, "gateway.timezone"},
		{"duration", func(c *Config) { c.Delivery.DedupWindow = "soon" }, "delivery.dedup_window"},
		{"telegram token", func(c *Config) { c.Delivery.Transport = "telegram"; c.Delivery.ChatID = 1 }, "telegram.token"},
		{"unknown type", func(c *Config) { c.Notifications.Enabled = []string{"nagging"} }, "notifications.enabled[0]"},
		{"instant type", func(c *Config) { c.Notifications.Enabled = []string{"achievement"} }, "not schedulable"},
		{"bad time", func(c *Config) {
			c.Notifications.Schedules = map[string]ScheduleOverride{"daily-tip": {Times: []string{"25:00"}}}
		}, "out of range"},
		{"after on recurring", func(c *Config) {
			c.Notifications.Schedules = map[string]ScheduleOverride{"daily-tip": {After: "2h"}}
		}, "does not apply"},
		{"times on relative", func(c *Config) {
			c.Notifications.Schedules = map[string]ScheduleOverride{"streak-warning": {Times: []string{"10:00"}}}
		}, "only \"after\""},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tc.mutate(cfg)
			err := Validate(cfg)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err=%v want mention of %q", err, tc.want)
			}
		})
	}
	if err := Validate(Default()); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestParseClockAndWeekday(t *testing.T) {
	t.Parallel()
	for _, ok := range []string{"00:00", "9:05", "23:59"} {
		if _, _, err := ParseClock("t", ok); err != nil {
			t.Fatalf("%q: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "24:00", "12:60", "12", "12:5", "ab:cd"} {
		if _, _, err := ParseClock("t", bad); err == nil {
			t.Fatalf("%q accepted", bad)
		}
	}
	for raw, want := range map[string]time.Weekday{"monday": time.Monday, "Sun": time.Sunday, "6": time.Saturday} {
		got, err := ParseWeekday("w", raw)
		if err != nil || got != want {
			t.Fatalf("%q: got %v err %v want %v", raw, got, err, want)
		}
	}
	if _, err := ParseWeekday("w", "7"); err == nil {
		t.Fatalf("7 accepted")
	}
}

func TestDiffEnabled(t *testing.T) {
	t.Parallel()
	oldCfg := Default()
	oldCfg.Notifications.Enabled = []string{"daily-checkin", "motivational", "daily-tip"}
	newCfg := Default()
	newCfg.Notifications.Enabled = []string{"daily-checkin", "motivational", "selfie-reminder"}
	newCfg.Notifications.Schedules = map[string]ScheduleOverride{"Motivational": {Times: []string{"10:00"}}}

	d := DiffEnabled(oldCfg, newCfg)
	if len(d.Enable) != 2 || d.Enable[0] != reminder.Motivational || d.Enable[1] != reminder.SelfieReminder {
		t.Fatalf("enable=%v", d.Enable)
	}
	if len(d.Disable) != 1 || d.Disable[0] != reminder.DailyTip {
		t.Fatalf("disable=%v", d.Disable)
	}
	if !DiffEnabled(newCfg, newCfg).Empty() {
		t.Fatalf("identical configs produced a diff")
	}
	if d := DiffEnabled(nil, newCfg); len(d.Enable) != 3 {
		t.Fatalf("first load enable=%v", d.Enable)
	}
}

func TestSummarizeChangeHidesToken(t *testing.T) {
	t.Parallel()
	a, b := Default(), Default()
	b.Telegram.Token = "123:secret"
	b.Logging.Level = "debug"
	sections, attrs := SummarizeChange(a, b)
	if strings.Join(sections, ",") != "logging,telegram" {
		t.Fatalf("sections=%v", sections)
	}
	var buf bytes.Buffer
	logx.NewWriter(&buf, "debug").Info("config changed", attrs...)
	if strings.Contains(buf.String(), "secret") {
		t.Fatalf("token leaked: %s", buf.String())
	}
	if r := RequiresRestart(a, b); len(r) != 1 || r[0] != "transport" {
		t.Fatalf("restart=%v", r)
	}
}

func TestWatchPublishesValidChanges(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "habitbell.json", `{"logging":{"level":"info"}}`)
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	m.SetValidator(func(ctx context.Context, cfg *Config) error { return Validate(cfg) })
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	// Invalid level: rejected, not published.
	if err := os.WriteFile(path, []byte(`{"logging":{"level":"loud"}}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case cfg := <-ch:
		t.Fatalf("invalid config published: %+v", cfg.Logging)
	case <-time.After(600 * time.Millisecond):
	}

	if err := os.WriteFile(path, []byte(`{"logging":{"level":"debug"}}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case cfg := <-ch:
		if cfg.Logging.Level != "debug" || m.Get().Logging.Level != "debug" {
			t.Fatalf("published=%+v", cfg.Logging)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no reload published")
	}
}
