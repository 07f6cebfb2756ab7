package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
logging:
  level: debug
  console: true
storage:
  driver: sqlite
  path: ./timeplan.db
  busy_timeout: 5s
planner:
  workday_start_hour: 8
  workday_end_hour: 16
  lunch_start_hour: 12
  lunch_end_hour: 13
  snap_minutes: 30
sweep:
  enabled: true
  spec: "@every 10m"
  timezone: Europe/Berlin
`)
	cfg, err := NewConfigManager(path).Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if got := cfg.Planner.Policy().WorkdayStartHour; got != 8 {
		t.Fatalf("workday start = %d", got)
	}
	if cfg.Planner.Snap() != 30 {
		t.Fatalf("snap = %d", cfg.Planner.Snap())
	}
	if !cfg.Sweep.Enabled || cfg.Sweep.Spec != "@every 10m" {
		t.Fatalf("sweep = %+v", cfg.Sweep)
	}
}

func TestParseJSON(t *testing.T) {
	path := writeConfig(t, "config.json",
		`{"logging":{"level":"info","console":true,"file":{"enabled":false,"path":""}},
		  "storage":{"driver":"file","path":"./plans.db"},
		  "planner":{},
		  "sweep":{"enabled":false}}`)
	cfg, err := NewConfigManager(path).Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	// omitted planner section falls back to defaults
	p := cfg.Planner.Policy()
	if p.WorkdayStartHour != 9 || p.WorkdayEndHour != 17 || p.WeekdayMaxMinutes != 420 {
		t.Fatalf("default policy = %+v", p)
	}
	if cfg.Planner.Snap() != 15 {
		t.Fatalf("default snap = %d", cfg.Planner.Snap())
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
logging:
  level: info
  verbosity: high
`)
	if _, err := NewConfigManager(path).Parse(); err == nil {
		t.Fatal("expected unknown-field error")
	}
}

func TestValidateFailures(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "lunch outside workday",
			body: "planner:\n  workday_start_hour: 9\n  workday_end_hour: 12\n  lunch_start_hour: 12\n  lunch_end_hour: 13\n",
			want: "lunch",
		},
		{
			name: "bad snap",
			body: "planner:\n  snap_minutes: 7\n",
			want: "snap_minutes",
		},
		{
			name: "notify without token",
			body: "notify:\n  enabled: true\n",
			want: "token",
		},
		{
			name: "bad busy timeout",
			body: "storage:\n  driver: sqlite\n  path: ./x.db\n  busy_timeout: soon\n",
			want: "busy_timeout",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, "config.yaml", tc.body)
			_, err := NewConfigManager(path).Parse()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestLoadCommitsAndGet(t *testing.T) {
	path := writeConfig(t, "config.yaml", "sweep:\n  enabled: true\n")
	m := NewConfigManager(path)
	if m.Get() != nil {
		t.Fatal("config present before Load")
	}
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("Get does not return the committed config")
	}
}
