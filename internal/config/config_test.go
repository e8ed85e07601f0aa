package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"busycal/internal/model"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("default config mismatch (-want +got):\n%s", diff)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %o, want 600", perm)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if diff := cmp.Diff(cfg, again); diff != "" {
		t.Errorf("reloaded config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
listen: ":9090"
week_start: friday
seed:
  - from: 2025-06-01
    to: 2025-06-09
    title: Trip
recurring:
  - id: weekends
    rrule: FREQ=WEEKLY;BYDAY=SA
    start: 2025-06-07
ics:
  - url: https://example.com/work.ics
    name: work
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":9090" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	if cfg.WeekStart != "monday" {
		t.Errorf("week_start = %q, want monday fallback", cfg.WeekStart)
	}
	if cfg.RefreshCron != defaultRefreshCron || cfg.HorizonDays != defaultHorizonDays || cfg.MaxRangeDays != defaultMaxRange {
		t.Errorf("defaults not applied: refresh=%q horizon=%d max_range_days=%d", cfg.RefreshCron, cfg.HorizonDays, cfg.MaxRangeDays)
	}
	if cfg.Recurring[0].Days != 1 {
		t.Errorf("recurring days = %d, want 1", cfg.Recurring[0].Days)
	}
	if got := cfg.ICS[0].SourceID(); got != "work" {
		t.Errorf("source id = %q, want work", got)
	}

	want := []model.BusyRange{{
		Title:  "Trip",
		From:   model.MustDate("2025-06-01"),
		To:     model.MustDate("2025-06-09"),
		Source: model.SourceSeed,
	}}
	if diff := cmp.Diff(want, cfg.SeedRanges()); diff != "" {
		t.Errorf("seed mismatch (-want +got):\n%s", diff)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad cron", func(c *Config) { c.RefreshCron = "every minute" }, "refresh"},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "timezone"},
		{
			"reversed seed",
			func(c *Config) {
				c.Seed = []SeedRange{{From: model.MustDate("2025-06-02"), To: model.MustDate("2025-06-01")}}
			},
			"seed[0]",
		},
		{
			"recurring without rrule",
			func(c *Config) { c.Recurring = []RecurringRule{{ID: "x"}} },
			"recurring[0]",
		},
		{
			"duplicate source ids",
			func(c *Config) {
				c.ICS = []ICSConfig{
					{URL: "https://a.example/x.ics", ID: "x"},
					{URL: "https://b.example/x.ics", ID: "x"},
				}
			},
			"duplicate id",
		},
		{
			"feed named seed",
			func(c *Config) {
				c.Recurring = []RecurringRule{{ID: "seed", RRule: "FREQ=WEEKLY"}}
			},
			"duplicate id",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate err = %v, want mention of %q", err, tc.want)
			}
		})
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadRejectsEmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
