package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	appLog "busycal/internal/log"
	"busycal/internal/model"
)

// ICSConfig describes a single ICS subscription whose events are imported as
// busy ranges.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID tags imported ranges; a refresh replaces every range with this ID.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label shown in the UI.
	Name string `yaml:"name" json:"name"`
}

// SourceID returns the identifier used to tag ranges imported from c.
func (c ICSConfig) SourceID() string {
	switch {
	case c.ID != "":
		return c.ID
	case c.Name != "":
		return c.Name
	default:
		return c.URL
	}
}

// SeedRange is a busy range loaded at startup.
type SeedRange struct {
	Title string     `yaml:"title,omitempty" json:"title,omitempty"`
	From  model.Date `yaml:"from" json:"from"`
	To    model.Date `yaml:"to" json:"to"`
}

// RecurringRule declares a repeating busy span, e.g. every weekend.
type RecurringRule struct {
	ID    string `yaml:"id" json:"id"`
	Title string `yaml:"title,omitempty" json:"title,omitempty"`
	// RRule is an RFC 5545 recurrence rule without DTSTART,
	// e.g. "FREQ=WEEKLY;BYDAY=SA".
	RRule string     `yaml:"rrule" json:"rrule"`
	Start model.Date `yaml:"start" json:"start"`
	// Days is the length of every occurrence; defaults to 1.
	Days int `yaml:"days" json:"days"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// SnapshotConfig controls the headless calendar capture.
type SnapshotConfig struct {
	Width      int    `yaml:"width" json:"width"`
	Height     int    `yaml:"height" json:"height"`
	TimeoutSec int    `yaml:"timeout_sec" json:"timeout_sec"`
	Output     string `yaml:"output" json:"output"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API and calendar page.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used to map feed events onto calendar days.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is "monday" (default) or "sunday" for the month grid.
	WeekStart string `yaml:"week_start" json:"week_start"`

	// RefreshCron is a 5-field cron spec for re-importing ICS feeds.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays / BackfillDays bound the window feed events are imported for.
	HorizonDays  int `yaml:"horizon_days" json:"horizon_days"`
	BackfillDays int `yaml:"backfill_days" json:"backfill_days"`

	// MaxRangeDays caps the inclusive length of a range created or edited
	// over HTTP.
	MaxRangeDays int `yaml:"max_range_days" json:"max_range_days"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// CacheDir holds the ICS HTTP cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	Seed      []SeedRange     `yaml:"seed" json:"seed"`
	Recurring []RecurringRule `yaml:"recurring" json:"recurring"`
	ICS       []ICSConfig     `yaml:"ics" json:"ics"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	Snapshot SnapshotConfig `yaml:"snapshot" json:"snapshot"`
}

const (
	defaultListen      = "127.0.0.1:8080"
	defaultTimezone    = "Asia/Seoul"
	defaultRefreshCron = "*/30 * * * *"
	defaultHorizonDays = 120
	defaultBackfill    = 30
	defaultMaxRange    = 366
	defaultCacheDir    = "./cache/ics-cache"
)

// DefaultSeed is the busy schedule a fresh install starts with.
func DefaultSeed() []SeedRange {
	return []SeedRange{
		{From: model.NewDate(2025, time.April, 25), To: model.NewDate(2025, time.May, 8)},
		{From: model.NewDate(2025, time.May, 18), To: model.NewDate(2025, time.May, 29)},
		{From: model.NewDate(2025, time.June, 8), To: model.NewDate(2025, time.June, 14)},
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:       defaultListen,
		Timezone:     defaultTimezone,
		WeekStart:    "monday",
		RefreshCron:  defaultRefreshCron,
		HorizonDays:  defaultHorizonDays,
		BackfillDays: defaultBackfill,
		MaxRangeDays: defaultMaxRange,
		LogLevel:     "info",
		CacheDir:     defaultCacheDir,
		Seed:         DefaultSeed(),
		Recurring:    []RecurringRule{},
		ICS:          []ICSConfig{},
		Snapshot: SnapshotConfig{
			Width:      1280,
			Height:     900,
			TimeoutSec: 30,
			Output:     "./cache/calendar.png",
		},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly. An absent seed list stays
// empty; only DefaultConfig carries the prototype seed.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	switch c.WeekStart {
	case "monday", "sunday":
	default:
		c.WeekStart = "monday"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = defaultHorizonDays
	}
	if c.BackfillDays < 0 {
		c.BackfillDays = 0
	}
	if c.MaxRangeDays <= 0 {
		c.MaxRangeDays = defaultMaxRange
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.Seed == nil {
		c.Seed = []SeedRange{}
	}
	if c.Recurring == nil {
		c.Recurring = []RecurringRule{}
	}
	for i := range c.Recurring {
		if c.Recurring[i].Days <= 0 {
			c.Recurring[i].Days = 1
		}
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	if c.Snapshot.Width <= 0 {
		c.Snapshot.Width = 1280
	}
	if c.Snapshot.Height <= 0 {
		c.Snapshot.Height = 900
	}
	if c.Snapshot.TimeoutSec <= 0 {
		c.Snapshot.TimeoutSec = 30
	}
	if c.Snapshot.Output == "" {
		c.Snapshot.Output = "./cache/calendar.png"
	}
}

// Validate reports configuration errors that Normalize cannot repair.
func (c *Config) Validate() error {
	var errs []error
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		errs = append(errs, fmt.Errorf("refresh %q: %w", c.RefreshCron, err))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	for i, s := range c.Seed {
		if s.From.After(s.To) {
			errs = append(errs, fmt.Errorf("seed[%d]: from %s is after to %s", i, s.From, s.To))
		}
	}
	// Seed ranges are tagged "seed"; a feed with that ID would replace them.
	ids := map[string]bool{model.SourceSeed: true}
	for i, r := range c.Recurring {
		if r.ID == "" || r.RRule == "" {
			errs = append(errs, fmt.Errorf("recurring[%d]: id and rrule are required", i))
		}
		if ids[r.ID] {
			errs = append(errs, fmt.Errorf("recurring[%d]: duplicate id %q", i, r.ID))
		}
		ids[r.ID] = true
	}
	for i, src := range c.ICS {
		if src.URL == "" {
			errs = append(errs, fmt.Errorf("ics[%d]: url is required", i))
			continue
		}
		if ids[src.SourceID()] {
			errs = append(errs, fmt.Errorf("ics[%d]: duplicate id %q", i, src.SourceID()))
		}
		ids[src.SourceID()] = true
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", c.Timezone)
		return time.Local
	}
	return loc
}

// SeedRanges converts the seed list into busy ranges tagged as seed data.
func (c *Config) SeedRanges() []model.BusyRange {
	out := make([]model.BusyRange, 0, len(c.Seed))
	for _, s := range c.Seed {
		out = append(out, model.BusyRange{
			Title:  s.Title,
			From:   s.From,
			To:     s.To,
			Source: model.SourceSeed,
		})
	}
	return out
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms (creating parent directories) and returned.
//   - Otherwise the YAML is decoded and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config: path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Return cfg anyway so the caller can decide.
				return cfg, err
			}
			appLog.Info("wrote default config", "path", path)
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms,
// creating the parent directory with 0700 if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config: path is empty")
	}
	if cfg == nil {
		return errors.New("config: nil config")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".busycal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
