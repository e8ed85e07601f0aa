package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"busycal/internal/config"
	"busycal/internal/ics"
	appLog "busycal/internal/log"
	"busycal/internal/planner"
)

const version = "0.1.0"

// App carries the global flags and the state built from them.
type App struct {
	configPath string
	logLevel   string

	cfg *config.Config
}

// load reads and validates the config file and applies the log level. The
// --log-level flag wins over the file.
func (a *App) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", a.configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := cfg.LogLevel
	if a.logLevel != "" {
		level = a.logLevel
	}
	lvl, err := appLog.ParseLevel(level)
	if err != nil {
		return err
	}
	appLog.SetLevel(lvl)

	a.cfg = cfg
	return nil
}

// newPlanner builds a seeded planner with an HTTP feed fetcher.
func (a *App) newPlanner() (*planner.Planner, error) {
	var fetcher planner.FeedFetcher
	if len(a.cfg.ICS) > 0 {
		fetcher = ics.NewFetcher(a.cfg.CacheDir, &http.Client{Timeout: 20 * time.Second})
	}
	return planner.New(a.cfg, fetcher)
}

// syncOnce runs one feed import and logs rather than fails on partial errors.
func syncOnce(ctx context.Context, p *planner.Planner) {
	report, err := p.SyncFeeds(ctx)
	if err != nil {
		appLog.Warn("feed sync incomplete", "errors", len(report.Errors), "cause", err)
		return
	}
	appLog.Info("feed sync complete", "sources", len(report.Imported))
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func main() {
	app := &App{}
	rootCmd := SetupCommands(app)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
