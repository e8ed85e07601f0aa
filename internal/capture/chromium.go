package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"

	"busycal/internal/config"
	appLog "busycal/internal/log"
)

// Defaults match the layout of the /calendar page.
const (
	DefaultWidth      = 1280
	DefaultHeight     = 900
	DefaultTimeoutSec = 30
)

// readySelector is the element /calendar marks once the grid is rendered.
const readySelector = `[data-ready="true"]`

// Options defines a single screenshot of the calendar page.
type Options struct {
	// URL to capture, e.g. "http://127.0.0.1:8080/calendar?month=2025-05".
	URL string

	// OutputPath is where the PNG is written. Parent directories are created.
	OutputPath string

	Width  int
	Height int

	// Timeout bounds the whole capture including browser start-up.
	Timeout time.Duration
}

// OptionsFromConfig builds capture options for url from the snapshot section
// of cfg.
func OptionsFromConfig(cfg config.SnapshotConfig, url string) Options {
	return Options{
		URL:        url,
		OutputPath: cfg.Output,
		Width:      cfg.Width,
		Height:     cfg.Height,
		Timeout:    time.Duration(cfg.TimeoutSec) * time.Second,
	}
}

func (o *Options) normalize() error {
	if o.URL == "" {
		return errors.New("capture: URL is required")
	}
	if o.OutputPath == "" {
		return errors.New("capture: OutputPath is required")
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeoutSec * time.Second
	}
	return nil
}

// CalendarPNG opens opts.URL in headless Chromium, waits for the calendar to
// mark itself ready and writes a full-page PNG to opts.OutputPath.
func CalendarPNG(parentCtx context.Context, opts Options) error {
	if err := opts.normalize(); err != nil {
		return err
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	start := time.Now()
	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(readySelector, chromedp.ByQuery),
		// Let the last paint settle.
		chromedp.Sleep(200 * time.Millisecond),
		chromedp.FullScreenshot(&png, 100),
	}

	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if err := writePNG(opts.OutputPath, png); err != nil {
		return err
	}
	appLog.Info("calendar captured",
		"output", opts.OutputPath,
		"bytes", len(png),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

// writePNG writes data next to path and renames it into place so /preview.png
// never serves a half-written file.
func writePNG(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("capture: create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".capture-*.png")
	if err != nil {
		return fmt.Errorf("capture: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("capture: write PNG: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("capture: close PNG: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("capture: chmod PNG: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("capture: rename PNG: %w", err)
	}
	return nil
}
