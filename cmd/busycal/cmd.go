package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"busycal/internal/capture"
	"busycal/internal/ics"
	appLog "busycal/internal/log"
	"busycal/internal/model"
	"busycal/internal/scheduler"
	"busycal/internal/web"
)

func SetupCommands(a *App) *cobra.Command {
	// root command
	rootCmd := &cobra.Command{
		Use:           "busycal",
		Short:         "Busy-day planner with calendar view, ICS import and export",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "./config.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")

	// command for running the web UI, API and feed scheduler
	var listen string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the calendar and API, refreshing feeds on schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				a.cfg.Listen = listen
			}
			return a.serve()
		},
	}
	serveCmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config)")

	// command for printing ranges and coverage runs
	var coverageSync bool
	coverageCmd := &cobra.Command{
		Use:   "coverage",
		Short: "Print busy ranges and contiguous busy runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.coverage(cmd.Context(), cmd.OutOrStdout(), coverageSync)
		},
	}
	coverageCmd.Flags().BoolVar(&coverageSync, "sync", false, "import configured feeds first")

	// command for exporting busy ranges as iCalendar
	var exportOut string
	var exportSync bool
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write busy ranges as an iCalendar feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.export(cmd.Context(), cmd.OutOrStdout(), exportOut, exportSync)
		},
	}
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default stdout)")
	exportCmd.Flags().BoolVar(&exportSync, "sync", false, "import configured feeds first")

	// command for capturing the calendar page as PNG
	var snapURL, snapOut, snapMonth string
	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Capture the /calendar page of a running server as PNG",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := snapshotURL(snapURL, a.cfg.Listen, snapMonth)
			if err != nil {
				return err
			}
			opts := capture.OptionsFromConfig(a.cfg.Snapshot, target)
			if snapOut != "" {
				opts.OutputPath = snapOut
			}
			return capture.CalendarPNG(cmd.Context(), opts)
		},
	}
	snapshotCmd.Flags().StringVar(&snapURL, "url", "", "calendar URL (default http://<listen>/calendar)")
	snapshotCmd.Flags().StringVarP(&snapOut, "out", "o", "", "PNG output path (overrides config)")
	snapshotCmd.Flags().StringVar(&snapMonth, "month", "", "month to capture as YYYY-MM")

	// add commands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(coverageCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(snapshotCmd)

	return rootCmd
}

func (a *App) serve() error {
	appLog.Info("busycal starting", "version", version)
	appLog.Info("effective config",
		"listen", a.cfg.Listen,
		"timezone", a.cfg.Timezone,
		"refresh", a.cfg.RefreshCron,
		"horizon_days", a.cfg.HorizonDays,
		"backfill_days", a.cfg.BackfillDays,
		"seed_count", len(a.cfg.Seed),
		"recurring_count", len(a.cfg.Recurring),
		"ics_count", len(a.cfg.ICS),
	)

	ctx, stop := signalContext()
	defer stop()

	p, err := a.newPlanner()
	if err != nil {
		return err
	}
	syncOnce(ctx, p)

	sched, err := scheduler.New(a.cfg.RefreshCron, a.cfg.Location(), func(ctx context.Context) error {
		_, err := p.SyncFeeds(ctx)
		return err
	})
	if err != nil {
		return err
	}
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Run(ctx)
	}()

	err = web.NewServer(a.cfg, p).Run(ctx)
	stop()
	<-schedDone

	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	appLog.Info("busycal exiting")
	return nil
}

func (a *App) coverage(ctx context.Context, w io.Writer, sync bool) error {
	p, err := a.newPlanner()
	if err != nil {
		return err
	}
	if sync {
		syncOnce(ctx, p)
	}

	ranges, cov := p.Snapshot()

	var rows [][]string
	for _, r := range ranges {
		source := r.Source
		if source == model.SourceManual {
			source = "manual"
		}
		rows = append(rows, []string{r.Title, r.From.String(), r.To.String(), strconv.Itoa(r.Days()), source})
	}
	printTable(w, []string{"Title", "From", "To", "Days", "Source"}, rows,
		[]string{"", "", "Total:", strconv.Itoa(cov.Covered.Len()), ""})

	fmt.Fprintln(w)
	rows = rows[:0]
	for _, run := range cov.Runs() {
		rows = append(rows, []string{run.From.String(), run.To.String(), strconv.Itoa(run.To.Sub(run.From) + 1)})
	}
	printTable(w, []string{"Run start", "Run end", "Days"}, rows, nil)
	return nil
}

func (a *App) export(ctx context.Context, stdout io.Writer, out string, sync bool) (err error) {
	p, err := a.newPlanner()
	if err != nil {
		return err
	}
	if sync {
		syncOnce(ctx, p)
	}

	w := stdout
	if out != "" {
		f, createErr := os.Create(out)
		if createErr != nil {
			return createErr
		}
		defer func() {
			err = errors.Join(err, f.Close())
		}()
		w = f
	}
	return ics.WriteExport(w, p.Ranges(), ics.ExportOptions{})
}

// snapshotURL picks the page to capture: an explicit URL, or /calendar on the
// configured listen address.
func snapshotURL(raw, listen, month string) (string, error) {
	if raw == "" {
		raw = "http://" + listen + "/calendar"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("snapshot: bad url %q: %w", raw, err)
	}
	if month != "" {
		q := u.Query()
		q.Set("month", month)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func printTable(w io.Writer, headers []string, rows [][]string, footers []string) {
	colWidths := make([]int, len(headers))
	for i, header := range headers {
		colWidths[i] = len(header)
	}
	for _, row := range append(rows, footers) {
		for i, cell := range row {
			if len(cell) > colWidths[i] {
				colWidths[i] = len(cell)
			}
		}
	}

	printRow := func(cells []string) {
		for i := range headers {
			var cell string
			if i < len(cells) {
				cell = cells[i]
			}
			fmt.Fprintf(w, "%-*s\t", colWidths[i], cell)
		}
		fmt.Fprintln(w)
	}

	printRow(headers)
	for _, row := range rows {
		printRow(row)
	}
	if len(footers) > 0 {
		printRow(footers)
	}
}
