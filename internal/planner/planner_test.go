package planner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"busycal/internal/busy"
	"busycal/internal/config"
	"busycal/internal/ics"
	"busycal/internal/model"
)

type fakeFetcher struct {
	bodies map[string]string
	calls  int
}

func (f *fakeFetcher) FetchAll(_ context.Context, sources []ics.Source) ([]ics.FetchResult, []error) {
	f.calls++
	var out []ics.FetchResult
	var errs []error
	for _, src := range sources {
		body, ok := f.bodies[src.URL]
		if !ok {
			errs = append(errs, errors.New("fetch "+src.ID+": 404"))
			continue
		}
		out = append(out, ics.FetchResult{Source: src, Body: []byte(strings.ReplaceAll(body, "\n", "\r\n"))})
	}
	return out, errs
}

// gatedFetcher blocks every fetch until release is closed.
type gatedFetcher struct {
	calls   atomic.Int32
	started chan struct{}
	once    sync.Once
	release chan struct{}
}

func (f *gatedFetcher) FetchAll(_ context.Context, sources []ics.Source) ([]ics.FetchResult, []error) {
	f.calls.Add(1)
	f.once.Do(func() { close(f.started) })
	<-f.release
	out := make([]ics.FetchResult, 0, len(sources))
	for _, src := range sources {
		out = append(out, ics.FetchResult{Source: src, Body: []byte(strings.ReplaceAll(teamFeed, "\n", "\r\n"))})
	}
	return out, nil
}

const teamFeed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:offsite@example
DTSTAMP:20250101T000000Z
SUMMARY:Offsite
DTSTART;VALUE=DATE:20250702
DTEND;VALUE=DATE:20250705
END:VEVENT
END:VCALENDAR
`

func d(s string) model.Date { return model.MustDate(s) }

func newPlanner(t *testing.T, cfg *config.Config, f FeedFetcher) *Planner {
	t.Helper()
	p, err := New(cfg, f)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.now = func() time.Time { return time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC) }
	return p
}

func TestSeedAndCoverage(t *testing.T) {
	cfg := config.DefaultConfig()
	p := newPlanner(t, cfg, nil)

	if got := len(p.Ranges()); got != 3 {
		t.Fatalf("seeded ranges = %d, want 3", got)
	}
	c := p.Coverage()
	if c.Covered.Len() != 14+12+7 {
		t.Errorf("covered = %d, want 33", c.Covered.Len())
	}
	if len(c.Runs()) != 3 {
		t.Errorf("runs = %v, want 3", c.Runs())
	}
}

func TestMutationsDelegateToSet(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Seed = nil
	p := newPlanner(t, cfg, nil)

	if _, err := p.Add(d("2025-06-01"), d("2025-05-30"), ""); !errors.Is(err, busy.ErrInvalidRange) {
		t.Errorf("Add err = %v, want ErrInvalidRange", err)
	}
	r, err := p.Add(d("2025-06-10"), d("2025-06-10"), "")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := p.Edit(model.Identity{From: d("2025-01-01"), To: d("2025-01-01")}, d("2025-06-10"), d("2025-06-11"), ""); !errors.Is(err, busy.ErrNotFound) {
		t.Errorf("Edit err = %v, want ErrNotFound", err)
	}
	if _, err := p.EditByID(r.ID, d("2025-06-10"), d("2025-06-11"), "Dentist"); err != nil {
		t.Fatalf("EditByID: %v", err)
	}
	if !p.Delete(model.Identity{From: d("2025-06-10"), To: d("2025-06-11")}) {
		t.Error("Delete returned false")
	}
	if p.DeleteByID(r.ID) {
		t.Error("DeleteByID after Delete returned true")
	}
}

func TestSyncFeedsReplacesPerSource(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ICS = []config.ICSConfig{
		{ID: "team", URL: "https://example.com/team.ics"},
		{ID: "broken", URL: "https://example.com/missing.ics"},
	}
	cfg.Recurring = []config.RecurringRule{
		{ID: "sundays", Title: "Rest", RRule: "FREQ=WEEKLY;BYDAY=SU", Start: d("2025-06-01"), Days: 1},
	}
	cfg.BackfillDays = 0
	cfg.HorizonDays = 20
	cfg.Timezone = "UTC"

	f := &fakeFetcher{bodies: map[string]string{"https://example.com/team.ics": teamFeed}}
	p := newPlanner(t, cfg, f)

	report, err := p.SyncFeeds(context.Background())
	if err == nil {
		t.Error("expected an error for the broken source")
	}
	if report.Imported["team"] != 1 {
		t.Errorf("team imported = %d, want 1", report.Imported["team"])
	}
	// Window 2025-06-15..2025-07-05: Sundays 15, 22, 29 June.
	if report.Imported["sundays"] != 3 {
		t.Errorf("sundays imported = %d, want 3", report.Imported["sundays"])
	}
	if len(report.Errors) != 1 {
		t.Errorf("errors = %v, want one", report.Errors)
	}

	before := len(p.Ranges())
	if _, err := p.SyncFeeds(context.Background()); err == nil {
		t.Error("expected an error for the broken source on resync")
	}
	if after := len(p.Ranges()); after != before {
		t.Errorf("resync changed range count %d -> %d", before, after)
	}

	var offsite *model.BusyRange
	for _, r := range p.Ranges() {
		if r.Source == "team" {
			r := r
			offsite = &r
		}
	}
	if offsite == nil || offsite.From != d("2025-07-02") || offsite.To != d("2025-07-04") || offsite.Title != "Offsite" {
		t.Errorf("offsite = %+v", offsite)
	}
	if got := p.LastSync(); got.Imported["team"] != 1 {
		t.Errorf("LastSync = %+v", got)
	}
}

func TestConcurrentAccess(t *testing.T) {
	cfg := config.DefaultConfig()
	p := newPlanner(t, cfg, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			day := d("2025-08-01").AddDays(i)
			r, err := p.Add(day, day, "")
			if err != nil {
				t.Errorf("Add: %v", err)
				return
			}
			_ = p.Coverage()
			p.DeleteByID(r.ID)
		}(i)
	}
	wg.Wait()

	if got := len(p.Ranges()); got != 3 {
		t.Errorf("ranges = %d, want the 3 seeds", got)
	}
}

func TestSyncFeedsJoinsInFlightRun(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ICS = []config.ICSConfig{{ID: "team", URL: "https://example.com/team.ics"}}
	cfg.HorizonDays = 30
	cfg.Timezone = "UTC"

	f := &gatedFetcher{started: make(chan struct{}), release: make(chan struct{})}
	p := newPlanner(t, cfg, f)

	reports := make([]SyncReport, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		reports[0], _ = p.SyncFeeds(context.Background())
	}()
	<-f.started

	wg.Add(1)
	go func() {
		defer wg.Done()
		reports[1], _ = p.SyncFeeds(context.Background())
	}()

	// A caller that gives up waiting does not stop the shared run.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.SyncFeeds(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("canceled caller err = %v, want context.Canceled", err)
	}

	time.Sleep(50 * time.Millisecond)
	close(f.release)
	wg.Wait()

	if got := f.calls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, want 1", got)
	}
	for i, r := range reports {
		if r.Imported["team"] != 1 {
			t.Errorf("report %d imported = %v, want team=1", i, r.Imported)
		}
	}
	if !reports[0].At.Equal(reports[1].At) {
		t.Errorf("reports differ: %v vs %v", reports[0].At, reports[1].At)
	}

	if _, err := p.SyncFeeds(context.Background()); err != nil {
		t.Fatalf("follow-up sync: %v", err)
	}
	if got := f.calls.Load(); got != 2 {
		t.Errorf("fetch calls after follow-up = %d, want 2", got)
	}
}
