package planner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"busycal/internal/busy"
	"busycal/internal/config"
	"busycal/internal/ics"
	appLog "busycal/internal/log"
	"busycal/internal/model"
)

// FeedFetcher is the part of ics.Fetcher the planner needs.
type FeedFetcher interface {
	FetchAll(ctx context.Context, sources []ics.Source) ([]ics.FetchResult, []error)
}

// Planner owns the busy range set for the lifetime of the process. Every
// operation runs under one lock, so HTTP handlers and the feed scheduler see
// each other's changes in submission order.
type Planner struct {
	mu  sync.RWMutex
	set *busy.Set

	cfg     *config.Config
	fetcher FeedFetcher
	now     func() time.Time

	syncGroup singleflight.Group
	lastSync  SyncReport
}

// SyncReport summarizes the last feed refresh.
type SyncReport struct {
	At       time.Time      `json:"at"`
	Imported map[string]int `json:"imported"`
	Errors   []string       `json:"errors,omitempty"`
}

// New seeds a planner from cfg. fetcher may be nil when no ICS sources are
// configured.
func New(cfg *config.Config, fetcher FeedFetcher) (*Planner, error) {
	set, err := busy.NewSet(cfg.SeedRanges())
	if err != nil {
		return nil, fmt.Errorf("planner: seed: %w", err)
	}
	appLog.Info("planner seeded", "ranges", set.Len())
	return &Planner{set: set, cfg: cfg, fetcher: fetcher, now: time.Now}, nil
}

func (p *Planner) Add(from, to model.Date, title string) (model.BusyRange, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	r, err := p.set.Add(from, to, title)
	if err != nil {
		appLog.Debug("add rejected", "from", from, "to", to, "cause", err)
		return r, err
	}
	appLog.Info("busy range added", "id", r.ID, "from", r.From, "to", r.To, "title", r.Title)
	return r, nil
}

func (p *Planner) Edit(id model.Identity, from, to model.Date, title string) (model.BusyRange, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	r, err := p.set.Edit(id, from, to, title)
	if err != nil {
		appLog.Debug("edit rejected", "identity_from", id.From, "identity_to", id.To, "cause", err)
		return r, err
	}
	appLog.Info("busy range edited", "id", r.ID, "from", r.From, "to", r.To, "title", r.Title)
	return r, nil
}

func (p *Planner) EditByID(rangeID string, from, to model.Date, title string) (model.BusyRange, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	r, err := p.set.EditByID(rangeID, from, to, title)
	if err != nil {
		appLog.Debug("edit rejected", "id", rangeID, "cause", err)
		return r, err
	}
	appLog.Info("busy range edited", "id", r.ID, "from", r.From, "to", r.To, "title", r.Title)
	return r, nil
}

func (p *Planner) Delete(id model.Identity) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed := p.set.Delete(id)
	appLog.Info("busy range delete", "from", id.From, "to", id.To, "removed", removed)
	return removed
}

func (p *Planner) DeleteByID(rangeID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed := p.set.DeleteByID(rangeID)
	appLog.Info("busy range delete", "id", rangeID, "removed", removed)
	return removed
}

// Ranges returns a snapshot of the ranges in insertion order.
func (p *Planner) Ranges() []model.BusyRange {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.set.Ranges()
}

func (p *Planner) Coverage() model.Coverage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.set.ComputeCoverage()
}

// Snapshot returns ranges and their coverage from the same state.
func (p *Planner) Snapshot() ([]model.BusyRange, model.Coverage) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.set.Ranges(), p.set.ComputeCoverage()
}

func (p *Planner) LastSync() SyncReport {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSync
}

// SyncFeeds re-imports recurring rules and ICS sources within the configured
// window and replaces each source's ranges. A source that fails to fetch or
// parse keeps its previous ranges.
//
// Calls that arrive while a sync is running join it and receive its report.
// The shared run is detached from any one caller's cancellation; ctx only
// bounds how long this caller waits.
func (p *Planner) SyncFeeds(ctx context.Context) (SyncReport, error) {
	ch := p.syncGroup.DoChan("sync", func() (any, error) {
		report, err := p.syncFeeds(context.WithoutCancel(ctx))
		return report, err
	})
	select {
	case res := <-ch:
		if res.Shared {
			appLog.Debug("joined in-flight feed sync")
		}
		report, _ := res.Val.(SyncReport)
		return report, res.Err
	case <-ctx.Done():
		return SyncReport{}, ctx.Err()
	}
}

func (p *Planner) syncFeeds(ctx context.Context) (SyncReport, error) {
	loc := p.cfg.Location()
	today := model.DateOf(p.now().In(loc))
	window := ics.ExpandConfig{
		Location: loc,
		From:     today.AddDays(-p.cfg.BackfillDays),
		To:       today.AddDays(p.cfg.HorizonDays),
	}

	report := SyncReport{At: p.now(), Imported: make(map[string]int)}
	batches := make(map[string][]ics.FeedEvent)
	var order []string
	var errs []error

	for _, rule := range p.cfg.Recurring {
		ev, err := ics.RuleEvent(ics.RecurringRule{
			ID:    rule.ID,
			Title: rule.Title,
			RRule: rule.RRule,
			Start: rule.Start,
			Days:  rule.Days,
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		batches[rule.ID] = []ics.FeedEvent{ev}
		order = append(order, rule.ID)
	}

	if len(p.cfg.ICS) > 0 && p.fetcher != nil {
		sources := make([]ics.Source, 0, len(p.cfg.ICS))
		for _, c := range p.cfg.ICS {
			sources = append(sources, ics.Source{ID: c.SourceID(), URL: c.URL})
		}
		results, fetchErrs := p.fetcher.FetchAll(ctx, sources)
		errs = append(errs, fetchErrs...)
		for _, res := range results {
			events, err := ics.ParseFeed(res.Source, res.Body)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			batches[res.Source.ID] = events
			order = append(order, res.Source.ID)
		}
	}

	for _, source := range order {
		res, err := ics.Expand(batches[source], window)
		if err != nil {
			errs = append(errs, fmt.Errorf("expand %s: %w", source, err))
			continue
		}
		p.mu.Lock()
		n, err := p.set.ReplaceSource(source, res.Ranges)
		p.mu.Unlock()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		report.Imported[source] = n
		appLog.Info("feed imported", "source", source, "ranges", n, "truncated", len(res.Truncated))
	}

	for _, err := range errs {
		report.Errors = append(report.Errors, err.Error())
	}

	p.mu.Lock()
	p.lastSync = report
	p.mu.Unlock()

	if len(errs) > 0 {
		return report, fmt.Errorf("planner: sync: %w", errors.Join(errs...))
	}
	return report, nil
}
