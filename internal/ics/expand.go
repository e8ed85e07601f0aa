package ics

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	appLog "busycal/internal/log"
	"busycal/internal/model"
)

const defaultMaxOccurrencesPerEvent = 1000

// ExpandConfig controls how feed events become busy ranges.
type ExpandConfig struct {
	// Location maps timed events onto calendar days. Nil means time.Local.
	Location *time.Location

	// From / To bound the import window (inclusive). Only ranges that touch
	// the window are produced; they are not clipped to it.
	From model.Date
	To   model.Date

	// MaxOccurrencesPerEvent caps recurrence expansion per event.
	MaxOccurrencesPerEvent int
}

// ExpandResult holds imported ranges in feed order and the UIDs whose
// recurrence hit the cap.
type ExpandResult struct {
	Ranges    []model.BusyRange
	Truncated []string
}

// Expand turns feed events into busy ranges tagged with their source ID.
// Recurring events are expanded with their RRULE and EXDATEs; an instance
// with a RECURRENCE-ID override is replaced by the override.
func Expand(events []FeedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.To.Before(cfg.From) {
		return result, errors.New("ics: expand window ends before it starts")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	overrides := make(map[string][]FeedEvent)
	for _, ev := range events {
		if ev.Recurrence != nil {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
		}
	}

	for _, ev := range events {
		if ev.Recurrence != nil {
			// Overrides are applied while expanding their base; orphans stand alone.
			if hasBase(events, ev.UID) {
				continue
			}
			result.Ranges = appendInWindow(result.Ranges, ev, ev.Start, cfg)
			continue
		}
		if ev.RawRRule == "" {
			if o, ok := overrideFor(overrides[ev.UID], ev.Start); ok {
				ev = o
			}
			result.Ranges = appendInWindow(result.Ranges, ev, ev.Start, cfg)
			continue
		}
		var hitCap bool
		result.Ranges, hitCap = expandRecurring(result.Ranges, ev, overrides[ev.UID], cfg)
		if hitCap {
			result.Truncated = append(result.Truncated, ev.UID)
			appLog.Warn("ics expansion truncated", "uid", ev.UID, "cap", cfg.MaxOccurrencesPerEvent)
		}
	}
	return result, nil
}

func hasBase(events []FeedEvent, uid string) bool {
	for _, ev := range events {
		if ev.UID == uid && ev.Recurrence == nil {
			return true
		}
	}
	return false
}

func expandRecurring(out []model.BusyRange, ev FeedEvent, overrides []FeedEvent, cfg ExpandConfig) ([]model.BusyRange, bool) {
	r, err := newRule(ev.RawRRule, ev.Start)
	if err != nil {
		appLog.Error("ics: bad RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return out, false
	}

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(exDateFor(ex, ev))
	}

	// Widen the search by the event length so instances that started before
	// the window but run into it are found.
	loc := ev.Start.Location()
	searchFrom := cfg.From.AddDays(-spanDays(ev) - 1).Time(loc)
	searchTo := cfg.To.AddDays(1).Time(loc)

	starts := set.Between(searchFrom, searchTo, true)
	hitCap := false
	if len(starts) > cfg.MaxOccurrencesPerEvent {
		starts = starts[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	for _, occStart := range starts {
		if o, ok := overrideFor(overrides, occStart); ok {
			out = appendInWindow(out, o, o.Start, cfg)
			continue
		}
		out = appendInWindow(out, ev, occStart, cfg)
	}
	return out, hitCap
}

// newRule builds the rule with DTSTART set before defaults (such as the
// weekday of a bare FREQ=WEEKLY) are derived from it.
func newRule(raw string, dtstart time.Time) (*rrule.RRule, error) {
	opt, err := rrule.StrToROption(raw)
	if err != nil {
		return nil, err
	}
	opt.Dtstart = dtstart
	return rrule.NewRRule(*opt)
}

// exDateFor aligns a bare EXDATE with the event's timezone. All-day EXDATEs
// are compared by calendar day.
func exDateFor(ex time.Time, ev FeedEvent) time.Time {
	if ev.AllDay {
		y, m, d := ex.Date()
		return time.Date(y, m, d, ev.Start.Hour(), ev.Start.Minute(), ev.Start.Second(), 0, ev.Start.Location())
	}
	return ex.In(ev.Start.Location())
}

func overrideFor(overrides []FeedEvent, occStart time.Time) (FeedEvent, bool) {
	for _, o := range overrides {
		if o.Recurrence.Equal(occStart) {
			return o, true
		}
		// All-day RECURRENCE-IDs carry no time; match by calendar day.
		if o.AllDay && model.DateOf(*o.Recurrence) == model.DateOf(occStart) {
			return o, true
		}
	}
	return FeedEvent{}, false
}

// spanDays is the number of extra days an instance covers beyond its first.
func spanDays(ev FeedEvent) int {
	from, to := daySpan(ev, ev.Start, time.UTC)
	return to.Sub(from)
}

// daySpan maps one instance starting at start onto the calendar days it
// covers. All-day DTEND is exclusive; a timed event ending exactly at
// midnight does not cover that day.
func daySpan(ev FeedEvent, start time.Time, loc *time.Location) (model.Date, model.Date) {
	if ev.AllDay {
		from := model.DateOf(start)
		if ev.End.IsZero() {
			return from, from
		}
		days := model.DateOf(ev.End).Sub(model.DateOf(ev.Start)) - 1
		if days < 0 {
			days = 0
		}
		return from, from.AddDays(days)
	}

	s := start.In(loc)
	from := model.DateOf(s)
	if ev.End.IsZero() || !ev.End.After(ev.Start) {
		return from, from
	}
	e := s.Add(ev.End.Sub(ev.Start)).In(loc)
	to := model.DateOf(e)
	if e.Equal(to.Time(loc)) {
		to = to.AddDays(-1)
	}
	if to.Before(from) {
		to = from
	}
	return from, to
}

func appendInWindow(out []model.BusyRange, ev FeedEvent, start time.Time, cfg ExpandConfig) []model.BusyRange {
	from, to := daySpan(ev, start, cfg.Location)
	if to.Before(cfg.From) || from.After(cfg.To) {
		return out
	}
	return append(out, model.BusyRange{
		Title:  ev.Summary,
		From:   from,
		To:     to,
		Source: ev.Source.ID,
	})
}

// RecurringRule is a configured repeating busy span.
type RecurringRule struct {
	ID    string
	Title string
	RRule string
	Start model.Date
	Days  int
}

// RuleEvent converts a recurring rule into an all-day feed event so it goes
// through the same expansion as subscribed feeds.
func RuleEvent(rule RecurringRule) (FeedEvent, error) {
	if rule.RRule == "" {
		return FeedEvent{}, fmt.Errorf("ics: rule %s has no rrule", rule.ID)
	}
	if _, err := newRule(rule.RRule, rule.Start.Time(time.UTC)); err != nil {
		return FeedEvent{}, fmt.Errorf("ics: rule %s: %w", rule.ID, err)
	}
	days := rule.Days
	if days <= 0 {
		days = 1
	}
	return FeedEvent{
		Source:   Source{ID: rule.ID},
		UID:      rule.ID,
		Summary:  rule.Title,
		Start:    rule.Start.Time(time.UTC),
		End:      rule.Start.AddDays(days).Time(time.UTC),
		AllDay:   true,
		RawRRule: rule.RRule,
	}, nil
}
