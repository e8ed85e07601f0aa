package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	ical "github.com/arran4/golang-ical"

	appLog "busycal/internal/log"
)

// FeedEvent is a VEVENT reduced to what busy-range import needs.
type FeedEvent struct {
	Source Source

	UID     string
	Summary string

	Start  time.Time
	End    time.Time // zero when DTEND is absent
	AllDay bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID of an overridden instance
}

// ParseFeed parses an ICS payload into feed events. Cancelled and
// transparent (free) events are dropped since they never make the user busy.
// A malformed VEVENT is logged and skipped.
func ParseFeed(src Source, body []byte) ([]FeedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("ics: empty body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics: parse %s: %w", src.ID, err)
	}

	events := make([]FeedEvent, 0)
	skipped := 0
	for _, ve := range cal.Events() {
		if !blocksTime(ve) {
			skipped++
			continue
		}
		ev, err := parseVEvent(src, ve)
		if err != nil {
			appLog.Warn("ics vevent skipped", "id", src.ID, "cause", err)
			skipped++
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parsed", "id", src.ID, "events", len(events), "skipped", skipped)
	return events, nil
}

func blocksTime(ve *ical.VEvent) bool {
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil && strings.EqualFold(p.Value, "CANCELLED") {
		return false
	}
	if p := ve.GetProperty(ical.ComponentPropertyTransp); p != nil && strings.EqualFold(p.Value, "TRANSPARENT") {
		return false
	}
	return true
}

func parseVEvent(src Source, ve *ical.VEvent) (FeedEvent, error) {
	ev := FeedEvent{Source: src}

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return ev, errors.New("missing UID")
	}
	ev.UID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Summary = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return ev, errors.New("missing DTSTART")
	}
	ev.AllDay = isDateValue(dtStart)
	startAt, endAt := ve.GetStartAt, ve.GetEndAt
	if ev.AllDay {
		startAt, endAt = ve.GetAllDayStartAt, ve.GetAllDayEndAt
	}
	start, err := startAt()
	if err != nil {
		return ev, fmt.Errorf("DTSTART: %w", err)
	}
	ev.Start = start

	// DTEND is optional; a missing one means a single day or an instant.
	if ve.GetProperty(ical.ComponentPropertyDtEnd) != nil {
		if end, err := endAt(); err == nil {
			ev.End = end
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		ev.RawRRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		loc := propertyLocation(p, ev.Start.Location())
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, loc); err == nil {
				ev.ExDates = append(ev.ExDates, t)
			}
		}
	}

	if p := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); p != nil {
		if t, err := parseICSTime(p.Value, propertyLocation(p, ev.Start.Location())); err == nil {
			ev.Recurrence = &t
		}
	}

	return ev, nil
}

// isDateValue reports whether a DTSTART carries a DATE (all-day) value.
func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// propertyLocation resolves the TZID parameter of p. Without one, or when
// the zone is unknown, floating values belong to fallback (the DTSTART zone).
func propertyLocation(p *ical.IANAProperty, fallback *time.Location) *time.Location {
	if fallback == nil {
		fallback = time.UTC
	}
	vs, ok := p.ICalParameters["TZID"]
	if !ok || len(vs) == 0 {
		return fallback
	}
	tzid := strings.Trim(vs[0], `"`)
	loc, err := time.LoadLocation(tzid)
	if err != nil {
		appLog.Warn("ics unknown TZID, using DTSTART zone", "tzid", tzid, "fallback", fallback.String())
		return fallback
	}
	return loc
}

// parseICSTime handles the bare DATE / DATE-TIME / UTC forms used by EXDATE
// and RECURRENCE-ID. Values without a trailing Z are read in loc.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
