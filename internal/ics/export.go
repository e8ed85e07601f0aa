package ics

import (
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	"busycal/internal/model"
)

// sourceProperty carries a range's origin through export.
const sourceProperty = ical.ComponentProperty("X-BUSYCAL-SOURCE")

// ExportOptions names the exported calendar and pins DTSTAMP for
// reproducible output. A zero Now means time.Now.
type ExportOptions struct {
	Name string
	Now  time.Time
}

// Export renders busy ranges as an iCalendar document with one all-day,
// opaque VEVENT per range. DTEND is exclusive, so a range ending on the 8th
// is written with DTEND on the 9th.
func Export(ranges []model.BusyRange, opts ExportOptions) *ical.Calendar {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	name := opts.Name
	if name == "" {
		name = "Busy days"
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//busycal//busy ranges//EN")
	cal.SetXWRCalName(name)

	for _, r := range ranges {
		ev := cal.AddEvent(r.ID)
		ev.SetDtStampTime(now.UTC())
		ev.SetSummary(r.Title)
		ev.SetAllDayStartAt(r.From.Time(time.UTC))
		ev.SetAllDayEndAt(r.To.AddDays(1).Time(time.UTC))
		ev.SetProperty(ical.ComponentPropertyTransp, "OPAQUE")
		if r.Source != model.SourceManual {
			ev.SetProperty(sourceProperty, r.Source)
		}
	}
	return cal
}

// WriteExport serializes Export's calendar to w.
func WriteExport(w io.Writer, ranges []model.BusyRange, opts ExportOptions) error {
	_, err := io.WriteString(w, Export(ranges, opts).Serialize())
	return err
}
