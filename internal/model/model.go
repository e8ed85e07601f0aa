package model

import "sort"

// Sources used to tag where a BusyRange came from. Feed-imported ranges carry
// the feed's configured ID instead.
const (
	SourceManual = ""
	SourceSeed   = "seed"
)

// BusyRange is an inclusive span of calendar days during which the user is
// unavailable. From is never after To; a single-day range has From == To.
type BusyRange struct {
	// ID is an opaque identifier assigned when the range is created. It stays
	// stable across edits.
	ID string `json:"id"`

	Title string `json:"title"`
	From  Date   `json:"from"`
	To    Date   `json:"to"`

	// Source records the origin of the range (manual, seed, or a feed /
	// recurring rule ID). Feed refreshes replace ranges by source.
	Source string `json:"source,omitempty"`
}

// Identity returns the endpoint pair used by value-based edit and delete.
func (r BusyRange) Identity() Identity {
	return Identity{From: r.From, To: r.To}
}

// Days is the inclusive number of days covered by r.
func (r BusyRange) Days() int {
	return r.To.Sub(r.From) + 1
}

// Contains reports whether d falls inside r.
func (r BusyRange) Contains(d Date) bool {
	return !d.Before(r.From) && !d.After(r.To)
}

// Identity locates a range by its endpoints. Two ranges with equal endpoints
// are the same range as far as value-based edit and delete are concerned;
// titles are not part of it.
type Identity struct {
	From Date `json:"from"`
	To   Date `json:"to"`
}

// DaySet is a set of calendar days.
type DaySet map[Date]struct{}

func (s DaySet) Has(d Date) bool {
	_, ok := s[d]
	return ok
}

func (s DaySet) Add(d Date) { s[d] = struct{}{} }

func (s DaySet) Len() int { return len(s) }

// Sorted returns the members in ascending order.
func (s DaySet) Sorted() []Date {
	out := make([]Date, 0, len(s))
	for d := range s {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Coverage is the derived view of a set of busy ranges: every covered day,
// and the days that open or close a contiguous covered run.
type Coverage struct {
	Covered DaySet
	Start   DaySet
	End     DaySet
}

// CSS classes attached to calendar cells.
const (
	ClassBusy      = "busy"
	ClassBusyStart = "busy-start"
	ClassBusyEnd   = "busy-end"
)

// Classes returns the presentation hints for day d. An isolated busy day gets
// both the start and the end class.
func (c Coverage) Classes(d Date) []string {
	if !c.Covered.Has(d) {
		return nil
	}
	classes := []string{ClassBusy}
	if c.Start.Has(d) {
		classes = append(classes, ClassBusyStart)
	}
	if c.End.Has(d) {
		classes = append(classes, ClassBusyEnd)
	}
	return classes
}

// Run is a maximal contiguous stretch of covered days.
type Run struct {
	From Date `json:"from"`
	To   Date `json:"to"`
}

// Runs pairs start and end days into contiguous runs, in date order.
func (c Coverage) Runs() []Run {
	starts := c.Start.Sorted()
	ends := c.End.Sorted()
	runs := make([]Run, 0, len(starts))
	for i := range starts {
		if i >= len(ends) {
			break
		}
		runs = append(runs, Run{From: starts[i], To: ends[i]})
	}
	return runs
}
