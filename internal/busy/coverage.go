package busy

import "busycal/internal/model"

// ComputeCoverage derives the covered days of the current ranges and the days
// that start or end each contiguous covered run. It is recomputed on every
// call and has no side effects.
func (s *Set) ComputeCoverage() model.Coverage {
	return Coverage(s.ranges)
}

// Coverage computes the coverage of an arbitrary list of ranges. Overlapping
// ranges collapse into one covered set; a day starts a run when the previous
// day is not covered and ends one when the next day is not covered.
func Coverage(ranges []model.BusyRange) model.Coverage {
	c := model.Coverage{
		Covered: make(model.DaySet),
		Start:   make(model.DaySet),
		End:     make(model.DaySet),
	}
	for _, r := range ranges {
		for d := r.From; !d.After(r.To); d = d.AddDays(1) {
			c.Covered.Add(d)
		}
	}
	for d := range c.Covered {
		if !c.Covered.Has(d.AddDays(-1)) {
			c.Start.Add(d)
		}
		if !c.Covered.Has(d.AddDays(1)) {
			c.End.Add(d)
		}
	}
	return c
}
