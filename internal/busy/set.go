package busy

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"busycal/internal/model"
)

var (
	// ErrInvalidRange is returned when a range's From is after its To.
	ErrInvalidRange = errors.New("invalid range")
	// ErrNotFound is returned when no range matches the requested identity or ID.
	ErrNotFound = errors.New("range not found")
)

// Set is an insertion-ordered collection of busy ranges.
//
// A Set is owned by a single caller and does no locking; see
// internal/planner for the shared, goroutine-safe wrapper.
type Set struct {
	ranges []model.BusyRange
	newID  func() string
}

// NewSet builds a Set from seed ranges. Seed ranges keep their titles (a
// missing title is derived), get fresh IDs when they have none, and must each
// satisfy From <= To.
func NewSet(seed []model.BusyRange) (*Set, error) {
	s := &Set{newID: uuid.NewString}
	for _, r := range seed {
		if err := validate(r.From, r.To); err != nil {
			return nil, err
		}
		if r.ID == "" {
			r.ID = s.newID()
		}
		if r.Title == "" {
			r.Title = DefaultTitle(r.From, r.To)
		}
		s.ranges = append(s.ranges, r)
	}
	return s, nil
}

// DefaultTitle is the title given to a range created without one: the
// inclusive day count, at least two digits wide.
func DefaultTitle(from, to model.Date) string {
	return fmt.Sprintf("%02d", to.Sub(from)+1)
}

func validate(from, to model.Date) error {
	if from.After(to) {
		return fmt.Errorf("%w: from %s is after to %s", ErrInvalidRange, from, to)
	}
	return nil
}

// Add appends a new range. An empty title is treated as omitted and replaced
// with DefaultTitle. Overlapping and identical ranges are allowed to coexist.
func (s *Set) Add(from, to model.Date, title string) (model.BusyRange, error) {
	return s.add(from, to, title, model.SourceManual)
}

func (s *Set) add(from, to model.Date, title, source string) (model.BusyRange, error) {
	if err := validate(from, to); err != nil {
		return model.BusyRange{}, err
	}
	if title == "" {
		title = DefaultTitle(from, to)
	}
	r := model.BusyRange{
		ID:     s.newID(),
		Title:  title,
		From:   from,
		To:     to,
		Source: source,
	}
	s.ranges = append(s.ranges, r)
	return r, nil
}

// Edit replaces the endpoints and title of the first range whose endpoints
// equal id. The range keeps its position and ID.
func (s *Set) Edit(id model.Identity, newFrom, newTo model.Date, newTitle string) (model.BusyRange, error) {
	if err := validate(newFrom, newTo); err != nil {
		return model.BusyRange{}, err
	}
	for i := range s.ranges {
		if s.ranges[i].Identity() == id {
			return s.replace(i, newFrom, newTo, newTitle), nil
		}
	}
	return model.BusyRange{}, fmt.Errorf("%w: %s..%s", ErrNotFound, id.From, id.To)
}

// EditByID is Edit keyed by the range's surrogate ID.
func (s *Set) EditByID(rangeID string, newFrom, newTo model.Date, newTitle string) (model.BusyRange, error) {
	if err := validate(newFrom, newTo); err != nil {
		return model.BusyRange{}, err
	}
	i := s.indexOf(rangeID)
	if i < 0 {
		return model.BusyRange{}, fmt.Errorf("%w: id %s", ErrNotFound, rangeID)
	}
	return s.replace(i, newFrom, newTo, newTitle), nil
}

func (s *Set) replace(i int, from, to model.Date, title string) model.BusyRange {
	if title == "" {
		title = DefaultTitle(from, to)
	}
	s.ranges[i].From = from
	s.ranges[i].To = to
	s.ranges[i].Title = title
	return s.ranges[i]
}

// Delete removes every range whose endpoints equal id and reports whether
// anything was removed. Deleting a missing identity is a no-op.
func (s *Set) Delete(id model.Identity) bool {
	return s.removeIf(func(r model.BusyRange) bool { return r.Identity() == id }) > 0
}

// DeleteByID removes the range with the given ID.
func (s *Set) DeleteByID(rangeID string) bool {
	return s.removeIf(func(r model.BusyRange) bool { return r.ID == rangeID }) > 0
}

// ReplaceSource drops every range tagged with source and appends the given
// ranges in their place, tagged with source. Ranges from other sources are
// left where they are. Nothing changes if any replacement is invalid.
func (s *Set) ReplaceSource(source string, ranges []model.BusyRange) (int, error) {
	if source == model.SourceManual {
		return 0, errors.New("replace source: manual ranges cannot be replaced wholesale")
	}
	for _, r := range ranges {
		if err := validate(r.From, r.To); err != nil {
			return 0, fmt.Errorf("source %s: %w", source, err)
		}
	}
	s.removeIf(func(r model.BusyRange) bool { return r.Source == source })
	for _, r := range ranges {
		if _, err := s.add(r.From, r.To, r.Title, source); err != nil {
			return 0, err
		}
	}
	return len(ranges), nil
}

func (s *Set) removeIf(match func(model.BusyRange) bool) int {
	kept := s.ranges[:0]
	removed := 0
	for _, r := range s.ranges {
		if match(r) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	// Zero the dropped tail of the backing array.
	for i := len(kept); i < len(s.ranges); i++ {
		s.ranges[i] = model.BusyRange{}
	}
	s.ranges = kept
	return removed
}

func (s *Set) indexOf(rangeID string) int {
	for i := range s.ranges {
		if s.ranges[i].ID == rangeID {
			return i
		}
	}
	return -1
}

// Get returns the range with the given ID.
func (s *Set) Get(rangeID string) (model.BusyRange, bool) {
	i := s.indexOf(rangeID)
	if i < 0 {
		return model.BusyRange{}, false
	}
	return s.ranges[i], true
}

// Ranges returns a copy of the ranges in insertion order.
func (s *Set) Ranges() []model.BusyRange {
	return append([]model.BusyRange(nil), s.ranges...)
}

func (s *Set) Len() int { return len(s.ranges) }
