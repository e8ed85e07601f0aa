package model

import (
	"fmt"
	"time"
)

// DateLayout is the wire format of a Date in JSON, YAML and query strings.
const DateLayout = "2006-01-02"

// Date is a calendar day with no time-of-day component.
//
// The value is the number of days since 1970-01-01, so equality and ordering
// are by calendar day and a Date can be used directly as a map key.
type Date int32

// NewDate returns the Date for the given calendar day. Out-of-range values are
// normalized the same way time.Date does (e.g. April 31 becomes May 1).
func NewDate(year int, month time.Month, day int) Date {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return Date(t.Unix() / secondsPerDay)
}

const secondsPerDay = 24 * 60 * 60

// DateOf returns the calendar day of t as observed in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate parses a "2006-01-02" string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return 0, fmt.Errorf("model: invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// MustDate is ParseDate for literals; it panics on malformed input.
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) AddDays(n int) Date { return d + Date(n) }

// Sub returns d - other in days.
func (d Date) Sub(other Date) int { return int(d - other) }

func (d Date) Before(other Date) bool { return d < other }
func (d Date) After(other Date) bool { return d > other }

// Time returns midnight of d in loc. A nil loc means UTC.
func (d Date) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	u := time.Unix(int64(d)*secondsPerDay, 0).UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, loc)
}

// Weekday returns the day of the week of d.
func (d Date) Weekday() time.Weekday {
	return d.Time(nil).Weekday()
}

func (d Date) String() string {
	return d.Time(nil).Format(DateLayout)
}

// MarshalText implements encoding.TextMarshaler, which covers both JSON and
// YAML encoding.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
