package model

import (
	"encoding/json"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDateArithmetic(t *testing.T) {
	tests := []struct {
		name string
		from string
		n    int
		want string
	}{
		{"next day", "2025-04-25", 1, "2025-04-26"},
		{"month end", "2025-04-30", 1, "2025-05-01"},
		{"leap day", "2024-02-28", 1, "2024-02-29"},
		{"non leap year", "2025-02-28", 1, "2025-03-01"},
		{"year end", "2025-12-31", 1, "2026-01-01"},
		{"backwards", "2025-01-01", -1, "2024-12-31"},
		{"before epoch", "1970-01-01", -1, "1969-12-31"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := MustDate(tc.from).AddDays(tc.n)
			if got.String() != tc.want {
				t.Errorf("%s + %d = %s, want %s", tc.from, tc.n, got, tc.want)
			}
			if back := got.Sub(MustDate(tc.from)); back != tc.n {
				t.Errorf("Sub = %d, want %d", back, tc.n)
			}
		})
	}
}

func TestDateOfIgnoresTimeOfDay(t *testing.T) {
	seoul := time.FixedZone("KST", 9*60*60)
	morning := time.Date(2025, time.May, 8, 0, 30, 0, 0, seoul)
	evening := time.Date(2025, time.May, 8, 23, 59, 0, 0, seoul)

	if DateOf(morning) != DateOf(evening) {
		t.Errorf("DateOf(%v) != DateOf(%v)", morning, evening)
	}
	if got := DateOf(morning); got != NewDate(2025, time.May, 8) {
		t.Errorf("DateOf = %s, want 2025-05-08", got)
	}
	// The same instant falls on the previous day in UTC.
	if got := DateOf(morning.UTC()); got != NewDate(2025, time.May, 7) {
		t.Errorf("DateOf(UTC) = %s, want 2025-05-07", got)
	}
}

func TestDateTimeRoundTrip(t *testing.T) {
	loc := time.FixedZone("X", -5*60*60)
	day := NewDate(2025, time.June, 10)
	tm := day.Time(loc)
	if tm.Hour() != 0 || tm.Location() != loc {
		t.Errorf("Time = %v, want midnight in %v", tm, loc)
	}
	if DateOf(tm) != day {
		t.Errorf("DateOf(Time) = %s, want %s", DateOf(tm), day)
	}
}

func TestParseDateRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "2025-13-01", "25-01-01", "2025/01/01"} {
		if _, err := ParseDate(s); err == nil {
			t.Errorf("ParseDate(%q) succeeded", s)
		}
	}
}

func TestDateEncoding(t *testing.T) {
	r := BusyRange{ID: "a", Title: "09", From: MustDate("2025-06-01"), To: MustDate("2025-06-09")}

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	want := `{"id":"a","title":"09","from":"2025-06-01","to":"2025-06-09"}`
	if string(b) != want {
		t.Errorf("json = %s, want %s", b, want)
	}

	var y struct {
		From Date `yaml:"from"`
	}
	if err := yaml.Unmarshal([]byte("from: 2025-04-25\n"), &y); err != nil {
		t.Fatalf("yaml.Unmarshal: %v", err)
	}
	if y.From != NewDate(2025, time.April, 25) {
		t.Errorf("yaml from = %s", y.From)
	}
}
