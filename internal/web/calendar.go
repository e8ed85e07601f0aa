package web

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	appLog "busycal/internal/log"
	"busycal/internal/model"
)

//go:embed templates/calendar.html.tmpl
var calendarTemplateText string

var calendarTemplate = template.Must(template.New("calendar").Parse(calendarTemplateText))

// dayCell is one square of the month grid.
type dayCell struct {
	Date    model.Date
	Day     int
	InMonth bool
	Today   bool
	Classes string
}

// rangeRow is one entry of the busy list beside the grid.
type rangeRow struct {
	ID     string
	Title  string
	Label  string
	Source string
}

type calendarPage struct {
	Month    string
	Prev     string
	Next     string
	Weekdays []string
	Weeks    [][]dayCell
	Ranges   []rangeRow
	Busy     int
}

const monthLayout = "2006-01"

// monthGrid lays out the weeks that contain month, starting on weekStart.
// Leading and trailing days from neighbouring months are included so every
// row has seven cells.
func monthGrid(month time.Time, weekStart time.Weekday, today model.Date, cov model.Coverage) [][]dayCell {
	first := model.NewDate(month.Year(), month.Month(), 1)
	last := model.NewDate(month.Year(), month.Month()+1, 1).AddDays(-1)

	lead := (int(first.Weekday()) - int(weekStart) + 7) % 7
	cur := first.AddDays(-lead)

	var weeks [][]dayCell
	for !cur.After(last) {
		week := make([]dayCell, 0, 7)
		for i := 0; i < 7; i++ {
			t := cur.Time(nil)
			week = append(week, dayCell{
				Date:    cur,
				Day:     t.Day(),
				InMonth: t.Month() == month.Month(),
				Today:   cur == today,
				Classes: strings.Join(cov.Classes(cur), " "),
			})
			cur = cur.AddDays(1)
		}
		weeks = append(weeks, week)
	}
	return weeks
}

func weekdayHeaders(weekStart time.Weekday) []string {
	out := make([]string, 7)
	for i := range out {
		out[i] = time.Weekday((int(weekStart) + i) % 7).String()[:3]
	}
	return out
}

// rangeLabel renders "25 APR – 08 MAY".
func rangeLabel(r model.BusyRange) string {
	from := strings.ToUpper(r.From.Time(nil).Format("02 Jan"))
	to := strings.ToUpper(r.To.Time(nil).Format("02 Jan"))
	return from + " – " + to
}

func (s *Server) weekStart() time.Weekday {
	if s.cfg != nil && s.cfg.WeekStart == "sunday" {
		return time.Sunday
	}
	return time.Monday
}

// handleCalendar renders the month view: GET /calendar?month=2025-05.
// Without a month parameter the current month in the configured timezone is
// shown. The root element carries data-ready="true" for headless capture.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	loc := s.cfg.Location()
	now := s.now().In(loc)

	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	if raw := r.URL.Query().Get("month"); raw != "" {
		m, err := time.Parse(monthLayout, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("month must be YYYY-MM, got %q", raw))
			return
		}
		month = m
	}

	ranges, cov := s.planner.Snapshot()
	page := calendarPage{
		Month:    month.Format("January 2006"),
		Prev:     month.AddDate(0, -1, 0).Format(monthLayout),
		Next:     month.AddDate(0, 1, 0).Format(monthLayout),
		Weekdays: weekdayHeaders(s.weekStart()),
		Weeks:    monthGrid(month, s.weekStart(), model.DateOf(now), cov),
		Busy:     cov.Covered.Len(),
	}
	for _, rg := range ranges {
		page.Ranges = append(page.Ranges, rangeRow{
			ID:     rg.ID,
			Title:  rg.Title,
			Label:  rangeLabel(rg),
			Source: rg.Source,
		})
	}

	var buf bytes.Buffer
	if err := calendarTemplate.Execute(&buf, page); err != nil {
		appLog.Error("calendar render failed", err)
		writeError(w, http.StatusInternalServerError, "internal", "render failed")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handlePreview serves the last headless capture of /calendar from disk.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, s.cfg.Snapshot.Output)
}
