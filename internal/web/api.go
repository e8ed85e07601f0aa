package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"busycal/internal/busy"
	"busycal/internal/ics"
	appLog "busycal/internal/log"
	"busycal/internal/model"
)

// rangeRequest is the body of add and edit calls. Pointers distinguish a
// missing endpoint from a zero date.
type rangeRequest struct {
	Identity *model.Identity `json:"identity,omitempty"`
	From     *model.Date     `json:"from"`
	To       *model.Date     `json:"to"`
	Title    string          `json:"title"`
}

type rangesResponse struct {
	Ranges []model.BusyRange `json:"ranges"`
}

type coverageResponse struct {
	Covered []model.Date `json:"covered"`
	Start   []model.Date `json:"start"`
	End     []model.Date `json:"end"`
	Runs    []model.Run  `json:"runs"`
}

type deleteResponse struct {
	Removed bool `json:"removed"`
}

func (s *Server) handleListRanges(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rangesResponse{Ranges: s.planner.Ranges()})
}

func (s *Server) handleAddRange(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRange(w, r)
	if !ok {
		return
	}
	created, err := s.planner.Add(*req.From, *req.To, req.Title)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleEditRange(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRange(w, r)
	if !ok {
		return
	}
	if req.Identity == nil {
		writeError(w, http.StatusBadRequest, "bad_request", "identity is required")
		return
	}
	updated, err := s.planner.Edit(*req.Identity, *req.From, *req.To, req.Title)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleEditRangeByID(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRange(w, r)
	if !ok {
		return
	}
	updated, err := s.planner.EditByID(r.PathValue("id"), *req.From, *req.To, req.Title)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteRange deletes by value: DELETE /api/ranges?from=2025-06-10&to=2025-06-10.
// A missing identity is not an error; the response reports removed=false.
func (s *Server) handleDeleteRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := model.ParseDate(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "from: "+err.Error())
		return
	}
	to, err := model.ParseDate(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "to: "+err.Error())
		return
	}
	removed := s.planner.Delete(model.Identity{From: from, To: to})
	writeJSON(w, http.StatusOK, deleteResponse{Removed: removed})
}

func (s *Server) handleDeleteRangeByID(w http.ResponseWriter, r *http.Request) {
	removed := s.planner.DeleteByID(r.PathValue("id"))
	writeJSON(w, http.StatusOK, deleteResponse{Removed: removed})
}

func (s *Server) handleCoverage(w http.ResponseWriter, _ *http.Request) {
	c := s.planner.Coverage()
	writeJSON(w, http.StatusOK, coverageResponse{
		Covered: c.Covered.Sorted(),
		Start:   c.Start.Sorted(),
		End:     c.End.Sorted(),
		Runs:    c.Runs(),
	})
}

// handleRefresh re-imports feeds now. Partial failures are reported in the
// body; the refresh itself still succeeded for the other sources.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	report, err := s.planner.SyncFeeds(r.Context())
	if err != nil {
		appLog.Error("manual refresh had failures", err)
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="busy.ics"`)
	if err := ics.WriteExport(w, s.planner.Ranges(), ics.ExportOptions{Now: s.now()}); err != nil {
		appLog.Error("ics export write failed", err)
	}
}

// decodeRange reads an add/edit body. Reversed endpoints are left to the
// planner so they surface as invalid_range; spans longer than max_range_days
// are rejected here.
func (s *Server) decodeRange(w http.ResponseWriter, r *http.Request) (rangeRequest, bool) {
	var req rangeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid payload: "+err.Error())
		return req, false
	}
	if req.From == nil || req.To == nil {
		writeError(w, http.StatusBadRequest, "bad_request", "from and to are required")
		return req, false
	}
	if limit := s.maxRangeDays(); !req.From.After(*req.To) && req.To.Sub(*req.From)+1 > limit {
		writeError(w, http.StatusBadRequest, "range_too_long",
			fmt.Sprintf("range spans %d days, limit is %d", req.To.Sub(*req.From)+1, limit))
		return req, false
	}
	return req, true
}

func (s *Server) maxRangeDays() int {
	if s.cfg == nil || s.cfg.MaxRangeDays <= 0 {
		return 366
	}
	return s.cfg.MaxRangeDays
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, busy.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, "invalid_range", err.Error())
	case errors.Is(err, busy.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		appLog.Error("unexpected planner error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
