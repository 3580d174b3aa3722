// File path: internal/api/records_handler.go
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/nicodishanthj/vitaplan/internal/common"
	"github.com/nicodishanthj/vitaplan/internal/records"
)

var errRecordsUnavailable = errors.New("record store unavailable")

func queryLimit(r *http.Request, fallback int) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	if s.records == nil {
		writeError(w, http.StatusServiceUnavailable, errRecordsUnavailable)
		return
	}
	q := r.URL.Query()
	criteria := records.Criteria{
		State:     q.Get("state"),
		Residence: q.Get("residence"),
		Category:  q.Get("bmi_category"),
		Wealth:    q.Get("wealth"),
		Limit:     queryLimit(r, 20),
	}
	rows, err := s.records.ByCriteria(r.Context(), criteria)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if rows == nil {
		rows = []records.PatientRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": rows, "count": len(rows)})
}

func (s *Server) handleRecordStats(w http.ResponseWriter, r *http.Request) {
	if s.records == nil {
		writeError(w, http.StatusServiceUnavailable, errRecordsUnavailable)
		return
	}
	stats, err := s.records.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleRandomRecord returns a survey row and the intake form it prefills.
func (s *Server) handleRandomRecord(w http.ResponseWriter, r *http.Request) {
	if s.records == nil {
		writeError(w, http.StatusServiceUnavailable, errRecordsUnavailable)
		return
	}
	rec, err := s.records.Random(r.Context())
	if errors.Is(err, records.ErrNoRecords) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, sampleResponse{Record: rec, Intake: rec.Intake()})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.records == nil {
		writeError(w, http.StatusServiceUnavailable, errRecordsUnavailable)
		return
	}
	entries, err := s.records.RecentUsage(r.Context(), queryLimit(r, 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []records.UsageEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	entries := common.LogEntries()
	if limit := queryLimit(r, 0); limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}
