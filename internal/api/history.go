package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-charger/internal/history"
)

// handleBayHistory returns recorded transitions for one bay.
// Query: limit, since (RFC3339).
func (s *Server) handleBayHistory(w http.ResponseWriter, r *http.Request) {
	if s.bayHistory == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "history is not enabled")
		return
	}
	id, ok := s.bayParam(w, r)
	if !ok {
		return
	}

	limit, since, ok := parseHistoryQuery(w, r)
	if !ok {
		return
	}

	entries, err := s.bayHistory.List(r.Context(), history.BayFilter{Bay: id, Since: since, Limit: limit})
	if err != nil {
		s.logger.Error("listing bay history", "bay", id, "error", err)
		writeInternalError(w, "failed to read bay history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bay":     id,
		"entries": entries,
		"count":   len(entries),
	})
}

// handleCommandHistory returns a page of the command audit.
// Query: limit, offset, since, command, source, failed.
func (s *Server) handleCommandHistory(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "history is not enabled")
		return
	}

	limit, since, ok := parseHistoryQuery(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	filter := history.CommandFilter{
		Command: q.Get("command"),
		Source:  q.Get("source"),
		Since:   since,
		Limit:   limit,
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			writeBadRequest(w, "offset must be a non-negative integer")
			return
		}
		filter.Offset = offset
	}
	if raw := q.Get("failed"); raw != "" {
		failed, err := strconv.ParseBool(raw)
		if err != nil {
			writeBadRequest(w, "failed must be a boolean")
			return
		}
		filter.FailedOnly = failed
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing command audit", "error", err)
		writeInternalError(w, "failed to read command history")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func parseHistoryQuery(w http.ResponseWriter, r *http.Request) (limit int, since time.Time, ok bool) {
	q := r.URL.Query()
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return 0, time.Time{}, false
		}
		limit = n
	}
	if raw := q.Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeBadRequest(w, "since must be an RFC3339 timestamp")
			return 0, time.Time{}, false
		}
		since = t
	}
	return limit, since, true
}
