package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-charger/internal/bridges/sbrc"
)

// moduleSlots is how many module positions a non-modular charger reports.
const moduleSlots = 4

// handleGetCharger returns charger-level state and configuration.
func (s *Server) handleGetCharger(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"charger":      s.bridge.Store().Charger(),
		"model":        s.bridge.Model(),
		"module_count": s.bridge.ModuleCount(),
		"active_bays":  s.bridge.ActiveBays(),
		"connected":    s.bridge.Stats().Connected,
	})
}

// handleListBays returns every active bay, in order.
func (s *Server) handleListBays(w http.ResponseWriter, _ *http.Request) {
	store := s.bridge.Store()
	bays := make([]sbrc.Bay, 0, s.bridge.ActiveBays())
	for id := 1; id <= s.bridge.ActiveBays(); id++ {
		bays = append(bays, store.Bay(id))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bays":  bays,
		"count": len(bays),
	})
}

// handleGetBay returns one active bay.
func (s *Server) handleGetBay(w http.ResponseWriter, r *http.Request) {
	id, ok := s.bayParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.bridge.Store().Bay(id))
}

// handleListModules returns module slots. Modular families have no module
// slots of their own.
func (s *Server) handleListModules(w http.ResponseWriter, _ *http.Request) {
	modules := []sbrc.Module{}
	if !s.bridge.Model().Modular {
		store := s.bridge.Store()
		for id := 1; id <= moduleSlots; id++ {
			modules = append(modules, store.Module(id))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"modules": modules})
}

// handleListModels returns the supported model table.
func (s *Server) handleListModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"models":        sbrc.ModelChoices(),
		"module_counts": sbrc.ModuleCountChoices(),
		"selected":      s.bridge.Model().ID,
	})
}

// handleVariables returns variable definitions and current values.
func (s *Server) handleVariables(w http.ResponseWriter, _ *http.Request) {
	resp := s.bridge.HandleRequest(sbrc.RequestMessage{Action: sbrc.ActionVariables})
	writeJSON(w, http.StatusOK, resp.Data)
}

// handleListFeedbacks returns the feedback definitions.
func (s *Server) handleListFeedbacks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"feedbacks": s.bridge.Feedbacks()})
}

// handleEvaluateFeedback evaluates a feedback with options from the query
// string: bay, state, error, charge and greater (default true).
func (s *Server) handleEvaluateFeedback(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	q := r.URL.Query()

	opts := sbrc.FeedbackOptions{
		State:         sbrc.BayState(q.Get("state")),
		Error:         q.Get("error"),
		Charge:        q.Get("charge"),
		ChargeGreater: true,
	}
	if raw := q.Get("bay"); raw != "" {
		bay, err := strconv.Atoi(raw)
		if err != nil {
			writeBadRequest(w, "bay must be an integer")
			return
		}
		opts.Bay = bay
	}
	if raw := q.Get("greater"); raw != "" {
		greater, err := strconv.ParseBool(raw)
		if err != nil {
			writeBadRequest(w, "greater must be a boolean")
			return
		}
		opts.ChargeGreater = greater
	}

	value, err := s.bridge.EvaluateFeedback(name, opts)
	if err != nil {
		if errors.Is(err, sbrc.ErrUnknownFeedback) {
			writeNotFound(w, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"feedback": name,
		"value":    value,
	})
}

// bayParam parses and range-checks the {id} path parameter, writing the
// error response itself when invalid.
func (s *Server) bayParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "bay id must be an integer")
		return 0, false
	}
	if id < 1 || id > s.bridge.ActiveBays() {
		writeNotFound(w, fmt.Sprintf("bay %d not found; model has %d bays", id, s.bridge.ActiveBays()))
		return 0, false
	}
	return id, true
}
