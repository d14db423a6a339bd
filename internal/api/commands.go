package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-charger/internal/bridges/sbrc"
)

// commandSpec binds a route to a bridge command and the body fields it
// accepts.
type commandSpec struct {
	command string
	fields  []string
}

var (
	commandStorageMode = commandSpec{command: sbrc.CmdSetStorageMode, fields: []string{"mode"}}
	commandFlash       = commandSpec{command: sbrc.CmdFlash}
	commandDeviceID    = commandSpec{command: sbrc.CmdSetDeviceID, fields: []string{"name"}}
	commandRefresh     = commandSpec{command: sbrc.CmdRefresh}
)

// CommandResponse is returned for an accepted command.
type CommandResponse struct {
	CommandID string         `json:"command_id"`
	Status    sbrc.AckStatus `json:"status"`
	Wire      string         `json:"wire"`
}

// handleCommand returns a handler executing spec against the charger.
func (s *Server) handleCommand(spec commandSpec) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := decodeCommandBody(r.Body, spec.fields)
		if err != nil {
			if isBodyTooLarge(err) {
				writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
				return
			}
			writeBadRequest(w, err.Error())
			return
		}

		cmd := sbrc.CommandMessage{
			ID:         uuid.NewString(),
			Timestamp:  time.Now().UTC(),
			Command:    spec.command,
			Parameters: params,
			Source:     "api",
		}
		if claims := claimsFromContext(r.Context()); claims != nil {
			cmd.UserID = claims.Subject
		}

		wire, err := s.bridge.Execute(r.Context(), cmd)
		if err != nil {
			writeBridgeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, CommandResponse{
			CommandID: cmd.ID,
			Status:    sbrc.AckAccepted,
			Wire:      wire,
		})
	}
}

// decodeCommandBody reads an optional JSON object and keeps only the given
// fields. An empty body is allowed for commands without parameters.
func decodeCommandBody(body io.Reader, fields []string) (map[string]any, error) {
	if len(fields) == 0 {
		return nil, nil
	}

	var raw map[string]any
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("request body is required")
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, err
		}
		return nil, errors.New("invalid JSON body")
	}

	params := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := raw[f]; ok {
			params[f] = v
		}
	}
	return params, nil
}
