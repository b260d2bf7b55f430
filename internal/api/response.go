package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/nebulacms/nebula/internal/log"
)

// envelope is the uniform response shape for every JSON endpoint.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
// Buffer-first so headers are only sent after successful encoding; an
// encoding failure can still produce a proper 500.
func writeJSON(w http.ResponseWriter, status int, body any, logger log.Logger) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Client disconnects are common and expected.
		logger.Debug("failed to write response body", "error", err)
	}
}

func writeSuccess(w http.ResponseWriter, status int, data any, logger log.Logger) {
	writeJSON(w, status, envelope{Success: true, Data: data}, logger)
}

func writeError(w http.ResponseWriter, status int, message string, logger log.Logger) {
	writeJSON(w, status, envelope{Success: false, Error: message}, logger)
}
