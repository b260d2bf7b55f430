package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nebulacms/nebula/internal/agent"
	"github.com/nebulacms/nebula/internal/log"
)

// User-facing error strings carried in response envelopes.
const (
	errInternal       = "Internal server error"
	errMissingMessage = "Message is required"
	errMissingModel   = "Model is required"
	errProcessing     = "Failed to process message"
	errInvalidBody    = "Invalid request body"
)

const maxBodyBytes = 1 << 20

// chatHandler serves the per-session conversation endpoints under
// /api/chat/{sessionId}/.
type chatHandler struct {
	manager *agent.Manager
	logger  log.Logger
}

type chatRequest struct {
	Message string `json:"message"`
	Model   string `json:"model,omitempty"`
	Stream  bool   `json:"stream,omitempty"`
}

type modelRequest struct {
	Model string `json:"model"`
}

// messages returns the full session state.
func (h *chatHandler) messages(w http.ResponseWriter, r *http.Request) {
	session := h.manager.Session(r.PathValue("sessionId"))

	state, err := session.State(r.Context())
	if err != nil {
		h.logger.Error("failed to load session state", "error", err)
		writeError(w, http.StatusInternalServerError, errInternal, h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, state, h.logger)
}

// send runs one conversation turn, buffered or streaming per the request.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidBody, h.logger)
		return
	}

	session := h.manager.Session(r.PathValue("sessionId"))

	if req.Stream {
		h.sendStreaming(w, r, session, req)
		return
	}

	state, err := session.SendMessage(r.Context(), req.Message, req.Model, nil)
	switch {
	case errors.Is(err, agent.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, errMissingMessage, h.logger)
	case err != nil:
		h.logger.Error("message processing failed", "error", err)
		writeError(w, http.StatusInternalServerError, errProcessing, h.logger)
	default:
		writeSuccess(w, http.StatusOK, state, h.logger)
	}
}

// sendStreaming forwards content fragments as a chunked plain-text body.
// Fragments already on the wire when a turn fails are not recalled; the
// persisted history stays clean either way.
func (h *chatHandler) sendStreaming(w http.ResponseWriter, r *http.Request, session *agent.Session, req chatRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errInternal, h.logger)
		return
	}

	var streamed bool
	startStream := func() {
		if streamed {
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		streamed = true
	}
	onChunk := func(fragment string) {
		startStream()
		if _, err := w.Write([]byte(fragment)); err != nil {
			h.logger.Debug("failed to write stream chunk", "error", err)
			return
		}
		flusher.Flush()
	}

	state, err := session.SendMessage(r.Context(), req.Message, req.Model, onChunk)
	if err != nil {
		if streamed {
			h.logger.Error("stream failed mid-flight", "error", err)
			return
		}
		if errors.Is(err, agent.ErrEmptyMessage) {
			writeError(w, http.StatusBadRequest, errMissingMessage, h.logger)
			return
		}
		h.logger.Error("message processing failed", "error", err)
		writeError(w, http.StatusInternalServerError, errProcessing, h.logger)
		return
	}

	// A tool-call turn's final text comes from the follow-up completion,
	// never from the stream, so it is written here in one piece even when
	// pre-tool content fragments already went out.
	n := len(state.Messages)
	if n == 0 {
		startStream()
		return
	}
	final := state.Messages[n-1]
	if !streamed || len(final.ToolCalls) > 0 {
		startStream()
		if _, err := w.Write([]byte(final.Content)); err != nil {
			h.logger.Debug("failed to write final chunk", "error", err)
			return
		}
		flusher.Flush()
	}
}

// clear empties the session's message history.
func (h *chatHandler) clear(w http.ResponseWriter, r *http.Request) {
	session := h.manager.Session(r.PathValue("sessionId"))

	state, err := session.Clear(r.Context())
	if err != nil {
		h.logger.Error("failed to clear session", "error", err)
		writeError(w, http.StatusInternalServerError, errInternal, h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, state, h.logger)
}

// setModel switches the session's model.
func (h *chatHandler) setModel(w http.ResponseWriter, r *http.Request) {
	var req modelRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidBody, h.logger)
		return
	}
	if req.Model == "" {
		writeError(w, http.StatusBadRequest, errMissingModel, h.logger)
		return
	}

	session := h.manager.Session(r.PathValue("sessionId"))
	state, err := session.SetModel(r.Context(), req.Model)
	if err != nil {
		h.logger.Error("failed to set model", "error", err)
		writeError(w, http.StatusInternalServerError, errInternal, h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, state, h.logger)
}
