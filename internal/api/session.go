package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/nebulacms/nebula/internal/agent"
	"github.com/nebulacms/nebula/internal/log"
	"github.com/nebulacms/nebula/internal/registry"
)

// Titles derived from a session's first message are truncated to this many
// runes.
const firstMessageTitleLimit = 30

const (
	errMissingTitle    = "Title is required"
	errSessionNotFound = "Session not found"
)

// sessionHandler serves the session registry endpoints.
type sessionHandler struct {
	registry *registry.Registry
	manager  *agent.Manager
	logger   log.Logger
}

type createSessionRequest struct {
	Title        string `json:"title,omitempty"`
	SessionID    string `json:"sessionId,omitempty"`
	FirstMessage string `json:"firstMessage,omitempty"`
}

// list returns all sessions, most recently active first.
func (h *sessionHandler) list(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.registry.ListSessions(r.Context())
	if err != nil {
		h.logger.Error("failed to list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, errInternal, h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, sessions, h.logger)
}

// create registers a session. The body is optional; a missing or invalid
// body registers a session with a generated id and default title.
func (h *sessionHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	// Tolerate absent or malformed bodies.
	_ = json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req)

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	title := req.Title
	if title == "" && req.FirstMessage != "" {
		title = truncateRunes(req.FirstMessage, firstMessageTitleLimit)
	}

	if err := h.registry.AddSession(r.Context(), sessionID, title); err != nil {
		h.logger.Error("failed to register session", "error", err)
		writeError(w, http.StatusInternalServerError, errInternal, h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"sessionId": sessionID}, h.logger)
}

type renameSessionRequest struct {
	Title string `json:"title"`
}

// rename replaces a session's title.
func (h *sessionHandler) rename(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")

	var req renameSessionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil || req.Title == "" {
		writeError(w, http.StatusBadRequest, errMissingTitle, h.logger)
		return
	}

	renamed, err := h.registry.RenameSession(r.Context(), sessionID, req.Title)
	if err != nil {
		h.logger.Error("failed to rename session", "error", err)
		writeError(w, http.StatusInternalServerError, errInternal, h.logger)
		return
	}
	if !renamed {
		writeError(w, http.StatusNotFound, errSessionNotFound, h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]bool{"updated": true}, h.logger)
}

// delete removes a session's registry record, its actor, and its persisted
// conversation state.
func (h *sessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")

	deleted, err := h.registry.RemoveSession(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("failed to remove session", "error", err)
		writeError(w, http.StatusInternalServerError, errInternal, h.logger)
		return
	}
	if err := h.manager.Remove(r.Context(), sessionID); err != nil {
		h.logger.Error("failed to delete session state", "error", err)
		writeError(w, http.StatusInternalServerError, errInternal, h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]bool{"deleted": deleted}, h.logger)
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
