package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nebulacms/nebula/internal/cms"
	"github.com/nebulacms/nebula/internal/log"
)

const (
	errMissingNameSlug     = "Name and slug are required"
	errMissingCollectionID = "Collection ID is required"
	errCollectionNotFound  = "Collection not found"
)

// cmsHandler serves the content schema and entry endpoints plus the public
// content projection.
type cmsHandler struct {
	repo   *cms.Repository
	logger log.Logger
}

type createCollectionRequest struct {
	Name   string      `json:"name"`
	Slug   string      `json:"slug"`
	Fields []cms.Field `json:"fields"`
}

type createEntryRequest struct {
	ID           string               `json:"id,omitempty"`
	CollectionID string               `json:"collectionId"`
	Data         map[string]cms.Value `json:"data"`
	Status       cms.Status           `json:"status"`
}

// listCollections returns every collection schema.
func (h *cmsHandler) listCollections(w http.ResponseWriter, r *http.Request) {
	collections, err := h.repo.Collections(r.Context())
	if err != nil {
		h.logger.Error("failed to list collections", "error", err)
		writeError(w, http.StatusInternalServerError, errInternal, h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, collections, h.logger)
}

// createCollection creates a schema, stamping id and createdAt. Slug
// uniqueness is the caller's responsibility; duplicates are stored as-is
// and public reads resolve to the first match.
func (h *cmsHandler) createCollection(w http.ResponseWriter, r *http.Request) {
	var req createCollectionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidBody, h.logger)
		return
	}
	if req.Name == "" || req.Slug == "" {
		writeError(w, http.StatusBadRequest, errMissingNameSlug, h.logger)
		return
	}

	collection := cms.Collection{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Slug:      req.Slug,
		Fields:    req.Fields,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := h.repo.CreateCollection(r.Context(), collection); err != nil {
		h.logger.Error("failed to create collection", "error", err)
		writeError(w, http.StatusInternalServerError, errInternal, h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, collection, h.logger)
}

// listEntries returns all entries for a collection id; an unknown id
// yields an empty list.
func (h *cmsHandler) listEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.repo.Entries(r.Context(), r.PathValue("collectionId"))
	if err != nil {
		h.logger.Error("failed to list entries", "error", err)
		writeError(w, http.StatusInternalServerError, errInternal, h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, entries, h.logger)
}

// createEntry upserts an entry keyed by id, stamping a fresh id when
// absent and always stamping updatedAt.
func (h *cmsHandler) createEntry(w http.ResponseWriter, r *http.Request) {
	var req createEntryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidBody, h.logger)
		return
	}
	if req.CollectionID == "" {
		writeError(w, http.StatusBadRequest, errMissingCollectionID, h.logger)
		return
	}

	entry := cms.Entry{
		ID:           req.ID,
		CollectionID: req.CollectionID,
		Data:         req.Data,
		Status:       req.Status,
		UpdatedAt:    time.Now().UnixMilli(),
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if err := h.repo.SaveEntry(r.Context(), entry); err != nil {
		h.logger.Error("failed to save entry", "error", err)
		writeError(w, http.StatusInternalServerError, errInternal, h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, entry, h.logger)
}

// publicContent serves the published entries of a collection resolved by
// slug, flattened for external consumption.
func (h *cmsHandler) publicContent(w http.ResponseWriter, r *http.Request) {
	entries, err := h.repo.PublishedBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		if errors.Is(err, cms.ErrCollectionNotFound) {
			writeError(w, http.StatusNotFound, errCollectionNotFound, h.logger)
			return
		}
		h.logger.Error("failed to resolve public content", "error", err)
		writeError(w, http.StatusInternalServerError, errInternal, h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, entries, h.logger)
}
