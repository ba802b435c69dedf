package api

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/staykeep/internal/apperr"
	"github.com/starford/staykeep/internal/blob"
	"github.com/starford/staykeep/internal/checksum"
)

const (
	photoPrefix      = "photos"
	unassignedPrefix = "unassigned"
)

// PhotoHandler accepts photo uploads for properties and damage reports.
type PhotoHandler struct {
	blobs       blob.Store
	assignments Assignments
}

// NewPhotoHandler creates a handler storing into blobs. Staff may only
// store and remove photos of their assigned properties.
func NewPhotoHandler(blobs blob.Store, assignments Assignments) *PhotoHandler {
	return &PhotoHandler{blobs: blobs, assignments: assignments}
}

// allowed checks that the caller may touch photos filed under prefix, which
// is a property id or "unassigned".
func (h *PhotoHandler) allowed(r *http.Request, prefix string) error {
	acc, err := access(r.Context(), h.assignments, caller(r))
	if err != nil {
		return err
	}
	if prefix == unassignedPrefix || acc.Allows(&prefix) {
		return nil
	}
	return fmt.Errorf("photos of %s: %w", prefix, apperr.ErrForbidden)
}

// Upload handles POST /api/photos (multipart/form-data, field "file",
// optional field "property_id").
//
//	@Summary		Upload a photo
//	@Tags			photos
//	@Accept			multipart/form-data
//	@Produce		json
//	@Success		201	{object}	PhotoResponse
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/photos [post]
func (h *PhotoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, blob.MaxObjectSize+(1<<20))

	if err := r.ParseMultipartForm(blob.MaxObjectSize); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, blob.MaxObjectSize+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}
	if len(data) == 0 || len(data) > blob.MaxObjectSize {
		writeJSON(w, http.StatusBadRequest, errorBody("file is empty or too large"))
		return
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		writeJSON(w, http.StatusBadRequest, errorBody("only images are accepted"))
		return
	}

	folder := unassignedPrefix
	if pid := strings.TrimSpace(r.FormValue("property_id")); pid != "" {
		if _, err := blob.CleanKey(pid); err != nil || strings.Contains(pid, "/") || pid == unassignedPrefix {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid property_id"))
			return
		}
		folder = pid
	}
	if err := h.allowed(r, folder); err != nil {
		writeError(w, "upload photo", err)
		return
	}
	key := checksum.ObjectKey(photoPrefix+"/"+folder, data, header.Filename)

	url, err := h.blobs.Upload(r.Context(), key, bytes.NewReader(data), contentType)
	if err != nil {
		writeError(w, "upload photo", err, slog.String("key", key))
		return
	}
	writeJSON(w, http.StatusCreated, PhotoResponse{Key: key, URL: url, Size: len(data)})
}

// Delete handles DELETE /api/photos/*.
func (h *PhotoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	key, err := blob.CleanKey(chi.URLParam(r, "*"))
	if err != nil || !strings.HasPrefix(key, photoPrefix+"/") {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid photo key"))
		return
	}
	folder, _, _ := strings.Cut(strings.TrimPrefix(key, photoPrefix+"/"), "/")
	if err := h.allowed(r, folder); err != nil {
		writeError(w, "delete photo", err, slog.String("key", key))
		return
	}
	if err := h.blobs.Delete(r.Context(), key); err != nil {
		writeError(w, "delete photo", err, slog.String("key", key))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
