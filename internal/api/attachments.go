package api

import (
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notionvault/internal/apperr"
	"github.com/starford/notionvault/internal/storage"
)

// FileResolver maps vault-relative paths to files on disk.
type FileResolver interface {
	Resolve(rel string) (string, error)
}

// AttachmentHandler serves attachments downloaded for imported pages.
type AttachmentHandler struct {
	svc   Importer
	files FileResolver
}

// NewAttachmentHandler creates a handler reading from files.
func NewAttachmentHandler(svc Importer, files FileResolver) *AttachmentHandler {
	return &AttachmentHandler{svc: svc, files: files}
}

// ServeAsset handles GET /api/imports/{id}/assets/{node}.
//
//	@Summary		Download an attachment of an imported page
//	@Tags			imports
//	@Produce		octet-stream
//	@Param			id		path	string	true	"Notion page id"
//	@Param			node	path	string	true	"Image block id"
//	@Success		200
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/imports/{id}/assets/{node} [get]
func (h *AttachmentHandler) ServeAsset(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.GetImport(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}

	node := chi.URLParam(r, "node")
	for _, a := range d.Assets {
		if a.NodeID != node {
			continue
		}
		if h.files == nil {
			writeJSON(w, http.StatusNotFound, errorBody("attachments not served"))
			return
		}
		abs, err := h.files.Resolve(a.Path)
		if errors.Is(err, storage.ErrOutsideVault) {
			writeJSON(w, http.StatusBadRequest, errorBody("path escapes vault"))
			return
		}
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
			return
		}
		if _, statErr := os.Stat(abs); os.IsNotExist(statErr) {
			writeJSON(w, http.StatusNotFound, errorBody("attachment missing from vault"))
			return
		}
		http.ServeFile(w, r, abs)
		return
	}
	writeJSON(w, http.StatusNotFound, errorBody("not found"))
}
