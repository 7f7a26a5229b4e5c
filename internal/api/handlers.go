package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/starford/notionvault/internal/importer"
	"github.com/starford/notionvault/internal/index"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	defaultRunLimit  = 20
)

// Handler holds API route handlers.
type Handler struct {
	svc    Importer
	ctx    context.Context
	logger *slog.Logger
}

// NewHandler creates a new Handler. Background imports run under ctx.
func NewHandler(ctx context.Context, svc Importer, logger *slog.Logger) *Handler {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, ctx: ctx, logger: logger}
}

func queryInt(r *http.Request, key string, def, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n <= 0 {
		return def
	}
	if max > 0 && n > max {
		return max
	}
	return n
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// SearchNotion handles GET /api/notion/search.
//
//	@Summary		List pages and databases shared with the integration
//	@Tags			notion
//	@Produce		json
//	@Param			q	query		string	false	"Title filter"
//	@Success		200	{object}	notion.SearchResult
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notion/search [get]
func (h *Handler) SearchNotion(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, h.logger, "notion search", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// StartImport handles POST /api/imports. The run continues after the
// response; progress is published on /api/events.
//
//	@Summary		Start an import run
//	@Tags			imports
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ImportRequest	true	"Pages and databases to import"
//	@Success		202		{object}	ImportAccepted
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/imports [post]
func (h *Handler) StartImport(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	runID := uuid.NewString()
	sel := req.selection(runID)
	go h.background("import", runID, func(ctx context.Context) (*importer.Report, error) {
		return h.svc.Import(ctx, sel)
	})
	writeJSON(w, http.StatusAccepted, ImportAccepted{RunID: runID, Status: "accepted"})
}

// StartRefresh handles POST /api/imports/refresh.
//
//	@Summary		Re-import every ledger page changed in Notion
//	@Tags			imports
//	@Produce		json
//	@Success		202	{object}	ImportAccepted
//	@Security		BearerAuth
//	@Router			/imports/refresh [post]
func (h *Handler) StartRefresh(w http.ResponseWriter, _ *http.Request) {
	go h.background("refresh", "", h.svc.Refresh)
	writeJSON(w, http.StatusAccepted, ImportAccepted{Status: "accepted"})
}

func (h *Handler) background(op, runID string, fn func(ctx context.Context) (*importer.Report, error)) {
	rep, err := fn(h.ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			h.logger.Info(op+" cancelled", slog.String("run_id", runID))
			return
		}
		h.logger.Error(op+" failed", slog.String("run_id", runID), slog.String("error", err.Error()))
		return
	}
	h.logger.Info(op+" done",
		slog.String("run_id", rep.RunID),
		slog.Int("imported", rep.Imported),
		slog.Int("skipped", rep.Skipped),
		slog.Int("failed", rep.Failed))
}

// ListImports handles GET /api/imports.
//
//	@Summary		List imported pages, newest first
//	@Tags			imports
//	@Produce		json
//	@Param			limit	query		int	false	"Page size"
//	@Param			offset	query		int	false	"Page offset"
//	@Success		200		{object}	ImportListResponse
//	@Security		BearerAuth
//	@Router			/imports [get]
func (h *Handler) ListImports(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultListLimit, maxListLimit)
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	rows, total, err := h.svc.ListImports(limit, offset)
	if err != nil {
		writeError(w, h.logger, "list imports", err)
		return
	}
	if rows == nil {
		rows = []index.PageRow{}
	}
	writeJSON(w, http.StatusOK, ImportListResponse{Imports: rows, Total: total})
}

// SearchImports handles GET /api/imports/search.
//
//	@Summary		Search imported pages by title or path
//	@Tags			imports
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	ImportSearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/imports/search [get]
func (h *Handler) SearchImports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	rows, err := h.svc.SearchImports(q, queryInt(r, "limit", defaultListLimit, maxListLimit))
	if err != nil {
		writeError(w, h.logger, "search imports", err)
		return
	}
	if rows == nil {
		rows = []index.PageRow{}
	}
	writeJSON(w, http.StatusOK, ImportSearchResponse{Results: rows})
}

// GetImport handles GET /api/imports/{id}.
//
//	@Summary		Get one imported page with its attachments
//	@Tags			imports
//	@Produce		json
//	@Param			id	path		string	true	"Notion page id"
//	@Success		200	{object}	importer.ImportDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/imports/{id} [get]
func (h *Handler) GetImport(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.GetImport(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, "get import", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ListRuns handles GET /api/runs.
//
//	@Summary		List recent import runs
//	@Tags			imports
//	@Produce		json
//	@Param			limit	query		int	false	"Max runs"
//	@Success		200		{object}	RunListResponse
//	@Security		BearerAuth
//	@Router			/runs [get]
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.svc.Runs(queryInt(r, "limit", defaultRunLimit, maxListLimit))
	if err != nil {
		writeError(w, h.logger, "list runs", err)
		return
	}
	if runs == nil {
		runs = []index.RunRow{}
	}
	writeJSON(w, http.StatusOK, RunListResponse{Runs: runs})
}

// Preview handles POST /api/preview.
//
//	@Summary		Render a page without writing it
//	@Tags			notion
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PreviewRequest	true	"Page to render"
//	@Success		200		{object}	importer.Preview
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/preview [post]
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	pv, err := h.svc.Preview(r.Context(), req.PageID)
	if err != nil {
		writeError(w, h.logger, "preview", err)
		return
	}
	writeJSON(w, http.StatusOK, pv)
}
