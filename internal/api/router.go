package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Options wires a router.
type Options struct {
	// AuthEnabled requires Token on every route (see AuthMiddleware).
	AuthEnabled bool
	Token       string
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events http.Handler
	// Files serves downloaded attachments. Without it the asset route
	// answers 404.
	Files FileResolver
	// BaseContext bounds imports started in the background. It defaults to
	// context.Background.
	BaseContext context.Context
	Logger      *slog.Logger
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(svc Importer, opts Options) chi.Router {
	h := NewHandler(opts.BaseContext, svc, opts.Logger)
	ah := NewAttachmentHandler(svc, opts.Files)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(opts.AuthEnabled, opts.Token))

	r.Get("/notion/search", h.SearchNotion)

	r.Post("/imports", h.StartImport)
	r.Post("/imports/refresh", h.StartRefresh)
	r.Get("/imports", h.ListImports)
	r.Get("/imports/search", h.SearchImports)
	r.Get("/imports/{id}", h.GetImport)
	r.Get("/imports/{id}/assets/{node}", ah.ServeAsset)

	r.Get("/runs", h.ListRuns)
	r.Post("/preview", h.Preview)

	if opts.Events != nil {
		r.Get("/events", opts.Events.ServeHTTP)
	}

	return r
}
