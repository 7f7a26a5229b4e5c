// Package importer copies Notion pages and databases into the vault and
// keeps the import ledger current.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/notionvault/internal/apperr"
	"github.com/starford/notionvault/internal/index"
	"github.com/starford/notionvault/internal/materialize"
	"github.com/starford/notionvault/internal/metrics"
	"github.com/starford/notionvault/internal/models"
	"github.com/starford/notionvault/internal/notion"
	"github.com/starford/notionvault/internal/parser"
	"github.com/starford/notionvault/internal/render"
	"github.com/starford/notionvault/internal/sse"
	"github.com/starford/notionvault/internal/storage"
)

// Source is the remote workspace pages are imported from.
type Source interface {
	materialize.Source
	Page(ctx context.Context, id string) (models.PageMeta, error)
	Database(ctx context.Context, id string) (models.DatabaseMeta, error)
	QueryDatabase(ctx context.Context, id string) ([]models.PageMeta, error)
	Search(ctx context.Context, query string) (notion.SearchResult, error)
}

// Publisher receives import events.
type Publisher interface {
	Publish(event sse.Event)
	PublishProgress(p sse.Progress)
}

// Config holds the import settings.
type Config struct {
	Folder          string
	AttachmentsDir  string
	IncludeMetadata bool
	DownloadAssets  bool
	ResolveLinks    bool
}

// DefaultConfig returns the settings used when none are given.
func DefaultConfig() Config {
	return Config{
		Folder:          "Notion Import",
		AttachmentsDir:  "attachments",
		IncludeMetadata: true,
		DownloadAssets:  true,
		ResolveLinks:    true,
	}
}

// Item statuses.
const (
	StatusImported = "imported"
	StatusSkipped  = "skipped"
	StatusFailed   = "failed"
)

// ErrEmptySelection is returned when an import names no page or database.
var ErrEmptySelection = errors.New("importer: nothing selected")

// Selection names what one run imports.
type Selection struct {
	RunID       string   `json:"run_id,omitempty"`
	PageIDs     []string `json:"page_ids,omitempty"`
	DatabaseIDs []string `json:"database_ids,omitempty"`
	Folder      string   `json:"folder,omitempty"`
	Force       bool     `json:"force,omitempty"`
}

// ItemResult is the outcome for one page, or for a database that could not
// be listed.
type ItemResult struct {
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	Title  string `json:"title,omitempty"`
	Path   string `json:"path,omitempty"`
	Status string `json:"status"`
	Assets int    `json:"assets,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Report summarises a run.
type Report struct {
	RunID      string       `json:"run_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Imported   int          `json:"imported"`
	Skipped    int          `json:"skipped"`
	Failed     int          `json:"failed"`
	Relinked   int          `json:"relinked,omitempty"`
	Items      []ItemResult `json:"items"`
}

// Preview is a rendered page that was not written.
type Preview struct {
	Page     models.PageMeta         `json:"page"`
	Path     string                  `json:"path"`
	Markdown string                  `json:"markdown"`
	Assets   []models.AssetReference `json:"assets"`
}

// ImportDetail is a ledger row with its attachments.
type ImportDetail struct {
	index.PageRow
	Assets []index.AssetRow `json:"assets"`
}

// Option configures a Service.
type Option func(*Service)

// WithConfig sets the import settings.
func WithConfig(cfg Config) Option { return func(s *Service) { s.cfg = cfg } }

// WithPublisher sets the sink for import events.
func WithPublisher(p Publisher) Option { return func(s *Service) { s.events = p } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithFetcher replaces the attachment downloader.
func WithFetcher(f AssetFetcher) Option { return func(s *Service) { s.fetcher = f } }

// WithMaterializer replaces the default tree materializer.
func WithMaterializer(m *materialize.Materializer) Option { return func(s *Service) { s.mat = m } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// Service runs imports. Runs are serialized; previews and ledger reads are
// not.
type Service struct {
	src     Source
	mat     *materialize.Materializer
	store   storage.Provider
	ledger  index.Ledger
	fetcher AssetFetcher
	events  Publisher
	logger  *slog.Logger
	cfg     Config
	now     func() time.Time

	runMu sync.Mutex
}

// New creates an import service.
func New(src Source, store storage.Provider, ledger index.Ledger, opts ...Option) *Service {
	s := &Service{
		src:    src,
		store:  store,
		ledger: ledger,
		cfg:    DefaultConfig(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.mat == nil {
		s.mat = materialize.New(src, materialize.Options{Logger: s.logger})
	}
	if s.fetcher == nil && s.cfg.DownloadAssets {
		s.fetcher = NewHTTPFetcher(store, FetcherOptions{Logger: s.logger})
	}
	if s.cfg.AttachmentsDir == "" {
		s.cfg.AttachmentsDir = "attachments"
	}
	return s
}

// Import runs one import. Failures of single items are recorded in the
// report and do not stop the run. The error is non-nil only for an empty
// selection or a cancelled context; the partial report is still returned
// in the latter case.
func (s *Service) Import(ctx context.Context, sel Selection) (*Report, error) {
	if len(sel.PageIDs)+len(sel.DatabaseIDs) == 0 {
		return nil, ErrEmptySelection
	}
	folder := s.folder(sel.Folder)

	return s.execute(ctx, sel.RunID, len(sel.PageIDs)+len(sel.DatabaseIDs), func(r *run) {
		for _, id := range sel.PageIDs {
			if ctx.Err() != nil {
				return
			}
			meta, err := s.src.Page(ctx, id)
			if err != nil {
				r.record(ItemResult{Kind: "page", ID: id, Status: StatusFailed, Error: err.Error()})
				continue
			}
			r.record(s.importMeta(ctx, meta, folder, sel.Force))
		}
		for _, id := range sel.DatabaseIDs {
			if ctx.Err() != nil {
				return
			}
			s.importDatabase(ctx, r, id, folder, sel.Force)
		}
	})
}

// ImportPage imports a single page.
func (s *Service) ImportPage(ctx context.Context, pageID, folder string, force bool) (*Report, error) {
	return s.Import(ctx, Selection{PageIDs: []string{pageID}, Folder: folder, Force: force})
}

// ImportDatabase imports every page of a database into a subfolder named
// after it.
func (s *Service) ImportDatabase(ctx context.Context, databaseID, folder string, force bool) (*Report, error) {
	return s.Import(ctx, Selection{DatabaseIDs: []string{databaseID}, Folder: folder, Force: force})
}

// Refresh re-imports every ledger page whose remote copy changed since it
// was imported. Each page stays in its current folder.
func (s *Service) Refresh(ctx context.Context) (*Report, error) {
	var rows []index.PageRow
	for offset := 0; ; {
		batch, total, err := s.ledger.ListPages(200, offset)
		if err != nil {
			return nil, fmt.Errorf("importer: refresh: %w", err)
		}
		rows = append(rows, batch...)
		offset += len(batch)
		if len(batch) == 0 || offset >= total {
			break
		}
	}

	return s.execute(ctx, "", len(rows), func(r *run) {
		for _, row := range rows {
			if ctx.Err() != nil {
				return
			}
			meta, err := s.src.Page(ctx, row.NotionID)
			if err != nil {
				r.record(ItemResult{Kind: "page", ID: row.NotionID, Title: row.Title, Path: row.Path, Status: StatusFailed, Error: err.Error()})
				continue
			}
			r.record(s.importMeta(ctx, meta, path.Dir(row.Path), false))
		}
	})
}

// Preview renders a page the way Import would write it, without touching
// the vault.
func (s *Service) Preview(ctx context.Context, pageID string) (*Preview, error) {
	meta, err := s.src.Page(ctx, pageID)
	if err != nil {
		return nil, fmt.Errorf("importer: preview: %w", err)
	}
	forest, err := s.mat.Children(ctx, meta.ID)
	if err != nil {
		return nil, fmt.Errorf("importer: preview: %w", err)
	}
	res := render.Render(forest)
	content, err := s.compose(meta, res.Text)
	if err != nil {
		return nil, err
	}
	existing, _ := s.ledger.GetPage(meta.ID)
	return &Preview{
		Page:     meta,
		Path:     s.targetPath(meta, s.folder(""), existing),
		Markdown: content,
		Assets:   res.Assets,
	}, nil
}

// Search lists the pages and databases the integration can see.
func (s *Service) Search(ctx context.Context, query string) (notion.SearchResult, error) {
	return s.src.Search(ctx, query)
}

// ListImports returns ledger rows, newest first, and the total count.
func (s *Service) ListImports(limit, offset int) ([]index.PageRow, int, error) {
	return s.ledger.ListPages(limit, offset)
}

// SearchImports matches imported pages by title or path.
func (s *Service) SearchImports(query string, limit int) ([]index.PageRow, error) {
	return s.ledger.SearchPages(query, limit)
}

// GetImport returns one ledger row with its assets.
func (s *Service) GetImport(notionID string) (*ImportDetail, error) {
	row, err := s.ledger.GetPage(notionID)
	if err != nil {
		return nil, err
	}
	assets, err := s.ledger.Assets(notionID)
	if err != nil {
		return nil, err
	}
	if assets == nil {
		assets = []index.AssetRow{}
	}
	return &ImportDetail{PageRow: *row, Assets: assets}, nil
}

// Runs returns recent run summaries.
func (s *Service) Runs(limit int) ([]index.RunRow, error) {
	return s.ledger.Runs(limit)
}

// run accumulates the report of one execution.
type run struct {
	s      *Service
	report Report
	done   int
	total  int
}

func (r *run) record(item ItemResult) {
	r.report.Items = append(r.report.Items, item)
	r.done++
	metrics.ImportItems.WithLabelValues(item.Status).Inc()

	switch item.Status {
	case StatusImported:
		r.report.Imported++
		r.s.publish(sse.ImportItem, item)
		r.s.logger.Info("importer: imported", slog.String("id", item.ID), slog.String("path", item.Path), slog.Int("assets", item.Assets))
	case StatusSkipped:
		r.report.Skipped++
		r.s.publish(sse.ImportItem, item)
		r.s.logger.Debug("importer: unchanged", slog.String("id", item.ID), slog.String("path", item.Path))
	default:
		r.report.Failed++
		r.s.publish(sse.ImportFailed, item)
		r.s.logger.Warn("importer: item failed", slog.String("kind", item.Kind), slog.String("id", item.ID), slog.String("error", item.Error))
	}

	if r.s.events != nil {
		r.s.events.PublishProgress(sse.Progress{RunID: r.report.RunID, Done: r.done, Total: r.total, Title: item.Title})
	}
}

func (s *Service) execute(ctx context.Context, runID string, total int, body func(r *run)) (*Report, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if runID == "" {
		runID = uuid.NewString()
	}
	r := &run{s: s, total: total, report: Report{RunID: runID, StartedAt: s.now().UTC(), Items: []ItemResult{}}}

	s.logger.Info("importer: run started", slog.String("run_id", runID), slog.Int("items", total))
	s.publish(sse.ImportStarted, map[string]any{"run_id": runID, "total": total})

	body(r)

	if s.cfg.ResolveLinks && ctx.Err() == nil {
		n, err := s.Relink(ctx)
		if err != nil {
			s.logger.Warn("importer: relink failed", slog.String("error", err.Error()))
		}
		r.report.Relinked = n
	}

	r.report.FinishedAt = s.now().UTC()
	metrics.ObserveRun(r.report.StartedAt, r.report.FinishedAt)
	row := index.RunRow{
		ID:         runID,
		StartedAt:  r.report.StartedAt,
		FinishedAt: r.report.FinishedAt,
		Imported:   r.report.Imported,
		Skipped:    r.report.Skipped,
		Failed:     r.report.Failed,
	}
	if err := ctx.Err(); err != nil {
		row.Error = err.Error()
	}
	if err := s.ledger.RecordRun(row); err != nil {
		s.logger.Warn("importer: record run failed", slog.String("run_id", runID), slog.String("error", err.Error()))
	}

	s.logger.Info("importer: run finished",
		slog.String("run_id", runID),
		slog.Int("imported", r.report.Imported),
		slog.Int("skipped", r.report.Skipped),
		slog.Int("failed", r.report.Failed))
	s.publish(sse.ImportFinished, row)

	return &r.report, ctx.Err()
}

func (s *Service) importDatabase(ctx context.Context, r *run, id, folder string, force bool) {
	db, err := s.src.Database(ctx, id)
	if err != nil {
		r.record(ItemResult{Kind: "database", ID: id, Status: StatusFailed, Error: err.Error()})
		return
	}
	pages, err := s.src.QueryDatabase(ctx, id)
	if err != nil {
		r.record(ItemResult{Kind: "database", ID: id, Title: db.Title, Status: StatusFailed, Error: err.Error()})
		return
	}

	// The database slot in the progress total becomes its pages.
	r.total += len(pages) - 1
	sub := path.Join(folder, SanitizeFilename(db.Title))
	for _, meta := range pages {
		if ctx.Err() != nil {
			return
		}
		r.record(s.importMeta(ctx, meta, sub, force))
	}
}

// importMeta imports one page into folder.
func (s *Service) importMeta(ctx context.Context, meta models.PageMeta, folder string, force bool) ItemResult {
	item := ItemResult{Kind: "page", ID: meta.ID, Title: meta.Title}
	fail := func(err error) ItemResult {
		item.Status = StatusFailed
		item.Error = err.Error()
		return item
	}

	existing, err := s.ledger.GetPage(meta.ID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return fail(err)
	}
	target := s.targetPath(meta, folder, existing)
	item.Path = target

	if !force && existing != nil && existing.Path == target &&
		existing.LastEdited != "" && existing.LastEdited == meta.LastEditedTime {
		if ok, _ := s.store.Exists(target); ok {
			item.Status = StatusSkipped
			return item
		}
	}

	forest, err := s.mat.Children(ctx, meta.ID)
	if err != nil {
		return fail(err)
	}
	res := render.Render(forest)
	content, err := s.compose(meta, res.Text)
	if err != nil {
		return fail(err)
	}

	if existing != nil && existing.Path != target {
		if ok, _ := s.store.Exists(existing.Path); ok {
			if err := s.store.Move(existing.Path, target); err != nil {
				s.logger.Warn("importer: move renamed note failed",
					slog.String("from", existing.Path), slog.String("to", target), slog.String("error", err.Error()))
			}
		}
	}
	if err := s.store.Write(target, []byte(content)); err != nil {
		return fail(err)
	}

	assets := s.downloadAssets(ctx, meta.ID, folder, res.Assets, force)

	row := index.PageRow{
		NotionID:   meta.ID,
		Path:       target,
		Title:      meta.Title,
		URL:        meta.URL,
		ParentKind: string(meta.ParentKind),
		ParentID:   meta.ParentID,
		LastEdited: meta.LastEditedTime,
		Checksum:   storage.Checksum([]byte(content)),
		AssetCount: len(assets),
		ImportedAt: s.now().UTC(),
	}
	if err := s.ledger.UpsertPage(row); err != nil {
		return fail(err)
	}
	if err := s.ledger.ReplaceAssets(meta.ID, assets); err != nil {
		return fail(err)
	}

	item.Status = StatusImported
	item.Assets = len(assets)
	return item
}

// targetPath picks the note path for a page. Another note already at the
// natural path gets to keep it; this page then takes a path with a short
// id suffix.
func (s *Service) targetPath(meta models.PageMeta, folder string, existing *index.PageRow) string {
	p := notePath(folder, meta.Title)
	if existing != nil && existing.Path == p {
		return p
	}
	owner, err := s.ledger.PageByPath(p)
	if err == nil && owner.NotionID != meta.ID {
		return disambiguatedPath(folder, meta.Title, meta.ID)
	}
	if err != nil {
		if ok, _ := s.store.Exists(p); ok {
			return disambiguatedPath(folder, meta.Title, meta.ID)
		}
	}
	return p
}

// compose assembles the note: optional frontmatter, then the body with
// known notion:// links resolved.
func (s *Service) compose(meta models.PageMeta, body string) (string, error) {
	if s.cfg.ResolveLinks {
		body, _ = parser.ReplaceNotionLinks(body, s.resolve)
	}
	if !s.cfg.IncludeMetadata {
		return body, nil
	}
	fm, err := render.Frontmatter(meta, s.now())
	if err != nil {
		return "", fmt.Errorf("importer: frontmatter: %w", err)
	}
	return fm + body, nil
}

func (s *Service) resolve(id string) (string, bool) {
	row, err := s.ledger.GetPage(id)
	if err != nil {
		return "", false
	}
	return linkTarget(row.Path), true
}

func (s *Service) downloadAssets(ctx context.Context, pageID, folder string, refs []models.AssetReference, force bool) []index.AssetRow {
	if !s.cfg.DownloadAssets || s.fetcher == nil || len(refs) == 0 {
		return nil
	}
	dir := path.Join(folder, s.cfg.AttachmentsDir)

	var rows []index.AssetRow
	for _, a := range refs {
		dst := path.Join(dir, a.Filename)
		row := index.AssetRow{NodeID: a.NodeID, PageID: pageID, Path: dst, SourceURL: a.SourceURL}

		if !force {
			if ok, _ := s.store.Exists(dst); ok {
				rows = append(rows, row)
				continue
			}
		}
		n, err := s.fetcher.Fetch(ctx, a.SourceURL, dst)
		if err != nil {
			metrics.AssetFailures.Inc()
			s.logger.Warn("importer: asset download failed",
				slog.String("page", pageID),
				slog.String("node", a.NodeID),
				slog.String("error", err.Error()))
			continue
		}
		metrics.AssetBytes.Add(float64(n))
		rows = append(rows, row)
	}
	return rows
}

// Relink rewrites notion:// links in imported notes that now point at pages
// present in the ledger. It returns the number of notes changed.
func (s *Service) Relink(ctx context.Context) (int, error) {
	paths, err := s.ledger.AllPaths()
	if err != nil {
		return 0, fmt.Errorf("importer: relink: %w", err)
	}

	changed := 0
	for p, id := range paths {
		if err := ctx.Err(); err != nil {
			return changed, err
		}
		data, err := s.store.Read(p)
		if err != nil {
			continue
		}
		if !strings.Contains(string(data), "[[notion://") {
			continue
		}
		out, n := parser.ReplaceNotionLinks(string(data), s.resolve)
		if n == 0 {
			continue
		}
		if err := s.store.Write(p, []byte(out)); err != nil {
			s.logger.Warn("importer: relink write failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		row, err := s.ledger.GetPage(id)
		if err != nil {
			continue
		}
		row.Checksum = storage.Checksum([]byte(out))
		if err := s.ledger.UpsertPage(*row); err != nil {
			s.logger.Warn("importer: relink ledger update failed", slog.String("path", p), slog.String("error", err.Error()))
		}
		changed++
	}
	return changed, nil
}

func (s *Service) folder(override string) string {
	f := override
	if f == "" {
		f = s.cfg.Folder
	}
	f = path.Clean("/" + strings.ReplaceAll(f, "\\", "/"))
	return strings.TrimPrefix(f, "/")
}

func (s *Service) publish(kind string, data any) {
	if s.events != nil {
		s.events.Publish(sse.Event{Type: kind, Data: data})
	}
}
