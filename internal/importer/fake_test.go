package importer

import (
	"context"
	"sync"

	"github.com/starford/notionvault/internal/apperr"
	"github.com/starford/notionvault/internal/models"
	"github.com/starford/notionvault/internal/notion"
	"github.com/starford/notionvault/internal/sse"
	"github.com/starford/notionvault/internal/storage"
)

// fakeSource is an in-memory workspace.
type fakeSource struct {
	mu        sync.Mutex
	pages     map[string]models.PageMeta
	databases map[string]models.DatabaseMeta
	rows      map[string][]string
	children  map[string][]*models.Node
	broken    map[string]error
	listCalls int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		pages:     map[string]models.PageMeta{},
		databases: map[string]models.DatabaseMeta{},
		rows:      map[string][]string{},
		children:  map[string][]*models.Node{},
		broken:    map[string]error{},
	}
}

func (f *fakeSource) addPage(meta models.PageMeta, body ...*models.Node) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[meta.ID] = meta
	f.children[meta.ID] = body
}

func (f *fakeSource) ListChildren(_ context.Context, id, _ string) (models.ChildrenPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if err := f.broken[id]; err != nil {
		return models.ChildrenPage{}, err
	}
	var out []*models.Node
	for _, n := range f.children[id] {
		cp := *n
		out = append(out, &cp)
	}
	return models.ChildrenPage{Nodes: out}, nil
}

func (f *fakeSource) GetNode(_ context.Context, id string) (*models.Node, error) {
	return nil, &apperr.TransportError{Op: "get block", Status: 404}
}

func (f *fakeSource) Page(_ context.Context, id string) (models.PageMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pages[id]
	if !ok {
		return models.PageMeta{}, &apperr.TransportError{Op: "get page", Status: 404, Code: "object_not_found"}
	}
	return p, nil
}

func (f *fakeSource) Database(_ context.Context, id string) (models.DatabaseMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.databases[id]
	if !ok {
		return models.DatabaseMeta{}, &apperr.TransportError{Op: "get database", Status: 404}
	}
	return d, nil
}

func (f *fakeSource) QueryDatabase(_ context.Context, id string) ([]models.PageMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.PageMeta
	for _, pid := range f.rows[id] {
		out = append(out, f.pages[pid])
	}
	return out, nil
}

func (f *fakeSource) Search(_ context.Context, _ string) (notion.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res notion.SearchResult
	for _, p := range f.pages {
		res.Pages = append(res.Pages, p)
	}
	for _, d := range f.databases {
		res.Databases = append(res.Databases, d)
	}
	return res, nil
}

// fakeFetcher writes a fixed payload for every URL it knows.
type fakeFetcher struct {
	mu    sync.Mutex
	store storage.Provider
	fail  map[string]bool
	urls  []string
}

func (f *fakeFetcher) Fetch(_ context.Context, sourceURL, dst string) (int64, error) {
	f.mu.Lock()
	f.urls = append(f.urls, sourceURL)
	fail := f.fail[sourceURL]
	f.mu.Unlock()
	if fail {
		return 0, &apperr.TransportError{Op: "download", Status: 403}
	}
	return 4, f.store.Write(dst, []byte("\x89PNG"))
}

// recorder collects published events.
type recorder struct {
	mu       sync.Mutex
	events   []sse.Event
	progress []sse.Progress
}

func (r *recorder) Publish(e sse.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) PublishProgress(p sse.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func paragraph(id, text string) *models.Node {
	return &models.Node{ID: id, Kind: models.KindParagraph, Payload: models.TextBlock{
		Runs: []models.InlineRun{{Kind: models.RunText, Text: text}},
	}}
}

func mention(id, target, text string) *models.Node {
	return &models.Node{ID: id, Kind: models.KindParagraph, Payload: models.TextBlock{
		Runs: []models.InlineRun{
			{Kind: models.RunText, Text: "see "},
			{Kind: models.RunPageMention, Text: text, Target: target},
		},
	}}
}

func image(id, url string) *models.Node {
	return &models.Node{ID: id, Kind: models.KindImage, Payload: models.Media{
		Location: models.Location{Hosting: models.HostingFile, URL: url},
	}}
}
