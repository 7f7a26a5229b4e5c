package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/notionvault/internal/apperr"
	"github.com/starford/notionvault/internal/importer"
	"github.com/starford/notionvault/internal/index"
	"github.com/starford/notionvault/internal/models"
	"github.com/starford/notionvault/internal/notion"
	"github.com/starford/notionvault/internal/testutil"
)

const (
	pageA = "3f2c9c1e-0d4b-4c8e-9f1a-2b3c4d5e6f70"
	pageB = "0a1b2c3d4e5f60718293a4b5c6d7e8f9"
)

// fakeImporter records calls and answers from canned data.
type fakeImporter struct {
	mu         sync.Mutex
	started    chan importer.Selection
	refreshed  chan struct{}
	search     notion.SearchResult
	searchErr  error
	details    map[string]*importer.ImportDetail
	rows       []index.PageRow
	runs       []index.RunRow
	previewErr error
	limit      int
	offset     int
	query      string
}

func newFakeImporter() *fakeImporter {
	return &fakeImporter{
		started:   make(chan importer.Selection, 1),
		refreshed: make(chan struct{}, 1),
		details:   map[string]*importer.ImportDetail{},
	}
}

func (f *fakeImporter) Search(_ context.Context, query string) (notion.SearchResult, error) {
	f.mu.Lock()
	f.query = query
	f.mu.Unlock()
	return f.search, f.searchErr
}

func (f *fakeImporter) Import(_ context.Context, sel importer.Selection) (*importer.Report, error) {
	f.started <- sel
	return &importer.Report{RunID: sel.RunID, Imported: len(sel.PageIDs)}, nil
}

func (f *fakeImporter) Refresh(_ context.Context) (*importer.Report, error) {
	f.refreshed <- struct{}{}
	return &importer.Report{RunID: "r"}, nil
}

func (f *fakeImporter) Preview(_ context.Context, pageID string) (*importer.Preview, error) {
	if f.previewErr != nil {
		return nil, f.previewErr
	}
	return &importer.Preview{
		Page:     models.PageMeta{ID: pageID, Title: "Plan"},
		Path:     "Notion Import/Plan.md",
		Markdown: "# Plan",
	}, nil
}

func (f *fakeImporter) ListImports(limit, offset int) ([]index.PageRow, int, error) {
	f.mu.Lock()
	f.limit, f.offset = limit, offset
	f.mu.Unlock()
	return f.rows, len(f.rows), nil
}

func (f *fakeImporter) SearchImports(query string, limit int) ([]index.PageRow, error) {
	var out []index.PageRow
	for _, r := range f.rows {
		if strings.Contains(strings.ToLower(r.Title), strings.ToLower(query)) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeImporter) GetImport(id string) (*importer.ImportDetail, error) {
	d, ok := f.details[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return d, nil
}

func (f *fakeImporter) Runs(limit int) ([]index.RunRow, error) {
	f.mu.Lock()
	f.limit = limit
	f.mu.Unlock()
	return f.runs, nil
}

func testEnv(t *testing.T, token string) (*fakeImporter, http.Handler, string) {
	t.Helper()
	vault, store := testutil.TestVault(t)
	f := newFakeImporter()
	router := NewRouter(f, Options{
		AuthEnabled: token != "",
		Token:       token,
		Files:       store,
		Logger:      testutil.DiscardLogger(),
		Events: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
		}),
	})
	return f, router, vault
}

func do(router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	_, router, _ := testEnv(t, "s3cret")

	w := do(router, http.MethodGet, "/imports", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d", w.Code)
	}

	for _, header := range []string{"s3cret", "Bearer wrong", "Bearer s3cret "} {
		req := httptest.NewRequest(http.MethodGet, "/imports", nil)
		req.Header.Set("Authorization", header)
		w = httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("header %q: status = %d, want 401", header, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/imports", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token: status = %d", w.Code)
	}

	if w := do(router, http.MethodGet, "/runs?access_token=s3cret", nil); w.Code != http.StatusOK {
		t.Errorf("query token on GET: status = %d", w.Code)
	}
	w = do(router, http.MethodPost, "/imports?access_token=s3cret", ImportRequest{PageIDs: []string{pageA}})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("query token on POST: status = %d, want 401", w.Code)
	}
	if got := w.Header().Get("WWW-Authenticate"); !strings.HasPrefix(got, "Bearer") {
		t.Errorf("WWW-Authenticate = %q", got)
	}
}

func TestAuthDisabled(t *testing.T) {
	_, router, _ := testEnv(t, "")
	if w := do(router, http.MethodGet, "/runs", nil); w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestStartImport(t *testing.T) {
	f, router, _ := testEnv(t, "")

	w := do(router, http.MethodPost, "/imports", ImportRequest{PageIDs: []string{pageA}, DatabaseIDs: []string{pageB}, Folder: "Work", Force: true})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp ImportAccepted
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.RunID == "" {
		t.Fatal("missing run id")
	}

	select {
	case sel := <-f.started:
		if sel.RunID != resp.RunID {
			t.Errorf("run id = %q, want %q", sel.RunID, resp.RunID)
		}
		if sel.Folder != "Work" || !sel.Force || len(sel.PageIDs) != 1 || len(sel.DatabaseIDs) != 1 {
			t.Errorf("selection = %+v", sel)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("import never started")
	}
}

func TestStartImport_Validation(t *testing.T) {
	_, router, _ := testEnv(t, "")

	tests := []struct {
		name string
		body any
		want string
	}{
		{"empty selection", ImportRequest{}, "page_ids or database_ids is required"},
		{"bad id", ImportRequest{PageIDs: []string{"not-an-id"}}, "must be a Notion id"},
		{"blank id", ImportRequest{DatabaseIDs: []string{""}}, "database_ids"},
		{"escaping folder", ImportRequest{PageIDs: []string{pageA}, Folder: "../outside"}, "must not leave the vault"},
		{"absolute folder", ImportRequest{PageIDs: []string{pageA}, Folder: "/etc"}, "must be relative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, http.MethodPost, "/imports", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Errorf("body = %s, want it to mention %q", w.Body.String(), tt.want)
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/imports", strings.NewReader("{"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON: status = %d", w.Code)
	}
}

func TestStartRefresh(t *testing.T) {
	f, router, _ := testEnv(t, "")
	w := do(router, http.MethodPost, "/imports/refresh", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d", w.Code)
	}
	select {
	case <-f.refreshed:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh never started")
	}
}

func TestListAndSearchImports(t *testing.T) {
	f, router, _ := testEnv(t, "")
	f.rows = []index.PageRow{
		{NotionID: pageA, Title: "Roadmap", Path: "Notion Import/Roadmap.md"},
		{NotionID: pageB, Title: "Standup", Path: "Notion Import/Standup.md"},
	}

	w := do(router, http.MethodGet, "/imports?limit=9999&offset=-3", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var list ImportListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 2 || len(list.Imports) != 2 {
		t.Errorf("list = %+v", list)
	}
	if f.limit != maxListLimit || f.offset != 0 {
		t.Errorf("limit/offset = %d/%d", f.limit, f.offset)
	}

	if w := do(router, http.MethodGet, "/imports/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("search without q = %d, want 400", w.Code)
	}

	w = do(router, http.MethodGet, "/imports/search?q=road", nil)
	var hits ImportSearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &hits)
	if len(hits.Results) != 1 || hits.Results[0].NotionID != pageA {
		t.Errorf("search = %+v", hits)
	}

	w = do(router, http.MethodGet, "/imports/search?q=nothing", nil)
	if !strings.Contains(w.Body.String(), `"results":[]`) {
		t.Errorf("empty search body = %s", w.Body.String())
	}
}

func TestGetImport(t *testing.T) {
	f, router, _ := testEnv(t, "")
	f.details[pageA] = &importer.ImportDetail{
		PageRow: index.PageRow{NotionID: pageA, Title: "Roadmap"},
		Assets:  []index.AssetRow{},
	}

	w := do(router, http.MethodGet, "/imports/"+pageA, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var d importer.ImportDetail
	_ = json.Unmarshal(w.Body.Bytes(), &d)
	if d.Title != "Roadmap" {
		t.Errorf("title = %q", d.Title)
	}

	if w := do(router, http.MethodGet, "/imports/"+pageB, nil); w.Code != http.StatusNotFound {
		t.Errorf("missing import = %d, want 404", w.Code)
	}
}

func TestServeAsset(t *testing.T) {
	f, router, vault := testEnv(t, "")
	rel := "Notion Import/attachments/image_i1.png"
	if err := os.MkdirAll(filepath.Join(vault, "Notion Import", "attachments"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(vault, filepath.FromSlash(rel)), []byte("\x89PNG"), 0o644); err != nil {
		t.Fatal(err)
	}
	f.details[pageA] = &importer.ImportDetail{
		PageRow: index.PageRow{NotionID: pageA},
		Assets: []index.AssetRow{
			{NodeID: "i1", PageID: pageA, Path: rel},
			{NodeID: "gone", PageID: pageA, Path: "Notion Import/attachments/gone.png"},
			{NodeID: "evil", PageID: pageA, Path: "../outside.png"},
		},
	}

	w := do(router, http.MethodGet, "/imports/"+pageA+"/assets/i1", nil)
	if w.Code != http.StatusOK || w.Body.String() != "\x89PNG" {
		t.Fatalf("status = %d, body = %q", w.Code, w.Body.String())
	}

	cases := map[string]int{
		"/imports/" + pageA + "/assets/nope": http.StatusNotFound,
		"/imports/" + pageA + "/assets/gone": http.StatusNotFound,
		"/imports/" + pageA + "/assets/evil": http.StatusBadRequest,
		"/imports/" + pageB + "/assets/i1":   http.StatusNotFound,
	}
	for target, want := range cases {
		if w := do(router, http.MethodGet, target, nil); w.Code != want {
			t.Errorf("%s = %d, want %d", target, w.Code, want)
		}
	}
}

func TestPreview(t *testing.T) {
	f, router, _ := testEnv(t, "")

	w := do(router, http.MethodPost, "/preview", PreviewRequest{PageID: pageA})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var pv importer.Preview
	_ = json.Unmarshal(w.Body.Bytes(), &pv)
	if pv.Markdown != "# Plan" || pv.Page.ID != pageA {
		t.Errorf("preview = %+v", pv)
	}

	if w := do(router, http.MethodPost, "/preview", PreviewRequest{}); w.Code != http.StatusBadRequest {
		t.Errorf("missing id = %d, want 400", w.Code)
	}

	f.previewErr = &apperr.TransportError{Op: "get page", Status: http.StatusNotFound, Code: "object_not_found"}
	if w := do(router, http.MethodPost, "/preview", PreviewRequest{PageID: pageA}); w.Code != http.StatusNotFound {
		t.Errorf("remote 404 = %d, want 404", w.Code)
	}

	f.previewErr = &apperr.TransportError{Op: "get page", Status: http.StatusUnauthorized}
	if w := do(router, http.MethodPost, "/preview", PreviewRequest{PageID: pageA}); w.Code != http.StatusBadGateway {
		t.Errorf("remote 401 = %d, want 502", w.Code)
	}

	f.previewErr = &apperr.TransportError{Op: "get page", Status: http.StatusTooManyRequests}
	w = do(router, http.MethodPost, "/preview", PreviewRequest{PageID: pageA})
	if w.Code != http.StatusServiceUnavailable || w.Header().Get("Retry-After") == "" {
		t.Errorf("remote 429 = %d, Retry-After %q", w.Code, w.Header().Get("Retry-After"))
	}
}

func TestSearchNotion(t *testing.T) {
	f, router, _ := testEnv(t, "")
	f.search = notion.SearchResult{
		Pages:     []models.PageMeta{{ID: pageA, Title: "Roadmap"}},
		Databases: []models.DatabaseMeta{{ID: pageB, Title: "Tasks"}},
	}

	w := do(router, http.MethodGet, "/notion/search?q=road", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if f.query != "road" {
		t.Errorf("query = %q", f.query)
	}
	var res notion.SearchResult
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if len(res.Pages) != 1 || len(res.Databases) != 1 {
		t.Errorf("result = %+v", res)
	}

	f.searchErr = &apperr.TransportError{Op: "search", Status: http.StatusBadGateway}
	if w := do(router, http.MethodGet, "/notion/search", nil); w.Code != http.StatusBadGateway {
		t.Errorf("upstream failure = %d, want 502", w.Code)
	}
}

func TestRunsAndEvents(t *testing.T) {
	f, router, _ := testEnv(t, "")
	f.runs = []index.RunRow{{ID: "r1", Imported: 3}}

	w := do(router, http.MethodGet, "/runs", nil)
	var runs RunListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &runs)
	if len(runs.Runs) != 1 || runs.Runs[0].Imported != 3 {
		t.Errorf("runs = %+v", runs)
	}
	if f.limit != defaultRunLimit {
		t.Errorf("limit = %d, want %d", f.limit, defaultRunLimit)
	}

	w = do(router, http.MethodGet, "/events", nil)
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("events content type = %q", ct)
	}
}
