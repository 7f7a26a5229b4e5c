package materialize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notionvault/internal/apperr"
	"github.com/starford/notionvault/internal/models"
)

// fakeSource serves canned pages keyed by block id and cursor.
type fakeSource struct {
	mu     sync.Mutex
	pages  map[string][]models.ChildrenPage
	nodes  map[string]*models.Node
	fail   map[string]error
	delay  map[string]time.Duration
	calls  map[string]int
	active int
	peak   int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		pages: map[string][]models.ChildrenPage{},
		nodes: map[string]*models.Node{},
		fail:  map[string]error{},
		delay: map[string]time.Duration{},
		calls: map[string]int{},
	}
}

func (f *fakeSource) ListChildren(ctx context.Context, id, cursor string) (models.ChildrenPage, error) {
	f.mu.Lock()
	f.calls[id]++
	f.active++
	if f.active > f.peak {
		f.peak = f.active
	}
	d := f.delay[id]
	err := f.fail[id]
	pages := f.pages[id]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return models.ChildrenPage{}, ctx.Err()
		}
	}
	if err != nil {
		return models.ChildrenPage{}, err
	}
	idx := 0
	if cursor != "" {
		fmt.Sscanf(cursor, "c%d", &idx)
	}
	if idx >= len(pages) {
		return models.ChildrenPage{}, nil
	}
	return clonePage(pages[idx]), nil
}

func (f *fakeSource) GetNode(_ context.Context, id string) (*models.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[id]
	if !ok {
		return nil, &apperr.TransportError{Op: "get block", Status: 404}
	}
	cp := *n
	return &cp, nil
}

func (f *fakeSource) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func clonePage(p models.ChildrenPage) models.ChildrenPage {
	out := models.ChildrenPage{NextCursor: p.NextCursor, HasMore: p.HasMore}
	for _, n := range p.Nodes {
		cp := *n
		out.Nodes = append(out.Nodes, &cp)
	}
	return out
}

func block(id string, hasChildren bool) *models.Node {
	return &models.Node{ID: id, Kind: models.KindParagraph, HasChildren: hasChildren}
}

func single(nodes ...*models.Node) []models.ChildrenPage {
	return []models.ChildrenPage{{Nodes: nodes}}
}

func ids(nodes []*models.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestChildren_TwoPages(t *testing.T) {
	src := newFakeSource()
	src.pages["page"] = []models.ChildrenPage{
		{Nodes: []*models.Node{block("a", false), block("b", false)}, HasMore: true, NextCursor: "c1"},
		{Nodes: []*models.Node{block("c", false)}, HasMore: false},
	}

	m := New(src, Options{Logger: quietLogger()})
	got, err := m.Children(context.Background(), "page")
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, ids(got))
	assert.Equal(t, 2, src.callCount("page"))
}

func TestChildren_SinglePageWithoutCursor(t *testing.T) {
	src := newFakeSource()
	src.pages["page"] = single(block("only", false))

	got, err := New(src, Options{}).Children(context.Background(), "page")
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, ids(got))
	assert.Equal(t, 1, src.callCount("page"))
}

func TestChildren_RecursesOnlyWhenHasChildren(t *testing.T) {
	src := newFakeSource()
	inline := block("inline", false)
	inline.Children = []*models.Node{block("stale", false)}
	src.pages["page"] = single(block("parent", true), inline)
	src.pages["parent"] = single(block("child", true))
	src.pages["child"] = single(block("grandchild", false))

	got, err := New(src, Options{Logger: quietLogger()}).Children(context.Background(), "page")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, []string{"child"}, ids(got[0].Children))
	assert.Equal(t, []string{"grandchild"}, ids(got[0].Children[0].Children))
	assert.Equal(t, 0, src.callCount("inline"))
	assert.Equal(t, 0, src.callCount("grandchild"))
}

func TestChildren_ConcurrentSiblingsKeepOrder(t *testing.T) {
	src := newFakeSource()
	var top []*models.Node
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("s%d", i)
		top = append(top, block(id, true))
		src.pages[id] = single(block(id+"-child", false))
		// Earlier siblings answer last.
		src.delay[id] = time.Duration(6-i) * 10 * time.Millisecond
	}
	src.pages["page"] = single(top...)

	got, err := New(src, Options{Concurrency: 3, Logger: quietLogger()}).Children(context.Background(), "page")
	require.NoError(t, err)

	assert.Equal(t, []string{"s0", "s1", "s2", "s3", "s4", "s5"}, ids(got))
	for i, n := range got {
		assert.Equal(t, []string{fmt.Sprintf("s%d-child", i)}, ids(n.Children))
	}
	src.mu.Lock()
	peak := src.peak
	src.mu.Unlock()
	assert.LessOrEqual(t, peak, 3)
	assert.Greater(t, peak, 1)
}

func TestChildren_ErrorPropagates(t *testing.T) {
	src := newFakeSource()
	src.pages["page"] = single(block("ok", true), block("broken", true))
	src.pages["ok"] = single(block("leaf", false))
	src.fail["broken"] = &apperr.TransportError{Op: "list children", Status: 502}

	_, err := New(src, Options{Logger: quietLogger()}).Children(context.Background(), "page")
	require.Error(t, err)
	assert.True(t, apperr.IsTransport(err))
	assert.Contains(t, err.Error(), "broken")
}

func TestChildren_TopLevelNotFound(t *testing.T) {
	src := newFakeSource()
	src.fail["missing"] = &apperr.TransportError{Op: "list children", Status: 404}

	_, err := New(src, Options{}).Children(context.Background(), "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestChildren_StalledCursor(t *testing.T) {
	src := newFakeSource()
	src.pages["page"] = []models.ChildrenPage{{Nodes: []*models.Node{block("a", false)}, HasMore: true}}

	_, err := New(src, Options{}).Children(context.Background(), "page")
	assert.True(t, errors.Is(err, ErrStalledCursor))
	assert.Equal(t, 1, src.callCount("page"))
}

func TestChildren_DepthCap(t *testing.T) {
	src := newFakeSource()
	src.pages["page"] = single(block("l1", true))
	src.pages["l1"] = single(block("l2", true))
	src.pages["l2"] = single(block("l3", true))
	src.pages["l3"] = single(block("l4", false))

	got, err := New(src, Options{MaxDepth: 2, Logger: quietLogger()}).Children(context.Background(), "page")
	require.NoError(t, err)

	require.Len(t, got[0].Children, 1)
	assert.Equal(t, "l2", got[0].Children[0].ID)
	assert.Empty(t, got[0].Children[0].Children)
	assert.Equal(t, 0, src.callCount("l2"))
}

func TestChildren_CycleIsCut(t *testing.T) {
	src := newFakeSource()
	src.pages["page"] = single(block("a", true))
	src.pages["a"] = single(block("b", true))
	src.pages["b"] = single(block("a", true))

	got, err := New(src, Options{Logger: quietLogger()}).Children(context.Background(), "page")
	require.NoError(t, err)

	inner := got[0].Children[0].Children
	require.Len(t, inner, 1)
	assert.Equal(t, "a", inner[0].ID)
	assert.Empty(t, inner[0].Children)
	assert.Equal(t, 1, src.callCount("a"))
}

func TestNode_FetchesRecordAndSubtree(t *testing.T) {
	src := newFakeSource()
	src.nodes["toggle"] = &models.Node{ID: "toggle", Kind: models.KindToggle, HasChildren: true}
	src.pages["toggle"] = single(block("inside", false))

	n, err := New(src, Options{}).Node(context.Background(), "toggle")
	require.NoError(t, err)
	assert.Equal(t, models.KindToggle, n.Kind)
	assert.Equal(t, []string{"inside"}, ids(n.Children))
}

func TestNode_NotFound(t *testing.T) {
	_, err := New(newFakeSource(), Options{}).Node(context.Background(), "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
