// Package materialize rebuilds a block subtree from a paginated children
// listing.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/starford/notionvault/internal/models"
)

// Source is the remote listing the materializer reads from.
type Source interface {
	// ListChildren returns one page of the direct children of id. An empty
	// cursor requests the first page.
	ListChildren(ctx context.Context, id, cursor string) (models.ChildrenPage, error)
	// GetNode returns the record of a single block without its children.
	GetNode(ctx context.Context, id string) (*models.Node, error)
}

const (
	DefaultMaxDepth    = 64
	DefaultConcurrency = 4
)

// ErrStalledCursor is returned when the source reports more results but
// hands back no cursor to fetch them with.
var ErrStalledCursor = errors.New("materialize: has_more without next cursor")

// Options tunes a Materializer. Zero values select the defaults.
type Options struct {
	// MaxDepth caps recursion. Branches below it are left unexpanded.
	MaxDepth int
	// Concurrency bounds in-flight listing requests across the whole tree.
	Concurrency int
	Logger      *slog.Logger
}

// Materializer fetches whole subtrees. It is safe for concurrent use; every
// call owns its own buffers.
type Materializer struct {
	src      Source
	maxDepth int
	sem      *semaphore.Weighted
	logger   *slog.Logger
}

// New returns a Materializer reading from src.
func New(src Source, opts Options) *Materializer {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Materializer{
		src:      src,
		maxDepth: opts.MaxDepth,
		sem:      semaphore.NewWeighted(int64(opts.Concurrency)),
		logger:   opts.Logger,
	}
}

// Children returns the fully expanded children of the container id (a page
// or a block), in source order. The container itself is not included.
func (m *Materializer) Children(ctx context.Context, id string) ([]*models.Node, error) {
	return m.subtree(ctx, id, []string{id})
}

// Node returns the block id together with its expanded subtree.
func (m *Materializer) Node(ctx context.Context, id string) (*models.Node, error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	n, err := m.src.GetNode(ctx, id)
	m.sem.Release(1)
	if err != nil {
		return nil, fmt.Errorf("materialize: get %s: %w", id, err)
	}
	if n.HasChildren {
		children, err := m.subtree(ctx, n.ID, []string{n.ID})
		if err != nil {
			return nil, err
		}
		n.Children = children
	}
	return n, nil
}

// subtree lists every page of id's children, then expands the children that
// report descendants. ancestors is the chain from the entry point down to id.
func (m *Materializer) subtree(ctx context.Context, id string, ancestors []string) ([]*models.Node, error) {
	nodes, err := m.listAll(ctx, id)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, n := range nodes {
		if n == nil || !n.HasChildren {
			continue
		}
		if len(ancestors) >= m.maxDepth {
			m.logger.Warn("materialize: depth cap reached, branch left unexpanded",
				slog.String("id", n.ID),
				slog.Int("max_depth", m.maxDepth))
			continue
		}
		if slices.Contains(ancestors, n.ID) {
			m.logger.Warn("materialize: cycle detected, branch left unexpanded",
				slog.String("id", n.ID))
			continue
		}

		chain := append(slices.Clip(ancestors), n.ID)
		g.Go(func() error {
			children, err := m.subtree(gctx, n.ID, chain)
			if err != nil {
				return err
			}
			n.Children = children
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return nodes, nil
}

// listAll follows the continuation cursor until the source has no more.
func (m *Materializer) listAll(ctx context.Context, id string) ([]*models.Node, error) {
	var (
		out    []*models.Node
		cursor string
	)
	for {
		if err := m.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		page, err := m.src.ListChildren(ctx, id, cursor)
		m.sem.Release(1)
		if err != nil {
			return nil, fmt.Errorf("materialize: list children of %s: %w", id, err)
		}
		out = append(out, page.Nodes...)

		if !page.HasMore {
			return out, nil
		}
		if page.NextCursor == "" {
			return nil, fmt.Errorf("%w (block %s)", ErrStalledCursor, id)
		}
		cursor = page.NextCursor
	}
}
