package api

import (
	"context"

	"github.com/starford/notionvault/internal/importer"
	"github.com/starford/notionvault/internal/index"
	"github.com/starford/notionvault/internal/notion"
)

// Importer is the part of the import service the API drives.
type Importer interface {
	Search(ctx context.Context, query string) (notion.SearchResult, error)
	Import(ctx context.Context, sel importer.Selection) (*importer.Report, error)
	Refresh(ctx context.Context) (*importer.Report, error)
	Preview(ctx context.Context, pageID string) (*importer.Preview, error)
	ListImports(limit, offset int) ([]index.PageRow, int, error)
	SearchImports(query string, limit int) ([]index.PageRow, error)
	GetImport(notionID string) (*importer.ImportDetail, error)
	Runs(limit int) ([]index.RunRow, error)
}

var _ Importer = (*importer.Service)(nil)
