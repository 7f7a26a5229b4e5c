// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes notionvault import tools for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/notionvault/internal/apperr"
	"github.com/starford/notionvault/internal/importer"
	"github.com/starford/notionvault/internal/index"
	"github.com/starford/notionvault/internal/notion"
)

const (
	formatURI        = "notionvault://import-format"
	defaultListLimit = 50
)

// Importer is the import service the tools call.
type Importer interface {
	Search(ctx context.Context, query string) (notion.SearchResult, error)
	Import(ctx context.Context, sel importer.Selection) (*importer.Report, error)
	Preview(ctx context.Context, pageID string) (*importer.Preview, error)
	ListImports(limit, offset int) ([]index.PageRow, int, error)
	SearchImports(query string, limit int) ([]index.PageRow, error)
}

// Server wraps the MCP server with notionvault tools.
type Server struct {
	mcp *server.MCPServer
	svc Importer
}

// New creates a new MCP server with all tools registered.
func New(svc Importer, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"notionvault",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notion",
		mcp.WithDescription("List Notion pages and databases shared with the integration, optionally filtered by title."),
		mcp.WithString("query", mcp.Description("Title filter (empty lists everything)")),
	), s.searchNotion)

	s.mcp.AddTool(mcp.NewTool("preview_page",
		mcp.WithDescription("Render a Notion page to vault Markdown without writing anything."),
		mcp.WithString("page_id", mcp.Required(), mcp.Description("Notion page id")),
	), s.previewPage)

	s.mcp.AddTool(mcp.NewTool("import_page",
		mcp.WithDescription("Import one Notion page into the vault. Unchanged pages are skipped unless force is set. "+
			"See get_import_format or the "+formatURI+" resource for the resulting note layout."),
		mcp.WithString("page_id", mcp.Required(), mcp.Description("Notion page id")),
		mcp.WithString("folder", mcp.Description("Vault folder (defaults to the configured import folder)")),
		mcp.WithBoolean("force", mcp.Description("Re-import even if the page did not change")),
	), s.importPage)

	s.mcp.AddTool(mcp.NewTool("import_database",
		mcp.WithDescription("Import every page of a Notion database into a subfolder named after it."),
		mcp.WithString("database_id", mcp.Required(), mcp.Description("Notion database id")),
		mcp.WithString("folder", mcp.Description("Vault folder (defaults to the configured import folder)")),
		mcp.WithBoolean("force", mcp.Description("Re-import even if pages did not change")),
	), s.importDatabase)

	s.mcp.AddTool(mcp.NewTool("list_imports",
		mcp.WithDescription("List imported pages with their vault paths, newest first, or search them by title or path."),
		mcp.WithString("query", mcp.Description("Optional title/path filter")),
		mcp.WithNumber("limit", mcp.Description("Max results (default 50)")),
	), s.listImports)

	s.mcp.AddTool(mcp.NewTool("get_import_format",
		mcp.WithDescription("Returns the Markdown layout notionvault writes for imported pages."),
	), s.getImportFormat)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Import Format",
			mcp.WithResourceDescription("Markdown layout of notes imported from Notion."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readImportFormatResource,
	)

	return s
}

// Serve speaks the protocol over in and out until ctx is done or in is
// closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// toolError turns a service error into a tool error message.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("not found: the page or database does not exist or is not shared with the integration")
	case errors.Is(err, apperr.ErrUnauthorized):
		return mcp.NewToolResultError("notion rejected the integration token")
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) searchNotion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.svc.Search(ctx, req.GetString("query", ""))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res)
}

func (s *Server) previewPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("page_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	pv, err := s.svc.Preview(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("path: %s\n\n%s", pv.Path, pv.Markdown)), nil
}

func (s *Server) importPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("page_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.runImport(ctx, importer.Selection{
		PageIDs: []string{id},
		Folder:  req.GetString("folder", ""),
		Force:   req.GetBool("force", false),
	})
}

func (s *Server) importDatabase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("database_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.runImport(ctx, importer.Selection{
		DatabaseIDs: []string{id},
		Folder:      req.GetString("folder", ""),
		Force:       req.GetBool("force", false),
	})
}

func (s *Server) runImport(ctx context.Context, sel importer.Selection) (*mcp.CallToolResult, error) {
	if strings.Contains(sel.Folder, "..") {
		return mcp.NewToolResultError("folder must stay inside the vault"), nil
	}
	rep, err := s.svc.Import(ctx, sel)
	if err != nil {
		return toolError(err), nil
	}
	res, err := jsonResult(rep)
	if err == nil && rep.Failed > 0 && rep.Imported+rep.Skipped == 0 {
		res.IsError = true
	}
	return res, err
}

func (s *Server) listImports(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", defaultListLimit)
	if limit <= 0 {
		limit = defaultListLimit
	}

	var (
		rows []index.PageRow
		err  error
	)
	if q := req.GetString("query", ""); q != "" {
		rows, err = s.svc.SearchImports(q, limit)
	} else {
		rows, _, err = s.svc.ListImports(limit, 0)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(rows) == 0 {
		return mcp.NewToolResultText("no imports found"), nil
	}

	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, fmt.Sprintf("%s\t%s\t%s", r.NotionID, r.Path, r.Title))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) getImportFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ImportFormatContract), nil
}

func (s *Server) readImportFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     ImportFormatContract,
		},
	}, nil
}
