// Package notion talks to the Notion REST API and maps its records onto the
// domain model.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/starford/notionvault/internal/apperr"
	"github.com/starford/notionvault/internal/metrics"
	"github.com/starford/notionvault/internal/models"
)

const (
	DefaultBaseURL  = "https://api.notion.com/v1"
	DefaultVersion  = "2022-06-28"
	DefaultPageSize = 100

	maxResponseBytes = 16 << 20
)

// Options configures a Client. Zero values select the defaults; a zero
// MaxRetries disables retries.
type Options struct {
	Token             string
	BaseURL           string
	Version           string
	PageSize          int
	RequestsPerSecond float64
	MaxRetries        int
	Timeout           time.Duration
	RetryWaitMin      time.Duration
	RetryWaitMax      time.Duration
	Logger            *slog.Logger
}

// Client is a Notion API client. It paces every attempt, retries transient
// failures and maps error responses to *apperr.TransportError.
type Client struct {
	http     *retryablehttp.Client
	limiter  *rate.Limiter
	baseURL  string
	token    string
	version  string
	pageSize int
	logger   *slog.Logger
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Version == "" {
		opts.Version = DefaultVersion
	}
	if opts.PageSize <= 0 || opts.PageSize > DefaultPageSize {
		opts.PageSize = DefaultPageSize
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &Client{
		limiter:  rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		token:    opts.Token,
		version:  opts.Version,
		pageSize: opts.PageSize,
		logger:   opts.Logger,
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = opts.Timeout
	rc.RetryMax = opts.MaxRetries
	if opts.RetryWaitMin > 0 {
		rc.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		rc.RetryWaitMax = opts.RetryWaitMax
	}
	rc.Logger = opts.Logger.With(slog.String("component", "notion"))
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	// Retries go through the limiter too.
	rc.HTTPClient.Transport = &pacedTransport{base: rc.HTTPClient.Transport, limiter: c.limiter}
	c.http = rc
	return c
}

// pacedTransport waits for a limiter token before each attempt. An attempt
// whose context ends before its slot comes up is never sent.
type pacedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *pacedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("notion: pace request: %w", err)
	}
	return t.base.RoundTrip(req)
}

// ListChildren returns one page of the direct children of a block or page.
func (c *Client) ListChildren(ctx context.Context, id, cursor string) (models.ChildrenPage, error) {
	q := url.Values{}
	q.Set("page_size", fmt.Sprint(c.pageSize))
	if cursor != "" {
		q.Set("start_cursor", cursor)
	}

	var resp listResponse[rawBlock]
	if err := c.do(ctx, "list children", http.MethodGet, "/blocks/"+url.PathEscape(id)+"/children?"+q.Encode(), nil, &resp); err != nil {
		return models.ChildrenPage{}, err
	}

	page := models.ChildrenPage{HasMore: resp.HasMore}
	if resp.NextCursor != nil {
		page.NextCursor = *resp.NextCursor
	}
	page.Nodes = make([]*models.Node, 0, len(resp.Results))
	for _, b := range resp.Results {
		page.Nodes = append(page.Nodes, b.toNode())
	}
	return page, nil
}

// GetNode returns a single block without its children.
func (c *Client) GetNode(ctx context.Context, id string) (*models.Node, error) {
	var b rawBlock
	if err := c.do(ctx, "get block", http.MethodGet, "/blocks/"+url.PathEscape(id), nil, &b); err != nil {
		return nil, err
	}
	return b.toNode(), nil
}

// Page returns the metadata of a page.
func (c *Client) Page(ctx context.Context, id string) (models.PageMeta, error) {
	var p rawPage
	if err := c.do(ctx, "get page", http.MethodGet, "/pages/"+url.PathEscape(id), nil, &p); err != nil {
		return models.PageMeta{}, err
	}
	return p.toMeta(), nil
}

// Database returns the metadata of a database.
func (c *Client) Database(ctx context.Context, id string) (models.DatabaseMeta, error) {
	var d rawDatabase
	if err := c.do(ctx, "get database", http.MethodGet, "/databases/"+url.PathEscape(id), nil, &d); err != nil {
		return models.DatabaseMeta{}, err
	}
	return d.toMeta(), nil
}

// SearchResult splits search hits by object type.
type SearchResult struct {
	Pages     []models.PageMeta     `json:"pages"`
	Databases []models.DatabaseMeta `json:"databases"`
}

// Search lists every page and database shared with the integration whose
// title matches query. An empty query matches everything.
func (c *Client) Search(ctx context.Context, query string) (SearchResult, error) {
	var out SearchResult
	cursor := ""
	for {
		body := map[string]any{"page_size": c.pageSize}
		if query != "" {
			body["query"] = query
		}
		if cursor != "" {
			body["start_cursor"] = cursor
		}

		var resp listResponse[json.RawMessage]
		if err := c.do(ctx, "search", http.MethodPost, "/search", body, &resp); err != nil {
			return SearchResult{}, err
		}
		for _, raw := range resp.Results {
			switch gjson.GetBytes(raw, "object").String() {
			case "page":
				var p rawPage
				if err := json.Unmarshal(raw, &p); err != nil {
					return SearchResult{}, fmt.Errorf("notion: decode search page: %w", err)
				}
				out.Pages = append(out.Pages, p.toMeta())
			case "database":
				var d rawDatabase
				if err := json.Unmarshal(raw, &d); err != nil {
					return SearchResult{}, fmt.Errorf("notion: decode search database: %w", err)
				}
				out.Databases = append(out.Databases, d.toMeta())
			}
		}

		next, err := nextCursor(resp.HasMore, resp.NextCursor, "search")
		if err != nil || next == "" {
			return out, err
		}
		cursor = next
	}
}

// QueryDatabase lists every page of a database.
func (c *Client) QueryDatabase(ctx context.Context, id string) ([]models.PageMeta, error) {
	var pages []models.PageMeta
	cursor := ""
	for {
		body := map[string]any{"page_size": c.pageSize}
		if cursor != "" {
			body["start_cursor"] = cursor
		}

		var resp listResponse[rawPage]
		if err := c.do(ctx, "query database", http.MethodPost, "/databases/"+url.PathEscape(id)+"/query", body, &resp); err != nil {
			return nil, err
		}
		for _, p := range resp.Results {
			pages = append(pages, p.toMeta())
		}

		next, err := nextCursor(resp.HasMore, resp.NextCursor, "query database")
		if err != nil || next == "" {
			return pages, err
		}
		cursor = next
	}
}

// Ping checks the token by fetching the integration's bot user and returns
// its name.
func (c *Client) Ping(ctx context.Context) (string, error) {
	var me struct {
		Name string `json:"name"`
	}
	if err := c.do(ctx, "ping", http.MethodGet, "/users/me", nil, &me); err != nil {
		return "", err
	}
	return me.Name, nil
}

func nextCursor(hasMore bool, cursor *string, op string) (string, error) {
	if !hasMore {
		return "", nil
	}
	if cursor == nil || *cursor == "" {
		return "", fmt.Errorf("notion: %s: has_more without next_cursor", op)
	}
	return *cursor, nil
}

// do sends one request and decodes a successful response into out.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("notion: %s: encode body: %w", op, err)
		}
		payload = b
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, bytesOrNil(payload))
	if err != nil {
		return fmt.Errorf("notion: %s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", c.version)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveNotionRequest(op, 0)
		return &apperr.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	metrics.ObserveNotionRequest(op, resp.StatusCode)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &apperr.TransportError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		te := &apperr.TransportError{Op: op, Status: resp.StatusCode}
		if gjson.ValidBytes(data) {
			env := gjson.ParseBytes(data)
			te.Code = env.Get("code").String()
			te.Message = env.Get("message").String()
		}
		c.logger.Warn("notion request failed",
			slog.String("op", op),
			slog.Int("status", resp.StatusCode),
			slog.String("code", te.Code))
		return te
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("notion: %s: decode response: %w", op, err)
	}
	return nil
}

func bytesOrNil(b []byte) any {
	if b == nil {
		return nil
	}
	return bytes.NewReader(b)
}
