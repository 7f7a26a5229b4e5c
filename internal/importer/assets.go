package importer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/starford/notionvault/internal/storage"
)

const (
	DefaultMaxAssetBytes = 20 << 20 // 20 MB
	maxRedirects         = 5
)

// policyError is a refusal by the fetcher itself. It is never retried.
type policyError struct{ msg string }

func (e *policyError) Error() string { return e.msg }

func refuse(format string, args ...any) error {
	return &policyError{msg: fmt.Sprintf(format, args...)}
}

// AssetFetcher downloads a remote binary into the vault.
type AssetFetcher interface {
	Fetch(ctx context.Context, sourceURL, dst string) (int64, error)
}

// HTTPFetcher downloads attachments over http(s) with retries. Loopback,
// link-local and cloud metadata hosts are refused unless AllowPrivateHosts
// is set, and redirects are capped.
type HTTPFetcher struct {
	client            *retryablehttp.Client
	store             storage.Provider
	maxBytes          int64
	allowPrivateHosts bool
}

// FetcherOptions configures an HTTPFetcher.
type FetcherOptions struct {
	MaxBytes          int64
	Timeout           time.Duration
	MaxRetries        int
	AllowPrivateHosts bool
	Logger            *slog.Logger
}

// NewHTTPFetcher creates a fetcher that writes into store.
func NewHTTPFetcher(store storage.Provider, opts FetcherOptions) *HTTPFetcher {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxAssetBytes
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	f := &HTTPFetcher{store: store, maxBytes: opts.MaxBytes, allowPrivateHosts: opts.AllowPrivateHosts}

	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.MaxRetries
	rc.Logger = opts.Logger.With(slog.String("component", "assets"))
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		var pe *policyError
		if errors.As(err, &pe) {
			return false, err
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	rc.HTTPClient = &http.Client{
		Timeout: opts.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return refuse("too many redirects (max %d)", maxRedirects)
			}
			return f.checkHost(req.URL.Hostname())
		},
	}
	f.client = rc
	return f
}

// Fetch downloads sourceURL into dst (a vault path) and returns the number
// of bytes written. The body must sniff as an image.
func (f *HTTPFetcher) Fetch(ctx context.Context, sourceURL, dst string) (int64, error) {
	parsed, err := url.Parse(sourceURL)
	if err != nil {
		return 0, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return 0, refuse("unsupported scheme: %s (only http/https)", parsed.Scheme)
	}
	if err := f.checkHost(parsed.Hostname()); err != nil {
		return 0, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	body := bufio.NewReaderSize(resp.Body, 1024)
	head, _ := body.Peek(512)
	if err := checkImage(head); err != nil {
		return 0, err
	}

	n, err := f.store.WriteFrom(dst, body, f.maxBytes)
	if err != nil {
		return n, fmt.Errorf("save %s: %w", dst, err)
	}
	return n, nil
}

func (f *HTTPFetcher) checkHost(host string) error {
	if f.allowPrivateHosts {
		return nil
	}
	return checkBlockedHost(host)
}

// checkBlockedHost rejects loopback, link-local and cloud metadata
// addresses.
func checkBlockedHost(host string) error {
	if host == "metadata.google.internal" {
		return refuse("blocked host: %s", host)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, lookupErr := net.LookupIP(host)
		if lookupErr != nil || len(ips) == 0 {
			return nil //nolint:nilerr // let the HTTP client report DNS failures
		}
		ip = ips[0]
	}

	if ip.IsLoopback() {
		return refuse("blocked host: loopback address %s", host)
	}
	if ip.IsLinkLocalUnicast() {
		// Includes the 169.254.169.254 metadata endpoint.
		return refuse("blocked host: link-local address %s", host)
	}
	return nil
}

// checkImage verifies the first bytes of a download look like an image.
func checkImage(head []byte) error {
	detected := http.DetectContentType(head)
	if strings.HasPrefix(detected, "image/") {
		return nil
	}
	if bytes.Contains(head, []byte("<svg")) {
		return nil
	}
	return fmt.Errorf("content is not an image (detected: %s)", detected)
}
