package importer

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notionvault/internal/storage"
	"github.com/starford/notionvault/internal/testutil"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func imageServer(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/redirect":
			http.Redirect(w, r, "/a.png", http.StatusFound)
		case "/loop":
			http.Redirect(w, r, "/loop", http.StatusFound)
		case "/missing.png":
			http.NotFound(w, r)
		default:
			_, _ = w.Write(body)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPFetcher_Downloads(t *testing.T) {
	_, store := testutil.TestVault(t)
	srv := imageServer(t, pngHeader)
	f := NewHTTPFetcher(store, FetcherOptions{AllowPrivateHosts: true, Logger: testutil.DiscardLogger()})

	n, err := f.Fetch(context.Background(), srv.URL+"/redirect", "Notion Import/attachments/image_x.png")
	require.NoError(t, err)
	assert.Equal(t, int64(len(pngHeader)), n)

	got, err := store.Read("Notion Import/attachments/image_x.png")
	require.NoError(t, err)
	assert.Equal(t, pngHeader, got)
}

func TestHTTPFetcher_AcceptsSVG(t *testing.T) {
	_, store := testutil.TestVault(t)
	srv := imageServer(t, []byte(`<?xml version="1.0"?><svg xmlns="http://www.w3.org/2000/svg"></svg>`))
	f := NewHTTPFetcher(store, FetcherOptions{AllowPrivateHosts: true, Logger: testutil.DiscardLogger()})

	_, err := f.Fetch(context.Background(), srv.URL+"/a.svg", "a.svg")
	assert.NoError(t, err)
}

func TestHTTPFetcher_BlocksLoopback(t *testing.T) {
	_, store := testutil.TestVault(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write(pngHeader)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(store, FetcherOptions{Logger: testutil.DiscardLogger()})
	_, err := f.Fetch(context.Background(), srv.URL+"/a.png", "a.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loopback")
	assert.Zero(t, hits.Load())
}

func TestHTTPFetcher_RejectsBadInput(t *testing.T) {
	_, store := testutil.TestVault(t)
	f := NewHTTPFetcher(store, FetcherOptions{Logger: testutil.DiscardLogger()})

	for _, raw := range []string{
		"file:///etc/passwd",
		"ftp://example.com/a.png",
		"http://169.254.169.254/latest/meta-data",
		"http://metadata.google.internal/computeMetadata",
	} {
		_, err := f.Fetch(context.Background(), raw, "a.png")
		assert.Error(t, err, raw)
	}
}

func TestHTTPFetcher_RejectsNonImage(t *testing.T) {
	_, store := testutil.TestVault(t)
	srv := imageServer(t, []byte("<html><body>login</body></html>"))
	f := NewHTTPFetcher(store, FetcherOptions{AllowPrivateHosts: true, Logger: testutil.DiscardLogger()})

	_, err := f.Fetch(context.Background(), srv.URL+"/a.png", "a.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an image")
	ok, _ := store.Exists("a.png")
	assert.False(t, ok)
}

func TestHTTPFetcher_SizeLimit(t *testing.T) {
	_, store := testutil.TestVault(t)
	big := append(bytes.Clone(pngHeader), bytes.Repeat([]byte{0}, 4096)...)
	srv := imageServer(t, big)
	f := NewHTTPFetcher(store, FetcherOptions{MaxBytes: 1024, AllowPrivateHosts: true, Logger: testutil.DiscardLogger()})

	_, err := f.Fetch(context.Background(), srv.URL+"/big.png", "big.png")
	assert.ErrorIs(t, err, storage.ErrTooLarge)
	ok, _ := store.Exists("big.png")
	assert.False(t, ok)
}

func TestHTTPFetcher_HTTPErrors(t *testing.T) {
	_, store := testutil.TestVault(t)
	srv := imageServer(t, pngHeader)
	f := NewHTTPFetcher(store, FetcherOptions{AllowPrivateHosts: true, Logger: testutil.DiscardLogger()})

	_, err := f.Fetch(context.Background(), srv.URL+"/missing.png", "m.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")

	_, err = f.Fetch(context.Background(), srv.URL+"/loop", "l.png")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "redirects"), err.Error())
}
