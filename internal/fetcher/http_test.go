package fetcher

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHTTPFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body><h1>Widget</h1></body></html>"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPFetcherConfig{Timeout: 5 * time.Second}, zap.NewNop())

	page, err := f.Fetch(srv.URL + "/p/1")

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Contains(t, page.RawHTML, "<h1>Widget</h1>")
	assert.Contains(t, page.ContentType, "text/html")
	assert.Greater(t, page.ResponseSize, 0)
}

func TestHTTPFetcher_SendsBrowserHeaders(t *testing.T) {
	var gotAccept, gotCustom string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		gotCustom = r.Header.Get("X-Shop-Token")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPFetcherConfig{
		Timeout:       5 * time.Second,
		CustomHeaders: []string{"X-Shop-Token: abc123"},
	}, zap.NewNop())

	_, err := f.Fetch(srv.URL)

	require.NoError(t, err)
	assert.Contains(t, gotAccept, "text/html")
	assert.Equal(t, "abc123", gotCustom)
}

func TestHTTPFetcher_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPFetcherConfig{Timeout: 5 * time.Second}, zap.NewNop())

	page, err := f.Fetch(srv.URL + "/p/1")

	require.Error(t, err)
	assert.Equal(t, http.StatusGone, page.StatusCode)
	assert.NotEmpty(t, page.Error)
}

func TestHTTPFetcher_RepeatFetchSameURL(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPFetcherConfig{Timeout: 5 * time.Second}, zap.NewNop())

	_, err := f.Fetch(srv.URL)
	require.NoError(t, err)
	_, err = f.Fetch(srv.URL)
	require.NoError(t, err)

	assert.Equal(t, 2, hits)
}
