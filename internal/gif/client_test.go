package gif

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, "test-key")
	c.http = srv.Client()
	return c
}

func TestLookup(t *testing.T) {
	var gotQuery string
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"results":[{"id":"abc","media_formats":{"gif":{"url":"https://g/full.gif"},"tinygif":{"url":"https://g/tiny.gif"}}}]}`))
	})

	meta, err := c.Lookup(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if meta.URL != "https://g/full.gif" || meta.PreviewURL != "https://g/tiny.gif" {
		t.Errorf("meta = %+v", meta)
	}
	if gotQuery != "ids=abc&key=test-key&media_filter=gif%2Ctinygif" {
		t.Errorf("query = %q", gotQuery)
	}
}

func TestLookupNotFound(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[]}`))
	})

	if _, err := c.Lookup(context.Background(), "missing"); err == nil {
		t.Error("Lookup() expected error for empty results")
	}
}

func TestLookupProviderError(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	if _, err := c.Lookup(context.Background(), "abc"); err == nil {
		t.Error("Lookup() expected error for non-200 status")
	}
}

func TestResolvePrefersFullFormat(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"id":"abc","media_formats":{"gif":{"url":"https://g/full.gif"}}}]}`))
	})

	url, err := c.Resolve(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if url != "https://g/full.gif" {
		t.Errorf("Resolve() = %q", url)
	}
}

func TestLookupEmptyID(t *testing.T) {
	c := NewClient("https://example.invalid", "k")
	if _, err := c.Lookup(context.Background(), ""); err == nil {
		t.Error("Lookup() expected error for empty id")
	}
}
