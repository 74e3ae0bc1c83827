package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain term", "the daily", "the daily"},
		{"term with dash kept", "all-in podcast", "all-in podcast"},
		{
			"spotify link",
			"https://open.spotify.com/show/4rOoJ6Egrf8K2IrywzwOMk",
			"show 4rOoJ6Egrf8K2IrywzwOMk",
		},
		{
			"apple link",
			"https://podcasts.apple.com/us/podcast/the-daily/id1200361736",
			"us podcast the daily id1200361736",
		},
		{"other url untouched", "https://example.com/some-feed", "https://example.com/some-feed"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := normalizeQuery(tc.input); got != tc.expected {
				t.Errorf("normalizeQuery(%q) = %q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func newTestSearchService(serverURL string) *SearchService {
	svc := NewSearchService("test-key", "test-secret")
	svc.baseURL = serverURL
	return svc
}

func TestSearch(t *testing.T) {
	var gotAuth struct {
		key, date, authorization, userAgent string
		query                              string
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.key = r.Header.Get("X-Auth-Key")
		gotAuth.date = r.Header.Get("X-Auth-Date")
		gotAuth.authorization = r.Header.Get("Authorization")
		gotAuth.userAgent = r.Header.Get("User-Agent")
		gotAuth.query = r.URL.Query().Get("q")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"feeds":[{"id":920666,"title":"The Daily","url":"https://feeds.example.com/the-daily","author":"The New York Times","image":"https://img.example.com/daily.jpg"}]}`))
	}))
	defer server.Close()

	svc := newTestSearchService(server.URL)
	results, err := svc.Search(context.Background(), "the daily")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	if results[0].Title != "The Daily" {
		t.Errorf("Unexpected title: %q", results[0].Title)
	}

	if gotAuth.key != "test-key" {
		t.Errorf("Unexpected X-Auth-Key: %q", gotAuth.key)
	}
	if gotAuth.date == "" {
		t.Error("Expected X-Auth-Date to be set")
	}
	if len(gotAuth.authorization) != 40 {
		t.Errorf("Expected 40-char hex sha1 Authorization, got %q", gotAuth.authorization)
	}
	if gotAuth.userAgent != "PodScribe/1.0" {
		t.Errorf("Unexpected User-Agent: %q", gotAuth.userAgent)
	}
	if gotAuth.query != "the daily" {
		t.Errorf("Unexpected query: %q", gotAuth.query)
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	svc := newTestSearchService("http://unused")

	_, err := svc.Search(context.Background(), "   ")
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("Expected *ValidationError, got %v", err)
	}
}

func TestSearch_NoMatches(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"feeds":null,"count":0}`))
	}))
	defer server.Close()

	svc := newTestSearchService(server.URL)
	results, err := svc.Search(context.Background(), "xzqj")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if results == nil || len(results) != 0 {
		t.Errorf("Expected empty slice, got %v", results)
	}
}

func TestSearch_UpstreamStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	svc := newTestSearchService(server.URL)
	_, err := svc.Search(context.Background(), "anything")
	if _, ok := err.(*UpstreamError); !ok {
		t.Fatalf("Expected *UpstreamError, got %v", err)
	}
}

func TestSearch_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	svc := newTestSearchService(server.URL)
	_, err := svc.Search(context.Background(), "anything")
	if _, ok := err.(*UpstreamError); !ok {
		t.Fatalf("Expected *UpstreamError, got %v", err)
	}
}

func TestSearch_NormalizesMarketplaceLinks(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Write([]byte(`{"feeds":[]}`))
	}))
	defer server.Close()

	svc := newTestSearchService(server.URL)
	if _, err := svc.Search(context.Background(), "https://open.spotify.com/show/abc123"); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if gotQuery != "show abc123" {
		t.Errorf("Expected normalized query %q, got %q", "show abc123", gotQuery)
	}
}
