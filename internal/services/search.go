package services

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"podscribe-backend/internal/models"
)

const podcastIndexBaseURL = "https://api.podcastindex.org/api/1.0"

// SearchService queries the Podcast Index directory.
type SearchService struct {
	apiKey    string
	apiSecret string
	baseURL   string
	client    *http.Client
}

func NewSearchService(apiKey, apiSecret string) *SearchService {
	return &SearchService{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   podcastIndexBaseURL,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Search runs a byterm query. Spotify / Apple Podcasts links are normalized
// into a plain-text search first, since the directory cannot resolve them.
func (s *SearchService) Search(ctx context.Context, query string) ([]models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &ValidationError{Fields: map[string]string{"q": "Search query is required"}}
	}

	searchURL := fmt.Sprintf("%s/search/byterm?q=%s&max=10", s.baseURL, url.QueryEscape(normalizeQuery(query)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}

	// Podcast Index requires HMAC-SHA1 auth over key+secret+epoch.
	epoch := strconv.FormatInt(time.Now().Unix(), 10)
	hash := sha1.Sum([]byte(s.apiKey + s.apiSecret + epoch))

	req.Header.Set("User-Agent", "PodScribe/1.0")
	req.Header.Set("X-Auth-Key", s.apiKey)
	req.Header.Set("X-Auth-Date", epoch)
	req.Header.Set("Authorization", fmt.Sprintf("%x", hash))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &UpstreamError{Message: "Podcast search failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{Message: fmt.Sprintf("Podcast search returned status %d", resp.StatusCode)}
	}

	var payload struct {
		Feeds []models.SearchResult `json:"feeds"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &UpstreamError{Message: "Failed to decode search response", Err: err}
	}

	if payload.Feeds == nil {
		return []models.SearchResult{}, nil
	}
	return payload.Feeds, nil
}

var marketplaceHostPattern = regexp.MustCompile(`^https?://[^/]+/`)

// normalizeQuery turns a third-party podcast link into searchable terms by
// stripping the host and treating path separators as spaces.
func normalizeQuery(query string) string {
	if !strings.Contains(query, "spotify.com") && !strings.Contains(query, "podcasts.apple.com") {
		return query
	}

	sanitized := marketplaceHostPattern.ReplaceAllString(query, "")
	sanitized = strings.NewReplacer("/", " ", "-", " ").Replace(sanitized)
	return strings.TrimSpace(sanitized)
}
