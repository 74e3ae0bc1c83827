package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"podscribe-backend/internal/models"
)

type searchService interface {
	Search(ctx context.Context, query string) ([]models.SearchResult, error)
}

type feedService interface {
	Ingest(ctx context.Context, feedURL string) (*models.Podcast, []*models.Episode, error)
}

type PodcastHandler struct {
	search searchService
	feeds  feedService
}

func NewPodcastHandler(search searchService, feeds feedService) *PodcastHandler {
	return &PodcastHandler{search: search, feeds: feeds}
}

func (h *PodcastHandler) Search(w http.ResponseWriter, r *http.Request) {
	results, err := h.search.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
	})
}

func (h *PodcastHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FeedURL string `json:"feed_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if _, err := url.ParseRequestURI(req.FeedURL); err != nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"feed_url": "A valid feed URL is required"}, r))
		return
	}

	podcast, episodes, err := h.feeds.Ingest(r.Context(), req.FeedURL)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"podcast":  podcast,
		"episodes": episodes,
	})
}
