package models

import (
	"time"

	"github.com/google/uuid"
)

type Podcast struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Author      *string   `json:"author"`
	Description *string   `json:"description"`
	ImageURL    *string   `json:"image_url"`
	RSSFeedURL  string    `json:"rss_feed_url"`
	SpotifyURL  *string   `json:"spotify_url"`
	AppleURL    *string   `json:"apple_url"`
	CreatedAt   time.Time `json:"created_at"`
}

type Episode struct {
	ID              uuid.UUID  `json:"id"`
	PodcastID       uuid.UUID  `json:"podcast_id"`
	Title           string     `json:"title"`
	Description     *string    `json:"description"`
	AudioURL        string     `json:"audio_url"`
	DurationSeconds *int       `json:"duration_seconds"`
	PublishedAt     *time.Time `json:"published_at"`
	CreatedAt       time.Time  `json:"created_at"`
	Podcast         *Podcast   `json:"podcast,omitempty"`
}

// SearchResult is one Podcast Index search hit.
type SearchResult struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
	Image       string `json:"image"`
	FeedURL     string `json:"url"`
	Link        string `json:"link"`
}
