package services

import (
	"context"
	"log"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"podscribe-backend/internal/models"
)

// Feeds are capped to bound payload size and write volume per ingest.
const maxEpisodesPerFeed = 50

type podcastStore interface {
	Upsert(ctx context.Context, p *models.Podcast) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Podcast, error)
}

type episodeStore interface {
	Upsert(ctx context.Context, e *models.Episode) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Episode, error)
	ListByPodcast(ctx context.Context, podcastID uuid.UUID, limit int) ([]*models.Episode, error)
}

type FeedService struct {
	parser   *gofeed.Parser
	podcasts podcastStore
	episodes episodeStore
}

func NewFeedService(podcasts podcastStore, episodes episodeStore) *FeedService {
	parser := gofeed.NewParser()
	parser.UserAgent = "PodScribe/1.0"

	return &FeedService{
		parser:   parser,
		podcasts: podcasts,
		episodes: episodes,
	}
}

// Ingest fetches and parses the feed, upserts the podcast and its episodes,
// and returns the podcast with its most recent episodes from the store. The
// returned list reflects accumulated history, not just this fetch.
func (s *FeedService) Ingest(ctx context.Context, feedURL string) (*models.Podcast, []*models.Episode, error) {
	feed, err := s.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, nil, &UpstreamError{Message: "Failed to fetch podcast feed", Err: err}
	}

	podcast := podcastFromFeed(feed, feedURL)
	if err := s.podcasts.Upsert(ctx, podcast); err != nil {
		return nil, nil, err
	}

	// In-batch duplicates of the same audio URL collapse to one row; a
	// failing row is skipped, never the whole batch.
	seen := make(map[string]bool)
	stored := 0
	for _, item := range feed.Items {
		if stored >= maxEpisodesPerFeed {
			break
		}

		episode, ok := episodeFromItem(item, podcast.ID)
		if !ok {
			continue
		}
		if seen[episode.AudioURL] {
			continue
		}
		seen[episode.AudioURL] = true

		if err := s.episodes.Upsert(ctx, episode); err != nil {
			log.Printf("failed to upsert episode %q for podcast %s: %v", episode.Title, podcast.ID, err)
			continue
		}
		stored++
	}

	episodes, err := s.episodes.ListByPodcast(ctx, podcast.ID, maxEpisodesPerFeed)
	if err != nil {
		return nil, nil, err
	}

	return podcast, episodes, nil
}

func podcastFromFeed(feed *gofeed.Feed, feedURL string) *models.Podcast {
	p := &models.Podcast{
		Title:      feed.Title,
		RSSFeedURL: feedURL,
	}
	if p.Title == "" {
		p.Title = "Unknown Podcast"
	}

	author := ""
	if feed.Author != nil {
		author = feed.Author.Name
	}
	if feed.ITunesExt != nil && feed.ITunesExt.Author != "" {
		author = feed.ITunesExt.Author
	}
	if author != "" {
		p.Author = &author
	}

	if feed.Description != "" {
		desc := feed.Description
		p.Description = &desc
	}

	image := ""
	if feed.Image != nil {
		image = feed.Image.URL
	}
	if feed.ITunesExt != nil && feed.ITunesExt.Image != "" {
		image = feed.ITunesExt.Image
	}
	if image != "" {
		p.ImageURL = &image
	}

	return p
}

// episodeFromItem maps one feed item, returning ok=false when the item has no
// resolvable audio enclosure. Individual field parse trouble degrades to null,
// never fails the item.
func episodeFromItem(item *gofeed.Item, podcastID uuid.UUID) (*models.Episode, bool) {
	audioURL := ""
	for _, enc := range item.Enclosures {
		if enc.URL == "" {
			continue
		}
		if strings.HasPrefix(enc.Type, "audio/") || enc.Type == "" {
			audioURL = enc.URL
			break
		}
	}
	if audioURL == "" {
		return nil, false
	}

	e := &models.Episode{
		PodcastID: podcastID,
		Title:     item.Title,
		AudioURL:  audioURL,
	}
	if e.Title == "" {
		e.Title = "Untitled"
	}

	desc := item.Description
	if desc == "" && item.ITunesExt != nil {
		desc = item.ITunesExt.Summary
	}
	if desc != "" {
		e.Description = &desc
	}

	if item.ITunesExt != nil {
		if seconds, ok := parseDuration(item.ITunesExt.Duration); ok {
			e.DurationSeconds = &seconds
		}
	}

	if item.PublishedParsed != nil {
		published := item.PublishedParsed.UTC()
		e.PublishedAt = &published
	}

	return e, true
}

// parseDuration accepts "H:MM:SS", "M:SS" or plain integer seconds.
func parseDuration(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	if !strings.Contains(s, ":") {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	}

	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}

	total := 0
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return 0, false
		}
		total = total*60 + n
	}
	return total, true
}
