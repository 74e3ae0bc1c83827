package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"podscribe-backend/internal/models"
)

type TranscriptRepo struct {
	pool *pgxpool.Pool
}

func NewTranscriptRepo(pool *pgxpool.Pool) *TranscriptRepo {
	return &TranscriptRepo{pool: pool}
}

func (r *TranscriptRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Transcript, error) {
	t := &models.Transcript{}
	e := &models.Episode{}
	p := &models.Podcast{}
	var segments, chapters []byte

	query := `SELECT t.id, t.job_id, t.episode_id, t.user_id, t.segments, t.summary, t.chapters, t.key_topics,
			t.language, t.duration_seconds, t.word_count, t.created_at,
			e.id, e.podcast_id, e.title, e.description, e.audio_url, e.duration_seconds, e.published_at, e.created_at,
			p.id, p.title, p.author, p.description, p.image_url, p.rss_feed_url, p.spotify_url, p.apple_url, p.created_at
		FROM transcripts t
		JOIN episodes e ON e.id = t.episode_id
		JOIN podcasts p ON p.id = e.podcast_id
		WHERE t.id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.JobID, &t.EpisodeID, &t.UserID, &segments, &t.Summary, &chapters, &t.KeyTopics,
		&t.Language, &t.DurationSeconds, &t.WordCount, &t.CreatedAt,
		&e.ID, &e.PodcastID, &e.Title, &e.Description, &e.AudioURL, &e.DurationSeconds, &e.PublishedAt, &e.CreatedAt,
		&p.ID, &p.Title, &p.Author, &p.Description, &p.ImageURL, &p.RSSFeedURL, &p.SpotifyURL, &p.AppleURL, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := decodeTranscriptJSON(t, segments, chapters); err != nil {
		return nil, err
	}
	e.Podcast = p
	t.Episode = e
	return t, nil
}

// GetByUserEpisode returns the user's transcript for the episode, or
// pgx.ErrNoRows. Newest first when re-transcriptions left more than one.
func (r *TranscriptRepo) GetByUserEpisode(ctx context.Context, userID, episodeID uuid.UUID) (*models.Transcript, error) {
	t := &models.Transcript{}
	var segments, chapters []byte

	query := `SELECT id, job_id, episode_id, user_id, segments, summary, chapters, key_topics,
			language, duration_seconds, word_count, created_at
		FROM transcripts
		WHERE user_id = $1 AND episode_id = $2
		ORDER BY created_at DESC
		LIMIT 1`

	err := r.pool.QueryRow(ctx, query, userID, episodeID).Scan(
		&t.ID, &t.JobID, &t.EpisodeID, &t.UserID, &segments, &t.Summary, &chapters, &t.KeyTopics,
		&t.Language, &t.DurationSeconds, &t.WordCount, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := decodeTranscriptJSON(t, segments, chapters); err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateEnrichment writes the parsed subset of {summary, chapters, topics}.
// Nil fields keep whatever is already stored.
func (r *TranscriptRepo) UpdateEnrichment(ctx context.Context, id uuid.UUID, summary *string, chapters []models.Chapter, topics []string) error {
	var chaptersJSON []byte
	if chapters != nil {
		var err error
		chaptersJSON, err = json.Marshal(chapters)
		if err != nil {
			return fmt.Errorf("failed to encode chapters: %w", err)
		}
	}

	_, err := r.pool.Exec(ctx,
		`UPDATE transcripts SET
			summary = COALESCE($2, summary),
			chapters = COALESCE($3, chapters),
			key_topics = COALESCE($4, key_topics)
		 WHERE id = $1`,
		id, summary, chaptersJSON, topics,
	)
	return err
}

func decodeTranscriptJSON(t *models.Transcript, segments, chapters []byte) error {
	if len(segments) > 0 {
		if err := json.Unmarshal(segments, &t.Segments); err != nil {
			return fmt.Errorf("failed to decode segments: %w", err)
		}
	}
	if len(chapters) > 0 {
		if err := json.Unmarshal(chapters, &t.Chapters); err != nil {
			return fmt.Errorf("failed to decode chapters: %w", err)
		}
	}
	return nil
}
