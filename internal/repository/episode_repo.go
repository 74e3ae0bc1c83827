package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"podscribe-backend/internal/models"
)

type EpisodeRepo struct {
	pool *pgxpool.Pool
}

func NewEpisodeRepo(pool *pgxpool.Pool) *EpisodeRepo {
	return &EpisodeRepo{pool: pool}
}

// Upsert inserts the episode keyed by (podcast_id, audio_url) so re-ingestion
// refreshes metadata instead of duplicating rows.
func (r *EpisodeRepo) Upsert(ctx context.Context, e *models.Episode) error {
	query := `INSERT INTO episodes (podcast_id, title, description, audio_url, duration_seconds, published_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (podcast_id, audio_url) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			duration_seconds = EXCLUDED.duration_seconds,
			published_at = EXCLUDED.published_at
		RETURNING id, created_at`

	return r.pool.QueryRow(ctx, query,
		e.PodcastID, e.Title, e.Description, e.AudioURL, e.DurationSeconds, e.PublishedAt,
	).Scan(&e.ID, &e.CreatedAt)
}

func (r *EpisodeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Episode, error) {
	e := &models.Episode{}
	query := `SELECT id, podcast_id, title, description, audio_url, duration_seconds, published_at, created_at
		FROM episodes WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&e.ID, &e.PodcastID, &e.Title, &e.Description, &e.AudioURL,
		&e.DurationSeconds, &e.PublishedAt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListByPodcast returns the podcast's most recent episodes by publish date.
func (r *EpisodeRepo) ListByPodcast(ctx context.Context, podcastID uuid.UUID, limit int) ([]*models.Episode, error) {
	query := `SELECT id, podcast_id, title, description, audio_url, duration_seconds, published_at, created_at
		FROM episodes
		WHERE podcast_id = $1
		ORDER BY published_at DESC NULLS LAST
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, podcastID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	episodes := []*models.Episode{}
	for rows.Next() {
		e := &models.Episode{}
		if err := rows.Scan(
			&e.ID, &e.PodcastID, &e.Title, &e.Description, &e.AudioURL,
			&e.DurationSeconds, &e.PublishedAt, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		episodes = append(episodes, e)
	}
	return episodes, rows.Err()
}
