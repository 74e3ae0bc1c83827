package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"podscribe-backend/internal/models"
)

type PodcastRepo struct {
	pool *pgxpool.Pool
}

func NewPodcastRepo(pool *pgxpool.Pool) *PodcastRepo {
	return &PodcastRepo{pool: pool}
}

// Upsert inserts the podcast keyed by its feed URL, refreshing metadata on
// conflict. Re-ingesting the same feed never creates a second row.
func (r *PodcastRepo) Upsert(ctx context.Context, p *models.Podcast) error {
	query := `INSERT INTO podcasts (title, author, description, image_url, rss_feed_url, spotify_url, apple_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (rss_feed_url) DO UPDATE SET
			title = EXCLUDED.title,
			author = EXCLUDED.author,
			description = EXCLUDED.description,
			image_url = EXCLUDED.image_url
		RETURNING id, created_at`

	return r.pool.QueryRow(ctx, query,
		p.Title, p.Author, p.Description, p.ImageURL, p.RSSFeedURL, p.SpotifyURL, p.AppleURL,
	).Scan(&p.ID, &p.CreatedAt)
}

func (r *PodcastRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Podcast, error) {
	p := &models.Podcast{}
	query := `SELECT id, title, author, description, image_url, rss_feed_url, spotify_url, apple_url, created_at
		FROM podcasts WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Title, &p.Author, &p.Description, &p.ImageURL,
		&p.RSSFeedURL, &p.SpotifyURL, &p.AppleURL, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}
