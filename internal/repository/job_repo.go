package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"podscribe-backend/internal/models"
)

type JobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

// Create inserts a new queued job. A duplicate active (user, episode) pair
// violates idx_jobs_active_user_episode; the caller is expected to catch the
// unique violation and fall back to GetActiveByUserEpisode.
func (r *JobRepo) Create(ctx context.Context, j *models.TranscriptionJob) error {
	j.Status = models.JobStatusQueued
	j.Progress = 0

	query := `INSERT INTO transcription_jobs (user_id, episode_id, status, progress)
		VALUES ($1, $2, $3, $4) RETURNING id, created_at`

	return r.pool.QueryRow(ctx, query,
		j.UserID, j.EpisodeID, j.Status, j.Progress,
	).Scan(&j.ID, &j.CreatedAt)
}

func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.TranscriptionJob, error) {
	j := &models.TranscriptionJob{}
	e := &models.Episode{}
	p := &models.Podcast{}

	query := `SELECT j.id, j.user_id, j.episode_id, j.status, j.progress, j.error_message, j.created_at, j.completed_at,
			e.id, e.podcast_id, e.title, e.description, e.audio_url, e.duration_seconds, e.published_at, e.created_at,
			p.id, p.title, p.author, p.description, p.image_url, p.rss_feed_url, p.spotify_url, p.apple_url, p.created_at
		FROM transcription_jobs j
		JOIN episodes e ON e.id = j.episode_id
		JOIN podcasts p ON p.id = e.podcast_id
		WHERE j.id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&j.ID, &j.UserID, &j.EpisodeID, &j.Status, &j.Progress, &j.ErrorMessage, &j.CreatedAt, &j.CompletedAt,
		&e.ID, &e.PodcastID, &e.Title, &e.Description, &e.AudioURL, &e.DurationSeconds, &e.PublishedAt, &e.CreatedAt,
		&p.ID, &p.Title, &p.Author, &p.Description, &p.ImageURL, &p.RSSFeedURL, &p.SpotifyURL, &p.AppleURL, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Podcast = p
	j.Episode = e
	return j, nil
}

// GetActiveByUserEpisode returns the user's queued or processing job for the
// episode, or pgx.ErrNoRows.
func (r *JobRepo) GetActiveByUserEpisode(ctx context.Context, userID, episodeID uuid.UUID) (*models.TranscriptionJob, error) {
	j := &models.TranscriptionJob{}
	query := `SELECT id, user_id, episode_id, status, progress, error_message, created_at, completed_at
		FROM transcription_jobs
		WHERE user_id = $1 AND episode_id = $2 AND status IN ('queued', 'processing')`

	err := r.pool.QueryRow(ctx, query, userID, episodeID).Scan(
		&j.ID, &j.UserID, &j.EpisodeID, &j.Status, &j.Progress,
		&j.ErrorMessage, &j.CreatedAt, &j.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return j, nil
}

// CountCreatedSince counts jobs the user created at or after the cutoff,
// regardless of status. Used for the daily quota.
func (r *JobRepo) CountCreatedSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM transcription_jobs WHERE user_id = $1 AND created_at >= $2",
		userID, since,
	).Scan(&count)
	return count, err
}

// UpdateProgress applies a worker progress report. The status guard keeps
// terminal jobs frozen and GREATEST makes out-of-order reports harmless: a
// lower percent than already stored is a no-op.
func (r *JobRepo) UpdateProgress(ctx context.Context, id uuid.UUID, percent int) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE transcription_jobs
		 SET status = 'processing', progress = GREATEST(progress, $2)
		 WHERE id = $1 AND status IN ('queued', 'processing')`,
		id, percent,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CompleteWithTranscript marks the job completed and creates its transcript in
// a single transaction, so a poller that observes "completed" can always read
// the transcript.
func (r *JobRepo) CompleteWithTranscript(ctx context.Context, jobID uuid.UUID, t *models.Transcript) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE transcription_jobs
		 SET status = 'completed', progress = 100, completed_at = NOW()
		 WHERE id = $1 AND status IN ('queued', 'processing')`,
		jobID,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		// Already terminal; duplicate completion report.
		return false, nil
	}

	segments, err := json.Marshal(t.Segments)
	if err != nil {
		return false, fmt.Errorf("failed to encode segments: %w", err)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO transcripts (job_id, episode_id, user_id, segments, language, duration_seconds, word_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at`,
		jobID, t.EpisodeID, t.UserID, segments, t.Language, t.DurationSeconds, t.WordCount,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	t.JobID = jobID
	return true, nil
}

// Fail records a terminal failure. No-op when the job is already terminal.
func (r *JobRepo) Fail(ctx context.Context, id uuid.UUID, message string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE transcription_jobs
		 SET status = 'failed', error_message = $2, completed_at = NOW()
		 WHERE id = $1 AND status IN ('queued', 'processing')`,
		id, message,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// FailStaleQueued fails jobs that never left 'queued' within maxAge, the
// deadline for a dispatch that was silently dropped.
func (r *JobRepo) FailStaleQueued(ctx context.Context, maxAge time.Duration, message string) (int64, error) {
	cutoff := time.Now().Add(-maxAge)
	tag, err := r.pool.Exec(ctx,
		`UPDATE transcription_jobs
		 SET status = 'failed', error_message = $2, completed_at = NOW()
		 WHERE status = 'queued' AND progress = 0 AND created_at < $1`,
		cutoff, message,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// IsUniqueViolation reports a Postgres unique_violation (23505), which the
// orchestrator converts into "return the existing job".
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
