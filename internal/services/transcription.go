package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"podscribe-backend/internal/models"
	"podscribe-backend/internal/repository"
)

type jobStore interface {
	Create(ctx context.Context, j *models.TranscriptionJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.TranscriptionJob, error)
	GetActiveByUserEpisode(ctx context.Context, userID, episodeID uuid.UUID) (*models.TranscriptionJob, error)
	CountCreatedSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
	UpdateProgress(ctx context.Context, id uuid.UUID, percent int) (bool, error)
	CompleteWithTranscript(ctx context.Context, jobID uuid.UUID, t *models.Transcript) (bool, error)
	Fail(ctx context.Context, id uuid.UUID, message string) (bool, error)
}

type transcriptStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Transcript, error)
	GetByUserEpisode(ctx context.Context, userID, episodeID uuid.UUID) (*models.Transcript, error)
}

// jobDispatcher hands a job to the external transcription worker. Enqueue
// must be cheap; delivery happens out of band.
type jobDispatcher interface {
	Enqueue(ctx context.Context, payload models.DispatchPayload) error
}

// transcriptEnricher attaches summary/chapters/topics after completion.
type transcriptEnricher interface {
	Enrich(ctx context.Context, transcriptID uuid.UUID) error
}

// TranscriptionService is the job state machine: queued -> processing ->
// {completed, failed}. Terminal states are never left. All durable state
// lives in the store; the service itself is stateless.
type TranscriptionService struct {
	jobs        jobStore
	episodes    episodeStore
	transcripts transcriptStore
	dispatcher  jobDispatcher
	enricher    transcriptEnricher
	dailyQuota  int
}

func NewTranscriptionService(
	jobs jobStore,
	episodes episodeStore,
	transcripts transcriptStore,
	dispatcher jobDispatcher,
	enricher transcriptEnricher,
	dailyQuota int,
) *TranscriptionService {
	return &TranscriptionService{
		jobs:        jobs,
		episodes:    episodes,
		transcripts: transcripts,
		dispatcher:  dispatcher,
		enricher:    enricher,
		dailyQuota:  dailyQuota,
	}
}

// RequestTranscription admits or rejects a transcription request. Admission
// is idempotent under concurrent duplicates: both callers resolve to the same
// job via the partial unique index on (user, episode, live status).
func (s *TranscriptionService) RequestTranscription(ctx context.Context, userID, episodeID uuid.UUID) (*models.TranscriptionJob, error) {
	since := startOfDayUTC(time.Now())
	count, err := s.jobs.CountCreatedSince(ctx, userID, since)
	if err != nil {
		return nil, err
	}
	if count >= s.dailyQuota {
		return nil, &RateLimitError{Message: fmt.Sprintf("Daily limit of %d transcriptions reached. Try again tomorrow.", s.dailyQuota)}
	}

	// Fast path: an active job for this (user, episode) already exists.
	if job, err := s.jobs.GetActiveByUserEpisode(ctx, userID, episodeID); err == nil {
		return job, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	episode, err := s.episodes.GetByID(ctx, episodeID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Message: "Episode not found"}
	}
	if err != nil {
		return nil, err
	}

	job := &models.TranscriptionJob{UserID: userID, EpisodeID: episodeID}
	if err := s.jobs.Create(ctx, job); err != nil {
		if repository.IsUniqueViolation(err) {
			// Lost the check-then-insert race; the winner's job is ours too.
			return s.jobs.GetActiveByUserEpisode(ctx, userID, episodeID)
		}
		return nil, err
	}

	// Fire-and-forget dispatch. A failed enqueue is logged, not surfaced:
	// the job stays queued and the reaper deadline covers it.
	payload := models.DispatchPayload{
		JobID:     job.ID,
		EpisodeID: episodeID,
		AudioURL:  episode.AudioURL,
		UserID:    userID,
	}
	if err := s.dispatcher.Enqueue(ctx, payload); err != nil {
		log.Printf("failed to enqueue dispatch for job %s: %v", job.ID, err)
	}

	return job, nil
}

// ReportProgress applies a worker progress report. Percent is clamped to
// [0,100]; a report lower than the stored progress is ignored, which makes
// out-of-order delivery harmless. The first report moves queued -> processing.
func (s *TranscriptionService) ReportProgress(ctx context.Context, jobID uuid.UUID, percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	applied, err := s.jobs.UpdateProgress(ctx, jobID, percent)
	if err != nil {
		return err
	}
	if !applied {
		return s.ackTerminal(ctx, jobID)
	}
	return nil
}

// ReportCompletion moves the job to completed and creates its transcript in
// the same transaction, then triggers enrichment asynchronously. A duplicate
// completion report is acked without effect.
func (s *TranscriptionService) ReportCompletion(ctx context.Context, jobID uuid.UUID, segments []models.TranscriptSegment, language string, durationSeconds int) error {
	job, err := s.jobs.GetByID(ctx, jobID)
	if errors.Is(err, pgx.ErrNoRows) {
		return &NotFoundError{Message: "Job not found"}
	}
	if err != nil {
		return err
	}

	wordCount := countWords(segments)
	transcript := &models.Transcript{
		EpisodeID:       job.EpisodeID,
		UserID:          job.UserID,
		Segments:        segments,
		WordCount:       &wordCount,
		DurationSeconds: &durationSeconds,
	}
	if language != "" {
		transcript.Language = &language
	}

	created, err := s.jobs.CompleteWithTranscript(ctx, jobID, transcript)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}

	// Enrichment is fire-and-forget: its failure never reverts completion.
	transcriptID := transcript.ID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := s.enricher.Enrich(ctx, transcriptID); err != nil {
			log.Printf("enrichment failed for transcript %s: %v", transcriptID, err)
		}
	}()

	return nil
}

// ReportFailure records a terminal failure with the worker's message.
func (s *TranscriptionService) ReportFailure(ctx context.Context, jobID uuid.UUID, message string) error {
	if message == "" {
		message = "Transcription failed"
	}

	applied, err := s.jobs.Fail(ctx, jobID, message)
	if err != nil {
		return err
	}
	if !applied {
		return s.ackTerminal(ctx, jobID)
	}
	return nil
}

func (s *TranscriptionService) GetJob(ctx context.Context, id uuid.UUID) (*models.TranscriptionJob, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Message: "Job not found"}
	}
	return job, err
}

func (s *TranscriptionService) GetTranscript(ctx context.Context, id uuid.UUID) (*models.Transcript, error) {
	transcript, err := s.transcripts.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Message: "Transcript not found"}
	}
	return transcript, err
}

// GetTranscriptByEpisode returns nil, nil when no transcript exists yet, so
// callers can decide between "show transcript" and "offer to transcribe".
func (s *TranscriptionService) GetTranscriptByEpisode(ctx context.Context, userID, episodeID uuid.UUID) (*models.Transcript, error) {
	transcript, err := s.transcripts.GetByUserEpisode(ctx, userID, episodeID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return transcript, err
}

// ackTerminal distinguishes "job gone" from "job already terminal". Reports
// against terminal jobs are acked as no-ops.
func (s *TranscriptionService) ackTerminal(ctx context.Context, jobID uuid.UUID) error {
	_, err := s.jobs.GetByID(ctx, jobID)
	if errors.Is(err, pgx.ErrNoRows) {
		return &NotFoundError{Message: "Job not found"}
	}
	return err
}

func countWords(segments []models.TranscriptSegment) int {
	total := 0
	for _, seg := range segments {
		total += len(strings.Fields(seg.Text))
	}
	return total
}

func startOfDayUTC(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
