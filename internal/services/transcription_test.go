package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"podscribe-backend/internal/models"
)

// ─── Fakes ───

type fakeJobStore struct {
	mu          sync.Mutex
	jobs        map[uuid.UUID]*models.TranscriptionJob
	transcripts map[uuid.UUID]*models.Transcript // keyed by job ID
	sink        *fakeTranscriptStore             // where completion lands transcripts
	createErr   error

	// missActiveOnce makes the next GetActiveByUserEpisode miss, simulating
	// the window where a concurrent request inserts between check and create.
	missActiveOnce bool
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{
		jobs:        make(map[uuid.UUID]*models.TranscriptionJob),
		transcripts: make(map[uuid.UUID]*models.Transcript),
	}
}

func (s *fakeJobStore) Create(_ context.Context, j *models.TranscriptionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	for _, existing := range s.jobs {
		if existing.UserID == j.UserID && existing.EpisodeID == j.EpisodeID && !existing.IsTerminal() {
			return &pgconn.PgError{Code: "23505", ConstraintName: "idx_jobs_active_user_episode"}
		}
	}
	j.ID = uuid.New()
	j.Status = models.JobStatusQueued
	j.Progress = 0
	j.CreatedAt = time.Now()
	s.jobs[j.ID] = j
	return nil
}

func (s *fakeJobStore) GetByID(_ context.Context, id uuid.UUID) (*models.TranscriptionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *j
	return &copied, nil
}

func (s *fakeJobStore) GetActiveByUserEpisode(_ context.Context, userID, episodeID uuid.UUID) (*models.TranscriptionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.missActiveOnce {
		s.missActiveOnce = false
		return nil, pgx.ErrNoRows
	}
	for _, j := range s.jobs {
		if j.UserID == userID && j.EpisodeID == episodeID && !j.IsTerminal() {
			copied := *j
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *fakeJobStore) CountCreatedSince(_ context.Context, userID uuid.UUID, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, j := range s.jobs {
		if j.UserID == userID && !j.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *fakeJobStore) UpdateProgress(_ context.Context, id uuid.UUID, percent int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.IsTerminal() {
		return false, nil
	}
	j.Status = models.JobStatusProcessing
	if percent > j.Progress {
		j.Progress = percent
	}
	return true, nil
}

func (s *fakeJobStore) CompleteWithTranscript(_ context.Context, jobID uuid.UUID, t *models.Transcript) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok || j.IsTerminal() {
		return false, nil
	}
	j.Status = models.JobStatusCompleted
	j.Progress = 100
	now := time.Now()
	j.CompletedAt = &now
	t.ID = uuid.New()
	t.CreatedAt = now
	s.transcripts[jobID] = t
	if s.sink != nil {
		s.sink.byID[t.ID] = t
	}
	return true, nil
}

func (s *fakeJobStore) Fail(_ context.Context, id uuid.UUID, message string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.IsTerminal() {
		return false, nil
	}
	j.Status = models.JobStatusFailed
	j.ErrorMessage = &message
	now := time.Now()
	j.CompletedAt = &now
	return true, nil
}

type fakeTranscriptStore struct {
	byID map[uuid.UUID]*models.Transcript
}

func (s *fakeTranscriptStore) GetByID(_ context.Context, id uuid.UUID) (*models.Transcript, error) {
	t, ok := s.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return t, nil
}

func (s *fakeTranscriptStore) GetByUserEpisode(_ context.Context, userID, episodeID uuid.UUID) (*models.Transcript, error) {
	for _, t := range s.byID {
		if t.UserID == userID && t.EpisodeID == episodeID {
			return t, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type fakeDispatcher struct {
	mu       sync.Mutex
	payloads []models.DispatchPayload
	err      error
}

func (d *fakeDispatcher) Enqueue(_ context.Context, payload models.DispatchPayload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.payloads = append(d.payloads, payload)
	return nil
}

type fakeEnricher struct {
	called chan uuid.UUID
}

func newFakeEnricher() *fakeEnricher {
	return &fakeEnricher{called: make(chan uuid.UUID, 1)}
}

func (e *fakeEnricher) Enrich(_ context.Context, transcriptID uuid.UUID) error {
	e.called <- transcriptID
	return nil
}

type transcriptionFixture struct {
	svc        *TranscriptionService
	jobs       *fakeJobStore
	episodes   *fakeEpisodeStore
	stored     *fakeTranscriptStore
	dispatcher *fakeDispatcher
	enricher   *fakeEnricher
	userID     uuid.UUID
	episodeID  uuid.UUID
}

func newTranscriptionFixture(t *testing.T, dailyQuota int) *transcriptionFixture {
	t.Helper()

	episodes := newFakeEpisodeStore()
	episode := &models.Episode{
		PodcastID: uuid.New(),
		Title:     "Episode 1",
		AudioURL:  "https://cdn.example.com/ep1.mp3",
	}
	if err := episodes.Upsert(context.Background(), episode); err != nil {
		t.Fatalf("Failed to seed episode: %v", err)
	}

	jobs := newFakeJobStore()
	stored := &fakeTranscriptStore{byID: make(map[uuid.UUID]*models.Transcript)}
	jobs.sink = stored
	dispatcher := &fakeDispatcher{}
	enricher := newFakeEnricher()

	return &transcriptionFixture{
		svc:        NewTranscriptionService(jobs, episodes, stored, dispatcher, enricher, dailyQuota),
		jobs:       jobs,
		episodes:   episodes,
		stored:     stored,
		dispatcher: dispatcher,
		enricher:   enricher,
		userID:     uuid.New(),
		episodeID:  episode.ID,
	}
}

// ─── Admission ───

func TestRequestTranscription_CreatesAndDispatches(t *testing.T) {
	f := newTranscriptionFixture(t, 20)

	job, err := f.svc.RequestTranscription(context.Background(), f.userID, f.episodeID)
	if err != nil {
		t.Fatalf("RequestTranscription failed: %v", err)
	}

	if job.Status != models.JobStatusQueued {
		t.Errorf("Expected queued status, got %q", job.Status)
	}
	if job.Progress != 0 {
		t.Errorf("Expected progress 0, got %d", job.Progress)
	}
	if len(f.dispatcher.payloads) != 1 {
		t.Fatalf("Expected 1 dispatch, got %d", len(f.dispatcher.payloads))
	}
	payload := f.dispatcher.payloads[0]
	if payload.JobID != job.ID || payload.AudioURL != "https://cdn.example.com/ep1.mp3" {
		t.Errorf("Unexpected dispatch payload: %+v", payload)
	}
}

func TestRequestTranscription_QuotaExceeded(t *testing.T) {
	f := newTranscriptionFixture(t, 2)

	// Fill today's quota with two terminal jobs; they still count.
	for i := 0; i < 2; i++ {
		msg := "failed"
		f.jobs.jobs[uuid.New()] = &models.TranscriptionJob{
			ID:           uuid.New(),
			UserID:       f.userID,
			EpisodeID:    uuid.New(),
			Status:       models.JobStatusFailed,
			ErrorMessage: &msg,
			CreatedAt:    time.Now(),
		}
	}

	_, err := f.svc.RequestTranscription(context.Background(), f.userID, f.episodeID)
	if _, ok := err.(*RateLimitError); !ok {
		t.Fatalf("Expected *RateLimitError, got %v", err)
	}
	if len(f.dispatcher.payloads) != 0 {
		t.Error("Expected no dispatch when quota is exhausted")
	}
}

func TestRequestTranscription_QuotaIgnoresOtherUsers(t *testing.T) {
	f := newTranscriptionFixture(t, 1)

	f.jobs.jobs[uuid.New()] = &models.TranscriptionJob{
		ID:        uuid.New(),
		UserID:    uuid.New(), // someone else
		EpisodeID: uuid.New(),
		Status:    models.JobStatusCompleted,
		CreatedAt: time.Now(),
	}

	if _, err := f.svc.RequestTranscription(context.Background(), f.userID, f.episodeID); err != nil {
		t.Fatalf("Expected admission under quota, got %v", err)
	}
}

func TestRequestTranscription_ReturnsExistingActiveJob(t *testing.T) {
	f := newTranscriptionFixture(t, 20)

	first, err := f.svc.RequestTranscription(context.Background(), f.userID, f.episodeID)
	if err != nil {
		t.Fatalf("First request failed: %v", err)
	}

	second, err := f.svc.RequestTranscription(context.Background(), f.userID, f.episodeID)
	if err != nil {
		t.Fatalf("Second request failed: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("Expected same job, got %s and %s", first.ID, second.ID)
	}
	if len(f.dispatcher.payloads) != 1 {
		t.Errorf("Expected a single dispatch, got %d", len(f.dispatcher.payloads))
	}
}

func TestRequestTranscription_TerminalJobAllowsRetry(t *testing.T) {
	f := newTranscriptionFixture(t, 20)

	first, err := f.svc.RequestTranscription(context.Background(), f.userID, f.episodeID)
	if err != nil {
		t.Fatalf("First request failed: %v", err)
	}
	if err := f.svc.ReportFailure(context.Background(), first.ID, "worker crashed"); err != nil {
		t.Fatalf("ReportFailure failed: %v", err)
	}

	second, err := f.svc.RequestTranscription(context.Background(), f.userID, f.episodeID)
	if err != nil {
		t.Fatalf("Retry after failure rejected: %v", err)
	}
	if second.ID == first.ID {
		t.Error("Expected a fresh job after the previous one failed")
	}
}

func TestRequestTranscription_EpisodeNotFound(t *testing.T) {
	f := newTranscriptionFixture(t, 20)

	_, err := f.svc.RequestTranscription(context.Background(), f.userID, uuid.New())
	if _, ok := err.(*NotFoundError); !ok {
		t.Fatalf("Expected *NotFoundError, got %v", err)
	}
}

func TestRequestTranscription_LosesInsertRace(t *testing.T) {
	f := newTranscriptionFixture(t, 20)

	// A competing request creates the job between our active-job check and
	// our insert. The fake store's uniqueness check surfaces 23505 and the
	// service resolves to the winner's job.
	winner := &models.TranscriptionJob{UserID: f.userID, EpisodeID: f.episodeID}
	if err := f.jobs.Create(context.Background(), winner); err != nil {
		t.Fatalf("Failed to seed winner job: %v", err)
	}
	f.jobs.missActiveOnce = true

	got, err := f.svc.RequestTranscription(context.Background(), f.userID, f.episodeID)
	if err != nil {
		t.Fatalf("RequestTranscription failed: %v", err)
	}
	if got.ID != winner.ID {
		t.Errorf("Expected winner's job %s, got %s", winner.ID, got.ID)
	}
}

func TestRequestTranscription_EnqueueFailureStillAdmits(t *testing.T) {
	f := newTranscriptionFixture(t, 20)
	f.dispatcher.err = fmt.Errorf("redis down")

	job, err := f.svc.RequestTranscription(context.Background(), f.userID, f.episodeID)
	if err != nil {
		t.Fatalf("Expected admission despite enqueue failure, got %v", err)
	}
	if job.Status != models.JobStatusQueued {
		t.Errorf("Expected queued status, got %q", job.Status)
	}
}

// ─── Progress ───

func TestReportProgress(t *testing.T) {
	f := newTranscriptionFixture(t, 20)
	job, err := f.svc.RequestTranscription(context.Background(), f.userID, f.episodeID)
	if err != nil {
		t.Fatalf("RequestTranscription failed: %v", err)
	}

	if err := f.svc.ReportProgress(context.Background(), job.ID, 40); err != nil {
		t.Fatalf("ReportProgress failed: %v", err)
	}

	got, _ := f.jobs.GetByID(context.Background(), job.ID)
	if got.Status != models.JobStatusProcessing {
		t.Errorf("Expected processing status, got %q", got.Status)
	}
	if got.Progress != 40 {
		t.Errorf("Expected progress 40, got %d", got.Progress)
	}

	// Out-of-order report never lowers progress.
	if err := f.svc.ReportProgress(context.Background(), job.ID, 25); err != nil {
		t.Fatalf("ReportProgress failed: %v", err)
	}
	got, _ = f.jobs.GetByID(context.Background(), job.ID)
	if got.Progress != 40 {
		t.Errorf("Expected progress to stay at 40, got %d", got.Progress)
	}
}

func TestReportProgress_ClampsPercent(t *testing.T) {
	f := newTranscriptionFixture(t, 20)
	job, _ := f.svc.RequestTranscription(context.Background(), f.userID, f.episodeID)

	if err := f.svc.ReportProgress(context.Background(), job.ID, 250); err != nil {
		t.Fatalf("ReportProgress failed: %v", err)
	}
	got, _ := f.jobs.GetByID(context.Background(), job.ID)
	if got.Progress != 100 {
		t.Errorf("Expected progress clamped to 100, got %d", got.Progress)
	}

	if err := f.svc.ReportProgress(context.Background(), job.ID, -5); err != nil {
		t.Fatalf("ReportProgress failed: %v", err)
	}
	got, _ = f.jobs.GetByID(context.Background(), job.ID)
	if got.Progress != 100 {
		t.Errorf("Expected progress unchanged after negative report, got %d", got.Progress)
	}
}

func TestReportProgress_UnknownJob(t *testing.T) {
	f := newTranscriptionFixture(t, 20)

	err := f.svc.ReportProgress(context.Background(), uuid.New(), 50)
	if _, ok := err.(*NotFoundError); !ok {
		t.Fatalf("Expected *NotFoundError, got %v", err)
	}
}

func TestReportProgress_TerminalJobIsNoOp(t *testing.T) {
	f := newTranscriptionFixture(t, 20)
	job, _ := f.svc.RequestTranscription(context.Background(), f.userID, f.episodeID)
	if err := f.svc.ReportFailure(context.Background(), job.ID, "oom"); err != nil {
		t.Fatalf("ReportFailure failed: %v", err)
	}

	if err := f.svc.ReportProgress(context.Background(), job.ID, 90); err != nil {
		t.Fatalf("Expected terminal job progress report to be acked, got %v", err)
	}
	got, _ := f.jobs.GetByID(context.Background(), job.ID)
	if got.Status != models.JobStatusFailed {
		t.Errorf("Terminal status changed to %q", got.Status)
	}
}

// ─── Completion ───

func TestReportCompletion(t *testing.T) {
	f := newTranscriptionFixture(t, 20)
	job, _ := f.svc.RequestTranscription(context.Background(), f.userID, f.episodeID)

	segments := []models.TranscriptSegment{
		{Start: 0, End: 4.5, Text: "Hello and welcome to the show."},
		{Start: 4.5, End: 9, Text: "Today we have a great guest."},
	}
	if err := f.svc.ReportCompletion(context.Background(), job.ID, segments, "en", 540); err != nil {
		t.Fatalf("ReportCompletion failed: %v", err)
	}

	got, _ := f.jobs.GetByID(context.Background(), job.ID)
	if got.Status != models.JobStatusCompleted {
		t.Errorf("Expected completed status, got %q", got.Status)
	}
	if got.Progress != 100 {
		t.Errorf("Expected progress 100, got %d", got.Progress)
	}
	if got.CompletedAt == nil {
		t.Error("Expected completed_at to be set")
	}

	transcript := f.jobs.transcripts[job.ID]
	if transcript == nil {
		t.Fatal("Expected transcript to be created with completion")
	}
	if transcript.WordCount == nil || *transcript.WordCount != 12 {
		t.Errorf("Unexpected word count: %v", transcript.WordCount)
	}
	if transcript.Language == nil || *transcript.Language != "en" {
		t.Errorf("Unexpected language: %v", transcript.Language)
	}

	select {
	case id := <-f.enricher.called:
		if id != transcript.ID {
			t.Errorf("Enriched wrong transcript: %s", id)
		}
	case <-time.After(2 * time.Second):
		t.Error("Expected enrichment to be triggered after completion")
	}
}

func TestReportCompletion_TranscriptReadableImmediately(t *testing.T) {
	f := newTranscriptionFixture(t, 20)
	job, _ := f.svc.RequestTranscription(context.Background(), f.userID, f.episodeID)

	segments := []models.TranscriptSegment{{Start: 0, End: 2, Text: "Read me right away."}}
	if err := f.svc.ReportCompletion(context.Background(), job.ID, segments, "en", 120); err != nil {
		t.Fatalf("ReportCompletion failed: %v", err)
	}

	// A poller that sees "completed" must be able to read the transcript in
	// the very next request, before enrichment has done anything.
	transcript, err := f.svc.GetTranscriptByEpisode(context.Background(), f.userID, f.episodeID)
	if err != nil {
		t.Fatalf("GetTranscriptByEpisode failed: %v", err)
	}
	if transcript == nil {
		t.Fatal("Expected transcript to be readable immediately after completion")
	}
	if transcript.ID != f.jobs.transcripts[job.ID].ID {
		t.Errorf("Read transcript %s, expected %s", transcript.ID, f.jobs.transcripts[job.ID].ID)
	}
	if byID, err := f.svc.GetTranscript(context.Background(), transcript.ID); err != nil || byID == nil {
		t.Errorf("Expected transcript readable by ID, got %v", err)
	}

	<-f.enricher.called
}

func TestReportCompletion_DuplicateIsNoOp(t *testing.T) {
	f := newTranscriptionFixture(t, 20)
	job, _ := f.svc.RequestTranscription(context.Background(), f.userID, f.episodeID)

	segments := []models.TranscriptSegment{{Start: 0, End: 1, Text: "Hi."}}
	if err := f.svc.ReportCompletion(context.Background(), job.ID, segments, "en", 60); err != nil {
		t.Fatalf("First completion failed: %v", err)
	}
	<-f.enricher.called

	if err := f.svc.ReportCompletion(context.Background(), job.ID, segments, "en", 60); err != nil {
		t.Fatalf("Duplicate completion should be acked, got %v", err)
	}

	select {
	case <-f.enricher.called:
		t.Error("Duplicate completion must not re-trigger enrichment")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReportCompletion_UnknownJob(t *testing.T) {
	f := newTranscriptionFixture(t, 20)

	err := f.svc.ReportCompletion(context.Background(), uuid.New(), nil, "en", 0)
	if _, ok := err.(*NotFoundError); !ok {
		t.Fatalf("Expected *NotFoundError, got %v", err)
	}
}

// ─── Failure ───

func TestReportFailure(t *testing.T) {
	f := newTranscriptionFixture(t, 20)
	job, _ := f.svc.RequestTranscription(context.Background(), f.userID, f.episodeID)

	if err := f.svc.ReportFailure(context.Background(), job.ID, "audio download failed"); err != nil {
		t.Fatalf("ReportFailure failed: %v", err)
	}

	got, _ := f.jobs.GetByID(context.Background(), job.ID)
	if got.Status != models.JobStatusFailed {
		t.Errorf("Expected failed status, got %q", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "audio download failed" {
		t.Errorf("Unexpected error message: %v", got.ErrorMessage)
	}
}

func TestReportFailure_DefaultMessage(t *testing.T) {
	f := newTranscriptionFixture(t, 20)
	job, _ := f.svc.RequestTranscription(context.Background(), f.userID, f.episodeID)

	if err := f.svc.ReportFailure(context.Background(), job.ID, ""); err != nil {
		t.Fatalf("ReportFailure failed: %v", err)
	}

	got, _ := f.jobs.GetByID(context.Background(), job.ID)
	if got.ErrorMessage == nil || *got.ErrorMessage != "Transcription failed" {
		t.Errorf("Unexpected error message: %v", got.ErrorMessage)
	}
}

func TestReportFailure_AfterCompletionIsNoOp(t *testing.T) {
	f := newTranscriptionFixture(t, 20)
	job, _ := f.svc.RequestTranscription(context.Background(), f.userID, f.episodeID)

	segments := []models.TranscriptSegment{{Start: 0, End: 1, Text: "Hi."}}
	if err := f.svc.ReportCompletion(context.Background(), job.ID, segments, "en", 60); err != nil {
		t.Fatalf("ReportCompletion failed: %v", err)
	}
	<-f.enricher.called

	if err := f.svc.ReportFailure(context.Background(), job.ID, "late failure"); err != nil {
		t.Fatalf("Expected late failure to be acked, got %v", err)
	}
	got, _ := f.jobs.GetByID(context.Background(), job.ID)
	if got.Status != models.JobStatusCompleted {
		t.Errorf("Completed job flipped to %q", got.Status)
	}
}

// ─── Reads ───

func TestGetTranscriptByEpisode_NoneYet(t *testing.T) {
	f := newTranscriptionFixture(t, 20)

	transcript, err := f.svc.GetTranscriptByEpisode(context.Background(), f.userID, f.episodeID)
	if err != nil {
		t.Fatalf("GetTranscriptByEpisode failed: %v", err)
	}
	if transcript != nil {
		t.Errorf("Expected nil transcript, got %+v", transcript)
	}
}

func TestGetTranscript_NotFound(t *testing.T) {
	f := newTranscriptionFixture(t, 20)

	_, err := f.svc.GetTranscript(context.Background(), uuid.New())
	if _, ok := err.(*NotFoundError); !ok {
		t.Fatalf("Expected *NotFoundError, got %v", err)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	f := newTranscriptionFixture(t, 20)

	_, err := f.svc.GetJob(context.Background(), uuid.New())
	if _, ok := err.(*NotFoundError); !ok {
		t.Fatalf("Expected *NotFoundError, got %v", err)
	}
}

func TestCountWords(t *testing.T) {
	segments := []models.TranscriptSegment{
		{Text: "one two three"},
		{Text: "  four   five "},
		{Text: ""},
	}
	if got := countWords(segments); got != 5 {
		t.Errorf("countWords = %d, want 5", got)
	}
}

func TestStartOfDayUTC(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	now := time.Date(2025, 3, 10, 2, 30, 0, 0, loc) // 2025-03-09 21:30 UTC

	got := startOfDayUTC(now)
	want := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("startOfDayUTC = %v, want %v", got, want)
	}
}
