package models

import (
	"time"

	"github.com/google/uuid"
)

// Job statuses. Terminal statuses are never left once reached.
const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

type TranscriptionJob struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	EpisodeID    uuid.UUID  `json:"episode_id"`
	Status       string     `json:"status"` // "queued" | "processing" | "completed" | "failed"
	Progress     int        `json:"progress"`
	ErrorMessage *string    `json:"error_message"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	Episode      *Episode   `json:"episode,omitempty"`
}

// IsTerminal reports whether the job can no longer change state.
func (j *TranscriptionJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// DispatchPayload is the message pushed on the dispatch queue and POSTed to
// the external transcription worker.
type DispatchPayload struct {
	JobID     uuid.UUID `json:"job_id"`
	EpisodeID uuid.UUID `json:"episode_id"`
	AudioURL  string    `json:"audio_url"`
	UserID    uuid.UUID `json:"user_id"`
	Attempt   int       `json:"attempt"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
