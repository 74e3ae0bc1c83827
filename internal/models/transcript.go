package models

import (
	"time"

	"github.com/google/uuid"
)

type Transcript struct {
	ID              uuid.UUID           `json:"id"`
	JobID           uuid.UUID           `json:"job_id"`
	EpisodeID       uuid.UUID           `json:"episode_id"`
	UserID          uuid.UUID           `json:"user_id"`
	Segments        []TranscriptSegment `json:"segments"`
	Summary         *string             `json:"summary"`
	Chapters        []Chapter           `json:"chapters"`
	KeyTopics       []string            `json:"key_topics"`
	Language        *string             `json:"language"`
	DurationSeconds *int                `json:"duration_seconds"`
	WordCount       *int                `json:"word_count"`
	CreatedAt       time.Time           `json:"created_at"`
	Episode         *Episode            `json:"episode,omitempty"`
}

type TranscriptSegment struct {
	Start   float64       `json:"start"`
	End     float64       `json:"end"`
	Text    string        `json:"text"`
	Speaker *string       `json:"speaker,omitempty"`
	Words   []SegmentWord `json:"words,omitempty"`
}

// SegmentWord carries word-level timing from the alignment pass.
type SegmentWord struct {
	Word    string  `json:"word"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Score   float64 `json:"score"`
	Speaker *string `json:"speaker,omitempty"`
}

type Chapter struct {
	Title     string  `json:"title"`
	Timestamp float64 `json:"timestamp"`
	Summary   string  `json:"summary"`
}
