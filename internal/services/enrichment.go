package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"podscribe-backend/internal/models"
)

// Transcript text is truncated before the model call to bound cost and
// latency; roughly 12k tokens.
const enrichmentCharBudget = 48000

const enrichmentPrompt = `You are a podcast summarization assistant. Given a transcript, return a JSON object with:
- "summary": a concise 3-sentence summary of the episode
- "chapters": an array of up to 8 chapter objects, each with { "title": string, "timestamp": number (seconds), "summary": string (1 sentence) }
- "key_topics": an array of 3-6 short topic strings

Return only valid JSON. No markdown, no explanation.

Transcript:
`

type enrichmentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Transcript, error)
	UpdateEnrichment(ctx context.Context, id uuid.UUID, summary *string, chapters []models.Chapter, topics []string) error
}

type textGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// EnrichmentService derives summary, chapters and key topics from a completed
// transcript. It only ever fills null fields; a failed enrichment leaves the
// transcript usable without a summary.
type EnrichmentService struct {
	transcripts enrichmentStore
	generator   textGenerator
}

func NewEnrichmentService(transcripts enrichmentStore, generator textGenerator) *EnrichmentService {
	return &EnrichmentService{
		transcripts: transcripts,
		generator:   generator,
	}
}

func (s *EnrichmentService) Enrich(ctx context.Context, transcriptID uuid.UUID) error {
	transcript, err := s.transcripts.GetByID(ctx, transcriptID)
	if errors.Is(err, pgx.ErrNoRows) {
		return &NotFoundError{Message: "Transcript not found"}
	}
	if err != nil {
		return err
	}

	if len(transcript.Segments) == 0 {
		return &EmptyInputError{Message: "Transcript has no segments to summarize"}
	}

	text := truncateToBudget(concatSegments(transcript.Segments), enrichmentCharBudget)

	raw, err := s.generator.GenerateText(ctx, enrichmentPrompt+text)
	if err != nil {
		return &UpstreamError{Message: "Summary generation failed", Err: err}
	}

	parsed, ok := parseEnrichment(raw)
	if !ok {
		return &UpstreamError{Message: "Summary generation returned unparseable output"}
	}

	if err := s.transcripts.UpdateEnrichment(ctx, transcriptID, parsed.Summary, parsed.Chapters, parsed.KeyTopics); err != nil {
		return err
	}

	log.Printf("enriched transcript %s (summary: %t, chapters: %d, topics: %d)",
		transcriptID, parsed.Summary != nil, len(parsed.Chapters), len(parsed.KeyTopics))
	return nil
}

type enrichmentResult struct {
	Summary   *string          `json:"summary"`
	Chapters  []models.Chapter `json:"chapters"`
	KeyTopics []string         `json:"key_topics"`
}

// parseEnrichment tries a strict JSON parse first, then falls back to the
// first balanced top-level {...} block for responses wrapped in prose or
// markdown fences.
func parseEnrichment(raw string) (enrichmentResult, bool) {
	var result enrichmentResult

	trimmed := strings.TrimSpace(raw)
	if json.Unmarshal([]byte(trimmed), &result) == nil {
		return result, true
	}

	block, ok := extractJSONObject(trimmed)
	if !ok {
		return enrichmentResult{}, false
	}
	if json.Unmarshal([]byte(block), &result) != nil {
		return enrichmentResult{}, false
	}
	return result, true
}

// extractJSONObject returns the first balanced top-level JSON object in s.
// Braces inside string literals do not count.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}
	return "", false
}

// truncateToBudget cuts s to at most limit bytes without splitting a rune;
// the model API rejects strings that are not valid UTF-8.
func truncateToBudget(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	s = s[:limit]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

func concatSegments(segments []models.TranscriptSegment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg.Text != "" {
			parts = append(parts, seg.Text)
		}
	}
	return strings.Join(parts, " ")
}
