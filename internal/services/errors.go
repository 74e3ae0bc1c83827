package services

// Error taxonomy surfaced to handlers. handleServiceError maps these to HTTP
// status codes.

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type UnauthorizedError struct{ Message string }

func (e *UnauthorizedError) Error() string { return e.Message }

// RateLimitError reports the daily transcription quota being exhausted.
type RateLimitError struct{ Message string }

func (e *RateLimitError) Error() string { return e.Message }

// UpstreamError wraps a failed call to an external collaborator: feed fetch,
// worker dispatch or the text-generation API.
type UpstreamError struct {
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// EmptyInputError means a transcript had no segments to enrich.
type EmptyInputError struct{ Message string }

func (e *EmptyInputError) Error() string { return e.Message }
