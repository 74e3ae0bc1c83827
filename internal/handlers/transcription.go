package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"podscribe-backend/internal/middleware"
	"podscribe-backend/internal/models"
)

type transcriptionService interface {
	RequestTranscription(ctx context.Context, userID, episodeID uuid.UUID) (*models.TranscriptionJob, error)
	GetJob(ctx context.Context, id uuid.UUID) (*models.TranscriptionJob, error)
	GetTranscript(ctx context.Context, id uuid.UUID) (*models.Transcript, error)
	GetTranscriptByEpisode(ctx context.Context, userID, episodeID uuid.UUID) (*models.Transcript, error)
}

type TranscriptionHandler struct {
	transcriptions transcriptionService
}

func NewTranscriptionHandler(transcriptions transcriptionService) *TranscriptionHandler {
	return &TranscriptionHandler{transcriptions: transcriptions}
}

// Request admits a new transcription job for the authenticated user.
func (h *TranscriptionHandler) Request(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EpisodeID uuid.UUID `json:"episode_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EpisodeID == uuid.Nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"episode_id": "episode_id is required"}, r))
		return
	}

	userID := middleware.GetUserID(r.Context())

	job, err := h.transcriptions.RequestTranscription(r.Context(), userID, req.EpisodeID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, job)
}

// GetJob is the polling read: safe to repeat at short intervals, no side
// effects.
func (h *TranscriptionHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid job ID", r))
		return
	}

	job, err := h.transcriptions.GetJob(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	userID := middleware.GetUserID(r.Context())
	if job.UserID != userID {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Job not found", r))
		return
	}

	writeJSON(w, http.StatusOK, job)
}

func (h *TranscriptionHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid transcript ID", r))
		return
	}

	transcript, err := h.transcriptions.GetTranscript(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	userID := middleware.GetUserID(r.Context())
	if transcript.UserID != userID {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Transcript not found", r))
		return
	}

	writeJSON(w, http.StatusOK, transcript)
}

// GetTranscriptByEpisode returns {"transcript": null} rather than 404 when no
// transcript exists yet, so the client can offer to transcribe instead.
func (h *TranscriptionHandler) GetTranscriptByEpisode(w http.ResponseWriter, r *http.Request) {
	episodeID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid episode ID", r))
		return
	}

	userID := middleware.GetUserID(r.Context())

	transcript, err := h.transcriptions.GetTranscriptByEpisode(r.Context(), userID, episodeID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transcript": transcript,
	})
}
