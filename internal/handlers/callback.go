package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"podscribe-backend/internal/models"
)

type callbackService interface {
	ReportProgress(ctx context.Context, jobID uuid.UUID, percent int) error
	ReportCompletion(ctx context.Context, jobID uuid.UUID, segments []models.TranscriptSegment, language string, durationSeconds int) error
	ReportFailure(ctx context.Context, jobID uuid.UUID, message string) error
}

type enrichService interface {
	Enrich(ctx context.Context, transcriptID uuid.UUID) error
}

// CallbackHandler receives reports from the external transcription worker.
// These endpoints sit behind the worker token, not user auth.
type CallbackHandler struct {
	transcriptions callbackService
	enrichment     enrichService
}

func NewCallbackHandler(transcriptions callbackService, enrichment enrichService) *CallbackHandler {
	return &CallbackHandler{
		transcriptions: transcriptions,
		enrichment:     enrichment,
	}
}

func (h *CallbackHandler) Progress(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid job ID", r))
		return
	}

	var req struct {
		Progress int `json:"progress"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if err := h.transcriptions.ReportProgress(r.Context(), jobID, req.Progress); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *CallbackHandler) Complete(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid job ID", r))
		return
	}

	var req struct {
		Segments        []models.TranscriptSegment `json:"segments"`
		Language        string                     `json:"language"`
		DurationSeconds int                        `json:"duration_seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if err := h.transcriptions.ReportCompletion(r.Context(), jobID, req.Segments, req.Language, req.DurationSeconds); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *CallbackHandler) Fail(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid job ID", r))
		return
	}

	var req struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if err := h.transcriptions.ReportFailure(r.Context(), jobID, req.Error); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Enrich re-runs enrichment for a transcript. Normally completion triggers
// this internally; the endpoint exists so the worker or an operator can retry
// a failed run.
func (h *CallbackHandler) Enrich(w http.ResponseWriter, r *http.Request) {
	transcriptID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid transcript ID", r))
		return
	}

	if err := h.enrichment.Enrich(r.Context(), transcriptID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
