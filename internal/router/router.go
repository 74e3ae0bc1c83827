package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"podscribe-backend/internal/handlers"
	"podscribe-backend/internal/middleware"
)

func New(
	jwtAuth *middleware.JWTAuth,
	workerAuth *middleware.WorkerAuth,
	podcastHandler *handlers.PodcastHandler,
	transcriptionHandler *handlers.TranscriptionHandler,
	callbackHandler *handlers.CallbackHandler,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Search rate limiter (30 req/min per IP)
	searchLimiter := middleware.NewRateLimiter(30, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Podcast Routes ────
		r.Route("/podcasts", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.With(searchLimiter.Middleware).Get("/search", podcastHandler.Search)
			r.Post("/ingest", podcastHandler.Ingest)
		})

		// ──── Episode Routes ────
		r.Route("/episodes", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/{id}/transcript", transcriptionHandler.GetTranscriptByEpisode)
		})

		// ──── Transcription Routes ────
		r.Route("/transcriptions", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/", transcriptionHandler.Request)
			r.Get("/jobs/{id}", transcriptionHandler.GetJob)
			r.Get("/{id}", transcriptionHandler.GetTranscript)
		})

		// ──── Worker Callback Routes ────
		r.Route("/internal", func(r chi.Router) {
			r.Use(workerAuth.Middleware)
			r.Post("/jobs/{id}/progress", callbackHandler.Progress)
			r.Post("/jobs/{id}/complete", callbackHandler.Complete)
			r.Post("/jobs/{id}/fail", callbackHandler.Fail)
			r.Post("/transcripts/{id}/enrich", callbackHandler.Enrich)
		})
	})

	return r
}
