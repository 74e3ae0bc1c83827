package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"podscribe-backend/internal/config"
	"podscribe-backend/internal/database"
	"podscribe-backend/internal/handlers"
	"podscribe-backend/internal/middleware"
	"podscribe-backend/internal/repository"
	"podscribe-backend/internal/router"
	"podscribe-backend/internal/services"
	"podscribe-backend/internal/worker"
)

func main() {
	log.Println("🚀 Starting PodScribe Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Client ────
	redisClient, err := database.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClient.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	podcastRepo := repository.NewPodcastRepo(pool)
	episodeRepo := repository.NewEpisodeRepo(pool)
	jobRepo := repository.NewJobRepo(pool)
	transcriptRepo := repository.NewTranscriptRepo(pool)

	// ──── Step 5: Initialize Gemini Client ────
	geminiClient, err := services.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiConcurrentReqs)
	if err != nil {
		log.Fatalf("✗ Gemini client initialization failed: %v", err)
	}
	defer geminiClient.Close()
	log.Println("✓ Gemini Flash client initialized")

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	workerAuth := middleware.NewWorkerAuth(cfg.WorkerCallbackToken)

	searchService := services.NewSearchService(cfg.PodcastIndexAPIKey, cfg.PodcastIndexAPISecret)
	feedService := services.NewFeedService(podcastRepo, episodeRepo)
	enrichmentService := services.NewEnrichmentService(transcriptRepo, geminiClient)

	dispatcher := worker.NewDispatcher(
		redisClient,
		jobRepo,
		cfg.WorkerWebhookURL,
		cfg.DispatchWorkers,
		time.Duration(cfg.QueuedJobTimeoutMins)*time.Minute,
	)

	transcriptionService := services.NewTranscriptionService(
		jobRepo,
		episodeRepo,
		transcriptRepo,
		dispatcher,
		enrichmentService,
		cfg.TranscriptionsPerDay,
	)

	// ──── Initialize Handlers ────
	podcastHandler := handlers.NewPodcastHandler(searchService, feedService)
	transcriptionHandler := handlers.NewTranscriptionHandler(transcriptionService)
	callbackHandler := handlers.NewCallbackHandler(transcriptionService, enrichmentService)

	// ──── Step 6: Start Dispatcher ────
	dispatcher.Start()
	if cfg.WorkerWebhookURL == "" {
		log.Println("⚠ WORKER_WEBHOOK_URL not set, transcription dispatch disabled")
	}
	log.Printf("✓ Dispatcher started (%d goroutines)", cfg.DispatchWorkers)

	// ──── Step 7: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		workerAuth,
		podcastHandler,
		transcriptionHandler,
		callbackHandler,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		dispatcher.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ PodScribe Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
