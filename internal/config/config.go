package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// JWT
	JWTSecret string

	// Podcast Index search
	PodcastIndexAPIKey    string
	PodcastIndexAPISecret string

	// Gemini AI
	GeminiAPIKey         string
	GeminiConcurrentReqs int

	// External transcription worker
	WorkerWebhookURL    string
	WorkerCallbackToken string

	// Job policy
	TranscriptionsPerDay int
	DispatchWorkers      int
	QueuedJobTimeoutMins int

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:        getEnvOrDefault("PORT", "8080"),
		Env:         getEnvOrDefault("ENV", "development"),
		DatabaseURL: mustGetEnv("DATABASE_URL"),
		RedisURL:    mustGetEnv("REDIS_URL"),
		JWTSecret:   mustGetEnv("JWT_SECRET"),

		PodcastIndexAPIKey:    mustGetEnv("PODCAST_INDEX_API_KEY"),
		PodcastIndexAPISecret: mustGetEnv("PODCAST_INDEX_API_SECRET"),

		GeminiAPIKey:         mustGetEnv("GEMINI_API_KEY"),
		GeminiConcurrentReqs: getEnvAsIntOrDefault("GEMINI_CONCURRENT_REQUESTS", 5),

		WorkerWebhookURL:    getEnvOrDefault("WORKER_WEBHOOK_URL", ""),
		WorkerCallbackToken: mustGetEnv("WORKER_CALLBACK_TOKEN"),

		TranscriptionsPerDay: getEnvAsIntOrDefault("TRANSCRIPTIONS_PER_DAY", 20),
		DispatchWorkers:      getEnvAsIntOrDefault("DISPATCH_WORKERS", 3),
		QueuedJobTimeoutMins: getEnvAsIntOrDefault("QUEUED_JOB_TIMEOUT_MINUTES", 15),

		FrontendURL: getEnvOrDefault("FRONTEND_URL", "http://localhost:8081"),
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
