package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"podscribe-backend/internal/models"
)

const (
	dispatchQueue    = "queue:transcription-dispatch"
	maxDispatchTries = 3
)

type jobFailer interface {
	Fail(ctx context.Context, id uuid.UUID, message string) (bool, error)
	FailStaleQueued(ctx context.Context, maxAge time.Duration, message string) (int64, error)
}

// Dispatcher is the outbox between admission and the external transcription
// worker. Admission enqueues; dispatcher goroutines deliver the webhook with
// retries, and a reaper fails jobs whose dispatch was silently lost.
type Dispatcher struct {
	redis         *redis.Client
	jobs          jobFailer
	webhookURL    string
	workerCount   int
	queuedTimeout time.Duration
	reapInterval  time.Duration
	client        *http.Client
	stopChan      chan struct{}
}

func NewDispatcher(redisClient *redis.Client, jobs jobFailer, webhookURL string, workerCount int, queuedTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		redis:         redisClient,
		jobs:          jobs,
		webhookURL:    webhookURL,
		workerCount:   workerCount,
		queuedTimeout: queuedTimeout,
		reapInterval:  time.Minute,
		client:        &http.Client{Timeout: 30 * time.Second},
		stopChan:      make(chan struct{}),
	}
}

// Enqueue pushes a dispatch payload on the outbox queue.
func (d *Dispatcher) Enqueue(ctx context.Context, payload models.DispatchPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return d.redis.LPush(ctx, dispatchQueue, string(data)).Err()
}

func (d *Dispatcher) Start() {
	for i := 0; i < d.workerCount; i++ {
		go d.worker(i)
	}
	go d.reaper()

	log.Printf("Started %d dispatch goroutines", d.workerCount)
}

func (d *Dispatcher) Stop() {
	close(d.stopChan)
}

func (d *Dispatcher) worker(id int) {
	for {
		select {
		case <-d.stopChan:
			log.Printf("Dispatcher %d shutting down", id)
			return
		default:
		}

		ctx := context.Background()

		// BLPOP with 30s timeout
		result, err := d.redis.BLPop(ctx, 30*time.Second, dispatchQueue).Result()
		if err != nil {
			continue // Timeout or error, retry
		}

		if len(result) < 2 {
			continue
		}

		var payload models.DispatchPayload
		if err := json.Unmarshal([]byte(result[1]), &payload); err != nil {
			log.Printf("Dispatcher %d: failed to parse payload: %v", id, err)
			continue
		}

		// At-least-once delivery; the lock keeps concurrent dispatchers off
		// the same job.
		lockKey := fmt.Sprintf("dispatch_lock:%s", payload.JobID.String())
		locked, err := d.redis.SetNX(ctx, lockKey, "1", 2*time.Minute).Result()
		if err != nil || !locked {
			continue
		}

		if err := d.deliver(ctx, payload); err != nil {
			d.handleFailure(ctx, payload, err)
		} else {
			log.Printf("Dispatcher %d: dispatched job %s", id, payload.JobID)
		}

		d.redis.Del(ctx, lockKey)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, payload models.DispatchPayload) error {
	if d.webhookURL == "" {
		return fmt.Errorf("WORKER_WEBHOOK_URL not set")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("worker webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("worker webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) handleFailure(ctx context.Context, payload models.DispatchPayload, err error) {
	payload.Attempt++

	if payload.Attempt < maxDispatchTries {
		log.Printf("Dispatch of job %s failed (attempt %d), retrying: %v", payload.JobID, payload.Attempt, err)

		data, _ := json.Marshal(payload)
		backoff := time.Duration(1<<uint(payload.Attempt)) * time.Second
		time.AfterFunc(backoff, func() {
			d.redis.LPush(context.Background(), dispatchQueue, string(data))
		})
		return
	}

	log.Printf("Dispatch of job %s failed permanently: %v", payload.JobID, err)
	if _, failErr := d.jobs.Fail(ctx, payload.JobID, "Could not reach the transcription worker"); failErr != nil {
		log.Printf("failed to mark job %s failed: %v", payload.JobID, failErr)
	}
}

// reaper fails jobs stuck in 'queued' past the deadline, the case where every
// dispatch attempt was dropped without a trace.
func (d *Dispatcher) reaper() {
	ticker := time.NewTicker(d.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			n, err := d.jobs.FailStaleQueued(ctx, d.queuedTimeout, "Transcription was never picked up by the worker")
			cancel()
			if err != nil {
				log.Printf("failed to reap stale queued jobs: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("Reaped %d stale queued jobs", n)
			}
		}
	}
}
