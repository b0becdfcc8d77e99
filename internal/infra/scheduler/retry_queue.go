// Package scheduler retries deferred writes against the ranking authority.
// Failed league credits are re-queued with exponential backoff so a shared
// Postgres outage never loses locally-earned XP.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"
)

// RetryConfig configures the retry queue behavior.
type RetryConfig struct {
	MaxRetries int           // Attempts before an op is dropped
	BaseDelay  time.Duration // Initial backoff delay (doubles each retry)
	MaxDelay   time.Duration // Cap on backoff delay
}

// DefaultRetryConfig returns production retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 5,
		BaseDelay:  1 * time.Second,
		MaxDelay:   60 * time.Second,
	}
}

type retryOp struct {
	name      string
	run       func() error
	attempt   int
	nextRetry time.Time
}

// RetryQueue holds failed operations and replays them with backoff.
type RetryQueue struct {
	mu     sync.Mutex
	config RetryConfig
	ops    []retryOp
	logger *log.Logger

	totalRetries   int64
	totalExhausted int64
}

// NewRetryQueue creates an empty retry queue.
func NewRetryQueue(cfg RetryConfig) *RetryQueue {
	return &RetryQueue{
		config: cfg,
		logger: log.New(log.Writer(), "[retry] ", log.LstdFlags),
	}
}

// Enqueue schedules a failed operation for retry after the base delay. The
// op must be safe to run again; ranking writes are idempotent per event
// because the queue holds the already-computed deltas.
func (rq *RetryQueue) Enqueue(name string, run func() error) {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	rq.ops = append(rq.ops, retryOp{
		name:      name,
		run:       run,
		nextRetry: time.Now().Add(rq.config.BaseDelay),
	})
}

// Len returns the number of pending operations.
func (rq *RetryQueue) Len() int {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	return len(rq.ops)
}

// Stats returns total retries executed and ops dropped as exhausted.
func (rq *RetryQueue) Stats() (retries, exhausted int64) {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	return rq.totalRetries, rq.totalExhausted
}

// Run drains due operations until the context is cancelled. Call in a
// goroutine.
func (rq *RetryQueue) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rq.Drain(time.Now())
		}
	}
}

// Drain runs every operation due at the given instant. Failures go back on
// the queue with a doubled delay until MaxRetries is reached.
func (rq *RetryQueue) Drain(now time.Time) {
	due := rq.takeDue(now)
	for _, op := range due {
		rq.mu.Lock()
		rq.totalRetries++
		rq.mu.Unlock()

		err := op.run()
		if err == nil {
			continue
		}

		op.attempt++
		if op.attempt >= rq.config.MaxRetries {
			rq.logger.Printf("dropping %s after %d attempts: %v", op.name, op.attempt, err)
			rq.mu.Lock()
			rq.totalExhausted++
			rq.mu.Unlock()
			continue
		}

		delay := rq.config.BaseDelay << op.attempt
		if delay > rq.config.MaxDelay {
			delay = rq.config.MaxDelay
		}
		op.nextRetry = now.Add(delay)
		rq.mu.Lock()
		rq.ops = append(rq.ops, op)
		rq.mu.Unlock()
	}
}

func (rq *RetryQueue) takeDue(now time.Time) []retryOp {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	var due, rest []retryOp
	for _, op := range rq.ops {
		if !op.nextRetry.After(now) {
			due = append(due, op)
		} else {
			rest = append(rest, op)
		}
	}
	rq.ops = rest
	return due
}
