package scheduler

import (
	"errors"
	"testing"
	"time"
)

func TestRetryQueue_SucceedsOnRetry(t *testing.T) {
	rq := NewRetryQueue(DefaultRetryConfig())

	calls := 0
	rq.Enqueue("weekly_xp", func() error {
		calls++
		return nil
	})

	if rq.Len() != 1 {
		t.Fatalf("len = %d", rq.Len())
	}

	// Not due yet.
	rq.Drain(time.Now())
	if calls != 0 {
		t.Fatalf("ran before delay elapsed")
	}

	rq.Drain(time.Now().Add(2 * time.Second))
	if calls != 1 {
		t.Errorf("calls = %d", calls)
	}
	if rq.Len() != 0 {
		t.Errorf("len after success = %d", rq.Len())
	}
}

func TestRetryQueue_BacksOffAndExhausts(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second}
	rq := NewRetryQueue(cfg)

	calls := 0
	rq.Enqueue("weekly_xp", func() error {
		calls++
		return errors.New("authority down")
	})

	// Walk time forward far enough to burn through every attempt.
	now := time.Now()
	for i := 0; i < 10; i++ {
		now = now.Add(30 * time.Second)
		rq.Drain(now)
	}

	if calls != cfg.MaxRetries {
		t.Errorf("calls = %d, want %d", calls, cfg.MaxRetries)
	}
	if rq.Len() != 0 {
		t.Errorf("exhausted op still queued")
	}
	retries, exhausted := rq.Stats()
	if retries != int64(cfg.MaxRetries) || exhausted != 1 {
		t.Errorf("stats = %d retries, %d exhausted", retries, exhausted)
	}
}

func TestRetryQueue_FailureDelaysNextAttempt(t *testing.T) {
	rq := NewRetryQueue(RetryConfig{MaxRetries: 5, BaseDelay: time.Second, MaxDelay: time.Minute})

	calls := 0
	rq.Enqueue("total_xp", func() error {
		calls++
		return errors.New("still down")
	})

	start := time.Now()
	rq.Drain(start.Add(2 * time.Second)) // first attempt fails
	rq.Drain(start.Add(3 * time.Second)) // backoff not elapsed
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	rq.Drain(start.Add(10 * time.Second))
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}
