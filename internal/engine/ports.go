package engine

import (
	"context"
	"sync"
	"time"

	"github.com/prodline/tracker/internal/models"
)

// SessionRepository is the durable single-device session store. Load
// returns (nil, nil) when no snapshot exists. Save must be atomic from
// the next reader's point of view and must survive a process restart.
type SessionRepository interface {
	Load() (*models.Session, error)
	Save(*models.Session) error
	Clear() error
}

// Submitter sends the finished session record to the backend exactly
// once per successful call.
type Submitter interface {
	Submit(ctx context.Context, sub *models.SessionSubmission) error
}

// LockClient is the cross-device advisory lock collaborator. Acquire
// returns false when the lock is already held, which callers treat as
// an ordinary rejected login. Release is idempotent.
type LockClient interface {
	Acquire(ctx context.Context, loginID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, loginID string) error
}

// PromptAnswer is the single resolution of a check-in prompt.
type PromptAnswer string

const (
	AnswerYes     PromptAnswer = "YES"
	AnswerNo      PromptAnswer = "NO"
	AnswerTimeout PromptAnswer = "TIMEOUT"
)

// PromptPort shows the "still working?" modal and blocks until the
// worker answers or the countdown deadline passes. Implementations must
// resolve exactly once; cancelling ctx closes the modal.
type PromptPort interface {
	Show(ctx context.Context, deadline time.Time) PromptAnswer
}

// ClockFeed delivers a stream of trusted current-time values. Subscribe
// registers a callback and returns its cancel function; the engine
// holds at most one live subscription at a time.
type ClockFeed interface {
	Subscribe(fn func(time.Time)) (cancel func())
}

// TickerFeed is a ClockFeed backed by a local interval timer. It drives
// the engine when no server time feed is attached.
type TickerFeed struct {
	Interval time.Duration
	Clock    Clock
}

func (f TickerFeed) Subscribe(fn func(time.Time)) (cancel func()) {
	interval := f.Interval
	if interval <= 0 {
		interval = time.Second
	}
	clock := f.Clock
	if clock == nil {
		clock = SystemClock{}
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fn(clock.Now())
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}
