// Package audit records session lifecycle events to the history store
// without blocking the connection goroutines that produce them.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/confluence-stream/backend/internal/model"
)

const (
	DefaultQueueSize    = 1024
	DefaultMaxAttempts  = 3
	DefaultRetryDelay   = 100 * time.Millisecond
	DefaultWriteTimeout = 5 * time.Second
)

// Recorder receives session lifecycle events.
type Recorder interface {
	Opened(id string, at time.Time)
	Initialized(id, userID string, confluenceCount int)
	ConfluencesUpdated(id string, confluenceCount int)
	Analyzed(id string)
	Closed(id string, at time.Time, reason model.CloseReason)
}

// Store is the subset of the history repository the recorder writes to.
type Store interface {
	Create(ctx context.Context, rec *model.SessionRecord) error
	RecordInit(ctx context.Context, id, userID string, confluenceCount int) error
	UpdateConfluenceCount(ctx context.Context, id string, confluenceCount int) error
	IncrementAnalyses(ctx context.Context, id string) error
	Close(ctx context.Context, id string, closedAt time.Time, reason model.CloseReason) error
}

// Config configures an AsyncRecorder.
type Config struct {
	QueueSize    int
	MaxAttempts  int
	RetryDelay   time.Duration
	WriteTimeout time.Duration
}

type eventKind int

const (
	eventOpened eventKind = iota
	eventInitialized
	eventConfluencesUpdated
	eventAnalyzed
	eventClosed
)

func (k eventKind) String() string {
	switch k {
	case eventOpened:
		return "opened"
	case eventInitialized:
		return "initialized"
	case eventConfluencesUpdated:
		return "confluences_updated"
	case eventAnalyzed:
		return "analyzed"
	case eventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type event struct {
	kind   eventKind
	id     string
	userID string
	count  int
	at     time.Time
	reason model.CloseReason
}

// AsyncRecorder queues events on a bounded channel consumed by a single
// goroutine, so writes for one session are applied in the order produced.
// When the queue is full the event is dropped.
type AsyncRecorder struct {
	store  Store
	config Config
	logger *slog.Logger

	events chan event
	done   chan struct{}

	mu      sync.RWMutex
	closed  bool
	started bool

	dropped atomic.Int64
	failed  atomic.Int64
}

// NewAsyncRecorder creates a recorder writing to store. Call Start to begin
// consuming events and Close to flush them.
func NewAsyncRecorder(store Store, cfg Config, logger *slog.Logger) *AsyncRecorder {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &AsyncRecorder{
		store:  store,
		config: cfg,
		logger: logger.With("component", "audit"),
		events: make(chan event, cfg.QueueSize),
		done:   make(chan struct{}),
	}
}

// Start launches the consumer goroutine. It is a no-op after the first call.
func (r *AsyncRecorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.closed {
		return
	}
	r.started = true
	go r.run()
}

// Close stops accepting events and waits until the queued ones are written
// or ctx is done.
func (r *AsyncRecorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	started := r.started
	close(r.events)
	r.mu.Unlock()

	if !started {
		return nil
	}

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (r *AsyncRecorder) Dropped() int64 {
	return r.dropped.Load()
}

// Failed returns how many events could not be written after all retries.
func (r *AsyncRecorder) Failed() int64 {
	return r.failed.Load()
}

func (r *AsyncRecorder) Opened(id string, at time.Time) {
	r.enqueue(event{kind: eventOpened, id: id, at: at})
}

func (r *AsyncRecorder) Initialized(id, userID string, confluenceCount int) {
	r.enqueue(event{kind: eventInitialized, id: id, userID: userID, count: confluenceCount})
}

func (r *AsyncRecorder) ConfluencesUpdated(id string, confluenceCount int) {
	r.enqueue(event{kind: eventConfluencesUpdated, id: id, count: confluenceCount})
}

func (r *AsyncRecorder) Analyzed(id string) {
	r.enqueue(event{kind: eventAnalyzed, id: id})
}

func (r *AsyncRecorder) Closed(id string, at time.Time, reason model.CloseReason) {
	r.enqueue(event{kind: eventClosed, id: id, at: at, reason: reason})
}

func (r *AsyncRecorder) enqueue(ev event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}

	select {
	case r.events <- ev:
	default:
		r.dropped.Add(1)
		r.logger.Warn("Audit queue full, dropping event", "event", ev.kind.String(), "session_id", ev.id)
	}
}

func (r *AsyncRecorder) run() {
	defer close(r.done)
	for ev := range r.events {
		if err := r.write(ev); err != nil {
			r.failed.Add(1)
			r.logger.Error("Failed to record session event", "event", ev.kind.String(), "session_id", ev.id, "error", err)
		}
	}
}

func (r *AsyncRecorder) write(ev event) error {
	operation := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
		defer cancel()

		err := r.apply(ctx, ev)
		if errors.Is(err, model.ErrSessionNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}

	backoffStrategy := backoff.WithMaxRetries(
		backoff.NewConstantBackOff(r.config.RetryDelay),
		uint64(r.config.MaxAttempts-1),
	)

	return backoff.RetryNotify(operation, backoffStrategy, func(err error, d time.Duration) {
		r.logger.Warn("Retrying session event write", "event", ev.kind.String(), "session_id", ev.id, "error", err, "retry_in", d)
	})
}

func (r *AsyncRecorder) apply(ctx context.Context, ev event) error {
	switch ev.kind {
	case eventOpened:
		return r.store.Create(ctx, &model.SessionRecord{ID: ev.id, ConnectedAt: ev.at})
	case eventInitialized:
		return r.store.RecordInit(ctx, ev.id, ev.userID, ev.count)
	case eventConfluencesUpdated:
		return r.store.UpdateConfluenceCount(ctx, ev.id, ev.count)
	case eventAnalyzed:
		return r.store.IncrementAnalyses(ctx, ev.id)
	case eventClosed:
		return r.store.Close(ctx, ev.id, ev.at, ev.reason)
	default:
		return nil
	}
}

// Nop discards every event. It is used when session history is disabled.
type Nop struct{}

func (Nop) Opened(string, time.Time) {}
func (Nop) Initialized(string, string, int) {}
func (Nop) ConfluencesUpdated(string, int) {}
func (Nop) Analyzed(string) {}
func (Nop) Closed(string, time.Time, model.CloseReason) {}
