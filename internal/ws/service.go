package ws

import (
	"context"
	"log/slog"
	"sync"

	"github.com/confluence-stream/backend/internal/audit"
	"github.com/confluence-stream/backend/internal/evaluator"
	"github.com/confluence-stream/backend/internal/metrics"
	"github.com/confluence-stream/backend/internal/model"
	"github.com/confluence-stream/backend/internal/session"
)

// Config groups the settings of every component the Service owns.
type Config struct {
	Monitor  session.MonitorConfig
	Handler  HandlerConfig
	Dispatch DispatcherConfig
}

// Stats is the live view served on the stats endpoint.
type Stats struct {
	Sessions     int     `json:"sessions"`
	Evaluations  int64   `json:"evaluations"`
	LatencyP50Ms float64 `json:"latencyP50Ms"`
	LatencyP99Ms float64 `json:"latencyP99Ms"`
}

// Service owns the session registry for the lifetime of the server and wires
// the transport, dispatcher and heartbeat monitor around it.
type Service struct {
	registry   *session.Registry
	monitor    *session.Monitor
	dispatcher *Dispatcher
	handler    *Handler
	recorder   audit.Recorder
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool
}

// NewService creates a new WebSocket service. A nil evaluator selects the
// stub; a nil recorder disables session history.
func NewService(eval evaluator.Evaluator, recorder audit.Recorder, config Config, logger *slog.Logger, opts ...session.Option) *Service {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	registry := session.NewRegistry(opts...)
	dispatcher := NewDispatcher(registry, eval, recorder, config.Dispatch, logger)

	s := &Service{
		registry:   registry,
		monitor:    session.NewMonitor(registry, config.Monitor, logger),
		dispatcher: dispatcher,
		handler:    NewHandler(ctx, registry, dispatcher, config.Handler, logger),
		recorder:   recorder,
		logger:     logger.With("component", "service"),
		ctx:        ctx,
		cancel:     cancel,
	}

	s.handler.SetOnOpen(s.sessionOpened)
	s.handler.SetOnClose(s.sessionClosed)
	s.monitor.SetOnEvict(func(sess model.Session) {
		metrics.EvictedSessions.Inc()
		s.sessionClosed(sess, model.CloseReasonEvicted)
	})

	return s
}

// Start launches the heartbeat monitor. It stops when ctx is cancelled or
// the service is closed.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true

	monitorCtx, stop := context.WithCancel(ctx)
	context.AfterFunc(s.ctx, stop)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer stop()
		s.monitor.Run(monitorCtx)
	}()
}

func (s *Service) sessionOpened(id string) {
	metrics.ActiveSessions.Inc()
	metrics.TotalSessions.Inc()
	s.recorder.Opened(id, s.registry.Now())
	s.logger.Info("Client connected", "session_id", id, "total", s.registry.Count())
}

func (s *Service) sessionClosed(sess model.Session, reason model.CloseReason) {
	metrics.ActiveSessions.Dec()
	s.recorder.Closed(sess.ID, s.registry.Now(), reason)
	s.logger.Info("Disconnected",
		"session_id", sess.ID,
		"reason", reason,
		"duration", s.registry.Now().Sub(sess.ConnectedAt),
		"total", s.registry.Count())
}

// Handler returns the WebSocket handler.
func (s *Service) Handler() *Handler {
	return s.handler
}

// Registry returns the session registry.
func (s *Service) Registry() *session.Registry {
	return s.registry
}

// Monitor returns the heartbeat monitor.
func (s *Service) Monitor() *session.Monitor {
	return s.monitor
}

// Dispatcher returns the message dispatcher.
func (s *Service) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// Stats returns the number of live sessions and evaluation statistics.
func (s *Service) Stats() Stats {
	ds := s.dispatcher.Stats()
	return Stats{
		Sessions:     s.registry.Count(),
		Evaluations:  ds.Evaluations,
		LatencyP50Ms: ds.LatencyP50Ms,
		LatencyP99Ms: ds.LatencyP99Ms,
	}
}

// Close stops accepting connections, stops the monitor, cancels in-progress
// message handling and closes every live connection. Sessions closed here
// are recorded with the shutdown reason.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.handler.Shutdown()
	s.cancel()
	s.wg.Wait()

	sessions := s.registry.Drain()
	for _, sess := range sessions {
		if sess.Conn != nil {
			sess.Conn.Close()
		}
		s.sessionClosed(sess, model.CloseReasonShutdown)
	}

	s.logger.Info("WebSocket service closed", "sessions_closed", len(sessions))
}
