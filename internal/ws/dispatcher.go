package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/confluence-stream/backend/internal/audit"
	"github.com/confluence-stream/backend/internal/buffer"
	"github.com/confluence-stream/backend/internal/evaluator"
	"github.com/confluence-stream/backend/internal/metrics"
	"github.com/confluence-stream/backend/internal/model"
	"github.com/confluence-stream/backend/internal/session"
)

const (
	tracerName = "github.com/confluence-stream/backend/internal/ws"

	// DefaultLatencyWindow is how many recent evaluation durations feed the stats percentiles.
	DefaultLatencyWindow = 1024
)

// Error reasons used as metric labels.
const (
	reasonMalformed   = "malformed"
	reasonUnknownType = "unknown_type"
	reasonTimeout     = "timeout"
	reasonInFlight    = "in_flight"
	reasonEvaluation  = "evaluation"
	reasonPanic       = "panic"
	reasonEncode      = "encode"
)

// DispatcherConfig holds configuration for the message dispatcher.
type DispatcherConfig struct {
	// EvaluationTimeout bounds a single evaluator call. Zero disables it.
	EvaluationTimeout time.Duration

	// StrictTypes answers unknown message types with an error.
	StrictTypes bool

	// LatencyWindow is the number of samples kept for percentiles.
	LatencyWindow int
}

// Dispatcher decodes client frames, routes them by type and answers on the
// sender's connection. It holds no per-connection state apart from the
// in-flight evaluation markers.
type Dispatcher struct {
	registry  *session.Registry
	evaluator evaluator.Evaluator
	recorder  audit.Recorder
	config    DispatcherConfig
	logger    *slog.Logger
	tracer    trace.Tracer

	latency     *buffer.LatencyWindow
	evaluations atomic.Int64

	// session id -> struct{} while an evaluation is running
	inFlight sync.Map
}

// NewDispatcher creates a dispatcher over registry.
func NewDispatcher(registry *session.Registry, eval evaluator.Evaluator, recorder audit.Recorder, config DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if eval == nil {
		eval = evaluator.NewStub()
	}
	if recorder == nil {
		recorder = audit.Nop{}
	}
	if config.LatencyWindow <= 0 {
		config.LatencyWindow = DefaultLatencyWindow
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		registry:  registry,
		evaluator: eval,
		recorder:  recorder,
		config:    config,
		logger:    logger.With("component", "dispatcher"),
		tracer:    otel.Tracer(tracerName),
		latency:   buffer.NewLatencyWindow(config.LatencyWindow),
	}
}

// Welcome sends the connected frame for a newly opened session.
func (d *Dispatcher) Welcome(conn model.Connection, sessionID string) {
	d.send(conn, sessionID, MessageTypeConnected, NewConnected(sessionID, d.registry.Now()))
}

// Dispatch handles one inbound frame from the connection owning sessionID.
// It sends at most one frame back and never returns an error: failures are
// reported to the client as error frames.
func (d *Dispatcher) Dispatch(ctx context.Context, conn model.Connection, sessionID string, data []byte) {
	receivedAt := d.registry.Now()

	msg, err := DecodeInbound(data)
	if err != nil {
		d.logger.Debug("Rejected malformed frame", "session_id", sessionID, "error", err)
		d.sendError(conn, sessionID, reasonMalformed, err)
		return
	}

	sess, err := d.registry.Get(sessionID)
	if err != nil {
		d.logger.Debug("Dropping frame for unknown session", "session_id", sessionID, "type", msg.Type)
		return
	}
	d.registry.Touch(sessionID)

	metrics.MessagesReceived.WithLabelValues(typeLabel(msg.Type)).Inc()
	d.logger.Debug("Received", "session_id", sessionID, "type", msg.Type)

	msgType, resp, err := d.route(ctx, sess, msg, receivedAt)
	if err != nil {
		d.logger.Warn("Message handling failed", "session_id", sessionID, "type", msg.Type, "error", err)
		d.sendError(conn, sessionID, errorReason(err), err)
		return
	}
	if resp != nil {
		d.send(conn, sessionID, msgType, resp)
	}
}

// route runs the handler for msg and converts a panic into an error.
func (d *Dispatcher) route(ctx context.Context, sess model.Session, msg *Inbound, receivedAt time.Time) (respType MessageType, resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			respType, resp = "", nil
			err = &panicError{value: r}
		}
	}()

	switch msg.Type {
	case MessageTypePing:
		return MessageTypePong, NewPong(d.registry.Now()), nil
	case MessageTypeInit:
		return MessageTypeInitAck, d.handleInit(sess, msg), nil
	case MessageTypeChartUpdate:
		result, err := d.handleChartUpdate(ctx, sess, msg, receivedAt)
		if err != nil {
			return "", nil, err
		}
		return MessageTypeAnalysisResult, result, nil
	case MessageTypeUpdateConfluences:
		d.handleUpdateConfluences(sess, msg)
		return "", nil, nil
	default:
		if d.config.StrictTypes {
			return "", nil, fmt.Errorf("%w: %q", model.ErrUnknownMessageType, msg.Type)
		}
		d.logger.Debug("Ignoring unknown message type", "session_id", sess.ID, "type", msg.Type)
		return "", nil, nil
	}
}

func (d *Dispatcher) handleInit(sess model.Session, msg *Inbound) *Ack {
	d.registry.Update(sess.ID, func(s *model.Session) {
		s.UserID = msg.UserID
		s.Confluences = msg.Confluences
	})
	d.recorder.Initialized(sess.ID, msg.UserID, len(msg.Confluences))
	d.logger.Info("Initialized", "session_id", sess.ID, "user_id", msg.UserID, "rules", len(msg.Confluences))
	return NewInitAck(d.registry.Now())
}

func (d *Dispatcher) handleUpdateConfluences(sess model.Session, msg *Inbound) {
	d.registry.Update(sess.ID, func(s *model.Session) {
		s.Confluences = msg.Confluences
	})
	d.recorder.ConfluencesUpdated(sess.ID, len(msg.Confluences))
	d.logger.Info("Updated confluences", "session_id", sess.ID, "rules", len(msg.Confluences))
}

func (d *Dispatcher) handleChartUpdate(ctx context.Context, sess model.Session, msg *Inbound, receivedAt time.Time) (*AnalysisResult, error) {
	if _, busy := d.inFlight.LoadOrStore(sess.ID, struct{}{}); busy {
		return nil, model.ErrEvaluationInFlight
	}

	ctx, span := d.tracer.Start(ctx, "evaluate",
		trace.WithAttributes(
			attribute.String("session.id", sess.ID),
			attribute.Int("confluences.count", len(sess.Confluences)),
			attribute.String("evaluator", d.evaluator.Name()),
		),
	)
	defer span.End()

	if d.config.EvaluationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.EvaluationTimeout)
		defer cancel()
	}

	update := model.ChartUpdate{Payload: msg.Raw, ReceivedAt: receivedAt}

	start := time.Now()
	result, err := d.evaluate(ctx, sess.ID, update, model.CloneConfluences(sess.Confluences))
	elapsed := time.Since(start)

	if err == nil {
		err = checkResult(result)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "")

	metrics.EvaluationDuration.Observe(elapsed.Seconds())
	d.latency.Add(elapsed)
	d.evaluations.Add(1)
	d.recorder.Analyzed(sess.ID)
	d.logger.Info("Analysis completed", "session_id", sess.ID, "duration", elapsed, "alert", result.Alert)

	return NewAnalysisResult(result, receivedAt, d.registry.Now(), elapsed), nil
}

type evalOutcome struct {
	result *model.AnalysisResult
	err    error
}

// evaluate runs the evaluator on its own goroutine so a timeout can return
// before the evaluator does. The in-flight marker is cleared only when the
// evaluator actually returns.
func (d *Dispatcher) evaluate(ctx context.Context, sessionID string, update model.ChartUpdate, confluences []model.Confluence) (*model.AnalysisResult, error) {
	done := make(chan evalOutcome, 1)

	go func() {
		var out evalOutcome
		defer func() {
			if r := recover(); r != nil {
				out = evalOutcome{err: &panicError{value: r}}
			}
			d.inFlight.Delete(sessionID)
			done <- out
		}()
		out.result, out.err = d.evaluator.Evaluate(ctx, update, confluences)
	}()

	select {
	case out := <-done:
		if out.err != nil {
			var pe *panicError
			if errors.As(out.err, &pe) {
				return nil, out.err
			}
			return nil, fmt.Errorf("evaluation failed: %w", out.err)
		}
		return out.result, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, model.ErrEvaluationTimeout
		}
		return nil, ctx.Err()
	}
}

func checkResult(result *model.AnalysisResult) error {
	if result == nil {
		return errors.New("evaluation failed: evaluator returned no result")
	}
	if err := result.Validate(); err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}
	return nil
}

func (d *Dispatcher) send(conn model.Connection, sessionID string, msgType MessageType, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		d.logger.Error("Failed to marshal response", "session_id", sessionID, "type", msgType, "error", err)
		if msgType != MessageTypeError {
			d.sendError(conn, sessionID, reasonEncode, fmt.Errorf("failed to encode %s: %w", msgType, err))
		}
		return
	}

	if err := conn.Send(data); err != nil {
		d.logger.Debug("Send failed", "session_id", sessionID, "type", msgType, "error", err)
		return
	}
	metrics.MessagesSent.WithLabelValues(string(msgType)).Inc()
}

func (d *Dispatcher) sendError(conn model.Connection, sessionID, reason string, err error) {
	metrics.MessageErrors.WithLabelValues(reason).Inc()
	d.send(conn, sessionID, MessageTypeError, NewError(err.Error()))
}

// DispatcherStats is a point-in-time view of evaluation activity.
type DispatcherStats struct {
	Evaluations  int64
	LatencyP50Ms float64
	LatencyP99Ms float64
}

// Stats returns the evaluation count and recent latency percentiles.
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Evaluations:  d.evaluations.Load(),
		LatencyP50Ms: durationMillis(d.latency.Percentile(50)),
		LatencyP99Ms: durationMillis(d.latency.Percentile(99)),
	}
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	if err, ok := e.value.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(e.value)
}

func errorReason(err error) string {
	var pe *panicError
	switch {
	case errors.As(err, &pe):
		return reasonPanic
	case errors.Is(err, model.ErrUnknownMessageType):
		return reasonUnknownType
	case errors.Is(err, model.ErrEvaluationTimeout):
		return reasonTimeout
	case errors.Is(err, model.ErrEvaluationInFlight):
		return reasonInFlight
	default:
		return reasonEvaluation
	}
}

// typeLabel bounds the metric label set to the known message types.
func typeLabel(t MessageType) string {
	switch t {
	case MessageTypePing, MessageTypeInit, MessageTypeChartUpdate, MessageTypeUpdateConfluences:
		return string(t)
	default:
		return "unknown"
	}
}
