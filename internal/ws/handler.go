package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/confluence-stream/backend/internal/model"
	"github.com/confluence-stream/backend/internal/session"
)

const (
	// DefaultWriteTimeout is the time allowed to write a frame to the peer.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultIdleTimeout is how long a connection may go without any frame
	// from the peer, pongs included.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultMaxPayloadBytes is the maximum frame size accepted from the peer.
	DefaultMaxPayloadBytes = 16 * 1024 * 1024
)

// ErrHandlerClosed is returned by HandleConnection once the handler stopped
// accepting connections.
var ErrHandlerClosed = errors.New("websocket handler closed")

// HandlerConfig holds transport limits for WebSocket connections.
type HandlerConfig struct {
	MaxPayloadBytes int64
	IdleTimeout     time.Duration
	WriteTimeout    time.Duration
	SendBuffer      int
	Compression     bool
}

func (c HandlerConfig) withDefaults() HandlerConfig {
	if c.MaxPayloadBytes <= 0 {
		c.MaxPayloadBytes = DefaultMaxPayloadBytes
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = DefaultSendBuffer
	}
	return c
}

// pingPeriod is how often the server pings an otherwise quiet peer. It must
// be less than the idle timeout so a live peer's pong arrives in time.
func (c HandlerConfig) pingPeriod() time.Duration {
	return (c.IdleTimeout * 9) / 10
}

// Handler accepts WebSocket connections, registers a session for each one
// and runs its read and write pumps.
type Handler struct {
	ctx        context.Context
	registry   *session.Registry
	dispatcher *Dispatcher
	config     HandlerConfig
	upgrader   websocket.Upgrader
	logger     *slog.Logger

	mu      sync.RWMutex
	onOpen  func(sessionID string)
	onClose func(sess model.Session, reason model.CloseReason)
	closed  bool
}

// NewHandler creates a new WebSocket handler. ctx is the parent context for
// message handling on every connection it accepts.
func NewHandler(ctx context.Context, registry *session.Registry, dispatcher *Dispatcher, config HandlerConfig, logger *slog.Logger) *Handler {
	config = config.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		ctx:        ctx,
		registry:   registry,
		dispatcher: dispatcher,
		config:     config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    1024,
			WriteBufferSize:   1024,
			EnableCompression: config.Compression,
			CheckOrigin: func(r *http.Request) bool {
				// TODO: restrict origins once the allowed client hosts are configurable
				return true
			},
		},
		logger: logger.With("component", "transport"),
	}
}

// SetOnOpen sets the callback for newly registered sessions.
func (h *Handler) SetOnOpen(callback func(sessionID string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onOpen = callback
}

// SetOnClose sets the callback for sessions ended by the connection closing.
// It is not called for sessions already removed by eviction or shutdown.
func (h *Handler) SetOnClose(callback func(sess model.Session, reason model.CloseReason)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onClose = callback
}

// Config returns the handler configuration after defaults were applied.
func (h *Handler) Config() HandlerConfig {
	return h.config
}

// Shutdown stops the handler from accepting connections. Once it returns,
// every session the handler registered is already in the registry.
func (h *Handler) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
}

// HandleConnection upgrades the request to a WebSocket, registers a session
// and starts the pumps. It returns once the pumps are running.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) error {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return ErrHandlerClosed
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	conn.EnableWriteCompression(h.config.Compression)

	client := NewClient(conn, h.config.SendBuffer)

	id, err := h.register(client)
	if err != nil {
		code, text := websocket.CloseTryAgainLater, "session unavailable"
		if errors.Is(err, ErrHandlerClosed) {
			code, text = websocket.CloseGoingAway, "server shutting down"
		} else {
			h.logger.Error("Failed to register session", "remote", r.RemoteAddr, "error", err)
		}
		closeMsg := websocket.FormatCloseMessage(code, text)
		conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(h.config.WriteTimeout))
		conn.Close()
		return fmt.Errorf("register session: %w", err)
	}

	h.dispatcher.Welcome(client, id)

	go h.writePump(client)
	go h.readPump(client)

	return nil
}

// register creates the session and runs the open callback. It holds the
// read lock so Shutdown cannot complete between the two.
func (h *Handler) register(client *Client) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return "", ErrHandlerClosed
	}

	id, err := h.registry.Create(client)
	if err != nil {
		return "", err
	}
	client.setSessionID(id)

	if h.onOpen != nil {
		h.onOpen(id)
	}
	return id, nil
}

// readPump feeds frames from the connection to the dispatcher, one at a
// time, and tears the session down when the connection ends.
func (h *Handler) readPump(client *Client) {
	id := client.SessionID()
	defer func() {
		sess, removed := h.registry.Remove(id)
		client.Close()
		client.Conn().Close()

		if !removed {
			return
		}
		h.mu.RLock()
		onClose := h.onClose
		h.mu.RUnlock()
		if onClose != nil {
			onClose(sess, model.CloseReasonClient)
		}
	}()

	conn := client.Conn()
	conn.SetReadLimit(h.config.MaxPayloadBytes)
	conn.SetReadDeadline(time.Now().Add(h.config.IdleTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.config.IdleTimeout))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("WebSocket error", "session_id", id, "error", err)
			}
			break
		}
		conn.SetReadDeadline(time.Now().Add(h.config.IdleTimeout))

		h.dispatcher.Dispatch(h.ctx, client, id, message)
	}
}

// writePump drains the client's send queue onto the connection and keeps
// the transport alive with pings.
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(h.config.pingPeriod())
	defer func() {
		ticker.Stop()
		client.Conn().Close()
	}()

	conn := client.Conn()
	for {
		select {
		case message, ok := <-client.SendChan():
			conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if !ok {
				// The client was closed
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			// One frame per message so each can be parsed on its own
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			n := len(client.SendChan())
			for i := 0; i < n; i++ {
				queued, ok := <-client.SendChan()
				if !ok {
					break
				}
				conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, queued); err != nil {
					return
				}
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
