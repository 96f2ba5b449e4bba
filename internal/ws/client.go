package ws

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"
)

// DefaultSendBuffer is the number of outbound frames a client may queue.
const DefaultSendBuffer = 256

// ErrSendQueueFull is returned by Send when the client could not keep up.
// The client is closed when this happens.
var ErrSendQueueFull = errors.New("send queue full")

// Client represents a WebSocket client connection. It implements
// model.Connection: frames are queued for the write pump and sends after
// close are dropped.
type Client struct {
	conn      *websocket.Conn
	sessionID string
	send      chan []byte
	mu        sync.Mutex
	closed    bool
}

// NewClient creates a new WebSocket client with a send queue of bufferSize frames.
func NewClient(conn *websocket.Conn, bufferSize int) *Client {
	if bufferSize <= 0 {
		bufferSize = DefaultSendBuffer
	}
	return &Client{
		conn: conn,
		send: make(chan []byte, bufferSize),
	}
}

// Send queues a message to be sent to the client.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	select {
	case c.send <- data:
		return nil
	default:
		// Buffer full, close the client
		c.closeLocked()
		return ErrSendQueueFull
	}
}

// Close closes the send queue. The write pump then sends a close frame and
// releases the connection. Close is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed returns true if the client is closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// SessionID returns the session ID associated with this client.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Client) setSessionID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// SendChan returns the send channel for the client.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}
