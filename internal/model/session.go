package model

import "time"

// Connection is the transport handle a session uses to reach its client.
// Implementations must tolerate Send and Close after the peer has gone away.
type Connection interface {
	Send(data []byte) error
	Close() error
}

// Session represents one connected client.
type Session struct {
	ID          string       `json:"id"`
	UserID      string       `json:"userId,omitempty"`
	Confluences []Confluence `json:"confluences"`
	ConnectedAt time.Time    `json:"connectedAt"`
	LastSeen    time.Time    `json:"lastSeen"`

	// Conn is a reference to the transport, not owned by the session.
	Conn Connection `json:"-"`
}

// Clone returns a copy whose confluences, parameters included, can be
// modified freely.
func (s *Session) Clone() Session {
	c := *s
	c.Confluences = CloneConfluences(s.Confluences)
	return c
}

// Idle returns how long the session has gone without a liveness signal.
func (s *Session) Idle(now time.Time) time.Duration {
	return now.Sub(s.LastSeen)
}

// SessionSummary is the read-only view of a live session exposed over HTTP.
type SessionSummary struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId,omitempty"`
	ConfluenceCount int       `json:"confluenceCount"`
	ConnectedAt     time.Time `json:"connectedAt"`
	LastSeen        time.Time `json:"lastSeen"`
}

// Summary builds the HTTP view of the session.
func (s *Session) Summary() SessionSummary {
	return SessionSummary{
		ID:              s.ID,
		UserID:          s.UserID,
		ConfluenceCount: len(s.Confluences),
		ConnectedAt:     s.ConnectedAt,
		LastSeen:        s.LastSeen,
	}
}

// CloseReason records why a session ended.
type CloseReason string

const (
	CloseReasonClient   CloseReason = "client_closed"
	CloseReasonEvicted  CloseReason = "evicted"
	CloseReasonShutdown CloseReason = "shutdown"
)

// SessionRecord is the persisted history of a session. It is an audit trail
// only; live sessions are never rebuilt from it.
type SessionRecord struct {
	ID              string      `json:"id"`
	UserID          string      `json:"userId,omitempty"`
	ConfluenceCount int         `json:"confluenceCount"`
	Analyses        int         `json:"analyses"`
	ConnectedAt     time.Time   `json:"connectedAt"`
	ClosedAt        *time.Time  `json:"closedAt,omitempty"`
	CloseReason     CloseReason `json:"closeReason,omitempty"`
}

// Duration returns how long the session lasted, or has lasted so far.
func (r *SessionRecord) Duration() time.Duration {
	if r.ClosedAt != nil {
		return r.ClosedAt.Sub(r.ConnectedAt)
	}
	return time.Since(r.ConnectedAt)
}
