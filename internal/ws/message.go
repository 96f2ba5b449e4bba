package ws

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/confluence-stream/backend/internal/model"
)

// MessageType represents the type of WebSocket message.
type MessageType string

const (
	// Client -> Server message types
	MessageTypePing              MessageType = "ping"
	MessageTypeInit              MessageType = "init"
	MessageTypeChartUpdate       MessageType = "chart_update"
	MessageTypeUpdateConfluences MessageType = "update_confluences"

	// Server -> Client message types
	MessageTypeConnected      MessageType = "connected"
	MessageTypePong           MessageType = "pong"
	MessageTypeInitAck        MessageType = "init_ack"
	MessageTypeAnalysisResult MessageType = "analysis_result"
	MessageTypeError          MessageType = "error"
)

// Inbound is a decoded client frame. UserID and Confluences are only
// populated for init and update_confluences; Raw always holds the frame.
type Inbound struct {
	Type        MessageType
	UserID      string
	Confluences []model.Confluence
	Raw         json.RawMessage
}

type inboundEnvelope struct {
	Type *string `json:"type"`
}

type inboundFields struct {
	UserID      *string           `json:"userId"`
	Confluences []json.RawMessage `json:"confluences"`
}

// DecodeInbound parses a client frame. It fails closed: anything that is
// not a JSON object with a string type, or whose known fields have the
// wrong shape, is reported as model.ErrMalformedMessage.
func DecodeInbound(data []byte) (*Inbound, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: expected a JSON object", model.ErrMalformedMessage)
	}

	var env inboundEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedMessage, err)
	}
	if env.Type == nil {
		return nil, fmt.Errorf("%w: missing message type", model.ErrMalformedMessage)
	}

	msg := &Inbound{
		Type: MessageType(*env.Type),
		Raw:  json.RawMessage(trimmed),
	}

	switch msg.Type {
	case MessageTypeInit, MessageTypeUpdateConfluences:
		if err := decodeSessionFields(trimmed, msg); err != nil {
			return nil, err
		}
	}

	return msg, nil
}

func decodeSessionFields(data []byte, msg *Inbound) error {
	var fields inboundFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("%w: %v", model.ErrMalformedMessage, err)
	}

	if fields.UserID != nil {
		msg.UserID = *fields.UserID
	}

	msg.Confluences = make([]model.Confluence, 0, len(fields.Confluences))
	for i, raw := range fields.Confluences {
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return fmt.Errorf("%w: confluence %d is null", model.ErrMalformedMessage, i)
		}
		var c model.Confluence
		if err := json.Unmarshal(raw, &c); err != nil {
			return fmt.Errorf("%w: confluence %d: %v", model.ErrMalformedMessage, i, err)
		}
		msg.Confluences = append(msg.Confluences, c)
	}
	return nil
}

// Connected is sent once when a connection is opened.
type Connected struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId"`
	Timestamp int64       `json:"timestamp"`
}

// Ack is the shape of pong and init_ack.
type Ack struct {
	Type      MessageType `json:"type"`
	Timestamp int64       `json:"timestamp"`
}

// Latency reports when a chart update was received and answered, in Unix
// milliseconds, and the evaluator time in fractional milliseconds.
type Latency struct {
	Received       int64   `json:"received"`
	Processed      int64   `json:"processed"`
	ProcessingTime float64 `json:"processingTime"`
}

// AnalysisResult is the evaluator result flattened next to the type and
// latency fields.
type AnalysisResult struct {
	Type MessageType `json:"type"`
	*model.AnalysisResult
	Latency Latency `json:"latency"`
}

// ErrorMessage reports a failed frame to the client.
type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

func unixMilli(t time.Time) int64 {
	return t.UnixMilli()
}

func durationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// NewConnected builds the connected frame.
func NewConnected(sessionID string, now time.Time) *Connected {
	return &Connected{Type: MessageTypeConnected, SessionID: sessionID, Timestamp: unixMilli(now)}
}

// NewPong builds a pong frame.
func NewPong(now time.Time) *Ack {
	return &Ack{Type: MessageTypePong, Timestamp: unixMilli(now)}
}

// NewInitAck builds an init_ack frame.
func NewInitAck(now time.Time) *Ack {
	return &Ack{Type: MessageTypeInitAck, Timestamp: unixMilli(now)}
}

// NewAnalysisResult builds an analysis_result frame.
func NewAnalysisResult(result *model.AnalysisResult, received, processed time.Time, elapsed time.Duration) *AnalysisResult {
	result.Normalize()
	return &AnalysisResult{
		Type:           MessageTypeAnalysisResult,
		AnalysisResult: result,
		Latency: Latency{
			Received:       unixMilli(received),
			Processed:      unixMilli(processed),
			ProcessingTime: durationMillis(elapsed),
		},
	}
}

// NewError builds an error frame.
func NewError(message string) *ErrorMessage {
	return &ErrorMessage{Type: MessageTypeError, Message: message}
}
