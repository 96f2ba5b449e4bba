package model

import "errors"

var (
	// ErrSessionNotFound is returned when a session is not found.
	ErrSessionNotFound = errors.New("session not found")

	// ErrIDExhausted is returned when no unused session id could be generated.
	ErrIDExhausted = errors.New("could not generate a unique session id")

	// ErrMalformedMessage is returned when an inbound frame cannot be decoded.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrUnknownMessageType is returned in strict mode for unrecognized types.
	ErrUnknownMessageType = errors.New("unknown message type")

	// ErrEvaluationTimeout is returned when the evaluator does not answer in time.
	ErrEvaluationTimeout = errors.New("evaluation timed out")

	// ErrEvaluationInFlight is returned when a session already has a pending evaluation.
	ErrEvaluationInFlight = errors.New("evaluation already in progress")
)
