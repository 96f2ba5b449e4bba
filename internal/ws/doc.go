// Package ws provides WebSocket connection handling and message routing
// for confluence sessions.
//
// The package implements:
//   - Client: a connection's bounded send queue, usable as model.Connection
//   - Handler: upgrades requests, registers sessions and runs the read/write pumps
//   - Dispatcher: decodes frames and handles ping, init, chart_update and update_confluences
//   - Service: owns the registry and ties the handler, dispatcher and heartbeat monitor together
//
// Every frame is a JSON object with a string "type". Frames from one
// connection are handled in order on its read pump, so a session never has
// more than one evaluation requested at a time. Evaluations that outlive the
// configured timeout are answered with an error and keep the session busy
// until the evaluator returns.
package ws
