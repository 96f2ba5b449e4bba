// Package evaluator exposes the evaluation hook to code outside this module,
// so real rule engines can be plugged into the server.
package evaluator

import (
	"github.com/confluence-stream/backend/internal/evaluator"
	"github.com/confluence-stream/backend/internal/model"
)

// Re-export types from internal packages for external use
type (
	Evaluator      = evaluator.Evaluator
	Func           = evaluator.Func
	ChartUpdate    = model.ChartUpdate
	Confluence     = model.Confluence
	AnalysisResult = model.AnalysisResult
	RuleStatus     = model.RuleStatus
	Severity       = model.Severity
)

// Severity levels.
const (
	SeverityInfo   = model.SeverityInfo
	SeverityLow    = model.SeverityLow
	SeverityMedium = model.SeverityMedium
	SeverityHigh   = model.SeverityHigh
)

// NewStub creates the placeholder evaluator.
func NewStub() Evaluator {
	return evaluator.NewStub()
}
