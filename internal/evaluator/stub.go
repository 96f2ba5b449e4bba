package evaluator

import (
	"context"

	"github.com/confluence-stream/backend/internal/model"
)

// stubConfidence is the fixed confidence the stub reports for every rule.
const stubConfidence = 0.85

// Stub is a placeholder evaluator: it raises an alert whenever at least one
// confluence is registered and reports every rule as met. Replace it with a
// real implementation before production use.
type Stub struct{}

// NewStub creates a new Stub evaluator.
func NewStub() *Stub {
	return &Stub{}
}

// Name returns the evaluator name.
func (s *Stub) Name() string {
	return "stub"
}

// Evaluate ignores the update payload.
func (s *Stub) Evaluate(_ context.Context, _ model.ChartUpdate, confluences []model.Confluence) (*model.AnalysisResult, error) {
	allMet := len(confluences) > 0

	result := &model.AnalysisResult{
		Alert:       allMet,
		Severity:    model.SeverityInfo,
		Message:     "Monitoring...",
		RulesStatus: make([]model.RuleStatus, 0, len(confluences)),
		DetectedElements: map[string]any{
			"trend":            "uptrend",
			"positionDetected": false,
		},
	}
	if allMet {
		result.Severity = model.SeverityHigh
		result.Message = "All criteria met"
	}

	for _, rule := range confluences {
		result.RulesStatus = append(result.RulesStatus, model.RuleStatus{
			RuleName:   rule.Name,
			Met:        true,
			Confidence: stubConfidence,
		})
	}

	return result, nil
}
