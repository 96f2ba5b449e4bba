package model

import "fmt"

// Severity classifies an analysis result.
type Severity string

const (
	SeverityInfo   Severity = "info"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// RuleStatus reports how a single confluence evaluated.
type RuleStatus struct {
	RuleName   string  `json:"ruleName"`
	Met        bool    `json:"met"`
	Confidence float64 `json:"confidence"`
}

// AnalysisResult is what an evaluator returns for one chart update.
// DetectedElements is evaluator-defined and opaque to the server.
type AnalysisResult struct {
	Alert            bool           `json:"alert"`
	Severity         Severity       `json:"severity"`
	Message          string         `json:"message"`
	RulesStatus      []RuleStatus   `json:"rulesStatus"`
	DetectedElements map[string]any `json:"detectedElements"`
}

// Validate checks the invariants the server relies on when forwarding a result.
func (r *AnalysisResult) Validate() error {
	for _, rs := range r.RulesStatus {
		if rs.Confidence < 0 || rs.Confidence > 1 {
			return fmt.Errorf("rule %q: confidence %v outside [0,1]", rs.RuleName, rs.Confidence)
		}
	}
	return nil
}

// Normalize replaces nil collections so they encode as [] and {}.
func (r *AnalysisResult) Normalize() {
	if r.RulesStatus == nil {
		r.RulesStatus = []RuleStatus{}
	}
	if r.DetectedElements == nil {
		r.DetectedElements = map[string]any{}
	}
}
