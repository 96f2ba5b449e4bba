// Package evaluator defines the hook through which chart updates are analyzed
// against a session's confluences.
package evaluator

import (
	"context"

	"github.com/confluence-stream/backend/internal/model"
)

// Evaluator turns a chart update and a rule set into an analysis result.
//
// Implementations must not modify confluences and should return promptly
// once ctx is done. They need not be deterministic.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, update model.ChartUpdate, confluences []model.Confluence) (*model.AnalysisResult, error)
}

// Func adapts a plain function to the Evaluator interface.
type Func func(ctx context.Context, update model.ChartUpdate, confluences []model.Confluence) (*model.AnalysisResult, error)

// Name returns "func".
func (f Func) Name() string {
	return "func"
}

// Evaluate calls f.
func (f Func) Evaluate(ctx context.Context, update model.ChartUpdate, confluences []model.Confluence) (*model.AnalysisResult, error) {
	return f(ctx, update, confluences)
}
