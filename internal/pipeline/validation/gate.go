// internal/pipeline/validation/gate.go
package validation

import (
	"fmt"

	"insights-engine/internal/models"
	"insights-engine/internal/pipeline/executor"
)

// Outcome is the gate's verdict for one executed result.
type Outcome struct {
	NeedsRetry bool   `json:"needs_retry"`
	Reason     string `json:"reason,omitempty"`
}

// Check detects under-fetch: the plan wanted N rows but the generated statement
// capped below N. That is the only condition worth the single retry. A query
// whose limit was adequate but whose data simply has fewer matching rows is a
// correct, complete answer. Failed and empty results are terminal.
func Check(result *models.QueryResult, plan *models.QueryPlan) Outcome {
	if result == nil || plan == nil {
		return Outcome{}
	}
	if !result.Success || result.RowCount == 0 {
		return Outcome{}
	}
	if plan.ExpectedCount == nil {
		return Outcome{}
	}

	limit := executor.LimitOf(result.SQL)
	if limit == nil {
		return Outcome{}
	}
	if *limit < *plan.ExpectedCount {
		return Outcome{
			NeedsRetry: true,
			Reason: fmt.Sprintf("query limit %d is below the expected %d rows",
				*limit, *plan.ExpectedCount),
		}
	}
	return Outcome{}
}
