// internal/pipeline/presenter/narrative.go
package presenter

import (
	"fmt"
	"strings"

	"insights-engine/internal/models"
	"insights-engine/internal/pipeline/formatter"
)

const inferredDisclaimer = "Some of these values are inferred from behavioral models rather than recorded data."

// buildNarrative writes the template-appropriate summary sentence and appends
// provenance annotations: every ai_inferred field displayed gets exactly one
// "_(AI-inferred)_" marker, and one trailing disclaimer covers them all.
func buildNarrative(viz *models.Visualization, result *models.QueryResult, plan *models.QueryPlan) string {
	var b strings.Builder

	switch viz.Type {
	case models.VisualizationProfile:
		if viz.Title != "" {
			fmt.Fprintf(&b, "Here's what I found for %s.", viz.Title)
		} else {
			b.WriteString("Here's the record you asked about.")
		}
	case models.VisualizationChart:
		fmt.Fprintf(&b, "Here are the %d results ranked by %s.", result.RowCount, strings.ToLower(viz.Title))
	case models.VisualizationMetric:
		b.WriteString("Here are the headline numbers for your question.")
	case models.VisualizationTable:
		fmt.Fprintf(&b, "Found %d matching records.", result.RowCount)
	}

	inferred := inferredDisplayedFields(result)
	if len(inferred) > 0 {
		labels := make([]string, len(inferred))
		for i, f := range inferred {
			labels[i] = fmt.Sprintf("%s _(AI-inferred)_", formatter.HumanizeColumn(f))
		}
		fmt.Fprintf(&b, " Includes %s.", strings.Join(labels, ", "))
		b.WriteString(" " + inferredDisclaimer)
	}

	return b.String()
}

// inferredDisplayedFields lists ai_inferred fields in column order, restricted
// to fields actually present in the data.
func inferredDisplayedFields(result *models.QueryResult) []string {
	var out []string
	for _, col := range result.Data.Columns {
		fc, ok := result.ConfidenceFor(col)
		if !ok || fc.Confidence != models.ConfidenceAIInferred {
			continue
		}
		if len(result.Data.Rows) > 0 {
			if v, present := result.Data.Rows[0][col]; !present || v.IsNull() {
				continue
			}
		}
		out = append(out, col)
	}
	return out
}
