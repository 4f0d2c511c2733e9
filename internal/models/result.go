// internal/models/result.go
package models

import "insights-engine/internal/common/errors"

// Confidence tags field provenance: values read from declared columns are
// verified; values sourced from behavioral/derived tables are ai_inferred.
type Confidence string

const (
	ConfidenceVerified   Confidence = "verified"
	ConfidenceAIInferred Confidence = "ai_inferred"
)

// FieldConfidence is provenance metadata parallel to the row data, keyed by
// field name rather than embedded in it.
type FieldConfidence struct {
	Field       string     `json:"field"`
	Confidence  Confidence `json:"confidence"`
	SourceTable string     `json:"source_table,omitempty"`
}

// QueryResult is the ephemeral outcome of one executed plan. Rendered once,
// optionally logged for telemetry, never cached.
type QueryResult struct {
	Success          bool                  `json:"success"`
	SQL              string                `json:"sql,omitempty"` // retained for diagnostics, never user-visible
	Data             RowSet                `json:"data"`
	RowCount         int                   `json:"row_count"`
	ExecutionTimeMS  int64                 `json:"execution_time_ms"`
	FieldConfidence  []FieldConfidence     `json:"field_confidence,omitempty"`
	Error            *errors.StandardError `json:"error,omitempty"`
	NarrativeSummary string                `json:"narrative_summary,omitempty"`
	Visualization    *Visualization        `json:"visualization,omitempty"`
}

// ConfidenceFor returns the provenance entry for a field, if any.
func (r *QueryResult) ConfidenceFor(field string) (FieldConfidence, bool) {
	for _, fc := range r.FieldConfidence {
		if fc.Field == field {
			return fc, true
		}
	}
	return FieldConfidence{}, false
}

// FailedResult builds the terminal result every failure path converges on.
func FailedResult(sql string, stdErr *errors.StandardError) *QueryResult {
	return &QueryResult{
		Success: false,
		SQL:     sql,
		Error:   stdErr,
	}
}
