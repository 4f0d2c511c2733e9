// Package errors provides standardized error handling for the analytics pipeline.
package errors

import (
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Planning errors. PLANNING_AMBIGUOUS is not a failure: it routes the turn
	// to a clarification prompt instead of execution.
	ErrCodePlanningAmbiguous    ErrorCode = "PLANNING_AMBIGUOUS"
	ErrCodePlanGenerationFailed ErrorCode = "PLAN_GENERATION_FAILED"
	ErrCodeLLMTimeout           ErrorCode = "LLM_TIMEOUT"

	// Execution errors.
	ErrCodeSQLGenerationFailed  ErrorCode = "SQL_GENERATION_FAILED"
	ErrCodeSQLValidationFailed  ErrorCode = "SQL_VALIDATION_FAILED"
	ErrCodeQueryExecutionFailed ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeQueryTimeout         ErrorCode = "QUERY_TIMEOUT"

	// Post-execution outcomes.
	ErrCodeValidationRetryExhausted ErrorCode = "VALIDATION_RETRY_EXHAUSTED"
	ErrCodePresentationFallback     ErrorCode = "PRESENTATION_FALLBACK"

	// Schema map errors.
	ErrCodeSchemaIndexFailed ErrorCode = "SCHEMA_INDEX_FAILED"
	ErrCodeTableNotFound     ErrorCode = "TABLE_NOT_FOUND"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewPlanningAmbiguousError marks a turn that needs clarification before any SQL
// is generated. Never retryable: the user has to answer first.
func NewPlanningAmbiguousError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodePlanningAmbiguous,
		Message:   "Question is ambiguous and needs clarification",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPlanGenerationFailedError creates a non-retryable planning error.
func NewPlanGenerationFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePlanGenerationFailed,
		Message:   "Failed to build a query plan from the question",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewLLMTimeoutError creates a non-retryable model timeout error. The single
// retry budget is reserved for the under-fetch case, not infrastructure.
func NewLLMTimeoutError(stage string) *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMTimeout,
		Message:   "Language model call timed out",
		Details:   fmt.Sprintf("stage: %s", stage),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSQLGenerationFailedError creates a non-retryable generation error.
func NewSQLGenerationFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSQLGenerationFailed,
		Message:   "Failed to generate a SQL statement for the plan",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSQLValidationFailedError marks a generated statement rejected by the static
// guard. The statement was never executed.
func NewSQLValidationFailedError(reason string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSQLValidationFailed,
		Message:   "Generated SQL rejected before execution",
		Details:   reason,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryExecutionFailedError creates a query execution error.
func NewQueryExecutionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryExecutionFailed,
		Message:   "Database query execution error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryTimeoutError creates a query timeout error.
func NewQueryTimeoutError(table string) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryTimeout,
		Message:   "Database query timeout",
		Details:   fmt.Sprintf("primary table: %s", table),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationRetryExhaustedError marks a result that stayed under-fetched
// after the single allowed re-execution. Surfaced as a caveat, not a failure.
func NewValidationRetryExhaustedError(expected, limit int) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationRetryExhausted,
		Message:   "Result may be incomplete after retry",
		Details:   fmt.Sprintf("expected at least %d rows, query limit was %d", expected, limit),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSchemaIndexFailedError creates a retryable schema indexing error.
func NewSchemaIndexFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSchemaIndexFailed,
		Message:   "Failed to index database schema",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewTableNotFoundError creates a non-retryable schema lookup error.
func NewTableNotFoundError(table string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTableNotFound,
		Message:   "Table not present in schema map",
		Details:   fmt.Sprintf("table: %s", table),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}
