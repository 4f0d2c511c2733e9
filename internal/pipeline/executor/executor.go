// internal/pipeline/executor/executor.go
package executor

import (
	"context"
	"database/sql"
	"errors"
	"time"

	cerrors "insights-engine/internal/common/errors"
	"insights-engine/internal/common/llm"
	"insights-engine/internal/common/logger"
	"insights-engine/internal/common/metrics"
	"insights-engine/internal/models"
	"insights-engine/internal/schema"
)

// Config holds the executor's per-statement limits.
type Config struct {
	QueryTimeout    time.Duration
	MaxRows         int
	DefaultRowLimit int
}

// Executor turns a plan into one tenant-scoped read-only statement, runs it,
// and tags per-field provenance. Every failure path converges on a typed
// failed QueryResult; the executor never raises into the caller.
type Executor struct {
	db              *sql.DB
	generator       llm.Generator
	logger          logger.Logger
	queryTimeout    time.Duration
	maxRows         int
	defaultRowLimit int
}

func New(db *sql.DB, generator llm.Generator, cfg Config, log logger.Logger) *Executor {
	return &Executor{
		db:              db,
		generator:       generator,
		logger:          log.WithFields(map[string]interface{}{"component": "executor"}),
		queryTimeout:    cfg.QueryTimeout,
		maxRows:         cfg.MaxRows,
		defaultRowLimit: cfg.DefaultRowLimit,
	}
}

// Execute runs the plan for a tenant. hint is nil on the first attempt and
// carries the validation gate's feedback on the single allowed retry.
func (e *Executor) Execute(ctx context.Context, plan *models.QueryPlan, m *schema.Map, tenantID string, hint *RetryHint) *models.QueryResult {
	stmt, err := e.generateSQL(ctx, plan, m, hint)
	if err != nil {
		if errors.Is(err, llm.ErrTimeout) {
			return models.FailedResult("", cerrors.NewLLMTimeoutError("sql-generation"))
		}
		return models.FailedResult("", cerrors.NewSQLGenerationFailedError(err))
	}

	if err := CheckStatement(stmt, plan.TablesNeeded, m); err != nil {
		reason := "invalid"
		var ge *GuardError
		if errors.As(err, &ge) {
			reason = ge.Reason
		}
		metrics.SQLRejected.WithLabelValues(reason).Inc()
		e.logger.Warn("generated SQL rejected", map[string]interface{}{
			"reason": reason,
		})
		return models.FailedResult(stmt, cerrors.NewSQLValidationFailedError(err.Error()))
	}

	queryCtx, cancel := context.WithTimeout(ctx, e.queryTimeout)
	defer cancel()

	start := time.Now()
	rows, err := e.db.QueryContext(queryCtx, stmt, tenantID)
	if err != nil {
		if queryCtx.Err() == context.DeadlineExceeded {
			return models.FailedResult(stmt, cerrors.NewQueryTimeoutError(plan.PrimaryTable()))
		}
		return models.FailedResult(stmt, cerrors.NewQueryExecutionFailedError(err))
	}
	defer rows.Close()

	data, err := scanRows(rows, m)
	if err != nil {
		if queryCtx.Err() == context.DeadlineExceeded {
			return models.FailedResult(stmt, cerrors.NewQueryTimeoutError(plan.PrimaryTable()))
		}
		return models.FailedResult(stmt, cerrors.NewQueryExecutionFailedError(err))
	}
	elapsed := time.Since(start).Milliseconds()

	result := &models.QueryResult{
		Success:         true,
		SQL:             stmt,
		Data:            data,
		RowCount:        len(data.Rows),
		ExecutionTimeMS: elapsed,
		FieldConfidence: tagProvenance(data.Columns, plan.TablesNeeded, m),
	}

	e.logger.Info("query executed", map[string]interface{}{
		"rowCount":        result.RowCount,
		"executionTimeMs": elapsed,
		"retry":           hint != nil,
	})
	return result
}

// tagProvenance marks each returned field verified or ai_inferred. A field is
// verified only when it resolves to a declared column of a non-derived plan
// table; expressions and alias columns stay ai_inferred.
func tagProvenance(columns []string, tables []string, m *schema.Map) []models.FieldConfidence {
	out := make([]models.FieldConfidence, 0, len(columns))
	for _, col := range columns {
		fc := models.FieldConfidence{Field: col, Confidence: models.ConfidenceAIInferred}
		for _, tableName := range tables {
			t, ok := m.Get(tableName)
			if !ok {
				continue
			}
			if _, found := t.Column(col); found {
				fc.SourceTable = tableName
				if t.Derived {
					fc.Confidence = models.ConfidenceAIInferred
				} else {
					fc.Confidence = models.ConfidenceVerified
				}
				break
			}
		}
		out = append(out, fc)
	}
	return out
}
