// internal/pipeline/executor/executor_test.go
package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	cerrors "insights-engine/internal/common/errors"
	"insights-engine/internal/common/llm"
	"insights-engine/internal/common/logger"
	"insights-engine/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

type stubGenerator struct {
	response string
	err      error
}

func (s *stubGenerator) GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return s.response, s.err
}

func (s *stubGenerator) Model() string { return "stub" }

func testConfig() Config {
	return Config{
		QueryTimeout:    5 * time.Second,
		MaxRows:         500,
		DefaultRowLimit: 50,
	}
}

func testPlan(tables ...string) *models.QueryPlan {
	return &models.QueryPlan{
		TurnType:     models.TurnTypeNew,
		Intent:       "show customers",
		Domain:       "commerce",
		TablesNeeded: tables,
	}
}

// ==========================
// Fallback Query Builder
// ==========================

func TestBuildFallbackQuery(t *testing.T) {
	m := testSchemaMap()
	e := New(nil, nil, testConfig(), logger.NewNoOpLogger())

	t.Run("flat tenant-scoped read", func(t *testing.T) {
		stmt, err := e.buildFallbackQuery(testPlan("customers"), m, nil)
		assert.NoError(t, err)
		assert.Equal(t,
			"SELECT id, organization_id, email, first_name, last_name, total_revenue, order_count FROM customers WHERE organization_id = $1 LIMIT 50",
			stmt)
		assert.NoError(t, CheckStatement(stmt, []string{"customers"}, m))
	})

	t.Run("ranking intent orders by first numeric column", func(t *testing.T) {
		plan := testPlan("customers")
		plan.Intent = "top customers by revenue"
		plan.ExpectedCount = intPtr(5)

		stmt, err := e.buildFallbackQuery(plan, m, nil)
		assert.NoError(t, err)
		assert.Contains(t, stmt, "ORDER BY total_revenue DESC")
		assert.Contains(t, stmt, "LIMIT 5")
	})

	t.Run("retry hint raises the limit", func(t *testing.T) {
		plan := testPlan("customers")
		plan.ExpectedCount = intPtr(5)

		stmt, err := e.buildFallbackQuery(plan, m, &RetryHint{MinLimit: 10, Reason: "under-fetch"})
		assert.NoError(t, err)
		assert.Contains(t, stmt, "LIMIT 10")
	})

	t.Run("limit capped at max rows", func(t *testing.T) {
		plan := testPlan("customers")
		plan.ExpectedCount = intPtr(10000)

		stmt, err := e.buildFallbackQuery(plan, m, nil)
		assert.NoError(t, err)
		assert.Contains(t, stmt, "LIMIT 500")
	})

	t.Run("unknown primary table", func(t *testing.T) {
		_, err := e.buildFallbackQuery(testPlan("invoices"), m, nil)
		assert.Error(t, err)
	})
}

func TestStripSQLFence(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"bare sql", "SELECT 1", "SELECT 1"},
		{"sql fence", "```sql\nSELECT 1\n```", "SELECT 1"},
		{"plain fence", "```\nSELECT 1\n```", "SELECT 1"},
		{"surrounding whitespace", "  SELECT 1  ", "SELECT 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, stripSQLFence(tt.input))
		})
	}
}

// ==========================
// Execute
// ==========================

func TestExecutor_Execute_Success(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	assert.NoError(t, err)
	defer db.Close()

	m := testSchemaMap()
	e := New(db, nil, testConfig(), logger.NewNoOpLogger())

	expectedSQL := "SELECT id, organization_id, email, first_name, last_name, total_revenue, order_count FROM customers WHERE organization_id = $1 LIMIT 50"
	mock.ExpectQuery(expectedSQL).
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "email", "first_name", "last_name", "total_revenue", "order_count"}).
			AddRow("c-1", "org-1", "sarah@example.com", "Sarah", "Chen", 1249.50, int64(14)).
			AddRow("c-2", "org-1", "mike@example.com", "Mike", "Torres", 310.00, int64(3)))

	result := e.Execute(context.Background(), testPlan("customers"), m, "org-1", nil)

	assert.True(t, result.Success)
	assert.Equal(t, expectedSQL, result.SQL)
	assert.Equal(t, 2, result.RowCount)
	assert.Equal(t, []string{"id", "organization_id", "email", "first_name", "last_name", "total_revenue", "order_count"}, result.Data.Columns)
	assert.Equal(t, models.TextValue("sarah@example.com"), result.Data.Rows[0]["email"])
	assert.Equal(t, models.IntValue(14), result.Data.Rows[0]["order_count"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutor_Execute_ProvenanceTagging(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	assert.NoError(t, err)
	defer db.Close()

	m := testSchemaMap()
	gen := &stubGenerator{
		response: "SELECT c.email, ci.churn_risk, ci.preferred_category FROM customers c JOIN customer_insights ci ON ci.customer_id = c.id WHERE c.organization_id = $1 AND ci.organization_id = $1 LIMIT 10",
	}
	e := New(db, gen, testConfig(), logger.NewNoOpLogger())

	mock.ExpectQuery("SELECT c.email").
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"email", "churn_risk", "preferred_category"}).
			AddRow("sarah@example.com", 0.72, "outdoor gear"))

	plan := testPlan("customers", "customer_insights")
	result := e.Execute(context.Background(), plan, m, "org-1", nil)

	assert.True(t, result.Success)

	email, ok := result.ConfidenceFor("email")
	assert.True(t, ok)
	assert.Equal(t, models.ConfidenceVerified, email.Confidence)
	assert.Equal(t, "customers", email.SourceTable)

	churn, ok := result.ConfidenceFor("churn_risk")
	assert.True(t, ok)
	assert.Equal(t, models.ConfidenceAIInferred, churn.Confidence)
	assert.Equal(t, "customer_insights", churn.SourceTable)

	category, ok := result.ConfidenceFor("preferred_category")
	assert.True(t, ok)
	assert.Equal(t, models.ConfidenceAIInferred, category.Confidence)
}

func TestExecutor_Execute_GuardRejection(t *testing.T) {
	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	m := testSchemaMap()
	gen := &stubGenerator{response: "DELETE FROM customers WHERE organization_id = $1"}
	e := New(db, gen, testConfig(), logger.NewNoOpLogger())

	result := e.Execute(context.Background(), testPlan("customers"), m, "org-1", nil)

	assert.False(t, result.Success)
	assert.Equal(t, cerrors.ErrCodeSQLValidationFailed, result.Error.Code)
	assert.Empty(t, result.Data.Rows)
}

func TestExecutor_Execute_GenerationTimeout(t *testing.T) {
	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	gen := &stubGenerator{err: fmt.Errorf("generate: %w", llm.ErrTimeout)}
	e := New(db, gen, testConfig(), logger.NewNoOpLogger())

	result := e.Execute(context.Background(), testPlan("customers"), testSchemaMap(), "org-1", nil)

	assert.False(t, result.Success)
	assert.Equal(t, cerrors.ErrCodeLLMTimeout, result.Error.Code)
	assert.True(t, result.Error.Retryable)
}

func TestExecutor_Execute_GenerationFailure(t *testing.T) {
	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	gen := &stubGenerator{err: errors.New("model unavailable")}
	e := New(db, gen, testConfig(), logger.NewNoOpLogger())

	result := e.Execute(context.Background(), testPlan("customers"), testSchemaMap(), "org-1", nil)

	assert.False(t, result.Success)
	assert.Equal(t, cerrors.ErrCodeSQLGenerationFailed, result.Error.Code)
}

func TestExecutor_Execute_QueryFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("connection reset"))

	e := New(db, nil, testConfig(), logger.NewNoOpLogger())
	result := e.Execute(context.Background(), testPlan("customers"), testSchemaMap(), "org-1", nil)

	assert.False(t, result.Success)
	assert.Equal(t, cerrors.ErrCodeQueryExecutionFailed, result.Error.Code)
	assert.NotEmpty(t, result.SQL)
}

func TestExecutor_Execute_EmptyResult(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "email", "first_name", "last_name", "total_revenue", "order_count"}))

	e := New(db, nil, testConfig(), logger.NewNoOpLogger())
	result := e.Execute(context.Background(), testPlan("customers"), testSchemaMap(), "org-1", nil)

	assert.True(t, result.Success)
	assert.Equal(t, 0, result.RowCount)
	assert.True(t, result.Data.Empty())
}
