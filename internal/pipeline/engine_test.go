// internal/pipeline/engine_test.go
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insights-engine/internal/common/logger"
	"insights-engine/internal/conversation"
	"insights-engine/internal/models"
	"insights-engine/internal/pipeline/executor"
	"insights-engine/internal/pipeline/planner"
	"insights-engine/internal/pipeline/presenter"
	"insights-engine/internal/schema"
)

// ==========================
// Test Fixtures
// ==========================

type stubSchemas struct {
	m   *schema.Map
	err error
}

func (s *stubSchemas) Load(ctx context.Context, tenantID string) (*schema.Map, error) {
	return s.m, s.err
}

type panickySchemas struct{}

func (panickySchemas) Load(ctx context.Context, tenantID string) (*schema.Map, error) {
	panic("schema cache corrupted")
}

func engineSchemaMap() *schema.Map {
	return &schema.Map{
		Tables: map[string]*schema.TableSchema{
			"customers": {
				Name:   "customers",
				Domain: "commerce",
				Columns: []schema.ColumnSchema{
					{Name: "id", Type: schema.TypeUUID},
					{Name: "organization_id", Type: schema.TypeUUID},
					{Name: "email", Type: schema.TypeText},
					{Name: "first_name", Type: schema.TypeText},
					{Name: "last_name", Type: schema.TypeText},
					{Name: "total_revenue", Type: schema.TypeNumeric},
					{Name: "order_count", Type: schema.TypeInteger},
				},
			},
			"leads": {
				Name:   "leads",
				Domain: "crm",
				Columns: []schema.ColumnSchema{
					{Name: "id", Type: schema.TypeUUID},
					{Name: "organization_id", Type: schema.TypeUUID},
					{Name: "email", Type: schema.TypeText},
					{Name: "status", Type: schema.TypeText},
				},
			},
			"contacts": {
				Name:   "contacts",
				Domain: "crm",
				Columns: []schema.ColumnSchema{
					{Name: "id", Type: schema.TypeUUID},
					{Name: "organization_id", Type: schema.TypeUUID},
					{Name: "email", Type: schema.TypeText},
					{Name: "phone", Type: schema.TypeText},
				},
			},
		},
	}
}

func newTestEngine(t *testing.T, db *sql.DB, schemas SchemaLoader, maxRows int) (*Engine, *conversation.Store) {
	t.Helper()
	log := logger.NewNoOpLogger()
	pl := planner.New(nil, log)
	ex := executor.New(db, nil, executor.Config{
		QueryTimeout:    5 * time.Second,
		MaxRows:         maxRows,
		DefaultRowLimit: 50,
	}, log)
	pr := presenter.New(log)
	store := conversation.NewStore()
	return NewEngine(pl, ex, pr, schemas, store, nil, "test-model", log), store
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

// ==========================
// Happy Path
// ==========================

func TestHandleTurn_RankedQuestion(t *testing.T) {
	db, mock := newMockDB(t)
	eng, store := newTestEngine(t, db, &stubSchemas{m: engineSchemaMap()}, 500)

	mock.ExpectQuery("SELECT id, organization_id, email, first_name, last_name, total_revenue, order_count FROM customers WHERE organization_id = $1 ORDER BY total_revenue DESC LIMIT 2").
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "email", "first_name", "last_name", "total_revenue", "order_count"}).
			AddRow("c-1", "org-1", "sarah@example.com", "Sarah", "Chen", 1249.50, int64(14)).
			AddRow("c-2", "org-1", "mike@example.com", "Mike", "Torres", 310.00, int64(3)))

	resp := eng.HandleTurn(context.Background(), TurnRequest{
		Message:        "show me the top 2 customers by revenue",
		ConversationID: "conv-1",
		TenantID:       "org-1",
	})

	require.NotNil(t, resp)
	assert.False(t, resp.Clarification)
	assert.NotEqual(t, apologeticMessage, resp.FormattedMessage)
	assert.Contains(t, resp.FormattedMessage, "<!--rowcount:2-->")
	assert.Contains(t, resp.FormattedMessage, "Sarah")
	require.NotNil(t, resp.Visualization)
	assert.Equal(t, models.VisualizationChart, resp.Visualization.Type)
	assert.NotEmpty(t, resp.NarrativeSummary)
	assert.NotContains(t, resp.NarrativeSummary, "incomplete")

	// The turn lands in conversation history.
	history := store.Get("conv-1", "org-1").History()
	require.Len(t, history, 1)
	assert.Equal(t, []string{"customers"}, history[0].Tables)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleTurn_SingleEntityBecomesReferable(t *testing.T) {
	db, mock := newMockDB(t)
	eng, store := newTestEngine(t, db, &stubSchemas{m: engineSchemaMap()}, 500)

	mock.ExpectQuery("SELECT id, organization_id, email, first_name, last_name, total_revenue, order_count FROM customers WHERE organization_id = $1 LIMIT 50").
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "email", "first_name", "last_name", "total_revenue", "order_count"}).
			AddRow("c-1", "org-1", "sarah@example.com", "Sarah", "Chen", 1249.50, int64(14)))

	resp := eng.HandleTurn(context.Background(), TurnRequest{
		Message:        "show me the customer sarah chen",
		ConversationID: "conv-1",
		TenantID:       "org-1",
	})

	require.NotNil(t, resp.Visualization)
	assert.Equal(t, models.VisualizationProfile, resp.Visualization.Type)
	assert.Equal(t, "Sarah Chen", resp.Visualization.Title)

	// A later "that customer" resolves through the folded reference.
	refs := store.Get("conv-1", "org-1").References()
	assert.Equal(t, "Sarah Chen", refs["customer"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Clarification
// ==========================

func TestHandleTurn_AmbiguousTermAsksForClarification(t *testing.T) {
	db, mock := newMockDB(t)
	eng, store := newTestEngine(t, db, &stubSchemas{m: engineSchemaMap()}, 500)

	resp := eng.HandleTurn(context.Background(), TurnRequest{
		Message:        "show me our prospects",
		ConversationID: "conv-1",
		TenantID:       "org-1",
	})

	require.NotNil(t, resp)
	assert.True(t, resp.Clarification)
	assert.ElementsMatch(t, []string{"leads", "contacts"}, resp.ClarificationOptions)
	assert.Nil(t, resp.Visualization)

	// Clarification turns are recorded; no query ever ran.
	assert.Len(t, store.Get("conv-1", "org-1").History(), 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Bounded Retry
// ==========================

func TestHandleTurn_RetryHappensExactlyOnce(t *testing.T) {
	db, mock := newMockDB(t)
	// Row cap below the asked-for count forces a permanent under-fetch.
	eng, _ := newTestEngine(t, db, &stubSchemas{m: engineSchemaMap()}, 3)

	cappedSQL := "SELECT id, organization_id, email, first_name, last_name, total_revenue, order_count FROM customers WHERE organization_id = $1 ORDER BY total_revenue DESC LIMIT 3"
	rows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "organization_id", "email", "first_name", "last_name", "total_revenue", "order_count"}).
			AddRow("c-1", "org-1", "a@example.com", "Ada", "Wong", 900.0, int64(9)).
			AddRow("c-2", "org-1", "b@example.com", "Ben", "Ito", 500.0, int64(5)).
			AddRow("c-3", "org-1", "c@example.com", "Cat", "Diaz", 100.0, int64(1))
	}
	mock.ExpectQuery(cappedSQL).WithArgs("org-1").WillReturnRows(rows())
	mock.ExpectQuery(cappedSQL).WithArgs("org-1").WillReturnRows(rows())

	resp := eng.HandleTurn(context.Background(), TurnRequest{
		Message:        "show me the top 5 customers by revenue",
		ConversationID: "conv-1",
		TenantID:       "org-1",
	})

	require.NotNil(t, resp)
	assert.NotEqual(t, apologeticMessage, resp.FormattedMessage)
	assert.Contains(t, resp.NarrativeSummary, "Note: this answer may be incomplete.")

	// Exactly two executions: sqlmock fails the test if fewer or more ran.
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Failure Paths
// ==========================

func TestHandleTurn_SchemaLoadFailure(t *testing.T) {
	db, _ := newMockDB(t)
	eng, _ := newTestEngine(t, db, &stubSchemas{err: errors.New("index unavailable")}, 500)

	resp := eng.HandleTurn(context.Background(), TurnRequest{
		Message:        "show me customers",
		ConversationID: "conv-1",
		TenantID:       "org-1",
	})

	require.NotNil(t, resp)
	assert.Equal(t, apologeticMessage, resp.FormattedMessage)
	assert.Nil(t, resp.Visualization)
}

func TestHandleTurn_QueryFailureStaysApologetic(t *testing.T) {
	db, mock := newMockDB(t)
	eng, _ := newTestEngine(t, db, &stubSchemas{m: engineSchemaMap()}, 500)

	mock.ExpectQuery("SELECT id, organization_id, email, first_name, last_name, total_revenue, order_count FROM customers WHERE organization_id = $1 LIMIT 50").
		WithArgs("org-1").
		WillReturnError(errors.New("connection reset by peer"))

	resp := eng.HandleTurn(context.Background(), TurnRequest{
		Message:        "show me customers",
		ConversationID: "conv-1",
		TenantID:       "org-1",
	})

	require.NotNil(t, resp)
	assert.Equal(t, apologeticMessage, resp.FormattedMessage)
	// Raw driver errors never reach the user.
	assert.NotContains(t, resp.FormattedMessage, "connection reset")
}

func TestHandleTurn_PanicRecoveredAtBoundary(t *testing.T) {
	db, _ := newMockDB(t)
	eng, _ := newTestEngine(t, db, panickySchemas{}, 500)

	var resp *TurnResponse
	assert.NotPanics(t, func() {
		resp = eng.HandleTurn(context.Background(), TurnRequest{
			Message:        "show me customers",
			ConversationID: "conv-1",
			TenantID:       "org-1",
		})
	})

	require.NotNil(t, resp)
	assert.Equal(t, apologeticMessage, resp.FormattedMessage)
}

func TestHandleTurn_CancelledContext(t *testing.T) {
	db, _ := newMockDB(t)
	eng, _ := newTestEngine(t, db, &stubSchemas{m: engineSchemaMap()}, 500)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := eng.HandleTurn(ctx, TurnRequest{
		Message:        "show me customers",
		ConversationID: "conv-1",
		TenantID:       "org-1",
	})

	require.NotNil(t, resp)
	assert.Equal(t, apologeticMessage, resp.FormattedMessage)
}

// ==========================
// Helpers
// ==========================

func TestSingularNoun(t *testing.T) {
	tests := []struct {
		table string
		want  string
	}{
		{"customers", "customer"},
		{"companies", "company"},
		{"deals", "deal"},
		{"status", "statu"}, // imperfect, but referable either way
		{"x", "x"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, singularNoun(tt.table), tt.table)
	}
}
