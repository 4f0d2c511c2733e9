// test/e2e/e2e_test.go
package e2e

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insights-engine/internal/common/config"
	"insights-engine/internal/common/database"
	"insights-engine/internal/common/logger"
	"insights-engine/internal/conversation"
	"insights-engine/internal/pipeline"
	"insights-engine/internal/pipeline/executor"
	"insights-engine/internal/pipeline/planner"
	"insights-engine/internal/pipeline/presenter"
	"insights-engine/internal/schema"
	"insights-engine/internal/server"
)

// The full stack wired together: schema indexing out of information_schema,
// Redis-backed schema cache, deterministic planning, guarded execution,
// presentation, all driven over HTTP. The database and Redis are the only
// substitutions (sqlmock, miniredis); everything in between is the real thing.

const customerColumns = "id, organization_id, email, first_name, last_name, total_revenue, order_count"

func catalogRows() *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "udt_name", "is_nullable"})
	add := func(col, dataType, udt string) {
		rows.AddRow("customers", col, dataType, udt, "NO")
	}
	add("id", "uuid", "uuid")
	add("organization_id", "uuid", "uuid")
	add("email", "text", "text")
	add("first_name", "text", "text")
	add("last_name", "text", "text")
	add("total_revenue", "numeric", "numeric")
	add("order_count", "integer", "int4")
	return rows
}

func startStack(t *testing.T) (*httptest.Server, sqlmock.Sqlmock) {
	t.Helper()
	log := logger.NewNoOpLogger()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	redisClient, err := database.NewRedis(config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)

	indexer := schema.NewIndexer(db, log)
	cache := schema.NewCache(redisClient, time.Hour, log)
	provider := schema.NewProvider(indexer, cache)

	pl := planner.New(nil, log)
	ex := executor.New(db, nil, executor.Config{
		QueryTimeout:    5 * time.Second,
		MaxRows:         500,
		DefaultRowLimit: 50,
	}, log)
	pr := presenter.New(log)

	engine := pipeline.NewEngine(pl, ex, pr, provider, conversation.NewStore(), nil, "test-model", log)
	srv := server.New(0, engine, &database.PostgresClient{DB: db}, log)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, mock
}

func postTurn(t *testing.T, ts *httptest.Server, message, conversationID string) *pipeline.TurnResponse {
	t.Helper()
	body, err := json.Marshal(map[string]string{
		"message":         message,
		"conversation_id": conversationID,
		"tenant_id":       "org-1",
	})
	require.NoError(t, err)

	httpResp, err := http.Post(ts.URL+"/api/conversation/turn", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer httpResp.Body.Close()
	require.Equal(t, http.StatusOK, httpResp.StatusCode)

	var resp pipeline.TurnResponse
	require.NoError(t, json.NewDecoder(httpResp.Body).Decode(&resp))
	return &resp
}

func TestConversationOverHTTP(t *testing.T) {
	ts, mock := startStack(t)

	// First turn indexes the catalog; the second is served from the Redis
	// cache, so the catalog queries are expected exactly once.
	mock.ExpectQuery("FROM information_schema.columns").WillReturnRows(catalogRows())
	mock.ExpectQuery("FOREIGN KEY").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "foreign_table"}))

	rankedSQL := "SELECT " + customerColumns +
		" FROM customers WHERE organization_id = $1 ORDER BY total_revenue DESC LIMIT 2"
	mock.ExpectQuery(regexp.QuoteMeta(rankedSQL)).
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "email", "first_name", "last_name", "total_revenue", "order_count"}).
			AddRow("c-1", "org-1", "sarah@example.com", "Sarah", "Chen", 1249.50, int64(14)).
			AddRow("c-2", "org-1", "mike@example.com", "Mike", "Torres", 310.00, int64(3)))

	resp := postTurn(t, ts, "show me the top 2 customers by revenue", "conv-1")
	assert.False(t, resp.Clarification)
	assert.Contains(t, resp.FormattedMessage, "<!--rowcount:2-->")
	assert.Contains(t, resp.FormattedMessage, "Sarah")
	require.NotNil(t, resp.Visualization)
	assert.Equal(t, "chart", string(resp.Visualization.Type))

	profileSQL := "SELECT " + customerColumns +
		" FROM customers WHERE organization_id = $1 LIMIT 50"
	mock.ExpectQuery(regexp.QuoteMeta(profileSQL)).
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "email", "first_name", "last_name", "total_revenue", "order_count"}).
			AddRow("c-1", "org-1", "sarah@example.com", "Sarah", "Chen", 1249.50, int64(14)))

	resp = postTurn(t, ts, "show me the customer sarah chen", "conv-1")
	require.NotNil(t, resp.Visualization)
	assert.Equal(t, "profile", string(resp.Visualization.Type))
	assert.Equal(t, "Sarah Chen", resp.Visualization.Title)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClarificationOverHTTP(t *testing.T) {
	ts, mock := startStack(t)

	rows := sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "udt_name", "is_nullable"}).
		AddRow("leads", "id", "uuid", "uuid", "NO").
		AddRow("leads", "organization_id", "uuid", "uuid", "NO").
		AddRow("contacts", "id", "uuid", "uuid", "NO").
		AddRow("contacts", "organization_id", "uuid", "uuid", "NO")
	mock.ExpectQuery("FROM information_schema.columns").WillReturnRows(rows)
	mock.ExpectQuery("FOREIGN KEY").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "foreign_table"}))

	resp := postTurn(t, ts, "show me our prospects", "conv-1")

	assert.True(t, resp.Clarification)
	assert.ElementsMatch(t, []string{"leads", "contacts"}, resp.ClarificationOptions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthEndpoints(t *testing.T) {
	ts, _ := startStack(t)

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err, path)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}
