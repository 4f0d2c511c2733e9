// internal/schema/indexer.go
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	cerrors "insights-engine/internal/common/errors"
	"insights-engine/internal/common/logger"
	"insights-engine/internal/common/metrics"
)

// domainRules maps table-name keywords to business domains. Checked in order;
// first match wins.
var domainRules = []struct {
	keywords []string
	domain   string
}{
	{[]string{"order", "product", "invoice", "payment", "cart", "checkout", "refund", "subscription"}, "commerce"},
	{[]string{"customer", "contact", "lead", "deal", "account", "company", "opportunity"}, "crm"},
	{[]string{"campaign", "email_event", "audience", "promotion", "utm", "attribution"}, "marketing"},
	{[]string{"insight", "score", "segment", "enrichment", "prediction", "metric"}, "analytics"},
}

func domainFor(table string) string {
	for _, rule := range domainRules {
		for _, kw := range rule.keywords {
			if strings.Contains(table, kw) {
				return rule.domain
			}
		}
	}
	return "general"
}

// tableDescriptions carries curated free-text descriptions for well-known
// tables; unknown tables index without one.
var tableDescriptions = map[string]string{
	"customers":         "Customer master records with identity and contact fields",
	"orders":            "Completed and pending orders, one row per order",
	"order_items":       "Line items belonging to orders",
	"products":          "Product catalog with pricing",
	"deals":             "Sales pipeline deals and their stages",
	"contacts":          "CRM contact records",
	"campaigns":         "Marketing campaigns with spend and performance fields",
	"email_events":      "Per-recipient email engagement events",
	"customer_insights": "Model-derived behavioral attributes per customer",
	"customer_segments": "Model-derived audience segment memberships",
}

func semanticTypeFor(dataType, udtName string) SemanticType {
	switch dataType {
	case "uuid":
		return TypeUUID
	case "boolean":
		return TypeBoolean
	case "jsonb", "json":
		return TypeJSONB
	case "integer", "bigint", "smallint":
		return TypeInteger
	case "numeric", "double precision", "real", "money":
		return TypeNumeric
	case "timestamp with time zone", "timestamp without time zone", "date":
		return TypeTimestamp
	case "ARRAY":
		return TypeJSONB
	case "USER-DEFINED":
		if udtName == "uuid" {
			return TypeUUID
		}
		return TypeText
	default:
		return TypeText
	}
}

// Indexer builds the schema map from the live catalog.
type Indexer struct {
	db     *sql.DB
	logger logger.Logger
}

func NewIndexer(db *sql.DB, log logger.Logger) *Indexer {
	return &Indexer{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "schema-indexer"}),
	}
}

const columnsQuery = `
	SELECT table_name, column_name, data_type, udt_name, is_nullable
	FROM information_schema.columns
	WHERE table_schema = 'public'
	ORDER BY table_name, ordinal_position`

const foreignKeysQuery = `
	SELECT tc.table_name, kcu.column_name, ccu.table_name AS foreign_table
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
	  ON tc.constraint_name = kcu.constraint_name
	JOIN information_schema.constraint_column_usage ccu
	  ON tc.constraint_name = ccu.constraint_name
	WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = 'public'`

// Index introspects information_schema and assembles the map.
func (ix *Indexer) Index(ctx context.Context) (*Map, error) {
	rows, err := ix.db.QueryContext(ctx, columnsQuery)
	if err != nil {
		return nil, cerrors.NewSchemaIndexFailedError(err)
	}
	defer rows.Close()

	tables := make(map[string]*TableSchema)
	for rows.Next() {
		var table, column, dataType, udtName, nullable string
		if err := rows.Scan(&table, &column, &dataType, &udtName, &nullable); err != nil {
			return nil, cerrors.NewSchemaIndexFailedError(err)
		}

		t, ok := tables[table]
		if !ok {
			domain := domainFor(table)
			t = &TableSchema{
				Name:        table,
				Domain:      domain,
				Description: tableDescriptions[table],
				Derived:     isDerivedTable(table, domain),
			}
			tables[table] = t
		}
		t.Columns = append(t.Columns, ColumnSchema{
			Name:     column,
			Type:     semanticTypeFor(dataType, udtName),
			Nullable: nullable == "YES",
		})
	}
	if err := rows.Err(); err != nil {
		return nil, cerrors.NewSchemaIndexFailedError(err)
	}
	if len(tables) == 0 {
		return nil, cerrors.NewSchemaIndexFailedError(fmt.Errorf("no tables found in public schema"))
	}

	if err := ix.attachRelationships(ctx, tables); err != nil {
		// Relationships are advisory for planning; an index without them is
		// still usable.
		ix.logger.Warn("foreign key introspection failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	m := &Map{Tables: tables, IndexedAt: time.Now().UTC()}
	metrics.SchemaRefreshes.WithLabelValues("catalog").Inc()
	ix.logger.Info("schema indexed", map[string]interface{}{
		"tables":  len(tables),
		"domains": m.Domains(),
	})
	return m, nil
}

func (ix *Indexer) attachRelationships(ctx context.Context, tables map[string]*TableSchema) error {
	rows, err := ix.db.QueryContext(ctx, foreignKeysQuery)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var table, column, foreign string
		if err := rows.Scan(&table, &column, &foreign); err != nil {
			return err
		}
		if t, ok := tables[table]; ok {
			t.Relationships = append(t.Relationships, Relationship{
				Column:       column,
				ForeignTable: foreign,
			})
		}
	}
	return rows.Err()
}
