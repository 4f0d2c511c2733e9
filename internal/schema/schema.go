// internal/schema/schema.go
package schema

import (
	"strings"
	"time"
)

// SemanticType is the display-oriented column type the formatter keys on.
type SemanticType string

const (
	TypeUUID      SemanticType = "uuid"
	TypeText      SemanticType = "text"
	TypeNumeric   SemanticType = "numeric"
	TypeInteger   SemanticType = "integer"
	TypeBoolean   SemanticType = "boolean"
	TypeJSONB     SemanticType = "jsonb"
	TypeTimestamp SemanticType = "timestamp"
)

// ColumnSchema describes one column of an indexed table.
type ColumnSchema struct {
	Name     string       `json:"name"`
	Type     SemanticType `json:"type"`
	Nullable bool         `json:"nullable"`
}

// Relationship is a declared foreign-key edge to another table.
type Relationship struct {
	Column       string `json:"column"`
	ForeignTable string `json:"foreign_table"`
}

// TableSchema describes one table grouped under a business domain. Derived
// marks behavioral/AI-generated tables whose values get ai_inferred provenance.
type TableSchema struct {
	Name          string         `json:"name"`
	Columns       []ColumnSchema `json:"columns"`
	Relationships []Relationship `json:"relationships,omitempty"`
	Domain        string         `json:"domain"`
	Description   string         `json:"description,omitempty"`
	Derived       bool           `json:"derived,omitempty"`
}

// Column returns the named column schema, if present.
func (t *TableSchema) Column(name string) (ColumnSchema, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnSchema{}, false
}

// Map is the read-only index of table metadata the pipeline shares. Built once,
// refreshed periodically; never mutated during a turn.
type Map struct {
	Tables    map[string]*TableSchema `json:"tables"`
	IndexedAt time.Time               `json:"indexed_at"`
}

// Get looks up a table by name.
func (m *Map) Get(table string) (*TableSchema, bool) {
	if m == nil {
		return nil, false
	}
	t, ok := m.Tables[table]
	return t, ok
}

// TablesInDomain lists table names carrying the given domain tag.
func (m *Map) TablesInDomain(domain string) []string {
	var out []string
	for name, t := range m.Tables {
		if t.Domain == domain {
			out = append(out, name)
		}
	}
	return out
}

// Domains returns the distinct domain tags present in the map.
func (m *Map) Domains() []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range m.Tables {
		if !seen[t.Domain] {
			seen[t.Domain] = true
			out = append(out, t.Domain)
		}
	}
	return out
}

// ColumnType resolves a column's semantic type across the map, used by the
// formatter when inferring display format. Returns ok=false for columns absent
// from every indexed table.
func (m *Map) ColumnType(column string) (SemanticType, bool) {
	if m == nil {
		return "", false
	}
	for _, t := range m.Tables {
		if c, ok := t.Column(column); ok {
			return c.Type, true
		}
	}
	return "", false
}

// derivedTableMarkers flag behavioral/enrichment tables whose contents are
// model-generated rather than directly observed.
var derivedTableMarkers = []string{"_insights", "_scores", "_enrichment", "_segments", "_predictions"}

func isDerivedTable(name, domain string) bool {
	if domain == "analytics" {
		return true
	}
	for _, marker := range derivedTableMarkers {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}
