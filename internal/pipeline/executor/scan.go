// internal/pipeline/executor/scan.go
package executor

import (
	"database/sql"
	"encoding/json"
	"strconv"
	"time"

	"insights-engine/internal/models"
	"insights-engine/internal/schema"
)

// scanRows decodes the result set into tagged values, using the driver's
// reported types first and the schema map's semantic types as a tiebreaker for
// byte-slice payloads.
func scanRows(rows *sql.Rows, m *schema.Map) (models.RowSet, error) {
	cols, err := rows.Columns()
	if err != nil {
		return models.RowSet{}, err
	}
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return models.RowSet{}, err
	}

	out := models.RowSet{Columns: cols}
	for rows.Next() {
		raw := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return models.RowSet{}, err
		}

		row := make(models.Row, len(cols))
		for i, col := range cols {
			row[col] = convertValue(raw[i], colTypes[i], col, m)
		}
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return models.RowSet{}, err
	}
	return out, nil
}

func convertValue(v interface{}, ct *sql.ColumnType, col string, m *schema.Map) models.Value {
	switch x := v.(type) {
	case nil:
		return models.NullValue()
	case bool:
		return models.BoolValue(x)
	case int64:
		return models.IntValue(x)
	case float64:
		return models.NumberValue(x)
	case time.Time:
		return models.TimeValue(x)
	case string:
		return models.TextValue(x)
	case []byte:
		return convertBytes(x, ct, col, m)
	default:
		return models.FromAny(v)
	}
}

// convertBytes handles lib/pq's byte-slice payloads: numerics, jsonb and
// uuid/text all arrive as []byte, so the declared type decides the tag.
func convertBytes(b []byte, ct *sql.ColumnType, col string, m *schema.Map) models.Value {
	text := string(b)

	typeName := ""
	if ct != nil {
		typeName = ct.DatabaseTypeName()
	}

	switch typeName {
	case "NUMERIC", "DECIMAL", "FLOAT8", "FLOAT4", "MONEY":
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return models.NumberValue(f)
		}
	case "INT8", "INT4", "INT2":
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return models.IntValue(n)
		}
	case "BOOL":
		return models.BoolValue(text == "true" || text == "t")
	case "JSONB", "JSON":
		return decodeJSONValue(b, text)
	}

	// Driver gave no usable type name; fall back to the schema map.
	if st, ok := m.ColumnType(col); ok {
		switch st {
		case schema.TypeNumeric:
			if f, err := strconv.ParseFloat(text, 64); err == nil {
				return models.NumberValue(f)
			}
		case schema.TypeInteger:
			if n, err := strconv.ParseInt(text, 10, 64); err == nil {
				return models.IntValue(n)
			}
		case schema.TypeJSONB:
			return decodeJSONValue(b, text)
		}
	}

	return models.TextValue(text)
}

func decodeJSONValue(b []byte, fallback string) models.Value {
	var decoded interface{}
	if err := json.Unmarshal(b, &decoded); err != nil {
		return models.TextValue(fallback)
	}
	return models.FromAny(decoded)
}
