// internal/pipeline/formatter/values.go
package formatter

import (
	"fmt"
	"strconv"
	"strings"

	"insights-engine/internal/models"
	"insights-engine/internal/schema"
)

// moneyMarkers flag column names that hold monetary amounts.
var moneyMarkers = []string{
	"revenue", "price", "amount", "total", "cost", "spend", "value",
	"budget", "ltv", "mrr", "arr",
}

// uuid display: 8 characters plus an ellipsis.
const uuidDisplayLen = 8

// FormatValue renders one cell with type-appropriate formatting. Columns absent
// from the schema map fall back to name heuristics plus the runtime shape.
func FormatValue(col string, v models.Value, m *schema.Map) string {
	var semType schema.SemanticType
	var known bool
	if m != nil {
		semType, known = m.ColumnType(col)
	}

	switch v.Kind {
	case models.KindBool:
		if v.Bool {
			return "Yes"
		}
		return "No"

	case models.KindTime:
		return v.Time.Format("Jan 2, 2006")

	case models.KindArray:
		parts := make([]string, 0, len(v.Array))
		for _, el := range v.Array {
			parts = append(parts, FormatValue(col, el, m))
		}
		return strings.Join(parts, ", ")

	case models.KindObject:
		// Structured payloads flatten to their values.
		parts := make([]string, 0, len(v.Object))
		for _, val := range v.Object {
			parts = append(parts, fmt.Sprintf("%v", val))
		}
		return strings.Join(parts, ", ")

	case models.KindInteger, models.KindNumber:
		f, _ := v.AsFloat()
		if isMoneyColumn(col, semType, known) {
			return FormatCurrency(f)
		}
		if v.Kind == models.KindInteger {
			return addThousands(strconv.FormatInt(v.Int, 10))
		}
		return trimTrailingZeros(strconv.FormatFloat(v.Float, 'f', 2, 64))

	case models.KindText:
		if known && semType == schema.TypeUUID {
			return truncateUUID(v.Text)
		}
		if !known && looksLikeUUID(v.Text) && isIdentifierName(col) {
			return truncateUUID(v.Text)
		}
		return v.Text
	}

	return v.Raw()
}

// isMoneyColumn: numeric schema type with a money-like name, or a money-like
// name alone for columns the schema map has never seen.
func isMoneyColumn(col string, semType schema.SemanticType, known bool) bool {
	if known && semType != schema.TypeNumeric && semType != schema.TypeInteger {
		return false
	}
	lower := strings.ToLower(col)
	for _, marker := range moneyMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// FormatCurrency renders a USD amount with thousands separators.
func FormatCurrency(f float64) string {
	neg := f < 0
	if neg {
		f = -f
	}
	s := strconv.FormatFloat(f, 'f', 2, 64)
	parts := strings.SplitN(s, ".", 2)
	out := "$" + addThousands(parts[0]) + "." + parts[1]
	if neg {
		return "-" + out
	}
	return out
}

func addThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteString(",")
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

func trimTrailingZeros(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

func truncateUUID(s string) string {
	if len(s) <= uuidDisplayLen {
		return s
	}
	return s[:uuidDisplayLen] + "…"
}

func looksLikeUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	return s[8] == '-' && s[13] == '-' && s[18] == '-' && s[23] == '-'
}

func isIdentifierName(col string) bool {
	lower := strings.ToLower(col)
	return lower == "id" || strings.HasSuffix(lower, "_id") || strings.HasSuffix(lower, "_uuid")
}

// HumanizeColumn turns snake_case column names into display labels.
func HumanizeColumn(col string) string {
	parts := strings.Split(col, "_")
	for i, p := range parts {
		switch strings.ToLower(p) {
		case "id":
			parts[i] = "ID"
		case "uuid":
			parts[i] = "UUID"
		case "url":
			parts[i] = "URL"
		case "ltv":
			parts[i] = "LTV"
		case "mrr":
			parts[i] = "MRR"
		case "arr":
			parts[i] = "ARR"
		default:
			if p != "" {
				parts[i] = strings.ToUpper(p[:1]) + p[1:]
			}
		}
	}
	return strings.Join(parts, " ")
}
