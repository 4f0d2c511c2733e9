// internal/pipeline/formatter/formatter.go
package formatter

import (
	"fmt"
	"strings"

	"insights-engine/internal/models"
	"insights-engine/internal/schema"
)

// EmptyResultSentinel is the fixed zero-row response; the chat renderer keys on
// it and no table scaffolding may surround it.
const EmptyResultSentinel = "No matching records were found."

// Format renders raw rows into chat-ready markdown. One row becomes labeled
// lines, several become a table preceded by a machine-readable row-count marker
// the chat renderer uses for collapse/expand.
func Format(data models.RowSet, m *schema.Map, tables []string) string {
	switch len(data.Rows) {
	case 0:
		return EmptyResultSentinel
	case 1:
		return formatSingle(data, m)
	default:
		return formatTable(data, m)
	}
}

func formatSingle(data models.RowSet, m *schema.Map) string {
	row := data.Rows[0]
	var lines []string
	for _, col := range data.Columns {
		v, ok := row[col]
		if !ok || v.IsNull() {
			continue
		}
		lines = append(lines, fmt.Sprintf("**%s**: %s", HumanizeColumn(col), FormatValue(col, v, m)))
	}
	return strings.Join(lines, "\n")
}

func formatTable(data models.RowSet, m *schema.Map) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<!--rowcount:%d-->\n", len(data.Rows))

	headers := make([]string, len(data.Columns))
	for i, col := range data.Columns {
		headers[i] = HumanizeColumn(col)
	}
	b.WriteString("| " + strings.Join(headers, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(data.Columns)) + "\n")

	for _, row := range data.Rows {
		cells := make([]string, len(data.Columns))
		for i, col := range data.Columns {
			v, ok := row[col]
			if !ok || v.IsNull() {
				cells[i] = "—"
				continue
			}
			cells[i] = escapeCell(FormatValue(col, v, m))
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// escapeCell keeps cell content from breaking the markdown table grid.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
