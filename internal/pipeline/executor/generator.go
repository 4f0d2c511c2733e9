// internal/pipeline/executor/generator.go
package executor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"insights-engine/internal/models"
	"insights-engine/internal/pipeline/planner"
	"insights-engine/internal/schema"
)

// RetryHint carries the validation gate's corrective feedback into the single
// allowed re-generation.
type RetryHint struct {
	MinLimit int
	Reason   string
}

const sqlSystemPrompt = `You write a single PostgreSQL SELECT statement for a business analytics question.
Rules, all mandatory:
- Exactly one SELECT statement. No other statement kinds, no semicolons, no comments.
- Every table touched must include the filter organization_id = $1.
- Only tables and columns from the provided schema.
- Always include a LIMIT clause.
Respond with the SQL only.`

func buildSQLPrompt(plan *models.QueryPlan, m *schema.Map, maxRows int, hint *RetryHint) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Intent: %s\n", plan.Intent)
	fmt.Fprintf(&b, "Tables:\n")
	for _, name := range plan.TablesNeeded {
		if t, ok := m.Get(name); ok {
			cols := make([]string, 0, len(t.Columns))
			for _, c := range t.Columns {
				cols = append(cols, fmt.Sprintf("%s %s", c.Name, c.Type))
			}
			fmt.Fprintf(&b, "- %s(%s)\n", name, strings.Join(cols, ", "))
		}
	}
	if len(plan.ResolvedReferences) > 0 {
		b.WriteString("Resolved references:\n")
		keys := make([]string, 0, len(plan.ResolvedReferences))
		for k := range plan.ResolvedReferences {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- the %s in question is %q\n", k, plan.ResolvedReferences[k])
		}
	}
	if plan.ExpectedCount != nil {
		fmt.Fprintf(&b, "The user asked for %d rows; the LIMIT must be at least %d.\n",
			*plan.ExpectedCount, *plan.ExpectedCount)
	}
	fmt.Fprintf(&b, "Never exceed LIMIT %d.\n", maxRows)
	if hint != nil {
		fmt.Fprintf(&b, "Previous attempt was rejected: %s. Use LIMIT of at least %d.\n",
			hint.Reason, hint.MinLimit)
	}
	return b.String()
}

// generateSQL produces the statement via the model when one is wired, falling
// back to the deterministic builder otherwise.
func (e *Executor) generateSQL(ctx context.Context, plan *models.QueryPlan, m *schema.Map, hint *RetryHint) (string, error) {
	if e.generator == nil {
		return e.buildFallbackQuery(plan, m, hint)
	}

	raw, err := e.generator.GenerateWithSystem(ctx, sqlSystemPrompt, buildSQLPrompt(plan, m, e.maxRows, hint))
	if err != nil {
		return "", err
	}
	stmt := stripSQLFence(raw)
	if stmt == "" {
		return "", fmt.Errorf("model returned empty statement")
	}
	return stmt, nil
}

// buildFallbackQuery is the templated path: a flat read of the primary table,
// tenant-scoped, bounded, ordered by a ranking column when the intent wants one.
func (e *Executor) buildFallbackQuery(plan *models.QueryPlan, m *schema.Map, hint *RetryHint) (string, error) {
	table, ok := m.Get(plan.PrimaryTable())
	if !ok {
		return "", fmt.Errorf("primary table %q not in schema map", plan.PrimaryTable())
	}

	cols := make([]string, 0, len(table.Columns))
	for _, c := range table.Columns {
		cols = append(cols, c.Name)
	}

	limit := e.defaultRowLimit
	if plan.ExpectedCount != nil {
		limit = *plan.ExpectedCount
	}
	if hint != nil && hint.MinLimit > limit {
		limit = hint.MinLimit
	}
	if limit > e.maxRows {
		limit = e.maxRows
	}

	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE organization_id = $1",
		strings.Join(cols, ", "), table.Name)

	if planner.ImpliesRanking(plan.Intent) {
		if orderCol := firstNumericColumn(table); orderCol != "" {
			stmt += fmt.Sprintf(" ORDER BY %s DESC", orderCol)
		}
	}

	stmt += fmt.Sprintf(" LIMIT %d", limit)
	return stmt, nil
}

func firstNumericColumn(t *schema.TableSchema) string {
	for _, c := range t.Columns {
		if c.Type == schema.TypeNumeric || c.Type == schema.TypeInteger {
			// Identifier-ish integers make meaningless rankings.
			if strings.HasSuffix(c.Name, "_id") || c.Name == "id" {
				continue
			}
			return c.Name
		}
	}
	return ""
}

func stripSQLFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```sql")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}
