// internal/pipeline/planner/prompt.go
package planner

import (
	"fmt"
	"sort"
	"strings"

	"insights-engine/internal/schema"
)

const systemPromptHeader = `You are the query planner of a business analytics assistant.
Given a user question, produce a JSON object describing a query plan. Respond with JSON only, no prose.

The JSON object has these fields:
- "turn_type": "new", "follow_up" or "clarification"
- "intent": one sentence restating what the user wants
- "domain": the business domain the question belongs to
- "ambiguous": true only if the question cannot be mapped to tables with confidence
- "tables_needed": array of table names from the schema below, most relevant first
- "resolved_references": object mapping conversational referents to concrete entities
- "expected_count": integer, only when the question implies a bound such as "top 5"
- "output_template": one of "profile", "ranked_list", "metric_summary", "table", "chart", "auto"

Only use tables that appear in the schema. Never invent tables or columns.`

// buildSystemPrompt embeds a compact schema summary so the model grounds its
// table choices.
func buildSystemPrompt(m *schema.Map) string {
	var b strings.Builder
	b.WriteString(systemPromptHeader)
	b.WriteString("\n\nAvailable schema:\n")

	names := make([]string, 0, len(m.Tables))
	for name := range m.Tables {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		t := m.Tables[name]
		cols := make([]string, 0, len(t.Columns))
		for _, c := range t.Columns {
			cols = append(cols, fmt.Sprintf("%s:%s", c.Name, c.Type))
		}
		fmt.Fprintf(&b, "- %s (%s): %s\n", name, t.Domain, strings.Join(cols, ", "))
		if t.Description != "" {
			fmt.Fprintf(&b, "  %s\n", t.Description)
		}
	}
	return b.String()
}

// buildUserPrompt carries the message plus the conversational context the model
// needs for follow-up and reference resolution.
func buildUserPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", req.Message)

	if req.State != nil {
		history := req.State.History()
		if len(history) > 0 {
			b.WriteString("\nRecent conversation:\n")
			start := len(history) - 3
			if start < 0 {
				start = 0
			}
			for _, turn := range history[start:] {
				fmt.Fprintf(&b, "user: %s\nassistant: %s\n", turn.Message, turn.Response)
			}
		}
		refs := req.State.References()
		if len(refs) > 0 {
			b.WriteString("\nKnown referents:\n")
			keys := make([]string, 0, len(refs))
			for k := range refs {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, "- %s: %s\n", k, refs[k])
			}
		}
	}
	return b.String()
}
