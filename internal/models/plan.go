// internal/models/plan.go
package models

// TurnType classifies how the latest message relates to the conversation.
type TurnType string

const (
	TurnTypeNew           TurnType = "new"
	TurnTypeFollowUp      TurnType = "follow_up"
	TurnTypeClarification TurnType = "clarification"
)

// OutputTemplate is an explicit rendering override carried on the plan.
type OutputTemplate string

const (
	TemplateAuto          OutputTemplate = "auto"
	TemplateProfile       OutputTemplate = "profile"
	TemplateRankedList    OutputTemplate = "ranked_list"
	TemplateMetricSummary OutputTemplate = "metric_summary"
	TemplateTable         OutputTemplate = "table"
	TemplateChart         OutputTemplate = "chart"
)

// QueryPlan is the structured intermediate representation bridging the user's
// message and the generated SQL. Built and consumed within one turn; only
// ResolvedReferences fold forward into the conversation state.
type QueryPlan struct {
	TurnType             TurnType          `json:"turn_type"`
	Intent               string            `json:"intent"`
	Domain               string            `json:"domain"`
	Ambiguous            bool              `json:"ambiguous"`
	ClarificationPrompt  string            `json:"clarification_prompt,omitempty"`
	ClarificationOptions []string          `json:"clarification_options,omitempty"`
	TablesNeeded         []string          `json:"tables_needed"`
	ResolvedReferences   map[string]string `json:"resolved_references,omitempty"`
	ExpectedCount        *int              `json:"expected_count,omitempty"`
	OutputTemplate       OutputTemplate    `json:"output_template,omitempty"`
}

// PrimaryTable returns the first table the plan needs, or "".
func (p *QueryPlan) PrimaryTable() string {
	if len(p.TablesNeeded) == 0 {
		return ""
	}
	return p.TablesNeeded[0]
}
