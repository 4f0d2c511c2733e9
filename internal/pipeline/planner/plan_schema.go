// internal/pipeline/planner/plan_schema.go
package planner

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// planJSONSchema is the contract the model's plan response must satisfy before
// the engine trusts any field of it.
const planJSONSchema = `{
	"type": "object",
	"properties": {
		"turn_type": {
			"type": "string",
			"enum": ["new", "follow_up", "clarification"]
		},
		"intent": {"type": "string"},
		"domain": {"type": "string"},
		"ambiguous": {"type": "boolean"},
		"clarification_prompt": {"type": "string"},
		"clarification_options": {
			"type": "array",
			"items": {"type": "string"}
		},
		"tables_needed": {
			"type": "array",
			"items": {"type": "string"}
		},
		"resolved_references": {
			"type": "object",
			"additionalProperties": {"type": "string"}
		},
		"expected_count": {
			"type": "integer",
			"minimum": 1
		},
		"output_template": {
			"type": "string",
			"enum": ["profile", "ranked_list", "metric_summary", "table", "chart", "auto"]
		}
	},
	"required": ["intent", "tables_needed"],
	"additionalProperties": false
}`

var planSchemaLoader = gojsonschema.NewStringLoader(planJSONSchema)

func validatePlanJSON(doc string) error {
	result, err := gojsonschema.Validate(planSchemaLoader, gojsonschema.NewStringLoader(doc))
	if err != nil {
		return fmt.Errorf("plan is not valid JSON: %w", err)
	}
	if !result.Valid() {
		first := result.Errors()[0]
		return fmt.Errorf("plan violates schema: %s", first.String())
	}
	return nil
}
