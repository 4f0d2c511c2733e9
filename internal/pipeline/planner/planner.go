// internal/pipeline/planner/planner.go
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"insights-engine/internal/common/llm"
	"insights-engine/internal/common/logger"
	"insights-engine/internal/conversation"
	"insights-engine/internal/models"
	"insights-engine/internal/schema"
)

var (
	ErrPlanGenerationFailed = errors.New("PLAN_GENERATION_FAILED")
	ErrLLMTimeout           = errors.New("LLM_TIMEOUT")
)

// Request carries everything the planner needs for one turn.
type Request struct {
	Message string
	State   *conversation.State
	Schema  *schema.Map
}

// Planner converts a message plus conversation context into a QueryPlan. The
// model round trip is optional: the deterministic pass always runs, grounds the
// model's output against the schema map, and stands alone when no model is
// configured.
type Planner struct {
	generator llm.Generator
	logger    logger.Logger
}

func New(generator llm.Generator, log logger.Logger) *Planner {
	return &Planner{
		generator: generator,
		logger:    log.WithFields(map[string]interface{}{"component": "planner"}),
	}
}

// Plan builds the turn's QueryPlan. A plan with no resolvable table mapping
// comes back marked ambiguous; the caller short-circuits to clarification
// instead of executing.
func (p *Planner) Plan(ctx context.Context, req Request) (*models.QueryPlan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	base := p.heuristicPlan(req)

	if p.generator != nil {
		refined, err := p.refineWithModel(ctx, req, base)
		if err != nil {
			if errors.Is(err, llm.ErrTimeout) || errors.Is(err, context.Canceled) {
				return nil, ErrLLMTimeout
			}
			// An unusable model response degrades to the deterministic plan
			// rather than failing the turn.
			p.logger.Warn("model plan unusable, using heuristic plan", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			base = refined
		}
	}

	p.finalize(base, req)

	p.logger.Info("plan built", map[string]interface{}{
		"turnType":  base.TurnType,
		"domain":    base.Domain,
		"ambiguous": base.Ambiguous,
		"tables":    base.TablesNeeded,
	})
	return base, nil
}

// refineWithModel asks the model for a plan and grounds it against the schema
// map and the heuristic pass.
func (p *Planner) refineWithModel(ctx context.Context, req Request, base *models.QueryPlan) (*models.QueryPlan, error) {
	raw, err := p.generator.GenerateWithSystem(ctx, buildSystemPrompt(req.Schema), buildUserPrompt(req))
	if err != nil {
		return nil, err
	}

	cleaned := stripCodeFence(raw)
	if err := validatePlanJSON(cleaned); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanGenerationFailed, err)
	}

	var plan models.QueryPlan
	if err := json.Unmarshal([]byte(cleaned), &plan); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrPlanGenerationFailed, err)
	}

	// Ground the model output: tables it hallucinated get dropped, gaps get
	// filled from the deterministic pass.
	plan.TablesNeeded = filterKnownTables(plan.TablesNeeded, req.Schema)
	if len(plan.TablesNeeded) == 0 {
		plan.TablesNeeded = base.TablesNeeded
	}
	if plan.TurnType == "" {
		plan.TurnType = base.TurnType
	}
	if plan.Domain == "" {
		plan.Domain = base.Domain
	}
	if plan.ExpectedCount == nil {
		plan.ExpectedCount = base.ExpectedCount
	}
	if plan.OutputTemplate == "" {
		plan.OutputTemplate = base.OutputTemplate
	}
	if plan.Intent == "" {
		plan.Intent = base.Intent
	}
	plan.ResolvedReferences = mergeReferences(base.ResolvedReferences, plan.ResolvedReferences)
	if base.Ambiguous && len(plan.TablesNeeded) == 0 {
		plan.Ambiguous = true
		plan.ClarificationPrompt = base.ClarificationPrompt
		plan.ClarificationOptions = base.ClarificationOptions
	}
	return &plan, nil
}

// finalize applies the invariants every plan must satisfy regardless of origin.
func (p *Planner) finalize(plan *models.QueryPlan, req Request) {
	if len(plan.TablesNeeded) == 0 {
		plan.Ambiguous = true
	}
	if plan.Ambiguous {
		plan.TurnType = models.TurnTypeClarification
		if plan.ClarificationPrompt == "" {
			plan.ClarificationPrompt = "Could you tell me more about what you're looking for?"
		}
	}
	if plan.Domain == "" && len(plan.TablesNeeded) > 0 {
		if t, ok := req.Schema.Get(plan.TablesNeeded[0]); ok {
			plan.Domain = t.Domain
		}
	}
}

func filterKnownTables(tables []string, m *schema.Map) []string {
	var out []string
	for _, t := range tables {
		name := strings.TrimSpace(strings.ToLower(t))
		if _, ok := m.Get(name); ok {
			out = append(out, name)
		}
	}
	return out
}

func mergeReferences(base, overlay map[string]string) map[string]string {
	if len(base) == 0 {
		return overlay
	}
	out := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

// stripCodeFence removes a markdown fence if the model wrapped its JSON in one.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}
