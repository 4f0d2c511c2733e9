// internal/pipeline/engine.go
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"insights-engine/internal/common/logger"
	"insights-engine/internal/common/metrics"
	"insights-engine/internal/conversation"
	"insights-engine/internal/models"
	"insights-engine/internal/pipeline/executor"
	"insights-engine/internal/pipeline/formatter"
	"insights-engine/internal/pipeline/planner"
	"insights-engine/internal/pipeline/presenter"
	"insights-engine/internal/schema"
	"insights-engine/internal/telemetry"
)

// apologeticMessage is the only thing end users see on a hard failure. Raw SQL
// and stack traces never leave the engine.
const apologeticMessage = "Sorry, I wasn't able to answer that. Could you try rephrasing your question?"

const retryCaveat = " Note: this answer may be incomplete."

// TurnRequest is the conversation boundary's input for one turn.
type TurnRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	TenantID       string `json:"tenant_id"`
}

// TurnResponse is what the chat layer renders.
type TurnResponse struct {
	FormattedMessage     string                `json:"formatted_message"`
	NarrativeSummary     string                `json:"narrative_summary,omitempty"`
	Visualization        *models.Visualization `json:"visualization,omitempty"`
	ClarificationOptions []string              `json:"clarification_options,omitempty"`
	Clarification        bool                  `json:"clarification,omitempty"`
}

// SchemaLoader yields the tenant's schema map for a turn.
type SchemaLoader interface {
	Load(ctx context.Context, tenantID string) (*schema.Map, error)
}

// Engine runs the per-turn pipeline: Plan, Execute, Validate, optionally
// re-execute once, Format, Present. Turns from different conversations run
// fully independently; the schema map is the only shared (read-only) state.
type Engine struct {
	planner   *planner.Planner
	executor  *executor.Executor
	presenter *presenter.Presenter
	schemas   SchemaLoader
	store     *conversation.Store
	emitter   *telemetry.Emitter
	modelName string
	logger    logger.Logger
}

func NewEngine(
	pl *planner.Planner,
	ex *executor.Executor,
	pr *presenter.Presenter,
	schemas SchemaLoader,
	store *conversation.Store,
	emitter *telemetry.Emitter,
	modelName string,
	log logger.Logger,
) *Engine {
	return &Engine{
		planner:   pl,
		executor:  ex,
		presenter: pr,
		schemas:   schemas,
		store:     store,
		emitter:   emitter,
		modelName: modelName,
		logger:    log.WithFields(map[string]interface{}{"component": "engine"}),
	}
}

// HandleTurn processes one user message. It never panics into the caller:
// unexpected programming errors are recovered at this boundary so the session
// stays alive.
func (e *Engine) HandleTurn(ctx context.Context, req TurnRequest) (resp *TurnResponse) {
	start := time.Now()
	outcome := "success"
	retryUsed := false
	var tablesUsed []string

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic recovered at turn boundary", map[string]interface{}{
				"panic":          fmt.Sprintf("%v", r),
				"conversationId": req.ConversationID,
			})
			outcome = "panic"
			resp = &TurnResponse{FormattedMessage: apologeticMessage}
		}
		metrics.TurnsProcessed.WithLabelValues(outcome).Inc()
		e.emit(req, outcome, retryUsed, tablesUsed, resp, time.Since(start))
	}()

	state := e.store.Get(req.ConversationID, req.TenantID)

	schemaMap, err := e.schemas.Load(ctx, req.TenantID)
	if err != nil {
		e.logger.Error("schema load failed", map[string]interface{}{
			"tenantId": req.TenantID,
			"error":    err.Error(),
		})
		outcome = "schema_error"
		return &TurnResponse{FormattedMessage: apologeticMessage}
	}

	plan, err := e.planner.Plan(ctx, planner.Request{
		Message: req.Message,
		State:   state,
		Schema:  schemaMap,
	})
	if err != nil {
		if ctx.Err() != nil {
			outcome = "cancelled"
			return &TurnResponse{FormattedMessage: apologeticMessage}
		}
		e.logger.Error("planning failed", map[string]interface{}{"error": err.Error()})
		outcome = "planning_error"
		return &TurnResponse{FormattedMessage: apologeticMessage}
	}
	metrics.TurnDuration.WithLabelValues(string(plan.TurnType)).Observe(time.Since(start).Seconds())

	if plan.Ambiguous {
		outcome = "clarification"
		state.AppendTurn(conversation.Turn{
			Message:   req.Message,
			Response:  plan.ClarificationPrompt,
			Timestamp: time.Now().UTC(),
		})
		return &TurnResponse{
			FormattedMessage:     plan.ClarificationPrompt,
			ClarificationOptions: plan.ClarificationOptions,
			Clarification:        true,
		}
	}
	tablesUsed = plan.TablesNeeded

	result := e.executor.Execute(ctx, plan, schemaMap, req.TenantID, nil)

	if ctx.Err() != nil {
		// Cancelled mid-flight: discard the partial result, cache nothing.
		outcome = "cancelled"
		return &TurnResponse{FormattedMessage: apologeticMessage}
	}

	gate := e.presenter.Present(result, plan, schemaMap)
	caveat := ""
	if gate.NeedsRetry {
		// One corrective re-execution, never a second.
		retryUsed = true
		metrics.QueryRetries.Inc()
		e.logger.Info("under-fetch detected, retrying once", map[string]interface{}{
			"reason": gate.Reason,
		})

		retried := e.executor.Execute(ctx, plan, schemaMap, req.TenantID, &executor.RetryHint{
			MinLimit: *plan.ExpectedCount,
			Reason:   gate.Reason,
		})
		if retried.Success {
			result = retried
		}
		gate = e.presenter.Present(result, plan, schemaMap)
		if gate.NeedsRetry {
			// Retry budget spent; surface the best effort with a caveat.
			caveat = retryCaveat
			outcome = "retry_exhausted"
		}
	}

	if !result.Success {
		e.logger.Warn("turn failed", map[string]interface{}{
			"errorCode": string(result.Error.Code),
		})
		outcome = "execution_error"
		return &TurnResponse{FormattedMessage: apologeticMessage}
	}

	formatted := formatter.Format(result.Data, schemaMap, plan.TablesNeeded)

	state.FoldReferences(plan.ResolvedReferences)
	e.recordEntities(state, plan, result)
	state.AppendTurn(conversation.Turn{
		Message:   req.Message,
		Response:  result.NarrativeSummary,
		Tables:    plan.TablesNeeded,
		Timestamp: time.Now().UTC(),
	})

	return &TurnResponse{
		FormattedMessage: formatted,
		NarrativeSummary: result.NarrativeSummary + caveat,
		Visualization:    result.Visualization,
	}
}

// recordEntities makes a single-entity answer referable in the next turn
// ("that customer", "those deals").
func (e *Engine) recordEntities(state *conversation.State, plan *models.QueryPlan, result *models.QueryResult) {
	if result.Visualization == nil || result.Visualization.Type != models.VisualizationProfile {
		return
	}
	title := result.Visualization.Title
	if title == "" {
		return
	}
	refs := make(map[string]string, len(plan.TablesNeeded))
	for _, table := range plan.TablesNeeded {
		refs[singularNoun(table)] = title
	}
	state.FoldReferences(refs)
}

func singularNoun(table string) string {
	switch {
	case len(table) > 3 && table[len(table)-3:] == "ies":
		return table[:len(table)-3] + "y"
	case len(table) > 1 && table[len(table)-1] == 's':
		return table[:len(table)-1]
	}
	return table
}

func (e *Engine) emit(req TurnRequest, outcome string, retryUsed bool, tables []string, resp *TurnResponse, elapsed time.Duration) {
	if e.emitter == nil {
		return
	}
	outputChars := 0
	if resp != nil {
		outputChars = len(resp.FormattedMessage) + len(resp.NarrativeSummary)
	}
	e.emitter.Emit(telemetry.Record{
		TurnID:         uuid.New().String(),
		ConversationID: req.ConversationID,
		TenantID:       req.TenantID,
		Model:          e.modelName,
		InputChars:     len(req.Message),
		OutputChars:    outputChars,
		LatencyMS:      elapsed.Milliseconds(),
		RetryUsed:      retryUsed,
		TablesUsed:     tables,
		Outcome:        outcome,
	})
}
