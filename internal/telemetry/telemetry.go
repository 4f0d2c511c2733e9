// internal/telemetry/telemetry.go
package telemetry

import (
	"context"
	"time"

	"github.com/google/uuid"

	"insights-engine/internal/common/logger"
	"insights-engine/internal/common/observability"
)

// Record is the one fire-and-forget log entry emitted per turn.
type Record struct {
	TurnID         string    `json:"turn_id"`
	ConversationID string    `json:"conversation_id"`
	TenantID       string    `json:"tenant_id"`
	Model          string    `json:"model,omitempty"`
	InputChars     int       `json:"input_chars"`
	OutputChars    int       `json:"output_chars"`
	LatencyMS      int64     `json:"latency_ms"`
	RetryUsed      bool      `json:"retry_used"`
	TablesUsed     []string  `json:"tables_used,omitempty"`
	Outcome        string    `json:"outcome"`
	DerivedCostUSD float64   `json:"derived_cost_usd"`
	Timestamp      time.Time `json:"timestamp"`
}

// Sink receives completed records. Implementations must be non-blocking-safe:
// the emitter already decouples them from the response path.
type Sink interface {
	Write(rec Record)
}

// Emitter buffers records on a channel drained by one background goroutine.
// When the buffer is full the record is dropped: telemetry never blocks or
// fails the primary response.
type Emitter struct {
	sink      Sink
	ch        chan Record
	done      chan struct{}
	costPer1K float64
	logger    logger.Logger
}

func NewEmitter(sink Sink, bufferSize int, costPer1K float64, log logger.Logger) *Emitter {
	e := &Emitter{
		sink:      sink,
		ch:        make(chan Record, bufferSize),
		done:      make(chan struct{}),
		costPer1K: costPer1K,
		logger:    log.WithFields(map[string]interface{}{"component": "telemetry"}),
	}
	go e.drain()
	return e
}

func (e *Emitter) drain() {
	defer close(e.done)
	for rec := range e.ch {
		e.sink.Write(rec)
	}
}

// Emit finalizes and enqueues a record. Drops silently on a full buffer.
func (e *Emitter) Emit(rec Record) {
	if rec.TurnID == "" {
		rec.TurnID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	rec.DerivedCostUSD = e.estimateCost(rec)

	select {
	case e.ch <- rec:
	default:
		e.logger.Warn("telemetry buffer full, dropping record", map[string]interface{}{
			"turnId": rec.TurnID,
		})
	}
}

// estimateCost approximates token count as chars/4 and applies the configured
// per-1k rate.
func (e *Emitter) estimateCost(rec Record) float64 {
	if e.costPer1K <= 0 {
		return 0
	}
	tokens := float64(rec.InputChars+rec.OutputChars) / 4.0
	return tokens / 1000.0 * e.costPer1K
}

// Close flushes buffered records and stops the drain goroutine.
func (e *Emitter) Close() {
	close(e.ch)
	<-e.done
}

// LogSink writes records to the structured log.
type LogSink struct {
	logger logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{logger: log.WithFields(map[string]interface{}{"component": "telemetry-sink"})}
}

func (s *LogSink) Write(rec Record) {
	s.logger.Info("turn telemetry", map[string]interface{}{
		"turnId":         rec.TurnID,
		"conversationId": rec.ConversationID,
		"tenantId":       rec.TenantID,
		"model":          rec.Model,
		"inputChars":     rec.InputChars,
		"outputChars":    rec.OutputChars,
		"latencyMs":      rec.LatencyMS,
		"retryUsed":      rec.RetryUsed,
		"tablesUsed":     rec.TablesUsed,
		"outcome":        rec.Outcome,
		"derivedCostUsd": rec.DerivedCostUSD,
	})
}

// ObservabilitySink forwards cost and outcome to the OTel meters.
type ObservabilitySink struct {
	obs *observability.Observability
}

func NewObservabilitySink(obs *observability.Observability) *ObservabilitySink {
	return &ObservabilitySink{obs: obs}
}

func (s *ObservabilitySink) Write(rec Record) {
	ctx := context.Background()
	s.obs.RecordTurnProcessed(ctx, rec.Outcome)
	s.obs.RecordTurnDuration(ctx, time.Duration(rec.LatencyMS)*time.Millisecond, rec.Outcome)
	if rec.DerivedCostUSD > 0 {
		s.obs.RecordLLMCost(ctx, rec.DerivedCostUSD, rec.Model)
	}
}

// MultiSink fans one record out to several sinks.
type MultiSink []Sink

func (m MultiSink) Write(rec Record) {
	for _, s := range m {
		s.Write(rec)
	}
}
