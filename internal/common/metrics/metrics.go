// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TurnsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_turns_total",
			Help: "Total number of conversation turns processed, by outcome",
		},
		[]string{"outcome"},
	)

	TurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "engine_turn_duration_seconds",
			Help: "End-to-end duration of a conversation turn in seconds",
		},
		[]string{"turn_type"},
	)

	QueryRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_query_retries_total",
			Help: "Number of under-fetch re-executions authorized by the validation gate",
		},
	)

	SQLRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_sql_rejected_total",
			Help: "Generated statements rejected by the static guard, by reason",
		},
		[]string{"reason"},
	)

	SchemaRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_schema_refreshes_total",
			Help: "Schema map refreshes, by source (catalog or cache)",
		},
		[]string{"source"},
	)
)
