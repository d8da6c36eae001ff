// Package metrics defines the Prometheus instrumentation for the
// group-chat manager, the agent containers, and the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the set of counters, gauges, and histograms the runtime
// reports. Construct once per process with New and pass it down to the
// manager, agent containers, and gateway.
type Metrics struct {
	// SelectionsTotal counts completed speaker selections by outcome
	// (ok|error).
	SelectionsTotal *prometheus.CounterVec

	// SelectionRetries counts selector-prompt retries by reason
	// (no_mention|ambiguous|illegal_repeat).
	SelectionRetries *prometheus.CounterVec

	// SelectionDuration measures end-to-end selection latency in seconds.
	SelectionDuration prometheus.Histogram

	// TerminationsTotal counts run terminations by reason
	// (predicate|max_turns|error|user_interrupt).
	TerminationsTotal *prometheus.CounterVec

	// TurnsTotal counts completed turns (one agent response) per run.
	TurnsTotal prometheus.Counter

	// LLMRequestDuration measures llm.Client.Create/CreateStream latency.
	// Labels: agent, status (success|error).
	LLMRequestDuration *prometheus.HistogramVec

	// LLMTokensTotal tracks token usage. Labels: agent, kind (prompt|completion).
	LLMTokensTotal *prometheus.CounterVec

	// ToolInvocationsTotal counts tool calls. Labels: tool, status (ok|error).
	ToolInvocationsTotal *prometheus.CounterVec

	// ToolInvocationDuration measures tool call latency in seconds. Labels: tool.
	ToolInvocationDuration *prometheus.HistogramVec

	// ActiveSessions is the current count of live sessions held in memory by
	// the session manager.
	ActiveSessions prometheus.Gauge

	// ObserversConnected is the current count of connected gateway observers.
	ObserversConnected prometheus.Gauge

	// GatewayFramesTotal counts websocket frames by direction
	// (inbound|outbound) and type.
	GatewayFramesTotal *prometheus.CounterVec

	// GatewayDroppedChunks counts StreamingChunk frames dropped under
	// observer-queue backpressure.
	GatewayDroppedChunks prometheus.Counter
}

// New registers and returns a Metrics instance against reg. Pass
// prometheus.DefaultRegisterer to use the global registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SelectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "groupchat_selections_total",
			Help: "Total completed speaker selections by outcome.",
		}, []string{"outcome"}),

		SelectionRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "groupchat_selection_retries_total",
			Help: "Total selector-prompt retries by reason.",
		}, []string{"reason"}),

		SelectionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "groupchat_selection_duration_seconds",
			Help:    "Latency of a complete speaker-selection round.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),

		TerminationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "groupchat_terminations_total",
			Help: "Total run terminations by reason.",
		}, []string{"reason"}),

		TurnsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "groupchat_turns_total",
			Help: "Total completed agent turns across all sessions.",
		}),

		LLMRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "groupchat_llm_request_duration_seconds",
			Help:    "Duration of LLM calls by agent and outcome.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"agent", "status"}),

		LLMTokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "groupchat_llm_tokens_total",
			Help: "Total tokens consumed by agent and kind.",
		}, []string{"agent", "kind"}),

		ToolInvocationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "groupchat_tool_invocations_total",
			Help: "Total tool invocations by tool name and status.",
		}, []string{"tool", "status"}),

		ToolInvocationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "groupchat_tool_invocation_duration_seconds",
			Help:    "Duration of tool invocations by tool name.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}, []string{"tool"}),

		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "groupchat_active_sessions",
			Help: "Current number of sessions held in memory by the session manager.",
		}),

		ObserversConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "groupchat_observers_connected",
			Help: "Current number of connected gateway observer sockets.",
		}),

		GatewayFramesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "groupchat_gateway_frames_total",
			Help: "Total websocket frames by direction and frame type.",
		}, []string{"direction", "type"}),

		GatewayDroppedChunks: factory.NewCounter(prometheus.CounterOpts{
			Name: "groupchat_gateway_dropped_chunks_total",
			Help: "Total StreamingChunk frames dropped under observer backpressure.",
		}),
	}
}
