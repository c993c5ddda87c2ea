// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration on the backend.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests on the backend.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// BackendCallDuration tracks REST calls made by the client core.
	BackendCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "supportdesk_backend_call_duration_seconds",
			Help:    "Duration of REST calls issued by the client core",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint", "outcome"},
	)

	// SendsTotal tracks chat sends by delivery mode and outcome.
	SendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportdesk_sends_total",
			Help: "Chat sends issued by the client core",
		},
		[]string{"mode", "outcome"},
	)

	// HandoffTransitions tracks AI-to-human handoff state changes.
	HandoffTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportdesk_handoff_transitions_total",
			Help: "Handoff controller state transitions",
		},
		[]string{"from", "to"},
	)

	// DirectoryLookups tracks counterpart and assignment lookups.
	DirectoryLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportdesk_directory_lookups_total",
			Help: "Conversation directory lookups",
		},
		[]string{"kind", "outcome"},
	)

	// AIRepliesTotal tracks AI replies produced by the backend.
	AIRepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_replies_total",
			Help: "AI replies produced by the backend responder",
		},
		[]string{"source", "escalate"},
	)

	// LLMRequestDuration tracks LLM fallback calls made by the responder.
	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "LLM request duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider", "status"},
	)

	// LLMTokensTotal tracks tokens consumed by the responder fallback.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens used",
		},
		[]string{"provider", "direction"},
	)

	// EventsPublishedTotal tracks support events sent to JetStream.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_events_published_total",
			Help: "Support events published",
		},
		[]string{"type", "outcome"},
	)

	// AssignmentsTotal tracks client-to-employee assignments made by the backend.
	AssignmentsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assignments_total",
			Help: "Client assignments made by the backend",
		},
	)

	// ChatLogsTotal tracks chat log rows written by the backend.
	ChatLogsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_logs_total",
			Help: "Chat log entries written",
		},
		[]string{"chat_type"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordBackendCall records one REST call made by the client core.
func RecordBackendCall(endpoint, outcome string, duration float64) {
	BackendCallDuration.WithLabelValues(endpoint, outcome).Observe(duration)
}

// RecordSend records the outcome of one chat send.
func RecordSend(mode, outcome string) {
	SendsTotal.WithLabelValues(mode, outcome).Inc()
}

// RecordTransition records a handoff state change.
func RecordTransition(from, to string) {
	HandoffTransitions.WithLabelValues(from, to).Inc()
}

// RecordLookup records a directory lookup.
func RecordLookup(kind, outcome string) {
	DirectoryLookups.WithLabelValues(kind, outcome).Inc()
}

// RecordAIReply records an AI reply and whether it asked for a human.
func RecordAIReply(source string, escalate bool) {
	label := "false"
	if escalate {
		label = "true"
	}
	AIRepliesTotal.WithLabelValues(source, label).Inc()
}

// RecordLLMCall records one LLM fallback call.
func RecordLLMCall(provider, status string, duration float64, tokensIn, tokensOut int) {
	LLMRequestDuration.WithLabelValues(provider, status).Observe(duration)
	if tokensIn > 0 {
		LLMTokensTotal.WithLabelValues(provider, "input").Add(float64(tokensIn))
	}
	if tokensOut > 0 {
		LLMTokensTotal.WithLabelValues(provider, "output").Add(float64(tokensOut))
	}
}

// RecordEvent records a support event publish attempt.
func RecordEvent(eventType, outcome string) {
	EventsPublishedTotal.WithLabelValues(eventType, outcome).Inc()
}
