package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bounded cardinality constants for metric labels.
// These ensure metrics don't have unbounded label values which can cause memory issues.
const (
	// LLM error categories (bounded set)
	LLMErrorTimeout     = "timeout"
	LLMErrorRateLimit   = "rate_limit"
	LLMErrorAuth        = "authentication"
	LLMErrorNetwork     = "network"
	LLMErrorInvalidReq  = "invalid_request"
	LLMErrorServerError = "server_error"
	LLMErrorOther       = "other"

	// Webhook outcomes (bounded set)
	WebhookAccepted     = "accepted"
	WebhookDuplicate    = "duplicate"
	WebhookUnauthorized = "unauthorized"
	WebhookInvalid      = "invalid"
	WebhookSinkError    = "sink_error"
)

// NormalizeLLMError maps arbitrary error messages to bounded set
func NormalizeLLMError(err error) string {
	if err == nil {
		return ""
	}
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
		return LLMErrorTimeout
	case strings.Contains(errStr, "rate") || strings.Contains(errStr, "429"):
		return LLMErrorRateLimit
	case strings.Contains(errStr, "auth") || strings.Contains(errStr, "401") || strings.Contains(errStr, "403"):
		return LLMErrorAuth
	case strings.Contains(errStr, "network") || strings.Contains(errStr, "connection"):
		return LLMErrorNetwork
	case strings.Contains(errStr, "400") || strings.Contains(errStr, "invalid"):
		return LLMErrorInvalidReq
	case strings.Contains(errStr, "500") || strings.Contains(errStr, "502") || strings.Contains(errStr, "503"):
		return LLMErrorServerError
	default:
		return LLMErrorOther
	}
}

// Assistant Metrics
var (
	// Routing decisions by route kind
	RouteDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jagent_route_decisions_total",
		Help: "Total number of routed utterances by route kind",
	}, []string{"route"})

	// Failsafe outcomes by route context
	FailsafeOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jagent_failsafe_outcomes_total",
		Help: "Failsafe executor results by route and outcome",
	}, []string{"route", "outcome"})

	// Failsafe latency
	FailsafeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jagent_failsafe_latency_ms",
		Help:    "Failsafe executor latency in milliseconds",
		Buckets: []float64{5, 25, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	}, []string{"route"})

	// Compliance refusals by direction (input/output)
	ComplianceRefusals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jagent_compliance_refusals_total",
		Help: "Total number of compliance refusals",
	}, []string{"direction"})

	// Fraud screens by verdict
	FraudScreens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jagent_fraud_screens_total",
		Help: "Total number of screened transactions by verdict",
	}, []string{"verdict"})

	// Fraud flags by rule
	FraudFlags = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jagent_fraud_flags_total",
		Help: "Total number of fraud flags raised by rule",
	}, []string{"flag"})

	// Tool calls made by the language-model loop
	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jagent_tool_calls_total",
		Help: "Total number of tool invocations by tool and status",
	}, []string{"tool", "status"})

	// Active chat sessions
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jagent_active_sessions",
		Help: "Number of currently open chat sessions",
	})
)

// Market Data Metrics
var (
	// Price lookups by provenance tag
	PriceLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jagent_price_lookups_total",
		Help: "Total number of price resolutions by source tag",
	}, []string{"source"})

	// Price cache lookups
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jagent_price_cache_lookups_total",
		Help: "Price cache reads by result (hit/miss/error)",
	}, []string{"result"})

	// Circuit breaker state (0=closed, 1=open, 2=half-open)
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "jagent_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"breaker"})
)

// LLM Metrics
var (
	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jagent_llm_requests_total",
		Help: "Total number of LLM completion requests",
	}, []string{"model", "status"})

	LLMLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jagent_llm_latency_ms",
		Help:    "LLM completion latency in milliseconds",
		Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
	}, []string{"model"})

	LLMTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jagent_llm_tokens_total",
		Help: "Total LLM tokens used",
	}, []string{"model", "kind"})
)

// System Health Metrics
var (
	// Database connections
	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jagent_database_connections_active",
		Help: "Number of active database connections",
	})

	DatabaseConnectionsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jagent_database_connections_idle",
		Help: "Number of idle database connections",
	})

	// Stored entities
	StoredUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jagent_stored_users",
		Help: "Number of users in the database",
	})

	StoredCounterparties = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "jagent_stored_counterparties",
		Help: "Number of saved counterparties by scope (user/global)",
	}, []string{"scope"})

	// API request duration
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jagent_api_request_duration_ms",
		Help:    "API request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	}, []string{"method", "path", "status"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jagent_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	// Errors by type and component
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jagent_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Webhook deliveries
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jagent_webhook_events_total",
		Help: "Finnhub webhook deliveries by outcome",
	}, []string{"outcome"})

	// Scheduled job runs
	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jagent_scheduler_job_runs_total",
		Help: "Scheduled maintenance job runs by job and status",
	}, []string{"job", "status"})

	// Event bus publishes
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jagent_events_published_total",
		Help: "Events published to NATS by kind and status",
	}, []string{"kind", "status"})
)

// Audit Metrics
var (
	AuditLogOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jagent_audit_log_operations_total",
		Help: "Total audit log operations by event type and status",
	}, []string{"event_type", "status"})

	AuditLogLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "jagent_audit_log_latency_ms",
		Help:    "Audit log write latency in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
	})

	AuditLogFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jagent_audit_log_failures_total",
		Help: "Audit log failures by error type and event type",
	}, []string{"error_type", "event_type"})
)

// Helper functions to update metrics

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// RecordRoute records one routing decision
func RecordRoute(route string) {
	RouteDecisions.WithLabelValues(route).Inc()
}

// RecordFailsafeOutcome records one executor run
func RecordFailsafeOutcome(route, outcome string, d time.Duration) {
	if route == "" {
		route = "unknown"
	}
	FailsafeOutcomes.WithLabelValues(route, outcome).Inc()
	FailsafeLatency.WithLabelValues(route).Observe(float64(d.Milliseconds()))
}

// RecordComplianceRefusal records a refused input or output
func RecordComplianceRefusal(direction string) {
	ComplianceRefusals.WithLabelValues(direction).Inc()
}

// RecordFraudScreen records a screening verdict and its flags
func RecordFraudScreen(suspicious bool, flags []string) {
	verdict := "clean"
	if suspicious {
		verdict = "suspicious"
	}
	FraudScreens.WithLabelValues(verdict).Inc()
	for _, f := range flags {
		FraudFlags.WithLabelValues(f).Inc()
	}
}

// RecordToolCall records a tool invocation
func RecordToolCall(tool string, success bool) {
	ToolCalls.WithLabelValues(tool, status(success)).Inc()
}

// RecordPriceLookup records a price resolution by provenance tag
func RecordPriceLookup(source string) {
	PriceLookups.WithLabelValues(source).Inc()
}

// RecordCacheLookup records a price cache read result
func RecordCacheLookup(result string) {
	CacheLookups.WithLabelValues(result).Inc()
}

// RecordBreakerState records a circuit breaker state transition
func RecordBreakerState(name string, state float64) {
	BreakerState.WithLabelValues(name).Set(state)
}

// RecordLLMRequest records an LLM completion with duration and token usage
func RecordLLMRequest(model string, err error, durationMs float64, promptTokens, completionTokens int) {
	label := "success"
	if err != nil {
		label = NormalizeLLMError(err)
	}
	LLMRequests.WithLabelValues(model, label).Inc()
	LLMLatency.WithLabelValues(model).Observe(durationMs)
	if promptTokens > 0 {
		LLMTokens.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		LLMTokens.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
}

// UpdateDatabaseConnections updates database connection metrics
func UpdateDatabaseConnections(active, idle int32) {
	DatabaseConnectionsActive.Set(float64(active))
	DatabaseConnectionsIdle.Set(float64(idle))
}

// RecordAPIRequest records an API request with duration
func RecordAPIRequest(method, path, statusCode string, durationMs float64) {
	APIRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationMs)
	HTTPRequests.WithLabelValues(method, path, statusCode).Inc()
}

// RecordError records an error
func RecordError(errorType, component string) {
	Errors.WithLabelValues(errorType, component).Inc()
}

// RecordWebhookEvent records a webhook delivery outcome
func RecordWebhookEvent(outcome string) {
	WebhookEvents.WithLabelValues(outcome).Inc()
}

// RecordJobRun records a scheduled job run
func RecordJobRun(job string, success bool) {
	JobRuns.WithLabelValues(job, status(success)).Inc()
}

// RecordEventPublished records a NATS publish attempt
func RecordEventPublished(kind string, success bool) {
	EventsPublished.WithLabelValues(kind, status(success)).Inc()
}

// RecordAuditLog records an audit log operation
func RecordAuditLog(eventType string, success bool, durationMs float64) {
	AuditLogOperations.WithLabelValues(eventType, status(success)).Inc()
	AuditLogLatency.Observe(durationMs)
}

// RecordAuditLogFailure records an audit log failure with error type
func RecordAuditLogFailure(errorType, eventType string) {
	AuditLogFailures.WithLabelValues(errorType, eventType).Inc()
}
