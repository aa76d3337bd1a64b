// Package metrics provides Prometheus metrics collection for the application.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome/status label values for metrics.
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Quote and booking metrics
	QuotesCreatedTotal   *prometheus.CounterVec
	QuotesAcceptedTotal  prometheus.Counter
	BookingsCreatedTotal *prometheus.CounterVec

	// Webhook metrics
	WebhookEventsTotal     *prometheus.CounterVec
	WebhookProcessDuration prometheus.Histogram

	// Email metrics
	EmailsSentTotal *prometheus.CounterVec

	// Campaign metrics
	CampaignRunsTotal      *prometheus.CounterVec
	CampaignEmailsPerRun   *prometheus.HistogramVec

	// Chat metrics
	ChatSessionsCreated prometheus.Counter
	ChatMessagesTotal   *prometheus.CounterVec
	ChatToolCallsTotal  *prometheus.CounterVec
	ChatHandoffsTotal   prometheus.Counter

	// External service metrics
	ExternalCallsTotal   *prometheus.CounterVec
	ExternalCallDuration *prometheus.HistogramVec
	CircuitBreakerState  *prometheus.GaugeVec
	CircuitBreakerTrips  prometheus.Counter

	// Database metrics
	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge
	DBQueryDuration    *prometheus.HistogramVec
	DBQueryErrors      *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitHitsTotal *prometheus.CounterVec

	// ErrorRates tracks windowed error rates alongside the Prometheus
	// counters, for threshold alerting without a scrape pipeline.
	ErrorRates *ErrorRateTracker

	// Registry used for this metrics instance (nil means default registry)
	registry prometheus.Gatherer
}

// NewMetrics creates a new Metrics instance with all collectors registered.
func NewMetrics() *Metrics {
	m := newMetricsWithRegistry(prometheus.DefaultRegisterer)
	m.registry = prometheus.DefaultGatherer
	return m
}

// NewMetricsWithRegistry creates metrics using a custom registry (for testing).
func NewMetricsWithRegistry(reg *prometheus.Registry) *Metrics {
	m := newMetricsWithRegistry(reg)
	m.registry = reg
	return m
}

func newMetricsWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "farmops_http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status code",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "farmops_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "farmops_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		// Quote and booking metrics
		QuotesCreatedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "farmops_quotes_created_total",
				Help: "Total number of quotes created by source and status",
			},
			[]string{"source", "status"}, // source: "form", "chatbot", "phone"
		),
		QuotesAcceptedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "farmops_quotes_accepted_total",
				Help: "Total number of quotes accepted",
			},
		),
		BookingsCreatedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "farmops_bookings_created_total",
				Help: "Total number of bookings created by origin",
			},
			[]string{"origin"}, // "quote", "direct"
		),

		// Webhook metrics
		WebhookEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "farmops_webhook_events_total",
				Help: "Total number of Square webhook events by type and outcome",
			},
			[]string{"type", "outcome"}, // outcome: "processed", "skipped", "error", "invalid_signature"
		),
		WebhookProcessDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "farmops_webhook_process_duration_seconds",
				Help:    "Time taken to process webhook events",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),

		// Email metrics
		EmailsSentTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "farmops_emails_sent_total",
				Help: "Total number of emails sent by template and outcome",
			},
			[]string{"template", "outcome"},
		),

		// Campaign metrics
		CampaignRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "farmops_campaign_runs_total",
				Help: "Total number of campaign runs by campaign and outcome",
			},
			[]string{"campaign", "outcome"},
		),
		CampaignEmailsPerRun: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "farmops_campaign_emails_per_run",
				Help:    "Number of emails processed per campaign run",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
			},
			[]string{"campaign"},
		),

		// Chat metrics
		ChatSessionsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "farmops_chat_sessions_created_total",
				Help: "Total number of chat sessions created",
			},
		),
		ChatMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "farmops_chat_messages_total",
				Help: "Total number of chat messages processed by outcome",
			},
			[]string{"outcome"},
		),
		ChatToolCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "farmops_chat_tool_calls_total",
				Help: "Total number of chat tool invocations by tool name",
			},
			[]string{"tool"},
		),
		ChatHandoffsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "farmops_chat_handoffs_total",
				Help: "Total number of chat sessions handed off to a human",
			},
		),

		// External service metrics
		ExternalCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "farmops_external_calls_total",
				Help: "Total number of external API calls by service and status",
			},
			[]string{"service", "status"}, // service: "hubspot", "square", "anthropic", "resend"
		),
		ExternalCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "farmops_external_call_duration_seconds",
				Help:    "Duration of external API calls",
				Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 30},
			},
			[]string{"service"},
		),
		CircuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "farmops_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"service"},
		),
		CircuitBreakerTrips: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "farmops_circuit_breaker_trips_total",
				Help: "Total number of times a circuit breaker has tripped",
			},
		),

		// Database metrics
		DBConnectionsOpen: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "farmops_db_connections_open",
				Help: "Number of open database connections",
			},
		),
		DBConnectionsInUse: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "farmops_db_connections_in_use",
				Help: "Number of database connections currently in use",
			},
		),
		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "farmops_db_query_duration_seconds",
				Help:    "Duration of database queries",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation"}, // "select", "insert", "update", "delete"
		),
		DBQueryErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "farmops_db_query_errors_total",
				Help: "Total number of database query errors",
			},
			[]string{"operation"},
		),

		// Rate limiting metrics
		RateLimitHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "farmops_rate_limit_hits_total",
				Help: "Total number of rate limit hits by limiter",
			},
			[]string{"limiter"}, // "general", "quote", "chat"
		),

		ErrorRates: NewErrorRateTracker(DefaultErrorRateConfig()),
	}
}

// Handler returns the Prometheus HTTP handler for scraping metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware returns an HTTP middleware that records request metrics.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()

		// Normalize path for metrics (avoid high cardinality)
		path := normalizePath(r.URL.Path)

		m.HTTPRequestsTotal.WithLabelValues(
			r.Method,
			path,
			strconv.Itoa(wrapped.statusCode),
		).Inc()

		m.HTTPRequestDuration.WithLabelValues(
			r.Method,
			path,
		).Observe(duration)

		m.ErrorRates.RecordRequest()
		switch {
		case wrapped.statusCode >= 500:
			m.ErrorRates.RecordError(ErrorCategoryInternal)
		case wrapped.statusCode == http.StatusTooManyRequests:
			m.ErrorRates.RecordError(ErrorCategoryRateLimit)
		case wrapped.statusCode == http.StatusUnauthorized || wrapped.statusCode == http.StatusForbidden:
			m.ErrorRates.RecordError(ErrorCategoryAuth)
		case wrapped.statusCode >= 400:
			m.ErrorRates.RecordError(ErrorCategoryValidation)
		}
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.statusCode = http.StatusOK
		rw.written = true
	}
	return rw.ResponseWriter.Write(b)
}

// normalizePath normalizes URL paths to prevent high cardinality labels.
func normalizePath(path string) string {
	switch path {
	case "/", "/health", "/ready", "/live", "/metrics",
		"/api/quote", "/api/booking", "/api/availability", "/api/services",
		"/api/chat", "/api/chat/session", "/api/unsubscribe",
		"/api/webhooks/square", "/api/admin/schedule":
		return path
	}

	switch {
	case strings.HasPrefix(path, "/api/quote/"):
		if strings.HasSuffix(path, "/accept") {
			return "/api/quote/:id/accept"
		}
		return "/api/quote/:id"
	case strings.HasPrefix(path, "/api/booking/"):
		return "/api/booking/:id"
	case strings.HasPrefix(path, "/api/cron/"):
		return "/api/cron/:job"
	case strings.HasPrefix(path, "/api/admin/pricing/"):
		return "/api/admin/pricing/:key"
	}

	return path
}

// Helper methods for recording specific events

// RecordQuoteCreated records a created quote.
func (m *Metrics) RecordQuoteCreated(source, status string) {
	m.QuotesCreatedTotal.WithLabelValues(source, status).Inc()
}

// RecordQuoteAccepted records an accepted quote.
func (m *Metrics) RecordQuoteAccepted() {
	m.QuotesAcceptedTotal.Inc()
}

// RecordBookingCreated records a created booking.
func (m *Metrics) RecordBookingCreated(fromQuote bool) {
	origin := "direct"
	if fromQuote {
		origin = "quote"
	}
	m.BookingsCreatedTotal.WithLabelValues(origin).Inc()
}

// RecordWebhookEvent records a processed webhook event.
func (m *Metrics) RecordWebhookEvent(eventType, outcome string, duration time.Duration) {
	m.WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
	m.WebhookProcessDuration.Observe(duration.Seconds())
}

// RecordWebhookRejected records a webhook rejected before processing.
func (m *Metrics) RecordWebhookRejected(reason string) {
	m.WebhookEventsTotal.WithLabelValues("unknown", reason).Inc()
}

// RecordEmailSent records an email send attempt.
func (m *Metrics) RecordEmailSent(template string, success bool) {
	outcome := outcomeFailure
	if success {
		outcome = outcomeSuccess
	}
	m.EmailsSentTotal.WithLabelValues(template, outcome).Inc()
}

// RecordCampaignRun records a campaign run and its email volume.
func (m *Metrics) RecordCampaignRun(campaign string, processed int, err error) {
	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeFailure
	}
	m.CampaignRunsTotal.WithLabelValues(campaign, outcome).Inc()
	m.CampaignEmailsPerRun.WithLabelValues(campaign).Observe(float64(processed))
}

// RecordChatSessionCreated records a new chat session.
func (m *Metrics) RecordChatSessionCreated() {
	m.ChatSessionsCreated.Inc()
}

// RecordChatMessage records a processed chat message.
func (m *Metrics) RecordChatMessage(success bool) {
	outcome := outcomeFailure
	if success {
		outcome = outcomeSuccess
	}
	m.ChatMessagesTotal.WithLabelValues(outcome).Inc()
}

// RecordChatToolCall records a chat tool invocation.
func (m *Metrics) RecordChatToolCall(tool string) {
	m.ChatToolCallsTotal.WithLabelValues(tool).Inc()
}

// RecordChatHandoff records a chat session handed off to a human.
func (m *Metrics) RecordChatHandoff() {
	m.ChatHandoffsTotal.Inc()
}

// RecordExternalCall records an external API call.
func (m *Metrics) RecordExternalCall(service string, success bool, duration time.Duration) {
	status := outcomeFailure
	if success {
		status = outcomeSuccess
	}
	m.ExternalCallsTotal.WithLabelValues(service, status).Inc()
	m.ExternalCallDuration.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordCircuitOpen records a circuit breaker opening for a service.
func (m *Metrics) RecordCircuitOpen(service string) {
	m.ExternalCallsTotal.WithLabelValues(service, "circuit_open").Inc()
	m.CircuitBreakerTrips.Inc()
}

// SetCircuitBreakerState sets the circuit breaker state for a service.
// State: 0=closed, 1=half-open, 2=open
func (m *Metrics) SetCircuitBreakerState(service string, state int) {
	m.CircuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// UpdateDBConnections updates database connection metrics.
func (m *Metrics) UpdateDBConnections(open, inUse int) {
	m.DBConnectionsOpen.Set(float64(open))
	m.DBConnectionsInUse.Set(float64(inUse))
}

// RecordDBQuery records a database query.
func (m *Metrics) RecordDBQuery(operation string, duration time.Duration, err error) {
	m.DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.DBQueryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(limiter string) {
	m.RateLimitHitsTotal.WithLabelValues(limiter).Inc()
}
