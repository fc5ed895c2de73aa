// Package metrics provides Prometheus metrics for the homework reward service.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector the service records into.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Webhook ingestion
	webhookDeliveries  *prometheus.CounterVec
	weeksMatched       prometheus.Counter
	matchStepFailures  *prometheus.CounterVec
	participantsScored prometheus.Gauge

	// Reward distribution
	claims             *prometheus.CounterVec
	distributions      *prometheus.CounterVec
	tokensDistributed  prometheus.Counter
	transferLatency    *prometheus.HistogramVec
	transferFailures   *prometheus.CounterVec
	markerContention   prometheus.Counter
	badgesIssued       *prometheus.CounterVec
	tokenCacheRefresh  *prometheus.CounterVec
	ledgerEvents       *prometheus.CounterVec
	deliverablesPushed *prometheus.CounterVec

	// Ledger event queue
	eventQueueDepth    prometheus.Gauge
	eventQueueCapacity prometheus.Gauge
	eventEnqueues      *prometheus.CounterVec
	eventPublishWait   prometheus.Histogram

	// Store
	storeOpLatency *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "homework",
		subsystem:        "rewards",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.webhookDeliveries = auto.NewCounterVec(
		m.counterOpts("webhook_deliveries_total", "Webhook deliveries by outcome"),
		[]string{"outcome"},
	)
	m.weeksMatched = auto.NewCounter(
		m.counterOpts("weeks_matched_total", "Newly recorded week completions"),
	)
	m.matchStepFailures = auto.NewCounterVec(
		m.counterOpts("match_step_failures_total", "Failed writes while recording a matched week"),
		[]string{"step"},
	)
	m.participantsScored = auto.NewGauge(
		m.gaugeOpts("participants_scored", "Participants present on the completion leaderboard"),
	)

	m.claims = auto.NewCounterVec(
		m.counterOpts("claims_total", "Participant claims by outcome"),
		[]string{"outcome"},
	)
	m.distributions = auto.NewCounterVec(
		m.counterOpts("distributions_total", "Admin single-week distributions by outcome"),
		[]string{"outcome"},
	)
	m.tokensDistributed = auto.NewCounter(
		m.counterOpts("tokens_distributed_total", "Tokens confirmed as transferred"),
	)
	m.transferLatency = auto.NewHistogramVec(
		m.histogramOpts("transfer_latency_milliseconds", "Token transfer call latency in milliseconds",
			[]float64{5, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}),
		[]string{"mode"},
	)
	m.transferFailures = auto.NewCounterVec(
		m.counterOpts("transfer_failures_total", "Token transfers that failed or were not confirmed"),
		[]string{"mode"},
	)
	m.markerContention = auto.NewCounter(
		m.counterOpts("marker_contention_total", "Distribution attempts refused because a week was in flight"),
	)
	m.badgesIssued = auto.NewCounterVec(
		m.counterOpts("badges_issued_total", "Milestone badges rendered"),
		[]string{"milestone"},
	)
	m.tokenCacheRefresh = auto.NewCounterVec(
		m.counterOpts("token_cache_refresh_total", "Installation token refreshes by outcome"),
		[]string{"outcome"},
	)
	m.ledgerEvents = auto.NewCounterVec(
		m.counterOpts("ledger_events_total", "Ledger events published by type and outcome"),
		[]string{"type", "outcome"},
	)
	m.deliverablesPushed = auto.NewCounterVec(
		m.counterOpts("deliverables_pushed_total", "Deliverable submissions pushed to the homework repository"),
		[]string{"outcome"},
	)

	m.eventQueueDepth = auto.NewGauge(
		m.gaugeOpts("event_queue_depth", "Ledger events waiting for a publish worker"),
	)
	m.eventQueueCapacity = auto.NewGauge(
		m.gaugeOpts("event_queue_capacity", "Most ledger events the queue holds"),
	)
	m.eventEnqueues = auto.NewCounterVec(
		m.counterOpts("event_enqueues_total", "Ledger event enqueue attempts by outcome"),
		[]string{"outcome"},
	)
	m.eventPublishWait = auto.NewHistogram(
		m.histogramOpts("event_publish_wait_milliseconds", "Time a ledger event spent queued before publishing", m.histogramBuckets),
	)

	m.storeOpLatency = auto.NewHistogramVec(
		m.histogramOpts("store_op_latency_milliseconds", "Store operation latency in milliseconds", m.histogramBuckets),
		[]string{"backend", "op"},
	)

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets),
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Total number of errors by component"),
		[]string{"component", "error_type"},
	)
	m.errorRateByEndpoint = auto.NewCounterVec(
		m.counterOpts("errors_by_endpoint_total", "Total number of errors by endpoint"),
		[]string{"endpoint", "method", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(
		m.gaugeOpts("system_memory_usage_bytes", "System memory usage in bytes"),
	)
	m.systemGoroutineCount = auto.NewGauge(
		m.gaugeOpts("system_goroutine_count", "Number of goroutines"),
	)
	m.systemGCPauseTime = auto.NewHistogram(
		m.histogramOpts("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
			[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}),
	)
}

// RecordWebhookDelivery counts one webhook delivery. Outcomes: matched, skipped, rejected, error.
func RecordWebhookDelivery(outcome string) {
	globalManager.webhookDeliveries.WithLabelValues(outcome).Inc()
}

// RecordWeeksMatched adds newly recorded completions.
func RecordWeeksMatched(n int) {
	if n > 0 {
		globalManager.weeksMatched.Add(float64(n))
	}
}

// RecordMatchStepFailure counts a failed follow-up write for a matched week.
func RecordMatchStepFailure(step string) {
	globalManager.matchStepFailures.WithLabelValues(step).Inc()
}

// UpdateParticipantsScored sets the leaderboard population.
func UpdateParticipantsScored(count int) {
	globalManager.participantsScored.Set(float64(count))
}

// RecordClaim counts one claim attempt by outcome.
func RecordClaim(outcome string) {
	globalManager.claims.WithLabelValues(outcome).Inc()
}

// RecordDistribution counts one admin distribution attempt by outcome.
func RecordDistribution(outcome string) {
	globalManager.distributions.WithLabelValues(outcome).Inc()
}

// RecordTokensDistributed adds a confirmed transfer amount.
func RecordTokensDistributed(amount int64) {
	if amount > 0 {
		globalManager.tokensDistributed.Add(float64(amount))
	}
}

// RecordTransferLatency records the duration of one transfer call.
func RecordTransferLatency(mode string, latencyMs float64) {
	globalManager.transferLatency.WithLabelValues(mode).Observe(latencyMs)
}

// RecordTransferFailure counts a failed or unconfirmed transfer.
func RecordTransferFailure(mode string) {
	globalManager.transferFailures.WithLabelValues(mode).Inc()
}

// RecordMarkerContention counts a distribution refused on a held marker.
func RecordMarkerContention() {
	globalManager.markerContention.Inc()
}

// RecordBadgeIssued counts a rendered milestone badge.
func RecordBadgeIssued(milestone int) {
	globalManager.badgesIssued.WithLabelValues(strconv.Itoa(milestone)).Inc()
}

// RecordTokenCacheRefresh counts an installation token refresh. Outcomes: ok, error.
func RecordTokenCacheRefresh(outcome string) {
	globalManager.tokenCacheRefresh.WithLabelValues(outcome).Inc()
}

// RecordLedgerEvent counts a ledger event publish attempt.
func RecordLedgerEvent(eventType, outcome string) {
	globalManager.ledgerEvents.WithLabelValues(eventType, outcome).Inc()
}

// RecordDeliverablePushed counts a deliverable submission by outcome.
func RecordDeliverablePushed(outcome string) {
	globalManager.deliverablesPushed.WithLabelValues(outcome).Inc()
}

// UpdateEventQueueDepth sets the number of queued ledger events.
func UpdateEventQueueDepth(n int) {
	globalManager.eventQueueDepth.Set(float64(n))
}

// UpdateEventQueueCapacity sets the ledger event queue bound.
func UpdateEventQueueCapacity(n int) {
	globalManager.eventQueueCapacity.Set(float64(n))
}

// RecordEventEnqueue counts an enqueue attempt. Outcomes: queued, full, closed.
func RecordEventEnqueue(outcome string) {
	globalManager.eventEnqueues.WithLabelValues(outcome).Inc()
}

// RecordEventPublishWait records how long an event sat in the queue.
func RecordEventPublishWait(waitMs float64) {
	globalManager.eventPublishWait.Observe(waitMs)
}

// RecordStoreOp records the latency of one store operation.
func RecordStoreOp(backend, op string, latencyMs float64) {
	globalManager.storeOpLatency.WithLabelValues(backend, op).Observe(latencyMs)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
