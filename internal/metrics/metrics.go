// Package metrics exposes Prometheus collectors for the notification pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "notiledger"

// Outcome labels for processed notifications.
const (
	OutcomeStored          = "stored"
	OutcomeDeposit         = "deposit"
	OutcomeUnparsed        = "unparsed"
	OutcomeDuplicateDrop   = "duplicate_dropped"
	OutcomeAlreadyIngested = "already_ingested"
	OutcomeError           = "error"
)

// Metrics holds the pipeline collectors and the registry they belong to.
type Metrics struct {
	registry *prometheus.Registry

	notifications   *prometheus.CounterVec
	parseFailures   *prometheus.CounterVec
	duplicates      *prometheus.CounterVec
	resolutions     *prometheus.CounterVec
	depositMatches  *prometheus.CounterVec
	deactivations   prometheus.Counter
	mappingsApplied *prometheus.CounterVec
	processDuration prometheus.Histogram
	catalogReloads  *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Default returns the process-wide metrics instance.
func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

// New creates a Metrics with its own registry, including Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications processed, by outcome.",
		}, []string{"outcome"}),
		parseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_failures_total",
			Help:      "Notifications that could not be parsed, by failure kind.",
		}, []string{"kind"}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_detected_total",
			Help:      "Suspected duplicate pairs, by detector outcome.",
		}, []string{"outcome"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_resolutions_total",
			Help:      "Duplicate resolutions applied, by resolution.",
		}, []string{"resolution"}),
		depositMatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deposit_matches_total",
			Help:      "Deposit notifications matched to a savings goal, by confidence.",
		}, []string{"confidence"}),
		deactivations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deposit_pattern_deactivations_total",
			Help:      "Deposit patterns turned off for failing.",
		}),
		mappingsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "learned_mappings_applied_total",
			Help:      "Learned categories applied to new transactions.",
		}, []string{"mode"}),
		processDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_duration_seconds",
			Help:      "Time spent processing one notification.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		catalogReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_reloads_total",
			Help:      "Catalog override reloads, by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.notifications,
		m.parseFailures,
		m.duplicates,
		m.resolutions,
		m.depositMatches,
		m.deactivations,
		m.mappingsApplied,
		m.processDuration,
		m.catalogReloads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordNotification counts one processed notification and its duration.
func (m *Metrics) RecordNotification(outcome string, d time.Duration) {
	m.notifications.WithLabelValues(outcome).Inc()
	m.processDuration.Observe(d.Seconds())
}

// RecordParseFailure counts a parse failure of the given kind.
func (m *Metrics) RecordParseFailure(kind string) {
	m.parseFailures.WithLabelValues(kind).Inc()
}

// RecordDuplicate counts a detector outcome other than "none".
func (m *Metrics) RecordDuplicate(outcome string) {
	m.duplicates.WithLabelValues(outcome).Inc()
}

// RecordResolution counts an applied duplicate resolution.
func (m *Metrics) RecordResolution(resolution string) {
	m.resolutions.WithLabelValues(resolution).Inc()
}

// RecordDepositMatch counts a recorded contribution.
func (m *Metrics) RecordDepositMatch(confidence string) {
	m.depositMatches.WithLabelValues(confidence).Inc()
}

// RecordDeactivation counts a deposit pattern deactivation.
func (m *Metrics) RecordDeactivation() {
	m.deactivations.Inc()
}

// RecordMappingApplied counts a learned category applied automatically
// (confirmed) or as a suggestion.
func (m *Metrics) RecordMappingApplied(confirmed bool) {
	mode := "suggested"
	if confirmed {
		mode = "confirmed"
	}
	m.mappingsApplied.WithLabelValues(mode).Inc()
}

// RecordCatalogReload counts a catalog reload attempt.
func (m *Metrics) RecordCatalogReload(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.catalogReloads.WithLabelValues(result).Inc()
}
