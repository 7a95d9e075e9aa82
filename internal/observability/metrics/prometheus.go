package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/privacy"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/constants"
)

// PrometheusMetrics collects service and privacy-engine metrics on a
// private registry. It implements privacy.EventSink, so it can be handed
// to an Auditor directly.
type PrometheusMetrics struct {
	logger   *logrus.Logger
	registry *prometheus.Registry
	server   *http.Server
	config   *PrometheusConfig

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Privacy metrics
	auditsTotal          *prometheus.CounterVec
	privacyScore         prometheus.Gauge
	checksTotal          *prometheus.CounterVec
	violatingGroups      *prometheus.GaugeVec
	enforcementsTotal    *prometheus.CounterVec
	recordsSuppressed    prometheus.Counter
	recordsGeneralized   prometheus.Counter
	budgetQueriesTotal   prometheus.Counter
	budgetEpsilonUsed    prometheus.Gauge
	budgetEpsilonQueried prometheus.Histogram

	// Storage metrics
	storageOperationsTotal *prometheus.CounterVec
	storageDuration        *prometheus.HistogramVec
	errorRate              *prometheus.CounterVec
}

// PrometheusConfig configures Prometheus metrics
type PrometheusConfig struct {
	Enabled   bool              `json:"enabled" mapstructure:"enabled"`
	Port      int               `json:"port" mapstructure:"port"`
	Path      string            `json:"path" mapstructure:"path"`
	Namespace string            `json:"namespace" mapstructure:"namespace"`
	Subsystem string            `json:"subsystem" mapstructure:"subsystem"`
	Labels    map[string]string `json:"labels" mapstructure:"labels"`
}

// NewPrometheusMetrics creates a new Prometheus metrics instance
func NewPrometheusMetrics(config *PrometheusConfig, logger *logrus.Logger) (*PrometheusMetrics, error) {
	if config == nil {
		config = DefaultPrometheusConfig()
	}

	if logger == nil {
		logger = logrus.New()
	}

	pm := &PrometheusMetrics{
		logger:   logger,
		registry: prometheus.NewRegistry(),
		config:   config,
	}

	pm.initializeMetrics()

	if err := pm.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return pm, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry exposes the underlying registry, mainly for tests.
func (pm *PrometheusMetrics) Registry() *prometheus.Registry {
	return pm.registry
}

// Start serves metrics on a dedicated port. It is a no-op when metrics are
// disabled or when the port is 0, in which case the API router mounts
// Handler itself.
func (pm *PrometheusMetrics) Start(ctx context.Context) error {
	if !pm.config.Enabled || pm.config.Port == 0 {
		pm.logger.Info("Dedicated Prometheus metrics server disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(pm.config.Path, pm.Handler())

	pm.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", pm.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: constants.DefaultReadTimeout,
	}

	pm.logger.WithFields(logrus.Fields{
		"port": pm.config.Port,
		"path": pm.config.Path,
	}).Info("Starting Prometheus metrics server")

	go func() {
		if err := pm.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			pm.logger.WithError(err).Error("Prometheus metrics server error")
		}
	}()

	return nil
}

// Stop stops the Prometheus metrics server
func (pm *PrometheusMetrics) Stop(ctx context.Context) error {
	if pm.server == nil {
		return nil
	}

	pm.logger.Info("Stopping Prometheus metrics server")
	return pm.server.Shutdown(ctx)
}

// HTTP Metrics
func (pm *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	pm.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	pm.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Storage Metrics
func (pm *PrometheusMetrics) RecordStorageOperation(backend, operation, status string, duration time.Duration) {
	pm.storageOperationsTotal.WithLabelValues(backend, operation, status).Inc()
	pm.storageDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// Error Metrics
func (pm *PrometheusMetrics) RecordError(component, errorType string) {
	pm.errorRate.WithLabelValues(component, errorType).Inc()
}

// Emit turns privacy engine events into metric updates.
func (pm *PrometheusMetrics) Emit(event privacy.Event) {
	f := event.Fields

	switch event.Type {
	case privacy.EventAuditCompleted:
		pm.auditsTotal.WithLabelValues(boolLabel(f["k_satisfied"])).Inc()
		if score, ok := f["privacy_score"].(float64); ok {
			pm.privacyScore.Set(score)
		}

	case privacy.EventKAnonymityChecked:
		pm.recordCheck("k_anonymity", "", f)

	case privacy.EventLDiversityChecked:
		pm.recordCheck("l_diversity", stringField(f["sensitive_attr"]), f)

	case privacy.EventTClosenessChecked:
		pm.recordCheck("t_closeness", stringField(f["sensitive_attr"]), f)

	case privacy.EventEnforcementComplete:
		pm.enforcementsTotal.WithLabelValues(stringField(f["effective_method"])).Inc()
		if n, ok := f["suppressed"].(int); ok {
			pm.recordsSuppressed.Add(float64(n))
		}
		if n, ok := f["generalized"].(int); ok {
			pm.recordsGeneralized.Add(float64(n))
		}

	case privacy.EventBudgetRecorded:
		pm.budgetQueriesTotal.Inc()
		if eps, ok := f["epsilon"].(float64); ok {
			pm.budgetEpsilonQueried.Observe(eps)
		}
		if total, ok := f["cumulative"].(float64); ok {
			pm.budgetEpsilonUsed.Set(total)
		}
	}
}

func (pm *PrometheusMetrics) recordCheck(check, attribute string, f map[string]interface{}) {
	pm.checksTotal.WithLabelValues(check, boolLabel(f["satisfied"])).Inc()
	if n, ok := f["violating_groups"].(int); ok {
		pm.violatingGroups.WithLabelValues(check, attribute).Set(float64(n))
	}
}

func boolLabel(v interface{}) string {
	b, _ := v.(bool)
	return strconv.FormatBool(b)
}

func stringField(v interface{}) string {
	s, _ := v.(string)
	return s
}

// initializeMetrics initializes all Prometheus metrics
func (pm *PrometheusMetrics) initializeMetrics() {
	namespace := pm.config.Namespace
	subsystem := pm.config.Subsystem
	labels := prometheus.Labels(pm.config.Labels)

	// HTTP metrics
	pm.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: labels,
		},
		[]string{"method", "path", "status"},
	)

	pm.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		},
		[]string{"method", "path"},
	)

	// Privacy metrics
	pm.auditsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "audits_total",
			Help:        "Total number of comprehensive audits",
			ConstLabels: labels,
		},
		[]string{"k_satisfied"},
	)

	pm.privacyScore = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "privacy_score",
			Help:        "Overall privacy score of the most recent audit",
			ConstLabels: labels,
		},
	)

	pm.checksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "checks_total",
			Help:        "Total number of privacy checks by outcome",
			ConstLabels: labels,
		},
		[]string{"check", "satisfied"},
	)

	pm.violatingGroups = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "violating_groups",
			Help:        "Violating equivalence classes in the most recent check",
			ConstLabels: labels,
		},
		[]string{"check", "attribute"},
	)

	pm.enforcementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "enforcements_total",
			Help:        "Total number of k-anonymity enforcements",
			ConstLabels: labels,
		},
		[]string{"method"},
	)

	pm.recordsSuppressed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "records_suppressed_total",
			Help:        "Records dropped by suppression",
			ConstLabels: labels,
		},
	)

	pm.recordsGeneralized = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "records_generalized_total",
			Help:        "Records whose age group was generalized",
			ConstLabels: labels,
		},
	)

	pm.budgetQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "budget_queries_total",
			Help:        "Queries recorded against the privacy budget",
			ConstLabels: labels,
		},
	)

	pm.budgetEpsilonUsed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "budget_epsilon_used",
			Help:        "Cumulative epsilon spent",
			ConstLabels: labels,
		},
	)

	pm.budgetEpsilonQueried = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "budget_query_epsilon",
			Help:        "Epsilon spent per recorded query",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
			ConstLabels: labels,
		},
	)

	// Storage metrics
	pm.storageOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "storage_operations_total",
			Help:        "Total number of storage operations",
			ConstLabels: labels,
		},
		[]string{"backend", "operation", "status"},
	)

	pm.storageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "storage_operation_duration_seconds",
			Help:        "Storage operation duration in seconds",
			Buckets:     []float64{0.001, 0.01, 0.1, 0.5, 1, 5},
			ConstLabels: labels,
		},
		[]string{"backend", "operation"},
	)

	pm.errorRate = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "errors_total",
			Help:        "Total number of errors",
			ConstLabels: labels,
		},
		[]string{"component", "type"},
	)
}

// registerMetrics registers all metrics with the registry
func (pm *PrometheusMetrics) registerMetrics() error {
	collectors := []prometheus.Collector{
		pm.httpRequestsTotal,
		pm.httpRequestDuration,
		pm.auditsTotal,
		pm.privacyScore,
		pm.checksTotal,
		pm.violatingGroups,
		pm.enforcementsTotal,
		pm.recordsSuppressed,
		pm.recordsGeneralized,
		pm.budgetQueriesTotal,
		pm.budgetEpsilonUsed,
		pm.budgetEpsilonQueried,
		pm.storageOperationsTotal,
		pm.storageDuration,
		pm.errorRate,
	}

	for _, collector := range collectors {
		if err := pm.registry.Register(collector); err != nil {
			return err
		}
	}

	return nil
}

// DefaultPrometheusConfig serves metrics on the API listener under /metrics.
func DefaultPrometheusConfig() *PrometheusConfig {
	return &PrometheusConfig{
		Enabled:   true,
		Port:      0,
		Path:      "/metrics",
		Namespace: "privacy_audit",
		Subsystem: "",
	}
}
