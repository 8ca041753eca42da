package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the global metrics container for a single instance (login/gate/
// game/world/alliance). One Metrics is created per process, namespaced by
// the instance's module name.
type Metrics struct {
	// RPC server/client metrics
	RPCRequestsTotal    *prometheus.CounterVec
	RPCRequestDuration  *prometheus.HistogramVec
	RPCRequestsInFlight prometheus.Gauge
	RPCRetriesTotal     *prometheus.CounterVec
	RPCTimeoutsTotal    *prometheus.CounterVec

	// Connection pool metrics
	PoolActiveChannels *prometheus.GaugeVec
	PoolHeartbeatFails *prometheus.CounterVec

	// Async land engine metrics
	LandQueueDepth    *prometheus.GaugeVec
	LandBatchSize     *prometheus.HistogramVec
	LandFlushDuration *prometheus.HistogramVec
	LandRetriesTotal  *prometheus.CounterVec

	// Config manager metrics
	ConfigReloadTotal    *prometheus.CounterVec
	ConfigReloadDuration *prometheus.HistogramVec
	ConfigVersion        *prometheus.GaugeVec

	// System metrics
	MemoryUsage *prometheus.GaugeVec
	Goroutines  prometheus.Gauge

	ServiceInfo *prometheus.GaugeVec
}

var defaultMetrics *Metrics

// InitMetrics initializes and registers the metric vectors for one instance.
func InitMetrics(namespace, subsystem string) *Metrics {
	m := &Metrics{
		RPCRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rpc_requests_total",
				Help:      "Total number of RPC requests",
			},
			[]string{"method", "status"},
		),

		RPCRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rpc_request_duration_seconds",
				Help:      "Duration of RPC requests",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method"},
		),

		RPCRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rpc_requests_in_flight",
				Help:      "Current number of RPC requests being processed",
			},
		),

		RPCRetriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rpc_retries_total",
				Help:      "Total number of RPC retry attempts",
			},
			[]string{"method"},
		),

		RPCTimeoutsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rpc_timeouts_total",
				Help:      "Total number of RPC calls completed by timing-wheel timeout",
			},
			[]string{"method"},
		),

		PoolActiveChannels: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "pool_active_channels",
				Help:      "Active channels held by the connection pool per address",
			},
			[]string{"address"},
		),

		PoolHeartbeatFails: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "pool_heartbeat_fails_total",
				Help:      "Total number of consecutive heartbeat failures observed per address",
			},
			[]string{"address"},
		),

		LandQueueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "land_queue_depth",
				Help:      "Current number of pending tasks in the land engine queue",
			},
			[]string{"entity_type"},
		),

		LandBatchSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "land_batch_size",
				Help:      "Size of land-engine flush batches",
				Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
			[]string{"entity_type", "op"},
		),

		LandFlushDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "land_flush_duration_seconds",
				Help:      "Duration of a land-engine batch flush",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"entity_type"},
		),

		LandRetriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "land_retries_total",
				Help:      "Total number of land-engine flush retries",
			},
			[]string{"entity_type"},
		),

		ConfigReloadTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "config_reload_total",
				Help:      "Total number of config table reload attempts",
			},
			[]string{"table", "status"},
		),

		ConfigReloadDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "config_reload_duration_seconds",
				Help:      "Duration of a config reload pass",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"table"},
		),

		ConfigVersion: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "config_version",
				Help:      "Current monotonic version of a config table",
			},
			[]string{"table"},
		),

		MemoryUsage: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "memory_usage_bytes",
				Help:      "Current memory usage",
			},
			[]string{"type"},
		),

		Goroutines: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "goroutines",
				Help:      "Current number of goroutines",
			},
		),

		ServiceInfo: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "service_info",
				Help:      "Service information",
			},
			[]string{"version", "environment"},
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the global metrics instance, lazily initializing a default one.
func Get() *Metrics {
	if defaultMetrics == nil {
		return InitMetrics("slgserver", "")
	}
	return defaultMetrics
}

// RecordRPCRequest records a completed RPC request.
func (m *Metrics) RecordRPCRequest(method string, status string, duration time.Duration) {
	m.RPCRequestsTotal.WithLabelValues(method, status).Inc()
	m.RPCRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordRPCRetry records one retry attempt for method.
func (m *Metrics) RecordRPCRetry(method string) {
	m.RPCRetriesTotal.WithLabelValues(method).Inc()
}

// RecordRPCTimeout records a timing-wheel timeout for method.
func (m *Metrics) RecordRPCTimeout(method string) {
	m.RPCTimeoutsTotal.WithLabelValues(method).Inc()
}

// SetPoolActiveChannels sets the current channel count for address.
func (m *Metrics) SetPoolActiveChannels(address string, count int) {
	m.PoolActiveChannels.WithLabelValues(address).Set(float64(count))
}

// RecordHeartbeatFail records one heartbeat failure for address.
func (m *Metrics) RecordHeartbeatFail(address string) {
	m.PoolHeartbeatFails.WithLabelValues(address).Inc()
}

// SetLandQueueDepth sets the current pending-task count for an entity type.
func (m *Metrics) SetLandQueueDepth(entityType string, depth int) {
	m.LandQueueDepth.WithLabelValues(entityType).Set(float64(depth))
}

// RecordLandFlush records one flush batch for an entity type/op pair.
func (m *Metrics) RecordLandFlush(entityType, op string, batchSize int, duration time.Duration) {
	m.LandBatchSize.WithLabelValues(entityType, op).Observe(float64(batchSize))
	m.LandFlushDuration.WithLabelValues(entityType).Observe(duration.Seconds())
}

// RecordLandRetry records one land-engine flush retry.
func (m *Metrics) RecordLandRetry(entityType string) {
	m.LandRetriesTotal.WithLabelValues(entityType).Inc()
}

// RecordConfigReload records one config table reload attempt.
func (m *Metrics) RecordConfigReload(table, status string, duration time.Duration, version int64) {
	m.ConfigReloadTotal.WithLabelValues(table, status).Inc()
	m.ConfigReloadDuration.WithLabelValues(table).Observe(duration.Seconds())
	if status == "ok" {
		m.ConfigVersion.WithLabelValues(table).Set(float64(version))
	}
}

// SetServiceInfo sets the build/environment info gauge.
func (m *Metrics) SetServiceInfo(version, environment string) {
	m.ServiceInfo.WithLabelValues(version, environment).Set(1)
}

// Handler returns the HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartMetricsServer runs a dedicated HTTP server exposing /metrics and /health.
func StartMetricsServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK")) //nolint:errcheck // health endpoint, write failure is not actionable
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
