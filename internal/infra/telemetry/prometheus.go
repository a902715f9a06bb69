package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"jentic/internal/domain"
)

type PrometheusMetrics struct {
	remoteDuration *prometheus.HistogramVec
	cacheLookups   *prometheus.CounterVec
	loadCollapsed  prometheus.Counter
	evictions      *prometheus.CounterVec
	executions     *prometheus.CounterVec
	cachedEntries  prometheus.Gauge
	toolCalls      *prometheus.CounterVec
	toolDuration   *prometheus.HistogramVec
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		remoteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jentic_remote_call_duration_seconds",
				Help:    "Duration of platform calls in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"op", "status"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jentic_metadata_cache_lookups_total",
				Help: "Total number of execution metadata cache lookups",
			},
			[]string{"result"},
		),
		loadCollapsed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "jentic_load_collapsed_total",
				Help: "Identifiers served by joining a fetch already in flight",
			},
		),
		evictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jentic_metadata_cache_evictions_total",
				Help: "Total number of execution metadata cache evictions",
			},
			[]string{"reason"},
		),
		executions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jentic_executions_total",
				Help: "Total number of execute calls by identifier kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		cachedEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "jentic_metadata_cache_entries",
				Help: "Current number of cached execution metadata entries",
			},
		),
		toolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jentic_tool_calls_total",
				Help: "Total number of tool calls by surface",
			},
			[]string{"surface", "tool", "success"},
		),
		toolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jentic_tool_call_duration_seconds",
				Help:    "Duration of tool calls in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"surface"},
		),
	}
}

func (p *PrometheusMetrics) ObserveRemoteCall(op domain.RemoteOp, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		if code, ok := domain.CodeFrom(err); ok {
			status = string(code)
		}
	}
	p.remoteDuration.WithLabelValues(string(op), status).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	p.cacheLookups.WithLabelValues(result).Inc()
}

func (p *PrometheusMetrics) ObserveLoadCollapsed(count int) {
	p.loadCollapsed.Add(float64(count))
}

func (p *PrometheusMetrics) ObserveEviction(reason domain.EvictionReason) {
	p.evictions.WithLabelValues(string(reason)).Inc()
}

func (p *PrometheusMetrics) ObserveExecution(kind domain.IDKind, outcome domain.ExecutionOutcome) {
	p.executions.WithLabelValues(string(kind), string(outcome)).Inc()
}

func (p *PrometheusMetrics) SetCachedEntries(count int) {
	p.cachedEntries.Set(float64(count))
}

func (p *PrometheusMetrics) ObserveToolCall(surface string, tool string, duration time.Duration, success bool) {
	p.toolCalls.WithLabelValues(surface, tool, strconv.FormatBool(success)).Inc()
	p.toolDuration.WithLabelValues(surface).Observe(duration.Seconds())
}

var _ domain.Metrics = (*PrometheusMetrics)(nil)
