package app

import "jentic/internal/domain"

const (
	envMetricsEnabled = "JENTIC_METRICS_ENABLED"
	envHealthzEnabled = "JENTIC_HEALTHZ_ENABLED"
)

// resolveObservability reports whether /metrics and /healthz are served.
// The environment overrides the configuration in both directions.
func resolveObservability(cfg domain.ObservabilityConfig) (bool, bool) {
	metricsEnabled := cfg.Enabled
	healthzEnabled := cfg.Enabled
	if value, ok := envBoolOptional(envMetricsEnabled); ok {
		metricsEnabled = value
	}
	if value, ok := envBoolOptional(envHealthzEnabled); ok {
		healthzEnabled = value
	}
	return metricsEnabled, healthzEnabled
}
