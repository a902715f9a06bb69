package app

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"jentic/internal/agenttools"
	"jentic/internal/broker"
	"jentic/internal/domain"
	"jentic/internal/infra/persist"
	"jentic/internal/infra/telemetry"
	"jentic/internal/infra/transport"
	"jentic/internal/tooladapter"
)

// Surface names the entry point the agent tools are served from; it labels
// tool call metrics.
type Surface string

const (
	SurfaceCLI   Surface = "cli"
	SurfaceMCP   Surface = "mcp"
	SurfaceREST  Surface = "rest"
	SurfaceAgent Surface = "agent"
)

func NewMetricsRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	registry.MustRegister(prometheus.NewGoCollector())
	return registry
}

func NewMetrics(registry *prometheus.Registry) domain.Metrics {
	return telemetry.NewPrometheusMetrics(registry)
}

func NewHealthTracker() *telemetry.HealthTracker {
	return telemetry.NewHealthTracker()
}

// NewTransport picks the in-process catalog in mock mode and the platform
// client otherwise.
func NewTransport(cfg domain.Config, logger *zap.Logger) (domain.Transport, error) {
	if cfg.Mock.Enabled {
		opts := transport.MockOptions{Logger: logger}
		if path := strings.TrimSpace(cfg.Mock.CatalogPath); path != "" {
			entries, err := transport.LoadCatalogFile(path)
			if err != nil {
				return nil, domain.E(domain.CodeInvalidArgument, "mock transport", "", err)
			}
			opts.Entries = entries
		}
		logger.Info("mock mode enabled", zap.String("catalog", cfg.Mock.CatalogPath))
		return transport.NewMockTransport(opts)
	}
	return transport.NewHTTPTransport(transport.HTTPOptions{
		BaseURL:        cfg.PlatformURL(),
		APIKey:         cfg.APIKey,
		UserAgent:      cfg.UserAgent,
		ConnectTimeout: cfg.ConnectTimeout,
		MaxConnections: cfg.MaxConnections,
		Logger:         logger,
	})
}

func NewBroker(cfg domain.Config, tr domain.Transport, metrics domain.Metrics, logger *zap.Logger) (*broker.Broker, error) {
	return broker.New(broker.Options{
		Transport:      tr,
		Policy:         cfg.LoadPolicy,
		CacheTTL:       cfg.CacheTTL,
		CacheCapacity:  cfg.CacheCapacity,
		SearchTimeout:  cfg.SearchTimeout,
		LoadTimeout:    cfg.LoadTimeout,
		ExecuteTimeout: cfg.ExecuteTimeout,
		Metrics:        metrics,
		Logger:         logger,
	})
}

func NewToolAdapter(b *broker.Broker, logger *zap.Logger) *tooladapter.Adapter {
	return tooladapter.New(b, logger)
}

func NewAgentTools(b *broker.Broker, surface Surface, metrics domain.Metrics, logger *zap.Logger) *agenttools.Service {
	return agenttools.NewService(agenttools.Options{
		Broker:  b,
		Surface: string(surface),
		Metrics: metrics,
		Logger:  logger,
	})
}

// NewStore opens the configured metadata store. It returns nil when
// persistence is disabled.
func NewStore(cfg domain.Config, logger *zap.Logger) (persist.Store, error) {
	switch cfg.Persist.Backend {
	case domain.PersistBackendNone, "":
		return nil, nil
	case domain.PersistBackendFile:
		return persist.NewFileStore(cfg.Persist.PersistPath(), logger)
	case domain.PersistBackendBolt:
		return persist.OpenBoltStore(cfg.Persist.PersistPath())
	case domain.PersistBackendRedis:
		return persist.NewRedisStore(persist.RedisOptions{
			Addr:     cfg.Persist.RedisAddr,
			Password: cfg.Persist.RedisPassword,
			DB:       cfg.Persist.RedisDB,
			Key:      cfg.Persist.RedisKey,
			TTL:      cfg.CacheTTL,
		})
	default:
		return nil, domain.E(domain.CodeInvalidArgument, "open store", fmt.Sprintf("unknown persist backend %q", cfg.Persist.Backend), nil)
	}
}

func NewSyncer(store persist.Store, b *broker.Broker, logger *zap.Logger) *persist.Syncer {
	if store == nil {
		return nil
	}
	return persist.NewSyncer(store, b, logger)
}
