package app

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"jentic/internal/agenttools"
	"jentic/internal/broker"
	"jentic/internal/domain"
	"jentic/internal/infra/persist"
	"jentic/internal/infra/telemetry"
	"jentic/internal/tooladapter"
)

// Application holds the wired runtime shared by every entry point.
type Application struct {
	config   domain.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  domain.Metrics
	health   *telemetry.HealthTracker
	broker   *broker.Broker
	adapter  *tooladapter.Adapter
	tools    *agenttools.Service
	store    persist.Store
	syncer   *persist.Syncer
}

// ApplicationOptions captures dependencies and settings for Application.
type ApplicationOptions struct {
	Config   domain.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Metrics  domain.Metrics
	Health   *telemetry.HealthTracker
	Broker   *broker.Broker
	Adapter  *tooladapter.Adapter
	Tools    *agenttools.Service
	Store    persist.Store
	Syncer   *persist.Syncer
}

func NewApplication(opts ApplicationOptions) *Application {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Application{
		config:   opts.Config,
		logger:   logger,
		registry: opts.Registry,
		metrics:  opts.Metrics,
		health:   opts.Health,
		broker:   opts.Broker,
		adapter:  opts.Adapter,
		tools:    opts.Tools,
		store:    opts.Store,
		syncer:   opts.Syncer,
	}
}

func (a *Application) Config() domain.Config            { return a.config }
func (a *Application) Logger() *zap.Logger              { return a.logger }
func (a *Application) Metrics() domain.Metrics          { return a.metrics }
func (a *Application) Broker() *broker.Broker           { return a.broker }
func (a *Application) Adapter() *tooladapter.Adapter    { return a.adapter }
func (a *Application) Tools() *agenttools.Service       { return a.tools }
func (a *Application) Health() *telemetry.HealthTracker { return a.health }
func (a *Application) Registry() *prometheus.Registry   { return a.registry }

// Start restores persisted metadata, saves after every load and, for the
// file backend with watch enabled, re-imports the artifact when another
// process rewrites it. Background work stops with ctx.
func (a *Application) Start(ctx context.Context) error {
	a.logger.Info("runtime starting",
		zap.String("environment", a.config.Environment),
		zap.String("load_policy", string(a.broker.Policy())),
		zap.Bool("mock", a.config.Mock.Enabled),
		zap.String("persist", string(a.config.Persist.Backend)),
	)
	if a.syncer == nil {
		return nil
	}
	if _, err := a.syncer.Restore(ctx); err != nil {
		return err
	}
	a.broker.OnLoad(a.syncer.OnLoad)

	if a.config.Persist.Watch && a.config.Persist.Backend == domain.PersistBackendFile {
		beat := a.health.Register("artifact_watcher", 0)
		beat.Beat()
		watcher := persist.NewWatcher(a.config.Persist.PersistPath(), func(ctx context.Context) {
			a.syncer.Reload(ctx)
			beat.Beat()
		}, a.logger)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				a.logger.Warn("artifact watcher stopped", zap.Error(err))
			}
		}()
	}
	return nil
}

// ServeObservability serves /metrics and /healthz until ctx is done. It
// returns immediately when both are disabled.
func (a *Application) ServeObservability(ctx context.Context) error {
	metricsEnabled, healthzEnabled := resolveObservability(a.config.Observability)
	return telemetry.StartHTTPServer(ctx, telemetry.HTTPServerOptions{
		Addr:          a.config.Observability.ListenAddress,
		EnableMetrics: metricsEnabled,
		EnableHealthz: healthzEnabled,
		Health:        a.health,
		Registry:      a.registry,
		CacheStats:    a.broker.Stats,
	}, a.logger)
}

// Export writes the cached metadata to a jentic.json artifact at path and
// returns the number of entries written.
func (a *Application) Export(ctx context.Context, path string) (int, error) {
	store, err := persist.NewFileStore(path, a.logger)
	if err != nil {
		return 0, err
	}
	defer store.Close()
	metas := a.broker.Snapshot()
	if err := store.Save(ctx, metas); err != nil {
		return 0, err
	}
	return len(metas), nil
}

// WriteGuide writes the Markdown integration guide for the cached metadata,
// referring to the artifact at artifactPath.
func (a *Application) WriteGuide(artifactPath, guidePath string) error {
	guide := persist.IntegrationGuide(artifactPath, a.broker.Snapshot())
	if err := os.WriteFile(guidePath, []byte(guide), 0o644); err != nil {
		return fmt.Errorf("write guide %s: %w", guidePath, err)
	}
	return nil
}

// Close releases the metadata store.
func (a *Application) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}
