package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jentic/internal/agenttools"
	"jentic/internal/domain"
	"jentic/internal/infra/persist"
	"jentic/internal/infra/transport"
)

func mockConfig(t *testing.T) domain.Config {
	t.Helper()
	cfg := domain.DefaultConfig()
	cfg.Mock.Enabled = true
	cfg.Persist.Backend = domain.PersistBackendFile
	cfg.Persist.Path = filepath.Join(t.TempDir(), "jentic.json")
	return cfg
}

func TestInitializeApplication_PersistsLoads(t *testing.T) {
	cfg := mockConfig(t)
	application, err := InitializeApplication(cfg, LoggingConfig{}, SurfaceCLI)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, application.Start(ctx))

	env, err := application.Tools().Call(ctx, agenttools.ToolLoadExecutionInfo, map[string]any{
		"operation_uuids": []any{transport.CurrentWeatherID},
		"workflow_uuids":  []any{},
	})
	require.NoError(t, err)
	require.True(t, env.Succeeded())

	store, err := persist.NewFileStore(cfg.Persist.Path, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		metas, err := store.Load(context.Background())
		return err == nil && len(metas) == 1
	}, 2*time.Second, 20*time.Millisecond)

	restarted, err := InitializeApplication(cfg, LoggingConfig{}, SurfaceCLI)
	require.NoError(t, err)
	t.Cleanup(func() { _ = restarted.Close() })
	require.NoError(t, restarted.Start(ctx))

	id, err := domain.ParseOperationID(transport.CurrentWeatherID)
	require.NoError(t, err)
	_, ok := restarted.Broker().Cached(id)
	assert.True(t, ok)
}

func TestApplication_Export(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.Mock.Enabled = true
	application, err := InitializeApplication(cfg, LoggingConfig{}, SurfaceCLI)
	require.NoError(t, err)
	require.NoError(t, application.Start(context.Background()))

	id, err := domain.ParseOperationID(transport.XKCDComicID)
	require.NoError(t, err)
	_, err = application.Broker().Load(context.Background(), []domain.OperationID{id})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "export", "jentic.json")
	count, err := application.Export(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), transport.XKCDComicID)
	assert.Contains(t, string(data), domain.ArtifactVersion)
}

func TestInitializeApplication_RequiresAPIKeyOutsideMockMode(t *testing.T) {
	cfg := domain.DefaultConfig()
	_, err := InitializeApplication(cfg, LoggingConfig{}, SurfaceCLI)
	require.ErrorIs(t, err, domain.ErrMissingAPIKey)
}

func TestNewStore_Backends(t *testing.T) {
	cfg := domain.DefaultConfig()
	store, err := NewStore(cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, store)

	cfg.Persist.Backend = domain.PersistBackendBolt
	cfg.Persist.Path = filepath.Join(t.TempDir(), "metadata.db")
	store, err = NewStore(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	cfg.Persist.Backend = "s3"
	_, err = NewStore(cfg, nil)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestResolveObservability(t *testing.T) {
	t.Setenv(envMetricsEnabled, "")
	t.Setenv(envHealthzEnabled, "")
	metrics, healthz := resolveObservability(domain.ObservabilityConfig{Enabled: true})
	assert.True(t, metrics)
	assert.True(t, healthz)

	t.Setenv(envHealthzEnabled, "false")
	metrics, healthz = resolveObservability(domain.ObservabilityConfig{Enabled: true})
	assert.True(t, metrics)
	assert.False(t, healthz)
}

func TestBuildLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jentic_mcp.log")
	logger, err := BuildLogger(LoggerOptions{Level: "debug", OutputPath: path})
	require.NoError(t, err)
	logger.Info("hello")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")

	_, err = BuildLogger(LoggerOptions{Level: "loud"})
	require.Error(t, err)
}
