package domain

import (
	"strings"
	"time"
)

// PersistBackend selects where loaded metadata survives process restarts.
type PersistBackend string

const (
	PersistBackendNone  PersistBackend = "none"
	PersistBackendFile  PersistBackend = "file"
	PersistBackendBolt  PersistBackend = "bolt"
	PersistBackendRedis PersistBackend = "redis"
)

// Config is the normalized client configuration.
type Config struct {
	APIKey         string
	Environment    string
	BaseURL        string
	UserAgent      string
	CacheTTL       time.Duration
	CacheCapacity  int
	LoadPolicy     LoadPolicy
	SearchTimeout  time.Duration
	LoadTimeout    time.Duration
	ExecuteTimeout time.Duration
	ConnectTimeout time.Duration
	MaxConnections int
	Persist        PersistConfig
	Mock           MockConfig
	Observability  ObservabilityConfig
	Agent          AgentConfig
}

// PersistConfig configures the metadata store.
type PersistConfig struct {
	Backend       PersistBackend
	Path          string
	Watch         bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string
}

// MockConfig enables the in-process catalog instead of the platform.
type MockConfig struct {
	Enabled     bool
	CatalogPath string
}

// ObservabilityConfig configures the metrics and health listener.
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddress string
}

// AgentConfig configures the LLM used by the agent runner.
type AgentConfig struct {
	Provider     string
	Model        string
	APIKey       string
	APIKeyEnvVar string
	BaseURL      string
	MaxSteps     int
	LoadLimit    int
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() Config {
	return Config{
		Environment:    DefaultEnvironment,
		UserAgent:      DefaultUserAgent,
		CacheTTL:       DefaultCacheTTL,
		CacheCapacity:  DefaultCacheCapacity,
		LoadPolicy:     DefaultLoadPolicy,
		SearchTimeout:  DefaultSearchTimeout,
		LoadTimeout:    DefaultLoadTimeout,
		ExecuteTimeout: DefaultExecuteTimeout,
		ConnectTimeout: DefaultConnectTimeout,
		MaxConnections: DefaultMaxConnections,
		Persist: PersistConfig{
			Backend:  DefaultPersistBackend,
			RedisKey: DefaultRedisKey,
		},
		Observability: ObservabilityConfig{
			ListenAddress: DefaultObservabilityAddr,
		},
		Agent: AgentConfig{
			Provider:     DefaultAgentProvider,
			Model:        DefaultAgentModel,
			APIKeyEnvVar: DefaultAgentAPIKeyEnv,
			MaxSteps:     DefaultAgentMaxSteps,
			LoadLimit:    DefaultAgentLoadLimit,
		},
	}
}

// PlatformURL returns the configured base URL, falling back to the environment endpoint.
func (c Config) PlatformURL() string {
	if strings.TrimSpace(c.BaseURL) != "" {
		return c.BaseURL
	}
	if url, ok := Endpoints[c.Environment]; ok {
		return url
	}
	return Endpoints[DefaultEnvironment]
}

// PersistPath returns the store path for file-backed backends, applying defaults.
func (c PersistConfig) PersistPath() string {
	if strings.TrimSpace(c.Path) != "" {
		return c.Path
	}
	switch c.Backend {
	case PersistBackendBolt:
		return DefaultBoltPath
	default:
		return DefaultArtifactPath
	}
}
