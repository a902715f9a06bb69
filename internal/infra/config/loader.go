package config

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"jentic/internal/domain"
)

const envPrefix = "JENTIC"

// LoadOptions selects the configuration sources. Overrides win over the
// file and the environment; they carry flags the user set explicitly.
type LoadOptions struct {
	Path      string
	EnvFile   string
	Overrides map[string]any
}

type Loader struct {
	logger *zap.Logger
}

func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		return &Loader{logger: zap.NewNop()}
	}
	return &Loader{logger: logger.Named("config")}
}

type rawConfig struct {
	APIKey         string           `mapstructure:"api_key"`
	Environment    string           `mapstructure:"environment"`
	BaseURL        string           `mapstructure:"base_url"`
	UserAgent      string           `mapstructure:"user_agent"`
	CacheTTL       time.Duration    `mapstructure:"cache_ttl"`
	CacheCapacity  int              `mapstructure:"cache_capacity"`
	LoadPolicy     string           `mapstructure:"load_policy"`
	SearchTimeout  time.Duration    `mapstructure:"search_timeout"`
	LoadTimeout    time.Duration    `mapstructure:"load_timeout"`
	ExecuteTimeout time.Duration    `mapstructure:"execute_timeout"`
	ConnectTimeout time.Duration    `mapstructure:"connect_timeout"`
	MaxConnections int              `mapstructure:"max_connections"`
	Persist        rawPersistConfig `mapstructure:"persist"`
	Mock           rawMockConfig    `mapstructure:"mock"`
	Observability  rawObservability `mapstructure:"observability"`
	Agent          rawAgentConfig   `mapstructure:"agent"`
}

type rawPersistConfig struct {
	Backend       string `mapstructure:"backend"`
	Path          string `mapstructure:"path"`
	Watch         bool   `mapstructure:"watch"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisKey      string `mapstructure:"redis_key"`
}

type rawMockConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	CatalogPath string `mapstructure:"catalog_path"`
}

type rawObservability struct {
	Enabled       bool   `mapstructure:"enabled"`
	ListenAddress string `mapstructure:"listen_address"`
}

type rawAgentConfig struct {
	Provider     string `mapstructure:"provider"`
	Model        string `mapstructure:"model"`
	APIKey       string `mapstructure:"api_key"`
	APIKeyEnvVar string `mapstructure:"api_key_env"`
	BaseURL      string `mapstructure:"base_url"`
	MaxSteps     int    `mapstructure:"max_steps"`
	LoadLimit    int    `mapstructure:"load_limit"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("api_key", domain.EnvAgentAPIKey, envPrefix+"_API_KEY")
	_ = v.BindEnv("environment", domain.EnvEnvironment)
	_ = v.BindEnv("mock.enabled", domain.EnvMockEnabled, envPrefix+"_MOCK_ENABLED")
	return v
}

func setDefaults(v *viper.Viper) {
	defaults := domain.DefaultConfig()
	v.SetDefault("api_key", "")
	v.SetDefault("environment", defaults.Environment)
	v.SetDefault("base_url", "")
	v.SetDefault("user_agent", defaults.UserAgent)
	v.SetDefault("cache_ttl", defaults.CacheTTL)
	v.SetDefault("cache_capacity", defaults.CacheCapacity)
	v.SetDefault("load_policy", string(defaults.LoadPolicy))
	v.SetDefault("search_timeout", defaults.SearchTimeout)
	v.SetDefault("load_timeout", defaults.LoadTimeout)
	v.SetDefault("execute_timeout", defaults.ExecuteTimeout)
	v.SetDefault("connect_timeout", defaults.ConnectTimeout)
	v.SetDefault("max_connections", defaults.MaxConnections)
	v.SetDefault("persist.backend", string(defaults.Persist.Backend))
	v.SetDefault("persist.path", "")
	v.SetDefault("persist.watch", false)
	v.SetDefault("persist.redis_addr", "")
	v.SetDefault("persist.redis_password", "")
	v.SetDefault("persist.redis_db", 0)
	v.SetDefault("persist.redis_key", defaults.Persist.RedisKey)
	v.SetDefault("mock.enabled", false)
	v.SetDefault("mock.catalog_path", "")
	v.SetDefault("observability.enabled", false)
	v.SetDefault("observability.listen_address", defaults.Observability.ListenAddress)
	v.SetDefault("agent.provider", defaults.Agent.Provider)
	v.SetDefault("agent.model", defaults.Agent.Model)
	v.SetDefault("agent.api_key", "")
	v.SetDefault("agent.api_key_env", defaults.Agent.APIKeyEnvVar)
	v.SetDefault("agent.base_url", "")
	v.SetDefault("agent.max_steps", defaults.Agent.MaxSteps)
	v.SetDefault("agent.load_limit", defaults.Agent.LoadLimit)
}

// Load merges defaults, the optional config file, JENTIC_* environment
// variables and overrides into a validated configuration.
func (l *Loader) Load(ctx context.Context, opts LoadOptions) (domain.Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return domain.Config{}, fmt.Errorf("read env file %s: %w", opts.EnvFile, err)
		}
	}

	v := newViper()
	if opts.Path != "" {
		if err := l.readFile(v, opts.Path); err != nil {
			return domain.Config{}, err
		}
	}
	for key, value := range opts.Overrides {
		v.Set(key, value)
	}

	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return domain.Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return domain.Config{}, err
	}

	cfg, errs := normalize(raw)
	if len(errs) > 0 {
		return domain.Config{}, domain.E(domain.CodeInvalidArgument, "load config", strings.Join(errs, "; "), nil)
	}
	return cfg, nil
}

func (l *Loader) readFile(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", "":
		expanded, missing, err := expandEnv(data)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			l.logger.Warn("missing environment variables in config", zap.String("path", path), zap.Strings("missing", missing))
		}
		data = []byte(expanded)
	default:
		v.SetConfigType(strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
	}
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func normalize(raw rawConfig) (domain.Config, []string) {
	var errs []string

	policy, err := domain.ParseLoadPolicy(raw.LoadPolicy)
	if err != nil {
		errs = append(errs, fmt.Sprintf("load_policy: must be 'implicit' or 'explicit', got %q", raw.LoadPolicy))
	}

	environment := strings.ToLower(strings.TrimSpace(raw.Environment))
	if environment == "" {
		environment = domain.DefaultEnvironment
	}
	if _, ok := domain.Endpoints[environment]; !ok && strings.TrimSpace(raw.BaseURL) == "" {
		errs = append(errs, fmt.Sprintf("environment: unknown environment %q and no base_url set", raw.Environment))
	}

	for name, value := range map[string]time.Duration{
		"cache_ttl":       raw.CacheTTL,
		"search_timeout":  raw.SearchTimeout,
		"load_timeout":    raw.LoadTimeout,
		"execute_timeout": raw.ExecuteTimeout,
		"connect_timeout": raw.ConnectTimeout,
	} {
		if value < 0 {
			errs = append(errs, fmt.Sprintf("%s: must not be negative", name))
		}
	}
	if raw.CacheCapacity < 0 {
		errs = append(errs, "cache_capacity: must not be negative")
	}
	if raw.MaxConnections <= 0 {
		errs = append(errs, "max_connections: must be > 0")
	}

	backend := domain.PersistBackend(strings.ToLower(strings.TrimSpace(raw.Persist.Backend)))
	switch backend {
	case "":
		backend = domain.PersistBackendNone
	case domain.PersistBackendNone, domain.PersistBackendFile, domain.PersistBackendBolt:
	case domain.PersistBackendRedis:
		if strings.TrimSpace(raw.Persist.RedisAddr) == "" {
			errs = append(errs, "persist.redis_addr: required for the redis backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("persist.backend: unknown backend %q", raw.Persist.Backend))
	}
	if raw.Persist.Watch && backend != domain.PersistBackendFile {
		errs = append(errs, "persist.watch: only supported for the file backend")
	}

	if raw.Agent.MaxSteps <= 0 {
		errs = append(errs, "agent.max_steps: must be > 0")
	}
	agentKey := strings.TrimSpace(raw.Agent.APIKey)
	if agentKey == "" && raw.Agent.APIKeyEnvVar != "" {
		agentKey = strings.TrimSpace(os.Getenv(raw.Agent.APIKeyEnvVar))
	}

	cfg := domain.Config{
		APIKey:         strings.TrimSpace(raw.APIKey),
		Environment:    environment,
		BaseURL:        strings.TrimSpace(raw.BaseURL),
		UserAgent:      raw.UserAgent,
		CacheTTL:       raw.CacheTTL,
		CacheCapacity:  raw.CacheCapacity,
		LoadPolicy:     policy,
		SearchTimeout:  raw.SearchTimeout,
		LoadTimeout:    raw.LoadTimeout,
		ExecuteTimeout: raw.ExecuteTimeout,
		ConnectTimeout: raw.ConnectTimeout,
		MaxConnections: raw.MaxConnections,
		Persist: domain.PersistConfig{
			Backend:       backend,
			Path:          strings.TrimSpace(raw.Persist.Path),
			Watch:         raw.Persist.Watch,
			RedisAddr:     strings.TrimSpace(raw.Persist.RedisAddr),
			RedisPassword: raw.Persist.RedisPassword,
			RedisDB:       raw.Persist.RedisDB,
			RedisKey:      raw.Persist.RedisKey,
		},
		Mock: domain.MockConfig{
			Enabled:     raw.Mock.Enabled,
			CatalogPath: strings.TrimSpace(raw.Mock.CatalogPath),
		},
		Observability: domain.ObservabilityConfig{
			Enabled:       raw.Observability.Enabled,
			ListenAddress: raw.Observability.ListenAddress,
		},
		Agent: domain.AgentConfig{
			Provider:     raw.Agent.Provider,
			Model:        raw.Agent.Model,
			APIKey:       agentKey,
			APIKeyEnvVar: raw.Agent.APIKeyEnvVar,
			BaseURL:      strings.TrimSpace(raw.Agent.BaseURL),
			MaxSteps:     raw.Agent.MaxSteps,
			LoadLimit:    raw.Agent.LoadLimit,
		},
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = domain.DefaultUserAgent
	}
	return cfg, errs
}

// RequireAPIKey reports a missing platform key unless mock mode is on.
func RequireAPIKey(cfg domain.Config) error {
	if cfg.Mock.Enabled || cfg.APIKey != "" {
		return nil
	}
	return domain.E(domain.CodeUnauthenticated, "load config", "set api_key or "+domain.EnvAgentAPIKey, domain.ErrMissingAPIKey)
}

// FindConfigFile returns the first candidate that exists as a regular file,
// or "" when none does.
func FindConfigFile(candidates ...string) string {
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}
