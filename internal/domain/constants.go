package domain

import "time"

const (
	DefaultEnvironment       = "prod"
	DefaultUserAgent         = "Jentic/1.0 Agent (Go)"
	DefaultSearchLimit       = 5
	MaxSearchLimit           = 50
	DefaultCacheTTL          = 30 * time.Minute
	DefaultCacheCapacity     = 256
	DefaultLoadPolicy        = LoadPolicyImplicit
	DefaultSearchTimeout     = 10 * time.Second
	DefaultLoadTimeout       = 30 * time.Second
	DefaultExecuteTimeout    = 120 * time.Second
	DefaultConnectTimeout    = 10 * time.Second
	DefaultMaxConnections    = 5
	DefaultPersistBackend    = PersistBackendNone
	DefaultArtifactPath      = "jentic.json"
	DefaultBoltPath          = ".jentic/metadata.db"
	DefaultRedisKey          = "jentic:metadata"
	DefaultObservabilityAddr = "127.0.0.1:9464"
	DefaultAgentModel        = "gpt-4o-mini"
	DefaultAgentProvider     = "openai"
	DefaultAgentAPIKeyEnv    = "OPENAI_API_KEY"
	DefaultAgentMaxSteps     = 8
	DefaultAgentLoadLimit    = 3

	EnvAgentAPIKey  = "JENTIC_AGENT_API_KEY"
	EnvEnvironment  = "JENTIC_ENVIRONMENT"
	EnvMockEnabled  = "MOCK_ENABLED"
	APIKeyHeader    = "X-JENTIC-API-KEY"
	ArtifactVersion = "v1.0.0"
)

// Endpoints lists the platform base URL for each known environment.
var Endpoints = map[string]string{
	"prod": "https://api.jentic.com/api/v1/",
	"qa":   "https://api-gw.qa1.eu-west-1.jenticdev.net/api/v1/",
}
