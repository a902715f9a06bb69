package agentloop

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"jentic/internal/domain"
)

// NewChatModel creates the chat model named by the agent configuration.
func NewChatModel(ctx context.Context, cfg domain.AgentConfig) (model.ToolCallingChatModel, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		envVar := strings.TrimSpace(cfg.APIKeyEnvVar)
		if envVar == "" {
			return nil, domain.E(domain.CodeUnauthenticated, "agent model", "API key is required: set agent.api_key or agent.api_key_env", nil)
		}
		apiKey = os.Getenv(envVar)
		if apiKey == "" {
			return nil, domain.E(domain.CodeUnauthenticated, "agent model", fmt.Sprintf("API key not found in env var %s", envVar), nil)
		}
	}

	switch cfg.Provider {
	case "openai", "":
		modelCfg := &openai.ChatModelConfig{
			Model:  cfg.Model,
			APIKey: apiKey,
		}
		if cfg.BaseURL != "" {
			modelCfg.BaseURL = cfg.BaseURL
		}
		return openai.NewChatModel(ctx, modelCfg)
	default:
		return nil, domain.E(domain.CodeInvalidArgument, "agent model", fmt.Sprintf("unsupported provider: %s", cfg.Provider), nil)
	}
}
