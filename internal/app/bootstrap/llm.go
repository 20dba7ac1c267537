package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/personaflow/whatsapp-relay/internal/config"
	"github.com/personaflow/whatsapp-relay/internal/conversation"
	"github.com/personaflow/whatsapp-relay/pkg/logging"
)

// AWSConfigLoader loads SDK configuration when the Bedrock provider is used.
type AWSConfigLoader func(ctx context.Context) (aws.Config, error)

// BuildLLMClient returns the configured provider, wrapped with the fallback
// provider when one is set.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, loadAWS AWSConfigLoader, logger *logging.Logger) (conversation.LLMClient, error) {
	if logger == nil {
		logger = logging.Default()
	}
	primary, err := buildProvider(ctx, cfg, cfg.LLMProvider, loadAWS)
	if err != nil {
		return nil, err
	}
	if cfg.LLMFallbackProvider == "" || cfg.LLMFallbackProvider == cfg.LLMProvider {
		return primary, nil
	}
	fallback, err := buildProvider(ctx, cfg, cfg.LLMFallbackProvider, loadAWS)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: fallback provider: %w", err)
	}
	logger.Info("llm fallback enabled", "primary", cfg.LLMProvider, "fallback", cfg.LLMFallbackProvider)
	return conversation.NewFallbackClient(primary, fallback, logger), nil
}

func buildProvider(ctx context.Context, cfg *appconfig.Config, provider string, loadAWS AWSConfigLoader) (conversation.LLMClient, error) {
	switch provider {
	case "openai":
		return conversation.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	case "gemini":
		return conversation.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	case "bedrock":
		if loadAWS == nil {
			return nil, fmt.Errorf("bootstrap: bedrock requires aws configuration")
		}
		awsCfg, err := loadAWS(ctx)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		return conversation.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown llm provider %q", provider)
	}
}
