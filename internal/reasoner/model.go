package reasoner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/dyike/CortexTrade/models"
)

// ModelConfig selects and configures a chat model backend.
type ModelConfig struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	MaxTokens int
}

// NewChatModel builds the chat model for cfg.Provider. deepseek uses the native
// client unless a BaseURL is given, in which case the OpenAI-compatible client is
// pointed at it.
func NewChatModel(ctx context.Context, cfg ModelConfig) (ChatGenerator, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.Model == "" {
		return nil, models.ConfigError("reasoner", errors.New("model name is required"))
	}
	if cfg.APIKey == "" {
		return nil, models.ConfigError("reasoner", fmt.Errorf("%w: %s_API_KEY", models.ErrMissingCredentials, strings.ToUpper(provider)))
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}

	switch provider {
	case "deepseek":
		if cfg.BaseURL == "" {
			cm, err := deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
				APIKey:    cfg.APIKey,
				Model:     cfg.Model,
				MaxTokens: maxTokens,
			})
			if err != nil {
				return nil, models.ConfigError("deepseek", err)
			}
			return cm, nil
		}
		fallthrough
	case "openai":
		cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: &maxTokens,
		})
		if err != nil {
			return nil, models.ConfigError(provider, err)
		}
		return cm, nil
	default:
		return nil, models.ConfigError("reasoner", fmt.Errorf("unsupported llm provider %q", cfg.Provider))
	}
}
