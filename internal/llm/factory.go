package llm

import (
	"fmt"
	"strings"

	"datahound/internal/model"
)

// openRouterBaseURL is the default endpoint for the openrouter provider.
const openRouterBaseURL = "https://openrouter.ai/api/v1"

// NewJudge creates a judge from configuration. An empty provider
// disables the judge and returns nil; callers must handle that.
func NewJudge(config Config) (Judge, error) {
	provider := strings.ToLower(config.Provider)

	switch provider {
	case "openai":
		return NewOpenAIJudge("openai", config)

	case "openrouter":
		if config.BaseURL == "" {
			config.BaseURL = openRouterBaseURL
		}
		return NewOpenAIJudge("openrouter", config)

	case "":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, openrouter)", config.Provider)
	}
}

// ConfigFromModel converts model.LLMConfig to llm.Config.
func ConfigFromModel(mc model.LLMConfig) Config {
	return Config{
		Provider:     mc.Provider,
		Model:        mc.Model,
		ScoringModel: mc.ScoringModel,
		APIKey:       mc.APIKey,
		BaseURL:      mc.BaseURL,
		Timeout:      mc.Timeout,
		MaxTokens:    mc.MaxTokens,
	}
}
