package llm

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/concord/internal/logging"
	"github.com/ppiankov/concord/internal/model"
)

// NewProvider creates the configured provider. An empty provider name
// returns nil: summaries are disabled.
func NewProvider(config Config, logger *zap.Logger) (Provider, error) {
	logger = logging.OrNop(logger)

	var (
		provider Provider
		err      error
	)
	switch strings.ToLower(strings.TrimSpace(config.Provider)) {
	case "openai":
		provider, err = NewOpenAIProvider(config, logger)
	case "anthropic", "claude":
		provider, err = NewAnthropicProvider(config, logger)
	case "ollama":
		provider, err = NewOllamaProvider(config, logger)
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama)", config.Provider)
	}
	if err != nil {
		return nil, err
	}
	return provider, nil
}

// ConfigFromModel converts the file configuration into provider settings
func ConfigFromModel(llmCfg model.LLMConfig, httpCfg model.HTTPConfig) Config {
	return Config{
		Provider:     llmCfg.Provider,
		Model:        llmCfg.Model,
		APIKey:       llmCfg.APIKey,
		BaseURL:      llmCfg.BaseURL,
		Timeout:      llmCfg.Timeout,
		StrictFields: llmCfg.StrictFields,
		MaxTokens:    llmCfg.MaxTokens,
		HTTPProxy:    httpCfg.HTTPProxy,
		HTTPSProxy:   httpCfg.HTTPSProxy,
		NoProxy:      httpCfg.NoProxy,
	}
}
