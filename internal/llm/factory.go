package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// NewProvider creates a Provider from configuration, wrapped with retry and
// logging middleware. The "mock" provider is returned bare so callers can
// script it.
func NewProvider(ctx context.Context, cfg Config, recorder LLMEventRecorder, logger *zap.Logger) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var base Provider
	var err error

	switch cfg.Provider {
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case "openai":
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case "openrouter":
		base, err = NewOpenRouterProvider(cfg.OpenRouter)
	case "mock":
		return NewMockProvider(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	// caller → retry → logging → base: every attempt is recorded.
	logged := WithLogging(base, cfg.Provider, recorder, logger)
	return WithRetry(logged, cfg.Retry, logger), nil
}

// ResolveConfig returns the AUTODIDACT_* configuration when it validates,
// otherwise the first provider found among the standard *_API_KEY
// variables.
func ResolveConfig(base Config) (Config, error) {
	cfg := base
	ApplyEnv(&cfg)
	err := cfg.Validate()
	if err == nil {
		return cfg, nil
	}

	discovered, ok := DiscoverConfig()
	if !ok {
		return Config{}, err
	}
	discovered.Timeout = cfg.Timeout
	discovered.Retry = cfg.Retry
	return discovered, nil
}

// NewProviderFromEnv resolves configuration from the environment and
// builds the provider.
func NewProviderFromEnv(ctx context.Context, recorder LLMEventRecorder, logger *zap.Logger) (Provider, error) {
	cfg, err := ResolveConfig(DefaultConfig())
	if err != nil {
		return nil, err
	}
	return NewProvider(ctx, cfg, recorder, logger)
}
