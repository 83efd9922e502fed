package llm

import (
	"fmt"
	"strings"

	"cadence/pkg/config"
)

type Config struct {
	Provider string
	Model    string
	// FallbackModels are tried in order when Model is reported as not found.
	FallbackModels []string
	APIKey         string
	APIURL         string
	MaxTokens      int
	// RequestsPerSecond throttles outbound calls; 0 disables throttling.
	RequestsPerSecond float64
}

func LoadConfig() Config {
	provider := strings.ToLower(config.GetEnv("LLM_PROVIDER", "gemini"))
	apiKey := config.GetEnv("LLM_API_KEY", "")
	if apiKey == "" && provider == "gemini" {
		apiKey = config.GetEnv("GEMINI_API_KEY", "")
	}
	model := config.GetEnv("LLM_MODEL", "")
	fallbacks := config.GetEnvList("LLM_FALLBACK_MODELS")
	if provider == "gemini" {
		if model == "" {
			model = "gemini-2.0-flash-exp"
		}
		if fallbacks == nil {
			fallbacks = []string{"gemini-1.5-flash"}
		}
	}
	return Config{
		Provider:          provider,
		Model:             model,
		FallbackModels:    fallbacks,
		APIKey:            apiKey,
		APIURL:            config.GetEnv("LLM_API_URL", ""),
		MaxTokens:         config.GetEnvInt("LLM_MAX_TOKENS", 0),
		RequestsPerSecond: float64(config.GetEnvInt("LLM_REQUESTS_PER_SECOND", 1)),
	}
}

// NewProvider builds the configured backend with model fallback and throttling applied.
func NewProvider(cfg Config) (Provider, error) {
	var build func(model string) (Provider, error)
	switch strings.ToLower(cfg.Provider) {
	case "gemini", "google":
		build = func(model string) (Provider, error) {
			c := cfg
			c.Model = model
			return NewGeminiProvider(c)
		}
	case "openai":
		build = func(model string) (Provider, error) {
			c := cfg
			c.Model = model
			return NewOpenAIProvider(c), nil
		}
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}

	models := append([]string{cfg.Model}, cfg.FallbackModels...)
	chain := make([]Provider, 0, len(models))
	for _, m := range models {
		if strings.TrimSpace(m) == "" {
			continue
		}
		p, err := build(m)
		if err != nil {
			return nil, err
		}
		chain = append(chain, p)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("%s: model is required", cfg.Provider)
	}

	var p Provider = chain[0]
	if len(chain) > 1 {
		p = NewFallbackProvider(chain...)
	}
	if cfg.RequestsPerSecond > 0 {
		p = NewRateLimitedProvider(p, cfg.RequestsPerSecond)
	}
	return p, nil
}
