package llm

import (
	"time"

	"github.com/codeready-toolchain/baton/pkg/faults"
)

// Config selects and configures a provider backend.
type Config struct {
	// Provider is the backend name, "anthropic" or "openai".
	Provider string

	// APIKey authenticates against the backend. Required.
	APIKey string

	// Model is the model identifier. Required.
	Model string

	// MaxTokens is the default completion cap. Zero applies
	// DefaultMaxCompletionTokens.
	MaxTokens int

	// Temperature is the default sampling temperature.
	Temperature float64

	// Timeout bounds one provider call. Zero applies DefaultTimeout.
	Timeout time.Duration
}

// NewProvider builds the provider named by cfg.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicFromAPIKey(cfg.APIKey, AnthropicOptions{
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	case "openai":
		return NewOpenAIFromAPIKey(cfg.APIKey, OpenAIOptions{
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	default:
		return nil, faults.Newf(faults.CodeValidation, "unknown llm provider %q", cfg.Provider)
	}
}
