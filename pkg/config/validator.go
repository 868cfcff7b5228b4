package config

import (
	"fmt"
	"os"
)

// ConfigValidator validates configuration comprehensively with clear error messages
type ConfigValidator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error)
func (v *ConfigValidator) ValidateAll() error {
	// Validate in order: providers → default provider → sections.
	// Providers come first so the default-provider check can rely on them.

	if err := v.validateProviders(); err != nil {
		return fmt.Errorf("provider validation failed: %w", err)
	}

	if err := v.validateDefaultProvider(); err != nil {
		return fmt.Errorf("provider validation failed: %w", err)
	}

	if err := v.validateQueue(); err != nil {
		return fmt.Errorf("queue validation failed: %w", err)
	}

	if err := v.validateAPI(); err != nil {
		return fmt.Errorf("api validation failed: %w", err)
	}

	if err := v.validateStorage(); err != nil {
		return fmt.Errorf("storage validation failed: %w", err)
	}

	if err := v.validateRetention(); err != nil {
		return fmt.Errorf("retention validation failed: %w", err)
	}

	if err := v.validateCurator(); err != nil {
		return fmt.Errorf("curator validation failed: %w", err)
	}

	if err := v.validateSlack(); err != nil {
		return fmt.Errorf("slack validation failed: %w", err)
	}

	return nil
}

func (v *ConfigValidator) validateProviders() error {
	for name, provider := range v.cfg.Providers.GetAll() {
		if !provider.Type.IsValid() {
			return NewValidationError("provider", name, "type", fmt.Errorf("invalid provider type: %s", provider.Type))
		}

		if provider.Model == "" {
			return NewValidationError("provider", name, "model", fmt.Errorf("model required"))
		}

		// Validate API key environment variable is set (if specified)
		if provider.APIKeyEnv != "" {
			if value := os.Getenv(provider.APIKeyEnv); value == "" {
				return NewValidationError("provider", name, "api_key_env", fmt.Errorf("environment variable %s is not set", provider.APIKeyEnv))
			}
		}

		if provider.MaxTokens < 0 {
			return NewValidationError("provider", name, "max_tokens", fmt.Errorf("must not be negative"))
		}

		if provider.Temperature < 0 || provider.Temperature > 2 {
			return NewValidationError("provider", name, "temperature", fmt.Errorf("must be between 0 and 2"))
		}
	}

	return nil
}

func (v *ConfigValidator) validateDefaultProvider() error {
	if v.cfg.DefaultProvider == "" {
		return NewValidationError("provider", "", "default_provider", ErrMissingRequiredField)
	}
	if !v.cfg.Providers.Has(v.cfg.DefaultProvider) {
		return NewValidationError("provider", v.cfg.DefaultProvider, "default_provider", ErrProviderNotFound)
	}
	return nil
}

func (v *ConfigValidator) validateQueue() error {
	q := v.cfg.Queue

	if q.WorkerCount < 1 {
		return NewValidationError("queue", "", "worker_count", fmt.Errorf("must be at least 1"))
	}
	if q.MaxConcurrentWorkflows < 1 {
		return NewValidationError("queue", "", "max_concurrent_workflows", fmt.Errorf("must be at least 1"))
	}
	if q.QueueSize < 1 {
		return NewValidationError("queue", "", "queue_size", fmt.Errorf("must be at least 1"))
	}
	if q.WorkflowTimeout <= 0 {
		return NewValidationError("queue", "", "workflow_timeout", fmt.Errorf("must be positive"))
	}
	if q.GracefulShutdownTimeout <= 0 {
		return NewValidationError("queue", "", "graceful_shutdown_timeout", fmt.Errorf("must be positive"))
	}

	return nil
}

func (v *ConfigValidator) validateAPI() error {
	a := v.cfg.API

	if a.Port < 1 || a.Port > 65535 {
		return NewValidationError("api", "", "port", fmt.Errorf("must be between 1 and 65535"))
	}
	if a.ReadTimeout <= 0 {
		return NewValidationError("api", "", "read_timeout", fmt.Errorf("must be positive"))
	}
	if a.WriteTimeout <= 0 {
		return NewValidationError("api", "", "write_timeout", fmt.Errorf("must be positive"))
	}

	return nil
}

func (v *ConfigValidator) validateStorage() error {
	s := v.cfg.Storage

	if s.DataDir == "" {
		return NewValidationError("storage", "", "data_dir", ErrMissingRequiredField)
	}
	if s.MaxCheckpoints < 1 {
		return NewValidationError("storage", "", "max_checkpoints", fmt.Errorf("must be at least 1"))
	}
	if s.ActivityMaxEventsPerFile < 1 {
		return NewValidationError("storage", "", "activity_max_events_per_file", fmt.Errorf("must be at least 1"))
	}
	if s.ActivityBufferSize < 1 {
		return NewValidationError("storage", "", "activity_buffer_size", fmt.Errorf("must be at least 1"))
	}
	if s.SubscriberQueueSize < 1 {
		return NewValidationError("storage", "", "subscriber_queue_size", fmt.Errorf("must be at least 1"))
	}

	return nil
}

func (v *ConfigValidator) validateRetention() error {
	r := v.cfg.Retention

	if r.CheckpointRetentionDays < 1 {
		return NewValidationError("retention", "", "checkpoint_retention_days", fmt.Errorf("must be at least 1"))
	}
	if r.ActivityRetentionHours < 1 {
		return NewValidationError("retention", "", "activity_retention_hours", fmt.Errorf("must be at least 1"))
	}
	if r.AuditRetentionDays < 1 {
		return NewValidationError("retention", "", "audit_retention_days", fmt.Errorf("must be at least 1"))
	}
	if r.CleanupInterval <= 0 {
		return NewValidationError("retention", "", "cleanup_interval", fmt.Errorf("must be positive"))
	}

	return nil
}

func (v *ConfigValidator) validateCurator() error {
	c := v.cfg.Curator

	if c.TokenBudget < 100 {
		return NewValidationError("curator", "", "token_budget", fmt.Errorf("must be at least 100"))
	}
	if c.CacheTTL <= 0 {
		return NewValidationError("curator", "", "cache_ttl", fmt.Errorf("must be positive"))
	}
	if c.Timeout <= 0 {
		return NewValidationError("curator", "", "timeout", fmt.Errorf("must be positive"))
	}

	return nil
}

func (v *ConfigValidator) validateSlack() error {
	s := v.cfg.Slack

	if !s.Enabled {
		return nil
	}
	if s.Channel == "" {
		return NewValidationError("slack", "", "channel", fmt.Errorf("channel required when slack is enabled"))
	}
	if s.TokenEnv == "" {
		return NewValidationError("slack", "", "token_env", ErrMissingRequiredField)
	}

	return nil
}
