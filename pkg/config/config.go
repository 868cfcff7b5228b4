package config

// Config is the umbrella configuration object that encapsulates
// all sections, registries, and resolved defaults.
// This is the primary object returned by Initialize() and used throughout the application.
type Config struct {
	configDir string // Configuration directory path (for reference)

	// Workflow queue and worker pool configuration
	Queue *QueueConfig

	// Filesystem layout and rotation settings
	Storage *StorageConfig

	// Retention and cleanup settings
	Retention *RetentionConfig

	// HTTP API settings
	API *APIConfig

	// Slack notification settings
	Slack *SlackConfig

	// Context curation settings
	Curator *CuratorConfig

	// GitHub access settings
	GitHub *GitHubConfig

	// Project documentation source settings
	Docs *DocsConfig

	// DefaultProvider names the provider used when a caller does not pick one
	DefaultProvider string

	// Provider registry
	Providers *ProviderRegistry
}

// Initialize is defined in loader.go

// Stats contains statistics about loaded configuration
type Stats struct {
	Providers int
}

// Stats returns configuration statistics for logging/monitoring
func (c *Config) Stats() Stats {
	s := Stats{}
	if c.Providers != nil {
		s.Providers = c.Providers.Len()
	}
	return s
}

// ConfigDir returns the configuration directory path
func (c *Config) ConfigDir() string {
	return c.configDir
}

// GetProvider retrieves a provider configuration by name.
// This is a convenience method that wraps Providers.Get().
func (c *Config) GetProvider(name string) (*ProviderConfig, error) {
	return c.Providers.Get(name)
}

// DefaultProviderConfig retrieves the configuration of the default provider.
func (c *Config) DefaultProviderConfig() (*ProviderConfig, error) {
	return c.Providers.Get(c.DefaultProvider)
}
