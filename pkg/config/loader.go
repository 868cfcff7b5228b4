package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// BatonYAMLConfig represents the complete baton.yaml file structure
type BatonYAMLConfig struct {
	System          *SystemYAMLConfig         `yaml:"system"`
	API             *APIYAMLConfig            `yaml:"api"`
	Queue           *QueueConfig              `yaml:"queue"`
	Storage         *StorageConfig            `yaml:"storage"`
	Curator         *CuratorYAMLConfig        `yaml:"curator"`
	LLMProviders    map[string]ProviderConfig `yaml:"llm_providers"`
	DefaultProvider string                    `yaml:"default_provider"`
}

// SystemYAMLConfig groups system-wide infrastructure settings.
type SystemYAMLConfig struct {
	AllowedWSOrigins []string          `yaml:"allowed_ws_origins"`
	GitHub           *GitHubYAMLConfig `yaml:"github"`
	Docs             *DocsYAMLConfig   `yaml:"docs"`
	Slack            *SlackYAMLConfig  `yaml:"slack"`
	Retention        *RetentionConfig  `yaml:"retention"`
}

// GitHubYAMLConfig holds GitHub access settings from YAML.
type GitHubYAMLConfig struct {
	TokenEnv string `yaml:"token_env,omitempty"` // Defaults to "GITHUB_TOKEN" if omitted
}

// DocsYAMLConfig holds project documentation source settings from YAML.
type DocsYAMLConfig struct {
	RepoURL        string   `yaml:"repo_url,omitempty"`
	CacheTTL       string   `yaml:"cache_ttl,omitempty"` // Parsed to time.Duration
	AllowedDomains []string `yaml:"allowed_domains,omitempty"`
}

// SlackYAMLConfig holds Slack notification settings from YAML.
type SlackYAMLConfig struct {
	Enabled  *bool  `yaml:"enabled,omitempty"`
	TokenEnv string `yaml:"token_env,omitempty"`
	Channel  string `yaml:"channel,omitempty"`
}

// APIYAMLConfig holds HTTP API settings from YAML.
type APIYAMLConfig struct {
	Port         int    `yaml:"port,omitempty"`
	AuthTokenEnv string `yaml:"auth_token_env,omitempty"`
	ReadTimeout  string `yaml:"read_timeout,omitempty"`  // Parsed to time.Duration
	WriteTimeout string `yaml:"write_timeout,omitempty"` // Parsed to time.Duration
}

// CuratorYAMLConfig holds context curation settings from YAML.
type CuratorYAMLConfig struct {
	TokenBudget int    `yaml:"token_budget,omitempty"`
	CacheTTL    string `yaml:"cache_ttl,omitempty"` // Parsed to time.Duration
	Timeout     string `yaml:"timeout,omitempty"`   // Parsed to time.Duration
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load baton.yaml from configDir
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge built-in + user-defined providers
//  5. Merge section defaults
//  6. Validate all configuration
//  7. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"providers", stats.Providers,
		"default_provider", cfg.DefaultProvider,
		"workers", cfg.Queue.WorkerCount,
		"data_dir", cfg.Storage.DataDir)

	return cfg, nil
}

// load is the internal loader (not exported)
func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{
		configDir: configDir,
	}

	batonConfig, err := loader.loadBatonYAML()
	if err != nil {
		return nil, NewLoadError("baton.yaml", err)
	}

	// Merge built-in + user-defined providers (user overrides built-in)
	providers := mergeProviders(builtinProviders(), batonConfig.LLMProviders)
	registry := NewProviderRegistry(providers)

	defaultProvider := batonConfig.DefaultProvider
	if defaultProvider == "" {
		defaultProvider = "anthropic-default"
	}

	// Resolve queue config (merge user YAML with built-in defaults).
	// Start with defaults, then merge user config on top to preserve unset defaults.
	queueConfig := DefaultQueueConfig()
	if batonConfig.Queue != nil {
		if err := mergo.Merge(queueConfig, batonConfig.Queue, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge queue config: %w", err)
		}
	}

	// Resolve storage config the same way.
	storageConfig := DefaultStorageConfig()
	if batonConfig.Storage != nil {
		if err := mergo.Merge(storageConfig, batonConfig.Storage, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge storage config: %w", err)
		}
	}

	retentionCfg := resolveRetentionConfig(batonConfig.System)
	slackCfg := resolveSlackConfig(batonConfig.System)
	apiCfg := resolveAPIConfig(batonConfig.API, batonConfig.System)
	curatorCfg := resolveCuratorConfig(batonConfig.Curator)
	githubCfg := resolveGitHubConfig(batonConfig.System)
	docsCfg := resolveDocsConfig(batonConfig.System)

	return &Config{
		configDir:       configDir,
		Queue:           queueConfig,
		Storage:         storageConfig,
		Retention:       retentionCfg,
		API:             apiCfg,
		Slack:           slackCfg,
		Curator:         curatorCfg,
		GitHub:          githubCfg,
		Docs:            docsCfg,
		DefaultProvider: defaultProvider,
		Providers:       registry,
	}, nil
}

// validate performs comprehensive validation on loaded configuration
func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables using {{.VAR}} template syntax
	// Note: ExpandEnv passes through original data on parse/execution errors,
	// allowing YAML parser to handle the content (or fail with clearer error message)
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadBatonYAML() (*BatonYAMLConfig, error) {
	var config BatonYAMLConfig

	// Initialize map to avoid nil map
	config.LLMProviders = make(map[string]ProviderConfig)

	if err := l.loadYAML("baton.yaml", &config); err != nil {
		return nil, err
	}

	return &config, nil
}

// resolveRetentionConfig resolves retention configuration from system YAML, applying defaults.
func resolveRetentionConfig(sys *SystemYAMLConfig) *RetentionConfig {
	cfg := DefaultRetentionConfig()

	if sys == nil || sys.Retention == nil {
		return cfg
	}

	r := sys.Retention
	if r.CheckpointRetentionDays > 0 {
		cfg.CheckpointRetentionDays = r.CheckpointRetentionDays
	}
	if r.ActivityRetentionHours > 0 {
		cfg.ActivityRetentionHours = r.ActivityRetentionHours
	}
	if r.AuditRetentionDays > 0 {
		cfg.AuditRetentionDays = r.AuditRetentionDays
	}
	if r.CleanupInterval > 0 {
		cfg.CleanupInterval = r.CleanupInterval
	}

	return cfg
}

// resolveSlackConfig resolves Slack configuration from system YAML, applying defaults.
func resolveSlackConfig(sys *SystemYAMLConfig) *SlackConfig {
	cfg := &SlackConfig{
		Enabled:  false,
		TokenEnv: "SLACK_BOT_TOKEN",
	}

	if sys == nil || sys.Slack == nil {
		return cfg
	}

	s := sys.Slack
	if s.Enabled != nil {
		cfg.Enabled = *s.Enabled
	}
	if s.TokenEnv != "" {
		cfg.TokenEnv = s.TokenEnv
	}
	if s.Channel != "" {
		cfg.Channel = s.Channel
	}

	return cfg
}

// resolveAPIConfig resolves API configuration from YAML, applying defaults.
func resolveAPIConfig(api *APIYAMLConfig, sys *SystemYAMLConfig) *APIConfig {
	cfg := &APIConfig{
		Port:         8080,
		ReadTimeout:  defaultAPIReadTimeout,
		WriteTimeout: defaultAPIWriteTimeout,
	}

	if sys != nil {
		cfg.AllowedWSOrigins = sys.AllowedWSOrigins
	}

	if api == nil {
		return cfg
	}

	if api.Port > 0 {
		cfg.Port = api.Port
	}
	if api.AuthTokenEnv != "" {
		cfg.AuthTokenEnv = api.AuthTokenEnv
	}
	cfg.ReadTimeout = parseDurationOrDefault(api.ReadTimeout, cfg.ReadTimeout, "api.read_timeout")
	cfg.WriteTimeout = parseDurationOrDefault(api.WriteTimeout, cfg.WriteTimeout, "api.write_timeout")

	return cfg
}

// resolveGitHubConfig resolves GitHub configuration from system YAML, applying defaults.
func resolveGitHubConfig(sys *SystemYAMLConfig) *GitHubConfig {
	cfg := &GitHubConfig{
		TokenEnv: "GITHUB_TOKEN",
	}

	if sys != nil && sys.GitHub != nil && sys.GitHub.TokenEnv != "" {
		cfg.TokenEnv = sys.GitHub.TokenEnv
	}

	return cfg
}

// resolveDocsConfig resolves documentation source configuration from system YAML, applying defaults.
func resolveDocsConfig(sys *SystemYAMLConfig) *DocsConfig {
	cfg := &DocsConfig{
		CacheTTL:       defaultDocsCacheTTL,
		AllowedDomains: []string{"github.com", "raw.githubusercontent.com"},
	}

	if sys == nil || sys.Docs == nil {
		return cfg
	}

	d := sys.Docs
	if d.RepoURL != "" {
		cfg.RepoURL = d.RepoURL
	}
	cfg.CacheTTL = parseDurationOrDefault(d.CacheTTL, cfg.CacheTTL, "system.docs.cache_ttl")
	if len(d.AllowedDomains) > 0 {
		cfg.AllowedDomains = d.AllowedDomains
	}

	return cfg
}

// resolveCuratorConfig resolves curation configuration from YAML, applying defaults.
func resolveCuratorConfig(cur *CuratorYAMLConfig) *CuratorConfig {
	cfg := &CuratorConfig{
		TokenBudget: defaultCuratorTokenBudget,
		CacheTTL:    defaultCuratorCacheTTL,
		Timeout:     defaultCuratorTimeout,
	}

	if cur == nil {
		return cfg
	}

	if cur.TokenBudget > 0 {
		cfg.TokenBudget = cur.TokenBudget
	}
	cfg.CacheTTL = parseDurationOrDefault(cur.CacheTTL, cfg.CacheTTL, "curator.cache_ttl")
	cfg.Timeout = parseDurationOrDefault(cur.Timeout, cfg.Timeout, "curator.timeout")

	return cfg
}
