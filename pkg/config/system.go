package config

import "time"

// APIConfig holds resolved HTTP API configuration.
type APIConfig struct {
	Port             int           // Listen port (default: 8080)
	AuthTokenEnv     string        // Env var name for the bearer token; empty disables auth
	AllowedWSOrigins []string      // Additional allowed WebSocket origin patterns
	ReadTimeout      time.Duration // HTTP server read timeout
	WriteTimeout     time.Duration // HTTP server write timeout
}

// SlackConfig holds resolved Slack notification configuration.
type SlackConfig struct {
	Enabled  bool
	TokenEnv string // Env var name for Slack bot token (default: "SLACK_BOT_TOKEN")
	Channel  string // Slack channel ID (e.g., "C12345678")
}

// GitHubConfig holds resolved GitHub integration configuration.
type GitHubConfig struct {
	TokenEnv string // Env var name containing a GitHub PAT (default: "GITHUB_TOKEN")
}

// DocsConfig holds resolved project documentation source configuration.
type DocsConfig struct {
	RepoURL        string        // GitHub tree URL of the docs directory (empty = source disabled)
	CacheTTL       time.Duration // Listing and content cache duration (default: 5m)
	AllowedDomains []string      // Allowed documentation URL domains
}

// CuratorConfig holds resolved context curation configuration.
type CuratorConfig struct {
	TokenBudget int           // Total curated context budget in tokens
	CacheTTL    time.Duration // Source fetch cache duration
	Timeout     time.Duration // One curation pass deadline
}
