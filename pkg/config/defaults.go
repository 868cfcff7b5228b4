package config

import (
	"log/slog"
	"time"
)

const (
	defaultAPIReadTimeout  = 30 * time.Second
	defaultAPIWriteTimeout = 30 * time.Second

	defaultCuratorTokenBudget = 8000
	defaultCuratorCacheTTL    = 60 * time.Second
	defaultCuratorTimeout     = 30 * time.Second

	defaultDocsCacheTTL = 5 * time.Minute
)

// parseDurationOrDefault parses a duration string from YAML, keeping the
// fallback on empty or malformed input. Malformed values are logged once
// at load time.
func parseDurationOrDefault(value string, fallback time.Duration, field string) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("Invalid duration in config, using default",
			"field", field,
			"value", value,
			"default", fallback,
			"error", err)
		return fallback
	}
	return d
}
