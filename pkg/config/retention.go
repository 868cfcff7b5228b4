package config

import "time"

// RetentionConfig controls how long persisted workflow state is kept.
type RetentionConfig struct {
	// CheckpointRetentionDays is how many days archived checkpoints are
	// kept before the retention sweep deletes them.
	CheckpointRetentionDays int `yaml:"checkpoint_retention_days"`

	// ActivityRetentionHours is the maximum age of rotated activity log
	// files before deletion.
	ActivityRetentionHours int `yaml:"activity_retention_hours"`

	// AuditRetentionDays is how many days audit log files are kept.
	// Audit files are never rewritten; expiry removes whole files only.
	AuditRetentionDays int `yaml:"audit_retention_days"`

	// CleanupInterval is how often the cleanup loop runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		CheckpointRetentionDays: 30,
		ActivityRetentionHours:  24 * 30,
		AuditRetentionDays:      365,
		CleanupInterval:         12 * time.Hour,
	}
}
