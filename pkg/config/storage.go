package config

import "path/filepath"

// StorageConfig holds filesystem layout and rotation settings for
// persisted workflow state. All stores live under DataDir.
type StorageConfig struct {
	// DataDir is the base directory for checkpoints, activity logs, audit
	// logs and the settings document.
	DataDir string `yaml:"data_dir"`

	// MaxCheckpoints is how many checkpoints one workflow keeps before
	// the oldest rotate into the archive.
	MaxCheckpoints int `yaml:"max_checkpoints"`

	// ActivityMaxEventsPerFile rotates activity JSONL files after this
	// many events.
	ActivityMaxEventsPerFile int `yaml:"activity_max_events_per_file"`

	// ActivityBufferSize is the in-memory activity ring capacity.
	ActivityBufferSize int `yaml:"activity_buffer_size"`

	// SubscriberQueueSize bounds each activity subscriber's queue.
	SubscriberQueueSize int `yaml:"subscriber_queue_size"`
}

// DefaultStorageConfig returns the built-in storage defaults.
func DefaultStorageConfig() *StorageConfig {
	return &StorageConfig{
		DataDir:                  "data",
		MaxCheckpoints:           50,
		ActivityMaxEventsPerFile: 100_000,
		ActivityBufferSize:       1000,
		SubscriberQueueSize:      256,
	}
}

// CheckpointDir returns the base directory for checkpoint stores.
func (s *StorageConfig) CheckpointDir() string {
	return filepath.Join(s.DataDir, "checkpoints")
}

// ActivityDir returns the base directory for activity JSONL files.
func (s *StorageConfig) ActivityDir() string {
	return filepath.Join(s.DataDir, "activity")
}

// AuditDir returns the base directory for audit JSONL files.
func (s *StorageConfig) AuditDir() string {
	return filepath.Join(s.DataDir, "audit")
}

// SettingsPath returns the location of the workflow settings document.
func (s *StorageConfig) SettingsPath() string {
	return filepath.Join(s.DataDir, "settings.json")
}
