package config

import "time"

// QueueConfig contains workflow queue and worker pool configuration.
// These values control how submitted workflows are dispatched and processed.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines.
	// Each worker independently takes and runs one workflow at a time.
	WorkerCount int `yaml:"worker_count"`

	// MaxConcurrentWorkflows is the global limit of workflows being
	// processed at once. Submissions beyond it wait in the queue.
	MaxConcurrentWorkflows int `yaml:"max_concurrent_workflows"`

	// QueueSize is the capacity of the submission queue. A full queue
	// rejects further submissions instead of blocking callers.
	QueueSize int `yaml:"queue_size"`

	// WorkflowTimeout is the maximum time one workflow may run. Expired
	// runs are cancelled; their state stays resumable from checkpoints.
	WorkflowTimeout time.Duration `yaml:"workflow_timeout"`

	// GracefulShutdownTimeout is the max time to wait for workers to
	// acknowledge cancellation during shutdown.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             4,
		MaxConcurrentWorkflows:  4,
		QueueSize:               64,
		WorkflowTimeout:         2 * time.Hour,
		GracefulShutdownTimeout: 30 * time.Second,
	}
}
