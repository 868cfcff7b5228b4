// Package cleanup enforces retention on persisted workflow state.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/baton/pkg/activity"
	"github.com/codeready-toolchain/baton/pkg/audit"
	"github.com/codeready-toolchain/baton/pkg/checkpoint"
	"github.com/codeready-toolchain/baton/pkg/config"
)

// Service periodically deletes persisted state past its retention window:
//   - checkpoint files (active and archived) older than CheckpointRetentionDays
//   - rotated activity logs older than ActivityRetentionHours
//   - audit logs older than AuditRetentionDays
//
// Expiry is by file modification time and removes whole files only, so
// every sweep is idempotent and safe to run next to live stores.
type Service struct {
	retention *config.RetentionConfig
	storage   *config.StorageConfig

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a retention service over the storage layout.
func NewService(retention *config.RetentionConfig, storage *config.StorageConfig) *Service {
	return &Service{
		retention: retention,
		storage:   storage,
	}
}

// Start launches the background sweep loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Retention service started",
		"checkpoint_retention_days", s.retention.CheckpointRetentionDays,
		"activity_retention_hours", s.retention.ActivityRetentionHours,
		"audit_retention_days", s.retention.AuditRetentionDays,
		"interval", s.retention.CleanupInterval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Retention service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.retention.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.sweepCheckpoints(ctx)
	s.sweepActivity(ctx)
	s.sweepAudit(ctx)
}

func (s *Service) sweepCheckpoints(_ context.Context) {
	count, err := checkpoint.SweepExpired(s.storage.CheckpointDir(), s.retention.CheckpointRetentionDays)
	if err != nil {
		slog.Error("Retention: checkpoint sweep failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: removed expired checkpoints", "count", count)
	}
}

func (s *Service) sweepActivity(_ context.Context) {
	count, err := activity.SweepExpired(s.storage.ActivityDir(), s.retention.ActivityRetentionHours)
	if err != nil {
		slog.Error("Retention: activity sweep failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: removed expired activity files", "count", count)
	}
}

func (s *Service) sweepAudit(_ context.Context) {
	count, err := audit.SweepExpired(s.storage.AuditDir(), s.retention.AuditRetentionDays)
	if err != nil {
		slog.Error("Retention: audit sweep failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: removed expired audit files", "count", count)
	}
}
