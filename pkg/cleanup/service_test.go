package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/baton/pkg/activity"
	"github.com/codeready-toolchain/baton/pkg/audit"
	"github.com/codeready-toolchain/baton/pkg/checkpoint"
	"github.com/codeready-toolchain/baton/pkg/config"
	"github.com/codeready-toolchain/baton/pkg/models"
)

func testService(t *testing.T) (*Service, *config.StorageConfig) {
	t.Helper()
	storage := config.DefaultStorageConfig()
	storage.DataDir = t.TempDir()
	retention := &config.RetentionConfig{
		CheckpointRetentionDays: 30,
		ActivityRetentionHours:  24,
		AuditRetentionDays:      365,
		CleanupInterval:         time.Hour,
	}
	return NewService(retention, storage), storage
}

// writeCheckpointFile creates one checkpoint for the workflow and returns
// its file path.
func writeCheckpointFile(t *testing.T, storage *config.StorageConfig, workflowID string) string {
	t.Helper()
	store, err := checkpoint.NewStore(checkpoint.Config{
		BaseDir:   storage.CheckpointDir(),
		SessionID: workflowID,
	})
	require.NoError(t, err)

	_, err = store.Create(context.Background(), workflowID, checkpoint.Snapshot{
		Workflow: models.WorkflowSnapshot{CurrentState: models.PhaseDesigning},
	}, models.TriggerStateTransition, "phase boundary")
	require.NoError(t, err)

	dir := filepath.Join(storage.CheckpointDir(), workflowID)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	return filepath.Join(dir, entries[0].Name())
}

func backdate(t *testing.T, path string, age time.Duration) {
	t.Helper()
	old := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, old, old))
}

func TestService_RemovesExpiredCheckpoints(t *testing.T) {
	svc, storage := testService(t)

	expired := writeCheckpointFile(t, storage, "task-old")
	backdate(t, expired, 40*24*time.Hour)
	kept := writeCheckpointFile(t, storage, "task-recent")

	svc.runAll(context.Background())

	assert.NoFileExists(t, expired)
	assert.FileExists(t, kept)

	// The emptied workflow directory is pruned with its files.
	assert.NoDirExists(t, filepath.Join(storage.CheckpointDir(), "task-old"))
	assert.DirExists(t, filepath.Join(storage.CheckpointDir(), "task-recent"))
}

func TestService_LeavesFreshWorkflowDirs(t *testing.T) {
	svc, storage := testService(t)

	// A store opened before the first checkpoint write: directory exists,
	// no files. The sweep must not pull it out from under the store.
	_, err := checkpoint.NewStore(checkpoint.Config{
		BaseDir:   storage.CheckpointDir(),
		SessionID: "task-starting",
	})
	require.NoError(t, err)

	svc.runAll(context.Background())

	assert.DirExists(t, filepath.Join(storage.CheckpointDir(), "task-starting"))
}

func TestService_ZeroRetentionKeepsEverything(t *testing.T) {
	svc, storage := testService(t)
	svc.retention.CheckpointRetentionDays = 0

	path := writeCheckpointFile(t, storage, "task-ancient")
	backdate(t, path, 400*24*time.Hour)

	svc.runAll(context.Background())

	assert.FileExists(t, path)
}

func TestService_RemovesExpiredActivityFiles(t *testing.T) {
	svc, storage := testService(t)

	store, err := activity.NewFileStore(activity.FileStoreConfig{BaseDir: storage.ActivityDir()})
	require.NoError(t, err)
	require.NoError(t, store.Append(context.Background(), models.ActivityEvent{
		Sequence:  1,
		ID:        "evt-1",
		Timestamp: time.Now().UTC(),
		Type:      models.ActivityWorkflowStart,
		SessionID: "session-a",
		Title:     "workflow started",
	}))
	require.NoError(t, store.Close())

	entries, err := os.ReadDir(storage.ActivityDir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	path := filepath.Join(storage.ActivityDir(), entries[0].Name())
	backdate(t, path, 48*time.Hour)

	svc.runAll(context.Background())

	assert.NoFileExists(t, path)
}

func TestService_PreservesRecentActivityFiles(t *testing.T) {
	svc, storage := testService(t)

	store, err := activity.NewFileStore(activity.FileStoreConfig{BaseDir: storage.ActivityDir()})
	require.NoError(t, err)
	require.NoError(t, store.Append(context.Background(), models.ActivityEvent{
		Sequence:  1,
		ID:        "evt-1",
		Timestamp: time.Now().UTC(),
		Type:      models.ActivityWorkflowStart,
		SessionID: "session-a",
		Title:     "workflow started",
	}))
	require.NoError(t, store.Close())

	svc.runAll(context.Background())

	entries, err := os.ReadDir(storage.ActivityDir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestService_RemovesExpiredAuditFiles(t *testing.T) {
	svc, storage := testService(t)
	svc.retention.AuditRetentionDays = 30

	sink, err := audit.NewFileSink(storage.AuditDir(), "session-old")
	require.NoError(t, err)
	require.NoError(t, sink.Write(context.Background(), models.AuditEvent{
		Category: models.AuditWorkflow,
		Action:   "workflow.submit",
	}))
	path := sink.Path()
	require.NoError(t, sink.Close())
	backdate(t, path, 60*24*time.Hour)

	svc.runAll(context.Background())

	assert.NoFileExists(t, path)
	assert.NoDirExists(t, filepath.Join(storage.AuditDir(), "session-old"))
}

func TestService_StartStop(t *testing.T) {
	svc, _ := testService(t)

	svc.Start(context.Background())
	svc.Stop()
}
