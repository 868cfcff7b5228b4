// Package checkpoint persists tamper-evident workflow snapshots to disk.
// Each checkpoint is a single JSON file carrying four snapshot sections
// with SHA-256 checksums over every section and over the whole set.
package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/baton/pkg/faults"
	"github.com/codeready-toolchain/baton/pkg/metrics"
	"github.com/codeready-toolchain/baton/pkg/models"
	"github.com/codeready-toolchain/baton/pkg/redact"
)

const (
	// DefaultMaxCheckpoints is how many active checkpoints are kept before
	// the oldest rotate into the archive.
	DefaultMaxCheckpoints = 50

	// DefaultRetentionDays bounds how long checkpoint files survive.
	DefaultRetentionDays = 30

	// DefaultWriteTimeout bounds one checkpoint write.
	DefaultWriteTimeout = 10 * time.Second

	archiveDirName = "archive"
)

// Config controls a checkpoint store. Zero values take the defaults.
type Config struct {
	BaseDir        string
	SessionID      string
	MaxCheckpoints int
	RetentionDays  int
	WriteTimeout   time.Duration
}

// Snapshot is the material captured into a checkpoint: the four sections
// the workflow engine hands over at a checkpoint trigger.
type Snapshot struct {
	Workflow   models.WorkflowSnapshot
	Agents     map[string]models.AgentState
	Context    models.ContextSnapshot
	Filesystem models.FilesystemSnapshot
}

// Store writes and validates checkpoints for one session. At most one
// writer is expected per workflow; a lock serializes writes anyway.
type Store struct {
	mu             sync.Mutex
	dir            string
	sessionID      string
	maxCheckpoints int
	retentionDays  int
	writeTimeout   time.Duration
}

// NewStore creates the session's checkpoint directory (owner-only) and
// returns a store over it.
func NewStore(cfg Config) (*Store, error) {
	if cfg.BaseDir == "" {
		return nil, faults.New(faults.CodeValidation, "checkpoint base directory is required")
	}
	if err := rejectTraversal(cfg.SessionID); err != nil {
		return nil, err
	}
	if cfg.MaxCheckpoints <= 0 {
		cfg.MaxCheckpoints = DefaultMaxCheckpoints
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = DefaultRetentionDays
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	dir := filepath.Join(cfg.BaseDir, cfg.SessionID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &Store{
		dir:            dir,
		sessionID:      cfg.SessionID,
		maxCheckpoints: cfg.MaxCheckpoints,
		retentionDays:  cfg.RetentionDays,
		writeTimeout:   cfg.WriteTimeout,
	}, nil
}

// rejectTraversal refuses session ids that are not plain path components.
func rejectTraversal(component string) error {
	if component == "" {
		return faults.New(faults.CodeSecurity, "session id must not be empty")
	}
	if component != filepath.Base(component) || component == ".." || component == "." {
		return faults.Newf(faults.CodeSecurity, "session id %q is not a plain name", component)
	}
	return nil
}

// Create captures a checkpoint: redact, checksum, analyze recovery, then
// write atomically (temp file, fsync, rename) and enforce rotation and
// retention. The written checkpoint is immutable from this point on.
func (s *Store) Create(ctx context.Context, workflowID string, snap Snapshot, trigger models.CheckpointTrigger, reason string) (*models.Checkpoint, error) {
	if !trigger.IsValid() {
		return nil, faults.Newf(faults.CodeValidation, "unknown checkpoint trigger %q", trigger)
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	redacted, err := redactSnapshot(snap)
	if err != nil {
		return nil, err
	}

	integrity, err := computeIntegrity(redacted)
	if err != nil {
		return nil, err
	}

	cp := &models.Checkpoint{
		ID:         uuid.NewString(),
		SessionID:  s.sessionID,
		WorkflowID: workflowID,
		CreatedAt:  time.Now().UTC(),
		Trigger:    trigger,
		Status:     models.CheckpointValid,
		Reason:     reason,
		Workflow:   redacted.Workflow,
		Agents:     redacted.Agents,
		Context:    redacted.Context,
		Filesystem: redacted.Filesystem,
		Integrity:  integrity,
		Recovery:   analyzeRecovery(redacted),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeAtomic(cp); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, faults.NewTimeout("checkpoint write", time.Since(start), s.writeTimeout)
	}

	metrics.CheckpointWrites.WithLabelValues(string(trigger)).Inc()

	if err := s.rotate(); err != nil {
		slog.Warn("Checkpoint rotation failed", "session_id", s.sessionID, "error", err)
	}
	if err := s.enforceRetention(); err != nil {
		slog.Warn("Checkpoint retention sweep failed", "session_id", s.sessionID, "error", err)
	}

	slog.Debug("Checkpoint written",
		"checkpoint_id", cp.ID,
		"session_id", s.sessionID,
		"trigger", trigger,
		"duration_ms", time.Since(start).Milliseconds())
	return cp, nil
}

// redactSnapshot scrubs secrets through a JSON round trip, so the scan
// reaches every nested string in every section.
func redactSnapshot(snap Snapshot) (Snapshot, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to serialize snapshot: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	clean, err := json.Marshal(redact.Value(generic))
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to serialize redacted snapshot: %w", err)
	}
	var out Snapshot
	if err := json.Unmarshal(clean, &out); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode redacted snapshot: %w", err)
	}
	return out, nil
}

// sectionChecksum is SHA-256 over the section's JSON, truncated to the
// first 16 hex characters. Map keys serialize sorted, so equal sections
// always produce equal bytes.
func sectionChecksum(section any) (string, error) {
	raw, err := json.Marshal(section)
	if err != nil {
		return "", fmt.Errorf("failed to serialize checkpoint section: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:16], nil
}

func computeIntegrity(snap Snapshot) (models.CheckpointIntegrity, error) {
	var integrity models.CheckpointIntegrity
	var err error

	if integrity.Workflow, err = sectionChecksum(snap.Workflow); err != nil {
		return integrity, err
	}
	if integrity.Agents, err = sectionChecksum(snap.Agents); err != nil {
		return integrity, err
	}
	if integrity.Context, err = sectionChecksum(snap.Context); err != nil {
		return integrity, err
	}
	if integrity.Filesystem, err = sectionChecksum(snap.Filesystem); err != nil {
		return integrity, err
	}

	overall := sha256.Sum256([]byte(integrity.Workflow + integrity.Agents + integrity.Context + integrity.Filesystem))
	integrity.Overall = hex.EncodeToString(overall[:])[:16]
	return integrity, nil
}

// analyzeRecovery decides whether the checkpoint supports resumption.
// A workflow cannot resume past a terminal failure or an agent that
// failed beyond the escalation threshold.
func analyzeRecovery(snap Snapshot) models.CheckpointRecovery {
	recovery := models.CheckpointRecovery{CanResume: true}

	if snap.Workflow.CurrentState == models.PhaseFailed {
		recovery.CanResume = false
		recovery.Blockers = append(recovery.Blockers, "workflow is in terminal failed state")
	}

	names := make([]string, 0, len(snap.Agents))
	for name := range snap.Agents {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		state := snap.Agents[name]
		if state.Status == models.AgentRunFailed && state.Attempts > 3 {
			recovery.CanResume = false
			recovery.Blockers = append(recovery.Blockers,
				fmt.Sprintf("agent %s failed after %d attempts", name, state.Attempts))
		}
		if state.Status == models.AgentRunRunning && recovery.ResumeFromAgent == "" {
			recovery.ResumeFromAgent = name
		}
	}

	if snap.Workflow.CurrentState.Terminal() {
		recovery.ResumeFromState = snap.Workflow.PreviousState
	} else {
		recovery.ResumeFromState = snap.Workflow.CurrentState
	}
	return recovery
}

// writeAtomic serializes the checkpoint to a temp file in the target
// directory, syncs it, then renames it into place. Readers only ever see
// complete files.
func (s *Store) writeAtomic(cp *models.Checkpoint) error {
	raw, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close checkpoint temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("failed to set checkpoint permissions: %w", err)
	}

	final := filepath.Join(s.dir, checkpointFileName(cp))
	if err := os.Rename(tmpName, final); err != nil {
		return fmt.Errorf("failed to finalize checkpoint: %w", err)
	}
	return nil
}

// checkpointFileName builds checkpoint-<RFC3339-safe>-<uuid>.json; colons
// are swapped for dashes so the names are portable, and timestamp-first
// naming keeps lexicographic order chronological.
func checkpointFileName(cp *models.Checkpoint) string {
	stamp := strings.ReplaceAll(cp.CreatedAt.Format("2006-01-02T15:04:05.000Z"), ":", "-")
	return fmt.Sprintf("checkpoint-%s-%s.json", stamp, cp.ID)
}

// activeFiles returns active checkpoint file names sorted oldest first
func (s *Store) activeFiles() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoint directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "checkpoint-") || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// rotate archives the oldest checkpoints beyond maxCheckpoints
func (s *Store) rotate() error {
	names, err := s.activeFiles()
	if err != nil {
		return err
	}
	if len(names) <= s.maxCheckpoints {
		return nil
	}

	archiveDir := filepath.Join(s.dir, archiveDirName)
	if err := os.MkdirAll(archiveDir, 0o700); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}
	for _, name := range names[:len(names)-s.maxCheckpoints] {
		from := filepath.Join(s.dir, name)
		to := filepath.Join(archiveDir, name)
		if err := os.Rename(from, to); err != nil {
			return fmt.Errorf("failed to archive checkpoint %s: %w", name, err)
		}
		slog.Debug("Checkpoint archived", "session_id", s.sessionID, "file", name)
	}
	return nil
}

// enforceRetention unlinks active and archived files past retentionDays
func (s *Store) enforceRetention() error {
	cutoff := time.Now().Add(-time.Duration(s.retentionDays) * 24 * time.Hour)
	for _, dir := range []string{s.dir, filepath.Join(s.dir, archiveDirName)} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("failed to list %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasPrefix(e.Name(), "checkpoint-") {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
					return fmt.Errorf("failed to remove expired checkpoint %s: %w", e.Name(), err)
				}
			}
		}
	}
	return nil
}

// SweepExpired removes checkpoint files older than retentionDays across
// every workflow directory under baseDir, archives included. Per-store
// retention only runs on write, so workflows that stopped checkpointing
// are swept here. Only directories the sweep itself emptied are pruned;
// a fresh directory awaiting its first checkpoint is left alone.
func SweepExpired(baseDir string, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour)

	workflows, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list checkpoint base directory: %w", err)
	}

	removed := 0
	for _, entry := range workflows {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(baseDir, entry.Name())
		archive := filepath.Join(dir, archiveDirName)

		swept := 0
		for _, d := range []string{dir, archive} {
			n, err := removeExpiredCheckpoints(d, cutoff)
			if err != nil {
				return removed, err
			}
			swept += n
		}
		removed += swept
		if swept > 0 {
			pruneEmptyDir(archive)
			pruneEmptyDir(dir)
		}
	}
	return removed, nil
}

func removeExpiredCheckpoints(dir string, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "checkpoint-") || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
				return removed, fmt.Errorf("failed to remove expired checkpoint %s: %w", e.Name(), err)
			}
			removed++
		}
	}
	return removed, nil
}

// pruneEmptyDir removes dir when nothing is left in it. A race with a
// store writing a new checkpoint loses harmlessly: Remove fails on
// non-empty directories.
func pruneEmptyDir(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return
	}
	_ = os.Remove(dir)
}

// Get loads a checkpoint by id
func (s *Store) Get(id string) (*models.Checkpoint, error) {
	path, err := s.findByID(id)
	if err != nil {
		return nil, err
	}
	return loadCheckpoint(path)
}

// List returns all active checkpoints, oldest first
func (s *Store) List() ([]*models.Checkpoint, error) {
	names, err := s.activeFiles()
	if err != nil {
		return nil, err
	}
	out := make([]*models.Checkpoint, 0, len(names))
	for _, name := range names {
		cp, err := loadCheckpoint(filepath.Join(s.dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// Latest returns the most recent active checkpoint
func (s *Store) Latest() (*models.Checkpoint, error) {
	names, err := s.activeFiles()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, faults.New(faults.CodeNotFound, "no checkpoints exist for session")
	}
	return loadCheckpoint(filepath.Join(s.dir, names[len(names)-1]))
}

// Validate recomputes every checksum for the stored checkpoint. It
// returns false with an integrity fault naming the first mismatching
// section if the file was altered after writing.
func (s *Store) Validate(id string) (bool, error) {
	cp, err := s.Get(id)
	if err != nil {
		return false, err
	}

	recomputed, err := computeIntegrity(Snapshot{
		Workflow:   cp.Workflow,
		Agents:     cp.Agents,
		Context:    cp.Context,
		Filesystem: cp.Filesystem,
	})
	if err != nil {
		return false, err
	}

	sections := []struct {
		name   string
		stored string
		fresh  string
	}{
		{"workflow", cp.Integrity.Workflow, recomputed.Workflow},
		{"agents", cp.Integrity.Agents, recomputed.Agents},
		{"context", cp.Integrity.Context, recomputed.Context},
		{"filesystem", cp.Integrity.Filesystem, recomputed.Filesystem},
		{"overall", cp.Integrity.Overall, recomputed.Overall},
	}
	for _, section := range sections {
		if section.stored != section.fresh {
			return false, faults.Newf(faults.CodeIntegrity,
				"checkpoint %s failed validation", id).
				WithDetail("section", section.name).
				WithDetail("expected", section.stored).
				WithDetail("actual", section.fresh)
		}
	}
	return true, nil
}

func (s *Store) findByID(id string) (string, error) {
	if id == "" {
		return "", faults.New(faults.CodeValidation, "checkpoint id is required")
	}
	names, err := s.activeFiles()
	if err != nil {
		return "", err
	}
	suffix := "-" + id + ".json"
	for _, name := range names {
		if strings.HasSuffix(name, suffix) {
			return filepath.Join(s.dir, name), nil
		}
	}
	return "", faults.Newf(faults.CodeNotFound, "checkpoint %s not found", id)
}

func loadCheckpoint(path string) (*models.Checkpoint, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	var cp models.Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint %s: %w", filepath.Base(path), err)
	}
	return &cp, nil
}
