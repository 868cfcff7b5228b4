package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/codeready-toolchain/baton/pkg/faults"
	"github.com/codeready-toolchain/baton/pkg/models"
)

// FileSink appends audit events to a JSONL file, one event per line.
// The active file is append-only; a sink never rewrites written bytes.
type FileSink struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// NewFileSink opens (or creates) the audit file for the given session
// under baseDir. Directories are owner-only, files owner read-write.
func NewFileSink(baseDir, sessionID string) (*FileSink, error) {
	if err := rejectTraversal(sessionID); err != nil {
		return nil, err
	}
	dir := filepath.Join(baseDir, sessionID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("audit-%s.jsonl", time.Now().UTC().Format("2006-01-02")))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}
	return &FileSink{path: path, file: file}, nil
}

// Path returns the active audit file path
func (s *FileSink) Path() string {
	return s.path
}

// Write appends one event as a JSON line and syncs it to disk
func (s *FileSink) Write(_ context.Context, event models.AuditEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize audit event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.Write(append(raw, '\n')); err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync audit file: %w", err)
	}
	return nil
}

// Close releases the underlying file
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// rejectTraversal refuses path components that could escape the base
// directory. Traversal attempts are security violations, not bad input.
func rejectTraversal(component string) error {
	if component == "" {
		return faults.New(faults.CodeSecurity, "path component must not be empty")
	}
	if component != filepath.Base(component) || component == ".." || component == "." {
		return faults.Newf(faults.CodeSecurity, "path component %q is not a plain name", component)
	}
	return nil
}

// SweepExpired removes audit files older than retentionDays across every
// session directory under baseDir, pruning directories the sweep emptied.
// Audit files are never rewritten; expiry removes whole files only, so a
// surviving file still verifies against its recorded chain.
func SweepExpired(baseDir string, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour)

	sessions, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list audit base directory: %w", err)
	}

	removed := 0
	for _, session := range sessions {
		if !session.IsDir() {
			continue
		}
		dir := filepath.Join(baseDir, session.Name())
		entries, err := os.ReadDir(dir)
		if err != nil {
			return removed, fmt.Errorf("failed to list %s: %w", dir, err)
		}

		swept := 0
		for _, e := range entries {
			if e.IsDir() || !strings.HasPrefix(e.Name(), "audit-") || !strings.HasSuffix(e.Name(), ".jsonl") {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
					return removed, fmt.Errorf("failed to remove expired audit file %s: %w", e.Name(), err)
				}
				swept++
			}
		}
		removed += swept
		if swept > 0 {
			if rest, err := os.ReadDir(dir); err == nil && len(rest) == 0 {
				_ = os.Remove(dir)
			}
		}
	}
	return removed, nil
}

// LoadFile reads a JSONL audit file back into events, in file order.
// Feed the result to VerifyEvents to check a persisted chain.
func LoadFile(path string) ([]models.AuditEvent, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}
	defer file.Close()

	var events []models.AuditEvent
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), models.MaxAuditEventSize+1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var event models.AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			return nil, fmt.Errorf("failed to parse audit file %s line %d: %w", path, line, err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit file: %w", err)
	}
	return events, nil
}
