package activity

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/codeready-toolchain/baton/pkg/faults"
	"github.com/codeready-toolchain/baton/pkg/models"
)

const (
	// DefaultMaxEventsPerFile rotates the activity log after this many events.
	DefaultMaxEventsPerFile = 100_000
	// MaxLineBytes rejects single events that would exceed this encoded size.
	MaxLineBytes = 100 * 1024

	// maxFileBytes rotates the activity log before it exceeds this size.
	maxFileBytes = 50 * 1024 * 1024

	activityFilePrefix = "activity-"
	activityFileSuffix = ".jsonl"
)

// FileStoreConfig configures the JSONL persistence. Zero values select the
// defaults; RetentionHours <= 0 keeps files forever.
type FileStoreConfig struct {
	BaseDir          string
	MaxEventsPerFile int
	RetentionHours   int
}

var _ Persistence = (*FileStore)(nil)

// FileStore persists activity events as JSONL, one event per line, rotating
// files by event count and size and sweeping expired files by modification
// time.
type FileStore struct {
	mu           sync.Mutex
	dir          string
	maxEvents    int
	retention    time.Duration
	file         *os.File
	path         string
	eventsInFile int
	bytesInFile  int64
}

// NewFileStore validates and prepares the base directory. The directory must
// not contain traversal segments and must not be a symlink.
func NewFileStore(cfg FileStoreConfig) (*FileStore, error) {
	dir, err := sanitizeBaseDir(cfg.BaseDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create activity directory: %w", err)
	}

	maxEvents := cfg.MaxEventsPerFile
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEventsPerFile
	}

	store := &FileStore{
		dir:       dir,
		maxEvents: maxEvents,
		retention: time.Duration(cfg.RetentionHours) * time.Hour,
	}
	store.mu.Lock()
	store.sweepLocked()
	store.mu.Unlock()
	return store, nil
}

func sanitizeBaseDir(dir string) (string, error) {
	if dir == "" {
		return "", faults.New(faults.CodeValidation, "activity base directory is required")
	}
	for _, part := range strings.Split(filepath.ToSlash(dir), "/") {
		if part == ".." {
			return "", faults.New(faults.CodeSecurity, "activity base directory must not contain traversal segments").
				WithDetail("dir", dir)
		}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve activity base directory: %w", err)
	}
	if info, err := os.Lstat(abs); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return "", faults.New(faults.CodeSecurity, "activity base directory must not be a symlink").
			WithDetail("dir", dir)
	}
	return abs, nil
}

// Append writes one event as a JSONL line, rotating the current file first
// when the event count or size limit would be exceeded.
func (s *FileStore) Append(ctx context.Context, event models.ActivityEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode activity event: %w", err)
	}
	if len(line)+1 > MaxLineBytes {
		return faults.New(faults.CodeValidation, "activity event exceeds the line size limit").
			WithDetail("bytes", len(line)+1).
			WithDetail("limit", MaxLineBytes)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil || s.eventsInFile >= s.maxEvents || s.bytesInFile+int64(len(line)+1) > maxFileBytes {
		if err := s.rotateLocked(); err != nil {
			return err
		}
	}
	if _, err := s.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append activity event: %w", err)
	}
	s.eventsInFile++
	s.bytesInFile += int64(len(line) + 1)
	return nil
}

func (s *FileStore) rotateLocked() error {
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			slog.Warn("failed to close rotated activity file", "path", s.path, "error", err)
		}
		s.file = nil
		s.path = ""
	}
	s.sweepLocked()

	// Nanosecond precision keeps names unique; ":" is replaced for
	// filesystem portability. Names sort chronologically.
	stamp := strings.ReplaceAll(time.Now().UTC().Format("2006-01-02T15:04:05.000000000Z"), ":", "-")
	path := filepath.Join(s.dir, activityFilePrefix+stamp+activityFileSuffix)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open activity file: %w", err)
	}
	s.file = file
	s.path = path
	s.eventsInFile = 0
	s.bytesInFile = 0
	return nil
}

func (s *FileStore) sweepLocked() {
	if s.retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-s.retention)
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		slog.Warn("failed to list activity directory for retention sweep", "dir", s.dir, "error", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !isActivityFile(entry.Name()) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if path == s.path {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				slog.Warn("failed to remove expired activity file", "path", path, "error", err)
			}
		}
	}
}

func isActivityFile(name string) bool {
	return strings.HasPrefix(name, activityFilePrefix) && strings.HasSuffix(name, activityFileSuffix)
}

// SweepExpired removes activity files in dir older than retentionHours.
// The store's own sweep only runs on rotation; an idle store never
// rotates, so the retention loop calls this. An open file unlinked here
// stays writable until the store rotates; its events were already past
// retention.
func SweepExpired(dir string, retentionHours int) (int, error) {
	if retentionHours <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-time.Duration(retentionHours) * time.Hour)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list activity directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !isActivityFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
				return removed, fmt.Errorf("failed to remove expired activity file: %w", err)
			}
			removed++
		}
	}
	return removed, nil
}

// Query loads persisted events matching the options, ascending by sequence.
func (s *FileStore) Query(ctx context.Context, opts QueryOptions) ([]models.ActivityEvent, error) {
	s.mu.Lock()
	dir := s.dir
	s.mu.Unlock()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && isActivityFile(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var events []models.ActivityEvent
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		loaded, err := s.loadFile(filepath.Join(dir, name), opts)
		if err != nil {
			return nil, err
		}
		events = append(events, loaded...)
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].Sequence != events[j].Sequence {
			return events[i].Sequence < events[j].Sequence
		}
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.Before(events[j].Timestamp)
		}
		return events[i].SessionID < events[j].SessionID
	})

	if opts.Limit > 0 && len(events) > opts.Limit {
		events = events[:opts.Limit]
	}
	return events, nil
}

func (s *FileStore) loadFile(path string, opts QueryOptions) ([]models.ActivityEvent, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open activity file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var events []models.ActivityEvent
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), MaxLineBytes+1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event models.ActivityEvent
		if err := json.Unmarshal(line, &event); err != nil {
			// A truncated tail line after a crash is expected; skip it.
			slog.Warn("skipping malformed activity line", "path", path, "error", err)
			continue
		}
		if !matchesQuery(event, opts) {
			continue
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read activity file %s: %w", path, err)
	}
	return events, nil
}

func matchesQuery(event models.ActivityEvent, opts QueryOptions) bool {
	if opts.SessionID != "" && event.SessionID != opts.SessionID {
		return false
	}
	if opts.From != nil && event.Timestamp.Before(*opts.From) {
		return false
	}
	if opts.To != nil && event.Timestamp.After(*opts.To) {
		return false
	}
	return opts.Filter.Matches(event)
}

// Close closes the currently open activity file, if any.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	s.path = ""
	return err
}
