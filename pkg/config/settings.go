package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/codeready-toolchain/baton/pkg/faults"
	"github.com/codeready-toolchain/baton/pkg/models"
)

// SettingsStore owns the workflow settings document: a single JSON file
// holding the options of models.WorkflowSettings and nothing else. Reads
// serve an in-memory copy; writes validate, persist atomically and then
// replace the copy. Writes are serialized, last writer wins.
type SettingsStore struct {
	mu      sync.Mutex
	path    string
	current models.WorkflowSettings
}

// NewSettingsStore opens the settings document at path. A missing file
// yields the documented defaults; the file appears on the first write.
func NewSettingsStore(path string) (*SettingsStore, error) {
	if path == "" {
		return nil, faults.New(faults.CodeValidation, "settings path is required")
	}

	s := &SettingsStore{
		path:    path,
		current: models.DefaultWorkflowSettings(),
	}

	loaded, err := readSettingsFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, err
	}
	s.current = loaded

	return s, nil
}

// Path returns the document location.
func (s *SettingsStore) Path() string {
	return s.path
}

// Get returns the current settings.
func (s *SettingsStore) Get() models.WorkflowSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Update validates the document, persists it and makes it current.
// Out-of-range values are rejected; with style competition disabled the
// stored counts are coerced to 1, so a later Get returns the document
// exactly as persisted.
func (s *SettingsStore) Update(settings models.WorkflowSettings) (models.WorkflowSettings, error) {
	if err := settings.Validate(); err != nil {
		return models.WorkflowSettings{}, err
	}
	settings.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(settings); err != nil {
		return models.WorkflowSettings{}, err
	}
	s.current = settings

	return settings, nil
}

// Reset restores and persists the documented defaults.
func (s *SettingsStore) Reset() (models.WorkflowSettings, error) {
	defaults := models.DefaultWorkflowSettings()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(defaults); err != nil {
		return models.WorkflowSettings{}, err
	}
	s.current = defaults

	return defaults, nil
}

// Reload re-reads the document from disk, picking up external edits.
// Invalid or unknown-key content is rejected and the current settings
// stay in place. A missing file reverts to the defaults.
func (s *SettingsStore) Reload() (models.WorkflowSettings, error) {
	loaded, err := readSettingsFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			loaded = models.DefaultWorkflowSettings()
		} else {
			return models.WorkflowSettings{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = loaded

	return loaded, nil
}

// write persists the document with a temp-file-then-rename so readers
// never observe a torn write. Callers hold s.mu.
func (s *SettingsStore) write(settings models.WorkflowSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return faults.Wrap(faults.CodeValidation, "failed to encode settings", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return faults.Wrap(faults.CodeUpstream, "failed to create settings directory", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.tmp")
	if err != nil {
		return faults.Wrap(faults.CodeUpstream, "failed to create settings temp file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return faults.Wrap(faults.CodeUpstream, "failed to write settings", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return faults.Wrap(faults.CodeUpstream, "failed to sync settings", err)
	}
	if err := tmp.Close(); err != nil {
		return faults.Wrap(faults.CodeUpstream, "failed to close settings temp file", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return faults.Wrap(faults.CodeUpstream, "failed to set settings file mode", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return faults.Wrap(faults.CodeUpstream, "failed to publish settings", err)
	}

	return nil
}

// readSettingsFile parses the document, rejecting unknown keys and
// out-of-range values.
func readSettingsFile(path string) (models.WorkflowSettings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.WorkflowSettings{}, faults.Wrap(faults.CodeNotFound, "settings document not found", err)
		}
		return models.WorkflowSettings{}, faults.Wrap(faults.CodeUpstream, "failed to read settings document", err)
	}

	settings := models.DefaultWorkflowSettings()
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&settings); err != nil {
		return models.WorkflowSettings{}, faults.Newf(faults.CodeValidation,
			"settings document rejected: %v", err)
	}
	// A second JSON value after the document is as malformed as a bad key.
	if dec.More() {
		return models.WorkflowSettings{}, faults.New(faults.CodeValidation,
			"settings document rejected: trailing content")
	}

	if err := settings.Validate(); err != nil {
		return models.WorkflowSettings{}, err
	}
	settings.Normalize()

	return settings, nil
}
