package config

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// SettingsWatcher picks up external edits to the settings document and
// reloads the store. Invalid edits are rejected with a warning and the
// in-memory document stays in place.
type SettingsWatcher struct {
	store   *SettingsStore
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WatchSettings starts watching the directory holding the settings
// document. Watching the directory rather than the file survives the
// rename-replace writes editors and the store itself perform.
func WatchSettings(store *SettingsStore) (*SettingsWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(filepath.Dir(store.Path())); err != nil {
		watcher.Close()
		return nil, err
	}

	w := &SettingsWatcher{
		store:   store,
		watcher: watcher,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go w.run()

	slog.Info("Watching settings document", "path", store.Path())
	return w, nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *SettingsWatcher) Stop() {
	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		slog.Warn("Failed to close settings watcher", "error", err)
	}
}

func (w *SettingsWatcher) run() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Settings watcher error", "error", err)
		}
	}
}

func (w *SettingsWatcher) handleEvent(event fsnotify.Event) {
	if event.Name != w.store.Path() {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}

	// A torn external write fails validation here; the editor's final
	// write event reloads it cleanly.
	if _, err := w.store.Reload(); err != nil {
		slog.Warn("External settings edit rejected, keeping current settings",
			"path", w.store.Path(),
			"error", err)
		return
	}

	slog.Info("Settings reloaded from external edit", "path", w.store.Path())
}
