package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/baton/pkg/models"
)

const (
	watchWait = 5 * time.Second
	watchTick = 20 * time.Millisecond
)

func TestWatcherPicksUpExternalEdit(t *testing.T) {
	store := newTestSettingsStore(t)
	watcher, err := WatchSettings(store)
	require.NoError(t, err)
	defer watcher.Stop()

	doc := `{"style_package_count":1,"parallel_designer_count":1,"enable_style_competition":false,"max_style_rejections":9,"provider_timeout_ms":900000}`
	require.NoError(t, os.WriteFile(store.Path(), []byte(doc), 0o600))

	assert.Eventually(t, func() bool {
		return store.Get().MaxStyleRejections == 9
	}, watchWait, watchTick, "watcher should reload the external edit")
}

func TestWatcherRejectsInvalidEdit(t *testing.T) {
	store := newTestSettingsStore(t)
	_, err := store.Update(func() models.WorkflowSettings {
		s := models.DefaultWorkflowSettings()
		s.MaxStyleRejections = 4
		return s
	}())
	require.NoError(t, err)

	watcher, err := WatchSettings(store)
	require.NoError(t, err)
	defer watcher.Stop()

	require.NoError(t, os.WriteFile(store.Path(), []byte(`{"unknown_key":1}`), 0o600))

	// Give the watcher time to see the write, then confirm the document
	// was kept.
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, 4, store.Get().MaxStyleRejections)
}

func TestWatcherRevertsToDefaultsOnRemoval(t *testing.T) {
	store := newTestSettingsStore(t)
	_, err := store.Update(func() models.WorkflowSettings {
		s := models.DefaultWorkflowSettings()
		s.MaxStyleRejections = 2
		return s
	}())
	require.NoError(t, err)

	watcher, err := WatchSettings(store)
	require.NoError(t, err)
	defer watcher.Stop()

	require.NoError(t, os.Remove(store.Path()))

	assert.Eventually(t, func() bool {
		return store.Get() == models.DefaultWorkflowSettings()
	}, watchWait, watchTick, "watcher should fall back to defaults when the document is removed")
}

func TestWatcherStopReturns(t *testing.T) {
	store := newTestSettingsStore(t)
	watcher, err := WatchSettings(store)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		watcher.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(watchWait):
		t.Fatal("Stop did not return")
	}
}
