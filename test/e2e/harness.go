// Package e2e provides end-to-end coverage of the assembled service:
// the real workflow engine, queue, file-backed stores, and the HTTP and
// WebSocket surfaces, driven through a scripted LLM provider.
package e2e

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/baton/pkg/activity"
	"github.com/codeready-toolchain/baton/pkg/agent"
	"github.com/codeready-toolchain/baton/pkg/api"
	"github.com/codeready-toolchain/baton/pkg/audit"
	"github.com/codeready-toolchain/baton/pkg/config"
	"github.com/codeready-toolchain/baton/pkg/curator"
	"github.com/codeready-toolchain/baton/pkg/decision"
	"github.com/codeready-toolchain/baton/pkg/events"
	"github.com/codeready-toolchain/baton/pkg/models"
	"github.com/codeready-toolchain/baton/pkg/notify"
	"github.com/codeready-toolchain/baton/pkg/queue"
)

// TestApp is one fully wired service instance rooted in a per-test temp
// directory, listening on an ephemeral port.
type TestApp struct {
	// Core
	Config   *config.Config
	Settings *config.SettingsStore
	Runs     *queue.RunStore
	Pool     *queue.WorkerPool

	// Mocks / test wiring
	Provider *ScriptedProvider

	// Real infrastructure
	Stream      *activity.Stream
	Store       *activity.FileStore
	AuditLog    *audit.Log
	ConnManager *events.ConnectionManager
	Server      *api.Server

	// Runtime
	BaseURL string
	WSURL   string

	t *testing.T
}

type testAppConfig struct {
	provider        *ScriptedProvider
	workerCount     int
	queueSize       int
	workflowTimeout time.Duration
	maxIterations   int
	notifier        *notify.Service
}

// TestAppOption customizes one TestApp.
type TestAppOption func(*testAppConfig)

// WithProvider installs a pre-scripted provider.
func WithProvider(p *ScriptedProvider) TestAppOption {
	return func(c *testAppConfig) { c.provider = p }
}

// WithWorkerCount sets the worker pool size (and the concurrency limit).
func WithWorkerCount(n int) TestAppOption {
	return func(c *testAppConfig) { c.workerCount = n }
}

// WithQueueSize sets the submission queue capacity.
func WithQueueSize(n int) TestAppOption {
	return func(c *testAppConfig) { c.queueSize = n }
}

// WithWorkflowTimeout caps each run's wall-clock time.
func WithWorkflowTimeout(d time.Duration) TestAppOption {
	return func(c *testAppConfig) { c.workflowTimeout = d }
}

// WithMaxIterations bounds the engine decision loop.
func WithMaxIterations(n int) TestAppOption {
	return func(c *testAppConfig) { c.maxIterations = n }
}

// WithNotifier attaches a Slack notification service to the pool.
func WithNotifier(s *notify.Service) TestAppOption {
	return func(c *testAppConfig) { c.notifier = s }
}

// NewTestApp assembles the service the same way cmd/baton does, with a
// scripted provider in place of a real one and every store rooted in
// t.TempDir(). Cleanup is registered on t.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	tc := &testAppConfig{
		workerCount:     1,
		queueSize:       16,
		workflowTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(tc)
	}
	if tc.provider == nil {
		tc.provider = NewScriptedProvider()
	}

	storage := config.DefaultStorageConfig()
	storage.DataDir = t.TempDir()
	cfg := &config.Config{
		Queue: &config.QueueConfig{
			WorkerCount:             tc.workerCount,
			MaxConcurrentWorkflows:  tc.workerCount,
			QueueSize:               tc.queueSize,
			WorkflowTimeout:         tc.workflowTimeout,
			GracefulShutdownTimeout: 5 * time.Second,
		},
		Storage:   storage,
		Retention: config.DefaultRetentionConfig(),
		API:       &config.APIConfig{Port: 8080},
	}

	settings, err := config.NewSettingsStore(storage.SettingsPath())
	require.NoError(t, err)

	fileStore, err := activity.NewFileStore(activity.FileStoreConfig{
		BaseDir:          storage.ActivityDir(),
		MaxEventsPerFile: storage.ActivityMaxEventsPerFile,
		RetentionHours:   cfg.Retention.ActivityRetentionHours,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = fileStore.Close() })

	stream := activity.NewStream(activity.StreamConfig{
		MaxEventsInMemory:   storage.ActivityBufferSize,
		SubscriberQueueSize: storage.SubscriberQueueSize,
	}, fileStore)
	t.Cleanup(stream.Close)

	// The sink session id becomes a directory name, so it must not carry
	// the slashes subtest names have.
	auditSink, err := audit.NewFileSink(storage.AuditDir(), "e2e-server")
	require.NoError(t, err)
	t.Cleanup(func() { _ = auditSink.Close() })
	auditLog := audit.NewLog(auditSink)

	cur := curator.NewManager(curator.Config{})
	require.NoError(t, cur.RegisterSource(staticTaskSource{}))

	registry, err := agent.NewRosterRegistry(tc.provider)
	require.NoError(t, err)
	router, err := agent.NewRouter(registry, cur, stream)
	require.NoError(t, err)
	decider, err := decision.NewEngine(tc.provider)
	require.NoError(t, err)

	runs := queue.NewRunStore()
	executor, err := queue.NewEngineExecutor(queue.EngineConfig{
		Router:        router,
		Decider:       decider,
		Stream:        stream,
		CheckpointDir: storage.CheckpointDir(),
		Settings:      settings,
		MaxIterations: tc.maxIterations,
	}, runs)
	require.NoError(t, err)

	pool := queue.NewWorkerPool(cfg.Queue, runs, executor, tc.notifier)
	require.NoError(t, pool.Start(context.Background()))
	t.Cleanup(pool.Stop)

	catchup := events.NewStreamCatchup(stream, fileStore)
	connManager := events.NewConnectionManager(catchup, 5*time.Second)
	bridge := events.NewStreamBridge(stream, connManager)
	t.Cleanup(bridge.Close)

	server := api.NewServer(cfg, runs, pool, settings, auditLog, connManager)
	server.SetActivityStream(stream)
	server.SetActivityStore(fileStore)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return &TestApp{
		Config:      cfg,
		Settings:    settings,
		Runs:        runs,
		Pool:        pool,
		Provider:    tc.provider,
		Stream:      stream,
		Store:       fileStore,
		AuditLog:    auditLog,
		ConnManager: connManager,
		Server:      server,
		BaseURL:     ts.URL,
		WSURL:       "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
		t:           t,
	}
}

// staticTaskSource satisfies the current_task context requirement
// without a real task backend.
type staticTaskSource struct{}

func (staticTaskSource) Type() models.ContextType { return models.ContextCurrentTask }

func (staticTaskSource) IsAvailable(ctx context.Context) bool { return true }

func (staticTaskSource) Fetch(ctx context.Context, params curator.FetchParams) ([]models.ContextItem, error) {
	return []models.ContextItem{{
		ID:      "task-brief",
		Type:    models.ContextCurrentTask,
		Content: "storefront checkout flow details",
		Source:  "e2e",
	}}, nil
}
