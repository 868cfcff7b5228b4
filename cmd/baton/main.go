// Baton orchestrator server — provides the HTTP API, manages queue
// workers, and drives workflow runs end to end.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/codeready-toolchain/baton/pkg/activity"
	activitypg "github.com/codeready-toolchain/baton/pkg/activity/postgres"
	"github.com/codeready-toolchain/baton/pkg/agent"
	"github.com/codeready-toolchain/baton/pkg/api"
	"github.com/codeready-toolchain/baton/pkg/audit"
	"github.com/codeready-toolchain/baton/pkg/cleanup"
	"github.com/codeready-toolchain/baton/pkg/config"
	"github.com/codeready-toolchain/baton/pkg/curator"
	"github.com/codeready-toolchain/baton/pkg/database"
	"github.com/codeready-toolchain/baton/pkg/decision"
	"github.com/codeready-toolchain/baton/pkg/docsource"
	"github.com/codeready-toolchain/baton/pkg/events"
	"github.com/codeready-toolchain/baton/pkg/llm"
	"github.com/codeready-toolchain/baton/pkg/notify"
	"github.com/codeready-toolchain/baton/pkg/queue"
	"github.com/codeready-toolchain/baton/pkg/version"
	"github.com/joho/godotenv"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// Parse command-line flags
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	slog.Info("Starting Baton", "version", version.Full(), "config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Open the settings store and watch the document for edits
	settings, err := config.NewSettingsStore(cfg.Storage.SettingsPath())
	if err != nil {
		slog.Error("Failed to open settings store", "error", err)
		os.Exit(1)
	}
	watcher, err := config.WatchSettings(settings)
	if err != nil {
		slog.Error("Failed to watch settings document", "error", err)
		os.Exit(1)
	}
	defer watcher.Stop()
	slog.Info("Settings store initialized", "path", cfg.Storage.SettingsPath())

	// 3. Activity persistence: JSONL files by default, PostgreSQL when
	// DB_HOST is set.
	var store activity.Persistence
	if os.Getenv("DB_HOST") != "" {
		dbConfig, err := database.LoadConfigFromEnv()
		if err != nil {
			slog.Error("Failed to load database config", "error", err)
			os.Exit(1)
		}
		dbClient, err := database.NewClient(ctx, dbConfig)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				slog.Error("Error closing database client", "error", err)
			}
		}()
		store = activitypg.NewStore(dbClient)
		slog.Info("Connected to PostgreSQL database", "host", dbConfig.Host)
	} else {
		fileStore, err := activity.NewFileStore(activity.FileStoreConfig{
			BaseDir:          cfg.Storage.ActivityDir(),
			MaxEventsPerFile: cfg.Storage.ActivityMaxEventsPerFile,
			RetentionHours:   cfg.Retention.ActivityRetentionHours,
		})
		if err != nil {
			slog.Error("Failed to open activity store", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := fileStore.Close(); err != nil {
				slog.Error("Error closing activity store", "error", err)
			}
		}()
		store = fileStore
		slog.Info("Activity store initialized", "dir", cfg.Storage.ActivityDir())
	}

	stream := activity.NewStream(activity.StreamConfig{
		MaxEventsInMemory:   cfg.Storage.ActivityBufferSize,
		SubscriberQueueSize: cfg.Storage.SubscriberQueueSize,
	}, store)

	// 4. Audit log. Each server boot appends to its own chain so a file
	// always verifies from the genesis hash.
	auditSink, err := audit.NewFileSink(cfg.Storage.AuditDir(),
		"server-"+time.Now().UTC().Format("20060102-150405"))
	if err != nil {
		slog.Error("Failed to open audit sink", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := auditSink.Close(); err != nil {
			slog.Error("Error closing audit sink", "error", err)
		}
	}()
	auditLog := audit.NewLog(auditSink)
	slog.Info("Audit log initialized", "path", auditSink.Path())

	// 5. Context curator and its sources
	cur := curator.NewManager(curator.Config{
		Budget:   curator.Budget{Total: cfg.Curator.TokenBudget},
		CacheTTL: cfg.Curator.CacheTTL,
		Timeout:  cfg.Curator.Timeout,
	})
	if cfg.Docs.RepoURL != "" {
		src := docsource.NewSource(cfg.Docs, os.Getenv(cfg.GitHub.TokenEnv))
		if err := cur.RegisterSource(src); err != nil {
			slog.Error("Failed to register docs source", "error", err)
			os.Exit(1)
		}
		slog.Info("Docs source registered", "repo", cfg.Docs.RepoURL)
	}

	// 6. LLM provider
	providerCfg, err := cfg.DefaultProviderConfig()
	if err != nil {
		slog.Error("Failed to resolve default provider", "error", err)
		os.Exit(1)
	}
	provider, err := llm.NewProvider(llm.Config{
		Provider:    string(providerCfg.Type),
		APIKey:      os.Getenv(providerCfg.APIKeyEnv),
		Model:       providerCfg.Model,
		MaxTokens:   providerCfg.MaxTokens,
		Temperature: providerCfg.Temperature,
	})
	if err != nil {
		slog.Error("Failed to initialize LLM provider", "error", err)
		os.Exit(1)
	}
	slog.Info("LLM provider initialized",
		"provider", providerCfg.Type, "model", providerCfg.Model)

	// 7. Agent roster, router and decision engine
	registry, err := agent.NewRosterRegistry(provider)
	if err != nil {
		slog.Error("Failed to build agent registry", "error", err)
		os.Exit(1)
	}
	router, err := agent.NewRouter(registry, cur, stream)
	if err != nil {
		slog.Error("Failed to build agent router", "error", err)
		os.Exit(1)
	}
	decider, err := decision.NewEngine(provider)
	if err != nil {
		slog.Error("Failed to build decision engine", "error", err)
		os.Exit(1)
	}
	slog.Info("Agents initialized", "agents", len(registry.List()))

	// 8. Run store and workflow executor
	runs := queue.NewRunStore()
	executor, err := queue.NewEngineExecutor(queue.EngineConfig{
		Router:        router,
		Decider:       decider,
		Stream:        stream,
		CheckpointDir: cfg.Storage.CheckpointDir(),
		Settings:      settings,
	}, runs)
	if err != nil {
		slog.Error("Failed to build workflow executor", "error", err)
		os.Exit(1)
	}

	var notifier *notify.Service
	if cfg.Slack.Enabled {
		notifier = notify.NewService(notify.ServiceConfig{
			Token:        os.Getenv(cfg.Slack.TokenEnv),
			Channel:      cfg.Slack.Channel,
			DashboardURL: os.Getenv("BATON_DASHBOARD_URL"),
		})
		if notifier == nil {
			slog.Warn("Slack notifications enabled but token or channel missing, notifications disabled")
		} else {
			slog.Info("Slack notifications enabled", "channel", cfg.Slack.Channel)
		}
	}

	// 9. Start worker pool (before HTTP server)
	pool := queue.NewWorkerPool(cfg.Queue, runs, executor, notifier)
	if err := pool.Start(ctx); err != nil {
		slog.Error("Failed to start worker pool", "error", err)
		os.Exit(1)
	}

	// 10. Retention sweeps for checkpoints, activity and audit files
	cleaner := cleanup.NewService(cfg.Retention, cfg.Storage)
	cleaner.Start(ctx)
	defer cleaner.Stop()

	// 11. Streaming infrastructure
	catchup := events.NewStreamCatchup(stream, store)
	connManager := events.NewConnectionManager(catchup, 10*time.Second)
	bridge := events.NewStreamBridge(stream, connManager)
	slog.Info("Streaming infrastructure initialized")

	// 12. Create HTTP server
	httpServer := api.NewServer(cfg, runs, pool, settings, auditLog, connManager)
	httpServer.SetActivityStream(stream)
	httpServer.SetActivityStore(store)

	// 13. Start HTTP server (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.API.Port)
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Baton started successfully", "workers", cfg.Queue.WorkerCount)

	// 14. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 15. Graceful shutdown
	workerShutdownCtx, workerCancel := context.WithTimeout(ctx, cfg.Queue.GracefulShutdownTimeout)
	defer workerCancel()

	// Stop worker pool (wait for active runs to checkpoint and settle)
	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Worker pool stopped gracefully")
	case <-workerShutdownCtx.Done():
		slog.Warn("Shutdown timeout exceeded, unfinished runs stay resumable from their checkpoints")
	}

	// Detach the event bridge before the server stops serving sockets
	bridge.Close()

	// Stop HTTP server with its own timeout budget
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
