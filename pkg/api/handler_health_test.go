package api

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/baton/pkg/activity"
	"github.com/codeready-toolchain/baton/pkg/audit"
	"github.com/codeready-toolchain/baton/pkg/config"
	"github.com/codeready-toolchain/baton/pkg/models"
	"github.com/codeready-toolchain/baton/pkg/queue"
)

func TestHealth_Healthy(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	var resp HealthResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, healthStatusHealthy, resp.Status)
	assert.NotEmpty(t, resp.Version)
	require.Contains(t, resp.Checks, "worker_pool")
	assert.Equal(t, healthStatusHealthy, resp.Checks["worker_pool"].Status)
}

func TestHealth_UnstartedPool(t *testing.T) {
	cfg := testConfig(t)
	runs := queue.NewRunStore()
	pool := queue.NewWorkerPool(cfg.Queue, runs, &scriptedExecutor{}, nil)

	settings, err := config.NewSettingsStore(cfg.Storage.SettingsPath())
	require.NoError(t, err)
	srv := NewServer(cfg, runs, pool, settings, audit.NewLog(nil), nil)

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp HealthResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, healthStatusUnhealthy, resp.Status)
	assert.Equal(t, healthStatusUnhealthy, resp.Checks["worker_pool"].Status)
}

type failingPersistence struct{}

func (failingPersistence) Append(context.Context, models.ActivityEvent) error {
	return errors.New("disk full")
}

func (failingPersistence) Query(context.Context, activity.QueryOptions) ([]models.ActivityEvent, error) {
	return nil, errors.New("disk full")
}

func TestHealth_DegradedOnPersistFailures(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	stream := activity.NewStream(activity.StreamConfig{}, failingPersistence{})
	srv.SetActivityStream(stream)

	_, err := stream.Emit(context.Background(), models.ActivityEvent{
		Type:      models.ActivitySystemInfo,
		SessionID: "session-a",
		Title:     "probe",
	})
	require.NoError(t, err, "persistence failures are counted, not surfaced")

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code, "degraded still serves traffic")

	var resp HealthResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, healthStatusDegraded, resp.Status)
	assert.Equal(t, healthStatusDegraded, resp.Checks["activity_stream"].Status)
}
