package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/newthinker/equicurve/internal/config"
	"github.com/newthinker/equicurve/internal/metrics"
	"github.com/newthinker/equicurve/internal/notifier"
	"github.com/newthinker/equicurve/internal/storage/object"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.Defaults()
	cfg.Storage.Path = t.TempDir()
	return cfg
}

func TestApp_New(t *testing.T) {
	a, err := New(testConfig(t), nil)
	require.NoError(t, err)

	assert.IsType(t, &object.LocalFS{}, a.Objects)
	assert.False(t, a.Commentary.Enabled())
	assert.Equal(t, 0, a.Notifiers.Len())

	stats := a.Stats()
	assert.Equal(t, "localfs", stats["storage"])
	assert.Equal(t, 0, stats["jobs"])
}

func TestApp_PlanLimitsFromConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Plans["free"] = cfg.Plans["pro"]

	a, err := New(cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, cfg.Plans["pro"], a.Limiter.LimitFor("free"))
}

func TestApp_CommentaryEnabledWithProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.Provider = "claude"
	cfg.LLM.Claude.APIKey = "test-key"

	a, err := New(cfg, nil)
	require.NoError(t, err)

	assert.True(t, a.Commentary.Enabled())
}

func TestApp_UnknownStorage(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Type = "ftp"

	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestNewObjectStore_S3(t *testing.T) {
	store, err := NewObjectStore(config.StorageConfig{
		Type:   "s3",
		Bucket: "uploads",
		S3:     config.S3Config{Endpoint: "http://localhost:9000", Region: "us-east-1"},
	})
	require.NoError(t, err)
	assert.IsType(t, &object.S3Store{}, store)
}

func TestNewNotifiers(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	reg := metrics.NewRegistry()
	notifiers, err := NewNotifiers(map[string]config.NotifierConfig{
		"hook": {Enabled: true, URL: srv.URL, Events: []string{notifier.EventRunCompleted}},
		"ops":  {Type: "telegram", Enabled: true, BotToken: "t", ChatID: "1", Events: []string{notifier.EventBatchIngested}},
		"off":  {Enabled: false, URL: srv.URL},
	}, reg, zapNop())
	require.NoError(t, err)
	assert.Equal(t, 2, notifiers.Len())

	_, err = notifiers.Get("off")
	assert.Error(t, err)

	ops, err := notifiers.Get("ops")
	require.NoError(t, err)
	assert.Equal(t, "ops", ops.Name())

	errs := notifiers.NotifyAll(context.Background(),
		notifier.NewEvent("portfolio.other", "u", nil))
	assert.Empty(t, errs)
	assert.Equal(t, int32(0), hits.Load())

	errs = notifiers.NotifyAll(context.Background(),
		notifier.NewEvent(notifier.EventRunCompleted, "u", map[string]any{"runId": "r"}))
	assert.NoError(t, errs["hook"])
	assert.Equal(t, int32(1), hits.Load())
}

func TestNewNotifiers_UnknownType(t *testing.T) {
	_, err := NewNotifiers(map[string]config.NotifierConfig{
		"pager": {Type: "pager", Enabled: true},
	}, nil, zapNop())
	assert.Error(t, err)
}

func TestApp_ServerConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.MaxUploadMB = 2
	cfg.Stats.JobTimeoutSecs = 30

	a, err := New(cfg, nil)
	require.NoError(t, err)

	sc := a.ServerConfig()
	assert.Equal(t, int64(2<<20), sc.MaxUploadBytes)
	assert.Equal(t, 30*time.Second, sc.StatsJobTimeout)
	assert.Equal(t, cfg.RateLimit.BacktestsPerMinute, sc.BacktestsPerMinute)
	assert.True(t, sc.MetricsEnabled)
}

func TestApp_ServerServesHealth(t *testing.T) {
	a, err := New(testConfig(t), nil)
	require.NoError(t, err)
	require.NoError(t, a.Prepare(context.Background()))

	srv, err := a.Server()
	require.NoError(t, err)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestApp_CloseWaitsForNotifications(t *testing.T) {
	a, err := New(testConfig(t), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, a.Close(ctx))
}

func zapNop() *zap.Logger { return zap.NewNop() }
