package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/backup-mongodb/internal/config"
	"github.com/andresuchdata/backup-mongodb/internal/domain"
)

type touchDumper struct{ calls int }

func (d *touchDumper) Dump(_ context.Context, dest string) error {
	d.calls++
	return os.WriteFile(dest, []byte("archive"), 0o644)
}

func (d *touchDumper) Restore(context.Context, string) error { return nil }

func testConfig(t *testing.T) config.Config {
	return config.Config{
		Mongo: config.MongoConfig{URI: "mongodb://localhost:27017", Database: "app"},
		Backup: config.BackupConfig{
			Name:        "backup",
			StorageMode: domain.StorageLocal,
			BackupDir:   t.TempDir(),
			Retention:   domain.RetentionPolicy{Yearly: 1, Monthly: 1, Weekly: 1, Daily: 2},
			Cron:        "0 2 * * *",
		},
		Server:  config.ServerConfig{Port: "0", Mode: "test"},
		Metrics: config.MetricsConfig{Enabled: true},
	}
}

func TestNewWiresLocalMode(t *testing.T) {
	d := &touchDumper{}
	a, err := New(testConfig(t), Options{Dumper: d})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	require.NotNil(t, a.Scheduler)
	require.NotNil(t, a.Metrics)
	assert.Equal(t, "00 02 * * *", a.Scheduler.Expr())

	r := a.Router()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/start_backup", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, d.calls)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mongodb_backup_cycles_total")
}

func TestNewWithoutCronOrMetrics(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backup.Cron = ""
	cfg.Metrics.Enabled = false

	a, err := New(cfg, Options{Dumper: &touchDumper{}})
	require.NoError(t, err)
	assert.Nil(t, a.Scheduler)
	assert.Nil(t, a.Metrics)

	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewRemoteModeRequiresCredentials(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backup.StorageMode = domain.StorageRemote
	cfg.Backup.StagingDir = t.TempDir()

	_, err := New(cfg, Options{Dumper: &touchDumper{}})
	assert.Error(t, err)
}

func TestServeStopsOnCancel(t *testing.T) {
	a, err := New(testConfig(t), Options{Dumper: &touchDumper{}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not return")
	}
}
