package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/backup-mongodb/internal/domain"
)

type fakeService struct {
	cycle       domain.CycleResult
	cycleErr    error
	pruneErr    error
	restoreErr  error
	restoredID  string
	artifacts   []domain.Artifact
	cycleCalls  int
	lastTrigger string
}

func (f *fakeService) RunCycle(_ context.Context, trigger string) (domain.CycleResult, error) {
	f.cycleCalls++
	f.lastTrigger = trigger
	return f.cycle, f.cycleErr
}

func (f *fakeService) Prune(context.Context) ([]domain.PruneResult, error) {
	if f.pruneErr != nil {
		return nil, f.pruneErr
	}
	return []domain.PruneResult{{Backend: "local", Surplus: 1, Deleted: []string{"a"}}}, nil
}

func (f *fakeService) ListArtifacts(context.Context) ([]domain.Artifact, error) {
	return f.artifacts, nil
}

func (f *fakeService) Restore(_ context.Context, id string) (domain.RestoreResult, error) {
	f.restoredID = id
	if f.restoreErr != nil {
		return domain.RestoreResult{}, f.restoreErr
	}
	return domain.RestoreResult{Artifact: "x.archive.gz", Backend: "local"}, nil
}

func (f *fakeService) Status(context.Context) (domain.StatusReport, error) {
	return domain.StatusReport{Last: &f.cycle}, nil
}

type fixedNext time.Time

func (n fixedNext) Next() time.Time { return time.Time(n) }

func init() {
	gin.SetMode(gin.TestMode)
}

func do(t *testing.T, r http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var payload map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	}
	return rec, payload
}

func TestStartBackupStatuses(t *testing.T) {
	tests := []struct {
		name       string
		cycle      domain.CycleResult
		err        error
		wantCode   int
		wantStatus string
	}{
		{"success", domain.CycleResult{Status: domain.CycleSuccess, Artifact: "a"}, nil, http.StatusOK, "success"},
		{"partial", domain.CycleResult{Status: domain.CyclePartial, Warnings: []string{"upload failed"}}, nil, http.StatusOK, "partial"},
		{"busy", domain.CycleResult{}, domain.ErrCycleInProgress, http.StatusConflict, "busy"},
		{"error", domain.CycleResult{Status: domain.CycleFailed}, fmt.Errorf("%w: boom", domain.ErrDumpFailed), http.StatusInternalServerError, "error"},
	}

	for _, tt := range tests {
		for _, path := range []string{"/start_backup", "/api/v1/backups"} {
			t.Run(tt.name+path, func(t *testing.T) {
				svc := &fakeService{cycle: tt.cycle, cycleErr: tt.err}
				r := NewRouter(&Services{Backup: svc}, nil)

				rec, payload := do(t, r, http.MethodPost, path, "")
				assert.Equal(t, tt.wantCode, rec.Code)
				assert.Equal(t, tt.wantStatus, payload["status"])
				assert.Equal(t, "http", svc.lastTrigger)
				if tt.name == "partial" {
					assert.Equal(t, []any{"upload failed"}, payload["warnings"])
				}
			})
		}
	}
}

func TestListBackups(t *testing.T) {
	svc := &fakeService{artifacts: []domain.Artifact{
		{Identifier: "b-daily", Bucket: domain.BucketDaily, Backend: "local"},
		{Identifier: "b-weekly", Bucket: domain.BucketWeekly, Backend: "local"},
	}}
	r := NewRouter(&Services{Backup: svc}, nil)

	rec, payload := do(t, r, http.MethodGet, "/api/v1/backups", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), payload["count"])

	rec, payload = do(t, r, http.MethodGet, "/api/v1/backups?bucket=weekly", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), payload["count"])

	rec, _ = do(t, r, http.MethodGet, "/api/v1/backups?bucket=hourly", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetStatusIncludesNextRun(t *testing.T) {
	next := time.Date(2025, 6, 11, 2, 0, 0, 0, time.UTC)
	svc := &fakeService{cycle: domain.CycleResult{Status: domain.CycleSuccess}}
	r := NewRouter(&Services{Backup: svc, Scheduler: fixedNext(next)}, nil)

	rec, payload := do(t, r, http.MethodGet, "/api/v1/backups/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2025-06-11T02:00:00Z", payload["next_run"])
	assert.Equal(t, false, payload["running"])
}

func TestPrune(t *testing.T) {
	r := NewRouter(&Services{Backup: &fakeService{}}, nil)
	rec, payload := do(t, r, http.MethodPost, "/api/v1/backups/prune", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", payload["status"])

	r = NewRouter(&Services{Backup: &fakeService{pruneErr: domain.ErrCycleInProgress}}, nil)
	rec, _ = do(t, r, http.MethodPost, "/api/v1/backups/prune", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	r = NewRouter(&Services{Backup: &fakeService{pruneErr: errors.New("list failed")}}, nil)
	rec, _ = do(t, r, http.MethodPost, "/api/v1/backups/prune", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRestore(t *testing.T) {
	svc := &fakeService{}
	r := NewRouter(&Services{Backup: svc}, nil)

	rec, _ := do(t, r, http.MethodPost, "/api/v1/backups/restore", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", svc.restoredID)

	rec, _ = do(t, r, http.MethodPost, "/api/v1/backups/restore", `{"artifact":"x.archive.gz"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "x.archive.gz", svc.restoredID)

	rec, _ = do(t, r, http.MethodPost, "/api/v1/backups/restore", `{bad`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.restoreErr = fmt.Errorf("%w in local storage", domain.ErrNoArtifacts)
	rec, payload := do(t, r, http.MethodPost, "/api/v1/backups/restore", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "error", payload["status"])
}

func TestHealthAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("cycles_total 1\n"))
	})
	r := NewRouter(&Services{Backup: &fakeService{}, Metrics: metrics}, nil)

	rec, payload := do(t, r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", payload["status"])

	rec, _ = do(t, r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cycles_total")
}

func TestRecoveryReturnsJSON(t *testing.T) {
	r := NewRouter(nil, nil)
	r.GET("/panic", func(*gin.Context) { panic("boom") })

	rec, payload := do(t, r, http.MethodGet, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "error", payload["status"])
}

func TestNormalizeAllowedOrigins(t *testing.T) {
	origins, all := normalizeAllowedOrigins([]string{"https://a.example, https://b.example", " "})
	assert.False(t, all)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, origins)

	_, all = normalizeAllowedOrigins([]string{"*"})
	assert.True(t, all)
}
