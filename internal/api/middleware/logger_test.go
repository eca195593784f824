package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	prev, prevLevel := log.Logger, zerolog.GlobalLevel()
	log.Logger = zerolog.New(buf)
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})
	return buf
}

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Logger(), Recovery())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/backup", func(c *gin.Context) { c.JSON(http.StatusAccepted, gin.H{"request_id": RequestID(c)}) })
	r.GET("/boom", func(*gin.Context) { panic("dump tool vanished") })
	return r
}

func TestLoggerAssignsAndEchoesRequestID(t *testing.T) {
	buf := captureLogs(t)
	r := newEngine()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/backup", nil))
	id := w.Header().Get(RequestIDHeader)
	require.NotEmpty(t, id)
	assert.Contains(t, w.Body.String(), id)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, id, line["request_id"])
	assert.Equal(t, "/backup", line["route"])
	assert.EqualValues(t, http.StatusAccepted, line["status"])

	req := httptest.NewRequest(http.MethodPost, "/backup", nil)
	req.Header.Set(RequestIDHeader, "cron-42")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "cron-42", w.Header().Get(RequestIDHeader))
}

func TestLoggerKeepsHealthChecksAtDebug(t *testing.T) {
	buf := captureLogs(t)
	r := newEngine()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, buf.String())
}

func TestRecoveryAnswersJSONAndLogsAtWarn(t *testing.T) {
	buf := captureLogs(t)
	r := newEngine()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, w.Header().Get(RequestIDHeader), body["request_id"])

	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Contains(t, buf.String(), `"level":"warn"`)
}
