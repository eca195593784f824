// internal/api/middleware/logger.go
package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RequestIDHeader carries the id that ties a trigger request to its cycle logs.
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// quietPaths are polled by orchestrators and only logged at debug.
var quietPaths = []string{"/health", "/metrics"}

// RequestID returns the id assigned to the request, or "" outside the middleware.
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// Logger tags every request with an id and writes one line per request.
// Server errors go out at warn so failed triggers surface without debug logs.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := levelFor(c.Request.URL.Path, status)
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.ByType(gin.ErrorTypeAny).String())
		}
		event.
			Str("request_id", id).
			Str("method", c.Request.Method).
			Str("route", c.FullPath()).
			Str("path", c.Request.URL.Path).
			Str("ip", c.ClientIP()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("http: request")
	}
}

func levelFor(path string, status int) *zerolog.Event {
	switch {
	case status >= http.StatusInternalServerError:
		return log.Warn()
	case isQuiet(path):
		return log.Debug()
	default:
		return log.Info()
	}
}

func isQuiet(path string) bool {
	for _, p := range quietPaths {
		if path == p {
			return true
		}
	}
	return false
}

// Recovery turns a handler panic into a 500 JSON body instead of a dropped connection.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("panic", r).
					Str("request_id", RequestID(c)).
					Str("path", c.Request.URL.Path).
					Msg("http: recovered from panic")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"status":     "error",
					"message":    "internal server error",
					"request_id": RequestID(c),
				})
			}
		}()
		c.Next()
	}
}
