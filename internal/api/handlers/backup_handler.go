// internal/api/handlers/backup_handler.go
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/backup-mongodb/internal/domain"
)

const triggerHTTP = "http"

// BackupService is the part of service.BackupService the HTTP layer calls.
type BackupService interface {
	RunCycle(ctx context.Context, trigger string) (domain.CycleResult, error)
	Prune(ctx context.Context) ([]domain.PruneResult, error)
	ListArtifacts(ctx context.Context) ([]domain.Artifact, error)
	Restore(ctx context.Context, identifier string) (domain.RestoreResult, error)
	Status(ctx context.Context) (domain.StatusReport, error)
}

// NextRunner reports the next scheduled run. Zero means nothing is scheduled.
type NextRunner interface {
	Next() time.Time
}

type BackupHandler struct {
	service   BackupService
	scheduler NextRunner
}

// NewBackupHandler builds the handler. scheduler may be nil when no CRON is set.
func NewBackupHandler(service BackupService, scheduler NextRunner) *BackupHandler {
	return &BackupHandler{service: service, scheduler: scheduler}
}

type restoreRequest struct {
	Artifact string `json:"artifact"`
}

// detached keeps request values but survives client disconnects: a dump
// should not be killed because the caller hung up.
func detached(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

func busy(c *gin.Context) {
	c.JSON(http.StatusConflict, gin.H{
		"status":  "busy",
		"message": domain.ErrCycleInProgress.Error(),
	})
}

func failure(c *gin.Context, code int, err error) {
	log.Error().Err(err).Str("path", c.FullPath()).Msg("api: request failed")
	c.JSON(code, gin.H{
		"status":  "error",
		"message": err.Error(),
	})
}

// StartBackup runs one backup cycle synchronously.
func (h *BackupHandler) StartBackup(c *gin.Context) {
	result, err := h.service.RunCycle(detached(c), triggerHTTP)
	if errors.Is(err, domain.ErrCycleInProgress) {
		busy(c)
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": err.Error(),
			"result":  result,
		})
		return
	}

	resp := gin.H{
		"status":   result.Status,
		"artifact": result.Artifact,
		"bucket":   result.Bucket,
		"result":   result,
	}
	if len(result.Warnings) > 0 {
		resp["warnings"] = result.Warnings
	}
	c.JSON(http.StatusOK, resp)
}

func (h *BackupHandler) ListBackups(c *gin.Context) {
	artifacts, err := h.service.ListArtifacts(c.Request.Context())
	if err != nil {
		failure(c, http.StatusInternalServerError, err)
		return
	}
	if artifacts == nil {
		artifacts = []domain.Artifact{}
	}

	if raw := strings.TrimSpace(c.Query("bucket")); raw != "" {
		bucket, err := domain.ParseBucket(raw)
		if err != nil {
			failure(c, http.StatusBadRequest, err)
			return
		}
		filtered := make([]domain.Artifact, 0, len(artifacts))
		for _, a := range artifacts {
			if a.Bucket == bucket {
				filtered = append(filtered, a)
			}
		}
		artifacts = filtered
	}

	c.JSON(http.StatusOK, gin.H{
		"backups": artifacts,
		"count":   len(artifacts),
	})
}

func (h *BackupHandler) GetStatus(c *gin.Context) {
	report, err := h.service.Status(c.Request.Context())
	if err != nil {
		failure(c, http.StatusInternalServerError, err)
		return
	}
	if h.scheduler != nil {
		if next := h.scheduler.Next(); !next.IsZero() {
			report.NextRun = &next
		}
	}
	c.JSON(http.StatusOK, report)
}

func (h *BackupHandler) Prune(c *gin.Context) {
	results, err := h.service.Prune(detached(c))
	if errors.Is(err, domain.ErrCycleInProgress) {
		busy(c)
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": err.Error(),
			"results": results,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"results": results,
	})
}

func (h *BackupHandler) Restore(c *gin.Context) {
	var req restoreRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		failure(c, http.StatusBadRequest, err)
		return
	}

	result, err := h.service.Restore(detached(c), req.Artifact)
	switch {
	case errors.Is(err, domain.ErrCycleInProgress):
		busy(c)
	case errors.Is(err, domain.ErrNoArtifacts):
		failure(c, http.StatusNotFound, err)
	case err != nil:
		failure(c, http.StatusInternalServerError, err)
	default:
		c.JSON(http.StatusOK, gin.H{
			"status": "success",
			"result": result,
		})
	}
}

func (h *BackupHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
