package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/backup-mongodb/internal/api/handlers"
	"github.com/andresuchdata/backup-mongodb/internal/api/middleware"
)

type Services struct {
	Backup    handlers.BackupService
	Scheduler handlers.NextRunner
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	corsConfig := cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	if services == nil {
		return router
	}

	if services.Metrics != nil {
		router.GET("/metrics", gin.WrapH(services.Metrics))
	}

	if services.Backup != nil {
		backupHandler := handlers.NewBackupHandler(services.Backup, services.Scheduler)
		router.GET("/health", backupHandler.Health)
		router.POST("/start_backup", backupHandler.StartBackup)

		backupGroup := router.Group("/api/v1/backups")
		{
			backupGroup.POST("", backupHandler.StartBackup)
			backupGroup.GET("", backupHandler.ListBackups)
			backupGroup.GET("/status", backupHandler.GetStatus)
			backupGroup.POST("/prune", backupHandler.Prune)
			backupGroup.POST("/restore", backupHandler.Restore)
		}
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		parts := strings.Split(origin, ",")
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
