// Package app wires configuration into the backup service, its scheduler and
// the HTTP trigger. Both binaries share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/andresuchdata/backup-mongodb/internal/api"
	"github.com/andresuchdata/backup-mongodb/internal/cache"
	"github.com/andresuchdata/backup-mongodb/internal/clock"
	"github.com/andresuchdata/backup-mongodb/internal/config"
	"github.com/andresuchdata/backup-mongodb/internal/domain"
	"github.com/andresuchdata/backup-mongodb/internal/metrics"
	"github.com/andresuchdata/backup-mongodb/internal/mongo"
	"github.com/andresuchdata/backup-mongodb/internal/scheduler"
	"github.com/andresuchdata/backup-mongodb/internal/service"
	"github.com/andresuchdata/backup-mongodb/internal/storage"
)

const (
	metricsNamespace = "mongodb_backup"
	shutdownTimeout  = 5 * time.Second
)

type App struct {
	Config    config.Config
	Clock     clock.Clock
	Service   *service.BackupService
	Scheduler *scheduler.Scheduler
	Metrics   *metrics.Prom

	status cache.StatusStore
}

// Options lets callers replace the external collaborators, mainly in tests.
type Options struct {
	Dumper service.Dumper
	Remote service.RemoteStore
}

// New builds every component from cfg. The scheduler is nil when CRON is empty
// and Metrics is nil when metrics are disabled.
func New(cfg config.Config, opts Options) (*App, error) {
	clk, err := clock.New(cfg.Backup.Timezone)
	if err != nil {
		return nil, err
	}

	dumper := opts.Dumper
	if dumper == nil {
		dumper = mongo.NewClient(mongo.Options{
			URI:         cfg.Mongo.URI,
			Database:    cfg.Mongo.Database,
			Preflight:   cfg.Mongo.Preflight,
			RestoreDrop: cfg.Mongo.RestoreDrop,
			DumpTimeout: cfg.Mongo.DumpTimeout,
		}, nil, nil)
	}

	remote := opts.Remote
	if remote == nil && cfg.Backup.StorageMode.UsesRemote() {
		client, err := storage.NewS3Client(storage.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			UseSSL:    cfg.S3.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		remote = storage.NewRemoteBackend(client, cfg.S3.Path)
	}

	status, err := cache.NewStatusStore(cfg.Cache)
	if err != nil {
		log.Warn().Err(err).Msg("status cache unavailable, keeping cycle status in memory")
		status = cache.NewMemoryStatusStore()
	}

	var (
		rec  metrics.Recorder = metrics.Noop{}
		prom *metrics.Prom
	)
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		prom = metrics.NewProm(metricsNamespace, reg)
		rec = prom
	}

	svc, err := service.NewBackupService(service.Options{
		Name:   cfg.Backup.Name,
		Mode:   cfg.Backup.StorageMode,
		Policy: cfg.Backup.Retention,
	}, clk, dumper, storage.NewLocalBackend(cfg.LocalDir()), remote, status, rec)
	if err != nil {
		_ = status.Close()
		return nil, err
	}

	a := &App{
		Config:  cfg,
		Clock:   clk,
		Service: svc,
		Metrics: prom,
		status:  status,
	}

	if cfg.Backup.Cron != "" {
		schedule, err := scheduler.Parse(cfg.Backup.Cron)
		if err != nil {
			_ = status.Close()
			return nil, fmt.Errorf("CRON: %w", err)
		}
		a.Scheduler = scheduler.New(schedule, a.scheduledCycle, clk.Now)
	}

	return a, nil
}

func (a *App) scheduledCycle(ctx context.Context) error {
	_, err := a.Service.RunCycle(ctx, service.TriggerSchedule)
	if errors.Is(err, domain.ErrCycleInProgress) {
		log.Warn().Msg("scheduler: previous cycle still running, skipping this run")
		return nil
	}
	return err
}

// Router builds the HTTP handler.
func (a *App) Router() *gin.Engine {
	if a.Config.Server.Mode == gin.DebugMode {
		gin.SetMode(gin.DebugMode)
	} else if a.Config.Server.Mode == gin.TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	services := &api.Services{Backup: a.Service}
	if a.Scheduler != nil {
		services.Scheduler = a.Scheduler
	}
	if a.Metrics != nil {
		services.Metrics = a.Metrics.Handler()
	}
	return api.NewRouter(services, a.Config.Server.AllowedOrigins)
}

// Serve runs the HTTP trigger and, when configured, the scheduler until ctx
// is cancelled or one of them fails.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:         ":" + a.Config.Server.Port,
		Handler:      a.Router(),
		ReadTimeout:  time.Duration(a.Config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(a.Config.Server.WriteTimeout) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("port", a.Config.Server.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if a.Scheduler != nil {
		g.Go(func() error {
			return a.Scheduler.Run(gctx)
		})
	} else {
		log.Info().Msg("CRON not set, scheduler disabled")
	}

	return g.Wait()
}

// Close releases the status store connection.
func (a *App) Close() error {
	return a.status.Close()
}
