// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresuchdata/backup-mongodb/internal/app"
	"github.com/andresuchdata/backup-mongodb/internal/config"
	"github.com/andresuchdata/backup-mongodb/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		logger.Log.Error().Err(err).Msg("backup-mongodb exited with error")
		logger.Close()
		os.Exit(1)
	}
}

func run() error {
	config.LoadDotenv()

	cfg, err := config.Load()
	if err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			for _, p := range verr.Problems {
				logger.Log.Error().Msg(p)
			}
		}
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Configure(cfg.Log.Level, cfg.Log.File); err != nil {
		return err
	}
	defer logger.Close()

	logger.Log.Info().
		Str("db", cfg.Mongo.Database).
		Str("storage", string(cfg.Backup.StorageMode)).
		Str("cron", cfg.Backup.Cron).
		Str("tz", cfg.Backup.Timezone).
		Msg("Starting backup-mongodb")

	a, err := app.New(cfg, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Serve(ctx); err != nil {
		return err
	}
	logger.Log.Info().Msg("Server exiting")
	return nil
}
