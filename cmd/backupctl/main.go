package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/backup-mongodb/internal/app"
	"github.com/andresuchdata/backup-mongodb/internal/config"
	"github.com/andresuchdata/backup-mongodb/internal/domain"
	"github.com/andresuchdata/backup-mongodb/internal/service"
	"github.com/andresuchdata/backup-mongodb/pkg/logger"
)

type appKey struct{}

func setup(c *cli.Context) error {
	config.LoadDotenv()

	cfg, err := config.Load()
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	level := cfg.Log.Level
	if c.Bool("verbose") {
		level = "debug"
	}
	if err := logger.Configure(level, cfg.Log.File); err != nil {
		return err
	}

	a, err := app.New(cfg, app.Options{})
	if err != nil {
		return err
	}
	c.Context = context.WithValue(c.Context, appKey{}, a)
	return nil
}

func teardown(c *cli.Context) error {
	defer logger.Close()
	if a, ok := c.Context.Value(appKey{}).(*app.App); ok && a != nil {
		return a.Close()
	}
	return nil
}

func fromContext(c *cli.Context) *app.App {
	return c.Context.Value(appKey{}).(*app.App)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func backupCmd(c *cli.Context) error {
	result, err := fromContext(c).Service.RunCycle(c.Context, service.TriggerCLI)
	if err != nil {
		return err
	}
	if err := printJSON(result); err != nil {
		return err
	}
	if result.Status == domain.CyclePartial {
		return cli.Exit("backup completed with warnings", 3)
	}
	return nil
}

func pruneCmd(c *cli.Context) error {
	results, err := fromContext(c).Service.Prune(c.Context)
	if perr := printJSON(results); perr != nil {
		return perr
	}
	return err
}

func listCmd(c *cli.Context) error {
	artifacts, err := fromContext(c).Service.ListArtifacts(c.Context)
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return printJSON(artifacts)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "BACKEND\tBUCKET\tCREATED\tIDENTIFIER")
	for _, a := range artifacts {
		created := "-"
		if !a.CreatedAt.IsZero() {
			created = a.CreatedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.Backend, a.Bucket, created, a.Identifier)
	}
	return w.Flush()
}

func restoreCmd(c *cli.Context) error {
	result, err := fromContext(c).Service.Restore(c.Context, c.String("artifact"))
	if err != nil {
		if errors.Is(err, domain.ErrNoArtifacts) {
			return cli.Exit(err.Error(), 4)
		}
		return err
	}
	return printJSON(result)
}

func serveCmd(c *cli.Context) error {
	return fromContext(c).Serve(c.Context)
}

func main() {
	cliApp := &cli.App{
		Name:  "backupctl",
		Usage: "Back up, prune, list and restore MongoDB archives",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log at debug level",
			},
		},
		Before: setup,
		After:  teardown,
		Commands: []*cli.Command{
			{
				Name:   "backup",
				Usage:  "Run one backup cycle (dump, upload, prune)",
				Action: backupCmd,
			},
			{
				Name:   "prune",
				Usage:  "Apply the retention policy without creating a backup",
				Action: pruneCmd,
			},
			{
				Name:  "list",
				Usage: "List stored backups, newest first",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Print JSON instead of a table"},
				},
				Action: listCmd,
			},
			{
				Name:  "restore",
				Usage: "Restore a backup into the database",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "artifact",
						Aliases: []string{"a"},
						Usage:   "Backup to restore (defaults to the newest)",
					},
				},
				Action: restoreCmd,
			},
			{
				Name:   "serve",
				Usage:  "Run the scheduler and HTTP trigger",
				Action: serveCmd,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cliApp.RunContext(ctx, os.Args); err != nil {
		logger.Log.Error().Err(err).Msg("backupctl failed")
		stop()
		os.Exit(1)
	}
}
