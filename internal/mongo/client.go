package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	dumpTool    = "mongodump"
	restoreTool = "mongorestore"
)

// Options configures a Client.
type Options struct {
	URI         string
	Database    string
	Preflight   bool
	RestoreDrop bool
	// DumpTimeout bounds a single mongodump run. Zero means no limit.
	DumpTimeout time.Duration
}

// PingFunc checks that the server behind uri answers.
type PingFunc func(ctx context.Context, uri string) error

// Client wraps the MongoDB database tools for one database.
type Client struct {
	opts   Options
	runner Runner
	ping   PingFunc
}

// NewClient builds a client running the real tools. runner and ping may be
// nil to use os/exec and the driver ping.
func NewClient(opts Options, runner Runner, ping PingFunc) *Client {
	opts.URI = strings.TrimRight(strings.TrimSpace(opts.URI), "/")
	if runner == nil {
		runner = ExecRunner{}
	}
	if ping == nil {
		ping = Ping
	}
	return &Client{opts: opts, runner: runner, ping: ping}
}

// Database is the database this client dumps and restores.
func (c *Client) Database() string {
	return c.opts.Database
}

// Dump writes a gzipped archive of the database to dest.
func (c *Client) Dump(ctx context.Context, dest string) error {
	if c.opts.Preflight {
		if err := c.ping(ctx, c.opts.URI); err != nil {
			return fmt.Errorf("mongodb unreachable: %w", err)
		}
	}

	if c.opts.DumpTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.DumpTimeout)
		defer cancel()
	}

	args := []string{
		"--uri=" + c.opts.URI,
		"--db=" + c.opts.Database,
		"--archive=" + dest,
		"--gzip",
	}

	log.Debug().Str("archive", dest).Str("db", c.opts.Database).Msg("mongo: running mongodump")
	if _, err := c.runner.Run(ctx, dumpTool, args...); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("mongodump timed out after %s: %w", c.opts.DumpTimeout, err)
		}
		return err
	}
	return nil
}

// Restore loads a gzipped archive produced by Dump back into the database.
func (c *Client) Restore(ctx context.Context, archive string) error {
	args := []string{
		"--uri=" + c.opts.URI,
		"--archive=" + archive,
		"--gzip",
		"--nsInclude=" + c.opts.Database + ".*",
	}
	if c.opts.RestoreDrop {
		args = append(args, "--drop")
	}

	log.Info().Str("archive", archive).Str("db", c.opts.Database).Bool("drop", c.opts.RestoreDrop).Msg("mongo: running mongorestore")
	if _, err := c.runner.Run(ctx, restoreTool, args...); err != nil {
		return err
	}
	return nil
}
