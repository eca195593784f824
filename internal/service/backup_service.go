// internal/service/backup_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/andresuchdata/backup-mongodb/internal/cache"
	"github.com/andresuchdata/backup-mongodb/internal/clock"
	"github.com/andresuchdata/backup-mongodb/internal/domain"
	"github.com/andresuchdata/backup-mongodb/internal/metrics"
	"github.com/andresuchdata/backup-mongodb/internal/retention"
	"github.com/andresuchdata/backup-mongodb/internal/storage"
)

// Triggers recorded on cycle results.
const (
	TriggerSchedule = "schedule"
	TriggerHTTP     = "http"
	TriggerCLI      = "cli"
)

const statusHistorySize = 10

// Options is the immutable part of the service configuration.
type Options struct {
	Name   string
	Mode   domain.StorageMode
	Policy domain.RetentionPolicy
}

// BackupService runs backup cycles, pruning, listing and restores. At most one
// cycle, prune or restore runs at a time.
type BackupService struct {
	opts    Options
	clock   clock.Clock
	dumper  Dumper
	local   LocalStore
	remote  RemoteStore
	status  cache.StatusStore
	metrics metrics.Recorder

	sem     *semaphore.Weighted
	running atomic.Bool
}

// NewBackupService wires the collaborators. remote may be nil when the mode
// never uploads; status and rec default to in-memory and no-op.
func NewBackupService(opts Options, clk clock.Clock, dumper Dumper, local LocalStore, remote RemoteStore, status cache.StatusStore, rec metrics.Recorder) (*BackupService, error) {
	if opts.Mode.UsesRemote() && remote == nil {
		return nil, fmt.Errorf("storage mode %q requires a remote store", opts.Mode)
	}
	if local == nil {
		return nil, errors.New("a local store is required for staging")
	}
	if status == nil {
		status = cache.NewMemoryStatusStore()
	}
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &BackupService{
		opts:    opts,
		clock:   clk,
		dumper:  dumper,
		local:   local,
		remote:  remote,
		status:  status,
		metrics: rec,
		sem:     semaphore.NewWeighted(1),
	}, nil
}

func (s *BackupService) acquire() bool {
	if !s.sem.TryAcquire(1) {
		return false
	}
	s.running.Store(true)
	return true
}

func (s *BackupService) release() {
	s.running.Store(false)
	s.sem.Release(1)
}

// Running reports whether a cycle, prune or restore is in progress.
func (s *BackupService) Running() bool {
	return s.running.Load()
}

// RunCycle dumps the database, uploads and prunes. It returns
// domain.ErrCycleInProgress immediately when another operation holds the lock.
// An upload failure is not an error: the result status is partial.
func (s *BackupService) RunCycle(ctx context.Context, trigger string) (domain.CycleResult, error) {
	if !s.acquire() {
		log.Warn().Str("trigger", trigger).Msg("backup: cycle already in progress, trigger rejected")
		return domain.CycleResult{}, domain.ErrCycleInProgress
	}
	defer s.release()

	result, err := s.runCycle(ctx, trigger)
	result.CompletedAt = s.clock.Now()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)
	if err != nil {
		result.Status = domain.CycleFailed
		result.Error = err.Error()
	}

	s.record(ctx, result)
	return result, err
}

func (s *BackupService) runCycle(ctx context.Context, trigger string) (domain.CycleResult, error) {
	now := s.clock.Now()
	bucket := retention.Classify(now, s.clock.Location())
	// Names carry UTC so a wall-clock repeat at a DST fall-back cannot collide.
	name := retention.Format(now.UTC(), s.opts.Name, bucket)

	result := domain.CycleResult{
		ID:        uuid.NewString(),
		Status:    domain.CycleSuccess,
		Artifact:  name,
		Bucket:    bucket,
		Trigger:   trigger,
		StartedAt: now,
	}

	log.Info().Str("cycle_id", result.ID).Str("artifact", name).Str("bucket", bucket.String()).Str("trigger", trigger).Msg("backup: starting cycle")

	localPath, err := s.dump(ctx, name)
	if err != nil {
		return result, err
	}

	uploaded := false
	if s.opts.Mode.UsesRemote() {
		key, err := s.remote.Upload(ctx, localPath)
		if err != nil {
			log.Error().Err(err).Str("artifact", name).Msg("backup: upload failed, keeping local copy and skipping remote retention")
			s.metrics.IncUploadFailures()
			result.Status = domain.CyclePartial
			result.Warnings = append(result.Warnings, fmt.Sprintf("%v: %v", domain.ErrUploadFailed, err))
		} else {
			log.Info().Str("artifact", name).Str("key", key).Msg("backup: uploaded")
			uploaded = true
			result.Uploaded = true
		}
	}

	if s.opts.Mode.UsesLocal() {
		// Without a remote copy the fresh artifact is the only one.
		var keep []string
		if s.opts.Mode.UsesRemote() && !uploaded {
			keep = append(keep, name)
		}
		pr, err := s.pruneBackend(ctx, s.local, keep...)
		if err != nil {
			result.Warnings = append(result.Warnings, err.Error())
		} else {
			result.Local = &pr
		}
	}

	if uploaded {
		pr, err := s.pruneBackend(ctx, s.remote)
		if err != nil {
			result.Warnings = append(result.Warnings, err.Error())
		} else {
			result.Remote = &pr
		}

		if !s.opts.Mode.UsesLocal() {
			if err := s.local.Delete(ctx, name); err != nil {
				log.Warn().Err(err).Str("artifact", name).Msg("backup: failed removing staged copy")
				result.Warnings = append(result.Warnings, fmt.Sprintf("staged copy not removed: %v", err))
			}
		}
	}

	log.Info().Str("cycle_id", result.ID).Str("artifact", name).Str("status", string(result.Status)).Msg("backup: cycle finished")
	return result, nil
}

// dump writes the archive to a hidden staging file and only renames it to
// its final name once mongodump succeeded.
func (s *BackupService) dump(ctx context.Context, name string) (string, error) {
	if err := s.local.EnsureDir(); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDumpFailed, err)
	}
	if s.local.Exists(name) {
		return "", fmt.Errorf("%w: artifact %s already exists", domain.ErrDumpFailed, name)
	}

	if err := s.dumper.Dump(ctx, s.local.StagePath(name)); err != nil {
		if derr := s.local.Discard(name); derr != nil {
			log.Warn().Err(derr).Str("artifact", name).Msg("backup: failed removing partial dump")
		}
		log.Error().Err(err).Str("artifact", name).Msg("backup: dump failed")
		return "", fmt.Errorf("%w: %v", domain.ErrDumpFailed, err)
	}

	localPath, err := s.local.Commit(name)
	if err != nil {
		_ = s.local.Discard(name)
		return "", fmt.Errorf("%w: %v", domain.ErrDumpFailed, err)
	}
	return localPath, nil
}

func (s *BackupService) pruneBackend(ctx context.Context, b storage.Backend, keep ...string) (domain.PruneResult, error) {
	existing, err := b.List(ctx)
	if err != nil {
		log.Error().Err(err).Str("backend", b.Name()).Msg("retention: listing failed, skipping prune")
		return domain.PruneResult{}, fmt.Errorf("%s retention skipped: %w", b.Name(), err)
	}
	if len(keep) > 0 {
		existing = slices.DeleteFunc(existing, func(id string) bool { return slices.Contains(keep, id) })
	}

	result := retention.Prune(ctx, b.Name(), existing, s.opts.Policy, b.Delete)
	for _, id := range result.Deleted {
		s.metrics.AddPruned(b.Name(), retention.BucketOf(id).String(), 1)
	}
	return result, nil
}

func (s *BackupService) backends() []storage.Backend {
	var out []storage.Backend
	if s.opts.Mode.UsesLocal() {
		out = append(out, s.local)
	}
	if s.opts.Mode.UsesRemote() {
		out = append(out, s.remote)
	}
	return out
}

// Prune applies the retention policy to every enabled backend without
// creating a new artifact.
func (s *BackupService) Prune(ctx context.Context) ([]domain.PruneResult, error) {
	if !s.acquire() {
		return nil, domain.ErrCycleInProgress
	}
	defer s.release()

	var (
		results []domain.PruneResult
		errs    []error
	)
	for _, b := range s.backends() {
		pr, err := s.pruneBackend(ctx, b)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results = append(results, pr)
	}
	return results, errors.Join(errs...)
}

// ListArtifacts returns the artifacts of every enabled backend, newest first
// within each backend. Identifiers that do not carry a bucket are reported
// as unknown.
func (s *BackupService) ListArtifacts(ctx context.Context) ([]domain.Artifact, error) {
	var artifacts []domain.Artifact
	for _, b := range s.backends() {
		ids, err := b.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", b.Name(), err)
		}
		retention.SortNewestFirst(ids)
		for _, id := range ids {
			a := domain.Artifact{
				Identifier: id,
				Bucket:     retention.BucketOf(id),
				Backend:    b.Name(),
			}
			if ts, ok := retention.CreatedAt(id, time.UTC); ok {
				a.CreatedAt = ts.In(s.clock.Location())
			}
			artifacts = append(artifacts, a)
		}
	}
	return artifacts, nil
}

// Restore loads an artifact back into the database. An empty identifier
// selects the newest artifact. Local storage is preferred when enabled;
// otherwise the object is downloaded into the staging directory first.
func (s *BackupService) Restore(ctx context.Context, identifier string) (domain.RestoreResult, error) {
	if !s.acquire() {
		return domain.RestoreResult{}, domain.ErrCycleInProgress
	}
	defer s.release()

	started := time.Now()
	identifier = strings.TrimSpace(identifier)

	fromLocal := s.opts.Mode.UsesLocal()
	var backend storage.Backend = s.local
	if !fromLocal {
		backend = s.remote
	}

	id, err := s.resolve(ctx, backend, identifier)
	if err != nil {
		return domain.RestoreResult{}, err
	}

	var archive string
	if fromLocal {
		archive = s.local.Path(id)
	} else {
		if err := s.local.EnsureDir(); err != nil {
			return domain.RestoreResult{}, err
		}
		tmp, err := os.MkdirTemp(s.local.Dir(), ".restore-")
		if err != nil {
			return domain.RestoreResult{}, fmt.Errorf("create restore dir: %w", err)
		}
		defer func() {
			if err := os.RemoveAll(tmp); err != nil {
				log.Warn().Err(err).Str("dir", tmp).Msg("restore: failed removing downloaded archive")
			}
		}()
		archive, err = s.remote.Download(ctx, id, tmp)
		if err != nil {
			return domain.RestoreResult{}, fmt.Errorf("download %s: %w", id, err)
		}
	}

	log.Info().Str("artifact", id).Str("backend", backend.Name()).Msg("restore: starting")
	if err := s.dumper.Restore(ctx, archive); err != nil {
		return domain.RestoreResult{}, fmt.Errorf("restore %s: %w", id, err)
	}

	res := domain.RestoreResult{Artifact: id, Backend: backend.Name(), Duration: time.Since(started)}
	log.Info().Str("artifact", id).Dur("duration", res.Duration).Msg("restore: finished")
	return res, nil
}

func (s *BackupService) resolve(ctx context.Context, b storage.Backend, identifier string) (string, error) {
	ids, err := b.List(ctx)
	if err != nil {
		return "", fmt.Errorf("list %s: %w", b.Name(), err)
	}

	if identifier != "" {
		for _, id := range ids {
			if id == identifier || path.Base(id) == identifier {
				return id, nil
			}
		}
		return "", fmt.Errorf("%w: %s not found in %s storage", domain.ErrNoArtifacts, identifier, b.Name())
	}

	known := make([]string, 0, len(ids))
	for _, id := range ids {
		if retention.BucketOf(id).Valid() {
			known = append(known, id)
		}
	}
	if len(known) == 0 {
		return "", fmt.Errorf("%w in %s storage", domain.ErrNoArtifacts, b.Name())
	}
	retention.SortNewestFirst(known)
	return known[0], nil
}

// Status reports whether an operation is running and the recent cycle
// results.
func (s *BackupService) Status(ctx context.Context) (domain.StatusReport, error) {
	report := domain.StatusReport{Running: s.Running()}

	last, ok, err := s.status.LastCycle(ctx)
	if err != nil {
		return report, err
	}
	if ok {
		report.Last = last
	}

	history, err := s.status.History(ctx, statusHistorySize)
	if err != nil {
		return report, err
	}
	report.History = history
	return report, nil
}

func (s *BackupService) record(ctx context.Context, result domain.CycleResult) {
	s.metrics.ObserveCycle(result.Trigger, string(result.Status), result.Duration.Seconds())
	if result.Status == domain.CycleSuccess {
		s.metrics.SetLastSuccess(float64(result.CompletedAt.Unix()))
	}
	if err := s.status.SaveCycle(ctx, result); err != nil {
		log.Warn().Err(err).Msg("backup: failed saving cycle status")
	}
}
