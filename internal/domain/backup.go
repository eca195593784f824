// internal/domain/backup.go
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrCycleInProgress    = errors.New("backup cycle already in progress")
	ErrDumpFailed         = errors.New("database dump failed")
	ErrUploadFailed       = errors.New("artifact upload failed")
	ErrUnknownBucket      = errors.New("unknown backup bucket")
	ErrInvalidStorageMode = errors.New("invalid storage mode")
	ErrNoArtifacts        = errors.New("no backup artifacts found")
)

// Bucket is the cadence class a backup artifact is filed under.
type Bucket string

const (
	BucketYearly  Bucket = "yearly"
	BucketMonthly Bucket = "monthly"
	BucketWeekly  Bucket = "weekly"
	BucketDaily   Bucket = "daily"
	BucketUnknown Bucket = "unknown"
)

// Buckets lists the known buckets from the rarest cadence to the most frequent.
var Buckets = []Bucket{BucketYearly, BucketMonthly, BucketWeekly, BucketDaily}

// ParseBucket returns the bucket for a name (case-insensitive).
func ParseBucket(name string) (Bucket, error) {
	b := Bucket(strings.ToLower(strings.TrimSpace(name)))
	if b.Valid() {
		return b, nil
	}
	return BucketUnknown, fmt.Errorf("%w: %q", ErrUnknownBucket, name)
}

// Valid reports whether b is one of the four retention buckets.
func (b Bucket) Valid() bool {
	switch b {
	case BucketYearly, BucketMonthly, BucketWeekly, BucketDaily:
		return true
	default:
		return false
	}
}

func (b Bucket) String() string {
	return string(b)
}

// StorageMode selects where artifacts are retained.
type StorageMode string

const (
	StorageLocal  StorageMode = "local"
	StorageRemote StorageMode = "remote"
	StorageBoth   StorageMode = "both"
)

// ParseStorageMode rejects anything that is not local, remote or both.
func ParseStorageMode(value string) (StorageMode, error) {
	switch mode := StorageMode(strings.ToLower(strings.TrimSpace(value))); mode {
	case StorageLocal, StorageRemote, StorageBoth:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: %q (expected local, remote or both)", ErrInvalidStorageMode, value)
	}
}

// UsesLocal reports whether artifacts are retained on the local filesystem.
func (m StorageMode) UsesLocal() bool {
	return m == StorageLocal || m == StorageBoth
}

// UsesRemote reports whether artifacts are uploaded to the object store.
func (m StorageMode) UsesRemote() bool {
	return m == StorageRemote || m == StorageBoth
}

// RetentionPolicy caps how many artifacts are kept per bucket.
type RetentionPolicy struct {
	Yearly  int `json:"yearly"`
	Monthly int `json:"monthly"`
	Weekly  int `json:"weekly"`
	Daily   int `json:"daily"`
}

// Keep returns the keep count for a bucket. Unknown buckets report false.
func (p RetentionPolicy) Keep(b Bucket) (int, bool) {
	switch b {
	case BucketYearly:
		return p.Yearly, true
	case BucketMonthly:
		return p.Monthly, true
	case BucketWeekly:
		return p.Weekly, true
	case BucketDaily:
		return p.Daily, true
	default:
		return 0, false
	}
}

// Artifact is a single backup file or object.
type Artifact struct {
	Identifier string    `json:"identifier"`
	Bucket     Bucket    `json:"bucket"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
	Backend    string    `json:"backend"`
}

// PruneResult summarises one pruning pass over a backend.
type PruneResult struct {
	Backend string   `json:"backend"`
	Surplus int      `json:"surplus"`
	Deleted []string `json:"deleted"`
}

// CycleStatus is the outcome reported for a backup cycle.
type CycleStatus string

const (
	CycleSuccess CycleStatus = "success"
	CyclePartial CycleStatus = "partial"
	CycleFailed  CycleStatus = "error"
)

// CycleResult describes one end-to-end backup cycle.
type CycleResult struct {
	ID          string        `json:"id"`
	Status      CycleStatus   `json:"status"`
	Artifact    string        `json:"artifact,omitempty"`
	Bucket      Bucket        `json:"bucket,omitempty"`
	Trigger     string        `json:"trigger,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Uploaded    bool          `json:"uploaded"`
	Local       *PruneResult  `json:"local,omitempty"`
	Remote      *PruneResult  `json:"remote,omitempty"`
	Warnings    []string      `json:"warnings,omitempty"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// StatusReport is what the status endpoint returns.
type StatusReport struct {
	Running bool          `json:"running"`
	Last    *CycleResult  `json:"last,omitempty"`
	History []CycleResult `json:"history,omitempty"`
	NextRun *time.Time    `json:"next_run,omitempty"`
}

// RestoreResult describes a completed restore.
type RestoreResult struct {
	Artifact string        `json:"artifact"`
	Backend  string        `json:"backend"`
	Duration time.Duration `json:"duration"`
}
