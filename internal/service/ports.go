package service

import (
	"context"

	"github.com/andresuchdata/backup-mongodb/internal/storage"
)

// Dumper produces and loads database archives.
type Dumper interface {
	Dump(ctx context.Context, dest string) error
	Restore(ctx context.Context, archive string) error
}

// LocalStore is the directory artifacts are staged in and, for local and
// both modes, retained in.
type LocalStore interface {
	storage.Backend
	EnsureDir() error
	Dir() string
	Path(name string) string
	Exists(name string) bool
	StagePath(name string) string
	Commit(name string) (string, error)
	Discard(name string) error
}

// RemoteStore is the object store artifacts are uploaded to.
type RemoteStore interface {
	storage.Backend
	Upload(ctx context.Context, localPath string) (string, error)
	Download(ctx context.Context, key, dir string) (string, error)
}
