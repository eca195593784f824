package storage

import (
	"context"
	"time"
)

// ObjectInfo represents metadata for a remote file/object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStorage captures the minimal S3-compatible operations backups need.
type ObjectStorage interface {
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
	UploadFile(ctx context.Context, key string, localPath string) error
	DownloadObject(ctx context.Context, key string, destPath string) error
	DeleteObject(ctx context.Context, key string) error
}

// Backend is what retention needs from a place artifacts live in: enumerate
// identifiers and delete one by identifier.
type Backend interface {
	Name() string
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, identifier string) error
}
