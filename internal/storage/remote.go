// internal/storage/remote.go
package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// RemoteBackend files artifacts under a key prefix of an object store.
type RemoteBackend struct {
	store  ObjectStorage
	prefix string
}

// NewRemoteBackend wraps store. prefix is the "folder" artifacts live under;
// empty means the bucket root.
func NewRemoteBackend(store ObjectStorage, prefix string) *RemoteBackend {
	return &RemoteBackend{store: store, prefix: strings.Trim(prefix, "/")}
}

func (b *RemoteBackend) Name() string { return "remote" }

// Key returns the object key for an artifact name.
func (b *RemoteBackend) Key(name string) string {
	if b.prefix == "" {
		return name
	}
	return b.prefix + "/" + name
}

func (b *RemoteBackend) listPrefix() string {
	if b.prefix == "" {
		return ""
	}
	return b.prefix + "/"
}

// List returns the full object keys under the prefix.
func (b *RemoteBackend) List(ctx context.Context) ([]string, error) {
	objects, err := b.store.ListObjects(ctx, b.listPrefix())
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		if obj.Key == "" || strings.HasSuffix(obj.Key, "/") {
			continue
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// Delete removes one object by its full key.
func (b *RemoteBackend) Delete(ctx context.Context, key string) error {
	return b.store.DeleteObject(ctx, key)
}

// Upload sends the file at localPath and returns the key it was stored under.
func (b *RemoteBackend) Upload(ctx context.Context, localPath string) (string, error) {
	key := b.Key(filepath.Base(localPath))
	if err := b.store.UploadFile(ctx, key, localPath); err != nil {
		return "", err
	}
	return key, nil
}

// Download fetches key into dir and returns the local path.
func (b *RemoteBackend) Download(ctx context.Context, key, dir string) (string, error) {
	name := path.Base(key)
	if name == "." || name == "/" {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	dest := filepath.Join(dir, name)
	if err := b.store.DownloadObject(ctx, key, dest); err != nil {
		return "", err
	}
	return dest, nil
}

var _ Backend = (*RemoteBackend)(nil)
