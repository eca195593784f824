package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	cmstorage "github.com/chartmuseum/storage"
)

// LocalBackend keeps artifacts as plain files in one directory.
// In-progress dumps are written as hidden ".<name>.partial" files and are
// never listed.
type LocalBackend struct {
	dir string
	fs  *cmstorage.LocalFilesystemBackend
}

// NewLocalBackend returns a backend rooted at dir. The directory is created
// lazily by EnsureDir.
func NewLocalBackend(dir string) *LocalBackend {
	return &LocalBackend{dir: dir, fs: cmstorage.NewLocalFilesystemBackend(dir)}
}

func (b *LocalBackend) Name() string { return "local" }

// Dir is the backup directory.
func (b *LocalBackend) Dir() string { return b.dir }

// EnsureDir creates the backup directory if it is missing.
func (b *LocalBackend) EnsureDir() error {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("failed creating backup directory %s: %w", b.dir, err)
	}
	return nil
}

// Path returns the absolute location of an artifact name.
func (b *LocalBackend) Path(name string) string {
	return filepath.Join(b.dir, name)
}

// List returns artifact file names in the directory, sorted. Subdirectories
// and hidden files are skipped.
func (b *LocalBackend) List(_ context.Context) ([]string, error) {
	if _, err := os.Stat(b.dir); os.IsNotExist(err) {
		return []string{}, nil
	}
	objects, err := b.fs.ListObjects("")
	if err != nil {
		return nil, fmt.Errorf("local list failed: %w", err)
	}
	names := make([]string, 0, len(objects))
	for _, obj := range objects {
		name := filepath.ToSlash(obj.Path)
		if strings.Contains(name, "/") || strings.HasPrefix(name, ".") {
			continue
		}
		if info, err := os.Stat(b.Path(name)); err != nil || info.IsDir() {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes one artifact by file name.
func (b *LocalBackend) Delete(_ context.Context, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := b.fs.DeleteObject(name); err != nil {
		return fmt.Errorf("local delete %s failed: %w", name, err)
	}
	return nil
}

// Exists reports whether a committed artifact with this name is present.
func (b *LocalBackend) Exists(name string) bool {
	if validName(name) != nil {
		return false
	}
	info, err := os.Stat(b.Path(name))
	return err == nil && !info.IsDir()
}

// StagePath is where a dump for name is written before it is committed.
func (b *LocalBackend) StagePath(name string) string {
	return filepath.Join(b.dir, "."+name+".partial")
}

// Commit moves a finished staged dump to its final name and returns its path.
func (b *LocalBackend) Commit(name string) (string, error) {
	final := b.Path(name)
	if err := os.Rename(b.StagePath(name), final); err != nil {
		return "", fmt.Errorf("failed committing %s: %w", name, err)
	}
	return final, nil
}

// Discard removes a staged dump. Missing files are not an error.
func (b *LocalBackend) Discard(name string) error {
	if err := os.Remove(b.StagePath(name)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid artifact name %q", name)
	}
	return nil
}

var _ Backend = (*LocalBackend)(nil)
