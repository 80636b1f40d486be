package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"
)

// LocalStorageGateway archives thread records into a directory tree.
type LocalStorageGateway struct {
	fs      afero.Fs
	baseDir string
}

// NewLocalStorageGateway creates a filesystem-backed archive gateway.
func NewLocalStorageGateway(fs afero.Fs, baseDir string) *LocalStorageGateway {
	return &LocalStorageGateway{fs: fs, baseDir: baseDir}
}

// Upload stores the body under key, overwriting any prior file.
func (g *LocalStorageGateway) Upload(ctx context.Context, key string, body io.Reader) error {
	path := filepath.Join(g.baseDir, filepath.FromSlash(key))
	if err := g.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}
	f, err := g.fs.Create(path)
	if err != nil {
		return fmt.Errorf("create archive file %s: %w", path, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, body); err != nil {
		return fmt.Errorf("write archive file %s: %w", path, err)
	}
	return nil
}

// Exists reports whether a file is already archived.
func (g *LocalStorageGateway) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := afero.Exists(g.fs, filepath.Join(g.baseDir, filepath.FromSlash(key)))
	if err != nil {
		return false, fmt.Errorf("stat archive %s: %w", key, err)
	}
	return ok, nil
}
