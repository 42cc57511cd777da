// Package filestore stages uploaded images and label files on the local
// filesystem for retraining.
//
// Layout under the root:
//
//	correct/{pictures,labels}/
//	corrections/{pictures,labels}/
//	manual_labeling/pictures/
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"smartsort_backend/internal/feature/sorting/domain/entity"
	"smartsort_backend/internal/feature/sorting/usecase"
)

const (
	picturesDir = "pictures"
	labelsDir   = "labels"

	dirPerm  fs.FileMode = 0o755
	filePerm fs.FileMode = 0o644
)

// Store writes artifacts below a root directory. Directories are created on
// demand. Concurrent writers rely on unique file names, not locks.
type Store struct {
	root string
}

var _ usecase.ArtifactStore = (*Store)(nil)

// Config holds the staging directory settings.
type Config struct {
	Root string // DATA_DIR
}

// LoadConfig loads staging configuration from environment variables.
func LoadConfig() Config {
	root := os.Getenv("DATA_DIR")
	if root == "" {
		root = "data"
	}
	return Config{Root: root}
}

// New returns a Store rooted at cfg.Root.
func New(cfg Config) *Store {
	return &Store{root: filepath.Clean(cfg.Root)}
}

// Root returns the staging root directory.
func (s *Store) Root() string {
	return s.root
}

// SavePicture writes the raw upload to <root>/<area>/pictures/<name>.
func (s *Store) SavePicture(ctx context.Context, area entity.Area, name string, data []byte) (string, error) {
	return s.write(ctx, area, picturesDir, name, data)
}

// SaveLabel writes label content to <root>/<area>/labels/<name>. Empty
// content still creates the file.
func (s *Store) SaveLabel(ctx context.Context, area entity.Area, name string, data []byte) (string, error) {
	if !area.HasLabels() {
		return "", fmt.Errorf("area %q does not keep labels", area)
	}
	return s.write(ctx, area, labelsDir, name, data)
}

// Remove deletes the given files. Missing files are ignored.
func (s *Store) Remove(ctx context.Context, paths ...string) error {
	var errs []error
	for _, p := range paths {
		if err := s.contained(p); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Store) write(ctx context.Context, area entity.Area, kind, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}

	dir := filepath.Join(s.root, string(area), kind)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}

	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return path, nil
}

// contained rejects paths outside the staging root.
func (s *Store) contained(path string) error {
	rel, err := filepath.Rel(s.root, filepath.Clean(path))
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("path %q is outside %s", path, s.root)
	}
	return nil
}
