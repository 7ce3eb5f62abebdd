package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

const dirPerm = 0o755

// LocalStore keeps files in a directory on disk.
type LocalStore struct {
	dir string
}

// NewLocalStore returns a store rooted at dir, creating it if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", dir, err)
	}
	return &LocalStore{dir: dir}, nil
}

// Dir returns the root directory.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Path returns the on-disk location of name.
func (s *LocalStore) Path(name string) string {
	return filepath.Join(s.dir, filepath.FromSlash(name))
}

// Exists implements Store.
func (s *LocalStore) Exists(_ context.Context, name string) (bool, error) {
	_, err := os.Stat(s.Path(name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat %s: %w", name, err)
}

// Put writes to a temporary file and renames it into place, so a partial
// write never looks like an existing file.
func (s *LocalStore) Put(ctx context.Context, name string, r io.Reader, _ int64, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target := s.Path(name)
	if err := os.MkdirAll(filepath.Dir(target), dirPerm); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".put-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // already renamed on success

	if _, err = io.Copy(tmp, r); err != nil {
		tmp.Close() //nolint:errcheck // copy error takes precedence
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err = os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", name, err)
	}
	return nil
}

// List returns every regular file under the root as slash-separated names.
func (s *LocalStore) List(ctx context.Context) ([]string, error) {
	var names []string
	err := filepath.WalkDir(s.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !d.Type().IsRegular() || filepath.Base(p)[0] == '.' {
			return nil
		}
		rel, relErr := filepath.Rel(s.dir, p)
		if relErr != nil {
			return relErr
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.dir, err)
	}
	sort.Strings(names)
	return names, nil
}

// Open implements Source.
func (s *LocalStore) Open(_ context.Context, name string) (io.ReadCloser, int64, error) {
	f, err := os.Open(s.Path(name))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open %s: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close() //nolint:errcheck // stat error takes precedence
		return nil, 0, fmt.Errorf("failed to stat %s: %w", name, err)
	}
	return f, info.Size(), nil
}

// Close implements Store.
func (s *LocalStore) Close() error {
	return nil
}
