// Package fsstore holds the bot's on-disk state: whole-file atomic replaces
// and an advisory lock that keeps a second process off the same state dir.
package fsstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultDirPerm  os.FileMode = 0o700
	defaultFilePerm os.FileMode = 0o600
)

var (
	ErrInvalidPath = errors.New("fsstore: path must not be blank")
	// ErrWriteFailed wraps every step of WriteFileAtomic; the target is untouched.
	ErrWriteFailed = errors.New("fsstore: replace failed")
)

// FileOptions sets permissions for created files and parent directories.
// Zero values mean owner-only.
type FileOptions struct {
	DirPerm  os.FileMode
	FilePerm os.FileMode
}

func (o FileOptions) dirPerm() os.FileMode {
	if o.DirPerm == 0 {
		return defaultDirPerm
	}
	return o.DirPerm
}

func (o FileOptions) filePerm() os.FileMode {
	if o.FilePerm == 0 {
		return defaultFilePerm
	}
	return o.FilePerm
}

func cleanPath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	return filepath.Clean(strings.TrimSpace(path)), nil
}

func EnsureDir(path string, perm os.FileMode) error {
	dir, err := cleanPath(path)
	if err != nil {
		return err
	}
	if perm == 0 {
		perm = defaultDirPerm
	}
	if err := os.MkdirAll(dir, perm); err != nil {
		return fmt.Errorf("fsstore: mkdir %s: %w", dir, err)
	}
	return nil
}

// ReadFile returns the file contents and whether the file exists.
// A missing file is not an error.
func ReadFile(path string) ([]byte, bool, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(p)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("fsstore: read %s: %w", p, err)
	}
	return data, true, nil
}

// WriteFileAtomic replaces path with data through a synced temp file in the
// same directory. Readers see the old contents or the new ones, never a mix.
func WriteFileAtomic(path string, data []byte, opts FileOptions) error {
	p, err := cleanPath(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := EnsureDir(dir, opts.dirPerm()); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(p)+".*")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWriteFailed, p, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	steps := []struct {
		name string
		run  func() error
	}{
		{"write", func() error { _, err := tmp.Write(data); return err }},
		{"chmod", func() error { return tmp.Chmod(opts.filePerm()) }},
		{"sync", tmp.Sync},
		{"close", tmp.Close},
		{"rename", func() error { return os.Rename(tmp.Name(), p) }},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return fmt.Errorf("%w: %s %s: %v", ErrWriteFailed, step.name, p, err)
		}
	}
	committed = true
	syncDir(dir)
	return nil
}

// syncDir persists the rename. Some filesystems refuse directory fsync; the
// data is already in place by then.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
