package fsstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

const lockPollInterval = 25 * time.Millisecond

var (
	// ErrLockTimeout means another holder kept the lock until ctx ended.
	ErrLockTimeout     = errors.New("fsstore: lock held elsewhere")
	ErrLockUnavailable = errors.New("fsstore: cannot open lock file")
)

var lockKeyPattern = regexp.MustCompile(`^[a-z0-9_-]+(\.[a-z0-9_-]+)*$`)

// BuildLockPath maps a lock key such as "snapshot" to <dir>/<key>.lck.
func BuildLockPath(dir, key string) (string, error) {
	root, err := cleanPath(dir)
	if err != nil {
		return "", err
	}
	if len(key) == 0 || len(key) > 120 || !lockKeyPattern.MatchString(key) {
		return "", fmt.Errorf("%w: lock key %q", ErrInvalidPath, key)
	}
	return filepath.Join(root, key+".lck"), nil
}

// Lock is an exclusive advisory lock on a file.
type Lock struct {
	path    string
	release func() error
}

// Acquire polls until the lock is free or ctx is done.
func Acquire(ctx context.Context, path string) (*Lock, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	if err := EnsureDir(filepath.Dir(p), defaultDirPerm); err != nil {
		return nil, err
	}
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()
	for {
		file, release, busy, err := tryLock(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLockUnavailable, p, err)
		}
		if !busy {
			recordOwner(file)
			return &Lock{path: p, release: release}, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrLockTimeout, p, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *Lock) Path() string { return l.path }

func (l *Lock) Release() error {
	if l == nil || l.release == nil {
		return nil
	}
	release := l.release
	l.release = nil
	return release()
}

// WithLock runs fn while holding the lock at path. ctx bounds only the wait;
// fn runs to completion once the lock is held.
func WithLock(ctx context.Context, path string, fn func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	lock, err := Acquire(ctx, path)
	if err != nil {
		return err
	}
	defer lock.Release()
	if fn == nil {
		return nil
	}
	return fn()
}

// recordOwner leaves pid and host in the lock file for whoever finds it held.
func recordOwner(file *os.File) {
	host, _ := os.Hostname()
	_ = file.Truncate(0)
	_, _ = file.WriteAt([]byte(fmt.Sprintf("pid=%d\nhost=%s\nacquired_at=%s\n",
		os.Getpid(), host, time.Now().UTC().Format(time.RFC3339))), 0)
}
