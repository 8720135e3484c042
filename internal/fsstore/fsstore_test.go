package fsstore

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestBuildLockPath(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), ".fslocks")
	got, err := BuildLockPath(root, "snapshot")
	if err != nil {
		t.Fatalf("BuildLockPath() error = %v", err)
	}
	want := filepath.Join(root, "snapshot.lck")
	if got != want {
		t.Fatalf("BuildLockPath() = %q, want %q", got, want)
	}
}

func TestBuildLockPathInvalidKey(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), ".fslocks")
	invalid := []string{
		"",
		"Snapshot",
		"state/main",
		".snapshot",
		"snapshot.",
		"snap shot",
	}
	for _, key := range invalid {
		key := key
		t.Run(key, func(t *testing.T) {
			t.Parallel()
			_, err := BuildLockPath(root, key)
			if err == nil {
				t.Fatalf("BuildLockPath(%q) expected error", key)
			}
			if !errors.Is(err, ErrInvalidPath) {
				t.Fatalf("BuildLockPath(%q) error = %v, want ErrInvalidPath", key, err)
			}
		})
	}
}

func TestWriteFileAtomicCreatesParentAndReplaces(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state", "jab.data")
	if err := WriteFileAtomic(path, []byte{0x01, 0x02, 0x03}, FileOptions{}); err != nil {
		t.Fatalf("WriteFileAtomic(first) error = %v", err)
	}
	if err := WriteFileAtomic(path, []byte{0x09}, FileOptions{}); err != nil {
		t.Fatalf("WriteFileAtomic(second) error = %v", err)
	}

	got, ok, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !ok {
		t.Fatalf("ReadFile() exists = false, want true")
	}
	if !bytes.Equal(got, []byte{0x09}) {
		t.Fatalf("ReadFile() = %v, want [9]", got)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != defaultFilePerm {
		t.Fatalf("file perm = %o, want %o", perm, defaultFilePerm)
	}
}

func TestReadFileMissing(t *testing.T) {
	t.Parallel()

	got, ok, err := ReadFile(filepath.Join(t.TempDir(), "missing.data"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if ok || got != nil {
		t.Fatalf("ReadFile() = (%v, %v), want (nil, false)", got, ok)
	}
}

func TestReadFileEmptyPath(t *testing.T) {
	t.Parallel()

	if _, _, err := ReadFile("  "); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("ReadFile(blank) error = %v, want ErrInvalidPath", err)
	}
}

func TestWithLockTimesOutWhileHeld(t *testing.T) {
	t.Parallel()

	lockPath, err := BuildLockPath(filepath.Join(t.TempDir(), ".fslocks"), "snapshot")
	if err != nil {
		t.Fatalf("BuildLockPath() error = %v", err)
	}

	err = WithLock(context.Background(), lockPath, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		inner := WithLock(ctx, lockPath, func() error { return nil })
		if !errors.Is(inner, ErrLockTimeout) {
			t.Errorf("nested WithLock() error = %v, want ErrLockTimeout", inner)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock() error = %v", err)
	}
}

func TestAcquireReleaseAllowsReacquire(t *testing.T) {
	t.Parallel()

	lockPath, err := BuildLockPath(filepath.Join(t.TempDir(), ".fslocks"), "state.main")
	if err != nil {
		t.Fatalf("BuildLockPath() error = %v", err)
	}
	first, err := Acquire(context.Background(), lockPath)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("second Release() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	called := false
	if err := WithLock(ctx, lockPath, func() error { called = true; return nil }); err != nil {
		t.Fatalf("WithLock() error = %v", err)
	}
	if !called {
		t.Fatalf("WithLock() did not run fn")
	}
}

func TestWriteFileAtomicLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "jab.data")
	for i := 0; i < 3; i++ {
		if err := WriteFileAtomic(path, []byte{byte(i)}, FileOptions{}); err != nil {
			t.Fatalf("WriteFileAtomic() error = %v", err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "jab.data" {
		t.Fatalf("dir entries = %v, want only jab.data", entries)
	}
}
