//go:build !windows

package fsstore

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// tryLock takes a non-blocking flock. busy reports another holder.
func tryLock(path string) (*os.File, func() error, bool, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, defaultFilePerm)
	if err != nil {
		return nil, nil, false, err
	}
	for {
		err = unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	switch {
	case err == nil:
		release := func() error {
			_ = unix.Flock(int(file.Fd()), unix.LOCK_UN)
			return file.Close()
		}
		return file, release, false, nil
	case errors.Is(err, unix.EWOULDBLOCK), errors.Is(err, unix.EAGAIN):
		_ = file.Close()
		return nil, nil, true, nil
	default:
		_ = file.Close()
		return nil, nil, false, err
	}
}
