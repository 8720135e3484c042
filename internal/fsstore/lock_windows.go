//go:build windows

package fsstore

import (
	"errors"
	"os"
)

// tryLock uses exclusive creation; the file's existence is the lock.
func tryLock(path string) (*os.File, func() error, bool, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, defaultFilePerm)
	switch {
	case err == nil:
		release := func() error {
			closeErr := file.Close()
			if err := os.Remove(path); err != nil {
				return err
			}
			return closeErr
		}
		return file, release, false, nil
	case errors.Is(err, os.ErrExist):
		return nil, nil, true, nil
	default:
		return nil, nil, false, err
	}
}
