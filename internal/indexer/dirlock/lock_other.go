//go:build !unix

package dirlock

import (
	"errors"
	"io/fs"
	"os"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

// lockFile creates the lock file exclusively. Unlike flock it survives a
// crash, so a stale file has to be removed by hand.
func lockFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, apperrors.Newf(apperrors.ErrLockHeld, "%s is locked by another writer", path)
		}
		return nil, apperrors.IO("creating lock file", err)
	}
	return f, nil
}

func unlockFile(path string, f *os.File) error {
	if err := f.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}
