//go:build unix

package dirlock

import (
	"errors"
	"os"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"golang.org/x/sys/unix"
)

// lockFile takes an advisory flock. The kernel drops it when the process
// exits, so a crashed writer never leaves the directory locked.
func lockFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, apperrors.IO("opening lock file", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, apperrors.Newf(apperrors.ErrLockHeld, "%s is locked by another writer", path)
		}
		return nil, apperrors.IO("locking "+path, err)
	}
	return f, nil
}

func unlockFile(_ string, f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
