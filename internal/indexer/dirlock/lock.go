// Package dirlock enforces a single writer per index directory.
package dirlock

import (
	"os"
	"path/filepath"
	"strconv"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

// FileName is the lock file created in the index directory.
const FileName = "write.lock"

// Lock is a held writer lock.
type Lock struct {
	path string
	file *os.File
}

// Acquire takes the writer lock on dir without blocking. A lock held by
// another writer yields an error wrapping ErrLockHeld.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.IO("creating index directory", err)
	}
	path := filepath.Join(dir, FileName)
	f, err := lockFile(path)
	if err != nil {
		return nil, err
	}
	// The PID is informational; ownership is decided by the lock itself.
	if err := f.Truncate(0); err == nil {
		f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}
	return &Lock{path: path, file: f}, nil
}

func (l *Lock) Path() string {
	return l.path
}

// Release gives up the lock. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := unlockFile(l.path, l.file)
	l.file = nil
	if err != nil {
		return apperrors.IO("releasing write lock", err)
	}
	return nil
}
