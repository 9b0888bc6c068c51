package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"fmristage/internal/services"
)

const locksDirName = ".locks"

// Lock is an exclusive hold on one subject/session within a work root.
type Lock struct {
	lock *flock.Flock
}

// LockPath returns the lock file location for a subject/session key.
func LockPath(workRoot, key string) string {
	return filepath.Join(workRoot, locksDirName, key+".lock")
}

// Acquire takes the subject/session lock without blocking. A lock held by
// another process fails with services.ErrWorkspaceBusy.
func Acquire(workRoot, key string) (*Lock, error) {
	path := LockPath(workRoot, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, services.Wrap(services.ErrStaging, "workspace", "create lock directory", filepath.Dir(path), err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrStaging, "workspace", "acquire lock", path, err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrWorkspaceBusy, "workspace", "acquire lock",
			fmt.Sprintf("another run holds %s", key), nil)
	}
	return &Lock{lock: lock}, nil
}

// Release drops the lock. Safe to call on a nil Lock.
func (l *Lock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	if l == nil || l.lock == nil {
		return ""
	}
	return l.lock.Path()
}
