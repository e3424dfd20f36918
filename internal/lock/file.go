package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// NewFileLocker returns a Locker backed by advisory file locks under dir. It only
// protects runs that share the same filesystem.
func NewFileLocker(dir string) (Locker, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("file lock directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	return &fileLocker{dir: dir}, nil
}

type fileLocker struct {
	dir string
}

func (l *fileLocker) Acquire(_ context.Context, key string) (Lease, error) {
	fl := flock.New(filepath.Join(l.dir, fileName(key)))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", fl.Path(), err)
	}
	if !locked {
		return nil, ErrLocked
	}
	return &fileLease{key: key, lock: fl}, nil
}

type fileLease struct {
	key  string
	lock *flock.Flock
}

func (l *fileLease) Key() string { return l.key }

func (l *fileLease) Release(context.Context) error {
	return l.lock.Unlock()
}

func fileName(key string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	return replacer.Replace(strings.Trim(key, "/")) + ".lock"
}
