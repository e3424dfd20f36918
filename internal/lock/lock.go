package lock

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// ErrLocked indicates another run currently holds the lock for a repository.
var ErrLocked = errors.New("lock: held by another run")

// Backend names accepted by New.
const (
	BackendNone  = "none"
	BackendFile  = "file"
	BackendRedis = "redis"
)

// Lease is a held lock.
type Lease interface {
	Key() string
	Release(ctx context.Context) error
}

// Locker hands out exclusive per-repository leases. Acquire never blocks waiting for
// another holder; it fails with ErrLocked instead.
type Locker interface {
	Acquire(ctx context.Context, key string) (Lease, error)
}

// Leases is a set of leases acquired together.
type Leases []Lease

// Release releases every lease in reverse acquisition order and joins the errors.
func (l Leases) Release(ctx context.Context) error {
	var errs []error
	for i := len(l) - 1; i >= 0; i-- {
		if err := l[i].Release(ctx); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", l[i].Key(), err))
		}
	}
	return errors.Join(errs...)
}

// AcquireAll acquires a lease for every key in sorted order so that concurrent runs
// over overlapping repositories cannot deadlock. On failure the leases acquired so far
// are released and the failing key is reported.
func AcquireAll(ctx context.Context, locker Locker, keys []string) (Leases, error) {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	held := make(Leases, 0, len(sorted))
	for _, key := range sorted {
		lease, err := locker.Acquire(ctx, key)
		if err != nil {
			if releaseErr := held.Release(ctx); releaseErr != nil {
				err = errors.Join(err, releaseErr)
			}
			return nil, &KeyError{Key: key, Err: err}
		}
		held = append(held, lease)
	}
	return held, nil
}

// KeyError ties an acquisition failure to the key that could not be locked.
type KeyError struct {
	Key string
	Err error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("acquire lock %s: %v", e.Key, e.Err)
}

func (e *KeyError) Unwrap() error {
	return e.Err
}

// Noop returns a Locker that always succeeds.
func Noop() Locker {
	return noopLocker{}
}

type noopLocker struct{}

func (noopLocker) Acquire(_ context.Context, key string) (Lease, error) {
	return noopLease(key), nil
}

type noopLease string

func (l noopLease) Key() string { return string(l) }

func (noopLease) Release(context.Context) error { return nil }
