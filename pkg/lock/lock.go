package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

var (
	// ErrReleaseInconsistency indicates the lock was not in the held state when
	// it was released. Something outside of the lock holder changed the state,
	// and the lock can no longer be trusted. It is never retried.
	ErrReleaseInconsistency = errors.New("lock: release found lock not held")

	// ErrNotAcquired indicates a bounded acquisition policy gave up while the
	// lock was still held elsewhere.
	ErrNotAcquired = errors.New("lock: not acquired")
)

// DistributedLock is a handle to a lock that spans multiple processes.
//
// Locks carry no holder identity. They are neither fair nor re-entrant:
// acquiring a lock that the same process already holds blocks like any other
// contender.
type DistributedLock interface {
	// Acquire blocks until the lock has been acquired.
	//
	// Only contention is retried. Store failures are returned as is.
	Acquire(ctx context.Context) error

	// Release releases the lock. Every successful Acquire must be paired with
	// exactly one Release.
	//
	// ErrReleaseInconsistency is returned if the lock was not held.
	Release(ctx context.Context) error
}

// ReleaseTimeout bounds the release performed by Do.
const ReleaseTimeout = 10 * time.Second

// PanicError is the panic value raised by Do when the critical section
// panicked and the subsequent release failed as well. Unwrap yields the
// release error.
type PanicError struct {
	Value      interface{}
	ReleaseErr error
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in critical section: %v (release: %v)", e.Value, e.ReleaseErr)
}

func (e *PanicError) Unwrap() error {
	return e.ReleaseErr
}

// Do acquires l, runs fn, and releases l on every exit path of fn, including
// panics.
//
// The release ignores cancellation of ctx, so a lock acquired by Do is always
// handed back to the store, bounded by ReleaseTimeout.
//
// The error returned by fn is passed through unchanged, unless the release
// also failed, in which case both are combined. A panic in fn is re-raised
// as is, unless the release failed, in which case a *PanicError is raised.
func Do(ctx context.Context, l DistributedLock, fn func(ctx context.Context) error) (err error) {
	if err := l.Acquire(ctx); err != nil {
		return err
	}

	release := func() error {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ReleaseTimeout)
		defer cancel()

		return l.Release(releaseCtx)
	}

	defer func() {
		if r := recover(); r != nil {
			if releaseErr := release(); releaseErr != nil {
				logrus.StandardLogger().
					WithField("method", "lock.Do").
					WithError(releaseErr).
					Error("failed to release lock after panic in critical section")
				panic(&PanicError{Value: r, ReleaseErr: releaseErr})
			}
			panic(r)
		}

		err = multierr.Append(err, release())
	}()

	return fn(ctx)
}
