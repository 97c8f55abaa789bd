package cas

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/rabbitmq-cluster/pkg/kv"
	"github.com/code-payments/rabbitmq-cluster/pkg/lock"
	"github.com/code-payments/rabbitmq-cluster/pkg/metrics"
	"github.com/code-payments/rabbitmq-cluster/pkg/retry"
)

const (
	// Held is the stored value of an acquired lock.
	Held = "true"
	// Free is the stored value of a released lock.
	Free = "false"

	metricsStructName = "lock.cas"

	acquireAttemptsMetricName     = "Lock/acquire_attempts"
	acquireWaitMetricName         = "Lock/acquire_wait"
	releaseInconsistencyEventName = "LockReleaseInconsistency"
)

var errContended = errors.New("lock held elsewhere")

// Lock is a lock.DistributedLock backed by a single boolean flag in a
// kv.Store. The flag only ever moves through CompareAndSwap:
//
//	free --CAS(free, held)--> held --CAS(held, free)--> free
//
// Lock holds no local state, so a single Lock may be shared freely.
type Lock struct {
	log   *logrus.Entry
	store kv.Store
	key   string

	seed       bool
	strategies []retry.Strategy
}

var _ lock.DistributedLock = (*Lock)(nil)

// Option configures a Lock.
type Option func(*Lock)

// WithRetryStrategies bounds or paces acquisition. Contention is always the
// only retried condition; the provided strategies are consulted after that
// check, in order. See the retry package.
//
// Without strategies, acquisition retries in a tight loop, forever.
func WithRetryStrategies(strategies ...retry.Strategy) Option {
	return func(l *Lock) {
		l.strategies = append(l.strategies, strategies...)
	}
}

// WithoutSeeding disables creating the flag (as free) when it is absent. An
// absent flag never matches a CompareAndSwap, so acquisition will not succeed
// until some other party seeds the key.
func WithoutSeeding() Option {
	return func(l *Lock) {
		l.seed = false
	}
}

// NewLock returns a Lock stored at key.
func NewLock(store kv.Store, key string, opts ...Option) *Lock {
	l := &Lock{
		log: logrus.StandardLogger().WithFields(logrus.Fields{
			"type": "lock/cas/Lock",
			"key":  key,
		}),
		store: store,
		key:   key,
		seed:  true,
	}

	for _, o := range opts {
		o(l)
	}

	return l
}

// Key returns the key of the flag.
func (l *Lock) Key() string {
	return l.key
}

// Acquire implements lock.DistributedLock.Acquire.
func (l *Lock) Acquire(ctx context.Context) error {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Acquire")
	defer tracer.End()

	start := time.Now()

	if l.seed {
		seeded, err := l.store.SetIfAbsent(ctx, l.key, Free)
		if err != nil {
			tracer.OnError(err)
			return errors.Wrapf(err, "failed to seed lock %s", l.key)
		}
		if seeded {
			l.log.Debug("Lock key was absent, seeded as free")
		}
	}

	strategies := make([]retry.Strategy, 0, len(l.strategies)+1)
	strategies = append(strategies, retry.RetriableErrors(errContended))
	strategies = append(strategies, l.strategies...)

	attempts, err := retry.Retry(func() error {
		swapped, err := l.store.CompareAndSwap(ctx, l.key, Free, Held)
		if err != nil {
			return err
		}
		if !swapped {
			return errContended
		}
		return nil
	}, strategies...)

	metrics.RecordCount(ctx, acquireAttemptsMetricName, uint64(attempts))
	metrics.RecordDuration(ctx, acquireWaitMetricName, time.Since(start))
	tracer.AddAttribute("attempts", attempts)

	log := l.log.WithField("attempts", attempts)
	switch {
	case errors.Is(err, errContended):
		log.Debug("Gave up acquiring lock")
		tracer.OnError(lock.ErrNotAcquired)
		return errors.Wrapf(lock.ErrNotAcquired, "%s after %d attempts", l.key, attempts)
	case err != nil:
		log.WithError(err).Warn("Failed to acquire lock")
		tracer.OnError(err)
		return errors.Wrapf(err, "failed to acquire lock %s", l.key)
	}

	log.Debug("Lock acquired")
	return nil
}

// Release implements lock.DistributedLock.Release.
func (l *Lock) Release(ctx context.Context) error {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Release")
	defer tracer.End()

	swapped, err := l.store.CompareAndSwap(ctx, l.key, Held, Free)
	if err != nil {
		l.log.WithError(err).Warn("Failed to release lock")
		tracer.OnError(err)
		return errors.Wrapf(err, "failed to release lock %s", l.key)
	}

	if !swapped {
		l.log.Error("Lock was not held on release, the lock state has been modified externally")
		metrics.RecordEvent(ctx, releaseInconsistencyEventName, map[string]interface{}{
			"key": l.key,
		})
		tracer.OnError(lock.ErrReleaseInconsistency)
		return errors.Wrapf(lock.ErrReleaseInconsistency, "key %s", l.key)
	}

	l.log.Debug("Lock released")
	return nil
}
