package coordinator

import (
	"context"

	"github.com/code-payments/rabbitmq-cluster/pkg/lock"
	"github.com/code-payments/rabbitmq-cluster/pkg/metrics"
)

// WithLock runs action while holding the cluster-wide lock.
//
// Acquisition blocks until the lock is free, retrying in a tight loop unless
// a retry policy was configured through WithLockOptions. The lock is released
// on every exit path of action. Errors from action are returned unchanged;
// a release that finds the lock not held returns lock.ErrReleaseInconsistency,
// even if action succeeded.
func (c *Coordinator) WithLock(ctx context.Context, action func(ctx context.Context) error) error {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "WithLock")
	defer tracer.End()

	err := lock.Do(ctx, c.lock, action)
	tracer.OnError(err)
	return err
}
