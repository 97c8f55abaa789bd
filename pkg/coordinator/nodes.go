package coordinator

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/code-payments/rabbitmq-cluster/pkg/kv"
	"github.com/code-payments/rabbitmq-cluster/pkg/metrics"
)

// ListNodes returns the identities of all registered nodes, in the order the
// store lists them. The order is not stable across calls.
//
// An empty registry yields an empty, non-nil slice.
func (c *Coordinator) ListNodes(ctx context.Context) ([]string, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "ListNodes")
	defer tracer.End()

	kvs, err := c.store.GetPrefix(ctx, c.NodesPrefix())
	if err != nil {
		tracer.OnError(err)
		return nil, errors.Wrap(err, "failed to list nodes")
	}

	nodes := kv.Values(kvs)
	tracer.AddAttribute("nodes", len(nodes))
	return nodes, nil
}

// Register adds identity to the registry. Registering an identity that is
// already present is a no-op, and performs no write.
//
// Identities are otherwise opaque, but must not be blank or contain a '/',
// since they form the last segment of the registration key. Such identities
// are rejected with ErrInvalidIdentity.
//
// The existence check and the write are not atomic. Two members registering
// the same identity concurrently both write the same <key, value> pair, which
// is harmless.
func (c *Coordinator) Register(ctx context.Context, identity string) error {
	if err := validateIdentity(identity); err != nil {
		return err
	}

	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Register")
	defer tracer.End()

	log := c.log.WithField("identity", identity)
	key := c.NodeKey(identity)

	exists, err := c.store.Exists(ctx, key)
	if err != nil {
		tracer.OnError(err)
		return errors.Wrapf(err, "failed to check registration of %s", identity)
	}
	if exists {
		log.Debug("Node already registered")
		return nil
	}

	if err := c.store.Set(ctx, key, identity); err != nil {
		tracer.OnError(err)
		return errors.Wrapf(err, "failed to register %s", identity)
	}

	log.Info("Node registered")
	return nil
}

// WatchNodes emits the registered identities immediately, and again whenever
// the registry changes, until ctx is cancelled. Slow consumers only observe
// the latest listing.
//
// ErrWatchUnsupported is returned if the store cannot watch.
func (c *Coordinator) WatchNodes(ctx context.Context) (<-chan []string, error) {
	watcher, ok := c.store.(kv.Watcher)
	if !ok {
		return nil, ErrWatchUnsupported
	}

	src := watcher.WatchPrefix(ctx, c.NodesPrefix())
	ch := make(chan []string, 1)

	go func() {
		defer close(ch)

		for kvs := range src {
			select {
			case <-ch:
			default:
			}
			ch <- kv.Values(kvs)
		}
	}()

	return ch, nil
}

func validateIdentity(identity string) error {
	if strings.TrimSpace(identity) == "" || strings.Contains(identity, "/") {
		return errors.Wrapf(ErrInvalidIdentity, "%q", identity)
	}
	return nil
}
