package coordinator

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/code-payments/rabbitmq-cluster/pkg/kv"
	"github.com/code-payments/rabbitmq-cluster/pkg/retry"
	"github.com/code-payments/rabbitmq-cluster/pkg/retry/backoff"
)

const secretPollInterval = time.Second

var errSecretAbsent = errors.New("cluster secret not set")

// GetSecret returns the shared cluster secret (the Erlang cookie). An unset
// secret is returned as the empty string; callers decide what absence means.
func (c *Coordinator) GetSecret(ctx context.Context) (string, error) {
	secret, ok, err := c.store.Get(ctx, c.SecretKey())
	if err != nil {
		return "", errors.Wrap(err, "failed to get cluster secret")
	}
	if !ok {
		c.log.Debug("Cluster secret not set")
	}

	return secret, nil
}

// SetSecret unconditionally writes the shared cluster secret. The last writer
// wins, so only the member bootstrapping the cluster should call it.
func (c *Coordinator) SetSecret(ctx context.Context, secret string) error {
	if err := c.store.Set(ctx, c.SecretKey(), secret); err != nil {
		return errors.Wrap(err, "failed to set cluster secret")
	}

	c.log.Info("Cluster secret updated")
	return nil
}

// WaitForSecret blocks until the cluster secret has been published, and
// returns it. A published empty secret counts as published.
//
// Stores implementing kv.Watcher are watched. Other stores are polled every
// secretPollInterval.
func (c *Coordinator) WaitForSecret(ctx context.Context) (string, error) {
	if watcher, ok := c.store.(kv.Watcher); ok {
		return c.watchForSecret(ctx, watcher)
	}

	var secret string
	_, err := retry.Retry(
		func() error {
			val, ok, err := c.store.Get(ctx, c.SecretKey())
			if err != nil {
				return err
			}
			if !ok {
				return errSecretAbsent
			}

			secret = val
			return nil
		},
		retry.RetriableErrors(errSecretAbsent),
		retry.Context(ctx),
		retry.Backoff(backoff.Constant(secretPollInterval), secretPollInterval),
	)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err != nil {
		return "", errors.Wrap(err, "failed to get cluster secret")
	}

	return secret, nil
}

func (c *Coordinator) watchForSecret(ctx context.Context, watcher kv.Watcher) (string, error) {
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Prefix watches also match siblings like <ns>/erlang_cookie.bak
	key := c.SecretKey()
	for kvs := range watcher.WatchPrefix(watchCtx, key) {
		for _, pair := range kvs {
			if pair.Key == key {
				return pair.Value, nil
			}
		}

		c.log.Debug("Waiting for cluster secret")
	}

	return "", ctx.Err()
}
