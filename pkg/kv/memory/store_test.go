package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/rabbitmq-cluster/pkg/kv"
	"github.com/code-payments/rabbitmq-cluster/pkg/kv/tests"
)

func TestStore(t *testing.T) {
	tests.RunStoreTests(t, func() (kv.Store, error) {
		return New(), nil
	})
}

func TestWatcher(t *testing.T) {
	tests.RunWatcherTests(t, func() (kv.Store, error) {
		return New(), nil
	})
}

func TestInducedErrors(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Set(ctx, "/rabbitmq/lock", "false"))

	s.InduceErrors()

	_, _, err := s.Get(ctx, "/rabbitmq/lock")
	assert.ErrorIs(t, err, kv.ErrStoreUnavailable)
	assert.ErrorIs(t, err, errDeveloperInduced)

	_, err = s.CompareAndSwap(ctx, "/rabbitmq/lock", "false", "true")
	assert.ErrorIs(t, err, kv.ErrStoreUnavailable)

	_, err = s.GetPrefix(ctx, "/rabbitmq/nodes/")
	assert.ErrorIs(t, err, kv.ErrStoreUnavailable)

	s.StopInducingErrors()

	swapped, err := s.CompareAndSwap(ctx, "/rabbitmq/lock", "false", "true")
	require.NoError(t, err)
	assert.True(t, swapped)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New().Set(ctx, "/rabbitmq/erlang_cookie", "cookie")
	assert.ErrorIs(t, err, kv.ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDeleteAndReset(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Set(ctx, "/rabbitmq/nodes/rabbit@a", "rabbit@a"))
	require.NoError(t, s.Set(ctx, "/rabbitmq/lock", "true"))

	s.Delete("/rabbitmq/lock")
	exists, err := s.Exists(ctx, "/rabbitmq/lock")
	require.NoError(t, err)
	assert.False(t, exists)

	s.Reset()
	kvs, err := s.GetPrefix(ctx, "/rabbitmq/")
	require.NoError(t, err)
	assert.Empty(t, kvs)
}
