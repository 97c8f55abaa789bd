//go:build integration

package consul

import (
	"context"
	"testing"

	"github.com/ory/dockertest/v3"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/rabbitmq-cluster/pkg/kv"
	"github.com/code-payments/rabbitmq-cluster/pkg/kv/tests"
	"github.com/code-payments/rabbitmq-cluster/pkg/kvtest"
)

func TestStore(t *testing.T) {
	require := require.New(t)

	pool, err := dockertest.NewPool("")
	require.NoError(err)

	client, teardown, err := kvtest.StartConsul(pool)
	require.NoError(err)
	defer teardown()

	ctor := func() (kv.Store, error) {
		return New(client), nil
	}

	tests.RunStoreTests(t, ctor)
	tests.RunWatcherTests(t, ctor)
}

func TestLeadingSlash(t *testing.T) {
	ctx := context.Background()
	require := require.New(t)

	pool, err := dockertest.NewPool("")
	require.NoError(err)

	client, teardown, err := kvtest.StartConsul(pool)
	require.NoError(err)
	defer teardown()

	s := New(client)
	require.NoError(s.Set(ctx, "/rabbitmq/nodes/rabbit@a", "rabbit@a"))

	pair, _, err := client.KV().Get("rabbitmq/nodes/rabbit@a", nil)
	require.NoError(err)
	require.NotNil(pair)
	require.Equal("rabbit@a", string(pair.Value))

	kvs, err := s.GetPrefix(ctx, "/rabbitmq/nodes/")
	require.NoError(err)
	require.Equal([]kv.KeyValue{{Key: "/rabbitmq/nodes/rabbit@a", Value: "rabbit@a"}}, kvs)
}
