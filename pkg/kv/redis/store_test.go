//go:build integration

package redis

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

	client, teardown, err := kvtest.StartRedis(pool)
	require.NoError(err)
	defer teardown()

	tests.RunStoreTests(t, func() (kv.Store, error) {
		return New(client), nil
	})
}

func TestGetPrefix_GlobCharacters(t *testing.T) {
	ctx := context.Background()
	require := require.New(t)

	pool, err := dockertest.NewPool("")
	require.NoError(err)

	client, teardown, err := kvtest.StartRedis(pool)
	require.NoError(err)
	defer teardown()

	s := New(client)
	require.NoError(s.Set(ctx, "/ns[1]/nodes/a", "a"))
	require.NoError(s.Set(ctx, "/ns1/nodes/b", "b"))

	kvs, err := s.GetPrefix(ctx, "/ns[1]/nodes/")
	require.NoError(err)
	require.Equal([]kv.KeyValue{{Key: "/ns[1]/nodes/a", Value: "a"}}, kvs)
}
