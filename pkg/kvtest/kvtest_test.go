//go:build integration

package kvtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/ory/dockertest/v3"
	"github.com/stretchr/testify/require"
	v3 "go.etcd.io/etcd/client/v3"
)

func TestEtcdContainer(t *testing.T) {
	ctx := context.Background()
	require := require.New(t)

	pool, err := dockertest.NewPool("")
	require.NoError(err)

	client, teardown, err := StartEtcd(pool)
	require.NoError(err)
	defer teardown()

	get, err := client.Get(ctx, "/", v3.WithPrefix())
	require.NoError(err)
	require.Empty(get.Kvs)

	for i := 0; i < 10; i++ {
		_, err := client.Put(ctx, fmt.Sprintf("/%d", i), fmt.Sprintf("value-%d", i))
		require.NoError(err)
	}

	get, err = client.Get(ctx, "/", v3.WithPrefix())
	require.NoError(err)
	require.Len(get.Kvs, 10)
}

func TestConsulContainer(t *testing.T) {
	require := require.New(t)

	pool, err := dockertest.NewPool("")
	require.NoError(err)

	client, teardown, err := StartConsul(pool)
	require.NoError(err)
	defer teardown()

	pair, _, err := client.KV().Get("rabbitmq/lock", nil)
	require.NoError(err)
	require.Nil(pair)
}

func TestRedisContainer(t *testing.T) {
	ctx := context.Background()
	require := require.New(t)

	pool, err := dockertest.NewPool("")
	require.NoError(err)

	client, teardown, err := StartRedis(pool)
	require.NoError(err)
	defer teardown()

	require.NoError(client.Set(ctx, "/rabbitmq/lock", "false", 0).Err())
	val, err := client.Get(ctx, "/rabbitmq/lock").Result()
	require.NoError(err)
	require.Equal("false", val)
}
