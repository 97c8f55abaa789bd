package kvtest

import (
	"context"
	"fmt"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/redis/go-redis/v9"
)

const (
	redisImageName = "redis"
	redisImageTag  = "7-alpine"
)

// StartRedis starts a standalone redis server.
func StartRedis(pool *dockertest.Pool) (client *redis.Client, teardown func(), err error) {
	teardown = func() {}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: redisImageName,
		Tag:        redisImageTag,
	}, autoRemove)
	if err != nil {
		return nil, teardown, fmt.Errorf("failed to start redis: %w", err)
	}

	_ = resource.Expire(uint(containerAutoKill.Seconds()))

	client = redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("localhost:%s", resource.GetPort("6379/tcp")),
	})

	purge := purger(pool, resource, "StartRedis")
	teardown = func() {
		_ = client.Close()
		purge()
	}

	err = pool.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		return client.Ping(ctx).Err()
	})
	if err != nil {
		return nil, teardown, fmt.Errorf("failed waiting for stable connection: %w", err)
	}

	return client, teardown, nil
}
