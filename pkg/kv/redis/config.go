package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Config configures the redis client used by NewClient.
type Config struct {
	Address  string
	Password string
	DB       int
}

// NewClient creates a redis client, and verifies the server is reachable.
func NewClient(ctx context.Context, config Config) (*redis.Client, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("redis: address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}
