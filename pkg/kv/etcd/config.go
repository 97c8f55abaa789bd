package etcd

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	v3 "go.etcd.io/etcd/client/v3"
)

const (
	defaultDialTimeout    = 5 * time.Second
	defaultRequestTimeout = 5 * time.Second
)

// Config configures the etcd client used by NewClient.
type Config struct {
	Endpoints   []string
	DialTimeout time.Duration
	Username    string
	Password    string
	TLS         *tls.Config
}

// NewClient dials etcd, and verifies connectivity against the first endpoint.
func NewClient(ctx context.Context, config Config) (*v3.Client, error) {
	if len(config.Endpoints) == 0 {
		return nil, fmt.Errorf("etcd: at least one endpoint is required")
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = defaultDialTimeout
	}

	client, err := v3.New(v3.Config{
		Endpoints:   config.Endpoints,
		DialTimeout: config.DialTimeout,
		Username:    config.Username,
		Password:    config.Password,
		TLS:         config.TLS,
		Context:     ctx,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	statusCtx, cancel := context.WithTimeout(ctx, config.DialTimeout)
	defer cancel()

	if _, err := client.Status(statusCtx, config.Endpoints[0]); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	return client, nil
}
