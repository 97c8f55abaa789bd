package kvtest

import (
	"fmt"

	"github.com/hashicorp/consul/api"
	"github.com/ory/dockertest/v3"
)

const (
	consulImageName = "hashicorp/consul"
	consulImageTag  = "1.20"
)

// StartConsul starts a consul agent in dev mode.
func StartConsul(pool *dockertest.Pool) (client *api.Client, teardown func(), err error) {
	teardown = func() {}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: consulImageName,
		Tag:        consulImageTag,
		Cmd:        []string{"agent", "-dev", "-client", "0.0.0.0"},
	}, autoRemove)
	if err != nil {
		return nil, teardown, fmt.Errorf("failed to start consul: %w", err)
	}

	_ = resource.Expire(uint(containerAutoKill.Seconds()))

	teardown = purger(pool, resource, "StartConsul")

	config := api.DefaultConfig()
	config.Address = fmt.Sprintf("localhost:%s", resource.GetPort("8500/tcp"))

	client, err = api.NewClient(config)
	if err != nil {
		return nil, teardown, fmt.Errorf("failed to create consul client: %w", err)
	}

	err = pool.Retry(func() error {
		leader, err := client.Status().Leader()
		if err != nil {
			return err
		}
		if leader == "" {
			return fmt.Errorf("no consul leader elected yet")
		}

		_, _, err = client.KV().Get("__startup_test", nil)
		return err
	})
	if err != nil {
		return nil, teardown, fmt.Errorf("failed waiting for stable connection: %w", err)
	}

	return client, teardown, nil
}
