package consul

import (
	"fmt"
	"time"

	"github.com/hashicorp/consul/api"
)

const defaultWaitTime = 30 * time.Second

// Config configures the consul client used by NewClient.
type Config struct {
	Address    string
	Datacenter string
	Token      string
}

// NewClient creates a consul client, and verifies the agent is reachable.
func NewClient(config Config) (*api.Client, error) {
	consulConfig := api.DefaultConfig()
	if config.Address != "" {
		consulConfig.Address = config.Address
	}
	consulConfig.Datacenter = config.Datacenter
	consulConfig.Token = config.Token

	client, err := api.NewClient(consulConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}

	if _, err := client.Agent().Self(); err != nil {
		return nil, fmt.Errorf("failed to connect to consul: %w", err)
	}

	return client, nil
}
