package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	config, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, defaultConfig, config)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("BACKEND", "redis")
	t.Setenv("NAMESPACE", "/staging/rabbitmq")
	t.Setenv("ETCD_ENDPOINTS", "etcd-0:2379,etcd-1:2379")
	t.Setenv("REQUEST_TIMEOUT", "2s")
	t.Setenv("LOCK_SEED", "false")
	t.Setenv("LOCK_MAX_ATTEMPTS", "10")

	config, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, BackendRedis, config.Backend)
	assert.Equal(t, "/staging/rabbitmq", config.Namespace)
	assert.Equal(t, []string{"etcd-0:2379", "etcd-1:2379"}, config.EtcdEndpoints)
	assert.Equal(t, 2*time.Second, config.RequestTimeout)
	assert.False(t, config.LockSeed)
	assert.EqualValues(t, 10, config.LockMaxAttempts)

	// Untouched values keep their defaults.
	assert.Equal(t, defaultConfig.RedisAddress, config.RedisAddress)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
backend: consul
consul_address: consul.internal:8500
consul_datacenter: dc2
lock_backoff: exponential
lock_backoff_delay: 50ms
lock_backoff_jitter: 0.2
`), 0o600))

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", config.LogLevel)
	assert.Equal(t, BackendConsul, config.Backend)
	assert.Equal(t, "consul.internal:8500", config.ConsulAddress)
	assert.Equal(t, "dc2", config.ConsulDatacenter)
	assert.Equal(t, "exponential", config.LockBackoff)
	assert.Equal(t, 50*time.Millisecond, config.LockBackoffDelay)
	assert.Equal(t, 0.2, config.LockBackoffJitter)
	assert.True(t, config.LockSeed)
}

func TestLoadConfig_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: [etcd"), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
