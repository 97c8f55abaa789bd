package app

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	BackendEtcd   = "etcd"
	BackendConsul = "consul"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config contains the configuration needed to build a Coordinator and the
// store it runs on.
type Config struct {
	LogLevel string `mapstructure:"log_level"`

	AppName string `mapstructure:"app_name"`

	// Namespace is the key prefix all coordinator keys live under.
	Namespace string `mapstructure:"namespace"`

	// Backend selects the store: etcd, consul, redis or memory.
	Backend        string        `mapstructure:"backend"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	EtcdEndpoints   []string      `mapstructure:"etcd_endpoints"`
	EtcdDialTimeout time.Duration `mapstructure:"etcd_dial_timeout"`
	EtcdUsername    string        `mapstructure:"etcd_username"`
	EtcdPassword    string        `mapstructure:"etcd_password"`

	ConsulAddress    string `mapstructure:"consul_address"`
	ConsulDatacenter string `mapstructure:"consul_datacenter"`
	ConsulToken      string `mapstructure:"consul_token"`

	RedisAddress  string `mapstructure:"redis_address"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	// LockSeed creates the lock flag (as free) when it is absent.
	LockSeed bool `mapstructure:"lock_seed"`

	// LockMaxAttempts bounds lock acquisition. Zero retries forever, which is
	// what co-deployed nodes expect.
	LockMaxAttempts   uint          `mapstructure:"lock_max_attempts"`
	LockBackoff       string        `mapstructure:"lock_backoff"`
	LockBackoffDelay  time.Duration `mapstructure:"lock_backoff_delay"`
	LockMaxBackoff    time.Duration `mapstructure:"lock_max_backoff"`
	LockBackoffJitter float64       `mapstructure:"lock_backoff_jitter"`

	NewRelicLicenseKey string `mapstructure:"new_relic_license_key"`
}

var defaultConfig = Config{
	LogLevel: "info",

	Namespace: "/rabbitmq",

	Backend:        BackendEtcd,
	RequestTimeout: 5 * time.Second,

	EtcdEndpoints:   []string{"localhost:2379"},
	EtcdDialTimeout: 5 * time.Second,

	ConsulAddress: "localhost:8500",

	RedisAddress: "localhost:6379",

	LockSeed:         true,
	LockBackoff:      "none",
	LockBackoffDelay: 100 * time.Millisecond,
	LockMaxBackoff:   5 * time.Second,
}

var envBindings = map[string]string{
	"log_level": "LOG_LEVEL",
	"app_name":  "APP_NAME",
	"namespace": "NAMESPACE",

	"backend":         "BACKEND",
	"request_timeout": "REQUEST_TIMEOUT",

	"etcd_endpoints":    "ETCD_ENDPOINTS",
	"etcd_dial_timeout": "ETCD_DIAL_TIMEOUT",
	"etcd_username":     "ETCD_USERNAME",
	"etcd_password":     "ETCD_PASSWORD",

	"consul_address":    "CONSUL_ADDRESS",
	"consul_datacenter": "CONSUL_DATACENTER",
	"consul_token":      "CONSUL_TOKEN",

	"redis_address":  "REDIS_ADDRESS",
	"redis_password": "REDIS_PASSWORD",
	"redis_db":       "REDIS_DB",

	"lock_seed":           "LOCK_SEED",
	"lock_max_attempts":   "LOCK_MAX_ATTEMPTS",
	"lock_backoff":        "LOCK_BACKOFF",
	"lock_backoff_delay":  "LOCK_BACKOFF_DELAY",
	"lock_max_backoff":    "LOCK_MAX_BACKOFF",
	"lock_backoff_jitter": "LOCK_BACKOFF_JITTER",

	"new_relic_license_key": "NEW_RELIC_LICENSE_KEY",
}

// LoadConfig reads configuration from the environment, and from the file at
// path if it exists. Unset values keep their defaults.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	// viper.ReadInConfig only returns ConfigFileNotFoundError if it has to search
	// for a default config file, so a missing explicit file is handled here.
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
		} else if !os.IsNotExist(err) {
			return Config{}, errors.Wrap(err, "failed to check if config exists")
		}
	}

	err := v.ReadInConfig()
	_, isConfigNotFound := err.(viper.ConfigFileNotFoundError)
	if err != nil && !isConfigNotFound {
		return Config{}, errors.Wrap(err, "failed to load config")
	}

	config := defaultConfig
	config.EtcdEndpoints = append([]string(nil), defaultConfig.EtcdEndpoints...)
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, errors.Wrap(err, "failed to unmarshal config")
	}

	return config, nil
}
