// Package app builds a Coordinator, and the store it runs on, from
// configuration.
package app

import (
	"context"
	"os"
	"strings"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/rabbitmq-cluster/pkg/coordinator"
	"github.com/code-payments/rabbitmq-cluster/pkg/kv"
	consulkv "github.com/code-payments/rabbitmq-cluster/pkg/kv/consul"
	etcdkv "github.com/code-payments/rabbitmq-cluster/pkg/kv/etcd"
	"github.com/code-payments/rabbitmq-cluster/pkg/kv/memory"
	rediskv "github.com/code-payments/rabbitmq-cluster/pkg/kv/redis"
	"github.com/code-payments/rabbitmq-cluster/pkg/lock/cas"
	"github.com/code-payments/rabbitmq-cluster/pkg/metrics"
	"github.com/code-payments/rabbitmq-cluster/pkg/retry"
	"github.com/code-payments/rabbitmq-cluster/pkg/retry/backoff"
)

// ConfigureLogger sets up the standard logrus logger.
func ConfigureLogger(config Config) {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(strings.ToLower(config.LogLevel))
	if err != nil {
		logrus.StandardLogger().WithField("log_level", config.LogLevel).Warn("unknown log level, ignoring")
	} else {
		logrus.SetLevel(level)
	}

	logrus.SetOutput(os.Stdout)
}

// NewMetricsProvider returns a New Relic application, or nil when no license
// key is configured.
func NewMetricsProvider(config Config) (*newrelic.Application, error) {
	if len(config.NewRelicLicenseKey) == 0 {
		return nil, nil
	}

	if len(config.AppName) == 0 {
		return nil, errors.New("must specify an application name")
	}

	nr, err := newrelic.NewApplication(
		newrelic.ConfigFromEnvironment(),
		newrelic.ConfigAppName(config.AppName),
		newrelic.ConfigLicense(config.NewRelicLicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
	)
	if err != nil {
		return nil, errors.Wrap(err, "error connecting to new relic")
	}

	return nr, nil
}

// NewStore connects to the configured backend. The returned function
// releases the underlying client.
func NewStore(ctx context.Context, config Config) (kv.Store, func(), error) {
	switch strings.ToLower(config.Backend) {
	case BackendEtcd:
		client, err := etcdkv.NewClient(ctx, etcdkv.Config{
			Endpoints:   config.EtcdEndpoints,
			DialTimeout: config.EtcdDialTimeout,
			Username:    config.EtcdUsername,
			Password:    config.EtcdPassword,
		})
		if err != nil {
			return nil, nil, err
		}

		return etcdkv.New(client, config.RequestTimeout), func() { _ = client.Close() }, nil
	case BackendConsul:
		client, err := consulkv.NewClient(consulkv.Config{
			Address:    config.ConsulAddress,
			Datacenter: config.ConsulDatacenter,
			Token:      config.ConsulToken,
		})
		if err != nil {
			return nil, nil, err
		}

		return consulkv.New(client), func() {}, nil
	case BackendRedis:
		client, err := rediskv.NewClient(ctx, rediskv.Config{
			Address:  config.RedisAddress,
			Password: config.RedisPassword,
			DB:       config.RedisDB,
		})
		if err != nil {
			return nil, nil, err
		}

		return rediskv.New(client), func() { _ = client.Close() }, nil
	case BackendMemory:
		return memory.New(), func() {}, nil
	default:
		return nil, nil, errors.Errorf("unknown backend: %q", config.Backend)
	}
}

// LockOptions translates the lock_* settings into cas options.
func LockOptions(config Config) ([]cas.Option, error) {
	var opts []cas.Option
	if !config.LockSeed {
		opts = append(opts, cas.WithoutSeeding())
	}

	var strategies []retry.Strategy
	if config.LockMaxAttempts > 0 {
		strategies = append(strategies, retry.Limit(config.LockMaxAttempts))
	}

	curve, err := backoff.FromName(config.LockBackoff, config.LockBackoffDelay)
	if err != nil {
		return nil, errors.Wrap(err, "invalid lock_backoff")
	}
	if curve != nil {
		if config.LockBackoffJitter > 0 {
			strategies = append(strategies, retry.BackoffWithJitter(curve, config.LockMaxBackoff, config.LockBackoffJitter))
		} else {
			strategies = append(strategies, retry.Backoff(curve, config.LockMaxBackoff))
		}
	}

	if len(strategies) > 0 {
		opts = append(opts, cas.WithRetryStrategies(strategies...))
	}

	return opts, nil
}

// NewCoordinator builds a Coordinator over store using the namespace and lock
// settings in config.
func NewCoordinator(store kv.Store, config Config) (*coordinator.Coordinator, error) {
	lockOpts, err := LockOptions(config)
	if err != nil {
		return nil, err
	}

	opts := []coordinator.Option{coordinator.WithLockOptions(lockOpts...)}
	if config.Namespace != "" {
		opts = append(opts, coordinator.WithNamespace(config.Namespace))
	}

	return coordinator.New(store, opts...), nil
}

// Setup loads configuration from path, and wires the logger, metrics, store
// and coordinator. The returned context carries the metrics provider (if
// any), and should be used for coordinator calls. The returned function
// shuts everything down.
func Setup(ctx context.Context, path string) (context.Context, *coordinator.Coordinator, func(), error) {
	config, err := LoadConfig(path)
	if err != nil {
		return nil, nil, nil, err
	}

	ConfigureLogger(config)

	nr, err := NewMetricsProvider(config)
	if err != nil {
		return nil, nil, nil, err
	}
	ctx = metrics.NewContext(ctx, nr)

	store, closeStore, err := NewStore(ctx, config)
	if err != nil {
		return nil, nil, nil, errors.Wrapf(err, "failed to connect to %s", config.Backend)
	}

	c, err := NewCoordinator(store, config)
	if err != nil {
		closeStore()
		return nil, nil, nil, err
	}

	logrus.StandardLogger().WithFields(logrus.Fields{
		"type":      "app",
		"backend":   config.Backend,
		"namespace": c.Namespace(),
	}).Info("coordinator ready")

	return ctx, c, func() {
		closeStore()
		if nr != nil {
			nr.Shutdown(config.RequestTimeout)
		}
	}, nil
}
