// Package coordinator coordinates the members of a RabbitMQ cluster through a
// shared, strongly consistent key-value store.
//
// It covers three independent concerns, all stored under a namespace
// (DefaultNamespace unless configured):
//
//	<namespace>/nodes/<identity>  membership registry
//	<namespace>/erlang_cookie     shared cluster secret
//	<namespace>/lock              mutual exclusion flag
//
// A Coordinator owns no state. Any number of Coordinators, in any number of
// processes, may share the same store.
package coordinator

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/rabbitmq-cluster/pkg/kv"
	"github.com/code-payments/rabbitmq-cluster/pkg/lock"
	"github.com/code-payments/rabbitmq-cluster/pkg/lock/cas"
)

const (
	// DefaultNamespace is the key namespace expected by co-deployed tooling.
	DefaultNamespace = "/rabbitmq"

	nodesDir  = "nodes"
	secretKey = "erlang_cookie"
	lockKey   = "lock"

	metricsStructName = "coordinator"
)

var (
	// ErrInvalidIdentity indicates a node identity is empty or contains a '/'.
	ErrInvalidIdentity = errors.New("coordinator: invalid node identity")

	// ErrWatchUnsupported indicates the store does not implement kv.Watcher.
	ErrWatchUnsupported = errors.New("coordinator: store does not support watches")
)

// Coordinator provides cluster membership, secret distribution and mutual
// exclusion on top of a kv.Store.
type Coordinator struct {
	log       *logrus.Entry
	store     kv.Store
	namespace string

	lockOpts []cas.Option
	lock     lock.DistributedLock
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithNamespace overrides DefaultNamespace. Trailing slashes are ignored.
func WithNamespace(namespace string) Option {
	return func(c *Coordinator) {
		c.namespace = strings.TrimRight(namespace, "/")
	}
}

// WithLockOptions configures the cluster lock (retry policy, seeding).
func WithLockOptions(opts ...cas.Option) Option {
	return func(c *Coordinator) {
		c.lockOpts = append(c.lockOpts, opts...)
	}
}

// New returns a Coordinator backed by store.
func New(store kv.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		namespace: DefaultNamespace,
	}

	for _, o := range opts {
		o(c)
	}

	c.log = logrus.StandardLogger().WithFields(logrus.Fields{
		"type":      "coordinator/Coordinator",
		"namespace": c.namespace,
	})
	c.lock = cas.NewLock(store, c.LockKey(), c.lockOpts...)

	return c
}

// Namespace returns the key namespace.
func (c *Coordinator) Namespace() string {
	return c.namespace
}

// NodesPrefix returns the prefix under which node identities are registered,
// including the trailing separator.
func (c *Coordinator) NodesPrefix() string {
	return c.namespace + "/" + nodesDir + "/"
}

// NodeKey returns the registration key for identity.
func (c *Coordinator) NodeKey(identity string) string {
	return c.NodesPrefix() + identity
}

// SecretKey returns the key of the cluster secret.
func (c *Coordinator) SecretKey() string {
	return c.namespace + "/" + secretKey
}

// LockKey returns the key of the mutual exclusion flag.
func (c *Coordinator) LockKey() string {
	return c.namespace + "/" + lockKey
}
