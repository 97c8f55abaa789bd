package etcd

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	v3 "go.etcd.io/etcd/client/v3"

	"github.com/code-payments/rabbitmq-cluster/pkg/kv"
	"github.com/code-payments/rabbitmq-cluster/pkg/retry"
	"github.com/code-payments/rabbitmq-cluster/pkg/retry/backoff"
)

var errWatchClosed = errors.New("etcd: watch channel closed")

// Store is a kv.Store (and kv.Watcher) backed by etcd v3.
//
// CompareAndSwap and SetIfAbsent are single transactions, so they inherit
// etcd's linearizability.
type Store struct {
	log            *logrus.Entry
	client         *v3.Client
	requestTimeout time.Duration
}

var (
	_ kv.Store   = (*Store)(nil)
	_ kv.Watcher = (*Store)(nil)
)

// New returns a Store using client. Every request is bounded by
// requestTimeout; a non-positive value selects the default.
func New(client *v3.Client, requestTimeout time.Duration) *Store {
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	return &Store{
		log:            logrus.StandardLogger().WithField("type", "kv/etcd/Store"),
		client:         client,
		requestTimeout: requestTimeout,
	}
}

// Get implements kv.Store.Get
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := kv.ValidateKey(key); err != nil {
		return "", false, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	get, err := s.client.Get(ctx, key)
	if err != nil {
		return "", false, kv.Unavailable(err, "etcd: failed to get key")
	}

	if len(get.Kvs) == 0 {
		return "", false, nil
	}

	return string(get.Kvs[0].Value), true, nil
}

// Set implements kv.Store.Set
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := kv.ValidateKey(key); err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.client.Put(ctx, key, value); err != nil {
		return kv.Unavailable(err, "etcd: failed to put key")
	}

	return nil
}

// Exists implements kv.Store.Exists
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := kv.ValidateKey(key); err != nil {
		return false, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	get, err := s.client.Get(ctx, key, v3.WithCountOnly())
	if err != nil {
		return false, kv.Unavailable(err, "etcd: failed to count key")
	}

	return get.Count > 0, nil
}

// CompareAndSwap implements kv.Store.CompareAndSwap
//
// etcd always fails a value comparison against a missing key, which gives us
// the "absent never matches" semantics for free.
func (s *Store) CompareAndSwap(ctx context.Context, key, expected, value string) (bool, error) {
	if err := kv.ValidateKey(key); err != nil {
		return false, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	txnResp, err := s.client.Txn(ctx).
		If(v3.Compare(v3.Value(key), "=", expected)).
		Then(v3.OpPut(key, value)).
		Commit()
	if err != nil {
		return false, kv.Unavailable(err, "etcd: failed to compare and swap")
	}

	return txnResp.Succeeded, nil
}

// SetIfAbsent implements kv.Store.SetIfAbsent
func (s *Store) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	if err := kv.ValidateKey(key); err != nil {
		return false, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	txnResp, err := s.client.Txn(ctx).
		If(v3.Compare(v3.CreateRevision(key), "=", 0)).
		Then(v3.OpPut(key, value)).
		Commit()
	if err != nil {
		return false, kv.Unavailable(err, "etcd: failed to create key")
	}

	return txnResp.Succeeded, nil
}

// GetPrefix implements kv.Store.GetPrefix
func (s *Store) GetPrefix(ctx context.Context, prefix string) ([]kv.KeyValue, error) {
	if err := kv.ValidateKey(prefix); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	get, err := s.client.Get(ctx, prefix, v3.WithPrefix(), v3.WithSort(v3.SortByKey, v3.SortAscend))
	if err != nil {
		return nil, kv.Unavailable(err, "etcd: failed to list prefix")
	}

	kvs := make([]kv.KeyValue, 0, len(get.Kvs))
	for _, item := range get.Kvs {
		kvs = append(kvs, kv.KeyValue{Key: string(item.Key), Value: string(item.Value)})
	}

	return kvs, nil
}

// WatchPrefix implements kv.Watcher.WatchPrefix
//
// The listing is re-read, and the watch re-established, whenever the watch
// fails (compaction, leader loss, ...), backing off in between.
func (s *Store) WatchPrefix(ctx context.Context, prefix string) <-chan []kv.KeyValue {
	log := s.log.WithFields(logrus.Fields{
		"method": "WatchPrefix",
		"prefix": prefix,
	})

	ch := make(chan []kv.KeyValue, 1)
	emit := func(tree map[string]string) {
		kvs := make([]kv.KeyValue, 0, len(tree))
		for k, v := range tree {
			kvs = append(kvs, kv.KeyValue{Key: k, Value: v})
		}
		slices.SortFunc(kvs, func(a, b kv.KeyValue) int {
			return strings.Compare(a.Key, b.Key)
		})

		select {
		case <-ch:
		default:
		}
		ch <- kvs
	}

	loop := func() error {
		get, err := s.client.Get(ctx, prefix, v3.WithPrefix())
		if err != nil {
			return err
		}

		tree := make(map[string]string, len(get.Kvs))
		for _, item := range get.Kvs {
			tree[string(item.Key)] = string(item.Value)
		}
		emit(tree)

		watchCh := s.client.Watch(
			v3.WithRequireLeader(ctx),
			prefix,
			v3.WithPrefix(),
			v3.WithRev(get.Header.Revision+1),
		)

		for watch := range watchCh {
			if err := watch.Err(); err != nil {
				return err
			}

			for _, event := range watch.Events {
				switch event.Type {
				case v3.EventTypePut:
					tree[string(event.Kv.Key)] = string(event.Kv.Value)
				case v3.EventTypeDelete:
					delete(tree, string(event.Kv.Key))
				}
			}

			emit(tree)
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		return errWatchClosed
	}

	go func() {
		defer close(ch)

		_, _ = retry.Retry(
			loop,
			retry.NonRetriableErrors(context.Canceled),
			retry.Context(ctx),
			retry.Notify(func(_ uint, err error) {
				log.WithError(err).Warn("Failure during watch loop")
			}),
			retry.BackoffWithJitter(backoff.Constant(time.Second), 2*time.Second, 0.1),
		)

		log.Debug("Closed")
	}()

	return ch
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.requestTimeout)
}
