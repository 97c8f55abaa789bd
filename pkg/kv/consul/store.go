package consul

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/rabbitmq-cluster/pkg/kv"
	"github.com/code-payments/rabbitmq-cluster/pkg/retry"
	"github.com/code-payments/rabbitmq-cluster/pkg/retry/backoff"
)

var errIndexReset = errors.New("consul: index went backwards")

// Store is a kv.Store (and kv.Watcher) backed by the consul KV API.
//
// Consul rejects keys with a leading '/', so it is stripped on the way in
// and restored on the way out.
type Store struct {
	log    *logrus.Entry
	client *api.Client
}

var (
	_ kv.Store   = (*Store)(nil)
	_ kv.Watcher = (*Store)(nil)
)

// New returns a Store using client.
func New(client *api.Client) *Store {
	return &Store{
		log:    logrus.StandardLogger().WithField("type", "kv/consul/Store"),
		client: client,
	}
}

// Get implements kv.Store.Get
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := kv.ValidateKey(key); err != nil {
		return "", false, err
	}

	pair, _, err := s.client.KV().Get(toConsulKey(key), queryOptions(ctx))
	if err != nil {
		return "", false, kv.Unavailable(err, "consul: failed to get key")
	}
	if pair == nil {
		return "", false, nil
	}

	return string(pair.Value), true, nil
}

// Set implements kv.Store.Set
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := kv.ValidateKey(key); err != nil {
		return err
	}

	pair := &api.KVPair{Key: toConsulKey(key), Value: []byte(value)}
	if _, err := s.client.KV().Put(pair, writeOptions(ctx)); err != nil {
		return kv.Unavailable(err, "consul: failed to put key")
	}

	return nil
}

// Exists implements kv.Store.Exists
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

// CompareAndSwap implements kv.Store.CompareAndSwap
//
// Consul only offers index based CAS. The value is read, compared locally,
// and written back conditioned on the index it was read at. Losing that race
// re-reads, since the value may still equal expected.
func (s *Store) CompareAndSwap(ctx context.Context, key, expected, value string) (bool, error) {
	if err := kv.ValidateKey(key); err != nil {
		return false, err
	}

	for {
		pair, _, err := s.client.KV().Get(toConsulKey(key), queryOptions(ctx))
		if err != nil {
			return false, kv.Unavailable(err, "consul: failed to get key")
		}
		if pair == nil || string(pair.Value) != expected {
			return false, nil
		}

		pair.Value = []byte(value)
		swapped, _, err := s.client.KV().CAS(pair, writeOptions(ctx))
		if err != nil {
			return false, kv.Unavailable(err, "consul: failed to compare and swap")
		}
		if swapped {
			return true, nil
		}

		if err := ctx.Err(); err != nil {
			return false, kv.Unavailable(err, "consul: failed to compare and swap")
		}
	}
}

// SetIfAbsent implements kv.Store.SetIfAbsent
func (s *Store) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	if err := kv.ValidateKey(key); err != nil {
		return false, err
	}

	// A zero ModifyIndex only succeeds if the key does not exist.
	pair := &api.KVPair{Key: toConsulKey(key), Value: []byte(value), ModifyIndex: 0}
	created, _, err := s.client.KV().CAS(pair, writeOptions(ctx))
	if err != nil {
		return false, kv.Unavailable(err, "consul: failed to create key")
	}

	return created, nil
}

// GetPrefix implements kv.Store.GetPrefix
func (s *Store) GetPrefix(ctx context.Context, prefix string) ([]kv.KeyValue, error) {
	if err := kv.ValidateKey(prefix); err != nil {
		return nil, err
	}

	pairs, _, err := s.client.KV().List(toConsulKey(prefix), queryOptions(ctx))
	if err != nil {
		return nil, kv.Unavailable(err, "consul: failed to list prefix")
	}

	return fromPairs(prefix, pairs), nil
}

// WatchPrefix implements kv.Watcher.WatchPrefix
//
// Changes are observed with blocking queries. A listing is only emitted when
// the index under the prefix moves.
func (s *Store) WatchPrefix(ctx context.Context, prefix string) <-chan []kv.KeyValue {
	log := s.log.WithFields(logrus.Fields{
		"method": "WatchPrefix",
		"prefix": prefix,
	})

	ch := make(chan []kv.KeyValue, 1)
	emit := func(kvs []kv.KeyValue) {
		select {
		case <-ch:
		default:
		}
		ch <- kvs
	}

	loop := func() error {
		var lastIndex uint64
		for {
			opts := (&api.QueryOptions{
				RequireConsistent: true,
				WaitIndex:         lastIndex,
				WaitTime:          defaultWaitTime,
			}).WithContext(ctx)

			pairs, meta, err := s.client.KV().List(toConsulKey(prefix), opts)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				return err
			}

			// Per the consul docs, a backwards index means the state was
			// reset (snapshot restore etc), and the watch starts over.
			if meta.LastIndex < lastIndex {
				return errIndexReset
			}
			if meta.LastIndex == lastIndex {
				continue
			}

			lastIndex = meta.LastIndex
			emit(fromPairs(prefix, pairs))
		}
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

func toConsulKey(key string) string {
	return strings.TrimPrefix(key, "/")
}

func fromPairs(prefix string, pairs api.KVPairs) []kv.KeyValue {
	leading := strings.HasPrefix(prefix, "/")

	kvs := make([]kv.KeyValue, 0, len(pairs))
	for _, pair := range pairs {
		key := pair.Key
		if leading {
			key = "/" + key
		}
		kvs = append(kvs, kv.KeyValue{Key: key, Value: string(pair.Value)})
	}

	return kvs
}

func queryOptions(ctx context.Context) *api.QueryOptions {
	return (&api.QueryOptions{RequireConsistent: true}).WithContext(ctx)
}

func writeOptions(ctx context.Context) *api.WriteOptions {
	return (&api.WriteOptions{}).WithContext(ctx)
}
