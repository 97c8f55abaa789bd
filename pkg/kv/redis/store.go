package redis

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/rabbitmq-cluster/pkg/kv"
)

const scanCount = 100

// KEYS[1]: key, ARGV[1]: expected, ARGV[2]: value
//
// GET yields false for a missing key, which never equals ARGV[1].
var compareAndSwapScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current == ARGV[1] then
	redis.call('SET', KEYS[1], ARGV[2])
	return 1
end
return 0
`)

// Store is a kv.Store backed by a single redis primary. Redis Cluster is not
// supported, as prefix listings read many keys with one MGET.
//
// Scripts run atomically, so CompareAndSwap is linearizable per key. Prefix
// listings use SCAN, and are not a point in time snapshot.
type Store struct {
	log    *logrus.Entry
	client *redis.Client
}

var _ kv.Store = (*Store)(nil)

// New returns a Store using client.
func New(client *redis.Client) *Store {
	return &Store{
		log:    logrus.StandardLogger().WithField("type", "kv/redis/Store"),
		client: client,
	}
}

// Get implements kv.Store.Get
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := kv.ValidateKey(key); err != nil {
		return "", false, err
	}

	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	} else if err != nil {
		return "", false, kv.Unavailable(err, "redis: failed to get key")
	}

	return val, true, nil
}

// Set implements kv.Store.Set
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := kv.ValidateKey(key); err != nil {
		return err
	}

	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return kv.Unavailable(err, "redis: failed to set key")
	}

	return nil
}

// Exists implements kv.Store.Exists
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := kv.ValidateKey(key); err != nil {
		return false, err
	}

	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, kv.Unavailable(err, "redis: failed to check key")
	}

	return n > 0, nil
}

// CompareAndSwap implements kv.Store.CompareAndSwap
func (s *Store) CompareAndSwap(ctx context.Context, key, expected, value string) (bool, error) {
	if err := kv.ValidateKey(key); err != nil {
		return false, err
	}

	swapped, err := compareAndSwapScript.Run(ctx, s.client, []string{key}, expected, value).Int()
	if err != nil {
		return false, kv.Unavailable(err, "redis: failed to compare and swap")
	}

	return swapped == 1, nil
}

// SetIfAbsent implements kv.Store.SetIfAbsent
func (s *Store) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	if err := kv.ValidateKey(key); err != nil {
		return false, err
	}

	created, err := s.client.SetNX(ctx, key, value, 0).Result()
	if err != nil {
		return false, kv.Unavailable(err, "redis: failed to create key")
	}

	return created, nil
}

// GetPrefix implements kv.Store.GetPrefix
//
// Results are sorted by key, matching the ordering of the etcd store.
func (s *Store) GetPrefix(ctx context.Context, prefix string) ([]kv.KeyValue, error) {
	if err := kv.ValidateKey(prefix); err != nil {
		return nil, err
	}

	var keys []string
	iter := s.client.Scan(ctx, 0, escapePattern(prefix)+"*", scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, kv.Unavailable(err, "redis: failed to scan prefix")
	}

	// SCAN may return a key more than once.
	slices.Sort(keys)
	keys = slices.Compact(keys)

	kvs := make([]kv.KeyValue, 0, len(keys))
	if len(keys) == 0 {
		return kvs, nil
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, kv.Unavailable(err, "redis: failed to get values")
	}

	for i, val := range vals {
		str, ok := val.(string)
		if !ok {
			s.log.WithField("key", keys[i]).Debug("Key deleted in between scan and read")
			continue
		}
		kvs = append(kvs, kv.KeyValue{Key: keys[i], Value: str})
	}

	return kvs, nil
}

// escapePattern escapes the glob metacharacters understood by SCAN MATCH.
func escapePattern(prefix string) string {
	var sb strings.Builder
	for _, r := range prefix {
		switch r {
		case '*', '?', '[', ']', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
