// Package kv defines the key-value store contract the cluster coordinator is
// built on. Implementations live in sub-packages (etcd, consul, redis, memory)
// and share the conformance suite in kv/tests.
//
// All stores are expected to be linearizable per key. No guarantees are made
// across keys.
package kv

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrStoreUnavailable indicates the store could not complete a request.
	//
	// Implementations wrap the underlying client error alongside this value,
	// so both errors.Is(err, ErrStoreUnavailable) and checks against the
	// original cause succeed.
	ErrStoreUnavailable = errors.New("kv: store unavailable")

	// ErrInvalidKey indicates an empty key (or prefix) was supplied.
	ErrInvalidKey = errors.New("kv: invalid key")
)

// KeyValue is a single <key, value> pair returned from a prefix listing.
type KeyValue struct {
	Key   string
	Value string
}

// Store is a strongly consistent key-value store.
type Store interface {
	// Get returns the value stored at key, and whether the key exists.
	//
	// An absent key is not an error.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set unconditionally writes value to key (last writer wins).
	Set(ctx context.Context, key, value string) error

	// Exists returns whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// CompareAndSwap atomically replaces the value of key with value, provided
	// the current value equals expected. An absent key never matches.
	//
	// A false result (with a nil error) means the condition was not met, in
	// which case the store is left untouched.
	CompareAndSwap(ctx context.Context, key, expected, value string) (bool, error)

	// SetIfAbsent atomically writes value to key, provided key does not exist.
	SetIfAbsent(ctx context.Context, key, value string) (bool, error)

	// GetPrefix returns all pairs whose key starts with prefix. The order is
	// whatever the backing store yields; callers must not depend on it for
	// correctness.
	//
	// No matching keys results in an empty (non-nil) slice.
	GetPrefix(ctx context.Context, prefix string) ([]KeyValue, error)
}

// Watcher is implemented by stores that can stream changes under a prefix.
type Watcher interface {
	// WatchPrefix emits the full listing under prefix once immediately, and
	// again after every change. The returned channel is closed once ctx is
	// cancelled.
	//
	// Slow consumers only observe the latest listing.
	WatchPrefix(ctx context.Context, prefix string) <-chan []KeyValue
}

// Values returns the values of kvs, preserving order.
func Values(kvs []KeyValue) []string {
	values := make([]string, 0, len(kvs))
	for _, kv := range kvs {
		values = append(values, kv.Value)
	}
	return values
}

// Unavailable wraps err so that it matches ErrStoreUnavailable while keeping
// the original cause in the chain.
func Unavailable(err error, msg string) error {
	if err == nil {
		return nil
	}

	return &unavailableError{msg: msg, cause: err}
}

type unavailableError struct {
	msg   string
	cause error
}

func (e *unavailableError) Error() string {
	return e.msg + ": " + e.cause.Error()
}

func (e *unavailableError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.cause}
}

// ValidateKey returns ErrInvalidKey for empty or whitespace-only keys.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	return nil
}
