package memory

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/code-payments/rabbitmq-cluster/pkg/kv"
)

var errDeveloperInduced = errors.New("in memory store: developer induced error")

// Store is an in memory kv.Store (and kv.Watcher) used for testing and for
// single process deployments.
type Store struct {
	mu       sync.Mutex
	values   map[string]string
	err      error
	watchers []*watcher
}

type watcher struct {
	prefix string
	ch     chan []kv.KeyValue
}

var (
	_ kv.Store   = (*Store)(nil)
	_ kv.Watcher = (*Store)(nil)
)

// New returns a new, empty, in memory store.
func New() *Store {
	return &Store{
		values: make(map[string]string),
	}
}

// Get implements kv.Store.Get
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := kv.ValidateKey(key); err != nil {
		return "", false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkAvailable(ctx); err != nil {
		return "", false, err
	}

	val, ok := s.values[key]
	return val, ok, nil
}

// Set implements kv.Store.Set
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := kv.ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkAvailable(ctx); err != nil {
		return err
	}

	s.put(key, value)
	return nil
}

// Exists implements kv.Store.Exists
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

// CompareAndSwap implements kv.Store.CompareAndSwap
func (s *Store) CompareAndSwap(ctx context.Context, key, expected, value string) (bool, error) {
	if err := kv.ValidateKey(key); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkAvailable(ctx); err != nil {
		return false, err
	}

	current, ok := s.values[key]
	if !ok || current != expected {
		return false, nil
	}

	s.put(key, value)
	return true, nil
}

// SetIfAbsent implements kv.Store.SetIfAbsent
func (s *Store) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	if err := kv.ValidateKey(key); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkAvailable(ctx); err != nil {
		return false, err
	}

	if _, ok := s.values[key]; ok {
		return false, nil
	}

	s.put(key, value)
	return true, nil
}

// GetPrefix implements kv.Store.GetPrefix
func (s *Store) GetPrefix(ctx context.Context, prefix string) ([]kv.KeyValue, error) {
	if err := kv.ValidateKey(prefix); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkAvailable(ctx); err != nil {
		return nil, err
	}

	return s.list(prefix), nil
}

// WatchPrefix implements kv.Watcher.WatchPrefix
func (s *Store) WatchPrefix(ctx context.Context, prefix string) <-chan []kv.KeyValue {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := &watcher{
		prefix: prefix,
		ch:     make(chan []kv.KeyValue, 1),
	}
	w.ch <- s.list(prefix)
	s.watchers = append(s.watchers, w)

	go func() {
		<-ctx.Done()

		s.mu.Lock()
		defer s.mu.Unlock()

		for i := range s.watchers {
			if s.watchers[i] == w {
				s.watchers = slices.Delete(s.watchers, i, i+1)
				break
			}
		}

		close(w.ch)
	}()

	return w.ch
}

// Delete removes key from the store. It is not part of kv.Store, and exists
// to simulate external tampering in tests.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.values[key]; !ok {
		return
	}

	delete(s.values, key)
	s.notify(key)
}

// Reset clears all values.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}

	s.values = make(map[string]string)
	for _, k := range keys {
		s.notify(k)
	}
}

// InduceErrors instructs the store to fail all subsequent requests with an
// error matching kv.ErrStoreUnavailable.
func (s *Store) InduceErrors() {
	s.mu.Lock()
	s.err = errDeveloperInduced
	s.mu.Unlock()
}

// StopInducingErrors reverts InduceErrors.
func (s *Store) StopInducingErrors() {
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
}

func (s *Store) checkAvailable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return kv.Unavailable(err, "memory store")
	}
	if s.err != nil {
		return kv.Unavailable(s.err, "memory store")
	}
	return nil
}

func (s *Store) put(key, value string) {
	s.values[key] = value
	s.notify(key)
}

// notify must be called with mu held.
func (s *Store) notify(key string) {
	for _, w := range s.watchers {
		if !strings.HasPrefix(key, w.prefix) {
			continue
		}

		// Only the latest listing matters, so replace anything unread.
		select {
		case <-w.ch:
		default:
		}
		w.ch <- s.list(w.prefix)
	}
}

func (s *Store) list(prefix string) []kv.KeyValue {
	kvs := make([]kv.KeyValue, 0)
	for k, v := range s.values {
		if strings.HasPrefix(k, prefix) {
			kvs = append(kvs, kv.KeyValue{Key: k, Value: v})
		}
	}

	slices.SortFunc(kvs, func(a, b kv.KeyValue) int {
		return strings.Compare(a.Key, b.Key)
	})

	return kvs
}
