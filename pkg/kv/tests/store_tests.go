package tests

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/rabbitmq-cluster/pkg/kv"
	"github.com/code-payments/rabbitmq-cluster/pkg/testutil"
)

// RunStoreTests runs the kv.Store conformance suite. Every test case operates
// under its own random root, so ctor may return the same store each time.
func RunStoreTests(t *testing.T, ctor func() (kv.Store, error)) {
	for _, tc := range []struct {
		name string
		tf   func(*testing.T, kv.Store, string)
	}{
		{name: "TestGetSet", tf: testGetSet},
		{name: "TestCompareAndSwap", tf: testCompareAndSwap},
		{name: "TestSetIfAbsent", tf: testSetIfAbsent},
		{name: "TestGetPrefix", tf: testGetPrefix},
		{name: "TestConcurrentCompareAndSwap", tf: testConcurrentCompareAndSwap},
		{name: "TestInvalidKey", tf: testInvalidKey},
	} {
		store, err := ctor()
		require.NoError(t, err)

		root := fmt.Sprintf("/kv-test-%s", uuid.New().String())
		t.Run(tc.name, func(t *testing.T) { tc.tf(t, store, root) })
	}
}

// RunWatcherTests runs the kv.Watcher conformance suite.
func RunWatcherTests(t *testing.T, ctor func() (kv.Store, error)) {
	store, err := ctor()
	require.NoError(t, err)

	watcher, ok := store.(kv.Watcher)
	require.True(t, ok, "store does not implement kv.Watcher")

	root := fmt.Sprintf("/kv-test-%s", uuid.New().String())
	t.Run("TestWatchPrefix", func(t *testing.T) { testWatchPrefix(t, store, watcher, root) })
}

func testGetSet(t *testing.T, s kv.Store, root string) {
	ctx := context.Background()
	require := require.New(t)

	key := root + "/erlang_cookie"

	val, ok, err := s.Get(ctx, key)
	require.NoError(err)
	require.False(ok)
	require.Empty(val)

	exists, err := s.Exists(ctx, key)
	require.NoError(err)
	require.False(exists)

	require.NoError(s.Set(ctx, key, "first"))
	require.NoError(s.Set(ctx, key, "second"))

	val, ok, err = s.Get(ctx, key)
	require.NoError(err)
	require.True(ok)
	require.Equal("second", val)

	exists, err = s.Exists(ctx, key)
	require.NoError(err)
	require.True(exists)

	// Empty values are still present.
	empty := root + "/empty"
	require.NoError(s.Set(ctx, empty, ""))
	exists, err = s.Exists(ctx, empty)
	require.NoError(err)
	require.True(exists)
}

func testCompareAndSwap(t *testing.T, s kv.Store, root string) {
	ctx := context.Background()
	require := require.New(t)

	key := root + "/lock"

	// An absent key never matches.
	swapped, err := s.CompareAndSwap(ctx, key, "false", "true")
	require.NoError(err)
	require.False(swapped)

	exists, err := s.Exists(ctx, key)
	require.NoError(err)
	require.False(exists)

	require.NoError(s.Set(ctx, key, "false"))

	swapped, err = s.CompareAndSwap(ctx, key, "false", "true")
	require.NoError(err)
	require.True(swapped)

	// A failed swap leaves the value untouched.
	swapped, err = s.CompareAndSwap(ctx, key, "false", "true")
	require.NoError(err)
	require.False(swapped)

	val, _, err := s.Get(ctx, key)
	require.NoError(err)
	require.Equal("true", val)

	swapped, err = s.CompareAndSwap(ctx, key, "true", "false")
	require.NoError(err)
	require.True(swapped)

	val, _, err = s.Get(ctx, key)
	require.NoError(err)
	require.Equal("false", val)
}

func testSetIfAbsent(t *testing.T, s kv.Store, root string) {
	ctx := context.Background()
	require := require.New(t)

	key := root + "/lock"

	set, err := s.SetIfAbsent(ctx, key, "false")
	require.NoError(err)
	require.True(set)

	set, err = s.SetIfAbsent(ctx, key, "true")
	require.NoError(err)
	require.False(set)

	val, ok, err := s.Get(ctx, key)
	require.NoError(err)
	require.True(ok)
	require.Equal("false", val)
}

func testGetPrefix(t *testing.T, s kv.Store, root string) {
	ctx := context.Background()
	require := require.New(t)

	prefix := root + "/nodes/"

	kvs, err := s.GetPrefix(ctx, prefix)
	require.NoError(err)
	require.NotNil(kvs)
	require.Empty(kvs)

	expected := make([]kv.KeyValue, 0)
	for i := 0; i < 5; i++ {
		node := fmt.Sprintf("rabbit@node-%d", i)
		require.NoError(s.Set(ctx, prefix+node, node))
		expected = append(expected, kv.KeyValue{Key: prefix + node, Value: node})
	}

	// Siblings of the prefix must not be included.
	require.NoError(s.Set(ctx, root+"/nodes", "directory"))
	require.NoError(s.Set(ctx, root+"/erlang_cookie", "cookie"))

	kvs, err = s.GetPrefix(ctx, prefix)
	require.NoError(err)
	assert.ElementsMatch(t, expected, kvs)
}

func testConcurrentCompareAndSwap(t *testing.T, s kv.Store, root string) {
	ctx := context.Background()
	require := require.New(t)

	key := root + "/lock"
	require.NoError(s.Set(ctx, key, "false"))

	const workers = 16

	var wg sync.WaitGroup
	results := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			swapped, err := s.CompareAndSwap(ctx, key, "false", "true")
			assert.NoError(t, err)
			results <- swapped
		}()
	}
	wg.Wait()
	close(results)

	var winners int
	for swapped := range results {
		if swapped {
			winners++
		}
	}
	require.Equal(1, winners)
}

func testInvalidKey(t *testing.T, s kv.Store, _ string) {
	ctx := context.Background()

	_, _, err := s.Get(ctx, "")
	assert.ErrorIs(t, err, kv.ErrInvalidKey)
	assert.ErrorIs(t, s.Set(ctx, "", "value"), kv.ErrInvalidKey)
	_, err = s.CompareAndSwap(ctx, "", "false", "true")
	assert.ErrorIs(t, err, kv.ErrInvalidKey)
	_, err = s.GetPrefix(ctx, "")
	assert.ErrorIs(t, err, kv.ErrInvalidKey)
}

func testWatchPrefix(t *testing.T, s kv.Store, w kv.Watcher, root string) {
	require := require.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	prefix := root + "/nodes/"
	watch := w.WatchPrefix(ctx, prefix)

	awaitValues := func(expected ...string) {
		if expected == nil {
			expected = []string{}
		}

		testutil.Await(t, watch, 10*time.Second, func(kvs []kv.KeyValue) bool {
			return assert.ObjectsAreEqual(expected, kv.Values(kvs))
		})
	}

	awaitValues()

	require.NoError(s.Set(context.Background(), prefix+"rabbit@a", "rabbit@a"))
	awaitValues("rabbit@a")

	require.NoError(s.Set(context.Background(), prefix+"rabbit@b", "rabbit@b"))
	awaitValues("rabbit@a", "rabbit@b")

	// Writes outside the prefix do not alter the listing.
	require.NoError(s.Set(context.Background(), root+"/erlang_cookie", "cookie"))

	cancel()
	testutil.AwaitClosed(t, watch, 10*time.Second)
}
