package lock

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLock struct {
	acquireErr error
	releaseErr error

	// ctx state observed at release time
	releaseCtxErr   error
	releaseDeadline bool

	acquired int
	released int
}

func (l *fakeLock) Acquire(_ context.Context) error {
	if l.acquireErr != nil {
		return l.acquireErr
	}
	l.acquired++
	return nil
}

func (l *fakeLock) Release(ctx context.Context) error {
	l.releaseCtxErr = ctx.Err()
	_, l.releaseDeadline = ctx.Deadline()
	l.released++
	return l.releaseErr
}

func TestDo(t *testing.T) {
	l := &fakeLock{}

	var runs int
	err := Do(context.Background(), l, func(_ context.Context) error {
		runs++
		assert.Equal(t, 1, l.acquired)
		assert.Equal(t, 0, l.released)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, runs)
	assert.Equal(t, 1, l.released)
}

func TestDoAcquireFailure(t *testing.T) {
	acquireErr := errors.New("store unavailable")
	l := &fakeLock{acquireErr: acquireErr}

	var runs int
	err := Do(context.Background(), l, func(_ context.Context) error {
		runs++
		return nil
	})

	assert.Equal(t, acquireErr, err)
	assert.Equal(t, 0, runs)
	assert.Equal(t, 0, l.released)
}

func TestDoActionFailure(t *testing.T) {
	actionErr := errors.New("join failed")
	l := &fakeLock{}

	err := Do(context.Background(), l, func(_ context.Context) error {
		return actionErr
	})

	assert.Equal(t, actionErr, err)
	assert.Equal(t, 1, l.released)
}

func TestDoReleaseFailure(t *testing.T) {
	l := &fakeLock{releaseErr: ErrReleaseInconsistency}

	err := Do(context.Background(), l, func(_ context.Context) error {
		return nil
	})

	assert.ErrorIs(t, err, ErrReleaseInconsistency)
	assert.Equal(t, 1, l.released)
}

func TestDoActionAndReleaseFailure(t *testing.T) {
	actionErr := errors.New("join failed")
	l := &fakeLock{releaseErr: ErrReleaseInconsistency}

	err := Do(context.Background(), l, func(_ context.Context) error {
		return actionErr
	})

	assert.ErrorIs(t, err, actionErr)
	assert.ErrorIs(t, err, ErrReleaseInconsistency)
}

func TestDoPanic(t *testing.T) {
	l := &fakeLock{}

	assert.PanicsWithValue(t, "boom", func() {
		_ = Do(context.Background(), l, func(_ context.Context) error {
			panic("boom")
		})
	})
	assert.Equal(t, 1, l.released)

	l = &fakeLock{releaseErr: ErrReleaseInconsistency}
	func() {
		defer func() {
			r := recover()
			require.NotNil(t, r)

			panicErr, ok := r.(*PanicError)
			require.True(t, ok)
			assert.Equal(t, "boom", panicErr.Value)
			assert.ErrorIs(t, panicErr, ErrReleaseInconsistency)
		}()

		_ = Do(context.Background(), l, func(_ context.Context) error {
			panic("boom")
		})
	}()
	assert.Equal(t, 1, l.released)
}

func TestDoReleaseIgnoresCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := &fakeLock{}
	err := Do(ctx, l, func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	})

	assert.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, l.released)
	assert.NoError(t, l.releaseCtxErr)
	assert.True(t, l.releaseDeadline)
}
