package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/code-payments/rabbitmq-cluster/pkg/retry/backoff"
)

func TestRealSleeper(t *testing.T) {
	sleeperImpl = &realSleeper{}

	start := time.Now()
	n, err := Retry(func() error { return errors.New("err") },
		Limit(2),
		Backoff(backoff.Constant(500*time.Millisecond), 500*time.Millisecond),
	)

	assert.NotNil(t, err)
	assert.EqualValues(t, 2, n)
	assert.True(t, 500*time.Millisecond <= time.Since(start))
	assert.True(t, 1*time.Second > time.Since(start))
}

func TestRetrier(t *testing.T) {
	retriableErr := errors.New("retriable")
	r := NewRetrier(Limit(5), RetriableErrors(retriableErr))

	attempts, err := r.Retry(func() error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, uint(1), attempts)

	attempts, err = r.Retry(func() error { return errors.New("unknown") })
	assert.Error(t, err)
	assert.Equal(t, uint(1), attempts)

	attempts, err = r.Retry(func() error { return retriableErr })
	assert.EqualError(t, retriableErr, err.Error())
	assert.Equal(t, uint(5), attempts)
}

func TestTightLoop(t *testing.T) {
	errContended := errors.New("contended")

	var calls int
	attempts, err := Retry(func() error {
		calls++
		if calls < 1000 {
			return errContended
		}
		return nil
	})

	assert.NoError(t, err)
	assert.EqualValues(t, 1000, attempts)
	assert.Equal(t, 1000, calls)
}

func TestStrategyOrdering(t *testing.T) {
	ts := &testSleeper{}
	sleeperImpl = ts

	errFatal := errors.New("fatal")

	var calls int
	attempts, err := Retry(
		func() error {
			calls++
			if calls == 4 {
				return errFatal
			}
			return errors.New("transient")
		},
		NonRetriableErrors(errFatal),
		Backoff(backoff.Linear(1), time.Second),
	)

	assert.ErrorIs(t, err, errFatal)
	assert.EqualValues(t, 4, attempts)

	// The backoff is not consulted for the rejected attempt.
	assert.Equal(t, []time.Duration{1, 2, 3}, ts.sleepTimes)
}
