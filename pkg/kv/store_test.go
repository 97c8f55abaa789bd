package kv

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnavailable(t *testing.T) {
	require.NoError(t, Unavailable(nil, "get"))

	err := Unavailable(context.DeadlineExceeded, "failed to get key")
	assert.True(t, errors.Is(err, ErrStoreUnavailable))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, "failed to get key: context deadline exceeded", err.Error())
}

func TestValues(t *testing.T) {
	assert.Empty(t, Values(nil))
	assert.NotNil(t, Values(nil))

	values := Values([]KeyValue{
		{Key: "/rabbitmq/nodes/rabbit@b", Value: "rabbit@b"},
		{Key: "/rabbitmq/nodes/rabbit@a", Value: "rabbit@a"},
	})
	assert.Equal(t, []string{"rabbit@b", "rabbit@a"}, values)
}

func TestValidateKey(t *testing.T) {
	assert.Equal(t, ErrInvalidKey, ValidateKey(""))
	assert.Equal(t, ErrInvalidKey, ValidateKey("  "))
	assert.NoError(t, ValidateKey("/rabbitmq/lock"))
}
