package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopWithoutApplication(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, ctx, NewContext(ctx, nil))

	assert.NotPanics(t, func() {
		RecordCount(ctx, "Lock/acquire_attempts", 3)
		RecordDuration(ctx, "Lock/acquire_wait", time.Second)
		RecordEvent(ctx, "LockReleaseInconsistency", map[string]interface{}{"key": "/rabbitmq/lock"})
	})

	tracer := TraceMethodCall(ctx, "coordinator", "ListNodes")
	assert.Nil(t, tracer)
	assert.NotPanics(t, func() {
		tracer.AddAttribute("nodes", 2)
		tracer.OnError(errors.New("boom"))
		tracer.End()
	})
}

func TestWithApplication(t *testing.T) {
	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName("rabbitmq-cluster-test"),
		newrelic.ConfigEnabled(false),
	)
	require.NoError(t, err)
	defer app.Shutdown(time.Second)

	assert.Nil(t, ApplicationFromContext(context.Background()))

	ctx := NewContext(context.Background(), app)
	assert.Same(t, app, ApplicationFromContext(ctx))

	assert.NotPanics(t, func() {
		RecordCount(ctx, "Lock/acquire_attempts", 3)
		RecordDuration(ctx, "Lock/acquire_wait", time.Second)
		RecordEvent(ctx, "LockReleaseInconsistency", map[string]interface{}{"key": "/rabbitmq/lock"})
		RecordEvent(ctx, "LockReleaseInconsistency", map[string]interface{}{"key": struct{}{}})
	})
}
