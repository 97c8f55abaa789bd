// Package metrics records New Relic metrics, events and traces for the
// coordinator. Every function is a no-op unless the context carries a New
// Relic application (see NewContext) or transaction.
package metrics

import (
	"context"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"
)

var logger = logrus.StandardLogger().WithField("type", "metrics")

type newRelicContextKey struct{}

// NewRelicContextKey is the context key holding a *newrelic.Application.
var NewRelicContextKey = newRelicContextKey{}

// NewContext returns a copy of ctx carrying app. A nil app returns ctx as is.
func NewContext(ctx context.Context, app *newrelic.Application) context.Context {
	if app == nil {
		return ctx
	}
	return context.WithValue(ctx, NewRelicContextKey, app)
}

// ApplicationFromContext returns the application stored by NewContext, or
// nil.
func ApplicationFromContext(ctx context.Context) *newrelic.Application {
	app, _ := ctx.Value(NewRelicContextKey).(*newrelic.Application)
	return app
}

// RecordCount records a count metric
func RecordCount(ctx context.Context, metricName string, count uint64) {
	if nr := ApplicationFromContext(ctx); nr != nil {
		nr.RecordCustomMetric(metricName, float64(count))
	}
}

// RecordDuration records a duration metric, in milliseconds
func RecordDuration(ctx context.Context, metricName string, duration time.Duration) {
	if nr := ApplicationFromContext(ctx); nr != nil {
		nr.RecordCustomMetric(metricName, float64(duration/time.Millisecond))
	}
}
