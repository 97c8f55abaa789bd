package metrics

import (
	"context"
)

// RecordEvent records a custom event of eventType. Attribute values should
// be strings, numbers or booleans; the agent drops anything else.
//
// Events are for rare, noteworthy occurrences (a lock found in the wrong
// state, say), not per-call telemetry.
func RecordEvent(ctx context.Context, eventType string, attributes map[string]interface{}) {
	app := ApplicationFromContext(ctx)
	if app == nil {
		return
	}

	app.RecordCustomEvent(eventType, attributes)
}
