// Package notify provides the notification fan-out consumed after
// every build request or stage tracker mutation.
package notify

import "context"

// Topics published by the orchestration core.
const (
	// TopicBuildStateChanged carries the updated BuildRequest or
	// StageTracker after a mutation.
	TopicBuildStateChanged = "build-state-changed"
	// TopicBuildListChanged signals that a list view of build requests
	// should be refreshed.
	TopicBuildListChanged = "build-request-list-changed"
)

// Notifier broadcasts updated records to subscribers. Publish must not
// fail the mutation it follows; implementations log and drop on
// transport errors where possible.
type Notifier interface {
	Publish(ctx context.Context, topic string, payload any) error
	Close() error
}

// Noop is a Notifier that discards everything. Used in tests and when
// fan-out is disabled.
type Noop struct{}

// Publish discards the payload.
func (Noop) Publish(ctx context.Context, topic string, payload any) error { return nil }

// Close is a no-op.
func (Noop) Close() error { return nil }
