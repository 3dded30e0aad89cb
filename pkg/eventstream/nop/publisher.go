package nop

import (
	"context"

	"github.com/papercomputeco/drills/pkg/eventstream"
)

// Publisher is a no-op eventstream publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishPackReady validates input and otherwise does nothing.
func (p *Publisher) PublishPackReady(_ context.Context, event *eventstream.PackReadyEvent) error {
	if event == nil {
		return eventstream.ErrNilPackEvent
	}

	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
