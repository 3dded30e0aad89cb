package eventstream

import "context"

// Publisher publishes pack events to an event stream backend.
type Publisher interface {
	PublishPackReady(ctx context.Context, event *PackReadyEvent) error
	Close() error
}
