package eventstream

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/drills/pkg/notify"
	"github.com/papercomputeco/drills/pkg/study"
)

// Payload data keys understood by the sink.
const (
	DataSessionID  = "sessionId"
	DataBreakdown  = "breakdown"
	DataWeakTopics = "weakTopics"
	DataItems      = "items"
	DataPreview    = "preview"
)

// Sink turns notifications into PackReadyEvents on a Publisher.
type Sink struct {
	publisher Publisher
	source    EventSource
	now       func() time.Time
}

var _ notify.Sink = (*Sink)(nil)

// NewSink creates a sink publishing as the named service.
func NewSink(publisher Publisher, service string) *Sink {
	host, _ := os.Hostname()
	return &Sink{
		publisher: publisher,
		source:    EventSource{Service: service, Hostname: host},
		now:       time.Now,
	}
}

// Notify publishes the payload and returns the event id as the message id.
func (s *Sink) Notify(ctx context.Context, userID string, payload *notify.Payload) (notify.DeliveryResult, error) {
	if payload == nil {
		return notify.DeliveryResult{}, notify.ErrNilPayload
	}

	event := NewPackReadyEvent(userID, payload, s.source, s.now())
	if err := s.publisher.PublishPackReady(ctx, event); err != nil {
		return notify.DeliveryResult{}, fmt.Errorf("publishing pack event for %s: %w", userID, err)
	}
	return notify.DeliveryResult{
		Delivered: true,
		Channel:   "eventstream",
		MessageID: event.EventID,
	}, nil
}

// NewPackReadyEvent builds an event from a notification payload.
func NewPackReadyEvent(userID string, payload *notify.Payload, source EventSource, at time.Time) *PackReadyEvent {
	event := &PackReadyEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypePackReady,
		EventID:       uuid.NewString(),
		EmittedAt:     at.UTC(),
		Source:        source,
		UserID:        userID,
		Notification: Notification{
			Type:    payload.Type,
			Title:   payload.Title,
			Message: payload.Message,
		},
	}

	if v, ok := payload.Data[DataSessionID].(string); ok {
		event.Pack.SessionID = v
	}
	if v, ok := payload.Data[DataBreakdown].(study.Breakdown); ok {
		event.Pack.Breakdown = v
	}
	if v, ok := payload.Data[DataWeakTopics].([]string); ok {
		event.Pack.WeakTopics = v
	}
	if v, ok := payload.Data[DataItems].([]study.ItemRef); ok {
		event.Pack.Items = v
	}
	if v, ok := payload.Data[DataPreview].([]string); ok {
		event.Pack.Preview = v
	}
	return event
}
