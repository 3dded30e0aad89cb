package eventstream

import (
	"time"

	"github.com/papercomputeco/drills/pkg/study"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypePackReady is emitted after a daily pack session is created.
	EventTypePackReady = "drills.pack.ready"
)

// PackReadyEvent is a transport-neutral event payload for a generated
// daily pack.
type PackReadyEvent struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	EventID       string       `json:"event_id"`
	EmittedAt     time.Time    `json:"emitted_at"`
	Source        EventSource  `json:"source"`
	UserID        string       `json:"user_id"`
	Notification  Notification `json:"notification"`
	Pack          PackMeta     `json:"pack"`
}

// EventSource identifies the emitting service.
type EventSource struct {
	Service  string `json:"service"`
	Hostname string `json:"hostname,omitempty"`
}

// Notification carries the user-facing text of the event.
type Notification struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// PackMeta summarizes the generated pack.
type PackMeta struct {
	SessionID  string          `json:"session_id,omitempty"`
	Breakdown  study.Breakdown `json:"breakdown"`
	WeakTopics []string        `json:"weak_topics,omitempty"`
	Items      []study.ItemRef `json:"items,omitempty"`
	Preview    []string        `json:"preview,omitempty"`
}
