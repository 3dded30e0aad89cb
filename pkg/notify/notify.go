// Package notify defines the notification sink the scheduler hands finished
// daily packs to.
package notify

import (
	"context"
	"errors"
	"log/slog"
)

// PayloadTypeDailyPack marks a "your daily pack is ready" notification.
const PayloadTypeDailyPack = "daily_pack_ready"

// ErrNilPayload is returned when a sink is handed no payload.
var ErrNilPayload = errors.New("nil notification payload")

// Payload is a transport-neutral notification.
type Payload struct {
	Type    string         `json:"type"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// DeliveryResult reports what a sink did with a payload.
type DeliveryResult struct {
	Delivered bool   `json:"delivered"`
	Queued    bool   `json:"queued,omitempty"`
	Channel   string `json:"channel"`
	MessageID string `json:"messageId,omitempty"`
}

// Sink delivers notifications to users.
type Sink interface {
	Notify(ctx context.Context, userID string, payload *Payload) (DeliveryResult, error)
}

// NopSink drops every payload.
type NopSink struct{}

// Notify validates input and otherwise does nothing.
func (NopSink) Notify(_ context.Context, _ string, payload *Payload) (DeliveryResult, error) {
	if payload == nil {
		return DeliveryResult{}, ErrNilPayload
	}
	return DeliveryResult{Channel: "nop"}, nil
}

// LogSink writes every payload to a logger.
type LogSink struct {
	Logger *slog.Logger
}

// NewLogSink creates a sink that logs at info level.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{Logger: logger}
}

// Notify logs the payload.
func (s *LogSink) Notify(ctx context.Context, userID string, payload *Payload) (DeliveryResult, error) {
	if payload == nil {
		return DeliveryResult{}, ErrNilPayload
	}
	s.Logger.InfoContext(ctx, "notification",
		"user_id", userID,
		"type", payload.Type,
		"title", payload.Title,
		"message", payload.Message,
	)
	return DeliveryResult{Delivered: true, Channel: "log"}, nil
}
