// Package api provides the HTTP API for generating daily packs, recording
// answers and inspecting topic performance.
package api

import (
	"context"
	"net/http"

	"github.com/papercomputeco/drills/pkg/pack"
	"github.com/papercomputeco/drills/pkg/storage"
	"github.com/papercomputeco/drills/pkg/study"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// Composer builds packs for the preview endpoint without persisting.
	Composer PackComposer

	// Topics serves weak topic ranking and recalculation.
	Topics TopicService

	// Sessions reads study sessions.
	Sessions storage.SessionStore

	// WeakTopicLimit and WeakMinAttempts are the weak-topics endpoint
	// defaults when the query omits them.
	WeakTopicLimit  int
	WeakMinAttempts int

	// MCPHandler is mounted at /mcp when set.
	MCPHandler http.Handler
}

// PackComposer composes a pack for a user.
type PackComposer interface {
	Compose(ctx context.Context, userID string) (*pack.Pack, error)
}

// TopicService ranks and recomputes topic accuracy.
type TopicService interface {
	WeakTopics(ctx context.Context, userID string, limit, minAttempts int) ([]*study.TopicPerformance, error)
	Recalculate(ctx context.Context, userID string, subset []string) ([]*study.TopicPerformance, error)
}
