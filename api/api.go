package api

import (
	"errors"
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/drills/pkg/scheduler"
)

// Server is the API server for the drills scheduling engine
type Server struct {
	config    Config
	scheduler *scheduler.Orchestrator
	logger    *slog.Logger
	app       *fiber.App
}

// NewServer creates a new API server.
// The orchestrator is injected so the nightly loop and the API share
// locks, storage and batch history.
func NewServer(config Config, orchestrator *scheduler.Orchestrator, logger *slog.Logger) (*Server, error) {
	if orchestrator == nil {
		return nil, errors.New("scheduler is required")
	}
	if config.Composer == nil {
		return nil, errors.New("composer is required")
	}
	if config.Topics == nil {
		return nil, errors.New("topic service is required")
	}
	if config.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          fallbackErrorHandler,
	})

	s := &Server{
		config:    config,
		scheduler: orchestrator,
		logger:    logger,
		app:       app,
	}

	app.Get("/ping", s.handlePing)

	v1 := app.Group("/v1")
	v1.Post("/users/:userId/daily-pack", s.handleGenerateDaily)
	v1.Get("/users/:userId/daily-pack/preview", s.handlePreview)
	v1.Get("/users/:userId/weak-topics", s.handleWeakTopics)
	v1.Post("/users/:userId/topics/recalculate", s.handleRecalculate)
	v1.Post("/responses", s.handleRecordResponse)
	v1.Get("/sessions/:sessionId", s.handleGetSession)
	v1.Post("/sessions/:sessionId/complete", s.handleCompleteSession)
	v1.Post("/study-sets", s.handleCreateStudySet)
	v1.Delete("/study-sets/:studySetId", s.handleDeleteStudySet)
	v1.Post("/batches", s.handleStartBatch)
	v1.Get("/batches", s.handleListBatches)
	v1.Get("/batches/:runId", s.handleGetBatch)

	if config.MCPHandler != nil {
		mcpHandler := adaptor.HTTPHandler(config.MCPHandler)
		app.All("/mcp", mcpHandler)
		app.All("/mcp/*", mcpHandler)
	}

	return s, nil
}

// App exposes the fiber app, mainly for app.Test in tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
