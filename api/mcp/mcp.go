// Package mcp provides an MCP (Model Context Protocol) server exposing the
// daily pack and weak topic tools to agents.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/drills/pkg/pack"
	"github.com/papercomputeco/drills/pkg/scheduler"
	"github.com/papercomputeco/drills/pkg/study"
	"github.com/papercomputeco/drills/pkg/utils"
)

// Composer builds a pack without persisting it.
type Composer interface {
	Compose(ctx context.Context, userID string) (*pack.Pack, error)
}

// WeakTopicRanker ranks a user's weak topics.
type WeakTopicRanker interface {
	WeakTopics(ctx context.Context, userID string, limit, minAttempts int) ([]*study.TopicPerformance, error)
}

// Generator creates a user's daily session.
type Generator interface {
	GenerateDaily(ctx context.Context, userID string, force bool) (*scheduler.Result, error)
}

type Config struct {
	// Composer backs the daily_pack_preview tool
	Composer Composer

	// Topics backs the weak_topics tool
	Topics WeakTopicRanker

	// Generator backs the generate_daily_pack tool
	Generator Generator

	// WeakTopicLimit and WeakMinAttempts are used when a weak_topics call
	// leaves them unset.
	WeakTopicLimit  int
	WeakMinAttempts int

	// Noop for empty MCP server
	Noop bool

	// Logger is the provided slog logger
	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the drills tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "drills",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if !c.Noop {
		if c.Composer == nil {
			return nil, errors.New("composer is required")
		}
		if c.Topics == nil {
			return nil, errors.New("topic ranker is required")
		}
		if c.Generator == nil {
			return nil, errors.New("generator is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        previewToolName,
			Description: previewDescription,
		}, s.handlePreview)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        weakTopicsToolName,
			Description: weakTopicsDescription,
		}, s.handleWeakTopics)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        generateToolName,
			Description: generateDescription,
		}, s.handleGenerate)
	}

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// MCPServer returns the underlying server, e.g. to connect an in-memory
// transport.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}

func toolResult(output any) *mcp.CallToolResult {
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return toolError("Failed to serialize results: %v", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}
}
