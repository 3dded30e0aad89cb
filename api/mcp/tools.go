package mcp

import (
	"context"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/drills/pkg/pack"
	"github.com/papercomputeco/drills/pkg/study"
)

var (
	previewToolName    = "daily_pack_preview"
	previewDescription = "Preview the study items a learner would get in today's daily pack without creating a session. Items are grouped by bucket: due for review, weak topic reinforcement, and new material."

	weakTopicsToolName    = "weak_topics"
	weakTopicsDescription = "List a learner's weak topics, weakest first, with their trailing 7 day accuracy and lifetime attempt counts."

	generateToolName    = "generate_daily_pack"
	generateDescription = "Create today's daily study session for a learner. Returns the existing session if one was already generated today unless force is set."
)

// UserInput identifies the learner a tool acts on.
type UserInput struct {
	UserID string `json:"user_id" jsonschema:"the learner's user id"`
}

// WeakTopicsInput is the input of the weak_topics tool.
type WeakTopicsInput struct {
	UserID      string `json:"user_id" jsonschema:"the learner's user id"`
	Limit       int    `json:"limit,omitempty" jsonschema:"maximum number of topics to return"`
	MinAttempts int    `json:"min_attempts,omitempty" jsonschema:"ignore topics with fewer lifetime attempts"`
}

// GenerateInput is the input of the generate_daily_pack tool.
type GenerateInput struct {
	UserID string `json:"user_id" jsonschema:"the learner's user id"`
	Force  bool   `json:"force,omitempty" jsonschema:"abandon today's session and compose a fresh one"`
}

// PackItem is one item of a pack as shown to agents.
type PackItem struct {
	Ref    string   `json:"ref"`
	Bucket string   `json:"bucket"`
	Prompt string   `json:"prompt,omitempty"`
	Topics []string `json:"topics"`
	DueAt  string   `json:"due_at"`
}

// PackOutput is the output of daily_pack_preview and generate_daily_pack.
type PackOutput struct {
	UserID     string     `json:"user_id"`
	Status     string     `json:"status,omitempty"`
	SessionID  string     `json:"session_id,omitempty"`
	Due        int        `json:"due"`
	Weak       int        `json:"weak"`
	New        int        `json:"new"`
	WeakTopics []string   `json:"weak_topics"`
	Items      []PackItem `json:"items"`
}

// TopicOutput is one weak topic.
type TopicOutput struct {
	Topic    string  `json:"topic"`
	Accuracy float64 `json:"accuracy"`
	Attempts int     `json:"attempts"`
	Correct  int     `json:"correct"`
}

// WeakTopicsOutput is the output of the weak_topics tool.
type WeakTopicsOutput struct {
	UserID string        `json:"user_id"`
	Topics []TopicOutput `json:"topics"`
	Count  int           `json:"count"`
}

func (s *Server) handlePreview(ctx context.Context, _ *mcp.CallToolRequest, input UserInput) (*mcp.CallToolResult, PackOutput, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return toolError("user_id is required"), PackOutput{}, nil
	}

	s.config.Logger.Debug("MCP pack preview request", "user_id", input.UserID)

	p, err := s.config.Composer.Compose(ctx, input.UserID)
	if err != nil {
		s.config.Logger.Error("failed to compose pack", "user_id", input.UserID, "error", err)
		return toolError("Failed to compose pack: %v", err), PackOutput{}, nil
	}

	output := buildPackOutput(p)
	return toolResult(output), output, nil
}

func (s *Server) handleWeakTopics(ctx context.Context, _ *mcp.CallToolRequest, input WeakTopicsInput) (*mcp.CallToolResult, WeakTopicsOutput, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return toolError("user_id is required"), WeakTopicsOutput{}, nil
	}

	limit := input.Limit
	if limit <= 0 {
		limit = s.config.WeakTopicLimit
	}
	minAttempts := input.MinAttempts
	if minAttempts <= 0 {
		minAttempts = s.config.WeakMinAttempts
	}

	perfs, err := s.config.Topics.WeakTopics(ctx, input.UserID, limit, minAttempts)
	if err != nil {
		s.config.Logger.Error("failed to rank weak topics", "user_id", input.UserID, "error", err)
		return toolError("Failed to rank weak topics: %v", err), WeakTopicsOutput{}, nil
	}

	output := WeakTopicsOutput{UserID: input.UserID, Topics: make([]TopicOutput, 0, len(perfs))}
	for _, p := range perfs {
		output.Topics = append(output.Topics, TopicOutput{
			Topic:    p.Topic,
			Accuracy: p.Accuracy7Day,
			Attempts: p.TotalAttempts,
			Correct:  p.CorrectAttempts,
		})
	}
	output.Count = len(output.Topics)

	return toolResult(output), output, nil
}

func (s *Server) handleGenerate(ctx context.Context, _ *mcp.CallToolRequest, input GenerateInput) (*mcp.CallToolResult, PackOutput, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return toolError("user_id is required"), PackOutput{}, nil
	}

	result, err := s.config.Generator.GenerateDaily(ctx, input.UserID, input.Force)
	if err != nil {
		s.config.Logger.Error("failed to generate daily pack", "user_id", input.UserID, "error", err)
		return toolError("Failed to generate daily pack: %v", err), PackOutput{}, nil
	}

	output := PackOutput{UserID: input.UserID, WeakTopics: []string{}, Items: []PackItem{}}
	if result.Pack != nil {
		output = buildPackOutput(result.Pack)
	}
	output.Status = string(result.Status)
	if result.Session != nil {
		output.SessionID = result.Session.SessionID
		output.Due = result.Session.Breakdown.DueCount
		output.Weak = result.Session.Breakdown.WeakTopicCount
		output.New = result.Session.Breakdown.NewCount
	}

	return toolResult(output), output, nil
}

func buildPackOutput(p *pack.Pack) PackOutput {
	output := PackOutput{
		UserID:     p.UserID,
		Due:        p.Breakdown.DueCount,
		Weak:       p.Breakdown.WeakTopicCount,
		New:        p.Breakdown.NewCount,
		WeakTopics: append([]string{}, p.WeakTopics...),
		Items:      make([]PackItem, 0, len(p.Items)),
	}
	for _, it := range p.Items {
		output.Items = append(output.Items, buildPackItem(it.ReviewItem, it.Bucket))
	}
	return output
}

func buildPackItem(item *study.ReviewItem, bucket pack.Bucket) PackItem {
	return PackItem{
		Ref:    item.Ref().String(),
		Bucket: string(bucket),
		Prompt: item.Prompt,
		Topics: item.Topics,
		DueAt:  item.DueAt.UTC().Format(time.RFC3339),
	}
}
