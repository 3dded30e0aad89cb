package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/drills/pkg/scheduler"
	"github.com/papercomputeco/drills/pkg/study"
)

// WeakTopicsResponse lists a user's weak topics, weakest first.
type WeakTopicsResponse struct {
	UserID string                    `json:"userId"`
	Topics []*study.TopicPerformance `json:"topics"`
}

// RecalculateRequest optionally restricts recalculation to some topics.
type RecalculateRequest struct {
	Topics []string `json:"topics,omitempty"`
}

// CompleteSessionRequest carries a session's final tallies.
type CompleteSessionRequest struct {
	ItemsCompleted int `json:"itemsCompleted"`
	ItemsCorrect   int `json:"itemsCorrect"`
}

// CreateStudySetRequest is a study set together with its items.
type CreateStudySetRequest struct {
	study.StudySet
	Items []*study.ReviewItem `json:"items"`
}

// CreateStudySetResponse echoes the stored set.
type CreateStudySetResponse struct {
	StudySet *study.StudySet `json:"studySet"`
	ItemIDs  []string        `json:"itemIds"`
}

// BatchAccepted is returned when a batch has been started.
type BatchAccepted struct {
	RunID  string                `json:"runId"`
	Status scheduler.BatchStatus `json:"status"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleGenerateDaily handles POST /v1/users/:userId/daily-pack.
// Query parameters:
//   - force (optional, default false): abandon today's session and regenerate
func (s *Server) handleGenerateDaily(c *fiber.Ctx) error {
	force, err := queryBool(c, "force")
	if err != nil {
		return badRequest(c, err.Error())
	}

	result, err := s.scheduler.GenerateDaily(c.UserContext(), c.Params("userId"), force)
	if err != nil {
		return s.fail(c, err)
	}

	status := fiber.StatusOK
	if result.Status == scheduler.StatusGenerated {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(result)
}

// handlePreview composes a pack without creating a session or notifying.
func (s *Server) handlePreview(c *fiber.Ctx) error {
	p, err := s.config.Composer.Compose(c.UserContext(), c.Params("userId"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(p)
}

// handleWeakTopics handles GET /v1/users/:userId/weak-topics.
// Query parameters:
//   - limit (optional): maximum topics to return
//   - minAttempts (optional): ignore topics with fewer lifetime attempts
func (s *Server) handleWeakTopics(c *fiber.Ctx) error {
	limit, err := queryInt(c, "limit", s.config.WeakTopicLimit)
	if err != nil {
		return badRequest(c, err.Error())
	}
	minAttempts, err := queryInt(c, "minAttempts", s.config.WeakMinAttempts)
	if err != nil {
		return badRequest(c, err.Error())
	}

	userID := c.Params("userId")
	perfs, err := s.config.Topics.WeakTopics(c.UserContext(), userID, limit, minAttempts)
	if err != nil {
		return s.fail(c, err)
	}
	if perfs == nil {
		perfs = []*study.TopicPerformance{}
	}
	return c.JSON(WeakTopicsResponse{UserID: userID, Topics: perfs})
}

// handleRecalculate recomputes trailing accuracy for all or some topics.
func (s *Server) handleRecalculate(c *fiber.Ctx) error {
	var req RecalculateRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
	}

	userID := c.Params("userId")
	perfs, err := s.config.Topics.Recalculate(c.UserContext(), userID, req.Topics)
	if err != nil {
		return s.fail(c, err)
	}
	if perfs == nil {
		perfs = []*study.TopicPerformance{}
	}
	return c.JSON(WeakTopicsResponse{UserID: userID, Topics: perfs})
}

// handleRecordResponse applies a graded response and returns the item's
// new review state.
func (s *Server) handleRecordResponse(c *fiber.Ctx) error {
	var resp study.GradedResponse
	if err := c.BodyParser(&resp); err != nil {
		return badRequest(c, "invalid request body")
	}

	item, err := s.scheduler.RecordResponse(c.UserContext(), &resp)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(item)
}

func (s *Server) handleGetSession(c *fiber.Ctx) error {
	session, err := s.config.Sessions.GetSession(c.UserContext(), c.Params("sessionId"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(session)
}

func (s *Server) handleCompleteSession(c *fiber.Ctx) error {
	var req CompleteSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	session, err := s.scheduler.CompleteSession(c.UserContext(), c.Params("sessionId"), req.ItemsCompleted, req.ItemsCorrect)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(session)
}

func (s *Server) handleCreateStudySet(c *fiber.Ctx) error {
	var req CreateStudySetRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	set := req.StudySet
	if err := s.scheduler.ImportStudySet(c.UserContext(), &set, req.Items); err != nil {
		return s.fail(c, err)
	}

	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		ids[i] = item.ItemID
	}
	return c.Status(fiber.StatusCreated).JSON(CreateStudySetResponse{StudySet: &set, ItemIDs: ids})
}

func (s *Server) handleDeleteStudySet(c *fiber.Ctx) error {
	if err := s.scheduler.DeleteStudySet(c.UserContext(), c.Params("studySetId")); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleStartBatch starts a batch over every user and returns immediately.
// The batch keeps running after the request completes.
func (s *Server) handleStartBatch(c *fiber.Ctx) error {
	force, err := queryBool(c, "force")
	if err != nil {
		return badRequest(c, err.Error())
	}

	run := s.scheduler.StartBatch(c.UserContext(), force)
	return c.Status(fiber.StatusAccepted).JSON(BatchAccepted{RunID: run.ID(), Status: run.Status()})
}

func (s *Server) handleGetBatch(c *fiber.Ctx) error {
	run, ok := s.scheduler.Batch(c.Params("runId"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "batch not found"})
	}
	return c.JSON(run.Report())
}

// handleListBatches returns the retained batch reports, newest first.
func (s *Server) handleListBatches(c *fiber.Ctx) error {
	runs := s.scheduler.Batches()
	reports := make([]scheduler.BatchReport, len(runs))
	for i, run := range runs {
		reports[i] = run.Report()
	}
	return c.JSON(map[string]any{
		"count":   len(reports),
		"batches": reports,
	})
}

func queryBool(c *fiber.Ctx, key string) (bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &study.ValidationError{Field: key, Reason: "must be a boolean"}
	}
	return b, nil
}

func queryInt(c *fiber.Ctx, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &study.ValidationError{Field: key, Reason: "must be a non-negative integer"}
	}
	return n, nil
}
