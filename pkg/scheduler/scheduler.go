// Package scheduler orchestrates daily pack generation, response
// recording and nightly batch runs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/drills/pkg/eventstream"
	"github.com/papercomputeco/drills/pkg/notify"
	"github.com/papercomputeco/drills/pkg/pack"
	"github.com/papercomputeco/drills/pkg/sm2"
	"github.com/papercomputeco/drills/pkg/storage"
	"github.com/papercomputeco/drills/pkg/study"
	"github.com/papercomputeco/drills/pkg/userlock"
)

const (
	defaultConcurrency  = 4
	defaultUserTimeout  = 30 * time.Second
	defaultPreviewItems = 3
	maxBatchHistory     = 50
)

// Store is what the orchestrator needs from storage.
type Store interface {
	storage.ContentStore
	storage.SessionStore
	storage.ReviewRecorder
}

// Composer builds a user's pack.
type Composer interface {
	Compose(ctx context.Context, userID string) (*pack.Pack, error)
}

// Recalculator recomputes trailing topic accuracy.
type Recalculator interface {
	Recalculate(ctx context.Context, userID string, subset []string) ([]*study.TopicPerformance, error)
}

// Config is the configuration options for the orchestrator. Store and
// Composer are required; the rest default.
type Config struct {
	Store    Store
	Composer Composer

	// Tracker recomputes topic accuracy after a response when
	// RecalculateOnResponse is set, and for every user before a batch
	// generates their pack.
	Tracker               Recalculator
	RecalculateOnResponse bool

	// Sink receives a notification per generated pack (defaults to a
	// notify.NopSink).
	Sink notify.Sink

	// Locker serializes per-user generation (defaults to an in-process
	// locker).
	Locker userlock.Locker

	// Location decides calendar dates (defaults to UTC).
	Location *time.Location

	// RunAt is the nightly batch time as HH:MM in Location.
	RunAt string

	// Concurrency bounds the number of users a batch works on at once.
	Concurrency int

	// UserTimeout is the soft per-user deadline in a batch.
	UserTimeout time.Duration

	// PreviewItems is how many item references and prompts the
	// notification carries.
	PreviewItems int

	// Now is the orchestrator clock (defaults to time.Now).
	Now func() time.Time

	// Logger is the provided slog logger
	Logger *slog.Logger
}

// Orchestrator coordinates the engine components and the collaborators.
type Orchestrator struct {
	config Config
	store  Store
	engine *sm2.Engine
	logger *slog.Logger
	now    func() time.Time

	runsMu   sync.Mutex
	runs     map[string]*BatchRun
	runOrder []string
	inflight sync.WaitGroup

	loopMu   sync.Mutex
	loopStop chan struct{}
	loopDone chan struct{}
}

// New validates the config and creates an orchestrator. Nothing starts
// until Start is called.
func New(c Config) (*Orchestrator, error) {
	if c.Store == nil {
		return nil, errors.New("scheduler requires a store")
	}
	if c.Composer == nil {
		return nil, errors.New("scheduler requires a composer")
	}
	if c.RecalculateOnResponse && c.Tracker == nil {
		return nil, errors.New("scheduler requires a tracker to recalculate on response")
	}
	if c.Sink == nil {
		c.Sink = notify.NopSink{}
	}
	if c.Locker == nil {
		c.Locker = userlock.NewLocal()
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.UserTimeout <= 0 {
		c.UserTimeout = defaultUserTimeout
	}
	if c.PreviewItems < 0 {
		c.PreviewItems = 0
	} else if c.PreviewItems == 0 {
		c.PreviewItems = defaultPreviewItems
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.RunAt != "" {
		if _, _, err := ParseRunAt(c.RunAt); err != nil {
			return nil, err
		}
	}

	return &Orchestrator{
		config: c,
		store:  c.Store,
		engine: sm2.NewEngine(c.Now),
		logger: c.Logger,
		now:    c.Now,
		runs:   make(map[string]*BatchRun),
	}, nil
}

// Location is the timezone that defines the study day.
func (o *Orchestrator) Location() *time.Location {
	return o.config.Location
}

// DayBounds returns the start and end of t's calendar day in the
// orchestrator's location.
func (o *Orchestrator) DayBounds(t time.Time) (time.Time, time.Time) {
	local := t.In(o.config.Location)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, o.config.Location)
	return start, start.AddDate(0, 0, 1)
}

// GenerateDaily creates today's daily session for the user. Unless force
// is set, an active daily session from today makes the call a no-op. An
// empty pack is reported through the result status, not as an error.
func (o *Orchestrator) GenerateDaily(ctx context.Context, userID string, force bool) (*Result, error) {
	if userID == "" {
		return nil, &study.ValidationError{Field: "userId", Reason: "is required"}
	}

	unlock, err := o.config.Locker.Lock(ctx, "daily:"+userID)
	if err != nil {
		return nil, fmt.Errorf("locking user %s: %w", userID, err)
	}
	defer unlock()

	now := o.now()
	dayStart, dayEnd := o.DayBounds(now)

	existing, err := o.store.FindActiveSessionToday(ctx, userID, study.SessionTypeDaily, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("finding today's session for %s: %w", userID, err)
	}
	if existing != nil && !force {
		o.logger.Debug("daily pack already generated",
			"user_id", userID,
			"session_id", existing.SessionID,
		)
		return &Result{Status: StatusAlreadyGenerated, Session: existing}, nil
	}

	// Nothing is written until a non-empty pack exists, so a failed or
	// empty forced run leaves today's session active.
	p, err := o.config.Composer.Compose(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("composing pack for %s: %w", userID, err)
	}
	if p.Empty() {
		if _, err := o.store.AbandonSessions(ctx, userID, study.SessionTypeDaily, dayStart); err != nil {
			return nil, fmt.Errorf("abandoning stale sessions for %s: %w", userID, err)
		}
		o.logger.Info("no items available today", "user_id", userID)
		return &Result{Status: StatusEmpty, Pack: p}, nil
	}

	session := &study.StudySession{
		SessionID:   uuid.NewString(),
		UserID:      userID,
		SessionType: study.SessionTypeDaily,
		ItemsTotal:  len(p.Items),
		StartedAt:   now.UTC(),
		Status:      study.SessionStatusActive,
		Items:       p.Refs(),
		Breakdown:   p.Breakdown,
	}

	// Forcing replaces today's session; otherwise only earlier days are
	// closed out.
	cutoff := dayStart
	if force {
		cutoff = dayEnd
	}
	abandoned, err := o.store.StartSession(ctx, session, cutoff)
	if err != nil {
		return nil, fmt.Errorf("creating session for %s: %w", userID, err)
	}
	if abandoned > 0 {
		o.logger.Info("abandoned daily sessions",
			"user_id", userID,
			"count", abandoned,
			"forced", force,
		)
	}

	result := &Result{Status: StatusGenerated, Session: session, Pack: p}

	delivery, err := o.config.Sink.Notify(ctx, userID, o.payload(session, p))
	if err != nil {
		o.logger.Warn("failed to notify user",
			"user_id", userID,
			"session_id", session.SessionID,
			"error", err,
		)
	} else {
		result.Delivery = &delivery
	}

	o.logger.Info("generated daily pack",
		"user_id", userID,
		"session_id", session.SessionID,
		"items", session.ItemsTotal,
		"due", p.Breakdown.DueCount,
		"weak", p.Breakdown.WeakTopicCount,
		"new", p.Breakdown.NewCount,
	)
	return result, nil
}

func (o *Orchestrator) payload(session *study.StudySession, p *pack.Pack) *notify.Payload {
	n := min(o.config.PreviewItems, len(p.Items))
	refs := make([]study.ItemRef, 0, n)
	preview := make([]string, 0, n)
	for _, it := range p.Items[:n] {
		refs = append(refs, it.Ref())
		text := it.Prompt
		if text == "" {
			text = it.Ref().String()
		}
		preview = append(preview, text)
	}

	return &notify.Payload{
		Type:  notify.PayloadTypeDailyPack,
		Title: "Your daily study pack is ready",
		Message: fmt.Sprintf("%d items today: %d due, %d weak-topic, %d new",
			session.ItemsTotal, p.Breakdown.DueCount, p.Breakdown.WeakTopicCount, p.Breakdown.NewCount),
		Data: map[string]any{
			eventstream.DataSessionID:  session.SessionID,
			eventstream.DataBreakdown:  p.Breakdown,
			eventstream.DataWeakTopics: p.WeakTopics,
			eventstream.DataItems:      refs,
			eventstream.DataPreview:    preview,
		},
	}
}

// CompleteSession closes an active session with its final tallies.
func (o *Orchestrator) CompleteSession(ctx context.Context, sessionID string, itemsCompleted, itemsCorrect int) (*study.StudySession, error) {
	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	unlock, err := o.config.Locker.Lock(ctx, "daily:"+session.UserID)
	if err != nil {
		return nil, fmt.Errorf("locking user %s: %w", session.UserID, err)
	}
	defer unlock()

	// Re-read under the lock so a concurrent force does not get overwritten.
	session, err = o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := session.Complete(itemsCompleted, itemsCorrect, o.now().UTC()); err != nil {
		return nil, err
	}
	if err := o.store.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("updating session %s: %w", sessionID, err)
	}

	o.logger.Info("completed session",
		"user_id", session.UserID,
		"session_id", sessionID,
		"completed", itemsCompleted,
		"correct", itemsCorrect,
	)
	return session, nil
}

// RecordResponse applies a graded response to its item and records it.
// The item state, the response, the topic counters and the session
// progress commit together.
func (o *Orchestrator) RecordResponse(ctx context.Context, resp *study.GradedResponse) (*study.ReviewItem, error) {
	if resp == nil {
		return nil, &study.ValidationError{Field: "response", Reason: "is required"}
	}
	if err := resp.Validate(); err != nil {
		return nil, err
	}
	if resp.ResponseID == "" {
		resp.ResponseID = uuid.NewString()
	}
	if resp.Timestamp.IsZero() {
		resp.Timestamp = o.now()
	}
	resp.Timestamp = resp.Timestamp.UTC()
	resp.EaseRating = resp.EaseRating.OrDefault()

	item, err := o.store.RecordReview(ctx, resp, func(it study.ReviewItem) (study.ReviewItem, error) {
		return o.engine.Apply(it, resp)
	})
	if err != nil {
		return nil, err
	}

	o.logger.Debug("recorded response",
		"user_id", resp.UserID,
		"item", resp.Ref().String(),
		"correct", resp.IsCorrect,
		"interval_days", item.IntervalDays,
	)

	if o.config.RecalculateOnResponse && len(resp.Topics) > 0 {
		if _, err := o.config.Tracker.Recalculate(ctx, resp.UserID, resp.Topics); err != nil {
			o.logger.Warn("failed to recalculate topic accuracy",
				"user_id", resp.UserID,
				"error", err,
			)
		}
	}
	return item, nil
}

// ImportStudySet stores a study set and its items. Missing ids are
// generated and every item starts from the set's difficulty level.
func (o *Orchestrator) ImportStudySet(ctx context.Context, set *study.StudySet, items []*study.ReviewItem) error {
	if set == nil {
		return &study.ValidationError{Field: "studySet", Reason: "is required"}
	}
	if err := set.Validate(); err != nil {
		return err
	}

	now := o.now().UTC()
	if set.StudySetID == "" {
		set.StudySetID = uuid.NewString()
	}
	if set.CreatedAt.IsZero() {
		set.CreatedAt = now
	}

	for i, item := range items {
		if item == nil {
			return &study.ValidationError{Field: fmt.Sprintf("items[%d]", i), Reason: "is required"}
		}
		if !item.ItemType.Valid() {
			return &study.ValidationError{Field: fmt.Sprintf("items[%d].itemType", i), Reason: "must be flashcard or mcq"}
		}
		if item.ItemID == "" {
			item.ItemID = uuid.NewString()
		}
		item.UserID = set.UserID
		item.StudySetID = set.StudySetID
		item.Topics = set.Topics
		item.CreatedAt = now
		item.ReviewState = sm2.NewState(set.DifficultyLevel, now)
	}

	if err := o.store.CreateStudySet(ctx, set, items); err != nil {
		return fmt.Errorf("creating study set %s: %w", set.StudySetID, err)
	}

	o.logger.Info("imported study set",
		"user_id", set.UserID,
		"study_set_id", set.StudySetID,
		"items", len(items),
	)
	return nil
}

// DeleteStudySet removes a study set and all of its items.
func (o *Orchestrator) DeleteStudySet(ctx context.Context, studySetID string) error {
	if err := o.store.DeleteStudySet(ctx, studySetID); err != nil {
		return err
	}
	o.logger.Info("deleted study set", "study_set_id", studySetID)
	return nil
}
