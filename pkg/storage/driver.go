// Package storage defines the collaborator interfaces the scheduling engine
// reads from and writes to. Backends live in the inmemory, sqlite and
// postgres subpackages.
package storage

import (
	"context"
	"iter"
	"time"

	"github.com/papercomputeco/drills/pkg/study"
)

// ContentStore provides the review items a pack is composed from.
type ContentStore interface {
	// GetDueItems returns the user's items with dueAt <= asOf, ordered by
	// dueAt ascending then difficulty descending. An itemType of
	// study.ItemTypeAny matches both flashcards and MCQs.
	GetDueItems(ctx context.Context, userID string, itemType study.ItemType, limit int, asOf time.Time) ([]*study.ReviewItem, error)

	// GetItemsByTopics returns the user's items tagged with any of topics,
	// ordered by difficulty descending.
	GetItemsByTopics(ctx context.Context, userID string, topics []string, itemType study.ItemType, limit int) ([]*study.ReviewItem, error)

	// GetUnreviewedItems returns the user's items with reviewCount == 0,
	// newest first.
	GetUnreviewedItems(ctx context.Context, userID string, itemType study.ItemType, limit int) ([]*study.ReviewItem, error)

	// GetItem retrieves a single item. Returns *study.NotFoundError when
	// missing.
	GetItem(ctx context.Context, ref study.ItemRef) (*study.ReviewItem, error)

	// PersistItemState overwrites an item's review state.
	// Returns *study.NotFoundError when the item does not exist.
	PersistItemState(ctx context.Context, ref study.ItemRef, state study.ReviewState) error

	// CreateStudySet stores a study set together with its items. Returns
	// *study.ValidationError, and stores nothing, when the set id or any
	// item reference already exists.
	CreateStudySet(ctx context.Context, set *study.StudySet, items []*study.ReviewItem) error

	// DeleteStudySet removes a study set and every item that belongs to it.
	DeleteStudySet(ctx context.Context, studySetID string) error

	// ListUserIDs returns every user that owns at least one study set.
	ListUserIDs(ctx context.Context) ([]string, error)
}

// SessionStore persists study sessions.
type SessionStore interface {
	// CreateStudySession stores a new session.
	CreateStudySession(ctx context.Context, session *study.StudySession) error

	// FindActiveSessionToday returns the user's active session of the given
	// type started within [dayStart, dayEnd), or nil when there is none.
	FindActiveSessionToday(ctx context.Context, userID string, sessionType study.SessionType, dayStart, dayEnd time.Time) (*study.StudySession, error)

	// GetSession retrieves a session by id.
	GetSession(ctx context.Context, sessionID string) (*study.StudySession, error)

	// UpdateSession persists a session's progress and status.
	UpdateSession(ctx context.Context, session *study.StudySession) error

	// AbandonSessions marks the user's active sessions of the given type
	// started before the cutoff as abandoned, returning how many changed.
	AbandonSessions(ctx context.Context, userID string, sessionType study.SessionType, before time.Time) (int, error)

	// StartSession abandons the session owner's active sessions of the same
	// type started before abandonBefore and stores session, as one unit.
	// It returns how many sessions were abandoned.
	StartSession(ctx context.Context, session *study.StudySession, abandonBefore time.Time) (int, error)
}

// ResponseLog is the append-only log of graded responses.
type ResponseLog interface {
	// AppendResponse records a graded response.
	AppendResponse(ctx context.Context, resp *study.GradedResponse) error

	// QueryResponses yields the user's responses with timestamp >= since.
	// A non-empty topics restricts results to responses tagged with any of
	// them.
	QueryResponses(ctx context.Context, userID string, since time.Time, topics []string) iter.Seq2[*study.GradedResponse, error]
}

// TopicStore persists per-topic performance.
type TopicStore interface {
	// IncrementTopicCounters adds one attempt (and one correct attempt when
	// the response is correct) to each topic the response is tagged with.
	IncrementTopicCounters(ctx context.Context, resp *study.GradedResponse) error

	// UpsertTopicAccuracy writes the recomputed trailing accuracy of each
	// performance, creating rows that do not exist yet. Lifetime counters
	// of existing rows are left alone.
	UpsertTopicAccuracy(ctx context.Context, perfs []*study.TopicPerformance) error

	// ListTopicPerformance returns every topic the user has performance for.
	ListTopicPerformance(ctx context.Context, userID string) ([]*study.TopicPerformance, error)
}

// ReviewMutator computes the next state of an item from its stored state.
type ReviewMutator func(item study.ReviewItem) (study.ReviewItem, error)

// ReviewRecorder applies a graded response as one atomic unit.
type ReviewRecorder interface {
	// RecordReview loads the answered item, passes it to mutate, and within
	// the same transaction persists the returned state, appends resp,
	// increments the lifetime topic counters and, when resp.SessionID is
	// set, the session's progress. Either everything commits or nothing
	// does.
	//
	// resp.Topics is filled from the item when empty. Returns
	// *study.NotFoundError when the item (or session) does not exist or
	// belongs to another user.
	RecordReview(ctx context.Context, resp *study.GradedResponse, mutate ReviewMutator) (*study.ReviewItem, error)
}

// Driver bundles every store a backend provides.
type Driver interface {
	ContentStore
	SessionStore
	ResponseLog
	TopicStore
	ReviewRecorder

	// Close closes the store and releases any resources.
	Close() error
}
