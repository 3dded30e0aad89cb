// Package inmemory provides a storage.Driver backed by in-process maps.
package inmemory

import (
	"context"
	"iter"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/papercomputeco/drills/pkg/storage"
	"github.com/papercomputeco/drills/pkg/study"
)

type topicKey struct {
	userID string
	topic  string
}

// Driver implements storage.Driver using in-memory maps.
type Driver struct {
	// mu guards every map below. RecordReview holds the write lock for its
	// whole read-modify-write, which makes it atomic.
	mu sync.RWMutex

	items     map[study.ItemRef]*study.ReviewItem
	sets      map[string]*study.StudySet
	sessions  map[string]*study.StudySession
	topics    map[topicKey]*study.TopicPerformance
	responses []*study.GradedResponse
}

// NewDriver creates a new in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		items:    make(map[study.ItemRef]*study.ReviewItem),
		sets:     make(map[string]*study.StudySet),
		sessions: make(map[string]*study.StudySession),
		topics:   make(map[topicKey]*study.TopicPerformance),
	}
}

// GetDueItems returns items due at or before asOf, earliest first.
func (d *Driver) GetDueItems(_ context.Context, userID string, itemType study.ItemType, limit int, asOf time.Time) ([]*study.ReviewItem, error) {
	return d.selectItems(userID, itemType, limit, storage.CompareDue, func(i *study.ReviewItem) bool {
		return !i.DueAt.After(asOf)
	}), nil
}

// GetItemsByTopics returns items tagged with any of topics, hardest first.
func (d *Driver) GetItemsByTopics(_ context.Context, userID string, topics []string, itemType study.ItemType, limit int) ([]*study.ReviewItem, error) {
	if len(topics) == 0 {
		return nil, nil
	}
	return d.selectItems(userID, itemType, limit, storage.CompareHardest, func(i *study.ReviewItem) bool {
		return i.HasAnyTopic(topics)
	}), nil
}

// GetUnreviewedItems returns never-reviewed items, newest first.
func (d *Driver) GetUnreviewedItems(_ context.Context, userID string, itemType study.ItemType, limit int) ([]*study.ReviewItem, error) {
	return d.selectItems(userID, itemType, limit, storage.CompareNewest, func(i *study.ReviewItem) bool {
		return i.ReviewCount == 0
	}), nil
}

func (d *Driver) selectItems(userID string, itemType study.ItemType, limit int, order func(a, b *study.ReviewItem) int, keep func(*study.ReviewItem) bool) []*study.ReviewItem {
	if limit <= 0 {
		return nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*study.ReviewItem
	for _, item := range d.items {
		if item.UserID != userID || !storage.MatchesType(item, itemType) || !keep(item) {
			continue
		}
		out = append(out, cloneItem(item))
	}

	slices.SortFunc(out, order)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// GetItem retrieves an item by reference.
func (d *Driver) GetItem(_ context.Context, ref study.ItemRef) (*study.ReviewItem, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	item, ok := d.items[ref]
	if !ok {
		return nil, &study.NotFoundError{Kind: "item", ID: ref.String()}
	}
	return cloneItem(item), nil
}

// PersistItemState overwrites an item's review state.
func (d *Driver) PersistItemState(_ context.Context, ref study.ItemRef, state study.ReviewState) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	item, ok := d.items[ref]
	if !ok {
		return &study.NotFoundError{Kind: "item", ID: ref.String()}
	}
	item.ReviewState = cloneState(state)
	return nil
}

// CreateStudySet stores a study set with its items.
func (d *Driver) CreateStudySet(_ context.Context, set *study.StudySet, items []*study.ReviewItem) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sets[set.StudySetID]; ok {
		return &study.ValidationError{Field: "studySetId", Reason: "already exists: " + set.StudySetID}
	}
	seen := make(map[study.ItemRef]struct{}, len(items))
	for _, item := range items {
		ref := item.Ref()
		_, dup := seen[ref]
		if _, ok := d.items[ref]; ok || dup {
			return &study.ValidationError{Field: "itemId", Reason: "already exists: " + ref.String()}
		}
		seen[ref] = struct{}{}
	}

	s := *set
	s.Topics = slices.Clone(set.Topics)
	d.sets[set.StudySetID] = &s

	for _, item := range items {
		d.items[item.Ref()] = cloneItem(item)
	}
	return nil
}

// DeleteStudySet removes a study set and its items.
func (d *Driver) DeleteStudySet(_ context.Context, studySetID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sets[studySetID]; !ok {
		return &study.NotFoundError{Kind: "study set", ID: studySetID}
	}
	delete(d.sets, studySetID)

	for ref, item := range d.items {
		if item.StudySetID == studySetID {
			delete(d.items, ref)
		}
	}
	return nil
}

// ListUserIDs returns every user owning a study set, sorted.
func (d *Driver) ListUserIDs(_ context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var users []string
	for _, s := range d.sets {
		if !slices.Contains(users, s.UserID) {
			users = append(users, s.UserID)
		}
	}
	slices.Sort(users)
	return users, nil
}

// CreateStudySession stores a new session.
func (d *Driver) CreateStudySession(_ context.Context, session *study.StudySession) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sessions[session.SessionID]; ok {
		return errSessionExists(session.SessionID)
	}
	d.sessions[session.SessionID] = cloneSession(session)
	return nil
}

func errSessionExists(id string) error {
	return &study.ValidationError{Field: "sessionId", Reason: "already exists: " + id}
}

// FindActiveSessionToday returns the most recently started active session
// of the type within [dayStart, dayEnd).
func (d *Driver) FindActiveSessionToday(_ context.Context, userID string, sessionType study.SessionType, dayStart, dayEnd time.Time) (*study.StudySession, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var found *study.StudySession
	for _, s := range d.sessions {
		if s.UserID != userID || s.SessionType != sessionType || !s.Active() {
			continue
		}
		if s.StartedAt.Before(dayStart) || !s.StartedAt.Before(dayEnd) {
			continue
		}
		if found == nil || s.StartedAt.After(found.StartedAt) {
			found = s
		}
	}
	if found == nil {
		return nil, nil
	}
	return cloneSession(found), nil
}

// GetSession retrieves a session by id.
func (d *Driver) GetSession(_ context.Context, sessionID string) (*study.StudySession, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.sessions[sessionID]
	if !ok {
		return nil, &study.NotFoundError{Kind: "session", ID: sessionID}
	}
	return cloneSession(s), nil
}

// UpdateSession persists a session's progress and status.
func (d *Driver) UpdateSession(_ context.Context, session *study.StudySession) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sessions[session.SessionID]; !ok {
		return &study.NotFoundError{Kind: "session", ID: session.SessionID}
	}
	d.sessions[session.SessionID] = cloneSession(session)
	return nil
}

// AbandonSessions marks stale active sessions as abandoned.
func (d *Driver) AbandonSessions(_ context.Context, userID string, sessionType study.SessionType, before time.Time) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.abandonLocked(userID, sessionType, before), nil
}

// StartSession abandons older active sessions and stores session under one
// write lock.
func (d *Driver) StartSession(_ context.Context, session *study.StudySession, abandonBefore time.Time) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sessions[session.SessionID]; ok {
		return 0, errSessionExists(session.SessionID)
	}
	n := d.abandonLocked(session.UserID, session.SessionType, abandonBefore)
	d.sessions[session.SessionID] = cloneSession(session)
	return n, nil
}

func (d *Driver) abandonLocked(userID string, sessionType study.SessionType, before time.Time) int {
	n := 0
	for _, s := range d.sessions {
		if s.UserID == userID && s.SessionType == sessionType && s.Active() && s.StartedAt.Before(before) {
			s.Status = study.SessionStatusAbandoned
			n++
		}
	}
	return n
}

// AppendResponse records a graded response.
func (d *Driver) AppendResponse(_ context.Context, resp *study.GradedResponse) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.responses = append(d.responses, cloneResponse(resp))
	return nil
}

// QueryResponses yields the user's responses since the given time in
// timestamp order.
func (d *Driver) QueryResponses(_ context.Context, userID string, since time.Time, topics []string) iter.Seq2[*study.GradedResponse, error] {
	d.mu.RLock()
	var matched []*study.GradedResponse
	for _, r := range d.responses {
		if r.UserID != userID || r.Timestamp.Before(since) {
			continue
		}
		if len(topics) > 0 && !hasAnyTopic(r.Topics, topics) {
			continue
		}
		matched = append(matched, cloneResponse(r))
	}
	d.mu.RUnlock()

	slices.SortStableFunc(matched, func(a, b *study.GradedResponse) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	return func(yield func(*study.GradedResponse, error) bool) {
		for _, r := range matched {
			if !yield(r, nil) {
				return
			}
		}
	}
}

// IncrementTopicCounters bumps the lifetime counters of each response topic.
func (d *Driver) IncrementTopicCounters(_ context.Context, resp *study.GradedResponse) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.incrementTopicsLocked(resp)
	return nil
}

func (d *Driver) incrementTopicsLocked(resp *study.GradedResponse) {
	for _, topic := range storage.UniqueTopics(resp.Topics) {
		key := topicKey{userID: resp.UserID, topic: topic}
		perf, ok := d.topics[key]
		if !ok {
			perf = &study.TopicPerformance{UserID: resp.UserID, Topic: topic}
			d.topics[key] = perf
		}
		perf.TotalAttempts++
		if resp.IsCorrect {
			perf.CorrectAttempts++
		}
	}
}

// UpsertTopicAccuracy writes recomputed accuracies.
func (d *Driver) UpsertTopicAccuracy(_ context.Context, perfs []*study.TopicPerformance) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, p := range perfs {
		key := topicKey{userID: p.UserID, topic: p.Topic}
		existing, ok := d.topics[key]
		if !ok {
			existing = &study.TopicPerformance{UserID: p.UserID, Topic: p.Topic}
			d.topics[key] = existing
		}
		existing.Accuracy7Day = p.Accuracy7Day
		existing.LastCalculatedAt = cloneTime(p.LastCalculatedAt)
	}
	return nil
}

// ListTopicPerformance returns the user's topics sorted by name.
func (d *Driver) ListTopicPerformance(_ context.Context, userID string) ([]*study.TopicPerformance, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*study.TopicPerformance
	for key, p := range d.topics {
		if key.userID != userID {
			continue
		}
		c := *p
		c.LastCalculatedAt = cloneTime(p.LastCalculatedAt)
		out = append(out, &c)
	}
	slices.SortFunc(out, func(a, b *study.TopicPerformance) int {
		return strings.Compare(a.Topic, b.Topic)
	})
	return out, nil
}

// RecordReview applies a graded response atomically under the write lock.
func (d *Driver) RecordReview(_ context.Context, resp *study.GradedResponse, mutate storage.ReviewMutator) (*study.ReviewItem, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ref := resp.Ref()
	stored, ok := d.items[ref]
	if !ok || stored.UserID != resp.UserID {
		return nil, &study.NotFoundError{Kind: "item", ID: ref.String()}
	}

	var session *study.StudySession
	if resp.SessionID != "" {
		s, ok := d.sessions[resp.SessionID]
		if !ok {
			return nil, &study.NotFoundError{Kind: "session", ID: resp.SessionID}
		}
		session = cloneSession(s)
		if err := storage.ApplySessionProgress(session, resp); err != nil {
			return nil, err
		}
	}

	next, err := mutate(*cloneItem(stored))
	if err != nil {
		return nil, err
	}

	if len(resp.Topics) == 0 {
		resp.Topics = slices.Clone(stored.Topics)
	}

	// Nothing below can fail, so the writes commit together.
	stored.ReviewState = cloneState(next.ReviewState)
	d.responses = append(d.responses, cloneResponse(resp))
	d.incrementTopicsLocked(resp)
	if session != nil {
		d.sessions[session.SessionID] = session
	}

	return cloneItem(stored), nil
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}

func hasAnyTopic(have, want []string) bool {
	for _, t := range have {
		if slices.Contains(want, t) {
			return true
		}
	}
	return false
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneState(s study.ReviewState) study.ReviewState {
	s.LastReviewedAt = cloneTime(s.LastReviewedAt)
	return s
}

func cloneItem(i *study.ReviewItem) *study.ReviewItem {
	c := *i
	c.Topics = slices.Clone(i.Topics)
	c.ReviewState = cloneState(i.ReviewState)
	return &c
}

func cloneSession(s *study.StudySession) *study.StudySession {
	c := *s
	c.Items = slices.Clone(s.Items)
	c.CompletedAt = cloneTime(s.CompletedAt)
	return &c
}

func cloneResponse(r *study.GradedResponse) *study.GradedResponse {
	c := *r
	c.Topics = slices.Clone(r.Topics)
	return &c
}
