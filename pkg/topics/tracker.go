// Package topics tracks per-user, per-topic accuracy over a trailing window
// of graded responses and surfaces weak topics.
package topics

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/papercomputeco/drills/pkg/storage"
	"github.com/papercomputeco/drills/pkg/study"
	"github.com/papercomputeco/drills/pkg/userlock"
)

// Default tracker policy.
const (
	DefaultWindow        = 7 * 24 * time.Hour
	DefaultWeakThreshold = 70.0
)

// Store is what the tracker needs from storage.
type Store interface {
	storage.ResponseLog
	storage.TopicStore
}

// Tracker recomputes trailing topic accuracy and ranks weak topics.
type Tracker struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
	locker userlock.Locker

	// Window is how far back Recalculate looks. Responses exactly at the
	// window edge are included.
	Window time.Duration

	// Threshold is the accuracy (0-100) below which a topic is weak.
	Threshold float64
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock sets the tracker's clock.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithLocker sets the locker that serializes a user's recalculations.
func WithLocker(l userlock.Locker) Option {
	return func(t *Tracker) {
		if l != nil {
			t.locker = l
		}
	}
}

// WithWindow overrides the trailing window.
func WithWindow(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.Window = d
		}
	}
}

// WithThreshold overrides the weak-topic accuracy threshold.
func WithThreshold(pct float64) Option {
	return func(t *Tracker) {
		if pct > 0 {
			t.Threshold = pct
		}
	}
}

// NewTracker creates a tracker over the given store.
func NewTracker(store Store, logger *slog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		store:     store,
		logger:    logger,
		now:       time.Now,
		locker:    userlock.NewLocal(),
		Window:    DefaultWindow,
		Threshold: DefaultWeakThreshold,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Ingest increments the lifetime counters for a response's topics.
// Responses recorded through storage.ReviewRecorder are already counted and
// must not be ingested again.
func (t *Tracker) Ingest(ctx context.Context, resp *study.GradedResponse) error {
	if resp.UserID == "" {
		return &study.ValidationError{Field: "userId", Reason: "is required"}
	}
	if len(resp.Topics) == 0 {
		return nil
	}
	return t.store.IncrementTopicCounters(ctx, resp)
}

type tally struct {
	attempts int
	correct  int
}

// Recalculate recomputes the trailing accuracy of the user's topics from
// the response log and upserts it. A nil subset recomputes every topic seen
// in the window; a non-nil subset must not be empty. Topics without
// responses in the window are not touched and keep their previous value.
//
// A user's recalculations run one at a time, so a snapshot is never
// overwritten by an older one.
func (t *Tracker) Recalculate(ctx context.Context, userID string, subset []string) ([]*study.TopicPerformance, error) {
	if subset != nil {
		if err := study.ValidateTopics(subset); err != nil {
			return nil, err
		}
	}

	unlock, err := t.locker.Lock(ctx, "topics:"+userID)
	if err != nil {
		return nil, fmt.Errorf("locking topics for %s: %w", userID, err)
	}
	defer unlock()

	now := t.now()
	since := now.Add(-t.Window)

	// The log is drained before any write so that single-connection
	// backends are never asked to write while a read is open.
	tallies := make(map[string]*tally)
	for resp, err := range t.store.QueryResponses(ctx, userID, since, subset) {
		if err != nil {
			return nil, fmt.Errorf("reading responses for %s: %w", userID, err)
		}
		for _, topic := range storage.UniqueTopics(resp.Topics) {
			if subset != nil && !slices.Contains(subset, topic) {
				continue
			}
			tl, ok := tallies[topic]
			if !ok {
				tl = &tally{}
				tallies[topic] = tl
			}
			tl.attempts++
			if resp.IsCorrect {
				tl.correct++
			}
		}
	}

	perfs := make([]*study.TopicPerformance, 0, len(tallies))
	for topic, tl := range tallies {
		perfs = append(perfs, &study.TopicPerformance{
			UserID:           userID,
			Topic:            topic,
			Accuracy7Day:     accuracy(tl.correct, tl.attempts),
			LastCalculatedAt: &now,
		})
	}
	slices.SortFunc(perfs, func(a, b *study.TopicPerformance) int {
		return cmp.Compare(a.Topic, b.Topic)
	})

	if err := t.store.UpsertTopicAccuracy(ctx, perfs); err != nil {
		return nil, fmt.Errorf("saving topic accuracy for %s: %w", userID, err)
	}

	t.logger.Debug("recalculated topic accuracy",
		"user_id", userID,
		"topics", len(perfs),
	)

	// Return the stored rows so lifetime counters are included.
	all, err := t.store.ListTopicPerformance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing topic performance for %s: %w", userID, err)
	}
	return slices.DeleteFunc(all, func(p *study.TopicPerformance) bool {
		_, ok := tallies[p.Topic]
		return !ok
	}), nil
}

// WeakTopics returns the user's weak topics: at least minAttempts lifetime
// attempts and trailing accuracy below the threshold. They are ordered by
// accuracy ascending, then attempts descending, then name, and truncated to
// limit.
func (t *Tracker) WeakTopics(ctx context.Context, userID string, limit, minAttempts int) ([]*study.TopicPerformance, error) {
	if limit <= 0 {
		return nil, nil
	}

	all, err := t.store.ListTopicPerformance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing topic performance for %s: %w", userID, err)
	}
	return RankWeak(all, t.Threshold, limit, minAttempts), nil
}

// RankWeak filters and orders weak topics from a set of performances.
func RankWeak(perfs []*study.TopicPerformance, threshold float64, limit, minAttempts int) []*study.TopicPerformance {
	weak := make([]*study.TopicPerformance, 0, len(perfs))
	for _, p := range perfs {
		if p.TotalAttempts >= minAttempts && p.Accuracy7Day < threshold {
			weak = append(weak, p)
		}
	}

	slices.SortStableFunc(weak, func(a, b *study.TopicPerformance) int {
		if c := cmp.Compare(a.Accuracy7Day, b.Accuracy7Day); c != 0 {
			return c
		}
		if c := cmp.Compare(b.TotalAttempts, a.TotalAttempts); c != 0 {
			return c
		}
		return cmp.Compare(a.Topic, b.Topic)
	})

	if len(weak) > limit {
		weak = weak[:limit]
	}
	return weak
}

// Names returns the topic names of perfs in order.
func Names(perfs []*study.TopicPerformance) []string {
	names := make([]string, 0, len(perfs))
	for _, p := range perfs {
		names = append(names, p.Topic)
	}
	return names
}

func accuracy(correct, attempts int) float64 {
	if attempts == 0 {
		return 0
	}
	return 100 * float64(correct) / float64(attempts)
}
