package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/gomega"

	"github.com/papercomputeco/drills/pkg/logger"
	"github.com/papercomputeco/drills/pkg/notify"
	"github.com/papercomputeco/drills/pkg/pack"
	"github.com/papercomputeco/drills/pkg/scheduler"
	"github.com/papercomputeco/drills/pkg/storage/inmemory"
	"github.com/papercomputeco/drills/pkg/storage/storagetest"
	"github.com/papercomputeco/drills/pkg/study"
	"github.com/papercomputeco/drills/pkg/topics"
)

type captureSink struct {
	mu       sync.Mutex
	payloads map[string][]*notify.Payload
	err      error
}

func newCaptureSink() *captureSink {
	return &captureSink{payloads: make(map[string][]*notify.Payload)}
}

func (s *captureSink) Notify(_ context.Context, userID string, p *notify.Payload) (notify.DeliveryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads[userID] = append(s.payloads[userID], p)
	if s.err != nil {
		return notify.DeliveryResult{}, s.err
	}
	return notify.DeliveryResult{Delivered: true, Channel: "test"}, nil
}

func (s *captureSink) count(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads[userID])
}

// flakyStore fails content queries for one user.
type flakyStore struct {
	*inmemory.Driver
	failUser string
}

var errStoreDown = errors.New("store unavailable")

func (f *flakyStore) GetDueItems(ctx context.Context, userID string, t study.ItemType, limit int, asOf time.Time) ([]*study.ReviewItem, error) {
	if userID == f.failUser {
		return nil, errStoreDown
	}
	return f.Driver.GetDueItems(ctx, userID, t, limit, asOf)
}

// slowComposer blocks for one user until its context is done.
type slowComposer struct {
	scheduler.Composer
	slowUser string
}

func (s *slowComposer) Compose(ctx context.Context, userID string) (*pack.Pack, error) {
	if userID == s.slowUser {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.Composer.Compose(ctx, userID)
}

type fixture struct {
	store    *flakyStore
	tracker  *topics.Tracker
	composer *pack.Composer
	sink     *captureSink
	now      time.Time
	mu       sync.Mutex
}

func newFixture() *fixture {
	f := &fixture{
		store: &flakyStore{Driver: inmemory.NewDriver()},
		sink:  newCaptureSink(),
		now:   storagetest.Epoch,
	}
	f.tracker = topics.NewTracker(f.store, logger.Nop(), topics.WithClock(f.clock))
	f.composer = pack.NewComposer(f.store, f.tracker, logger.Nop(), pack.WithClock(f.clock))
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fixture) config() scheduler.Config {
	return scheduler.Config{
		Store:    f.store,
		Composer: f.composer,
		Tracker:  f.tracker,
		Sink:     f.sink,
		Now:      f.clock,
		Logger:   logger.Nop(),
	}
}

func (f *fixture) orchestrator(mutate ...func(*scheduler.Config)) *scheduler.Orchestrator {
	c := f.config()
	for _, m := range mutate {
		m(&c)
	}
	o, err := scheduler.New(c)
	Expect(err).NotTo(HaveOccurred())
	return o
}

// seed gives userID n due flashcards tagged with topic.
func (f *fixture) seed(userID string, n int, topic string) []*study.ReviewItem {
	items := make([]*study.ReviewItem, 0, n)
	for i := range n {
		items = append(items, storagetest.Item(userID, userID+"-set", userID+"-"+string(rune('a'+i)), study.ItemTypeFlashcard, []string{topic}))
	}
	Expect(f.store.CreateStudySet(context.Background(), storagetest.Set(userID, userID+"-set", topic), items)).To(Succeed())
	return items
}
