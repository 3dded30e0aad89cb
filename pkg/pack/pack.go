// Package pack composes a user's daily study pack from due reviews,
// weak-topic reinforcement and unseen content.
package pack

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/papercomputeco/drills/pkg/storage"
	"github.com/papercomputeco/drills/pkg/study"
)

// Bucket names the stage a pack item was selected by.
type Bucket string

const (
	BucketDue  Bucket = "due"
	BucketWeak Bucket = "weak"
	BucketNew  Bucket = "new"
)

// Item is a review item together with the bucket that selected it.
type Item struct {
	*study.ReviewItem
	Bucket Bucket `json:"bucket"`
}

// Pack is a composed daily pack.
type Pack struct {
	UserID     string          `json:"userId"`
	Items      []Item          `json:"items"`
	Breakdown  study.Breakdown `json:"breakdown"`
	WeakTopics []string        `json:"weakTopics"`
	ComposedAt time.Time       `json:"composedAt"`
}

// Empty reports whether the pack has no items.
func (p *Pack) Empty() bool {
	return len(p.Items) == 0
}

// Refs returns the item refs in pack order.
func (p *Pack) Refs() []study.ItemRef {
	refs := make([]study.ItemRef, 0, len(p.Items))
	for _, it := range p.Items {
		refs = append(refs, it.Ref())
	}
	return refs
}

// WeakTopicSource ranks a user's weak topics.
type WeakTopicSource interface {
	WeakTopics(ctx context.Context, userID string, limit, minAttempts int) ([]*study.TopicPerformance, error)
}

// Composer builds daily packs. It is safe for concurrent use.
type Composer struct {
	content storage.ContentStore
	weak    WeakTopicSource
	logger  *slog.Logger
	now     func() time.Time
	policy  atomic.Pointer[Policy]

	randMu sync.Mutex
	rand   *rand.Rand
}

// Option configures a Composer.
type Option func(*Composer)

// WithRand sets the random source used for tie-breaks.
func WithRand(r *rand.Rand) Option {
	return func(c *Composer) {
		c.rand = r
	}
}

// WithClock sets the composer's clock.
func WithClock(now func() time.Time) Option {
	return func(c *Composer) {
		c.now = now
	}
}

// WithPolicy sets the initial policy.
func WithPolicy(p Policy) Option {
	return func(c *Composer) {
		c.policy.Store(&p)
	}
}

// NewComposer creates a composer with DefaultPolicy unless overridden.
func NewComposer(content storage.ContentStore, weak WeakTopicSource, logger *slog.Logger, opts ...Option) *Composer {
	c := &Composer{
		content: content,
		weak:    weak,
		logger:  logger,
		now:     time.Now,
	}
	def := DefaultPolicy()
	c.policy.Store(&def)
	for _, opt := range opts {
		opt(c)
	}
	if c.rand == nil {
		seed := uint64(time.Now().UnixNano())
		c.rand = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return c
}

// Policy returns the policy the next compose will use.
func (c *Composer) Policy() Policy {
	return *c.policy.Load()
}

// SetPolicy replaces the policy for subsequent composes.
func (c *Composer) SetPolicy(p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	c.policy.Store(&p)
	return nil
}

// Compose builds the user's pack as of now. Nothing is persisted; an
// empty pack is a valid result.
func (c *Composer) Compose(ctx context.Context, userID string) (*Pack, error) {
	if userID == "" {
		return nil, &study.ValidationError{Field: "userId", Reason: "is required"}
	}

	policy := c.Policy()
	now := c.now()

	due, err := c.dueBucket(ctx, userID, policy, now)
	if err != nil {
		return nil, err
	}

	weakPerfs, err := c.weak.WeakTopics(ctx, userID, policy.WeakTopicLimit, policy.WeakMinAttempts)
	if err != nil {
		return nil, fmt.Errorf("loading weak topics for %s: %w", userID, err)
	}
	weakTopics := make([]string, 0, len(weakPerfs))
	for _, p := range weakPerfs {
		weakTopics = append(weakTopics, p.Topic)
	}

	var weak []*study.ReviewItem
	if len(weakTopics) > 0 {
		weak, err = c.typedBucket(policy, policy.WeakFlashcards, policy.WeakMCQs, hardestFirst,
			func(t study.ItemType, limit int) ([]*study.ReviewItem, error) {
				return c.content.GetItemsByTopics(ctx, userID, weakTopics, t, limit)
			})
		if err != nil {
			return nil, fmt.Errorf("loading weak-topic items for %s: %w", userID, err)
		}
	}

	fresh, err := c.typedBucket(policy, policy.NewFlashcards, policy.NewMCQs, newestFirst,
		func(t study.ItemType, limit int) ([]*study.ReviewItem, error) {
			return c.content.GetUnreviewedItems(ctx, userID, t, limit)
		})
	if err != nil {
		return nil, fmt.Errorf("loading new items for %s: %w", userID, err)
	}

	p := &Pack{
		UserID:     userID,
		Items:      merge(policy.MaxItems, bucketed(BucketDue, due), bucketed(BucketWeak, weak), bucketed(BucketNew, fresh)),
		WeakTopics: weakTopics,
		ComposedAt: now,
	}
	for _, it := range p.Items {
		switch it.Bucket {
		case BucketDue:
			p.Breakdown.DueCount++
		case BucketWeak:
			p.Breakdown.WeakTopicCount++
		case BucketNew:
			p.Breakdown.NewCount++
		}
	}

	c.logger.Debug("composed pack",
		"user_id", userID,
		"due", p.Breakdown.DueCount,
		"weak", p.Breakdown.WeakTopicCount,
		"new", p.Breakdown.NewCount,
		"weak_topics", len(weakTopics),
	)
	return p, nil
}

// dueBucket is deterministic: the store order decides which items make the
// cap and the two typed lists are merged in that same order.
func (c *Composer) dueBucket(ctx context.Context, userID string, policy Policy, now time.Time) ([]*study.ReviewItem, error) {
	flashcards, err := c.content.GetDueItems(ctx, userID, study.ItemTypeFlashcard, policy.DueFlashcards, now)
	if err != nil {
		return nil, fmt.Errorf("loading due flashcards for %s: %w", userID, err)
	}
	mcqs, err := c.content.GetDueItems(ctx, userID, study.ItemTypeMCQ, policy.DueMCQs, now)
	if err != nil {
		return nil, fmt.Errorf("loading due mcqs for %s: %w", userID, err)
	}
	due := append(flashcards, mcqs...)
	slices.SortStableFunc(due, storage.CompareDue)
	return due, nil
}

type fetchFunc func(t study.ItemType, limit int) ([]*study.ReviewItem, error)

// typedBucket fetches an oversampled pool per item type, breaks ties in
// order randomly and keeps the per-type caps.
func (c *Composer) typedBucket(policy Policy, flashcards, mcqs int, order func(a, b *study.ReviewItem) int, fetch fetchFunc) ([]*study.ReviewItem, error) {
	var out []*study.ReviewItem
	for _, quota := range []struct {
		t     study.ItemType
		limit int
	}{
		{study.ItemTypeFlashcard, flashcards},
		{study.ItemTypeMCQ, mcqs},
	} {
		if quota.limit <= 0 {
			continue
		}
		pool, err := fetch(quota.t, quota.limit*policy.Oversample)
		if err != nil {
			return nil, err
		}
		pool = c.shuffleTies(pool, order)
		if len(pool) > quota.limit {
			pool = pool[:quota.limit]
		}
		out = append(out, pool...)
	}
	return c.shuffleTies(out, order), nil
}

// shuffleTies orders items by key with a random order among equal keys.
func (c *Composer) shuffleTies(items []*study.ReviewItem, order func(a, b *study.ReviewItem) int) []*study.ReviewItem {
	c.randMu.Lock()
	c.rand.Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
	c.randMu.Unlock()

	slices.SortStableFunc(items, order)
	return items
}

func hardestFirst(a, b *study.ReviewItem) int {
	return cmp.Compare(b.Difficulty, a.Difficulty)
}

func newestFirst(a, b *study.ReviewItem) int {
	return b.CreatedAt.Compare(a.CreatedAt)
}

func bucketed(b Bucket, items []*study.ReviewItem) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		out = append(out, Item{ReviewItem: it, Bucket: b})
	}
	return out
}

// merge concatenates the buckets in order, keeps the first occurrence of
// each item and caps the result.
func merge(limit int, buckets ...[]Item) []Item {
	seen := make(map[study.ItemRef]struct{})
	var out []Item
	for _, bucket := range buckets {
		for _, it := range bucket {
			if len(out) >= limit {
				return out
			}
			ref := it.Ref()
			if _, ok := seen[ref]; ok {
				continue
			}
			seen[ref] = struct{}{}
			out = append(out, it)
		}
	}
	return out
}
