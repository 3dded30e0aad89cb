// Package demo seeds a user with sample study sets and a short answer
// history so every part of the scheduler has something to work on.
package demo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/papercomputeco/drills/pkg/study"
)

// ErrAlreadySeeded is returned when the user already has the demo sets and
// overwrite was not requested.
var ErrAlreadySeeded = errors.New("demo data already exists")

// Importer is the part of the orchestrator the seeder drives. Seeding goes
// through the orchestrator so items start from real scheduling state and
// answers move through the same path as live ones.
type Importer interface {
	ImportStudySet(ctx context.Context, set *study.StudySet, items []*study.ReviewItem) error
	RecordResponse(ctx context.Context, resp *study.GradedResponse) (*study.ReviewItem, error)
	DeleteStudySet(ctx context.Context, studySetID string) error
}

// ItemLookup checks whether a demo item is already present.
type ItemLookup interface {
	GetItem(ctx context.Context, ref study.ItemRef) (*study.ReviewItem, error)
}

// Summary counts what Seed created.
type Summary struct {
	StudySets int
	Items     int
	Responses int
}

type seedItem struct {
	id     string
	t      study.ItemType
	prompt string
	// answers replays one answer per day ending yesterday; true is correct.
	answers []bool
}

type seedSet struct {
	suffix     string
	title      string
	topics     []string
	difficulty int
	items      []seedItem
}

// Seed creates the demo study sets for userID and replays their answer
// history up to now. With overwrite the existing demo sets are removed
// first; without it ErrAlreadySeeded is returned when they exist.
func Seed(ctx context.Context, importer Importer, lookup ItemLookup, userID string, now time.Time, overwrite bool) (Summary, error) {
	var summary Summary
	if userID == "" {
		return summary, &study.ValidationError{Field: "userId", Reason: "is required"}
	}

	sets := demoSets()
	exists, err := seeded(ctx, lookup, userID, sets)
	if err != nil {
		return summary, err
	}
	if exists {
		if !overwrite {
			return summary, ErrAlreadySeeded
		}
		for _, s := range sets {
			err := importer.DeleteStudySet(ctx, setID(userID, s.suffix))
			if err != nil && !study.IsNotFound(err) {
				return summary, fmt.Errorf("remove demo study set: %w", err)
			}
		}
	}

	for _, s := range sets {
		set := &study.StudySet{
			StudySetID:      setID(userID, s.suffix),
			UserID:          userID,
			Title:           s.title,
			Topics:          s.topics,
			DifficultyLevel: s.difficulty,
			CreatedAt:       now.AddDate(0, 0, -14),
		}
		items := make([]*study.ReviewItem, 0, len(s.items))
		for _, it := range s.items {
			items = append(items, &study.ReviewItem{
				ItemID:   itemID(userID, it.id),
				ItemType: it.t,
				Prompt:   it.prompt,
			})
		}
		if err := importer.ImportStudySet(ctx, set, items); err != nil {
			return summary, fmt.Errorf("import %s: %w", s.title, err)
		}
		summary.StudySets++
		summary.Items += len(items)

		for _, it := range s.items {
			n, err := replay(ctx, importer, userID, it, now)
			summary.Responses += n
			if err != nil {
				return summary, err
			}
		}
	}

	return summary, nil
}

func replay(ctx context.Context, importer Importer, userID string, it seedItem, now time.Time) (int, error) {
	recorded := 0
	start := now.AddDate(0, 0, -len(it.answers))
	for i, correct := range it.answers {
		rating := study.EaseRating(3)
		if correct && i%2 == 1 {
			rating = 4
		} else if !correct {
			rating = 1
		}
		_, err := importer.RecordResponse(ctx, &study.GradedResponse{
			UserID:     userID,
			ItemID:     itemID(userID, it.id),
			ItemType:   it.t,
			IsCorrect:  correct,
			EaseRating: rating,
			Timestamp:  start.AddDate(0, 0, i),
		})
		if err != nil {
			return recorded, fmt.Errorf("record demo answer for %s: %w", it.id, err)
		}
		recorded++
	}
	return recorded, nil
}

func seeded(ctx context.Context, lookup ItemLookup, userID string, sets []seedSet) (bool, error) {
	first := sets[0].items[0]
	_, err := lookup.GetItem(ctx, study.ItemRef{ItemID: itemID(userID, first.id), ItemType: first.t})
	switch {
	case err == nil:
		return true, nil
	case study.IsNotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("check demo data: %w", err)
	}
}

func setID(userID, suffix string) string {
	return "demo-" + userID + "-" + suffix
}

func itemID(userID, id string) string {
	return "demo-" + userID + "-" + id
}

func demoSets() []seedSet {
	return []seedSet{
		goConcurrencySet(),
		sqlSet(),
		networkingSet(),
	}
}

func goConcurrencySet() seedSet {
	return seedSet{
		suffix:     "go",
		title:      "Go concurrency",
		topics:     []string{"go", "concurrency"},
		difficulty: 2,
		items: []seedItem{
			{id: "go-1", t: study.ItemTypeFlashcard, prompt: "What happens when you send on a closed channel?", answers: []bool{true, true, true}},
			{id: "go-2", t: study.ItemTypeFlashcard, prompt: "What does sync.WaitGroup.Go do?", answers: []bool{true, true}},
			{id: "go-3", t: study.ItemTypeMCQ, prompt: "Which select case runs when several are ready?", answers: []bool{false, true, true}},
			{id: "go-4", t: study.ItemTypeMCQ, prompt: "What does errgroup.SetLimit bound?"},
			{id: "go-5", t: study.ItemTypeFlashcard, prompt: "When is a context's Done channel closed?"},
		},
	}
}

func sqlSet() seedSet {
	return seedSet{
		suffix:     "sql",
		title:      "SQL indexing",
		topics:     []string{"sql", "databases"},
		difficulty: 3,
		items: []seedItem{
			{id: "sql-1", t: study.ItemTypeFlashcard, prompt: "When does a composite index help a query?", answers: []bool{true, false, true}},
			{id: "sql-2", t: study.ItemTypeMCQ, prompt: "Which isolation level prevents phantom reads?", answers: []bool{false, true}},
			{id: "sql-3", t: study.ItemTypeMCQ, prompt: "What does EXPLAIN ANALYZE add over EXPLAIN?", answers: []bool{true}},
			{id: "sql-4", t: study.ItemTypeFlashcard, prompt: "What is a covering index?"},
		},
	}
}

func networkingSet() seedSet {
	return seedSet{
		suffix:     "net",
		title:      "TCP and TLS",
		topics:     []string{"networking"},
		difficulty: 4,
		items: []seedItem{
			{id: "net-1", t: study.ItemTypeFlashcard, prompt: "Why does TIME_WAIT last 2*MSL?", answers: []bool{false, false, true}},
			{id: "net-2", t: study.ItemTypeMCQ, prompt: "Which TLS 1.3 message carries the server certificate?", answers: []bool{false, false}},
			{id: "net-3", t: study.ItemTypeMCQ, prompt: "What does Nagle's algorithm batch?", answers: []bool{true, false}},
			{id: "net-4", t: study.ItemTypeFlashcard, prompt: "What is head-of-line blocking?"},
			{id: "net-5", t: study.ItemTypeMCQ, prompt: "Which flag starts a TCP handshake?"},
		},
	}
}
