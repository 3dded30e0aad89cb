// Package storagetest holds the behavior every storage.Driver must share.
// Backend test suites call DescribeDriver with a constructor for their
// driver.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/drills/pkg/storage"
	"github.com/papercomputeco/drills/pkg/study"
)

// Epoch is the fixed "now" used by the shared specs.
var Epoch = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// Item builds a review item owned by userID in setID.
func Item(userID, setID, id string, t study.ItemType, topics []string, mutate ...func(*study.ReviewItem)) *study.ReviewItem {
	item := &study.ReviewItem{
		ItemID:     id,
		ItemType:   t,
		UserID:     userID,
		StudySetID: setID,
		Topics:     topics,
		Prompt:     "prompt " + id,
		CreatedAt:  Epoch.Add(-48 * time.Hour),
		ReviewState: study.ReviewState{
			Difficulty:   study.DefaultDifficulty,
			IntervalDays: study.DefaultIntervalDays,
			EaseFactor:   study.DefaultEaseFactor,
			DueAt:        Epoch,
		},
	}
	for _, m := range mutate {
		m(item)
	}
	return item
}

// Set builds a study set.
func Set(userID, setID string, topics ...string) *study.StudySet {
	return &study.StudySet{
		StudySetID:      setID,
		UserID:          userID,
		Title:           "set " + setID,
		Topics:          topics,
		DifficultyLevel: study.DefaultDifficulty,
		CreatedAt:       Epoch.Add(-72 * time.Hour),
	}
}

func ids(items []*study.ReviewItem) []string {
	out := make([]string, 0, len(items))
	for _, i := range items {
		out = append(out, i.ItemID)
	}
	return out
}

// DescribeDriver registers the shared driver specs. newDriver is called
// before each spec; the returned driver is closed after it.
func DescribeDriver(newDriver func() storage.Driver) {
	var (
		ctx    context.Context
		driver storage.Driver
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = newDriver()
	})

	AfterEach(func() {
		if driver != nil {
			Expect(driver.Close()).To(Succeed())
		}
	})

	seed := func(items ...*study.ReviewItem) {
		GinkgoHelper()
		Expect(driver.CreateStudySet(ctx, Set("u1", "set-1", "cells", "genetics"), items)).To(Succeed())
	}

	Describe("content queries", func() {
		It("returns due items earliest first, harder first on ties", func() {
			seed(
				Item("u1", "set-1", "a", study.ItemTypeFlashcard, []string{"cells"}, func(i *study.ReviewItem) {
					i.DueAt = Epoch.Add(-1 * time.Hour)
				}),
				Item("u1", "set-1", "b", study.ItemTypeFlashcard, []string{"cells"}, func(i *study.ReviewItem) {
					i.DueAt = Epoch.Add(-3 * time.Hour)
				}),
				Item("u1", "set-1", "c", study.ItemTypeFlashcard, []string{"cells"}, func(i *study.ReviewItem) {
					i.DueAt = Epoch.Add(-1 * time.Hour)
					i.Difficulty = 4
				}),
				Item("u1", "set-1", "future", study.ItemTypeFlashcard, []string{"cells"}, func(i *study.ReviewItem) {
					i.DueAt = Epoch.Add(time.Hour)
				}),
				Item("u1", "set-1", "q", study.ItemTypeMCQ, []string{"cells"}),
			)

			items, err := driver.GetDueItems(ctx, "u1", study.ItemTypeFlashcard, 10, Epoch)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(items)).To(Equal([]string{"b", "c", "a"}))

			both, err := driver.GetDueItems(ctx, "u1", study.ItemTypeAny, 10, Epoch)
			Expect(err).NotTo(HaveOccurred())
			Expect(both).To(HaveLen(4))

			limited, err := driver.GetDueItems(ctx, "u1", study.ItemTypeFlashcard, 2, Epoch)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(limited)).To(Equal([]string{"b", "c"}))
		})

		It("does not leak another user's items", func() {
			seed(Item("u1", "set-1", "a", study.ItemTypeFlashcard, []string{"cells"}))
			Expect(driver.CreateStudySet(ctx, Set("u2", "set-2", "cells"), []*study.ReviewItem{
				Item("u2", "set-2", "z", study.ItemTypeFlashcard, []string{"cells"}),
			})).To(Succeed())

			items, err := driver.GetDueItems(ctx, "u2", study.ItemTypeAny, 10, Epoch)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(items)).To(Equal([]string{"z"}))

			users, err := driver.ListUserIDs(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(users).To(Equal([]string{"u1", "u2"}))
		})

		It("filters by topic, hardest first", func() {
			seed(
				Item("u1", "set-1", "a", study.ItemTypeFlashcard, []string{"cells"}),
				Item("u1", "set-1", "b", study.ItemTypeFlashcard, []string{"genetics"}, func(i *study.ReviewItem) {
					i.Difficulty = 5
				}),
				Item("u1", "set-1", "c", study.ItemTypeFlashcard, []string{"cells", "genetics"}, func(i *study.ReviewItem) {
					i.Difficulty = 3
				}),
			)

			items, err := driver.GetItemsByTopics(ctx, "u1", []string{"genetics"}, study.ItemTypeFlashcard, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(items)).To(Equal([]string{"b", "c"}))
			Expect(items[1].Topics).To(ConsistOf("cells", "genetics"))

			none, err := driver.GetItemsByTopics(ctx, "u1", nil, study.ItemTypeFlashcard, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(none).To(BeEmpty())
		})

		It("returns unreviewed items newest first", func() {
			seed(
				Item("u1", "set-1", "old", study.ItemTypeMCQ, []string{"cells"}),
				Item("u1", "set-1", "new", study.ItemTypeMCQ, []string{"cells"}, func(i *study.ReviewItem) {
					i.CreatedAt = Epoch.Add(-time.Hour)
				}),
				Item("u1", "set-1", "seen", study.ItemTypeMCQ, []string{"cells"}, func(i *study.ReviewItem) {
					i.ReviewCount = 2
				}),
			)

			items, err := driver.GetUnreviewedItems(ctx, "u1", study.ItemTypeMCQ, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(items)).To(Equal([]string{"new", "old"}))
		})
	})

	Describe("item state", func() {
		It("persists review state", func() {
			seed(Item("u1", "set-1", "a", study.ItemTypeFlashcard, []string{"cells"}))

			reviewed := Epoch
			state := study.ReviewState{
				Difficulty:     1,
				IntervalDays:   6,
				EaseFactor:     2.36,
				DueAt:          Epoch.AddDate(0, 0, 6),
				LastReviewedAt: &reviewed,
				ReviewCount:    2,
			}
			ref := study.ItemRef{ItemID: "a", ItemType: study.ItemTypeFlashcard}
			Expect(driver.PersistItemState(ctx, ref, state)).To(Succeed())

			item, err := driver.GetItem(ctx, ref)
			Expect(err).NotTo(HaveOccurred())
			Expect(item.IntervalDays).To(Equal(6))
			Expect(item.EaseFactor).To(Equal(2.36))
			Expect(item.DueAt.Equal(state.DueAt)).To(BeTrue())
			Expect(item.LastReviewedAt).NotTo(BeNil())
			Expect(item.LastReviewedAt.Equal(reviewed)).To(BeTrue())
		})

		It("reports missing items as not found", func() {
			ref := study.ItemRef{ItemID: "missing", ItemType: study.ItemTypeMCQ}
			Expect(study.IsNotFound(driver.PersistItemState(ctx, ref, study.ReviewState{}))).To(BeTrue())

			_, err := driver.GetItem(ctx, ref)
			Expect(study.IsNotFound(err)).To(BeTrue())
		})

		It("rejects duplicate item ids without touching the owner", func() {
			seed(Item("u1", "set-1", "card-1", study.ItemTypeFlashcard, []string{"cells"}))

			err := driver.CreateStudySet(ctx, Set("u2", "set-2", "cells"), []*study.ReviewItem{
				Item("u2", "set-2", "card-1", study.ItemTypeFlashcard, []string{"cells"}),
			})
			Expect(study.IsValidation(err)).To(BeTrue())

			item, err := driver.GetItem(ctx, study.ItemRef{ItemID: "card-1", ItemType: study.ItemTypeFlashcard})
			Expect(err).NotTo(HaveOccurred())
			Expect(item.UserID).To(Equal("u1"))

			due, err := driver.GetDueItems(ctx, "u1", study.ItemTypeAny, 10, Epoch)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(due)).To(Equal([]string{"card-1"}))

			users, err := driver.ListUserIDs(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(users).To(Equal([]string{"u1"}))
		})

		It("allows the same id for a different item type", func() {
			seed(Item("u1", "set-1", "card-1", study.ItemTypeFlashcard, []string{"cells"}))
			Expect(driver.CreateStudySet(ctx, Set("u2", "set-2", "cells"), []*study.ReviewItem{
				Item("u2", "set-2", "card-1", study.ItemTypeMCQ, []string{"cells"}),
			})).To(Succeed())
		})

		It("rejects a duplicate study set id", func() {
			seed(Item("u1", "set-1", "a", study.ItemTypeFlashcard, []string{"cells"}))

			err := driver.CreateStudySet(ctx, Set("u2", "set-1", "cells"), []*study.ReviewItem{
				Item("u2", "set-1", "b", study.ItemTypeFlashcard, []string{"cells"}),
			})
			Expect(study.IsValidation(err)).To(BeTrue())

			_, err = driver.GetItem(ctx, study.ItemRef{ItemID: "b", ItemType: study.ItemTypeFlashcard})
			Expect(study.IsNotFound(err)).To(BeTrue())
		})

		It("removes items with their study set", func() {
			seed(Item("u1", "set-1", "a", study.ItemTypeFlashcard, []string{"cells"}))
			Expect(driver.DeleteStudySet(ctx, "set-1")).To(Succeed())

			_, err := driver.GetItem(ctx, study.ItemRef{ItemID: "a", ItemType: study.ItemTypeFlashcard})
			Expect(study.IsNotFound(err)).To(BeTrue())
			Expect(study.IsNotFound(driver.DeleteStudySet(ctx, "set-1"))).To(BeTrue())
		})
	})

	Describe("RecordReview", func() {
		var ref study.ItemRef

		BeforeEach(func() {
			seed(Item("u1", "set-1", "a", study.ItemTypeFlashcard, []string{"cells", "genetics"}))
			ref = study.ItemRef{ItemID: "a", ItemType: study.ItemTypeFlashcard}
		})

		response := func(correct bool) *study.GradedResponse {
			return &study.GradedResponse{
				ResponseID: fmt.Sprintf("r-%d", time.Now().UnixNano()),
				UserID:     "u1",
				ItemID:     "a",
				ItemType:   study.ItemTypeFlashcard,
				IsCorrect:  correct,
				EaseRating: 3,
				Timestamp:  Epoch,
			}
		}

		It("commits state, response and topic counters together", func() {
			resp := response(true)
			item, err := driver.RecordReview(ctx, resp, func(i study.ReviewItem) (study.ReviewItem, error) {
				i.ReviewCount++
				i.IntervalDays = 6
				return i, nil
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(item.ReviewCount).To(Equal(1))
			Expect(resp.Topics).To(ConsistOf("cells", "genetics"))

			stored, err := driver.GetItem(ctx, ref)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.IntervalDays).To(Equal(6))

			var logged []*study.GradedResponse
			for r, err := range driver.QueryResponses(ctx, "u1", Epoch.Add(-time.Hour), nil) {
				Expect(err).NotTo(HaveOccurred())
				logged = append(logged, r)
			}
			Expect(logged).To(HaveLen(1))
			Expect(logged[0].Topics).To(ConsistOf("cells", "genetics"))

			perfs, err := driver.ListTopicPerformance(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(perfs).To(HaveLen(2))
			Expect(perfs[0].Topic).To(Equal("cells"))
			Expect(perfs[0].TotalAttempts).To(Equal(1))
			Expect(perfs[0].CorrectAttempts).To(Equal(1))
		})

		It("writes nothing when the mutation fails", func() {
			boom := errors.New("boom")
			_, err := driver.RecordReview(ctx, response(false), func(study.ReviewItem) (study.ReviewItem, error) {
				return study.ReviewItem{}, boom
			})
			Expect(err).To(MatchError(boom))

			for range driver.QueryResponses(ctx, "u1", time.Time{}, nil) {
				Fail("no response should have been logged")
			}
			perfs, err := driver.ListTopicPerformance(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(perfs).To(BeEmpty())
		})

		It("rejects responses for another user's item", func() {
			resp := response(true)
			resp.UserID = "u2"
			_, err := driver.RecordReview(ctx, resp, func(i study.ReviewItem) (study.ReviewItem, error) {
				return i, nil
			})
			Expect(study.IsNotFound(err)).To(BeTrue())
		})

		It("counts progress against an active session", func() {
			Expect(driver.CreateStudySession(ctx, &study.StudySession{
				SessionID:   "s1",
				UserID:      "u1",
				SessionType: study.SessionTypeDaily,
				ItemsTotal:  1,
				StartedAt:   Epoch,
				Status:      study.SessionStatusActive,
				Items:       []study.ItemRef{ref},
			})).To(Succeed())

			resp := response(true)
			resp.SessionID = "s1"
			_, err := driver.RecordReview(ctx, resp, func(i study.ReviewItem) (study.ReviewItem, error) {
				return i, nil
			})
			Expect(err).NotTo(HaveOccurred())

			s, err := driver.GetSession(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(s.ItemsCompleted).To(Equal(1))
			Expect(s.ItemsCorrect).To(Equal(1))
		})

		It("fails for an unknown session without recording anything", func() {
			resp := response(true)
			resp.SessionID = "nope"
			_, err := driver.RecordReview(ctx, resp, func(i study.ReviewItem) (study.ReviewItem, error) {
				return i, nil
			})
			Expect(study.IsNotFound(err)).To(BeTrue())

			stored, err := driver.GetItem(ctx, ref)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.ReviewCount).To(BeZero())
		})
	})

	Describe("response log", func() {
		It("filters by time and topic", func() {
			for i, r := range []*study.GradedResponse{
				{ResponseID: "r1", UserID: "u1", ItemID: "a", ItemType: study.ItemTypeFlashcard, Topics: []string{"cells"}, Timestamp: Epoch.AddDate(0, 0, -8)},
				{ResponseID: "r2", UserID: "u1", ItemID: "a", ItemType: study.ItemTypeFlashcard, Topics: []string{"cells"}, Timestamp: Epoch.AddDate(0, 0, -7)},
				{ResponseID: "r3", UserID: "u1", ItemID: "b", ItemType: study.ItemTypeMCQ, Topics: []string{"genetics"}, Timestamp: Epoch},
				{ResponseID: "r4", UserID: "u2", ItemID: "c", ItemType: study.ItemTypeMCQ, Topics: []string{"cells"}, Timestamp: Epoch},
			} {
				Expect(driver.AppendResponse(ctx, r)).To(Succeed(), "response %d", i)
			}

			var got []string
			for r, err := range driver.QueryResponses(ctx, "u1", Epoch.AddDate(0, 0, -7), nil) {
				Expect(err).NotTo(HaveOccurred())
				got = append(got, r.ResponseID)
			}
			Expect(got).To(Equal([]string{"r2", "r3"}))

			got = nil
			for r, err := range driver.QueryResponses(ctx, "u1", time.Time{}, []string{"cells"}) {
				Expect(err).NotTo(HaveOccurred())
				got = append(got, r.ResponseID)
			}
			Expect(got).To(Equal([]string{"r1", "r2"}))
		})
	})

	Describe("topic performance", func() {
		It("keeps lifetime counters when accuracy is upserted", func() {
			resp := &study.GradedResponse{UserID: "u1", Topics: []string{"cells", "cells"}, IsCorrect: false}
			Expect(driver.IncrementTopicCounters(ctx, resp)).To(Succeed())
			Expect(driver.IncrementTopicCounters(ctx, resp)).To(Succeed())

			at := Epoch
			Expect(driver.UpsertTopicAccuracy(ctx, []*study.TopicPerformance{
				{UserID: "u1", Topic: "cells", Accuracy7Day: 25, LastCalculatedAt: &at},
				{UserID: "u1", Topic: "optics", Accuracy7Day: 90, LastCalculatedAt: &at},
			})).To(Succeed())

			perfs, err := driver.ListTopicPerformance(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(perfs).To(HaveLen(2))
			Expect(perfs[0].Topic).To(Equal("cells"))
			Expect(perfs[0].TotalAttempts).To(Equal(2))
			Expect(perfs[0].CorrectAttempts).To(Equal(0))
			Expect(perfs[0].Accuracy7Day).To(Equal(25.0))
			Expect(perfs[1].Topic).To(Equal("optics"))
			Expect(perfs[1].TotalAttempts).To(Equal(0))
		})
	})

	Describe("sessions", func() {
		session := func(id string, started time.Time) *study.StudySession {
			return &study.StudySession{
				SessionID:   id,
				UserID:      "u1",
				SessionType: study.SessionTypeDaily,
				ItemsTotal:  3,
				StartedAt:   started,
				Status:      study.SessionStatusActive,
				Items: []study.ItemRef{
					{ItemID: "a", ItemType: study.ItemTypeFlashcard},
				},
				Breakdown: study.Breakdown{DueCount: 1, WeakTopicCount: 1, NewCount: 1},
			}
		}

		It("finds today's active session only", func() {
			dayStart := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
			dayEnd := dayStart.AddDate(0, 0, 1)

			found, err := driver.FindActiveSessionToday(ctx, "u1", study.SessionTypeDaily, dayStart, dayEnd)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeNil())

			Expect(driver.CreateStudySession(ctx, session("yesterday", dayStart.Add(-time.Hour)))).To(Succeed())
			Expect(driver.CreateStudySession(ctx, session("today", dayStart.Add(time.Hour)))).To(Succeed())

			found, err = driver.FindActiveSessionToday(ctx, "u1", study.SessionTypeDaily, dayStart, dayEnd)
			Expect(err).NotTo(HaveOccurred())
			Expect(found.SessionID).To(Equal("today"))
			Expect(found.Items).To(HaveLen(1))
			Expect(found.Breakdown.Total()).To(Equal(3))

			n, err := driver.AbandonSessions(ctx, "u1", study.SessionTypeDaily, dayStart)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))

			old, err := driver.GetSession(ctx, "yesterday")
			Expect(err).NotTo(HaveOccurred())
			Expect(old.Status).To(Equal(study.SessionStatusAbandoned))
		})

		It("abandons older sessions and stores the new one together", func() {
			dayStart := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
			Expect(driver.CreateStudySession(ctx, session("morning", dayStart.Add(time.Hour)))).To(Succeed())

			n, err := driver.StartSession(ctx, session("forced", Epoch), dayStart.AddDate(0, 0, 1))
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))

			old, err := driver.GetSession(ctx, "morning")
			Expect(err).NotTo(HaveOccurred())
			Expect(old.Status).To(Equal(study.SessionStatusAbandoned))

			found, err := driver.FindActiveSessionToday(ctx, "u1", study.SessionTypeDaily, dayStart, dayStart.AddDate(0, 0, 1))
			Expect(err).NotTo(HaveOccurred())
			Expect(found.SessionID).To(Equal("forced"))
		})

		It("leaves older sessions alone when the new session cannot be stored", func() {
			dayStart := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
			Expect(driver.CreateStudySession(ctx, session("morning", dayStart.Add(time.Hour)))).To(Succeed())
			Expect(driver.CreateStudySession(ctx, session("taken", dayStart.Add(-time.Hour)))).To(Succeed())

			_, err := driver.StartSession(ctx, session("taken", Epoch), dayStart.AddDate(0, 0, 1))
			Expect(err).To(HaveOccurred())

			old, err := driver.GetSession(ctx, "morning")
			Expect(err).NotTo(HaveOccurred())
			Expect(old.Status).To(Equal(study.SessionStatusActive))
		})

		It("updates completion", func() {
			s := session("s1", Epoch)
			Expect(driver.CreateStudySession(ctx, s)).To(Succeed())
			Expect(s.Complete(3, 2, Epoch.Add(time.Hour))).To(Succeed())
			Expect(driver.UpdateSession(ctx, s)).To(Succeed())

			got, err := driver.GetSession(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(study.SessionStatusCompleted))
			Expect(got.ItemsCorrect).To(Equal(2))
			Expect(got.CompletedAt).NotTo(BeNil())

			_, err = driver.GetSession(ctx, "missing")
			Expect(study.IsNotFound(err)).To(BeTrue())
		})
	})
}
