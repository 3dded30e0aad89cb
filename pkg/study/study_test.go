package study_test

import (
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/drills/pkg/study"
)

var _ = Describe("ItemType", func() {
	It("parses concrete types case-insensitively", func() {
		t, err := study.ParseItemType(" MCQ ")
		Expect(err).NotTo(HaveOccurred())
		Expect(t).To(Equal(study.ItemTypeMCQ))
	})

	It("rejects unknown types with a validation error", func() {
		_, err := study.ParseItemType("essay")
		Expect(study.IsValidation(err)).To(BeTrue())
	})
})

var _ = Describe("EaseRating", func() {
	It("defaults an absent rating to 3", func() {
		Expect(study.EaseRatingAbsent.OrDefault()).To(Equal(study.EaseRating(3)))
		Expect(study.EaseRatingAbsent.Validate()).To(Succeed())
	})

	It("rejects ratings outside 1..4", func() {
		Expect(study.EaseRating(5).Validate()).To(HaveOccurred())
		Expect(study.EaseRating(-1).Validate()).To(HaveOccurred())
		Expect(study.EaseRating(4).Validate()).To(Succeed())
	})

	It("clamps into range", func() {
		Expect(study.EaseRating(9).Clamp()).To(Equal(study.EaseRatingMax))
		Expect(study.EaseRating(-2).Clamp()).To(Equal(study.EaseRatingMin))
	})
})

var _ = Describe("GradedResponse", func() {
	It("requires a user, an item and a concrete item type", func() {
		r := &study.GradedResponse{UserID: "u1", ItemID: "i1", ItemType: study.ItemTypeAny}
		Expect(study.IsValidation(r.Validate())).To(BeTrue())

		r.ItemType = study.ItemTypeFlashcard
		Expect(r.Validate()).To(Succeed())
	})
})

var _ = Describe("StudySet", func() {
	It("requires at least one non-blank topic", func() {
		s := &study.StudySet{UserID: "u1", DifficultyLevel: 2}
		Expect(study.IsValidation(s.Validate())).To(BeTrue())

		s.Topics = []string{"  "}
		Expect(study.IsValidation(s.Validate())).To(BeTrue())

		s.Topics = []string{"biology"}
		Expect(s.Validate()).To(Succeed())
	})
})

var _ = Describe("StudySession", func() {
	var session *study.StudySession

	BeforeEach(func() {
		session = &study.StudySession{
			SessionID:  "s1",
			ItemsTotal: 10,
			Status:     study.SessionStatusActive,
		}
	})

	It("completes with valid tallies", func() {
		now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		Expect(session.Complete(10, 7, now)).To(Succeed())
		Expect(session.Status).To(Equal(study.SessionStatusCompleted))
		Expect(*session.CompletedAt).To(Equal(now))
	})

	It("rejects more correct answers than completed items", func() {
		Expect(session.Complete(3, 4, time.Now())).To(HaveOccurred())
		Expect(session.Active()).To(BeTrue())
	})

	It("cannot complete twice", func() {
		Expect(session.Complete(1, 1, time.Now())).To(Succeed())
		Expect(study.IsValidation(session.Complete(1, 1, time.Now()))).To(BeTrue())
	})
})

var _ = Describe("errors", func() {
	It("detects wrapped not-found errors", func() {
		err := fmt.Errorf("loading: %w", &study.NotFoundError{Kind: "item", ID: "x"})
		Expect(study.IsNotFound(err)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("item not found: x"))
	})

	It("unwraps every user failure of a partial batch", func() {
		cause := errors.New("store unavailable")
		err := &study.PartialBatchFailure{
			RunID:    "r1",
			Failures: []study.UserFailure{{UserID: "u2", Err: cause}},
		}
		Expect(errors.Is(err, cause)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("u2: store unavailable"))
	})
})
