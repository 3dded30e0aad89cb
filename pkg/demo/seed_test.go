package demo_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/drills/pkg/demo"
	"github.com/papercomputeco/drills/pkg/logger"
	"github.com/papercomputeco/drills/pkg/pack"
	"github.com/papercomputeco/drills/pkg/scheduler"
	"github.com/papercomputeco/drills/pkg/storage/inmemory"
	"github.com/papercomputeco/drills/pkg/storage/storagetest"
	"github.com/papercomputeco/drills/pkg/study"
	"github.com/papercomputeco/drills/pkg/topics"
)

var _ = Describe("Seed", func() {
	var (
		ctx          context.Context
		store        *inmemory.Driver
		tracker      *topics.Tracker
		orchestrator *scheduler.Orchestrator
	)

	clock := func() time.Time { return storagetest.Epoch }

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewDriver()
		tracker = topics.NewTracker(store, logger.Nop(), topics.WithClock(clock))
		composer := pack.NewComposer(store, tracker, logger.Nop(), pack.WithClock(clock))

		var err error
		orchestrator, err = scheduler.New(scheduler.Config{
			Store:                 store,
			Composer:              composer,
			Tracker:               tracker,
			RecalculateOnResponse: true,
			Now:                   clock,
			Logger:                logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("creates the demo sets and replays their history", func() {
		summary, err := demo.Seed(ctx, orchestrator, store, "ada", storagetest.Epoch, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(summary).To(Equal(demo.Summary{StudySets: 3, Items: 14, Responses: 21}))

		users, err := store.ListUserIDs(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(users).To(Equal([]string{"ada"}))

		unreviewed, err := store.GetUnreviewedItems(ctx, "ada", study.ItemTypeAny, 50)
		Expect(err).NotTo(HaveOccurred())
		Expect(unreviewed).To(HaveLen(5))
	})

	It("leaves networking as the weakest topic", func() {
		_, err := demo.Seed(ctx, orchestrator, store, "ada", storagetest.Epoch, false)
		Expect(err).NotTo(HaveOccurred())

		weak, err := tracker.WeakTopics(ctx, "ada", 5, 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(weak).NotTo(BeEmpty())
		Expect(weak[0].Topic).To(Equal("networking"))
		for _, p := range weak {
			Expect(p.Topic).NotTo(Equal("go"))
		}
	})

	It("refuses to seed twice without overwrite", func() {
		_, err := demo.Seed(ctx, orchestrator, store, "ada", storagetest.Epoch, false)
		Expect(err).NotTo(HaveOccurred())

		_, err = demo.Seed(ctx, orchestrator, store, "ada", storagetest.Epoch, false)
		Expect(err).To(MatchError(demo.ErrAlreadySeeded))
	})

	It("replaces the demo sets with overwrite", func() {
		_, err := demo.Seed(ctx, orchestrator, store, "ada", storagetest.Epoch, false)
		Expect(err).NotTo(HaveOccurred())

		summary, err := demo.Seed(ctx, orchestrator, store, "ada", storagetest.Epoch, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.Items).To(Equal(14))

		unreviewed, err := store.GetUnreviewedItems(ctx, "ada", study.ItemTypeAny, 50)
		Expect(err).NotTo(HaveOccurred())
		Expect(unreviewed).To(HaveLen(5))
	})

	It("requires a user", func() {
		_, err := demo.Seed(ctx, orchestrator, store, "", storagetest.Epoch, false)
		Expect(study.IsValidation(err)).To(BeTrue())
	})
})
