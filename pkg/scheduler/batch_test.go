package scheduler_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/drills/pkg/scheduler"
	"github.com/papercomputeco/drills/pkg/study"
)

var _ = Describe("Batch", func() {
	var (
		ctx context.Context
		f   *fixture
		o   *scheduler.Orchestrator
	)

	BeforeEach(func() {
		ctx = context.Background()
		f = newFixture()
		f.seed("u1", 2, "cells")
		f.seed("u2", 2, "optics")
		f.seed("u3", 2, "genetics")
		o = f.orchestrator(func(c *scheduler.Config) { c.Concurrency = 2 })
	})

	It("generates a pack for every user", func() {
		report := o.RunBatch(ctx, false)
		Expect(report.Status).To(Equal(scheduler.BatchCompleted))
		Expect(report.Total).To(Equal(3))
		Expect(report.Processed).To(Equal(3))
		Expect(report.Count(scheduler.StatusGenerated)).To(Equal(3))
		Expect(report.Err()).To(Succeed())
		Expect(report.FinishedAt).NotTo(BeNil())
	})

	It("refreshes topic accuracy before composing", func() {
		items := f.seed("u4", 1, "chemistry")
		_, err := o.RecordResponse(ctx, &study.GradedResponse{
			UserID:    "u4",
			ItemID:    items[0].ItemID,
			ItemType:  study.ItemTypeFlashcard,
			IsCorrect: true,
		})
		Expect(err).NotTo(HaveOccurred())

		perfs, err := f.store.ListTopicPerformance(ctx, "u4")
		Expect(err).NotTo(HaveOccurred())
		Expect(perfs[0].LastCalculatedAt).To(BeNil())

		o.RunBatch(ctx, false)

		perfs, err = f.store.ListTopicPerformance(ctx, "u4")
		Expect(err).NotTo(HaveOccurred())
		Expect(perfs).To(HaveLen(1))
		Expect(perfs[0].Accuracy7Day).To(Equal(100.0))
		Expect(perfs[0].LastCalculatedAt).NotTo(BeNil())
	})

	It("reports already generated users on a second run", func() {
		o.RunBatch(ctx, false)
		report := o.RunBatch(ctx, false)
		Expect(report.Count(scheduler.StatusAlreadyGenerated)).To(Equal(3))

		forced := o.RunBatch(ctx, true)
		Expect(forced.Count(scheduler.StatusGenerated)).To(Equal(3))
	})

	It("isolates one user's failure from the rest", func() {
		f.store.failUser = "u2"

		report := o.RunBatch(ctx, false)
		Expect(report.Status).To(Equal(scheduler.BatchCompleted))
		Expect(report.Outcomes).To(HaveLen(3))
		Expect(report.Outcomes[0].Status).To(Equal(scheduler.StatusGenerated))
		Expect(report.Outcomes[1].UserID).To(Equal("u2"))
		Expect(report.Outcomes[1].Status).To(Equal(scheduler.StatusFailed))
		Expect(report.Outcomes[1].Error).NotTo(BeEmpty())
		Expect(report.Outcomes[2].Status).To(Equal(scheduler.StatusGenerated))

		err := report.Err()
		var partial *study.PartialBatchFailure
		Expect(errors.As(err, &partial)).To(BeTrue())
		Expect(partial.RunID).To(Equal(report.RunID))
		Expect(partial.Failures).To(HaveLen(1))
		Expect(partial.Failures[0].UserID).To(Equal("u2"))
		Expect(err).To(MatchError(errStoreDown))

		session, err := f.store.FindActiveSessionToday(ctx, "u1", study.SessionTypeDaily, f.clock().Add(-time.Hour), f.clock().Add(time.Hour))
		Expect(err).NotTo(HaveOccurred())
		Expect(session).NotTo(BeNil())
	})

	It("skips users that exceed the per-user timeout", func() {
		o = f.orchestrator(func(c *scheduler.Config) {
			c.Composer = &slowComposer{Composer: f.composer, slowUser: "u3"}
			c.UserTimeout = 50 * time.Millisecond
		})

		report := o.RunBatch(ctx, false)
		Expect(report.Count(scheduler.StatusGenerated)).To(Equal(2))
		Expect(report.Count(scheduler.StatusSkipped)).To(Equal(1))
		Expect(report.Outcomes[2].UserID).To(Equal("u3"))
		Expect(report.Outcomes[2].Status).To(Equal(scheduler.StatusSkipped))
		Expect(report.Err()).To(Succeed())
	})

	It("counts users without content as empty", func() {
		Expect(o.DeleteStudySet(ctx, "u3-set")).To(Succeed())
		f.seed("u4", 0, "cells")

		report := o.RunBatch(ctx, false)
		Expect(report.Total).To(Equal(3))
		Expect(report.Count(scheduler.StatusEmpty)).To(Equal(1))
	})

	Describe("StartBatch", func() {
		It("runs in the background and remembers the run", func() {
			run := o.StartBatch(ctx, false)
			Expect(run.ID()).NotTo(BeEmpty())

			report, err := run.Wait(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Count(scheduler.StatusGenerated)).To(Equal(3))
			Expect(run.Status()).To(Equal(scheduler.BatchCompleted))
			Eventually(run.Done()).Should(BeClosed())

			found, ok := o.Batch(run.ID())
			Expect(ok).To(BeTrue())
			Expect(found).To(BeIdenticalTo(run))

			second := o.StartBatch(ctx, false)
			<-second.Done()
			Expect(o.Batches()).To(Equal([]*scheduler.BatchRun{second, run}))
		})

		It("outlives the caller's context", func() {
			callerCtx, cancel := context.WithCancel(ctx)
			run := o.StartBatch(callerCtx, false)
			cancel()

			report, err := run.Wait(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Count(scheduler.StatusSkipped)).To(Equal(0))
		})

		It("is waited for by Stop", func() {
			run := o.StartBatch(ctx, false)
			o.Stop()
			Expect(run.Done()).To(BeClosed())
		})

		It("returns unknown runs as missing", func() {
			_, ok := o.Batch("nope")
			Expect(ok).To(BeFalse())
		})
	})
})
