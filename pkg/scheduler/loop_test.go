package scheduler_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/drills/pkg/scheduler"
)

var _ = Describe("Nightly loop", func() {
	Describe("ParseRunAt", func() {
		It("parses HH:MM", func() {
			h, m, err := scheduler.ParseRunAt("02:30")
			Expect(err).NotTo(HaveOccurred())
			Expect(h).To(Equal(2))
			Expect(m).To(Equal(30))
		})

		It("rejects other formats", func() {
			_, _, err := scheduler.ParseRunAt("2am")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("NextRun", func() {
		loc := time.FixedZone("EST", -5*60*60)

		It("picks today when the time is still ahead", func() {
			now := time.Date(2026, 1, 5, 1, 0, 0, 0, loc)
			Expect(scheduler.NextRun(now, 2, 0, loc)).To(BeTemporally("==", time.Date(2026, 1, 5, 2, 0, 0, 0, loc)))
		})

		It("rolls over to tomorrow once the time has passed", func() {
			now := time.Date(2026, 1, 5, 2, 0, 0, 0, loc)
			Expect(scheduler.NextRun(now, 2, 0, loc)).To(BeTemporally("==", time.Date(2026, 1, 6, 2, 0, 0, 0, loc)))
		})

		It("interprets the time in the given location", func() {
			now := time.Date(2026, 1, 5, 6, 0, 0, 0, time.UTC)
			Expect(scheduler.NextRun(now, 2, 0, loc)).To(BeTemporally("==", time.Date(2026, 1, 5, 7, 0, 0, 0, time.UTC)))
		})
	})

	Describe("Start and Stop", func() {
		var f *fixture

		BeforeEach(func() {
			f = newFixture()
		})

		It("requires a run time", func() {
			o := f.orchestrator()
			Expect(o.Start(context.Background())).NotTo(Succeed())
		})

		It("starts once and stops cleanly", func() {
			o := f.orchestrator(func(c *scheduler.Config) { c.RunAt = "03:00" })
			Expect(o.Start(context.Background())).To(Succeed())
			Expect(o.Start(context.Background())).NotTo(Succeed())

			stopped := make(chan struct{})
			go func() {
				o.Stop()
				close(stopped)
			}()
			Eventually(stopped).Should(BeClosed())
		})

		It("runs a batch when the time arrives", func() {
			f.seed("u1", 1, "cells")
			// Epoch is 12:00 UTC; the loop wakes a few milliseconds later.
			f.now = time.Date(2026, 3, 10, 2, 59, 59, 990_000_000, time.UTC)
			o := f.orchestrator(func(c *scheduler.Config) { c.RunAt = "03:00" })

			Expect(o.Start(context.Background())).To(Succeed())
			Eventually(func() int { return len(o.Batches()) }).Should(BeNumerically(">=", 1))
			o.Stop()

			runs := o.Batches()
			report := runs[len(runs)-1].Report()
			Expect(report.Count(scheduler.StatusGenerated)).To(Equal(1))
		})
	})
})
