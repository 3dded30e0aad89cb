package inmemory_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/drills/pkg/storage"
	"github.com/papercomputeco/drills/pkg/storage/inmemory"
	"github.com/papercomputeco/drills/pkg/storage/storagetest"
	"github.com/papercomputeco/drills/pkg/study"
)

var _ = Describe("Driver", func() {
	storagetest.DescribeDriver(func() storage.Driver {
		return inmemory.NewDriver()
	})

	It("returns copies that callers can mutate freely", func() {
		ctx := context.Background()
		d := inmemory.NewDriver()
		Expect(d.CreateStudySet(ctx, storagetest.Set("u1", "s"), []*study.ReviewItem{
			storagetest.Item("u1", "s", "a", study.ItemTypeFlashcard, []string{"cells"}),
		})).To(Succeed())

		ref := study.ItemRef{ItemID: "a", ItemType: study.ItemTypeFlashcard}
		item, err := d.GetItem(ctx, ref)
		Expect(err).NotTo(HaveOccurred())
		item.Topics[0] = "changed"
		item.Difficulty = 5

		again, err := d.GetItem(ctx, ref)
		Expect(err).NotTo(HaveOccurred())
		Expect(again.Topics).To(Equal([]string{"cells"}))
		Expect(again.Difficulty).To(Equal(study.DefaultDifficulty))
	})

	It("serializes concurrent reviews of the same item", func() {
		ctx := context.Background()
		d := inmemory.NewDriver()
		Expect(d.CreateStudySet(ctx, storagetest.Set("u1", "s"), []*study.ReviewItem{
			storagetest.Item("u1", "s", "a", study.ItemTypeFlashcard, []string{"cells"}),
		})).To(Succeed())

		var wg sync.WaitGroup
		for range 50 {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				_, err := d.RecordReview(ctx, &study.GradedResponse{
					UserID: "u1", ItemID: "a", ItemType: study.ItemTypeFlashcard, Timestamp: time.Now(),
				}, func(i study.ReviewItem) (study.ReviewItem, error) {
					i.ReviewCount++
					return i, nil
				})
				Expect(err).NotTo(HaveOccurred())
			}()
		}
		wg.Wait()

		item, err := d.GetItem(ctx, study.ItemRef{ItemID: "a", ItemType: study.ItemTypeFlashcard})
		Expect(err).NotTo(HaveOccurred())
		Expect(item.ReviewCount).To(Equal(50))

		perfs, err := d.ListTopicPerformance(ctx, "u1")
		Expect(err).NotTo(HaveOccurred())
		Expect(perfs[0].TotalAttempts).To(Equal(50))
	})
})
