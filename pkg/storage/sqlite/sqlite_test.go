package sqlite_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/drills/pkg/storage"
	"github.com/papercomputeco/drills/pkg/storage/sqlite"
	"github.com/papercomputeco/drills/pkg/storage/storagetest"
	"github.com/papercomputeco/drills/pkg/study"
)

var _ = Describe("Driver", func() {
	storagetest.DescribeDriver(func() storage.Driver {
		d, err := sqlite.NewDriver(context.Background(), ":memory:")
		Expect(err).NotTo(HaveOccurred())
		return d
	})

	Describe("NewDriver", func() {
		It("creates a driver with file database", func() {
			tmpDir := GinkgoT().TempDir()
			dbPath := filepath.Join(tmpDir, "drills.db")

			d, err := sqlite.NewDriver(context.Background(), dbPath)
			Expect(err).NotTo(HaveOccurred())
			defer d.Close()

			// Verify file was created
			_, err = os.Stat(dbPath)
			Expect(err).NotTo(HaveOccurred())
		})

		It("keeps data across reopen of a file database", func() {
			ctx := context.Background()
			dbPath := filepath.Join(GinkgoT().TempDir(), "drills.db")

			d, err := sqlite.NewDriver(ctx, dbPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(d.CreateStudySet(ctx, storagetest.Set("u1", "s"), []*study.ReviewItem{
				storagetest.Item("u1", "s", "a", study.ItemTypeMCQ, []string{"optics"}),
			})).To(Succeed())
			Expect(d.Close()).To(Succeed())

			d, err = sqlite.NewDriver(ctx, dbPath)
			Expect(err).NotTo(HaveOccurred())
			defer d.Close()

			item, err := d.GetItem(ctx, study.ItemRef{ItemID: "a", ItemType: study.ItemTypeMCQ})
			Expect(err).NotTo(HaveOccurred())
			Expect(item.Topics).To(Equal([]string{"optics"}))
		})
	})
})
