package postgres_test

import (
	"context"
	"fmt"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/drills/pkg/storage"
	"github.com/papercomputeco/drills/pkg/storage/postgres"
	"github.com/papercomputeco/drills/pkg/storage/storagetest"
)

// connStr returns the PostgreSQL connection string from environment or skips the test.
func connStr() string {
	dsn := os.Getenv("DRILLS_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("DRILLS_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

var _ = Describe("Driver", func() {
	storagetest.DescribeDriver(func() storage.Driver {
		ctx := context.Background()
		d, err := postgres.NewDriver(ctx, connStr())
		Expect(err).NotTo(HaveOccurred())

		// Clean all tables before each test for isolation.
		err = d.Driver.Exec(ctx, "TRUNCATE study_sets, review_items, item_topics, graded_responses, topic_performances, study_sessions CASCADE", []any{}, nil)
		Expect(err).NotTo(HaveOccurred())
		return d
	})

	Describe("NewDriver", func() {
		It("returns an error for invalid connection string", func() {
			connStr()
			_, err := postgres.NewDriver(context.Background(), "host=invalid port=9999 user=bad dbname=bad sslmode=disable connect_timeout=1")
			Expect(err).To(HaveOccurred())
			fmt.Fprintf(GinkgoWriter, "expected error: %v\n", err)
		})
	})
})
