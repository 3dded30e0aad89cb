package redislock_test

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	goredis "github.com/redis/go-redis/v9"

	"github.com/papercomputeco/drills/pkg/logger"
	"github.com/papercomputeco/drills/pkg/userlock/redislock"
)

var _ = Describe("Locker", func() {
	var (
		ctx    context.Context
		locker *redislock.Locker
		key    string
	)

	BeforeEach(func() {
		addr := os.Getenv("DRILLS_TEST_REDIS_ADDR")
		if addr == "" {
			Skip("DRILLS_TEST_REDIS_ADDR not set")
		}
		ctx = context.Background()

		var err error
		locker, err = redislock.New(ctx, redislock.Config{
			Addr:          addr,
			TTL:           5 * time.Second,
			RetryInterval: 10 * time.Millisecond,
			KeyPrefix:     "drills:test:lock:",
			Logger:        logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(locker.Close)

		key = uuid.NewString()
	})

	It("excludes a second holder until released", func() {
		unlock, err := locker.Lock(ctx, key)
		Expect(err).NotTo(HaveOccurred())

		waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()
		_, err = locker.Lock(waitCtx, key)
		Expect(err).To(MatchError(context.DeadlineExceeded))

		unlock()
		again, err := locker.Lock(ctx, key)
		Expect(err).NotTo(HaveOccurred())
		again()
	})

	It("logs a failed release without a configured logger", func() {
		rdb := goredis.NewClient(&goredis.Options{Addr: os.Getenv("DRILLS_TEST_REDIS_ADDR")})
		bare := redislock.NewWithClient(rdb, redislock.Config{})

		unlock, err := bare.Lock(ctx, key)
		Expect(err).NotTo(HaveOccurred())

		Expect(rdb.Close()).To(Succeed())
		Expect(unlock).NotTo(Panic())
	})

	It("rejects an empty address", func() {
		_, err := redislock.New(ctx, redislock.Config{})
		Expect(err).To(HaveOccurred())
	})
})
