package userlock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/drills/pkg/userlock"
)

var _ = Describe("Local", func() {
	var (
		ctx    context.Context
		locker *userlock.Local
	)

	BeforeEach(func() {
		ctx = context.Background()
		locker = userlock.NewLocal()
	})

	It("serializes holders of the same key", func() {
		var (
			wg      sync.WaitGroup
			inside  atomic.Int32
			maxSeen atomic.Int32
		)
		for range 20 {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				unlock, err := locker.Lock(ctx, "u1")
				Expect(err).NotTo(HaveOccurred())
				n := inside.Add(1)
				if n > maxSeen.Load() {
					maxSeen.Store(n)
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
				unlock()
			}()
		}
		wg.Wait()

		Expect(maxSeen.Load()).To(Equal(int32(1)))
		Expect(locker.Len()).To(Equal(0))
	})

	It("does not block other keys", func() {
		unlock, err := locker.Lock(ctx, "u1")
		Expect(err).NotTo(HaveOccurred())
		defer unlock()

		other, err := locker.Lock(ctx, "u2")
		Expect(err).NotTo(HaveOccurred())
		other()
	})

	It("gives up when the context is done", func() {
		unlock, err := locker.Lock(ctx, "u1")
		Expect(err).NotTo(HaveOccurred())

		waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err = locker.Lock(waitCtx, "u1")
		Expect(err).To(MatchError(context.DeadlineExceeded))

		unlock()
		Expect(locker.Len()).To(Equal(0))
	})

	It("tolerates a double unlock", func() {
		unlock, err := locker.Lock(ctx, "u1")
		Expect(err).NotTo(HaveOccurred())
		unlock()
		Expect(unlock).NotTo(Panic())

		again, err := locker.Lock(ctx, "u1")
		Expect(err).NotTo(HaveOccurred())
		again()
	})
})
