package eventstream_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/drills/pkg/eventstream"
	"github.com/papercomputeco/drills/pkg/notify"
)

type capturePublisher struct {
	events []*eventstream.PackReadyEvent
	err    error
}

func (c *capturePublisher) PublishPackReady(_ context.Context, event *eventstream.PackReadyEvent) error {
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, event)
	return nil
}

func (c *capturePublisher) Close() error { return nil }

var _ = Describe("Sink", func() {
	It("publishes one event per notification", func() {
		pub := &capturePublisher{}
		sink := eventstream.NewSink(pub, "drills")

		result, err := sink.Notify(context.Background(), "u1", &notify.Payload{Type: notify.PayloadTypeDailyPack})
		Expect(err).NotTo(HaveOccurred())
		Expect(pub.events).To(HaveLen(1))
		Expect(result.MessageID).To(Equal(pub.events[0].EventID))
		Expect(pub.events[0].Source.Service).To(Equal("drills"))
		Expect(pub.events[0].UserID).To(Equal("u1"))
	})

	It("wraps publisher errors", func() {
		boom := errors.New("broker unavailable")
		sink := eventstream.NewSink(&capturePublisher{err: boom}, "drills")

		_, err := sink.Notify(context.Background(), "u1", &notify.Payload{})
		Expect(err).To(MatchError(boom))
	})

	It("rejects a nil payload", func() {
		sink := eventstream.NewSink(&capturePublisher{}, "drills")
		_, err := sink.Notify(context.Background(), "u1", nil)
		Expect(err).To(MatchError(notify.ErrNilPayload))
	})
})
