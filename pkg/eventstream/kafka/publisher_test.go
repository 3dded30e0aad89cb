package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/drills/pkg/eventstream"
	"github.com/papercomputeco/drills/pkg/logger"
	"github.com/papercomputeco/drills/pkg/notify"
)

type fakeWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func testEvent() *eventstream.PackReadyEvent {
	return eventstream.NewPackReadyEvent("u1",
		&notify.Payload{Type: notify.PayloadTypeDailyPack, Title: "ready"},
		eventstream.EventSource{Service: "drills"},
		time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC),
	)
}

var _ = Describe("Publisher", func() {
	It("requires brokers", func() {
		_, err := NewPublisher(Config{Logger: logger.Nop()})
		Expect(err).To(HaveOccurred())
	})

	It("keys messages by user and encodes the event as JSON", func() {
		w := &fakeWriter{}
		p := newPublisher(w, DefaultTopic, logger.Nop())

		event := testEvent()
		Expect(p.PublishPackReady(context.Background(), event)).To(Succeed())
		Expect(w.msgs).To(HaveLen(1))

		msg := w.msgs[0]
		Expect(string(msg.Key)).To(Equal("u1"))
		Expect(msg.Time).To(Equal(event.EmittedAt))
		Expect(msg.Headers).To(ContainElement(kafkago.Header{Key: "event_type", Value: []byte(eventstream.EventTypePackReady)}))

		var decoded eventstream.PackReadyEvent
		Expect(json.Unmarshal(msg.Value, &decoded)).To(Succeed())
		Expect(decoded.EventID).To(Equal(event.EventID))
	})

	It("rejects nil events", func() {
		p := newPublisher(&fakeWriter{}, DefaultTopic, logger.Nop())
		Expect(p.PublishPackReady(context.Background(), nil)).To(MatchError(eventstream.ErrNilPackEvent))
	})

	It("wraps write errors", func() {
		boom := errors.New("leader not available")
		p := newPublisher(&fakeWriter{err: boom}, DefaultTopic, logger.Nop())
		Expect(p.PublishPackReady(context.Background(), testEvent())).To(MatchError(boom))
	})

	It("closes the writer", func() {
		w := &fakeWriter{}
		Expect(newPublisher(w, DefaultTopic, logger.Nop()).Close()).To(Succeed())
		Expect(w.closed).To(BeTrue())
	})

	Context("against a live broker", func() {
		var brokers string

		BeforeEach(func() {
			brokers = os.Getenv("DRILLS_TEST_KAFKA_BROKERS")
			if brokers == "" {
				Skip("DRILLS_TEST_KAFKA_BROKERS not set")
			}
		})

		It("publishes an event", func() {
			p, err := NewPublisher(Config{
				Brokers: strings.Split(brokers, ","),
				Topic:   "drills.test.pack.ready",
				Logger:  logger.Nop(),
			})
			Expect(err).NotTo(HaveOccurred())
			defer p.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			Expect(p.PublishPackReady(ctx, testEvent())).To(Succeed())
		})
	})
})
