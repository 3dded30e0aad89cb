package eventstream_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/drills/pkg/eventstream"
	"github.com/papercomputeco/drills/pkg/notify"
	"github.com/papercomputeco/drills/pkg/study"
)

var _ = Describe("Event", func() {
	now := time.Unix(1735689600, 0).UTC()

	payload := &notify.Payload{
		Type:    notify.PayloadTypeDailyPack,
		Title:   "Your daily pack is ready",
		Message: "9 items",
		Data: map[string]any{
			eventstream.DataSessionID:  "sess-1",
			eventstream.DataBreakdown:  study.Breakdown{DueCount: 5, WeakTopicCount: 3, NewCount: 1},
			eventstream.DataWeakTopics: []string{"cells"},
			eventstream.DataPreview:    []string{"What is ATP?"},
		},
	}

	It("marshals PackReadyEvent with expected top-level keys", func() {
		event := eventstream.NewPackReadyEvent("u1", payload, eventstream.EventSource{Service: "drills"}, now)

		raw, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(raw, &got)).To(Succeed())

		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("source"))
		Expect(got).To(HaveKey("user_id"))
		Expect(got).To(HaveKey("notification"))
		Expect(got).To(HaveKey("pack"))
	})

	It("copies pack details out of the payload data", func() {
		event := eventstream.NewPackReadyEvent("u1", payload, eventstream.EventSource{Service: "drills"}, now)

		Expect(event.EventID).NotTo(BeEmpty())
		Expect(event.Pack.SessionID).To(Equal("sess-1"))
		Expect(event.Pack.Breakdown.Total()).To(Equal(9))
		Expect(event.Pack.WeakTopics).To(Equal([]string{"cells"}))
		Expect(event.Pack.Preview).To(Equal([]string{"What is ATP?"}))
		Expect(event.Notification.Title).To(Equal("Your daily pack is ready"))
	})

	It("defines stable event constants", func() {
		Expect(eventstream.SchemaVersionV1).To(BeNumerically(">", 0))
		Expect(eventstream.EventTypePackReady).To(Equal("drills.pack.ready"))
	})

	It("provides ErrNilPackEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilPackEvent).To(MatchError("nil pack event"))
	})
})
