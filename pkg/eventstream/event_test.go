package eventstream_test

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/localmind/smriti/pkg/eventstream"
)

var _ = Describe("Event", func() {
	It("marshals ReplyEvent with expected top-level keys", func() {
		now := time.Unix(1735689600, 0).UTC()
		event := eventstream.ReplyEvent{
			SchemaVersion: eventstream.SchemaVersionV1,
			EventType:     eventstream.EventTypeReplyCompleted,
			EventID:       "evt_123",
			EmittedAt:     now,
			Source: eventstream.EventSource{
				Client:  "smriti",
				BaseURL: "http://localhost:8080",
				Model:   "deepseek",
			},
			Reply: eventstream.ReplyMeta{
				ChatKey:     "c1",
				ChatID:      "c1",
				StartedAt:   now.Add(-2 * time.Second),
				CompletedAt: now,
				DurationMs:  2000,
				Attempts:    1,
				Characters:  5,
			},
		}

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("source"))
		Expect(got).To(HaveKey("reply"))
		Expect(got["reply"]).NotTo(HaveKey("error"))
	})

	It("stamps new events", func() {
		started := time.Unix(1735689600, 0).UTC()
		event := eventstream.NewReplyEvent(eventstream.EventTypeReplyFailed,
			eventstream.EventSource{Client: "smriti"},
			eventstream.ReplyMeta{
				ChatKey:     "local:1",
				StartedAt:   started,
				CompletedAt: started.Add(1500 * time.Millisecond),
				Attempts:    6,
				Error:       "stream failed after 6 attempts",
			},
		)

		Expect(event.SchemaVersion).To(Equal(eventstream.SchemaVersionV1))
		Expect(event.EventType).To(Equal("smriti.reply.failed"))
		Expect(uuid.Validate(event.EventID)).To(Succeed())
		Expect(event.EmittedAt).NotTo(BeZero())
		Expect(event.Reply.DurationMs).To(BeEquivalentTo(1500))
	})

	It("defines stable event constants", func() {
		Expect(eventstream.SchemaVersionV1).To(BeNumerically(">", 0))
		Expect(eventstream.EventTypeReplyCompleted).To(Equal("smriti.reply.completed"))
		Expect(eventstream.EventTypeReplyCanceled).To(Equal("smriti.reply.canceled"))
	})

	It("provides ErrNilReplyEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilReplyEvent).To(MatchError("nil reply event"))
	})
})
