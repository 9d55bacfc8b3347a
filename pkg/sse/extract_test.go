package sse_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/localmind/smriti/pkg/sse"
)

var _ = Describe("Extract", func() {
	DescribeTable("payload extraction",
		func(frame, want string, ok bool) {
			got, found := sse.Extract(frame)
			Expect(found).To(Equal(ok))
			Expect(got).To(Equal(want))
		},
		Entry("single data line", "data: Hel", "Hel", true),
		Entry("trims surrounding whitespace", "data:   lo  ", "lo", true),
		Entry("ignores event and id fields", "event: delta\nid: 3\ndata: text", "text", true),
		Entry("ignores comments", ": ping\ndata: text", "text", true),
		Entry("heartbeat with only whitespace after prefix", "data: ", "", false),
		Entry("whitespace-only payload", "data: \t  ", "", false),
		Entry("no data lines", "event: ping\nid: 1", "", false),
		Entry("comment-only frame", ": keep-alive", "", false),
		Entry("prefix without the space is not a payload line", "data:packed", "", false),
		Entry("first data line wins", "data: one\ndata: two", "one", true),
		Entry("empty frame", "", "", false),
	)
})

var _ = Describe("Parse", func() {
	It("reads type, id and data", func() {
		ev := sse.Parse("event: complete\nid: 42\ndata: done")
		Expect(ev.Type).To(Equal("complete"))
		Expect(ev.ID).To(Equal("42"))
		Expect(ev.Data).To(Equal("done"))
	})

	It("joins multiple data lines with newline", func() {
		ev := sse.Parse("data: line one\ndata: line two\ndata: line three")
		Expect(ev.Data).To(Equal("line one\nline two\nline three"))
	})

	It("handles data field with no space after colon", func() {
		Expect(sse.Parse("data:no-space").Data).To(Equal("no-space"))
	})

	It("ignores unknown fields, retry and comments", func() {
		ev := sse.Parse(": comment\nretry: 3000\nfoo: bar\ndata: hello")
		Expect(ev).To(Equal(sse.Event{Data: "hello"}))
	})

	It("treats a line with no colon as an empty field", func() {
		Expect(sse.Parse("data").Data).To(BeEmpty())
	})
})
