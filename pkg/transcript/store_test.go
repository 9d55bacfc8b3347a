package transcript_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/localmind/smriti/pkg/chat"
	"github.com/localmind/smriti/pkg/transcript"
)

func keysOf(entries []transcript.Entry) []string {
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	return keys
}

var _ = Describe("Store", func() {
	var store *transcript.Store

	BeforeEach(func() {
		store = transcript.NewStore()
	})

	It("keeps insertion order", func() {
		store.Put("b", chat.Chat{ID: "b"})
		store.Put("a", chat.Chat{ID: "a"})
		store.Put("b", chat.Chat{ID: "b", Title: "renamed"})

		Expect(keysOf(store.List())).To(Equal([]string{"b", "a"}))
		Expect(store.Keys()).To(Equal([]string{"b", "a"}))
		Expect(store.Len()).To(Equal(2))

		got, ok := store.Get("b")
		Expect(ok).To(BeTrue())
		Expect(got.Title).To(Equal("renamed"))
	})

	Describe("Apply", func() {
		It("fails for an unknown key", func() {
			_, err := store.Apply("missing", func(c chat.Chat) chat.Chat { return c })
			Expect(err).To(MatchError(transcript.ErrUnknownChat))
		})

		It("leaves earlier snapshots untouched", func() {
			store.Put("k", chat.Chat{Messages: []chat.Message{{Role: chat.RoleAssistant, Content: "ab"}}})
			before, _ := store.Get("k")

			after, err := store.Apply("k", func(c chat.Chat) chat.Chat { return chat.Merge(c, "cd") })
			Expect(err).NotTo(HaveOccurred())
			Expect(after.Messages[0].Content).To(Equal("abcd"))
			Expect(before.Messages[0].Content).To(Equal("ab"))
		})
	})

	Describe("Rekey", func() {
		It("renames in place and resolves the old key", func() {
			local := transcript.NewLocalKey()
			Expect(transcript.IsLocalKey(local)).To(BeTrue())

			store.Put("first", chat.Chat{})
			store.Put(local, chat.Chat{Title: "New Chat"})
			store.Put("last", chat.Chat{})

			Expect(store.Rekey(local, "c9")).To(Succeed())
			Expect(store.Keys()).To(Equal([]string{"first", "c9", "last"}))
			Expect(store.Resolve(local)).To(Equal("c9"))

			got, ok := store.Get(local)
			Expect(ok).To(BeTrue())
			Expect(got.Title).To(Equal("New Chat"))
		})

		It("refuses to overwrite", func() {
			store.Put("a", chat.Chat{})
			store.Put("b", chat.Chat{})
			Expect(store.Rekey("a", "b")).To(HaveOccurred())
		})

		It("fails for an unknown key", func() {
			Expect(store.Rekey("missing", "x")).To(MatchError(transcript.ErrUnknownChat))
		})
	})

	Describe("Delete and Clear", func() {
		It("removes one chat", func() {
			store.Put("a", chat.Chat{})
			store.Put("b", chat.Chat{})

			Expect(store.Delete("a")).To(BeTrue())
			Expect(store.Delete("a")).To(BeFalse())
			Expect(store.Keys()).To(Equal([]string{"b"}))
		})

		It("removes everything", func() {
			store.Put("a", chat.Chat{})
			store.Clear()
			Expect(store.Len()).To(BeZero())
			Expect(store.List()).To(BeEmpty())
		})
	})

	Describe("Watch", func() {
		It("delivers updates in order", func() {
			updates, stop := store.Watch(8)
			defer stop()

			store.Put("a", chat.Chat{Messages: []chat.Message{{Role: chat.RoleAssistant}}})
			_, _ = store.Apply("a", func(c chat.Chat) chat.Chat { return chat.Merge(c, "x") })
			Expect(store.Rekey("a", "b")).To(Succeed())
			store.Delete("b")

			u := <-updates
			Expect(u.Key).To(Equal("a"))
			u = <-updates
			Expect(u.Chat.Messages[0].Content).To(Equal("x"))
			u = <-updates
			Expect(u.Key).To(Equal("b"))
			Expect(u.Renamed).To(Equal("a"))
			u = <-updates
			Expect(u.Deleted).To(BeTrue())
		})

		It("drops updates for a slow watcher instead of blocking", func() {
			updates, stop := store.Watch(1)
			defer stop()

			for range 10 {
				store.Put("a", chat.Chat{})
			}

			Expect(updates).To(HaveLen(1))
		})

		It("closes the channel on unsubscribe", func() {
			updates, stop := store.Watch(1)
			stop()
			stop()

			Eventually(updates).Should(BeClosed())
			store.Put("a", chat.Chat{})
		})
	})
})
