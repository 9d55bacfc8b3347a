// Package storagetest holds the ginkgo specs every storage.Driver must pass.
package storagetest

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/localmind/smriti/pkg/chat"
	"github.com/localmind/smriti/pkg/storage"
)

var epoch = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

// TestChat builds a settled chat created offset after a fixed epoch.
func TestChat(id string, offset time.Duration, contents ...string) chat.Chat {
	c := chat.Chat{
		ID:        id,
		Title:     "chat " + id,
		CreatedAt: epoch.Add(offset),
		UpdatedAt: epoch.Add(offset + time.Minute),
		Messages:  []chat.Message{},
	}
	for i, content := range contents {
		role := chat.RoleUser
		if i%2 == 1 {
			role = chat.RoleAssistant
		}
		c.Messages = append(c.Messages, chat.Message{
			ID:        id + "-m" + string(rune('0'+i)),
			Role:      role,
			Content:   content,
			Timestamp: epoch.Add(offset + time.Duration(i)*time.Second),
		})
	}
	return c
}

// DriverBehaviors registers the shared driver specs. newDriver is called
// before each spec.
func DriverBehaviors(newDriver func() storage.Driver) {
	var (
		driver storage.Driver
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = newDriver()
	})

	AfterEach(func() {
		Expect(driver.Close()).To(Succeed())
	})

	Describe("Put and Get", func() {
		It("round trips a chat", func() {
			c := TestChat("c1", 0, "hi", "Hello")
			Expect(driver.Put(ctx, c)).To(Succeed())

			got, err := driver.Get(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Title).To(Equal(c.Title))
			Expect(got.CreatedAt.Equal(c.CreatedAt)).To(BeTrue())
			Expect(got.UpdatedAt.Equal(c.UpdatedAt)).To(BeTrue())
			Expect(got.Messages).To(HaveLen(2))
			Expect(got.Messages[1].Role).To(Equal(chat.RoleAssistant))
			Expect(got.Messages[1].Content).To(Equal("Hello"))
		})

		It("replaces an existing chat", func() {
			Expect(driver.Put(ctx, TestChat("c1", 0, "hi"))).To(Succeed())
			Expect(driver.Put(ctx, TestChat("c1", 0, "hi", "Hello"))).To(Succeed())

			got, err := driver.Get(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Messages).To(HaveLen(2))
		})

		It("rejects a chat without an id", func() {
			Expect(driver.Put(ctx, TestChat("", 0))).To(MatchError(storage.ErrMissingID))
		})

		It("drops in-flight replies and local state", func() {
			c := chat.Begin(TestChat("c1", 0, "hi", "Hello"), "again", epoch)
			Expect(driver.Put(ctx, c)).To(Succeed())

			got, err := driver.Get(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Messages).To(HaveLen(3))
			Expect(got.Messages[2].Content).To(Equal("again"))
			Expect(got.Messages[2].LocalID).To(BeEmpty())
		})

		It("returns NotFoundError for an unknown chat", func() {
			_, err := driver.Get(ctx, "missing")
			Expect(storage.IsNotFound(err)).To(BeTrue())
			Expect(err).To(MatchError("chat not found: missing"))
		})
	})

	Describe("List", func() {
		It("is empty for a new cache", func() {
			chats, err := driver.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(chats).To(BeEmpty())
		})

		It("orders chats oldest first", func() {
			Expect(driver.Put(ctx, TestChat("b", 2*time.Hour))).To(Succeed())
			Expect(driver.Put(ctx, TestChat("a", time.Hour))).To(Succeed())
			Expect(driver.Put(ctx, TestChat("c", 90*time.Minute+500*time.Millisecond))).To(Succeed())

			chats, err := driver.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			ids := make([]string, 0, len(chats))
			for _, c := range chats {
				ids = append(ids, c.ID)
			}
			Expect(ids).To(Equal([]string{"a", "c", "b"}))
		})
	})

	Describe("Replace", func() {
		It("drops chats not in the new set", func() {
			Expect(driver.Put(ctx, TestChat("old", 0))).To(Succeed())
			Expect(driver.Replace(ctx, []chat.Chat{
				TestChat("n1", time.Hour),
				TestChat("n2", 2*time.Hour),
			})).To(Succeed())

			_, err := driver.Get(ctx, "old")
			Expect(storage.IsNotFound(err)).To(BeTrue())

			chats, err := driver.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(chats).To(HaveLen(2))
		})

		It("leaves the cache alone when a chat has no id", func() {
			Expect(driver.Put(ctx, TestChat("keep", 0))).To(Succeed())
			Expect(driver.Replace(ctx, []chat.Chat{TestChat("", 0)})).To(MatchError(storage.ErrMissingID))

			_, err := driver.Get(ctx, "keep")
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("Delete", func() {
		It("removes one chat", func() {
			Expect(driver.Put(ctx, TestChat("c1", 0))).To(Succeed())
			Expect(driver.Put(ctx, TestChat("c2", time.Hour))).To(Succeed())

			Expect(driver.Delete(ctx, "c1")).To(Succeed())

			chats, err := driver.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(chats).To(HaveLen(1))
			Expect(chats[0].ID).To(Equal("c2"))
		})

		It("returns NotFoundError for an unknown chat", func() {
			Expect(storage.IsNotFound(driver.Delete(ctx, "missing"))).To(BeTrue())
		})

		It("empties the cache", func() {
			Expect(driver.Put(ctx, TestChat("c1", 0))).To(Succeed())
			Expect(driver.DeleteAll(ctx)).To(Succeed())

			chats, err := driver.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(chats).To(BeEmpty())
		})
	})
}
