package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/localmind/smriti/pkg/chat"
	"github.com/localmind/smriti/pkg/eventstream"
	"github.com/localmind/smriti/pkg/logger"
	"github.com/localmind/smriti/pkg/storage"
	"github.com/localmind/smriti/pkg/storage/inmemory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.ReplyEvent
	err    error
}

func (p *recordingPublisher) PublishReply(_ context.Context, event *eventstream.ReplyEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Events() []*eventstream.ReplyEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*eventstream.ReplyEvent(nil), p.events...)
}

// slowDriver delays every Put, so queued writes are still pending when the
// next job is submitted.
type slowDriver struct {
	*inmemory.Driver
	delay time.Duration
}

func (d *slowDriver) Put(ctx context.Context, c chat.Chat) error {
	time.Sleep(d.delay)
	return d.Driver.Put(ctx, c)
}

// newTestPool creates a worker pool backed by an in-memory driver.
// Callers should "wp.Close()" to drain enqueued jobs before asserting storage state.
func newTestPool(pub eventstream.Publisher) (*Pool, *inmemory.Driver) {
	driver := inmemory.NewDriver()

	wp, err := NewPool(&Config{
		Driver:    driver,
		Publisher: pub,
		Logger:    logger.New(logger.WithWriter(GinkgoWriter), logger.WithDebug(true)),
	})
	Expect(err).NotTo(HaveOccurred())

	return wp, driver
}

func settledChat(id string, contents ...string) *chat.Chat {
	c := &chat.Chat{ID: id, CreatedAt: time.Now()}
	for i, content := range contents {
		role := chat.RoleUser
		if i%2 == 1 {
			role = chat.RoleAssistant
		}
		c.Messages = append(c.Messages, chat.Message{Role: role, Content: content})
	}
	return c
}

var _ = Describe("Worker Pool", func() {
	var (
		wp     *Pool
		driver *inmemory.Driver
		pub    *recordingPublisher
		ctx    context.Context
	)

	BeforeEach(func() {
		pub = &recordingPublisher{}
		wp, driver = newTestPool(pub)
		ctx = context.Background()
	})

	Describe("NewPool", func() {
		It("applies defaults", func() {
			p, err := NewPool(&Config{})
			Expect(err).NotTo(HaveOccurred())
			Expect(p.config.NumWorkers).To(Equal(defaultNumWorkers))
			Expect(p.config.QueueSize).To(Equal(defaultJobQueueSize))
			Expect(p.config.JobTimeout).To(Equal(defaultJobTimeout))
			p.Close()
			wp.Close()
		})
	})

	Describe("Enqueue", func() {
		It("returns true when the queue has capacity", func() {
			Expect(wp.Enqueue(Job{Chat: settledChat("c1", "hi", "Hello")})).To(BeTrue())
			wp.Close()
		})

		It("drops jobs when the queue is full", func() {
			p := &Pool{
				config: &Config{},
				queue:  make(chan Job, 1),
				logger: logger.Nop(),
			}
			Expect(p.Enqueue(Job{DeleteID: "a"})).To(BeTrue())
			Expect(p.Enqueue(Job{DeleteID: "b"})).To(BeFalse())
			wp.Close()
		})
	})

	Describe("processing", func() {
		It("caches chats in enqueue order", func() {
			wp.Enqueue(Job{Chat: settledChat("c1", "hi")})
			wp.Enqueue(Job{Chat: settledChat("c1", "hi", "Hello")})
			wp.Close()

			got, err := driver.Get(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Messages).To(HaveLen(2))
		})

		It("deletes cached chats and ignores missing ones", func() {
			Expect(driver.Put(ctx, *settledChat("c1", "hi"))).To(Succeed())

			wp.Enqueue(Job{DeleteID: "c1"})
			wp.Enqueue(Job{DeleteID: "never-cached"})
			wp.Close()

			_, err := driver.Get(ctx, "c1")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("skips chats without a backend id", func() {
			wp.Enqueue(Job{Chat: settledChat("", "hi")})
			wp.Close()
			Expect(driver.Count()).To(BeZero())
		})

		It("publishes events", func() {
			event := eventstream.NewReplyEvent(eventstream.EventTypeReplyCompleted,
				eventstream.EventSource{Client: "smriti"},
				eventstream.ReplyMeta{ChatKey: "c1"},
			)
			wp.Enqueue(Job{Chat: settledChat("c1", "hi", "Hello"), Event: event})
			wp.Close()

			Expect(pub.Events()).To(ConsistOf(event))
			Expect(driver.Count()).To(Equal(1))
		})

		It("keeps going after a publish failure", func() {
			pub.err = errors.New("broker down")
			wp.Enqueue(Job{Chat: settledChat("c1", "hi"), Event: &eventstream.ReplyEvent{}})
			wp.Enqueue(Job{Chat: settledChat("c2", "yo")})
			wp.Close()

			Expect(driver.Count()).To(Equal(2))
		})

		It("can be closed twice", func() {
			wp.Close()
			wp.Close()
		})
	})

	Describe("Run", func() {
		var (
			slow *slowDriver
			p    *Pool
		)

		BeforeEach(func() {
			wp.Close()
			slow = &slowDriver{Driver: inmemory.NewDriver(), delay: 100 * time.Millisecond}
			var err error
			p, err = NewPool(&Config{
				Driver: slow,
				Logger: logger.New(logger.WithWriter(GinkgoWriter), logger.WithDebug(true)),
			})
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			p.Close()
		})

		It("clears the cache after writes already queued", func() {
			Expect(p.Enqueue(Job{Chat: settledChat("c1", "hi", "Hello")})).To(BeTrue())
			Expect(p.Run(ctx, Job{ClearAll: true})).To(Succeed())

			p.Close()
			Expect(slow.Count()).To(BeZero())
		})

		It("replaces the cache after writes already queued", func() {
			Expect(p.Enqueue(Job{Chat: settledChat("c1", "hi", "Hello")})).To(BeTrue())
			Expect(p.Run(ctx, Job{Replace: true, Chats: []chat.Chat{*settledChat("c2", "yo")}})).To(Succeed())

			p.Close()
			cached, err := slow.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(cached).To(HaveLen(1))
			Expect(cached[0].ID).To(Equal("c2"))
		})

		It("empties the cache when replacing with no chats", func() {
			Expect(slow.Driver.Put(ctx, *settledChat("c1", "hi"))).To(Succeed())
			Expect(p.Run(ctx, Job{Replace: true})).To(Succeed())
			Expect(slow.Count()).To(BeZero())
		})

		It("refuses jobs once closed", func() {
			p.Close()
			Expect(p.Run(ctx, Job{ClearAll: true})).To(MatchError(ErrClosed))
			Expect(p.Enqueue(Job{DeleteID: "c1"})).To(BeFalse())
		})
	})
})
