package stream_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/localmind/smriti/pkg/stream"
)

// recordingSleep captures requested delays without waiting.
type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleep) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func (s *recordingSleep) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

var _ = Describe("Supervisor", func() {
	var (
		sleeper *recordingSleep
		sink    *collector
		req     stream.Request
	)

	BeforeEach(func() {
		sleeper = &recordingSleep{}
		sink = &collector{}
		req = stream.Request{URL: "http://backend/api/chat"}
	})

	type step = func(*http.Request) (*http.Response, error)

	It("defaults to six attempts starting at one second", func() {
		sup := stream.NewSupervisor(&scriptedDoer{})
		Expect(sup.MaxAttempts()).To(Equal(6))
		Expect(sup.Delay(0)).To(Equal(time.Second))
		Expect(sup.Delay(3)).To(Equal(8 * time.Second))
	})

	It("caps the backoff for long attempt budgets", func() {
		sup := stream.NewSupervisor(&scriptedDoer{}, stream.WithMaxAttempts(70))
		Expect(sup.Delay(11)).To(Equal(2048 * time.Second))
		Expect(sup.Delay(12)).To(Equal(stream.MaxDelay))
		for _, i := range []int{34, 40, 63, 68} {
			Expect(sup.Delay(i)).To(Equal(stream.MaxDelay))
		}
	})

	It("succeeds on the first attempt without sleeping", func() {
		doer := &scriptedDoer{script: []step{ok("data: Hel\n\ndata: lo\n\n")}}
		sup := stream.NewSupervisor(doer, stream.WithSleep(sleeper.Sleep))

		Expect(sup.Run(context.Background(), req, sink.add)).To(Succeed())
		Expect(sink.text()).To(Equal("Hello"))
		Expect(doer.Calls()).To(Equal(1))
		Expect(sleeper.Delays()).To(BeEmpty())
	})

	It("doubles the delay after every failure and gives up after the budget", func() {
		doer := &scriptedDoer{script: []step{refuse}}
		sup := stream.NewSupervisor(doer,
			stream.WithBaseDelay(100*time.Millisecond),
			stream.WithSleep(sleeper.Sleep),
		)

		err := sup.Run(context.Background(), req, sink.add)
		Expect(err).To(MatchError(stream.ErrRetriesExhausted))

		var exhausted *stream.RetriesExhaustedError
		Expect(errors.As(err, &exhausted)).To(BeTrue())
		Expect(exhausted.Attempts).To(Equal(6))
		Expect(stream.IsRetryable(exhausted.Last)).To(BeTrue())

		Expect(doer.Calls()).To(Equal(6))
		Expect(sleeper.Delays()).To(Equal([]time.Duration{
			100 * time.Millisecond,
			200 * time.Millisecond,
			400 * time.Millisecond,
			800 * time.Millisecond,
			1600 * time.Millisecond,
		}))
	})

	It("honors a custom attempt budget", func() {
		doer := &scriptedDoer{script: []step{respond(http.StatusServiceUnavailable, nil)}}
		sup := stream.NewSupervisor(doer, stream.WithMaxAttempts(2), stream.WithSleep(sleeper.Sleep))

		err := sup.Run(context.Background(), req, sink.add)
		Expect(err).To(MatchError(stream.ErrRetriesExhausted))
		Expect(doer.Calls()).To(Equal(2))
		Expect(sleeper.Delays()).To(HaveLen(1))
	})

	It("retries after a non-success status", func() {
		doer := &scriptedDoer{script: []step{
			respond(http.StatusBadGateway, nil),
			ok("data: Hi\n\n"),
		}}
		sup := stream.NewSupervisor(doer, stream.WithSleep(sleeper.Sleep))

		Expect(sup.Run(context.Background(), req, sink.add)).To(Succeed())
		Expect(sink.all()).To(Equal([]string{"Hi"}))
		Expect(doer.Calls()).To(Equal(2))
	})

	It("keeps payloads from a failed attempt and appends the retry's payloads", func() {
		doer := &scriptedDoer{script: []step{
			resetAfter("data: Hel\n\n"),
			ok("data: lo\n\ndata: !\n\n"),
		}}

		var retries []int
		sup := stream.NewSupervisor(doer,
			stream.WithSleep(sleeper.Sleep),
			stream.WithOnRetry(func(attempt int, err error) {
				Expect(stream.IsRetryable(err)).To(BeTrue())
				retries = append(retries, attempt)
			}),
		)

		Expect(sup.Run(context.Background(), req, sink.add)).To(Succeed())
		Expect(sink.text()).To(Equal("Hello!"))
		Expect(retries).To(Equal([]int{2}))
		Expect(sleeper.Delays()).To(Equal([]time.Duration{time.Second}))
	})

	It("sends the same request on every attempt", func() {
		doer := &scriptedDoer{script: []step{refuse, ok("")}}
		req.Body = []byte(`{"message":"hi"}`)
		sup := stream.NewSupervisor(doer, stream.WithSleep(sleeper.Sleep))

		Expect(sup.Run(context.Background(), req, sink.add)).To(Succeed())
		Expect(doer.requests).To(HaveLen(2))
		Expect(doer.requests[0].ContentLength).To(Equal(doer.requests[1].ContentLength))
		Expect(doer.requests[1].URL.String()).To(Equal("http://backend/api/chat"))
	})

	It("does not retry an unsupported transport", func() {
		doer := &scriptedDoer{script: []step{respond(http.StatusOK, nil)}}
		sup := stream.NewSupervisor(doer, stream.WithSleep(sleeper.Sleep))

		Expect(sup.Run(context.Background(), req, sink.add)).To(MatchError(stream.ErrUnsupportedTransport))
		Expect(doer.Calls()).To(Equal(1))
	})

	It("does not retry an invalid request", func() {
		doer := &scriptedDoer{script: []step{ok("")}}
		sup := stream.NewSupervisor(doer, stream.WithSleep(sleeper.Sleep))

		err := sup.Run(context.Background(), stream.Request{Method: "BAD METHOD", URL: "http://backend"}, sink.add)
		Expect(err).To(HaveOccurred())
		Expect(stream.IsRetryable(err)).To(BeFalse())
		Expect(doer.Calls()).To(Equal(0))
	})

	It("does not retry after cancellation", func() {
		doer := &scriptedDoer{script: []step{ok("data: a\n\ndata: b\n\n")}}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		retried := false
		sup := stream.NewSupervisor(doer,
			stream.WithSleep(sleeper.Sleep),
			stream.WithOnRetry(func(int, error) { retried = true }),
		)

		err := sup.Run(ctx, req, func(p string) {
			sink.add(p)
			cancel()
		})
		Expect(err).To(MatchError(context.Canceled))
		Expect(sink.all()).To(Equal([]string{"a"}))
		Expect(retried).To(BeFalse())
		Expect(doer.Calls()).To(Equal(1))
	})

	It("aborts the backoff wait on cancellation", func() {
		doer := &scriptedDoer{script: []step{refuse}}

		ctx, cancel := context.WithCancel(context.Background())
		sup := stream.NewSupervisor(doer,
			stream.WithBaseDelay(time.Hour),
			stream.WithOnRetry(func(int, error) {}),
		)

		go func() {
			defer GinkgoRecover()
			Eventually(doer.Calls).Should(Equal(1))
			cancel()
		}()

		Expect(sup.Run(ctx, req, sink.add)).To(MatchError(context.Canceled))
		Expect(doer.Calls()).To(Equal(1))
	})

	Describe("Sleep", func() {
		It("waits for the duration", func() {
			start := time.Now()
			Expect(stream.Sleep(context.Background(), 20*time.Millisecond)).To(Succeed())
			Expect(time.Since(start)).To(BeNumerically(">=", 20*time.Millisecond))
		})

		It("returns early when the context is done", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			Expect(stream.Sleep(ctx, time.Hour)).To(MatchError(context.Canceled))
		})
	})
})
