package stream_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/localmind/smriti/pkg/stream"
)

var _ = Describe("Session", func() {
	var (
		server *httptest.Server
		req    stream.Request
		sink   *collector
	)

	startServer := func(handler http.HandlerFunc) {
		server = httptest.NewServer(handler)
		req = stream.Request{
			URL:  server.URL + "/api/chat",
			Body: []byte(`{"message":"hi","model":"deepseek"}`),
		}
	}

	BeforeEach(func() {
		sink = &collector{}
	})

	AfterEach(func() {
		if server != nil {
			server.Close()
			server = nil
		}
	})

	Describe("Run", func() {
		It("delivers payloads in order and completes", func() {
			startServer(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				flusher := w.(http.Flusher)
				fmt.Fprint(w, "data: Hel\n\n")
				flusher.Flush()
				fmt.Fprint(w, "data: lo\n\n")
				flusher.Flush()
			})

			session := stream.NewSession(server.Client(), req)
			Expect(session.State()).To(Equal(stream.StateNotStarted))

			Expect(session.Run(context.Background(), sink.add)).To(Succeed())
			Expect(sink.all()).To(Equal([]string{"Hel", "lo"}))
			Expect(session.State()).To(Equal(stream.StateCompleted))
			Expect(session.Delivered()).To(BeEquivalentTo(2))
		})

		It("sends the request descriptor", func() {
			var (
				gotMethod, gotAccept, gotType string
				gotBody                       []byte
			)
			startServer(func(w http.ResponseWriter, r *http.Request) {
				gotMethod = r.Method
				gotAccept = r.Header.Get("Accept")
				gotType = r.Header.Get("Content-Type")
				gotBody, _ = io.ReadAll(r.Body)
			})
			req.Header = http.Header{"Content-Type": []string{"application/json"}}

			Expect(stream.NewSession(server.Client(), req).Run(context.Background(), sink.add)).To(Succeed())
			Expect(gotMethod).To(Equal(http.MethodPost))
			Expect(gotAccept).To(Equal("text/event-stream"))
			Expect(gotType).To(Equal("application/json"))
			Expect(string(gotBody)).To(Equal(`{"message":"hi","model":"deepseek"}`))
			Expect(sink.all()).To(BeEmpty())
		})

		It("skips heartbeats and stops at the complete event", func() {
			startServer(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, "data: \n\ndata: Hi\n\n: keepalive\n\nevent: complete\ndata: done\n\ndata: late\n\n")
			})

			session := stream.NewSession(server.Client(), req)
			Expect(session.Run(context.Background(), sink.add)).To(Succeed())
			Expect(sink.all()).To(Equal([]string{"Hi"}))
		})

		It("delivers everything when the complete event check is disabled", func() {
			startServer(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, "data: Hi\n\nevent: complete\ndata: done\n\n")
			})

			session := stream.NewSession(server.Client(), req, stream.WithCompleteEvent(""))
			Expect(session.Run(context.Background(), sink.add)).To(Succeed())
			Expect(sink.all()).To(Equal([]string{"Hi", "done"}))
		})

		It("delivers a final frame without a terminating blank line", func() {
			startServer(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, "data: a\n\ndata: b")
			})

			Expect(stream.NewSession(server.Client(), req).Run(context.Background(), sink.add)).To(Succeed())
			Expect(sink.all()).To(Equal([]string{"a", "b"}))
		})

		It("copies the raw body to the tee", func() {
			body := "data: Hel\r\n\r\ndata: lo\n\n"
			startServer(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, body)
			})

			var raw bytes.Buffer
			session := stream.NewSession(server.Client(), req, stream.WithTee(&raw), stream.WithChunkSize(3))
			Expect(session.Run(context.Background(), sink.add)).To(Succeed())
			Expect(raw.String()).To(Equal(body))
			Expect(sink.text()).To(Equal("Hello"))
		})

		It("fails with the status code on a non-success response", func() {
			startServer(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				fmt.Fprint(w, "data: never\n\n")
			})

			session := stream.NewSession(server.Client(), req)
			err := session.Run(context.Background(), sink.add)

			var terr *stream.TransportError
			Expect(errors.As(err, &terr)).To(BeTrue())
			Expect(terr.StatusCode).To(Equal(http.StatusBadGateway))
			Expect(stream.IsRetryable(err)).To(BeTrue())
			Expect(sink.all()).To(BeEmpty())
			Expect(session.State()).To(Equal(stream.StateFailed))
		})

		It("reports a dropped connection as a transport error after delivering earlier payloads", func() {
			startServer(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, "data: Hel\n\n")
				w.(http.Flusher).Flush()
				panic(http.ErrAbortHandler)
			})

			session := stream.NewSession(server.Client(), req)
			err := session.Run(context.Background(), sink.add)
			Expect(stream.IsRetryable(err)).To(BeTrue())
			Expect(sink.all()).To(Equal([]string{"Hel"}))
			Expect(session.State()).To(Equal(stream.StateFailed))
		})

		It("reports connection failures as transport errors", func() {
			doer := &scriptedDoer{script: []func(*http.Request) (*http.Response, error){refuse}}

			err := stream.NewSession(doer, stream.Request{URL: "http://backend/api/chat"}).Run(context.Background(), sink.add)
			Expect(stream.IsRetryable(err)).To(BeTrue())
			Expect(err).To(MatchError(ContainSubstring("connection refused")))
		})

		It("treats a non-success response without a body as a retryable status failure", func() {
			doer := &scriptedDoer{script: []func(*http.Request) (*http.Response, error){
				respond(http.StatusServiceUnavailable, nil),
			}}

			session := stream.NewSession(doer, stream.Request{URL: "http://backend/api/chat"})
			err := session.Run(context.Background(), sink.add)

			var terr *stream.TransportError
			Expect(errors.As(err, &terr)).To(BeTrue())
			Expect(terr.StatusCode).To(Equal(http.StatusServiceUnavailable))
			Expect(stream.IsRetryable(err)).To(BeTrue())
			Expect(session.State()).To(Equal(stream.StateFailed))
		})

		It("rejects a response without a body", func() {
			doer := &scriptedDoer{script: []func(*http.Request) (*http.Response, error){
				respond(http.StatusOK, nil),
			}}

			session := stream.NewSession(doer, stream.Request{URL: "http://backend/api/chat"})
			err := session.Run(context.Background(), sink.add)
			Expect(err).To(MatchError(stream.ErrUnsupportedTransport))
			Expect(stream.IsRetryable(err)).To(BeFalse())
			Expect(session.State()).To(Equal(stream.StateFailed))
		})

		It("cannot be run twice", func() {
			doer := &scriptedDoer{script: []func(*http.Request) (*http.Response, error){ok("data: x\n\n")}}

			session := stream.NewSession(doer, stream.Request{URL: "http://backend/api/chat"})
			Expect(session.Run(context.Background(), sink.add)).To(Succeed())
			Expect(session.Run(context.Background(), sink.add)).To(MatchError(stream.ErrSessionUsed))
			Expect(doer.Calls()).To(Equal(1))
		})

		It("stops delivering once canceled", func() {
			startServer(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, "data: first\n\n")
				w.(http.Flusher).Flush()
				<-r.Context().Done()
			})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			session := stream.NewSession(server.Client(), req)
			err := session.Run(ctx, func(p string) {
				sink.add(p)
				cancel()
			})

			Expect(err).To(MatchError(context.Canceled))
			Expect(stream.IsRetryable(err)).To(BeFalse())
			Expect(sink.all()).To(Equal([]string{"first"}))
			Expect(session.State()).To(Equal(stream.StateCanceled))
		})

		It("does not deliver frames already buffered after cancellation", func() {
			doer := &scriptedDoer{script: []func(*http.Request) (*http.Response, error){
				ok("data: a\n\ndata: b\n\ndata: c\n\n"),
			}}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			session := stream.NewSession(doer, stream.Request{URL: "http://backend/api/chat"})
			err := session.Run(ctx, func(p string) {
				sink.add(p)
				cancel()
			})

			Expect(err).To(MatchError(context.Canceled))
			Expect(sink.all()).To(Equal([]string{"a"}))
		})
	})

	Describe("Payloads", func() {
		It("yields every payload", func() {
			doer := &scriptedDoer{script: []func(*http.Request) (*http.Response, error){
				ok("data: Hel\n\ndata: lo\n\n"),
			}}

			var got []string
			for p, err := range stream.NewSession(doer, stream.Request{URL: "http://backend/api/chat"}).Payloads(context.Background()) {
				Expect(err).NotTo(HaveOccurred())
				got = append(got, p)
			}
			Expect(got).To(Equal([]string{"Hel", "lo"}))
		})

		It("cancels the stream when the loop breaks", func() {
			doer := &scriptedDoer{script: []func(*http.Request) (*http.Response, error){
				ok("data: a\n\ndata: b\n\ndata: c\n\n"),
			}}

			session := stream.NewSession(doer, stream.Request{URL: "http://backend/api/chat"})
			var got []string
			for p, err := range session.Payloads(context.Background()) {
				Expect(err).NotTo(HaveOccurred())
				got = append(got, p)
				break
			}
			Expect(got).To(Equal([]string{"a"}))
			Expect(session.State()).To(Equal(stream.StateCanceled))
		})

		It("yields the terminal error last", func() {
			doer := &scriptedDoer{script: []func(*http.Request) (*http.Response, error){
				resetAfter("data: partial\n\n"),
			}}

			var (
				got     []string
				lastErr error
			)
			for p, err := range stream.NewSession(doer, stream.Request{URL: "http://backend/api/chat"}).Payloads(context.Background()) {
				if err != nil {
					lastErr = err
					continue
				}
				got = append(got, p)
			}
			Expect(got).To(Equal([]string{"partial"}))
			Expect(stream.IsRetryable(lastErr)).To(BeTrue())
		})
	})

	Describe("State", func() {
		It("names every state", func() {
			Expect(stream.StateConnecting.String()).To(Equal("connecting"))
			Expect(stream.StateStreaming.String()).To(Equal("streaming"))
			Expect(stream.State(42).String()).To(Equal("state(42)"))
			Expect(strings.ToUpper(stream.StateCompleted.String())).To(Equal("COMPLETED"))
		})
	})
})
