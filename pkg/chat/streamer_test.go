package chat_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/killallgit/normachat/pkg/chat"
	"github.com/killallgit/normachat/pkg/optimistic"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// fakeTransport replays a canned body, or hands out a pipe the test writes to
type fakeTransport struct {
	mu       sync.Mutex
	calls    int32
	requests []chat.SendRequest
	body     string
	err      error
	pipe     *io.PipeWriter
	opened   chan struct{}
}

func (f *fakeTransport) SendMessage(ctx context.Context, req chat.SendRequest) (io.ReadCloser, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	if f.opened == nil {
		return io.NopCloser(strings.NewReader(f.body)), nil
	}

	r, w := io.Pipe()
	f.mu.Lock()
	f.pipe = w
	f.mu.Unlock()
	go func() {
		<-ctx.Done()
		w.CloseWithError(ctx.Err())
	}()
	close(f.opened)
	return r, nil
}

func (f *fakeTransport) write(s string) {
	f.mu.Lock()
	w := f.pipe
	f.mu.Unlock()
	_, err := w.Write([]byte(s))
	Expect(err).ToNot(HaveOccurred())
}

type recorder struct {
	mu       sync.Mutex
	partials []string
	complete []chat.Message
	created  []string
	errs     []error
}

func (r *recorder) handlers() chat.Handlers {
	return chat.Handlers{
		OnPartial: func(text string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.partials = append(r.partials, text)
		},
		OnComplete: func(msg chat.Message) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.complete = append(r.complete, msg)
		},
		OnConversationCreated: func(id string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.created = append(r.created, id)
		},
		OnError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, err)
		},
	}
}

func (r *recorder) partialCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.partials)
}

var _ = Describe("Streamer", func() {
	var (
		ctx       context.Context
		transport *fakeTransport
		rec       *recorder
	)

	BeforeEach(func() {
		ctx = context.Background()
		transport = &fakeTransport{}
		rec = &recorder{}
	})

	It("runs the first exchange of a new conversation end to end", func() {
		transport.body = "data: {\"content\":\"La \"}\n" +
			"\n" +
			"data: {\"content\":\"Constitución...\"}\n" +
			"data: {\"done\":true,\"session_id\":\"abc123\",\"norma_ids\":[5,9]}\n"
		streamer := chat.NewStreamer(transport, chat.NewSession("constitucional", "simple"), rec.handlers())

		Expect(streamer.Send(ctx, "¿Qué dice el artículo 14?")).To(Succeed())

		session := streamer.Session()
		Expect(session.Messages).To(HaveLen(2))
		Expect(session.Messages[0].Role).To(Equal(chat.RoleUser))
		Expect(session.Messages[0].Content).To(Equal("¿Qué dice el artículo 14?"))
		Expect(session.Messages[1].Role).To(Equal(chat.RoleAssistant))
		Expect(session.Messages[1].Content).To(Equal("La Constitución..."))
		Expect(session.Messages[1].RelevantDocs()).To(Equal([]int64{5, 9}))
		Expect(session.State).To(Equal(chat.Idle{}))
		Expect(session.ID()).To(Equal("abc123"))

		Expect(rec.partials).To(Equal([]string{"La ", "La Constitución..."}))
		Expect(rec.complete).To(HaveLen(1))
		Expect(rec.created).To(Equal([]string{"abc123"}))
		Expect(rec.errs).To(BeEmpty())

		Expect(transport.requests).To(HaveLen(1))
		Expect(transport.requests[0]).To(Equal(chat.SendRequest{
			Message:  "¿Qué dice el artículo 14?",
			ChatType: "constitucional",
			Tone:     "simple",
		}))
	})

	It("sends the session id once the conversation exists", func() {
		transport.body = "data: {\"done\":true,\"session_id\":\"abc123\"}\n"
		streamer := chat.NewStreamer(transport, chat.NewSession("laboral", ""), rec.handlers())

		Expect(streamer.Send(ctx, "uno")).To(Succeed())
		Expect(streamer.Send(ctx, "dos")).To(Succeed())

		Expect(transport.requests[1].SessionID).To(Equal("abc123"))
		Expect(rec.created).To(Equal([]string{"abc123"}))
	})

	It("rejects a second send while streaming without calling the transport", func() {
		transport.opened = make(chan struct{})
		streamer := chat.NewStreamer(transport, chat.NewSession("laboral", ""), rec.handlers())

		result := make(chan error, 1)
		go func() { result <- streamer.Send(ctx, "primera") }()

		Eventually(transport.opened).Should(BeClosed())
		transport.write("data: {\"content\":\"par\"}\n")
		Eventually(rec.partialCount).Should(Equal(1))

		Expect(streamer.Send(ctx, "segunda")).To(MatchError(chat.ErrBusy))
		Expect(atomic.LoadInt32(&transport.calls)).To(Equal(int32(1)))

		transport.write("data: {\"content\":\"cial\",\"done\":true}\n")
		Eventually(result).Should(Receive(BeNil()))
		Expect(streamer.Session().Messages).To(HaveLen(2))
		Expect(streamer.Session().Messages[1].Content).To(Equal("parcial"))
	})

	It("keeps only the user message when the request is rejected", func() {
		transport.err = errors.New("503 service unavailable")
		streamer := chat.NewStreamer(transport, chat.NewSession("laboral", ""), rec.handlers())

		err := streamer.Send(ctx, "pregunta")

		var transportErr *chat.TransportError
		Expect(errors.As(err, &transportErr)).To(BeTrue())
		Expect(transportErr.Op).To(Equal("send"))
		Expect(rec.errs).To(HaveLen(1))

		session := streamer.Session()
		Expect(session.Messages).To(HaveLen(1))
		Expect(session.Messages[0].Content).To(Equal("pregunta"))
		Expect(session.Busy()).To(BeFalse())
		Expect(atomic.LoadInt32(&transport.calls)).To(Equal(int32(1)))
	})

	It("discards streamed fragments after an error frame", func() {
		transport.body = "data: {\"content\":\"medio\"}\ndata: {\"error\":true}\ndata: {\"content\":\"ignored\"}\n"
		streamer := chat.NewStreamer(transport, chat.NewSession("laboral", ""), rec.handlers())

		Expect(streamer.Send(ctx, "pregunta")).To(MatchError(chat.ErrServerFrame))

		session := streamer.Session()
		Expect(session.Messages).To(HaveLen(1))
		Expect(session.Messages[0].IsUser()).To(BeTrue())
		Expect(session.Busy()).To(BeFalse())
		Expect(rec.complete).To(BeEmpty())
		Expect(rec.errs).To(HaveLen(1))
	})

	It("treats a stream that ends without completion as a transport failure", func() {
		transport.body = "data: {\"content\":\"cortado\"}\n"
		streamer := chat.NewStreamer(transport, chat.NewSession("laboral", ""), rec.handlers())

		err := streamer.Send(ctx, "pregunta")

		Expect(err).To(MatchError(chat.ErrStreamClosed))
		Expect(streamer.Session().Messages).To(HaveLen(1))
		Expect(streamer.Session().Busy()).To(BeFalse())
	})

	It("reports the first malformed frame and keeps reading", func() {
		transport.body = "data: {bad\ndata: {worse\ndata: {\"content\":\"ok\"}\ndata: {\"done\":true}\n"
		streamer := chat.NewStreamer(transport, chat.NewSession("laboral", ""), rec.handlers())

		Expect(streamer.Send(ctx, "pregunta")).To(Succeed())

		Expect(rec.errs).To(HaveLen(1))
		Expect(streamer.Session().Messages[1].Content).To(Equal("ok"))
	})

	It("stops applying updates after Close", func() {
		transport.opened = make(chan struct{})
		streamer := chat.NewStreamer(transport, chat.NewSession("laboral", ""), rec.handlers())

		result := make(chan error, 1)
		go func() { result <- streamer.Send(ctx, "pregunta") }()

		Eventually(transport.opened).Should(BeClosed())
		transport.write("data: {\"content\":\"antes\"}\n")
		Eventually(rec.partialCount).Should(Equal(1))

		streamer.Close()
		Eventually(result).Should(Receive(MatchError(chat.ErrClosed)))

		Expect(rec.partials).To(Equal([]string{"antes"}))
		Expect(rec.errs).To(BeEmpty())
		Expect(streamer.Send(ctx, "otra")).To(MatchError(chat.ErrClosed))
	})

	Describe("SetFeedback", func() {
		var (
			dispatcher *optimistic.Dispatcher
			feedback   *fakeFeedback
			streamer   *chat.Streamer
			replyID    string
		)

		BeforeEach(func() {
			dispatcher = optimistic.NewDispatcher()
			feedback = &fakeFeedback{}
			transport.body = "data: {\"content\":\"ok\",\"done\":true,\"session_id\":\"s1\"}\n"
			streamer = chat.NewStreamer(transport, chat.NewSession("laboral", ""), rec.handlers(),
				chat.WithFeedbackClient(feedback, dispatcher),
				chat.WithClock(func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }))
			Expect(streamer.Send(ctx, "pregunta")).To(Succeed())
			replyID = streamer.Session().Messages[1].ID
		})

		AfterEach(func() {
			dispatcher.Close()
		})

		It("applies feedback immediately and sends it to the backend", func() {
			Expect(streamer.SetFeedback(replyID, chat.FeedbackLike)).To(Succeed())
			Expect(streamer.Session().Messages[1].Feedback.Kind).To(Equal(chat.FeedbackLike))

			Expect(dispatcher.Flush(ctx)).To(Succeed())
			Expect(feedback.created).To(Equal([]string{replyID + ":like"}))
		})

		It("rolls back when the backend rejects it", func() {
			feedback.err = errors.New("boom")
			Expect(streamer.SetFeedback(replyID, chat.FeedbackDislike)).To(Succeed())
			Expect(dispatcher.Flush(ctx)).To(Succeed())

			Expect(streamer.Session().Messages[1].Feedback).To(BeNil())
		})

		It("clears feedback with an empty kind", func() {
			Expect(streamer.SetFeedback(replyID, chat.FeedbackLike)).To(Succeed())
			Expect(streamer.SetFeedback(replyID, "")).To(Succeed())
			Expect(dispatcher.Flush(ctx)).To(Succeed())

			Expect(streamer.Session().Messages[1].Feedback).To(BeNil())
			Expect(feedback.deleted).To(Equal([]string{replyID}))
		})

		It("keeps a newer accepted rating when an earlier one fails", func() {
			feedback.reject = map[chat.FeedbackKind]bool{chat.FeedbackLike: true}
			Expect(streamer.SetFeedback(replyID, chat.FeedbackLike)).To(Succeed())
			Expect(streamer.SetFeedback(replyID, chat.FeedbackDislike)).To(Succeed())
			Expect(dispatcher.Flush(ctx)).To(Succeed())

			Expect(feedback.created).To(Equal([]string{replyID + ":dislike"}))
			Expect(streamer.Session().Messages[1].Feedback).ToNot(BeNil())
			Expect(streamer.Session().Messages[1].Feedback.Kind).To(Equal(chat.FeedbackDislike))
		})

		It("falls back to the last accepted rating when every later one fails", func() {
			Expect(streamer.SetFeedback(replyID, chat.FeedbackLike)).To(Succeed())
			Expect(dispatcher.Flush(ctx)).To(Succeed())

			feedback.err = errors.New("boom")
			Expect(streamer.SetFeedback(replyID, chat.FeedbackDislike)).To(Succeed())
			Expect(streamer.SetFeedback(replyID, "")).To(Succeed())
			Expect(dispatcher.Flush(ctx)).To(Succeed())

			Expect(streamer.Session().Messages[1].Feedback).ToNot(BeNil())
			Expect(streamer.Session().Messages[1].Feedback.Kind).To(Equal(chat.FeedbackLike))
		})

		It("refuses feedback on user messages", func() {
			userID := streamer.Session().Messages[0].ID
			Expect(streamer.SetFeedback(userID, chat.FeedbackLike)).To(MatchError(chat.ErrMessageNotFound))
		})
	})
})

type fakeFeedback struct {
	created []string
	deleted []string
	err     error
	reject  map[chat.FeedbackKind]bool
}

func (f *fakeFeedback) CreateFeedback(ctx context.Context, messageID string, kind chat.FeedbackKind) error {
	if f.err != nil {
		return f.err
	}
	if f.reject[kind] {
		return errors.New("rejected " + string(kind))
	}
	f.created = append(f.created, messageID+":"+string(kind))
	return nil
}

func (f *fakeFeedback) DeleteFeedback(ctx context.Context, messageID string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, messageID)
	return nil
}
