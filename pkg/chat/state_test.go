package chat_test

import (
	"time"

	"github.com/killallgit/normachat/pkg/chat"
	"github.com/killallgit/normachat/pkg/sse"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Session state machine", func() {
	var (
		now     time.Time
		session chat.Session
	)

	BeforeEach(func() {
		now = time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC)
		session = chat.NewSession("normativa_nacional", "formal")
	})

	submit := func(s chat.Session, text string) chat.Session {
		next, _, err := chat.Submit(s, text, now)
		Expect(err).ToNot(HaveOccurred())
		return next
	}

	apply := func(s chat.Session, f sse.Frame) (chat.Session, chat.Effect) {
		next, effect, err := chat.ApplyFrame(s, f, now)
		Expect(err).ToNot(HaveOccurred())
		return next, effect
	}

	Describe("Submit", func() {
		It("moves to awaiting-response and appends the user message", func() {
			next, msg, err := chat.Submit(session, "Hola", now)

			Expect(err).ToNot(HaveOccurred())
			Expect(next.State).To(Equal(chat.AwaitingResponse{Since: now}))
			Expect(next.Messages).To(Equal([]chat.Message{msg}))
			Expect(session.Messages).To(BeEmpty())
		})

		It("rejects blank input", func() {
			_, _, err := chat.Submit(session, "   ", now)
			Expect(err).To(MatchError(chat.ErrEmptyMessage))
		})

		It("rejects a submission while awaiting a response", func() {
			s := submit(session, "uno")
			_, _, err := chat.Submit(s, "dos", now)
			Expect(err).To(MatchError(chat.ErrBusy))
		})

		It("rejects a submission while streaming", func() {
			s, _ := apply(submit(session, "uno"), sse.Frame{Content: "parcial"})
			Expect(s.State.Name()).To(Equal("streaming"))

			_, _, err := chat.Submit(s, "dos", now)
			Expect(err).To(MatchError(chat.ErrBusy))
		})
	})

	Describe("ApplyFrame", func() {
		It("concatenates fragments in order", func() {
			s := submit(session, "pregunta")
			s, effect := apply(s, sse.Frame{Content: "X"})
			Expect(effect.Kind).To(Equal(chat.EffectPartial))
			s, effect = apply(s, sse.Frame{Content: "Y"})

			Expect(effect.Partial).To(Equal("XY"))
			Expect(s.Partial()).To(Equal("XY"))
			Expect(s.Messages).To(HaveLen(1))
		})

		It("ignores frames without content or flags", func() {
			s := submit(session, "pregunta")
			next, effect := apply(s, sse.Frame{})

			Expect(effect.Kind).To(Equal(chat.EffectNone))
			Expect(next.State).To(Equal(s.State))
		})

		It("commits exactly one assistant message on completion", func() {
			s := submit(session, "pregunta")
			s, _ = apply(s, sse.Frame{Content: "La "})
			s, _ = apply(s, sse.Frame{Content: "respuesta"})
			s, effect := apply(s, sse.Frame{Done: true, SessionID: "s-1", NormaIDs: []int64{5, 9}})

			Expect(s.State).To(Equal(chat.Idle{}))
			Expect(s.Messages).To(HaveLen(2))
			Expect(s.Messages[1].Role).To(Equal(chat.RoleAssistant))
			Expect(s.Messages[1].Content).To(Equal("La respuesta"))
			Expect(s.Messages[1].RelevantDocs()).To(Equal([]int64{5, 9}))
			Expect(effect.Kind).To(Equal(chat.EffectCompleted))
			Expect(effect.Message.Content).To(Equal("La respuesta"))
		})

		It("includes content carried by the completion frame itself", func() {
			s := submit(session, "pregunta")
			s, _ = apply(s, sse.Frame{Content: "A"})
			s, _ = apply(s, sse.Frame{Content: "B", Done: true})

			Expect(s.Messages[1].Content).To(Equal("AB"))
		})

		It("creates the conversation for a sessionless exchange", func() {
			s := submit(session, "pregunta")
			s, effect := apply(s, sse.Frame{Done: true, SessionID: "abc123"})

			Expect(effect.CreatedSessionID).To(Equal("abc123"))
			Expect(s.ID()).To(Equal("abc123"))
			Expect(s.Conversation.ChatType).To(Equal("normativa_nacional"))
			Expect(s.Conversation.Title).To(Equal("pregunta"))
		})

		It("does not report a new conversation when one already exists", func() {
			s := chat.ResumeSession(chat.Conversation{ID: "old", ChatType: "laboral", CreatedAt: now.Add(-time.Hour)}, nil, "")
			s = submit(s, "pregunta")
			s, effect := apply(s, sse.Frame{Content: "ok", Done: true, SessionID: "old"})

			Expect(effect.CreatedSessionID).To(BeEmpty())
			Expect(s.Conversation.Snippet).To(Equal("ok"))
			Expect(s.Conversation.UpdatedAt).To(Equal(now))
		})

		It("drops partial text on an error frame but keeps the user message", func() {
			s := submit(session, "pregunta")
			s, _ = apply(s, sse.Frame{Content: "medio"})
			s, effect := apply(s, sse.Frame{Error: true, Detail: "quota"})

			Expect(effect.Kind).To(Equal(chat.EffectFailed))
			Expect(effect.Err).To(MatchError(chat.ErrServerFrame))
			Expect(effect.Err.Error()).To(ContainSubstring("quota"))
			Expect(s.State).To(Equal(chat.Idle{}))
			Expect(s.Messages).To(HaveLen(1))
			Expect(s.Messages[0].Content).To(Equal("pregunta"))
			Expect(s.Partial()).To(BeEmpty())
		})

		It("rejects frames while idle", func() {
			_, _, err := chat.ApplyFrame(session, sse.Frame{Content: "x"}, now)
			Expect(err).To(MatchError(chat.ErrNotStreaming))
		})
	})

	Describe("Fail", func() {
		It("returns to idle from any state", func() {
			awaiting := submit(session, "pregunta")
			streaming, _ := apply(awaiting, sse.Frame{Content: "x"})

			for _, s := range []chat.Session{session, awaiting, streaming} {
				failed := chat.Fail(s)
				Expect(failed.State).To(Equal(chat.Idle{}))
				Expect(failed.Busy()).To(BeFalse())
			}
		})
	})
})
