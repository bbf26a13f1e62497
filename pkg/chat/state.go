package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/killallgit/normachat/pkg/sse"
)

// State is the phase of the current exchange.
// It is one of Idle, AwaitingResponse or Streaming.
type State interface {
	Name() string
	isState()
}

// Idle accepts a new submission
type Idle struct{}

// AwaitingResponse has appended the user message and waits for the first fragment
type AwaitingResponse struct {
	Since time.Time
}

// Streaming accumulates assistant fragments
type Streaming struct {
	Partial   string
	Fragments int
}

func (Idle) Name() string             { return "idle" }
func (AwaitingResponse) Name() string { return "awaiting-response" }
func (Streaming) Name() string        { return "streaming" }

func (Idle) isState()             {}
func (AwaitingResponse) isState() {}
func (Streaming) isState()        {}

// Session is the client-side view of one conversation
type Session struct {
	Conversation *Conversation
	Messages     []Message
	State        State
	ChatType     string
	Tone         string
}

// NewSession starts a sessionless conversation
func NewSession(chatType, tone string) Session {
	return Session{
		Messages: []Message{},
		State:    Idle{},
		ChatType: chatType,
		Tone:     tone,
	}
}

// ResumeSession continues an existing conversation
func ResumeSession(conv Conversation, messages []Message, tone string) Session {
	c := conv
	return Session{
		Conversation: &c,
		Messages:     CopyMessages(messages),
		State:        Idle{},
		ChatType:     conv.ChatType,
		Tone:         tone,
	}
}

// ID returns the backend session id, empty until the first exchange completes
func (s Session) ID() string {
	if s.Conversation == nil {
		return ""
	}
	return s.Conversation.ID
}

// Busy reports whether a submission would be rejected
func (s Session) Busy() bool {
	_, idle := s.State.(Idle)
	return s.State != nil && !idle
}

// Partial returns the text streamed so far in the current attempt
func (s Session) Partial() string {
	if st, ok := s.State.(Streaming); ok {
		return st.Partial
	}
	return ""
}

// EffectKind tells the caller what a transition produced
type EffectKind int

const (
	EffectNone EffectKind = iota
	EffectPartial
	EffectCompleted
	EffectFailed
)

// Effect is the observable outcome of applying a frame
type Effect struct {
	Kind             EffectKind
	Partial          string
	Message          *Message
	CreatedSessionID string
	Err              error
}

// Submit appends the user message and waits for the reply.
// The user message is kept even if the attempt later fails.
func Submit(s Session, text string, now time.Time) (Session, Message, error) {
	if s.Busy() {
		return s, Message{}, ErrBusy
	}
	if strings.TrimSpace(text) == "" {
		return s, Message{}, ErrEmptyMessage
	}

	msg := NewUserMessage(text).WithCreatedAt(now)
	s.Messages = AddMessage(s.Messages, msg)
	s.State = AwaitingResponse{Since: now}
	return s, msg, nil
}

// ApplyFrame folds one stream frame into the session
func ApplyFrame(s Session, frame sse.Frame, now time.Time) (Session, Effect, error) {
	var partial Streaming
	switch st := s.State.(type) {
	case AwaitingResponse:
	case Streaming:
		partial = st
	default:
		return s, Effect{}, ErrNotStreaming
	}

	if frame.Error {
		err := ErrServerFrame
		if frame.Detail != "" {
			err = fmt.Errorf("%w: %s", ErrServerFrame, frame.Detail)
		}
		return Fail(s), Effect{Kind: EffectFailed, Err: err}, nil
	}

	if frame.HasContent() {
		partial.Partial += frame.Content
		partial.Fragments++
	}

	if frame.Done {
		return complete(s, partial.Partial, frame, now)
	}

	if !frame.HasContent() {
		return s, Effect{Kind: EffectNone}, nil
	}

	s.State = partial
	return s, Effect{Kind: EffectPartial, Partial: partial.Partial}, nil
}

func complete(s Session, text string, frame sse.Frame, now time.Time) (Session, Effect, error) {
	msg := NewAssistantMessage(text).WithCreatedAt(now)
	if len(frame.NormaIDs) > 0 {
		msg = msg.WithRelevantDocs(frame.NormaIDs)
	}

	s.Messages = AddMessage(s.Messages, msg)
	s.State = Idle{}

	effect := Effect{Kind: EffectCompleted, Message: &msg}
	switch {
	case s.Conversation == nil && frame.SessionID != "":
		user, _ := LastUserMessage(s.Messages)
		conv := NewConversationFromExchange(frame.SessionID, s.ChatType, user, msg, now)
		s.Conversation = &conv
		effect.CreatedSessionID = frame.SessionID
	case s.Conversation != nil:
		conv := Touch(*s.Conversation, msg, now)
		s.Conversation = &conv
	}

	return s, effect, nil
}

// Fail ends the attempt, dropping streamed fragments but keeping the user message
func Fail(s Session) Session {
	s.State = Idle{}
	return s
}
