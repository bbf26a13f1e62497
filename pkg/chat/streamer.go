package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/killallgit/normachat/pkg/logger"
	"github.com/killallgit/normachat/pkg/optimistic"
	"github.com/killallgit/normachat/pkg/sse"
)

// SendRequest is the body of a message send
type SendRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
	ChatType  string `json:"chat_type"`
	Tone      string `json:"tone,omitempty"`
}

// Transport posts a message and returns the streamed reply body
type Transport interface {
	SendMessage(ctx context.Context, req SendRequest) (io.ReadCloser, error)
}

// FeedbackClient persists feedback on assistant messages
type FeedbackClient interface {
	CreateFeedback(ctx context.Context, messageID string, kind FeedbackKind) error
	DeleteFeedback(ctx context.Context, messageID string) error
}

// Handlers receive the observable outcomes of a send.
// They are called from the goroutine running Send and never after Close.
type Handlers struct {
	OnPartial             func(text string)
	OnComplete            func(msg Message)
	OnConversationCreated func(sessionID string)
	OnError               func(err error)
}

// Streamer owns a Session and drives sends through a Transport.
// Only the streamer mutates the session; readers get snapshots.
type Streamer struct {
	transport Transport
	handlers  Handlers
	now       func() time.Time

	feedback   FeedbackClient
	dispatcher *optimistic.Dispatcher
	// confirmed holds the last feedback the backend accepted per message
	confirmed map[string]*Feedback

	mu      sync.Mutex
	session Session
	closed  bool
	cancel  context.CancelFunc
}

// StreamerOption configures a Streamer
type StreamerOption func(*Streamer)

// WithClock overrides the time source
func WithClock(now func() time.Time) StreamerOption {
	return func(s *Streamer) { s.now = now }
}

// WithFeedbackClient enables SetFeedback through the given client and dispatcher
func WithFeedbackClient(client FeedbackClient, dispatcher *optimistic.Dispatcher) StreamerOption {
	return func(s *Streamer) {
		s.feedback = client
		s.dispatcher = dispatcher
	}
}

// NewStreamer creates a streamer for session
func NewStreamer(transport Transport, session Session, handlers Handlers, opts ...StreamerOption) *Streamer {
	if session.State == nil {
		session.State = Idle{}
	}
	s := &Streamer{
		transport: transport,
		handlers:  handlers,
		now:       time.Now,
		session:   session,
		confirmed: make(map[string]*Feedback),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Session returns a snapshot of the current session
func (s *Streamer) Session() Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.session
	snap.Messages = CopyMessages(s.session.Messages)
	if s.session.Conversation != nil {
		conv := *s.session.Conversation
		snap.Conversation = &conv
	}
	return snap
}

// Send submits text and consumes the streamed reply until it completes or fails.
// A send while another is in progress returns ErrBusy without contacting the backend.
// Failures are not retried; the state is always idle again when Send returns.
func (s *Streamer) Send(ctx context.Context, text string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	next, userMsg, err := Submit(s.session, text, s.now())
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.session = next

	req := SendRequest{
		SessionID: next.ID(),
		Message:   userMsg.Content,
		ChatType:  next.ChatType,
		Tone:      next.Tone,
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	logger.Debug("chat: sending message (session=%q chat_type=%s)", req.SessionID, req.ChatType)

	body, err := s.transport.SendMessage(ctx, req)
	if err != nil {
		return s.fail(&TransportError{Op: "send", Err: err})
	}
	defer body.Close()

	reader := sse.NewReader(body)
	parseReported := false
	for {
		frame, err := reader.Next(ctx)
		if err != nil {
			var parseErr *sse.ParseError
			if errors.As(err, &parseErr) {
				logger.Warn("chat: %v", parseErr)
				if !parseReported {
					parseReported = true
					s.report(parseErr)
				}
				continue
			}
			if errors.Is(err, io.EOF) {
				err = ErrStreamClosed
			}
			return s.fail(&TransportError{Op: "read", Err: err})
		}

		done, err := s.apply(frame)
		if done {
			return err
		}
	}
}

// apply folds a frame into the session and reports whether the attempt is over
func (s *Streamer) apply(frame sse.Frame) (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return true, ErrClosed
	}
	next, effect, err := ApplyFrame(s.session, frame, s.now())
	if err != nil {
		s.mu.Unlock()
		return true, err
	}
	s.session = next
	s.mu.Unlock()

	switch effect.Kind {
	case EffectPartial:
		if s.handlers.OnPartial != nil && s.alive() {
			s.handlers.OnPartial(effect.Partial)
		}
	case EffectFailed:
		logger.Warn("chat: %v", effect.Err)
		s.report(effect.Err)
		return true, effect.Err
	case EffectCompleted:
		logger.Info("chat: reply completed (%d chars, %d related normas)",
			len(effect.Message.Content), len(frame.NormaIDs))
		if s.handlers.OnComplete != nil && s.alive() {
			s.handlers.OnComplete(*effect.Message)
		}
		if effect.CreatedSessionID != "" && s.handlers.OnConversationCreated != nil && s.alive() {
			s.handlers.OnConversationCreated(effect.CreatedSessionID)
		}
		return true, nil
	}
	return false, nil
}

// fail returns the session to idle and reports err, unless the streamer was closed
func (s *Streamer) fail(err error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.session = Fail(s.session)
	s.mu.Unlock()

	logger.Error("chat: %v", err)
	s.report(err)
	return err
}

func (s *Streamer) report(err error) {
	if s.handlers.OnError != nil && s.alive() {
		s.handlers.OnError(err)
	}
}

func (s *Streamer) alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Close tears the streamer down: the in-flight read stops and no further
// state change or handler call happens.
func (s *Streamer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
}

// SetFeedback records kind on an assistant message optimistically.
// An empty kind clears existing feedback.
func (s *Streamer) SetFeedback(messageID string, kind FeedbackKind) error {
	if s.dispatcher == nil || s.feedback == nil {
		return fmt.Errorf("feedback is not configured")
	}
	if kind != "" && !kind.Valid() {
		return fmt.Errorf("invalid feedback kind %q", kind)
	}

	s.mu.Lock()
	idx, ok := FindMessage(s.session.Messages, messageID)
	if !ok || !s.session.Messages[idx].IsAssistant() {
		s.mu.Unlock()
		return ErrMessageNotFound
	}
	s.mu.Unlock()

	var next *Feedback
	if kind != "" {
		next = &Feedback{Kind: kind, CreatedAt: s.now()}
	}

	// rollback restores the last accepted feedback, and only while the
	// message still shows this command's value
	return s.dispatcher.Submit(optimistic.Func{
		Name: "feedback:" + messageID,
		ApplyFn: func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			var prev *Feedback
			s.session.Messages, prev, _ = WithFeedback(s.session.Messages, messageID, next)
			if _, ok := s.confirmed[messageID]; !ok {
				s.confirmed[messageID] = prev
			}
		},
		RollbackFn: func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			idx, ok := FindMessage(s.session.Messages, messageID)
			if !ok || s.session.Messages[idx].Feedback != next {
				return
			}
			s.session.Messages, _, _ = WithFeedback(s.session.Messages, messageID, s.confirmed[messageID])
		},
		ExecuteFn: func(ctx context.Context) error {
			var err error
			if next == nil {
				err = s.feedback.DeleteFeedback(ctx, messageID)
			} else {
				err = s.feedback.CreateFeedback(ctx, messageID, next.Kind)
			}
			if err != nil {
				return err
			}
			s.mu.Lock()
			s.confirmed[messageID] = next
			s.mu.Unlock()
			return nil
		},
	})
}

// Summary renders a one-line description of the session state
func (s *Streamer) Summary() string {
	snap := s.Session()
	var b strings.Builder
	fmt.Fprintf(&b, "%s, %d messages", snap.State.Name(), len(snap.Messages))
	if id := snap.ID(); id != "" {
		fmt.Fprintf(&b, ", session %s", id)
	}
	return b.String()
}
