package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// MetaRelevantDocs is the metadata key holding related norma ids
const MetaRelevantDocs = "relevant_docs"

// FeedbackKind is a user's verdict on an assistant message
type FeedbackKind string

const (
	FeedbackLike    FeedbackKind = "like"
	FeedbackDislike FeedbackKind = "dislike"
)

// Valid reports whether k is a known feedback kind
func (k FeedbackKind) Valid() bool {
	return k == FeedbackLike || k == FeedbackDislike
}

// Feedback is attached to an assistant message
type Feedback struct {
	Kind      FeedbackKind `json:"kind"`
	CreatedAt time.Time    `json:"created_at"`
}

type Message struct {
	ID        string         `json:"id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Tokens    int            `json:"tokens,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Feedback  *Feedback      `json:"feedback,omitempty"`
}

func NewUserMessage(content string) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      RoleUser,
		Content:   strings.TrimSpace(content),
		CreatedAt: time.Now(),
	}
}

func NewAssistantMessage(content string) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      RoleAssistant,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

func NewSystemMessage(content string) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      RoleSystem,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

func (m Message) IsUser() bool {
	return m.Role == RoleUser
}

func (m Message) IsAssistant() bool {
	return m.Role == RoleAssistant
}

func (m Message) IsSystem() bool {
	return m.Role == RoleSystem
}

func (m Message) IsEmpty() bool {
	return strings.TrimSpace(m.Content) == ""
}

func (m Message) WithCreatedAt(t time.Time) Message {
	m.CreatedAt = t
	return m
}

// WithRelevantDocs returns a copy of m carrying the given norma ids
func (m Message) WithRelevantDocs(ids []int64) Message {
	meta := make(map[string]any, len(m.Metadata)+1)
	for k, v := range m.Metadata {
		meta[k] = v
	}
	docs := make([]int64, len(ids))
	copy(docs, ids)
	meta[MetaRelevantDocs] = docs
	m.Metadata = meta
	return m
}

// RelevantDocs returns the norma ids stored in the metadata.
// Values decoded from JSON arrive as []any of float64 and are converted.
func (m Message) RelevantDocs() []int64 {
	raw, ok := m.Metadata[MetaRelevantDocs]
	if !ok {
		return nil
	}

	switch v := raw.(type) {
	case []int64:
		out := make([]int64, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]int64, 0, len(v))
		for _, item := range v {
			switch n := item.(type) {
			case float64:
				out = append(out, int64(n))
			case int64:
				out = append(out, n)
			case int:
				out = append(out, int64(n))
			}
		}
		return out
	default:
		return nil
	}
}

// AddMessage returns a new transcript with msg appended
func AddMessage(messages []Message, msg Message) []Message {
	out := make([]Message, len(messages)+1)
	copy(out, messages)
	out[len(messages)] = msg
	return out
}

// CopyMessages returns a shallow copy of the transcript
func CopyMessages(messages []Message) []Message {
	out := make([]Message, len(messages))
	copy(out, messages)
	return out
}

func FindMessage(messages []Message, id string) (int, bool) {
	for i, msg := range messages {
		if msg.ID == id {
			return i, true
		}
	}
	return -1, false
}

func LastUserMessage(messages []Message) (Message, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].IsUser() {
			return messages[i], true
		}
	}
	return Message{}, false
}

func LastAssistantMessage(messages []Message) (Message, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].IsAssistant() {
			return messages[i], true
		}
	}
	return Message{}, false
}

// WithFeedback returns a new transcript where message id carries fb (nil clears it).
// It also returns the previous feedback so callers can restore it.
func WithFeedback(messages []Message, id string, fb *Feedback) ([]Message, *Feedback, bool) {
	idx, ok := FindMessage(messages, id)
	if !ok {
		return messages, nil, false
	}

	out := CopyMessages(messages)
	prev := out[idx].Feedback
	out[idx].Feedback = fb
	return out, prev, true
}
