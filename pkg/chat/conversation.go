package chat

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxTitleRunes   = 60
	maxSnippetRunes = 140
)

// Conversation is the durable record of a chat session
type Conversation struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	ChatType    string    `json:"chat_type"`
	Snippet     string    `json:"snippet,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Archived    bool      `json:"archived"`
	TotalTokens int       `json:"total_tokens"`
}

// NewConversationFromExchange synthesizes the record for a session the backend just assigned
func NewConversationFromExchange(sessionID, chatType string, user, assistant Message, now time.Time) Conversation {
	return Conversation{
		ID:          sessionID,
		Title:       ellipsize(user.Content, maxTitleRunes),
		ChatType:    chatType,
		Snippet:     ellipsize(assistant.Content, maxSnippetRunes),
		CreatedAt:   now,
		UpdatedAt:   now,
		TotalTokens: user.Tokens + assistant.Tokens,
	}
}

func Rename(conv Conversation, title string, now time.Time) Conversation {
	conv.Title = strings.TrimSpace(title)
	conv.UpdatedAt = now
	return conv
}

func Archive(conv Conversation, archived bool, now time.Time) Conversation {
	conv.Archived = archived
	conv.UpdatedAt = now
	return conv
}

// Touch records a completed exchange on an existing conversation
func Touch(conv Conversation, assistant Message, now time.Time) Conversation {
	conv.Snippet = ellipsize(assistant.Content, maxSnippetRunes)
	conv.TotalTokens += assistant.Tokens
	conv.UpdatedAt = now
	return conv
}

func ellipsize(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}
