package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/killallgit/normachat/pkg/chat"
)

// ListOptions filters and pages conversation listings
type ListOptions struct {
	Limit    int
	Offset   int
	Archived *bool
	ChatType string
}

func (o ListOptions) query() url.Values {
	q := url.Values{}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Offset > 0 {
		q.Set("offset", strconv.Itoa(o.Offset))
	}
	if o.Archived != nil {
		q.Set("archived", strconv.FormatBool(*o.Archived))
	}
	if o.ChatType != "" {
		q.Set("chat_type", o.ChatType)
	}
	return q
}

// ConversationPatch is a partial update; nil fields are left unchanged
type ConversationPatch struct {
	Title    *string `json:"title,omitempty"`
	Archived *bool   `json:"archived,omitempty"`
}

type createConversationRequest struct {
	Title    string `json:"title,omitempty"`
	ChatType string `json:"chat_type"`
}

func conversationPath(id string) string {
	return "/conversations/" + url.PathEscape(id)
}

// ListConversations returns the user's conversations, newest first
func (c *Client) ListConversations(ctx context.Context, opts ListOptions) ([]chat.Conversation, error) {
	var out []chat.Conversation
	if err := c.do(ctx, http.MethodGet, "/conversations", opts.query(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetConversation fetches one conversation
func (c *Client) GetConversation(ctx context.Context, id string) (*chat.Conversation, error) {
	var out chat.Conversation
	if err := c.do(ctx, http.MethodGet, conversationPath(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateConversation creates an empty conversation ahead of the first message
func (c *Client) CreateConversation(ctx context.Context, title, chatType string) (*chat.Conversation, error) {
	var out chat.Conversation
	body := createConversationRequest{Title: title, ChatType: chatType}
	if err := c.do(ctx, http.MethodPost, "/conversations", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateConversation applies a partial update and returns the stored record
func (c *Client) UpdateConversation(ctx context.Context, id string, patch ConversationPatch) (*chat.Conversation, error) {
	var out chat.Conversation
	if err := c.do(ctx, http.MethodPatch, conversationPath(id), nil, patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RenameConversation sets a new title
func (c *Client) RenameConversation(ctx context.Context, id, title string) (*chat.Conversation, error) {
	return c.UpdateConversation(ctx, id, ConversationPatch{Title: &title})
}

// ArchiveConversation sets the archived flag
func (c *Client) ArchiveConversation(ctx context.Context, id string, archived bool) (*chat.Conversation, error) {
	return c.UpdateConversation(ctx, id, ConversationPatch{Archived: &archived})
}

// DeleteConversation removes a conversation and its messages
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, conversationPath(id), nil, nil, nil)
}

// ListMessages returns the transcript of a conversation in order
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	var out []chat.Message
	if err := c.do(ctx, http.MethodGet, conversationPath(conversationID)+"/messages", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ResumeSession loads a conversation and its transcript into a chat session
func (c *Client) ResumeSession(ctx context.Context, id, tone string) (chat.Session, error) {
	conv, err := c.GetConversation(ctx, id)
	if err != nil {
		return chat.Session{}, err
	}
	msgs, err := c.ListMessages(ctx, id)
	if err != nil {
		return chat.Session{}, err
	}
	return chat.ResumeSession(*conv, msgs, tone), nil
}
