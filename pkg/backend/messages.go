package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/killallgit/normachat/pkg/chat"
	"github.com/killallgit/normachat/pkg/logger"
)

var _ chat.Transport = (*Client)(nil)
var _ chat.FeedbackClient = (*Client)(nil)

// SendMessage posts a message and returns the event-stream body.
// It is sent once and never retried; the caller must close the body.
func (c *Client) SendMessage(ctx context.Context, req chat.SendRequest) (io.ReadCloser, error) {
	if req.ChatType == "" {
		return nil, fmt.Errorf("chat_type is required")
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/chat/messages", nil, req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending message: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, newStatusError(resp)
	}

	logger.Debug("backend: stream opened (session=%q, %s)", req.SessionID, resp.Header.Get("Content-Type"))
	return resp.Body, nil
}

type feedbackRequest struct {
	Type chat.FeedbackKind `json:"type"`
}

func feedbackPath(messageID string) string {
	return "/messages/" + url.PathEscape(messageID) + "/feedback"
}

// CreateFeedback records like or dislike on an assistant message
func (c *Client) CreateFeedback(ctx context.Context, messageID string, kind chat.FeedbackKind) error {
	if !kind.Valid() {
		return fmt.Errorf("invalid feedback kind %q", kind)
	}
	return c.do(ctx, http.MethodPost, feedbackPath(messageID), nil, feedbackRequest{Type: kind}, nil)
}

// DeleteFeedback clears feedback on a message
func (c *Client) DeleteFeedback(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodDelete, feedbackPath(messageID), nil, nil, nil)
}
