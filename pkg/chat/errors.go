package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy rejects a submission while a reply is pending or streaming
	ErrBusy = errors.New("a reply is still in progress")

	// ErrEmptyMessage rejects blank submissions
	ErrEmptyMessage = errors.New("message is empty")

	// ErrNotStreaming is returned when a frame arrives with no attempt in flight
	ErrNotStreaming = errors.New("no reply in progress")

	// ErrServerFrame marks a failure signalled by the backend inside the stream
	ErrServerFrame = errors.New("server reported an error")

	// ErrStreamClosed marks a stream that ended before its completion frame
	ErrStreamClosed = errors.New("stream closed before completion")

	// ErrClosed is returned once the streamer has been torn down
	ErrClosed = errors.New("streamer closed")

	// ErrMessageNotFound is returned for feedback on an unknown message
	ErrMessageNotFound = errors.New("message not found")
)

// TransportError wraps a failure to send or read a reply
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
