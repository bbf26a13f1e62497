package rag

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/killallgit/normachat/pkg/chat"
	"github.com/killallgit/normachat/pkg/logger"
	"github.com/killallgit/normachat/pkg/sse"
)

var _ chat.Transport = (*LocalTransport)(nil)

// LocalTransport answers sends with the local pipeline and serves the reply
// in the same frame format as the backend, so a Streamer can drive it offline.
// Each send is answered on its own; earlier turns are not part of the prompt.
type LocalTransport struct {
	pipeline *Pipeline
}

// NewLocalTransport creates a transport over pipeline
func NewLocalTransport(pipeline *Pipeline) *LocalTransport {
	return &LocalTransport{pipeline: pipeline}
}

// SendMessage starts generation and returns the frame stream.
// Closing the returned body cancels generation.
func (t *LocalTransport) SendMessage(ctx context.Context, req chat.SendRequest) (io.ReadCloser, error) {
	if req.Message == "" {
		return nil, fmt.Errorf("message is empty")
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = "local-" + uuid.NewString()
	}

	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()

	go func() {
		defer cancel()

		streamed := false
		answer, err := t.pipeline.AskStream(ctx, req.Message, func(chunk string) error {
			if chunk == "" {
				return nil
			}
			streamed = true
			return writeFrame(pw, sse.Frame{Content: chunk})
		})
		if err != nil {
			logger.Warn("rag: local answer failed: %v", err)
			if werr := writeFrame(pw, sse.Frame{Error: true, Detail: err.Error()}); werr != nil {
				pw.CloseWithError(werr)
				return
			}
			pw.Close()
			return
		}

		// models that ignore the streaming option still return the full text
		if !streamed && answer.Text != "" {
			if err := writeFrame(pw, sse.Frame{Content: answer.Text}); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		if err := writeFrame(pw, sse.Frame{Done: true, SessionID: sessionID, NormaIDs: answer.NormaIDs}); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.Close()
	}()

	return &pipeBody{PipeReader: pr, cancel: cancel}, nil
}

func writeFrame(w io.Writer, f sse.Frame) error {
	line, err := sse.Encode(f)
	if err != nil {
		return err
	}
	_, err = w.Write(line)
	return err
}

// pipeBody cancels generation when the reader is closed
type pipeBody struct {
	*io.PipeReader
	cancel context.CancelFunc
}

func (b *pipeBody) Close() error {
	b.cancel()
	return b.PipeReader.Close()
}
