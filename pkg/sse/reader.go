package sse

import (
	"context"
	"errors"
	"io"

	"github.com/killallgit/normachat/pkg/logger"
)

const defaultChunkSize = 4096

// Reader yields frames from a streamed response body in arrival order
type Reader struct {
	src     io.Reader
	decoder *Decoder
	buf     []byte
	pending []string
	eof     bool
}

// NewReader wraps a stream body
func NewReader(r io.Reader) *Reader {
	return NewReaderSize(r, defaultChunkSize)
}

// NewReaderSize wraps a stream body using reads of at most size bytes
func NewReaderSize(r io.Reader, size int) *Reader {
	if size <= 0 {
		size = defaultChunkSize
	}
	return &Reader{
		src:     r,
		decoder: NewDecoder(),
		buf:     make([]byte, size),
	}
}

// Next returns the next frame.
// It returns io.EOF when the stream ends, a *ParseError for a malformed frame
// (Next may be called again to continue), or the context error after cancellation.
func (r *Reader) Next(ctx context.Context) (Frame, error) {
	for {
		for len(r.pending) > 0 {
			line := r.pending[0]
			r.pending = r.pending[1:]

			frame, ok, err := ParseLine(line)
			if !ok {
				continue
			}
			if err != nil {
				return Frame{}, err
			}
			return frame, nil
		}

		if r.eof {
			return Frame{}, io.EOF
		}

		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}

		n, err := r.src.Read(r.buf)
		if n > 0 {
			r.pending = append(r.pending, r.decoder.Feed(r.buf[:n])...)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return Frame{}, ctxErr
				}
				return Frame{}, err
			}
			r.eof = true
			if tail := r.decoder.Flush(); tail != "" {
				logger.Debug("sse: discarding unterminated tail of %d bytes", len(tail))
			}
		}
	}
}
