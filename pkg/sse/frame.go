package sse

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DataPrefix marks a line carrying a frame
const DataPrefix = "data: "

// Frame is one record of the assistant stream
type Frame struct {
	Content   string  `json:"content,omitempty"`
	Done      bool    `json:"done,omitempty"`
	Error     bool    `json:"error,omitempty"`
	Detail    string  `json:"detail,omitempty"`
	SessionID string  `json:"session_id,omitempty"`
	NormaIDs  []int64 `json:"norma_ids,omitempty"`
}

// HasContent reports whether the frame carries a text fragment
func (f Frame) HasContent() bool {
	return f.Content != ""
}

// ParseError reports a data line whose payload is not a valid frame
type ParseError struct {
	Line string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed frame %q: %v", truncate(e.Line, 80), e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseLine parses a single line of the stream.
// ok is false for lines that do not carry a frame (keep-alives, comments).
func ParseLine(line string) (frame Frame, ok bool, err error) {
	if !strings.HasPrefix(line, DataPrefix) {
		return Frame{}, false, nil
	}

	payload := strings.TrimPrefix(line, DataPrefix)
	if err := json.Unmarshal([]byte(payload), &frame); err != nil {
		return Frame{}, true, &ParseError{Line: line, Err: err}
	}
	return frame, true, nil
}

// Encode renders a frame as a terminated data line
func Encode(f Frame) ([]byte, error) {
	payload, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame: %w", err)
	}
	out := make([]byte, 0, len(DataPrefix)+len(payload)+1)
	out = append(out, DataPrefix...)
	out = append(out, payload...)
	out = append(out, '\n')
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
