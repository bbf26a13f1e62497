package sse

import (
	"bytes"

	"golang.org/x/text/encoding/unicode"
)

// Decoder turns a sequence of byte chunks into complete text lines.
// Bytes after the last newline are held until a later chunk terminates them.
type Decoder struct {
	carry []byte
}

// NewDecoder creates an empty line decoder
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends a chunk and returns every line completed by it, in order.
// The newline and an optional preceding carriage return are removed.
func (d *Decoder) Feed(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}
	d.carry = append(d.carry, chunk...)

	var lines []string
	for {
		idx := bytes.IndexByte(d.carry, '\n')
		if idx < 0 {
			break
		}
		raw := d.carry[:idx]
		raw = bytes.TrimSuffix(raw, []byte{'\r'})
		lines = append(lines, decodeLine(raw))
		d.carry = d.carry[idx+1:]
	}

	// Release the consumed prefix once nothing is pending
	if len(d.carry) == 0 {
		d.carry = nil
	}
	return lines
}

// Pending returns the number of buffered bytes not yet terminated by a newline
func (d *Decoder) Pending() int {
	return len(d.carry)
}

// Flush drops the unterminated tail and returns it.
// Servers terminate every frame before closing, so the tail is discarded at end of stream.
func (d *Decoder) Flush() string {
	tail := decodeLine(d.carry)
	d.carry = nil
	return tail
}

// decodeLine decodes a complete line as UTF-8, replacing invalid sequences.
// Lines are only cut on '\n', which never occurs inside a multi-byte rune.
func decodeLine(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	out, err := unicode.UTF8.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(out)
}
