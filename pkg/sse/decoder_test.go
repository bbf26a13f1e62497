package sse_test

import (
	"strings"

	"github.com/killallgit/normachat/pkg/sse"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// splitAt cuts data at the given ascending offsets
func splitAt(data []byte, offsets ...int) [][]byte {
	var chunks [][]byte
	prev := 0
	for _, off := range offsets {
		chunks = append(chunks, data[prev:off])
		prev = off
	}
	return append(chunks, data[prev:])
}

func feedAll(chunks [][]byte) []string {
	dec := sse.NewDecoder()
	var lines []string
	for _, c := range chunks {
		lines = append(lines, dec.Feed(c)...)
	}
	return lines
}

var _ = Describe("Decoder", func() {
	stream := []byte("data: {\"content\":\"La \"}\n\n" +
		"data: {\"content\":\"Constitución…\"}\n" +
		": keep-alive\n" +
		"data: {\"done\":true,\"session_id\":\"abc123\",\"norma_ids\":[5,9]}\n")

	It("yields complete lines in order", func() {
		lines := sse.NewDecoder().Feed(stream)

		Expect(lines).To(Equal([]string{
			`data: {"content":"La "}`,
			"",
			`data: {"content":"Constitución…"}`,
			": keep-alive",
			`data: {"done":true,"session_id":"abc123","norma_ids":[5,9]}`,
		}))
	})

	It("yields the same lines for every two-way split", func() {
		whole := feedAll([][]byte{stream})
		for i := 0; i <= len(stream); i++ {
			Expect(feedAll(splitAt(stream, i))).To(Equal(whole), "split at %d", i)
		}
	})

	It("yields the same lines when fed one byte at a time", func() {
		whole := feedAll([][]byte{stream})
		var chunks [][]byte
		for i := range stream {
			chunks = append(chunks, stream[i:i+1])
		}
		Expect(feedAll(chunks)).To(Equal(whole))
	})

	It("does not yield a line until its newline arrives", func() {
		dec := sse.NewDecoder()

		Expect(dec.Feed([]byte("data: {\"content\""))).To(BeEmpty())
		Expect(dec.Pending()).To(BeNumerically(">", 0))
		Expect(dec.Feed([]byte(":\"x\"}"))).To(BeEmpty())
		Expect(dec.Feed([]byte("\n"))).To(Equal([]string{`data: {"content":"x"}`}))
		Expect(dec.Pending()).To(Equal(0))
	})

	It("keeps multi-byte characters split across chunks intact", func() {
		data := []byte("data: {\"content\":\"¿Qué?\"}\n")
		idx := strings.Index(string(data), "é")

		lines := feedAll(splitAt(data, idx+1))
		Expect(lines).To(Equal([]string{`data: {"content":"¿Qué?"}`}))
	})

	It("strips carriage returns before the newline", func() {
		Expect(sse.NewDecoder().Feed([]byte("data: {}\r\n"))).To(Equal([]string{"data: {}"}))
	})

	It("replaces invalid UTF-8 instead of failing", func() {
		lines := sse.NewDecoder().Feed([]byte{'a', 0xff, 'b', '\n'})
		Expect(lines).To(Equal([]string{"a�b"}))
	})

	It("discards the unterminated tail on flush", func() {
		dec := sse.NewDecoder()
		dec.Feed([]byte("data: {\"content\":\"partial"))

		Expect(dec.Flush()).To(Equal(`data: {"content":"partial`))
		Expect(dec.Pending()).To(Equal(0))
		Expect(dec.Feed([]byte("\n"))).To(Equal([]string{""}))
	})
})
