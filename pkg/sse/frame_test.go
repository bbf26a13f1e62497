package sse_test

import (
	"errors"

	"github.com/killallgit/normachat/pkg/sse"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ParseLine", func() {
	DescribeTable("ignores lines without the data prefix",
		func(line string) {
			frame, ok, err := sse.ParseLine(line)
			Expect(ok).To(BeFalse())
			Expect(err).ToNot(HaveOccurred())
			Expect(frame).To(Equal(sse.Frame{}))
		},
		Entry("blank keep-alive", ""),
		Entry("comment", ": ping"),
		Entry("event field", "event: message"),
		Entry("prefix without space", `data:{"content":"x"}`),
		Entry("json without prefix", `{"content":"x"}`),
	)

	It("parses a content frame", func() {
		frame, ok, err := sse.ParseLine(`data: {"content":"La "}`)

		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(frame.HasContent()).To(BeTrue())
		Expect(frame.Content).To(Equal("La "))
		Expect(frame.Done).To(BeFalse())
	})

	It("parses a completion frame", func() {
		frame, ok, err := sse.ParseLine(`data: {"done":true,"session_id":"abc123","norma_ids":[5,9]}`)

		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(frame.Done).To(BeTrue())
		Expect(frame.SessionID).To(Equal("abc123"))
		Expect(frame.NormaIDs).To(Equal([]int64{5, 9}))
	})

	It("parses an error frame", func() {
		frame, _, err := sse.ParseLine(`data: {"error":true,"detail":"rate limited"}`)

		Expect(err).ToNot(HaveOccurred())
		Expect(frame.Error).To(BeTrue())
		Expect(frame.Detail).To(Equal("rate limited"))
	})

	It("reports malformed payloads as a recoverable ParseError", func() {
		_, ok, err := sse.ParseLine(`data: {"content":`)

		Expect(ok).To(BeTrue())
		var parseErr *sse.ParseError
		Expect(errors.As(err, &parseErr)).To(BeTrue())
		Expect(parseErr.Line).To(Equal(`data: {"content":`))
		Expect(parseErr.Unwrap()).To(HaveOccurred())
	})

	It("round-trips through Encode", func() {
		line, err := sse.Encode(sse.Frame{Content: "hola"})
		Expect(err).ToNot(HaveOccurred())
		Expect(string(line)).To(Equal("data: {\"content\":\"hola\"}\n"))

		frame, ok, err := sse.ParseLine(string(line[:len(line)-1]))
		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(frame.Content).To(Equal("hola"))
	})
})
