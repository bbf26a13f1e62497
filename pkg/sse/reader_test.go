package sse_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing/iotest"

	"github.com/killallgit/normachat/pkg/sse"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func collect(r *sse.Reader) ([]sse.Frame, []error) {
	var frames []sse.Frame
	var errs []error
	for {
		frame, err := r.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return frames, errs
		}
		if err != nil {
			errs = append(errs, err)
			var parseErr *sse.ParseError
			if errors.As(err, &parseErr) {
				continue
			}
			return frames, errs
		}
		frames = append(frames, frame)
	}
}

var _ = Describe("Reader", func() {
	body := "data: {\"content\":\"X\"}\n" +
		"\n" +
		": comment\n" +
		"data: {\"content\":\"Y\"}\n" +
		"data: {\"done\":true,\"session_id\":\"s1\",\"norma_ids\":[1]}\n"

	It("yields frames in arrival order and skips other lines", func() {
		frames, errs := collect(sse.NewReader(strings.NewReader(body)))

		Expect(errs).To(BeEmpty())
		Expect(frames).To(HaveLen(3))
		Expect(frames[0].Content).To(Equal("X"))
		Expect(frames[1].Content).To(Equal("Y"))
		Expect(frames[2].Done).To(BeTrue())
		Expect(frames[2].SessionID).To(Equal("s1"))
	})

	It("is unaffected by tiny reads", func() {
		frames, errs := collect(sse.NewReaderSize(iotest.OneByteReader(strings.NewReader(body)), 1))

		Expect(errs).To(BeEmpty())
		Expect(frames).To(HaveLen(3))
		Expect(frames[0].Content + frames[1].Content).To(Equal("XY"))
	})

	It("keeps reading after a malformed frame", func() {
		frames, errs := collect(sse.NewReader(strings.NewReader(
			"data: {oops\ndata: {\"content\":\"after\"}\n")))

		Expect(errs).To(HaveLen(1))
		Expect(frames).To(HaveLen(1))
		Expect(frames[0].Content).To(Equal("after"))
	})

	It("drops an unterminated final line", func() {
		frames, errs := collect(sse.NewReader(strings.NewReader(
			"data: {\"content\":\"ok\"}\ndata: {\"done\":true}")))

		Expect(errs).To(BeEmpty())
		Expect(frames).To(HaveLen(1))
		Expect(frames[0].Done).To(BeFalse())
	})

	It("surfaces read errors", func() {
		boom := errors.New("connection reset")
		_, err := sse.NewReader(iotest.ErrReader(boom)).Next(context.Background())

		Expect(err).To(MatchError(boom))
	})

	It("stops once the context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := sse.NewReader(strings.NewReader(body)).Next(ctx)
		Expect(err).To(MatchError(context.Canceled))
	})
})
