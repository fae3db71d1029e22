package scanning

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("OCRStrategy", func() {
	var (
		engine   *fakeEngine
		pdf      *fakePDF
		strategy *OCRStrategy
	)

	BeforeEach(func() {
		engine = &fakeEngine{available: true, text: "Total\t$5.00\r\n"}
		pdf = &fakePDF{pages: [][]byte{tinyPNG(), tinyPNG(), tinyPNG()}}
		strategy = &OCRStrategy{Engine: engine, PDF: pdf, MaxPages: 2}
	})

	It("recognises each rendered page up to MaxPages", func() {
		text, err := strategy.Attempt(context.Background(), RawMedia{}, KindScannedPDF)
		Expect(err).NotTo(HaveOccurred())
		Expect(pdf.renderMax).To(Equal(2))
		Expect(text).To(Equal("Total    $5.00\n\nTotal    $5.00"))
	})

	It("recognises an image directly", func() {
		text, err := strategy.Attempt(context.Background(), RawMedia{Data: tinyPNG(), MIMEType: "image/png"}, KindImage)
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("Total    $5.00"))
	})

	It("fails when a page fails", func() {
		engine.err = errors.New("boom")
		_, err := strategy.Attempt(context.Background(), RawMedia{}, KindScannedPDF)
		Expect(err).To(MatchError(ContainSubstring("boom")))
	})

	It("is unavailable without an engine", func() {
		engine.available = false
		Expect(strategy.Available()).To(BeFalse())
	})

	It("fails for undecodable images", func() {
		_, err := strategy.Attempt(context.Background(), RawMedia{Data: []byte("not an image"), MIMEType: "image/jpeg"}, KindImage)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("VisionStrategy", func() {
	It("sends only the first PDF page as PNG", func() {
		vision := &fakeVision{available: true, text: "receipt"}
		pdf := &fakePDF{pages: [][]byte{tinyPNG(), tinyPNG()}}
		strategy := &VisionStrategy{Model: vision, PDF: pdf}

		text, err := strategy.Attempt(context.Background(), RawMedia{}, KindScannedPDF)
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("receipt"))
		Expect(pdf.renderMax).To(Equal(1))
		Expect(vision.gotMIME).To(Equal("image/png"))
	})

	It("reports the model's availability", func() {
		Expect((&VisionStrategy{Model: Disabled{}}).Available()).To(BeFalse())
		Expect((&VisionStrategy{}).Available()).To(BeFalse())
	})
})

var _ = Describe("DigitalTextStrategy", func() {
	It("returns the text layer", func() {
		strategy := &DigitalTextStrategy{PDF: &fakePDF{text: "hello 123"}}
		text, err := strategy.Attempt(context.Background(), RawMedia{}, KindDigitalPDF)
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("hello 123"))
	})

	It("refuses images", func() {
		strategy := &DigitalTextStrategy{PDF: &fakePDF{}}
		_, err := strategy.Attempt(context.Background(), RawMedia{}, KindImage)
		Expect(err).To(HaveOccurred())
	})
})
