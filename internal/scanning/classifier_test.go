package scanning

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Classifier", func() {
	var (
		pdf        *fakePDF
		classifier *Classifier
		media      RawMedia
		kind       Kind
		err        error
	)

	BeforeEach(func() {
		pdf = &fakePDF{}
		classifier = NewClassifier(pdf, discardLogger())
	})

	JustBeforeEach(func() {
		kind, err = classifier.Classify(context.Background(), media)
	})

	When("a PDF has a text layer", func() {
		BeforeEach(func() {
			media = RawMedia{Data: []byte("%PDF-1.4"), MIMEType: "application/pdf"}
			pdf.text = "ACME STORE  Total: $23.50  2024-03-01"
		})

		It("classifies it as a digital PDF", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(kind).To(Equal(KindDigitalPDF))
		})
	})

	When("a PDF has exactly the threshold of characters", func() {
		BeforeEach(func() {
			media = RawMedia{Data: []byte("%PDF-1.4")}
			pdf.text = "   12345678901234567890   "
		})

		It("classifies it as a scanned PDF", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(kind).To(Equal(KindScannedPDF))
		})
	})

	When("a PDF has no text layer", func() {
		BeforeEach(func() {
			media = RawMedia{Data: []byte("%PDF-1.4"), Filename: "scan.pdf"}
			pdf.text = ""
		})

		It("classifies it as a scanned PDF", func() {
			Expect(kind).To(Equal(KindScannedPDF))
		})
	})

	When("the PDF cannot be opened", func() {
		BeforeEach(func() {
			media = RawMedia{Data: []byte("%PDF-broken"), MIMEType: "application/pdf"}
			pdf.textErr = errors.New("corrupt xref")
		})

		It("returns ErrUnsupportedMedia", func() {
			Expect(err).To(MatchError(ErrUnsupportedMedia))
			Expect(kind).To(Equal(KindUnknown))
		})
	})

	When("the media is an image", func() {
		BeforeEach(func() {
			media = RawMedia{Data: tinyPNG(), MIMEType: "image/png"}
		})

		It("classifies it as an image", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(kind).To(Equal(KindImage))
		})
	})

	When("the media is a WEBP declared by extension", func() {
		BeforeEach(func() {
			media = RawMedia{Data: []byte{0, 1, 2}, Filename: "photo.webp"}
		})

		It("classifies it as an image", func() {
			Expect(kind).To(Equal(KindImage))
		})
	})

	When("the media is something else", func() {
		BeforeEach(func() {
			media = RawMedia{Data: []byte("name,amount\nx,1\n"), MIMEType: "text/csv"}
		})

		It("returns ErrUnsupportedMedia", func() {
			Expect(err).To(MatchError(ErrUnsupportedMedia))
			Expect(err.Error()).To(ContainSubstring("text/csv"))
		})
	})
})
