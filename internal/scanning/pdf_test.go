package scanning

import (
	"bytes"
	"context"
	"image/png"

	"github.com/jung-kurt/gofpdf"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func receiptPDF(lines ...string) []byte {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 12)
	for _, line := range lines {
		pdf.Cell(0, 8, line)
		pdf.Ln(8)
	}
	var buf bytes.Buffer
	Expect(pdf.Output(&buf)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("FitzReader", func() {
	var (
		reader *FitzReader
		doc    []byte
	)

	BeforeEach(func() {
		reader = NewFitzReader(72)
		doc = receiptPDF("ACME STORE", "Date 2024-03-01", "Total: $23.50")
	})

	It("extracts the text layer", func() {
		text, err := reader.ExtractTextLayer(context.Background(), doc)
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(ContainSubstring("ACME STORE"))
		Expect(text).To(ContainSubstring("23.50"))
	})

	It("renders pages as PNG", func() {
		pages, err := reader.RenderPages(context.Background(), doc, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(pages).To(HaveLen(1))

		_, err = png.Decode(bytes.NewReader(pages[0]))
		Expect(err).NotTo(HaveOccurred())
	})

	It("fails on bytes that are not a PDF", func() {
		_, err := reader.ExtractTextLayer(context.Background(), []byte("%PDF-garbage"))
		Expect(err).To(HaveOccurred())
	})

	It("lets the classifier tell digital from scanned", func() {
		classifier := NewClassifier(reader, discardLogger())
		kind, err := classifier.Classify(context.Background(), RawMedia{Data: doc})
		Expect(err).NotTo(HaveOccurred())
		Expect(kind).To(Equal(KindDigitalPDF))

		blank := receiptPDF()
		kind, err = classifier.Classify(context.Background(), RawMedia{Data: blank})
		Expect(err).NotTo(HaveOccurred())
		Expect(kind).To(Equal(KindScannedPDF))
	})
})
