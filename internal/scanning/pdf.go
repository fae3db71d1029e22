package scanning

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// PDFReader reads the embedded text layer of a PDF and renders its pages.
type PDFReader interface {
	// ExtractTextLayer returns the character-level text of every page.
	ExtractTextLayer(ctx context.Context, pdf []byte) (string, error)
	// RenderPages rasterises up to maxPages pages (0 means all) as PNG images.
	RenderPages(ctx context.Context, pdf []byte, maxPages int) ([][]byte, error)
}

// FitzReader implements PDFReader using MuPDF through go-fitz
type FitzReader struct {
	// DPI used for rendering; 0 uses the go-fitz default
	DPI float64
}

// NewFitzReader creates a FitzReader rendering at the given DPI
func NewFitzReader(dpi float64) *FitzReader {
	return &FitzReader{DPI: dpi}
}

// ExtractTextLayer returns the text of all pages separated by form feeds
func (f *FitzReader) ExtractTextLayer(ctx context.Context, pdf []byte) (string, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	pages := make([]string, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := doc.Text(i)
		if err != nil {
			return "", fmt.Errorf("extracting text from page %d: %w", i+1, err)
		}
		pages = append(pages, text)
	}
	return strings.Join(pages, "\f"), nil
}

// RenderPages renders PDF pages as PNG images
func (f *FitzReader) RenderPages(ctx context.Context, pdf []byte, maxPages int) ([][]byte, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	n := doc.NumPage()
	if maxPages > 0 && n > maxPages {
		n = maxPages
	}
	if n == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}

	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := f.renderPage(doc, i)
		if err != nil {
			return nil, fmt.Errorf("rendering PDF page %d: %w", i+1, err)
		}
		pngData, err := encodePNG(img)
		if err != nil {
			return nil, err
		}
		out = append(out, pngData)
	}
	return out, nil
}

func (f *FitzReader) renderPage(doc *fitz.Document, page int) (image.Image, error) {
	if f.DPI > 0 {
		return doc.ImageDPI(page, f.DPI)
	}
	return doc.Image(page)
}
