package scanning

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Strategy is one way of getting text out of a receipt
type Strategy interface {
	Source() Source
	// Available reports whether the strategy's collaborator is configured
	Available() bool
	Attempt(ctx context.Context, media RawMedia, kind Kind) (string, error)
}

// DigitalTextStrategy reads the embedded text layer of a PDF
type DigitalTextStrategy struct {
	PDF PDFReader
}

func (s *DigitalTextStrategy) Source() Source  { return SourceDigitalText }
func (s *DigitalTextStrategy) Available() bool { return s.PDF != nil }

func (s *DigitalTextStrategy) Attempt(ctx context.Context, media RawMedia, kind Kind) (string, error) {
	if kind == KindImage {
		return "", fmt.Errorf("images have no text layer")
	}
	return s.PDF.ExtractTextLayer(ctx, media.Data)
}

// OCRStrategy runs the OCR engine over an image or the rendered pages of a PDF
type OCRStrategy struct {
	Engine   OCREngine
	PDF      PDFReader
	MaxPages int // rendered pages to OCR, 0 means all
}

func (s *OCRStrategy) Source() Source  { return SourceOCR }
func (s *OCRStrategy) Available() bool { return s.Engine != nil && s.Engine.Available() }

func (s *OCRStrategy) Attempt(ctx context.Context, media RawMedia, kind Kind) (string, error) {
	pages, err := pageImages(ctx, s.PDF, media, kind, s.MaxPages)
	if err != nil {
		return "", err
	}

	texts := make([]string, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	for i, page := range pages {
		g.Go(func() error {
			text, err := s.Engine.Recognize(gctx, page)
			if err != nil {
				return fmt.Errorf("recognizing page %d: %w", i+1, err)
			}
			texts[i] = normalizeOCRText(text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return strings.Join(texts, "\n\n"), nil
}

// VisionStrategy sends the receipt image to a vision model
type VisionStrategy struct {
	Model VisionModel
	PDF   PDFReader
}

func (s *VisionStrategy) Source() Source  { return SourceVisionModel }
func (s *VisionStrategy) Available() bool { return s.Model != nil && s.Model.Available() }

func (s *VisionStrategy) Attempt(ctx context.Context, media RawMedia, kind Kind) (string, error) {
	// receipts are single page in practice, only the first page goes to the model
	pages, err := pageImages(ctx, s.PDF, media, kind, 1)
	if err != nil {
		return "", err
	}
	return s.Model.ExtractText(ctx, pages[0], mimePNG)
}

// pageImages returns PNG images for the media: rendered pages for a PDF, or
// the normalized image itself.
func pageImages(ctx context.Context, pdf PDFReader, media RawMedia, kind Kind, maxPages int) ([][]byte, error) {
	if kind == KindImage {
		pngData, err := normalizeImage(media.Data, DetectMIME(media))
		if err != nil {
			return nil, err
		}
		return [][]byte{pngData}, nil
	}
	if pdf == nil {
		return nil, fmt.Errorf("no PDF renderer configured")
	}
	pages, err := pdf.RenderPages(ctx, media.Data, maxPages)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("PDF rendered no pages")
	}
	return pages, nil
}
