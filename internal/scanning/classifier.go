package scanning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// DefaultMinDigitalChars is the text layer length above which a PDF counts as digital
const DefaultMinDigitalChars = 20

// Classifier assigns an input Kind to uploaded media
type Classifier struct {
	PDF             PDFReader
	MinDigitalChars int
	Logger          *slog.Logger
}

// NewClassifier creates a Classifier with the default threshold
func NewClassifier(pdf PDFReader, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{PDF: pdf, MinDigitalChars: DefaultMinDigitalChars, Logger: logger}
}

// Classify returns the Kind of media. PDFs are probed for a text layer so
// that digital PDFs never go through OCR first.
func (c *Classifier) Classify(ctx context.Context, media RawMedia) (Kind, error) {
	mimeType := DetectMIME(media)

	switch {
	case mimeType == mimePDF:
		text, err := c.PDF.ExtractTextLayer(ctx, media.Data)
		if err != nil {
			return KindUnknown, fmt.Errorf("%w: reading PDF: %v", ErrUnsupportedMedia, err)
		}
		chars := len([]rune(strings.TrimSpace(text)))
		kind := KindScannedPDF
		if chars > c.minChars() {
			kind = KindDigitalPDF
		}
		c.logger().Debug("classifier.pdf", "chars", chars, "kind", kind.String())
		return kind, nil
	case isImageMIME(mimeType):
		return KindImage, nil
	}

	return KindUnknown, fmt.Errorf("%w: %q", ErrUnsupportedMedia, displayType(mimeType, media))
}

func (c *Classifier) minChars() int {
	if c.MinDigitalChars <= 0 {
		return DefaultMinDigitalChars
	}
	return c.MinDigitalChars
}

func (c *Classifier) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func displayType(mimeType string, media RawMedia) string {
	if mimeType != "" {
		return mimeType
	}
	if media.Filename != "" {
		return media.Filename
	}
	return "unknown"
}
