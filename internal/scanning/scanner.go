package scanning

import (
	"context"
	"errors"
)

var (
	// ErrUnsupportedMedia is returned for payloads that are neither a PDF nor a supported image
	ErrUnsupportedMedia = errors.New("unsupported media")
	// ErrExtractionExhausted is returned when every strategy for a kind failed
	ErrExtractionExhausted = errors.New("text extraction exhausted")
	// ErrUnavailable marks a collaborator that is not configured in this deployment
	ErrUnavailable = errors.New("not configured")
)

// Source identifies the strategy that produced an ExtractionResult.
type Source string

const (
	SourceDigitalText Source = "digital_text"
	SourceOCR         Source = "ocr"
	SourceVisionModel Source = "vision_model"
)

// Confidence is a coarse reliability tag on extracted text.
type Confidence string

const (
	ConfidenceHigh Confidence = "high"
	ConfidenceLow  Confidence = "low"
)

// ExtractionResult is the text produced by exactly one cascade strategy
type ExtractionResult struct {
	Text       string
	Source     Source
	Confidence Confidence
}

// CandidateRecord holds the fields found on a receipt as raw text.
// An empty string means the field was not found.
type CandidateRecord struct {
	Date  string `json:"date"`
	Item  string `json:"item"`
	Price string `json:"price"`
	Qty   string `json:"qty"`
	Total string `json:"total"`
}

// IsEmpty reports whether no field was found
func (c CandidateRecord) IsEmpty() bool {
	return c.Date == "" && c.Item == "" && c.Price == "" && c.Qty == "" && c.Total == ""
}

// VisionModel reads the text of a receipt image
type VisionModel interface {
	// Available reports whether the model is configured. It is checked at call time.
	Available() bool
	// ExtractText transcribes the text visible in the image
	ExtractText(ctx context.Context, image []byte, mimeType string) (string, error)
}

// Structurer turns receipt text into a CandidateRecord
type Structurer interface {
	Available() bool
	StructureFields(ctx context.Context, text string) (CandidateRecord, error)
}

// Disabled is a VisionModel, Structurer and OCREngine that is never available
type Disabled struct{}

func (Disabled) Available() bool { return false }

func (Disabled) ExtractText(context.Context, []byte, string) (string, error) {
	return "", ErrUnavailable
}

func (Disabled) StructureFields(context.Context, string) (CandidateRecord, error) {
	return CandidateRecord{}, ErrUnavailable
}

func (Disabled) Recognize(context.Context, []byte) (string, error) {
	return "", ErrUnavailable
}
