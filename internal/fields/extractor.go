package fields

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zombor/receipt-ledger/internal/scanning"
)

// ErrFieldExtraction is returned when neither the model nor the text parser found any field
var ErrFieldExtraction = errors.New("field extraction failed")

// Method records which path produced a CandidateRecord.
type Method string

const (
	MethodModel    Method = "model"
	MethodFallback Method = "fallback"
)

const defaultModelTimeout = 60 * time.Second

// Extractor turns extracted receipt text into a CandidateRecord. The model is
// tried first when it is available; the deterministic parser covers the rest.
type Extractor struct {
	structurer   scanning.Structurer
	modelTimeout time.Duration
	logger       *slog.Logger
}

// NewExtractor creates an Extractor. A nil structurer means fallback only.
func NewExtractor(structurer scanning.Structurer, modelTimeout time.Duration, logger *slog.Logger) *Extractor {
	if structurer == nil {
		structurer = scanning.Disabled{}
	}
	if modelTimeout <= 0 {
		modelTimeout = defaultModelTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{structurer: structurer, modelTimeout: modelTimeout, logger: logger}
}

// Extract returns the candidate fields found in result.Text
func (e *Extractor) Extract(ctx context.Context, result scanning.ExtractionResult) (scanning.CandidateRecord, Method, error) {
	if e.structurer.Available() {
		rec, err := e.fromModel(ctx, result.Text)
		switch {
		case err != nil:
			e.logger.Warn("fields.model.failed", "source", result.Source, "error", err)
		case rec.IsEmpty():
			e.logger.Warn("fields.model.empty", "source", result.Source)
		default:
			return rec, MethodModel, nil
		}
	}

	rec := ParseText(result.Text)
	if rec.IsEmpty() {
		return scanning.CandidateRecord{}, MethodFallback, fmt.Errorf("%w: no date, item or amount found in %d characters of text", ErrFieldExtraction, len(result.Text))
	}
	e.logger.Debug("fields.fallback", "source", result.Source, "record", rec)
	return rec, MethodFallback, nil
}

func (e *Extractor) fromModel(ctx context.Context, text string) (scanning.CandidateRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, e.modelTimeout)
	defer cancel()
	return e.structurer.StructureFields(ctx, text)
}
