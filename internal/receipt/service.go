package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/zombor/receipt-ledger/internal/fields"
	"github.com/zombor/receipt-ledger/internal/ledger"
	"github.com/zombor/receipt-ledger/internal/metrics"
	"github.com/zombor/receipt-ledger/internal/scanning"
)

// Classifier decides what kind of media a receipt is
type Classifier interface {
	Classify(ctx context.Context, media scanning.RawMedia) (scanning.Kind, error)
}

// TextExtractor turns classified media into text
type TextExtractor interface {
	Extract(ctx context.Context, media scanning.RawMedia, kind scanning.Kind) (scanning.ExtractionResult, error)
}

// FieldExtractor finds candidate fields in extracted text
type FieldExtractor interface {
	Extract(ctx context.Context, result scanning.ExtractionResult) (scanning.CandidateRecord, fields.Method, error)
}

// RecordValidator turns a candidate into a ledger-ready record
type RecordValidator interface {
	Validate(c scanning.CandidateRecord, confidence scanning.Confidence) (ledger.ValidatedRecord, error)
}

// Ledger appends validated records and reports the current state
type Ledger interface {
	Append(ctx context.Context, rec ledger.ValidatedRecord, source scanning.Source) (ledger.LedgerEntry, error)
	Summary(ctx context.Context) ([]ledger.LedgerEntry, ledger.State, error)
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Deps are the pipeline stages. Archive, Logger and Metrics may be nil.
type Deps struct {
	Classifier Classifier
	Extractor  TextExtractor
	Fields     FieldExtractor
	Validator  RecordValidator
	Ledger     Ledger
	Archive    Archive
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// Service runs receipts through the pipeline
type Service struct {
	classifier Classifier
	extractor  TextExtractor
	fields     FieldExtractor
	validator  RecordValidator
	ledger     Ledger
	archive    Archive
	logger     *slog.Logger
	metrics    *metrics.Metrics
	timeSource TimeSource
}

// NewService creates a new Service with the default time source
func NewService(deps Deps) *Service {
	return NewServiceWithDeps(deps, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with a custom time source for testing
func NewServiceWithDeps(deps Deps, timeSrc TimeSource) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		classifier: deps.Classifier,
		extractor:  deps.Extractor,
		fields:     deps.Fields,
		validator:  deps.Validator,
		ledger:     deps.Ledger,
		archive:    deps.Archive,
		logger:     logger,
		metrics:    deps.Metrics,
		timeSource: timeSrc,
	}
}

var (
	reFilenameJunk   = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	reFilenameSpaces = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	base = reFilenameJunk.ReplaceAllString(base, "")
	base = reFilenameSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	// phone cameras produce very long names
	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}

	if base == "" {
		base = "receipt"
	}

	return base + strings.ToLower(ext)
}

// ProcessReceipt classifies the media, extracts its text and fields,
// validates them and appends one ledger entry. Every failure is a
// *PipelineError; the ledger is only touched by a fully valid record.
func (s *Service) ProcessReceipt(ctx context.Context, media scanning.RawMedia) (Result, error) {
	start := s.timeSource.Now()
	res, err := s.process(ctx, media)

	outcome := "success"
	var perr *PipelineError
	if errors.As(err, &perr) {
		outcome = string(perr.Kind)
		s.logger.Warn("pipeline.failed",
			"filename", media.Filename,
			"content_type", media.MIMEType,
			"file_size", len(media.Data),
			"stage", perr.Stage,
			"kind", perr.Kind,
			"error", perr.Err,
		)
	}
	s.metrics.ObservePipeline(outcome, s.timeSource.Now().Sub(start))
	return res, err
}

func (s *Service) process(ctx context.Context, media scanning.RawMedia) (Result, error) {
	kind, err := s.classifier.Classify(ctx, media)
	if err != nil {
		return Result{}, s.fail(StageClassify, err, "", nil)
	}

	extracted, err := s.extractor.Extract(ctx, media, kind)
	if err != nil {
		var exhausted *scanning.ExhaustedError
		text := ""
		if errors.As(err, &exhausted) {
			text = exhausted.Text
		}
		return Result{}, s.fail(StageExtract, err, text, nil)
	}

	candidate, method, err := s.fields.Extract(ctx, extracted)
	if err != nil {
		return Result{}, s.fail(StageFields, err, extracted.Text, nil)
	}

	rec, err := s.validator.Validate(candidate, extracted.Confidence)
	if err != nil {
		return Result{}, s.fail(StageValidate, err, extracted.Text, &candidate)
	}

	entry, err := s.ledger.Append(ctx, rec, extracted.Source)
	if err != nil {
		return Result{}, s.fail(StageLedger, err, extracted.Text, &candidate)
	}

	s.logger.Info("pipeline.recorded",
		"filename", media.Filename,
		"kind", kind.String(),
		"source", extracted.Source,
		"confidence", extracted.Confidence,
		"method", method,
		"entry_id", entry.ID,
		"total", entry.Total.StringFixed(2),
		"remaining", entry.BudgetRemainingAfter.StringFixed(2),
	)

	return Result{
		Entry:                entry,
		BudgetRemainingAfter: entry.BudgetRemainingAfter,
		Source:               extracted.Source,
		Confidence:           extracted.Confidence,
		Method:               method,
		ArchivedAs:           s.archiveMedia(ctx, media, entry),
	}, nil
}

func (s *Service) fail(stage Stage, err error, text string, rec *scanning.CandidateRecord) error {
	return &PipelineError{
		Kind:   classifyKind(stage, err),
		Stage:  stage,
		Text:   text,
		Record: rec,
		Err:    err,
	}
}

// archiveMedia stores the original upload. The entry is already committed,
// so a failure here is only logged.
func (s *Service) archiveMedia(ctx context.Context, media scanning.RawMedia, entry ledger.LedgerEntry) string {
	if s.archive == nil {
		return ""
	}

	mimeType := scanning.DetectMIME(media)
	name := fmt.Sprintf("%s_%s", entry.ID.String()[:8], sanitizeFilename(archiveFilename(media.Filename, mimeType)))
	where, err := s.archive.Save(ctx, name, media.Data, mimeType, s.timeSource.Now())
	if err != nil {
		s.logger.Error("Failed to archive receipt", "filename", media.Filename, "entry_id", entry.ID, "error", err)
		return ""
	}
	return where
}

func archiveFilename(filename, mimeType string) string {
	if filename != "" {
		return filename
	}
	switch mimeType {
	case "application/pdf":
		return "receipt.pdf"
	case "image/jpeg":
		return "receipt.jpg"
	case "image/png":
		return "receipt.png"
	case "image/webp":
		return "receipt.webp"
	case "image/heic", "image/heif":
		return "receipt.heic"
	}
	return "receipt"
}

// Ledger returns all entries and the remaining budget
func (s *Service) Ledger(ctx context.Context) (Summary, error) {
	entries, state, err := s.ledger.Summary(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("reading ledger: %w", err)
	}
	if entries == nil {
		entries = []ledger.LedgerEntry{}
	}
	return Summary{Entries: entries, Remaining: state.Remaining, Version: state.Version}, nil
}
