package receipt

import (
	"errors"
	"fmt"

	"github.com/zombor/receipt-ledger/internal/fields"
	"github.com/zombor/receipt-ledger/internal/ledger"
	"github.com/zombor/receipt-ledger/internal/scanning"
)

// ErrorKind names the class of a pipeline failure
type ErrorKind string

const (
	KindUnsupportedMedia      ErrorKind = "unsupported_media"
	KindExtractionExhausted   ErrorKind = "extraction_exhausted"
	KindFieldExtraction       ErrorKind = "field_extraction"
	KindMissingRequiredFields ErrorKind = "missing_required_fields"
	KindMalformedValue        ErrorKind = "malformed_value"
	KindReconciliation        ErrorKind = "reconciliation"
	KindLedgerConcurrency     ErrorKind = "ledger_concurrency"
	KindLedgerWrite           ErrorKind = "ledger_write"
)

// Stage names where in the pipeline a failure happened
type Stage string

const (
	StageClassify Stage = "classify"
	StageExtract  Stage = "extract"
	StageFields   Stage = "fields"
	StageValidate Stage = "validate"
	StageLedger   Stage = "ledger"
)

// PipelineError carries whatever was recovered before the pipeline stopped,
// so the caller can show the user the text and fields that were read.
type PipelineError struct {
	Kind   ErrorKind
	Stage  Stage
	Text   string
	Record *scanning.CandidateRecord
	Err    error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Retryable reports whether submitting the same receipt again could succeed
// without any change to the receipt.
func (e *PipelineError) Retryable() bool {
	return e.Kind == KindLedgerConcurrency || e.Kind == KindLedgerWrite
}

func classifyKind(stage Stage, err error) ErrorKind {
	switch {
	case errors.Is(err, scanning.ErrUnsupportedMedia):
		return KindUnsupportedMedia
	case errors.Is(err, scanning.ErrExtractionExhausted):
		return KindExtractionExhausted
	case errors.Is(err, fields.ErrFieldExtraction):
		return KindFieldExtraction
	case errors.Is(err, ledger.ErrMissingRequiredFields):
		return KindMissingRequiredFields
	case errors.Is(err, ledger.ErrMalformedValue):
		return KindMalformedValue
	case errors.Is(err, ledger.ErrReconciliation):
		return KindReconciliation
	case errors.Is(err, ledger.ErrLedgerConcurrency):
		return KindLedgerConcurrency
	case errors.Is(err, ledger.ErrLedgerWrite):
		return KindLedgerWrite
	}

	switch stage {
	case StageClassify:
		return KindUnsupportedMedia
	case StageExtract:
		return KindExtractionExhausted
	case StageFields:
		return KindFieldExtraction
	case StageValidate:
		return KindMalformedValue
	default:
		return KindLedgerWrite
	}
}
