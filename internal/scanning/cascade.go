package scanning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/zombor/receipt-ledger/internal/metrics"
)

const (
	// DefaultMinChars is the minimum trimmed text length a strategy must produce
	DefaultMinChars = 20
	// DefaultAttemptTimeout bounds a single strategy attempt
	DefaultAttemptTimeout = 60 * time.Second
)

// Attempt records the outcome of one strategy for a receipt
type Attempt struct {
	Source Source
	Result string // success, unavailable, insufficient or error
	Err    error
}

// ExhaustedError is returned when no strategy produced sufficient text.
// It matches ErrExtractionExhausted with errors.Is.
type ExhaustedError struct {
	Kind     Kind
	Attempts []Attempt
	// Text is the longest text seen, if any, so a caller can show it
	Text string
}

func (e *ExhaustedError) Error() string {
	reasons := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		r := string(a.Source) + ": " + a.Result
		if a.Err != nil {
			r += " (" + a.Err.Error() + ")"
		}
		reasons = append(reasons, r)
	}
	return fmt.Sprintf("%s for %s: %s", ErrExtractionExhausted, e.Kind, strings.Join(reasons, "; "))
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExtractionExhausted
}

// Cascade runs the per-kind strategy order until one yields sufficient text
type Cascade struct {
	order          map[Kind][]Strategy
	MinChars       int
	AttemptTimeout time.Duration
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
}

// NewCascade builds the standard order:
// digital PDF: text layer, OCR, vision; scanned PDF: OCR, vision; image: vision, OCR.
func NewCascade(digital, ocr, vision Strategy, logger *slog.Logger, m *metrics.Metrics) *Cascade {
	return NewCascadeWithOrder(map[Kind][]Strategy{
		KindDigitalPDF: {digital, ocr, vision},
		KindScannedPDF: {ocr, vision},
		KindImage:      {vision, ocr},
	}, logger, m)
}

// NewCascadeWithOrder creates a Cascade with a custom order table
func NewCascadeWithOrder(order map[Kind][]Strategy, logger *slog.Logger, m *metrics.Metrics) *Cascade {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cascade{
		order:          order,
		MinChars:       DefaultMinChars,
		AttemptTimeout: DefaultAttemptTimeout,
		Logger:         logger,
		Metrics:        m,
	}
}

// Extract returns the text of the first strategy that produces sufficient text.
// Strategy failures are recorded and never returned on their own.
func (c *Cascade) Extract(ctx context.Context, media RawMedia, kind Kind) (ExtractionResult, error) {
	strategies, ok := c.order[kind]
	if !ok {
		return ExtractionResult{}, fmt.Errorf("%w: no strategies for %s", ErrUnsupportedMedia, kind)
	}

	exhausted := &ExhaustedError{Kind: kind}
	for _, s := range strategies {
		if s == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			exhausted.Attempts = append(exhausted.Attempts, Attempt{Source: s.Source(), Result: "error", Err: err})
			break
		}

		attempt, text := c.run(ctx, s, media, kind)
		exhausted.Attempts = append(exhausted.Attempts, attempt)
		c.Metrics.ObserveAttempt(kind.String(), string(s.Source()), attempt.Result)
		c.Logger.Info("cascade.attempt",
			"kind", kind.String(),
			"strategy", s.Source(),
			"result", attempt.Result,
			"chars", len(text),
			"error", attempt.Err,
		)

		if attempt.Result == "success" {
			return ExtractionResult{
				Text:       text,
				Source:     s.Source(),
				Confidence: confidenceFor(s.Source(), text),
			}, nil
		}
		if len(strings.TrimSpace(text)) > len(exhausted.Text) {
			exhausted.Text = strings.TrimSpace(text)
		}
	}

	c.Logger.Warn("cascade.exhausted", "kind", kind.String(), "attempts", len(exhausted.Attempts))
	return ExtractionResult{}, exhausted
}

func (c *Cascade) run(ctx context.Context, s Strategy, media RawMedia, kind Kind) (Attempt, string) {
	a := Attempt{Source: s.Source()}
	if !s.Available() {
		a.Result = "unavailable"
		return a, ""
	}

	timeout := c.AttemptTimeout
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := s.Attempt(actx, media, kind)
	switch {
	case errors.Is(err, ErrUnavailable):
		a.Result = "unavailable"
	case err != nil:
		a.Result = "error"
		a.Err = err
	case !c.sufficient(text):
		a.Result = "insufficient"
	default:
		a.Result = "success"
	}
	return a, text
}

// sufficient reports whether text is long enough and has at least one digit
func (c *Cascade) sufficient(text string) bool {
	minChars := c.MinChars
	if minChars <= 0 {
		minChars = DefaultMinChars
	}
	text = strings.TrimSpace(text)
	if len([]rune(text)) < minChars {
		return false
	}
	return strings.IndexFunc(text, unicode.IsDigit) >= 0
}

func confidenceFor(source Source, text string) Confidence {
	if source != SourceOCR {
		return ConfidenceHigh
	}
	if heuristicConfidence(text) >= ocrConfidenceThreshold {
		return ConfidenceHigh
	}
	return ConfidenceLow
}
