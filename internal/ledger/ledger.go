package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-ledger/internal/scanning"
)

var (
	ErrMissingRequiredFields = errors.New("missing required fields")
	ErrMalformedValue        = errors.New("malformed value")
	ErrReconciliation        = errors.New("total does not match price x qty")

	// ErrLedgerConcurrency is returned when the append could not be serialized
	ErrLedgerConcurrency = errors.New("ledger concurrency")
	// ErrLedgerWrite is returned when the append failed after every retry
	ErrLedgerWrite = errors.New("ledger write failed")

	// ErrConflict is returned by a Store when the ledger version moved since it was read
	ErrConflict = errors.New("ledger version conflict")
)

// LedgerEntry is one appended ledger row. Entries are never modified after append.
type LedgerEntry struct {
	ID                   uuid.UUID           `json:"id"`
	Date                 time.Time           `json:"date"`
	Item                 string              `json:"item"`
	Price                decimal.NullDecimal `json:"price"`
	Qty                  decimal.NullDecimal `json:"qty"`
	Total                decimal.Decimal     `json:"total"`
	BudgetRemainingAfter decimal.Decimal     `json:"budget_remaining_after"`
	Source               scanning.Source     `json:"source"`
	CreatedAt            time.Time           `json:"created_at"`
}

// State is the current remaining budget and the version it was read at
type State struct {
	Remaining decimal.Decimal
	Version   int64
}

// Store persists the ledger
type Store interface {
	// Name identifies the ledger; appends are serialized per name
	Name() string

	// ReadState returns the remaining budget and its version
	ReadState(ctx context.Context) (State, error)

	// Append writes the entry and sets the remaining budget to
	// entry.BudgetRemainingAfter as one unit, or writes nothing. It returns
	// ErrConflict if the version is no longer expectedVersion. Appending an
	// entry whose ID is already stored returns the stored entry unchanged.
	Append(ctx context.Context, entry LedgerEntry, expectedVersion int64) (LedgerEntry, error)

	// Entries returns all entries in append order
	Entries(ctx context.Context) ([]LedgerEntry, error)
}
