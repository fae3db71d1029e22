// Package sheets stores the ledger in a Google Sheets spreadsheet: one row per
// entry on the entries sheet, the remaining budget and a version counter on
// the budget sheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"github.com/zombor/receipt-ledger/internal/ledger"
	"github.com/zombor/receipt-ledger/internal/scanning"
)

const (
	dateLayout = "02/01/2006"
	lastColumn = "I"
)

var header = []any{"Date", "Item", "Price", "Qty", "Total", "Budget Remaining", "Source", "ID", "Created At"}

// Config selects the spreadsheet and sheets
type Config struct {
	SpreadsheetID string
	EntriesSheet  string          // default "SOA"
	BudgetSheet   string          // default "Budget"
	InitialBudget decimal.Decimal // used while the budget cell is empty
}

// Store implements ledger.Store on Google Sheets
type Store struct {
	svc *gsheet.Service
	cfg Config
}

var _ ledger.Store = (*Store)(nil)

// New creates a Store. Pass option.WithCredentialsFile or similar for auth.
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Store, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if cfg.EntriesSheet == "" {
		cfg.EntriesSheet = "SOA"
	}
	if cfg.BudgetSheet == "" {
		cfg.BudgetSheet = "Budget"
	}

	svc, err := gsheet.NewService(ctx, append([]option.ClientOption{option.WithScopes(gsheet.SpreadsheetsScope)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Store{svc: svc, cfg: cfg}, nil
}

func (s *Store) Name() string {
	return "sheets:" + s.cfg.SpreadsheetID + "/" + s.cfg.EntriesSheet
}

func (s *Store) budgetRange() string  { return fmt.Sprintf("%s!B1:C1", s.cfg.BudgetSheet) }
func (s *Store) entriesRange() string { return fmt.Sprintf("%s!A2:%s", s.cfg.EntriesSheet, lastColumn) }

func (s *Store) ReadState(ctx context.Context) (ledger.State, error) {
	resp, err := s.batchGet(ctx, s.budgetRange())
	if err != nil {
		return ledger.State{}, err
	}
	return s.parseState(resp.ValueRanges[0].Values)
}

// Append adds the entry row with an insert-rows append, so rows written by
// anyone else since the read are never overwritten, then moves the budget
// cells. A row that landed without its budget write is completed on retry.
func (s *Store) Append(ctx context.Context, entry ledger.LedgerEntry, expectedVersion int64) (ledger.LedgerEntry, error) {
	resp, err := s.batchGet(ctx, s.budgetRange(), s.entriesRange())
	if err != nil {
		return ledger.LedgerEntry{}, err
	}
	st, err := s.parseState(resp.ValueRanges[0].Values)
	if err != nil {
		return ledger.LedgerEntry{}, err
	}
	rows := resp.ValueRanges[1].Values

	for _, row := range rows {
		if cell(row, 7) != entry.ID.String() {
			continue
		}
		stored, err := rowToEntry(row)
		if err != nil {
			return ledger.LedgerEntry{}, err
		}
		if st.Version == expectedVersion {
			if err := s.writeBudget(ctx, stored.BudgetRemainingAfter, st.Version+1); err != nil {
				return ledger.LedgerEntry{}, err
			}
		}
		return stored, nil
	}
	if st.Version != expectedVersion {
		return ledger.LedgerEntry{}, ledger.ErrConflict
	}

	if len(rows) == 0 {
		if err := s.update(ctx, fmt.Sprintf("%s!A1:%s1", s.cfg.EntriesSheet, lastColumn), header); err != nil {
			return ledger.LedgerEntry{}, err
		}
	}

	_, err = s.svc.Spreadsheets.Values.Append(s.cfg.SpreadsheetID,
		fmt.Sprintf("%s!A1:%s", s.cfg.EntriesSheet, lastColumn),
		&gsheet.ValueRange{Values: [][]any{entryToRow(entry)}}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return ledger.LedgerEntry{}, fmt.Errorf("sheets append: %w", err)
	}

	if err := s.writeBudget(ctx, entry.BudgetRemainingAfter, st.Version+1); err != nil {
		return ledger.LedgerEntry{}, err
	}
	return entry, nil
}

func (s *Store) writeBudget(ctx context.Context, remaining decimal.Decimal, version int64) error {
	return s.update(ctx, s.budgetRange(), []any{remaining.InexactFloat64(), version})
}

func (s *Store) update(ctx context.Context, rng string, row []any) error {
	_, err := s.svc.Spreadsheets.Values.Update(s.cfg.SpreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{row}}).
		ValueInputOption("RAW").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheets update %s: %w", rng, err)
	}
	return nil
}

func (s *Store) Entries(ctx context.Context) ([]ledger.LedgerEntry, error) {
	resp, err := s.batchGet(ctx, s.entriesRange())
	if err != nil {
		return nil, err
	}
	entries := make([]ledger.LedgerEntry, 0, len(resp.ValueRanges[0].Values))
	for i, row := range resp.ValueRanges[0].Values {
		e, err := rowToEntry(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *Store) batchGet(ctx context.Context, ranges ...string) (*gsheet.BatchGetValuesResponse, error) {
	resp, err := s.svc.Spreadsheets.Values.BatchGet(s.cfg.SpreadsheetID).
		Ranges(ranges...).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheets get: %w", err)
	}
	if len(resp.ValueRanges) != len(ranges) {
		return nil, fmt.Errorf("sheets get: expected %d ranges, got %d", len(ranges), len(resp.ValueRanges))
	}
	return resp, nil
}

func (s *Store) parseState(values [][]any) (ledger.State, error) {
	var row []any
	if len(values) > 0 {
		row = values[0]
	}
	st := ledger.State{Remaining: s.cfg.InitialBudget}
	if raw := cell(row, 0); raw != "" {
		d, err := ledger.ParseAmount(raw)
		if err != nil {
			return ledger.State{}, fmt.Errorf("budget cell %q: %w", raw, err)
		}
		st.Remaining = d
	}
	if raw := cell(row, 1); raw != "" {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return ledger.State{}, fmt.Errorf("version cell %q: %w", raw, err)
		}
		st.Version = v.IntPart()
	}
	return st, nil
}

func entryToRow(e ledger.LedgerEntry) []any {
	return []any{
		e.Date.Format(dateLayout),
		e.Item,
		nullNumber(e.Price),
		nullNumber(e.Qty),
		e.Total.InexactFloat64(),
		e.BudgetRemainingAfter.InexactFloat64(),
		string(e.Source),
		e.ID.String(),
		e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func rowToEntry(row []any) (ledger.LedgerEntry, error) {
	var (
		e   ledger.LedgerEntry
		err error
	)
	if e.Date, err = time.Parse(dateLayout, cell(row, 0)); err != nil {
		return ledger.LedgerEntry{}, fmt.Errorf("date: %w", err)
	}
	e.Item = cell(row, 1)
	if e.Price, err = nullAmount(cell(row, 2)); err != nil {
		return ledger.LedgerEntry{}, fmt.Errorf("price: %w", err)
	}
	if e.Qty, err = nullAmount(cell(row, 3)); err != nil {
		return ledger.LedgerEntry{}, fmt.Errorf("qty: %w", err)
	}
	if e.Total, err = ledger.ParseAmount(cell(row, 4)); err != nil {
		return ledger.LedgerEntry{}, fmt.Errorf("total: %w", err)
	}
	if e.BudgetRemainingAfter, err = ledger.ParseAmount(cell(row, 5)); err != nil {
		return ledger.LedgerEntry{}, fmt.Errorf("budget remaining: %w", err)
	}
	e.Source = scanning.Source(cell(row, 6))
	if id := cell(row, 7); id != "" {
		if e.ID, err = uuid.Parse(id); err != nil {
			return ledger.LedgerEntry{}, fmt.Errorf("id: %w", err)
		}
	}
	if created := cell(row, 8); created != "" {
		if e.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
			return ledger.LedgerEntry{}, fmt.Errorf("created at: %w", err)
		}
	}
	return e, nil
}

// cell renders a cell as text; numbers come back from the API as float64
func cell(row []any, i int) string {
	if i >= len(row) || row[i] == nil {
		return ""
	}
	switch v := row[i].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return decimal.NewFromFloat(v).String()
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func nullNumber(d decimal.NullDecimal) any {
	if !d.Valid {
		return ""
	}
	return d.Decimal.InexactFloat64()
}

func nullAmount(raw string) (decimal.NullDecimal, error) {
	if raw == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := ledger.ParseAmount(raw)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}
