package ledger

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "SOA"

var exportHeaders = []string{"Date", "Item", "Price", "Qty", "Total", "Budget Remaining", "Source"}

// WriteXLSX writes the entries and the remaining budget as a spreadsheet
func WriteXLSX(w io.Writer, entries []LedgerEntry, remaining decimal.Decimal) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	header := make([]any, len(exportHeaders))
	for i, h := range exportHeaders {
		header[i] = h
	}
	if err := setRow(f, 1, 1, header); err != nil {
		return err
	}

	for i, e := range entries {
		values := []any{
			e.Date.Format("02/01/2006"),
			e.Item,
			nullFloat(e.Price),
			nullFloat(e.Qty),
			e.Total.InexactFloat64(),
			e.BudgetRemainingAfter.InexactFloat64(),
			string(e.Source),
		}
		if err := setRow(f, i+2, 1, values); err != nil {
			return err
		}
	}

	if err := setRow(f, len(entries)+3, 5, []any{"Remaining", remaining.InexactFloat64()}); err != nil {
		return err
	}

	for _, cw := range []struct {
		from, to string
		width    float64
	}{
		{"A", "A", 12}, // date
		{"B", "B", 32}, // item
		{"C", "F", 14}, // amounts
	} {
		if err := f.SetColWidth(exportSheet, cw.from, cw.to, cw.width); err != nil {
			return fmt.Errorf("setting width of %s:%s: %w", cw.from, cw.to, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing spreadsheet: %w", err)
	}
	return nil
}

// setRow writes values into row starting at column col
func setRow(f *excelize.File, row, col int, values []any) error {
	for j, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+j, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(exportSheet, cell, v); err != nil {
			return fmt.Errorf("writing cell %s: %w", cell, err)
		}
	}
	return nil
}

// nullFloat leaves absent values as empty cells
func nullFloat(d decimal.NullDecimal) any {
	if !d.Valid {
		return ""
	}
	return d.Decimal.InexactFloat64()
}
