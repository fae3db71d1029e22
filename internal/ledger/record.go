package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-ledger/internal/scanning"
)

const (
	totalPlaces = 2
	unitPlaces  = 4 // unit price and quantity
	dateLayout  = "2006-01-02"
)

// ValidatedRecord is a CandidateRecord whose fields are parsed and reconciled.
// It is immutable; use the getters.
type ValidatedRecord struct {
	date  time.Time
	item  string
	price decimal.NullDecimal
	qty   decimal.NullDecimal
	total decimal.Decimal
}

func (r ValidatedRecord) Date() time.Time            { return r.date }
func (r ValidatedRecord) Item() string               { return r.item }
func (r ValidatedRecord) Price() decimal.NullDecimal { return r.price }
func (r ValidatedRecord) Qty() decimal.NullDecimal   { return r.qty }
func (r ValidatedRecord) Total() decimal.Decimal     { return r.total }

// Candidate renders the record back to canonical text. Validating the result
// again yields an equal record.
func (r ValidatedRecord) Candidate() scanning.CandidateRecord {
	c := scanning.CandidateRecord{
		Date:  r.date.Format(dateLayout),
		Item:  r.item,
		Total: r.total.StringFixed(totalPlaces),
	}
	if r.price.Valid {
		c.Price = r.price.Decimal.String()
	}
	if r.qty.Valid {
		c.Qty = r.qty.Decimal.String()
	}
	return c
}

// Equal compares by value
func (r ValidatedRecord) Equal(o ValidatedRecord) bool {
	return r.date.Equal(o.date) &&
		r.item == o.item &&
		nullEqual(r.price, o.price) &&
		nullEqual(r.qty, o.qty) &&
		r.total.Equal(o.total)
}

func nullEqual(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}
