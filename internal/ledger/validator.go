package ledger

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-ledger/internal/scanning"
)

var (
	// DefaultPlausibleCeiling bounds totals read from low confidence text
	DefaultPlausibleCeiling = decimal.NewFromInt(100000)

	reconcileTolerance = decimal.RequireFromString("0.01")

	reCurrencySymbol = regexp.MustCompile(scanning.CurrencySymbols)
	reCurrencyCode   = regexp.MustCompile(`(?i)(^|[^a-z])(?:` + scanning.CurrencyCodes + `)([^a-z]|$)`)
	reDigits         = regexp.MustCompile(`^\d+(?:\.\d+)?$`)
	reSept           = regexp.MustCompile(`(?i)\bsept\b`)
)

// Validator turns CandidateRecords into ValidatedRecords
type Validator struct {
	// DayFirst reads 01/03/2024 as 1 March
	DayFirst bool
	// PlausibleCeiling is the largest total accepted from low confidence text
	PlausibleCeiling decimal.Decimal
}

// NewValidator creates a day-first Validator with the default ceiling
func NewValidator() *Validator {
	return &Validator{DayFirst: true, PlausibleCeiling: DefaultPlausibleCeiling}
}

// Validate parses, completes and reconciles the candidate
func (v *Validator) Validate(c scanning.CandidateRecord, confidence scanning.Confidence) (ValidatedRecord, error) {
	var (
		r   ValidatedRecord
		err error
	)

	hasDate := strings.TrimSpace(c.Date) != ""
	if hasDate {
		if r.date, err = v.parseDate(c.Date); err != nil {
			return ValidatedRecord{}, err
		}
	}
	r.item = strings.Join(strings.Fields(c.Item), " ")

	if r.price, err = parseField("price", c.Price, unitPlaces); err != nil {
		return ValidatedRecord{}, err
	}
	if r.qty, err = parseField("qty", c.Qty, unitPlaces); err != nil {
		return ValidatedRecord{}, err
	}
	total, err := parseField("total", c.Total, totalPlaces)
	if err != nil {
		return ValidatedRecord{}, err
	}

	if total.Valid && r.price.Valid && r.qty.Valid {
		diff := total.Decimal.Sub(r.price.Decimal.Mul(r.qty.Decimal)).Abs()
		if diff.GreaterThan(reconcileTolerance) {
			return ValidatedRecord{}, fmt.Errorf("%w: total %s, price %s x qty %s = %s",
				ErrReconciliation, total.Decimal.StringFixed(totalPlaces), r.price.Decimal, r.qty.Decimal,
				r.price.Decimal.Mul(r.qty.Decimal).StringFixed(totalPlaces))
		}
	} else {
		total = derive(&r, total)
	}

	var missing []string
	if !hasDate {
		missing = append(missing, "date")
	}
	if !total.Valid {
		missing = append(missing, "total")
	}
	if len(missing) > 0 {
		return ValidatedRecord{}, fmt.Errorf("%w: %s", ErrMissingRequiredFields, strings.Join(missing, ", "))
	}
	r.total = total.Decimal

	if confidence == scanning.ConfidenceLow {
		ceiling := v.PlausibleCeiling
		if ceiling.IsZero() {
			ceiling = DefaultPlausibleCeiling
		}
		if !r.total.IsPositive() || r.total.GreaterThan(ceiling) {
			return ValidatedRecord{}, fmt.Errorf("%w: implausible total %s for low confidence text", ErrMalformedValue, r.total.StringFixed(totalPlaces))
		}
	}

	return r, nil
}

// derive fills the missing one of price, qty and total from the other two.
// A derived value that does not reconcile after rounding is left absent.
func derive(r *ValidatedRecord, total decimal.NullDecimal) decimal.NullDecimal {
	reconciles := func(t, p, q decimal.Decimal) bool {
		return t.Sub(p.Mul(q)).Abs().LessThanOrEqual(reconcileTolerance)
	}

	switch {
	case !total.Valid && r.price.Valid && r.qty.Valid:
		return decimal.NewNullDecimal(r.price.Decimal.Mul(r.qty.Decimal).Round(totalPlaces))
	case total.Valid && !r.price.Valid && r.qty.Valid && !r.qty.Decimal.IsZero():
		p := total.Decimal.DivRound(r.qty.Decimal, unitPlaces)
		if reconciles(total.Decimal, p, r.qty.Decimal) {
			r.price = decimal.NewNullDecimal(p)
		}
	case total.Valid && r.price.Valid && !r.qty.Valid && !r.price.Decimal.IsZero():
		q := total.Decimal.DivRound(r.price.Decimal, unitPlaces)
		if reconciles(total.Decimal, r.price.Decimal, q) {
			r.qty = decimal.NewNullDecimal(q)
		}
	}
	return total
}

func parseField(name, raw string, places int32) (decimal.NullDecimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := ParseAmount(raw)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("%w: %s %q", ErrMalformedValue, name, raw)
	}
	return decimal.NewNullDecimal(d.Round(places)), nil
}

// ParseAmount reads a printed amount. It accepts currency symbols and codes,
// thousands separators, a decimal comma and parenthesised negatives.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	s = reCurrencySymbol.ReplaceAllString(s, "")
	s = reCurrencyCode.ReplaceAllString(s, "${1}${2}")
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f', '\'':
			return -1
		}
		return r
	}, s)

	negative := false
	switch {
	case strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")"):
		negative, s = true, s[1:len(s)-1]
	case strings.HasPrefix(s, "-"):
		negative, s = true, s[1:]
	case strings.HasSuffix(s, "-"):
		negative, s = true, s[:len(s)-1]
	}
	s = strings.TrimPrefix(s, "+")
	s = strings.TrimSuffix(strings.TrimPrefix(strings.ToLower(s), "x"), "x")

	s = normalizeSeparators(s)
	if !reDigits.MatchString(s) {
		return decimal.Decimal{}, fmt.Errorf("not a number: %q", raw)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// normalizeSeparators rewrites s to use '.' as the only decimal separator
func normalizeSeparators(s string) string {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma != -1 && lastDot != -1:
		if lastComma > lastDot {
			// 1.234,56
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma != -1:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 <= 2 {
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ".") > 1:
		return strings.ReplaceAll(s, ".", "")
	}
	return s
}

var (
	yearFirstLayouts = []string{"2006-1-2", "2006/1/2", "2006.1.2"}
	dayFirstLayouts  = []string{"2/1/2006", "2-1-2006", "2.1.2006", "2/1/06", "2-1-06", "2.1.06"}
	monthFirstLayout = []string{"1/2/2006", "1-2-2006", "1.2.2006", "1/2/06", "1-2-06", "1.2.06"}
	namedLayouts     = []string{
		"2 Jan 2006", "2 January 2006", "2-Jan-2006", "2 Jan, 2006", "2 January, 2006",
		"Jan 2, 2006", "January 2, 2006", "Jan 2 2006", "January 2 2006",
	}
)

func (v *Validator) parseDate(raw string) (time.Time, error) {
	s := strings.Join(strings.Fields(raw), " ")
	s = strings.ReplaceAll(s, ". ", " ")
	s = reSept.ReplaceAllString(s, "Sep")

	layouts := make([]string, 0, len(yearFirstLayouts)+len(dayFirstLayouts)+len(namedLayouts)+1)
	layouts = append(layouts, time.RFC3339)
	layouts = append(layouts, yearFirstLayouts...)
	if v.DayFirst {
		layouts = append(layouts, dayFirstLayouts...)
	} else {
		layouts = append(layouts, monthFirstLayout...)
	}
	layouts = append(layouts, namedLayouts...)

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: date %q", ErrMalformedValue, raw)
}
