package fields

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-ledger/internal/scanning"
)

const (
	amountPattern   = `\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:[.,]\d{1,2})?`
	currencyPattern = `(?:` + scanning.CurrencySymbols + `|(?i:` + scanning.CurrencyCodes + `))?[ \t]*`
	monthPattern    = `(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?`
)

var (
	reTotal = regexp.MustCompile(`(?i)\b(grand\s*total|total\s*due|amount\s*due|balance\s*due|sub\s*-?\s*total|total)\b[: \t]*` + currencyPattern + `(` + amountPattern + `)`)
	reQty   = regexp.MustCompile(`(?i)\b(?:qty|quantity)\b[ \t]*[:x]?[ \t]*(\d+(?:\.\d+)?)`)
	rePrice = regexp.MustCompile(`(?i)\b(?:unit\s*price|price)\b[ \t]*:?[ \t]*` + currencyPattern + `(` + amountPattern + `)`)

	reDates = []*regexp.Regexp{
		regexp.MustCompile(`\b(\d{4}-\d{1,2}-\d{1,2})(?:\b|T)`),
		regexp.MustCompile(`\b\d{4}/\d{1,2}/\d{1,2}\b`),
		regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-](?:\d{4}|\d{2})\b`),
		regexp.MustCompile(`\b\d{1,2}\.\d{1,2}\.(?:\d{4}|\d{2})\b`),
		regexp.MustCompile(`(?i)\b\d{1,2}[ -]` + monthPattern + `,?[ -]\d{4}\b`),
		regexp.MustCompile(`(?i)\b` + monthPattern + ` \d{1,2},? \d{4}\b`),
	}

	reColumns = regexp.MustCompile(`\s{2,}`)
	reAmount  = regexp.MustCompile(amountPattern)
)

// total keyword tiers, lower wins
func totalTier(keyword string) int {
	k := strings.ToLower(strings.Join(strings.Fields(keyword), ""))
	switch {
	case strings.HasPrefix(k, "sub"):
		return 3
	case k == "total":
		return 2
	default:
		return 1
	}
}

// ParseText finds receipt fields in plain text without a model. It only
// reports values printed in the text; anything it cannot locate stays empty.
func ParseText(text string) scanning.CandidateRecord {
	rec := scanning.CandidateRecord{
		Date:  findDate(text),
		Total: findTotal(text),
		Qty:   firstGroup(reQty, text),
		Price: firstGroup(rePrice, text),
	}

	rows := findTableRows(text)
	switch {
	case len(rows) == 1:
		row := rows[0]
		rec.Item = row.item
		if row.qty != "" {
			rec.Qty = row.qty
		}
		if row.price != "" {
			rec.Price = row.price
		}
		if rec.Total == "" {
			rec.Total = row.total
		}
	case len(rows) > 1:
		// one ledger entry per receipt: describe the items, keep only the grand total
		rec.Item = summarizeItems(rows)
		rec.Qty = ""
		rec.Price = ""
	}

	return rec
}

func firstGroup(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

func findTotal(text string) string {
	type candidate struct {
		tier  int
		value decimal.Decimal
		raw   string
	}
	var found []candidate
	for _, m := range reTotal.FindAllStringSubmatch(text, -1) {
		v, ok := amountValue(m[2])
		if !ok || !v.IsPositive() {
			continue
		}
		found = append(found, candidate{tier: totalTier(m[1]), value: v, raw: m[2]})
	}
	if len(found) == 0 {
		return ""
	}
	sort.SliceStable(found, func(i, j int) bool {
		if found[i].tier != found[j].tier {
			return found[i].tier < found[j].tier
		}
		return found[i].value.GreaterThan(found[j].value)
	})
	return found[0].raw
}

// amountValue reads an amount token for comparison only
func amountValue(s string) (decimal.Decimal, bool) {
	if i := strings.LastIndex(s, ","); i != -1 && len(s)-i-1 <= 2 && !strings.Contains(s, ".") {
		s = s[:i] + "." + s[i+1:]
	}
	s = strings.ReplaceAll(s, ",", "")
	v, err := decimal.NewFromString(s)
	return v, err == nil
}

// findDate prefers a date on a line mentioning "date", then the earliest one
func findDate(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if !strings.Contains(strings.ToLower(line), "date") {
			continue
		}
		if d, _ := earliestDate(line); d != "" {
			return d
		}
	}
	d, _ := earliestDate(text)
	return d
}

func earliestDate(s string) (string, int) {
	best, bestPos := "", -1
	for _, re := range reDates {
		loc := re.FindStringSubmatchIndex(s)
		if loc == nil {
			continue
		}
		// patterns with a group match more than the date itself
		if len(loc) > 2 && loc[2] >= 0 {
			loc = loc[2:4]
		}
		if bestPos == -1 || loc[0] < bestPos {
			best, bestPos = s[loc[0]:loc[1]], loc[0]
		}
	}
	return best, bestPos
}

type tableRow struct {
	item, qty, price, total string
}

type tableHeader struct {
	cells                    int
	item, qty, price, total int
}

func parseHeader(line string) (tableHeader, bool) {
	cells := reColumns.Split(strings.TrimSpace(line), -1)
	h := tableHeader{cells: len(cells), item: -1, qty: -1, price: -1, total: -1}
	if len(cells) < 2 {
		return h, false
	}
	for i, c := range cells {
		switch strings.ToLower(strings.TrimSpace(c)) {
		case "item", "items", "description", "name", "product":
			h.item = i
		case "qty", "quantity":
			h.qty = i
		case "price", "unit price", "unit":
			h.price = i
		case "total", "amount", "line total":
			h.total = i
		}
	}
	if h.item == -1 || (h.qty == -1 && h.price == -1 && h.total == -1) {
		return h, false
	}
	return h, true
}

// findTableRows reads item rows under a column header line
func findTableRows(text string) []tableRow {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		h, ok := parseHeader(line)
		if !ok {
			continue
		}
		var rows []tableRow
		for _, rowLine := range lines[i+1:] {
			row, ok := parseRow(h, rowLine)
			if !ok {
				break
			}
			rows = append(rows, row)
		}
		if len(rows) > 0 {
			return rows
		}
	}
	return nil
}

func parseRow(h tableHeader, line string) (tableRow, bool) {
	line = strings.TrimSpace(line)
	if line == "" || reTotal.MatchString(line) {
		return tableRow{}, false
	}
	cells := reColumns.Split(line, -1)
	if len(cells) != h.cells {
		return tableRow{}, false
	}

	row := tableRow{item: strings.TrimSpace(cells[h.item])}
	numeric := func(idx int) (string, bool) {
		if idx == -1 {
			return "", true
		}
		m := reAmount.FindString(cells[idx])
		return m, m != ""
	}
	var ok bool
	if row.qty, ok = numeric(h.qty); !ok {
		return tableRow{}, false
	}
	if row.price, ok = numeric(h.price); !ok {
		return tableRow{}, false
	}
	if row.total, ok = numeric(h.total); !ok {
		return tableRow{}, false
	}
	return row, row.item != ""
}

func summarizeItems(rows []tableRow) string {
	const shown = 2
	names := make([]string, 0, shown)
	for _, r := range rows {
		if len(names) == shown {
			break
		}
		names = append(names, r.item)
	}
	summary := strings.Join(names, ", ")
	if extra := len(rows) - len(names); extra > 0 {
		summary += fmt.Sprintf(" (+%d more)", extra)
	}
	return summary
}
