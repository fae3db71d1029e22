package receipt

import (
	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-ledger/internal/fields"
	"github.com/zombor/receipt-ledger/internal/ledger"
	"github.com/zombor/receipt-ledger/internal/scanning"
)

// Result is the outcome of a receipt that made it into the ledger
type Result struct {
	Entry                ledger.LedgerEntry        `json:"entry"`
	BudgetRemainingAfter decimal.Decimal     `json:"budget_remaining_after"`
	Source               scanning.Source     `json:"source"`
	Confidence           scanning.Confidence `json:"confidence"`
	Method               fields.Method       `json:"method"`
	ArchivedAs           string              `json:"archived_as,omitempty"`
}

// Summary is the current ledger with its remaining budget
type Summary struct {
	Entries   []ledger.LedgerEntry  `json:"entries"`
	Remaining decimal.Decimal `json:"remaining"`
	Version   int64           `json:"version"`
}
