package scanning

// Currency markers printed next to amounts, as regexp alternations. Codes are
// matched case-insensitively and may sit directly against the digits (RM23.50).
const (
	CurrencyCodes   = `SGD|USD|EUR|GBP|INR|AUD|CAD|JPY|MYR|RM`
	CurrencySymbols = `S\$|US\$|[$€£¥₹]`
)
