package scanning

import (
	"regexp"
	"strings"
)

var (
	reDateish  = regexp.MustCompile(`\b\d{4}[-/.]\d{1,2}[-/.]\d{1,2}\b|\b\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4}\b`)
	reCurrency = regexp.MustCompile(`(?i)\b(usd|eur|gbp|sgd|cad|aud|inr|jpy)\b|[$£€¥₹]`)
	reAmount   = regexp.MustCompile(`\b\d{1,3}(,\d{3})*\.\d{2}\b|\b\d+\.\d{2}\b`)
	reDigit    = regexp.MustCompile(`\d`)

	reCRLF       = regexp.MustCompile(`\r\n?`)
	reTabs       = regexp.MustCompile(`\t+`)
	reMultiBlank = regexp.MustCompile(`\n{3,}`)
	reBoxNoise   = regexp.MustCompile(`(?m)^[ \t]*[_\-=|]{3,}[ \t]*$`)
)

// ocrConfidenceThreshold is the heuristic score at or above which OCR text is
// treated as High confidence.
const ocrConfidenceThreshold = 0.6

// heuristicConfidence scores decoded text by the receipt artifacts it contains:
// something date-shaped, a currency marker, a two-decimal amount, and enough content.
func heuristicConfidence(txt string) float32 {
	score := float32(0.2)
	if reDateish.MatchString(txt) {
		score += 0.2
	}
	if reCurrency.MatchString(txt) {
		score += 0.15
	}
	if reAmount.MatchString(txt) {
		score += 0.15
	}
	if len(txt) > 120 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// normalizeOCRText collapses noisy whitespace while keeping line structure,
// since the fallback field parser relies on column spacing.
func normalizeOCRText(s string) string {
	if s == "" {
		return s
	}
	s = reCRLF.ReplaceAllString(s, "\n")
	s = reTabs.ReplaceAllString(s, "    ")
	s = reBoxNoise.ReplaceAllString(s, "")
	s = reMultiBlank.ReplaceAllString(s, "\n\n")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
