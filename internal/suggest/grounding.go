package suggest

import (
	"regexp"
	"strings"
)

// numericToken matches digit-bearing tokens: prices, quantities, mileages,
// model years. Currency symbols and separators are normalized away before
// comparison so "$24,999" in the draft matches "24999" in the context.
var numericToken = regexp.MustCompile(`[$€£]?\d[\d,.]*\d|\d`)

// GroundingResult reports which numeric claims in a draft are not traceable
// to the supplied context
type GroundingResult struct {
	Grounded   bool
	Ungrounded []string
}

// CheckGrounding verifies that every numeric price/inventory token in the
// draft appears in the input context. The engine has no access to data
// beyond the supplied context, so any novel number is fabricated by the
// model and must downgrade the suggestion.
func CheckGrounding(draft string, contextText string) GroundingResult {
	allowed := make(map[string]struct{})
	for _, tok := range numericToken.FindAllString(contextText, -1) {
		allowed[normalizeNumber(tok)] = struct{}{}
	}

	result := GroundingResult{Grounded: true}
	seen := make(map[string]struct{})
	for _, tok := range numericToken.FindAllString(draft, -1) {
		norm := normalizeNumber(tok)
		if _, ok := allowed[norm]; ok {
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		result.Grounded = false
		result.Ungrounded = append(result.Ungrounded, tok)
	}
	return result
}

// normalizeNumber strips currency symbols and thousands separators so the
// same value matches across formattings. A trailing ".00" is dropped too.
func normalizeNumber(tok string) string {
	tok = strings.TrimLeft(tok, "$€£")
	tok = strings.ReplaceAll(tok, ",", "")
	tok = strings.TrimSuffix(tok, ".00")
	return tok
}
