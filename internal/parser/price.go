package parser

import (
	"strings"
)

// CurrencyGlyph is the only non-digit rune kept in a normalized price.
const CurrencyGlyph = '₽'

var spaceSeparators = strings.NewReplacer(
	"\u00a0", " ",
	"\u2009", " ",
	"\u202f", " ",
)

// NormalizePrice reduces a displayed price such as "1 990 ₽" to "1990₽".
// Text without digits normalizes to "". The function is idempotent.
func NormalizePrice(s string) string {
	s = spaceSeparators.Replace(s)

	var b strings.Builder
	b.Grow(len(s))
	digits := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits = true
			b.WriteRune(r)
		case r == CurrencyGlyph:
			b.WriteRune(r)
		}
	}

	if !digits {
		return ""
	}
	return b.String()
}
