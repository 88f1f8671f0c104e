package mapping

import (
	"strings"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// MaxNameRunes bounds the length of a normalized merchant name.
const MaxNameRunes = 30

// Normalize reduces a merchant name to its comparison key: full-width forms
// folded, lowercased, everything except Hangul syllables, ASCII letters and
// digits removed, truncated to MaxNameRunes. Normalize is idempotent.
func Normalize(name string) string {
	folded := norm.NFC.String(width.Fold.String(name))

	var b strings.Builder
	b.Grow(len(folded))
	n := 0
	for _, r := range strings.ToLower(folded) {
		if !keep(r) {
			continue
		}
		b.WriteRune(r)
		n++
		if n == MaxNameRunes {
			break
		}
	}
	return b.String()
}

func keep(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r >= 0xAC00 && r <= 0xD7A3:
		return true
	default:
		return false
	}
}
