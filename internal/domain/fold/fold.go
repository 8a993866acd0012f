// Package fold builds comparison keys for free-text labels typed by people:
// role names, sector names and weekday names. "Garçom", "garcom" and
// " GARÇOM " all fold to the same key.
package fold

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Key returns the case- and accent-insensitive key of s.
// Inner whitespace runs collapse to a single space.
func Key(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	folded := cases.Fold().String(stripped)
	return strings.Join(strings.Fields(folded), " ")
}

// Equal reports whether a and b fold to the same key.
func Equal(a, b string) bool {
	return Key(a) == Key(b)
}
