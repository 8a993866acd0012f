// Package identifier normalizes Brazilian tax IDs (CPF) so that the same
// person compares equal however the number was typed or stored:
// "123.456.789-01", "12345678901" and "2345678901" (leading zero lost by a
// spreadsheet) all normalize to an 11-digit string.
package identifier

import "strings"

// Length is the canonical number of digits of a CPF.
const Length = 11

// Normalize strips every non-digit character and left-pads the result with
// zeros up to Length. Longer inputs are returned as-is, never truncated.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(Length)
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) >= Length {
		return digits
	}
	return strings.Repeat("0", Length-len(digits)) + digits
}

// IsBlank reports whether raw carries no digit at all.
func IsBlank(raw string) bool {
	return !strings.ContainsAny(raw, "0123456789")
}
