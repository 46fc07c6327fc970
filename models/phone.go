package models

import (
	"strings"
	"unicode"
)

// NormalizePhone reduces a number to E.164. Ten-digit numbers are taken as
// North American.
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	var digits strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case d == "":
		return ""
	case len(d) == 10 && !strings.HasPrefix(raw, "+"):
		return "+1" + d
	default:
		return "+" + d
	}
}
