package util

import "strings"

// NormalizeSymbol upper-cases a ticker and strips exchange prefixes such as
// "NASDAQ:" along with surrounding whitespace.
func NormalizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	return s
}
