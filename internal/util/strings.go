package util

import "strings"

// TruncateRunes shortens s to at most n runes, appending "..." when trimmed.
// Rune-safe: never splits a multi-byte character.
func TruncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// FirstNonEmpty returns the first non-empty string in vals.
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
