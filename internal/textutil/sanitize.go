package textutil

import (
	"strings"
	"unicode"
)

// SanitizeFileName makes a workflow or deliverable name safe to embed in a
// single path segment. Separators, colons and asterisks become hyphens. Quotes,
// wildcards, redirection characters and control runes are dropped.
func SanitizeFileName(name string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r == '/', r == '\\', r == ':', r == '*':
			return '-'
		case strings.ContainsRune(`?"<>|`, r), unicode.IsControl(r):
			return -1
		default:
			return r
		}
	}, name)
	return strings.TrimSpace(mapped)
}

// SanitizeToken lowercases value and replaces everything outside [a-z0-9_-]
// with an underscore. It never returns an empty string; blank input and
// input made only of separators yield "unknown".
func SanitizeToken(value string) string {
	token := strings.Map(func(r rune) rune {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, strings.TrimSpace(value))
	if token = strings.Trim(token, "_-"); token == "" {
		return "unknown"
	}
	return token
}
