package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultSlugLength caps title slugs so generated folder names stay readable.
const DefaultSlugLength = 60

// Slugify lowercases value, strips diacritics, and collapses every run of
// non-alphanumeric characters into a single hyphen. It returns "" when nothing
// survives.
func Slugify(value string) string {
	return SlugifyMax(value, 0)
}

// SlugifyMax behaves like Slugify but truncates the result to at most max
// bytes on a hyphen boundary when possible. A max of 0 disables truncation.
func SlugifyMax(value string, max int) string {
	folded := foldDiacritics(strings.TrimSpace(value))
	var b strings.Builder
	b.Grow(len(folded))
	pendingHyphen := false
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r >= 'A' && r <= 'Z':
			r += 'a' - 'A'
		default:
			pendingHyphen = b.Len() > 0
			continue
		}
		if pendingHyphen {
			b.WriteByte('-')
			pendingHyphen = false
		}
		b.WriteRune(r)
	}
	slug := b.String()
	if max > 0 && len(slug) > max {
		slug = slug[:max]
		if cut := strings.LastIndexByte(slug, '-'); cut > max/2 {
			slug = slug[:cut]
		}
		slug = strings.TrimRight(slug, "-")
	}
	return slug
}

func foldDiacritics(value string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, value)
	if err != nil {
		return value
	}
	return out
}
