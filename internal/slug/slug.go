// Package slug builds and resolves the human readable path segments used in
// product URLs, e.g. "classic-white-oxford-shirt-ab12cd".
package slug

import (
	"regexp"
	"strings"
	"unicode"

	"storefront/internal/domain"
)

// ShortIDLength is the number of leading id characters embedded in a slug.
const ShortIDLength = 6

// Spaces are the ASCII controls plus the Unicode space separators, the
// line and paragraph separators and the byte order mark.
var (
	disallowed = regexp.MustCompile(`[^\w\s\v\p{Zs}\x{2028}\x{2029}\x{FEFF}-]`)
	whitespace = regexp.MustCompile(`[\s\v\p{Zs}\x{2028}\x{2029}\x{FEFF}]+`)
	hyphenRuns = regexp.MustCompile(`-+`)
)

func isSpace(r rune) bool {
	switch r {
	case '\t', '\n', '\v', '\f', '\r', '\u2028', '\u2029', '\ufeff':
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

// Generate derives a slug from a product title and its store id.
func Generate(title, id string) string {
	s := strings.TrimFunc(strings.ToLower(title), isSpace)
	s = disallowed.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(s, "-")
	s = hyphenRuns.ReplaceAllString(s, "-")
	// a trailing hyphen would double up with the separator
	s = strings.TrimRight(s, "-")

	return s + "-" + ShortID(id)
}

// ShortID returns the id prefix embedded in slugs.
func ShortID(id string) string {
	runes := []rune(id)
	if len(runes) <= ShortIDLength {
		return id
	}
	return string(runes[:ShortIDLength])
}

// ExtractID returns the trailing segment of a slug, which is the short id
// candidate.
func ExtractID(slug string) string {
	parts := strings.Split(slug, "-")
	return parts[len(parts)-1]
}

// FindProductID resolves a slug to the full id of the first product whose id
// starts with the slug's short id. The first match in list order wins.
func FindProductID(slug string, products []*domain.Product) (string, bool) {
	shortID := ExtractID(slug)
	if shortID == "" {
		return "", false
	}

	for _, p := range products {
		if p == nil || p.ID == "" {
			continue
		}
		if strings.HasPrefix(p.ID, shortID) {
			return p.ID, true
		}
	}

	return "", false
}
