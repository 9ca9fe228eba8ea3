package recipes

import (
	"strings"
	"unicode"
)

// Slugify derives a URL-safe slug from a recipe name.
func Slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if runes := []rune(slug); len(runes) > 80 {
		slug = strings.TrimSuffix(string(runes[:80]), "-")
	}
	if slug == "" {
		return "recipe"
	}
	return slug
}
