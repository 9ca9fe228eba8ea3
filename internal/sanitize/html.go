package sanitize

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// StrictPolicy removes all HTML tags and attributes.
	StrictPolicy = bluemonday.StrictPolicy()

	blankRuns = regexp.MustCompile(`[ \t\f\v]+`)
	lineRuns  = regexp.MustCompile(`\n{3,}`)
	blockTags = regexp.MustCompile(`(?i)<\s*(br|/p|/div|/li|/h[1-6]|/tr)\s*/?>`)
)

// Text strips all HTML tags and returns plain text with entities decoded.
// Use for: recipe names, ingredients, instruction steps, tags.
func Text(input string) string {
	return strings.TrimSpace(html.UnescapeString(StrictPolicy.Sanitize(input)))
}

// TextSlice sanitizes each string in a slice, removing all HTML.
func TextSlice(inputs []string) []string {
	if inputs == nil {
		return nil
	}
	sanitized := make([]string, len(inputs))
	for i, input := range inputs {
		sanitized[i] = Text(input)
	}
	return sanitized
}

// Document reduces an HTML page to readable text, keeping block boundaries as
// line breaks. Used when the fetch provider returns no markdown.
func Document(input string) string {
	withBreaks := blockTags.ReplaceAllString(input, "$0\n")
	text := html.UnescapeString(StrictPolicy.Sanitize(withBreaks))

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(blankRuns.ReplaceAllString(line, " "))
	}
	return strings.TrimSpace(lineRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}

// Truncate cuts s to at most limit runes. A non-positive limit disables truncation.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
