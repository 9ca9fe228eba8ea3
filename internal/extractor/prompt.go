package extractor

import (
	"fmt"
	"strings"
)

const systemPrompt = `You extract a single cooking recipe from the text of a web page.
Respond with one JSON object and nothing else, using exactly these keys:
{"name": string, "description": string, "ingredients": [string], "instructions": [string], "cuisine": string, "tags": [string]}
Rules:
- "ingredients" lists every ingredient line in page order, including quantities, one line per entry.
- "instructions" lists every preparation step in page order, one step per entry.
- Copy wording from the page; do not invent ingredients or steps.
- Use "" for unknown strings and [] for unknown lists.
- If the page contains no recipe, return {"name": "", "ingredients": [], "instructions": []}.`

func userPrompt(src Source, maxChars int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Source URL: %s\n", src.URL)
	if src.Title != "" {
		fmt.Fprintf(&b, "Page title: %s\n", src.Title)
	}
	if src.Description != "" {
		fmt.Fprintf(&b, "Page description: %s\n", src.Description)
	}
	b.WriteString("\nPage content:\n")
	b.WriteString(truncate(src.Content, maxChars))
	return b.String()
}
