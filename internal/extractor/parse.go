package extractor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Togather-Foundation/recipes/internal/sanitize"
)

var (
	fencedBlock   = regexp.MustCompile("(?s)```[a-zA-Z]*[ \t]*\\n?(.*?)```")
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)

	validate = validator.New(validator.WithRequiredStructEnabled())
)

// parseCandidate turns raw completion text into a validated candidate.
// Errors wrap ErrParse when no JSON could be recovered and ErrValidation when
// JSON was recovered but has the wrong shape.
func parseCandidate(raw string) (*Candidate, error) {
	body := stripFences(raw)
	if body == "" {
		return nil, fmt.Errorf("%w: empty completion", ErrParse)
	}

	data := []byte(body)
	if !json.Valid(data) {
		repaired, ok := repairJSON(body)
		if !ok {
			return nil, fmt.Errorf("%w: output is not JSON", ErrParse)
		}
		data = []byte(repaired)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrValidation)
	}

	var candidate Candidate
	if err := json.Unmarshal(trimmed, &candidate); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	candidate.clean()

	if err := validate.Struct(candidate); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, describeValidation(err))
	}
	return &candidate, nil
}

// stripFences removes markdown code fences and surrounding prose.
func stripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

// repairJSON applies the bounded repair pass: isolate the outermost object or
// array, then drop trailing commas.
func repairJSON(s string) (string, bool) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}
	closing := byte('}')
	if s[start] == '[' {
		closing = ']'
	}
	end := strings.LastIndexByte(s, closing)
	if end <= start {
		return "", false
	}

	candidate := trailingComma.ReplaceAllString(s[start:end+1], "$1")
	if !json.Valid([]byte(candidate)) {
		return "", false
	}
	return candidate, true
}

func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Namespace()), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

func (c *Candidate) clean() {
	c.Name = sanitize.Text(c.Name)
	c.Description = sanitize.Text(c.Description)
	c.Cuisine = sanitize.Text(c.Cuisine)
	c.Ingredients = sanitize.TextSlice(c.Ingredients)
	c.Instructions = sanitize.TextSlice(c.Instructions)

	tags := make([]string, 0, len(c.Tags))
	for _, tag := range sanitize.TextSlice(c.Tags) {
		if tag != "" {
			tags = append(tags, strings.ToLower(tag))
		}
	}
	c.Tags = tags
}

func truncate(s string, limit int) string {
	return sanitize.Truncate(s, limit)
}
