// Package qa assigns a quality status and confidence to extracted recipes.
package qa

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Togather-Foundation/recipes/internal/domain/recipes"
	"github.com/Togather-Foundation/recipes/internal/extractor"
)

const (
	DefaultMinIngredients    = 3
	DefaultMinConfidence     = 0.6
	DefaultMismatchThreshold = 0.3

	maxEntryRunes = 1000
)

// errorPageMarkers identify titles of pages that are not recipes at all.
var errorPageMarkers = []string{
	"404",
	"page not found",
	"not found",
	"access denied",
	"forbidden",
	"just a moment",
	"captcha",
	"are you a robot",
}

// Assessment is the outcome of one classification pass.
type Assessment struct {
	Status     recipes.QAStatus
	Method     string
	Confidence float64
	Notes      []string
}

// NotesText joins the reasons for storage.
func (a Assessment) NotesText() string {
	return strings.Join(a.Notes, "; ")
}

type Config struct {
	MinIngredients    int
	MinConfidence     float64
	MismatchThreshold float64
}

type Classifier struct {
	cfg Config
}

func NewClassifier(cfg Config) *Classifier {
	if cfg.MinIngredients <= 0 {
		cfg.MinIngredients = DefaultMinIngredients
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultMinConfidence
	}
	if cfg.MismatchThreshold <= 0 {
		cfg.MismatchThreshold = DefaultMismatchThreshold
	}
	return &Classifier{cfg: cfg}
}

// Classify applies the layered policy. The most specific failing rule wins:
// removed, then needs_review, then validated.
func (c *Classifier) Classify(candidate extractor.Candidate) Assessment {
	confidence := Confidence(candidate)
	assessment := Assessment{
		Method:     recipes.MethodAutomated,
		Confidence: confidence,
	}

	if reasons := removalReasons(candidate); len(reasons) > 0 {
		assessment.Status = recipes.QARemoved
		assessment.Notes = reasons
		return assessment
	}

	var reasons []string
	if len(candidate.Ingredients) < c.cfg.MinIngredients {
		reasons = append(reasons, "fewer than minimum ingredients")
	}
	if ratio, ok := ingredientCoverage(candidate); ok && ratio < c.cfg.MismatchThreshold {
		reasons = append(reasons, "ingredients rarely mentioned in instructions")
	}
	if confidence < c.cfg.MinConfidence {
		reasons = append(reasons, "low confidence")
	}

	if len(reasons) > 0 {
		assessment.Status = recipes.QANeedsReview
		assessment.Notes = reasons
		return assessment
	}

	assessment.Status = recipes.QAValidated
	return assessment
}

// Visibility reports whether a recipe with the given status may be public.
// Only validated recipes are eligible, and only when the owner publishes by default.
func Visibility(status recipes.QAStatus, publishDefault bool) bool {
	return status == recipes.QAValidated && publishDefault
}

// Confidence scores completeness, ingredient adequacy and instruction length into [0,1].
func Confidence(candidate extractor.Candidate) float64 {
	present := 0
	for _, ok := range []bool{
		strings.TrimSpace(candidate.Name) != "",
		strings.TrimSpace(candidate.Description) != "",
		len(candidate.Ingredients) > 0,
		len(candidate.Instructions) > 0,
		strings.TrimSpace(candidate.Cuisine) != "",
		len(candidate.Tags) > 0,
	} {
		if ok {
			present++
		}
	}
	completeness := float64(present) / 6

	ingredients := math.Min(1, float64(len(candidate.Ingredients))/5)

	instructionChars := 0
	for _, step := range candidate.Instructions {
		instructionChars += utf8.RuneCountInString(strings.TrimSpace(step))
	}
	instructions := math.Min(1, float64(instructionChars)/200)

	score := 0.4*completeness + 0.3*ingredients + 0.3*instructions
	score = math.Max(0, math.Min(1, score))
	return math.Round(score*100) / 100
}

// removalReasons repeats the extractor's structural checks so that Classify
// stays safe for candidates built outside the extractor.
func removalReasons(candidate extractor.Candidate) []string {
	var reasons []string
	name := strings.ToLower(strings.TrimSpace(candidate.Name))
	if name == "" {
		reasons = append(reasons, "missing name")
	}
	if len(candidate.Ingredients) == 0 {
		reasons = append(reasons, "no ingredients")
	}
	if len(candidate.Instructions) == 0 {
		reasons = append(reasons, "no instructions")
	}
	if hasBlank(candidate.Ingredients) || hasBlank(candidate.Instructions) {
		reasons = append(reasons, "blank entries")
	}
	for _, marker := range errorPageMarkers {
		if strings.Contains(name, marker) {
			reasons = append(reasons, "name looks like an error page")
			break
		}
	}
	if hasOversized(candidate.Ingredients) || hasOversized(candidate.Instructions) {
		reasons = append(reasons, "oversized entries")
	}
	return reasons
}

func hasBlank(entries []string) bool {
	for _, e := range entries {
		if strings.TrimSpace(e) == "" {
			return true
		}
	}
	return false
}

func hasOversized(entries []string) bool {
	for _, e := range entries {
		if utf8.RuneCountInString(e) > maxEntryRunes {
			return true
		}
	}
	return false
}

// ingredientCoverage returns the share of ingredients whose key term appears in
// the instructions. ok is false when too few ingredients have a usable key.
func ingredientCoverage(candidate extractor.Candidate) (float64, bool) {
	instructions := strings.ToLower(strings.Join(candidate.Instructions, " "))

	keyed, mentioned := 0, 0
	for _, ingredient := range candidate.Ingredients {
		key := keyTerm(ingredient)
		if key == "" {
			continue
		}
		keyed++
		if strings.Contains(instructions, key) {
			mentioned++
		}
	}
	if keyed < 3 {
		return 0, false
	}
	return float64(mentioned) / float64(keyed), true
}

var noiseWords = map[string]bool{
	"cup": true, "cups": true, "tbsp": true, "tsp": true, "tablespoon": true, "tablespoons": true,
	"teaspoon": true, "teaspoons": true, "g": true, "kg": true, "ml": true, "l": true, "oz": true,
	"lb": true, "lbs": true, "pound": true, "pounds": true, "gram": true, "grams": true, "pinch": true,
	"of": true, "and": true, "or": true, "to": true, "taste": true, "fresh": true, "large": true,
	"small": true, "medium": true, "chopped": true, "diced": true, "minced": true, "sliced": true,
	"optional": true, "a": true, "an": true, "the": true, "for": true, "about": true, "whole": true,
}

// keyTerm picks the head noun of an ingredient line: the last meaningful word
// before any comma or parenthetical, stemmed by dropping a plural "s".
func keyTerm(ingredient string) string {
	line := strings.ToLower(ingredient)
	if i := strings.IndexAny(line, ",("); i >= 0 {
		line = line[:i]
	}
	words := strings.FieldsFunc(line, func(r rune) bool { return !unicode.IsLetter(r) })

	for i := len(words) - 1; i >= 0; i-- {
		w := words[i]
		if noiseWords[w] || utf8.RuneCountInString(w) < 3 {
			continue
		}
		if strings.HasSuffix(w, "es") && utf8.RuneCountInString(w) > 4 {
			return strings.TrimSuffix(w, "es")
		}
		return strings.TrimSuffix(w, "s")
	}
	return ""
}
