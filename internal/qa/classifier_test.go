package qa

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Togather-Foundation/recipes/internal/domain/recipes"
	"github.com/Togather-Foundation/recipes/internal/extractor"
)

func completeCandidate() extractor.Candidate {
	return extractor.Candidate{
		Name:        "Tomato Soup",
		Description: "A simple weeknight soup.",
		Ingredients: []string{
			"2 tbsp olive oil",
			"1 large onion, diced",
			"800 g tomatoes",
			"500 ml vegetable stock",
			"Salt to taste",
		},
		Instructions: []string{
			"Warm the olive oil in a pot and soften the onion for ten minutes.",
			"Add the tomatoes and the stock, then simmer for twenty minutes until thick.",
			"Blend until smooth and season with salt before serving hot with bread.",
		},
		Cuisine: "Italian",
		Tags:    []string{"soup", "vegetarian"},
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(c *extractor.Candidate)
		wantStatus recipes.QAStatus
		wantNote   string
	}{
		{
			name:       "complete recipe validates",
			mutate:     func(*extractor.Candidate) {},
			wantStatus: recipes.QAValidated,
		},
		{
			name:       "blank name is removed",
			mutate:     func(c *extractor.Candidate) { c.Name = "   " },
			wantStatus: recipes.QARemoved,
			wantNote:   "missing name",
		},
		{
			name:       "blank ingredient entry is removed",
			mutate:     func(c *extractor.Candidate) { c.Ingredients[1] = "  " },
			wantStatus: recipes.QARemoved,
			wantNote:   "blank entries",
		},
		{
			name:       "blank instruction entry is removed",
			mutate:     func(c *extractor.Candidate) { c.Instructions = append(c.Instructions, "") },
			wantStatus: recipes.QARemoved,
			wantNote:   "blank entries",
		},
		{
			name:       "no ingredients is removed",
			mutate:     func(c *extractor.Candidate) { c.Ingredients = nil },
			wantStatus: recipes.QARemoved,
			wantNote:   "no ingredients",
		},
		{
			name:       "no instructions is removed",
			mutate:     func(c *extractor.Candidate) { c.Instructions = []string{} },
			wantStatus: recipes.QARemoved,
			wantNote:   "no instructions",
		},
		{
			name:       "error page title is removed",
			mutate:     func(c *extractor.Candidate) { c.Name = "404 Page Not Found" },
			wantStatus: recipes.QARemoved,
			wantNote:   "error page",
		},
		{
			name:       "oversized entry is removed",
			mutate:     func(c *extractor.Candidate) { c.Instructions[0] = strings.Repeat("x", 1001) },
			wantStatus: recipes.QARemoved,
			wantNote:   "oversized",
		},
		{
			name:       "two ingredients needs review",
			mutate:     func(c *extractor.Candidate) { c.Ingredients = c.Ingredients[:2] },
			wantStatus: recipes.QANeedsReview,
			wantNote:   "fewer than minimum ingredients",
		},
		{
			name: "ingredient mismatch needs review",
			mutate: func(c *extractor.Candidate) {
				c.Ingredients = []string{"3 apples", "200 g butter", "1 cup sugar", "2 cups flour"}
			},
			wantStatus: recipes.QANeedsReview,
			wantNote:   "rarely mentioned",
		},
		{
			name: "sparse candidate has low confidence",
			mutate: func(c *extractor.Candidate) {
				c.Description, c.Cuisine, c.Tags = "", "", nil
				c.Ingredients = []string{"onion", "tomato", "stock"}
				c.Instructions = []string{"Cook onion, tomato and stock."}
			},
			wantStatus: recipes.QANeedsReview,
			wantNote:   "low confidence",
		},
	}

	classifier := NewClassifier(Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate := completeCandidate()
			tt.mutate(&candidate)

			got := classifier.Classify(candidate)

			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, recipes.MethodAutomated, got.Method)
			assert.GreaterOrEqual(t, got.Confidence, 0.0)
			assert.LessOrEqual(t, got.Confidence, 1.0)
			if tt.wantNote != "" {
				assert.Contains(t, got.NotesText(), tt.wantNote)
			} else {
				assert.Empty(t, got.Notes)
			}
		})
	}
}

func TestRemovedBeatsNeedsReview(t *testing.T) {
	candidate := extractor.Candidate{Name: "Access Denied", Ingredients: []string{"one"}, Instructions: []string{"x"}}

	got := NewClassifier(Config{}).Classify(candidate)

	assert.Equal(t, recipes.QARemoved, got.Status)
	assert.NotContains(t, got.NotesText(), "fewer than minimum")
}

func TestConfidence(t *testing.T) {
	assert.Equal(t, 1.0, Confidence(completeCandidateLong()))
	assert.Equal(t, 0.0, Confidence(extractor.Candidate{}))

	partial := extractor.Candidate{Name: "X", Ingredients: []string{"a"}, Instructions: []string{strings.Repeat("s", 100)}}
	// completeness 3/6, ingredients 1/5, instructions 100/200
	assert.InDelta(t, 0.2+0.06+0.15, Confidence(partial), 0.001)
}

func completeCandidateLong() extractor.Candidate {
	c := completeCandidate()
	c.Instructions = append(c.Instructions, strings.Repeat("stir ", 40))
	return c
}

func TestVisibility(t *testing.T) {
	assert.True(t, Visibility(recipes.QAValidated, true))
	assert.False(t, Visibility(recipes.QAValidated, false))
	assert.False(t, Visibility(recipes.QANeedsReview, true))
	assert.False(t, Visibility(recipes.QARemoved, true))
}

func TestKeyTerm(t *testing.T) {
	tests := map[string]string{
		"2 cups all-purpose flour":    "flour",
		"1 large onion, diced":        "onion",
		"800 g tomatoes":              "tomato",
		"3 eggs (room temperature)":   "egg",
		"Salt to taste":               "salt",
		"1 tsp":                       "",
		"Freshly ground black pepper": "pepper",
	}
	for in, want := range tests {
		assert.Equal(t, want, keyTerm(in), in)
	}
}
