package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Togather-Foundation/recipes/internal/domain/recipes"
	"github.com/Togather-Foundation/recipes/internal/extractor"
	"github.com/Togather-Foundation/recipes/internal/fetcher"
	"github.com/Togather-Foundation/recipes/internal/qa"
)

const soupJSON = `{
  "name": "Tomato Soup",
  "description": "A simple weeknight soup.",
  "ingredients": ["2 tbsp olive oil", "1 large onion, diced", "800 g tomatoes", "500 ml vegetable stock", "Salt to taste"],
  "instructions": [
    "Warm the olive oil in a pot and soften the onion for ten minutes.",
    "Add the tomatoes and the stock, then simmer for twenty minutes until thick.",
    "Blend until smooth and season with salt before serving hot with bread."
  ],
  "cuisine": "Italian",
  "tags": ["soup", "vegetarian"]
}`

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	errs  []error
	panic bool
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*fetcher.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.panic {
		panic("boom")
	}
	if len(f.errs) >= f.calls && f.errs[f.calls-1] != nil {
		return nil, f.errs[f.calls-1]
	}
	return &fetcher.Page{
		URL:      url,
		Markdown: "# Tomato Soup\n\nWarm the oil...",
		Metadata: fetcher.Metadata{Title: "Tomato Soup", StatusCode: 200},
	}, nil
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeCompleter struct {
	mu       sync.Mutex
	calls    int
	response string
}

func (c *fakeCompleter) Complete(context.Context, string, string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.response, nil
}

type memoryRepo struct {
	mu      sync.Mutex
	recipes map[string]*recipes.Recipe
	owners  map[string]*recipes.Owner
	links   map[string]bool
	saveErr error
	saves   int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		recipes: map[string]*recipes.Recipe{},
		owners:  map[string]*recipes.Owner{},
		links:   map[string]bool{},
	}
}

func (m *memoryRepo) addOwner(id string, autoPublish bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[id] = &recipes.Owner{ID: id, Slug: id, IsActive: true, AutoPublish: autoPublish}
}

func (m *memoryRepo) GetByID(_ context.Context, id string) (*recipes.Recipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.recipes {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, recipes.ErrNotFound
}

func (m *memoryRepo) GetByCanonicalURL(_ context.Context, canonicalURL string) (*recipes.Recipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipes[canonicalURL]
	if !ok {
		return nil, recipes.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memoryRepo) GetOwner(_ context.Context, id string) (*recipes.Owner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.owners[id]
	if !ok {
		return nil, recipes.ErrOwnerNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memoryRepo) SaveImported(_ context.Context, p recipes.ImportParams) (*recipes.SaveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	result := &recipes.SaveResult{}
	r, ok := m.recipes[p.CanonicalURL]
	if !ok {
		r = &recipes.Recipe{
			ID:           fmt.Sprintf("recipe-%d", len(m.recipes)+1),
			Name:         p.Name,
			Slug:         p.Slug,
			Ingredients:  p.Ingredients,
			Instructions: p.Instructions,
			SourceURL:    p.SourceURL,
			CanonicalURL: p.CanonicalURL,
			OwnerID:      p.OwnerID,
			IsPublic:     p.IsPublic,
			QAStatus:     p.QAStatus,
			QAMethod:     p.QAMethod,
			QAConfidence: p.QAConfidence,
			QANotes:      p.QANotes,
		}
		m.recipes[p.CanonicalURL] = r
		result.Created = true
	}
	if p.OwnerID != nil {
		result.Linked = m.link(*p.OwnerID, r.ID)
	}
	cp := *r
	result.Recipe = &cp
	return result, nil
}

func (m *memoryRepo) LinkOwner(_ context.Context, ownerID, recipeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.link(ownerID, recipeID), nil
}

func (m *memoryRepo) link(ownerID, recipeID string) bool {
	key := ownerID + "/" + recipeID
	if m.links[key] {
		return false
	}
	m.links[key] = true
	m.owners[ownerID].RecipeCount++
	return true
}

func (m *memoryRepo) UpdateReview(context.Context, string, recipes.ReviewParams) (*recipes.Recipe, error) {
	return nil, errors.New("not implemented")
}

func (m *memoryRepo) EnforceVisibility(context.Context) (int64, error) { return 0, nil }

func (m *memoryRepo) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

type harness struct {
	fetcher   *fakeFetcher
	completer *fakeCompleter
	repo      *memoryRepo
	orch      *Orchestrator
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		fetcher:   &fakeFetcher{},
		completer: &fakeCompleter{response: soupJSON},
		repo:      newMemoryRepo(),
	}
	if cfg.FetchBaseDelay == 0 {
		cfg.FetchBaseDelay = time.Millisecond
	}
	ext := extractor.New(h.completer, extractor.Config{MaxAttempts: 3, BaseDelay: time.Millisecond}, zerolog.Nop())
	h.orch = NewOrchestrator(h.fetcher, ext, qa.NewClassifier(qa.Config{}), h.repo, cfg, zerolog.Nop())
	return h
}

func transient(status int) error {
	return &fetcher.TransientError{URL: "https://example.com/soup", StatusCode: status}
}

func TestImportCreatesRecipe(t *testing.T) {
	h := newHarness(t, Config{DefaultPublish: true})

	res := h.orch.Import(context.Background(), Request{URL: "https://Example.com/soup?utm_source=x#top"})

	require.True(t, res.Success, "error: %v", res.Error)
	assert.Equal(t, StageDone, res.Stage)
	assert.False(t, res.AlreadyImported)
	require.NotNil(t, res.Recipe)
	assert.Equal(t, "https://example.com/soup", res.Recipe.CanonicalURL)
	assert.Equal(t, "https://Example.com/soup?utm_source=x#top", res.Recipe.SourceURL)
	assert.Equal(t, "tomato-soup", res.Recipe.Slug)
	assert.Equal(t, recipes.QAValidated, res.Recipe.QAStatus)
	assert.Equal(t, recipes.MethodAutomated, res.Recipe.QAMethod)
	assert.True(t, res.Recipe.IsPublic)
	assert.Len(t, res.Attempts, 2)
}

func TestImportRetriesTransientFetch(t *testing.T) {
	h := newHarness(t, Config{})
	h.fetcher.errs = []error{transient(500), transient(500)}

	res := h.orch.Import(context.Background(), Request{URL: "https://example.com/soup"})

	require.True(t, res.Success, "error: %v", res.Error)
	assert.Equal(t, 3, h.fetcher.Calls())
	assert.Equal(t, 1, h.repo.Saves())
	require.Len(t, res.Attempts, 4)
	assert.NotEmpty(t, res.Attempts[0].Error)
	assert.Empty(t, res.Attempts[2].Error)
}

func TestImportFetchExhausted(t *testing.T) {
	h := newHarness(t, Config{FetchAttempts: 2})
	h.fetcher.errs = []error{transient(503), transient(503), transient(503)}

	res := h.orch.Import(context.Background(), Request{URL: "https://example.com/soup"})

	assert.False(t, res.Success)
	assert.Equal(t, StageFetching, res.Stage)
	assert.Equal(t, 2, h.fetcher.Calls())
	assert.True(t, fetcher.IsTransient(res.Error))
	assert.Zero(t, h.completer.calls)
}

func TestImportPermanentFetchIsTerminal(t *testing.T) {
	h := newHarness(t, Config{})
	h.fetcher.errs = []error{&fetcher.PermanentError{URL: "https://example.com/soup", StatusCode: 404}}

	res := h.orch.Import(context.Background(), Request{URL: "https://example.com/soup"})

	assert.False(t, res.Success)
	assert.Equal(t, StageFetching, res.Stage)
	assert.ErrorIs(t, res.Error, fetcher.ErrPermanent)
	assert.Equal(t, 1, h.fetcher.Calls())
	assert.Zero(t, h.completer.calls, "extraction is never attempted")
	assert.Zero(t, h.repo.Saves())
}

func TestImportRejectsNonArrayOutput(t *testing.T) {
	h := newHarness(t, Config{})
	h.completer.response = "```json\n[1,2]\n```"

	res := h.orch.Import(context.Background(), Request{URL: "https://example.com/soup"})

	assert.False(t, res.Success)
	assert.Equal(t, StageExtracting, res.Stage)
	assert.ErrorIs(t, res.Error, extractor.ErrValidation)
	assert.Equal(t, 1, h.completer.calls)
	assert.Equal(t, 1, h.fetcher.Calls(), "extraction failure does not re-fetch")
	assert.Zero(t, h.repo.Saves())
}

func TestImportRejectsRemovedCandidate(t *testing.T) {
	h := newHarness(t, Config{DefaultPublish: true})
	h.completer.response = `{"name": "404 Page Not Found", "ingredients": ["x"], "instructions": ["y"]}`

	res := h.orch.Import(context.Background(), Request{URL: "https://example.com/missing"})

	assert.False(t, res.Success)
	assert.Equal(t, StageValidating, res.Stage)
	assert.ErrorIs(t, res.Error, ErrRejected)
	assert.Zero(t, h.repo.Saves())
}

func TestImportNeedsReviewIsNotPublic(t *testing.T) {
	h := newHarness(t, Config{DefaultPublish: true})
	h.completer.response = `{"name": "Toast", "ingredients": ["bread"], "instructions": ["Toast the bread."]}`

	res := h.orch.Import(context.Background(), Request{URL: "https://example.com/toast"})

	require.True(t, res.Success, "error: %v", res.Error)
	assert.Equal(t, recipes.QANeedsReview, res.Recipe.QAStatus)
	assert.False(t, res.Recipe.IsPublic)
}

func TestImportIsIdempotent(t *testing.T) {
	h := newHarness(t, Config{})
	h.repo.addOwner("owner-1", true)
	owner := "owner-1"

	first := h.orch.Import(context.Background(), Request{URL: "https://example.com/soup", OwnerID: &owner})
	second := h.orch.Import(context.Background(), Request{URL: "https://example.com/soup/?utm_campaign=spring", OwnerID: &owner})

	require.True(t, first.Success)
	require.True(t, second.Success)
	assert.True(t, second.AlreadyImported)
	assert.Equal(t, first.Recipe.ID, second.Recipe.ID)
	assert.Equal(t, 1, h.fetcher.Calls(), "second import short-circuits before fetching")
	assert.Len(t, h.repo.recipes, 1)
	assert.Len(t, h.repo.links, 1)
	assert.Equal(t, 1, h.repo.owners["owner-1"].RecipeCount)
}

func TestImportLinksNewOwnerToExistingRecipe(t *testing.T) {
	h := newHarness(t, Config{})
	h.repo.addOwner("owner-1", true)
	h.repo.addOwner("owner-2", false)
	first, second := "owner-1", "owner-2"

	require.True(t, h.orch.Import(context.Background(), Request{URL: "https://example.com/soup", OwnerID: &first}).Success)
	res := h.orch.Import(context.Background(), Request{URL: "https://example.com/soup", OwnerID: &second})

	require.True(t, res.Success)
	assert.True(t, res.AlreadyImported)
	assert.Len(t, h.repo.links, 2)
	assert.Equal(t, 1, h.repo.owners["owner-2"].RecipeCount)
}

func TestImportOwnerPublicationDefault(t *testing.T) {
	h := newHarness(t, Config{DefaultPublish: true})
	h.repo.addOwner("private", false)
	owner := "private"

	res := h.orch.Import(context.Background(), Request{URL: "https://example.com/soup", OwnerID: &owner})

	require.True(t, res.Success)
	assert.Equal(t, recipes.QAValidated, res.Recipe.QAStatus)
	assert.False(t, res.Recipe.IsPublic)
}

func TestImportUnknownOwner(t *testing.T) {
	h := newHarness(t, Config{})
	owner := "ghost"

	res := h.orch.Import(context.Background(), Request{URL: "https://example.com/soup", OwnerID: &owner})

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Error, recipes.ErrOwnerNotFound)
	assert.Zero(t, h.fetcher.Calls())
}

func TestImportInvalidURL(t *testing.T) {
	h := newHarness(t, Config{})

	for _, raw := range []string{"", "ftp://example.com/soup", "not a url"} {
		res := h.orch.Import(context.Background(), Request{URL: raw})
		assert.False(t, res.Success, raw)
		assert.Equal(t, StageFetching, res.Stage, raw)
		assert.ErrorIs(t, res.Error, fetcher.ErrPermanent, raw)
	}
	assert.Zero(t, h.fetcher.Calls())
}

func TestImportPersistenceFailure(t *testing.T) {
	h := newHarness(t, Config{})
	h.repo.saveErr = fmt.Errorf("%w: connection reset", recipes.ErrPersistence)

	res := h.orch.Import(context.Background(), Request{URL: "https://example.com/soup"})

	assert.False(t, res.Success)
	assert.Equal(t, StagePersisting, res.Stage)
	assert.ErrorIs(t, res.Error, recipes.ErrPersistence)
	assert.Nil(t, res.Recipe)
}

func TestImportRecoversPanic(t *testing.T) {
	h := newHarness(t, Config{})
	h.fetcher.panic = true

	res := h.orch.Import(context.Background(), Request{URL: "https://example.com/soup"})

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Error, ErrPanic)
	assert.Equal(t, StageFetching, res.Stage)
}

func TestImportHonoursCancellation(t *testing.T) {
	h := newHarness(t, Config{FetchBaseDelay: time.Hour})
	h.fetcher.errs = []error{transient(502), transient(502)}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res := h.orch.Import(ctx, Request{URL: "https://example.com/soup"})

	assert.False(t, res.Success)
	assert.Equal(t, StageFetching, res.Stage)
	assert.Equal(t, 1, h.fetcher.Calls())
}
