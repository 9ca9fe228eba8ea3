package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Togather-Foundation/recipes/internal/domain/recipes"
)

var _ recipes.Repository = (*RecipeRepository)(nil)

type RecipeRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func NewRecipeRepository(pool *pgxpool.Pool) *RecipeRepository {
	return &RecipeRepository{pool: pool}
}

func (r *RecipeRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

type recipeRow struct {
	ID           string
	Name         string
	Slug         string
	Description  string
	Ingredients  []string
	Instructions []string
	Cuisine      string
	Tags         []string
	SourceURL    string
	CanonicalURL string
	OwnerID      pgtype.Text
	IsPublic     bool
	IsSystem     bool
	QAStatus     string
	QAMethod     string
	QAConfidence float64
	QANotes      string
	CreatedAt    pgtype.Timestamptz
	UpdatedAt    pgtype.Timestamptz
	DeletedAt    pgtype.Timestamptz
}

func scanRecipe(row pgx.Row) (*recipes.Recipe, error) {
	var rr recipeRow
	if err := row.Scan(
		&rr.ID, &rr.Name, &rr.Slug, &rr.Description, &rr.Ingredients, &rr.Instructions, &rr.Cuisine, &rr.Tags,
		&rr.SourceURL, &rr.CanonicalURL, &rr.OwnerID, &rr.IsPublic, &rr.IsSystem, &rr.QAStatus, &rr.QAMethod,
		&rr.QAConfidence, &rr.QANotes, &rr.CreatedAt, &rr.UpdatedAt, &rr.DeletedAt,
	); err != nil {
		return nil, err
	}
	return &recipes.Recipe{
		ID:           rr.ID,
		Name:         rr.Name,
		Slug:         rr.Slug,
		Description:  rr.Description,
		Ingredients:  rr.Ingredients,
		Instructions: rr.Instructions,
		Cuisine:      rr.Cuisine,
		Tags:         rr.Tags,
		SourceURL:    rr.SourceURL,
		CanonicalURL: rr.CanonicalURL,
		OwnerID:      textPtr(rr.OwnerID),
		IsPublic:     rr.IsPublic,
		IsSystem:     rr.IsSystem,
		QAStatus:     recipes.QAStatus(rr.QAStatus),
		QAMethod:     rr.QAMethod,
		QAConfidence: rr.QAConfidence,
		QANotes:      rr.QANotes,
		CreatedAt:    rr.CreatedAt.Time,
		UpdatedAt:    rr.UpdatedAt.Time,
		DeletedAt:    timePtr(rr.DeletedAt),
	}, nil
}

// selectRecipe uses owner_id::text so the nullable uuid scans into pgtype.Text.
const selectRecipe = `SELECT id, name, slug, description, ingredients, instructions, cuisine, tags,
       source_url, canonical_url, owner_id::text, is_public, is_system, qa_status, qa_method,
       qa_confidence, qa_notes, created_at, updated_at, deleted_at
  FROM recipes`

func (r *RecipeRepository) GetByID(ctx context.Context, id string) (*recipes.Recipe, error) {
	recipe, err := scanRecipe(r.queryer().QueryRow(ctx, selectRecipe+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
			return nil, recipes.ErrNotFound
		}
		return nil, fmt.Errorf("get recipe %q: %w", id, err)
	}
	return recipe, nil
}

func (r *RecipeRepository) GetByCanonicalURL(ctx context.Context, canonicalURL string) (*recipes.Recipe, error) {
	recipe, err := scanRecipe(r.queryer().QueryRow(ctx, selectRecipe+` WHERE canonical_url = $1`, canonicalURL))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, recipes.ErrNotFound
		}
		return nil, fmt.Errorf("get recipe by canonical url: %w", err)
	}
	return recipe, nil
}

func (r *RecipeRepository) GetOwner(ctx context.Context, id string) (*recipes.Owner, error) {
	return (&OwnerRepository{pool: r.pool, tx: r.tx}).GetOwner(ctx, id)
}

// SaveImported inserts the recipe and owner link atomically. A canonical URL
// that already exists is returned with Created=false instead of an error.
func (r *RecipeRepository) SaveImported(ctx context.Context, params recipes.ImportParams) (*recipes.SaveResult, error) {
	var result *recipes.SaveResult
	run := func(tx pgx.Tx) error {
		var err error
		result, err = saveImported(ctx, tx, params)
		return err
	}

	var err error
	if r.tx != nil {
		err = run(r.tx)
	} else {
		err = withTx(ctx, r.pool, run)
	}
	if err != nil {
		if errors.Is(err, recipes.ErrOwnerNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", recipes.ErrPersistence, err)
	}
	return result, nil
}

func saveImported(ctx context.Context, tx pgx.Tx, params recipes.ImportParams) (*recipes.SaveResult, error) {
	var ownerID *string
	if params.OwnerID != nil && *params.OwnerID != "" {
		ownerID = params.OwnerID
		var exists bool
		err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM owners WHERE id = $1)`, *ownerID).Scan(&exists)
		if err != nil && !isInvalidText(err) {
			return nil, fmt.Errorf("check owner: %w", err)
		}
		if !exists {
			return nil, recipes.ErrOwnerNotFound
		}
	}

	tags := params.Tags
	if tags == nil {
		tags = []string{}
	}

	result := &recipes.SaveResult{}
	var recipeID string
	err := tx.QueryRow(ctx, `
INSERT INTO recipes (name, slug, description, ingredients, instructions, cuisine, tags,
                     source_url, canonical_url, owner_id, is_public, qa_status, qa_method,
                     qa_confidence, qa_notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (canonical_url) DO NOTHING
RETURNING id`,
		params.Name, params.Slug, params.Description, params.Ingredients, params.Instructions, params.Cuisine, tags,
		params.SourceURL, params.CanonicalURL, ownerID, params.IsPublic, string(params.QAStatus), params.QAMethod,
		params.QAConfidence, params.QANotes,
	).Scan(&recipeID)
	switch {
	case err == nil:
		result.Created = true
	case errors.Is(err, pgx.ErrNoRows):
		if err := tx.QueryRow(ctx, `SELECT id FROM recipes WHERE canonical_url = $1`, params.CanonicalURL).Scan(&recipeID); err != nil {
			return nil, fmt.Errorf("load existing recipe: %w", err)
		}
	default:
		return nil, fmt.Errorf("insert recipe: %w", err)
	}

	if ownerID != nil {
		linked, err := linkOwner(ctx, tx, *ownerID, recipeID)
		if err != nil {
			return nil, err
		}
		result.Linked = linked
	}

	recipe, err := scanRecipe(tx.QueryRow(ctx, selectRecipe+` WHERE id = $1`, recipeID))
	if err != nil {
		return nil, fmt.Errorf("reload recipe: %w", err)
	}
	result.Recipe = recipe
	return result, nil
}

// LinkOwner attributes an existing recipe to an owner. It reports whether a new
// link row was written; duplicates are ignored.
func (r *RecipeRepository) LinkOwner(ctx context.Context, ownerID, recipeID string) (bool, error) {
	var linked bool
	run := func(tx pgx.Tx) error {
		var err error
		linked, err = linkOwner(ctx, tx, ownerID, recipeID)
		return err
	}
	var err error
	if r.tx != nil {
		err = run(r.tx)
	} else {
		err = withTx(ctx, r.pool, run)
	}
	if err != nil {
		return false, fmt.Errorf("%w: %w", recipes.ErrPersistence, err)
	}
	return linked, nil
}

// linkOwner inserts the owner_recipes row and optimistically bumps the cached
// count when the row is new. The reconciler corrects any drift later.
func linkOwner(ctx context.Context, tx pgx.Tx, ownerID, recipeID string) (bool, error) {
	tag, err := tx.Exec(ctx, `
INSERT INTO owner_recipes (owner_id, recipe_id)
VALUES ($1, $2)
ON CONFLICT (owner_id, recipe_id) DO NOTHING`, ownerID, recipeID)
	if err != nil {
		return false, fmt.Errorf("link owner: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	if _, err := tx.Exec(ctx, `
UPDATE owners SET recipe_count = recipe_count + 1, updated_at = now()
 WHERE id = $1`, ownerID); err != nil {
		return false, fmt.Errorf("increment owner recipe_count: %w", err)
	}
	return true, nil
}

func (r *RecipeRepository) UpdateReview(ctx context.Context, id string, params recipes.ReviewParams) (*recipes.Recipe, error) {
	isPublic := params.IsPublic && params.QAStatus != recipes.QARemoved
	recipe, err := scanRecipe(r.queryer().QueryRow(ctx, `
UPDATE recipes
   SET qa_status = $2,
       qa_method = $3,
       qa_notes = $4,
       is_public = $5,
       deleted_at = CASE WHEN $6 THEN coalesce(deleted_at, now()) ELSE deleted_at END,
       updated_at = now()
 WHERE id = $1
RETURNING id, name, slug, description, ingredients, instructions, cuisine, tags,
          source_url, canonical_url, owner_id::text, is_public, is_system, qa_status, qa_method,
          qa_confidence, qa_notes, created_at, updated_at, deleted_at`,
		id, string(params.QAStatus), params.QAMethod, params.QANotes, isPublic, params.SoftDelete,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
			return nil, recipes.ErrNotFound
		}
		return nil, fmt.Errorf("update recipe review %q: %w", id, err)
	}
	return recipe, nil
}

func (r *RecipeRepository) EnforceVisibility(ctx context.Context) (int64, error) {
	tag, err := r.queryer().Exec(ctx, `
UPDATE recipes
   SET is_public = false, updated_at = now()
 WHERE is_public
   AND (qa_status IN ('removed', 'needs_review', 'pending') OR deleted_at IS NOT NULL)`)
	if err != nil {
		return 0, fmt.Errorf("enforce recipe visibility: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListPublic returns visible recipes, newest first.
func (r *RecipeRepository) ListPublic(ctx context.Context, limit int) ([]recipes.Recipe, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.queryer().Query(ctx, selectRecipe+`
 WHERE is_public AND deleted_at IS NULL AND qa_status = 'validated'
 ORDER BY created_at DESC
 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list public recipes: %w", err)
	}
	defer rows.Close()

	var out []recipes.Recipe
	for rows.Next() {
		recipe, err := scanRecipe(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recipe: %w", err)
		}
		out = append(out, *recipe)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list public recipes: %w", err)
	}
	return out, nil
}
