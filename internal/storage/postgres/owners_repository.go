package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Togather-Foundation/recipes/internal/domain/recipes"
	"github.com/Togather-Foundation/recipes/internal/reconcile"
)

var _ reconcile.Store = (*OwnerRepository)(nil)

type OwnerRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func NewOwnerRepository(pool *pgxpool.Pool) *OwnerRepository {
	return &OwnerRepository{pool: pool}
}

func (r *OwnerRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

type OwnerCreateParams struct {
	Slug        string
	Name        string
	AutoPublish bool
}

const selectOwner = `SELECT id, slug, name, recipe_count, is_active, auto_publish, created_at, updated_at FROM owners`

func scanOwner(row pgx.Row) (*recipes.Owner, error) {
	var o recipes.Owner
	if err := row.Scan(&o.ID, &o.Slug, &o.Name, &o.RecipeCount, &o.IsActive, &o.AutoPublish, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OwnerRepository) CreateOwner(ctx context.Context, params OwnerCreateParams) (*recipes.Owner, error) {
	owner, err := scanOwner(r.queryer().QueryRow(ctx, `
INSERT INTO owners (slug, name, auto_publish)
VALUES ($1, $2, $3)
RETURNING id, slug, name, recipe_count, is_active, auto_publish, created_at, updated_at`,
		params.Slug, params.Name, params.AutoPublish,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("create owner %q: %w", params.Slug, recipes.ErrConflict)
		}
		return nil, fmt.Errorf("create owner %q: %w", params.Slug, err)
	}
	return owner, nil
}

func (r *OwnerRepository) GetOwner(ctx context.Context, id string) (*recipes.Owner, error) {
	owner, err := scanOwner(r.queryer().QueryRow(ctx, selectOwner+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
			return nil, recipes.ErrOwnerNotFound
		}
		return nil, fmt.Errorf("get owner %q: %w", id, err)
	}
	return owner, nil
}

func (r *OwnerRepository) GetOwnerBySlug(ctx context.Context, slug string) (*recipes.Owner, error) {
	owner, err := scanOwner(r.queryer().QueryRow(ctx, selectOwner+` WHERE slug = $1`, slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, recipes.ErrOwnerNotFound
		}
		return nil, fmt.Errorf("get owner by slug %q: %w", slug, err)
	}
	return owner, nil
}

// OwnerCounts compares each owner's cached recipe_count with the number of
// owner_recipes rows. An empty ownerID covers every owner.
func (r *OwnerRepository) OwnerCounts(ctx context.Context, ownerID string) ([]reconcile.OwnerCount, error) {
	if ownerID != "" {
		if _, err := r.GetOwner(ctx, ownerID); err != nil {
			return nil, err
		}
	}

	var ownerParam *string
	if ownerID != "" {
		ownerParam = &ownerID
	}

	rows, err := r.queryer().Query(ctx, `
SELECT o.id, o.slug, o.recipe_count, count(orr.recipe_id)
  FROM owners o
  LEFT JOIN owner_recipes orr ON orr.owner_id = o.id
 WHERE $1::uuid IS NULL OR o.id = $1::uuid
 GROUP BY o.id, o.slug, o.recipe_count
 ORDER BY o.slug`, ownerParam)
	if err != nil {
		return nil, fmt.Errorf("count owner recipes: %w", err)
	}
	defer rows.Close()

	var counts []reconcile.OwnerCount
	for rows.Next() {
		var c reconcile.OwnerCount
		var actual int64
		if err := rows.Scan(&c.OwnerID, &c.Slug, &c.Cached, &actual); err != nil {
			return nil, fmt.Errorf("scan owner count: %w", err)
		}
		c.Actual = int(actual)
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count owner recipes: %w", err)
	}
	return counts, nil
}

// SetRecipeCount overwrites the cached count. Last write wins.
func (r *OwnerRepository) SetRecipeCount(ctx context.Context, ownerID string, count int) error {
	tag, err := r.queryer().Exec(ctx, `
UPDATE owners SET recipe_count = $2, updated_at = now()
 WHERE id = $1`, ownerID, count)
	if err != nil {
		return fmt.Errorf("set recipe_count for owner %q: %w", ownerID, err)
	}
	if tag.RowsAffected() == 0 {
		return recipes.ErrOwnerNotFound
	}
	return nil
}
