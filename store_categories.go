package insights

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ListCategories returns every category ordered by name.
func (s *Store) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, slug FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cats := []Category{}
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug); err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// GetCategory returns a category by slug.
func (s *Store) GetCategory(ctx context.Context, slug string) (Category, error) {
	var c Category
	err := s.db.QueryRowContext(ctx, `SELECT id, name, slug FROM categories WHERE slug = ?`, slug).
		Scan(&c.ID, &c.Name, &c.Slug)
	if errors.Is(err, sql.ErrNoRows) {
		return Category{}, ErrNotFound
	}
	return c, err
}

// CreateCategory inserts a category. A duplicate slug yields ErrConflict.
func (s *Store) CreateCategory(ctx context.Context, in CategoryInput) (Category, error) {
	c := Category{ID: newID(), Name: in.Name, Slug: in.Slug}
	_, err := s.db.ExecContext(ctx, `INSERT INTO categories (id, name, slug) VALUES (?, ?, ?)`, c.ID, c.Name, c.Slug)
	if isUniqueViolation(err) {
		return Category{}, fmt.Errorf("category %q: %w", in.Slug, ErrConflict)
	}
	if err != nil {
		return Category{}, err
	}
	return c, nil
}

// UpsertCategory creates the category or renames the existing one with the
// same slug. Used by seeding.
func (s *Store) UpsertCategory(ctx context.Context, in CategoryInput) (Category, error) {
	_, err := s.db.ExecContext(ctx, `INSERT INTO categories (id, name, slug) VALUES (?, ?, ?)
ON CONFLICT(slug) DO UPDATE SET name = excluded.name`, newID(), in.Name, in.Slug)
	if err != nil {
		return Category{}, err
	}
	return s.GetCategory(ctx, in.Slug)
}
