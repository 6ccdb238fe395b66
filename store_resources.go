package insights

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const resourceSelect = `SELECT id, title, description, url, category, sort_order, created_at FROM resources`

func scanResource(sc rowScanner) (Resource, error) {
	var r Resource
	var category string
	if err := sc.Scan(&r.ID, &r.Title, &r.Description, &r.URL, &category, &r.Order, &r.CreatedAt); err != nil {
		return Resource{}, err
	}
	r.Category = ResourceCategory(category)
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}

// ListResources returns resources ordered by their manual sort key. Equal
// keys keep insertion order. A nil category lists every resource.
func (s *Store) ListResources(ctx context.Context, category *ResourceCategory) ([]Resource, error) {
	query := resourceSelect
	var args []any
	if category != nil {
		query += ` WHERE category = ?`
		args = append(args, string(*category))
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY sort_order ASC, rowid ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Resource{}
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetResource returns a resource by id.
func (s *Store) GetResource(ctx context.Context, id string) (Resource, error) {
	r, err := scanResource(s.db.QueryRowContext(ctx, resourceSelect+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Resource{}, fmt.Errorf("resource %q: %w", id, ErrNotFound)
	}
	return r, err
}

// CreateResource inserts a resource.
func (s *Store) CreateResource(ctx context.Context, in ResourceInput) (Resource, error) {
	r := Resource{
		ID:          newID(),
		Title:       in.Title,
		Description: in.Description,
		URL:         in.URL,
		Category:    in.Category,
		Order:       in.Order,
		CreatedAt:   s.timestamp(),
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO resources (id, title, description, url, category, sort_order, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`, r.ID, r.Title, r.Description, r.URL, string(r.Category), r.Order, r.CreatedAt)
	if err != nil {
		return Resource{}, err
	}
	return r, nil
}

// UpdateResource changes only the fields present in in.
func (s *Store) UpdateResource(ctx context.Context, id string, in ResourceUpdate) (Resource, error) {
	var sets []string
	var args []any
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if in.Title != nil {
		set("title", *in.Title)
	}
	if in.Description != nil {
		set("description", *in.Description)
	}
	if in.URL != nil {
		set("url", *in.URL)
	}
	if in.Category != nil {
		set("category", string(*in.Category))
	}
	if in.Order != nil {
		set("sort_order", *in.Order)
	}
	if len(sets) == 0 {
		return s.GetResource(ctx, id)
	}
	args = append(args, id)
	res, err := s.db.ExecContext(ctx, `UPDATE resources SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return Resource{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return Resource{}, err
	} else if n == 0 {
		return Resource{}, fmt.Errorf("resource %q: %w", id, ErrNotFound)
	}
	return s.GetResource(ctx, id)
}

// DeleteResource removes a resource by id.
func (s *Store) DeleteResource(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM resources WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("resource %q: %w", id, ErrNotFound)
	}
	return nil
}

// CountResources returns the number of resources.
func (s *Store) CountResources(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM resources`).Scan(&n)
	return n, err
}
