package insights

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/eringen/insights/validation"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const postSelect = `SELECT p.id, p.title, p.slug, p.excerpt, p.content, p.cover_image, p.read_time,
    p.published, p.published_at, p.author_id, u.name, u.email, p.created_at, p.updated_at
FROM posts p JOIN users u ON u.id = p.author_id`

// Drafts have no published_at; they sort after every dated post.
const postOrder = ` ORDER BY p.published_at IS NULL, p.published_at DESC, p.created_at DESC, p.rowid DESC`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(sc rowScanner) (Post, error) {
	var p Post
	var cover sql.NullString
	var publishedAt sql.NullTime
	var published int
	err := sc.Scan(&p.ID, &p.Title, &p.Slug, &p.Excerpt, &p.Content, &cover, &p.ReadTime,
		&published, &publishedAt, &p.AuthorID, &p.Author.Name, &p.Author.Email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Post{}, err
	}
	p.CoverImage = stringPtr(cover)
	p.Published = published == 1
	p.PublishedAt = timePtr(publishedAt)
	p.Author.ID = p.AuthorID
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	p.Categories = []Category{}
	return p, nil
}

// ListPosts returns posts ordered by publish date descending, drafts last.
func (s *Store) ListPosts(ctx context.Context, f PostFilter) ([]Post, error) {
	var where []string
	var args []any
	if f.PublishedOnly {
		where = append(where, "p.published = 1")
	}
	if f.Category != "" {
		where = append(where, `EXISTS (SELECT 1 FROM post_categories pc JOIN categories c ON c.id = pc.category_id
    WHERE pc.post_id = p.id AND c.slug = ?)`)
		args = append(args, strings.ToLower(strings.TrimSpace(f.Category)))
	}
	query := postSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	rows, err := s.db.QueryContext(ctx, query+postOrder, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := []Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := attachCategories(ctx, s.db, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// RecentPosts returns the n most recently created posts, drafts included.
func (s *Store) RecentPosts(ctx context.Context, n int) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, postSelect+` ORDER BY p.created_at DESC, p.rowid DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	posts := []Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return posts, attachCategories(ctx, s.db, posts)
}

// GetPost returns a post by slug. With publishedOnly set, drafts are
// reported as ErrNotFound.
func (s *Store) GetPost(ctx context.Context, slug string, publishedOnly bool) (Post, error) {
	cond := "p.slug = ?"
	if publishedOnly {
		cond += " AND p.published = 1"
	}
	return getPost(ctx, s.db, cond, slug)
}

func getPost(ctx context.Context, q queryer, cond string, arg any) (Post, error) {
	p, err := scanPost(q.QueryRowContext(ctx, postSelect+" WHERE "+cond, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return Post{}, ErrNotFound
	}
	if err != nil {
		return Post{}, err
	}
	posts := []Post{p}
	if err := attachCategories(ctx, q, posts); err != nil {
		return Post{}, err
	}
	return posts[0], nil
}

// attachCategories loads the category links for posts in one query.
func attachCategories(ctx context.Context, q queryer, posts []Post) error {
	if len(posts) == 0 {
		return nil
	}
	index := make(map[string]int, len(posts))
	args := make([]any, len(posts))
	for i, p := range posts {
		index[p.ID] = i
		args[i] = p.ID
	}
	rows, err := q.QueryContext(ctx, `SELECT pc.post_id, c.id, c.name, c.slug
FROM post_categories pc JOIN categories c ON c.id = pc.category_id
WHERE pc.post_id IN (`+placeholders(len(args))+`)
ORDER BY c.name`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var postID string
		var c Category
		if err := rows.Scan(&postID, &c.ID, &c.Name, &c.Slug); err != nil {
			return err
		}
		i := index[postID]
		posts[i].Categories = append(posts[i].Categories, c)
	}
	return rows.Err()
}

// CreatePost inserts a post owned by authorID and links its categories.
// publishedAt is stamped only when the post is created published.
func (s *Store) CreatePost(ctx context.Context, authorID string, in CreatePostInput) (Post, error) {
	id := newID()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.timestamp()
		var publishedAt sql.NullTime
		if in.Published {
			publishedAt = sql.NullTime{Time: now, Valid: true}
		}
		readTime := ""
		if in.ReadTime != nil {
			readTime = *in.ReadTime
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO posts
    (id, title, slug, excerpt, content, cover_image, read_time, published, published_at, author_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, in.Title, in.Slug, in.Excerpt, in.Content, nullString(in.CoverImage.Ptr()), readTime,
			boolInt(in.Published), publishedAt, authorID, now, now)
		switch {
		case isUniqueViolation(err):
			return fmt.Errorf("post slug %q: %w", in.Slug, ErrConflict)
		case isForeignKeyViolation(err):
			return fmt.Errorf("author %q: %w", authorID, ErrNotFound)
		case err != nil:
			return err
		}
		return replacePostCategories(ctx, tx, id, in.Categories)
	})
	if err != nil {
		return Post{}, err
	}
	return getPost(ctx, s.db, "p.id = ?", id)
}

// UpdatePost applies a partial update to the post identified by slug.
// A publish transition false->true stamps publishedAt; unpublishing clears
// it; re-publishing an already published post keeps the original stamp.
func (s *Store) UpdatePost(ctx context.Context, slug string, in UpdatePostInput) (Post, error) {
	var id string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var published int
		err := tx.QueryRowContext(ctx, `SELECT id, published FROM posts WHERE slug = ?`, slug).Scan(&id, &published)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("post %q: %w", slug, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if in.ID != "" && in.ID != id {
			return validation.NewError("id", "does not match the post being updated")
		}

		now := s.timestamp()
		sets := []string{"updated_at = ?"}
		args := []any{now}
		set := func(col string, v any) {
			sets = append(sets, col+" = ?")
			args = append(args, v)
		}
		if in.Title != nil {
			set("title", *in.Title)
		}
		if in.Slug != nil {
			set("slug", *in.Slug)
		}
		if in.Excerpt != nil {
			set("excerpt", *in.Excerpt)
		}
		if in.Content != nil {
			set("content", *in.Content)
		}
		if in.CoverImage.Set {
			set("cover_image", nullString(in.CoverImage.Ptr()))
		}
		if in.ReadTime != nil {
			set("read_time", *in.ReadTime)
		}
		if in.Published != nil {
			switch {
			case *in.Published && published == 0:
				set("published", 1)
				set("published_at", now)
			case !*in.Published:
				set("published", 0)
				set("published_at", nil)
			}
		}
		args = append(args, id)
		_, err = tx.ExecContext(ctx, `UPDATE posts SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
		if isUniqueViolation(err) {
			return fmt.Errorf("post slug %q: %w", *in.Slug, ErrConflict)
		}
		if err != nil {
			return err
		}
		if in.Categories != nil {
			return replacePostCategories(ctx, tx, id, in.Categories)
		}
		return nil
	})
	if err != nil {
		return Post{}, err
	}
	return getPost(ctx, s.db, "p.id = ?", id)
}

// DeletePost removes a post by slug. Category links and page views go with
// it through ON DELETE CASCADE.
func (s *Store) DeletePost(ctx context.Context, slug string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE slug = ?`, slug)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("post %q: %w", slug, ErrNotFound)
	}
	return nil
}

// CountPosts returns the total number of posts and how many are published.
func (s *Store) CountPosts(ctx context.Context) (total, published int, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(published), 0) FROM posts`).Scan(&total, &published)
	return total, published, err
}

// replacePostCategories swaps the post's category links for exactly the
// given slugs. It never merges with the existing set; an empty list leaves
// the post uncategorized. Unknown slugs fail the whole write.
func replacePostCategories(ctx context.Context, tx *sql.Tx, postID string, slugs []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM post_categories WHERE post_id = ?`, postID); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(slugs))
	var unknown []string
	for _, slug := range slugs {
		if _, ok := seen[slug]; ok {
			continue
		}
		seen[slug] = struct{}{}
		res, err := tx.ExecContext(ctx, `INSERT INTO post_categories (post_id, category_id)
SELECT ?, id FROM categories WHERE slug = ?`, postID, slug)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			unknown = append(unknown, slug)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return validation.NewError("categories", "unknown category: "+strings.Join(unknown, ", "))
	}
	return nil
}
