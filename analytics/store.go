package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store provides database operations for analytics. It shares the blog's
// database so page views can reference posts and disappear with them.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates the analytics tables on db and returns a Store.
func NewStore(ctx context.Context, db *sql.DB) (*Store, error) {
	s := &Store{db: db, now: time.Now}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// ensureSchema creates the necessary tables if they don't exist.
func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS page_views (
			id TEXT PRIMARY KEY,
			post_id TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
			ip_hash TEXT NOT NULL,
			user_agent TEXT,
			reading_time INTEGER,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_page_views_post ON page_views(post_id);
		CREATE INDEX IF NOT EXISTS idx_page_views_created ON page_views(created_at);

		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	return err
}

// currentSchemaVersion is the latest schema version. Increment when adding migrations.
const currentSchemaVersion = 1

// migrate records the schema version in the settings table so later
// releases can apply incremental changes.
func (s *Store) migrate(ctx context.Context) error {
	verStr, err := s.GetSetting(ctx, "schema_version")
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	version := 0
	if verStr != "" {
		version, err = strconv.Atoi(verStr)
		if err != nil {
			return fmt.Errorf("parse schema version %q: %w", verStr, err)
		}
	}
	if version >= currentSchemaVersion {
		return nil
	}
	return s.SetSetting(ctx, "schema_version", strconv.Itoa(currentSchemaVersion))
}

// GetSetting returns the value for key, or "" when unset.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}

// SetSetting stores value under key, replacing any previous value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// InitSetting stores value under key unless a value already exists, and
// returns the value that ends up stored.
func (s *Store) InitSetting(ctx context.Context, key, value string) (string, error) {
	if _, err := s.db.ExecContext(ctx, `INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO NOTHING`, key, value); err != nil {
		return "", err
	}
	return s.GetSetting(ctx, key)
}

// RecordView appends a page view. A postId that matches no post yields
// ErrUnknownPost.
func (s *Store) RecordView(ctx context.Context, v PageView) (PageView, error) {
	if v.ID == "" {
		v.ID = uuid.Must(uuid.NewV7()).String()
	}
	v.CreatedAt = s.now().UTC()
	var ua sql.NullString
	if v.UserAgent != nil {
		ua = sql.NullString{String: *v.UserAgent, Valid: true}
	}
	var rt sql.NullInt64
	if v.ReadingTime != nil {
		rt = sql.NullInt64{Int64: int64(*v.ReadingTime), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO page_views (id, post_id, ip_hash, user_agent, reading_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`, v.ID, v.PostID, v.IPHash, ua, rt, v.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return PageView{}, fmt.Errorf("post %q: %w", v.PostID, ErrUnknownPost)
		}
		return PageView{}, err
	}
	return v, nil
}

// CountViews returns the number of visits. Reading-time follow-ups are not
// counted.
func (s *Store) CountViews(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM page_views WHERE reading_time IS NULL`).Scan(&n)
	return n, err
}

// CountPostViews returns the number of visits to one post.
func (s *Store) CountPostViews(ctx context.Context, postID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM page_views
		WHERE post_id = ? AND reading_time IS NULL`, postID).Scan(&n)
	return n, err
}

// TopPosts returns per-post view statistics, most viewed first.
func (s *Store) TopPosts(ctx context.Context, limit int) ([]PostStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.slug, p.title,
			COUNT(CASE WHEN v.reading_time IS NULL THEN 1 END) AS visits,
			COUNT(DISTINCT v.ip_hash), COALESCE(AVG(v.reading_time), 0)
		FROM page_views v JOIN posts p ON p.id = v.post_id
		GROUP BY p.id, p.slug, p.title
		ORDER BY visits DESC, p.slug
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := []PostStat{}
	for rows.Next() {
		var st PostStat
		if err := rows.Scan(&st.PostID, &st.Slug, &st.Title, &st.Views, &st.UniqueVisitors, &st.AvgReadingTime); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}
