package insights

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// setupTestStore opens a fresh database in a temp dir. The store clock
// advances one minute per write so ordering by timestamp is deterministic.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "data", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return s
}

func createTestUser(t *testing.T, s *Store, email string, role Role) User {
	t.Helper()
	hash, err := HashPassword("secret123")
	require.NoError(t, err)
	u, err := s.CreateUser(context.Background(), User{Email: email, Name: strings.Split(email, "@")[0], Role: role, PasswordHash: hash})
	require.NoError(t, err)
	return u
}

func createTestCategories(t *testing.T, s *Store, slugs ...string) {
	t.Helper()
	for _, slug := range slugs {
		_, err := s.CreateCategory(context.Background(), CategoryInput{Name: strings.ToUpper(slug), Slug: slug})
		require.NoError(t, err)
	}
}

func postInput(slug string, published bool, categories ...string) CreatePostInput {
	readTime := "3 min read"
	return CreatePostInput{
		Title:      "Post " + slug,
		Slug:       slug,
		Excerpt:    "Excerpt for " + slug,
		Content:    "# " + slug + "\n\nBody.",
		ReadTime:   &readTime,
		Categories: categories,
		Published:  published,
	}
}

func ptr[T any](v T) *T {
	return &v
}

func categorySlugs(p Post) []string {
	out := []string{}
	for _, c := range p.Categories {
		out = append(out, c.Slug)
	}
	return out
}

func postSlugs(posts []Post) []string {
	out := []string{}
	for _, p := range posts {
		out = append(out, p.Slug)
	}
	return out
}
