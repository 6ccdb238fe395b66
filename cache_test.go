package insights

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostCache(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	admin := createTestUser(t, s, "admin@example.com", RoleAdmin)
	createTestCategories(t, s, "go", "web")

	_, err := s.CreatePost(ctx, admin.ID, postInput("go-post", true, "go"))
	require.NoError(t, err)
	_, err = s.CreatePost(ctx, admin.ID, postInput("web-post", true, "web"))
	require.NoError(t, err)
	_, err = s.CreatePost(ctx, admin.ID, postInput("draft", false, "go"))
	require.NoError(t, err)

	c := NewPostCache(s, time.Hour, nil, nil)

	posts, err := c.ListPosts(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"web-post", "go-post"}, postSlugs(posts))

	goPosts, err := c.ListPosts(ctx, "go")
	require.NoError(t, err)
	assert.Equal(t, []string{"go-post"}, postSlugs(goPosts))

	cats, err := c.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, cats, 2)

	p, err := c.GetPost(ctx, "web-post")
	require.NoError(t, err)
	assert.Equal(t, "Post web-post", p.Title)
	_, err = c.GetPost(ctx, "draft")
	assert.ErrorIs(t, err, ErrNotFound)

	// Writes behind the cache's back are invisible until invalidation.
	_, err = s.CreatePost(ctx, admin.ID, postInput("late", true, "web"))
	require.NoError(t, err)
	posts, err = c.ListPosts(ctx, "")
	require.NoError(t, err)
	assert.Len(t, posts, 2)

	c.Invalidate(ctx)
	posts, err = c.ListPosts(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"late", "web-post", "go-post"}, postSlugs(posts))
}

func TestPostCacheExpires(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	admin := createTestUser(t, s, "admin@example.com", RoleAdmin)
	createTestCategories(t, s, "go")

	c := NewPostCache(s, time.Nanosecond, nil, nil)
	posts, err := c.ListPosts(ctx, "")
	require.NoError(t, err)
	require.Empty(t, posts)

	_, err = s.CreatePost(ctx, admin.ID, postInput("fresh", true, "go"))
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	posts, err = c.ListPosts(ctx, "")
	require.NoError(t, err)
	assert.Len(t, posts, 1)
}

// memShared is an in-process SharedCache standing in for redis.
type memShared struct {
	mu       sync.Mutex
	values   map[string][]byte
	counters map[string]int64
	reads    int
	fail     bool
}

func newMemShared() *memShared {
	return &memShared{values: map[string][]byte{}, counters: map[string]int64{}}
}

var errSharedDown = errors.New("shared cache down")

func (m *memShared) GetJSON(_ context.Context, key string, dest any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return false, errSharedDown
	}
	b, ok := m.values[key]
	if !ok {
		return false, nil
	}
	m.reads++
	return true, json.Unmarshal(b, dest)
}

func (m *memShared) SetJSON(_ context.Context, key string, v any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errSharedDown
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.values[key] = b
	return nil
}

func (m *memShared) Int(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return 0, errSharedDown
	}
	return m.counters[key], nil
}

func (m *memShared) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return 0, errSharedDown
	}
	m.counters[key]++
	return m.counters[key], nil
}

func TestPostCacheInvalidationReachesOtherInstances(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	admin := createTestUser(t, s, "admin@example.com", RoleAdmin)
	createTestCategories(t, s, "go")
	_, err := s.CreatePost(ctx, admin.ID, postInput("hello", true, "go"))
	require.NoError(t, err)

	shared := newMemShared()
	a := NewPostCache(s, time.Hour, shared, nil)
	b := NewPostCache(s, time.Hour, shared, nil)

	_, err = a.GetPost(ctx, "hello")
	require.NoError(t, err)
	_, err = b.GetPost(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, 1, shared.reads, "the second instance reuses the shared snapshot")

	// Instance a unpublishes; b must stop serving the post on its next read
	// even though its own TTL is far from expired.
	_, err = s.UpdatePost(ctx, "hello", UpdatePostInput{Published: ptr(false)})
	require.NoError(t, err)
	a.Invalidate(ctx)

	_, err = b.GetPost(ctx, "hello")
	assert.ErrorIs(t, err, ErrNotFound)
	posts, err := b.ListPosts(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, posts)
	_, err = a.GetPost(ctx, "hello")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostCacheSharedLayerDown(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	admin := createTestUser(t, s, "admin@example.com", RoleAdmin)
	createTestCategories(t, s, "go")
	_, err := s.CreatePost(ctx, admin.ID, postInput("hello", true, "go"))
	require.NoError(t, err)

	shared := newMemShared()
	shared.fail = true
	c := NewPostCache(s, time.Hour, shared, nil)

	posts, err := c.ListPosts(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, postSlugs(posts))

	_, err = s.CreatePost(ctx, admin.ID, postInput("second", true, "go"))
	require.NoError(t, err)
	posts, err = c.ListPosts(ctx, "")
	require.NoError(t, err)
	assert.Len(t, posts, 1, "falls back to TTL expiry")

	c.Invalidate(ctx)
	posts, err = c.ListPosts(ctx, "")
	require.NoError(t, err)
	assert.Len(t, posts, 2)
}
