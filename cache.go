package insights

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	sharedGenerationKey = "insights:published:gen"
	sharedSnapshotKey   = "insights:published:"
)

// SharedCache is the cross-instance layer behind PostCache. RedisCache is
// the production implementation.
type SharedCache interface {
	// GetJSON decodes the value at key into dest and reports whether it
	// existed.
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	// Int returns the counter at key, or 0 when it is unset.
	Int(ctx context.Context, key string) (int64, error)
	Incr(ctx context.Context, key string) (int64, error)
}

// PostCache is an in-memory cache of published posts and categories with
// TTL.
//
// With a SharedCache attached, every read first fetches a generation counter
// that Invalidate bumps. A local snapshot taken under an older generation is
// dropped at once, so a write on one instance is visible on all of them on
// their next read. Snapshots are also shared, keyed by generation, so only
// one instance has to go to the database after a change. When the shared
// layer is unreachable the cache falls back to plain TTL expiry.
type PostCache struct {
	mu         sync.RWMutex
	posts      []Post
	categories []Category
	fetched    time.Time
	gen        int64
	ttl        time.Duration
	store      *Store
	shared     SharedCache
	log        *zap.Logger
}

type cacheSnapshot struct {
	Posts      []Post     `json:"posts"`
	Categories []Category `json:"categories"`
}

// NewPostCache creates a PostCache backed by the given Store. shared may be
// nil.
func NewPostCache(s *Store, ttl time.Duration, shared SharedCache, log *zap.Logger) *PostCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &PostCache{store: s, ttl: ttl, shared: shared, log: log}
}

// fresh reports whether the local snapshot may be served for generation gen.
// Callers hold c.mu.
func (c *PostCache) fresh(gen int64) bool {
	return c.posts != nil && c.gen == gen && time.Since(c.fetched) < c.ttl
}

// Invalidate clears the cache so the next read, here or on any instance
// sharing the SharedCache, triggers a fresh load.
func (c *PostCache) Invalidate(ctx context.Context) {
	c.mu.Lock()
	c.posts = nil
	c.categories = nil
	c.mu.Unlock()
	if c.shared == nil {
		return
	}
	if _, err := c.shared.Incr(ctx, sharedGenerationKey); err != nil {
		c.log.Warn("shared cache invalidate failed", zap.Error(err))
	}
}

// generation returns the shared generation, or the local one when there is
// no shared layer or it cannot be read.
func (c *PostCache) generation(ctx context.Context) int64 {
	if c.shared == nil {
		return 0
	}
	gen, err := c.shared.Int(ctx, sharedGenerationKey)
	if err != nil {
		c.log.Warn("shared cache generation read failed", zap.Error(err))
		c.mu.RLock()
		defer c.mu.RUnlock()
		return c.gen
	}
	return gen
}

// load refreshes the snapshot for gen. Callers hold the write lock.
func (c *PostCache) load(ctx context.Context, gen int64) error {
	if c.fresh(gen) {
		return nil
	}
	key := sharedSnapshotKey + strconv.FormatInt(gen, 10)
	if c.shared != nil {
		var snap cacheSnapshot
		ok, err := c.shared.GetJSON(ctx, key, &snap)
		if err != nil {
			c.log.Warn("shared cache read failed", zap.Error(err))
		}
		if ok && snap.Posts != nil {
			c.set(gen, snap.Posts, snap.Categories)
			return nil
		}
	}

	posts, err := c.store.ListPosts(ctx, PostFilter{PublishedOnly: true})
	if err != nil {
		return err
	}
	categories, err := c.store.ListCategories(ctx)
	if err != nil {
		return err
	}
	c.set(gen, posts, categories)
	if c.shared != nil {
		snap := cacheSnapshot{Posts: posts, Categories: categories}
		if err := c.shared.SetJSON(ctx, key, snap, c.ttl); err != nil {
			c.log.Warn("shared cache write failed", zap.Error(err))
		}
	}
	return nil
}

func (c *PostCache) set(gen int64, posts []Post, categories []Category) {
	c.posts, c.categories = posts, categories
	c.gen = gen
	c.fetched = time.Now()
}

// ensureLoaded returns cached posts and categories after ensuring the cache
// is fresh. It tries a read lock first; only takes a write lock if a reload
// is needed.
func (c *PostCache) ensureLoaded(ctx context.Context) ([]Post, []Category, error) {
	gen := c.generation(ctx)

	c.mu.RLock()
	if c.fresh(gen) {
		posts, categories := c.posts, c.categories
		c.mu.RUnlock()
		return posts, categories, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.load(ctx, gen); err != nil {
		return nil, nil, err
	}
	return c.posts, c.categories, nil
}

// ListPosts returns published posts, optionally filtered by category slug.
func (c *PostCache) ListPosts(ctx context.Context, category string) ([]Post, error) {
	posts, _, err := c.ensureLoaded(ctx)
	if err != nil {
		return nil, err
	}
	if category == "" {
		return posts, nil
	}
	filtered := []Post{}
	for _, p := range posts {
		if p.HasCategory(category) {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

// ListCategories returns all categories.
func (c *PostCache) ListCategories(ctx context.Context) ([]Category, error) {
	_, categories, err := c.ensureLoaded(ctx)
	return categories, err
}

// GetPost returns a single published post by slug from the cache.
func (c *PostCache) GetPost(ctx context.Context, slug string) (Post, error) {
	posts, _, err := c.ensureLoaded(ctx)
	if err != nil {
		return Post{}, err
	}
	for _, p := range posts {
		if p.Slug == slug {
			return p, nil
		}
	}
	return Post{}, ErrNotFound
}
