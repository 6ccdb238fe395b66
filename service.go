package insights

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/eringen/insights/validation"
)

// Service exposes the blog's operations. Every call receives the caller's
// Claims explicitly. Mutations run the admin gate first, then validation,
// then a single store write.
type Service struct {
	store *Store
	cache *PostCache
	blobs BlobStore
	log   *zap.Logger
}

// NewService creates a Service backed by store. cache may be nil; when set
// it is invalidated after every post or category mutation.
func NewService(store *Store, cache *PostCache, blobs BlobStore, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, cache: cache, blobs: blobs, log: log}
}

// Store returns the underlying store.
func (s *Service) Store() *Store {
	return s.store
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}

// Authenticate checks an email/password pair and returns the user.
// Unknown emails and wrong passwords both yield ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, in LoginInput) (User, error) {
	if err := validation.Struct(in); err != nil {
		return User{}, err
	}
	u, err := s.store.GetUserByEmail(ctx, in.Email)
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if !CheckPassword(u.PasswordHash, in.Password) {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// CreatePost creates a post authored by the caller.
func (s *Service) CreatePost(ctx context.Context, c Claims, in CreatePostInput) (Post, error) {
	if err := RequireAdmin(c); err != nil {
		return Post{}, err
	}
	if err := validation.Struct(in); err != nil {
		return Post{}, err
	}
	p, err := s.store.CreatePost(ctx, c.UserID, in)
	if err != nil {
		return Post{}, err
	}
	s.invalidate(ctx)
	s.log.Info("post created", zap.String("slug", p.Slug), zap.Bool("published", p.Published))
	return p, nil
}

// GetPost returns a post by slug. Only admins can read drafts.
func (s *Service) GetPost(ctx context.Context, c Claims, slug string) (Post, error) {
	return s.store.GetPost(ctx, slug, !c.IsAdmin())
}

// ListPosts lists posts. Non-admin callers only ever see published posts.
func (s *Service) ListPosts(ctx context.Context, c Claims, f PostFilter) ([]Post, error) {
	if !c.IsAdmin() {
		f.PublishedOnly = true
	}
	return s.store.ListPosts(ctx, f)
}

// UpdatePost applies a partial update to the post with the given slug.
func (s *Service) UpdatePost(ctx context.Context, c Claims, slug string, in UpdatePostInput) (Post, error) {
	if err := RequireAdmin(c); err != nil {
		return Post{}, err
	}
	if err := validation.Struct(in); err != nil {
		return Post{}, err
	}
	p, err := s.store.UpdatePost(ctx, slug, in)
	if err != nil {
		return Post{}, err
	}
	s.invalidate(ctx)
	s.log.Info("post updated", zap.String("slug", p.Slug), zap.Bool("published", p.Published))
	return p, nil
}

// DeletePost deletes a post together with its category links and page views.
func (s *Service) DeletePost(ctx context.Context, c Claims, slug string) error {
	if err := RequireAdmin(c); err != nil {
		return err
	}
	if err := s.store.DeletePost(ctx, slug); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.log.Info("post deleted", zap.String("slug", slug))
	return nil
}

// ListCategories returns all categories.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	return s.store.ListCategories(ctx)
}

// CreateCategory adds a category.
func (s *Service) CreateCategory(ctx context.Context, c Claims, in CategoryInput) (Category, error) {
	if err := RequireAdmin(c); err != nil {
		return Category{}, err
	}
	if err := validation.Struct(in); err != nil {
		return Category{}, err
	}
	cat, err := s.store.CreateCategory(ctx, in)
	if err != nil {
		return Category{}, err
	}
	s.invalidate(ctx)
	return cat, nil
}

// ListResources returns sidebar resources, optionally for one category.
func (s *Service) ListResources(ctx context.Context, category *ResourceCategory) ([]Resource, error) {
	if category != nil && !category.Valid() {
		return nil, validation.NewError("category", "must be one of: GITHUB, TOOL")
	}
	return s.store.ListResources(ctx, category)
}

// CreateResource adds a sidebar resource.
func (s *Service) CreateResource(ctx context.Context, c Claims, in ResourceInput) (Resource, error) {
	if err := RequireAdmin(c); err != nil {
		return Resource{}, err
	}
	if err := validation.Struct(in); err != nil {
		return Resource{}, err
	}
	return s.store.CreateResource(ctx, in)
}

// UpdateResource changes any subset of a resource's fields.
func (s *Service) UpdateResource(ctx context.Context, c Claims, id string, in ResourceUpdate) (Resource, error) {
	if err := RequireAdmin(c); err != nil {
		return Resource{}, err
	}
	if err := validation.Struct(in); err != nil {
		return Resource{}, err
	}
	return s.store.UpdateResource(ctx, id, in)
}

// DeleteResource removes a resource.
func (s *Service) DeleteResource(ctx context.Context, c Claims, id string) error {
	if err := RequireAdmin(c); err != nil {
		return err
	}
	return s.store.DeleteResource(ctx, id)
}

// ListImages returns uploaded image metadata, newest first.
func (s *Service) ListImages(ctx context.Context, c Claims) ([]Image, error) {
	if err := RequireAdmin(c); err != nil {
		return nil, err
	}
	return s.store.ListImages(ctx)
}
