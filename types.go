package insights

import (
	"time"

	"github.com/eringen/insights/analytics"
	"github.com/eringen/insights/validation"
)

// Role is a user's authorization level.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleReader Role = "READER"
)

// User is an account that can sign in to the admin console.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Author is the public projection of a post's owning user.
type Author struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Category groups posts. Posts reference categories by slug.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Post is the core content type stored in SQLite and rendered by templates.
// PublishedAt is non-nil exactly when Published is true.
type Post struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Excerpt     string     `json:"excerpt"`
	Content     string     `json:"content"`
	CoverImage  *string    `json:"coverImage"`
	ReadTime    string     `json:"readTime"`
	Published   bool       `json:"published"`
	PublishedAt *time.Time `json:"publishedAt"`
	AuthorID    string     `json:"authorId"`
	Author      Author     `json:"author"`
	Categories  []Category `json:"categories"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Link is the canonical path of the post page.
func (p Post) Link() string {
	return "/blog/" + p.Slug + "/"
}

// HasCategory reports whether the post is linked to the category slug.
func (p Post) HasCategory(slug string) bool {
	for _, c := range p.Categories {
		if c.Slug == slug {
			return true
		}
	}
	return false
}

// ResourceCategory is the sidebar section a resource belongs to.
type ResourceCategory string

const (
	ResourceGitHub ResourceCategory = "GITHUB"
	ResourceTool   ResourceCategory = "TOOL"
)

// Valid reports whether c is a known resource category.
func (c ResourceCategory) Valid() bool {
	return c == ResourceGitHub || c == ResourceTool
}

// Resource is a curated external link shown in the sidebar.
type Resource struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	URL         string           `json:"url"`
	Category    ResourceCategory `json:"category"`
	Order       int              `json:"order"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// Image is the metadata row for an uploaded image.
type Image struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	URL         string    `json:"url"`
	Alt         *string   `json:"alt"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	UploadedBy  string    `json:"uploadedBy"`
	Uploader    Author    `json:"uploader"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CreatePostInput is the payload for creating a post.
type CreatePostInput struct {
	Title      string                    `json:"title" validate:"required,max=200"`
	Slug       string                    `json:"slug" validate:"required,slug"`
	Excerpt    string                    `json:"excerpt" validate:"required,max=500"`
	Content    string                    `json:"content" validate:"required"`
	CoverImage validation.NullableString `json:"coverImage" validate:"omitempty,url"`
	ReadTime   *string                   `json:"readTime" validate:"required"`
	Categories []string                  `json:"categories" validate:"required,min=1,dive,slug"`
	Published  bool                      `json:"published"`
}

// UpdatePostInput is a partial post update. A nil field is left unchanged.
// Categories, when non-nil, replaces the post's full category set.
type UpdatePostInput struct {
	ID         string                    `json:"id" validate:"required"`
	Title      *string                   `json:"title" validate:"omitempty,min=1,max=200"`
	Slug       *string                   `json:"slug" validate:"omitempty,slug"`
	Excerpt    *string                   `json:"excerpt" validate:"omitempty,min=1,max=500"`
	Content    *string                   `json:"content" validate:"omitempty,min=1"`
	CoverImage validation.NullableString `json:"coverImage" validate:"omitempty,url"`
	ReadTime   *string                   `json:"readTime"`
	Categories []string                  `json:"categories" validate:"omitempty,dive,slug"`
	Published  *bool                     `json:"published"`
}

// PostFilter narrows ListPosts.
type PostFilter struct {
	PublishedOnly bool
	Category      string
}

// CategoryInput is the payload for creating a category.
type CategoryInput struct {
	Name string `json:"name" validate:"required,max=100"`
	Slug string `json:"slug" validate:"required,slug"`
}

// ResourceInput is the payload for creating a resource.
type ResourceInput struct {
	Title       string           `json:"title" validate:"required"`
	Description string           `json:"description" validate:"required"`
	URL         string           `json:"url" validate:"required,url"`
	Category    ResourceCategory `json:"category" validate:"required,oneof=GITHUB TOOL"`
	Order       int              `json:"order"`
}

// ResourceUpdate is a partial resource update. A nil field is left unchanged.
type ResourceUpdate struct {
	Title       *string           `json:"title" validate:"omitempty,min=1"`
	Description *string           `json:"description" validate:"omitempty,min=1"`
	URL         *string           `json:"url" validate:"omitempty,url"`
	Category    *ResourceCategory `json:"category" validate:"omitempty,oneof=GITHUB TOOL"`
	Order       *int              `json:"order"`
}

// LoginInput carries admin credentials.
type LoginInput struct {
	Email    string `json:"email" form:"email" validate:"required,email"`
	Password string `json:"password" form:"password" validate:"required,min=6"`
}

// DashboardStats summarizes the site for the admin console.
type DashboardStats struct {
	TotalPosts     int
	PublishedPosts int
	DraftPosts     int
	Images         int
	Resources      int
	PageViews      int
	RecentPosts    []Post
	TopPosts       []analytics.PostStat
}
