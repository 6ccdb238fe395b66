package insights

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/eringen/insights/validation"
)

// SeedData is the YAML document loaded by `insights seed`.
type SeedData struct {
	Users      []SeedUser     `yaml:"users"`
	Categories []SeedCategory `yaml:"categories"`
	Resources  []SeedResource `yaml:"resources"`
	Posts      []SeedPost     `yaml:"posts"`
}

type SeedUser struct {
	Email    string `yaml:"email"`
	Name     string `yaml:"name"`
	Password string `yaml:"password"`
	Role     Role   `yaml:"role"`
}

type SeedCategory struct {
	Name string `yaml:"name"`
	Slug string `yaml:"slug"`
}

type SeedResource struct {
	Title       string           `yaml:"title"`
	Description string           `yaml:"description"`
	URL         string           `yaml:"url"`
	Category    ResourceCategory `yaml:"category"`
	Order       int              `yaml:"order"`
}

type SeedPost struct {
	Title      string   `yaml:"title"`
	Slug       string   `yaml:"slug"`
	Excerpt    string   `yaml:"excerpt"`
	Content    string   `yaml:"content"`
	CoverImage string   `yaml:"cover_image"`
	ReadTime   string   `yaml:"read_time"`
	Categories []string `yaml:"categories"`
	Published  bool     `yaml:"published"`
	// Author is the email of an existing or seeded user.
	Author string `yaml:"author"`
}

// SeedReport counts what a seed run created.
type SeedReport struct {
	Users      int
	Categories int
	Resources  int
	Posts      int
}

// ParseSeed decodes a seed document.
func ParseSeed(r io.Reader) (SeedData, error) {
	var data SeedData
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&data); err != nil && !errors.Is(err, io.EOF) {
		return SeedData{}, fmt.Errorf("parse seed: %w", err)
	}
	return data, nil
}

// Seed loads data idempotently. Users and categories are upserted by email
// and slug, posts are created only when their slug is free, and resources
// are added only while the resource list is empty.
func (s *Service) Seed(ctx context.Context, data SeedData) (SeedReport, error) {
	var report SeedReport
	authors := make(map[string]User)

	for _, su := range data.Users {
		if len(su.Password) < 6 {
			return report, fmt.Errorf("seed user %s: password must be at least 6 characters", su.Email)
		}
		hash, err := HashPassword(su.Password)
		if err != nil {
			return report, err
		}
		role := su.Role
		if role == "" {
			role = RoleReader
		}
		u, err := s.store.UpsertUser(ctx, User{Email: su.Email, Name: su.Name, Role: role, PasswordHash: hash})
		if err != nil {
			return report, fmt.Errorf("seed user %s: %w", su.Email, err)
		}
		authors[u.Email] = u
		report.Users++
	}

	for _, sc := range data.Categories {
		slug := sc.Slug
		if slug == "" {
			slug = Slugify(sc.Name)
		}
		if _, err := s.store.UpsertCategory(ctx, CategoryInput{Name: sc.Name, Slug: slug}); err != nil {
			return report, fmt.Errorf("seed category %s: %w", slug, err)
		}
		report.Categories++
	}

	n, err := s.store.CountResources(ctx)
	if err != nil {
		return report, err
	}
	if n == 0 {
		for _, sr := range data.Resources {
			in := ResourceInput{Title: sr.Title, Description: sr.Description, URL: sr.URL, Category: sr.Category, Order: sr.Order}
			if _, err := s.createResource(ctx, in); err != nil {
				return report, fmt.Errorf("seed resource %q: %w", sr.Title, err)
			}
			report.Resources++
		}
	}

	for _, sp := range data.Posts {
		_, err := s.store.GetPost(ctx, sp.Slug, false)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return report, err
		}
		author, err := s.seedAuthor(ctx, authors, sp.Author)
		if err != nil {
			return report, fmt.Errorf("seed post %s: %w", sp.Slug, err)
		}
		readTime := sp.ReadTime
		in := CreatePostInput{
			Title:      sp.Title,
			Slug:       sp.Slug,
			Excerpt:    sp.Excerpt,
			Content:    strings.TrimSpace(sp.Content),
			ReadTime:   &readTime,
			Categories: sp.Categories,
			Published:  sp.Published,
		}
		if sp.CoverImage != "" {
			in.CoverImage = validation.NewNullableString(sp.CoverImage)
		}
		if _, err := s.CreatePost(ctx, ClaimsFor(author), in); err != nil {
			return report, fmt.Errorf("seed post %s: %w", sp.Slug, err)
		}
		report.Posts++
	}
	s.log.Info("seed complete",
		zap.Int("users", report.Users),
		zap.Int("categories", report.Categories),
		zap.Int("resources", report.Resources),
		zap.Int("posts", report.Posts))
	return report, nil
}

func (s *Service) seedAuthor(ctx context.Context, seeded map[string]User, email string) (User, error) {
	email = normalizeEmail(email)
	if u, ok := seeded[email]; ok {
		return s.requireAdminUser(u)
	}
	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return User{}, fmt.Errorf("author %q: %w", email, err)
	}
	return s.requireAdminUser(u)
}

func (s *Service) requireAdminUser(u User) (User, error) {
	if err := RequireAdmin(ClaimsFor(u)); err != nil {
		return User{}, fmt.Errorf("author %s is not an admin: %w", u.Email, err)
	}
	return u, nil
}

// createResource validates and stores a resource without a caller gate.
// Only trusted local tooling uses it.
func (s *Service) createResource(ctx context.Context, in ResourceInput) (Resource, error) {
	if err := validation.Struct(in); err != nil {
		return Resource{}, err
	}
	return s.store.CreateResource(ctx, in)
}
