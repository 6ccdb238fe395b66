package insights

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello World", "hello-world"},
		{"AI Tools & Workflows", "ai-tools-and-workflows"},
		{"  Go 1.24  ", "go-1-24"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.in))
		})
	}
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		segments []string
		want     string
	}{
		{"base only", "https://example.com", nil, "https://example.com"},
		{"single segment", "https://example.com", []string{"blog"}, "https://example.com/blog/"},
		{"post", "https://example.com", []string{"blog", "hello"}, "https://example.com/blog/hello/"},
		{"base with path", "https://example.com/site", []string{"blog", "hello"}, "https://example.com/site/blog/hello/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildURL(tt.base, tt.segments...))
		})
	}
}

func TestFilterEmpty(t *testing.T) {
	assert.Equal(t, []string{"go", "web"}, FilterEmpty([]string{" go ", "", "  ", "web"}))
	assert.Nil(t, FilterEmpty(nil))
}

func TestFilterRelatedPosts(t *testing.T) {
	goCat := Category{Slug: "go"}
	webCat := Category{Slug: "web"}
	current := Post{Slug: "a", Categories: []Category{goCat}}
	posts := []Post{
		current,
		{Slug: "b", Categories: []Category{webCat}},
		{Slug: "c", Categories: []Category{webCat, goCat}},
		{Slug: "d", Categories: []Category{}},
	}
	assert.Equal(t, []string{"c"}, postSlugs(FilterRelatedPosts(current, posts)))
	assert.Empty(t, FilterRelatedPosts(Post{Slug: "x"}, posts))
}

func TestRSSAuthor(t *testing.T) {
	assert.Equal(t, "", rssAuthor(Author{Name: "Ann"}))
	assert.Equal(t, "ann@example.com", rssAuthor(Author{Email: "ann@example.com"}))
	assert.Equal(t, "ann@example.com (Ann)", rssAuthor(Author{Email: "ann@example.com", Name: "Ann"}))
}
