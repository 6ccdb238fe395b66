package insights

import (
	"net/url"
	"path"
	"strings"

	"github.com/gosimple/slug"
)

// Slugify converts a title to a URL-safe slug matching ^[a-z0-9-]+$.
func Slugify(s string) string {
	return slug.Make(s)
}

// BuildURL joins a base URL with path segments, ensuring a trailing slash.
func BuildURL(base string, pathSegments ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	u.Path = path.Join(u.Path, path.Join(pathSegments...))
	if len(pathSegments) > 0 && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String()
}

// FilterEmpty trims each value and drops the empty ones.
func FilterEmpty(vals []string) []string {
	var out []string
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// FilterRelatedPosts finds posts that share at least one category with current.
func FilterRelatedPosts(current Post, posts []Post) []Post {
	var related []Post
	for _, p := range posts {
		if p.Slug == current.Slug {
			continue
		}
		for _, c := range current.Categories {
			if p.HasCategory(c.Slug) {
				related = append(related, p)
				break
			}
		}
	}
	return related
}
