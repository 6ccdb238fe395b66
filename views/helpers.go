package views

import (
	"encoding/json"
	"html/template"
	"net/url"
	"path"
	"strings"

	"github.com/eringen/insights"
)

// buildURL joins path segments onto a base URL, ensuring a trailing slash.
func buildURL(base string, pathSegments ...string) string {
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

// CategoryURL links to the home page filtered by a category slug.
func CategoryURL(slug string) string {
	if slug == "" {
		return "/"
	}
	return "/?category=" + url.QueryEscape(slug)
}

// PillClass returns CSS classes for a category pill, with active variant.
func PillClass(active bool) string {
	if active {
		return "pill active"
	}
	return "pill"
}

// WebsiteJsonLD produces a Schema.org WebSite JSON-LD block using cfg values.
func WebsiteJsonLD(cfg insights.SiteConfig) template.JS {
	data := map[string]interface{}{
		"@context": "https://schema.org",
		"@type":    "WebSite",
		"name":     cfg.Name,
		"url":      buildURL(cfg.URL),
	}
	if cfg.Description != "" {
		data["description"] = cfg.Description
	}
	if cfg.Author != "" {
		data["author"] = map[string]string{
			"@type": "Person",
			"name":  cfg.Author,
		}
	}
	return marshalJS(data)
}

// BlogPostingJsonLD produces a Schema.org BlogPosting JSON-LD block for a post.
func BlogPostingJsonLD(cfg insights.SiteConfig, post insights.Post) template.JS {
	postURL := buildURL(cfg.URL, "blog", post.Slug)
	data := map[string]interface{}{
		"@context":     "https://schema.org",
		"@type":        "BlogPosting",
		"headline":     post.Title,
		"description":  post.Excerpt,
		"dateModified": post.UpdatedAt.Format("2006-01-02"),
		"url":          postURL,
		"publisher": map[string]string{
			"@type": "Organization",
			"name":  cfg.Name,
		},
		"mainEntityOfPage": map[string]string{
			"@type": "WebPage",
			"@id":   postURL,
		},
		"author": map[string]string{
			"@type": "Person",
			"name":  post.Author.Name,
		},
	}
	if post.PublishedAt != nil {
		data["datePublished"] = post.PublishedAt.Format("2006-01-02")
	}
	if post.CoverImage != nil {
		data["image"] = *post.CoverImage
	}
	if len(post.Categories) > 0 {
		names := make([]string, len(post.Categories))
		for i, c := range post.Categories {
			names[i] = c.Name
		}
		data["keywords"] = strings.Join(names, ", ")
	}
	return marshalJS(data)
}

func marshalJS(v any) template.JS {
	// json.Marshal escapes <, > and & so the result is safe inside <script>.
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return template.JS(b)
}
