package insights

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedSelfLink(t *testing.T) {
	for _, base := range []string{"https://blog.example.com", "https://blog.example.com/"} {
		feed := buildFeed(SiteConfig{Name: "Insights", URL: base}, nil)
		assert.Equal(t, "https://blog.example.com/feed.xml", feed.Channel.Self.Href, base)
		assert.Equal(t, "self", feed.Channel.Self.Rel)
		assert.Empty(t, feed.Channel.LastBuildDate)
	}

	feed := buildFeed(SiteConfig{URL: "http://localhost:3000"}, nil)
	assert.Equal(t, "http://localhost:3000/feed.xml", feed.Channel.Self.Href)
}

func TestFeedLastBuildDate(t *testing.T) {
	newest := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)
	older := newest.Add(-48 * time.Hour)
	feed := buildFeed(SiteConfig{URL: "https://blog.example.com"}, []Post{
		{Slug: "b", PublishedAt: &newest},
		{Slug: "a", PublishedAt: &older},
	})
	require.Len(t, feed.Channel.Items, 2)
	assert.Equal(t, newest.Format(time.RFC1123Z), feed.Channel.LastBuildDate)
	assert.Equal(t, "https://blog.example.com/blog/b/", feed.Channel.Items[0].GUID)
}

func TestSitemapCategoryURLs(t *testing.T) {
	assert.Equal(t, "https://blog.example.com/?category=ai-tools", categoryURL("https://blog.example.com", "ai-tools"))
	assert.Equal(t, "https://blog.example.com/?category=ai-tools", categoryURL("https://blog.example.com/", "ai-tools"))

	updated := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)
	set := buildSitemap("https://blog.example.com", []Post{
		{Slug: "b", UpdatedAt: updated, Categories: []Category{{Slug: "web"}, {Slug: "go"}}},
		{Slug: "a", UpdatedAt: updated.Add(-time.Hour), Categories: []Category{{Slug: "go"}}},
	})
	var locs []string
	for _, u := range set.URLs {
		locs = append(locs, u.Loc)
	}
	assert.Equal(t, []string{
		"https://blog.example.com/",
		"https://blog.example.com/blog/b/",
		"https://blog.example.com/blog/a/",
		"https://blog.example.com/?category=web",
		"https://blog.example.com/?category=go",
	}, locs)
	assert.Equal(t, "2026-05-02", set.URLs[0].LastMod)

	set = buildSitemap("https://blog.example.com/", nil)
	require.Len(t, set.URLs, 1)
	assert.Equal(t, "https://blog.example.com/", set.URLs[0].Loc)
}
