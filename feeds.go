package insights

import (
	"encoding/xml"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"
	atomNS    = "http://www.w3.org/2005/Atom"
)

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

type rssXML struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	AtomNS  string     `xml:"xmlns:atom,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string      `xml:"title"`
	Self          rssAtomLink `xml:"atom:link"`
	Link          string      `xml:"link"`
	Description   string      `xml:"description"`
	LastBuildDate string      `xml:"lastBuildDate,omitempty"`
	Items         []rssItem   `xml:"item"`
}

type rssAtomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type rssItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	Description string   `xml:"description"`
	Author      string   `xml:"author,omitempty"`
	Categories  []string `xml:"category"`
	PubDate     string   `xml:"pubDate"`
	GUID        string   `xml:"guid"`
}

// rssAuthor formats an author as RSS 2.0 expects: "email (Name)".
func rssAuthor(a Author) string {
	switch {
	case a.Email == "":
		return ""
	case a.Name == "":
		return a.Email
	}
	return a.Email + " (" + a.Name + ")"
}

func writeXML(c echo.Context, contentType string, v any) error {
	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, contentType)
	resp.WriteHeader(http.StatusOK)
	if _, err := resp.Write([]byte(xml.Header)); err != nil {
		return err
	}
	return xml.NewEncoder(resp).Encode(v)
}

func sitemapDate(t time.Time) string { return t.UTC().Format(time.DateOnly) }

// siteRoot is base with exactly one trailing slash.
func siteRoot(base string) string {
	return strings.TrimRight(base, "/") + "/"
}

// categoryURL points at the home listing filtered to one category.
func categoryURL(base, slug string) string {
	return siteRoot(base) + "?" + url.Values{"category": {slug}}.Encode()
}

// buildSitemap lists the home page, every published post and each category
// that has at least one of them. posts must be newest first.
func buildSitemap(base string, posts []Post) sitemapURLSet {
	home := sitemapURL{Loc: siteRoot(base)}
	if len(posts) > 0 {
		home.LastMod = sitemapDate(posts[0].UpdatedAt)
	}
	set := sitemapURLSet{XMLNS: sitemapNS, URLs: []sitemapURL{home}}

	var cats []string
	seen := make(map[string]bool)
	for _, p := range posts {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:     BuildURL(base, "blog", p.Slug),
			LastMod: sitemapDate(p.UpdatedAt),
		})
		for _, cat := range p.Categories {
			if !seen[cat.Slug] {
				seen[cat.Slug] = true
				cats = append(cats, cat.Slug)
			}
		}
	}
	for _, slug := range cats {
		set.URLs = append(set.URLs, sitemapURL{Loc: categoryURL(base, slug)})
	}
	return set
}

func buildFeed(cfg SiteConfig, posts []Post) rssXML {
	ch := rssChannel{
		Title:       cfg.Name,
		Link:        cfg.URL,
		Description: cfg.Description,
		Self: rssAtomLink{
			Href: siteRoot(cfg.URL) + "feed.xml",
			Rel:  "self",
			Type: "application/rss+xml",
		},
		Items: make([]rssItem, 0, len(posts)),
	}
	for _, p := range posts {
		link := BuildURL(cfg.URL, "blog", p.Slug)
		item := rssItem{
			Title:       p.Title,
			Link:        link,
			Description: p.Excerpt,
			Author:      rssAuthor(p.Author),
			GUID:        link,
		}
		if p.PublishedAt != nil {
			item.PubDate = p.PublishedAt.Format(time.RFC1123Z)
			if ch.LastBuildDate == "" {
				ch.LastBuildDate = item.PubDate
			}
		}
		for _, cat := range p.Categories {
			item.Categories = append(item.Categories, cat.Name)
		}
		ch.Items = append(ch.Items, item)
	}
	return rssXML{Version: "2.0", AtomNS: atomNS, Channel: ch}
}

func (a *App) renderSitemap(c echo.Context, posts []Post) error {
	return writeXML(c, "application/xml; charset=utf-8", buildSitemap(a.Config.URL, posts))
}

func (a *App) renderRSS(c echo.Context, posts []Post) error {
	return writeXML(c, "application/rss+xml; charset=utf-8", buildFeed(a.Config, posts))
}
