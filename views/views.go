// Package views ships the default page templates. Pages are html/template
// files embedded in the binary and exposed as templ components, so callers
// can swap any of them for their own templ code through insights.ViewFuncs.
package views

import (
	"embed"
	"fmt"
	"html/template"
	"slices"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/eringen/insights"
	"github.com/eringen/insights/analytics"
	"github.com/eringen/insights/markdown"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.New("").Funcs(template.FuncMap{
	"markdown":    renderMarkdown,
	"date":        formatDate,
	"safeURL":     markdown.SafeURL,
	"websiteLD":   WebsiteJsonLD,
	"postLD":      BlogPostingJsonLD,
	"categoryURL": CategoryURL,
	"pillClass":   PillClass,
	"lower":       strings.ToLower,
	"minDwell":    func() int { return int(analytics.MinDwell / time.Second) },
	"contains":    func(list []string, s string) bool { return slices.Contains(list, s) },
	"formCategory": func(form string, selected any) categorySelect {
		return categorySelect{Form: form, Selected: fmt.Sprint(selected)}
	},
}).ParseFS(templateFS, "templates/*.html"))

// New returns the default ViewFuncs.
func New() insights.ViewFuncs {
	return insights.ViewFuncs{
		Home: func(p insights.HomePage) templ.Component {
			return page("home", p)
		},
		Post: func(p insights.PostPage) templ.Component {
			return page("post", p)
		},
		AdminLogin: func(showError bool, csrfToken string) templ.Component {
			return page("login", loginPage{ShowError: showError, CSRFToken: csrfToken})
		},
		AdminDashboard: func(p insights.DashboardPage) templ.Component {
			return page("dashboard", p)
		},
		AdminPosts: func(p insights.AdminPostsPage) templ.Component {
			return page("admin_posts", p)
		},
		AdminPostForm: func(p insights.PostFormPage) templ.Component {
			return page("post_form", p)
		},
		AdminImages: func(p insights.AdminImagesPage) templ.Component {
			return page("images", p)
		},
		AdminResources: func(p insights.AdminResourcesPage) templ.Component {
			return page("resources", p)
		},
		NotFound: func() templ.Component {
			return page("notfound", nil)
		},
		ServerError: func() templ.Component {
			return page("error", nil)
		},
	}
}

type loginPage struct {
	ShowError bool
	CSRFToken string
}

// categorySelect feeds the resource category picker. Form names the form
// the select belongs to when it sits outside it.
type categorySelect struct {
	Form     string
	Selected string
}

func page(name string, data any) templ.Component {
	return templ.FromGoHTML(pages.Lookup(name), data)
}

func renderMarkdown(content string) (template.HTML, error) {
	s, err := markdown.HTML(content)
	// Sanitized by the markdown package.
	return template.HTML(s), err
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "Draft"
	}
	return t.Format("January 2, 2006")
}
