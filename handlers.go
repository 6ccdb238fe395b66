package insights

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/eringen/insights/validation"
)

const sidebarRecentPosts = 5

func (a *App) sidebar(c echo.Context, published []Post) (Sidebar, error) {
	ctx := c.Request().Context()
	categories, err := a.Cache.ListCategories(ctx)
	if err != nil {
		return Sidebar{}, err
	}
	resources, err := a.Store.ListResources(ctx, nil)
	if err != nil {
		return Sidebar{}, err
	}
	sb := Sidebar{Categories: categories}
	for _, r := range resources {
		switch r.Category {
		case ResourceGitHub:
			sb.GitHub = append(sb.GitHub, r)
		case ResourceTool:
			sb.Tools = append(sb.Tools, r)
		}
	}
	sb.Recent = published
	if len(sb.Recent) > sidebarRecentPosts {
		sb.Recent = sb.Recent[:sidebarRecentPosts]
	}
	return sb, nil
}

func (a *App) handleHome(c echo.Context) error {
	ctx := c.Request().Context()
	category := strings.ToLower(strings.TrimSpace(c.QueryParam("category")))
	all, err := a.Cache.ListPosts(ctx, "")
	if err != nil {
		return err
	}
	posts := all
	if category != "" {
		if posts, err = a.Cache.ListPosts(ctx, category); err != nil {
			return err
		}
	}
	sb, err := a.sidebar(c, all)
	if err != nil {
		return err
	}
	return Render(c, a.Views.Home(HomePage{
		Site:           a.Config,
		Posts:          posts,
		ActiveCategory: category,
		Sidebar:        sb,
	}))
}

func (a *App) handlePost(c echo.Context) error {
	ctx := c.Request().Context()
	slug := c.Param("slug")
	if !validation.Slug(slug) {
		return RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
	}
	post, err := a.Cache.GetPost(ctx, slug)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
		}
		return err
	}
	all, err := a.Cache.ListPosts(ctx, "")
	if err != nil {
		return err
	}
	sb, err := a.sidebar(c, all)
	if err != nil {
		return err
	}
	return Render(c, a.Views.Post(PostPage{
		Site:    a.Config,
		Post:    post,
		Related: FilterRelatedPosts(post, all),
		Sidebar: sb,
		Track:   a.analyticsHandler != nil,
	}))
}

func (a *App) handleSitemap(c echo.Context) error {
	posts, err := a.Cache.ListPosts(c.Request().Context(), "")
	if err != nil {
		return err
	}
	return a.renderSitemap(c, posts)
}

func (a *App) handleFeed(c echo.Context) error {
	posts, err := a.Cache.ListPosts(c.Request().Context(), "")
	if err != nil {
		return err
	}
	return a.renderRSS(c, posts)
}

func handleBlogRedirect(c echo.Context) error {
	return c.Redirect(http.StatusMovedPermanently, "/")
}

func (a *App) handleFavicon(c echo.Context) error {
	return c.File(a.staticDir + "/favicon.svg")
}

func (a *App) handleRobots(c echo.Context) error {
	body := fmt.Sprintf("User-agent: *\nAllow: /\nDisallow: /admin/\nDisallow: /api/\n\nSitemap: %s\n",
		strings.TrimRight(a.Config.URL, "/")+"/sitemap.xml")
	return c.String(http.StatusOK, body)
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	ok := errors.As(err, &he)
	code := http.StatusInternalServerError
	if ok {
		code = he.Code
	}
	if code >= 500 {
		a.Log.Error("server error",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Error(err))
	}
	if isAPIPath(c.Request().URL.Path) {
		msg := http.StatusText(code)
		if ok && code < 500 {
			msg = fmt.Sprint(he.Message)
		}
		_ = c.JSON(code, errorResponse{Error: strings.ToLower(msg)})
		return
	}
	switch {
	case code == http.StatusNotFound:
		_ = RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
	case code >= 500:
		_ = RenderStatus(c, code, a.Views.ServerError())
	default:
		a.Echo.DefaultHTTPErrorHandler(err, c)
	}
}
