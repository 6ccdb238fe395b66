package insights

import (
	"errors"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eringen/insights/validation"
)

const dashboardRecentPosts = 5

func (a *App) handleAdmin(c echo.Context) error {
	if !IsAdmin(c) {
		return Render(c, a.Views.AdminLogin(false, CsrfToken(c)))
	}
	stats, err := a.dashboardStats(c)
	if err != nil {
		return err
	}
	return Render(c, a.Views.AdminDashboard(DashboardPage{
		Site:      a.Config,
		User:      ClaimsFrom(c),
		Stats:     stats,
		CSRFToken: CsrfToken(c),
	}))
}

// loginThrottled sets Retry-After and reports true when ip has used up its
// failed attempts.
func (a *App) loginThrottled(c echo.Context, ip string) bool {
	if a.loginLimiter.Check(ip) {
		return false
	}
	wait := a.loginLimiter.RetryAfter(ip)
	c.Response().Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
	return true
}

func (a *App) handleAdminLogin(c echo.Context) error {
	ip := c.RealIP()
	if a.loginThrottled(c, ip) {
		return c.String(http.StatusTooManyRequests, "Too many login attempts. Try again later.")
	}
	var in LoginInput
	if err := c.Bind(&in); err != nil {
		return c.String(http.StatusBadRequest, "Invalid request")
	}
	u, err := a.Service.Authenticate(c.Request().Context(), in)
	var verr *validation.Error
	switch {
	case errors.Is(err, ErrInvalidCredentials), errors.As(err, &verr):
		a.loginLimiter.Record(ip)
		return RenderStatus(c, http.StatusUnauthorized, a.Views.AdminLogin(true, CsrfToken(c)))
	case err != nil:
		return err
	}
	claims := ClaimsFor(u)
	if !claims.IsAdmin() {
		a.loginLimiter.Record(ip)
		return RenderStatus(c, http.StatusUnauthorized, a.Views.AdminLogin(true, CsrfToken(c)))
	}
	if err := setAdminSession(c, claims); err != nil {
		return err
	}
	a.loginLimiter.Reset(ip)
	a.Log.Info("admin signed in", zap.String("email", u.Email))
	return c.Redirect(http.StatusSeeOther, "/admin/")
}

func handleAdminLogout(c echo.Context) error {
	if err := clearAdminSession(c); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/admin/")
}

// dashboardStats gathers the dashboard counters concurrently.
func (a *App) dashboardStats(c echo.Context) (DashboardStats, error) {
	var stats DashboardStats
	g, ctx := errgroup.WithContext(c.Request().Context())
	g.Go(func() error {
		total, published, err := a.Store.CountPosts(ctx)
		stats.TotalPosts, stats.PublishedPosts = total, published
		stats.DraftPosts = total - published
		return err
	})
	g.Go(func() (err error) {
		stats.Images, err = a.Store.CountImages(ctx)
		return err
	})
	g.Go(func() (err error) {
		stats.Resources, err = a.Store.CountResources(ctx)
		return err
	})
	g.Go(func() (err error) {
		stats.RecentPosts, err = a.Store.RecentPosts(ctx, dashboardRecentPosts)
		return err
	})
	if a.analyticsStore != nil {
		g.Go(func() (err error) {
			stats.PageViews, err = a.analyticsStore.CountViews(ctx)
			return err
		})
		g.Go(func() (err error) {
			stats.TopPosts, err = a.analyticsStore.TopPosts(ctx, dashboardRecentPosts)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return DashboardStats{}, err
	}
	return stats, nil
}

// requireAdminPage sends callers without admin claims back to the sign-in
// page. The Service gate still runs on every write.
func (a *App) requireAdminPage(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !IsAdmin(c) {
			return c.Redirect(http.StatusSeeOther, "/admin/")
		}
		return next(c)
	}
}

func adminRedirect(c echo.Context, path, msg string) error {
	return c.Redirect(http.StatusSeeOther, path+"?"+url.Values{"msg": {msg}}.Encode())
}

// formErrors turns a rejected write into field messages and the status the
// re-rendered form is sent with.
func formErrors(err error) (map[string]string, int, bool) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		return verr.Fields, http.StatusBadRequest, true
	case errors.Is(err, ErrConflict):
		return map[string]string{"slug": "is already in use"}, http.StatusConflict, true
	}
	return nil, 0, false
}

// PostForm is the post editor's field set as submitted.
type PostForm struct {
	ID         string
	Title      string
	Slug       string
	Excerpt    string
	Content    string
	CoverImage string
	ReadTime   string
	Categories []string
	Published  bool
}

func postFormFrom(p Post) PostForm {
	f := PostForm{
		ID:        p.ID,
		Title:     p.Title,
		Slug:      p.Slug,
		Excerpt:   p.Excerpt,
		Content:   p.Content,
		ReadTime:  p.ReadTime,
		Published: p.Published,
	}
	if p.CoverImage != nil {
		f.CoverImage = *p.CoverImage
	}
	for _, cat := range p.Categories {
		f.Categories = append(f.Categories, cat.Slug)
	}
	return f
}

func readPostForm(c echo.Context) (PostForm, error) {
	vals, err := c.FormParams()
	if err != nil {
		return PostForm{}, err
	}
	f := PostForm{
		ID:         strings.TrimSpace(vals.Get("id")),
		Title:      strings.TrimSpace(vals.Get("title")),
		Slug:       strings.TrimSpace(vals.Get("slug")),
		Excerpt:    strings.TrimSpace(vals.Get("excerpt")),
		Content:    vals.Get("content"),
		CoverImage: strings.TrimSpace(vals.Get("coverImage")),
		ReadTime:   strings.TrimSpace(vals.Get("readTime")),
		Categories: FilterEmpty(vals["categories"]),
		Published:  vals.Get("published") != "",
	}
	if f.Slug == "" {
		f.Slug = Slugify(f.Title)
	}
	return f, nil
}

func (f PostForm) createInput() CreatePostInput {
	in := CreatePostInput{
		Title:      f.Title,
		Slug:       f.Slug,
		Excerpt:    f.Excerpt,
		Content:    f.Content,
		Categories: f.Categories,
		Published:  f.Published,
	}
	if f.CoverImage != "" {
		in.CoverImage = validation.NewNullableString(f.CoverImage)
	}
	if f.ReadTime != "" {
		in.ReadTime = &f.ReadTime
	}
	return in
}

// updateInput sends every field. An empty cover image clears it and the
// checked categories replace the post's set.
func (f PostForm) updateInput() UpdatePostInput {
	in := UpdatePostInput{
		ID:         f.ID,
		Title:      &f.Title,
		Slug:       &f.Slug,
		Excerpt:    &f.Excerpt,
		Content:    &f.Content,
		CoverImage: validation.NewNullableString(f.CoverImage),
		Categories: append([]string{}, f.Categories...),
		Published:  &f.Published,
	}
	if f.ReadTime != "" {
		in.ReadTime = &f.ReadTime
	}
	return in
}

func (a *App) handleAdminPosts(c echo.Context) error {
	return a.renderAdminPosts(c, http.StatusOK, c.QueryParam("msg"), nil)
}

func (a *App) renderAdminPosts(c echo.Context, code int, msg string, errs map[string]string) error {
	ctx := c.Request().Context()
	claims := ClaimsFrom(c)
	posts, err := a.Service.ListPosts(ctx, claims, PostFilter{})
	if err != nil {
		return err
	}
	categories, err := a.Service.ListCategories(ctx)
	if err != nil {
		return err
	}
	return RenderStatus(c, code, a.Views.AdminPosts(AdminPostsPage{
		Site:       a.Config,
		User:       claims,
		Posts:      posts,
		Categories: categories,
		Message:    msg,
		Errors:     errs,
		CSRFToken:  CsrfToken(c),
	}))
}

func (a *App) renderPostForm(c echo.Context, code int, original string, f PostForm, errs map[string]string) error {
	categories, err := a.Service.ListCategories(c.Request().Context())
	if err != nil {
		return err
	}
	return RenderStatus(c, code, a.Views.AdminPostForm(PostFormPage{
		Site:       a.Config,
		User:       ClaimsFrom(c),
		Original:   original,
		Form:       f,
		Categories: categories,
		Errors:     errs,
		CSRFToken:  CsrfToken(c),
	}))
}

func (a *App) handleAdminNewPost(c echo.Context) error {
	return a.renderPostForm(c, http.StatusOK, "", PostForm{}, nil)
}

func (a *App) handleAdminEditPost(c echo.Context) error {
	p, err := a.Service.GetPost(c.Request().Context(), ClaimsFrom(c), c.Param("slug"))
	if errors.Is(err, ErrNotFound) {
		return echo.ErrNotFound
	}
	if err != nil {
		return err
	}
	return a.renderPostForm(c, http.StatusOK, p.Slug, postFormFrom(p), nil)
}

func (a *App) handleAdminCreatePost(c echo.Context) error {
	f, err := readPostForm(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	_, err = a.Service.CreatePost(c.Request().Context(), ClaimsFrom(c), f.createInput())
	if errs, code, ok := formErrors(err); ok {
		return a.renderPostForm(c, code, "", f, errs)
	}
	if err != nil {
		return err
	}
	return adminRedirect(c, "/admin/posts/", "Post created.")
}

func (a *App) handleAdminUpdatePost(c echo.Context) error {
	slug := c.Param("slug")
	f, err := readPostForm(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	// The editor always submits the whole post, so it is held to the
	// rules of a new one rather than those of a partial update.
	err = validation.Struct(f.createInput())
	if err == nil {
		_, err = a.Service.UpdatePost(c.Request().Context(), ClaimsFrom(c), slug, f.updateInput())
	}
	if errors.Is(err, ErrNotFound) {
		return echo.ErrNotFound
	}
	if errs, code, ok := formErrors(err); ok {
		return a.renderPostForm(c, code, slug, f, errs)
	}
	if err != nil {
		return err
	}
	return adminRedirect(c, "/admin/posts/", "Post saved.")
}

func (a *App) handleAdminDeletePost(c echo.Context) error {
	err := a.Service.DeletePost(c.Request().Context(), ClaimsFrom(c), c.Param("slug"))
	if errors.Is(err, ErrNotFound) {
		return echo.ErrNotFound
	}
	if err != nil {
		return err
	}
	return adminRedirect(c, "/admin/posts/", "Post deleted.")
}

func (a *App) handleAdminCreateCategory(c echo.Context) error {
	in := CategoryInput{
		Name: strings.TrimSpace(c.FormValue("name")),
		Slug: strings.TrimSpace(c.FormValue("slug")),
	}
	if in.Slug == "" {
		in.Slug = Slugify(in.Name)
	}
	_, err := a.Service.CreateCategory(c.Request().Context(), ClaimsFrom(c), in)
	if errs, code, ok := formErrors(err); ok {
		return a.renderAdminPosts(c, code, "", errs)
	}
	if err != nil {
		return err
	}
	return adminRedirect(c, "/admin/posts/", "Category created.")
}

// ResourceForm is the resource editor's field set as submitted.
type ResourceForm struct {
	Title       string
	Description string
	URL         string
	Category    string
	Order       string
}

func readResourceForm(c echo.Context) ResourceForm {
	return ResourceForm{
		Title:       strings.TrimSpace(c.FormValue("title")),
		Description: strings.TrimSpace(c.FormValue("description")),
		URL:         strings.TrimSpace(c.FormValue("url")),
		Category:    strings.ToUpper(strings.TrimSpace(c.FormValue("category"))),
		Order:       strings.TrimSpace(c.FormValue("order")),
	}
}

func (f ResourceForm) order() (int, error) {
	if f.Order == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(f.Order)
	if err != nil {
		return 0, validation.NewError("order", "must be a whole number")
	}
	return n, nil
}

func (f ResourceForm) input() (ResourceInput, error) {
	order, err := f.order()
	if err != nil {
		return ResourceInput{}, err
	}
	return ResourceInput{
		Title:       f.Title,
		Description: f.Description,
		URL:         f.URL,
		Category:    ResourceCategory(f.Category),
		Order:       order,
	}, nil
}

func (f ResourceForm) update() (ResourceUpdate, error) {
	order, err := f.order()
	if err != nil {
		return ResourceUpdate{}, err
	}
	cat := ResourceCategory(f.Category)
	return ResourceUpdate{
		Title:       &f.Title,
		Description: &f.Description,
		URL:         &f.URL,
		Category:    &cat,
		Order:       &order,
	}, nil
}

func (a *App) handleAdminResources(c echo.Context) error {
	return a.renderAdminResources(c, http.StatusOK, c.QueryParam("msg"), ResourceForm{}, nil)
}

func (a *App) renderAdminResources(c echo.Context, code int, msg string, f ResourceForm, errs map[string]string) error {
	resources, err := a.Service.ListResources(c.Request().Context(), nil)
	if err != nil {
		return err
	}
	return RenderStatus(c, code, a.Views.AdminResources(AdminResourcesPage{
		Site:      a.Config,
		User:      ClaimsFrom(c),
		Resources: resources,
		Form:      f,
		Message:   msg,
		Errors:    errs,
		CSRFToken: CsrfToken(c),
	}))
}

func (a *App) handleAdminCreateResource(c echo.Context) error {
	f := readResourceForm(c)
	in, err := f.input()
	if err == nil {
		_, err = a.Service.CreateResource(c.Request().Context(), ClaimsFrom(c), in)
	}
	if errs, code, ok := formErrors(err); ok {
		return a.renderAdminResources(c, code, "", f, errs)
	}
	if err != nil {
		return err
	}
	return adminRedirect(c, "/admin/resources/", "Resource added.")
}

func (a *App) handleAdminUpdateResource(c echo.Context) error {
	in, err := readResourceForm(c).update()
	if err == nil {
		_, err = a.Service.UpdateResource(c.Request().Context(), ClaimsFrom(c), c.Param("id"), in)
	}
	if errors.Is(err, ErrNotFound) {
		return echo.ErrNotFound
	}
	if errs, code, ok := formErrors(err); ok {
		return a.renderAdminResources(c, code, "", ResourceForm{}, errs)
	}
	if err != nil {
		return err
	}
	return adminRedirect(c, "/admin/resources/", "Resource saved.")
}

func (a *App) handleAdminDeleteResource(c echo.Context) error {
	err := a.Service.DeleteResource(c.Request().Context(), ClaimsFrom(c), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		return echo.ErrNotFound
	}
	if err != nil {
		return err
	}
	return adminRedirect(c, "/admin/resources/", "Resource deleted.")
}
