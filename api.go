package insights

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/eringen/insights/validation"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      User      `json:"user"`
}

func (a *App) registerAPI(g *echo.Group) {
	g.POST("/auth/token", a.apiIssueToken)

	g.GET("/posts", a.apiListPosts)
	g.POST("/posts", a.apiCreatePost)
	g.GET("/posts/:slug", a.apiGetPost)
	g.PATCH("/posts/:slug", a.apiUpdatePost)
	g.DELETE("/posts/:slug", a.apiDeletePost)

	g.GET("/categories", a.apiListCategories)
	g.POST("/categories", a.apiCreateCategory)

	g.GET("/resources", a.apiListResources)
	g.POST("/resources", a.apiCreateResource)
	g.PATCH("/resources/:id", a.apiUpdateResource)
	g.DELETE("/resources/:id", a.apiDeleteResource)

	g.POST("/images/upload", a.apiUploadImage)
	g.GET("/images", a.apiListImages)

	if a.analyticsHandler != nil {
		a.analyticsHandler.RegisterRoutes(g)
		g.GET("/analytics/posts", a.apiTopPosts)
	}
}

// apiError maps a service error onto an HTTP status and JSON body.
// Unexpected errors are logged and replaced by a generic message.
func (a *App) apiError(c echo.Context, err error) error {
	var verr *validation.Error
	var uerr *UploadError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "validation failed", Fields: verr.Fields})
	case errors.As(err, &uerr):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: uerr.Msg})
	case errors.Is(err, ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: ErrInvalidCredentials.Error()})
	case errors.Is(err, ErrUnauthorized):
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: ErrUnauthorized.Error()})
	case errors.Is(err, ErrNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: ErrNotFound.Error()})
	case errors.Is(err, ErrConflict):
		return c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	}
	a.Log.Error("api request failed",
		zap.String("method", c.Request().Method),
		zap.String("path", c.Path()),
		zap.Error(err))
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
}

func badBody(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
}

func (a *App) apiIssueToken(c echo.Context) error {
	ip := c.RealIP()
	if a.loginThrottled(c, ip) {
		return c.JSON(http.StatusTooManyRequests, errorResponse{Error: "too many login attempts"})
	}
	var in LoginInput
	if err := c.Bind(&in); err != nil {
		return badBody(c)
	}
	ctx := c.Request().Context()
	u, err := a.Service.Authenticate(ctx, in)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			a.loginLimiter.Record(ip)
		}
		return a.apiError(c, err)
	}
	a.loginLimiter.Reset(ip)
	token, exp, err := a.Tokens.Issue(ClaimsFor(u))
	if err != nil {
		return a.apiError(c, err)
	}
	return c.JSON(http.StatusOK, tokenResponse{Token: token, ExpiresAt: exp, User: u})
}

func (a *App) apiListPosts(c echo.Context) error {
	f := PostFilter{Category: c.QueryParam("category")}
	if v := c.QueryParam("published"); v != "" {
		published, err := strconv.ParseBool(v)
		if err != nil {
			return a.apiError(c, validation.NewError("published", "must be true or false"))
		}
		f.PublishedOnly = published
	}
	posts, err := a.Service.ListPosts(c.Request().Context(), ClaimsFrom(c), f)
	if err != nil {
		return a.apiError(c, err)
	}
	return c.JSON(http.StatusOK, posts)
}

func (a *App) apiCreatePost(c echo.Context) error {
	claims := ClaimsFrom(c)
	if err := RequireAdmin(claims); err != nil {
		return a.apiError(c, err)
	}
	var in CreatePostInput
	if err := c.Bind(&in); err != nil {
		return badBody(c)
	}
	p, err := a.Service.CreatePost(c.Request().Context(), claims, in)
	if err != nil {
		return a.apiError(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (a *App) apiGetPost(c echo.Context) error {
	p, err := a.Service.GetPost(c.Request().Context(), ClaimsFrom(c), c.Param("slug"))
	if err != nil {
		return a.apiError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (a *App) apiUpdatePost(c echo.Context) error {
	claims := ClaimsFrom(c)
	if err := RequireAdmin(claims); err != nil {
		return a.apiError(c, err)
	}
	var in UpdatePostInput
	if err := c.Bind(&in); err != nil {
		return badBody(c)
	}
	p, err := a.Service.UpdatePost(c.Request().Context(), claims, c.Param("slug"), in)
	if err != nil {
		return a.apiError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (a *App) apiDeletePost(c echo.Context) error {
	if err := a.Service.DeletePost(c.Request().Context(), ClaimsFrom(c), c.Param("slug")); err != nil {
		return a.apiError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *App) apiListCategories(c echo.Context) error {
	cats, err := a.Service.ListCategories(c.Request().Context())
	if err != nil {
		return a.apiError(c, err)
	}
	return c.JSON(http.StatusOK, cats)
}

func (a *App) apiCreateCategory(c echo.Context) error {
	claims := ClaimsFrom(c)
	if err := RequireAdmin(claims); err != nil {
		return a.apiError(c, err)
	}
	var in CategoryInput
	if err := c.Bind(&in); err != nil {
		return badBody(c)
	}
	if in.Slug == "" {
		in.Slug = Slugify(in.Name)
	}
	cat, err := a.Service.CreateCategory(c.Request().Context(), claims, in)
	if err != nil {
		return a.apiError(c, err)
	}
	return c.JSON(http.StatusCreated, cat)
}

func (a *App) apiListResources(c echo.Context) error {
	var filter *ResourceCategory
	if v := c.QueryParam("category"); v != "" {
		rc := ResourceCategory(strings.ToUpper(v))
		filter = &rc
	}
	resources, err := a.Service.ListResources(c.Request().Context(), filter)
	if err != nil {
		return a.apiError(c, err)
	}
	return c.JSON(http.StatusOK, resources)
}

func (a *App) apiCreateResource(c echo.Context) error {
	claims := ClaimsFrom(c)
	if err := RequireAdmin(claims); err != nil {
		return a.apiError(c, err)
	}
	var in ResourceInput
	if err := c.Bind(&in); err != nil {
		return badBody(c)
	}
	r, err := a.Service.CreateResource(c.Request().Context(), claims, in)
	if err != nil {
		return a.apiError(c, err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (a *App) apiUpdateResource(c echo.Context) error {
	claims := ClaimsFrom(c)
	if err := RequireAdmin(claims); err != nil {
		return a.apiError(c, err)
	}
	var in ResourceUpdate
	if err := c.Bind(&in); err != nil {
		return badBody(c)
	}
	r, err := a.Service.UpdateResource(c.Request().Context(), claims, c.Param("id"), in)
	if err != nil {
		return a.apiError(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

func (a *App) apiDeleteResource(c echo.Context) error {
	if err := a.Service.DeleteResource(c.Request().Context(), ClaimsFrom(c), c.Param("id")); err != nil {
		return a.apiError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *App) apiUploadImage(c echo.Context) error {
	claims := ClaimsFrom(c)
	if err := RequireAdmin(claims); err != nil {
		return a.apiError(c, err)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return a.apiError(c, validation.NewError("file", "is required"))
	}
	src, err := fh.Open()
	if err != nil {
		return a.apiError(c, err)
	}
	defer src.Close()

	img, err := a.Service.UploadImage(c.Request().Context(), claims, Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Size:        fh.Size,
		Alt:         c.FormValue("alt"),
		Body:        src,
	})
	if err != nil {
		return a.apiError(c, err)
	}
	return c.JSON(http.StatusCreated, img)
}

func (a *App) apiListImages(c echo.Context) error {
	images, err := a.Service.ListImages(c.Request().Context(), ClaimsFrom(c))
	if err != nil {
		return a.apiError(c, err)
	}
	return c.JSON(http.StatusOK, images)
}

func (a *App) apiTopPosts(c echo.Context) error {
	if err := RequireAdmin(ClaimsFrom(c)); err != nil {
		return a.apiError(c, err)
	}
	limit := 10
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 && v <= 100 {
		limit = v
	}
	stats, err := a.analyticsStore.TopPosts(c.Request().Context(), limit)
	if err != nil {
		return a.apiError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}
