// Package insights is a blog publishing platform built with Go, Echo, and templ.
// It provides post, category and sidebar-resource management behind an
// admin gate, image uploads, privacy-preserving page-view analytics, a JSON
// API, RSS, and a sitemap.
//
// Callers provide page templates via the ViewFuncs struct, and insights
// handles all the handler logic, middleware, and database operations.
package insights

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/eringen/insights/analytics"
)

// Sidebar is the navigation shown next to every public page.
type Sidebar struct {
	Categories []Category
	Recent     []Post
	GitHub     []Resource
	Tools      []Resource
}

// HomePage is the data rendered by ViewFuncs.Home.
type HomePage struct {
	Site           SiteConfig
	Posts          []Post
	ActiveCategory string
	Sidebar        Sidebar
}

// PostPage is the data rendered by ViewFuncs.Post.
type PostPage struct {
	Site    SiteConfig
	Post    Post
	Related []Post
	Sidebar Sidebar
	// Track is true when the page should load the page-view tracker.
	Track bool
}

// DashboardPage is the data rendered by ViewFuncs.AdminDashboard.
type DashboardPage struct {
	Site      SiteConfig
	User      Claims
	Stats     DashboardStats
	CSRFToken string
}

// AdminPostsPage is the data rendered by ViewFuncs.AdminPosts. Errors holds
// field messages from a rejected new-category form.
type AdminPostsPage struct {
	Site       SiteConfig
	User       Claims
	Posts      []Post
	Categories []Category
	Message    string
	Errors     map[string]string
	CSRFToken  string
}

// PostFormPage is the data rendered by ViewFuncs.AdminPostForm. Original is
// the slug of the post being edited and is empty for a new post.
type PostFormPage struct {
	Site       SiteConfig
	User       Claims
	Original   string
	Form       PostForm
	Categories []Category
	Errors     map[string]string
	CSRFToken  string
}

// AdminImagesPage is the data rendered by ViewFuncs.AdminImages.
type AdminImagesPage struct {
	Site      SiteConfig
	User      Claims
	Images    []Image
	Message   string
	Error     string
	CSRFToken string
}

// AdminResourcesPage is the data rendered by ViewFuncs.AdminResources. Form
// keeps the values of a rejected create so they can be corrected.
type AdminResourcesPage struct {
	Site      SiteConfig
	User      Claims
	Resources []Resource
	Form      ResourceForm
	Message   string
	Errors    map[string]string
	CSRFToken string
}

// ViewFuncs holds the templ components the framework calls when rendering
// pages. The caller owns every template; the views package ships a default
// set.
type ViewFuncs struct {
	Home           func(HomePage) templ.Component
	Post           func(PostPage) templ.Component
	AdminLogin     func(showError bool, csrfToken string) templ.Component
	AdminDashboard func(DashboardPage) templ.Component
	AdminPosts     func(AdminPostsPage) templ.Component
	AdminPostForm  func(PostFormPage) templ.Component
	AdminImages    func(AdminImagesPage) templ.Component
	AdminResources func(AdminResourcesPage) templ.Component
	NotFound       func() templ.Component
	ServerError    func() templ.Component
}

// App is the central insights application. It wires together the store,
// service, cache, handlers, middleware, and templates.
type App struct {
	Config  SiteConfig
	Echo    *echo.Echo
	Store   *Store
	Service *Service
	Cache   *PostCache
	Tokens  *TokenIssuer
	Views   ViewFuncs
	Log     *zap.Logger

	loginLimiter     *LoginLimiter
	analyticsStore   *analytics.Store
	analyticsHandler *analytics.Handler
	redis            *redis.Client
	blobs            BlobStore
	customRoutes     []func(*App)
	staticDir        string
	initialized      bool
}

// New creates a new App with the given configuration and view functions.
func New(cfg SiteConfig, views ViewFuncs, opts ...Option) *App {
	cfg.setDefaults()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	a := &App{
		Config:    cfg,
		Echo:      e,
		Views:     views,
		staticDir: "public",
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Init opens the database and builds every component, then registers
// middleware and routes. Start calls it; tests call it directly and drive
// a.Echo through httptest.
func (a *App) Init(ctx context.Context) (err error) {
	if a.initialized {
		return nil
	}
	if a.Config.SessionSecret == "" {
		return errors.New("insights: SessionSecret is required")
	}
	if a.Log == nil {
		log, err := NewLogger(a.Config.LogLevel, a.Config.LogFormat)
		if err != nil {
			return fmt.Errorf("insights: init logger: %w", err)
		}
		a.Log = log
	}

	store, err := NewStore(a.Config.DatabasePath)
	if err != nil {
		return fmt.Errorf("insights: init store: %w", err)
	}
	a.Store = store
	defer func() {
		if err != nil {
			_ = a.release()
		}
	}()

	if a.Config.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: a.Config.RedisAddr})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			// The local cache still works; the shared layer is best effort.
			a.Log.Warn("redis unavailable, using in-process cache only", zap.String("addr", a.Config.RedisAddr), zap.Error(err))
			a.redis.Close()
			a.redis = nil
		}
	}
	var shared SharedCache
	if a.redis != nil {
		shared = NewRedisCache(a.redis)
	}
	a.Cache = NewPostCache(a.Store, a.Config.PostCacheTTL, shared, a.Log)

	if a.blobs == nil {
		a.blobs = NewDiskBlobStore(a.staticDir)
	}
	a.Service = NewService(a.Store, a.Cache, a.blobs, a.Log)
	a.Tokens = NewTokenIssuer(a.Config.TokenSecret, a.Config.TokenTTL)
	a.loginLimiter = NewLoginLimiter(5, time.Minute)

	if !a.Config.DisableAnalytics {
		as, err := analytics.NewStore(ctx, a.Store.DB())
		if err != nil {
			return fmt.Errorf("insights: init analytics: %w", err)
		}
		hasher, err := analytics.LoadHasher(ctx, as)
		if err != nil {
			return fmt.Errorf("insights: init analytics salt: %w", err)
		}
		a.analyticsStore = as
		a.analyticsHandler = analytics.NewHandler(as, hasher, a.Log.Named("analytics"))
	}

	a.setupMiddleware()
	a.setupRoutes()
	for _, fn := range a.customRoutes {
		fn(a)
	}
	a.initialized = true
	return nil
}

// Start initializes the app and serves HTTP until SIGINT or SIGTERM, then
// shuts down gracefully.
func (a *App) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Init(ctx); err != nil {
		return err
	}
	defer a.Close()

	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("listening", zap.String("addr", a.Config.Addr), zap.String("url", a.Config.URL))
		errCh <- a.Echo.Start(a.Config.Addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	a.Log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.Echo.Shutdown(shutdownCtx)
}

func (a *App) setupRoutes() {
	e := a.Echo

	// Framework assets (tracker.js, site.css) are served under /public/ and
	// everything else falls through to the caller's static dir.
	embeddedFS, _ := fs.Sub(EmbeddedAssets, "embedded")
	embeddedHandler := http.FileServer(http.FS(embeddedFS))
	e.GET("/public/tracker.js", echo.WrapHandler(http.StripPrefix("/public/", embeddedHandler)))
	e.GET("/public/site.css", echo.WrapHandler(http.StripPrefix("/public/", embeddedHandler)))

	e.Static("/public", a.staticDir)
	e.Static("/"+uploadsSubdir, filepath.Join(a.staticDir, uploadsSubdir))
	e.GET("/favicon.svg", a.handleFavicon)
	e.GET("/robots.txt", a.handleRobots)

	// Public routes
	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/feed.xml", a.handleFeed)
	e.GET("/blog", handleBlogRedirect)
	e.GET("/", a.handleHome)
	e.GET("/blog/:slug/", a.handlePost)

	// Admin console
	e.GET("/admin/", a.handleAdmin)
	e.POST("/admin/login/", a.handleAdminLogin)
	e.POST("/admin/logout/", handleAdminLogout)

	admin := a.requireAdminPage
	e.GET("/admin/posts/", a.handleAdminPosts, admin)
	e.POST("/admin/posts/", a.handleAdminCreatePost, admin)
	e.GET("/admin/posts/new/", a.handleAdminNewPost, admin)
	e.GET("/admin/posts/:slug/edit/", a.handleAdminEditPost, admin)
	e.POST("/admin/posts/:slug/", a.handleAdminUpdatePost, admin)
	e.POST("/admin/posts/:slug/delete/", a.handleAdminDeletePost, admin)
	e.POST("/admin/categories/", a.handleAdminCreateCategory, admin)
	e.GET("/admin/images/", a.handleAdminImages, admin)
	e.POST("/admin/images/", a.handleAdminUploadImage, admin)
	e.GET("/admin/resources/", a.handleAdminResources, admin)
	e.POST("/admin/resources/", a.handleAdminCreateResource, admin)
	e.POST("/admin/resources/:id/", a.handleAdminUpdateResource, admin)
	e.POST("/admin/resources/:id/delete/", a.handleAdminDeleteResource, admin)

	a.registerAPI(e.Group("/api"))
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	err := a.release()
	if a.Log != nil {
		_ = a.Log.Sync()
	}
	return err
}

// release stops background goroutines and closes what Init opened. Each
// resource is closed once; later calls are no-ops.
func (a *App) release() error {
	if a.loginLimiter != nil {
		a.loginLimiter.Stop()
		a.loginLimiter = nil
	}
	if a.analyticsHandler != nil {
		a.analyticsHandler.Close()
		a.analyticsHandler = nil
	}
	a.analyticsStore = nil
	if a.redis != nil {
		_ = a.redis.Close()
		a.redis = nil
	}
	if a.Store == nil {
		return nil
	}
	err := a.Store.Close()
	a.Store = nil
	return err
}
