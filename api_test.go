package insights

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func textComponent(s string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	})
}

// stubViews renders just enough of each page for assertions.
func stubViews() ViewFuncs {
	return ViewFuncs{
		Home: func(p HomePage) templ.Component {
			return textComponent("home:" + strings.Join(postSlugs(p.Posts), ","))
		},
		Post: func(p PostPage) templ.Component {
			tracked := ""
			if p.Track {
				tracked = " tracked"
			}
			return textComponent("post:" + p.Post.Slug + tracked)
		},
		AdminLogin: func(showError bool, csrf string) templ.Component {
			if showError {
				return textComponent("login:error csrf=" + csrf)
			}
			return textComponent("login csrf=" + csrf)
		},
		AdminDashboard: func(p DashboardPage) templ.Component {
			return textComponent("dashboard:" + p.User.Email)
		},
		AdminPosts: func(p AdminPostsPage) templ.Component {
			return textComponent("admin-posts:" + strings.Join(postSlugs(p.Posts), ",") + " msg=" + p.Message + " errors=" + fieldList(p.Errors))
		},
		AdminPostForm: func(p PostFormPage) templ.Component {
			return textComponent("post-form:" + p.Original + " title=" + p.Form.Title + " errors=" + fieldList(p.Errors))
		},
		AdminImages: func(p AdminImagesPage) templ.Component {
			return textComponent(fmt.Sprintf("images:%d msg=%s error=%s", len(p.Images), p.Message, p.Error))
		},
		AdminResources: func(p AdminResourcesPage) templ.Component {
			titles := make([]string, 0, len(p.Resources))
			for _, r := range p.Resources {
				titles = append(titles, r.Title)
			}
			return textComponent("resources:" + strings.Join(titles, ",") + " msg=" + p.Message + " errors=" + fieldList(p.Errors))
		},
		NotFound:    func() templ.Component { return textComponent("not found") },
		ServerError: func() templ.Component { return textComponent("server error") },
	}
}

func fieldList(errs map[string]string) string {
	fields := make([]string, 0, len(errs))
	for f := range errs {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return strings.Join(fields, ",")
}

type testApp struct {
	*App
	t     *testing.T
	token string
}

func setupTestApp(t *testing.T, opts ...Option) *testApp {
	t.Helper()
	dir := t.TempDir()
	cfg := SiteConfig{
		Name:          "Test Blog",
		URL:           "https://blog.example.com",
		Description:   "A test blog",
		SessionSecret: "test-session-secret",
		DatabasePath:  filepath.Join(dir, "blog.db"),
	}
	opts = append([]Option{WithLogger(zap.NewNop()), WithStaticDir(filepath.Join(dir, "public"))}, opts...)
	a := New(cfg, stubViews(), opts...)
	require.NoError(t, a.Init(context.Background()))
	t.Cleanup(func() { a.Close() })
	clock := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	a.Store.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	createTestUser(t, a.Store, "admin@example.com", RoleAdmin)
	createTestUser(t, a.Store, "reader@example.com", RoleReader)
	createTestCategories(t, a.Store, "ai-tools", "web")

	ta := &testApp{App: a, t: t}
	rec := ta.do(http.MethodPost, "/api/auth/token", `{"email":"admin@example.com","password":"secret123"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tok tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))
	ta.token = tok.Token
	return ta
}

func (ta *testApp) request(req *http.Request, token string) *httptest.ResponseRecorder {
	req.RemoteAddr = "192.0.2.10:4321"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ta.Echo.ServeHTTP(rec, req)
	return rec
}

func (ta *testApp) do(method, target, body, token string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return ta.request(req, token)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const helloPost = `{
	"title": "Hello",
	"slug": "hello",
	"excerpt": "First post",
	"content": "# Hello\n\nWorld.",
	"readTime": "1 min read",
	"categories": ["ai-tools"],
	"published": true
}`

func TestAPIIssueToken(t *testing.T) {
	ta := setupTestApp(t)

	rec := ta.do(http.MethodPost, "/api/auth/token", `{"email":"admin@example.com","password":"wrong-pass"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ta.do(http.MethodPost, "/api/auth/token", `{"email":"bad"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[errorResponse](t, rec)
	assert.Contains(t, body.Fields, "email")
	assert.Contains(t, body.Fields, "password")

	rec = ta.do(http.MethodPost, "/api/auth/token", `{"email":"admin@example.com","password":"secret123"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	tok := decode[tokenResponse](t, rec)
	assert.NotEmpty(t, tok.Token)
	assert.Equal(t, RoleAdmin, tok.User.Role)
	assert.NotContains(t, rec.Body.String(), "$2a$", "password hash must never be serialized")
}

func TestAPIIssueTokenThrottlesFailures(t *testing.T) {
	ta := setupTestApp(t)
	const wrong = `{"email":"admin@example.com","password":"wrong-pass"}`
	const right = `{"email":"admin@example.com","password":"secret123"}`

	for i := 0; i < 4; i++ {
		require.Equal(t, http.StatusUnauthorized, ta.do(http.MethodPost, "/api/auth/token", wrong, "").Code)
	}
	require.Equal(t, http.StatusOK, ta.do(http.MethodPost, "/api/auth/token", right, "").Code,
		"a good sign-in clears earlier failures")

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusUnauthorized, ta.do(http.MethodPost, "/api/auth/token", wrong, "").Code)
	}
	rec := ta.do(http.MethodPost, "/api/auth/token", right, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	wait, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.InDelta(t, 60, wait, 1)
}

func TestAPIPostLifecycle(t *testing.T) {
	ta := setupTestApp(t)

	rec := ta.do(http.MethodPost, "/api/posts", helloPost, ta.token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[Post](t, rec)
	assert.Equal(t, "hello", created.Slug)
	require.NotNil(t, created.PublishedAt)
	assert.Equal(t, []string{"ai-tools"}, categorySlugs(created))

	rec = ta.do(http.MethodGet, "/api/posts?category=ai-tools", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"hello"}, postSlugs(decode[[]Post](t, rec)))

	rec = ta.do(http.MethodPost, "/api/posts", helloPost, ta.token)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ta.do(http.MethodPatch, "/api/posts/hello", `{"id":"`+created.ID+`","published":false}`, ta.token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[Post](t, rec)
	assert.False(t, updated.Published)
	assert.Nil(t, updated.PublishedAt)
	assert.Equal(t, "Hello", updated.Title)

	rec = ta.do(http.MethodGet, "/api/posts/hello", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "drafts are hidden from anonymous callers")
	rec = ta.do(http.MethodGet, "/api/posts/hello", "", ta.token)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ta.do(http.MethodDelete, "/api/posts/hello", "", ta.token)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ta.do(http.MethodDelete, "/api/posts/hello", "", ta.token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIRequiresAdmin(t *testing.T) {
	ta := setupTestApp(t)

	rec := ta.do(http.MethodPost, "/api/auth/token", `{"email":"reader@example.com","password":"secret123"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	readerToken := decode[tokenResponse](t, rec).Token

	for name, token := range map[string]string{"anonymous": "", "reader": readerToken, "forged": "not.a.jwt"} {
		t.Run(name, func(t *testing.T) {
			rec := ta.do(http.MethodPost, "/api/posts", helloPost, token)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			rec = ta.do(http.MethodPost, "/api/categories", `{"name":"Go"}`, token)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			rec = ta.do(http.MethodPost, "/api/resources", `{"title":"t","description":"d","url":"https://x.example","category":"TOOL"}`, token)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			rec = ta.do(http.MethodGet, "/api/images", "", token)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			rec = ta.do(http.MethodGet, "/api/analytics/posts", "", token)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}

	total, _, err := ta.Store.CountPosts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestAPIValidationErrors(t *testing.T) {
	ta := setupTestApp(t)

	rec := ta.do(http.MethodPost, "/api/posts", `{"title":"","slug":"Not A Slug","categories":["ai-tools"]}`, ta.token)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[errorResponse](t, rec)
	assert.Equal(t, "validation failed", body.Error)
	for _, f := range []string{"title", "slug", "excerpt", "content", "readTime"} {
		assert.Contains(t, body.Fields, f)
	}

	rec = ta.do(http.MethodPost, "/api/posts", strings.Replace(helloPost, `["ai-tools"]`, `["nope"]`, 1), ta.token)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[errorResponse](t, rec).Fields, "categories")

	rec = ta.do(http.MethodPost, "/api/posts", `{not json`, ta.token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ta.do(http.MethodGet, "/api/posts?published=maybe", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ta.do(http.MethodGet, "/api/resources?category=other", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPICategories(t *testing.T) {
	ta := setupTestApp(t)

	rec := ta.do(http.MethodPost, "/api/categories", `{"name":"Developer Tools"}`, ta.token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "developer-tools", decode[Category](t, rec).Slug)

	rec = ta.do(http.MethodPost, "/api/categories", `{"name":"Web","slug":"web"}`, ta.token)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ta.do(http.MethodGet, "/api/categories", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]Category](t, rec), 3)
}

func TestAPIResources(t *testing.T) {
	ta := setupTestApp(t)

	rec := ta.do(http.MethodPost, "/api/resources", `{"title":"Echo","description":"router","url":"https://echo.labstack.com","category":"GITHUB","order":2}`, ta.token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	r := decode[Resource](t, rec)

	rec = ta.do(http.MethodPost, "/api/resources", `{"title":"Squoosh","description":"images","url":"https://squoosh.app","category":"TOOL","order":1}`, ta.token)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ta.do(http.MethodGet, "/api/resources?category=github", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]Resource](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "Echo", list[0].Title)

	rec = ta.do(http.MethodPatch, "/api/resources/"+r.ID, `{"order":0}`, ta.token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[Resource](t, rec).Order)

	rec = ta.do(http.MethodGet, "/api/resources", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list = decode[[]Resource](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, "Echo", list[0].Title)

	rec = ta.do(http.MethodDelete, "/api/resources/"+r.ID, "", ta.token)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ta.do(http.MethodPatch, "/api/resources/"+r.ID, `{"order":1}`, ta.token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func multipartUpload(t *testing.T, filename, contentType string, data []byte, alt string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	if alt != "" {
		require.NoError(t, w.WriteField("alt", alt))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestAPIUploadImage(t *testing.T) {
	ta := setupTestApp(t)

	upload := func(filename, contentType string, data []byte, token string) *httptest.ResponseRecorder {
		body, ct := multipartUpload(t, filename, contentType, data, "cover")
		req := httptest.NewRequest(http.MethodPost, "/api/images/upload", body)
		req.Header.Set("Content-Type", ct)
		return ta.request(req, token)
	}

	rec := upload("dot.png", "image/png", testPNG(t, 4, 4), ta.token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	img := decode[Image](t, rec)
	assert.True(t, strings.HasPrefix(img.URL, "/uploads/"))
	assert.Equal(t, 4, img.Width)

	served := ta.do(http.MethodGet, img.URL, "", "")
	assert.Equal(t, http.StatusOK, served.Code)

	rec = upload("doc.pdf", "application/pdf", []byte("%PDF-1.4"), ta.token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid file type", decode[errorResponse](t, rec).Error)

	rec = upload("dot.png", "image/png", testPNG(t, 1, 1), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/images/upload", strings.NewReader(""))
	rec = ta.request(req, ta.token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ta.do(http.MethodGet, "/api/images", "", ta.token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]Image](t, rec), 1)
}

func TestAPITrackAndTopPosts(t *testing.T) {
	ta := setupTestApp(t)

	rec := ta.do(http.MethodPost, "/api/posts", helloPost, ta.token)
	require.Equal(t, http.StatusCreated, rec.Code)
	post := decode[Post](t, rec)

	for _, body := range []string{`{"postId":"` + post.ID + `"}`, `{"postId":"` + post.ID + `","readingTime":42}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/analytics/track", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "Mozilla/5.0")
		rec = ta.request(req, "")
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.NotContains(t, rec.Body.String(), "192.0.2.10")
	}

	rec = ta.do(http.MethodPost, "/api/analytics/track", `{"postId":"missing"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ta.do(http.MethodGet, "/api/analytics/posts", "", ta.token)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats []struct {
		Slug           string  `json:"slug"`
		Views          int     `json:"views"`
		AvgReadingTime float64 `json:"avgReadingTime"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Len(t, stats, 1)
	assert.Equal(t, "hello", stats[0].Slug)
	assert.Equal(t, 1, stats[0].Views)
	assert.Equal(t, 42.0, stats[0].AvgReadingTime)
}

func TestAPIWithoutAnalytics(t *testing.T) {
	dir := t.TempDir()
	a := New(SiteConfig{SessionSecret: "s", DatabasePath: filepath.Join(dir, "db.sqlite"), DisableAnalytics: true},
		stubViews(), WithLogger(zap.NewNop()), WithStaticDir(dir))
	require.NoError(t, a.Init(context.Background()))
	t.Cleanup(func() { a.Close() })

	req := httptest.NewRequest(http.MethodPost, "/api/analytics/track", strings.NewReader(`{"postId":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInitRequiresSessionSecret(t *testing.T) {
	a := New(SiteConfig{DatabasePath: filepath.Join(t.TempDir(), "db.sqlite")}, stubViews(), WithLogger(zap.NewNop()))
	assert.Error(t, a.Init(context.Background()))
}

func TestInitReleasesOnFailure(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	dir := t.TempDir()
	a := New(SiteConfig{SessionSecret: "s", DatabasePath: filepath.Join(dir, "db.sqlite")},
		stubViews(), WithLogger(zap.NewNop()), WithStaticDir(dir))

	// The store opens fine; the analytics schema step then sees the
	// cancelled context.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := a.Init(ctx)
	require.ErrorIs(t, err, context.Canceled)

	assert.Nil(t, a.Store, "store closed")
	assert.Nil(t, a.loginLimiter, "limiter stopped")
	assert.False(t, a.initialized)
	assert.NoError(t, a.Close())
}
