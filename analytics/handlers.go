package analytics

import (
	"errors"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/eringen/insights/validation"
)

const maxUserAgentLen = 512

// Handler handles analytics HTTP requests.
type Handler struct {
	store          *Store
	hasher         *Hasher
	collectLimiter *rateLimiter
	log            *zap.Logger
}

// NewHandler creates a new analytics handler.
// The track endpoint is rate-limited to 60 requests per IP per minute.
func NewHandler(store *Store, hasher *Hasher, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		store:          store,
		hasher:         hasher,
		collectLimiter: newRateLimiter(60, time.Minute),
		log:            log,
	}
}

// Close stops the rate limiter's cleanup goroutine.
func (h *Handler) Close() {
	h.collectLimiter.close()
}

// RegisterRoutes mounts the track endpoint on g.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/analytics/track", h.Track)
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Track records a page view for a post.
func (h *Handler) Track(c echo.Context) error {
	ip := c.RealIP()
	if !h.collectLimiter.allow(ip) {
		return c.JSON(http.StatusTooManyRequests, errorBody{Error: "too many requests"})
	}

	var in TrackInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "invalid request body"})
	}
	if err := validation.Struct(in); err != nil {
		var verr *validation.Error
		if errors.As(err, &verr) {
			return c.JSON(http.StatusBadRequest, errorBody{Error: verr.Error(), Fields: verr.Fields})
		}
		return err
	}

	// Do Not Track and crawlers get a success reply but leave no row.
	userAgent := c.Request().UserAgent()
	if c.Request().Header.Get("DNT") == "1" || IsBot(userAgent) {
		return c.NoContent(http.StatusNoContent)
	}

	view := PageView{
		PostID:      in.PostID,
		IPHash:      h.hasher.HashIP(ip),
		ReadingTime: in.ReadingTime,
	}
	if userAgent != "" {
		userAgent = truncate(userAgent, maxUserAgentLen)
		view.UserAgent = &userAgent
	}
	view, err := h.store.RecordView(c.Request().Context(), view)
	if errors.Is(err, ErrUnknownPost) {
		return c.JSON(http.StatusBadRequest, errorBody{
			Error:  "unknown post",
			Fields: map[string]string{"postId": "does not match any post"},
		})
	}
	if err != nil {
		h.log.Error("record page view", zap.String("post_id", in.PostID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errorBody{Error: "internal server error"})
	}
	return c.JSON(http.StatusCreated, view)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
