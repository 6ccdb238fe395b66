// Package analytics records privacy-preserving page views for blog posts.
//
// Raw IP addresses are never stored: each view keeps an HMAC-SHA256 digest
// of the address keyed by a per-installation salt, which is enough to count
// approximate unique readers without retaining identifying data.
package analytics

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const saltKey = "hash_salt"

// MinDwell is how long a reader has to stay on a post before the tracker
// sends a second record carrying the reading time. Each visit therefore
// writes one row without readingTime and at most one row with it.
const MinDwell = 5 * time.Second

// ErrUnknownPost is returned when a view references a post that does not exist.
var ErrUnknownPost = errors.New("unknown post")

// PageView is a single recorded read of a post. Rows are append-only.
type PageView struct {
	ID          string    `json:"id"`
	PostID      string    `json:"postId"`
	IPHash      string    `json:"-"`
	UserAgent   *string   `json:"userAgent"`
	ReadingTime *int      `json:"readingTime"`
	CreatedAt   time.Time `json:"createdAt"`
}

// TrackInput is the body accepted by the track endpoint.
type TrackInput struct {
	PostID      string `json:"postId" validate:"required"`
	ReadingTime *int   `json:"readingTime" validate:"omitempty,min=0,max=86400"`
}

// PostStat aggregates the views of one post. Views counts visits (rows
// without a reading time); AvgReadingTime averages the follow-up rows.
type PostStat struct {
	PostID         string  `json:"postId"`
	Slug           string  `json:"slug"`
	Title          string  `json:"title"`
	Views          int     `json:"views"`
	UniqueVisitors int     `json:"uniqueVisitors"`
	AvgReadingTime float64 `json:"avgReadingTime"`
}

// Hasher produces keyed one-way digests of IP addresses.
type Hasher struct {
	key []byte
}

// NewHasher returns a Hasher keyed by salt.
func NewHasher(salt []byte) *Hasher {
	return &Hasher{key: append([]byte(nil), salt...)}
}

// LoadHasher reads the installation salt from the settings table, creating
// and persisting a random one on first use.
func LoadHasher(ctx context.Context, store *Store) (*Hasher, error) {
	s, err := store.GetSetting(ctx, saltKey)
	if err != nil {
		return nil, fmt.Errorf("read hash salt: %w", err)
	}
	if s == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("generate salt: %w", err)
		}
		s = hex.EncodeToString(b)
		// Another process may have won the race; keep whatever is stored.
		if s, err = store.InitSetting(ctx, saltKey, s); err != nil {
			return nil, fmt.Errorf("store hash salt: %w", err)
		}
	}
	salt, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode hash salt: %w", err)
	}
	return NewHasher(salt), nil
}

// HashIP returns the hex HMAC-SHA256 of ip.
func (h *Hasher) HashIP(ip string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(ip))
	return hex.EncodeToString(mac.Sum(nil))
}

// IsBot checks if the User-Agent is likely a bot/crawler.
func IsBot(ua string) bool {
	ua = strings.ToLower(ua)
	bots := []string{
		"bot", "crawler", "spider", "crawl", "slurp", "scrape",
		"googlebot", "bingbot", "yandex", "baidu", "duckduckbot",
		"facebookexternalhit", "twitterbot", "linkedinbot",
		"ahrefsbot", "semrushbot", "mj12bot", "dotbot",
		"headlesschrome", "curl/", "wget/", "python-requests",
	}
	for _, bot := range bots {
		if strings.Contains(ua, bot) {
			return true
		}
	}
	return false
}
