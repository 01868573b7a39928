package favicon

import (
	"log/slog"
	"time"
)

// Config configures the resolver pipeline.
type Config struct {
	// Timeout bounds each individual network call (HTML, manifest,
	// candidate, remote fallback, default image). Default: 5s.
	Timeout time.Duration

	// Budget bounds the whole discovery-and-fetch sequence for one
	// request. Expiry short-circuits to the fallback path. Default: 12s.
	Budget time.Duration

	// MaxBytes is the largest acceptable icon body. Default: 5 MiB.
	MaxBytes int64

	// MaxHTMLBytes caps the HTML read during discovery. Default: 2 MiB.
	MaxHTMLBytes int64

	// MaxRedirects caps followed redirects per call. Default: 5.
	MaxRedirects int

	// UserAgent is the honest identifying header sent on first attempts.
	UserAgent string

	// BrowserUserAgent is the generic browser header used for the single
	// HTML retry; many sites block unrecognized clients for HTML while
	// serving static assets openly.
	BrowserUserAgent string

	// BlockPrivate enables the syntactic SSRF policy on target URLs and
	// every redirect hop.
	BlockPrivate bool

	// DefaultImageURL, when set, is fetched once and cached for the
	// process lifetime as the total-failure fallback. When empty or
	// unreachable, a bundled vector icon is used instead.
	DefaultImageURL string

	// RemoteFallbackURL is a printf-style template with one %s verb for
	// the domain (e.g. a public icon lookup service). Empty disables the
	// remote fallback tier.
	RemoteFallbackURL string

	// Logger for debug/warn messages.
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.Budget <= 0 {
		c.Budget = 12 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 5 * 1024 * 1024
	}
	if c.MaxHTMLBytes <= 0 {
		c.MaxHTMLBytes = 2 * 1024 * 1024
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = 5
	}
	if c.UserAgent == "" {
		c.UserAgent = "favicon-api/1.0 (+https://github.com/vemetric/favicon-api)"
	}
	if c.BrowserUserAgent == "" {
		c.BrowserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
