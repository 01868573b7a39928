package favicon

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/vemetric/favicon-api/safeurl"
)

// Page is the outcome of an HTML fetch. FinalURL is the post-redirect URL;
// all later relative-link resolution must use its origin, not the origin
// that was originally requested.
type Page struct {
	Body     []byte
	FinalURL *url.URL
}

// Fetcher performs all outbound HTTP for the pipeline with bounded
// timeouts, capped redirects and SSRF re-validation on every hop.
type Fetcher struct {
	cfg    Config
	policy safeurl.Policy
	client *http.Client

	defaultOnce sync.Once
	defaultRec  FallbackRecord
}

// NewFetcher creates a Fetcher. The client carries no global timeout; each
// call derives its own deadline from Config.Timeout.
func NewFetcher(cfg Config) *Fetcher {
	cfg.defaults()
	policy := safeurl.Policy{BlockPrivate: cfg.BlockPrivate}
	return &Fetcher{
		cfg:    cfg,
		policy: policy,
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= cfg.MaxRedirects {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				if err := policy.ValidateURL(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked: %w", err)
				}
				return nil
			},
		},
	}
}

// FetchPage retrieves the HTML of u. The first attempt identifies honestly;
// on any failure it retries exactly once with a browser-like User-Agent.
// Both attempts failing is not an error: the pipeline degrades to well-known
// paths, so the result is (zero Page, false) rather than an error value.
func (f *Fetcher) FetchPage(ctx context.Context, u *url.URL) (Page, bool) {
	page, err := f.fetchHTML(ctx, u, f.cfg.UserAgent)
	if err == nil {
		return page, true
	}
	f.cfg.Logger.Debug("html fetch retrying with browser agent", "url", u.String(), "error", err)

	page, err = f.fetchHTML(ctx, u, f.cfg.BrowserUserAgent)
	if err != nil {
		f.cfg.Logger.Debug("html fetch failed", "url", u.String(), "error", err)
		return Page{}, false
	}
	return page, true
}

func (f *Fetcher) fetchHTML(ctx context.Context, u *url.URL, userAgent string) (Page, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Page{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Page{}, fmt.Errorf("http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxHTMLBytes))
	if err != nil {
		return Page{}, fmt.Errorf("read body: %w", err)
	}

	return Page{Body: body, FinalURL: resp.Request.URL}, nil
}
