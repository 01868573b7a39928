package favicon

import (
	"context"
	_ "embed"
	"fmt"
	"net/url"

	"github.com/vemetric/favicon-api/imgproc"
)

//go:embed default.svg
var bundledDefault []byte

// FallbackRecord is the process-lifetime default image: fetched once from
// the configured URL, or the bundled vector icon when that is unset or
// unreachable. Read-only after creation.
type FallbackRecord struct {
	Bytes  []byte
	Format imgproc.Format
	URL    string // "" for the bundled icon
}

// RemoteFallback queries the configured external icon lookup service for
// host. Returns ErrRemoteDisabled when no provider is configured; any other
// failure advances the caller to the default-image tier.
func (f *Fetcher) RemoteFallback(ctx context.Context, host string) (*Asset, error) {
	if f.cfg.RemoteFallbackURL == "" {
		return nil, ErrRemoteDisabled
	}
	u := fmt.Sprintf(f.cfg.RemoteFallbackURL, url.QueryEscape(host))
	body, err := f.fetchBytes(ctx, u)
	if err != nil {
		return nil, err
	}
	return f.acceptBody(body, OriginRemote, u)
}

// DefaultIcon returns the process-wide fallback record, initializing it on
// first use. The once guard prevents duplicate concurrent fetches of the
// configured default URL; after initialization reads are lock-free.
func (f *Fetcher) DefaultIcon(ctx context.Context) FallbackRecord {
	f.defaultOnce.Do(func() {
		f.defaultRec = f.loadDefault(ctx)
	})
	return f.defaultRec
}

func (f *Fetcher) loadDefault(ctx context.Context) FallbackRecord {
	// The record outlives the request that happens to trigger
	// initialization; an aborted first request must not poison the cache.
	ctx = context.WithoutCancel(ctx)
	if f.cfg.DefaultImageURL != "" {
		if asset, err := f.fetchDefault(ctx, f.cfg.DefaultImageURL); err == nil {
			return FallbackRecord{Bytes: asset.Bytes, Format: asset.Format, URL: asset.URL}
		} else {
			f.cfg.Logger.Warn("default image unreachable, using bundled icon",
				"url", f.cfg.DefaultImageURL, "error", err)
		}
	}
	return FallbackRecord{Bytes: bundledDefault, Format: imgproc.FormatSVG}
}

// FetchCustomDefault fetches a caller-supplied default image URL. It
// bypasses the process cache and is fetched fresh on every use, trading
// latency for per-caller flexibility. The URL is subject to the SSRF policy.
func (f *Fetcher) FetchCustomDefault(ctx context.Context, rawURL string) (*Asset, error) {
	if err := f.policy.ValidateURL(rawURL); err != nil {
		return nil, err
	}
	return f.fetchDefault(ctx, rawURL)
}

func (f *Fetcher) fetchDefault(ctx context.Context, url string) (*Asset, error) {
	body, err := f.fetchBytes(ctx, url)
	if err != nil {
		return nil, err
	}
	return f.acceptBody(body, OriginDefault, url)
}
