package favicon

import (
	"context"
	"errors"
	"net/url"

	"github.com/vemetric/favicon-api/imgproc"
	"github.com/vemetric/favicon-api/safeurl"
)

// Request describes one icon resolution.
type Request struct {
	// Target is the user-supplied domain or URL.
	Target string
	// Size, when positive, requests an exact square output edge.
	Size int
	// Format, when set, requests a raster output format.
	Format imgproc.Format
	// DefaultURL, when set, replaces the cached process default for this
	// request only and is fetched fresh.
	DefaultURL string
}

// Resolver runs the full pipeline: validate, discover, rank, fetch in rank
// order, fall back, normalize. Safe for concurrent use; the only shared
// mutable state is the once-initialized fallback record.
type Resolver struct {
	cfg     Config
	fetcher *Fetcher
}

// New creates a Resolver.
func New(cfg Config) *Resolver {
	cfg.defaults()
	return &Resolver{cfg: cfg, fetcher: NewFetcher(cfg)}
}

// Resolve returns the best available icon for req.Target. Failures of the
// target site are absorbed by the fallback tiers; the only errors returned
// are safeurl.ErrInvalid and safeurl.ErrBlocked for the request itself.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Resolved, error) {
	policy := safeurl.Policy{BlockPrivate: r.cfg.BlockPrivate}
	target, err := policy.Validate(req.Target)
	if err != nil {
		return nil, err
	}

	asset := r.findIcon(ctx, target, req)

	norm := imgproc.Normalize(asset.Bytes, imgproc.Options{Size: req.Size, Format: req.Format})
	return &Resolved{
		Bytes:     norm.Bytes,
		Format:    norm.Format,
		Width:     norm.Width,
		Height:    norm.Height,
		URL:       target.String(),
		SourceURL: asset.URL,
		Source:    asset.Origin,
	}, nil
}

// findIcon walks the fallback tiers in strict priority order: ranked
// candidates, remote lookup service, default image. The aggregate budget
// bounds the first two tiers; its expiry is treated identically to
// exhaustion. This stage cannot fail; the default tier always produces.
func (r *Resolver) findIcon(ctx context.Context, target *url.URL, req Request) *Asset {
	bctx, cancel := context.WithTimeout(ctx, r.cfg.Budget)
	defer cancel()

	cands := Rank(r.fetcher.Discover(bctx, target))
	asset, err := r.fetcher.FetchFirst(bctx, cands)
	if err == nil {
		return asset
	}

	asset, err = r.fetcher.RemoteFallback(bctx, target.Hostname())
	if err == nil {
		return asset
	}
	if !errors.Is(err, ErrRemoteDisabled) {
		r.cfg.Logger.Debug("remote fallback failed", "host", target.Hostname(), "error", err)
	}

	// Default tier. A custom per-request default bypasses the cache; when
	// it fails the cached process default still applies.
	if req.DefaultURL != "" {
		if custom, err := r.fetcher.FetchCustomDefault(ctx, req.DefaultURL); err == nil {
			return custom
		}
	}
	rec := r.fetcher.DefaultIcon(ctx)
	return &Asset{Bytes: rec.Bytes, Format: rec.Format, Origin: OriginDefault, URL: rec.URL}
}
