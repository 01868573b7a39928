package favicon

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vemetric/favicon-api/imgproc"
)

// FetchFirst tries the ranked candidates strictly in order, never in
// parallel, and returns the first one that transfers, fits the byte limit
// and sniffs as an image. A rejected candidate is abandoned with no retry.
// Full exhaustion, or expiry of the caller's aggregate deadline, returns
// ErrNotFound.
func (f *Fetcher) FetchFirst(ctx context.Context, cands []Candidate) (*Asset, error) {
	for _, c := range cands {
		if ctx.Err() != nil {
			return nil, ErrNotFound
		}
		asset, err := f.fetchCandidate(ctx, c)
		if err != nil {
			f.cfg.Logger.Debug("candidate rejected", "url", c.URL, "score", c.Score, "error", err)
			continue
		}
		return asset, nil
	}
	return nil, ErrNotFound
}

func (f *Fetcher) fetchCandidate(ctx context.Context, c Candidate) (*Asset, error) {
	if strings.HasPrefix(c.URL, "data:") {
		body, err := decodeDataURI(c.URL)
		if err != nil {
			return nil, err
		}
		return f.acceptBody(body, c.Origin, c.URL)
	}

	body, err := f.fetchBytes(ctx, c.URL)
	if err != nil {
		return nil, err
	}
	return f.acceptBody(body, c.Origin, c.URL)
}

// acceptBody applies the acceptance gates: non-empty, within MaxBytes, and a
// passing image sniff (magic numbers or vector tag, not a full decode).
func (f *Fetcher) acceptBody(body []byte, origin Origin, url string) (*Asset, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("empty body")
	}
	if int64(len(body)) > f.cfg.MaxBytes {
		return nil, fmt.Errorf("body exceeds %d bytes", f.cfg.MaxBytes)
	}
	format := imgproc.Detect(body)
	if format == imgproc.FormatUnknown {
		return nil, fmt.Errorf("not an image")
	}
	return &Asset{Bytes: body, Format: format, Origin: origin, URL: url}, nil
}

// fetchBytes issues one bounded GET and reads at most MaxBytes+1 so an
// oversize payload is detected without an unbounded read.
func (f *Fetcher) fetchBytes(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "image/*,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// decodeDataURI decodes a base64 data URI. Non-base64 data URIs are rejected;
// the candidate chain simply advances.
func decodeDataURI(uri string) ([]byte, error) {
	rest := strings.TrimPrefix(uri, "data:")
	meta, data, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("data URI: no comma separator")
	}
	if !strings.Contains(meta, ";base64") {
		return nil, fmt.Errorf("data URI: not base64")
	}
	body, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		body, err = base64.URLEncoding.DecodeString(data)
		if err != nil {
			return nil, fmt.Errorf("data URI: %w", err)
		}
	}
	return body, nil
}
