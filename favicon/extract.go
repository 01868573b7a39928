package favicon

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// sizeRe matches the first numeric width of a "WxH" dimension pair, as found
// in sizes attributes ("32x32", "16x16 32x32") and manifest entries.
var sizeRe = regexp.MustCompile(`(\d+)[xX]\d+`)

// Discover collects icon candidates for target: markup links from the page
// HTML, web-manifest entries, and the two unconditional well-known paths.
// The well-known candidates use the originally requested origin so a dead
// page still yields something to try; markup and manifest resolution use the
// post-redirect origin.
func (f *Fetcher) Discover(ctx context.Context, target *url.URL) []Candidate {
	base := target
	var cands []Candidate

	if page, ok := f.FetchPage(ctx, target); ok {
		base = page.FinalURL
		cands = extractLinks(page.Body, base)
	}

	cands = append(cands, f.manifestCandidates(ctx, base)...)
	cands = append(cands, wellKnownCandidates(target)...)
	return cands
}

// extractLinks walks the parsed HTML and collects every link element whose
// rel attribute contains "icon" (shortcut, apple-touch and mask variants
// included).
func extractLinks(body []byte, base *url.URL) []Candidate {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var out []Candidate
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "link" {
			var rel, href, typ, sizes string
			for _, a := range n.Attr {
				switch strings.ToLower(a.Key) {
				case "rel":
					rel = strings.ToLower(strings.TrimSpace(a.Val))
				case "href":
					href = strings.TrimSpace(a.Val)
				case "type":
					typ = strings.ToLower(strings.TrimSpace(a.Val))
				case "sizes":
					sizes = strings.ToLower(strings.TrimSpace(a.Val))
				}
			}
			if href != "" && strings.Contains(rel, "icon") {
				resolved := resolveHref(base, href)
				out = append(out, Candidate{
					URL:    resolved,
					Size:   declaredSize(sizes),
					Format: formatHint(typ, resolved),
					Rel:    rel,
					Origin: OriginMarkup,
				})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

// resolveHref resolves a link href against the post-redirect base origin.
// Inline data URIs pass through unchanged; protocol-relative hrefs become
// https; root-relative hrefs join the origin; bare-relative hrefs join as a
// path segment.
func resolveHref(base *url.URL, href string) string {
	switch {
	case strings.HasPrefix(href, "data:"):
		return href
	case strings.HasPrefix(href, "//"):
		return "https:" + href
	case strings.Contains(href, "://"):
		return href
	case strings.HasPrefix(href, "/"):
		return origin(base) + href
	default:
		return origin(base) + "/" + href
	}
}

func origin(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}

// declaredSize returns the first numeric width of a WxH pair, or 0.
func declaredSize(sizes string) int {
	m := sizeRe.FindStringSubmatch(sizes)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// formatHint derives the declared format: explicit type attribute first,
// then the MIME prefix of an inline data URI, then the file extension.
func formatHint(typ, resolved string) string {
	if typ != "" {
		return formatFromMIME(typ)
	}
	if strings.HasPrefix(resolved, "data:") {
		meta := strings.TrimPrefix(resolved, "data:")
		if i := strings.IndexAny(meta, ";,"); i >= 0 {
			meta = meta[:i]
		}
		return formatFromMIME(meta)
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(stripQuery(resolved)), "."))
	switch ext {
	case "png", "gif", "webp", "svg", "ico", "jpg", "jpeg", "bmp":
		if ext == "jpeg" {
			return "jpg"
		}
		return ext
	}
	return ""
}

func stripQuery(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i]
	}
	return u
}

func formatFromMIME(m string) string {
	m = strings.ToLower(strings.TrimSpace(m))
	m = strings.TrimPrefix(m, "image/")
	switch m {
	case "svg+xml", "svg":
		return "svg"
	case "x-icon", "vnd.microsoft.icon", "ico":
		return "ico"
	case "jpeg", "jpg":
		return "jpg"
	case "png", "gif", "webp", "bmp":
		return m
	}
	return ""
}

// wellKnownCandidates are the two fixed fallback paths every origin is
// probed for, regardless of whether the HTML fetch succeeded.
func wellKnownCandidates(target *url.URL) []Candidate {
	o := origin(target)
	return []Candidate{
		{URL: o + "/favicon.ico", Format: "ico", Origin: OriginWellKnown},
		{URL: o + "/apple-touch-icon.png", Format: "png", Rel: "apple-touch-icon", Origin: OriginWellKnown},
	}
}

// webManifest is the subset of a web app manifest the extractor reads.
type webManifest struct {
	Icons []struct {
		Src   string `json:"src"`
		Sizes string `json:"sizes"`
		Type  string `json:"type"`
	} `json:"icons"`
}

// manifestCandidates fetches manifest.json at the origin and turns its icon
// entries into candidates. Every failure (network, status, parse, missing
// icons array) yields nil: a missing manifest is not a pipeline error.
func (f *Fetcher) manifestCandidates(ctx context.Context, base *url.URL) []Candidate {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	manifestURL := origin(base) + "/manifest.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxHTMLBytes))
	if err != nil {
		return nil
	}

	var m webManifest
	if err := json.Unmarshal(body, &m); err != nil {
		return nil
	}

	var out []Candidate
	for _, icon := range m.Icons {
		if icon.Src == "" {
			continue
		}
		resolved := resolveHref(base, icon.Src)
		out = append(out, Candidate{
			URL:    resolved,
			Size:   declaredSize(strings.ToLower(icon.Sizes)),
			Format: formatHint(strings.ToLower(icon.Type), resolved),
			Origin: OriginManifest,
		})
	}
	return out
}
