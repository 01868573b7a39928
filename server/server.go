// Package server exposes the resolver over HTTP with cache-friendly
// response semantics. Persistent caching itself is delegated to a fronting
// proxy or CDN; this layer only emits the headers that make that work.
package server

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vemetric/favicon-api/favicon"
	"github.com/vemetric/favicon-api/imgproc"
	"github.com/vemetric/favicon-api/resolvelog"
	"github.com/vemetric/favicon-api/safeurl"
)

// MinSize and MaxSize bound the size query parameter.
const (
	MinSize = 16
	MaxSize = 512
)

// invalidURLMessage is shared by malformed input and SSRF-blocked input so
// an external prober gets no distinguishing oracle.
const invalidURLMessage = "invalid URL or domain"

// Config configures the HTTP layer.
type Config struct {
	Resolver *favicon.Resolver

	// Log, when set, records resolution outcomes for /stats.
	Log *resolvelog.Store

	// SuccessTTL / DefaultTTL / ErrorTTL are the Cache-Control max-age
	// values for resolved icons, default-image responses and errors.
	SuccessTTL time.Duration
	DefaultTTL time.Duration
	ErrorTTL   time.Duration

	// RootRedirect, when set, is where a bare GET / is redirected.
	// Empty means 404.
	RootRedirect string

	// RateLimit enables per-IP limiting when MaxRequests > 0.
	RateLimit RateLimitConfig

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.SuccessTTL <= 0 {
		c.SuccessTTL = 7 * 24 * time.Hour
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = 24 * time.Hour
	}
	if c.ErrorTTL <= 0 {
		c.ErrorTTL = 5 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

type server struct {
	cfg Config
}

// New builds the router.
func New(cfg Config) http.Handler {
	cfg.defaults()
	s := &server{cfg: cfg}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(responseHeaders)
	if cfg.RateLimit.MaxRequests > 0 {
		r.Use(newRateLimiter(cfg.RateLimit).middleware)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Get("/", s.handleRoot)
	r.Get("/*", s.handleIcon)
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Log == nil {
		writeError(w, http.StatusNotFound, "stats not enabled")
		return
	}
	stats, err := s.cfg.Log.Stats(r.Context())
	if err != nil {
		s.cfg.Logger.Error("stats query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if s.cfg.RootRedirect != "" {
		http.Redirect(w, r, s.cfg.RootRedirect, http.StatusFound)
		return
	}
	s.errorHeaders(w)
	writeError(w, http.StatusNotFound, "no domain supplied")
}

// iconResponse is the response=json body.
type iconResponse struct {
	URL       string `json:"url"`
	SourceURL string `json:"sourceUrl"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Format    string `json:"format"`
	Bytes     int    `json:"bytes"`
	Source    string `json:"source"`
}

func (s *server) handleIcon(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	target, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil || target == "" {
		s.errorHeaders(w)
		writeError(w, http.StatusBadRequest, invalidURLMessage)
		return
	}

	req, respMode, err := s.parseQuery(r, target)
	if err != nil {
		s.errorHeaders(w)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.cfg.Resolver.Resolve(r.Context(), req)
	switch {
	case errors.Is(err, safeurl.ErrInvalid), errors.Is(err, safeurl.ErrBlocked):
		s.errorHeaders(w)
		writeError(w, http.StatusBadRequest, invalidURLMessage)
		return
	case err != nil:
		s.cfg.Logger.Error("resolve failed", "target", target, "error", err)
		s.errorHeaders(w)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if s.cfg.Log != nil {
		s.cfg.Log.RecordAsync(&resolvelog.Entry{
			Domain:   hostOf(res.URL),
			Source:   string(res.Source),
			Format:   string(res.Format),
			Status:   http.StatusOK,
			Duration: time.Since(start),
		})
	}

	ttl := s.cfg.SuccessTTL
	if res.Source == favicon.OriginDefault {
		ttl = s.cfg.DefaultTTL
	}
	etag := contentETag(res.Bytes)
	s.cacheHeaders(w, ttl, etag)

	if etagMatch(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	if respMode == "json" {
		writeJSON(w, http.StatusOK, iconResponse{
			URL:       res.URL,
			SourceURL: res.SourceURL,
			Width:     res.Width,
			Height:    res.Height,
			Format:    string(res.Format),
			Bytes:     len(res.Bytes),
			Source:    string(res.Source),
		})
		return
	}

	w.Header().Set("Content-Type", res.Format.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Bytes)))
	w.WriteHeader(http.StatusOK)
	w.Write(res.Bytes)
}

// parseQuery validates the query parameters and builds a resolver request.
func (s *server) parseQuery(r *http.Request, target string) (favicon.Request, string, error) {
	q := r.URL.Query()
	req := favicon.Request{Target: target, DefaultURL: q.Get("default")}

	respMode := q.Get("response")
	if respMode == "" {
		respMode = "image"
	}
	if respMode != "image" && respMode != "json" {
		return req, "", fmt.Errorf("response must be image or json")
	}

	if v := q.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < MinSize || n > MaxSize {
			return req, "", fmt.Errorf("size must be an integer between %d and %d", MinSize, MaxSize)
		}
		req.Size = n
	}

	if v := q.Get("format"); v != "" {
		f, ok := imgproc.ParseFormat(v)
		if !ok || (f != imgproc.FormatPNG && f != imgproc.FormatJPEG && f != imgproc.FormatWebP) {
			return req, "", fmt.Errorf("format must be png, jpg or webp")
		}
		req.Format = f
	}

	return req, respMode, nil
}

// cacheHeaders marks a successful response cacheable by any shared cache.
func (s *server) cacheHeaders(w http.ResponseWriter, ttl time.Duration, etag string) {
	h := w.Header()
	h.Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(ttl.Seconds())))
	h.Set("ETag", etag)
	h.Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
	h.Set("Vary", "Accept")
}

// errorHeaders keep failures out of shared caches so a retrying client or
// CDN does not pin them for long.
func (s *server) errorHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", fmt.Sprintf("max-age=%d, no-cache", int(s.cfg.ErrorTTL.Seconds())))
}

func contentETag(body []byte) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf(`"%x"`, sum[:16])
}

// etagMatch reports whether an If-None-Match header value matches etag.
// Handles comma-separated lists, weak validators and the wildcard.
func etagMatch(header, etag string) bool {
	if strings.TrimSpace(header) == "*" {
		return true
	}
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		part = strings.TrimPrefix(part, "W/")
		if part != "" && part == etag {
			return true
		}
	}
	return false
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Hostname()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// responseHeaders sets the headers every response carries, including the
// open CORS policy an embeddable icon API needs.
func responseHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}
