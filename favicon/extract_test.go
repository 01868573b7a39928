package favicon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestExtractLinks(t *testing.T) {
	base := mustParse(t, "https://site.example/deep/page")
	body := []byte(`<!doctype html><html><head>
		<link rel="icon" href="/favicon.svg" type="image/svg+xml">
		<link rel="shortcut icon" href="icons/fav.ico">
		<link rel="apple-touch-icon" sizes="180x180" href="//cdn.example/touch.png">
		<link rel="mask-icon" href="https://cdn.example/mask.svg" color="#000">
		<link rel="icon" sizes="16x16 32x32" type="image/png" href="/fav32.png">
		<link rel="icon" href="data:image/png;base64,iVBORw0KGgo=">
		<link rel="stylesheet" href="/app.css">
		<link rel="manifest" href="/manifest.json">
	</head><body></body></html>`)

	cands := extractLinks(body, base)
	if len(cands) != 6 {
		t.Fatalf("got %d candidates, want 6", len(cands))
	}

	tests := []struct {
		url    string
		size   int
		format string
		rel    string
	}{
		{"https://site.example/favicon.svg", 0, "svg", "icon"},
		{"https://site.example/icons/fav.ico", 0, "ico", "shortcut icon"},
		{"https://cdn.example/touch.png", 180, "png", "apple-touch-icon"},
		{"https://cdn.example/mask.svg", 0, "svg", "mask-icon"},
		{"https://site.example/fav32.png", 16, "png", "icon"},
		{"data:image/png;base64,iVBORw0KGgo=", 0, "png", "icon"},
	}
	for i, tt := range tests {
		c := cands[i]
		if c.URL != tt.url || c.Size != tt.size || c.Format != tt.format || c.Rel != tt.rel {
			t.Errorf("candidate %d = %+v, want %+v", i, c, tt)
		}
		if c.Origin != OriginMarkup {
			t.Errorf("candidate %d origin = %q", i, c.Origin)
		}
	}
}

func TestResolveHref(t *testing.T) {
	base := mustParse(t, "https://site.example/some/page")
	tests := []struct {
		href string
		want string
	}{
		{"https://other.example/i.png", "https://other.example/i.png"},
		{"//cdn.example/i.png", "https://cdn.example/i.png"},
		{"/i.png", "https://site.example/i.png"},
		{"i.png", "https://site.example/i.png"},
		{"data:image/gif;base64,R0lGOD==", "data:image/gif;base64,R0lGOD=="},
	}
	for _, tt := range tests {
		if got := resolveHref(base, tt.href); got != tt.want {
			t.Errorf("resolveHref(%q) = %q, want %q", tt.href, got, tt.want)
		}
	}
}

func TestFormatHint(t *testing.T) {
	tests := []struct {
		typ, url string
		want     string
	}{
		{"image/svg+xml", "https://a/x", "svg"},
		{"image/x-icon", "https://a/x", "ico"},
		{"image/vnd.microsoft.icon", "https://a/x", "ico"},
		{"image/jpeg", "https://a/x", "jpg"},
		{"", "https://a/icon.webp", "webp"},
		{"", "https://a/icon.PNG?v=3", "png"},
		{"", "data:image/svg+xml;base64,PHN2Zz4=", "svg"},
		{"", "https://a/icon", ""},
		{"", "https://a/icon.txt", ""},
	}
	for _, tt := range tests {
		if got := formatHint(tt.typ, tt.url); got != tt.want {
			t.Errorf("formatHint(%q, %q) = %q, want %q", tt.typ, tt.url, got, tt.want)
		}
	}
}

func TestDiscover_WellKnownAlwaysPresent(t *testing.T) {
	// WHAT: Even when the page is unreachable, the two well-known paths are
	// synthesized against the originally requested origin.
	// WHY: Dead or blocking HTML must not prevent trying /favicon.ico.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	f := NewFetcher(Config{})
	cands := f.Discover(context.Background(), mustParse(t, srv.URL))

	var wellKnown []Candidate
	for _, c := range cands {
		if c.Origin == OriginWellKnown {
			wellKnown = append(wellKnown, c)
		}
	}
	if len(wellKnown) != 2 {
		t.Fatalf("got %d well-known candidates, want 2", len(wellKnown))
	}
	if wellKnown[0].URL != srv.URL+"/favicon.ico" {
		t.Errorf("first well-known: %s", wellKnown[0].URL)
	}
	if wellKnown[1].URL != srv.URL+"/apple-touch-icon.png" {
		t.Errorf("second well-known: %s", wellKnown[1].URL)
	}
}

func TestDiscover_ManifestCandidates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head></head></html>`))
	})
	mux.HandleFunc("/manifest.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/manifest+json")
		w.Write([]byte(`{"name":"app","icons":[
			{"src":"/icon-192.png","sizes":"192x192","type":"image/png"},
			{"src":"icons/icon-512.png","sizes":"512x512"},
			{"src":""}
		]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := NewFetcher(Config{})
	cands := f.Discover(context.Background(), mustParse(t, srv.URL))

	var manifest []Candidate
	for _, c := range cands {
		if c.Origin == OriginManifest {
			manifest = append(manifest, c)
		}
	}
	if len(manifest) != 2 {
		t.Fatalf("got %d manifest candidates, want 2", len(manifest))
	}
	if manifest[0].URL != srv.URL+"/icon-192.png" || manifest[0].Size != 192 || manifest[0].Format != "png" {
		t.Errorf("manifest[0] = %+v", manifest[0])
	}
	if manifest[1].URL != srv.URL+"/icons/icon-512.png" || manifest[1].Size != 512 {
		t.Errorf("manifest[1] = %+v", manifest[1])
	}
}

func TestDiscover_ManifestFailureSwallowed(t *testing.T) {
	// WHAT: Broken manifest JSON yields no candidates and no error.
	// WHY: A missing or malformed manifest is not a pipeline failure.
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><link rel="icon" href="/fav.png"></head></html>`))
	})
	mux.HandleFunc("/manifest.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := NewFetcher(Config{})
	cands := f.Discover(context.Background(), mustParse(t, srv.URL))
	for _, c := range cands {
		if c.Origin == OriginManifest {
			t.Errorf("unexpected manifest candidate: %+v", c)
		}
	}
	// Markup and well-known candidates are unaffected.
	if len(cands) != 3 {
		t.Errorf("got %d candidates, want 3", len(cands))
	}
}

func TestDeclaredSize(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"32x32", 32},
		{"16x16 32x32", 16},
		{"any", 0},
		{"", 0},
		{"180X180", 180},
	}
	for _, tt := range tests {
		if got := declaredSize(tt.in); got != tt.want {
			t.Errorf("declaredSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
