package favicon

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vemetric/favicon-api/imgproc"
	"github.com/vemetric/favicon-api/safeurl"
)

// deadOrigin returns a URL whose port is closed, so every request to it
// fails fast with a connection error.
func deadOrigin(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	u := srv.URL
	srv.Close()
	return u
}

func TestResolve_HappyPath(t *testing.T) {
	icon := testPNG(t, 32)
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><link rel="icon" sizes="32x32" type="image/png" href="/icon.png"></head></html>`))
	})
	mux.HandleFunc("/icon.png", func(w http.ResponseWriter, r *http.Request) { w.Write(icon) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := New(Config{})
	res, err := r.Resolve(context.Background(), Request{Target: srv.URL})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Source != OriginMarkup {
		t.Errorf("source = %q", res.Source)
	}
	if res.SourceURL != srv.URL+"/icon.png" {
		t.Errorf("sourceUrl = %q", res.SourceURL)
	}
	if res.Format != imgproc.FormatPNG || res.Width != 32 || res.Height != 32 {
		t.Errorf("normalized: %s %dx%d", res.Format, res.Width, res.Height)
	}
}

func TestResolve_UnreachableSiteServesDefault(t *testing.T) {
	// WHAT: A syntactically valid domain with unreachable HTML and no
	// remote fallback resolves to the default image, never an error.
	// WHY: Failures of the target site are absorbed entirely by the
	// fallback chain; only invalid requests are user-visible.
	r := New(Config{Timeout: time.Second, Budget: 2 * time.Second})
	res, err := r.Resolve(context.Background(), Request{Target: deadOrigin(t)})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Source != OriginDefault {
		t.Errorf("source = %q, want default", res.Source)
	}
	if res.Format != imgproc.FormatSVG {
		t.Errorf("format = %q, want bundled svg", res.Format)
	}
	if !bytes.Equal(res.Bytes, bundledDefault) {
		t.Error("bytes differ from the bundled default icon")
	}
}

func TestResolve_InvalidInput(t *testing.T) {
	r := New(Config{})
	for _, target := range []string{"", "ftp://x", "https://"} {
		if _, err := r.Resolve(context.Background(), Request{Target: target}); !errors.Is(err, safeurl.ErrInvalid) {
			t.Errorf("Resolve(%q) err = %v, want ErrInvalid", target, err)
		}
	}
}

func TestResolve_BlockedAddress(t *testing.T) {
	r := New(Config{BlockPrivate: true})
	for _, target := range []string{"127.0.0.1", "localhost", "10.1.2.3", "192.168.0.1", "169.254.1.1"} {
		if _, err := r.Resolve(context.Background(), Request{Target: target}); !errors.Is(err, safeurl.ErrBlocked) {
			t.Errorf("Resolve(%q) err = %v, want ErrBlocked", target, err)
		}
	}
}

func TestResolve_RedirectMatchesDirect(t *testing.T) {
	// WHAT: Resolving a domain that redirects to a second domain yields the
	// same sourceUrl, format and source as resolving the target directly.
	// WHY: Relative links must resolve against the post-redirect origin.
	icon := testPNG(t, 16)
	destMux := http.NewServeMux()
	destMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><link rel="icon" href="/fav.png" type="image/png"></head></html>`))
	})
	destMux.HandleFunc("/fav.png", func(w http.ResponseWriter, r *http.Request) { w.Write(icon) })
	dest := httptest.NewServer(destMux)
	defer dest.Close()

	redirector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, dest.URL+r.URL.Path, http.StatusMovedPermanently)
	}))
	defer redirector.Close()

	r := New(Config{})
	viaRedirect, err := r.Resolve(context.Background(), Request{Target: redirector.URL})
	if err != nil {
		t.Fatalf("via redirect: %v", err)
	}
	direct, err := r.Resolve(context.Background(), Request{Target: dest.URL})
	if err != nil {
		t.Fatalf("direct: %v", err)
	}
	if viaRedirect.SourceURL != direct.SourceURL {
		t.Errorf("sourceUrl: %q != %q", viaRedirect.SourceURL, direct.SourceURL)
	}
	if viaRedirect.Format != direct.Format || viaRedirect.Source != direct.Source {
		t.Errorf("format/source mismatch: %s/%s vs %s/%s",
			viaRedirect.Format, viaRedirect.Source, direct.Format, direct.Source)
	}
}

func TestResolve_RemoteFallbackTier(t *testing.T) {
	icon := testPNG(t, 64)
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(icon)
	}))
	defer remote.Close()

	r := New(Config{
		Timeout:           time.Second,
		Budget:            2 * time.Second,
		RemoteFallbackURL: remote.URL + "/icons?domain=%s",
	})
	res, err := r.Resolve(context.Background(), Request{Target: deadOrigin(t)})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Source != OriginRemote {
		t.Errorf("source = %q, want remote-fallback", res.Source)
	}
}

func TestResolve_CustomDefaultBypassesCache(t *testing.T) {
	icon := testPNG(t, 24)
	var custom int
	customSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		custom++
		w.Write(icon)
	}))
	defer customSrv.Close()

	r := New(Config{Timeout: time.Second, Budget: 2 * time.Second})
	dead := deadOrigin(t)
	for i := 0; i < 2; i++ {
		res, err := r.Resolve(context.Background(), Request{Target: dead, DefaultURL: customSrv.URL + "/d.png"})
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if res.Source != OriginDefault || res.SourceURL != customSrv.URL+"/d.png" {
			t.Errorf("res = %s %s", res.Source, res.SourceURL)
		}
	}
	if custom != 2 {
		t.Errorf("custom default fetched %d times, want 2 (no caching)", custom)
	}
}

func TestResolve_NormalizesToRequestedSize(t *testing.T) {
	icon := testPNG(t, 16)
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><link rel="icon" href="/i.png" type="image/png"></head></html>`))
	})
	mux.HandleFunc("/i.png", func(w http.ResponseWriter, r *http.Request) { w.Write(icon) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := New(Config{})
	res, err := r.Resolve(context.Background(), Request{Target: srv.URL, Size: 64, Format: imgproc.FormatWebP})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Width != 64 || res.Height != 64 || res.Format != imgproc.FormatWebP {
		t.Errorf("normalized: %s %dx%d", res.Format, res.Width, res.Height)
	}
}

func TestDefaultIcon_InitializedOnce(t *testing.T) {
	// WHAT: The configured default image is fetched a single time across
	// concurrent first uses.
	// WHY: The fallback record is a process-lifetime singleton behind a
	// once guard, not a per-request fetch.
	icon := testPNG(t, 32)
	var fetches int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		w.Write(icon)
	}))
	defer srv.Close()

	f := NewFetcher(Config{DefaultImageURL: srv.URL + "/default.png"})
	done := make(chan FallbackRecord, 8)
	for i := 0; i < 8; i++ {
		go func() { done <- f.DefaultIcon(context.Background()) }()
	}
	for i := 0; i < 8; i++ {
		rec := <-done
		if !bytes.Equal(rec.Bytes, icon) {
			t.Error("record bytes differ")
		}
	}
	if fetches != 1 {
		t.Errorf("default fetched %d times, want 1", fetches)
	}
}
