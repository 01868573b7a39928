package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/vemetric/favicon-api/favicon"
	"github.com/vemetric/favicon-api/resolvelog"
	"github.com/vemetric/favicon-api/server"
)

// fileConfig is the optional YAML config file (CONFIG_FILE env). Environment
// variables win over file values for the settings both can express.
type fileConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	Budget            time.Duration `yaml:"budget"`
	MaxBytes          int64         `yaml:"max_bytes"`
	MaxRedirects      int           `yaml:"max_redirects"`
	UserAgent         string        `yaml:"user_agent"`
	DefaultImageURL   string        `yaml:"default_image_url"`
	RemoteFallbackURL string        `yaml:"remote_fallback_url"`
	RootRedirect      string        `yaml:"root_redirect"`
	SuccessTTL        time.Duration `yaml:"success_ttl"`
	DefaultTTL        time.Duration `yaml:"default_ttl"`
	ErrorTTL          time.Duration `yaml:"error_ttl"`
	RateLimit         struct {
		MaxRequests int           `yaml:"max_requests"`
		Window      time.Duration `yaml:"window"`
	} `yaml:"rate_limit"`
}

func loadFileConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &fc, nil
}

func main() {
	port := env("PORT", "8080")
	logLevel := env("LOG_LEVEL", "info")

	// Logging.
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fc := &fileConfig{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		loaded, err := loadFileConfig(path)
		if err != nil {
			slog.Error("config file", "path", path, "error", err)
			os.Exit(1)
		}
		fc = loaded
		slog.Info("config file loaded", "path", path)
	}

	resolver := favicon.New(favicon.Config{
		Timeout:           fc.Timeout,
		Budget:            fc.Budget,
		MaxBytes:          fc.MaxBytes,
		MaxRedirects:      fc.MaxRedirects,
		UserAgent:         env("USER_AGENT", fc.UserAgent),
		BlockPrivate:      envBool("BLOCK_PRIVATE", true),
		DefaultImageURL:   env("DEFAULT_IMAGE_URL", fc.DefaultImageURL),
		RemoteFallbackURL: env("REMOTE_FALLBACK_URL", fc.RemoteFallbackURL),
		Logger:            logger,
	})

	// Stats DB is optional; without it /stats returns 404 and resolutions
	// are not recorded.
	var store *resolvelog.Store
	if statsPath := os.Getenv("STATS_DB"); statsPath != "" {
		if dir := filepath.Dir(statsPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				slog.Error("stats db dir", "error", err)
				os.Exit(1)
			}
		}
		db, err := sql.Open("sqlite", statsPath)
		if err != nil {
			slog.Error("stats db", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		store = resolvelog.NewStore(db)
		if err := store.Init(); err != nil {
			slog.Error("stats init", "error", err)
			os.Exit(1)
		}
		defer store.Close()
		slog.Info("stats db open", "path", statsPath)
	}

	handler := server.New(server.Config{
		Resolver:     resolver,
		Log:          store,
		SuccessTTL:   fc.SuccessTTL,
		DefaultTTL:   fc.DefaultTTL,
		ErrorTTL:     fc.ErrorTTL,
		RootRedirect: env("ROOT_REDIRECT", fc.RootRedirect),
		RateLimit: server.RateLimitConfig{
			MaxRequests: envInt("RATE_LIMIT", fc.RateLimit.MaxRequests),
			Window:      fc.RateLimit.Window,
			Done:        ctx.Done(),
		},
		Logger: logger,
	})

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}
