package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/webvault/adaptive-rate-limiter/pkg/conf"
	"github.com/webvault/adaptive-rate-limiter/pkg/limiter"
	"github.com/webvault/adaptive-rate-limiter/pkg/middleware"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg := conf.Default()
	if *configPath != "" {
		loaded, err := conf.Load(*configPath)
		if err != nil {
			logger.Error("failed to load configuration", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	store, err := buildStore(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize counter store", "error", err)
		os.Exit(1)
	}

	registry, err := cfg.BuildRegistry()
	if err != nil {
		logger.Error("invalid route policies", "error", err)
		os.Exit(1)
	}

	engine := limiter.NewEngine(store, registry, limiter.WithLogger(logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var guard *middleware.FloodGuard
	if cfg.Guard != nil {
		guard = middleware.NewFloodGuard(cfg.Guard.RPS, cfg.Guard.Burst)
		guard.StartJanitor(ctx)
	}

	limit := middleware.New(middleware.Options{
		Engine:             engine,
		Disabled:           !cfg.Enabled,
		HealthPaths:        cfg.HealthPaths,
		AdminBypass:        cfg.AdminBypass,
		TrustXForwardedFor: cfg.TrustXForwardedFor,
		Guard:              guard,
		Logger:             logger,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/api/v1/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong\n"))
	})
	mux.HandleFunc("GET /admin/rate-limits/status", statusHandler(engine))
	mux.HandleFunc("POST /admin/rate-limits/reset", resetHandler(engine, logger))

	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      limit(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", cfg.Listen, "redis", cfg.Redis.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// buildStore connects to Redis, falling back to the process-local store so
// a single instance still works without one.
func buildStore(cfg *conf.Config, logger *slog.Logger) (limiter.CounterStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	opts := []limiter.RedisOption{}
	if cfg.Redis.Prefix != "" {
		opts = append(opts, limiter.WithPrefix(cfg.Redis.Prefix))
	}
	if cfg.Redis.TimeoutMS > 0 {
		opts = append(opts, limiter.WithTimeout(time.Duration(cfg.Redis.TimeoutMS)*time.Millisecond))
	}

	store, err := limiter.NewRedisStore(client, opts...)
	if err != nil {
		logger.Warn("redis unreachable, using in-process counters", "addr", cfg.Redis.Addr, "error", err)
		return limiter.NewMemoryStore(nil), nil
	}
	return store, nil
}

func statusHandler(engine *limiter.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identifier := r.URL.Query().Get("identifier")
		endpoint := r.URL.Query().Get("endpoint")
		if identifier == "" || endpoint == "" {
			http.Error(w, "identifier and endpoint are required", http.StatusBadRequest)
			return
		}
		dec, err := engine.Status(r.Context(), identifier, endpoint)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"allowed":   dec.Allowed,
			"unlimited": dec.Unlimited,
			"limit":     dec.Limit,
			"remaining": dec.Remaining,
			"reset":     dec.Reset,
			"algorithm": dec.Algorithm.String(),
		})
	}
}

func resetHandler(engine *limiter.Engine, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pattern := r.URL.Query().Get("pattern")
		if pattern == "" {
			http.Error(w, "pattern is required", http.StatusBadRequest)
			return
		}
		deleted, err := engine.BulkReset(r.Context(), pattern)
		if err != nil {
			logger.Error("bulk reset failed", "pattern", pattern, "error", err)
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"deleted": deleted})
	}
}
