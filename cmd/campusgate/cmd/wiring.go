package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/jmcleod/campusgate/api"
	"github.com/jmcleod/campusgate/backend"
	"github.com/jmcleod/campusgate/cache"
	cachememory "github.com/jmcleod/campusgate/cache/memory"
	cacheredis "github.com/jmcleod/campusgate/cache/redis"
	"github.com/jmcleod/campusgate/guard"
	"github.com/jmcleod/campusgate/internal/config"
	"github.com/jmcleod/campusgate/internal/logging"
	"github.com/jmcleod/campusgate/session"
	"github.com/jmcleod/campusgate/storage"
	bboltstorage "github.com/jmcleod/campusgate/storage/bbolt"
	"github.com/jmcleod/campusgate/storage/memory"
	"github.com/jmcleod/campusgate/storage/postgres"
	"github.com/jmcleod/campusgate/storage/sealed"
	"github.com/jmcleod/campusgate/web"
)

const (
	sessionSweepInterval   = time.Minute
	rateLimitSweepInterval = 5 * time.Minute
	cacheSweepInterval     = time.Minute
)

// app is the assembled server: its handler, the background loops that keep
// it tidy, and the resources to release on shutdown.
type app struct {
	handler    http.Handler
	background []func(ctx context.Context)
	closers    []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// run starts every background loop; they stop when ctx is cancelled.
func (a *app) run(ctx context.Context) {
	for _, fn := range a.background {
		go fn(ctx)
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{}

	repo, closeRepo, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeRepo)
	if cfg.StorageKey != "" {
		key, err := sealed.ParseKey(cfg.StorageKey)
		if err != nil {
			a.close()
			return nil, err
		}
		if repo, err = sealed.New(repo, key); err != nil {
			a.close()
			return nil, err
		}
	} else if !cfg.Development() && cfg.Storage != config.StorageMemory {
		logger.Warn().Msg("storage-key not set; session tokens are stored unencrypted")
	}

	backendOpts := []backend.Option{
		backend.WithHTTPClient(&http.Client{Timeout: cfg.BackendTimeoutDuration()}),
		backend.WithRefreshSkew(cfg.RefreshSkewDuration()),
		backend.WithLogger(logger.With().Str("component", "backend").Logger()),
	}
	readCache, closeCache, sweep, err := openCache(ctx, cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, closeCache)
	if readCache != nil {
		backendOpts = append(backendOpts, backend.WithCache(readCache, cfg.CacheTTLDuration()))
	}
	if sweep != nil {
		a.background = append(a.background, func(ctx context.Context) { every(ctx, cacheSweepInterval, sweep) })
	}
	client := backend.New(cfg.BackendURL, backendOpts...)

	sessions := session.NewManager(repo,
		session.WithManagerLogger(logger.With().Str("component", "session").Logger()),
		session.WithIdleTimeout(cfg.SessionIdleDuration()))
	a.background = append(a.background, func(ctx context.Context) { sessions.Run(ctx, sessionSweepInterval) })

	routes := guard.DefaultRoutes()
	restAPI := api.New(sessions, client, api.WithLogger(logger), api.WithRoutes(routes))
	a.background = append(a.background, func(ctx context.Context) { restAPI.Run(ctx, rateLimitSweepInterval) })

	handler, err := newRouter(restAPI, routes, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.handler = handler
	return a, nil
}

func newRouter(restAPI *api.API, routes *guard.Table, logger zerolog.Logger) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(api.SecurityHeaders)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	r.Mount("/api/v1", restAPI.Router())

	webHandler, err := web.Handler(api.CSPNonce, web.Gate(routes.Page(restAPI.SessionSource)))
	if err != nil {
		return nil, err
	}
	r.Handle("/*", restAPI.BrowserMiddleware(webHandler))
	return r, nil
}

func openStorage(ctx context.Context, cfg *config.Config) (storage.Repository, func(), error) {
	switch cfg.Storage {
	case config.StorageMemory:
		return memory.NewRepository(), func() {}, nil
	case config.StoragePostgres:
		repo, err := postgres.NewRepositoryFromDSN(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres storage: %w", err)
		}
		return repo, repo.Close, nil
	default:
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		repo, err := bboltstorage.NewRepositoryFromFile(filepath.Join(cfg.DataDir, "sessions.db"), nil)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open session storage: %w", err)
		}
		return repo, func() { repo.Close() }, nil
	}
}

// openCache returns the configured read cache, its closer, and a sweep
// function for caches that need periodic eviction. A nil cache disables
// caching.
func openCache(ctx context.Context, cfg *config.Config) (cache.Cache, func(), func(), error) {
	switch cfg.Cache {
	case config.CacheNone:
		return nil, func() {}, nil, nil
	case config.CacheRedis:
		c, err := cacheredis.NewFromAddr(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return c, func() { c.Close() }, nil, nil
	default:
		c := cachememory.New()
		return c, func() {}, func() { c.Sweep() }, nil
	}
}

func every(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
