package api

import (
	"context"
	_ "embed"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"
	"github.com/rs/zerolog"

	"github.com/jmcleod/campusgate/backend"
	"github.com/jmcleod/campusgate/guard"
	"github.com/jmcleod/campusgate/session"
)

// API holds the dependencies needed by the REST handlers.
type API struct {
	sessions       *session.Manager
	backend        *backend.Client
	routes         *guard.Table
	accountLimiter *backoffLimiter
	ipLimiter      *backoffLimiter
	audit          *auditLogger
	logger         zerolog.Logger
	alertFn        AlertFunc
}

//go:embed openapi.yaml
var openapiDoc []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the logger used for request errors and audit events.
// If not set, a JSON logger writing to stderr is used.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// WithRoutes replaces the default LMS route table used by /access and /lms.
func WithRoutes(t *guard.Table) Option {
	return func(a *API) {
		a.routes = t
	}
}

// WithAlertFunc sets the callback for anomaly alerts such as login failure
// spikes. By default alerts are logged at warn level.
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) {
		a.alertFn = fn
	}
}

// New creates a new API instance.
func New(sessions *session.Manager, client *backend.Client, opts ...Option) *API {
	a := &API{
		sessions:       sessions,
		backend:        client,
		routes:         guard.DefaultRoutes(),
		accountLimiter: newLoginRateLimiter(),
		ipLimiter:      newIPRateLimiter(),
		logger:         zerolog.New(os.Stderr).With().Timestamp().Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.alertFn == nil {
		logger := a.logger
		a.alertFn = func(e AlertEvent) {
			logger.Warn().
				Str("alert", string(e.Type)).
				Int("count", e.Count).
				Int("threshold", e.Threshold).
				Msg(e.Message)
		}
	}
	a.audit = newAuditLogger(a.logger)
	a.audit.metrics = newMetricsCollector(a.alertFn)
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiDoc)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.Group(func(r chi.Router) {
		r.Use(a.BrowserMiddleware)
		r.Use(a.CSRFMiddleware)

		r.Post("/auth/login", a.Login)
		r.Post("/auth/logout", a.Logout)
		r.Post("/auth/refresh", a.Refresh)

		r.Get("/session", a.GetSession)
		r.With(a.requireAuth).Patch("/session/user", a.UpdateUser)
		r.Get("/access", a.Access)

		r.Get("/lms/{resource}", a.LMSResource)
	})

	return r
}

// Run sweeps expired rate-limit records every interval until ctx is done.
func (a *API) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.accountLimiter.sweep()
			a.ipLimiter.sweep()
		}
	}
}
