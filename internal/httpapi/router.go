package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Puvox/sign-in-with-essentials/internal/flow"
)

// NewRouter wires the authentication endpoints. Besides the fixed routes,
// every unmatched request is inspected by the intercept handler so the
// callback URL can live anywhere the operator configured it (query-flag or
// path mode).
func NewRouter(c *Controller, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(RequestLogger)
	r.Use(c.SessionBinder)

	r.Get("/auth/start", c.Begin)
	r.Post("/auth/unlink", c.Unlink)
	r.Get("/auth/csrf", c.CSRFToken)
	r.Get("/auth/providers", c.Providers)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.NotFound(c.Intercept)

	return r
}

// Intercept implements the configurable entry points: any URL carrying the
// begin parameter starts a flow, and any URL matching the configured
// callback location with a code or error finishes one. Everything else is
// a plain 404.
func (c *Controller) Intercept(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if q.Get(ParamBegin) != "" {
		c.Begin(w, r)
		return
	}

	cfg := c.flow.Snapshot()
	if flow.Matches(cfg, r.URL.Path, q) && (q.Get("code") != "" || q.Get("error") != "") {
		c.Callback(w, r)
		return
	}

	writeError(w, http.StatusNotFound, "not_found", "")
}
