package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Puvox/sign-in-with-essentials/internal/cache"
	"github.com/Puvox/sign-in-with-essentials/internal/directory"
	"github.com/Puvox/sign-in-with-essentials/internal/flow"
	"github.com/Puvox/sign-in-with-essentials/internal/observability/logger"
	"github.com/Puvox/sign-in-with-essentials/internal/provider"
	"github.com/Puvox/sign-in-with-essentials/internal/state"
)

// Query parameters forming the host-facing contract.
const (
	ParamBegin      = "siwe_auth_redirect"
	ParamRedirectTo = "redirect_to"
	ParamError      = "siwe_error"
)

// Controller carries the handlers for the authentication surface.
type Controller struct {
	flow  *flow.Orchestrator
	dir   directory.UserDirectory
	cache cache.Store
}

func NewController(o *flow.Orchestrator, dir directory.UserDirectory, store cache.Store) *Controller {
	return &Controller{flow: o, dir: dir, cache: store}
}

// Begin handles the "start auth with provider P" request and redirects the
// browser to the provider.
func (c *Controller) Begin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("Begin"))

	providerName := strings.TrimSpace(r.URL.Query().Get(ParamBegin))
	if providerName == "" {
		providerName = strings.TrimSpace(r.URL.Query().Get("provider"))
	}
	if providerName == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "provider is required")
		return
	}

	authURL, err := c.flow.Begin(ctx, flow.BeginRequest{
		Provider:   providerName,
		RedirectTo: r.URL.Query().Get(ParamRedirectTo),
	})
	if err != nil {
		// No redirect has been issued yet, so configuration problems are
		// surfaced to the operator instead of bouncing the browser.
		switch {
		case errors.Is(err, provider.ErrUnknownProvider):
			writeError(w, http.StatusNotFound, "unknown_provider", providerName)
		case errors.Is(err, flow.ErrProviderDisabled):
			writeError(w, http.StatusForbidden, flow.CodeProviderDisabled, "login is disabled for this provider")
		case errors.Is(err, provider.ErrConfiguration):
			log.Error("provider misconfigured", logger.Provider(providerName), logger.Err(err))
			writeError(w, http.StatusInternalServerError, "provider_not_configured",
				"client credentials are missing; check the provider settings")
		default:
			log.Error("begin failed", logger.Provider(providerName), logger.Err(err))
			writeError(w, http.StatusInternalServerError, flow.CodeServerError, "")
		}
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback consumes the provider redirect-back. Every failure becomes a
// login-page redirect with a stable code; a session cookie is set only on
// success.
func (c *Controller) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("Callback"))
	cfg := c.flow.Snapshot()

	q := r.URL.Query()
	outcome, err := c.flow.Complete(ctx, flow.CallbackRequest{
		Code:       strings.TrimSpace(q.Get("code")),
		State:      strings.TrimSpace(q.Get("state")),
		ErrorParam: strings.TrimSpace(q.Get("error")),
		RedirectTo: q.Get(ParamRedirectTo),
	})
	if err != nil {
		log.Warn("authentication failed", logger.ErrorCode(flow.ErrorCode(err)), logger.Err(err))
		w.Header().Set("Cache-Control", "no-store")
		http.Redirect(w, r, c.flow.FailureRedirect(ctx, cfg, err), http.StatusFound)
		return
	}

	if outcome.SessionToken != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     cfg.SessionCookie,
			Value:    outcome.SessionToken,
			Path:     "/",
			HttpOnly: true,
			Secure:   strings.HasPrefix(cfg.SiteURL, "https://"),
			SameSite: http.SameSiteLaxMode,
		})
	}

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, outcome.RedirectURL, http.StatusFound)
}

// Providers lists the enabled providers, for the host's login button
// rendering.
func (c *Controller) Providers(w http.ResponseWriter, r *http.Request) {
	cfg := c.flow.Snapshot()
	enabled := make([]string, 0, len(cfg.Enabled))
	for p, on := range cfg.Enabled {
		if on {
			enabled = append(enabled, string(p))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": enabled})
}

// CSRFToken issues the token required by Unlink, bound to the session.
func (c *Controller) CSRFToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := c.dir.CurrentSessionUser(ctx)
	if err != nil || user == nil {
		writeError(w, http.StatusUnauthorized, "not_logged_in", "")
		return
	}
	token, err := state.NewNonce(24)
	if err != nil {
		writeError(w, http.StatusInternalServerError, flow.CodeServerError, "")
		return
	}
	if c.cache != nil {
		c.cache.Set(csrfKey(user.ID), []byte(token), 30*time.Minute)
	}
	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

// Unlink removes the caller's provider link. Requires the session-bound
// CSRF token.
func (c *Controller) Unlink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("Unlink"))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}

	user, err := c.dir.CurrentSessionUser(ctx)
	if err != nil || user == nil {
		writeError(w, http.StatusUnauthorized, "not_logged_in", "")
		return
	}

	if !c.verifyCSRF(user.ID, r.FormValue("csrf_token")) {
		writeError(w, http.StatusForbidden, "bad_csrf_token", "")
		return
	}

	providerName := r.FormValue("provider")
	if err := c.flow.Unlink(ctx, user.ID, providerName); err != nil {
		if errors.Is(err, provider.ErrUnknownProvider) {
			writeError(w, http.StatusNotFound, "unknown_provider", providerName)
			return
		}
		log.Error("unlink failed", logger.UserID(user.ID), logger.Err(err))
		writeError(w, http.StatusInternalServerError, flow.CodeServerError, "")
		return
	}

	log.Info("provider unlinked", logger.UserID(user.ID), logger.Provider(providerName))
	w.WriteHeader(http.StatusNoContent)
}

func (c *Controller) verifyCSRF(userID, token string) bool {
	if c.cache == nil || token == "" {
		return false
	}
	stored, ok := c.cache.Take(csrfKey(userID))
	return ok && string(stored) == token
}

func csrfKey(userID string) string { return "siwe:csrf:" + userID }
