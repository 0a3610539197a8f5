// Package flow drives the authentication state machine: initiation builds
// the provider redirect, completion consumes the callback, exchanges the
// code, resolves the account and establishes the session.
package flow

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Puvox/sign-in-with-essentials/internal/cache"
	"github.com/Puvox/sign-in-with-essentials/internal/directory"
	"github.com/Puvox/sign-in-with-essentials/internal/notify"
	"github.com/Puvox/sign-in-with-essentials/internal/observability/logger"
	"github.com/Puvox/sign-in-with-essentials/internal/observability/metrics"
	"github.com/Puvox/sign-in-with-essentials/internal/policy"
	"github.com/Puvox/sign-in-with-essentials/internal/provider"
	"github.com/Puvox/sign-in-with-essentials/internal/resolver"
	"github.com/Puvox/sign-in-with-essentials/internal/state"
)

// nonce bookkeeping in the cache store
const (
	noncePrefix = "siwe:state:"
	nonceTTL    = 10 * time.Minute
)

// Deps wires the orchestrator. Options, Directory and Resolver are
// required; the rest default to safe no-ops.
type Deps struct {
	Options   policy.ConfigStore
	Directory directory.UserDirectory
	Resolver  *resolver.Resolver
	Clients   ClientFactory
	Cache     cache.Store
	Redirects policy.RedirectPolicy
	Notifier  notify.Notifier
}

// Orchestrator is safe for concurrent use; each attempt reads one policy
// snapshot and holds no cross-request state of its own.
type Orchestrator struct {
	options   policy.ConfigStore
	dir       directory.UserDirectory
	resolver  *resolver.Resolver
	clients   ClientFactory
	cache     cache.Store
	redirects policy.RedirectPolicy
	notifier  notify.Notifier
}

func New(d Deps) *Orchestrator {
	o := &Orchestrator{
		options:   d.Options,
		dir:       d.Directory,
		resolver:  d.Resolver,
		clients:   d.Clients,
		cache:     d.Cache,
		redirects: d.Redirects,
		notifier:  d.Notifier,
	}
	if o.clients == nil {
		o.clients = DefaultClientFactory{}
	}
	if o.redirects == nil {
		o.redirects = policy.PassThroughRedirect{}
	}
	return o
}

// Snapshot loads the policy configuration for one attempt.
func (o *Orchestrator) Snapshot() *policy.Config {
	return policy.Load(o.options)
}

func (o *Orchestrator) codec(cfg *policy.Config) state.Codec {
	if cfg.StateSecret != "" {
		return state.NewSignedCodec([]byte(cfg.StateSecret), nonceTTL)
	}
	return state.PlainCodec{}
}

// BeginRequest starts an attempt for a provider. RedirectTo is the
// post-login destination requested by the originating page.
type BeginRequest struct {
	Provider       string
	RedirectTo     string
	CustomRedirect string
}

// Begin verifies the provider is enabled, builds the state token and
// returns the provider authorization URL for the browser redirect.
// Configuration errors are returned as-is; the caller must surface them to
// the operator instead of redirecting.
func (o *Orchestrator) Begin(ctx context.Context, req BeginRequest) (string, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("flow.begin"))

	p, err := provider.Parse(req.Provider)
	if err != nil {
		return "", err
	}
	cfg := o.Snapshot()
	if !cfg.ProviderEnabled(p) {
		return "", fmt.Errorf("%w: %s", ErrProviderDisabled, p)
	}

	client, err := o.clients.Client(cfg, p)
	if err != nil {
		return "", err
	}

	nonce, err := state.NewNonce(16)
	if err != nil {
		return "", err
	}
	encoded, err := o.codec(cfg).Encode(state.Token{
		Provider:       p,
		RedirectTo:     req.RedirectTo,
		CustomRedirect: req.CustomRedirect,
		Nonce:          nonce,
	})
	if err != nil {
		return "", err
	}

	authURL, err := client.AuthURL(encoded)
	if err != nil {
		return "", err
	}

	if o.cache != nil {
		o.cache.Set(noncePrefix+nonce, []byte(string(p)), nonceTTL)
	}

	log.Info("authentication started", logger.Provider(string(p)))
	return authURL, nil
}

// CallbackRequest carries the provider redirect-back parameters.
type CallbackRequest struct {
	Code       string
	State      string
	ErrorParam string

	// RedirectTo is the optional redirect_to request parameter on the
	// callback URL itself. Lowest priority of the redirect sources.
	RedirectTo string
}

// Outcome is a completed attempt.
type Outcome struct {
	User         *directory.LocalUser
	IsNewUser    bool
	SessionToken string
	RedirectURL  string
}

// Complete consumes the callback. Any returned error maps to a login-page
// redirect via FailureRedirect; a session is only ever established on the
// success path.
func (o *Orchestrator) Complete(ctx context.Context, req CallbackRequest) (*Outcome, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("flow.callback"))
	cfg := o.Snapshot()

	// Provider-reported errors are terminal before any exchange.
	if req.ErrorParam != "" {
		log.Warn("provider reported error", logger.ErrorCode(req.ErrorParam))
		return nil, &ProviderCallbackError{Code: sanitizeCode(req.ErrorParam)}
	}

	if req.Code == "" || req.State == "" {
		return nil, fmt.Errorf("%w: code and state are required", state.ErrMalformed)
	}

	tok, err := o.codec(cfg).Decode(req.State)
	if err != nil {
		return nil, err
	}

	// The provider is taken from the decoded state only; enabled-ness is
	// re-checked here so a forged provider switch cannot widen access.
	p, err := provider.Parse(string(tok.Provider))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", state.ErrMalformed, err)
	}
	if !cfg.ProviderEnabled(p) {
		return nil, fmt.Errorf("%w: %s", ErrProviderDisabled, p)
	}

	// Each state is good for one callback. Begin always mints a nonce, so
	// a nonce-less token is forged; letting it skip the guard would allow
	// unlimited replays of one crafted state.
	if o.cache != nil {
		if tok.Nonce == "" {
			return nil, fmt.Errorf("%w: state carries no nonce", state.ErrMalformed)
		}
		if _, ok := o.cache.Take(noncePrefix + tok.Nonce); !ok {
			return nil, fmt.Errorf("%w: state already used or expired", state.ErrMalformed)
		}
	}

	client, err := o.clients.Client(cfg, p)
	if err != nil {
		return nil, err
	}

	metrics.AuthAttempt(string(p))
	started := time.Now()
	identity, err := provider.AuthenticateByCode(ctx, client, req.Code)
	metrics.ObserveProviderCall(string(p), time.Since(started))
	if err != nil {
		metrics.AuthResult(string(p), ErrorCode(err))
		log.Warn("provider authentication failed", logger.Provider(string(p)), logger.Err(err))
		return nil, err
	}

	sessionUser, err := o.dir.CurrentSessionUser(ctx)
	if err != nil {
		return nil, err
	}

	res, err := o.resolver.Resolve(ctx, cfg, p, identity, sessionUser)
	if err != nil {
		metrics.AuthResult(string(p), ErrorCode(err))
		return nil, err
	}

	// A user who was already logged in keeps their session; the provider
	// was merely linked to the account.
	var sessionToken string
	if sessionUser == nil {
		sessionToken, err = o.dir.EstablishSession(ctx, res.User.ID)
		if err != nil {
			metrics.AuthResult(string(p), CodeServerError)
			return nil, err
		}
	}

	if res.IsNewUser && o.notifier != nil {
		if nerr := o.notifier.WelcomeNewUser(ctx, res.User); nerr != nil {
			log.Warn("welcome notification failed", logger.UserID(res.User.ID), logger.Err(nerr))
		}
	}

	redirect := firstNonEmpty(tok.CustomRedirect, tok.RedirectTo, req.RedirectTo, res.RedirectTarget)
	redirect = o.redirects.AfterLogin(ctx, redirect, res.User)

	metrics.AuthResult(string(p), "success")
	log.Info("authentication completed",
		logger.Provider(string(p)),
		logger.UserID(res.User.ID),
		logger.Bool("new_user", res.IsNewUser),
	)

	return &Outcome{
		User:         res.User,
		IsNewUser:    res.IsNewUser,
		SessionToken: sessionToken,
		RedirectURL:  redirect,
	}, nil
}

// Unlink removes the provider link from the user. CSRF verification is the
// transport layer's duty.
func (o *Orchestrator) Unlink(ctx context.Context, userID, providerName string) error {
	p, err := provider.Parse(providerName)
	if err != nil {
		return err
	}
	return o.dir.DeleteMeta(ctx, userID, directory.LinkMetaKey(p))
}

// FailureRedirect builds the login-page redirect for a failed attempt,
// carrying the stable error code, after the host's override policy.
// Domain rejections additionally carry the offending domain.
func (o *Orchestrator) FailureRedirect(ctx context.Context, cfg *policy.Config, err error) string {
	q := url.Values{}
	q.Set("siwe_error", ErrorCode(err))
	var fd *resolver.ForbiddenDomainError
	if errors.As(err, &fd) {
		q.Set("siwe_domain", fd.Domain)
	}
	sep := "?"
	if strings.Contains(cfg.LoginURL, "?") {
		sep = "&"
	}
	return o.redirects.OnFailure(ctx, cfg.LoginURL+sep+q.Encode())
}

// Matches reports whether the inbound request belongs to the callback
// route. Dual-mode: a "?flag" callback URL matches on query-key presence,
// anything else matches on path prefix.
func Matches(cfg *policy.Config, path string, query url.Values) bool {
	cb := cfg.CallbackURL
	if i := strings.Index(cb, "://"); i >= 0 {
		// Absolute callback URLs match on their path component.
		if u, err := url.Parse(cb); err == nil {
			cb = u.Path
		}
	}
	if strings.HasPrefix(cb, "?") {
		_, ok := query[strings.TrimPrefix(cb, "?")]
		return ok
	}
	return strings.HasPrefix(path, cb)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// sanitizeCode keeps provider error codes shell-safe for the query string.
func sanitizeCode(code string) string {
	code = strings.TrimSpace(code)
	var b strings.Builder
	for _, r := range code {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return CodeServerError
	}
	return b.String()
}
