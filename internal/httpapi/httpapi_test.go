package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	memcache "github.com/Puvox/sign-in-with-essentials/internal/cache/memory"
	"github.com/Puvox/sign-in-with-essentials/internal/directory"
	"github.com/Puvox/sign-in-with-essentials/internal/flow"
	"github.com/Puvox/sign-in-with-essentials/internal/policy"
	"github.com/Puvox/sign-in-with-essentials/internal/provider"
	"github.com/Puvox/sign-in-with-essentials/internal/resolver"
	memstore "github.com/Puvox/sign-in-with-essentials/internal/store/memory"
)

type stubClient struct {
	identity *provider.RemoteIdentity
}

func (s *stubClient) Provider() provider.Provider { return provider.Google }

func (s *stubClient) AuthURL(st string) (string, error) {
	return "https://accounts.google.test/auth?state=" + url.QueryEscape(st), nil
}

func (s *stubClient) ExchangeCode(_ context.Context, code string) (provider.AccessToken, error) {
	if code == "" {
		return "", provider.ErrTokenExchange
	}
	return "at", nil
}

func (s *stubClient) FetchIdentity(context.Context, provider.AccessToken) (*provider.RemoteIdentity, error) {
	if s.identity == nil {
		return nil, fmt.Errorf("%w: no profile", provider.ErrProfileFetch)
	}
	return s.identity, nil
}

type stubFactory struct{ c *stubClient }

func (f stubFactory) Client(_ *policy.Config, p provider.Provider) (provider.Client, error) {
	if p != provider.Google {
		return nil, fmt.Errorf("%w: %q", provider.ErrUnknownProvider, p)
	}
	return f.c, nil
}

type env struct {
	handler http.Handler
	ctrl    *Controller
	dir     *memstore.Store
	o       *flow.Orchestrator
}

func newEnv(t *testing.T, opts map[string]string) *env {
	t.Helper()
	if opts == nil {
		opts = map[string]string{}
	}
	if _, ok := opts["siwe_enable_google"]; !ok {
		opts["siwe_enable_google"] = "true"
	}
	if _, ok := opts["users_can_register"]; !ok {
		opts["users_can_register"] = "true"
	}
	dir := memstore.New()
	store := memcache.New(time.Minute)
	o := flow.New(flow.Deps{
		Options:   policy.NewMapStore(opts),
		Directory: dir,
		Resolver:  resolver.New(resolver.Deps{Directory: dir, Password: policy.RandomPassword{}}),
		Clients: stubFactory{c: &stubClient{identity: &provider.RemoteIdentity{
			Provider: provider.Google,
			Email:    "ada@example.com",
		}}},
		Cache: store,
	})
	ctrl := NewController(o, dir, store)
	return &env{handler: NewRouter(ctrl, nil), ctrl: ctrl, dir: dir, o: o}
}

func (e *env) get(t *testing.T, target string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func TestBeginRedirectsToProvider(t *testing.T) {
	e := newEnv(t, nil)

	w := e.get(t, "/auth/start?siwe_auth_redirect=google&redirect_to=/dashboard")
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	loc := w.Header().Get("Location")
	if !strings.HasPrefix(loc, "https://accounts.google.test/auth?state=") {
		t.Fatalf("Location = %q", loc)
	}
	if w.Header().Get("Cache-Control") != "no-store" {
		t.Fatal("redirect is cacheable")
	}
}

func TestBeginDisabledProvider(t *testing.T) {
	e := newEnv(t, map[string]string{"siwe_enable_google": "false"})
	w := e.get(t, "/auth/start?siwe_auth_redirect=google")
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Error != flow.CodeProviderDisabled {
		t.Fatalf("error = %q", body.Error)
	}
}

func TestBeginUnknownProvider(t *testing.T) {
	e := newEnv(t, nil)
	if w := e.get(t, "/auth/start?siwe_auth_redirect=github"); w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestBeginWithoutProviderParam(t *testing.T) {
	e := newEnv(t, nil)
	if w := e.get(t, "/auth/start"); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestInterceptBeginOnArbitraryPath(t *testing.T) {
	e := newEnv(t, nil)
	w := e.get(t, "/any/page?siwe_auth_redirect=google")
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
}

// full round trip through the default query-flag callback mode
func TestCallbackQueryFlagMode(t *testing.T) {
	e := newEnv(t, nil)

	begin := e.get(t, "/auth/start?siwe_auth_redirect=google&redirect_to=/dashboard")
	if begin.Code != http.StatusFound {
		t.Fatalf("begin status = %d", begin.Code)
	}
	authURL, err := url.Parse(begin.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse auth url: %v", err)
	}
	st := authURL.Query().Get("state")

	cb := e.get(t, "/?siwe_response&code=c1&state="+url.QueryEscape(st))
	if cb.Code != http.StatusFound {
		t.Fatalf("callback status = %d body=%s", cb.Code, cb.Body.String())
	}
	if loc := cb.Header().Get("Location"); loc != "/dashboard" {
		t.Fatalf("Location = %q", loc)
	}

	var session *http.Cookie
	for _, ck := range cb.Result().Cookies() {
		if ck.Name == "siwe_session" {
			session = ck
		}
	}
	if session == nil || session.Value == "" {
		t.Fatal("no session cookie set")
	}
	if !session.HttpOnly {
		t.Fatal("session cookie not HttpOnly")
	}

	// The cookie authenticates follow-up requests through the binder.
	u, err := e.dir.CurrentSessionUser(directory.WithSessionToken(context.Background(), session.Value))
	if err != nil || u == nil {
		t.Fatalf("session user = %v err=%v", u, err)
	}
}

func TestCallbackPathMode(t *testing.T) {
	e := newEnv(t, map[string]string{"siwe_custom_redir_url": "/siwe/callback"})

	begin := e.get(t, "/auth/start?siwe_auth_redirect=google")
	authURL, err := url.Parse(begin.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse auth url: %v", err)
	}
	st := authURL.Query().Get("state")

	cb := e.get(t, "/siwe/callback?code=c1&state="+url.QueryEscape(st))
	if cb.Code != http.StatusFound {
		t.Fatalf("callback status = %d body=%s", cb.Code, cb.Body.String())
	}

	// Same path without code or error is not a callback.
	if w := e.get(t, "/siwe/callback"); w.Code != http.StatusNotFound {
		t.Fatalf("bare path status = %d", w.Code)
	}
}

func TestCallbackErrorRedirectsToLogin(t *testing.T) {
	e := newEnv(t, nil)

	w := e.get(t, "/?siwe_response&error=access_denied")
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/login?siwe_error=access_denied" {
		t.Fatalf("Location = %q", loc)
	}
	if len(w.Result().Cookies()) != 0 {
		t.Fatal("cookie set on failed attempt")
	}
}

func TestCallbackMalformedStateRedirect(t *testing.T) {
	e := newEnv(t, nil)
	w := e.get(t, "/?siwe_response&code=c&state=garbage!!")
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/login?siwe_error=malformed_state" {
		t.Fatalf("Location = %q", loc)
	}
}

func TestUnlinkRequiresSessionAndCSRF(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	u, err := e.dir.Create(ctx, directory.NewUser{Login: "u", Email: "u@example.com"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := e.dir.AddMetaIfAbsent(ctx, u.ID, directory.LinkMetaKey(provider.Google), "u@example.com"); err != nil {
		t.Fatalf("seed link: %v", err)
	}
	token, err := e.dir.EstablishSession(ctx, u.ID)
	if err != nil {
		t.Fatalf("EstablishSession: %v", err)
	}
	session := &http.Cookie{Name: "siwe_session", Value: token}

	post := func(form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/unlink", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		for _, ck := range cookies {
			req.AddCookie(ck)
		}
		w := httptest.NewRecorder()
		e.handler.ServeHTTP(w, req)
		return w
	}

	// No session.
	if w := post(url.Values{"provider": {"google"}}); w.Code != http.StatusUnauthorized {
		t.Fatalf("anon status = %d", w.Code)
	}

	// Session but no CSRF token.
	if w := post(url.Values{"provider": {"google"}}, session); w.Code != http.StatusForbidden {
		t.Fatalf("no-csrf status = %d", w.Code)
	}

	// Fetch a CSRF token, then unlink.
	csrfResp := e.get(t, "/auth/csrf", session)
	if csrfResp.Code != http.StatusOK {
		t.Fatalf("csrf status = %d", csrfResp.Code)
	}
	var csrf struct {
		Token string `json:"csrf_token"`
	}
	if err := json.Unmarshal(csrfResp.Body.Bytes(), &csrf); err != nil {
		t.Fatalf("unmarshal csrf: %v", err)
	}

	w := post(url.Values{"provider": {"google"}, "csrf_token": {csrf.Token}}, session)
	if w.Code != http.StatusNoContent {
		t.Fatalf("unlink status = %d body=%s", w.Code, w.Body.String())
	}
	if _, ok := e.dir.Meta(u.ID, directory.LinkMetaKey(provider.Google)); ok {
		t.Fatal("link survived unlink")
	}

	// CSRF tokens are single-use.
	if w := post(url.Values{"provider": {"google"}, "csrf_token": {csrf.Token}}, session); w.Code != http.StatusForbidden {
		t.Fatalf("replayed csrf status = %d", w.Code)
	}
}

func TestProvidersList(t *testing.T) {
	e := newEnv(t, map[string]string{"siwe_enable_microsoft": "false"})
	w := e.get(t, "/auth/providers")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Providers []string `json:"providers"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Providers) != 1 || body.Providers[0] != "google" {
		t.Fatalf("providers = %v", body.Providers)
	}
}

func TestHealthz(t *testing.T) {
	e := newEnv(t, nil)
	if w := e.get(t, "/healthz"); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	e := newEnv(t, nil)
	w := e.get(t, "/healthz")
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("no X-Request-ID issued")
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "rid-42")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	if rec.Header().Get("X-Request-ID") != "rid-42" {
		t.Fatalf("X-Request-ID = %q, want caller's preserved", rec.Header().Get("X-Request-ID"))
	}
}
