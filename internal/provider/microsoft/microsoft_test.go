package microsoft

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/Puvox/sign-in-with-essentials/internal/provider"
)

func TestAuthURL(t *testing.T) {
	c := New("app-1", "secret", "https://site.example/cb")

	raw, err := c.AuthURL("ST")
	if err != nil {
		t.Fatalf("AuthURL: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Host != "login.microsoftonline.com" || u.Path != "/common/oauth2/v2.0/authorize" {
		t.Fatalf("endpoint = %s%s", u.Host, u.Path)
	}
	q := u.Query()
	if q.Get("client_id") != "app-1" || q.Get("state") != "ST" {
		t.Fatalf("query = %v", q)
	}
	if q.Get("scope") != "User.Read" {
		t.Fatalf("scope = %q", q.Get("scope"))
	}
}

func profileServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer at" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
}

func TestFetchIdentityUsesMail(t *testing.T) {
	srv := profileServer(t, `{
		"id": "ms-1",
		"mail": "bob@contoso.com",
		"userPrincipalName": "bob_contoso.com#EXT#@tenant.onmicrosoft.com",
		"givenName": "Bob",
		"surname": "Jones"
	}`)
	defer srv.Close()

	c := New("id", "secret", "cb")
	c.ProfileEndpoint = srv.URL

	id, err := c.FetchIdentity(context.Background(), "at")
	if err != nil {
		t.Fatalf("FetchIdentity: %v", err)
	}
	if id.Email != "bob@contoso.com" {
		t.Fatalf("email = %q, mail must win over userPrincipalName", id.Email)
	}
	if id.Provider != provider.Microsoft || id.GivenName != "Bob" || id.FamilyName != "Jones" {
		t.Fatalf("identity = %+v", id)
	}
}

func TestFetchIdentityFallsBackToUserPrincipalName(t *testing.T) {
	// Personal and mailbox-less accounts report a null mail field.
	srv := profileServer(t, `{
		"id": "ms-2",
		"mail": null,
		"userPrincipalName": "carol@contoso.com"
	}`)
	defer srv.Close()

	c := New("id", "secret", "cb")
	c.ProfileEndpoint = srv.URL

	id, err := c.FetchIdentity(context.Background(), "at")
	if err != nil {
		t.Fatalf("FetchIdentity: %v", err)
	}
	if id.Email != "carol@contoso.com" {
		t.Fatalf("email = %q", id.Email)
	}
}

func TestFetchIdentityWithoutAnyEmail(t *testing.T) {
	srv := profileServer(t, `{"id":"ms-3"}`)
	defer srv.Close()

	c := New("id", "secret", "cb")
	c.ProfileEndpoint = srv.URL
	if _, err := c.FetchIdentity(context.Background(), "at"); !errors.Is(err, provider.ErrProfileFetch) {
		t.Fatalf("err = %v, want ErrProfileFetch", err)
	}
}

func TestExchangeCodeErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"AADSTS70008: expired"}`))
	}))
	defer srv.Close()

	c := New("id", "secret", "cb")
	c.TokenEndpoint = srv.URL
	if _, err := c.ExchangeCode(context.Background(), "code"); !errors.Is(err, provider.ErrTokenExchange) {
		t.Fatalf("err = %v, want ErrTokenExchange", err)
	}
}
