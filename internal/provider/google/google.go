// Package google implements the Google OAuth 2.0 provider client.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Puvox/sign-in-with-essentials/internal/provider"
)

const (
	defaultAuthEndpoint     = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultTokenEndpoint    = "https://oauth2.googleapis.com/token"
	defaultUserinfoEndpoint = "https://www.googleapis.com/userinfo/v2/me"
)

// DefaultScopes grant access to the email and basic profile of the user.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// Client talks to Google's OAuth endpoints. One instance per attempt is
// cheap; it holds no mutable state.
type Client struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// Endpoint overrides for tests. Empty means the Google defaults.
	AuthEndpoint     string
	TokenEndpoint    string
	UserinfoEndpoint string

	http *http.Client
}

// New builds a Google client with the provider's default scopes and a
// bounded HTTP timeout.
func New(clientID, clientSecret, redirectURL string) *Client {
	return &Client{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       DefaultScopes,
		http:         &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Provider() provider.Provider { return provider.Google }

// AuthURL builds the authorization URL. prompt=select_account forces the
// account chooser even when a single Google session is active.
func (c *Client) AuthURL(state string) (string, error) {
	if c.ClientID == "" {
		return "", fmt.Errorf("%w: google client id is empty", provider.ErrConfiguration)
	}
	endpoint := c.AuthEndpoint
	if endpoint == "" {
		endpoint = defaultAuthEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: bad auth endpoint: %v", provider.ErrConfiguration, err)
	}
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", c.ClientID)
	q.Set("redirect_uri", c.RedirectURL)
	q.Set("scope", strings.Join(c.Scopes, " "))
	q.Set("state", state)
	q.Set("prompt", "select_account")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int    `json:"expires_in"`
	TokenType        string `json:"token_type"`
	Scope            string `json:"scope"`
	IDToken          string `json:"id_token"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ExchangeCode trades the authorization code for an access token. A code is
// single-use on Google's side; a replayed code fails here with
// ErrTokenExchange.
func (c *Client) ExchangeCode(ctx context.Context, code string) (provider.AccessToken, error) {
	if code == "" {
		return "", fmt.Errorf("%w: no authorization code provided", provider.ErrTokenExchange)
	}
	endpoint := c.TokenEndpoint
	if endpoint == "" {
		endpoint = defaultTokenEndpoint
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", c.ClientID)
	form.Set("client_secret", c.ClientSecret)
	form.Set("redirect_uri", c.RedirectURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", provider.ErrTokenExchange, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", provider.ErrTokenExchange, err)
	}
	defer resp.Body.Close()

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("%w: unparseable token response: %v", provider.ErrTokenExchange, err)
	}
	if tr.Error != "" {
		return "", fmt.Errorf("%w: %s %s", provider.ErrTokenExchange, tr.Error, tr.ErrorDescription)
	}
	if resp.StatusCode/100 != 2 || tr.AccessToken == "" {
		return "", fmt.Errorf("%w: token http %d without usable access token", provider.ErrTokenExchange, resp.StatusCode)
	}
	return provider.AccessToken(tr.AccessToken), nil
}

// FetchIdentity calls the userinfo endpoint with the bearer token.
func (c *Client) FetchIdentity(ctx context.Context, token provider.AccessToken) (*provider.RemoteIdentity, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty access token", provider.ErrProfileFetch)
	}
	endpoint := c.UserinfoEndpoint
	if endpoint == "" {
		endpoint = defaultUserinfoEndpoint
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrProfileFetch, err)
	}
	req.Header.Set("Authorization", "Bearer "+string(token))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrProfileFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: userinfo http %d", provider.ErrProfileFetch, resp.StatusCode)
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: unparseable userinfo: %v", provider.ErrProfileFetch, err)
	}

	id := &provider.RemoteIdentity{
		Provider:       provider.Google,
		ProviderUserID: str(raw, "id"),
		Email:          str(raw, "email"),
		GivenName:      str(raw, "given_name"),
		FamilyName:     str(raw, "family_name"),
		Locale:         str(raw, "locale"),
		PictureURL:     str(raw, "picture"),
		Raw:            raw,
	}
	if id.Email == "" {
		return nil, fmt.Errorf("%w: userinfo carries no email", provider.ErrProfileFetch)
	}
	return id, nil
}

func str(m map[string]any, k string) string {
	s, _ := m[k].(string)
	return s
}
