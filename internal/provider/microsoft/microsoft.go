// Package microsoft implements the Microsoft identity platform client
// (common endpoint, Graph User.Read profile).
package microsoft

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
	defaultAuthEndpoint    = "https://login.microsoftonline.com/common/oauth2/v2.0/authorize"
	defaultTokenEndpoint   = "https://login.microsoftonline.com/common/oauth2/v2.0/token"
	defaultProfileEndpoint = "https://graph.microsoft.com/v1.0/me"
)

// DefaultScopes request the delegated Graph profile read. Changing them
// requires matching API permissions on the Azure app registration.
var DefaultScopes = []string{"User.Read"}

// Client talks to the Microsoft identity platform.
type Client struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// Endpoint overrides for tests.
	AuthEndpoint    string
	TokenEndpoint   string
	ProfileEndpoint string

	http *http.Client
}

func New(clientID, clientSecret, redirectURL string) *Client {
	return &Client{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       DefaultScopes,
		http:         &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Provider() provider.Provider { return provider.Microsoft }

func (c *Client) AuthURL(state string) (string, error) {
	if c.ClientID == "" {
		return "", fmt.Errorf("%w: microsoft client id is empty", provider.ErrConfiguration)
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
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int    `json:"expires_in"`
	TokenType        string `json:"token_type"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

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
	form.Set("scope", strings.Join(c.Scopes, " "))

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

// FetchIdentity reads the Graph /me profile. Accounts without an Exchange
// mailbox report a null "mail"; userPrincipalName is the documented
// fallback there.
func (c *Client) FetchIdentity(ctx context.Context, token provider.AccessToken) (*provider.RemoteIdentity, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty access token", provider.ErrProfileFetch)
	}
	endpoint := c.ProfileEndpoint
	if endpoint == "" {
		endpoint = defaultProfileEndpoint
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
		return nil, fmt.Errorf("%w: graph http %d", provider.ErrProfileFetch, resp.StatusCode)
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: unparseable profile: %v", provider.ErrProfileFetch, err)
	}

	email := str(raw, "mail")
	if email == "" {
		email = str(raw, "userPrincipalName")
	}

	id := &provider.RemoteIdentity{
		Provider:       provider.Microsoft,
		ProviderUserID: str(raw, "id"),
		Email:          email,
		GivenName:      str(raw, "givenName"),
		FamilyName:     str(raw, "surname"),
		Locale:         str(raw, "preferredLanguage"),
		Raw:            raw,
	}
	if id.Email == "" {
		return nil, fmt.Errorf("%w: profile carries neither mail nor userPrincipalName", provider.ErrProfileFetch)
	}
	return id, nil
}

func str(m map[string]any, k string) string {
	s, _ := m[k].(string)
	return s
}
