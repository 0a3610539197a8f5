// Package provider defines the contract every identity provider client
// implements and the normalized identity they all produce.
//
// Each provider lives in its own sub-package (google, microsoft) and adapts
// that provider's OAuth 2.0 endpoints and profile schema to RemoteIdentity.
package provider

import (
	"context"
	"fmt"
	"strings"
)

// Provider names a supported identity provider.
type Provider string

const (
	Google    Provider = "google"
	Microsoft Provider = "microsoft"
)

// Parse normalizes a provider name from a request parameter.
func Parse(s string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(s))) {
	case Google:
		return Google, nil
	case Microsoft:
		return Microsoft, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
	}
}

func (p Provider) String() string { return string(p) }

// AccessToken is an opaque bearer token returned by a code exchange.
type AccessToken string

// RemoteIdentity is the normalized profile fetched from a provider after a
// successful exchange. It lives for a single authentication attempt.
type RemoteIdentity struct {
	Provider       Provider
	ProviderUserID string
	Email          string
	GivenName      string
	FamilyName     string
	Locale         string
	PictureURL     string

	// Raw keeps the provider-specific payload for the save-remote-info
	// option. Never interpreted by the core.
	Raw map[string]any
}

// DisplayName joins the name parts the way the host profile expects.
func (r *RemoteIdentity) DisplayName() string {
	return strings.TrimSpace(r.GivenName + " " + r.FamilyName)
}

// Client is implemented once per provider. Implementations perform outbound
// HTTP only; no local state is mutated.
type Client interface {
	Provider() Provider

	// AuthURL builds the provider authorization endpoint URL carrying the
	// already-encoded state. Returns ErrConfiguration when the client id is
	// empty; callers must not redirect the browser in that case.
	AuthURL(state string) (string, error)

	// ExchangeCode trades an authorization code for an access token.
	// A failed exchange is terminal for the attempt; no retries.
	ExchangeCode(ctx context.Context, code string) (AccessToken, error)

	// FetchIdentity retrieves the remote profile for the token.
	FetchIdentity(ctx context.Context, token AccessToken) (*RemoteIdentity, error)
}

// AuthenticateByCode composes exchange and fetch. It has no behavior of its
// own beyond the two calls.
func AuthenticateByCode(ctx context.Context, c Client, code string) (*RemoteIdentity, error) {
	token, err := c.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return c.FetchIdentity(ctx, token)
}
