package policy

import (
	"context"

	"github.com/Puvox/sign-in-with-essentials/internal/directory"
	"github.com/Puvox/sign-in-with-essentials/internal/provider"
	"github.com/Puvox/sign-in-with-essentials/internal/state"
)

// PermissionPolicy is consulted after the identity is verified and before
// any lookup or mutation. Hosts override it to ban emails or apply custom
// vetting.
type PermissionPolicy interface {
	PermitAuthorization(ctx context.Context, email string, identity *provider.RemoteIdentity) bool
}

// PermitAll is the default PermissionPolicy.
type PermitAll struct{}

func (PermitAll) PermitAuthorization(context.Context, string, *provider.RemoteIdentity) bool {
	return true
}

// RedirectPolicy lets the host override computed redirect targets. Both
// methods receive the proposed URL and return the final one; the defaults
// pass it through unchanged.
type RedirectPolicy interface {
	// AfterLogin adjusts the post-login destination.
	AfterLogin(ctx context.Context, proposed string, user *directory.LocalUser) string

	// OnFailure adjusts the login-page error redirect.
	OnFailure(ctx context.Context, proposed string) string
}

// PassThroughRedirect is the default RedirectPolicy.
type PassThroughRedirect struct{}

func (PassThroughRedirect) AfterLogin(_ context.Context, proposed string, _ *directory.LocalUser) string {
	return proposed
}

func (PassThroughRedirect) OnFailure(_ context.Context, proposed string) string {
	return proposed
}

// PasswordPolicy generates the never-surfaced password for provisioned
// accounts.
type PasswordPolicy interface {
	Generate() (string, error)
}

// RandomPassword is the default PasswordPolicy. Length is clamped to 12 at
// the low end regardless of configuration.
type RandomPassword struct {
	Length int
}

func (p RandomPassword) Generate() (string, error) {
	n := p.Length
	if n < 12 {
		n = 12
	}
	// Nonce bytes expand under base64; trim to the requested length.
	s, err := state.NewNonce(n)
	if err != nil {
		return "", err
	}
	if len(s) > n {
		s = s[:n]
	}
	return s, nil
}
