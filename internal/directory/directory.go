// Package directory defines the contract with the host user store. The
// core never owns user records; it requests lookup, creation and linkage
// through this interface.
package directory

import (
	"context"
	"errors"
	"time"

	"github.com/Puvox/sign-in-with-essentials/internal/provider"
)

// ErrUserCreation is wrapped around failures propagated from Create.
var ErrUserCreation = errors.New("user creation failed")

// LocalUser references a host account by opaque id.
type LocalUser struct {
	ID           string
	Login        string
	Email        string
	Role         string
	RegisteredAt time.Time
}

// NewUser carries the fields for account provisioning. Password is a
// generated throwaway; the store hashes it and discards the plaintext.
type NewUser struct {
	Login        string
	Email        string
	Password     string
	Role         string
	RegisteredAt time.Time
}

// UserDirectory is the external user store. Implementations: pg, memory.
type UserDirectory interface {
	// FindByEmail returns the user with the exact email, or nil.
	FindByEmail(ctx context.Context, email string) (*LocalUser, error)

	// FindByMeta returns users carrying the meta key/value pair. Used for
	// provider-link lookups.
	FindByMeta(ctx context.Context, key, value string) ([]*LocalUser, error)

	// Create provisions a new account.
	Create(ctx context.Context, u NewUser) (*LocalUser, error)

	// AddMetaIfAbsent writes the meta pair only when the key is not yet
	// present for the user. Reports whether a write happened. First write
	// wins: an existing value is never overwritten.
	AddMetaIfAbsent(ctx context.Context, userID, key, value string) (bool, error)

	// UpdateMeta sets the meta pair unconditionally.
	UpdateMeta(ctx context.Context, userID, key, value string) error

	// DeleteMeta removes the meta key from the user.
	DeleteMeta(ctx context.Context, userID, key string) error

	// EstablishSession starts a session for the user and returns its
	// opaque token for the transport layer to deliver.
	EstablishSession(ctx context.Context, userID string) (string, error)

	// CurrentSessionUser resolves the session referenced by the context,
	// or nil when the request is anonymous.
	CurrentSessionUser(ctx context.Context) (*LocalUser, error)
}

// LinkMetaKey is the durable provider-link key: at most one linked email
// per (user, provider) pair.
func LinkMetaKey(p provider.Provider) string {
	return "siwe_account_" + string(p)
}

// RemoteInfoMetaKey stores the raw remote profile when the save-remote-info
// option is on.
func RemoteInfoMetaKey(p provider.Provider) string {
	return "siwe_remote_info_" + string(p)
}

// Profile meta keys updated from the remote identity on every login.
const (
	MetaFirstName   = "first_name"
	MetaLastName    = "last_name"
	MetaDisplayName = "display_name"
)

type sessionKey struct{}

// WithSessionToken binds the inbound session token to the context so
// CurrentSessionUser can resolve it.
func WithSessionToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, sessionKey{}, token)
}

// SessionTokenFrom returns the bound session token, if any.
func SessionTokenFrom(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(sessionKey{}).(string)
	return s, ok && s != ""
}
