package flow

import (
	"errors"

	"github.com/Puvox/sign-in-with-essentials/internal/directory"
	"github.com/Puvox/sign-in-with-essentials/internal/provider"
	"github.com/Puvox/sign-in-with-essentials/internal/resolver"
	"github.com/Puvox/sign-in-with-essentials/internal/state"
)

// ErrProviderDisabled reports an attempt to use a provider the options have
// not enabled. Checked both at initiation and, on callback, against the
// provider decoded from state.
var ErrProviderDisabled = errors.New("login is disabled for this provider")

// ProviderCallbackError carries the error code the provider itself sent on
// the redirect back (e.g. access_denied). No exchange is attempted.
type ProviderCallbackError struct {
	Code string
}

func (e *ProviderCallbackError) Error() string {
	return "provider returned error: " + e.Code
}

// Stable machine-readable codes appended to the login redirect. The
// vocabulary is part of the host-facing contract; do not rename values.
const (
	CodeProviderDisabled      = "provider_disabled"
	CodeMalformedState        = "malformed_state"
	CodeRemoteDataUnavailable = "can_not_get_user_data_from_provider"
	CodeForbiddenDomain       = "forbidden_mail_domain"
	CodeRegistrationDisabled  = "new_registrations_are_forbidden"
	CodeForbiddenAuth         = "forbidden_auth"
	CodeUserCreationFailed    = "user_creation_failed"
	CodeServerError           = "server_error"
)

// ErrorCode maps any flow error to its stable browser-facing code.
func ErrorCode(err error) string {
	var cbErr *ProviderCallbackError
	switch {
	case errors.As(err, &cbErr):
		return cbErr.Code
	case errors.Is(err, ErrProviderDisabled):
		return CodeProviderDisabled
	case errors.Is(err, state.ErrMalformed):
		return CodeMalformedState
	case errors.Is(err, provider.ErrTokenExchange), errors.Is(err, provider.ErrProfileFetch):
		return CodeRemoteDataUnavailable
	case errors.Is(err, resolver.ErrForbiddenDomain):
		return CodeForbiddenDomain
	case errors.Is(err, resolver.ErrRegistrationDisabled):
		return CodeRegistrationDisabled
	case errors.Is(err, resolver.ErrAuthorizationDenied):
		return CodeForbiddenAuth
	case errors.Is(err, directory.ErrUserCreation):
		return CodeUserCreationFailed
	default:
		return CodeServerError
	}
}
