package provider

import "errors"

// Errors shared by all provider clients. Wrapped with %w at the call sites
// so callers match with errors.Is.
var (
	// ErrUnknownProvider reports a provider name outside the supported set.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrConfiguration reports missing credentials (empty client id or
	// secret). Fatal for the attempt before any redirect is issued.
	ErrConfiguration = errors.New("provider not configured")

	// ErrTokenExchange reports a failed or unusable code exchange.
	ErrTokenExchange = errors.New("token exchange failed")

	// ErrProfileFetch reports a failed or unparseable profile fetch.
	ErrProfileFetch = errors.New("profile fetch failed")
)
