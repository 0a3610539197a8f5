package flow

import (
	"fmt"

	"github.com/Puvox/sign-in-with-essentials/internal/policy"
	"github.com/Puvox/sign-in-with-essentials/internal/provider"
	"github.com/Puvox/sign-in-with-essentials/internal/provider/google"
	"github.com/Puvox/sign-in-with-essentials/internal/provider/microsoft"
)

// ClientFactory builds a provider client from the policy snapshot. Tests
// swap it for fakes.
type ClientFactory interface {
	Client(cfg *policy.Config, p provider.Provider) (provider.Client, error)
}

// DefaultClientFactory wires the real Google and Microsoft clients with the
// credentials and redirect URI from the options.
type DefaultClientFactory struct{}

func (DefaultClientFactory) Client(cfg *policy.Config, p provider.Provider) (provider.Client, error) {
	redirect := cfg.RedirectURI()
	switch p {
	case provider.Google:
		return google.New(cfg.GoogleClientID, cfg.GoogleClientSecret, redirect), nil
	case provider.Microsoft:
		return microsoft.New(cfg.MicrosoftClientID, cfg.MicrosoftClientSecret, redirect), nil
	default:
		return nil, fmt.Errorf("%w: %q", provider.ErrUnknownProvider, p)
	}
}
