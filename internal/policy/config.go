// Package policy assembles the per-attempt policy snapshot from the host's
// option storage and defines the pluggable policy hooks.
//
// The host stores options as flat key/value pairs. Load reads them all once
// per authentication attempt; every default lives here and nowhere else.
package policy

import (
	"strconv"
	"strings"

	"github.com/Puvox/sign-in-with-essentials/internal/provider"
)

// ConfigStore is the read-only option lookup owned by the host.
type ConfigStore interface {
	// Get returns the stored value for key, or def when absent.
	Get(key, def string) string
}

// Option keys, kept in the host's flat layout.
const (
	KeyGoogleClientID        = "siwe_google_client_id"
	KeyGoogleClientSecret    = "siwe_google_client_secret"
	KeyMicrosoftClientID     = "siwe_microsoft_client_id"
	KeyMicrosoftClientSecret = "siwe_microsoft_client_secret"

	// KeyEnablePrefix + provider name gates each provider individually.
	KeyEnablePrefix = "siwe_enable_"

	KeyAllowedDomains            = "siwe_allowed_domains"
	KeyUsersCanRegister          = "users_can_register"
	KeyAllowRegistrationOverride = "siwe_allow_registration_even_if_disabled"
	KeyDefaultRole               = "siwe_user_default_role"
	KeyEmailSanitization         = "siwe_email_sanitization_google"
	KeySaveRemoteInfo            = "siwe_save_remote_info"
	KeyCallbackURL               = "siwe_custom_redir_url"
	KeyLoginURL                  = "siwe_login_url"
	KeyProfileURL                = "siwe_profile_url"
	KeySiteURL                   = "siwe_site_url"
	KeyStateSecret               = "siwe_state_secret"
	KeyPasswordLength            = "siwe_password_length"
	KeySessionCookie             = "siwe_session_cookie"
)

// Config is the validated policy snapshot for one authentication attempt.
// Read-only after Load.
type Config struct {
	GoogleClientID        string
	GoogleClientSecret    string
	MicrosoftClientID     string
	MicrosoftClientSecret string

	Enabled map[provider.Provider]bool

	// AllowedDomains is empty when registration is open to any domain.
	AllowedDomains []string

	UsersCanRegister          bool
	AllowRegistrationOverride bool
	DefaultRole               string
	SanitizeGoogleEmail       bool
	SaveRemoteInfo            bool

	// CallbackURL is either a query flag ("?siwe_response") or a path
	// prefix ("/siwe/callback"); both routing modes are supported.
	CallbackURL string
	LoginURL    string
	ProfileURL  string

	// SiteURL canonicalizes a relative CallbackURL into the absolute
	// redirect_uri registered with the provider.
	SiteURL string

	// StateSecret switches the state codec to the signed variant when set.
	StateSecret string

	PasswordLength int
	SessionCookie  string
}

// Load assembles the snapshot. Every default is enumerated here.
func Load(store ConfigStore) *Config {
	cfg := &Config{
		GoogleClientID:        store.Get(KeyGoogleClientID, ""),
		GoogleClientSecret:    store.Get(KeyGoogleClientSecret, ""),
		MicrosoftClientID:     store.Get(KeyMicrosoftClientID, ""),
		MicrosoftClientSecret: store.Get(KeyMicrosoftClientSecret, ""),

		Enabled: map[provider.Provider]bool{
			provider.Google:    parseBool(store.Get(KeyEnablePrefix+"google", "false")),
			provider.Microsoft: parseBool(store.Get(KeyEnablePrefix+"microsoft", "false")),
		},

		AllowedDomains: splitDomains(store.Get(KeyAllowedDomains, "")),

		UsersCanRegister:          parseBool(store.Get(KeyUsersCanRegister, "false")),
		AllowRegistrationOverride: parseBool(store.Get(KeyAllowRegistrationOverride, "false")),
		DefaultRole:               store.Get(KeyDefaultRole, "subscriber"),
		SanitizeGoogleEmail:       parseBool(store.Get(KeyEmailSanitization, "true")),
		SaveRemoteInfo:            parseBool(store.Get(KeySaveRemoteInfo, "false")),

		CallbackURL: store.Get(KeyCallbackURL, "?siwe_response"),
		LoginURL:    store.Get(KeyLoginURL, "/login"),
		ProfileURL:  store.Get(KeyProfileURL, "/profile"),
		SiteURL:     store.Get(KeySiteURL, ""),

		StateSecret: store.Get(KeyStateSecret, ""),

		PasswordLength: parseInt(store.Get(KeyPasswordLength, "16"), 16),
		SessionCookie:  store.Get(KeySessionCookie, "siwe_session"),
	}

	// Passwordless accounts still get a throwaway password; it is never
	// surfaced, but it must not be guessable either.
	if cfg.PasswordLength < 12 {
		cfg.PasswordLength = 12
	}
	return cfg
}

// ProviderEnabled reports whether the provider may be used at all.
func (c *Config) ProviderEnabled(p provider.Provider) bool {
	return c.Enabled[p]
}

// RedirectURI resolves the callback URL against the site URL when relative.
func (c *Config) RedirectURI() string {
	cb := c.CallbackURL
	if strings.Contains(cb, "://") || strings.HasPrefix(cb, "//") {
		return cb
	}
	site := strings.TrimRight(c.SiteURL, "/")
	if strings.HasPrefix(cb, "?") {
		return site + "/" + cb
	}
	return site + cb
}

// DomainAllowed applies the allow-list. An empty list allows every domain.
func (c *Config) DomainAllowed(domain string) bool {
	if len(c.AllowedDomains) == 0 {
		return true
	}
	for _, d := range c.AllowedDomains {
		if strings.EqualFold(d, domain) {
			return true
		}
	}
	return false
}

// RegistrationAllowed reports whether a brand-new account may be created.
func (c *Config) RegistrationAllowed() bool {
	return c.UsersCanRegister || c.AllowRegistrationOverride
}

func splitDomains(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if d := strings.TrimSpace(part); d != "" {
			out = append(out, strings.ToLower(d))
		}
	}
	return out
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}

func parseInt(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}
