// Package resolver maps a verified remote identity onto a local account:
// link to the session user, find an existing linked or matching account, or
// provision a new one, under the domain and registration policies.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Puvox/sign-in-with-essentials/internal/directory"
	"github.com/Puvox/sign-in-with-essentials/internal/observability/logger"
	"github.com/Puvox/sign-in-with-essentials/internal/policy"
	"github.com/Puvox/sign-in-with-essentials/internal/provider"
)

// Resolution errors.
var (
	// ErrAuthorizationDenied: the host's permission policy vetoed the email.
	ErrAuthorizationDenied = errors.New("authorization denied")

	// ErrForbiddenDomain: non-empty allow-list and the email domain is not
	// on it. No account is created or touched.
	ErrForbiddenDomain = errors.New("forbidden mail domain")

	// ErrRegistrationDisabled: no existing account and registration is off
	// without an override.
	ErrRegistrationDisabled = errors.New("new registrations are forbidden")
)

// ForbiddenDomainError carries the rejected domain so the failure redirect
// can report it back to the login page. Matches ErrForbiddenDomain.
type ForbiddenDomainError struct {
	Domain string
}

func (e *ForbiddenDomainError) Error() string {
	return "forbidden mail domain: " + e.Domain
}

func (e *ForbiddenDomainError) Unwrap() error { return ErrForbiddenDomain }

// Resolution is the outcome of a successful resolve.
type Resolution struct {
	User      *directory.LocalUser
	IsNewUser bool

	// RedirectTarget is the proposed post-login destination before the
	// host's redirect policy runs. Defaults to the profile page.
	RedirectTarget string
}

// Deps wires the resolver.
type Deps struct {
	Directory  directory.UserDirectory
	Permission policy.PermissionPolicy
	Password   policy.PasswordPolicy
}

type Resolver struct {
	dir        directory.UserDirectory
	permission policy.PermissionPolicy
	password   policy.PasswordPolicy

	// now is overridable in tests.
	now func() time.Time
}

func New(d Deps) *Resolver {
	r := &Resolver{
		dir:        d.Directory,
		permission: d.Permission,
		password:   d.Password,
		now:        time.Now,
	}
	if r.permission == nil {
		r.permission = policy.PermitAll{}
	}
	return r
}

// Resolve runs the account resolution algorithm. sessionUser, when present,
// short-circuits lookup and creation: the provider is linked to that user.
// Resolve is idempotent for a given (provider, email) with no session user.
func (r *Resolver) Resolve(ctx context.Context, cfg *policy.Config, p provider.Provider, identity *provider.RemoteIdentity, sessionUser *directory.LocalUser) (*Resolution, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("resolver"))

	email := identity.Email
	if p == provider.Google && cfg.SanitizeGoogleEmail {
		email = CanonicalGmailAddress(email)
	}
	domain := EmailDomain(email)

	if !r.permission.PermitAuthorization(ctx, email, identity) {
		log.Warn("authorization vetoed by permission policy",
			logger.Provider(string(p)),
			logger.Email(email),
		)
		return nil, ErrAuthorizationDenied
	}

	user := sessionUser
	isNew := false
	if user == nil {
		found, err := r.locate(ctx, p, email)
		if err != nil {
			return nil, err
		}
		if found == nil {
			if !cfg.DomainAllowed(domain) {
				log.Warn("email domain not on allow-list",
					logger.Provider(string(p)),
					logger.String("domain", domain),
				)
				return nil, &ForbiddenDomainError{Domain: domain}
			}
			if !cfg.RegistrationAllowed() {
				return nil, ErrRegistrationDisabled
			}
			found, err = r.create(ctx, cfg, email)
			if err != nil {
				return nil, err
			}
			isNew = true
			log.Info("provisioned new account",
				logger.Provider(string(p)),
				logger.UserID(found.ID),
			)
		}
		user = found
	}

	// Idempotent: a pre-existing link for this provider is never
	// overwritten, even with a different email.
	if _, err := r.dir.AddMetaIfAbsent(ctx, user.ID, directory.LinkMetaKey(p), email); err != nil {
		return nil, err
	}

	if err := r.updateProfileMetas(ctx, cfg, user.ID, p, identity); err != nil {
		// Profile meta is best-effort; the account is already resolved.
		log.Warn("profile meta update failed", logger.UserID(user.ID), logger.Err(err))
	}

	return &Resolution{
		User:           user,
		IsNewUser:      isNew,
		RedirectTarget: cfg.ProfileURL,
	}, nil
}

// locate finds an existing account. A provider link reflects explicit prior
// consent, so it takes precedence over a direct email match.
func (r *Resolver) locate(ctx context.Context, p provider.Provider, email string) (*directory.LocalUser, error) {
	linked, err := r.dir.FindByMeta(ctx, directory.LinkMetaKey(p), email)
	if err != nil {
		return nil, err
	}
	if len(linked) > 0 {
		return linked[0], nil
	}
	return r.dir.FindByEmail(ctx, email)
}

func (r *Resolver) create(ctx context.Context, cfg *policy.Config, email string) (*directory.LocalUser, error) {
	pw := r.password
	if pw == nil {
		pw = policy.RandomPassword{Length: cfg.PasswordLength}
	}
	pass, err := pw.Generate()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", directory.ErrUserCreation, err)
	}
	user, err := r.dir.Create(ctx, directory.NewUser{
		Login:        email,
		Email:        email,
		Password:     pass,
		Role:         cfg.DefaultRole,
		RegisteredAt: r.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", directory.ErrUserCreation, err)
	}
	return user, nil
}

// updateProfileMetas always refreshes the name fields; the raw payload is
// stored only behind the save-remote-info option.
func (r *Resolver) updateProfileMetas(ctx context.Context, cfg *policy.Config, userID string, p provider.Provider, identity *provider.RemoteIdentity) error {
	if identity.GivenName != "" {
		if err := r.dir.UpdateMeta(ctx, userID, directory.MetaFirstName, identity.GivenName); err != nil {
			return err
		}
	}
	if identity.FamilyName != "" {
		if err := r.dir.UpdateMeta(ctx, userID, directory.MetaLastName, identity.FamilyName); err != nil {
			return err
		}
	}
	if name := identity.DisplayName(); name != "" {
		if err := r.dir.UpdateMeta(ctx, userID, directory.MetaDisplayName, name); err != nil {
			return err
		}
	}
	if cfg.SaveRemoteInfo {
		raw, err := marshalRaw(identity.Raw)
		if err != nil {
			return err
		}
		return r.dir.UpdateMeta(ctx, userID, directory.RemoteInfoMetaKey(p), raw)
	}
	return nil
}
