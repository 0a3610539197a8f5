package state

import (
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/Puvox/sign-in-with-essentials/internal/provider"
)

// stateAudience scopes signed tokens so they cannot be replayed as other
// JWTs minted with the same secret.
const stateAudience = "siwe-state"

// SignedCodec wraps the token in an HS256 JWT. Selected when a state secret
// is configured; forged or expired states fail decoding before any account
// mutation can occur.
type SignedCodec struct {
	Secret []byte
	TTL    time.Duration

	// now is overridable in tests.
	now func() time.Time
}

func NewSignedCodec(secret []byte, ttl time.Duration) *SignedCodec {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &SignedCodec{Secret: secret, TTL: ttl, now: time.Now}
}

type stateClaims struct {
	Provider       string `json:"provider"`
	RedirectTo     string `json:"redirect_to,omitempty"`
	CustomRedirect string `json:"custom_redirect,omitempty"`
	Nonce          string `json:"nonce,omitempty"`
	jwtv5.RegisteredClaims
}

func (c *SignedCodec) Encode(t Token) (string, error) {
	now := c.now().UTC()
	claims := stateClaims{
		Provider:       string(t.Provider),
		RedirectTo:     t.RedirectTo,
		CustomRedirect: t.CustomRedirect,
		Nonce:          t.Nonce,
		RegisteredClaims: jwtv5.RegisteredClaims{
			Audience:  jwtv5.ClaimStrings{stateAudience},
			IssuedAt:  jwtv5.NewNumericDate(now),
			NotBefore: jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(c.TTL)),
		},
	}
	signed, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(c.Secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return signed, nil
}

func (c *SignedCodec) Decode(s string) (Token, error) {
	if s == "" {
		return Token{}, fmt.Errorf("%w: empty state", ErrMalformed)
	}
	var claims stateClaims
	tk, err := jwtv5.ParseWithClaims(s, &claims,
		func(*jwtv5.Token) (any, error) { return c.Secret, nil },
		jwtv5.WithValidMethods([]string{"HS256"}),
		jwtv5.WithAudience(stateAudience),
		jwtv5.WithTimeFunc(c.now),
	)
	if err != nil || !tk.Valid {
		return Token{}, fmt.Errorf("%w: signature or claims invalid", ErrMalformed)
	}
	if claims.Provider == "" {
		return Token{}, fmt.Errorf("%w: missing provider", ErrMalformed)
	}
	return Token{
		Provider:       provider.Provider(claims.Provider),
		RedirectTo:     claims.RedirectTo,
		CustomRedirect: claims.CustomRedirect,
		Nonce:          claims.Nonce,
	}, nil
}
