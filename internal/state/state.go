// Package state encodes the opaque round-trip state parameter carried
// through the provider redirect. Tokens are transient: created when the
// authorization URL is built, decoded exactly once on callback, never
// persisted.
package state

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Puvox/sign-in-with-essentials/internal/provider"
)

// ErrMalformed reports a state parameter that cannot be decoded or that is
// missing required fields. Nothing downstream of decoding may run after it.
var ErrMalformed = errors.New("malformed state")

// Token is the round-trip payload. Provider is authoritative at callback
// time: the provider selection is taken from the decoded token, never from
// other request parameters.
type Token struct {
	Provider       provider.Provider `json:"provider"`
	RedirectTo     string            `json:"redirect_to,omitempty"`
	CustomRedirect string            `json:"custom_redirect,omitempty"`
	Nonce          string            `json:"nonce,omitempty"`
}

// Codec round-trips tokens through the provider's state query parameter.
// Decode(Encode(t)) == t for every valid token.
type Codec interface {
	Encode(Token) (string, error)
	Decode(string) (Token, error)
}

// PlainCodec is the default base64(JSON) codec, matching what providers
// round-trip unmodified. It offers no integrity: pair it with the one-time
// nonce guard, or configure the signed codec.
type PlainCodec struct{}

func (PlainCodec) Encode(t Token) (string, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (PlainCodec) Decode(s string) (Token, error) {
	if s == "" {
		return Token{}, fmt.Errorf("%w: empty state", ErrMalformed)
	}
	b, err := decodeBase64(s)
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var t Token
	if err := json.Unmarshal(b, &t); err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if t.Provider == "" {
		return Token{}, fmt.Errorf("%w: missing provider", ErrMalformed)
	}
	return t, nil
}

// decodeBase64 accepts both raw-url and standard padded alphabets; some
// intermediaries re-pad the parameter.
func decodeBase64(s string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

// NewNonce returns a random base64url string of n source bytes.
func NewNonce(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
