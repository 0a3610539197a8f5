package state

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/Puvox/sign-in-with-essentials/internal/provider"
)

func TestPlainCodecRoundTrip(t *testing.T) {
	cases := []Token{
		{Provider: provider.Google},
		{Provider: provider.Microsoft, RedirectTo: "/dashboard"},
		{Provider: provider.Google, RedirectTo: "/a", CustomRedirect: "https://app.example.com/after", Nonce: "n-1"},
	}
	for _, want := range cases {
		enc, err := PlainCodec{}.Encode(want)
		if err != nil {
			t.Fatalf("Encode(%+v): %v", want, err)
		}
		got, err := PlainCodec{}.Decode(enc)
		if err != nil {
			t.Fatalf("Decode(%q): %v", enc, err)
		}
		if got != want {
			t.Fatalf("round trip: got %+v want %+v", got, want)
		}
	}
}

func TestPlainCodecAcceptsPaddedBase64(t *testing.T) {
	enc, err := PlainCodec{}.Encode(Token{Provider: provider.Google, RedirectTo: "/p"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	raw, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	padded := base64.StdEncoding.EncodeToString(raw)

	got, err := PlainCodec{}.Decode(padded)
	if err != nil {
		t.Fatalf("Decode(padded): %v", err)
	}
	if got.Provider != provider.Google || got.RedirectTo != "/p" {
		t.Fatalf("unexpected token %+v", got)
	}
}

func TestPlainCodecDecodeErrors(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"not base64", "%%%"},
		{"not json", base64.RawURLEncoding.EncodeToString([]byte("hi"))},
		{"missing provider", base64.RawURLEncoding.EncodeToString([]byte(`{"redirect_to":"/x"}`))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := (PlainCodec{}).Decode(tc.in); !errors.Is(err, ErrMalformed) {
				t.Fatalf("Decode(%q) err = %v, want ErrMalformed", tc.in, err)
			}
		})
	}
}

func TestSignedCodecRoundTrip(t *testing.T) {
	c := NewSignedCodec([]byte("test-secret"), time.Minute)
	want := Token{Provider: provider.Microsoft, RedirectTo: "/home", Nonce: "abc"}
	enc, err := c.Encode(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := c.Decode(enc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != want {
		t.Fatalf("round trip: got %+v want %+v", got, want)
	}
}

func TestSignedCodecRejectsTamperAndWrongKey(t *testing.T) {
	c := NewSignedCodec([]byte("k1"), time.Minute)
	enc, err := c.Encode(Token{Provider: provider.Google})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if _, err := c.Decode(enc + "x"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("tampered decode err = %v, want ErrMalformed", err)
	}

	other := NewSignedCodec([]byte("k2"), time.Minute)
	if _, err := other.Decode(enc); !errors.Is(err, ErrMalformed) {
		t.Fatalf("wrong-key decode err = %v, want ErrMalformed", err)
	}

	// A plain token must not slip past the signed codec.
	plain, _ := PlainCodec{}.Encode(Token{Provider: provider.Google})
	if _, err := c.Decode(plain); !errors.Is(err, ErrMalformed) {
		t.Fatalf("plain-as-signed decode err = %v, want ErrMalformed", err)
	}
}

func TestSignedCodecExpiry(t *testing.T) {
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	c := NewSignedCodec([]byte("secret"), 5*time.Minute)
	c.now = func() time.Time { return base }

	enc, err := c.Encode(Token{Provider: provider.Google, Nonce: "n"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	c.now = func() time.Time { return base.Add(4 * time.Minute) }
	if _, err := c.Decode(enc); err != nil {
		t.Fatalf("decode before expiry: %v", err)
	}

	c.now = func() time.Time { return base.Add(6 * time.Minute) }
	if _, err := c.Decode(enc); !errors.Is(err, ErrMalformed) {
		t.Fatalf("decode after expiry err = %v, want ErrMalformed", err)
	}
}

func TestNewNonce(t *testing.T) {
	a, err := NewNonce(16)
	if err != nil {
		t.Fatalf("NewNonce: %v", err)
	}
	b, err := NewNonce(16)
	if err != nil {
		t.Fatalf("NewNonce: %v", err)
	}
	if a == b {
		t.Fatal("two nonces collided")
	}
	if len(a) == 0 {
		t.Fatal("empty nonce")
	}
}
