package resolver

import "testing"

func TestCanonicalGmailAddress(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"john.doe@gmail.com", "johndoe@gmail.com"},
		{"J.o.h.n@GMAIL.com", "john@gmail.com"},
		{"john+promo@gmail.com", "john@gmail.com"},
		{"j.ohn+a+b@googlemail.com", "john@gmail.com"},
		{"john@example.com", "john@example.com"},
		{"John.Doe@Example.COM", "john.doe@example.com"},
		{"dots.kept+tag@outlook.com", "dots.kept+tag@outlook.com"},
		{"", ""},
		{"not-an-email", "not-an-email"},
	}
	for _, tc := range cases {
		if got := CanonicalGmailAddress(tc.in); got != tc.want {
			t.Errorf("CanonicalGmailAddress(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEmailDomain(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"a@b.com", "b.com"},
		{"a@B.COM", "b.com"},
		{"nodomain", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := EmailDomain(tc.in); got != tc.want {
			t.Errorf("EmailDomain(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
