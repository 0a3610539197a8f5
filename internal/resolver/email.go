package resolver

import "strings"

// CanonicalGmailAddress collapses Gmail alias variants to one canonical
// identity: the +tag suffix and the dots in the local part are ignored by
// Gmail routing, and googlemail.com is the same mailbox as gmail.com.
// Non-Gmail domains only get lower-casing.
func CanonicalGmailAddress(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return email
	}
	local, domain := email[:at], email[at+1:]
	if domain != "gmail.com" && domain != "googlemail.com" {
		return local + "@" + domain
	}
	if plus := strings.Index(local, "+"); plus >= 0 {
		local = local[:plus]
	}
	local = strings.ReplaceAll(local, ".", "")
	return local + "@gmail.com"
}

// EmailDomain returns the part after the last "@", lower-cased.
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}
