package models

import "strings"

// Identities are opaque email-shaped strings supplied by an external auth
// collaborator. They are case-insensitive; CanonIdentity is applied at
// every boundary so the rest of the system only sees canonical form.
func CanonIdentity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// DialogKey returns the canonical key for the unordered identity pair
// {a, b}. It is symmetric: DialogKey(a, b) == DialogKey(b, a). The '|'
// separator is rejected inside identities by validation, so the key is
// unambiguous.
func DialogKey(a, b string) string {
	a, b = CanonIdentity(a), CanonIdentity(b)
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// DialogParticipants splits a dialog key back into its two identities.
func DialogParticipants(key string) (string, string) {
	if i := strings.IndexByte(key, '|'); i >= 0 {
		return key[:i], key[i+1:]
	}
	return key, ""
}

// DialogSummary is the read-model returned by dialog listings.
type DialogSummary struct {
	Key          string   `json:"key"`
	Participants []string `json:"participants"`
	Messages     int      `json:"messages"`
	LastTS       int64    `json:"last_ts,omitempty"`
}
