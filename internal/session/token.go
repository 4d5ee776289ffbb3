package session

import "strings"

// CookieSentinel is the value persisted in place of a bearer token when the
// server authenticated through cookies only.
const CookieSentinel = "session-based"

// legacySentinel is accepted on decode for records written by older tooling.
const legacySentinel = "session_based"

// Token is either a bearer credential or the cookie-session marker.
// The zero value is "no token".
type Token struct {
	bearer string
	cookie bool
}

// Bearer returns a bearer token. A blank value yields the zero Token.
func Bearer(v string) Token {
	return Token{bearer: strings.TrimSpace(v)}
}

// CookieSession returns the cookie-session marker token.
func CookieSession() Token {
	return Token{cookie: true}
}

// IsZero reports whether no token is held.
func (t Token) IsZero() bool {
	return !t.cookie && t.bearer == ""
}

// IsCookieSession reports whether the token is the cookie-session marker.
func (t Token) IsCookieSession() bool {
	return t.cookie
}

// BearerValue returns the bearer string, or "" for cookie sessions.
func (t Token) BearerValue() string {
	return t.bearer
}

// Encode returns the persisted form of the token.
func (t Token) Encode() string {
	if t.cookie {
		return CookieSentinel
	}
	return t.bearer
}

// Decode parses a persisted token value.
func Decode(v string) Token {
	switch v {
	case CookieSentinel, legacySentinel:
		return CookieSession()
	default:
		return Bearer(v)
	}
}

// String hides the credential.
func (t Token) String() string {
	switch {
	case t.cookie:
		return "cookie-session"
	case t.bearer == "":
		return "none"
	default:
		return "bearer(***)"
	}
}
