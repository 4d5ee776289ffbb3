package auth

import (
	"time"

	"github.com/khanasif1/twooter/internal/session"

	"github.com/golang-jwt/jwt/v5"
)

// tokenExpiry reads the exp claim of a JWT bearer token without verifying it.
// The bot cannot verify server signatures; the value is informational only.
func tokenExpiry(tok session.Token) (time.Time, bool) {
	raw := tok.BearerValue()
	if raw == "" {
		return time.Time{}, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
