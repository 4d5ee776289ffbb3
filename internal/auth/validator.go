package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/khanasif1/twooter/internal/session"
	"github.com/khanasif1/twooter/internal/store"

	"github.com/sirupsen/logrus"
)

// Validator decides whether a cached token can be reused. It never touches
// the session unless /auth/me accepts the cached token.
type Validator struct {
	api     *API
	store   store.CredentialStore
	session *session.Session
	logger  *logrus.Logger
}

func NewValidator(api *API, st store.CredentialStore, sess *session.Session, logger *logrus.Logger) *Validator {
	return &Validator{api: api, store: st, session: sess, logger: logger}
}

// Validate returns true and adopts the cached token when GET /auth/me accepts
// it. Any other outcome deletes the cached record and returns false. Storage
// failures are treated as a cache miss.
func (v *Validator) Validate(ctx context.Context, username string) bool {
	log := v.logger.WithField("username", username)

	rec, found, err := v.store.Get(ctx, username)
	if err != nil {
		log.WithError(err).Warn("Credential store lookup failed, treating as cache miss")
		return false
	}
	if !found {
		log.Debug("No cached token")
		return false
	}
	if rec.Token.IsZero() {
		log.Info("Cached record has no token, discarding")
		v.discard(ctx, username)
		return false
	}

	// cookie sessions only live as long as the process that opened them
	if rec.Token.IsCookieSession() {
		log.Info("Cached cookie session cannot be reused, discarding")
		v.discard(ctx, username)
		return false
	}

	tok := rec.Token
	_, status, err := v.api.Me(ctx, &tok)
	if err != nil || status != http.StatusOK {
		log.WithError(err).WithField("status_code", status).Info("Cached token rejected, discarding")
		v.discard(ctx, username)
		return false
	}

	v.session.Adopt(username, tok)
	entry := log
	if exp, ok := tokenExpiry(tok); ok {
		entry = entry.WithField("expires_in", time.Until(exp).Round(time.Second).String())
	}
	entry.Info("Reusing cached token")
	return true
}

func (v *Validator) discard(ctx context.Context, username string) {
	if err := v.store.Delete(ctx, username); err != nil {
		v.logger.WithError(err).WithField("username", username).Warn("Failed to delete cached token")
	}
}
