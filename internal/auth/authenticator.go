package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/khanasif1/twooter/internal/config"
	"github.com/khanasif1/twooter/internal/metrics"
	"github.com/khanasif1/twooter/internal/models"
	"github.com/khanasif1/twooter/internal/session"
	"github.com/khanasif1/twooter/internal/store"
	apperrors "github.com/khanasif1/twooter/pkg/errors"

	"github.com/sirupsen/logrus"
)

// StepFailure records why one attempted step failed.
type StepFailure struct {
	Method Method
	Err    error
}

// ExhaustedError is returned when every applicable step failed or was skipped.
type ExhaustedError struct {
	Username string
	Failures []StepFailure
}

func (e *ExhaustedError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("authentication exhausted for %s: no method applicable", e.Username)
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Method, f.Err))
	}
	return fmt.Sprintf("authentication exhausted for %s: %s", e.Username, strings.Join(parts, "; "))
}

func (e *ExhaustedError) ErrorCode() apperrors.ErrorCode {
	return apperrors.CodeAuthenticationExhausted
}

// Authenticator drives the fallback chain: cached token, then the configured
// order of password login and registrations.
type Authenticator struct {
	api       *API
	validator *Validator
	store     store.CredentialStore
	session   *session.Session
	policy    string
	logger    *logrus.Logger
}

func NewAuthenticator(api *API, validator *Validator, st store.CredentialStore, sess *session.Session, policy string, logger *logrus.Logger) *Authenticator {
	if policy == "" {
		policy = config.PolicyLoginFirst
	}
	a := &Authenticator{
		api:       api,
		validator: validator,
		store:     st,
		session:   sess,
		policy:    policy,
		logger:    logger,
	}
	api.gw.OnTokenExpired(a.forget)
	return a
}

// forget drops the cached credential of a user whose token the server
// rejected, so the next Authenticate goes straight to the fallback steps.
func (a *Authenticator) forget(ctx context.Context, username string) {
	if blank(username) {
		return
	}
	if err := a.store.Delete(ctx, username); err != nil {
		a.logger.WithError(err).WithField("username", username).Warn("Failed to delete expired credential")
	}
}

// Session returns the session this authenticator populates.
func (a *Authenticator) Session() *session.Session {
	return a.session
}

func (a *Authenticator) steps() []step {
	registrations := []step{a.botKeyStep(), a.inviteStep(), a.newTeamStep()}
	if a.policy == config.PolicyRegisterFirst {
		return append(registrations, a.loginStep())
	}
	return append([]step{a.loginStep()}, registrations...)
}

// Authenticate establishes a session for id. On success the session is
// Authenticated and the credential has been written to the store.
func (a *Authenticator) Authenticate(ctx context.Context, id Identity, intents Intents) (*models.ProfileResult, error) {
	if blank(id.Username) {
		return nil, apperrors.NewAppError(apperrors.CodeBadRequest, "username is required", nil)
	}
	log := a.logger.WithFields(logrus.Fields{"username": id.Username, "policy": a.policy})

	if a.validator.Validate(ctx, id.Username) {
		metrics.RecordAuthStep(string(MethodCached), string(Succeeded))
		return a.cachedResult(ctx, id.Username), nil
	}
	metrics.RecordAuthStep(string(MethodCached), string(Failed))

	var failures []StepFailure
	for _, s := range a.steps() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res := s.run(ctx, id, intents)
		metrics.RecordAuthStep(string(res.Method), string(res.Outcome))

		switch res.Outcome {
		case Skipped:
			log.WithField("method", res.Method).Debug("Authentication step skipped")
		case Failed:
			log.WithError(res.Err).WithField("method", res.Method).Warn("Authentication step failed")
			failures = append(failures, StepFailure{Method: res.Method, Err: res.Err})
		case Succeeded:
			log.WithField("method", res.Method).Info("Authenticated")
			return a.adopt(ctx, id.Username, res), nil
		}
	}

	return nil, &ExhaustedError{Username: id.Username, Failures: failures}
}

func (a *Authenticator) adopt(ctx context.Context, username string, res StepResult) *models.ProfileResult {
	a.session.Adopt(username, res.Credential.Token)

	if err := a.store.Put(ctx, username, res.Credential.Token, res.Credential.Profile); err != nil {
		a.logger.WithError(err).WithField("username", username).Warn("Failed to persist credential")
	}

	return profileResult(username, res.Method, res.Credential.Token, res.Credential.Profile)
}

func (a *Authenticator) cachedResult(ctx context.Context, username string) *models.ProfileResult {
	var profile json.RawMessage
	if rec, found, err := a.store.Get(ctx, username); err == nil && found {
		profile = rec.Profile
	}
	return profileResult(username, MethodCached, a.session.Token(), profile)
}

func profileResult(username string, m Method, tok session.Token, profile json.RawMessage) *models.ProfileResult {
	out := &models.ProfileResult{
		Username:      username,
		Method:        string(m),
		Profile:       profile,
		CookieSession: tok.IsCookieSession(),
	}
	if exp, ok := tokenExpiry(tok); ok {
		out.ExpiresAt = exp.Unix()
	}
	return out
}

// Logout ends the server session when one is active, then forgets the
// cached credential. The server call is best effort.
func (a *Authenticator) Logout(ctx context.Context, username string) error {
	if a.session.IsAuthenticated() {
		if err := a.api.Logout(ctx); err != nil {
			a.logger.WithError(err).Warn("Server logout failed")
		}
	}
	a.session.Clear()

	if blank(username) {
		return nil
	}
	if err := a.store.Delete(ctx, username); err != nil {
		return err
	}
	return nil
}

// Whoami returns the profile the server associates with the current session.
func (a *Authenticator) Whoami(ctx context.Context) (json.RawMessage, error) {
	if !a.session.IsAuthenticated() {
		return nil, apperrors.NewAppError(apperrors.CodeNotAuthenticated, "no active session", nil)
	}
	body, _, err := a.api.Me(ctx, nil)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// IdentityFromConfig builds the bot identity from configuration.
func IdentityFromConfig(cfg config.BotConfig) Identity {
	return Identity{
		Username:    strings.TrimSpace(cfg.Username),
		Password:    cfg.Password,
		Email:       strings.TrimSpace(cfg.Email),
		DisplayName: strings.TrimSpace(cfg.DisplayName),
	}
}

// IntentsFromConfig builds registration intents from configuration. The new
// team intent is only set when every field is present.
func IntentsFromConfig(cfg config.TeamConfig) Intents {
	in := Intents{
		BotKey:     strings.TrimSpace(cfg.BotKey),
		InviteCode: strings.TrimSpace(cfg.InviteCode),
	}
	team := &NewTeam{
		Name:        strings.TrimSpace(cfg.Name),
		Affiliation: strings.TrimSpace(cfg.Affiliation),
		MemberName:  strings.TrimSpace(cfg.MemberName),
		MemberEmail: strings.TrimSpace(cfg.MemberEmail),
	}
	if team.complete() {
		in.NewTeam = team
	}
	return in
}
