package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/khanasif1/twooter/internal/config"
	"github.com/khanasif1/twooter/internal/gateway"
	"github.com/khanasif1/twooter/internal/session"
	"github.com/khanasif1/twooter/internal/store"
	apperrors "github.com/khanasif1/twooter/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer answers the /auth endpoints from a table and records every hit.
type fakeServer struct {
	mu     sync.Mutex
	hits   []string
	auths  []string
	routes map[string]func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.hits = append(f.hits, r.Method+" "+r.URL.Path)
	f.auths = append(f.auths, r.Header.Get("Authorization"))
	h, ok := f.routes[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h(w, r)
}

func (f *fakeServer) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.hits...)
}

func (f *fakeServer) authorization(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auths[i]
}

func reply(status int, body string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

type harness struct {
	server  *fakeServer
	store   store.CredentialStore
	session *session.Session
	auth    *Authenticator
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func noSleep(context.Context, time.Duration) error { return nil }

func newHarness(t *testing.T, policy string, routes map[string]func(w http.ResponseWriter, r *http.Request)) *harness {
	t.Helper()

	fs := &fakeServer{routes: routes}
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "tokens.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return newHarnessWithStore(t, srv.URL, fs, st, policy)
}

func newHarnessWithStore(t *testing.T, baseURL string, fs *fakeServer, st store.CredentialStore, policy string) *harness {
	t.Helper()
	logger := quietLogger()
	sess := session.New()
	gw := gateway.New(baseURL, sess, logger, gateway.WithSleeper(noSleep))
	api := NewAPI(gw)
	v := NewValidator(api, st, sess, logger)
	return &harness{
		server:  fs,
		store:   st,
		session: sess,
		auth:    NewAuthenticator(api, v, st, sess, policy, logger),
	}
}

var rosie = Identity{Username: "rosie", Password: "hunter2", Email: "rosie@example.com", DisplayName: "Rosie"}

func TestAuthenticate_LoginSucceedsAndPersists(t *testing.T) {
	h := newHarness(t, config.PolicyLoginFirst, map[string]func(http.ResponseWriter, *http.Request){
		"POST /auth/login": reply(http.StatusOK, `{"token":"tok-login","user":{"username":"rosie"}}`),
	})

	res, err := h.auth.Authenticate(context.Background(), rosie, Intents{BotKey: "k"})

	require.NoError(t, err)
	assert.Equal(t, string(MethodLogin), res.Method)
	assert.False(t, res.CookieSession)
	assert.Equal(t, []string{"POST /auth/login"}, h.server.calls())
	assert.Equal(t, session.Authenticated, h.session.State())
	assert.Equal(t, "tok-login", h.session.Token().BearerValue())

	rec, found, err := h.store.Get(context.Background(), "rosie")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "tok-login", rec.Token.BearerValue())
	assert.JSONEq(t, `{"token":"tok-login","user":{"username":"rosie"}}`, string(rec.Profile))
}

func TestAuthenticate_FallsBackBotKeyBeforeInvite(t *testing.T) {
	h := newHarness(t, config.PolicyLoginFirst, map[string]func(http.ResponseWriter, *http.Request){
		"POST /auth/login":        reply(http.StatusUnauthorized, `{"detail":"bad credentials"}`),
		"POST /auth/register-bot": reply(http.StatusCreated, `{"data":{"access_token":"tok-bot"}}`),
		"POST /auth/register":     reply(http.StatusCreated, `{"token":"tok-invite"}`),
	})

	res, err := h.auth.Authenticate(context.Background(), rosie, Intents{BotKey: "key", InviteCode: "inv"})

	require.NoError(t, err)
	assert.Equal(t, string(MethodBotKey), res.Method)
	assert.Equal(t, []string{"POST /auth/login", "POST /auth/register-bot"}, h.server.calls())
	assert.Equal(t, "tok-bot", h.session.Token().BearerValue())
}

func TestAuthenticate_SkipsLoginWithoutPassword(t *testing.T) {
	h := newHarness(t, config.PolicyLoginFirst, map[string]func(http.ResponseWriter, *http.Request){
		"POST /auth/register": reply(http.StatusOK, `{"token":"tok-invite"}`),
	})

	id := rosie
	id.Password = "  "
	res, err := h.auth.Authenticate(context.Background(), id, Intents{InviteCode: "inv"})

	require.NoError(t, err)
	assert.Equal(t, string(MethodInvite), res.Method)
	assert.Equal(t, []string{"POST /auth/register"}, h.server.calls())
}

func TestAuthenticate_NewTeamRequiresAllFields(t *testing.T) {
	h := newHarness(t, config.PolicyLoginFirst, map[string]func(http.ResponseWriter, *http.Request){
		"POST /auth/login":         reply(http.StatusUnauthorized, `{}`),
		"POST /auth/register-team": reply(http.StatusCreated, `{"token":"tok-team"}`),
	})

	_, err := h.auth.Authenticate(context.Background(), rosie, Intents{NewTeam: &NewTeam{Name: "Blue", Affiliation: "Uni"}})
	require.Error(t, err)
	assert.NotContains(t, h.server.calls(), "POST /auth/register-team")

	team := &NewTeam{Name: "Blue", Affiliation: "Uni", MemberName: "Rosie", MemberEmail: "r@example.com"}
	res, err := h.auth.Authenticate(context.Background(), rosie, Intents{NewTeam: team})
	require.NoError(t, err)
	assert.Equal(t, string(MethodNewTeam), res.Method)
}

func TestAuthenticate_Exhausted(t *testing.T) {
	h := newHarness(t, config.PolicyLoginFirst, map[string]func(http.ResponseWriter, *http.Request){
		"POST /auth/login":        reply(http.StatusUnauthorized, `{"detail":"no"}`),
		"POST /auth/register-bot": reply(http.StatusBadRequest, `{"detail":"bad key"}`),
	})

	res, err := h.auth.Authenticate(context.Background(), rosie, Intents{BotKey: "key"})

	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAuthenticationExhausted))

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	require.Len(t, exhausted.Failures, 2)
	assert.Equal(t, MethodLogin, exhausted.Failures[0].Method)
	assert.Equal(t, MethodBotKey, exhausted.Failures[1].Method)
	assert.True(t, apperrors.HasCode(exhausted.Failures[1].Err, apperrors.CodeRemoteRejected))

	assert.Equal(t, session.Unauthenticated, h.session.State())
	_, found, err := h.store.Get(context.Background(), "rosie")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAuthenticate_LoginRejectsCreated(t *testing.T) {
	h := newHarness(t, config.PolicyLoginFirst, map[string]func(http.ResponseWriter, *http.Request){
		"POST /auth/login": reply(http.StatusCreated, `{"token":"odd"}`),
	})

	_, err := h.auth.Authenticate(context.Background(), rosie, Intents{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAuthenticationExhausted))
}

func TestAuthenticate_RegisterFirstPolicy(t *testing.T) {
	h := newHarness(t, config.PolicyRegisterFirst, map[string]func(http.ResponseWriter, *http.Request){
		"POST /auth/register-bot": reply(http.StatusConflict, `{"detail":"username taken"}`),
		"POST /auth/login":        reply(http.StatusOK, `{"token":"tok-login"}`),
	})

	res, err := h.auth.Authenticate(context.Background(), rosie, Intents{BotKey: "key"})

	require.NoError(t, err)
	assert.Equal(t, string(MethodLogin), res.Method)
	assert.Equal(t, []string{"POST /auth/register-bot", "POST /auth/login"}, h.server.calls())
}

func TestAuthenticate_CookieSession(t *testing.T) {
	h := newHarness(t, config.PolicyLoginFirst, map[string]func(http.ResponseWriter, *http.Request){
		"POST /auth/login": func(w http.ResponseWriter, r *http.Request) {
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "s1", Path: "/"})
			reply(http.StatusOK, `{"user":{"username":"rosie"}}`)(w, r)
		},
		"GET /auth/me": func(w http.ResponseWriter, r *http.Request) {
			ck, err := r.Cookie("session")
			if err != nil || ck.Value != "s1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			reply(http.StatusOK, `{"username":"rosie"}`)(w, r)
		},
	})

	res, err := h.auth.Authenticate(context.Background(), rosie, Intents{})
	require.NoError(t, err)
	assert.True(t, res.CookieSession)
	assert.True(t, h.session.Token().IsCookieSession())

	rec, found, err := h.store.Get(context.Background(), "rosie")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, rec.Token.IsCookieSession())

	profile, err := h.auth.Whoami(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"username":"rosie"}`, string(profile))
}

func TestAuthenticate_ReusesCachedToken(t *testing.T) {
	h := newHarness(t, config.PolicyLoginFirst, map[string]func(http.ResponseWriter, *http.Request){
		"GET /auth/me": reply(http.StatusOK, `{"username":"rosie"}`),
	})
	require.NoError(t, h.store.Put(context.Background(), "rosie", session.Bearer("cached"), json.RawMessage(`{"username":"rosie"}`)))

	// password, bot key and invite code are all available; none may be used
	res, err := h.auth.Authenticate(context.Background(), rosie, Intents{BotKey: "key", InviteCode: "inv"})

	require.NoError(t, err)
	assert.Equal(t, string(MethodCached), res.Method)
	assert.JSONEq(t, `{"username":"rosie"}`, string(res.Profile))
	assert.Equal(t, []string{"GET /auth/me"}, h.server.calls())
	assert.Equal(t, "Bearer cached", h.server.authorization(0))
	assert.Equal(t, "cached", h.session.Token().BearerValue())
}

func TestAuthenticate_ReportsTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "rosie", "exp": exp.Unix()}).SignedString([]byte("secret"))
	require.NoError(t, err)

	h := newHarness(t, config.PolicyLoginFirst, map[string]func(http.ResponseWriter, *http.Request){
		"POST /auth/login": reply(http.StatusOK, `{"token":"`+signed+`"}`),
	})

	res, err := h.auth.Authenticate(context.Background(), rosie, Intents{})
	require.NoError(t, err)
	assert.Equal(t, exp.Unix(), res.ExpiresAt)
}

func TestAuthenticate_RequiresUsername(t *testing.T) {
	h := newHarness(t, config.PolicyLoginFirst, nil)
	_, err := h.auth.Authenticate(context.Background(), Identity{}, Intents{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeBadRequest))
	assert.Empty(t, h.server.calls())
}

func TestValidate_NoRecordMeansNoNetwork(t *testing.T) {
	h := newHarness(t, config.PolicyLoginFirst, nil)

	assert.False(t, h.auth.validator.Validate(context.Background(), "rosie"))
	assert.Empty(t, h.server.calls())
	assert.Equal(t, session.Unauthenticated, h.session.State())
}

func TestValidate_CookieSentinelDeletedWithoutNetwork(t *testing.T) {
	for _, username := range []string{"rosie", "victor_bot", "a", "Team-Blue.42"} {
		t.Run(username, func(t *testing.T) {
			h := newHarness(t, config.PolicyLoginFirst, nil)
			require.NoError(t, h.store.Put(context.Background(), username, session.CookieSession(), nil))

			assert.False(t, h.auth.validator.Validate(context.Background(), username))
			assert.Empty(t, h.server.calls())
			assert.Equal(t, session.Unauthenticated, h.session.State())

			_, found, err := h.store.Get(context.Background(), username)
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}

func TestValidate_EmptyTokenRecordDeleted(t *testing.T) {
	h := newHarness(t, config.PolicyLoginFirst, nil)
	require.NoError(t, h.store.Put(context.Background(), "rosie", session.Token{}, nil))

	assert.False(t, h.auth.validator.Validate(context.Background(), "rosie"))
	assert.Empty(t, h.server.calls())

	_, found, err := h.store.Get(context.Background(), "rosie")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestValidate_RejectedTokenIsDeleted(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusInternalServerError} {
		h := newHarness(t, config.PolicyLoginFirst, map[string]func(http.ResponseWriter, *http.Request){
			"GET /auth/me": reply(status, `{"detail":"expired"}`),
		})
		require.NoError(t, h.store.Put(context.Background(), "rosie", session.Bearer("stale"), nil))

		assert.False(t, h.auth.validator.Validate(context.Background(), "rosie"))
		assert.Equal(t, []string{"GET /auth/me"}, h.server.calls())
		assert.Equal(t, session.Unauthenticated, h.session.State())

		_, found, err := h.store.Get(context.Background(), "rosie")
		require.NoError(t, err)
		assert.False(t, found, "status %d", status)
	}
}

type brokenStore struct{ deletes int }

func (b *brokenStore) Put(context.Context, string, session.Token, json.RawMessage) error {
	return apperrors.NewAppError(apperrors.CodeStorage, "disk gone", nil)
}

func (b *brokenStore) Get(context.Context, string) (store.Record, bool, error) {
	return store.Record{}, false, apperrors.NewAppError(apperrors.CodeStorage, "disk gone", nil)
}

func (b *brokenStore) Delete(context.Context, string) error {
	b.deletes++
	return nil
}

func (b *brokenStore) Close() error { return nil }

func TestAuthenticate_StorageFailureIsNotFatal(t *testing.T) {
	fs := &fakeServer{routes: map[string]func(http.ResponseWriter, *http.Request){
		"POST /auth/login": reply(http.StatusOK, `{"token":"fresh"}`),
	}}
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)

	bs := &brokenStore{}
	h := newHarnessWithStore(t, srv.URL, fs, bs, config.PolicyLoginFirst)

	res, err := h.auth.Authenticate(context.Background(), rosie, Intents{})

	require.NoError(t, err)
	assert.Equal(t, string(MethodLogin), res.Method)
	assert.Equal(t, []string{"POST /auth/login"}, fs.calls())
	assert.Equal(t, 0, bs.deletes)
	assert.True(t, h.session.IsAuthenticated())
}

func TestLogout(t *testing.T) {
	h := newHarness(t, config.PolicyLoginFirst, map[string]func(http.ResponseWriter, *http.Request){
		"POST /auth/login":  reply(http.StatusOK, `{"token":"tok"}`),
		"POST /auth/logout": reply(http.StatusOK, `{}`),
	})
	_, err := h.auth.Authenticate(context.Background(), rosie, Intents{})
	require.NoError(t, err)

	require.NoError(t, h.auth.Logout(context.Background(), "rosie"))

	assert.Equal(t, []string{"POST /auth/login", "POST /auth/logout"}, h.server.calls())
	assert.Equal(t, session.Unauthenticated, h.session.State())
	_, found, err := h.store.Get(context.Background(), "rosie")
	require.NoError(t, err)
	assert.False(t, found)

	_, err = h.auth.Whoami(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotAuthenticated))
}

func TestAuthenticate_AfterServerRejectsToken(t *testing.T) {
	var logins int
	h := newHarness(t, config.PolicyLoginFirst, map[string]func(http.ResponseWriter, *http.Request){
		"POST /auth/login": func(w http.ResponseWriter, r *http.Request) {
			logins++
			reply(http.StatusOK, fmt.Sprintf(`{"token":"tok-%d"}`, logins))(w, r)
		},
		"GET /auth/me": func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "Bearer tok-1" {
				reply(http.StatusUnauthorized, `{"detail":"token expired"}`)(w, r)
				return
			}
			reply(http.StatusOK, `{"username":"rosie"}`)(w, r)
		},
	})
	_, err := h.auth.Authenticate(context.Background(), rosie, Intents{})
	require.NoError(t, err)

	_, err = h.auth.Whoami(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.CodeRemoteRejected))
	assert.Equal(t, session.Unauthenticated, h.session.State())
	_, found, err := h.store.Get(context.Background(), "rosie")
	require.NoError(t, err)
	assert.False(t, found)

	res, err := h.auth.Authenticate(context.Background(), rosie, Intents{})
	require.NoError(t, err)
	assert.Equal(t, string(MethodLogin), res.Method)
	assert.Equal(t, "tok-2", h.session.Token().BearerValue())
	assert.Equal(t, []string{"POST /auth/login", "GET /auth/me", "POST /auth/login"}, h.server.calls())
}

func TestIntentsFromConfig(t *testing.T) {
	in := IntentsFromConfig(config.TeamConfig{BotKey: " key ", Name: "Blue", Affiliation: "Uni"})
	assert.Equal(t, "key", in.BotKey)
	assert.Nil(t, in.NewTeam)

	in = IntentsFromConfig(config.TeamConfig{Name: "Blue", Affiliation: "Uni", MemberName: "R", MemberEmail: "r@x"})
	require.NotNil(t, in.NewTeam)
	assert.Equal(t, "Blue", in.NewTeam.Name)
}

func TestCredentialFrom(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		bearer string
	}{
		{"top level token", `{"token":"a"}`, "a"},
		{"top level access_token", `{"access_token":"b"}`, "b"},
		{"nested under data", `{"data":{"token":"c"}}`, "c"},
		{"cookie session", `{"user":{"id":1}}`, ""},
		{"not json", `ok`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cred := credentialFrom([]byte(tt.body))
			if tt.bearer == "" {
				assert.True(t, cred.Token.IsCookieSession())
				return
			}
			assert.Equal(t, tt.bearer, cred.Token.BearerValue())
			assert.JSONEq(t, tt.body, string(cred.Profile))
		})
	}
}
