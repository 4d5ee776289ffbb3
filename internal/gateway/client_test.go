package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/khanasif1/twooter/internal/retry"
	"github.com/khanasif1/twooter/internal/session"
	apperrors "github.com/khanasif1/twooter/pkg/errors"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func newTestClient(t *testing.T, h http.HandlerFunc, sess *session.Session) (*Client, *sleepRecorder) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	rec := &sleepRecorder{}
	c := New(srv.URL, sess, quietLogger(), WithSleeper(rec.sleep))
	return c, rec
}

func authedSession(tok session.Token) *session.Session {
	s := session.New()
	s.Adopt("rosie", tok)
	return s
}

func TestDo_NotAuthenticatedWithoutNetwork(t *testing.T) {
	var hits int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}, session.New())

	_, err := c.Do(context.Background(), Request{Class: retry.ClassPost, Method: http.MethodPost, Path: "/twoots/", Body: map[string]string{}})

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotAuthenticated))
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestDo_BearerHeaders(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":7,"content":"hi"}}`))
	}, authedSession(session.Bearer("tok-1")))

	var out struct {
		ID int64 `json:"id"`
	}
	err := c.DoJSON(context.Background(), Request{Class: retry.ClassPost, Method: http.MethodPost, Path: "/twoots/", Body: map[string]string{"content": "hi"}}, &out)

	require.NoError(t, err)
	assert.Equal(t, int64(7), out.ID)
}

func TestDo_CookieSessionSendsNoAuthorization(t *testing.T) {
	var mu sync.Mutex
	var cookies []string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if ck, err := r.Cookie("sid"); err == nil {
			mu.Lock()
			cookies = append(cookies, ck.Value)
			mu.Unlock()
		}
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc", Path: "/"})
		w.Write([]byte(`{}`))
	}, authedSession(session.CookieSession()))

	for i := 0; i < 2; i++ {
		_, err := c.Do(context.Background(), Request{Class: retry.ClassRead, Method: http.MethodGet, Path: "/auth/me"})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"abc"}, cookies)
}

func TestDo_TokenOverride(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer cached", r.Header.Get("Authorization"))
		w.Write([]byte(`{}`))
	}, session.New())

	tok := session.Bearer("cached")
	_, err := c.Do(context.Background(), Request{Class: retry.ClassAuth, Method: http.MethodGet, Path: "/auth/me", Token: &tok})
	require.NoError(t, err)
}

func TestDo_RateLimitRetryBound(t *testing.T) {
	var hits int32
	c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"detail":"Too Many Requests"}`))
	}, authedSession(session.Bearer("tok")))

	_, err := c.Do(context.Background(), Request{Class: retry.ClassPost, Method: http.MethodPost, Path: "/twoots/", Body: map[string]string{}})

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeRateLimitExhausted))
	assert.Equal(t, int32(4), atomic.LoadInt32(&hits))
	assert.Equal(t, []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second}, rec.delays)
}

func TestDo_RateLimitMarkerInBody(t *testing.T) {
	var hits int32
	c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"RateLimitReached"}`))
			return
		}
		w.Write([]byte(`{"data":[]}`))
	}, authedSession(session.Bearer("tok")))

	_, err := c.Do(context.Background(), Request{Class: retry.ClassGenerate, Method: http.MethodGet, Path: "/feeds/trending"})

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{5 * time.Second}, rec.delays)
}

func TestDo_ConflictAndRejectedAreNotRetried(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   apperrors.ErrorCode
	}{
		{"conflict", http.StatusConflict, apperrors.CodeConflict},
		{"server error", http.StatusInternalServerError, apperrors.CodeRemoteRejected},
		{"unauthorized", http.StatusUnauthorized, apperrors.CodeRemoteRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits int32
			c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&hits, 1)
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"detail":"nope"}`))
			}, authedSession(session.Bearer("tok")))

			_, err := c.Do(context.Background(), Request{Class: retry.ClassPost, Method: http.MethodPost, Path: "/twoots/1/like", Body: struct{}{}})

			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, tt.code))
			appErr, ok := apperrors.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, tt.status, appErr.StatusCode)
			assert.Equal(t, `{"detail":"nope"}`, appErr.Body)
			assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
			assert.Empty(t, rec.delays)
		})
	}
}

func TestDo_AuthClassNeverRetries(t *testing.T) {
	var hits int32
	c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}, session.New())

	_, err := c.Do(context.Background(), Request{Class: retry.ClassAuth, Method: http.MethodPost, Path: "/auth/login", Auth: AuthNone, Body: map[string]string{}})

	assert.True(t, apperrors.HasCode(err, apperrors.CodeRateLimitExhausted))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Empty(t, rec.delays)
}

func TestDo_QueryEncoding(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "vote now", r.URL.Query().Get("query"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"data":[]}`))
	}, session.New())

	_, err := c.Do(context.Background(), Request{
		Class: retry.ClassRead, Method: http.MethodGet, Path: "/search", Auth: AuthOptional,
		Query: map[string][]string{"query": {"vote now"}, "limit": {"5"}},
	})
	require.NoError(t, err)
}

func TestDo_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()
	c := New(srv.URL, session.New(), quietLogger())

	_, err := c.Do(context.Background(), Request{Class: retry.ClassRead, Method: http.MethodGet, Path: "/feeds/latest", Auth: AuthNone})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeTransport))
}

func TestDecode_RawMessageKeepsWholeBody(t *testing.T) {
	resp := &Response{Body: []byte(`{"data":{"id":1},"message":"ok"}`)}
	var raw json.RawMessage
	require.NoError(t, resp.Decode(&raw))
	assert.JSONEq(t, `{"data":{"id":1},"message":"ok"}`, string(raw))
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 12*time.Second, parseRetryAfter("12"))
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon"))
	future := time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)
	assert.Greater(t, parseRetryAfter(future), 30*time.Second)
}

func TestAuthHeaders(t *testing.T) {
	h := AuthHeaders(session.Bearer("x"))
	assert.Equal(t, "Bearer x", h.Get("Authorization"))
	assert.Equal(t, "application/json", h.Get("Content-Type"))

	h = AuthHeaders(session.CookieSession())
	assert.Empty(t, h.Get("Authorization"))
	assert.Equal(t, "application/json", h.Get("Content-Type"))
}

func TestDo_UnauthorizedExpiresSession(t *testing.T) {
	var expired []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"token expired"}`))
	}))
	t.Cleanup(srv.Close)

	sess := authedSession(session.Bearer("stale"))
	c := New(srv.URL, sess, quietLogger(), WithExpiryHook(func(_ context.Context, username string) {
		expired = append(expired, username)
	}))

	_, err := c.Do(context.Background(), Request{Class: retry.ClassRead, Method: http.MethodGet, Path: "/feeds/home"})

	assert.True(t, apperrors.HasCode(err, apperrors.CodeRemoteRejected))
	assert.Equal(t, session.Unauthenticated, sess.State())
	assert.Equal(t, []string{"rosie"}, expired)

	// later calls fail fast until someone authenticates again
	_, err = c.Do(context.Background(), Request{Class: retry.ClassRead, Method: http.MethodGet, Path: "/feeds/home"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotAuthenticated))
	assert.Len(t, expired, 1)
}

func TestDo_UnauthorizedLeavesSessionForOtherTokens(t *testing.T) {
	var expired int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	sess := authedSession(session.Bearer("live"))
	c := New(srv.URL, sess, quietLogger())
	c.OnTokenExpired(func(context.Context, string) { expired++ })

	other := session.Bearer("cached")
	_, err := c.Do(context.Background(), Request{Class: retry.ClassAuth, Method: http.MethodGet, Path: "/auth/me", Token: &other})
	require.Error(t, err)
	_, err = c.Do(context.Background(), Request{Class: retry.ClassAuth, Method: http.MethodPost, Path: "/auth/login", Auth: AuthNone})
	require.Error(t, err)

	assert.True(t, sess.IsAuthenticated())
	assert.Equal(t, "live", sess.Token().BearerValue())
	assert.Zero(t, expired)
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "héé...", truncate("hééllo", 3))
	assert.Equal(t, "🙂🙂...", truncate("🙂🙂🙂", 2))
}
