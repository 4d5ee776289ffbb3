// Package gateway sends every Twooter API call: it injects credentials,
// interprets status codes and retries rate-limited calls.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/khanasif1/twooter/internal/config"
	"github.com/khanasif1/twooter/internal/metrics"
	"github.com/khanasif1/twooter/internal/models"
	"github.com/khanasif1/twooter/internal/retry"
	"github.com/khanasif1/twooter/internal/session"
	"github.com/khanasif1/twooter/internal/tracing"
	apperrors "github.com/khanasif1/twooter/pkg/errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/net/publicsuffix"
)

const (
	userAgent       = "twooter-go"
	maxResponseBody = 4 << 20
)

// rateLimitMarkers identify throttling responses that do not use status 429.
var rateLimitMarkers = []string{"Too Many Requests", "RateLimitReached"}

// AuthMode controls credential injection for a request.
type AuthMode int

const (
	// AuthRequired fails with NOT_AUTHENTICATED when no token is held.
	AuthRequired AuthMode = iota
	// AuthOptional sends credentials only when a token is held.
	AuthOptional
	// AuthNone never sends credentials.
	AuthNone
)

// Request describes one API call.
type Request struct {
	Class  retry.Class
	Method string
	Path   string
	Query  url.Values
	Body   interface{}
	Auth   AuthMode
	// Token, when set, is used instead of the session token.
	Token *session.Token
}

// Response is a successful (2xx) API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the response payload, unwrapping a "data" envelope.
func (r *Response) Decode(out interface{}) error {
	return decodeData(r.Body, out)
}

// Client is the authenticated request gateway.
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    *session.Session
	policies   retry.Policies
	sleep      retry.Sleeper
	onExpired  ExpiryHook
	logger     *logrus.Logger
}

// ExpiryHook is told which user's session token the server rejected with 401.
type ExpiryHook func(ctx context.Context, username string)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Cookie sessions need a client with a jar.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithPolicies replaces the per-class retry schedules.
func WithPolicies(p retry.Policies) Option {
	return func(c *Client) { c.policies = p }
}

// WithSleeper replaces the backoff sleeper.
func WithSleeper(s retry.Sleeper) Option {
	return func(c *Client) { c.sleep = s }
}

// WithExpiryHook sets the callback run after a session token is rejected.
func WithExpiryHook(h ExpiryHook) Option {
	return func(c *Client) { c.onExpired = h }
}

// New creates a gateway bound to sess.
func New(baseURL string, sess *session.Session, logger *logrus.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		session:  sess,
		policies: retry.DefaultPolicies(),
		sleep:    retry.SleepContext,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = NewHTTPClient(30 * time.Second)
	}
	return c
}

// NewFromConfig creates a gateway from application config.
func NewFromConfig(cfg *config.Config, sess *session.Session, logger *logrus.Logger, opts ...Option) *Client {
	base := []Option{
		WithHTTPClient(NewHTTPClient(cfg.API.Timeout)),
		WithPolicies(retry.PoliciesFromConfig(&cfg.Retry)),
	}
	return New(cfg.API.BaseURL, sess, logger, append(base, opts...)...)
}

// NewHTTPClient returns an HTTP client with a cookie jar for cookie-based sessions.
func NewHTTPClient(timeout time.Duration) *http.Client {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	return &http.Client{
		Timeout: timeout,
		Jar:     jar,
	}
}

// Session returns the session this gateway authenticates with.
func (c *Client) Session() *session.Session {
	return c.session
}

// OnTokenExpired replaces the expiry hook. It must be set before the client
// is shared between goroutines.
func (c *Client) OnTokenExpired(h ExpiryHook) {
	c.onExpired = h
}

// Logger returns the gateway logger.
func (c *Client) Logger() *logrus.Logger {
	return c.logger
}

// Policies returns the configured retry schedules.
func (c *Client) Policies() retry.Policies {
	return c.policies
}

// Sleeper returns the sleeper used for backoff.
func (c *Client) Sleeper() retry.Sleeper {
	return c.sleep
}

// AuthHeaders returns the headers attached for tok. Cookie sessions rely on
// the jar and get no Authorization header.
func AuthHeaders(tok session.Token) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	if v := tok.BearerValue(); v != "" && !tok.IsCookieSession() {
		h.Set("Authorization", "Bearer "+v)
	}
	return h
}

// Do sends req, retrying rate-limited responses per the request's class.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	policy := c.policies.For(req.Class)

	hook := func(attempt int, delay time.Duration, err error) {
		metrics.RecordRateLimitRetry(string(req.Class))
		c.logger.WithFields(logrus.Fields{
			"class":   req.Class,
			"method":  req.Method,
			"path":    req.Path,
			"attempt": attempt,
			"delay":   delay.String(),
		}).Warn("Rate limited, backing off")
	}

	attempt := 0
	resp, err := retry.Do(ctx, policy, c.sleep, hook, func(ctx context.Context) (*Response, error) {
		attempt++
		return c.send(ctx, req, attempt)
	})
	if apperrors.HasCode(err, apperrors.CodeRateLimitExhausted) {
		metrics.RecordRateLimitExhausted(string(req.Class))
		c.logger.WithFields(logrus.Fields{
			"class":    req.Class,
			"path":     req.Path,
			"attempts": attempt,
		}).Error("Rate limit retries exhausted")
	}
	return resp, err
}

// DoJSON sends req and decodes the payload into out (when non-nil).
func (c *Client) DoJSON(ctx context.Context, req Request, out interface{}) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := resp.Decode(out); err != nil {
		return apperrors.NewAppErrorf(apperrors.CodeInternalError, err, "failed to parse %s %s response", req.Method, req.Path)
	}
	return nil
}

func (c *Client) resolveToken(req Request) (session.Token, error) {
	if req.Auth == AuthNone {
		return session.Token{}, nil
	}
	tok := c.session.Token()
	if req.Token != nil {
		tok = *req.Token
	}
	if req.Auth == AuthRequired && tok.IsZero() {
		return tok, apperrors.NewAppErrorf(apperrors.CodeNotAuthenticated, nil, "%s %s requires an authenticated session", req.Method, req.Path)
	}
	return tok, nil
}

func (c *Client) buildURL(req Request) string {
	u := c.baseURL + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}
	return u
}

// send performs exactly one HTTP round trip.
func (c *Client) send(ctx context.Context, req Request, attempt int) (*Response, error) {
	tok, err := c.resolveToken(req)
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, "twooter.gateway.send")
	defer span.End()
	tracing.AddSpanAttributes(span, map[string]interface{}{
		"http.method":     req.Method,
		"http.path":       req.Path,
		"twooter.class":   string(req.Class),
		"twooter.attempt": attempt,
	})

	var bodyReader io.Reader
	if req.Body != nil {
		bodyBytes, err := json.Marshal(req.Body)
		if err != nil {
			return nil, apperrors.NewAppError(apperrors.CodeBadRequest, "failed to marshal request body", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.buildURL(req), bodyReader)
	if err != nil {
		return nil, apperrors.NewAppError(apperrors.CodeBadRequest, "failed to create request", err)
	}

	for k, v := range AuthHeaders(tok) {
		httpReq.Header[k] = v
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		metrics.RecordAPICall(string(req.Class), req.Method, 0, time.Since(start))
		tracing.RecordError(span, err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, apperrors.NewAppErrorf(apperrors.CodeTransport, err, "%s %s failed", req.Method, req.Path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	duration := time.Since(start)
	metrics.RecordAPICall(string(req.Class), req.Method, resp.StatusCode, duration)
	tracing.AddSpanAttributes(span, map[string]interface{}{"http.status_code": resp.StatusCode})
	if err != nil {
		return nil, apperrors.NewAppErrorf(apperrors.CodeTransport, err, "failed to read %s %s response", req.Method, req.Path)
	}

	entry := c.logger.WithFields(logrus.Fields{
		"method":      req.Method,
		"path":        req.Path,
		"status_code": resp.StatusCode,
		"duration_ms": duration.Milliseconds(),
		"attempt":     attempt,
		"request_id":  httpReq.Header.Get("X-Request-ID"),
	})

	if err := interpret(resp, respBody); err != nil {
		tracing.RecordError(span, err)
		entry.WithField("response", truncate(string(respBody), 256)).Debug("Twooter API call rejected")
		if resp.StatusCode == http.StatusUnauthorized && req.Token == nil {
			c.expire(ctx, tok)
		}
		return nil, err
	}

	entry.Debug("Twooter API call completed")
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: respBody}, nil
}

// expire ends the session when the server rejected the token it holds.
func (c *Client) expire(ctx context.Context, tok session.Token) {
	username, ok := c.session.Expire(tok)
	if !ok {
		return
	}
	c.logger.WithField("username", username).Warn("Session token rejected, session cleared")
	if c.onExpired != nil {
		c.onExpired(ctx, username)
	}
}

// interpret maps a response to the error taxonomy; nil for 2xx.
func interpret(resp *http.Response, body []byte) error {
	status := resp.StatusCode
	if status >= 200 && status < 300 {
		return nil
	}

	text := string(body)
	if status == http.StatusTooManyRequests || containsRateLimitMarker(text) {
		return apperrors.NewRateLimited(parseRetryAfter(resp.Header.Get("Retry-After")), text)
	}
	if status == http.StatusConflict {
		return apperrors.NewConflict(text)
	}
	return apperrors.NewRemoteRejected(status, text)
}

func containsRateLimitMarker(s string) bool {
	for _, m := range rateLimitMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// parseRetryAfter understands delta-seconds and HTTP dates.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func decodeData(body []byte, out interface{}) error {
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append(json.RawMessage(nil), bytes.TrimSpace(body)...)
		return nil
	}
	payload := models.UnwrapData(body)
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
