// Package content turns campaign context into short posts using an LLM.
package content

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/khanasif1/twooter/internal/config"
	"github.com/khanasif1/twooter/internal/metrics"
	"github.com/khanasif1/twooter/internal/retry"
	apperrors "github.com/khanasif1/twooter/pkg/errors"

	"github.com/sirupsen/logrus"
)

// DefaultMaxChars is the platform post length limit.
const DefaultMaxChars = 255

const ellipsis = "..."

// DefaultSystemPrompt is used when no persona prompt is configured.
const DefaultSystemPrompt = "You write social media posts supporting a political campaign. " +
	"The input may contain press release excerpts and currently trending posts. " +
	"Write one post of at most 255 characters that is positive about the candidate, " +
	"fits the conversation that is trending, and is likely to be shared. " +
	"Reply with the post text only."

// Completer is one LLM backend. Rate limiting must be reported as a
// RATE_LIMITED error so it can be retried.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	Name() string
}

// Generator produces post text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Writer is the Generator used by campaigns: a Completer plus persona,
// length limit and the generate retry schedule.
type Writer struct {
	completer Completer
	system    string
	maxChars  int
	policy    retry.Policy
	sleep     retry.Sleeper
	logger    *logrus.Logger
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

func WithSystemPrompt(p string) WriterOption {
	return func(w *Writer) {
		if strings.TrimSpace(p) != "" {
			w.system = p
		}
	}
}

func WithMaxChars(n int) WriterOption {
	return func(w *Writer) {
		if n > len(ellipsis) {
			w.maxChars = n
		}
	}
}

func WithPolicy(p retry.Policy) WriterOption {
	return func(w *Writer) { w.policy = p }
}

func WithSleeper(s retry.Sleeper) WriterOption {
	return func(w *Writer) { w.sleep = s }
}

func NewWriter(c Completer, logger *logrus.Logger, opts ...WriterOption) *Writer {
	w := &Writer{
		completer: c,
		system:    DefaultSystemPrompt,
		maxChars:  DefaultMaxChars,
		policy:    retry.DefaultPolicies().Generate,
		sleep:     retry.SleepContext,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// NewFromConfig builds a Writer for the configured provider.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *logrus.Logger, opts ...WriterOption) (*Writer, error) {
	var (
		c   Completer
		err error
	)
	switch cfg.LLM.Provider {
	case config.ProviderOpenAI, config.ProviderAzure:
		c, err = NewOpenAICompleter(&cfg.LLM)
	case config.ProviderGemini:
		c, err = NewGeminiCompleter(ctx, &cfg.LLM)
	default:
		return nil, apperrors.NewAppError(apperrors.CodeBadRequest, "no LLM provider configured", nil)
	}
	if err != nil {
		return nil, err
	}

	base := []WriterOption{
		WithSystemPrompt(cfg.LLM.SystemPrompt),
		WithMaxChars(cfg.LLM.MaxChars),
		WithPolicy(retry.PoliciesFromConfig(&cfg.Retry).Generate),
	}
	return NewWriter(c, logger, append(base, opts...)...), nil
}

// Generate asks the backend for a post and enforces the length limit.
func (w *Writer) Generate(ctx context.Context, prompt string) (string, error) {
	hook := func(attempt int, delay time.Duration, err error) {
		metrics.RecordRateLimitRetry(string(retry.ClassGenerate))
		w.logger.WithFields(logrus.Fields{
			"provider": w.completer.Name(),
			"attempt":  attempt,
			"delay":    delay.String(),
		}).Warn("LLM rate limited, backing off")
	}

	text, err := retry.Do(ctx, w.policy, w.sleep, hook, func(ctx context.Context) (string, error) {
		return w.completer.Complete(ctx, w.system, prompt)
	})
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeRateLimitExhausted) {
			metrics.RecordRateLimitExhausted(string(retry.ClassGenerate))
		}
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperrors.NewAppErrorf(apperrors.CodeRemoteRejected, nil, "%s returned no content", w.completer.Name())
	}
	return Truncate(text, w.maxChars), nil
}

// Truncate shortens s to at most max runes, ending in "..." when cut.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= len(ellipsis) {
		return string([]rune(s)[:max])
	}
	return string([]rune(s)[:max-len(ellipsis)]) + ellipsis
}
