package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/khanasif1/twooter/internal/metrics"
	"github.com/khanasif1/twooter/internal/session"

	"github.com/sirupsen/logrus"
)

// Guarded decorates a backend with a per-call timeout, a circuit breaker,
// metrics and logging.
type Guarded struct {
	next    CredentialStore
	backend string
	timeout time.Duration
	breaker *CircuitBreaker
	logger  *logrus.Logger
}

func NewGuarded(next CredentialStore, backend string, timeout time.Duration, logger *logrus.Logger) *Guarded {
	return &Guarded{
		next:    next,
		backend: backend,
		timeout: timeout,
		breaker: NewCircuitBreaker(backend, logger),
		logger:  logger,
	}
}

// Breaker exposes the breaker for status reporting.
func (g *Guarded) Breaker() *CircuitBreaker {
	return g.breaker
}

func (g *Guarded) run(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		if g.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}
		return fn(ctx)
	})

	status := "success"
	if err != nil {
		status = "failure"
		if err == ErrCircuitOpen {
			err = storageError(g.backend, op, err)
		}
		g.logger.WithError(err).WithFields(logrus.Fields{
			"backend":   g.backend,
			"operation": op,
		}).Warn("Credential store operation failed")
	}
	metrics.RecordStoreOperation(g.backend, op, status, time.Since(start))
	return err
}

func (g *Guarded) Put(ctx context.Context, username string, token session.Token, profile json.RawMessage) error {
	return g.run(ctx, "put", func(ctx context.Context) error {
		return g.next.Put(ctx, username, token, profile)
	})
}

func (g *Guarded) Get(ctx context.Context, username string) (Record, bool, error) {
	var (
		rec   Record
		found bool
	)
	err := g.run(ctx, "get", func(ctx context.Context) error {
		var err error
		rec, found, err = g.next.Get(ctx, username)
		return err
	})
	return rec, found, err
}

func (g *Guarded) Delete(ctx context.Context, username string) error {
	return g.run(ctx, "delete", func(ctx context.Context) error {
		return g.next.Delete(ctx, username)
	})
}

func (g *Guarded) Close() error {
	return g.next.Close()
}
