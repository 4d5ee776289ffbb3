// Package store persists one token and profile snapshot per username.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/khanasif1/twooter/internal/config"
	"github.com/khanasif1/twooter/internal/session"
	apperrors "github.com/khanasif1/twooter/pkg/errors"

	"github.com/sirupsen/logrus"
)

// Record is one persisted credential
type Record struct {
	Username string
	Token    session.Token
	Profile  json.RawMessage
}

// CredentialStore is a keyed token cache. Put overwrites; Get reports absence
// with found=false; Delete of a missing key is not an error.
type CredentialStore interface {
	Put(ctx context.Context, username string, token session.Token, profile json.RawMessage) error
	Get(ctx context.Context, username string) (Record, bool, error)
	Delete(ctx context.Context, username string) error
	Close() error
}

func storageError(backend, op string, err error) error {
	return apperrors.NewAppErrorf(apperrors.CodeStorage, err, "%s %s failed", backend, op)
}

// profileOrEmpty keeps the persisted snapshot valid JSON.
func profileOrEmpty(profile json.RawMessage) json.RawMessage {
	if len(profile) == 0 {
		return json.RawMessage("{}")
	}
	return profile
}

// New opens the configured backend wrapped in the circuit breaker guard.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (CredentialStore, error) {
	var (
		backend CredentialStore
		err     error
	)

	switch cfg.Store.Backend {
	case config.BackendSQLite:
		backend, err = NewSQLiteStore(cfg.Store.SQLitePath)
	case config.BackendRedis:
		client, cerr := NewRedisClient(ctx, &cfg.Store, logger)
		if cerr != nil {
			return nil, cerr
		}
		backend = NewRedisStore(client, cfg.Store.RedisKeyPrefix)
	case config.BackendDynamoDB:
		backend, err = NewDynamoStoreFromConfig(ctx, &cfg.Store, &cfg.AWS)
	case config.BackendPostgres:
		backend, err = NewPostgresStore(ctx, cfg.Store.PostgresURL)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Store.Backend)
	}
	if err != nil {
		return nil, err
	}

	logger.WithField("backend", cfg.Store.Backend).Info("Credential store ready")
	return NewGuarded(backend, cfg.Store.Backend, cfg.Store.Timeout, logger), nil
}
