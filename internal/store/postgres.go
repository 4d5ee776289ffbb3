package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/khanasif1/twooter/internal/session"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps credentials in a shared tokens table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, storageError("postgres", "connect", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	q := `CREATE TABLE IF NOT EXISTS tokens (
		username TEXT PRIMARY KEY,
		token TEXT NOT NULL,
		user_info JSONB,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`
	if _, err := s.pool.Exec(ctx, q); err != nil {
		return storageError("postgres", "init schema", err)
	}
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, username string, token session.Token, profile json.RawMessage) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tokens (username, token, user_info, updated_at) VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		 ON CONFLICT (username) DO UPDATE SET token = $2, user_info = $3, updated_at = CURRENT_TIMESTAMP`,
		username, token.Encode(), string(profileOrEmpty(profile)))
	if err != nil {
		return storageError("postgres", "put", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, username string) (Record, bool, error) {
	var (
		token    string
		userInfo []byte
	)
	err := s.pool.QueryRow(ctx,
		"SELECT token, user_info FROM tokens WHERE username = $1", username).Scan(&token, &userInfo)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, storageError("postgres", "get", err)
	}

	rec := Record{Username: username, Token: session.Decode(token)}
	if len(userInfo) > 0 {
		rec.Profile = json.RawMessage(userInfo)
	}
	return rec, true, nil
}

func (s *PostgresStore) Delete(ctx context.Context, username string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM tokens WHERE username = $1", username); err != nil {
		return storageError("postgres", "delete", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
