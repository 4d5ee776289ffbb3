package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/khanasif1/twooter/internal/session"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps credentials in a local tokens table.
// The schema matches tokens.db files written by the earlier bot tooling.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, storageError("sqlite", "open", err)
	}
	// one connection: every upsert/delete is a single committed statement
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, storageError("sqlite", "ping", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tokens (
		username TEXT PRIMARY KEY,
		token TEXT NOT NULL,
		user_info TEXT
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return storageError("sqlite", "init schema", err)
	}
	return nil
}

func (s *SQLiteStore) Put(ctx context.Context, username string, token session.Token, profile json.RawMessage) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO tokens (username, token, user_info) VALUES (?, ?, ?)",
		username, token.Encode(), string(profileOrEmpty(profile)))
	if err != nil {
		return storageError("sqlite", "put", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, username string) (Record, bool, error) {
	var (
		token    string
		userInfo sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT token, user_info FROM tokens WHERE username = ?", username).Scan(&token, &userInfo)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, storageError("sqlite", "get", err)
	}

	rec := Record{Username: username, Token: session.Decode(token)}
	if userInfo.Valid && userInfo.String != "" {
		rec.Profile = json.RawMessage(userInfo.String)
	}
	return rec, true, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, username string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM tokens WHERE username = ?", username); err != nil {
		return storageError("sqlite", "delete", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite store: %w", err)
	}
	return nil
}
