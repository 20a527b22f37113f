// Package tokenstore persists access tokens in PostgreSQL or SQLite so
// several processes can share one Box identity.
package tokenstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/joy-dx/gobox/dto"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// DefaultKey is the row used when a storage is not given a key.
const DefaultKey = "default"

// SQLTokenStorage implements dto.TokenStorage on a single table row.
type SQLTokenStorage struct {
	db      *sql.DB
	dialect string
	key     string
}

// New wraps an open database. dialect is DialectPostgres or DialectSQLite.
func New(db *sql.DB, dialect, key string) (*SQLTokenStorage, error) {
	if dialect != DialectPostgres && dialect != DialectSQLite {
		return nil, fmt.Errorf("unsupported token store dialect: %s", dialect)
	}
	if key == "" {
		key = DefaultKey
	}
	return &SQLTokenStorage{db: db, dialect: dialect, key: key}, nil
}

// Open connects, pings and migrates.
func Open(ctx context.Context, dialect, dsn, key string) (*SQLTokenStorage, error) {
	db, err := sql.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open token store: %w", err)
	}
	if dialect == DialectSQLite {
		// SQLite allows a single writer
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping token store: %w (close error: %w)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping token store: %w", err)
	}
	s, err := New(db, dialect, key)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the token table if it does not exist.
func (s *SQLTokenStorage) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, queryCreateTable.get(s.dialect)); err != nil {
		return fmt.Errorf("failed to create token table: %w", err)
	}
	return nil
}

func (s *SQLTokenStorage) Store(ctx context.Context, token *dto.AccessToken) error {
	if token == nil {
		return s.Clear(ctx)
	}
	b, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, queryUpsertToken.get(s.dialect), s.key, string(b), time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to store token %s: %w", s.key, err)
	}
	return nil
}

func (s *SQLTokenStorage) Get(ctx context.Context) (*dto.AccessToken, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, querySelectToken.get(s.dialect), s.key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token %s: %w", s.key, err)
	}
	var tok dto.AccessToken
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", s.key, err)
	}
	return &tok, nil
}

func (s *SQLTokenStorage) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, queryDeleteToken.get(s.dialect), s.key); err != nil {
		return fmt.Errorf("failed to clear token %s: %w", s.key, err)
	}
	return nil
}

func (s *SQLTokenStorage) Close() error {
	return s.db.Close()
}

var _ dto.TokenStorage = (*SQLTokenStorage)(nil)
