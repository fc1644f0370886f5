package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/chenzhangda16/grantguard/internal/guard/model"
	"github.com/chenzhangda16/grantguard/pkg/hash"
)

// PostgresStore implements the conditional write with a guarded UPDATE:
// zero affected rows means someone else moved the version.
type PostgresStore struct {
	db *sql.DB
}

const documentsDDL = `
CREATE TABLE IF NOT EXISTS guard_documents (
  key        text        PRIMARY KEY,
  content    bytea       NOT NULL,
  version    text        NOT NULL,
  updated_at timestamptz NOT NULL DEFAULT now()
);
`

func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(8)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, documentsDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (Document, error) {
	var d Document
	err := s.db.QueryRowContext(ctx,
		`SELECT content, version FROM guard_documents WHERE key = $1`, key,
	).Scan(&d.Content, &d.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, model.ErrNotFound
	}
	return d, err
}

func (s *PostgresStore) Put(ctx context.Context, key string, content []byte, expected string) (string, error) {
	next := hash.NextVersion(expected, content)

	var (
		res sql.Result
		err error
	)
	if expected == "" {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO guard_documents(key, content, version) VALUES ($1,$2,$3)
			 ON CONFLICT (key) DO NOTHING`,
			key, content, next)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE guard_documents SET content = $2, version = $3, updated_at = now()
			 WHERE key = $1 AND version = $4`,
			key, content, next, expected)
	}
	if err != nil {
		return "", err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", model.ErrStoreConflict
	}
	return next, nil
}
