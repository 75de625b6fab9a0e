package repocontext

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore persists contexts in Postgres, one row per storage key.
type PostgresStore struct {
	db         *sql.DB
	schemaOnce sync.Once
	schemaErr  error
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) ensureSchema() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("db is nil")
	}
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.Exec(`
CREATE TABLE IF NOT EXISTS repository_contexts (
    key TEXT PRIMARY KEY,
    payload JSONB NOT NULL,
    last_sync TIMESTAMP WITH TIME ZONE NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
`)
	})
	return s.schemaErr
}

func (s *PostgresStore) Get(key string) (Context, bool, error) {
	if s == nil {
		return Context{}, false, fmt.Errorf("store is nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return Context{}, false, fmt.Errorf("key is required")
	}
	if err := s.ensureSchema(); err != nil {
		return Context{}, false, err
	}
	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM repository_contexts WHERE key=$1`, key).Scan(&payload)
	if err == sql.ErrNoRows {
		return Context{}, false, nil
	}
	if err != nil {
		return Context{}, false, err
	}
	var ctx Context
	if err := json.Unmarshal(payload, &ctx); err != nil {
		return Context{}, false, err
	}
	return ctx, true, nil
}

func (s *PostgresStore) Put(key string, ctx Context) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("key is required")
	}
	if err := s.ensureSchema(); err != nil {
		return err
	}
	payload, err := json.Marshal(ctx)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
INSERT INTO repository_contexts (key, payload, last_sync, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (key)
DO UPDATE SET payload=EXCLUDED.payload, last_sync=EXCLUDED.last_sync, updated_at=EXCLUDED.updated_at
`, key, payload, ctx.LastSync, time.Now())
	return err
}

func (s *PostgresStore) Delete(key string) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("key is required")
	}
	if err := s.ensureSchema(); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM repository_contexts WHERE key=$1`, key)
	return err
}
