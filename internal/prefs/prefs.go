package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const (
	KeySelectedGroup = "selectedGroup"
	KeyDarkMode      = "darkMode"
)

const schema = `
CREATE TABLE IF NOT EXISTS prefs (
  key        TEXT PRIMARY KEY,
  value      TEXT NOT NULL,
  updated_at INTEGER NOT NULL
);
`

// Store is a small local key-value store for client preferences.
type Store struct {
	db *sqlx.DB
}

// Open creates or opens the store at path. ":memory:" keeps it in memory.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create prefs dir: %w", err)
		}
		dsn = "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL"
	}
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open prefs: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate prefs: %w", err)
	}
	return &Store{db: db}, nil
}

// Get returns "" when key is unset.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM prefs WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prefs (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM prefs WHERE key = ?`, key)
	return err
}

func (s *Store) Bool(ctx context.Context, key string) (bool, error) {
	v, err := s.Get(ctx, key)
	if err != nil || v == "" {
		return false, err
	}
	return strconv.ParseBool(v)
}

func (s *Store) SetBool(ctx context.Context, key string, v bool) error {
	return s.Set(ctx, key, strconv.FormatBool(v))
}

func (s *Store) Close() error {
	return s.db.Close()
}
