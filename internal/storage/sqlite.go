package storage

import (
	"bytes"
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Scope names used in the kv table.
const (
	ScopeSync  = "sync"
	ScopeLocal = "local"
)

// DB is a SQLite database holding every scope in one kv table.
type DB struct {
	db *sql.DB
	sq sq.StatementBuilderType

	mu     sync.Mutex
	scopes map[string]*SQLiteStore
}

// OpenSQLite opens the database at dbPath, applies migrations and returns it.
// ":memory:" gives a private in-memory database.
func OpenSQLite(dbPath string) (*DB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("make db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers and keeps ":memory:" shared.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	if err := applyMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{db: db, sq: sq.StatementBuilder, scopes: make(map[string]*SQLiteStore)}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Scopes returns the sync and local views of the database.
func (d *DB) Scopes() Scopes {
	return Scopes{Sync: d.Scope(ScopeSync), Local: d.Scope(ScopeLocal)}
}

// Scope returns the Store bound to one scope. Repeated calls return the
// same store so watchers see every write.
func (d *DB) Scope(name string) *SQLiteStore {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st, ok := d.scopes[name]; ok {
		return st
	}
	st := &SQLiteStore{d: d, scope: name}
	d.scopes[name] = st
	return st
}

func applyMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT NOT NULL UNIQUE,
        applied_at TEXT NOT NULL
    )`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	for _, name := range files {
		var n int
		err := db.QueryRow(`SELECT 1 FROM schema_migrations WHERE name = ?`, name).Scan(&n)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		b, err := migrationsFS.ReadFile(path.Join("migrations", name))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := db.Exec(string(b)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_migrations(name, applied_at) VALUES (?, ?)`,
			name, time.Now().UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}
	return nil
}

// SQLiteStore is one scope of a DB.
type SQLiteStore struct {
	d     *DB
	scope string
	watchers
}

func (s *SQLiteStore) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	return s.get(ctx, s.d.db, keys)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *SQLiteStore) get(ctx context.Context, q queryer, keys []string) (map[string]json.RawMessage, error) {
	where := sq.Eq{"scope": s.scope}
	if len(keys) > 0 {
		where["key"] = keys
	}
	sqlStr, args, err := s.d.sq.Select("key", "value").From("kv").Where(where).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", s.scope, err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = json.RawMessage(v)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Set(ctx context.Context, values map[string]any) error {
	encoded, err := encodeAll(values)
	if err != nil {
		return err
	}
	if len(encoded) == 0 {
		return nil
	}
	keys := make([]string, 0, len(encoded))
	for k := range encoded {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var changes []Change
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		old, err := s.get(ctx, tx, keys)
		if err != nil {
			return err
		}
		now := time.Now().UTC().Format(time.RFC3339Nano)
		ins := s.d.sq.Insert("kv").Columns("scope", "key", "value", "updated_at")
		for _, k := range keys {
			ins = ins.Values(s.scope, k, string(encoded[k]), now)
			if !bytes.Equal(old[k], encoded[k]) {
				changes = append(changes, Change{Key: k, Old: old[k], New: encoded[k]})
			}
		}
		sqlStr, args, err := ins.
			Suffix("ON CONFLICT(scope, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at").
			ToSql()
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, sqlStr, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("set %s: %w", s.scope, err)
	}
	s.notify(changes)
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	var changes []Change
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		old, err := s.get(ctx, tx, keys)
		if err != nil {
			return err
		}
		sqlStr, args, err := s.d.sq.Delete("kv").Where(sq.Eq{"scope": s.scope, "key": keys}).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return err
		}
		for _, k := range keys {
			if v, ok := old[k]; ok {
				changes = append(changes, Change{Key: k, Old: v})
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove %s: %w", s.scope, err)
	}
	s.notify(changes)
	return nil
}

func (s *SQLiteStore) Watch(fn func([]Change)) func() {
	return s.add(fn)
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
