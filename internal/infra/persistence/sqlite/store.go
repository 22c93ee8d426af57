// Package sqlite persists user records to a SQLite database, one row per
// record, while reusing the in-memory store for transaction semantics.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"usergrid/internal/infra/persistence/memory"
	"usergrid/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

const schema = `CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	payload BLOB NOT NULL
)`

// Store writes the records touched by each transaction inside one SQLite
// transaction before the in-memory state is swapped.
type Store struct {
	*memory.Store
	db   *sql.DB
	path string
}

// NewStore opens (creating when needed) the database at path and hydrates the
// in-memory state from it.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = "usergrid.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// database/sql pools connections; a single writer avoids SQLITE_BUSY between them.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create users table: %w", err)
	}
	s := &Store{db: db, path: path}
	s.Store = memory.NewStore(engine, memory.WithCommitHook(s.persist))
	if err := s.load(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, payload FROM users`)
	if err != nil {
		return fmt.Errorf("select users: %w", err)
	}
	defer func() { _ = rows.Close() }()
	snapshot := memory.Snapshot{Users: map[string]domain.User{}}
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		var u domain.User
		if err := json.Unmarshal(payload, &u); err != nil {
			return fmt.Errorf("decode user %s: %w", id, err)
		}
		u.ID = id
		snapshot.Users[id] = u
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate users: %w", err)
	}
	s.ImportState(snapshot)
	return nil
}

func (s *Store) persist(ctx context.Context, next memory.Snapshot, changes []domain.Change) (retErr error) {
	upserts, deletes := next.Delta(changes)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, u := range upserts {
		data, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("encode user %s: %w", u.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO users(id,payload) VALUES(?,?) ON CONFLICT(id) DO UPDATE SET payload=excluded.payload`, u.ID, data); err != nil {
			return fmt.Errorf("upsert %s: %w", u.ID, err)
		}
	}
	for _, id := range deletes {
		if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
