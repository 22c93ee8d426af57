// Package postgres provides a Postgres-backed persistent store that mirrors the
// in-memory semantics, writing one JSONB row per user record.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"usergrid/internal/infra/persistence/memory"
	"usergrid/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/usergrid?sslmode=disable"

	createTableSQL = `CREATE TABLE IF NOT EXISTS users (id TEXT PRIMARY KEY, payload JSONB NOT NULL)`
	selectUsersSQL = `SELECT id, payload FROM users`
	upsertUserSQL  = `INSERT INTO users(id,payload) VALUES($1,$2) ON CONFLICT(id) DO UPDATE SET payload=EXCLUDED.payload`
	deleteUserSQL  = `DELETE FROM users WHERE id = $1`
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists records to Postgres while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	db *sql.DB
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to defaultDSN).
func NewStore(ctx context.Context, dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s, err := NewStoreWithDB(ctx, db, engine)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewStoreWithDB ensures the users table exists on db and hydrates the
// in-memory state from it.
func NewStoreWithDB(ctx context.Context, db *sql.DB, engine *domain.RulesEngine) (*Store, error) {
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		return nil, fmt.Errorf("ensure users table: %w", err)
	}
	snapshot, err := loadSnapshot(ctx, db)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	s.Store = memory.NewStore(engine, memory.WithCommitHook(s.persist))
	s.ImportState(snapshot)
	return s, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	rows, err := db.QueryContext(ctx, selectUsersSQL)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snapshot := memory.Snapshot{Users: map[string]domain.User{}}
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan users: %w", err)
		}
		var u domain.User
		if err := json.Unmarshal(payload, &u); err != nil {
			return memory.Snapshot{}, fmt.Errorf("decode user %s: %w", id, err)
		}
		u.ID = id
		snapshot.Users[id] = u
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate users: %w", err)
	}
	return snapshot, nil
}

func (s *Store) persist(ctx context.Context, next memory.Snapshot, changes []domain.Change) error {
	upserts, deletes := next.Delta(changes)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, u := range upserts {
		data, err := json.Marshal(u)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, upsertUserSQL, u.ID, string(data)); err != nil {
			return fmt.Errorf("upsert %s: %w", u.ID, err)
		}
	}
	for _, id := range deletes {
		if _, err := tx.ExecContext(ctx, deleteUserSQL, id); err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
